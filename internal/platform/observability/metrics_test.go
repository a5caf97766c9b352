package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsTrackConnections(t *testing.T) {
	m := NewMetrics()

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed("slow_consumer")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionsOpen))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.connectionsClosed.WithLabelValues("slow_consumer")))
}

func TestMetricsRecordRequestsAndPresence(t *testing.T) {
	m := NewMetrics()

	m.SocketRequest("CreateItem", "ok")
	m.SocketRequest("CreateItem", "ok")
	m.PresenceCompleted(true)
	m.RecordHTTPRequest("GET", "/healthz", 200, 3*time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.socketRequests.WithLabelValues("CreateItem", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.presenceCompleted.WithLabelValues("true")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/healthz", "200")))
}
