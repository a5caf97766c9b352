package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the process collectors. Each instance owns its registry so
// tests can build as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	connectionsOpen   prometheus.Gauge
	connectionsClosed *prometheus.CounterVec
	eventsDelivered   *prometheus.CounterVec
	presenceCompleted *prometheus.CounterVec
	socketRequests    *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	outboxRelayed     prometheus.Counter
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		connectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "realtime",
			Name:      "connections_open",
			Help:      "Live client connections.",
		}),
		connectionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "realtime",
			Name:      "connections_closed_total",
			Help:      "Closed client connections by reason.",
		}, []string{"reason"}),
		eventsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "realtime",
			Name:      "events_delivered_total",
			Help:      "Events queued to client connections.",
		}, []string{"event_type"}),
		presenceCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "realtime",
			Name:      "presence_requests_total",
			Help:      "Completed peer state requests.",
		}, []string{"timed_out"}),
		socketRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Socket requests by message type and reply code.",
		}, []string{"type", "code"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "parley",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		outboxRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parley",
			Subsystem: "outbox",
			Name:      "relay_runs_total",
			Help:      "Outbox relay passes.",
		}),
	}
	m.Registry.MustRegister(
		m.connectionsOpen,
		m.connectionsClosed,
		m.eventsDelivered,
		m.presenceCompleted,
		m.socketRequests,
		m.httpRequests,
		m.httpDuration,
		m.outboxRelayed,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) ConnectionOpened() {
	m.connectionsOpen.Inc()
}

func (m *Metrics) ConnectionClosed(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.connectionsOpen.Dec()
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *Metrics) EventDelivered(eventType string) {
	m.eventsDelivered.WithLabelValues(eventType).Inc()
}

func (m *Metrics) PresenceCompleted(timedOut bool) {
	m.presenceCompleted.WithLabelValues(strconv.FormatBool(timedOut)).Inc()
}

func (m *Metrics) SocketRequest(messageType string, code string) {
	m.socketRequests.WithLabelValues(messageType, code).Inc()
}

func (m *Metrics) RecordHTTPRequest(method string, route string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	m.httpRequests.WithLabelValues(method, route, statusLabel).Inc()
	m.httpDuration.WithLabelValues(method, route, statusLabel).Observe(duration.Seconds())
}

func (m *Metrics) OutboxRelayRun() {
	m.outboxRelayed.Inc()
}
