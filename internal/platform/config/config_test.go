package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, "parley", cfg.ServiceName)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, 5*time.Second, cfg.PresenceTimeout.Duration)
	assert.Equal(t, 64, cfg.ConnSendBuffer)
}

func TestLoadFileReadsTOMLAndEnvironmentWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
service_name = "parley-test"
http_port = "9090"
redis_url = "redis://localhost:6379/0"
presence_timeout = "750ms"
conn_rate_burst = 5
allowed_origins = ["https://app.example.com"]
`), 0o600))

	t.Setenv("HTTP_PORT", "7070")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "parley-test", cfg.ServiceName)
	assert.Equal(t, "7070", cfg.HTTPPort)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 750*time.Millisecond, cfg.PresenceTimeout.Duration)
	assert.Equal(t, 5, cfg.ConnRateBurst)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.AllowedOrigins)
}

func TestLoadFileRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.toml")
	require.NoError(t, os.WriteFile(path, []byte(`presence_timeout = "soon"`), 0o600))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestLoadFileRejectsNonPositiveTimeout(t *testing.T) {
	t.Setenv("PRESENCE_TIMEOUT", "0s")

	_, err := LoadFile("")
	require.Error(t, err)
}
