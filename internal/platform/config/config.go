package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is centralized process configuration.
// Values come from an optional TOML file named by PARLEY_CONFIG, then
// environment variables override them.
type Config struct {
	ServiceName string `toml:"service_name"`
	HTTPPort    string `toml:"http_port"`
	PostgresDSN string `toml:"postgres_dsn"`
	RedisURL    string `toml:"redis_url"`

	PresenceTimeout  Duration `toml:"presence_timeout"`
	OutboxInterval   Duration `toml:"outbox_interval"`
	OutboxGrace      Duration `toml:"outbox_grace"`
	OutboxBatchSize  int      `toml:"outbox_batch_size"`
	ConnRateLimit    float64  `toml:"conn_rate_limit"`
	ConnRateBurst    int      `toml:"conn_rate_burst"`
	ConnSendBuffer   int      `toml:"conn_send_buffer"`
	AllowedOrigins   []string `toml:"allowed_origins"`
	EnableSwagger    bool     `toml:"enable_swagger"`
	ProtocolTypeSeed string   `toml:"protocol_type_seed"`
}

// Duration decodes TOML strings such as "5s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func Defaults() Config {
	return Config{
		ServiceName:     "parley",
		HTTPPort:        "8080",
		PresenceTimeout: Duration{5 * time.Second},
		OutboxInterval:  Duration{2 * time.Second},
		OutboxGrace:     Duration{2 * time.Second},
		OutboxBatchSize: 100,
		ConnRateLimit:   20,
		ConnRateBurst:   40,
		ConnSendBuffer:  64,
		EnableSwagger:   true,
	}
}

func Load() (Config, error) {
	return LoadFile(os.Getenv("PARLEY_CONFIG"))
}

// LoadFile reads path when it is non-empty and applies environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path = strings.TrimSpace(path); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	cfg.ServiceName = envString("SERVICE_NAME", cfg.ServiceName)
	cfg.HTTPPort = envString("HTTP_PORT", cfg.HTTPPort)
	cfg.PostgresDSN = envString("POSTGRES_DSN", cfg.PostgresDSN)
	cfg.RedisURL = envString("REDIS_URL", cfg.RedisURL)
	cfg.ProtocolTypeSeed = envString("PROTOCOL_TYPE_SEED", cfg.ProtocolTypeSeed)
	cfg.PresenceTimeout.Duration = envDuration("PRESENCE_TIMEOUT", cfg.PresenceTimeout.Duration)
	cfg.OutboxInterval.Duration = envDuration("OUTBOX_INTERVAL", cfg.OutboxInterval.Duration)
	cfg.OutboxGrace.Duration = envDuration("OUTBOX_GRACE", cfg.OutboxGrace.Duration)
	cfg.OutboxBatchSize = envInt("OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize)
	cfg.ConnRateLimit = envFloat("CONN_RATE_LIMIT", cfg.ConnRateLimit)
	cfg.ConnRateBurst = envInt("CONN_RATE_BURST", cfg.ConnRateBurst)
	cfg.ConnSendBuffer = envInt("CONN_SEND_BUFFER", cfg.ConnSendBuffer)
	cfg.EnableSwagger = envBool("ENABLE_SWAGGER", cfg.EnableSwagger)
	if origins := envList("ALLOWED_ORIGINS"); len(origins) > 0 {
		cfg.AllowedOrigins = origins
	}

	if cfg.PresenceTimeout.Duration <= 0 {
		return Config{}, fmt.Errorf("presence timeout must be positive")
	}
	if cfg.OutboxInterval.Duration <= 0 {
		return Config{}, fmt.Errorf("outbox interval must be positive")
	}
	return cfg, nil
}

func envString(name string, fallback string) string {
	if raw := strings.TrimSpace(os.Getenv(name)); raw != "" {
		return raw
	}
	return fallback
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envFloat(name string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envList(name string) []string {
	var out []string
	for _, value := range strings.Split(os.Getenv(name), ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			out = append(out, value)
		}
	}
	return out
}

func envBool(name string, fallback bool) bool {
	raw := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
