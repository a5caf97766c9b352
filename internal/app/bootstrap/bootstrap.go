package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	eventsv1 "parley/contracts/gen/events/v1"
	protocolengine "parley/contexts/meeting-collaboration/protocol-engine"
	postgresadapter "parley/contexts/meeting-collaboration/protocol-engine/adapters/postgres"
	"parley/contexts/meeting-collaboration/protocol-engine/adapters/seed"
	realtimecoordinator "parley/contexts/meeting-collaboration/realtime-coordinator"
	websocketadapter "parley/contexts/meeting-collaboration/realtime-coordinator/adapters/websocket"
	"parley/contexts/meeting-collaboration/realtime-coordinator/ports"
	"parley/internal/platform/config"
	"parley/internal/platform/db"
	"parley/internal/platform/httpserver"
	"parley/internal/platform/messaging"
	"parley/internal/platform/observability"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

const moduleName = "internal/app/bootstrap"

type APIApp struct {
	cfg      config.Config
	server   *httpserver.Server
	engine   protocolengine.Module
	realtime realtimecoordinator.Module
	metrics  *observability.Metrics
	postgres *db.Postgres
	redis    *messaging.Redis
	logger   *slog.Logger
}

type WorkerApp struct {
	cfg      config.Config
	engine   protocolengine.Module
	postgres *db.Postgres
	redis    *messaging.Redis
	logger   *slog.Logger
}

// busBroadcaster publishes straight to the bus. The standalone worker has no
// coordinator of its own; API nodes subscribed to the bus deliver the events.
type busBroadcaster struct {
	bus ports.Bus
}

func (b busBroadcaster) Broadcast(ctx context.Context, channel string, event eventsv1.Envelope) error {
	return b.bus.Publish(ctx, channel, event)
}

// BuildAPI wires the API process. Without POSTGRES_DSN it runs on the
// in-memory store; without REDIS_URL broadcasts stay on this node.
func BuildAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) (*APIApp, error) {
	logger = resolveLogger(logger).With("service", cfg.ServiceName, "process", "api")
	metrics := observability.NewMetrics()

	app := &APIApp{cfg: cfg, metrics: metrics, logger: logger}

	var bus ports.Bus
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisBus, err := messaging.NewRedis(cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		if err := redisBus.Ping(ctx); err != nil {
			_ = redisBus.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		app.redis = redisBus
		bus = redisBus
	} else {
		bus = messaging.NewLocal(cfg.ConnSendBuffer*4, logger)
	}

	app.realtime = realtimecoordinator.NewModule(realtimecoordinator.Dependencies{
		Bus:             bus,
		Metrics:         metrics,
		PresenceTimeout: cfg.PresenceTimeout.Duration,
		Logger:          logger,
	})

	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		logger.Warn("running on the in-memory store",
			"event", "bootstrap_memory_store",
			"module", moduleName,
			"layer", "platform",
		)
		app.engine = protocolengine.NewInMemoryModule(app.realtime.Coordinator, logger)
	} else {
		pg, err := db.Connect(ctx, cfg.PostgresDSN, db.DefaultPoolOptions(), logger)
		if err != nil {
			app.closeBus()
			return nil, err
		}
		app.postgres = pg
		app.engine = protocolengine.NewModule(protocolengine.Dependencies{
			Repository:       postgresadapter.NewRepository(pg.DB, logger),
			Broadcaster:      app.realtime.Coordinator,
			Clock:            postgresadapter.SystemClock{},
			IDGen:            postgresadapter.UUIDGenerator{},
			RelayBatchSize:   cfg.OutboxBatchSize,
			RelayGracePeriod: cfg.OutboxGrace.Duration,
			Logger:           logger,
		})
	}
	app.engine.Relay.BatchSize = cfg.OutboxBatchSize
	app.engine.Relay.GracePeriod = cfg.OutboxGrace.Duration

	if path := strings.TrimSpace(cfg.ProtocolTypeSeed); path != "" {
		if err := SeedFromFile(ctx, app.engine, path); err != nil {
			_ = app.Close()
			return nil, err
		}
	}

	app.server = httpserver.New(app.engine, app.realtime, metrics, logger, httpserver.Options{
		Addr:           normalizeAddr(cfg.HTTPPort),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableSwagger:  cfg.EnableSwagger,
		Conn: websocketadapter.Options{
			SendBuffer: cfg.ConnSendBuffer,
			RateLimit:  cfg.ConnRateLimit,
			RateBurst:  cfg.ConnRateBurst,
			Logger:     logger,
		},
	})
	return app, nil
}

// BuildWorker wires the standalone outbox relay. It needs Postgres for the
// outbox and Redis to reach the API nodes.
func BuildWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*WorkerApp, error) {
	logger = resolveLogger(logger).With("service", cfg.ServiceName, "process", "worker")
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("POSTGRES_DSN is required")
	}
	if strings.TrimSpace(cfg.RedisURL) == "" {
		return nil, errors.New("REDIS_URL is required")
	}

	redisBus, err := messaging.NewRedis(cfg.RedisURL, logger)
	if err != nil {
		return nil, err
	}
	pg, err := db.Connect(ctx, cfg.PostgresDSN, db.DefaultPoolOptions(), logger)
	if err != nil {
		_ = redisBus.Close()
		return nil, err
	}

	engine := protocolengine.NewModule(protocolengine.Dependencies{
		Repository:       postgresadapter.NewRepository(pg.DB, logger),
		Broadcaster:      busBroadcaster{bus: redisBus},
		Clock:            postgresadapter.SystemClock{},
		IDGen:            postgresadapter.UUIDGenerator{},
		RelayBatchSize:   cfg.OutboxBatchSize,
		RelayGracePeriod: cfg.OutboxGrace.Duration,
		Logger:           logger,
	})
	return &WorkerApp{
		cfg:      cfg,
		engine:   engine,
		postgres: pg,
		redis:    redisBus,
		logger:   logger,
	}, nil
}

// Run serves HTTP, the bus subscription and the outbox relay until ctx ends or
// one of them fails.
func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", moduleName,
		"layer", "platform",
		"addr", normalizeAddr(a.cfg.HTTPPort),
		"postgres", a.postgres != nil,
		"redis", a.redis != nil,
	)

	group, ctx := errgroup.WithContext(ctx)
	if err := a.realtime.Coordinator.Start(ctx); err != nil {
		return err
	}
	group.Go(func() error {
		return a.server.Start(ctx)
	})
	group.Go(func() error {
		return runRelay(ctx, a.engine, a.cfg, a.metrics)
	})
	return group.Wait()
}

func (a *APIApp) Close() error {
	a.closeBus()
	if a.postgres != nil {
		return a.postgres.Close()
	}
	return nil
}

func (a *APIApp) closeBus() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", moduleName,
		"layer", "platform",
		"poll_interval", w.cfg.OutboxInterval.Duration.String(),
	)
	return runRelay(ctx, w.engine, w.cfg, nil)
}

func (w *WorkerApp) Close() error {
	if w.redis != nil {
		_ = w.redis.Close()
	}
	if w.postgres != nil {
		return w.postgres.Close()
	}
	return nil
}

// Migrate creates or updates the protocol engine schema.
func Migrate(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger = resolveLogger(logger)
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	pg, err := db.Connect(ctx, cfg.PostgresDSN, db.DefaultPoolOptions(), logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := postgresadapter.Migrate(pg.DB.WithContext(ctx)); err != nil {
		return err
	}
	logger.Info("schema migrated",
		"event", "bootstrap_migrated",
		"module", moduleName,
		"layer", "platform",
	)
	return nil
}

// SeedFromFile loads protocol types and meetings from a TOML seed.
func SeedFromFile(ctx context.Context, engine protocolengine.Module, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open seed: %w", err)
	}
	defer file.Close()

	types, meetings, err := seed.Decode(file)
	if err != nil {
		return err
	}
	if err := engine.Catalog.SeedProtocolTypes(ctx, types); err != nil {
		return err
	}
	return engine.Catalog.RegisterMeetings(ctx, meetings)
}

// SeedDatabase applies a seed file against Postgres.
func SeedDatabase(ctx context.Context, cfg config.Config, path string, logger *slog.Logger) error {
	logger = resolveLogger(logger)
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return errors.New("POSTGRES_DSN is required")
	}
	pg, err := db.Connect(ctx, cfg.PostgresDSN, db.DefaultPoolOptions(), logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	engine := protocolengine.NewModule(protocolengine.Dependencies{
		Repository: postgresadapter.NewRepository(pg.DB, logger),
		Clock:      postgresadapter.SystemClock{},
		IDGen:      postgresadapter.UUIDGenerator{},
		Logger:     logger,
	})
	return SeedFromFile(ctx, engine, path)
}

func runRelay(ctx context.Context, engine protocolengine.Module, cfg config.Config, metrics *observability.Metrics) error {
	if metrics == nil {
		return engine.Relay.Run(ctx, cfg.OutboxInterval.Duration)
	}
	interval := cfg.OutboxInterval.Duration
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = engine.Relay.RunOnce(ctx)
			metrics.OutboxRelayRun()
		}
	}
}

func resolveLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
