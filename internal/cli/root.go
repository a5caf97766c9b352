package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"parley/internal/app/bootstrap"
	"parley/internal/platform/config"
)

type options struct {
	configPath string
	verbose    bool
}

// NewRootCmd creates the top-level "parley" command.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "parley",
		Short:         "Real-time protocol engine for meetings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("PARLEY_CONFIG"), "path to a TOML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newMigrateCmd(opts),
		newSeedTypesCmd(opts),
	)
	return root
}

// Execute runs the root command with args and returns the process exit code.
func Execute(args []string) int {
	root := NewRootCmd()
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		slog.Error("command failed",
			"event", "cli_command_failed",
			"module", "internal/cli",
			"layer", "platform",
			"error", err.Error(),
		)
		return 1
	}
	return 0
}

func newServeCmd(opts *options) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API: websocket gateway, read API and outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.HTTPPort = port
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := bootstrap.BuildAPI(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "HTTP port, overrides HTTP_PORT")
	return cmd
}

func newWorkerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the standalone outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			app, err := bootstrap.BuildWorker(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Run(ctx)
		},
	}
}

func newMigrateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the Postgres schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			return bootstrap.Migrate(cmd.Context(), cfg, logger)
		},
	}
}

func newSeedTypesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-types <file.toml>",
		Short: "Load protocol types and meetings from a TOML seed into Postgres",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			return bootstrap.SeedDatabase(cmd.Context(), cfg, args[0], logger)
		},
	}
}

func (o *options) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return config.Config{}, nil, err
	}
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
