package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/backchannel/internal/config"
	"github.com/roach88/backchannel/internal/engine"
	"github.com/roach88/backchannel/internal/seed"
	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
	"github.com/roach88/backchannel/internal/view"
)

// seedOwner owns the seeded default channels.
const seedOwner = table.Identity("0000000000000000")

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Config   string
	Database string
	Seed     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the transaction engine",
		Long: `Open (or create) the database, seed the default channels on first
run, and start the single-writer transaction loop.

Example:
  backchannel serve --db ./chat.db
  backchannel serve --config ./backchannel.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "path to CUE seed spec (overrides config)")

	return cmd
}

func serve(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	channels, err := loadSeed(cfg.SeedPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile seed", err)
	}

	slog.Info("opening database", "path", cfg.DatabasePath)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	feed := view.NewFeed()
	defer feed.Close()
	eng := engine.New(st, engine.WithPublisher(feed))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := eng.Init(ctx, seedOwner, channels); err != nil {
		return WrapExitError(ExitCommandError, "failed to seed database", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Engine started. Press Ctrl-C to stop.")

	if err := eng.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	slog.Info("engine stopped gracefully")
	return nil
}

// loadConfig resolves the effective configuration: file when given,
// defaults otherwise, flags on top.
func loadConfig(opts *ServeOptions) (config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if opts.Database != "" {
		cfg.DatabasePath = opts.Database
	}
	if opts.Seed != "" {
		cfg.SeedPath = opts.Seed
	}
	return cfg, nil
}

// loadSeed compiles the seed spec: a file when configured, the embedded
// default otherwise.
func loadSeed(path string) ([]seed.Channel, error) {
	if path == "" {
		return seed.Default()
	}
	return seed.LoadFile(path)
}
