package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/tadowatch"
	"github.com/jpalmerr/tadowatch/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// loadConfig parses the config file, or returns a default config when no
// path was given. Every field has a working default, so serve and login
// run without a file.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Parse(nil)
	}
	return config.Load(path)
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger creates the CLI logger: colorized text when stderr is a
// terminal, plain text when redirected, JSON when configured.
func newLogger(cfg config.LogConfig) *slog.Logger {
	level := parseLogLevel(cfg.Level)

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))
	}

	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

// serveCmd starts the tadowatch watcher.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the watcher",
	Long: `Start the tadowatch watcher.

The watcher will:
  - Load stored credentials (run "tadowatch login" first)
  - Poll the Tado APIs on a quota-aware schedule
  - Serve the latest home state on the configured port

The watcher runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  tadowatch serve
  tadowatch serve -c config.yaml
  tadowatch serve --config /etc/tadowatch/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (optional, defaults apply)")
}

func runServe(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := loadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := newLogger(cfg.Log)

	opts := config.BuildOptions(cfg)
	opts = append(opts, tadowatch.WithLogger(logger))

	w, err := tadowatch.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	logger.Info("starting watcher",
		"port", w.Port(),
		"tier", string(w.Tier()),
		"poll_interval", w.Interval().String(),
		"features", len(w.Features()),
	)

	// SIGINT/SIGTERM cancel the context and start the shutdown path
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- w.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("watcher error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// a signal arrived; give the watcher shutdownTimeout to drain
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("watcher error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
