// Package main is the entry point for tunesession.
//
// tunesession keeps a persistent playback session: the queue, its shuffle
// order, the bookmark and the system playlists survive restarts, and the
// session can be driven over HTTP and MPRIS.
//
// Build:
//
//	go build -o build/tunesession ./cmd
//
// Run:
//
//	./build/tunesession serve
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/tunesession/internal/app"
	"github.com/tejashwikalptaru/tunesession/internal/config"
	"github.com/tejashwikalptaru/tunesession/internal/logger"
)

// options are the persistent flags shared by every command.
type options struct {
	configPaths []string
	logLevel    string
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "tunesession",
		Short:         "Persistent playback session with HTTP and MPRIS control",
		Long:          "tunesession restores the last playback session, keeps it persisted as it changes and exposes it to remote controllers.",
		Version:       app.GetVersionInfo().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringSliceVarP(&opts.configPaths, "config", "c", nil, "Config file(s), later files win (default: XDG config dir, then ./config.toml)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newStatusCmd(opts),
		newQueueCmd(opts),
		newRecentCmd(opts),
		newFavouritesCmd(opts),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration and builds the logger (called by every command)
func (o *options) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPaths...)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, nil, err
		}
	}

	lc := cfg.LoggerConfig()
	lc.Output = os.Stderr
	return cfg, logger.NewLogger(lc), nil
}

// withApp runs fn against a session restored from the store. Control
// surfaces stay off; changes are saved when fn returns.
func (o *options) withApp(ctx context.Context, fn func(ctx context.Context, a *app.Application) error) (err error) {
	cfg, log, err := o.loadConfig()
	if err != nil {
		return err
	}
	cfg.HTTP.Listen = ""
	cfg.MPRIS.Enabled = false

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize session: %w", err)
	}
	defer func() {
		if shutdownErr := application.Shutdown(); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()
	return fn(ctx, application)
}
