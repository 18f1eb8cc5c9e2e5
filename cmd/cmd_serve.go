package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/tunesession/internal/app"
)

func newServeCmd(opts *options) *cobra.Command {
	var (
		listen  string
		noMPRIS bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Restore the session and serve it until interrupted",
		Long: `Restore the persisted session and expose it over HTTP and MPRIS.

Examples:
  # Serve on the configured address
  tunesession serve

  # Serve on another port without D-Bus
  tunesession serve --listen 127.0.0.1:9000 --no-mpris

  # Only MPRIS
  tunesession serve --listen ""
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.HTTP.Listen = listen
			}
			if noMPRIS {
				cfg.MPRIS.Enabled = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("initialize application: %w", err)
			}
			defer func() {
				if err := application.Shutdown(); err != nil {
					log.Error("shutdown failed", slog.Any("error", err))
				}
			}()

			if err := application.Run(ctx); err != nil {
				return err
			}
			log.Info("shutting down gracefully")
			return nil
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address, empty disables HTTP")
	cmd.Flags().BoolVar(&noMPRIS, "no-mpris", false, "Do not register on D-Bus")
	return cmd
}
