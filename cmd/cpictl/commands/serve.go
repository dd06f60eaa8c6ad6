package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/externalcpi/pkg/config"
)

func newServeCommand() *cobra.Command {
	var (
		pingInterval time.Duration
		watch        bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve metrics and health-check the configured CPIs",
		Long: `Run in the foreground, pinging every configured CPI periodically and
exposing the call metrics on the configured Prometheus endpoint.

With --watch the config file is watched and the CPI set is reloaded when it
changes. A config that fails validation is logged and the previous CPI set
stays in use.`,
		Example: `  cpictl serve --ping-interval 30s --watch`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			logger := a.telemetry.Logger.NewComponentLogger("serve")
			ctx = a.telemetry.WithContext(ctx)

			server := a.telemetry.Metrics.StartMetricsServer(logger)
			if server != nil {
				logger.Infof("serving metrics on %s%s", a.cfg.Telemetry.Metrics.ListenAddress, a.cfg.Telemetry.Metrics.Path)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
					defer cancel()
					_ = server.Shutdown(shutdownCtx)
				}()
			}

			if watch {
				watcher := config.NewWatcher(configPath, log.Logger)
				// only the CPI set is reloaded; identity and telemetry need a restart
				if err := watcher.Watch(ctx, a.registry.Reload); err != nil {
					return fmt.Errorf("failed to watch config: %w", err)
				}
				defer watcher.Stop()
			}

			if pingInterval <= 0 {
				<-ctx.Done()
				return nil
			}

			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()

			for {
				for _, r := range a.registry.PingAll(ctx) {
					if r.Err != nil {
						log.Warn().Err(r.Err).Str("cpi", r.Name).Msg("CPI ping failed")
					}
				}

				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				}
			}
		},
	}

	cmd.Flags().DurationVar(&pingInterval, "ping-interval", time.Minute, "how often to ping every CPI (0 disables)")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the CPI set when the config file changes")

	return cmd
}
