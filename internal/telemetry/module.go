package telemetry

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/config"
)

// serviceName identifies this daemon in otel log records.
const serviceName = "signupwatch-daemon"

// Module provides the daemon's *slog.Logger, constructed before any other
// module (every other Module's providers and lifecycle hooks take a
// *slog.Logger), and flushes the otel pipeline on shutdown.
var Module = fx.Module("telemetry",
	fx.Provide(
		func(cfg *config.Config) (*slog.Logger, Shutdown, error) {
			return New(Options{ServiceName: serviceName, Debug: cfg.Debug})
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, shutdown Shutdown) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return shutdown(ctx)
			},
		})
	}),
)
