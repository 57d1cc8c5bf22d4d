package adminhttp

import (
	"context"
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/config"
	"github.com/signupwatch/daemon/internal/recency"
	"github.com/signupwatch/daemon/internal/rulestore"
)

// Module provides the admin HTTP surface and serves it on
// Config.AdminHTTPAddr for the lifetime of the application.
var Module = fx.Module("adminhttp",
	fx.Provide(
		func(store *rulestore.Store, recencyBuf *recency.Buffer, dispatcher LastEventSource, logger *slog.Logger) *Server {
			return New(store, recencyBuf, dispatcher, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, s *Server, cfg *config.Config, logger *slog.Logger) {
		httpServer := &http.Server{Addr: cfg.AdminHTTPAddr, Handler: s.Handler()}
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
						logger.Error("adminhttp: server error", "error", err)
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return httpServer.Shutdown(ctx)
			},
		})
	}),
)
