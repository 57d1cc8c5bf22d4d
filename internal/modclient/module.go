package modclient

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/config"
)

// Module provides the moderation API HTTP client.
var Module = fx.Module("modclient",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) *Client {
			return New(cfg.OperatorBearer, logger)
		},
	),
)
