package upstream

import (
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/config"
	"github.com/signupwatch/daemon/internal/enrich"
)

// Module provides the signup-feed Watcher. It does not start Watcher.Run
// itself — the supervisor owns the respawn loop that drives it (spec
// §4.9) — so this module only constructs the value.
var Module = fx.Module("upstream",
	fx.Provide(
		fx.Annotate(
			func(e *enrich.Enricher) Enricher { return e },
			fx.As(new(Enricher)),
		),
		func(cfg *config.Config, submitter Submitter, enricher Enricher, logger *slog.Logger) *Watcher {
			client := &http.Client{} // long-lived stream, no overall request deadline
			return New(cfg.UpstreamURL, cfg.UpstreamBearer, client, submitter, enricher, logger)
		},
	),
)
