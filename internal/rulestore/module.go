package rulestore

import (
	"context"
	"io"
	"log/slog"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/config"
)

// Module provides the rule catalogue: a FilePersister rooted at
// Config.RuleFilePath, the Store built on top of it, and a background
// fsnotify watch that reloads the Store whenever the file changes out from
// under the daemon (spec §3.2's "operator-edited rarely").
var Module = fx.Module("rulestore",
	fx.Provide(
		func(cfg *config.Config, logger *slog.Logger) *FilePersister {
			return NewFilePersister(cfg.RuleFilePath, logger)
		},
		func(p *FilePersister) (*Store, error) {
			return New(p)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, store *Store, cfg *config.Config, logger *slog.Logger) {
		var watcher io.Closer
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				w, err := WatchExternalEdits(cfg.RuleFilePath, logger, func() {
					if err := store.Reload(); err != nil {
						logger.Error("rulestore: reload after external edit failed", "error", err)
					}
				})
				if err != nil {
					logger.Warn("rulestore: external-edit watch disabled", "error", err)
					return nil
				}
				watcher = w
				return nil
			},
			OnStop: func(context.Context) error {
				if watcher == nil {
					return nil
				}
				return watcher.Close()
			},
		})
	}),
)
