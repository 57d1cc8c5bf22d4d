package dispatcher

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/actions"
	"github.com/signupwatch/daemon/internal/criterion"
	"github.com/signupwatch/daemon/internal/recency"
	"github.com/signupwatch/daemon/internal/rulestore"
	"github.com/signupwatch/daemon/internal/scheduler"
)

// Params carries the Dispatcher's dependencies. The two chat posters are
// supplied, name-tagged, by cmd/fx.go once a transport has been selected.
type Params struct {
	fx.In

	Store      *rulestore.Store
	Recency    *recency.Buffer
	Notified   *recency.NotifiedRing
	Scripter   criterion.Scripter
	Endpoints  actions.Endpoints
	Scheduler  *scheduler.Scheduler
	PostMain   ChatPoster `name:"mainPoster"`
	PostNotify ChatPoster `name:"notifyPoster"`
	Logger     *slog.Logger
}

// Module provides the Dispatcher and starts its event loop for the
// lifetime of the application.
var Module = fx.Module("dispatcher",
	fx.Provide(func(p Params) *Dispatcher {
		return New(p.Store, p.Recency, p.Notified, p.Scripter, p.Endpoints, p.Scheduler, p.PostMain, p.PostNotify, p.Logger)
	}),
	fx.Invoke(func(lc fx.Lifecycle, d *Dispatcher) {
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				var ctx context.Context
				ctx, cancel = context.WithCancel(context.Background())
				go d.Run(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)
