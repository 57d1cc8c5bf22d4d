package supervisor

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
)

// Params names the two respawnable tasks and their pingers. cmd/fx.go
// supplies the tagged tasks once it has built the Watcher and chat
// Transport (the supervisor package itself never imports either); the
// tagged pingers are provided by this module below.
type Params struct {
	fx.In

	StreamTask   Task    `name:"streamTask"`
	ChatTask     Task    `name:"chatTask"`
	StreamPinger *Pinger `name:"streamPinger"`
	ChatPinger   *Pinger `name:"chatPinger"`
	Dispatcher   Submitter
	Logger       *slog.Logger
}

// Module provides the two Pingers and the Supervisor itself, and runs the
// Supervisor for the lifetime of the application.
var Module = fx.Module("supervisor",
	fx.Provide(
		fx.Annotate(NewPinger, fx.ResultTags(`name:"streamPinger"`)),
		fx.Annotate(NewPinger, fx.ResultTags(`name:"chatPinger"`)),
	),
	fx.Provide(func(p Params) *Supervisor {
		return New(p.StreamTask, p.ChatTask, p.StreamPinger, p.ChatPinger, p.Dispatcher, p.Logger)
	}),
	fx.Invoke(func(lc fx.Lifecycle, sv *Supervisor) {
		var cancel context.CancelFunc
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				var ctx context.Context
				ctx, cancel = context.WithCancel(context.Background())
				go sv.Run(ctx)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)
