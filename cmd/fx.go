package cmd

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/signupwatch/daemon/internal/actions"
	"github.com/signupwatch/daemon/internal/adminhttp"
	"github.com/signupwatch/daemon/internal/chat"
	"github.com/signupwatch/daemon/internal/chat/command"
	"github.com/signupwatch/daemon/internal/chat/lptransport"
	"github.com/signupwatch/daemon/internal/chat/wstransport"
	"github.com/signupwatch/daemon/internal/config"
	"github.com/signupwatch/daemon/internal/criterion"
	"github.com/signupwatch/daemon/internal/dispatcher"
	"github.com/signupwatch/daemon/internal/enrich"
	"github.com/signupwatch/daemon/internal/modclient"
	"github.com/signupwatch/daemon/internal/recency"
	"github.com/signupwatch/daemon/internal/rulestore"
	"github.com/signupwatch/daemon/internal/scheduler"
	"github.com/signupwatch/daemon/internal/supervisor"
	"github.com/signupwatch/daemon/internal/telemetry"
	"github.com/signupwatch/daemon/internal/upstream"
)

// NewApp assembles the daemon from its per-package fx.Modules, plus the
// cross-cutting glue only the composition root can know: which interface
// each narrow consumer-side port (Submitter, LastEventSource, ChatPoster,
// Task) binds to, and which chat transport Config.ChatTransport selects.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
		),

		telemetry.Module,
		rulestore.Module,
		recency.Module,
		criterion.Module,
		enrich.Module,
		modclient.Module,
		scheduler.Module,
		actions.Module,

		fx.Provide(
			// *dispatcher.Dispatcher structurally satisfies every one of these
			// narrow single/two-method interfaces; each consuming package only
			// depends on its own interface, never on dispatcher directly.
			fx.Annotate(
				func(d *dispatcher.Dispatcher) upstream.Submitter { return d },
				fx.As(new(upstream.Submitter)),
			),
			fx.Annotate(
				func(d *dispatcher.Dispatcher) supervisor.Submitter { return d },
				fx.As(new(supervisor.Submitter)),
			),
			fx.Annotate(
				func(d *dispatcher.Dispatcher) adminhttp.LastEventSource { return d },
				fx.As(new(adminhttp.LastEventSource)),
			),
		),

		upstream.Module,

		fx.Provide(
			provideChatTransport,
			fx.Annotate(
				provideMainPoster,
				fx.ResultTags(`name:"mainPoster"`),
			),
			fx.Annotate(
				provideNotifyPoster,
				fx.ResultTags(`name:"notifyPoster"`),
			),
		),

		dispatcher.Module,
		adminhttp.Module,

		fx.Provide(
			fx.Annotate(
				provideStreamTask,
				fx.ParamTags(``, `name:"streamPinger"`),
				fx.ResultTags(`name:"streamTask"`),
			),
			fx.Annotate(
				provideChatTask,
				fx.ParamTags(``, ``, `name:"chatPinger"`),
				fx.ResultTags(`name:"chatTask"`),
			),
		),
		supervisor.Module,
	)
}

// provideChatTransport picks wstransport or lptransport per
// Config.ChatTransport (spec §6); Config.Validate already rejects any
// other value.
func provideChatTransport(cfg *config.Config, logger *slog.Logger) chat.Transport {
	if cfg.ChatTransport == "ws" {
		return wstransport.New(cfg.ChatURL, cfg.BotMarker, logger)
	}
	return lptransport.New(lptransport.Config{
		BaseURL:     cfg.ChatURL,
		BotID:       cfg.BotID,
		BotToken:    cfg.BotToken,
		BotMarker:   cfg.BotMarker,
		Stream:      cfg.CommandStream,
		Topic:       cfg.CommandTopic,
		HTTPTimeout: cfg.HTTPClientTimeout,
	}, logger)
}

// chatSender posts a chat message to one specific stream/topic through
// whichever transport is active. Both transports expose a stream/topic-scoped
// Post method (wstransport ignores topic, since its wire frames only carry a
// channel); the type assertion exists only to keep chat.Transport itself free
// of a method neither transport's Run loop needs.
type chatSender struct {
	transport chat.Transport
	stream    string
	topic     string
	logger    *slog.Logger
}

type streamPoster interface {
	Post(stream, topic, text string) error
}

func (s chatSender) post(text string) {
	p, ok := s.transport.(streamPoster)
	if !ok {
		s.logger.Warn("chat: active transport has no stream-targeted post, dropping message", "text", text)
		return
	}
	if err := p.Post(s.stream, s.topic, text); err != nil {
		s.logger.Error("chat: post failed", "stream", s.stream, "topic", s.topic, "error", err)
	}
}

func provideMainPoster(cfg *config.Config, t chat.Transport, logger *slog.Logger) dispatcher.ChatPoster {
	sender := chatSender{transport: t, stream: cfg.MainStream, topic: cfg.MainTopic, logger: logger}
	return sender.post
}

func provideNotifyPoster(cfg *config.Config, t chat.Transport, logger *slog.Logger) dispatcher.ChatPoster {
	sender := chatSender{transport: t, stream: cfg.NotifyStream, topic: cfg.NotifyTopic, logger: logger}
	return sender.post
}

// provideStreamTask wraps the upstream Watcher's Run loop as a
// supervisor.Task, bound to the supervisor's own stream Pinger.
func provideStreamTask(w *upstream.Watcher, pinger *supervisor.Pinger) supervisor.Task {
	return func(ctx context.Context) {
		w.Run(ctx, pinger)
	}
}

// provideChatTask wraps the chat Transport's Run loop as a supervisor.Task,
// bound to the supervisor's own chat Pinger, logging (rather than propagating) a terminal transport error, since the
// supervisor always treats a task return as "respawn me" regardless of
// cause.
func provideChatTask(t chat.Transport, d *dispatcher.Dispatcher, pinger *supervisor.Pinger, logger *slog.Logger) supervisor.Task {
	return func(ctx context.Context) {
		err := t.Run(ctx, func(msg chat.IncomingMessage) {
			command.Route(msg.Text, msg.Reply, d.Submit)
		}, pinger)
		if err != nil && ctx.Err() == nil {
			logger.Error("chat: transport run loop exited", "error", err)
		}
	}
}
