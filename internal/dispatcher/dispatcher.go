// Package dispatcher implements the single-writer event loop that owns all
// of the daemon's mutable state (spec §3.2, §4.4, §5): the rule catalogue,
// the recency buffer, the recently-notified ring, and the script sandbox.
//
// Grounded on the teacher's internal/domain/registry/cell.go Cell.loop(): a
// single goroutine draining a mailbox channel, batch-processing what's
// available before waiting again. Here there is exactly one such loop for
// the whole daemon rather than one per user, matching spec §5's "single
// dispatcher task owning all mutable state".
package dispatcher

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/signupwatch/daemon/internal/actions"
	"github.com/signupwatch/daemon/internal/criterion"
	"github.com/signupwatch/daemon/internal/domain"
	"github.com/signupwatch/daemon/internal/recency"
	"github.com/signupwatch/daemon/internal/rulestore"
	"github.com/signupwatch/daemon/internal/scheduler"
)

// drainBatch bounds how many queued events the loop processes before
// yielding back to the runtime, mirroring the teacher's Cell.loop() 64-event
// batch drain.
const drainBatch = 64

// inboxCapacity bounds the dispatcher's event queue (spec §5: "an
// implementation may bound them at e.g. 10,000 and log-drop on overflow").
const inboxCapacity = 10000

// ChatPoster posts a message to one of the daemon's configured chat
// channels. The dispatcher never imports the chat package directly; two
// function values (main/notify channel posts) are injected instead.
type ChatPoster func(text string)

// Dispatcher is the daemon's single mutable-state owner.
type Dispatcher struct {
	store    *rulestore.Store
	recency  *recency.Buffer
	notified *recency.NotifiedRing
	scripter criterion.Scripter
	endpoint actions.Endpoints
	sched    *scheduler.Scheduler
	logger   *slog.Logger

	postMain   ChatPoster
	postNotify ChatPoster

	lastUpstreamEventMillis atomic.Int64

	inbox chan domain.Event
}

// New builds a Dispatcher.
func New(
	store *rulestore.Store,
	recencyBuf *recency.Buffer,
	notified *recency.NotifiedRing,
	scripter criterion.Scripter,
	endpoint actions.Endpoints,
	sched *scheduler.Scheduler,
	postMain, postNotify ChatPoster,
	logger *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:      store,
		recency:    recencyBuf,
		notified:   notified,
		scripter:   scripter,
		endpoint:   endpoint,
		sched:      sched,
		postMain:   postMain,
		postNotify: postNotify,
		logger:     logger,
		inbox:      make(chan domain.Event, inboxCapacity),
	}
}

// Submit enqueues an event, logging and dropping it if the inbox is full
// (spec §5's explicitly allowed bounded-queue overflow behavior).
func (d *Dispatcher) Submit(e domain.Event) {
	select {
	case d.inbox <- e:
	default:
		d.logger.Error("dispatcher: inbox full, dropping event", "kind", e.Kind.String())
	}
}

// LastUpstreamEvent returns the last time a StreamEventReceived event was
// processed, reported by the chat status command and the admin /healthz
// endpoint. The liveness supervisor does not read it; it watches its own
// stream Pinger.
func (d *Dispatcher) LastUpstreamEvent() time.Time {
	ms := d.lastUpstreamEventMillis.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Run drains the inbox until ctx is done, batch-processing up to
// drainBatch events per wake the way the teacher's Cell.loop() does.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-d.inbox:
			d.handle(ctx, e)
			d.drainRest(ctx)
		}
	}
}

func (d *Dispatcher) drainRest(ctx context.Context) {
	for i := 0; i < drainBatch; i++ {
		select {
		case e := <-d.inbox:
			d.handle(ctx, e)
		default:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, e domain.Event) {
	switch e.Kind {
	case domain.EventSignup:
		d.handleSignupLike(e.User, false)
	case domain.EventHypotheticalSignup:
		d.handleSignupLike(e.User, true)
	case domain.EventAddRule:
		d.handleAddRule(e)
	case domain.EventShowRule:
		d.handleShowRule(e)
	case domain.EventRemoveRule:
		d.handleRemoveRule(e)
	case domain.EventDisableRules:
		d.handleDisableRules(e)
	case domain.EventEnableRules:
		d.handleEnableRules(e)
	case domain.EventListRules:
		d.handleListRules(e)
	case domain.EventStreamEventReceived:
		d.lastUpstreamEventMillis.Store(time.Now().UnixMilli())
	case domain.EventChatStatusCommand:
		d.handleChatStatus(e)
	case domain.EventIsRecentlyChecked:
		d.handleIsRecentlyChecked(e)
	case domain.EventCheckRulesExpiry:
		d.handleCheckRulesExpiry(e)
	case domain.EventRenewRule:
		d.handleRenewRule(e)
	default:
		d.logger.Warn("dispatcher: unhandled event kind", "kind", e.Kind.String())
	}
}

func reply(fn domain.ReplyFunc, text string) {
	if fn != nil {
		fn(text)
	}
}
