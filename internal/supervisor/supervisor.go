// Package supervisor implements the liveness watchdog from spec §4.9: a
// periodic tick that respawns the upstream stream watcher or the chat
// transport when their last-ping timestamp goes stale, plus a separate
// periodic trigger for the rule-expiry sweep.
//
// Grounded on the teacher's internal/domain/registry/hub.go runEvictor/
// performEviction (a ticker-driven reclamation loop walking owned state and
// reaping what's gone idle) — here adapted from idle-user-cell eviction to
// stale-transport respawn, with a second independent ticker for the expiry
// sweep (spec §4.9: "separately, every 15 min").
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
)

// Staleness thresholds and tick intervals, named directly from spec §4.9.
const (
	streamStaleAfter = 90 * time.Second
	chatStaleAfter   = 720 * time.Second
	livenessInterval = 15 * time.Second
	expiryInterval   = 15 * time.Minute
)

// Pinger is a last-activity timestamp a watched task updates on every
// chunk/message/heartbeat it observes. It satisfies both upstream.Pinger
// and chat.LivenessPinger structurally, so supervisor imports neither
// package.
type Pinger struct {
	lastMillis atomic.Int64
}

// NewPinger builds a Pinger whose Last() is the zero time until first Ping.
func NewPinger() *Pinger {
	return &Pinger{}
}

// Ping records "now" as the last-observed-activity timestamp.
func (p *Pinger) Ping() {
	p.lastMillis.Store(time.Now().UnixMilli())
}

// Last returns the last Ping time, or the zero Time if Ping was never called.
func (p *Pinger) Last() time.Time {
	ms := p.lastMillis.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Submitter is the dispatcher inbox, narrowed to what the periodic expiry
// trigger needs.
type Submitter interface {
	Submit(e domain.Event)
}

// Task is a respawnable watched task (the upstream watcher's Run or a chat
// transport's Run), given a fresh context each time it's (re)started.
type Task func(ctx context.Context)

// Supervisor owns the respawn lifecycle for the stream watcher and the
// chat transport, and the two periodic tickers.
type Supervisor struct {
	logger     *slog.Logger
	dispatcher Submitter

	streamPinger *Pinger
	chatPinger   *Pinger

	startStream Task
	startChat   Task

	mu           sync.Mutex
	streamCancel context.CancelFunc
	chatCancel   context.CancelFunc
}

// New builds a Supervisor. startStream and startChat are called once at
// Run() and again every time their respective task is judged stale; each
// call receives a context that Run cancels only when respawning or
// shutting down.
func New(startStream, startChat Task, streamPinger, chatPinger *Pinger, dispatcher Submitter, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		logger:       logger,
		dispatcher:   dispatcher,
		streamPinger: streamPinger,
		chatPinger:   chatPinger,
		startStream:  startStream,
		startChat:    startChat,
	}
}

// Run starts both watched tasks, then blocks running the liveness and
// expiry tickers until ctx is done.
func (s *Supervisor) Run(ctx context.Context) {
	s.respawnStream(ctx)
	s.respawnChat(ctx)

	livenessTicker := time.NewTicker(livenessInterval)
	defer livenessTicker.Stop()
	expiryTicker := time.NewTicker(expiryInterval)
	defer expiryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			if s.streamCancel != nil {
				s.streamCancel()
			}
			if s.chatCancel != nil {
				s.chatCancel()
			}
			s.mu.Unlock()
			return
		case <-livenessTicker.C:
			s.checkLiveness(ctx)
		case <-expiryTicker.C:
			s.dispatcher.Submit(domain.NewCheckRulesExpiryEvent())
		}
	}
}

func (s *Supervisor) checkLiveness(ctx context.Context) {
	now := time.Now()
	if last := s.streamPinger.Last(); !last.IsZero() && now.Sub(last) > streamStaleAfter {
		s.logger.Warn("supervisor: stream watcher stale, respawning", "since_last_ping", now.Sub(last))
		s.respawnStream(ctx)
	}
	if last := s.chatPinger.Last(); !last.IsZero() && now.Sub(last) > chatStaleAfter {
		s.logger.Warn("supervisor: chat transport stale, reconnecting", "since_last_ping", now.Sub(last))
		s.respawnChat(ctx)
	}
}

// respawnStream cancels any running stream-watcher task and starts a fresh
// one, dropping the prior task's socket per spec §5's cancellation model.
func (s *Supervisor) respawnStream(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamCancel != nil {
		s.streamCancel()
	}
	taskCtx, cancel := context.WithCancel(parent)
	s.streamCancel = cancel
	s.streamPinger.Ping()
	go s.startStream(taskCtx)
}

// respawnChat cancels any running chat-transport task and starts a fresh one.
func (s *Supervisor) respawnChat(parent context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chatCancel != nil {
		s.chatCancel()
	}
	taskCtx, cancel := context.WithCancel(parent)
	s.chatCancel = cancel
	s.chatPinger.Ping()
	go s.startChat(taskCtx)
}
