// Package scheduler fires moderation actions as independent fire-and-forget
// tasks, after an optional delay (spec §4.5): it never blocks the
// dispatcher and never retries — the operator notification already flagged
// the match, so a lost action isn't silently invisible.
//
// Grounded on the teacher's internal/handler/amqp/bind.go
// (defer-recover-at-the-boundary idiom for any per-message goroutine) and
// internal/handler/grpc/delivery.go's per-request goroutine/context
// lifecycle.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/signupwatch/daemon/internal/modclient"
)

// Poster is the subset of modclient.Client the scheduler depends on, kept
// narrow so tests can substitute a fake.
type Poster interface {
	Post(ctx context.Context, method, url string) (int, error)
}

var _ Poster = (*modclient.Client)(nil)

// Scheduler runs scheduled moderation calls against a Poster.
type Scheduler struct {
	poster Poster
	logger *slog.Logger
}

// New builds a Scheduler.
func New(poster Poster, logger *slog.Logger) *Scheduler {
	return &Scheduler{poster: poster, logger: logger}
}

// Schedule runs method against url after delay, on its own goroutine. ctx
// governs only the HTTP call itself once the delay elapses, not the delay
// wait (so a dispatcher-wide shutdown context can't cut off scheduled
// actions mid-delay; shutdown draining is out of scope per spec's
// non-goals around queue persistence across restarts).
func (s *Scheduler) Schedule(ruleName, action, url, method string, delay time.Duration) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduler: recovered panic running action",
					"rule", ruleName, "action", action, "panic", r)
			}
		}()

		if delay > 0 {
			time.Sleep(delay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		status, err := s.poster.Post(ctx, method, url)
		if err != nil {
			s.logger.Error("scheduler: action failed",
				"rule", ruleName, "action", action, "url", url, "status", status, "error", err)
			return
		}
		s.logger.Info("scheduler: action completed",
			"rule", ruleName, "action", action, "url", url, "status", status)
	}()
}
