// Package upstream implements the signup stream watcher from spec §4.6: an
// authenticated, long-lived HTTP GET against the service's signup feed,
// decoded as newline-delimited JSON and translated into dispatcher events.
//
// Grounded on the teacher's internal/handler/grpc/delivery.go Stream
// method (internal/handler/grpc/delivery.go): a ctx.Done()-driven loop
// reading off a long-lived connection, structured slog fields per
// connection attempt, and graceful handling of a connection that dies out
// from under it. That method sends a server-side gRPC stream; this one
// reads a client-side HTTP stream, so the direction is reversed, but the
// reconnect-and-resume shape is the same. Wire shape confirmed against
// original_source/src/eventstream.rs. Every signup line is run through an
// Enricher before it reaches the dispatcher, since the feed's own payload
// carries none of the derived fields (see the Enricher doc comment below).
package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
)

// reconnectDelay is the fixed backoff the spec mandates on disconnect or
// error (spec §4.6: "wait 7 seconds and reconnect indefinitely").
const reconnectDelay = 7 * time.Second

// Submitter is the dispatcher's inbox, narrowed to what the watcher needs.
type Submitter interface {
	Submit(e domain.Event)
}

// Pinger receives a liveness signal every time a chunk is successfully
// read off the upstream connection, feeding the supervisor's
// lastStreamEvent timestamp (spec §4.9).
type Pinger interface {
	Ping()
}

// Enricher derives User.GeoIP and User.Device from the raw IP/user-agent
// the feed sends. original_source/src/signup/newuser.rs's NewUser carries
// only username/email/ip/user_agent/finger_print — no geoip or device — so
// the daemon computes both itself rather than trusting the feed to supply
// them.
type Enricher interface {
	Enrich(ctx context.Context, user domain.User) (domain.User, error)
}

// rawSignupEvent is the upstream feed's wire shape (spec §6): a
// discriminator field "t" alongside the User payload fields. Only
// t == "signup" is currently defined by the feed; anything else is logged
// and skipped.
type rawSignupEvent struct {
	Type string `json:"t"`
	domain.User
}

// Watcher maintains the long-lived connection to the signup feed.
type Watcher struct {
	url         string
	bearerToken string
	client      *http.Client
	submitter   Submitter
	enricher    Enricher
	logger      *slog.Logger
}

// New builds a Watcher. client may be nil, in which case a new zero-value
// http.Client is used, with no timeout (the connection stays open
// indefinitely; ctx cancellation is the only way to stop reading).
func New(url, bearerToken string, client *http.Client, submitter Submitter, enricher Enricher, logger *slog.Logger) *Watcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Watcher{
		url:         url,
		bearerToken: bearerToken,
		client:      client,
		submitter:   submitter,
		enricher:    enricher,
		logger:      logger,
	}
}

// Run connects, streams, and reconnects until ctx is canceled. It never
// returns except when ctx is done, matching spec §4.6's "reconnect
// indefinitely" requirement.
func (w *Watcher) Run(ctx context.Context, pinger Pinger) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := w.connectAndRead(ctx, pinger); err != nil {
			w.logger.Error("upstream: connection lost", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// connectAndRead performs a single connection attempt and blocks reading
// from it until it closes, errors, or ctx is canceled.
func (w *Watcher) connectAndRead(ctx context.Context, pinger Pinger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+w.bearerToken)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	w.logger.Info("upstream: connected")

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		w.submitter.Submit(domain.NewStreamEventReceivedEvent(domain.User{}))
		pinger.Ping()

		var ev rawSignupEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			w.logger.Error("upstream: malformed line, skipping", "error", err)
			continue
		}
		if ev.Type != "signup" {
			w.logger.Warn("upstream: unrecognized event type, skipping", "type", ev.Type)
			continue
		}

		user, err := w.enricher.Enrich(ctx, ev.User)
		if err != nil {
			w.logger.Warn("upstream: enrich failed, evaluating without geoip", "username", ev.User.Username, "error", err)
		}

		w.submitter.Submit(domain.NewSignupEvent(user))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return nil
}
