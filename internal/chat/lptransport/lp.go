// Package lptransport implements the long-poll chat transport variant from
// spec §6: register for a queue_id, then repeatedly GET
// /api/v1/events?queue_id=&last_event_id=.
//
// Grounded field-for-field on original_source/src/zulip/rtm.rs and
// zulip/web.rs: HTTP Basic auth of bot_id:token, event_types=["message"],
// "message"/"heartbeat" event kinds, content/display_recipient/subject
// fields, and outbound POST /api/v1/messages as
// type=stream&to=<stream>&subject=<topic>&content=<text>.
package lptransport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/signupwatch/daemon/internal/chat"
)

// Config is everything the long-poll transport needs to authenticate and
// scope itself to one stream/topic (spec §4.7's "scope rule").
type Config struct {
	BaseURL     string
	BotID       string
	BotToken    string
	BotMarker   string // e.g. "@**signupwatch-bot**"
	Stream      string
	Topic       string
	HTTPTimeout time.Duration
}

// Transport implements the Zulip-style register/poll/post protocol.
type Transport struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New builds a Transport.
func New(cfg Config, logger *slog.Logger) *Transport {
	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 35 * time.Second
	}
	return &Transport{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.HTTPTimeout},
		logger: logger,
	}
}

var _ chat.Transport = (*Transport)(nil)

type registerResponse struct {
	Result  string `json:"result"`
	QueueID string `json:"queue_id"`
}

type eventsResponse struct {
	Result string     `json:"result"`
	Events []rawEvent `json:"events"`
	Msg    string     `json:"msg"`
}

type rawEvent struct {
	ID               int    `json:"id"`
	Type             string `json:"type"`
	Content          string `json:"content"`
	DisplayRecipient string `json:"display_recipient"`
	Subject          string `json:"subject"`
}

func (t *Transport) basicAuthHeader() string {
	return "Basic " + basicAuthToken(t.cfg.BotID, t.cfg.BotToken)
}

// Run registers a queue and polls it until ctx is canceled or a request
// fails terminally.
func (t *Transport) Run(ctx context.Context, handle func(chat.IncomingMessage), pinger chat.LivenessPinger) error {
	queueID, lastEventID, err := t.register(ctx)
	if err != nil {
		return fmt.Errorf("lptransport: register: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		events, err := t.poll(ctx, queueID, lastEventID)
		if err != nil {
			return fmt.Errorf("lptransport: poll: %w", err)
		}
		for _, ev := range events {
			lastEventID = ev.ID
			switch ev.Type {
			case "heartbeat":
				pinger.Ping()
			case "message":
				pinger.Ping()
				t.handleMessageEvent(ev, handle)
			}
		}
	}
}

func (t *Transport) register(ctx context.Context) (queueID string, lastEventID int, err error) {
	form := url.Values{}
	form.Set("event_types", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/api/v1/register", strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", t.basicAuthHeader())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	var body registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, fmt.Errorf("decode register response: %w", err)
	}
	if body.Result != "success" {
		return "", 0, fmt.Errorf("register returned result=%q", body.Result)
	}
	return body.QueueID, -1, nil
}

func (t *Transport) poll(ctx context.Context, queueID string, lastEventID int) ([]rawEvent, error) {
	q := url.Values{}
	q.Set("queue_id", queueID)
	q.Set("last_event_id", strconv.Itoa(lastEventID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.BaseURL+"/api/v1/events?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", t.basicAuthHeader())

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var body eventsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode events response: %w", err)
	}
	if body.Result != "success" {
		return nil, fmt.Errorf("events returned result=%q msg=%q", body.Result, body.Msg)
	}
	return body.Events, nil
}

func (t *Transport) handleMessageEvent(ev rawEvent, handle func(chat.IncomingMessage)) {
	if ev.DisplayRecipient != t.cfg.Stream || ev.Subject != t.cfg.Topic {
		return
	}
	if !strings.HasPrefix(ev.Content, t.cfg.BotMarker+" ") {
		return
	}
	text := strings.TrimPrefix(ev.Content, t.cfg.BotMarker+" ")
	handle(chat.IncomingMessage{
		Text: text,
		Reply: func(reply string) {
			if err := t.postMessage(reply); err != nil {
				t.logger.Error("lptransport: post reply failed", "error", err)
			}
		},
	})
}

func (t *Transport) postMessage(text string) error {
	return t.Post(t.cfg.Stream, t.cfg.Topic, text)
}

// Post sends text to an arbitrary stream/topic, not just the one this
// Transport was configured to listen on: the main/notify channels are
// usually distinct from the command channel a Transport polls. No new
// queue registration is needed, since stream/topic are just form fields on
// the same /api/v1/messages call.
func (t *Transport) Post(stream, topic, text string) error {
	form := url.Values{}
	form.Set("type", "stream")
	form.Set("to", stream)
	form.Set("subject", topic)
	form.Set("content", text)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, t.cfg.BaseURL+"/api/v1/messages", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", t.basicAuthHeader())

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post message: status %d", resp.StatusCode)
	}
	return nil
}
