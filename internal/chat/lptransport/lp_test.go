package lptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signupwatch/daemon/internal/chat"
)

type fakePinger struct {
	mu    sync.Mutex
	count int
}

func (p *fakePinger) Ping() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
}

func (p *fakePinger) snapshot() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// newTestServer replies to /register once, serves a single batch of events
// on the first /events poll, and immediately returns an empty batch for
// every call after that, so the client keeps polling until the test's ctx
// ends.
func newTestServer(t *testing.T, events []rawEvent) *httptest.Server {
	t.Helper()
	var registered bool
	var served bool

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/register":
			registered = true
			json.NewEncoder(w).Encode(registerResponse{Result: "success", QueueID: "q1"})
		case r.URL.Path == "/api/v1/events":
			require.True(t, registered)
			if !served {
				served = true
				json.NewEncoder(w).Encode(eventsResponse{Result: "success", Events: events})
				return
			}
			json.NewEncoder(w).Encode(eventsResponse{Result: "success", Events: nil})
		case r.URL.Path == "/api/v1/messages":
			r.ParseForm()
			require.Equal(t, "stream", r.PostForm.Get("type"))
			w.WriteHeader(http.StatusOK)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
}

func TestRunDeliversMatchingMessage(t *testing.T) {
	events := []rawEvent{
		{ID: 1, Type: "message", Content: "@bot status", DisplayRecipient: "ops", Subject: "signups"},
	}
	srv := newTestServer(t, events)
	defer srv.Close()

	tr := New(Config{BaseURL: srv.URL, BotID: "1", BotToken: "tok", BotMarker: "@bot", Stream: "ops", Topic: "signups"}, nil)

	var received chat.IncomingMessage
	var gotMessage = make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	go func() {
		tr.Run(ctx, func(msg chat.IncomingMessage) {
			received = msg
			close(gotMessage)
		}, &fakePinger{})
	}()

	select {
	case <-gotMessage:
	case <-time.After(400 * time.Millisecond):
		t.Fatal("message not delivered")
	}
	require.Equal(t, "status", received.Text)
}

func TestRunSkipsMessageFromWrongStream(t *testing.T) {
	events := []rawEvent{
		{ID: 1, Type: "message", Content: "@bot status", DisplayRecipient: "other-stream", Subject: "signups"},
	}
	srv := newTestServer(t, events)
	defer srv.Close()

	tr := New(Config{BaseURL: srv.URL, BotID: "1", BotToken: "tok", BotMarker: "@bot", Stream: "ops", Topic: "signups"}, nil)

	var delivered bool
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	tr.Run(ctx, func(msg chat.IncomingMessage) { delivered = true }, &fakePinger{})
	require.False(t, delivered)
}

func TestRunPingsOnHeartbeat(t *testing.T) {
	events := []rawEvent{{ID: 1, Type: "heartbeat"}}
	srv := newTestServer(t, events)
	defer srv.Close()

	tr := New(Config{BaseURL: srv.URL, BotID: "1", BotToken: "tok", BotMarker: "@bot", Stream: "ops", Topic: "signups"}, nil)
	pinger := &fakePinger{}

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	tr.Run(ctx, func(chat.IncomingMessage) {}, pinger)

	require.GreaterOrEqual(t, pinger.snapshot(), 1)
}

func TestPostSendsStreamAndTopic(t *testing.T) {
	var gotStream, gotTopic, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		gotStream = r.PostForm.Get("to")
		gotTopic = r.PostForm.Get("subject")
		gotContent = r.PostForm.Get("content")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := New(Config{BaseURL: srv.URL, BotID: "1", BotToken: "tok"}, nil)
	require.NoError(t, tr.Post("notify", "alerts", "match found"))
	require.Equal(t, "notify", gotStream)
	require.Equal(t, "alerts", gotTopic)
	require.Equal(t, "match found", gotContent)
}

var _ = url.Values{}
