package upstream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeSubmitter) Submit(e domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeSubmitter) snapshot() []domain.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, len(f.events))
	copy(out, f.events)
	return out
}

type fakePinger struct {
	mu    sync.Mutex
	count int
}

func (p *fakePinger) Ping() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
}

type passthroughEnricher struct{}

func (passthroughEnricher) Enrich(_ context.Context, user domain.User) (domain.User, error) {
	return user, nil
}

func TestConnectAndReadParsesSignupLines(t *testing.T) {
	body := `{"t":"signup","username":"alice","email":"a@b.com","ip":"1.1.1.1"}` + "\n" +
		`{"t":"signup","username":"bob","email":"b@b.com","ip":"2.2.2.2"}` + "\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, strings.NewReader(body))
	}))
	defer srv.Close()

	sub := &fakeSubmitter{}
	pinger := &fakePinger{}
	w := New(srv.URL, "test-token", srv.Client(), sub, passthroughEnricher{}, slog.Default())

	err := w.connectAndRead(context.Background(), pinger)
	require.NoError(t, err)

	events := sub.snapshot()
	var signups int
	for _, e := range events {
		if e.Kind == domain.EventSignup {
			signups++
		}
	}
	require.Equal(t, 2, signups)
	require.Equal(t, 2, pinger.count)
}

func TestConnectAndReadSkipsMalformedLines(t *testing.T) {
	body := "not json\n" + `{"t":"signup","username":"carol"}` + "\n"

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.Copy(w, strings.NewReader(body))
	}))
	defer srv.Close()

	sub := &fakeSubmitter{}
	w := New(srv.URL, "tok", srv.Client(), sub, passthroughEnricher{}, slog.Default())

	err := w.connectAndRead(context.Background(), &fakePinger{})
	require.NoError(t, err)

	var signups int
	for _, e := range sub.snapshot() {
		if e.Kind == domain.EventSignup {
			signups++
			require.Equal(t, "carol", e.User.Username)
		}
	}
	require.Equal(t, 1, signups)
}

func TestConnectAndReadNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := New(srv.URL, "tok", srv.Client(), &fakeSubmitter{}, passthroughEnricher{}, slog.Default())
	err := w.connectAndRead(context.Background(), &fakePinger{})
	require.Error(t, err)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	w := New(srv.URL, "tok", srv.Client(), &fakeSubmitter{}, passthroughEnricher{}, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx, &fakePinger{})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
