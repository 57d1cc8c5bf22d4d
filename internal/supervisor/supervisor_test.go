package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakeDispatcher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *fakeDispatcher) Submit(e domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func TestPingerLastIsZeroBeforeFirstPing(t *testing.T) {
	p := NewPinger()
	require.True(t, p.Last().IsZero())
	p.Ping()
	require.False(t, p.Last().IsZero())
}

func TestRunStartsBothTasksImmediately(t *testing.T) {
	var streamStarts, chatStarts atomic.Int32
	startStream := func(ctx context.Context) { streamStarts.Add(1); <-ctx.Done() }
	startChat := func(ctx context.Context) { chatStarts.Add(1); <-ctx.Done() }

	sv := New(startStream, startChat, NewPinger(), NewPinger(), &fakeDispatcher{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sv.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return streamStarts.Load() == 1 && chatStarts.Load() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCheckLivenessRespawnsStaleStream(t *testing.T) {
	var streamStarts atomic.Int32
	startStream := func(ctx context.Context) { streamStarts.Add(1); <-ctx.Done() }
	startChat := func(ctx context.Context) { <-ctx.Done() }

	streamPinger := NewPinger()
	sv := New(startStream, startChat, streamPinger, NewPinger(), &fakeDispatcher{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sv.respawnStream(ctx)
	require.Eventually(t, func() bool { return streamStarts.Load() == 1 }, time.Second, 10*time.Millisecond)

	streamPinger.lastMillis.Store(time.Now().Add(-2 * streamStaleAfter).UnixMilli())
	sv.checkLiveness(ctx)

	require.Eventually(t, func() bool { return streamStarts.Load() == 2 }, time.Second, 10*time.Millisecond)
}

func TestCheckLivenessIgnoresFreshPings(t *testing.T) {
	var streamStarts atomic.Int32
	startStream := func(ctx context.Context) { streamStarts.Add(1); <-ctx.Done() }
	startChat := func(ctx context.Context) { <-ctx.Done() }

	streamPinger := NewPinger()
	sv := New(startStream, startChat, streamPinger, NewPinger(), &fakeDispatcher{}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sv.respawnStream(ctx)
	require.Eventually(t, func() bool { return streamStarts.Load() == 1 }, time.Second, 10*time.Millisecond)

	sv.checkLiveness(ctx)
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), streamStarts.Load())
}
