package dispatcher

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signupwatch/daemon/internal/actions"
	"github.com/signupwatch/daemon/internal/criterion"
	"github.com/signupwatch/daemon/internal/domain"
	"github.com/signupwatch/daemon/internal/recency"
	"github.com/signupwatch/daemon/internal/rulestore"
	"github.com/signupwatch/daemon/internal/scheduler"
)

type memPersister struct {
	mu    sync.Mutex
	rules []domain.Rule
}

func (m *memPersister) Load() ([]domain.Rule, error) { return nil, nil }
func (m *memPersister) Save(rules []domain.Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append([]domain.Rule(nil), rules...)
	return nil
}

type fakePoster struct{}

func (fakePoster) Post(ctx context.Context, method, url string) (int, error) { return 200, nil }

type recordingPoster struct {
	calls chan string
}

func (p recordingPoster) Post(ctx context.Context, method, url string) (int, error) {
	p.calls <- url
	return 200, nil
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *chan string) {
	t.Helper()
	return newTestDispatcherWithPoster(t, fakePoster{})
}

func newTestDispatcherWithPoster(t *testing.T, poster scheduler.Poster) (*Dispatcher, *chan string) {
	t.Helper()
	store, err := rulestore.New(&memPersister{})
	require.NoError(t, err)
	scripter, err := criterion.NewCELScripter()
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sched := scheduler.New(poster, logger)

	posted := make(chan string, 100)
	postMain := func(text string) { posted <- text }
	postNotify := func(text string) { posted <- text }

	d := New(store, recency.NewBuffer(), recency.NewNotifiedRing(), scripter,
		actions.Endpoints{ShadowbanURLTemplate: "http://mod.example/%s/shadowban"},
		sched, postMain, postNotify, logger)
	return d, &posted
}

func TestHandleSignupMatchesAndPostsSummary(t *testing.T) {
	d, posted := newTestDispatcher(t)
	require.NoError(t, d.store.Add(domain.Rule{
		Name:      "ip-rule",
		Criterion: domain.Criterion{Kind: domain.CriterionIPEquals, String: "9.9.9.9"},
		Actions:   []domain.ActionKind{domain.ActionShadowban},
		Enabled:   true,
	}))

	d.handleSignupLike(domain.User{Username: "mallory", IP: "9.9.9.9"}, false)

	select {
	case msg := <-*posted:
		require.Contains(t, msg, "ip-rule")
	case <-time.After(time.Second):
		t.Fatal("expected a match summary to be posted")
	}

	r, ok := d.store.Find("ip-rule")
	require.True(t, ok)
	require.Equal(t, uint64(1), r.MatchCount)
}

func TestHandleSignupDisabledRuleNeverMatches(t *testing.T) {
	d, posted := newTestDispatcher(t)
	require.NoError(t, d.store.Add(domain.Rule{
		Name:      "ip-rule",
		Criterion: domain.Criterion{Kind: domain.CriterionIPEquals, String: "9.9.9.9"},
		Actions:   []domain.ActionKind{domain.ActionShadowban},
		Enabled:   false,
	}))

	d.handleSignupLike(domain.User{Username: "mallory", IP: "9.9.9.9"}, false)

	select {
	case msg := <-*posted:
		t.Fatalf("expected no chat post for a disabled rule, got: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHandleSignupSuspIPGate(t *testing.T) {
	d, posted := newTestDispatcher(t)
	require.NoError(t, d.store.Add(domain.Rule{
		Name:      "ip-rule",
		Criterion: domain.Criterion{Kind: domain.CriterionIPEquals, String: "9.9.9.9"},
		Actions:   []domain.ActionKind{domain.ActionShadowban},
		Enabled:   true,
		SuspIP:    true,
	}))

	d.handleSignupLike(domain.User{Username: "mallory", IP: "9.9.9.9", SuspIP: false}, false)
	select {
	case msg := <-*posted:
		t.Fatalf("rule requires susp_ip, got unexpected post: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}

	d.handleSignupLike(domain.User{Username: "mallory", IP: "9.9.9.9", SuspIP: true}, false)
	select {
	case <-*posted:
	case <-time.After(time.Second):
		t.Fatal("expected a match post once susp_ip is set")
	}
}

func TestHandleHypotheticalSignupNeverMutatesState(t *testing.T) {
	d, posted := newTestDispatcher(t)
	require.NoError(t, d.store.Add(domain.Rule{
		Name:      "ip-rule",
		Criterion: domain.Criterion{Kind: domain.CriterionIPEquals, String: "9.9.9.9"},
		Actions:   []domain.ActionKind{domain.ActionShadowban},
		Enabled:   true,
	}))

	d.handleSignupLike(domain.User{Username: "mallory", IP: "9.9.9.9"}, true)

	select {
	case msg := <-*posted:
		require.Contains(t, msg, "would match")
	case <-time.After(time.Second):
		t.Fatal("expected a would-match message posted to the main chat topic")
	}
	r, _ := d.store.Find("ip-rule")
	require.Equal(t, uint64(0), r.MatchCount, "hypothetical signups must not mutate match_count")
}

func TestHandleNotifyOnlyActionSuppressesSummary(t *testing.T) {
	d, posted := newTestDispatcher(t)
	require.NoError(t, d.store.Add(domain.Rule{
		Name:      "notify-rule",
		Criterion: domain.Criterion{Kind: domain.CriterionIPEquals, String: "9.9.9.9"},
		Actions:   []domain.ActionKind{domain.ActionNotifyChat},
		Enabled:   true,
	}))

	d.handleSignupLike(domain.User{Username: "mallory", IP: "9.9.9.9"}, false)

	select {
	case msg := <-*posted:
		require.Contains(t, msg, "notify:")
	case <-time.After(time.Second):
		t.Fatal("expected the notify-channel post")
	}
	select {
	case msg := <-*posted:
		t.Fatalf("notify-only rule must not also post a rich match summary, got: %s", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestDispatchActionsHonorsPerRuleNoDelay guards against reusing the first
// matched rule's no_delay gate for every other rule matched by the same
// event: a no_delay=false rule matching before a no_delay=true rule must
// not force the second rule's action to wait out the first rule's sampled
// delay (and vice versa).
func TestDispatchActionsHonorsPerRuleNoDelay(t *testing.T) {
	calls := make(chan string, 2)
	d, posted := newTestDispatcherWithPoster(t, recordingPoster{calls: calls})

	require.NoError(t, d.store.Add(domain.Rule{
		Name:      "rule-delayed",
		Criterion: domain.Criterion{Kind: domain.CriterionIPEquals, String: "9.9.9.9"},
		Actions:   []domain.ActionKind{domain.ActionShadowban},
		Enabled:   true,
		NoDelay:   false,
	}))
	require.NoError(t, d.store.Add(domain.Rule{
		Name:      "rule-instant",
		Criterion: domain.Criterion{Kind: domain.CriterionIPEquals, String: "9.9.9.9"},
		Actions:   []domain.ActionKind{domain.ActionShadowban},
		Enabled:   true,
		NoDelay:   true,
	}))

	d.handleSignupLike(domain.User{Username: "mallory", IP: "9.9.9.9"}, false)

	// Drain both match-summary posts so they don't interfere below.
	for i := 0; i < 2; i++ {
		select {
		case <-*posted:
		case <-time.After(time.Second):
			t.Fatal("expected both rules' match summaries to post")
		}
	}

	select {
	case <-calls:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("rule-instant's action (no_delay=true) should have fired immediately")
	}

	select {
	case <-calls:
		t.Fatal("rule-delayed's action (no_delay=false) should not fire within the minimum delay window")
	case <-time.After(500 * time.Millisecond):
	}
}
