package rulestore

import (
	"testing"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	saved  [][]domain.Rule
	toLoad []domain.Rule
}

func (f *fakePersister) Load() ([]domain.Rule, error) { return f.toLoad, nil }
func (f *fakePersister) Save(rules []domain.Rule) error {
	cp := make([]domain.Rule, len(rules))
	copy(cp, rules)
	f.saved = append(f.saved, cp)
	return nil
}

func newTestRule(name string) domain.Rule {
	return domain.Rule{
		Name:         name,
		Criterion:    domain.Criterion{Kind: domain.CriterionIPEquals, String: "1.2.3.4"},
		Actions:      []domain.ActionKind{domain.ActionShadowban},
		Enabled:      true,
		CreationDate: time.Unix(0, 0),
	}
}

func TestAddDuplicateName(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)

	require.NoError(t, s.Add(newTestRule("r1")))
	err = s.Add(newTestRule("r1"))
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestAddThenFind(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)

	require.NoError(t, s.Add(newTestRule("r1")))
	got, ok := s.Find("r1")
	require.True(t, ok)
	require.Equal(t, "r1", got.Name)
}

func TestCaughtIsIdempotentWithinLastThree(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)
	require.NoError(t, s.Add(newTestRule("r1")))

	changed, err := s.Caught("r1", "alice", time.Now())
	require.NoError(t, err)
	require.True(t, changed)

	changed, err = s.Caught("r1", "alice", time.Now())
	require.NoError(t, err)
	require.False(t, changed, "re-catching the same username must be a no-op")

	r, _ := s.Find("r1")
	require.Equal(t, uint64(1), r.MatchCount)
	require.Equal(t, []string{"alice"}, r.MostRecentCaught)
}

func TestCaughtEvictsOldestPastThree(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)
	require.NoError(t, s.Add(newTestRule("r1")))

	for _, name := range []string{"a", "b", "c", "d"} {
		_, err := s.Caught("r1", name, time.Now())
		require.NoError(t, err)
	}

	r, _ := s.Find("r1")
	require.Len(t, r.MostRecentCaught, domain.MostRecentCaughtCap)
	require.Equal(t, []string{"b", "c", "d"}, r.MostRecentCaught)
	require.Equal(t, uint64(4), r.MatchCount)
}

func TestDisableEnableByPattern(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)
	require.NoError(t, s.Add(newTestRule("blocklist-ip-1")))
	require.NoError(t, s.Add(newTestRule("blocklist-ip-2")))
	require.NoError(t, s.Add(newTestRule("other")))

	count, err := s.Disable("^blocklist-")
	require.NoError(t, err)
	require.Equal(t, 2, count)

	r1, _ := s.Find("blocklist-ip-1")
	require.False(t, r1.Enabled)
	other, _ := s.Find("other")
	require.True(t, other.Enabled)

	count, err = s.Enable("^blocklist-")
	require.NoError(t, err)
	require.Equal(t, 2, count)
	r1, _ = s.Find("blocklist-ip-1")
	require.True(t, r1.Enabled)
}

func TestEnableInvalidPattern(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)

	_, err = s.Enable("(unterminated")
	require.ErrorIs(t, err, ErrInvalidPattern)
}

func TestRenewResetsExpiryNotification(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)
	rule := newTestRule("r1")
	rule.ExpNotification = domain.ExpiryExpiredNotified
	require.NoError(t, s.Add(rule))

	newExpiry := time.Now().Add(14 * 24 * time.Hour)
	require.NoError(t, s.Renew("r1", newExpiry))

	got, _ := s.Find("r1")
	require.Equal(t, domain.ExpiryNotNotified, got.ExpNotification)
	require.WithinDuration(t, newExpiry, *got.Expiry, time.Second)
}

func TestRemoveReportsWhetherAnythingChanged(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)
	require.NoError(t, s.Add(newTestRule("r1")))

	removed, err := s.Remove("does-not-exist")
	require.NoError(t, err)
	require.False(t, removed)

	removed, err = s.Remove("r1")
	require.NoError(t, err)
	require.True(t, removed)

	_, ok := s.Find("r1")
	require.False(t, ok)
}

func TestReloadReplacesCatalogueFromPersister(t *testing.T) {
	fp := &fakePersister{}
	s, err := New(fp)
	require.NoError(t, err)
	require.NoError(t, s.Add(newTestRule("r1")))

	fp.toLoad = []domain.Rule{newTestRule("r2")}
	require.NoError(t, s.Reload())

	_, ok := s.Find("r1")
	require.False(t, ok)
	_, ok = s.Find("r2")
	require.True(t, ok)
}
