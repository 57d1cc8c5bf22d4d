// Package rulestore implements the rule catalogue (spec §3.2): an ordered,
// in-memory sequence of domain.Rule backed by a single JSON file, rewritten
// in full on every mutation before the mutation is acknowledged.
//
// Grounded directly on spec §4.1 (no close teacher analogue for a
// JSON-file-backed catalogue exists in the pack); the write-temp-then-rename
// persistence idiom is standard library only, since no repo in the pack
// carries a dedicated atomic-file-write dependency.
package rulestore

import (
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/signupwatch/daemon/internal/domain"
)

// ErrDuplicateName is returned by Add when a rule with the same name
// already exists.
var ErrDuplicateName = errors.New("rulestore: duplicate rule name")

// ErrNotFound is returned by operations addressing a rule name that isn't
// in the catalogue.
var ErrNotFound = errors.New("rulestore: rule not found")

// ErrInvalidPattern is returned by Enable/Disable when pattern does not
// compile as a regular expression.
var ErrInvalidPattern = errors.New("rulestore: invalid pattern")

// Store holds the ordered rule sequence and a Persister used to make every
// mutation durable before it returns to the caller (spec §3.2 invariant 4).
type Store struct {
	mu    sync.RWMutex
	rules []domain.Rule
	index map[string]int

	persist Persister
}

// Persister is the minimal durability contract the Store depends on;
// Persist.go's FilePersister is the production implementation, kept as an
// interface so tests can swap in an in-memory fake.
type Persister interface {
	Save(rules []domain.Rule) error
	Load() ([]domain.Rule, error)
}

// New constructs a Store, loading the existing catalogue from p (an empty
// catalogue if none exists yet).
func New(p Persister) (*Store, error) {
	rules, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("rulestore: initial load: %w", err)
	}
	s := &Store{persist: p}
	s.rebuildIndex(rules)
	return s, nil
}

func (s *Store) rebuildIndex(rules []domain.Rule) {
	s.rules = rules
	s.index = make(map[string]int, len(rules))
	for i, r := range rules {
		s.index[r.Name] = i
	}
}

func (s *Store) saveLocked() error {
	return s.persist.Save(s.rules)
}

// Add appends rule, failing with ErrDuplicateName if its name is already
// taken. Persists before returning.
func (s *Store) Add(rule domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.index[rule.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateName, rule.Name)
	}
	s.index[rule.Name] = len(s.rules)
	s.rules = append(s.rules, rule)
	return s.saveLocked()
}

// Remove deletes the rule named name, reporting whether anything was
// removed. Persists only if a rule was actually removed.
func (s *Store) Remove(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, exists := s.index[name]
	if !exists {
		return false, nil
	}
	s.rules = append(s.rules[:idx], s.rules[idx+1:]...)
	s.rebuildIndex(s.rules)
	if err := s.saveLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// Find returns a copy of the rule named name.
func (s *Store) Find(name string) (domain.Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, exists := s.index[name]
	if !exists {
		return domain.Rule{}, false
	}
	return s.rules[idx], true
}

// All returns a copy of the full catalogue in insertion order.
func (s *Store) All() []domain.Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Rule, len(s.rules))
	copy(out, s.rules)
	return out
}

// ListNames returns every rule's name, in insertion order.
func (s *Store) ListNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.rules))
	for i, r := range s.rules {
		out[i] = r.Name
	}
	return out
}

// setEnabledMatching compiles pattern and sets Enabled on every rule whose
// name matches it, returning the number of rules touched.
func (s *Store) setEnabledMatching(pattern string, enabled bool) (int, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidPattern, pattern, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.rules {
		if re.MatchString(s.rules[i].Name) {
			s.rules[i].Enabled = enabled
			count++
		}
	}
	if count > 0 {
		if err := s.saveLocked(); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Enable sets enabled=true on every rule whose name matches pattern.
func (s *Store) Enable(pattern string) (int, error) {
	return s.setEnabledMatching(pattern, true)
}

// Disable sets enabled=false on every rule whose name matches pattern.
func (s *Store) Disable(pattern string) (int, error) {
	return s.setEnabledMatching(pattern, false)
}

// Renew sets expiry on the named rule and resets its expiry-notification
// tri-state to "not notified" (spec §4.4/§4.8 "renew").
func (s *Store) Renew(name string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, exists := s.index[name]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	s.rules[idx].Expiry = &expiry
	s.rules[idx].ExpNotification = domain.ExpiryNotNotified
	return s.saveLocked()
}

// Caught records a rule match against username: idempotent within the last
// 3 distinct catches (spec §4.1). Returns whether the catalogue actually
// changed (false if username was already in the ring, per the invariant
// that a repeat match is a no-op).
func (s *Store) Caught(name, username string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, exists := s.index[name]
	if !exists {
		return false, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	rule := &s.rules[idx]
	if !rule.PushCaught(username) {
		return false, nil
	}
	rule.MatchCount++
	rule.LatestMatchDate = &at
	if err := s.saveLocked(); err != nil {
		return true, err
	}
	return true, nil
}

// Reload re-reads the catalogue from the Persister, replacing the in-memory
// state wholesale. Used when WatchExternalEdits observes an operator
// hand-edit of the rule file (spec §3.2: "operator-edited rarely").
func (s *Store) Reload() error {
	rules, err := s.persist.Load()
	if err != nil {
		return fmt.Errorf("rulestore: reload: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rebuildIndex(rules)
	return nil
}

// MutateForExpirySweep lets the dispatcher's CheckRulesExpiry handler apply
// a batch of tri-state / removal changes under a single lock and a single
// persist call, matching spec §4.4's "after the pass, persist" wording.
// fn is invoked with a mutable view of the catalogue; returning a shorter
// slice than was passed in removes rules.
func (s *Store) MutateForExpirySweep(fn func(rules []domain.Rule) []domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := fn(s.rules)
	s.rebuildIndex(next)
	return s.saveLocked()
}
