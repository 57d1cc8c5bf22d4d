// Package recency implements the two bounded "seen" structures from spec
// §3.2: a buffer of up to 10,000 recently evaluated distinct usernames
// (used by the "seen" chat command) and a 5-entry ring of usernames a
// NotifyChat action has already posted about, so repeat signups from the
// same user don't re-trigger the chat post.
//
// Grounded on the teacher's internal/service/peer_enricher.go cache-aside
// use of hashicorp/golang-lru/v2. Every read goes through Peek rather than
// Get, so lookups never change eviction order. Writes go through Add, which
// moves a re-recorded username to most-recent; eviction order is therefore
// by each username's latest recording, not strict insertion order of
// individual signups.
package recency

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/signupwatch/daemon/internal/domain"
)

// Capacity is the FIFO buffer size named in spec §3.2.
const Capacity = 10000

// NotifiedCapacity is the recently-notified ring size named in spec §3.2.
const NotifiedCapacity = 5

// Buffer is spec §3.2's recency buffer and snapshot map rolled into one
// structure: up to Capacity distinct lowercased usernames, each holding the
// queue of User snapshots recorded for it. Because both live in the same
// cache entry, evicting the oldest username automatically empties its
// snapshot queue in the same step — a one-shot rendering of "the mapping
// entry is removed when its queue empties".
//
// Lookups (Seen) use Peek, never Get, so reading never perturbs eviction
// order. Recording a username moves it to the front, so eviction drops
// whichever distinct username has gone longest without a new signup.
// Capacity counts distinct usernames, not recorded snapshots: a single
// username's snapshot queue is not capped while that username stays in
// the buffer.
type Buffer struct {
	mu    sync.Mutex
	cache *lru.Cache[string, []domain.User]
}

// NewBuffer builds an empty Buffer at the spec-mandated capacity.
func NewBuffer() *Buffer {
	c, err := lru.New[string, []domain.User](Capacity)
	if err != nil {
		// Capacity is a positive compile-time constant; lru.New only
		// errors for size <= 0.
		panic(err)
	}
	return &Buffer{cache: c}
}

// Record appends snapshot to username's queue, evicting the
// longest-resident distinct username if the buffer is already at Capacity.
func (b *Buffer) Record(username string, snapshot domain.User) {
	b.mu.Lock()
	defer b.mu.Unlock()
	existing, _ := b.cache.Peek(username)
	b.cache.Add(username, append(existing, snapshot))
}

// Seen reports whether username is currently tracked, and its snapshot
// queue if so. Uses Peek so the lookup itself never perturbs eviction
// order.
func (b *Buffer) Seen(username string) ([]domain.User, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	snaps, ok := b.cache.Peek(username)
	return snaps, ok
}

// Len reports the current buffer size, exposed for the admin HTTP
// /metrics surface.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cache.Len()
}

// NotifiedRing tracks the last NotifiedCapacity lowercased usernames a
// NotifyChat action has already posted about, so dispatchActions never
// sends two NotifyChat posts for the same user within the same short
// window (spec §3.2's recently-notified set, consulted from §4.4).
type NotifiedRing struct {
	mu    sync.Mutex
	cache *lru.Cache[string, time.Time]
}

// NewNotifiedRing builds an empty NotifiedRing.
func NewNotifiedRing() *NotifiedRing {
	c, err := lru.New[string, time.Time](NotifiedCapacity)
	if err != nil {
		panic(err)
	}
	return &NotifiedRing{cache: c}
}

// MarkNotified records that username was just sent a NotifyChat post.
func (r *NotifiedRing) MarkNotified(username string, t time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(username, t)
}

// RecentlyNotified reports whether username was notified about within the
// ring's current window (Peek-based, non-promoting).
func (r *NotifiedRing) RecentlyNotified(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cache.Peek(username)
	return ok
}
