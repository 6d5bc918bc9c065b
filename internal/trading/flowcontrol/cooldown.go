// Advisory flow-control registries: per-key cooldowns and per-order deadlines.
// Nothing here cancels or retries on its own; callers act on the reported keys.
package flowcontrol

import (
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/btree"
)

// DefaultMaxEntries bounds registry memory when a caller never cleans up.
const DefaultMaxEntries = 4096

type cooldownEntry struct {
	deadline time.Time
	reason   string
}

// CooldownRegistry tracks per-key suppression windows. Expired entries are
// reaped lazily on read; when the registry is over capacity the entries with
// the soonest expiry are evicted first.
type CooldownRegistry struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]cooldownEntry
	byDeadline *btree.Map[string, string] // encoded deadline -> key
	now        func() time.Time
}

// NewCooldownRegistry creates a registry holding at most maxEntries keys.
// maxEntries <= 0 falls back to DefaultMaxEntries.
func NewCooldownRegistry(maxEntries int) *CooldownRegistry {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &CooldownRegistry{
		maxEntries: maxEntries,
		entries:    make(map[string]cooldownEntry),
		byDeadline: btree.NewMap[string, string](32),
		now:        time.Now,
	}
}

// Reset drops every cooldown.
func (r *CooldownRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]cooldownEntry)
	r.byDeadline = btree.NewMap[string, string](32)
}

// Hit sets or refreshes the cooldown for key.
func (r *CooldownRegistry) Hit(key string, ttl time.Duration, reason string) {
	if ttl <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.entries[key]; ok {
		r.byDeadline.Delete(deadlineKey(prev.deadline, key))
	}
	deadline := r.now().Add(ttl)
	r.entries[key] = cooldownEntry{deadline: deadline, reason: reason}
	r.byDeadline.Set(deadlineKey(deadline, key), key)

	for len(r.entries) > r.maxEntries {
		_, victim, ok := r.byDeadline.PopMin()
		if !ok {
			break
		}
		delete(r.entries, victim)
	}
}

// Remaining returns the time left on the key's cooldown, zero if none.
func (r *CooldownRegistry) Remaining(key string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return 0
	}
	left := e.deadline.Sub(r.now())
	if left <= 0 {
		r.removeLocked(key, e)
		return 0
	}
	return left
}

// IsCooling reports whether the key is inside an active cooldown window.
func (r *CooldownRegistry) IsCooling(key string) bool {
	return r.Remaining(key) > 0
}

// Reason returns the reason recorded with the key's active cooldown.
func (r *CooldownRegistry) Reason(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return ""
	}
	if !e.deadline.After(r.now()) {
		r.removeLocked(key, e)
		return ""
	}
	return e.reason
}

// Len returns the number of tracked keys, including not-yet-reaped expired
// ones.
func (r *CooldownRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *CooldownRegistry) removeLocked(key string, e cooldownEntry) {
	delete(r.entries, key)
	r.byDeadline.Delete(deadlineKey(e.deadline, key))
}

// deadlineKey encodes a deadline-ordered composite key so the btree iterates
// soonest-expiring entries first.
func deadlineKey(t time.Time, key string) string {
	return fmt.Sprintf("%020d\x00%s", t.UnixNano(), key)
}
