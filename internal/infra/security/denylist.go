package security

import (
	"sync"
	"time"
)

type denylistEntry struct {
	revoked bool
	reason  string
	until   time.Time
}

// LocalDenylist is an in-process cache of recent revocation lookups. Positive
// entries live until the token itself expires; negative entries carry a short
// TTL that bounds how stale a "not revoked" answer may be across instances.
type LocalDenylist struct {
	mu         sync.RWMutex
	entries    map[string]denylistEntry
	maxEntries int
}

// NewLocalDenylist creates a denylist holding at most maxEntries records.
func NewLocalDenylist(maxEntries int) *LocalDenylist {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	return &LocalDenylist{
		entries:    make(map[string]denylistEntry),
		maxEntries: maxEntries,
	}
}

// Put records the revocation state of a jti until the given deadline.
func (d *LocalDenylist) Put(jti string, revoked bool, reason string, until time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.entries) >= d.maxEntries {
		if _, exists := d.entries[jti]; !exists {
			d.evictOneLocked()
		}
	}
	d.entries[jti] = denylistEntry{revoked: revoked, reason: reason, until: until}
}

// Get returns the cached state for jti as of now. ok is false on a miss or
// when the entry has passed its deadline.
func (d *LocalDenylist) Get(jti string, now time.Time) (revoked bool, reason string, ok bool) {
	d.mu.RLock()
	entry, exists := d.entries[jti]
	d.mu.RUnlock()

	if !exists || now.After(entry.until) {
		return false, "", false
	}
	return entry.revoked, entry.reason, true
}

// Prune removes entries whose deadline has passed and returns how many were
// dropped.
func (d *LocalDenylist) Prune(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for jti, entry := range d.entries {
		if now.After(entry.until) {
			delete(d.entries, jti)
			removed++
		}
	}
	return removed
}

// Len reports the current entry count.
func (d *LocalDenylist) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// evictOneLocked drops the entry with the nearest deadline. Map iteration is
// unordered but the cache is advisory, so losing an arbitrary-ish entry under
// pressure is acceptable.
func (d *LocalDenylist) evictOneLocked() {
	var victim string
	var victimUntil time.Time
	for jti, entry := range d.entries {
		if victim == "" || entry.until.Before(victimUntil) {
			victim = jti
			victimUntil = entry.until
		}
	}
	if victim != "" {
		delete(d.entries, victim)
	}
}
