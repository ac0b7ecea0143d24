package domain

import "time"

// BlacklistEntry models a revoked access token identifier in the shared store.
type BlacklistEntry struct {
	JTI           string
	Reason        string
	BlacklistedAt time.Time
	ExpiresAt     time.Time
}

// TTLFrom returns how long the entry must outlive the supplied moment.
// The entry expires with the token it revokes; an expired token fails
// validation regardless, so nothing needs to be retained past that point.
func (e BlacklistEntry) TTLFrom(at time.Time) time.Duration {
	return e.ExpiresAt.Sub(at)
}
