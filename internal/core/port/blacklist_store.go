package port

import (
	"context"
	"time"
)

// BlacklistStore persists token blacklist entries in the shared store.
type BlacklistStore interface {
	// MarkRevoked inserts the jti with the supplied reason and ttl. It is
	// idempotent: re-blacklisting an existing jti is a no-op success, and the
	// return value reports whether this call created the entry.
	MarkRevoked(ctx context.Context, jti, reason string, ttl time.Duration) (bool, error)
	// IsRevoked reports whether the jti is blacklisted, with the stored reason.
	IsRevoked(ctx context.Context, jti string) (bool, string, error)
}

// RevocationCache is the node-local read-through cache in front of the shared
// blacklist. It bounds the latency of the common "not blacklisted" path; its
// entry TTL is the system's revocation-propagation bound.
type RevocationCache interface {
	Put(jti string, revoked bool, reason string, until time.Time)
	Get(jti string, now time.Time) (revoked bool, reason string, ok bool)
	Prune(now time.Time) int
}
