package port

import (
	"context"
	"time"
)

// DistributedCache is the shared, TTL-capable key-value store every node can
// reach. All cross-node mutations go through atomic operations on it; there is
// no other source of truth for counters and ephemeral state.
type DistributedCache interface {
	// Get returns the stored value or repository.ErrNotFound on miss.
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent stores the value only when the key does not exist yet and
	// reports whether the write happened.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// IncrementWithTTLOnCreate atomically increments the counter at key,
	// applying ttl only when the increment created the key. The combination is
	// what makes fixed-window counting correct under concurrent access.
	IncrementWithTTLOnCreate(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// TTL returns the remaining lifetime of key, or zero when the key has no
	// expiry or does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Delete(ctx context.Context, key string) error
}
