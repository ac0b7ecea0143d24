package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arklim/auth-core/internal/core/port"
)

// BlacklistStore persists revoked token identifiers in Redis. Entries carry
// the revocation reason as their value and expire together with the token
// they revoke.
type BlacklistStore struct {
	client *redis.Client
	prefix string
}

// NewBlacklistStore constructs a store using the provided Redis client.
func NewBlacklistStore(client *redis.Client, prefix string) *BlacklistStore {
	if prefix == "" {
		prefix = "authcore"
	}
	return &BlacklistStore{client: client, prefix: prefix}
}

func (s *BlacklistStore) key(jti string) string {
	return fmt.Sprintf("%s:blacklist:%s", s.prefix, jti)
}

// MarkRevoked inserts the jti with the supplied reason and ttl. SETNX keeps
// the call idempotent: a second revocation of the same jti succeeds without
// touching the original entry or its expiry.
func (s *BlacklistStore) MarkRevoked(ctx context.Context, jti, reason string, ttl time.Duration) (bool, error) {
	if jti == "" {
		return false, errors.New("jti must not be empty")
	}
	if ttl <= 0 {
		// Token already expired; nothing to retain.
		return false, nil
	}

	created, err := s.client.SetNX(ctx, s.key(jti), reason, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx blacklist: %w", err)
	}

	return created, nil
}

// IsRevoked reports whether the jti is blacklisted, with the stored reason.
func (s *BlacklistStore) IsRevoked(ctx context.Context, jti string) (bool, string, error) {
	reason, err := s.client.Get(ctx, s.key(jti)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, "", nil
		}
		return false, "", fmt.Errorf("redis get blacklist: %w", err)
	}

	return true, reason, nil
}

var _ port.BlacklistStore = (*BlacklistStore)(nil)
