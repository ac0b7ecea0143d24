package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/core/port"
	"github.com/arklim/auth-core/internal/infra/security"
	"github.com/arklim/auth-core/internal/infra/telemetry"
)

// RevocationRegistry makes token revocations visible to every node. The
// shared blacklist store is the source of truth; a node-local cache bounds
// lookup latency, and a best-effort broadcast warms peer caches early. The
// negative-cache TTL is the upper bound on how long a freshly revoked token
// may still pass validation on a node that has not heard yet.
type RevocationRegistry struct {
	store       port.BlacklistStore
	cache       port.RevocationCache
	publisher   port.EventPublisher
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	negativeTTL time.Duration
	now         func() time.Time
}

// NewRevocationRegistry wires the registry. publisher may be nil when no
// broker is configured; peers then converge through the shared store alone.
func NewRevocationRegistry(store port.BlacklistStore, cache port.RevocationCache, publisher port.EventPublisher, logger *zap.Logger, metrics *telemetry.Metrics, negativeTTL time.Duration) *RevocationRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if negativeTTL <= 0 {
		negativeTTL = 2 * time.Second
	}
	return &RevocationRegistry{
		store:       store,
		cache:       cache,
		publisher:   publisher,
		logger:      logger,
		metrics:     metrics,
		negativeTTL: negativeTTL,
		now:         time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (r *RevocationRegistry) WithClock(now func() time.Time) *RevocationRegistry {
	r.now = now
	return r
}

// Blacklist revokes the token carried by claims. The entry lives exactly as
// long as the token would have remained valid. Re-revoking is a no-op.
func (r *RevocationRegistry) Blacklist(ctx context.Context, claims *security.AccessClaims, reason string) error {
	now := r.now()
	entry := domain.BlacklistEntry{
		JTI:           claims.ID,
		Reason:        reason,
		BlacklistedAt: now,
	}
	if claims.ExpiresAt != nil {
		entry.ExpiresAt = claims.ExpiresAt.Time
	}

	ttl := entry.TTLFrom(now)
	if ttl <= 0 {
		// Already expired; validation rejects it on exp alone.
		return nil
	}

	created, err := r.store.MarkRevoked(ctx, entry.JTI, reason, ttl)
	if err != nil {
		return fmt.Errorf("%w: blacklist write: %v", ErrUnavailable, err)
	}

	r.cache.Put(entry.JTI, true, reason, entry.ExpiresAt)

	if created && r.metrics != nil {
		r.metrics.TokensRevoked.WithLabelValues(reason).Inc()
	}

	if created && r.publisher != nil {
		event := domain.TokenRevokedEvent{
			EventID:    uuid.NewString(),
			JTI:        entry.JTI,
			IdentityID: claims.Subject,
			SessionID:  claims.SessionID,
			Reason:     reason,
			RevokedAt:  now,
			ExpiresAt:  entry.ExpiresAt,
		}
		if err := r.publisher.PublishTokenRevoked(ctx, event); err != nil {
			r.logger.Warn("broadcast token revocation failed",
				zap.Error(err),
				zap.String("jti", entry.JTI),
			)
		}
	}

	return nil
}

// IsBlacklisted reports whether the jti has been revoked. Cache misses read
// through to the shared store; a store outage fails closed with
// ErrUnavailable rather than admitting a possibly revoked token.
func (r *RevocationRegistry) IsBlacklisted(ctx context.Context, jti string, tokenExpiry time.Time) (bool, string, error) {
	if revoked, reason, ok := r.cache.Get(jti, r.now()); ok {
		if r.metrics != nil {
			r.metrics.DenylistCacheHits.WithLabelValues("hit").Inc()
		}
		return revoked, reason, nil
	}
	if r.metrics != nil {
		r.metrics.DenylistCacheHits.WithLabelValues("miss").Inc()
	}

	revoked, reason, err := r.store.IsRevoked(ctx, jti)
	if err != nil {
		return false, "", fmt.Errorf("%w: blacklist read: %v", ErrUnavailable, err)
	}

	if revoked {
		r.cache.Put(jti, true, reason, tokenExpiry)
	} else {
		r.cache.Put(jti, false, "", r.now().Add(r.negativeTTL))
	}

	return revoked, reason, nil
}

// ApplyRemote records a revocation learned from a peer broadcast. Only the
// local cache is touched; the originating node already wrote the store.
func (r *RevocationRegistry) ApplyRemote(_ context.Context, event domain.TokenRevokedEvent) error {
	r.cache.Put(event.JTI, true, event.Reason, event.ExpiresAt)
	r.logger.Debug("applied remote revocation",
		zap.String("jti", event.JTI),
		zap.String("reason", event.Reason),
	)
	return nil
}

// Prune drops expired local cache entries.
func (r *RevocationRegistry) Prune() int {
	return r.cache.Prune(r.now())
}
