package port

import (
	"context"
	"time"

	"github.com/arklim/auth-core/internal/core/domain"
)

// SessionStore deals with session persistence in the shared store plus the
// per-identity index used for listing and eviction.
type SessionStore interface {
	// Save persists the session with the supplied ttl and registers it in the
	// identity index. Saving an existing id overwrites it.
	Save(ctx context.Context, session domain.Session, ttl time.Duration) error
	// Get returns the session or repository.ErrNotFound when absent or expired.
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	// Delete removes the session and its index entry. Deleting an absent
	// session is not an error.
	Delete(ctx context.Context, identityID, sessionID string) error
	// ListByIdentity returns the identity's live sessions in created-at
	// order, oldest first. Index entries whose sessions have expired are
	// skipped.
	ListByIdentity(ctx context.Context, identityID string) ([]domain.Session, error)
	// SweepExpired drops index entries whose sessions have expired out of the
	// store and returns how many were removed.
	SweepExpired(ctx context.Context, reference time.Time) (int, error)
}
