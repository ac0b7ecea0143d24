package port

import (
	"context"
	"time"

	"github.com/arklim/auth-core/internal/core/domain"
)

// IdentityRepository exposes persistence behavior for identity records.
//
// AtomicIncrementFailedAttempts must be a server-side atomic increment:
// concurrent failed attempts from multiple nodes may never lose an update,
// otherwise parallelized brute force can dodge the lockout threshold.
type IdentityRepository interface {
	Create(ctx context.Context, identity domain.Identity) error
	GetByID(ctx context.Context, id string) (*domain.Identity, error)
	GetByEmail(ctx context.Context, email string) (*domain.Identity, error)
	AtomicIncrementFailedAttempts(ctx context.Context, id string) (int, error)
	ResetFailedAttempts(ctx context.Context, id string) error
	SetLock(ctx context.Context, id string, at time.Time) error
	ClearLock(ctx context.Context, id string) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	RecordLoginAttempt(ctx context.Context, attempt domain.LoginAttempt) error
}
