package port

import (
	"context"

	"github.com/arklim/auth-core/internal/core/domain"
)

// EventPublisher broadcasts auth-core lifecycle events to interested peers.
// Delivery is best-effort: the shared store remains the source of truth, so a
// failed broadcast is logged, never treated as a correctness failure.
type EventPublisher interface {
	PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error
	PublishSessionTerminated(ctx context.Context, event domain.SessionTerminatedEvent) error
	PublishIdentityLocked(ctx context.Context, event domain.IdentityLockedEvent) error
	PublishIdentityRegistered(ctx context.Context, event domain.IdentityRegisteredEvent) error
}
