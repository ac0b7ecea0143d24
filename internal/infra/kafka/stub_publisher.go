package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments and single-node deployments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishTokenRevoked logs token.revoked events.
func (p *StubPublisher) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	p.logEvent(TopicTokenRevoked, event.RevokedAt, event)
	return nil
}

// PublishSessionTerminated logs session.terminated events.
func (p *StubPublisher) PublishSessionTerminated(_ context.Context, event domain.SessionTerminatedEvent) error {
	p.logEvent(TopicSessionTerminated, event.TerminatedAt, event)
	return nil
}

// PublishIdentityLocked logs identity.locked events.
func (p *StubPublisher) PublishIdentityLocked(_ context.Context, event domain.IdentityLockedEvent) error {
	p.logEvent(TopicIdentityLocked, event.LockedAt, event)
	return nil
}

// PublishIdentityRegistered logs identity.registered events.
func (p *StubPublisher) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	p.logEvent(TopicIdentityRegistered, event.RegisteredAt, event)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
