package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/core/port"
	"github.com/arklim/auth-core/internal/infra/config"
)

const schemaVersion = "1.0"

// Topic names for the auth event stream. The producer prefixes them with the
// configured topic prefix.
const (
	TopicTokenRevoked       = "token.revoked"
	TopicSessionTerminated  = "session.terminated"
	TopicIdentityLocked     = "identity.locked"
	TopicIdentityRegistered = "identity.registered"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, key string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if key != "" {
		message.Key = sarama.StringEncoder(key)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishTokenRevoked broadcasts token.revoked events. Keyed by jti so peer
// nodes consuming the same partition see revocations for a token in order.
func (p *EventPublisher) PublishTokenRevoked(ctx context.Context, event domain.TokenRevokedEvent) error {
	return p.publish(ctx, event.EventID, TopicTokenRevoked, event.JTI, event.RevokedAt, event)
}

// PublishSessionTerminated publishes session.terminated events.
func (p *EventPublisher) PublishSessionTerminated(ctx context.Context, event domain.SessionTerminatedEvent) error {
	return p.publish(ctx, event.EventID, TopicSessionTerminated, event.IdentityID, event.TerminatedAt, event)
}

// PublishIdentityLocked publishes identity.locked events.
func (p *EventPublisher) PublishIdentityLocked(ctx context.Context, event domain.IdentityLockedEvent) error {
	return p.publish(ctx, event.EventID, TopicIdentityLocked, event.IdentityID, event.LockedAt, event)
}

// PublishIdentityRegistered publishes identity.registered events.
func (p *EventPublisher) PublishIdentityRegistered(ctx context.Context, event domain.IdentityRegisteredEvent) error {
	return p.publish(ctx, event.EventID, TopicIdentityRegistered, event.IdentityID, event.RegisteredAt, event)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
