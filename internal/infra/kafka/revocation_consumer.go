package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/core/domain"
)

// RevocationApplier receives revocation events observed on the broker. The
// token engine's revocation registry implements it to warm local caches.
type RevocationApplier interface {
	ApplyRemote(ctx context.Context, event domain.TokenRevokedEvent) error
}

// RevocationConsumer hydrates the local denylist from token.revoked events
// broadcast by peer nodes. It implements sarama.ConsumerGroupHandler.
type RevocationConsumer struct {
	applier         RevocationApplier
	logger          *zap.Logger
	replayTolerance time.Duration
	now             func() time.Time
}

// NewRevocationConsumer constructs a consumer that keeps the denylist current.
func NewRevocationConsumer(applier RevocationApplier, logger *zap.Logger) *RevocationConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RevocationConsumer{
		applier:         applier,
		logger:          logger,
		replayTolerance: 5 * time.Second,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the consumer clock for deterministic testing.
func (c *RevocationConsumer) WithClock(clock func() time.Time) *RevocationConsumer {
	if clock != nil {
		c.now = clock
	}
	return c
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *RevocationConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *RevocationConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim processes messages from a single partition claim. Decode
// failures are logged and skipped so one malformed event cannot wedge the
// partition.
func (c *RevocationConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Warn("skip revocation event",
					zap.Error(err),
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// HandleMessage unwraps the event envelope and applies the revocation.
func (c *RevocationConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return errors.New("message is nil")
	}

	var envelope struct {
		EventID   string          `json:"event_id"`
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(msg.Value, &envelope); err != nil {
		return fmt.Errorf("decode event envelope: %w", err)
	}

	var event domain.TokenRevokedEvent
	if err := json.Unmarshal(envelope.Payload, &event); err != nil {
		return fmt.Errorf("decode token revoked event: %w", err)
	}
	if event.EventID == "" {
		event.EventID = envelope.EventID
	}

	return c.HandleEvent(ctx, event)
}

// HandleEvent applies a revocation to the local denylist. Events for tokens
// that expired before the replay tolerance window are dropped.
func (c *RevocationConsumer) HandleEvent(ctx context.Context, event domain.TokenRevokedEvent) error {
	if event.JTI == "" {
		return errors.New("revocation event missing jti")
	}

	now := c.now()
	if !event.ExpiresAt.IsZero() && c.replayTolerance > 0 {
		cutoff := now.Add(-c.replayTolerance)
		if !event.ExpiresAt.After(cutoff) {
			c.logger.Debug("skip expired revocation", zap.String("jti", event.JTI))
			return nil
		}
	}

	if err := c.applier.ApplyRemote(ctx, event); err != nil {
		return fmt.Errorf("apply revocation: %w", err)
	}

	return nil
}

// RunConsumerGroup joins the consumer group and processes token.revoked
// events until ctx is cancelled. Rebalance errors trigger a rejoin.
func RunConsumerGroup(ctx context.Context, group sarama.ConsumerGroup, topics []string, handler sarama.ConsumerGroupHandler, logger *zap.Logger) error {
	for {
		if err := group.Consume(ctx, topics, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			logger.Error("consumer group session failed", zap.Error(err))
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

var _ sarama.ConsumerGroupHandler = (*RevocationConsumer)(nil)
