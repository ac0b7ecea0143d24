package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/core/port"
	"github.com/arklim/auth-core/internal/infra/telemetry"
	"github.com/arklim/auth-core/internal/repository"
)

// SessionRegistry manages login sessions in the shared store: creation under
// a per-identity cap, sliding expiry on activity, termination, and a
// background sweep that clears index entries left behind by expiry.
type SessionRegistry struct {
	store      port.SessionStore
	publisher  port.EventPublisher
	logger     *zap.Logger
	metrics    *telemetry.Metrics
	sessionTTL time.Duration
	maxPerUser int
	now        func() time.Time
	sweeping   atomic.Bool
}

// NewSessionRegistry wires the registry. maxPerUser caps concurrent sessions
// per identity; zero or negative disables the cap.
func NewSessionRegistry(store port.SessionStore, publisher port.EventPublisher, logger *zap.Logger, metrics *telemetry.Metrics, sessionTTL time.Duration, maxPerUser int) *SessionRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		store:      store,
		publisher:  publisher,
		logger:     logger,
		metrics:    metrics,
		sessionTTL: sessionTTL,
		maxPerUser: maxPerUser,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *SessionRegistry) WithClock(now func() time.Time) *SessionRegistry {
	s.now = now
	return s
}

// Create registers a new session for the identity. When the identity is at
// its session cap, the oldest sessions by creation time are evicted first so
// the newest login always wins.
func (s *SessionRegistry) Create(ctx context.Context, identityID string, device domain.DeviceInfo) (*domain.Session, error) {
	now := s.now()

	if s.maxPerUser > 0 {
		existing, err := s.store.ListByIdentity(ctx, identityID)
		if err != nil {
			return nil, fmt.Errorf("%w: list sessions: %v", ErrUnavailable, err)
		}

		// Victims come from the live list, not the raw index: the index can
		// still hold entries for sessions whose keys already expired, and
		// evicting those would free nothing.
		if overflow := len(existing) - s.maxPerUser + 1; overflow > 0 {
			for _, victim := range existing[:overflow] {
				if err := s.Terminate(ctx, identityID, victim.ID, "evicted"); err != nil {
					return nil, err
				}
				if s.metrics != nil {
					s.metrics.SessionsEvicted.Inc()
				}
			}
		}
	}

	session := domain.Session{
		ID:           uuid.NewString(),
		IdentityID:   identityID,
		Device:       device,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.sessionTTL),
	}

	if err := s.store.Save(ctx, session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("%w: save session: %v", ErrUnavailable, err)
	}

	if s.metrics != nil {
		s.metrics.SessionsActive.Inc()
	}

	return &session, nil
}

// Get returns the session or ErrSessionNotFound once it has expired or been
// terminated.
func (s *SessionRegistry) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: get session: %v", ErrUnavailable, err)
	}

	if session.IsExpired(s.now()) {
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// Touch records activity on a live session, sliding its expiry forward by the
// session TTL. An expired or terminated session cannot be resurrected: the
// lookup fails first.
func (s *SessionRegistry) Touch(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	session.Touch(s.now(), s.sessionTTL)

	if err := s.store.Save(ctx, *session, s.sessionTTL); err != nil {
		return nil, fmt.Errorf("%w: save touched session: %v", ErrUnavailable, err)
	}

	return session, nil
}

// Terminate removes the session. Terminating an absent session succeeds so
// logout stays idempotent.
func (s *SessionRegistry) Terminate(ctx context.Context, identityID, sessionID, reason string) error {
	existed := true
	if _, err := s.store.Get(ctx, sessionID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: get session: %v", ErrUnavailable, err)
		}
		existed = false
	}

	if err := s.store.Delete(ctx, identityID, sessionID); err != nil {
		return fmt.Errorf("%w: delete session: %v", ErrUnavailable, err)
	}

	if !existed {
		return nil
	}

	if s.metrics != nil {
		s.metrics.SessionsActive.Dec()
	}

	if s.publisher != nil {
		event := domain.SessionTerminatedEvent{
			EventID:      uuid.NewString(),
			SessionID:    sessionID,
			IdentityID:   identityID,
			Reason:       reason,
			TerminatedAt: s.now(),
		}
		if err := s.publisher.PublishSessionTerminated(ctx, event); err != nil {
			s.logger.Warn("broadcast session termination failed",
				zap.Error(err),
				zap.String("session_id", sessionID),
			)
		}
	}

	return nil
}

// TerminateAllForIdentity removes every session of the identity and returns
// how many were terminated.
func (s *SessionRegistry) TerminateAllForIdentity(ctx context.Context, identityID, reason string) (int, error) {
	sessions, err := s.store.ListByIdentity(ctx, identityID)
	if err != nil {
		return 0, fmt.Errorf("%w: list sessions: %v", ErrUnavailable, err)
	}

	for _, session := range sessions {
		if err := s.Terminate(ctx, identityID, session.ID, reason); err != nil {
			return 0, err
		}
	}

	return len(sessions), nil
}

// List returns the identity's live sessions in creation order.
func (s *SessionRegistry) List(ctx context.Context, identityID string) ([]domain.Session, error) {
	sessions, err := s.store.ListByIdentity(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: list sessions: %v", ErrUnavailable, err)
	}
	return sessions, nil
}

// Sweep runs one reconciliation pass over the store, dropping index entries
// for sessions that expired. Concurrent sweeps are skipped, not queued.
func (s *SessionRegistry) Sweep(ctx context.Context) (int, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return 0, nil
	}
	defer s.sweeping.Store(false)

	removed, err := s.store.SweepExpired(ctx, s.now())
	if err != nil {
		return removed, fmt.Errorf("sweep sessions: %w", err)
	}

	if removed > 0 {
		if s.metrics != nil {
			s.metrics.SessionsSwept.Add(float64(removed))
		}
		s.logger.Info("swept expired sessions", zap.Int("removed", removed))
	}

	return removed, nil
}

// RunSweeper sweeps on the given interval until ctx is cancelled.
func (s *SessionRegistry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warn("session sweep failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}
