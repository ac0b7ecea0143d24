package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/core/port"
	"github.com/arklim/auth-core/internal/infra/logger"
	"github.com/arklim/auth-core/internal/infra/security"
	"github.com/arklim/auth-core/internal/repository"
)

// RegistrationService creates identity records with policy-checked passwords.
type RegistrationService struct {
	identities port.IdentityRepository
	policy     *security.PasswordPolicy
	limiter    *RateLimiter
	publisher  port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewRegistrationService wires the service.
func NewRegistrationService(identities port.IdentityRepository, policy *security.PasswordPolicy, limiter *RateLimiter, publisher port.EventPublisher, log *zap.Logger) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RegistrationService{
		identities: identities,
		policy:     policy,
		limiter:    limiter,
		publisher:  publisher,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *RegistrationService) WithClock(now func() time.Time) *RegistrationService {
	s.now = now
	return s
}

// Register validates the password against the strength policy, hashes it,
// and creates the identity. The email is normalized before storage so logins
// match regardless of casing.
func (s *RegistrationService) Register(ctx context.Context, email, password string, roles []string) (*domain.Identity, error) {
	email = domain.NormalizeEmail(email)

	if s.limiter != nil {
		if err := s.limiter.Check(ctx, OpRegister, email); err != nil {
			return nil, err
		}
	}

	if s.policy != nil {
		if err := s.policy.Validate(password, email); err != nil {
			return nil, err
		}
	}

	if _, err := s.identities.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: lookup identity: %v", ErrUnavailable, err)
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := domain.Identity{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    s.now(),
	}

	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, fmt.Errorf("%w: create identity: %v", ErrUnavailable, err)
	}

	s.logger.Info("identity registered",
		zap.String("identity_id", identity.ID),
		zap.String("email", logger.MaskEmail(email)),
	)

	if s.publisher != nil {
		event := domain.IdentityRegisteredEvent{
			EventID:      uuid.NewString(),
			IdentityID:   identity.ID,
			Email:        email,
			RegisteredAt: identity.CreatedAt,
		}
		if err := s.publisher.PublishIdentityRegistered(ctx, event); err != nil {
			s.logger.Warn("broadcast identity registration failed", zap.Error(err))
		}
	}

	return &identity, nil
}
