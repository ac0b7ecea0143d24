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
	"github.com/arklim/auth-core/internal/infra/telemetry"
	"github.com/arklim/auth-core/internal/repository"
)

// LockoutPolicy controls the failed-attempt state machine.
type LockoutPolicy struct {
	// Threshold is the failed-attempt count at which the account locks.
	Threshold int
	// Duration is how long the lockout holds before auto-unlock.
	Duration time.Duration
}

// BindingPolicy controls which token-to-request binding drifts hard-fail
// validation. Device id drift always fails; IP and user-agent drift is logged
// unless enforced, because proxies and browser updates shift them benignly.
type BindingPolicy struct {
	EnforceIP        bool
	EnforceUserAgent bool
}

// LoginResult carries everything a successful authentication produces.
type LoginResult struct {
	Token    string
	Claims   *security.AccessClaims
	Session  *domain.Session
	Identity domain.Identity
}

// Authenticator drives the credential verification state machine and the
// token validation pipeline on top of the token engine, the session and
// revocation registries, and the rate limiter.
type Authenticator struct {
	identities  port.IdentityRepository
	sessions    *SessionRegistry
	tokens      *TokenEngine
	revocations *RevocationRegistry
	limiter     *RateLimiter
	publisher   port.EventPublisher
	logger      *zap.Logger
	metrics     *telemetry.Metrics
	lockout     LockoutPolicy
	binding     BindingPolicy
	stages      []validationStage
	// dummyHash is compared against when the email is unknown, so the miss
	// path costs the same as a real verification and timing cannot separate
	// "no such account" from "wrong password".
	dummyHash string
	// refreshGrace bounds how close to expiry a token must be before Refresh
	// accepts it. Zero disables the bound.
	refreshGrace time.Duration
	now          func() time.Time
}

// NewAuthenticator wires the authenticator. It precomputes the dummy hash
// used on unknown-email logins; construction fails only if hashing does.
func NewAuthenticator(
	identities port.IdentityRepository,
	sessions *SessionRegistry,
	tokens *TokenEngine,
	revocations *RevocationRegistry,
	limiter *RateLimiter,
	publisher port.EventPublisher,
	log *zap.Logger,
	metrics *telemetry.Metrics,
	lockout LockoutPolicy,
	binding BindingPolicy,
) (*Authenticator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if lockout.Threshold <= 0 {
		lockout.Threshold = 5
	}
	if lockout.Duration <= 0 {
		lockout.Duration = 15 * time.Minute
	}

	dummyHash, err := security.HashPassword(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	a := &Authenticator{
		identities:  identities,
		sessions:    sessions,
		tokens:      tokens,
		revocations: revocations,
		limiter:     limiter,
		publisher:   publisher,
		logger:      log,
		metrics:     metrics,
		lockout:     lockout,
		binding:     binding,
		dummyHash:   dummyHash,
		now:         time.Now,
	}
	a.stages = []validationStage{
		{"verify", a.stageVerify},
		{"revocation", a.stageRevocation},
		{"session", a.stageSession},
		{"binding", a.stageBinding},
	}

	return a, nil
}

// WithClock overrides the time source. Intended for tests.
func (a *Authenticator) WithClock(now func() time.Time) *Authenticator {
	a.now = now
	return a
}

// WithRefreshGrace restricts Refresh to tokens whose remaining validity is at
// most grace.
func (a *Authenticator) WithRefreshGrace(grace time.Duration) *Authenticator {
	a.refreshGrace = grace
	return a
}

// Login verifies credentials and, on success, creates a session and mints a
// token bound to it. Unknown email and wrong password return the same
// ErrInvalidCredentials; a locked account answers ErrAccountLocked even to
// the correct password.
func (a *Authenticator) Login(ctx context.Context, email, password string, device domain.DeviceInfo) (*LoginResult, error) {
	email = domain.NormalizeEmail(email)

	if a.limiter != nil {
		// Counted per source address and target account, so one address
		// cannot spray across the limit and one account cannot be starved
		// from everywhere at once.
		limitKey := email
		if device.IP != "" {
			limitKey = device.IP + ":" + email
		}
		if err := a.limiter.Check(ctx, OpLogin, limitKey); err != nil {
			return nil, err
		}
	}

	identity, err := a.identities.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn the same hashing cost as a real verification.
			_, _ = security.VerifyPassword(password, a.dummyHash)
			a.recordAttempt(ctx, nil, email, false, "unknown_email", device)
			a.countLogin("failure")
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: lookup identity: %v", ErrUnavailable, err)
	}

	now := a.now()

	if identity.LockedAt != nil {
		if identity.IsLocked(now, a.lockout.Duration) {
			a.recordAttempt(ctx, &identity.ID, email, false, "locked", device)
			a.countLogin("locked")
			return nil, ErrAccountLocked
		}
		// Lockout elapsed; clear it and start a fresh failure run.
		if err := a.identities.ClearLock(ctx, identity.ID); err != nil {
			return nil, fmt.Errorf("%w: clear lock: %v", ErrUnavailable, err)
		}
		identity.LockedAt = nil
		identity.FailedAttempts = 0
	}

	ok, err := security.VerifyPassword(password, identity.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, a.handleFailedPassword(ctx, identity, email, device)
	}

	if identity.FailedAttempts > 0 {
		if err := a.identities.ResetFailedAttempts(ctx, identity.ID); err != nil {
			return nil, fmt.Errorf("%w: reset failed attempts: %v", ErrUnavailable, err)
		}
	}
	if err := a.identities.UpdateLastLogin(ctx, identity.ID, now); err != nil {
		a.logger.Warn("update last login failed", zap.Error(err), zap.String("identity_id", identity.ID))
	}

	session, err := a.sessions.Create(ctx, identity.ID, device)
	if err != nil {
		return nil, err
	}

	token, claims, err := a.tokens.Mint(*identity, *session)
	if err != nil {
		// Roll back the half-issued login so no session outlives a token
		// that was never handed out.
		if terr := a.sessions.Terminate(ctx, identity.ID, session.ID, "mint_failed"); terr != nil {
			a.logger.Error("rollback session after mint failure", zap.Error(terr), zap.String("session_id", session.ID))
		}
		return nil, err
	}

	a.recordAttempt(ctx, &identity.ID, email, true, "success", device)
	a.countLogin("success")
	if a.metrics != nil {
		a.metrics.TokensIssued.Inc()
	}

	a.logger.Info("login succeeded",
		zap.String("identity_id", identity.ID),
		zap.String("email", logger.MaskEmail(email)),
		zap.String("session_id", session.ID),
		zap.String("ip", logger.MaskIP(device.IP)),
	)

	return &LoginResult{
		Token:    token,
		Claims:   claims,
		Session:  session,
		Identity: identity.Sanitized(),
	}, nil
}

func (a *Authenticator) handleFailedPassword(ctx context.Context, identity *domain.Identity, email string, device domain.DeviceInfo) error {
	attempts, err := a.identities.AtomicIncrementFailedAttempts(ctx, identity.ID)
	if err != nil {
		return fmt.Errorf("%w: increment failed attempts: %v", ErrUnavailable, err)
	}

	a.recordAttempt(ctx, &identity.ID, email, false, "bad_password", device)
	a.countLogin("failure")

	if attempts >= a.lockout.Threshold {
		now := a.now()
		if err := a.identities.SetLock(ctx, identity.ID, now); err != nil {
			return fmt.Errorf("%w: set lock: %v", ErrUnavailable, err)
		}
		if a.metrics != nil {
			a.metrics.AccountLockouts.Inc()
		}
		a.logger.Warn("account locked",
			zap.String("identity_id", identity.ID),
			zap.String("email", logger.MaskEmail(email)),
			zap.Int("failed_attempts", attempts),
		)
		if a.publisher != nil {
			event := domain.IdentityLockedEvent{
				EventID:        uuid.NewString(),
				IdentityID:     identity.ID,
				Email:          email,
				FailedAttempts: attempts,
				LockedAt:       now,
			}
			if perr := a.publisher.PublishIdentityLocked(ctx, event); perr != nil {
				a.logger.Warn("broadcast identity lock failed", zap.Error(perr))
			}
		}
	}

	// The locking attempt itself still answers ErrInvalidCredentials; only
	// the next attempt sees the lockout.
	return ErrInvalidCredentials
}

type validationStage struct {
	name string
	run  func(ctx context.Context, state *validationState) error
}

type validationState struct {
	token   string
	device  domain.DeviceInfo
	claims  *security.AccessClaims
	session *domain.Session
}

// Validate runs the ordered validation pipeline: decode and verify the
// token, check the distributed blacklist, confirm the bound session is
// alive (sliding its expiry), then compare request bindings. The pipeline
// stops at the first failing stage.
func (a *Authenticator) Validate(ctx context.Context, token string, device domain.DeviceInfo) (*security.AccessClaims, error) {
	start := a.now()
	state := &validationState{token: token, device: device}

	for _, stage := range a.stages {
		if err := stage.run(ctx, state); err != nil {
			a.countValidation(stage.name + "_failed")
			return nil, err
		}
	}

	a.countValidation("ok")
	if a.metrics != nil {
		a.metrics.ValidationDuration.Observe(a.now().Sub(start).Seconds())
	}

	return state.claims, nil
}

func (a *Authenticator) stageVerify(_ context.Context, state *validationState) error {
	claims, err := a.tokens.Verify(state.token)
	if err != nil {
		return err
	}
	state.claims = claims
	return nil
}

func (a *Authenticator) stageRevocation(ctx context.Context, state *validationState) error {
	var expiry time.Time
	if state.claims.ExpiresAt != nil {
		expiry = state.claims.ExpiresAt.Time
	}

	revoked, reason, err := a.revocations.IsBlacklisted(ctx, state.claims.ID, expiry)
	if err != nil {
		return err
	}
	if revoked {
		return fmt.Errorf("%w: %s", ErrTokenBlacklisted, reason)
	}
	return nil
}

func (a *Authenticator) stageSession(ctx context.Context, state *validationState) error {
	if state.claims.SessionID == "" {
		return ErrSessionNotFound
	}

	session, err := a.sessions.Touch(ctx, state.claims.SessionID)
	if err != nil {
		return err
	}
	state.session = session
	return nil
}

func (a *Authenticator) stageBinding(_ context.Context, state *validationState) error {
	if state.claims.BindDevice != "" && state.claims.BindDevice != state.device.DeviceID {
		return fmt.Errorf("%w: device id", ErrBindingMismatch)
	}
	if state.claims.BindIP != "" && state.claims.BindIP != state.device.IP {
		if a.binding.EnforceIP {
			return fmt.Errorf("%w: ip address", ErrBindingMismatch)
		}
		a.logger.Warn("token presented from a different address",
			zap.String("jti", state.claims.ID),
			zap.String("ip", logger.MaskIP(state.device.IP)),
		)
	}
	if state.claims.BindUAHash != "" &&
		state.claims.BindUAHash != security.Fingerprint(state.device.UserAgent) {
		if a.binding.EnforceUserAgent {
			return fmt.Errorf("%w: user agent", ErrBindingMismatch)
		}
		a.logger.Warn("token presented from a different user agent",
			zap.String("jti", state.claims.ID),
		)
	}
	return nil
}

// Refresh exchanges a still-valid token for a fresh one on the same session,
// carrying a new jti and the identity's current roles. The token must be
// inside the refresh grace window before its expiry. The old token is left
// alone: it may still be in flight on another device and dies on its own
// expiry, explicit logout remains the way to kill it early.
func (a *Authenticator) Refresh(ctx context.Context, token string, device domain.DeviceInfo) (*LoginResult, error) {
	claims, err := a.Validate(ctx, token, device)
	if err != nil {
		return nil, err
	}

	if a.refreshGrace > 0 && claims.ExpiresAt != nil {
		if remaining := claims.ExpiresAt.Time.Sub(a.now()); remaining > a.refreshGrace {
			return nil, fmt.Errorf("%w: token not yet inside the refresh window", ErrNotAuthorized)
		}
	}

	if a.limiter != nil {
		if err := a.limiter.Check(ctx, OpRefresh, claims.Subject); err != nil {
			return nil, err
		}
	}

	identity, err := a.identities.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: lookup identity: %v", ErrUnavailable, err)
	}
	if identity.IsLocked(a.now(), a.lockout.Duration) {
		return nil, ErrAccountLocked
	}

	session, err := a.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}

	newToken, newClaims, err := a.tokens.Mint(*identity, *session)
	if err != nil {
		return nil, err
	}

	if a.metrics != nil {
		a.metrics.TokensIssued.Inc()
	}

	return &LoginResult{
		Token:    newToken,
		Claims:   newClaims,
		Session:  session,
		Identity: identity.Sanitized(),
	}, nil
}

// Logout revokes the presented token and terminates its session. Repeating a
// logout succeeds: the blacklist write and the session delete are both
// idempotent. An expired token still logs out its session.
func (a *Authenticator) Logout(ctx context.Context, token string) error {
	claims, err := a.tokens.ExtractForRevocation(token)
	if err != nil {
		return err
	}

	if err := a.revocations.Blacklist(ctx, claims, "logout"); err != nil {
		return err
	}

	if claims.SessionID != "" {
		if err := a.sessions.Terminate(ctx, claims.Subject, claims.SessionID, "logout"); err != nil {
			return err
		}
	}

	return nil
}

// RevokeAll terminates every session of the identity and blacklists any of
// its tokens the caller still holds. Tokens not presented here die with
// their sessions: the session stage rejects them on next validation.
func (a *Authenticator) RevokeAll(ctx context.Context, identityID string, knownTokens ...string) (int, error) {
	terminated, err := a.sessions.TerminateAllForIdentity(ctx, identityID, "revoke_all")
	if err != nil {
		return 0, err
	}

	for _, token := range knownTokens {
		claims, err := a.tokens.ExtractForRevocation(token)
		if err != nil {
			a.logger.Warn("skip unparseable token in revoke all", zap.Error(err))
			continue
		}
		if claims.Subject != identityID {
			continue
		}
		if err := a.revocations.Blacklist(ctx, claims, "revoke_all"); err != nil {
			return terminated, err
		}
	}

	return terminated, nil
}

// ListSessions returns the identity's live sessions.
func (a *Authenticator) ListSessions(ctx context.Context, identityID string) ([]domain.Session, error) {
	return a.sessions.List(ctx, identityID)
}

// TerminateSession removes one session on behalf of requestorID. Callers may
// only terminate their own sessions; a mismatch answers ErrNotAuthorized
// without revealing whether the session exists.
func (a *Authenticator) TerminateSession(ctx context.Context, requestorID, sessionID string) error {
	session, err := a.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}

	if session.IdentityID != requestorID {
		return ErrNotAuthorized
	}

	return a.sessions.Terminate(ctx, session.IdentityID, sessionID, "terminated")
}

func (a *Authenticator) recordAttempt(ctx context.Context, identityID *string, email string, succeeded bool, kind string, device domain.DeviceInfo) {
	attempt := domain.LoginAttempt{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		Email:      email,
		Succeeded:  succeeded,
		Kind:       kind,
		CreatedAt:  a.now(),
	}
	if device.IP != "" {
		attempt.IP = &device.IP
	}
	if device.UserAgent != "" {
		attempt.UserAgent = &device.UserAgent
	}

	if err := a.identities.RecordLoginAttempt(ctx, attempt); err != nil {
		a.logger.Warn("record login attempt failed", zap.Error(err))
	}
}

func (a *Authenticator) countLogin(outcome string) {
	if a.metrics != nil {
		a.metrics.LoginAttempts.WithLabelValues(outcome).Inc()
	}
}

func (a *Authenticator) countValidation(result string) {
	if a.metrics != nil {
		a.metrics.ValidationResults.WithLabelValues(result).Inc()
	}
}
