package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/infra/security"
)

// TokenEngine mints and verifies access tokens. It owns the claim layout:
// identity in sub, session in sid, and the request-binding fields derived
// from the device the token was issued to.
type TokenEngine struct {
	manager  *security.JWTManager
	tokenTTL time.Duration
	now      func() time.Time
}

// NewTokenEngine constructs an engine issuing tokens valid for tokenTTL.
func NewTokenEngine(manager *security.JWTManager, tokenTTL time.Duration) *TokenEngine {
	return &TokenEngine{
		manager:  manager,
		tokenTTL: tokenTTL,
		now:      time.Now,
	}
}

// WithClock overrides the time source. The underlying JWT manager must use
// the same clock for exp checks to line up in tests.
func (e *TokenEngine) WithClock(now func() time.Time) *TokenEngine {
	e.now = now
	return e
}

// TokenTTL reports the configured token lifetime.
func (e *TokenEngine) TokenTTL() time.Duration {
	return e.tokenTTL
}

// Mint issues a token for the identity bound to the session and its device
// context. Returns the compact token and the claims it carries.
func (e *TokenEngine) Mint(identity domain.Identity, session domain.Session) (string, *security.AccessClaims, error) {
	claims := security.AccessClaims{
		Roles:       identity.Roles,
		Permissions: identity.Permissions,
		SessionID:   session.ID,
		BindIP:      session.Device.IP,
		BindDevice:  session.Device.DeviceID,
	}
	if session.Device.UserAgent != "" {
		claims.BindUAHash = security.Fingerprint(session.Device.UserAgent)
	}
	claims.Subject = identity.ID
	claims.ExpiresAt = jwt.NewNumericDate(e.now().Add(e.tokenTTL))

	token, jti, err := e.manager.Sign(claims)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	claims.ID = jti

	return token, &claims, nil
}

// Verify checks structure, signature, and time claims, translating the jwt
// package's failures into the core taxonomy. Structural, signature, and
// expiry failures stay distinguishable for callers and for audit logs.
func (e *TokenEngine) Verify(tokenString string) (*security.AccessClaims, error) {
	claims, err := e.manager.Parse(tokenString)
	if err != nil {
		return nil, translateJWTError(err)
	}
	return claims, nil
}

// ExtractForRevocation decodes a token submitted for logout or revocation.
// Signature and claim checks still apply, but an expired token is accepted:
// revoking it must stay idempotent rather than erroring.
func (e *TokenEngine) ExtractForRevocation(tokenString string) (*security.AccessClaims, error) {
	claims, err := e.manager.ParseExpired(tokenString)
	if err != nil {
		return nil, translateJWTError(err)
	}
	return claims, nil
}

func translateJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
}
