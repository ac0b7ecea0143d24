package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims carries the identity, session, and request-binding data minted
// into every access token.
type AccessClaims struct {
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"perms,omitempty"`
	SessionID   string   `json:"sid,omitempty"`
	BindIP      string   `json:"bip,omitempty"`
	BindUAHash  string   `json:"bua,omitempty"`
	BindDevice  string   `json:"bdid,omitempty"`
	jwt.RegisteredClaims
}

// SigningKIDer is implemented by key providers that expose the kid of their
// signing key so it can be stamped into the token header.
type SigningKIDer interface {
	SigningKID() string
}

// JWTManager signs and verifies RS256 access tokens.
type JWTManager struct {
	provider KeyProvider
	issuer   string
	audience string
	now      func() time.Time
}

// NewJWTManager builds a manager that signs with the provider's key and
// validates issuer and audience on every parse.
func NewJWTManager(provider KeyProvider, issuer, audience string) *JWTManager {
	return &JWTManager{
		provider: provider,
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (m *JWTManager) WithClock(now func() time.Time) *JWTManager {
	m.now = now
	return m
}

// Sign mints a token from the supplied claims, filling jti, iat, nbf, iss, and
// aud. The caller sets sub, sid, exp, and the binding fields. Returns the
// compact serialization and the assigned jti.
func (m *JWTManager) Sign(claims AccessClaims) (string, string, error) {
	key, err := m.provider.GetSigningKey()
	if err != nil {
		return "", "", fmt.Errorf("get signing key: %w", err)
	}

	jti := uuid.NewString()
	now := m.now()

	claims.ID = jti
	claims.Issuer = m.issuer
	claims.Audience = jwt.ClaimStrings{m.audience}
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kidder, ok := m.provider.(SigningKIDer); ok {
		token.Header["kid"] = kidder.SigningKID()
	}

	signed, err := token.SignedString(key)
	if err != nil {
		return "", "", fmt.Errorf("sign token: %w", err)
	}

	return signed, jti, nil
}

// Parse verifies signature, algorithm, issuer, audience, and time claims, and
// returns the decoded claims. Failures surface the jwt package sentinels so
// callers can distinguish malformed, bad-signature, and expired tokens.
func (m *JWTManager) Parse(tokenString string) (*AccessClaims, error) {
	claims, err := m.parseInto(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseExpired behaves like Parse but tolerates an expired exp claim. Used to
// extract the jti and remaining metadata of tokens submitted for revocation.
func (m *JWTManager) ParseExpired(tokenString string) (*AccessClaims, error) {
	claims, err := m.parseInto(tokenString)
	if err == nil {
		return claims, nil
	}
	// The library fills the claims before validating them, so an expiry-only
	// failure still carries a usable jti. Any other failure stands.
	if errors.Is(err, jwt.ErrTokenExpired) && claims.ID != "" {
		return claims, nil
	}
	return nil, err
}

// parseInto always returns the claims struct the library decoded into, even
// when validation failed, so callers can inspect it alongside the error.
func (m *JWTManager) parseInto(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, m.verificationKey,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
		jwt.WithTimeFunc(m.now),
	)
	return claims, err
}

func (m *JWTManager) verificationKey(token *jwt.Token) (any, error) {
	kid, _ := token.Header["kid"].(string)
	key, err := m.provider.GetVerificationKey(kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", jwt.ErrTokenSignatureInvalid, err)
	}
	return key, nil
}
