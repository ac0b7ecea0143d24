package usecase

import "errors"

// Error taxonomy returned by the auth core. Callers branch on these with
// errors.Is; transports map them onto their own status codes.
var (
	// ErrInvalidCredentials covers unknown email and wrong password alike so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a lockout is in force.
	ErrAccountLocked = errors.New("account locked")
	// ErrRateLimited is returned when a fixed-window limit is exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrMalformedToken indicates the token could not be decoded at all.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature indicates the token decoded but failed signature,
	// issuer, or audience verification.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired indicates a well-formed, correctly signed token whose
	// validity window has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenBlacklisted indicates the token was revoked before expiry.
	ErrTokenBlacklisted = errors.New("token blacklisted")
	// ErrBindingMismatch indicates the presented request context does not
	// match the context the token was bound to.
	ErrBindingMismatch = errors.New("token binding mismatch")

	// ErrSessionNotFound indicates the referenced session no longer exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNotAuthorized indicates the caller does not own the target resource.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrSigningKey indicates token minting failed because no signing key was
	// available.
	ErrSigningKey = errors.New("signing key unavailable")
	// ErrUnavailable indicates a dependency outage. Validation fails closed
	// with this error rather than guessing.
	ErrUnavailable = errors.New("dependency unavailable")
)
