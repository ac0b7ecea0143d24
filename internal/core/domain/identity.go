package domain

import (
	"strings"
	"time"
)

// Identity mirrors the persisted representation in the identities table.
type Identity struct {
	ID             string
	Email          string
	PasswordHash   string
	Roles          []string
	Permissions    []string
	FailedAttempts int
	LockedAt       *time.Time
	LastLogin      *time.Time
	EmailVerified  bool
	CreatedAt      time.Time
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsLocked reports whether the lockout is still in force at the supplied moment.
func (i Identity) IsLocked(at time.Time, lockoutDuration time.Duration) bool {
	if i.LockedAt == nil {
		return false
	}
	return at.Before(i.LockedAt.Add(lockoutDuration))
}

// Sanitized returns a copy of the identity safe to hand outside the core.
func (i Identity) Sanitized() Identity {
	copied := i
	copied.PasswordHash = ""
	return copied
}

// LoginAttempt records authentication outcomes for audit and throttling analysis.
type LoginAttempt struct {
	ID         string
	IdentityID *string
	Email      string
	Succeeded  bool
	Kind       string
	IP         *string
	UserAgent  *string
	CreatedAt  time.Time
}
