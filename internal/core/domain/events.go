package domain

import "time"

// TokenRevokedEvent is broadcast when a token is blacklisted so peer nodes can
// warm their local denylist caches ahead of the shared-store read path.
type TokenRevokedEvent struct {
	EventID    string         `json:"event_id"`
	JTI        string         `json:"jti"`
	IdentityID string         `json:"identity_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	RevokedAt  time.Time      `json:"revoked_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SessionTerminatedEvent captures session lifecycle terminations.
type SessionTerminatedEvent struct {
	EventID      string         `json:"event_id"`
	SessionID    string         `json:"session_id"`
	IdentityID   string         `json:"identity_id"`
	Reason       string         `json:"reason,omitempty"`
	TerminatedAt time.Time      `json:"terminated_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// IdentityLockedEvent is emitted when the failed-attempt threshold locks an account.
type IdentityLockedEvent struct {
	EventID        string    `json:"event_id"`
	IdentityID     string    `json:"identity_id"`
	Email          string    `json:"email"`
	FailedAttempts int       `json:"failed_attempts"`
	LockedAt       time.Time `json:"locked_at"`
}

// IdentityRegisteredEvent is emitted when a new identity record is created.
type IdentityRegisteredEvent struct {
	EventID      string    `json:"event_id"`
	IdentityID   string    `json:"identity_id"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}
