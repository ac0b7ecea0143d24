package domain

import "time"

// DeviceInfo captures the request context a session or token is bound to.
type DeviceInfo struct {
	IP        string
	UserAgent string
	DeviceID  string
}

// Session represents a login session replicated through the shared store.
type Session struct {
	ID           string
	IdentityID   string
	Device       DeviceInfo
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	Metadata     map[string]string
}

// IsExpired reports whether the session has elapsed its validity window.
func (s Session) IsExpired(at time.Time) bool {
	return !s.ExpiresAt.After(at)
}

// Touch records activity and slides the expiry forward by ttl from the supplied moment.
func (s *Session) Touch(at time.Time, ttl time.Duration) {
	s.LastActivity = at
	s.ExpiresAt = at.Add(ttl)
}
