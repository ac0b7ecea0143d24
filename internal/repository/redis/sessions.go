package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/core/port"
	"github.com/arklim/auth-core/internal/repository"
)

// SessionStore keeps sessions in Redis as JSON values with a TTL, plus a
// per-identity sorted set scored by creation time. The sorted set drives
// oldest-first eviction and listing; session expiry itself is enforced by the
// key TTL, with the sweeper reconciling index entries whose session key has
// already expired out.
type SessionStore struct {
	client *redis.Client
	prefix string
}

// NewSessionStore constructs a store using the provided Redis client.
func NewSessionStore(client *redis.Client, prefix string) *SessionStore {
	if prefix == "" {
		prefix = "authcore"
	}
	return &SessionStore{client: client, prefix: prefix}
}

type sessionRecord struct {
	ID           string            `json:"id"`
	IdentityID   string            `json:"identity_id"`
	IP           string            `json:"ip,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	DeviceID     string            `json:"device_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LastActivity time.Time         `json:"last_activity"`
	ExpiresAt    time.Time         `json:"expires_at"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func (s *SessionStore) sessionKey(sessionID string) string {
	return fmt.Sprintf("%s:sess:%s", s.prefix, sessionID)
}

func (s *SessionStore) indexKey(identityID string) string {
	return fmt.Sprintf("%s:sess:idx:%s", s.prefix, identityID)
}

func (s *SessionStore) indexPattern() string {
	return fmt.Sprintf("%s:sess:idx:*", s.prefix)
}

// Save persists the session and registers it in the identity index.
func (s *SessionStore) Save(ctx context.Context, session domain.Session, ttl time.Duration) error {
	if session.ID == "" || session.IdentityID == "" {
		return errors.New("session id and identity id must not be empty")
	}
	if ttl <= 0 {
		return errors.New("session ttl must be positive")
	}

	record := sessionRecord{
		ID:           session.ID,
		IdentityID:   session.IdentityID,
		IP:           session.Device.IP,
		UserAgent:    session.Device.UserAgent,
		DeviceID:     session.Device.DeviceID,
		CreatedAt:    session.CreatedAt,
		LastActivity: session.LastActivity,
		ExpiresAt:    session.ExpiresAt,
		Metadata:     session.Metadata,
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), payload, ttl)
	pipe.ZAdd(ctx, s.indexKey(session.IdentityID), redis.Z{
		Score:  float64(session.CreatedAt.UnixNano()),
		Member: session.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}

	return nil
}

// Get returns the session or repository.ErrNotFound when absent or expired.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	payload, err := s.client.Get(ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	session := domain.Session{
		ID:         record.ID,
		IdentityID: record.IdentityID,
		Device: domain.DeviceInfo{
			IP:        record.IP,
			UserAgent: record.UserAgent,
			DeviceID:  record.DeviceID,
		},
		CreatedAt:    record.CreatedAt,
		LastActivity: record.LastActivity,
		ExpiresAt:    record.ExpiresAt,
		Metadata:     record.Metadata,
	}

	return &session, nil
}

// Delete removes the session and its index entry. Absent sessions are a
// no-op so repeated termination stays idempotent.
func (s *SessionStore) Delete(ctx context.Context, identityID, sessionID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(sessionID))
	pipe.ZRem(ctx, s.indexKey(identityID), sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// ListByIdentity returns the identity's live sessions in creation order.
// Index entries whose session key has expired are skipped.
func (s *SessionStore) ListByIdentity(ctx context.Context, identityID string) ([]domain.Session, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(identityID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange sessions: %w", err)
	}

	sessions := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return nil, err
		}
		sessions = append(sessions, *session)
	}

	return sessions, nil
}

// SweepExpired walks the identity indexes and removes members whose session
// key no longer exists. Returns how many index entries were dropped.
func (s *SessionStore) SweepExpired(ctx context.Context, _ time.Time) (int, error) {
	removed := 0

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.indexPattern(), 100).Result()
		if err != nil {
			return removed, fmt.Errorf("redis scan session indexes: %w", err)
		}

		for _, indexKey := range keys {
			ids, err := s.client.ZRange(ctx, indexKey, 0, -1).Result()
			if err != nil {
				return removed, fmt.Errorf("redis zrange index %s: %w", indexKey, err)
			}

			for _, id := range ids {
				exists, err := s.client.Exists(ctx, s.sessionKey(id)).Result()
				if err != nil {
					return removed, fmt.Errorf("redis exists session: %w", err)
				}
				if exists == 0 {
					if err := s.client.ZRem(ctx, indexKey, id).Err(); err != nil {
						return removed, fmt.Errorf("redis zrem stale session: %w", err)
					}
					removed++
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	return removed, nil
}

var _ port.SessionStore = (*SessionStore)(nil)
