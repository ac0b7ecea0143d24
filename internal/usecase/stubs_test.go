package usecase

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/arklim/auth-core/internal/core/domain"
	"github.com/arklim/auth-core/internal/infra/security"
	"github.com/arklim/auth-core/internal/repository"
)

type stubIdentityRepo struct {
	mu       sync.Mutex
	byID     map[string]*domain.Identity
	attempts []domain.LoginAttempt
	failAll  bool
}

func newStubIdentityRepo() *stubIdentityRepo {
	return &stubIdentityRepo{byID: make(map[string]*domain.Identity)}
}

func (r *stubIdentityRepo) Create(_ context.Context, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return errors.New("store down")
	}
	copied := identity
	r.byID[identity.ID] = &copied
	return nil
}

func (r *stubIdentityRepo) GetByID(_ context.Context, id string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errors.New("store down")
	}
	identity, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *identity
	return &copied, nil
}

func (r *stubIdentityRepo) GetByEmail(_ context.Context, email string) (*domain.Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAll {
		return nil, errors.New("store down")
	}
	for _, identity := range r.byID {
		if identity.Email == domain.NormalizeEmail(email) {
			copied := *identity
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubIdentityRepo) AtomicIncrementFailedAttempts(_ context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byID[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	identity.FailedAttempts++
	return identity.FailedAttempts, nil
}

func (r *stubIdentityRepo) ResetFailedAttempts(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.FailedAttempts = 0
	return nil
}

func (r *stubIdentityRepo) SetLock(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	lockedAt := at
	identity.LockedAt = &lockedAt
	return nil
}

func (r *stubIdentityRepo) ClearLock(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.LockedAt = nil
	identity.FailedAttempts = 0
	return nil
}

func (r *stubIdentityRepo) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	lastLogin := at
	identity.LastLogin = &lastLogin
	return nil
}

func (r *stubIdentityRepo) RecordLoginAttempt(_ context.Context, attempt domain.LoginAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt)
	return nil
}

func (r *stubIdentityRepo) get(t *testing.T, id string) domain.Identity {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.byID[id]
	if !ok {
		t.Fatalf("identity %s not found in stub", id)
	}
	return *identity
}

type storedSession struct {
	session  domain.Session
	deadline time.Time
}

type stubSessionStore struct {
	mu       sync.Mutex
	sessions map[string]storedSession
	now      func() time.Time
	failAll  bool
}

func newStubSessionStore(now func() time.Time) *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]storedSession), now: now}
}

func (s *stubSessionStore) Save(_ context.Context, session domain.Session, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store down")
	}
	s.sessions[session.ID] = storedSession{session: session, deadline: s.now().Add(ttl)}
	return nil
}

func (s *stubSessionStore) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errors.New("store down")
	}
	stored, ok := s.sessions[sessionID]
	if !ok || !stored.deadline.After(s.now()) {
		return nil, repository.ErrNotFound
	}
	copied := stored.session
	return &copied, nil
}

func (s *stubSessionStore) Delete(_ context.Context, _, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return errors.New("store down")
	}
	delete(s.sessions, sessionID)
	return nil
}

func (s *stubSessionStore) live(identityID string) []domain.Session {
	now := s.now()
	var sessions []domain.Session
	for _, stored := range s.sessions {
		if stored.session.IdentityID == identityID && stored.deadline.After(now) {
			sessions = append(sessions, stored.session)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
	return sessions
}

func (s *stubSessionStore) ListByIdentity(_ context.Context, identityID string) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return nil, errors.New("store down")
	}
	return s.live(identityID), nil
}

func (s *stubSessionStore) SweepExpired(_ context.Context, reference time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return 0, errors.New("store down")
	}
	removed := 0
	for id, stored := range s.sessions {
		if !stored.deadline.After(reference) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed, nil
}

type blacklistRecord struct {
	reason string
	expiry time.Time
}

type stubBlacklistStore struct {
	mu      sync.Mutex
	entries map[string]blacklistRecord
	now     func() time.Time
	failAll bool
}

func newStubBlacklistStore(now func() time.Time) *stubBlacklistStore {
	return &stubBlacklistStore{entries: make(map[string]blacklistRecord), now: now}
}

func (s *stubBlacklistStore) MarkRevoked(_ context.Context, jti, reason string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return false, errors.New("store down")
	}
	if _, exists := s.entries[jti]; exists {
		return false, nil
	}
	s.entries[jti] = blacklistRecord{reason: reason, expiry: s.now().Add(ttl)}
	return true, nil
}

func (s *stubBlacklistStore) IsRevoked(_ context.Context, jti string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll {
		return false, "", errors.New("store down")
	}
	record, ok := s.entries[jti]
	if !ok || !record.expiry.After(s.now()) {
		return false, "", nil
	}
	return true, record.reason, nil
}

type counterRecord struct {
	count    int64
	deadline time.Time
}

type stubCache struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]counterRecord
	now      func() time.Time
	failAll  bool
}

func newStubCache(now func() time.Time) *stubCache {
	return &stubCache{
		values:   make(map[string]string),
		counters: make(map[string]counterRecord),
		now:      now,
	}
}

func (c *stubCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return "", errors.New("store down")
	}
	value, ok := c.values[key]
	if !ok {
		return "", repository.ErrNotFound
	}
	return value, nil
}

func (c *stubCache) SetWithTTL(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return errors.New("store down")
	}
	c.values[key] = value
	return nil
}

func (c *stubCache) SetIfAbsent(_ context.Context, key, value string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return false, errors.New("store down")
	}
	if _, exists := c.values[key]; exists {
		return false, nil
	}
	c.values[key] = value
	return true, nil
}

func (c *stubCache) IncrementWithTTLOnCreate(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll {
		return 0, errors.New("store down")
	}
	now := c.now()
	record, ok := c.counters[key]
	if !ok || !record.deadline.After(now) {
		record = counterRecord{count: 0, deadline: now.Add(ttl)}
	}
	record.count++
	c.counters[key] = record
	return record.count, nil
}

func (c *stubCache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.counters[key]
	if !ok {
		return 0, nil
	}
	remaining := record.deadline.Sub(c.now())
	if remaining < 0 {
		return 0, nil
	}
	return remaining, nil
}

func (c *stubCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	delete(c.counters, key)
	return nil
}

type stubPublisher struct {
	mu         sync.Mutex
	revoked    []domain.TokenRevokedEvent
	terminated []domain.SessionTerminatedEvent
	locked     []domain.IdentityLockedEvent
	registered []domain.IdentityRegisteredEvent
}

func (p *stubPublisher) PublishTokenRevoked(_ context.Context, event domain.TokenRevokedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.revoked = append(p.revoked, event)
	return nil
}

func (p *stubPublisher) PublishSessionTerminated(_ context.Context, event domain.SessionTerminatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.terminated = append(p.terminated, event)
	return nil
}

func (p *stubPublisher) PublishIdentityLocked(_ context.Context, event domain.IdentityLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = append(p.locked, event)
	return nil
}

func (p *stubPublisher) PublishIdentityRegistered(_ context.Context, event domain.IdentityRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return nil
}

// fakeClock is a mutable time source shared by every component under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTokenEngine(t *testing.T, clock *fakeClock, ttl time.Duration) *TokenEngine {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	provider := security.NewStaticKeyProvider("test-key", key)
	manager := security.NewJWTManager(provider, "auth-core", "auth-core-clients").WithClock(clock.Now)
	return NewTokenEngine(manager, ttl).WithClock(clock.Now)
}
