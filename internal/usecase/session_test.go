package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/auth-core/internal/core/domain"
	redisrepo "github.com/arklim/auth-core/internal/repository/redis"
)

func newTestSessionRegistry(t *testing.T, clock *fakeClock, ttl time.Duration, maxPerUser int) (*SessionRegistry, *stubSessionStore, *stubPublisher) {
	t.Helper()
	store := newStubSessionStore(clock.Now)
	publisher := &stubPublisher{}
	registry := NewSessionRegistry(store, publisher, zaptest.NewLogger(t), nil, ttl, maxPerUser).WithClock(clock.Now)
	return registry, store, publisher
}

func testDevice(id string) domain.DeviceInfo {
	return domain.DeviceInfo{IP: "203.0.113.10", UserAgent: "test-agent", DeviceID: id}
}

func TestSessionRegistryCapEvictsOldestFirst(t *testing.T) {
	clock := newFakeClock()
	registry, _, publisher := newTestSessionRegistry(t, clock, time.Hour, 2)

	ctx := context.Background()

	first, err := registry.Create(ctx, "id-1", testDevice("d1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(time.Second)
	second, err := registry.Create(ctx, "id-1", testDevice("d2"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	clock.Advance(time.Second)
	third, err := registry.Create(ctx, "id-1", testDevice("d3"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	sessions, err := registry.List(ctx, "id-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions after eviction, got %d", len(sessions))
	}
	if sessions[0].ID != second.ID || sessions[1].ID != third.ID {
		t.Fatalf("expected oldest session evicted, got %s and %s", sessions[0].ID, sessions[1].ID)
	}

	if _, err := registry.Get(ctx, first.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected evicted session to be gone, got %v", err)
	}

	if len(publisher.terminated) != 1 || publisher.terminated[0].Reason != "evicted" {
		t.Fatalf("expected one eviction event, got %+v", publisher.terminated)
	}
}

// The per-identity index can hold entries for sessions whose keys already
// expired. Eviction must pick live victims, or the cap is exceeded: evicting
// a stale entry frees nothing.
func TestSessionRegistryCapHoldsWithStaleIndexEntries(t *testing.T) {
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := redisrepo.NewSessionStore(client, "authcore")
	registry := NewSessionRegistry(store, &stubPublisher{}, zaptest.NewLogger(t), nil, time.Minute, 2)

	ctx := context.Background()

	if _, err := registry.Create(ctx, "id-1", testDevice("d1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// The first session's key expires out of redis; its index entry stays.
	server.FastForward(2 * time.Minute)

	for _, device := range []string{"d2", "d3", "d4"} {
		if _, err := registry.Create(ctx, "id-1", testDevice(device)); err != nil {
			t.Fatalf("Create %s: %v", device, err)
		}
		sessions, err := registry.List(ctx, "id-1")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(sessions) > 2 {
			t.Fatalf("cap exceeded: %d live sessions", len(sessions))
		}
	}

	sessions, err := registry.List(ctx, "id-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 live sessions, got %d", len(sessions))
	}
	if sessions[0].Device.DeviceID != "d3" || sessions[1].Device.DeviceID != "d4" {
		t.Fatalf("expected the two newest sessions to survive, got %s and %s",
			sessions[0].Device.DeviceID, sessions[1].Device.DeviceID)
	}
}

func TestSessionRegistryTouchSlidesExpiry(t *testing.T) {
	clock := newFakeClock()
	registry, _, _ := newTestSessionRegistry(t, clock, time.Hour, 0)

	ctx := context.Background()

	session, err := registry.Create(ctx, "id-1", testDevice("d1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Keep touching just before the window closes; the session must survive
	// well past its original expiry.
	for i := 0; i < 3; i++ {
		clock.Advance(50 * time.Minute)
		if _, err := registry.Touch(ctx, session.ID); err != nil {
			t.Fatalf("Touch %d: %v", i, err)
		}
	}

	got, err := registry.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("Get after touches: %v", err)
	}
	if !got.ExpiresAt.After(session.ExpiresAt) {
		t.Fatal("expected expiry to have slid forward")
	}
}

func TestSessionRegistryNoResurrection(t *testing.T) {
	clock := newFakeClock()
	registry, _, _ := newTestSessionRegistry(t, clock, time.Hour, 0)

	ctx := context.Background()

	session, err := registry.Create(ctx, "id-1", testDevice("d1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(2 * time.Hour)

	if _, err := registry.Touch(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound touching expired session, got %v", err)
	}
	if _, err := registry.Get(ctx, session.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session to stay gone, got %v", err)
	}
}

func TestSessionRegistryTerminateIdempotent(t *testing.T) {
	clock := newFakeClock()
	registry, _, publisher := newTestSessionRegistry(t, clock, time.Hour, 0)

	ctx := context.Background()

	session, err := registry.Create(ctx, "id-1", testDevice("d1"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := registry.Terminate(ctx, "id-1", session.ID, "logout"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if err := registry.Terminate(ctx, "id-1", session.ID, "logout"); err != nil {
		t.Fatalf("second Terminate: %v", err)
	}

	if len(publisher.terminated) != 1 {
		t.Fatalf("expected exactly one termination event, got %d", len(publisher.terminated))
	}
}

func TestSessionRegistryTerminateAll(t *testing.T) {
	clock := newFakeClock()
	registry, _, _ := newTestSessionRegistry(t, clock, time.Hour, 0)

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		if _, err := registry.Create(ctx, "id-1", testDevice("d")); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	if _, err := registry.Create(ctx, "id-2", testDevice("d")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	terminated, err := registry.TerminateAllForIdentity(ctx, "id-1", "revoke_all")
	if err != nil {
		t.Fatalf("TerminateAllForIdentity: %v", err)
	}
	if terminated != 3 {
		t.Fatalf("terminated %d sessions, want 3", terminated)
	}

	remaining, err := registry.List(ctx, "id-2")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected other identity's session untouched, got %d", len(remaining))
	}
}

func TestSessionRegistrySweep(t *testing.T) {
	clock := newFakeClock()
	registry, store, _ := newTestSessionRegistry(t, clock, time.Hour, 0)

	ctx := context.Background()

	if _, err := registry.Create(ctx, "id-1", testDevice("d1")); err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(2 * time.Hour)

	removed, err := registry.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("swept %d entries, want 1", removed)
	}

	if len(store.sessions) != 0 {
		t.Fatalf("expected store emptied, %d entries remain", len(store.sessions))
	}
}
