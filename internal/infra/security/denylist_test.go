package security

import (
	"testing"
	"time"
)

func TestLocalDenylistPutGet(t *testing.T) {
	d := NewLocalDenylist(100)

	now := time.Unix(1700000000, 0).UTC()
	until := now.Add(time.Minute)
	d.Put("jti-1", true, "logout", until)
	d.Put("jti-2", false, "", until)

	revoked, reason, ok := d.Get("jti-1", now)
	if !ok || !revoked || reason != "logout" {
		t.Fatalf("Get jti-1 = (%v, %q, %v), want (true, logout, true)", revoked, reason, ok)
	}

	revoked, _, ok = d.Get("jti-2", now)
	if !ok || revoked {
		t.Fatalf("Get jti-2 = (%v, _, %v), want (false, true)", revoked, ok)
	}

	if _, _, ok := d.Get("missing", now); ok {
		t.Fatal("expected miss for unknown jti")
	}
}

func TestLocalDenylistExpiry(t *testing.T) {
	d := NewLocalDenylist(100)

	now := time.Unix(1700000000, 0).UTC()
	d.Put("entry", true, "logout", now.Add(time.Second))

	if _, _, ok := d.Get("entry", now); !ok {
		t.Fatal("expected entry to hit before its deadline")
	}
	if _, _, ok := d.Get("entry", now.Add(2*time.Second)); ok {
		t.Fatal("expected expired entry to miss")
	}

	if removed := d.Prune(now.Add(2 * time.Second)); removed != 1 {
		t.Fatalf("Prune removed %d entries, want 1", removed)
	}
	if d.Len() != 0 {
		t.Fatalf("Len = %d after prune, want 0", d.Len())
	}
}

func TestLocalDenylistEviction(t *testing.T) {
	d := NewLocalDenylist(2)

	now := time.Unix(1700000000, 0).UTC()
	d.Put("near", true, "", now.Add(time.Second))
	d.Put("far", true, "", now.Add(time.Hour))
	d.Put("new", true, "", now.Add(time.Minute))

	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	if _, _, ok := d.Get("near", now); ok {
		t.Fatal("expected nearest-deadline entry to be evicted")
	}
	if _, _, ok := d.Get("far", now); !ok {
		t.Fatal("expected far entry to survive eviction")
	}
}
