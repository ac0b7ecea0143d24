package redis

import (
	"context"
	"testing"
	"time"
)

func TestBlacklistStore_MarkAndCheck(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewBlacklistStore(client, "authcore")

	ctx := context.Background()
	ttl := 2 * time.Minute

	created, err := store.MarkRevoked(ctx, "jti-123", "logout", ttl)
	if err != nil {
		t.Fatalf("MarkRevoked returned error: %v", err)
	}
	if !created {
		t.Fatal("expected first MarkRevoked to create the entry")
	}

	revoked, reason, err := store.IsRevoked(ctx, "jti-123")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if !revoked {
		t.Fatal("expected jti to be marked revoked")
	}
	if reason != "logout" {
		t.Fatalf("expected reason logout, got %s", reason)
	}

	remaining := server.TTL("authcore:blacklist:jti-123")
	if remaining <= 0 || remaining > ttl {
		t.Fatalf("expected ttl within (0, %v], got %v", ttl, remaining)
	}
}

func TestBlacklistStore_IdempotentMark(t *testing.T) {
	client, server := newTestRedis(t)
	store := NewBlacklistStore(client, "authcore")

	ctx := context.Background()

	if _, err := store.MarkRevoked(ctx, "jti-dup", "logout", 10*time.Minute); err != nil {
		t.Fatalf("MarkRevoked returned error: %v", err)
	}

	before := server.TTL("authcore:blacklist:jti-dup")

	created, err := store.MarkRevoked(ctx, "jti-dup", "admin_revoke", time.Minute)
	if err != nil {
		t.Fatalf("second MarkRevoked returned error: %v", err)
	}
	if created {
		t.Fatal("expected second MarkRevoked to be a no-op")
	}

	revoked, reason, err := store.IsRevoked(ctx, "jti-dup")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if !revoked || reason != "logout" {
		t.Fatalf("expected original entry to survive, got revoked=%v reason=%s", revoked, reason)
	}

	after := server.TTL("authcore:blacklist:jti-dup")
	if after < before-time.Second {
		t.Fatalf("expected original ttl to be preserved, before=%v after=%v", before, after)
	}
}

func TestBlacklistStore_Miss(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewBlacklistStore(client, "authcore")

	revoked, reason, err := store.IsRevoked(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("IsRevoked returned error: %v", err)
	}
	if revoked || reason != "" {
		t.Fatalf("expected miss, got revoked=%v reason=%s", revoked, reason)
	}
}

func TestBlacklistStore_ExpiredTokenNotStored(t *testing.T) {
	client, _ := newTestRedis(t)
	store := NewBlacklistStore(client, "authcore")

	created, err := store.MarkRevoked(context.Background(), "jti-old", "logout", -time.Minute)
	if err != nil {
		t.Fatalf("MarkRevoked returned error: %v", err)
	}
	if created {
		t.Fatal("expected no entry for an already expired token")
	}
}
