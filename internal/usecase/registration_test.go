package usecase

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/arklim/auth-core/internal/infra/security"
)

func newTestRegistration(t *testing.T) (*RegistrationService, *stubIdentityRepo, *stubPublisher) {
	t.Helper()
	repo := newStubIdentityRepo()
	publisher := &stubPublisher{}
	policy := security.NewPasswordPolicy(8, 3)
	service := NewRegistrationService(repo, policy, nil, publisher, zaptest.NewLogger(t))
	return service, repo, publisher
}

func TestRegisterSuccess(t *testing.T) {
	service, repo, publisher := newTestRegistration(t)

	identity, err := service.Register(context.Background(), "Bob@Example.com", "K7#vmQ2pLx9!wRtz", []string{"user"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if identity.Email != "bob@example.com" {
		t.Fatalf("expected normalized email, got %s", identity.Email)
	}
	if identity.PasswordHash == "" || identity.PasswordHash == "K7#vmQ2pLx9!wRtz" {
		t.Fatal("expected password to be stored hashed")
	}

	stored := repo.get(t, identity.ID)
	if stored.Email != "bob@example.com" {
		t.Fatalf("unexpected stored identity: %+v", stored)
	}

	if len(publisher.registered) != 1 || publisher.registered[0].IdentityID != identity.ID {
		t.Fatalf("expected one registration event, got %+v", publisher.registered)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	service, _, _ := newTestRegistration(t)

	_, err := service.Register(context.Background(), "bob@example.com", "password123", nil)
	if !errors.Is(err, security.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	service, _, _ := newTestRegistration(t)

	ctx := context.Background()
	if _, err := service.Register(ctx, "bob@example.com", "K7#vmQ2pLx9!wRtz", nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := service.Register(ctx, "BOB@example.com", "J4$owP8qTy2&zNvb", nil); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
}
