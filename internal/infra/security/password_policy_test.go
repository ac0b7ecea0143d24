package security

import (
	"errors"
	"testing"
)

func TestPasswordPolicyRejectsShort(t *testing.T) {
	policy := NewPasswordPolicy(8, 2)

	err := policy.Validate("abc")
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestPasswordPolicyRejectsGuessable(t *testing.T) {
	policy := NewPasswordPolicy(8, 3)

	if err := policy.Validate("password123"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword for common password, got %v", err)
	}
}

func TestPasswordPolicyPenalizesUserInputs(t *testing.T) {
	policy := NewPasswordPolicy(8, 3)

	if err := policy.Validate("bob@example.com1", "bob@example.com"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword for email-derived password, got %v", err)
	}
}

func TestPasswordPolicyAcceptsStrong(t *testing.T) {
	policy := NewPasswordPolicy(8, 3)

	if err := policy.Validate("K7#vmQ2pLx9!wRtz"); err != nil {
		t.Fatalf("expected strong password to pass, got %v", err)
	}
}
