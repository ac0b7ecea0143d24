package security

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newTestManager(t *testing.T) *JWTManager {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	provider := NewStaticKeyProvider("test-key", key)
	return NewJWTManager(provider, "auth-core", "auth-core-clients")
}

func TestJWTSignParseRoundTrip(t *testing.T) {
	m := newTestManager(t)

	claims := AccessClaims{
		Roles:       []string{"user"},
		Permissions: []string{"sessions:read"},
		SessionID:   "sess-1",
		BindDevice:  "device-1",
	}
	claims.Subject = "identity-1"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))

	token, jti, err := m.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if jti == "" {
		t.Fatal("expected non-empty jti")
	}

	parsed, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.Subject != "identity-1" || parsed.SessionID != "sess-1" || parsed.ID != jti {
		t.Fatalf("unexpected claims: %+v", parsed)
	}
	if parsed.BindDevice != "device-1" {
		t.Fatalf("BindDevice = %q, want device-1", parsed.BindDevice)
	}
}

func TestJWTParseDistinguishesFailures(t *testing.T) {
	m := newTestManager(t)

	if _, err := m.Parse("not.a.token"); !errors.Is(err, jwt.ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}

	other := newTestManager(t)
	claims := AccessClaims{}
	claims.Subject = "identity-1"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	foreign, _, err := other.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := m.Parse(foreign); !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		t.Fatalf("expected ErrTokenSignatureInvalid, got %v", err)
	}
}

func TestJWTParseExpired(t *testing.T) {
	m := newTestManager(t)

	base := time.Now()
	m.WithClock(func() time.Time { return base })

	claims := AccessClaims{SessionID: "sess-1"}
	claims.Subject = "identity-1"
	claims.ExpiresAt = jwt.NewNumericDate(base.Add(time.Minute))

	token, jti, err := m.Sign(claims)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	m.WithClock(func() time.Time { return base.Add(2 * time.Minute) })

	if _, err := m.Parse(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	parsed, err := m.ParseExpired(token)
	if err != nil {
		t.Fatalf("ParseExpired: %v", err)
	}
	if parsed.ID != jti || parsed.SessionID != "sess-1" {
		t.Fatalf("unexpected claims from ParseExpired: %+v", parsed)
	}
}
