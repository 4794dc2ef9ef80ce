package auth

import (
	"errors"
	"testing"

	"imageforge/config"

	"github.com/golang-jwt/jwt"
)

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return s
}

func TestVerify(t *testing.T) {
	v := NewVerifier(config.AuthConfig{JwtSecret: "test-secret"})

	t.Run("valid", func(t *testing.T) {
		tok := signedToken(t, "test-secret", jwt.MapClaims{
			"sub":   "user-1",
			"email": "u@example.com",
			"name":  "U",
		})
		sess, err := v.FromHeader("Bearer " + tok)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if sess.UserID != "user-1" || sess.Email != "u@example.com" {
			t.Errorf("unexpected session %+v", sess)
		}
	})

	t.Run("wrong_secret", func(t *testing.T) {
		tok := signedToken(t, "other-secret", jwt.MapClaims{"sub": "user-1"})
		if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("expected ErrInvalidSession, got %v", err)
		}
	})

	t.Run("missing_sub", func(t *testing.T) {
		tok := signedToken(t, "test-secret", jwt.MapClaims{"email": "u@example.com"})
		if _, err := v.Verify(tok); !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("expected ErrInvalidSession, got %v", err)
		}
	})

	t.Run("no_header_no_session", func(t *testing.T) {
		sess, err := v.FromHeader("")
		if err != nil || sess != nil {
			t.Fatalf("expected nil session without error, got %+v, %v", sess, err)
		}
	})
}

func TestNotConfigured(t *testing.T) {
	v := NewVerifier(config.AuthConfig{JwtSecret: "YOUR_JWT_SECRET"})
	if v.Configured() {
		t.Fatal("placeholder secret must not count as configured")
	}
	if _, err := v.Verify("whatever"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
