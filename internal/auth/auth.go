package auth

import (
	"errors"
	"fmt"
	"strings"

	"imageforge/config"

	"github.com/golang-jwt/jwt"
)

var (
	ErrNotConfigured  = errors.New("identity provider is not configured")
	ErrInvalidSession = errors.New("invalid or expired session")
)

// Session is what the rest of the system needs from the identity provider: a
// stable opaque user id plus display fields.
type Session struct {
	UserID      string
	Email       string
	DisplayName string
	AvatarURL   string
}

type Verifier struct {
	secret string
}

func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{secret: strings.TrimSpace(cfg.JwtSecret)}
}

// Configured is false while the signing secret still carries the sample-env
// placeholder; saves are silently skipped in that state.
func (v *Verifier) Configured() bool {
	return !config.IsPlaceholder(v.secret)
}

// FromHeader resolves an Authorization header to a session. A missing header
// yields (nil, nil): no session, not an error.
func (v *Verifier) FromHeader(header string) (*Session, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, ErrInvalidSession
	}
	return v.Verify(token)
}

func (v *Verifier) Verify(tokenString string) (*Session, error) {
	if !v.Configured() {
		return nil, ErrNotConfigured
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(v.secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidSession
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidSession
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, ErrInvalidSession
	}

	email, _ := claims["email"].(string)
	name, _ := claims["name"].(string)
	avatar, _ := claims["picture"].(string)

	return &Session{
		UserID:      sub,
		Email:       email,
		DisplayName: name,
		AvatarURL:   avatar,
	}, nil
}
