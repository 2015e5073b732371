// Package auth issues and validates access tokens and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kozaktomas/attendance/internal/apperr"
)

// Role is the kind of identity a token was issued to.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleEmployer Role = "employer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleEmployee || r == RoleEmployer
}

// Claims is the signed token payload: {sub, type, exp}.
type Claims struct {
	Type Role `json:"type"`
	jwt.RegisteredClaims
}

// Principal is the validated identity behind a token.
type Principal struct {
	SubjectID string
	Role      Role
}

// TokenService signs HS256 tokens with a process-wide secret.
type TokenService struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenService creates a token service. A nil clock uses time.Now.
func NewTokenService(secret string, lifetime time.Duration, now func() time.Time) *TokenService {
	if now == nil {
		now = time.Now
	}
	return &TokenService{
		secret:   []byte(secret),
		lifetime: lifetime,
		now:      now,
	}
}

// Issue signs a token for subjectID with the given role, expiring after the configured lifetime.
func (s *TokenService) Issue(subjectID string, role Role) (string, error) {
	if subjectID == "" {
		return "", errors.New("token subject is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("unknown role %q", role)
	}

	now := s.now()
	claims := Claims{
		Type: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate verifies signature and expiry. Every failure is reported as apperr.ErrInvalidToken.
func (s *TokenService) Validate(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return Principal{}, apperr.ErrInvalidToken
	}

	if claims.Subject == "" {
		return Principal{}, apperr.ErrInvalidToken
	}
	role := claims.Type
	if role == "" {
		role = RoleEmployee
	}
	if !role.Valid() {
		return Principal{}, apperr.ErrInvalidToken
	}

	return Principal{SubjectID: claims.Subject, Role: role}, nil
}

// Lifetime returns how long issued tokens stay valid.
func (s *TokenService) Lifetime() time.Duration {
	return s.lifetime
}
