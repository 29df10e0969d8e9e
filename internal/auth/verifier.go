// Package auth resolves bearer credentials to user identities. It is the
// only component that touches JWT material; everything downstream works
// with plain identity strings.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KuldeepJha5176/chat-application/internal/store"
)

// Reason codes attached to handshake rejections.
const (
	ReasonMissingToken = "missing-token"
	ReasonInvalidToken = "invalid-token"
	ReasonUnknownUser  = "unknown-user"
)

// VerifyError is a handshake-time authentication failure. It is fatal to
// the connection attempt and carries a reason code for the rejection.
type VerifyError struct {
	Reason string
	Err    error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unauthenticated (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("unauthenticated (%s)", e.Reason)
}

func (e *VerifyError) Unwrap() error { return e.Err }

// Claims is the JWT claim set minted at signin and consumed at handshake.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates bearer tokens and resolves them to known users.
type Verifier struct {
	secret   []byte
	profiles store.ProfileStore
}

func NewVerifier(secret string, profiles store.ProfileStore) *Verifier {
	return &Verifier{secret: []byte(secret), profiles: profiles}
}

// Verify resolves a raw bearer token to a user identity. Called exactly once
// per connection, before any registration happens.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (string, error) {
	if tokenString == "" {
		return "", &VerifyError{Reason: ReasonMissingToken}
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", &VerifyError{Reason: ReasonInvalidToken, Err: err}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return "", &VerifyError{Reason: ReasonInvalidToken}
	}

	// The token may outlive the account; confirm the user still exists.
	if _, err := v.profiles.FindByID(ctx, claims.Subject); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", &VerifyError{Reason: ReasonUnknownUser}
		}
		return "", fmt.Errorf("failed to resolve token subject: %w", err)
	}
	return claims.Subject, nil
}

// Mint issues a signed HS256 token for the given identity.
func Mint(secret, identity string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
