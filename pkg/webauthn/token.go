// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package webauthn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is the lifetime of issued session tokens.
const DefaultTokenTTL = 12 * time.Hour

// jwtIssuer is the iss claim on issued tokens.
const jwtIssuer = "go-passkey"

var (
	// ErrInvalidToken is returned when a session token fails verification.
	ErrInvalidToken = errors.New("webauthn: invalid session token")

	// ErrTokenExpired is returned when a session token is past its expiry.
	ErrTokenExpired = errors.New("webauthn: session token expired")
)

// SessionClaims are the claims carried by issued session tokens. AMR values
// follow RFC 8176; second-factor ceremonies add "mfa".
type SessionClaims struct {
	jwt.RegisteredClaims

	// AMR lists the authentication methods used, per RFC 8176.
	AMR []string `json:"amr,omitempty"`

	// Username is the account name at issue time. Informational.
	Username string `json:"username,omitempty"`
}

// JWTIssuer issues and verifies HMAC-signed session tokens after successful
// authentication ceremonies. It implements TokenIssuer.
type JWTIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewJWTIssuer creates a session token issuer signing with HS256. The secret
// must be at least 32 bytes.
func NewJWTIssuer(secret []byte, ttl time.Duration) (*JWTIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("webauthn: token secret must be at least 32 bytes, got %d", len(secret))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &JWTIssuer{secret: secret, ttl: ttl}, nil
}

// IssueToken creates a signed session token for a user who completed an
// authentication ceremony.
func (i *JWTIssuer) IssueToken(_ context.Context, user User, secondFactor bool) (string, error) {
	now := time.Now().UTC()

	amr := []string{"user", "swk"}
	if secondFactor {
		amr = append(amr, "mfa")
	}

	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    jwtIssuer,
			Subject:   user.ID(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
		AMR:      amr,
		Username: user.Username(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("webauthn: failed to sign session token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a session token, returning its claims.
func (i *JWTIssuer) VerifyToken(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.secret, nil
	}, jwt.WithIssuer(jwtIssuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
