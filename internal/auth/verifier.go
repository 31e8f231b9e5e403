// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

// Package auth verifies bearer tokens for the admin API. Heliopause
// never issues tokens; an external identity system signs them with
// the shared secret and this package only checks them.
package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// minSecretLength guards against weak HMAC keys.
const minSecretLength = 32

var (
	// ErrSecretTooShort indicates the configured secret cannot safely
	// key HMAC-SHA256.
	ErrSecretTooShort = errors.New("admin token secret must be at least 32 characters")

	// ErrTokenInvalid covers every verification failure surfaced to
	// handlers; details stay in logs.
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims are the verified token claims. The external issuer may set
// an informational name alongside the registered claims.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenVerifier validates HS256 bearer tokens against the shared
// secret and expected issuer.
type TokenVerifier struct {
	secret []byte
	issuer string
}

// NewTokenVerifier builds a verifier. issuer may be empty, which
// skips the issuer check.
func NewTokenVerifier(secret, issuer string) (*TokenVerifier, error) {
	if len(secret) < minSecretLength {
		return nil, ErrSecretTooShort
	}
	return &TokenVerifier{secret: []byte(secret), issuer: issuer}, nil
}

// VerifyToken parses and validates the raw token string. Expiry is
// mandatory; tokens without an exp claim fail.
func (v *TokenVerifier) VerifyToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		// Pin the algorithm family; prevents confusion attacks where
		// a token self-declares RS256 or none.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
