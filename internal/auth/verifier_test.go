// Heliopause - Request Validation and Security Defense Gateway
// Copyright 2026 Mara V. (driftlight)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/driftlight/heliopause

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// signToken mints a token the way the external issuer would.
func signToken(t *testing.T, secret, issuer string, expiresIn time.Duration) string {
	t.Helper()
	claims := &Claims{
		Name: "ops-admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin@example.com",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestNewTokenVerifier_SecretLength(t *testing.T) {
	if _, err := NewTokenVerifier("short", "heliopause"); err == nil {
		t.Error("short secret should be rejected")
	}
	if _, err := NewTokenVerifier(testSecret, "heliopause"); err != nil {
		t.Errorf("32-char secret should be accepted: %v", err)
	}
}

func TestVerifyToken(t *testing.T) {
	v, err := NewTokenVerifier(testSecret, "heliopause")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("valid token", func(t *testing.T) {
		claims, err := v.VerifyToken(signToken(t, testSecret, "heliopause", time.Hour))
		if err != nil {
			t.Fatalf("VerifyToken: %v", err)
		}
		if claims.Subject != "admin@example.com" {
			t.Errorf("subject = %q", claims.Subject)
		}
		if claims.Name != "ops-admin" {
			t.Errorf("name = %q", claims.Name)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		bad := signToken(t, "ffffffffffffffffffffffffffffffff", "heliopause", time.Hour)
		if _, err := v.VerifyToken(bad); err == nil {
			t.Error("token signed with another secret should fail")
		}
	})

	t.Run("expired", func(t *testing.T) {
		if _, err := v.VerifyToken(signToken(t, testSecret, "heliopause", -time.Minute)); err == nil {
			t.Error("expired token should fail")
		}
	})

	t.Run("wrong issuer", func(t *testing.T) {
		if _, err := v.VerifyToken(signToken(t, testSecret, "somebody-else", time.Hour)); err == nil {
			t.Error("token from another issuer should fail")
		}
	})

	t.Run("missing expiry", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "heliopause"}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := v.VerifyToken(token); err == nil {
			t.Error("token without exp should fail")
		}
	})

	t.Run("alg none rejected", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "heliopause",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := v.VerifyToken(token); err == nil {
			t.Error("unsigned token should fail")
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := v.VerifyToken("not.a.jwt"); err == nil {
			t.Error("malformed token should fail")
		}
	})
}

func TestVerifyToken_EmptyIssuerSkipsCheck(t *testing.T) {
	v, err := NewTokenVerifier(testSecret, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.VerifyToken(signToken(t, testSecret, "any-issuer", time.Hour)); err != nil {
		t.Errorf("issuer check should be skipped when unconfigured: %v", err)
	}
}

func TestRequireToken(t *testing.T) {
	v, err := NewTokenVerifier(testSecret, "heliopause")
	if err != nil {
		t.Fatal(err)
	}

	var gotClaims *Claims
	protected := v.RequireToken(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("no header", func(t *testing.T) {
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if w.Header().Get("WWW-Authenticate") == "" {
			t.Error("WWW-Authenticate header should be set")
		}
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
	})

	t.Run("invalid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if !strings.Contains(w.Body.String(), "Unauthorized") {
			t.Errorf("body = %s", w.Body.String())
		}
	})

	t.Run("valid token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/events", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, "heliopause", time.Hour))
		w := httptest.NewRecorder()
		protected.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
		}
		if gotClaims == nil || gotClaims.Subject != "admin@example.com" {
			t.Errorf("claims = %+v, want subject on context", gotClaims)
		}
	})
}

func TestClaimsFromContext_Empty(t *testing.T) {
	if ClaimsFromContext(httptest.NewRequest(http.MethodGet, "/", nil).Context()) != nil {
		t.Error("unprotected context should have no claims")
	}
}
