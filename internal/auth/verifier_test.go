package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	testSecret = []byte("unit-test-secret")
	testIssuer = "mallforge-gateway"
	testNow    = time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
)

func newTestVerifier(t *testing.T, audience string) *Verifier {
	t.Helper()
	verifier, err := NewVerifier(VerifierConfig{
		SigningSecret: testSecret,
		Issuer:        testIssuer,
		Audience:      audience,
		Clock:         func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("failed to construct verifier: %v", err)
	}
	return verifier
}

func mintToken(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func baseClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    testIssuer,
		IssuedAt:  jwt.NewNumericDate(testNow.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(testNow.Add(time.Hour)),
	}
}

func TestNewVerifierRequiresSecretAndIssuer(t *testing.T) {
	if _, err := NewVerifier(VerifierConfig{Issuer: testIssuer}); !errors.Is(err, ErrMissingSigningSecret) {
		t.Fatalf("expected ErrMissingSigningSecret, got %v", err)
	}
	if _, err := NewVerifier(VerifierConfig{SigningSecret: testSecret, Issuer: "  "}); !errors.Is(err, ErrMissingIssuer) {
		t.Fatalf("expected ErrMissingIssuer, got %v", err)
	}
}

func TestResolveUserIDValidToken(t *testing.T) {
	verifier := newTestVerifier(t, "")
	token := mintToken(t, jwt.SigningMethodHS256, testSecret, baseClaims())

	subject, err := verifier.ResolveUserID(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if subject != "user-42" {
		t.Fatalf("expected user-42, got %q", subject)
	}
}

func TestResolveUserIDEmptyToken(t *testing.T) {
	verifier := newTestVerifier(t, "")
	if _, err := verifier.ResolveUserID("   "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestResolveUserIDExpiredToken(t *testing.T) {
	verifier := newTestVerifier(t, "")
	claims := baseClaims()
	claims.ExpiresAt = jwt.NewNumericDate(testNow.Add(-time.Minute))
	token := mintToken(t, jwt.SigningMethodHS256, testSecret, claims)

	if _, err := verifier.ResolveUserID(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestResolveUserIDWrongSecret(t *testing.T) {
	verifier := newTestVerifier(t, "")
	token := mintToken(t, jwt.SigningMethodHS256, []byte("other-secret"), baseClaims())

	if _, err := verifier.ResolveUserID(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolveUserIDWrongIssuer(t *testing.T) {
	verifier := newTestVerifier(t, "")
	claims := baseClaims()
	claims.Issuer = "someone-else"
	token := mintToken(t, jwt.SigningMethodHS256, testSecret, claims)

	if _, err := verifier.ResolveUserID(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolveUserIDRejectsNoneAlgorithm(t *testing.T) {
	verifier := newTestVerifier(t, "")
	token := mintToken(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, baseClaims())

	if _, err := verifier.ResolveUserID(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestResolveUserIDMissingSubject(t *testing.T) {
	verifier := newTestVerifier(t, "")
	claims := baseClaims()
	claims.Subject = "  "
	token := mintToken(t, jwt.SigningMethodHS256, testSecret, claims)

	if _, err := verifier.ResolveUserID(token); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestResolveUserIDAudienceEnforcedWhenConfigured(t *testing.T) {
	verifier := newTestVerifier(t, "mallforge-api")

	claims := baseClaims()
	claims.Audience = jwt.ClaimStrings{"mallforge-api"}
	token := mintToken(t, jwt.SigningMethodHS256, testSecret, claims)
	if _, err := verifier.ResolveUserID(token); err != nil {
		t.Fatalf("unexpected error for matching audience: %v", err)
	}

	claims.Audience = jwt.ClaimStrings{"something-else"}
	token = mintToken(t, jwt.SigningMethodHS256, testSecret, claims)
	if _, err := verifier.ResolveUserID(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for audience mismatch, got %v", err)
	}
}
