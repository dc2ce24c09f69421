package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testKID = "test-key-1"

func newTestKeys(t *testing.T) (*rsa.PrivateKey, map[string]keyfunc.GivenKey) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	keys := map[string]keyfunc.GivenKey{
		testKID: keyfunc.NewGivenCustom(&priv.PublicKey, keyfunc.GivenKeyOptions{
			Algorithm: jwt.SigningMethodRS256.Alg(),
		}),
	}
	return priv, keys
}

func signProviderToken(t *testing.T, priv *rsa.PrivateKey, claims jwt.Claims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = testKID
	raw, err := tok.SignedString(priv)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestVerifyAcceptsValidProviderToken(t *testing.T) {
	priv, keys := newTestKeys(t)
	v := NewGivenKeysVerifier(keys, "https://idp.example.com", "breakglass")

	raw := signProviderToken(t, priv, providerClaims{
		Email: "user@example.com",
		Name:  "Test User",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://idp.example.com",
			Subject:   "subject-1",
			Audience:  jwt.ClaimStrings{"breakglass"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	id, err := v.Verify(context.Background(), raw)
	if err != nil {
		t.Fatal(err)
	}
	if id.SubjectID != "subject-1" || id.Email != "user@example.com" || id.DisplayName != "Test User" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestVerifyExpiredProviderToken(t *testing.T) {
	priv, keys := newTestKeys(t)
	v := NewGivenKeysVerifier(keys, "", "")

	raw := signProviderToken(t, priv, providerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "subject-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := v.Verify(context.Background(), raw)
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
	if !verr.Expired() {
		t.Fatalf("expected expired verification error, got %v", verr)
	}
}

func TestVerifyRejectsWrongIssuerAndAudience(t *testing.T) {
	priv, keys := newTestKeys(t)

	base := providerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://other.example.com",
			Subject:   "subject-1",
			Audience:  jwt.ClaimStrings{"someone-else"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	raw := signProviderToken(t, priv, base)

	v := NewGivenKeysVerifier(keys, "https://idp.example.com", "")
	if _, err := v.Verify(context.Background(), raw); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}

	v = NewGivenKeysVerifier(keys, "", "breakglass")
	if _, err := v.Verify(context.Background(), raw); err == nil {
		t.Fatal("expected audience mismatch to fail")
	}
}

func TestVerifyRejectsMissingSubject(t *testing.T) {
	priv, keys := newTestKeys(t)
	v := NewGivenKeysVerifier(keys, "", "")

	raw := signProviderToken(t, priv, providerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	if _, err := v.Verify(context.Background(), raw); err == nil {
		t.Fatal("expected missing subject to fail")
	}
}

func TestVerifyRejectsWrongSignatureAlgorithm(t *testing.T) {
	_, keys := newTestKeys(t)
	v := NewGivenKeysVerifier(keys, "", "")

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "subject-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	raw, err := tok.SignedString([]byte("shared-secret-key-of-32-bytes!!!"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(context.Background(), raw); err == nil {
		t.Fatal("expected HS256 token to be rejected")
	}
}

func TestDisabledVerifierAlwaysFails(t *testing.T) {
	_, err := Disabled{}.Verify(context.Background(), "anything")
	var verr *VerificationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected VerificationError, got %v", err)
	}
	if verr.Expired() {
		t.Fatal("disabled verifier must not report expiry")
	}
}
