package token

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndValidate(t *testing.T) {
	c, err := New("test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	raw, expiresAt, err := c.Issue("user-1", "user@example.com", false)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Validate(raw, "user-1") {
		t.Fatal("expected token to validate for its own subject")
	}
	if c.Validate(raw, "user-2") {
		t.Fatal("token validated for a different subject")
	}
	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Fatalf("unexpected expiry horizon: %v", until)
	}
}

func TestClaimsCarryIdentityAttributes(t *testing.T) {
	c, _ := New("test-secret", time.Hour)
	raw, _, err := c.Issue("admin-1", "admin@example.com", true)
	if err != nil {
		t.Fatal(err)
	}

	sub, err := c.SubjectID(raw)
	if err != nil || sub != "admin-1" {
		t.Fatalf("subject = %q, %v", sub, err)
	}
	email, _ := c.Email(raw)
	if email != "admin@example.com" {
		t.Fatalf("email = %q", email)
	}
	admin, _ := c.IsAdmin(raw)
	if !admin {
		t.Fatal("expected admin flag")
	}
}

func TestExpiredTokenStillYieldsClaims(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer, _ := New("test-secret", time.Hour, WithClock(func() time.Time { return past }))
	raw, _, err := issuer.Issue("user-1", "", false)
	if err != nil {
		t.Fatal(err)
	}

	c, _ := New("test-secret", time.Hour)
	claims, err := c.Claims(raw)
	if err != nil {
		t.Fatalf("claims from expired token: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if !c.IsExpired(raw) {
		t.Fatal("expected expired")
	}
	if _, err := c.ValidClaims(raw); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
	if c.Validate(raw, "user-1") {
		t.Fatal("expired token must not validate")
	}
}

func TestForgedTokenIsMalformed(t *testing.T) {
	issuer, _ := New("other-secret", time.Hour)
	raw, _, err := issuer.Issue("user-1", "", false)
	if err != nil {
		t.Fatal(err)
	}

	c, _ := New("test-secret", time.Hour)
	if _, err := c.Claims(raw); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
	if !c.IsExpired("not-a-token") {
		t.Fatal("garbage must count as expired")
	}
	if c.Validate("not-a-token", "user-1") {
		t.Fatal("garbage must not validate")
	}
}

func TestTwoTokensForSameSubjectDiffer(t *testing.T) {
	c, _ := New("test-secret", time.Hour)
	a, _, _ := c.Issue("user-1", "", false)
	b, _, _ := c.Issue("user-1", "", false)
	if a == b {
		t.Fatal("tokens for the same subject must differ")
	}
}

func TestShortSecretIsPadded(t *testing.T) {
	c, err := New("x", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	raw, _, err := c.Issue("user-1", "", false)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Validate(raw, "user-1") {
		t.Fatal("token from padded secret must validate")
	}

	other, _ := New("y", time.Hour)
	if _, err := other.Claims(raw); !errors.Is(err, ErrMalformed) {
		t.Fatal("padded secrets must stay distinct per input")
	}
}

func TestNewRejectsBadConfig(t *testing.T) {
	if _, err := New("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
	if _, err := New("secret", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
