// Package token issues and verifies the locally signed session tokens that
// the service hands out after a successful identity-provider login.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "breakglass"

	// HMAC-SHA256 wants at least a 256-bit key. Shorter configured secrets
	// are cyclically extended to this floor; see padSecret.
	minSecretLen = 32
)

var (
	// ErrMalformed indicates the token is structurally broken or its
	// signature does not verify.
	ErrMalformed = errors.New("token: malformed token")

	// ErrExpired indicates an otherwise valid token past its expiry.
	ErrExpired = errors.New("token: token expired")
)

// SessionClaims carries the identity attributes encoded into session tokens.
type SessionClaims struct {
	Email string `json:"email,omitempty"`
	Admin bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Codec creates and parses session tokens signed with a shared HS256 secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures Codec behavior.
type Option func(*Codec)

// WithIssuer overrides the issuer claim stamped into tokens.
func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if strings.TrimSpace(issuer) != "" {
			c.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// New constructs a Codec from the shared secret and token lifetime.
func New(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token: secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token: ttl must be greater than zero")
	}
	c := &Codec{
		secret: padSecret([]byte(secret)),
		ttl:    ttl,
		issuer: defaultIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// padSecret extends short secrets by cycling their own bytes until the HMAC
// key-size floor is met. Deterministic so every process derives the same key.
func padSecret(secret []byte) []byte {
	if len(secret) >= minSecretLen {
		return secret
	}
	padded := make([]byte, 0, minSecretLen)
	for len(padded) < minSecretLen {
		padded = append(padded, secret...)
	}
	return padded[:minSecretLen]
}

// Issue signs a session token for the subject. The uuid jti claim guarantees
// two tokens issued for the same subject are textually different.
func (c *Codec) Issue(subjectID, email string, isAdmin bool) (string, time.Time, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", time.Time{}, errors.New("token: subject id is required")
	}
	now := c.now().UTC()
	expiresAt := now.Add(c.ttl)
	claims := SessionClaims{
		Email: strings.TrimSpace(email),
		Admin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, expiresAt, nil
}

// Claims verifies the signature and structural claims of a token WITHOUT
// enforcing expiry, so identity attributes remain extractable from expired
// tokens. Returns ErrMalformed for anything unparseable or forged.
func (c *Codec) Claims(raw string) (*SessionClaims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrMalformed
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, ErrMalformed
	}
	claims, ok := parsed.Claims.(*SessionClaims)
	if !ok {
		return nil, ErrMalformed
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, ErrMalformed
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrMalformed
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	if !claims.ExpiresAt.Time.After(claims.IssuedAt.Time) {
		return nil, ErrMalformed
	}
	return claims, nil
}

// ValidClaims behaves like Claims but additionally enforces expiry,
// returning ErrExpired for tokens past their lifetime.
func (c *Codec) ValidClaims(raw string) (*SessionClaims, error) {
	claims, err := c.Claims(raw)
	if err != nil {
		return nil, err
	}
	if !c.now().UTC().Before(claims.ExpiresAt.Time) {
		return nil, ErrExpired
	}
	return claims, nil
}

// SubjectID extracts the subject claim.
func (c *Codec) SubjectID(raw string) (string, error) {
	claims, err := c.Claims(raw)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Email extracts the email claim.
func (c *Codec) Email(raw string) (string, error) {
	claims, err := c.Claims(raw)
	if err != nil {
		return "", err
	}
	return claims.Email, nil
}

// IsAdmin extracts the admin flag.
func (c *Codec) IsAdmin(raw string) (bool, error) {
	claims, err := c.Claims(raw)
	if err != nil {
		return false, err
	}
	return claims.Admin, nil
}

// ExpiresAt extracts the expiry timestamp.
func (c *Codec) ExpiresAt(raw string) (time.Time, error) {
	claims, err := c.Claims(raw)
	if err != nil {
		return time.Time{}, err
	}
	return claims.ExpiresAt.Time, nil
}

// IsExpired reports whether the token is past its expiry. Fail-closed: a
// token whose claims cannot be parsed counts as expired.
func (c *Codec) IsExpired(raw string) bool {
	claims, err := c.Claims(raw)
	if err != nil {
		return true
	}
	return !c.now().UTC().Before(claims.ExpiresAt.Time)
}

// Validate reports whether the token verifies, belongs to the expected
// subject and has not expired. Never returns an error: any failure is false.
func (c *Codec) Validate(raw, expectedSubjectID string) bool {
	claims, err := c.ValidClaims(raw)
	if err != nil {
		return false
	}
	return claims.Subject == strings.TrimSpace(expectedSubjectID)
}
