// Package identity validates externally issued identity-provider tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"

	"breakglass.org/internal/obs"
)

// Identity is the subject information extracted from a verified provider token.
type Identity struct {
	SubjectID   string
	Email       string
	DisplayName string
}

// Verifier checks a raw identity-provider token. Implementations must bound
// any network I/O (key fetches) so callers never hang, and must report every
// failure as a *VerificationError rather than an empty Identity.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (Identity, error)
}

// VerificationError wraps the provider-side reason a token was rejected.
type VerificationError struct {
	Reason string
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("identity: %s: %v", e.Reason, e.Err)
	}
	return "identity: " + e.Reason
}

func (e *VerificationError) Unwrap() error { return e.Err }

// Expired reports whether the underlying failure was an expired token.
func (e *VerificationError) Expired() bool {
	return errors.Is(e.Err, jwt.ErrTokenExpired)
}

type providerClaims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Config describes the identity provider endpoint.
type Config struct {
	JWKSURL  string
	Issuer   string
	Audience string

	// RefreshInterval bounds how often the cached key set is re-fetched;
	// RefreshTimeout caps each fetch so a slow provider cannot stall
	// verification. Zero values fall back to sane defaults.
	RefreshInterval time.Duration
	RefreshTimeout  time.Duration
}

// JWKSVerifier validates RS256 provider tokens against the provider's
// published JWK set.
type JWKSVerifier struct {
	jwks     *keyfunc.JWKS
	issuer   string
	audience string
}

// NewJWKSVerifier fetches the provider key set and keeps it refreshed in the
// background until ctx ends.
func NewJWKSVerifier(ctx context.Context, cfg Config) (*JWKSVerifier, error) {
	if strings.TrimSpace(cfg.JWKSURL) == "" {
		return nil, errors.New("identity: jwks url is required")
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = time.Hour
	}
	timeout := cfg.RefreshTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		Ctx:               ctx,
		RefreshInterval:   interval,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    timeout,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			obs.LogEntry(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"level": "warn",
				"msg":   "jwks_refresh_failed",
				"error": err.Error(),
			})
		},
	})
	if err != nil {
		return nil, fmt.Errorf("identity: fetch jwks: %w", err)
	}
	return &JWKSVerifier{
		jwks:     jwks,
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
	}, nil
}

// NewGivenKeysVerifier builds a verifier from pre-provisioned keys instead of
// a remote JWK set. Used by tests and air-gapped deployments.
func NewGivenKeysVerifier(keys map[string]keyfunc.GivenKey, issuer, audience string) *JWKSVerifier {
	return &JWKSVerifier{
		jwks:     keyfunc.NewGiven(keys),
		issuer:   strings.TrimSpace(issuer),
		audience: strings.TrimSpace(audience),
	}
}

// Verify checks signature, issuer, audience and expiry of the provider token.
func (v *JWKSVerifier) Verify(ctx context.Context, rawToken string) (Identity, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return Identity{}, &VerificationError{Reason: "empty token"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, &VerificationError{Reason: "verification canceled", Err: err}
	}

	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}))
	parsed, err := parser.ParseWithClaims(rawToken, &providerClaims{}, v.jwks.Keyfunc)
	if err != nil {
		return Identity{}, &VerificationError{Reason: "token rejected by provider keys", Err: err}
	}
	claims, ok := parsed.Claims.(*providerClaims)
	if !ok || !parsed.Valid {
		return Identity{}, &VerificationError{Reason: "token rejected by provider keys"}
	}
	if v.issuer != "" && !strings.EqualFold(claims.Issuer, v.issuer) {
		return Identity{}, &VerificationError{Reason: "unexpected issuer " + claims.Issuer}
	}
	if v.audience != "" && !hasAudience(claims.Audience, v.audience) {
		return Identity{}, &VerificationError{Reason: "audience mismatch"}
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Identity{}, &VerificationError{Reason: "subject missing"}
	}
	return Identity{
		SubjectID:   subject,
		Email:       strings.TrimSpace(claims.Email),
		DisplayName: strings.TrimSpace(claims.Name),
	}, nil
}

func hasAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if strings.EqualFold(a, want) {
			return true
		}
	}
	return false
}

// Disabled is the verifier used when no identity provider is configured.
// Every call fails with a typed error so the gateway falls back to local
// session tokens.
type Disabled struct{}

func (Disabled) Verify(ctx context.Context, rawToken string) (Identity, error) {
	return Identity{}, &VerificationError{Reason: "identity provider is not configured"}
}
