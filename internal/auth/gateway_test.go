package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"breakglass.org/internal/identity"
	"breakglass.org/internal/token"
)

type fakeVerifier struct {
	id  identity.Identity
	err error
}

func (f fakeVerifier) Verify(ctx context.Context, raw string) (identity.Identity, error) {
	if f.err != nil {
		return identity.Identity{}, f.err
	}
	return f.id, nil
}

func newCodec(t *testing.T, opts ...token.Option) *token.Codec {
	t.Helper()
	c, err := token.New("gateway-test-secret", time.Hour, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestAuthenticateEmptyCredentialIsAnonymous(t *testing.T) {
	g := NewGateway(identity.Disabled{}, newCodec(t))
	res := g.Authenticate(context.Background(), "")
	if res.Decision != DecisionAnonymous {
		t.Fatalf("decision = %v, want anonymous", res.Decision)
	}
}

func TestAuthenticateOpaqueCredentialIsAnonymous(t *testing.T) {
	g := NewGateway(identity.Disabled{}, newCodec(t))
	for _, cred := range []string{"abc", "a.b", "a.b.c.d", "..", "a..c"} {
		if res := g.Authenticate(context.Background(), cred); res.Decision != DecisionAnonymous {
			t.Fatalf("credential %q: decision = %v, want anonymous", cred, res.Decision)
		}
	}
}

func TestAuthenticateProviderTokenWins(t *testing.T) {
	idp := fakeVerifier{id: identity.Identity{SubjectID: "idp-user", Email: "idp@example.com"}}
	g := NewGateway(idp, newCodec(t))

	res := g.Authenticate(context.Background(), "aaa.bbb.ccc")
	if res.Decision != DecisionAuthenticated {
		t.Fatalf("decision = %v, want authenticated", res.Decision)
	}
	if res.Principal.SubjectID != "idp-user" || res.Principal.Email != "idp@example.com" {
		t.Fatalf("unexpected principal: %+v", res.Principal)
	}
	if res.Principal.IsAdmin || res.Principal.HasAuthority(AuthorityAdmin) {
		t.Fatal("provider tokens must never grant admin")
	}
}

func TestAuthenticateFallsBackToSessionToken(t *testing.T) {
	codec := newCodec(t)
	raw, _, err := codec.Issue("local-admin", "a@example.com", true)
	if err != nil {
		t.Fatal(err)
	}
	idp := fakeVerifier{err: &identity.VerificationError{Reason: "unknown key"}}
	g := NewGateway(idp, codec)

	res := g.Authenticate(context.Background(), raw)
	if res.Decision != DecisionAuthenticated {
		t.Fatalf("decision = %v, want authenticated", res.Decision)
	}
	if res.Principal.SubjectID != "local-admin" || !res.Principal.IsAdmin {
		t.Fatalf("unexpected principal: %+v", res.Principal)
	}
	if !res.Principal.HasAuthority(AuthorityAdmin) {
		t.Fatal("admin session token must grant ADMIN authority")
	}
}

func TestAuthenticateExpiredSessionToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer := newCodec(t, token.WithClock(func() time.Time { return past }))
	raw, _, err := issuer.Issue("user-1", "", false)
	if err != nil {
		t.Fatal(err)
	}

	g := NewGateway(identity.Disabled{}, newCodec(t))
	res := g.Authenticate(context.Background(), raw)
	if res.Decision != DecisionRejected {
		t.Fatalf("decision = %v, want rejected", res.Decision)
	}
	if res.Code != CodeTokenExpired {
		t.Fatalf("code = %q, want %q", res.Code, CodeTokenExpired)
	}
}

func TestAuthenticateExpiredProviderToken(t *testing.T) {
	idp := fakeVerifier{err: &identity.VerificationError{Reason: "expired", Err: jwt.ErrTokenExpired}}
	g := NewGateway(idp, newCodec(t))

	res := g.Authenticate(context.Background(), "aaa.bbb.ccc")
	if res.Decision != DecisionRejected {
		t.Fatalf("decision = %v, want rejected", res.Decision)
	}
	if res.Code != CodeTokenExpired {
		t.Fatalf("code = %q, want %q", res.Code, CodeTokenExpired)
	}
}

func TestAuthenticateForgedTokenIsRejected(t *testing.T) {
	other, err := token.New("completely-different-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	raw, _, err := other.Issue("user-1", "", false)
	if err != nil {
		t.Fatal(err)
	}

	g := NewGateway(identity.Disabled{}, newCodec(t))
	res := g.Authenticate(context.Background(), raw)
	if res.Decision != DecisionRejected {
		t.Fatalf("decision = %v, want rejected", res.Decision)
	}
	if res.Code != CodeInvalidToken {
		t.Fatalf("code = %q, want %q", res.Code, CodeInvalidToken)
	}
	if res.Message == "" {
		t.Fatal("rejection must carry a message")
	}
}

func TestAuthenticateNilVerifierDefaultsToDisabled(t *testing.T) {
	codec := newCodec(t)
	raw, _, err := codec.Issue("user-1", "", false)
	if err != nil {
		t.Fatal(err)
	}
	g := NewGateway(nil, codec)
	res := g.Authenticate(context.Background(), raw)
	if res.Decision != DecisionAuthenticated {
		t.Fatalf("decision = %v, want authenticated", res.Decision)
	}
}

func TestPrincipalContextRoundTrip(t *testing.T) {
	p := NewPrincipal("user-1", "u@example.com", true)
	ctx := ContextWithPrincipal(context.Background(), p)

	got, ok := PrincipalFromContext(ctx)
	if !ok || got.SubjectID != "user-1" {
		t.Fatalf("principal = %+v, ok=%v", got, ok)
	}
	if sub, ok := SubjectIDFromContext(ctx); !ok || sub != "user-1" {
		t.Fatalf("subject = %q, ok=%v", sub, ok)
	}
	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Fatal("empty context must not yield a principal")
	}
}
