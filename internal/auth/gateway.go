package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"breakglass.org/internal/identity"
	"breakglass.org/internal/token"
)

// Client-visible rejection codes. The gateway collapses every token and
// provider failure into exactly these two so raw errors never leak out.
const (
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeInvalidToken = "INVALID_TOKEN"
)

// Decision is the terminal outcome of authenticating one request.
type Decision int

const (
	// DecisionAnonymous lets the request proceed without a principal.
	DecisionAnonymous Decision = iota
	// DecisionAuthenticated attaches a principal to the request.
	DecisionAuthenticated
	// DecisionRejected short-circuits the request with 401.
	DecisionRejected
)

// Result carries the gateway decision plus its payload.
type Result struct {
	Decision  Decision
	Principal Principal
	Code      string
	Message   string
}

const defaultVerifyTimeout = 5 * time.Second

// Gateway decides which verification path applies to a bearer credential.
type Gateway struct {
	idp           identity.Verifier
	codec         *token.Codec
	verifyTimeout time.Duration
}

// GatewayOption configures Gateway behavior.
type GatewayOption func(*Gateway)

// WithVerifyTimeout bounds the identity-provider verification call.
func WithVerifyTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.verifyTimeout = d
		}
	}
}

// NewGateway wires the two verification paths.
func NewGateway(idp identity.Verifier, codec *token.Codec, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		idp:           idp,
		codec:         codec,
		verifyTimeout: defaultVerifyTimeout,
	}
	if g.idp == nil {
		g.idp = identity.Disabled{}
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authenticate resolves one bearer credential into a terminal decision.
//
// The identity provider is always tried before the local codec when the
// credential is shaped like a signed token; a credential that neither
// verifier recognizes as its own shape is treated as absent rather than
// rejected, leaving the decision to downstream authorization rules.
func (g *Gateway) Authenticate(ctx context.Context, credential string) Result {
	credential = strings.TrimSpace(credential)
	if credential == "" || !looksLikeSignedToken(credential) {
		return Result{Decision: DecisionAnonymous}
	}

	vctx, cancel := context.WithTimeout(ctx, g.verifyTimeout)
	id, err := g.idp.Verify(vctx, credential)
	cancel()
	if err == nil {
		// Provider tokens carry no authority claims; admin rights require a
		// locally issued session token.
		return Result{
			Decision:  DecisionAuthenticated,
			Principal: NewPrincipal(id.SubjectID, id.Email, false),
		}
	}
	// An expired provider token is conclusive: the provider recognized it as
	// its own, so the local codec cannot rehabilitate it.
	var verr *identity.VerificationError
	if errors.As(err, &verr) && verr.Expired() {
		return rejected(CodeTokenExpired, "identity token has expired")
	}

	claims, cerr := g.codec.Claims(credential)
	if cerr != nil {
		if errors.Is(cerr, token.ErrExpired) {
			return rejected(CodeTokenExpired, "session token has expired")
		}
		return rejected(CodeInvalidToken, "credential could not be validated")
	}
	if !g.codec.Validate(credential, claims.Subject) {
		if g.codec.IsExpired(credential) {
			return rejected(CodeTokenExpired, "session token has expired")
		}
		return rejected(CodeInvalidToken, "credential could not be validated")
	}
	return Result{
		Decision:  DecisionAuthenticated,
		Principal: NewPrincipal(claims.Subject, claims.Email, claims.Admin),
	}
}

func rejected(code, message string) Result {
	return Result{Decision: DecisionRejected, Code: code, Message: message}
}

// looksLikeSignedToken reports whether the credential has the three-segment
// shape of a signed token. Anything else is treated as an absent credential.
func looksLikeSignedToken(credential string) bool {
	segments := strings.Split(credential, ".")
	if len(segments) != 3 {
		return false
	}
	for _, s := range segments {
		if s == "" {
			return false
		}
	}
	return true
}
