// Package auth establishes the request-scoped principal from inbound bearer
// credentials, trying the identity provider first and falling back to locally
// issued session tokens.
package auth

import (
	"context"
	"strings"
)

// AuthorityAdmin marks principals allowed to perform administrative actions.
const AuthorityAdmin = "ADMIN"

// Principal is the authenticated identity attached to a single request.
// It is created fresh per request and never persisted.
type Principal struct {
	SubjectID   string
	Email       string
	IsAdmin     bool
	Authorities map[string]struct{}
}

// NewPrincipal constructs a principal; admins carry the ADMIN authority.
func NewPrincipal(subjectID, email string, isAdmin bool) Principal {
	p := Principal{
		SubjectID:   strings.TrimSpace(subjectID),
		Email:       strings.TrimSpace(email),
		IsAdmin:     isAdmin,
		Authorities: map[string]struct{}{},
	}
	if isAdmin {
		p.Authorities[AuthorityAdmin] = struct{}{}
	}
	return p
}

// HasAuthority reports whether the principal carries the given authority.
func (p Principal) HasAuthority(key string) bool {
	_, ok := p.Authorities[key]
	return ok
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}

// SubjectIDFromContext returns the authenticated subject id, if any.
func SubjectIDFromContext(ctx context.Context) (string, bool) {
	p, ok := PrincipalFromContext(ctx)
	if !ok || p.SubjectID == "" {
		return "", false
	}
	return p.SubjectID, true
}
