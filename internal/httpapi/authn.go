package httpapi

import (
	"net/http"
	"strings"

	"breakglass.org/internal/auth"
)

// publicPaths are reachable without a principal. Everything else still passes
// through the gateway so a bad credential is rejected even on open routes.
var publicPaths = map[string]bool{
	"/":                true,
	"/healthz":         true,
	"/readyz":          true,
	"/metrics":         true,
	"/v1/info":         true,
	"/v1/auth/session": true,
}

// withAuth resolves the bearer credential through the gateway. A rejected
// credential terminates the request with 401 before any handler runs; an
// absent credential proceeds anonymously and authorization is enforced per
// route.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		res := a.gateway.Authenticate(r.Context(), extractBearerToken(r))
		switch res.Decision {
		case auth.DecisionRejected:
			payload := map[string]any{
				"error":           res.Code,
				"message":         res.Message,
				"requires_reauth": true,
			}
			if rid := RequestIDFromContext(r.Context()); rid != "" {
				payload["request_id"] = rid
			}
			w.Header().Set("WWW-Authenticate", `Bearer realm="breakglass"`)
			writeJSON(w, http.StatusUnauthorized, payload)
			return
		case auth.DecisionAuthenticated:
			r = r.WithContext(auth.ContextWithPrincipal(r.Context(), res.Principal))
		}

		if _, ok := auth.PrincipalFromContext(r.Context()); !ok && !publicPaths[r.URL.Path] {
			a.unauthenticated(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) unauthenticated(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="breakglass"`)
	writeError(w, r, http.StatusUnauthorized, "authentication required")
}

// requireAdmin loads the principal and enforces the ADMIN authority. The
// second return value reports whether the caller may proceed.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		a.unauthenticated(w, r)
		return auth.Principal{}, false
	}
	if !p.HasAuthority(auth.AuthorityAdmin) {
		writeError(w, r, http.StatusForbidden, "admin privileges required")
		return auth.Principal{}, false
	}
	return p, true
}

func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", `Bearer realm="breakglass"`)
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Principal{}, false
	}
	return p, true
}

// extractBearerToken pulls the credential out of the Authorization header.
// A missing or differently-typed header yields the empty string.
func extractBearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	scheme, rest, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}
