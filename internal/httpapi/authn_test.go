package httpapi

import (
	"net/http"
	"testing"
	"time"

	"breakglass.org/internal/auth"
	"breakglass.org/internal/token"
)

func TestProtectedRouteRequiresToken(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/v1/tickets", "", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if resp.Header.Get("WWW-Authenticate") == "" {
		t.Fatal("expected WWW-Authenticate header")
	}
}

func TestPublicRoutesSkipAuthentication(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info", "/metrics"} {
		resp := api.do(http.MethodGet, path, "", nil)
		drain(resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestExpiredTokenRejectedEvenOnPublicRoute(t *testing.T) {
	api := newTestAPI(t)

	past := time.Now().Add(-2 * time.Hour)
	issuer, err := token.New("httpapi-test-secret", time.Hour,
		token.WithClock(func() time.Time { return past }))
	if err != nil {
		t.Fatal(err)
	}
	expired, _, err := issuer.Issue("user-1", "", false)
	if err != nil {
		t.Fatal(err)
	}

	resp := api.do(http.MethodGet, "/healthz", expired, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}

	body := decodeBody[map[string]any](t, resp)
	if body["error"] != auth.CodeTokenExpired {
		t.Fatalf("error = %v, want %s", body["error"], auth.CodeTokenExpired)
	}
	if body["requires_reauth"] != true {
		t.Fatalf("requires_reauth = %v, want true", body["requires_reauth"])
	}
	if body["message"] == "" || body["message"] == nil {
		t.Fatal("expected a human-readable message")
	}
}

func TestForgedTokenRejectedWithInvalidCode(t *testing.T) {
	api := newTestAPI(t)

	other, err := token.New("some-other-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	forged, _, err := other.Issue("user-1", "", false)
	if err != nil {
		t.Fatal(err)
	}

	resp := api.do(http.MethodGet, "/v1/tickets", forged, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	body := decodeBody[map[string]any](t, resp)
	if body["error"] != auth.CodeInvalidToken {
		t.Fatalf("error = %v, want %s", body["error"], auth.CodeInvalidToken)
	}
}

func TestOpaqueCredentialTreatedAsAnonymous(t *testing.T) {
	api := newTestAPI(t)

	// Not shaped like a signed token: public routes work, protected do not.
	resp := api.do(http.MethodGet, "/healthz", "some-opaque-key", nil)
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("public route: status = %d, want 200", resp.StatusCode)
	}

	resp = api.do(http.MethodGet, "/v1/tickets", "some-opaque-key", nil)
	drain(resp)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("protected route: status = %d, want 401", resp.StatusCode)
	}
}

func TestValidTokenReachesHandler(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/v1/tickets", api.bearerFor("user-1", false), nil)
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAdminRouteForbiddenForRegularUser(t *testing.T) {
	api := newTestAPI(t)

	resp := api.do(http.MethodGet, "/v1/users", api.bearerFor("user-1", false), nil)
	drain(resp)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}

	resp = api.do(http.MethodGet, "/v1/users", api.bearerFor("admin-1", true), nil)
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin: status = %d, want 200", resp.StatusCode)
	}
}
