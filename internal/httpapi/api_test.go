package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"breakglass.org/internal/auth"
	"breakglass.org/internal/directory"
	"breakglass.org/internal/identity"
	"breakglass.org/internal/stream"
	"breakglass.org/internal/ticket"
	"breakglass.org/internal/token"
)

type testAPI struct {
	baseURL string
	client  *http.Client
	codec   *token.Codec
	users   *directory.Service
	tickets *ticket.Service
	t       *testing.T
}

// newTestAPI spins up the full handler chain over in-memory stores with a
// seeded admin ("admin-1") and regular user ("user-1").
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	codec, err := token.New("httpapi-test-secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	userStore := directory.NewInMemory()
	now := time.Now().UTC()
	seed := []*directory.User{
		{SubjectID: "admin-1", Username: "admin", Email: "admin@example.com", IsAdmin: true, IsAuthorized: true, LastLoginAt: now, CreatedAt: now},
		{SubjectID: "user-1", Username: "jdoe", Email: "jdoe@example.com", LastLoginAt: now, CreatedAt: now},
	}
	for _, u := range seed {
		if err := userStore.Create(t.Context(), u); err != nil {
			t.Fatal(err)
		}
	}

	users := directory.NewService(userStore)
	tickets := ticket.NewService(ticket.NewInMemory())

	api := New(Config{
		Version:  "test",
		Gateway:  auth.NewGateway(identity.Disabled{}, codec),
		Identity: identity.Disabled{},
		Codec:    codec,
		Users:    users,
		Tickets:  tickets,
		Stream:   stream.New(),
	})
	api.rateBurst = 1000
	api.ratePerSec = 1000

	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)

	return &testAPI{
		baseURL: srv.URL,
		client:  srv.Client(),
		codec:   codec,
		users:   users,
		tickets: tickets,
		t:       t,
	}
}

func (a *testAPI) bearerFor(subjectID string, admin bool) string {
	a.t.Helper()
	raw, _, err := a.codec.Issue(subjectID, subjectID+"@example.com", admin)
	if err != nil {
		a.t.Fatal(err)
	}
	return raw
}

func (a *testAPI) do(method, path, bearer string, body any) *http.Response {
	a.t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal body: %v", err)
		}
	}
	req, err := http.NewRequest(method, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		a.t.Fatalf("new request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		a.t.Fatalf("do request: %v", err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
