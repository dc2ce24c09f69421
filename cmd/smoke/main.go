package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"breakglass.org/internal/ticket"
	"breakglass.org/internal/token"
)

// Exercises a running breakglass-api end to end: mints a session token with
// the shared secret, opens a ticket, reads it back and completes it.
func main() {
	base := os.Getenv("BREAKGLASS_SMOKE_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	secret := os.Getenv("BREAKGLASS_TOKEN_SECRET")
	if secret == "" {
		log.Fatal("BREAKGLASS_TOKEN_SECRET is required")
	}

	codec, err := token.New(secret, 10*time.Minute)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	bearer, _, err := codec.Issue("smoke-user", "smoke@example.com", false)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		log.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Fatalf("healthz: unexpected status %d", resp.StatusCode)
	}

	duration := 30
	created := doJSON[ticket.Ticket](client, bearer, http.MethodPost, base+"/v1/tickets", map[string]any{
		"description":      "smoke test access",
		"emergency_type":   "SMOKE",
		"duration_minutes": duration,
	}, http.StatusCreated)
	if created.Status != ticket.StatusActive {
		log.Fatalf("created ticket is %s, want %s", created.Status, ticket.StatusActive)
	}

	fetched := doJSON[ticket.Ticket](client, bearer, http.MethodGet, base+"/v1/tickets/"+created.ID, nil, http.StatusOK)
	if fetched.TicketID != created.TicketID {
		log.Fatalf("fetched ticket %s, want %s", fetched.TicketID, created.TicketID)
	}

	completed := doJSON[ticket.Ticket](client, bearer, http.MethodPost, base+"/v1/tickets/"+created.ID+"/complete", nil, http.StatusOK)
	if completed.Status != ticket.StatusCompleted {
		log.Fatalf("completed ticket is %s, want %s", completed.Status, ticket.StatusCompleted)
	}
	if completed.CompletedAt == nil {
		log.Fatal("completed ticket has no completion timestamp")
	}

	fmt.Printf("✅ breakglass smoke test passed: ticket=%s\n", created.TicketID)
}

func doJSON[T any](client *http.Client, bearer, method, url string, body any, wantStatus int) *T {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			log.Fatalf("%s %s: marshal: %v", method, url, err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		log.Fatalf("%s %s: status %d, want %d", method, url, resp.StatusCode, wantStatus)
	}

	out := new(T)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		log.Fatalf("%s %s: decode: %v", method, url, err)
	}
	return out
}
