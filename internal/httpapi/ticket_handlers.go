package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"breakglass.org/internal/notify"
	"breakglass.org/internal/stream"
	"breakglass.org/internal/ticket"
)

type createTicketRequest struct {
	Description      string `json:"description"`
	UserID           string `json:"user_id"`
	EmergencyType    string `json:"emergency_type"`
	EmergencyContact string `json:"emergency_contact"`
	DurationMinutes  *int   `json:"duration_minutes"`
}

type updateTicketRequest struct {
	Description      *string `json:"description"`
	Status           *string `json:"status"`
	EmergencyType    *string `json:"emergency_type"`
	EmergencyContact *string `json:"emergency_contact"`
	DurationMinutes  *int    `json:"duration_minutes"`
}

type revokeTicketRequest struct {
	AdminUserID  string `json:"admin_user_id"`
	RejectReason string `json:"reject_reason"`
}

func (a *API) handleTicketsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTicket(w, r)
	case http.MethodGet:
		a.listTickets(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createTicket(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	var req createTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Tickets are opened on the caller's own behalf; only admins may open
	// one for somebody else.
	owner := p.SubjectID
	if req.UserID != "" && req.UserID != p.SubjectID {
		if !p.IsAdmin {
			writeError(w, r, http.StatusForbidden, "cannot open a ticket for another user")
			return
		}
		owner = req.UserID
	}

	t, err := a.tickets.Create(r.Context(), ticket.CreateRequest{
		Description:      req.Description,
		UserID:           owner,
		EmergencyType:    req.EmergencyType,
		EmergencyContact: req.EmergencyContact,
		DurationMinutes:  req.DurationMinutes,
	})
	if err != nil {
		handleTicketError(w, r, err)
		return
	}

	a.publishTicketEvent("ticket.created", t)
	a.notifyTicket(r, t, "Emergency access ticket opened", map[string]string{
		"ticket_id":      t.TicketID,
		"emergency_type": t.EmergencyType,
		"status":         string(t.Status),
	})
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) listTickets(w http.ResponseWriter, r *http.Request) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}

	if p.IsAdmin {
		if userID := r.URL.Query().Get("user_id"); userID != "" {
			tickets, err := a.tickets.ListByUser(r.Context(), userID)
			if err != nil {
				handleTicketError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
			return
		}
		tickets, err := a.tickets.List(r.Context())
		if err != nil {
			handleTicketError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
		return
	}

	tickets, err := a.tickets.ListByUser(r.Context(), p.SubjectID)
	if err != nil {
		handleTicketError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": tickets})
}

func (a *API) handleTicketResource(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/tickets/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	id, action, _ := strings.Cut(rest, "/")
	switch action {
	case "":
		a.ticketByID(w, r, id)
	case "revoke":
		a.revokeTicket(w, r, id)
	case "complete":
		a.completeTicket(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) ticketByID(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		a.getTicket(w, r, id)
	case http.MethodPatch:
		a.updateTicket(w, r, id)
	case http.MethodDelete:
		a.deleteTicket(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (a *API) getTicket(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	t, err := a.findTicket(r, id)
	if err != nil {
		handleTicketError(w, r, err)
		return
	}
	if !p.IsAdmin && t.UserID != p.SubjectID {
		writeError(w, r, http.StatusForbidden, "not your ticket")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) updateTicket(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	existing, err := a.findTicket(r, id)
	if err != nil {
		handleTicketError(w, r, err)
		return
	}
	if !p.IsAdmin && existing.UserID != p.SubjectID {
		writeError(w, r, http.StatusForbidden, "not your ticket")
		return
	}

	var req updateTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var status *ticket.Status
	if req.Status != nil {
		s := ticket.Status(strings.ToUpper(strings.TrimSpace(*req.Status)))
		status = &s
	}
	updated, err := a.tickets.Update(r.Context(), existing.ID, ticket.UpdateRequest{
		Description:      req.Description,
		Status:           status,
		EmergencyType:    req.EmergencyType,
		EmergencyContact: req.EmergencyContact,
		DurationMinutes:  req.DurationMinutes,
	})
	if err != nil {
		handleTicketError(w, r, err)
		return
	}
	a.publishTicketEvent("ticket.updated", updated)
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteTicket(w http.ResponseWriter, r *http.Request, id string) {
	p, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}
	if err := a.tickets.Delete(r.Context(), id, p.SubjectID); err != nil {
		handleTicketError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) revokeTicket(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := a.requireAdmin(w, r)
	if !ok {
		return
	}

	var req revokeTicketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.AdminUserID) == "" || strings.TrimSpace(req.RejectReason) == "" {
		writeError(w, r, http.StatusBadRequest, "admin_user_id and reject_reason are required")
		return
	}

	t, err := a.tickets.Revoke(r.Context(), id, p.SubjectID, req.RejectReason)
	if err != nil {
		handleTicketError(w, r, err)
		return
	}

	a.publishTicketEvent("ticket.revoked", t)
	a.notifyTicket(r, t, "Emergency access ticket revoked", map[string]string{
		"ticket_id":     t.TicketID,
		"status":        string(t.Status),
		"reject_reason": t.RejectReason,
	})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) completeTicket(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	p, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	existing, err := a.findTicket(r, id)
	if err != nil {
		handleTicketError(w, r, err)
		return
	}
	if !p.IsAdmin && existing.UserID != p.SubjectID {
		writeError(w, r, http.StatusForbidden, "not your ticket")
		return
	}

	t, err := a.tickets.Complete(r.Context(), existing.ID, p.SubjectID)
	if err != nil {
		handleTicketError(w, r, err)
		return
	}
	a.publishTicketEvent("ticket.completed", t)
	writeJSON(w, http.StatusOK, t)
}

// handleTicketStream serves lifecycle events over SSE until the client hangs
// up. Admin only: the stream crosses user boundaries.
func (a *API) handleTicketStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.requireAdmin(w, r); !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := a.stream.Subscribe(r.Context())
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			writeSSE(w, evt)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, evt stream.Event) {
	fmt.Fprintf(w, "event: %s\n", evt.Event)
	fmt.Fprintf(w, "data: {\"ticket_id\":%q,\"user_id\":%q,\"status\":%q,\"emergency_type\":%q,\"timestamp\":%q}\n\n",
		evt.TicketID, evt.UserID, evt.Status, evt.EmergencyType,
		evt.Timestamp.UTC().Format(time.RFC3339))
}

// findTicket resolves either the internal id or the FF- ticket id.
func (a *API) findTicket(r *http.Request, id string) (*ticket.Ticket, error) {
	t, err := a.tickets.Get(r.Context(), id)
	if err != nil {
		return a.tickets.GetByTicketID(r.Context(), id)
	}
	return t, nil
}

func (a *API) publishTicketEvent(event string, t *ticket.Ticket) {
	if a.stream == nil {
		return
	}
	a.stream.Publish(stream.Event{
		Event:         event,
		TicketID:      t.TicketID,
		UserID:        t.UserID,
		Status:        string(t.Status),
		EmergencyType: t.EmergencyType,
		Timestamp:     time.Now().UTC(),
	})
}

// notifyTicket delivers a best-effort report to the ticket owner.
func (a *API) notifyTicket(r *http.Request, t *ticket.Ticket, subject string, report map[string]string) {
	if a.notifier == nil || a.users == nil {
		return
	}
	user, err := a.users.Get(r.Context(), t.UserID)
	if err != nil || user.Email == "" {
		return
	}
	notify.Deliver(r.Context(), a.notifier, notify.Message{
		RecipientEmail: user.Email,
		Subject:        subject,
		Report:         report,
	})
}
