package ticket

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"breakglass.org/internal/audit"
	"breakglass.org/internal/ids"
	"breakglass.org/internal/obs"
)

const ticketIDPrefix = "FF-"

// CreateRequest carries the caller-supplied fields for a new ticket.
type CreateRequest struct {
	Description      string
	UserID           string
	EmergencyType    string
	EmergencyContact string
	DurationMinutes  *int
}

// UpdateRequest is a partial update; nil fields are left untouched.
type UpdateRequest struct {
	Description      *string
	Status           *Status
	EmergencyType    *string
	EmergencyContact *string
	DurationMinutes  *int
}

// Service provides ticket lifecycle operations.
type Service struct {
	store     Store
	now       func() time.Time
	onClosed  func(ctx context.Context, t *Ticket)
	newID     func() string
	newTicket func() string
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithCloseHook registers a callback invoked for every ticket the expiry
// sweep closes, after the state change is persisted.
func WithCloseHook(fn func(ctx context.Context, t *Ticket)) ServiceOption {
	return func(s *Service) {
		s.onClosed = fn
	}
}

// NewService constructs a ticket service over the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		now:       time.Now,
		newID:     ids.New,
		newTicket: newTicketID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newTicketID generates the human-readable ticket identifier: a fixed prefix
// plus a random token.
func newTicketID() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ticketIDPrefix + strings.ToUpper(raw[:8])
}

// Create opens a new active ticket.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Ticket, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(req.EmergencyType) == "" {
		return nil, fmt.Errorf("%w: emergency type is required", ErrValidation)
	}
	if req.DurationMinutes != nil && *req.DurationMinutes <= 0 {
		return nil, fmt.Errorf("%w: duration must be greater than zero", ErrValidation)
	}

	now := s.now().UTC()
	t := &Ticket{
		ID:               s.newID(),
		TicketID:         s.newTicket(),
		Description:      strings.TrimSpace(req.Description),
		Status:           StatusActive,
		UserID:           userID,
		EmergencyType:    strings.TrimSpace(req.EmergencyType),
		EmergencyContact: strings.TrimSpace(req.EmergencyContact),
		DurationMinutes:  req.DurationMinutes,
		CreatedAt:        now,
		RequestDate:      now,
	}
	err := s.store.Create(ctx, t)
	if errors.Is(err, ErrDuplicateID) {
		// Random collisions are vanishingly rare; one retry covers them.
		t.TicketID = s.newTicket()
		err = s.store.Create(ctx, t)
	}
	if err != nil {
		return nil, err
	}

	_ = audit.LogEvent(ctx, "ticket.created", map[string]any{
		"ticket_id":      t.TicketID,
		"user_id":        t.UserID,
		"emergency_type": t.EmergencyType,
	})
	return t, nil
}

// Get loads a ticket by internal id.
func (s *Service) Get(ctx context.Context, id string) (*Ticket, error) {
	return s.store.Find(ctx, strings.TrimSpace(id))
}

// GetByTicketID loads a ticket by its human-readable id.
func (s *Service) GetByTicketID(ctx context.Context, ticketID string) (*Ticket, error) {
	return s.store.FindByTicketID(ctx, strings.TrimSpace(ticketID))
}

// List returns all tickets.
func (s *Service) List(ctx context.Context) ([]*Ticket, error) {
	return s.store.List(ctx)
}

// ListByUser returns the tickets owned by one user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Ticket, error) {
	return s.store.ListByUser(ctx, strings.TrimSpace(userID))
}

// Update applies a partial update. Tickets in a terminal state are immutable;
// REJECTED cannot be reached through Update because it requires a reason
// (use Revoke).
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Ticket, error) {
	t, err := s.store.Find(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, fmt.Errorf("%w: ticket %s is %s and can no longer change", ErrValidation, t.TicketID, t.Status)
	}
	if req.Status != nil {
		next := *req.Status
		if !next.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, next)
		}
		if next == StatusRejected {
			return nil, fmt.Errorf("%w: rejection requires a reason, use revoke", ErrValidation)
		}
		if next != t.Status {
			t.Status = next
			if next.Terminal() {
				now := s.now().UTC()
				t.CompletedAt = &now
			}
		}
	}
	if req.Description != nil {
		t.Description = strings.TrimSpace(*req.Description)
	}
	if req.EmergencyType != nil {
		t.EmergencyType = strings.TrimSpace(*req.EmergencyType)
	}
	if req.EmergencyContact != nil {
		t.EmergencyContact = strings.TrimSpace(*req.EmergencyContact)
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			return nil, fmt.Errorf("%w: duration must be greater than zero", ErrValidation)
		}
		t.DurationMinutes = req.DurationMinutes
	}
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Revoke rejects an active ticket. The reason is mandatory and becomes part
// of the record.
func (s *Service) Revoke(ctx context.Context, id, actorID, reason string) (*Ticket, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("%w: reject reason is required", ErrValidation)
	}
	t, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, fmt.Errorf("%w: ticket %s is already %s", ErrValidation, t.TicketID, t.Status)
	}
	now := s.now().UTC()
	t.Status = StatusRejected
	t.RejectReason = reason
	t.CompletedAt = &now
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "ticket.revoked", map[string]any{
		"ticket_id": t.TicketID,
		"actor_id":  strings.TrimSpace(actorID),
		"reason":    reason,
	})
	return t, nil
}

// Complete marks an active ticket as finished by its owner.
func (s *Service) Complete(ctx context.Context, id, actorID string) (*Ticket, error) {
	t, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, fmt.Errorf("%w: ticket %s is already %s", ErrValidation, t.TicketID, t.Status)
	}
	now := s.now().UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	if err := s.store.Update(ctx, t); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "ticket.completed", map[string]any{
		"ticket_id": t.TicketID,
		"actor_id":  strings.TrimSpace(actorID),
	})
	return t, nil
}

// Delete removes a ticket record entirely (admin only).
func (s *Service) Delete(ctx context.Context, id, actorID string) error {
	t, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, t.ID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "ticket.deleted", map[string]any{
		"ticket_id": t.TicketID,
		"actor_id":  strings.TrimSpace(actorID),
	})
	return nil
}

// find resolves either the internal id or the human-readable ticket id.
func (s *Service) find(ctx context.Context, id string) (*Ticket, error) {
	id = strings.TrimSpace(id)
	t, err := s.store.Find(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return s.store.FindByTicketID(ctx, id)
	}
	return t, err
}

// CloseExpired runs one expiry sweep pass: every active ticket whose
// allotted duration has elapsed is closed. A failing ticket is logged and
// skipped; the pass always runs to completion. Re-running with nothing newly
// expired is a no-op.
func (s *Service) CloseExpired(ctx context.Context) (closed, failed int, err error) {
	candidates, err := s.store.ListActiveWithDuration(ctx)
	if err != nil {
		return 0, 0, err
	}
	now := s.now().UTC()
	for _, t := range candidates {
		expiry, ok := t.ExpiresAt()
		if !ok || !now.After(expiry) {
			continue
		}
		completedAt := now
		t.Status = StatusClosed
		t.CompletedAt = &completedAt
		if uerr := s.store.Update(ctx, t); uerr != nil {
			failed++
			obs.LogEntry(map[string]any{
				"ts":        now.Format(time.RFC3339Nano),
				"level":     "error",
				"msg":       "sweep_close_failed",
				"ticket_id": t.TicketID,
				"error":     uerr.Error(),
			})
			continue
		}
		closed++
		_ = audit.LogEvent(ctx, "ticket.expired_closed", map[string]any{
			"ticket_id": t.TicketID,
			"user_id":   t.UserID,
		})
		if s.onClosed != nil {
			s.onClosed(ctx, t)
		}
	}
	return closed, failed, nil
}
