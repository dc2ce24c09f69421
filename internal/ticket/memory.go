package ticket

import (
	"context"
	"sort"
	"sync"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety. Used in dev
// mode when no database DSN is configured, and by tests.
type InMemory struct {
	mu       sync.RWMutex
	byID     map[string]*Ticket
	byTicket map[string]string // ticket_id -> internal id
}

// NewInMemory creates an empty in-memory ticket store.
func NewInMemory() *InMemory {
	return &InMemory{
		byID:     make(map[string]*Ticket),
		byTicket: make(map[string]string),
	}
}

func (s *InMemory) Create(ctx context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[t.ID]; ok {
		return ErrDuplicateID
	}
	if _, ok := s.byTicket[t.TicketID]; ok {
		return ErrDuplicateID
	}
	cp := clone(t)
	s.byID[t.ID] = cp
	s.byTicket[t.TicketID] = t.ID
	return nil
}

func (s *InMemory) Find(ctx context.Context, id string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

func (s *InMemory) FindByTicketID(ctx context.Context, ticketID string) (*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTicket[ticketID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *InMemory) List(ctx context.Context) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Ticket, 0, len(s.byID))
	for _, t := range s.byID {
		out = append(out, clone(t))
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) ListByUser(ctx context.Context, userID string) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Ticket
	for _, t := range s.byID {
		if t.UserID == userID {
			out = append(out, clone(t))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemory) ListActiveWithDuration(ctx context.Context) ([]*Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Ticket
	for _, t := range s.byID {
		if t.Status == StatusActive && t.DurationMinutes != nil {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, t *Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[t.ID]; !ok {
		return ErrNotFound
	}
	s.byID[t.ID] = clone(t)
	return nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byTicket, t.TicketID)
	delete(s.byID, id)
	return nil
}

func clone(t *Ticket) *Ticket {
	cp := *t
	if t.DurationMinutes != nil {
		minutes := *t.DurationMinutes
		cp.DurationMinutes = &minutes
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		cp.CompletedAt = &at
	}
	return &cp
}

func sortNewestFirst(tickets []*Ticket) {
	sort.Slice(tickets, func(i, j int) bool {
		return tickets[i].CreatedAt.After(tickets[j].CreatedAt)
	})
}
