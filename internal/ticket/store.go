package ticket

import "context"

// Store describes persistence operations required by the ticket lifecycle.
type Store interface {
	// Create persists a new ticket; a human-readable ticket-id collision
	// surfaces as ErrDuplicateID.
	Create(ctx context.Context, t *Ticket) error
	Find(ctx context.Context, id string) (*Ticket, error)
	FindByTicketID(ctx context.Context, ticketID string) (*Ticket, error)
	List(ctx context.Context) ([]*Ticket, error)
	ListByUser(ctx context.Context, userID string) ([]*Ticket, error)
	// ListActiveWithDuration returns the sweep candidates: active tickets
	// that carry an allotted duration.
	ListActiveWithDuration(ctx context.Context) ([]*Ticket, error)
	Update(ctx context.Context, t *Ticket) error
	Delete(ctx context.Context, id string) error
}
