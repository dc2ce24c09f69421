// Package ticket implements the emergency-access ticket lifecycle: creation,
// admin revocation, completion, and the periodic expiry sweep that closes
// tickets whose allotted duration has elapsed.
package ticket

import (
	"errors"
	"time"
)

var (
	ErrNotFound    = errors.New("ticket: not found")
	ErrDuplicateID = errors.New("ticket: duplicate ticket id")
	ErrValidation  = errors.New("ticket: validation failed")
)

// Status enumerates the ticket state machine. ACTIVE is the only non-terminal
// state; transitions are one-directional.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
	StatusClosed    Status = "CLOSED"
)

// Valid reports whether the value is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusRejected, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether a ticket in this status can still change.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusClosed
}

// Ticket is one time-boxed elevated-access grant.
type Ticket struct {
	ID               string     `json:"id"`
	TicketID         string     `json:"ticket_id"`
	Description      string     `json:"description"`
	Status           Status     `json:"status"`
	UserID           string     `json:"user_id"`
	EmergencyType    string     `json:"emergency_type"`
	EmergencyContact string     `json:"emergency_contact,omitempty"`
	DurationMinutes  *int       `json:"duration_minutes,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	RequestDate      time.Time  `json:"request_date"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RejectReason     string     `json:"reject_reason,omitempty"`
}

// ExpiresAt returns the instant the ticket's allotted duration runs out.
// Tickets without a duration never expire.
func (t *Ticket) ExpiresAt() (time.Time, bool) {
	if t.DurationMinutes == nil {
		return time.Time{}, false
	}
	return t.CreatedAt.Add(time.Duration(*t.DurationMinutes) * time.Minute), true
}
