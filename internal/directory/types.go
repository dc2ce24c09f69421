// Package directory maps external identity-provider subjects to internal
// user records and tracks their authorization state.
package directory

import (
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("directory: user not found")
	ErrAlreadyExists = errors.New("directory: user already exists")
	ErrInvalidInput  = errors.New("directory: invalid input")
)

// User is the persistent record for one identity-provider subject.
// The subject id is unique and immutable once created.
type User struct {
	SubjectID    string    `json:"subject_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Department   string    `json:"department,omitempty"`
	Role         string    `json:"role,omitempty"`
	IsAuthorized bool      `json:"is_authorized"`
	IsAdmin      bool      `json:"is_admin"`
	LastLoginAt  time.Time `json:"last_login_at"`
	CreatedAt    time.Time `json:"created_at"`
}
