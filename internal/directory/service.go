package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"breakglass.org/internal/audit"
)

// Service provides the user-directory operations consumed by the HTTP layer.
type Service struct {
	store Store
	now   func() time.Time
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

// NewService constructs a directory service over the given store.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyOrCreate records a successful identity verification. Unknown
// subjects get a fresh record with both flags off; known subjects get their
// last-login timestamp bumped. The subject id is the uniqueness key, so
// repeated calls never create duplicates.
func (s *Service) VerifyOrCreate(ctx context.Context, subjectID, username, email, department string) (*User, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject id is required", ErrInvalidInput)
	}
	now := s.now().UTC()

	user, err := s.store.Find(ctx, subjectID)
	switch {
	case err == nil:
		user.LastLoginAt = now
		if err := s.store.Update(ctx, user); err != nil {
			return nil, err
		}
		_ = audit.LogEvent(ctx, "directory.user.login", map[string]any{
			"subject_id": subjectID,
		})
		return user, nil
	case errors.Is(err, ErrNotFound):
		user = &User{
			SubjectID:    subjectID,
			Username:     strings.TrimSpace(username),
			Email:        strings.TrimSpace(email),
			Department:   strings.TrimSpace(department),
			IsAuthorized: false,
			IsAdmin:      false,
			LastLoginAt:  now,
			CreatedAt:    now,
		}
		if err := s.store.Create(ctx, user); err != nil {
			return nil, err
		}
		_ = audit.LogEvent(ctx, "directory.user.created", map[string]any{
			"subject_id": subjectID,
			"email":      user.Email,
		})
		return user, nil
	default:
		return nil, err
	}
}

// Authorize grants the subject elevated-access eligibility.
func (s *Service) Authorize(ctx context.Context, subjectID, actorID string) (*User, error) {
	return s.setAuthorized(ctx, subjectID, actorID, true)
}

// RevokeAuthorization withdraws elevated-access eligibility.
func (s *Service) RevokeAuthorization(ctx context.Context, subjectID, actorID string) (*User, error) {
	return s.setAuthorized(ctx, subjectID, actorID, false)
}

func (s *Service) setAuthorized(ctx context.Context, subjectID, actorID string, authorized bool) (*User, error) {
	user, err := s.store.Find(ctx, strings.TrimSpace(subjectID))
	if err != nil {
		return nil, err
	}
	user.IsAuthorized = authorized
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	event := "directory.user.authorized"
	if !authorized {
		event = "directory.user.authorization_revoked"
	}
	_ = audit.LogEvent(ctx, event, map[string]any{
		"subject_id": user.SubjectID,
		"actor_id":   strings.TrimSpace(actorID),
	})
	return user, nil
}

// AssignRole sets the subject's role; last write wins.
func (s *Service) AssignRole(ctx context.Context, subjectID, roleName, actorID string) (*User, error) {
	user, err := s.store.Find(ctx, strings.TrimSpace(subjectID))
	if err != nil {
		return nil, err
	}
	user.Role = strings.TrimSpace(roleName)
	if err := s.store.Update(ctx, user); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "directory.user.role_assigned", map[string]any{
		"subject_id": user.SubjectID,
		"role":       user.Role,
		"actor_id":   strings.TrimSpace(actorID),
	})
	return user, nil
}

// Get loads a single user record.
func (s *Service) Get(ctx context.Context, subjectID string) (*User, error) {
	return s.store.Find(ctx, strings.TrimSpace(subjectID))
}

// List returns all user records.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.store.List(ctx)
}
