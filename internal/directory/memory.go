package directory

import (
	"context"
	"sync"
)

var _ Store = (*InMemory)(nil)

// InMemory implements Store with in-process concurrency safety. Used in dev
// mode when no database DSN is configured, and by tests.
type InMemory struct {
	mu    sync.RWMutex
	users map[string]*User
}

// NewInMemory creates an empty in-memory directory store.
func NewInMemory() *InMemory {
	return &InMemory{users: make(map[string]*User)}
}

func (s *InMemory) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.SubjectID]; ok {
		return ErrAlreadyExists
	}
	cp := *u
	s.users[u.SubjectID] = &cp
	return nil
}

func (s *InMemory) Find(ctx context.Context, subjectID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[subjectID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemory) List(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.SubjectID]; !ok {
		return ErrNotFound
	}
	cp := *u
	s.users[u.SubjectID] = &cp
	return nil
}

func (s *InMemory) Delete(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[subjectID]; !ok {
		return ErrNotFound
	}
	delete(s.users, subjectID)
	return nil
}

func (s *InMemory) Exists(ctx context.Context, subjectID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[subjectID]
	return ok, nil
}
