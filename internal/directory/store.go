package directory

import "context"

// Store describes persistence operations required by the user directory.
type Store interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, subjectID string) (*User, error)
	List(ctx context.Context) ([]*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, subjectID string) error
	Exists(ctx context.Context, subjectID string) (bool, error)
}
