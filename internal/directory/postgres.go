package directory

import (
	"context"
	"database/sql"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`insert into users(subject_id, username, email, department, role, is_authorized, is_admin, last_login_at, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.SubjectID, u.Username, u.Email, nullable(u.Department), nullable(u.Role),
		u.IsAuthorized, u.IsAdmin, u.LastLoginAt, u.CreatedAt,
	)
	return err
}

func (s *PGStore) Find(ctx context.Context, subjectID string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`select subject_id, username, email, department, role, is_authorized, is_admin, last_login_at, created_at
		 from users where subject_id=$1`, subjectID)
	return scanUser(row)
}

func (s *PGStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select subject_id, username, email, department, role, is_authorized, is_admin, last_login_at, created_at
		 from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PGStore) Update(ctx context.Context, u *User) error {
	res, err := s.db.ExecContext(ctx,
		`update users set username=$2, email=$3, department=$4, role=$5, is_authorized=$6, is_admin=$7, last_login_at=$8
		 where subject_id=$1`,
		u.SubjectID, u.Username, u.Email, nullable(u.Department), nullable(u.Role),
		u.IsAuthorized, u.IsAdmin, u.LastLoginAt,
	)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Delete(ctx context.Context, subjectID string) error {
	res, err := s.db.ExecContext(ctx, `delete from users where subject_id=$1`, subjectID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Exists(ctx context.Context, subjectID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `select exists(select 1 from users where subject_id=$1)`, subjectID)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u          User
		department sql.NullString
		role       sql.NullString
	)
	if err := row.Scan(&u.SubjectID, &u.Username, &u.Email, &department, &role,
		&u.IsAuthorized, &u.IsAdmin, &u.LastLoginAt, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	u.Department = department.String
	u.Role = role.String
	return &u, nil
}

func nullable(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
