package ticket

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var _ Store = (*PGStore)(nil)

const pgUniqueViolation = "23505"

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const ticketColumns = `id, ticket_id, description, status, user_id, emergency_type, emergency_contact,
	duration_minutes, created_at, request_date, completed_at, reject_reason`

func (s *PGStore) Create(ctx context.Context, t *Ticket) error {
	_, err := s.db.ExecContext(ctx,
		`insert into tickets(`+ticketColumns+`)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		t.ID, t.TicketID, t.Description, string(t.Status), t.UserID,
		t.EmergencyType, nullString(t.EmergencyContact), t.DurationMinutes,
		t.CreatedAt, t.RequestDate, t.CompletedAt, nullString(t.RejectReason),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateID
	}
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+ticketColumns+` from tickets where id=$1`, id)
	return scanTicket(row)
}

func (s *PGStore) FindByTicketID(ctx context.Context, ticketID string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+ticketColumns+` from tickets where ticket_id=$1`, ticketID)
	return scanTicket(row)
}

func (s *PGStore) List(ctx context.Context) ([]*Ticket, error) {
	return s.queryTickets(ctx,
		`select `+ticketColumns+` from tickets order by created_at desc`)
}

func (s *PGStore) ListByUser(ctx context.Context, userID string) ([]*Ticket, error) {
	return s.queryTickets(ctx,
		`select `+ticketColumns+` from tickets where user_id=$1 order by created_at desc`, userID)
}

func (s *PGStore) ListActiveWithDuration(ctx context.Context) ([]*Ticket, error) {
	return s.queryTickets(ctx,
		`select `+ticketColumns+` from tickets
		 where status=$1 and duration_minutes is not null`, string(StatusActive))
}

func (s *PGStore) Update(ctx context.Context, t *Ticket) error {
	res, err := s.db.ExecContext(ctx,
		`update tickets set description=$2, status=$3, emergency_type=$4, emergency_contact=$5,
		 duration_minutes=$6, completed_at=$7, reject_reason=$8 where id=$1`,
		t.ID, t.Description, string(t.Status), t.EmergencyType, nullString(t.EmergencyContact),
		t.DurationMinutes, t.CompletedAt, nullString(t.RejectReason),
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

func (s *PGStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from tickets where id=$1`, id)
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

func (s *PGStore) queryTickets(ctx context.Context, query string, args ...any) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (*Ticket, error) {
	var (
		t            Ticket
		status       string
		contact      sql.NullString
		duration     sql.NullInt64
		completedAt  sql.NullTime
		rejectReason sql.NullString
	)
	if err := row.Scan(&t.ID, &t.TicketID, &t.Description, &status, &t.UserID,
		&t.EmergencyType, &contact, &duration, &t.CreatedAt, &t.RequestDate,
		&completedAt, &rejectReason); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	t.Status = Status(status)
	t.EmergencyContact = contact.String
	if duration.Valid {
		minutes := int(duration.Int64)
		t.DurationMinutes = &minutes
	}
	if completedAt.Valid {
		at := completedAt.Time
		t.CompletedAt = &at
	}
	t.RejectReason = rejectReason.String
	return &t, nil
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
