package ticket

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func ticketRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "ticket_id", "description", "status", "user_id",
		"emergency_type", "emergency_contact", "duration_minutes", "created_at",
		"request_date", "completed_at", "reject_reason"})
}

func TestPGStoreCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec(`insert into tickets`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	store := NewPGStore(db)
	err = store.Create(context.Background(), &Ticket{
		ID:            "01A",
		TicketID:      "FF-AAAA1111",
		Status:        StatusActive,
		UserID:        "u1",
		EmergencyType: "X",
		CreatedAt:     time.Now(),
		RequestDate:   time.Now(),
	})
	if !errors.Is(err, ErrDuplicateID) {
		t.Fatalf("expected ErrDuplicateID, got %v", err)
	}
}

func TestPGStoreFindByTicketID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`select .+ from tickets where ticket_id=\$1`).
		WithArgs("FF-AAAA1111").
		WillReturnRows(ticketRows().
			AddRow("01A", "FF-AAAA1111", "db access", "ACTIVE", "u1", "DB_OUTAGE",
				nil, 30, now, now, nil, nil))

	store := NewPGStore(db)
	got, err := store.FindByTicketID(context.Background(), "FF-AAAA1111")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusActive || got.DurationMinutes == nil || *got.DurationMinutes != 30 {
		t.Fatalf("unexpected ticket: %+v", got)
	}
	if got.EmergencyContact != "" || got.CompletedAt != nil || got.RejectReason != "" {
		t.Fatalf("null columns not mapped to zero values: %+v", got)
	}
}

func TestPGStoreListActiveWithDuration(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery(`select .+ from tickets\s+where status=\$1 and duration_minutes is not null`).
		WithArgs("ACTIVE").
		WillReturnRows(ticketRows().
			AddRow("01A", "FF-AAAA1111", "", "ACTIVE", "u1", "X", nil, 30, now, now, nil, nil).
			AddRow("01B", "FF-BBBB2222", "", "ACTIVE", "u2", "X", nil, 60, now, now, nil, nil))

	store := NewPGStore(db)
	got, err := store.ListActiveWithDuration(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(got))
	}
}

func TestPGStoreUpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec(`update tickets set`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	err = store.Update(context.Background(), &Ticket{ID: "ghost", Status: StatusClosed})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPGStoreDeleteNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec(`delete from tickets where id=\$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	if err := store.Delete(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
