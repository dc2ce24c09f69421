package ticket

import (
	"context"
	"testing"
	"time"
)

func TestSweeperRunsImmediately(t *testing.T) {
	store := NewInMemory()
	now := time.Now().UTC().Add(-31 * time.Minute)
	svc := NewService(store, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateRequest{UserID: "u", EmergencyType: "X", DurationMinutes: intPtr(30)})
	if err != nil {
		t.Fatal(err)
	}

	// Move the clock past expiry, then let the sweeper take one pass.
	now = now.Add(31 * time.Minute)

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		NewSweeper(svc, time.Hour).Run(runCtx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		got, err := svc.Get(ctx, created.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status == StatusClosed {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("ticket never closed: %+v", got)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}

func TestNewSweeperDefaultsInterval(t *testing.T) {
	s := NewSweeper(NewService(NewInMemory()), 0)
	if s.interval != DefaultSweepInterval {
		t.Fatalf("interval = %v, want %v", s.interval, DefaultSweepInterval)
	}
}
