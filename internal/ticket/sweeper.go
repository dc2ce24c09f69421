package ticket

import (
	"context"
	"time"

	"breakglass.org/internal/obs"
)

// DefaultSweepInterval is how often the expiry sweep runs when not
// configured otherwise.
const DefaultSweepInterval = 2 * time.Minute

// Sweeper drives the periodic expiry sweep on its own goroutine, independent
// of request traffic.
type Sweeper struct {
	svc      *Service
	interval time.Duration
}

// NewSweeper constructs a sweeper for the given service.
func NewSweeper(svc *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{svc: svc, interval: interval}
}

// Run sweeps once immediately, then on every tick until ctx ends. A cycle
// that fails outright is logged and retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	closed, failed, err := s.svc.CloseExpired(ctx)
	if err != nil {
		obs.LogEntry(map[string]any{
			"ts":    time.Now().UTC().Format(time.RFC3339Nano),
			"level": "error",
			"msg":   "sweep_cycle_failed",
			"error": err.Error(),
		})
		return
	}
	obs.ObserveSweep(closed, failed)
	if closed > 0 || failed > 0 {
		obs.LogEntry(map[string]any{
			"ts":     time.Now().UTC().Format(time.RFC3339Nano),
			"level":  "info",
			"msg":    "sweep_complete",
			"closed": closed,
			"failed": failed,
		})
	}
}
