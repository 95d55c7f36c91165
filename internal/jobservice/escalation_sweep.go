package jobservice

import (
	"context"
	"log/slog"
	"time"
)

// RunEscalationSweep runs SweepEscalations on a fixed interval until ctx is
// cancelled, grounded on the teacher's pkg/queue/worker.go ticker-driven
// sweep loop. Intended to be started as its own goroutine from cmd/fieldops.
func (s *Service) RunEscalationSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	log := slog.With("component", "jobservice.escalation_sweep")

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.SweepEscalations(ctx, now)
			if err != nil {
				log.Error("escalation sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("escalation sweep raised job priority", "count", n)
			}
		}
	}
}
