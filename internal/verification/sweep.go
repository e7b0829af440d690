package verification

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper periodically force-resolves stuck verifications.
type Sweeper struct {
	manager  *Manager
	timeout  time.Duration
	interval time.Duration
	logger   *slog.Logger
}

func NewSweeper(manager *Manager, timeout, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{manager: manager, timeout: timeout, interval: interval, logger: logger}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			resolved, err := s.manager.ResolveStuck(ctx, s.timeout)
			if err != nil {
				s.logger.ErrorContext(ctx, "stuck verification sweep failed", "error", err)
				continue
			}
			if resolved > 0 {
				s.logger.InfoContext(ctx, "stuck verifications routed to manual review", "count", resolved)
			}
		}
	}
}
