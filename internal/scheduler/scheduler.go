// Package scheduler runs the timer-driven half of proposal resolution: a
// periodic sweep that resolves proposals whose voting window elapsed without
// the convoy reaching quorum. It guarantees every proposal reaches a terminal
// state within one voting window plus at most one poll interval.
package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is the sweep period when none is configured.
const DefaultInterval = 5 * time.Second

// ExpiredResolver resolves all currently expired pending proposals and
// reports how many it resolved. *service.ProposalService satisfies this.
type ExpiredResolver interface {
	ResolveExpired(ctx context.Context) (int, error)
}

// Scheduler drives an ExpiredResolver on a fixed interval until its context
// is cancelled. One Scheduler runs per process, concurrently with request
// handling; the conditional resolution write in the repo keeps the two paths
// from double-resolving.
type Scheduler struct {
	resolver ExpiredResolver
	interval time.Duration
	logger   *slog.Logger
}

// New constructs a Scheduler. A non-positive interval falls back to
// DefaultInterval.
func New(resolver ExpiredResolver, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{resolver: resolver, interval: interval, logger: logger}
}

// Run loops until ctx is cancelled, sweeping once per interval. A sweep in
// flight when cancellation arrives finishes before Run returns; per-proposal
// failures inside a sweep are handled by the resolver and never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("resolution scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("resolution scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep runs one resolution pass. Errors are logged, never propagated — the
// next tick retries whatever is still expired-pending.
func (s *Scheduler) sweep(ctx context.Context) {
	resolved, err := s.resolver.ResolveExpired(ctx)
	if err != nil {
		s.logger.Error("resolution sweep failed", "error", err)
		return
	}
	if resolved > 0 {
		s.logger.Info("resolved expired proposals", "count", resolved)
	}
}
