package jobengine

import (
	"context"
	"log/slog"
	"time"

	"github.com/wheattoast11/deepresearch-mcp/internal/repository"
)

// ReclaimSweeper periodically returns jobs with a stale heartbeat to the
// queue (§4.5: "missing heartbeats cause ReclaimStaleLeases to return the
// job to queued for another worker").
type ReclaimSweeper struct {
	jobs         repository.JobRepository
	leaseTimeout time.Duration
	interval     time.Duration
	logger       *slog.Logger
}

func NewReclaimSweeper(jobs repository.JobRepository, leaseTimeout time.Duration, logger *slog.Logger) *ReclaimSweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReclaimSweeper{
		jobs:         jobs,
		leaseTimeout: leaseTimeout,
		interval:     leaseTimeout / 2,
		logger:       logger.With("component", "jobengine.reclaim"),
	}
}

// Run blocks, sweeping at the configured interval until ctx is canceled.
func (s *ReclaimSweeper) Run(ctx context.Context) {
	if s.interval <= 0 {
		s.interval = time.Minute
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.jobs.ReclaimStaleLeases(ctx, s.leaseTimeout)
			if err != nil {
				s.logger.Error("stale lease reclaim failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Warn("reclaimed stale job leases", "count", n)
			}
		}
	}
}
