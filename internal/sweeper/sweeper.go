// Package sweeper implements the Expiry Sweeper scheduled task from
// spec.md §4.6: on a fixed interval, find active holds whose TTL has
// passed and dispatch a uniquely-keyed release job for each one. The
// sweeper never releases a hold itself — Hold Manager.ReleaseHold,
// invoked by the job worker, is the only path that mutates a hold and
// repairs the cache.
package sweeper

import (
	"context"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/clock"
	"github.com/rs/zerolog"
)

// ExpiredHoldLister is the narrow read capability the sweeper needs
// from the Hold Manager's repository.
type ExpiredHoldLister interface {
	ExpiredActiveHoldIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// JobEnqueuer is the narrow capability the sweeper needs from the job
// queue: dispatch a release_hold job, deduped by key.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, holdID int64) error
}

// DefaultInterval is the scan period spec.md §6 names for expire_holds
// ("runs every minute").
const DefaultInterval = time.Minute

// BatchLimit bounds how many expired holds a single tick dispatches,
// so one slow tick cannot balloon the job queue unboundedly.
const BatchLimit = 500

// Sweeper runs the expire_holds scheduled task.
type Sweeper struct {
	holds    ExpiredHoldLister
	jobs     JobEnqueuer
	clock    clock.Clock
	logger   zerolog.Logger
	interval time.Duration
}

// New returns a Sweeper that scans holds every interval (DefaultInterval
// if zero).
func New(holds ExpiredHoldLister, jobs JobEnqueuer, clk clock.Clock, logger zerolog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{holds: holds, jobs: jobs, clock: clk, logger: logger, interval: interval}
}

// Run ticks until ctx is cancelled, dispatching release jobs for every
// expired active hold on each tick.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	ids, err := s.holds.ExpiredActiveHoldIDs(ctx, s.clock.Now(), BatchLimit)
	if err != nil {
		s.logger.Error().Err(err).Msg("sweeper: list expired holds failed")
		return
	}

	for _, id := range ids {
		if err := s.jobs.Enqueue(ctx, id); err != nil {
			s.logger.Warn().Err(err).Int64("hold_id", id).Msg("sweeper: enqueue release job failed")
		}
	}
	if len(ids) > 0 {
		s.logger.Info().Int("count", len(ids)).Msg("sweeper: dispatched release jobs")
	}
}
