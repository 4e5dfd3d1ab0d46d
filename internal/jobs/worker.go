package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// MaxRetries is the attempt budget for a release-hold job, counting
// the first attempt (spec.md §6: "tries=3").
const MaxRetries = 3

// Timeout bounds a single job handler invocation (spec.md §6:
// "timeout=30s").
const Timeout = 30 * time.Second

// Handler processes a single release-hold job.
type Handler func(ctx context.Context, holdID int64) error

// Worker pulls jobs off a Queue and dispatches them to a Handler,
// re-queueing a failed job until it has been attempted MaxRetries
// times in all, then moving it to the dead-letter list.
type Worker struct {
	queue   *Queue
	handle  Handler
	logger  zerolog.Logger
	popWait time.Duration
}

// NewWorker returns a Worker that dispatches jobs popped from queue
// to handle.
func NewWorker(queue *Queue, handle Handler, logger zerolog.Logger) *Worker {
	return &Worker{
		queue:   queue,
		handle:  handle,
		logger:  logger,
		popWait: time.Second,
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.Pop(ctx, w.popWait)
		if err != nil {
			if err == ErrNoJob || ctx.Err() != nil {
				continue
			}
			w.logger.Error().Err(err).Msg("jobs: pop failed")
			continue
		}

		w.process(ctx, job)
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	jobCtx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	if err := w.handle(jobCtx, job.HoldID); err != nil {
		w.logger.Warn().Err(err).Int64("hold_id", job.HoldID).Int("retries", job.Retries).Msg("jobs: handler failed")
		if job.Retries+1 >= MaxRetries {
			w.logger.Error().Int64("hold_id", job.HoldID).Msg("jobs: retries exhausted, moving to dead letter")
			_ = w.queue.clearDedupe(ctx, job.Key)
		}
		if reqErr := w.queue.Requeue(ctx, job, MaxRetries); reqErr != nil {
			w.logger.Error().Err(reqErr).Msg("jobs: requeue failed")
		}
	}
}
