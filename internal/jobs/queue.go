// Package jobs implements the uniquely-keyed deferred-dispatch queue
// spec.md §6 names as an external collaborator. It is provided here
// as a small Redis-backed list so the Expiry Sweeper (spec.md §4.6)
// and the rest of the system are runnable and testable end to end
// without standing up a second service.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey   = "jobs:release_hold"
	dedupeTTL  = 24 * time.Hour
	dedupePfx  = "jobs:seen:"
	deadLetter = "jobs:release_hold:dead"
)

// Job is a single deferred unit of work: release the hold named by
// HoldID. The Key is the uniqueness key duplicate dispatches collapse
// on (spec.md: "release_hold_{id}").
type Job struct {
	Key     string `json:"key"`
	HoldID  int64  `json:"hold_id"`
	Retries int    `json:"retries"`
}

// Queue is a Redis-backed FIFO job queue with unique-key dedupe.
type Queue struct {
	client *redis.Client
}

// NewQueue returns a Queue backed by the given Redis client.
func NewQueue(client *redis.Client) *Queue {
	return &Queue{client: client}
}

// Enqueue pushes a release-hold job unless a job with the same key
// was already enqueued within the dedupe window, so duplicate
// sweeper dispatches for the same hold collapse into one job.
func (q *Queue) Enqueue(ctx context.Context, holdID int64) error {
	key := "release_hold_" + strconv.FormatInt(holdID, 10)
	ok, err := q.client.SetNX(ctx, dedupePfx+key, "1", dedupeTTL).Result()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	payload, err := json.Marshal(Job{Key: key, HoldID: holdID})
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, queueKey, payload).Err()
}

// ErrNoJob is returned by Pop when the wait elapses with nothing to
// dequeue.
var ErrNoJob = errors.New("jobs: no job available")

// Pop blocks up to wait for a job to arrive.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (Job, error) {
	res, err := q.client.BRPop(ctx, wait, queueKey).Result()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrNoJob
	}
	if err != nil {
		return Job{}, err
	}
	if len(res) != 2 {
		return Job{}, ErrNoJob
	}

	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return Job{}, err
	}
	return job, nil
}

// Requeue pushes a job back for another attempt, or to the dead
// letter list once it has exhausted its retries.
func (q *Queue) Requeue(ctx context.Context, job Job, maxRetries int) error {
	job.Retries++
	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if job.Retries >= maxRetries {
		return q.client.LPush(ctx, deadLetter, payload).Err()
	}
	return q.client.LPush(ctx, queueKey, payload).Err()
}

// clearDedupe allows a handler to drop the dedupe marker once a job
// has been fully abandoned (moved to the dead letter list), so a
// future sweep can re-dispatch it if the operator intervenes.
func (q *Queue) clearDedupe(ctx context.Context, key string) error {
	return q.client.Del(ctx, dedupePfx+key).Err()
}
