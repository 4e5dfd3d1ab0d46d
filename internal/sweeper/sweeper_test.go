package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/clock"
	"github.com/rs/zerolog"
)

type fakeHoldLister struct {
	ids []int64
	err error
}

func (f fakeHoldLister) ExpiredActiveHoldIDs(_ context.Context, _ time.Time, _ int) ([]int64, error) {
	return f.ids, f.err
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []int64
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, holdID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, holdID)
	return nil
}

func TestSweeper_Tick_DispatchesExpiredHolds(t *testing.T) {
	holds := fakeHoldLister{ids: []int64{1, 2, 3}}
	jobs := &fakeEnqueuer{}

	s := New(holds, jobs, clock.NewFixed(time.Now()), zerolog.Nop(), time.Minute)
	s.tick(context.Background())

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if len(jobs.enqueued) != 3 {
		t.Fatalf("expected 3 jobs enqueued, got %d", len(jobs.enqueued))
	}
}

func TestSweeper_Tick_NoExpiredHoldsEnqueuesNothing(t *testing.T) {
	holds := fakeHoldLister{}
	jobs := &fakeEnqueuer{}

	s := New(holds, jobs, clock.NewFixed(time.Now()), zerolog.Nop(), time.Minute)
	s.tick(context.Background())

	jobs.mu.Lock()
	defer jobs.mu.Unlock()
	if len(jobs.enqueued) != 0 {
		t.Fatalf("expected no jobs enqueued, got %d", len(jobs.enqueued))
	}
}

func TestSweeper_Run_StopsOnContextCancel(t *testing.T) {
	holds := fakeHoldLister{}
	jobs := &fakeEnqueuer{}

	ctx, cancel := context.WithCancel(context.Background())
	s := New(holds, jobs, clock.NewFixed(time.Now()), zerolog.Nop(), time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return after context cancel")
	}
}
