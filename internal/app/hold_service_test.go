package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/clock"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
	"github.com/rs/zerolog"
)

func TestHoldService_CreateHold(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultHoldServiceConfig()

	makeSvc := func(product domain.Product, holds []domain.Hold) (*HoldService, *fakeHoldRepo) {
		repo := newFakeHoldRepo(product, holds)
		svc := NewHoldService(repo, newFakeLocker(), newFakeCache(), clock.NewFixed(now), cfg, zerolog.Nop())
		return svc, repo
	}

	t.Run("creates hold when capacity available", func(t *testing.T) {
		svc, repo := makeSvc(
			domain.Product{ID: 1, StockTotal: 100, StockSold: 0},
			[]domain.Hold{
				{ID: 900, ProductID: 1, Qty: 30, ExpiresAt: now.Add(10 * time.Minute)},
			},
		)

		hold, err := svc.CreateHold(context.Background(), CreateHoldInput{ProductID: 1, Qty: 10})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if hold.ID == 0 {
			t.Fatalf("expected hold ID to be set")
		}
		if hold.Qty != 10 {
			t.Fatalf("expected qty 10, got %d", hold.Qty)
		}
		if hold.ExpiresAt != now.Add(cfg.HoldTTL) {
			t.Fatalf("expected expires_at %v, got %v", now.Add(cfg.HoldTTL), hold.ExpiresAt)
		}
		if len(repo.holds) != 2 {
			t.Fatalf("expected 2 holds in repo, got %d", len(repo.holds))
		}
	})

	t.Run("fails when capacity exceeded", func(t *testing.T) {
		svc, repo := makeSvc(
			domain.Product{ID: 1, StockTotal: 100, StockSold: 0},
			[]domain.Hold{
				{ID: 901, ProductID: 1, Qty: 95, ExpiresAt: now.Add(5 * time.Minute)},
			},
		)

		_, err := svc.CreateHold(context.Background(), CreateHoldInput{ProductID: 1, Qty: 20})
		if err != domain.ErrInsufficientStock {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		if len(repo.holds) != 1 {
			t.Fatalf("expected holds unchanged on failure, got %d", len(repo.holds))
		}
	})

	t.Run("expired holds free capacity", func(t *testing.T) {
		svc, _ := makeSvc(
			domain.Product{ID: 1, StockTotal: 100, StockSold: 0},
			[]domain.Hold{
				{ID: 902, ProductID: 1, Qty: 80, ExpiresAt: now.Add(-1 * time.Minute)},
			},
		)

		hold, err := svc.CreateHold(context.Background(), CreateHoldInput{ProductID: 1, Qty: 50})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if hold.Qty != 50 {
			t.Fatalf("expected qty 50, got %d", hold.Qty)
		}
	})

	t.Run("used-but-unreleased holds still reserve stock", func(t *testing.T) {
		svc, _ := makeSvc(
			domain.Product{ID: 1, StockTotal: 100, StockSold: 0},
			[]domain.Hold{
				{ID: 903, ProductID: 1, Qty: 90, Used: true, ExpiresAt: now.Add(-5 * time.Minute)},
			},
		)

		_, err := svc.CreateHold(context.Background(), CreateHoldInput{ProductID: 1, Qty: 20})
		if err != domain.ErrInsufficientStock {
			t.Fatalf("expected ErrInsufficientStock (pending-payment hold still reserves), got %v", err)
		}
	})

	t.Run("invalid quantity rejected", func(t *testing.T) {
		svc, _ := makeSvc(domain.Product{ID: 1, StockTotal: 100}, nil)

		_, err := svc.CreateHold(context.Background(), CreateHoldInput{ProductID: 1, Qty: 0})
		if err != domain.ErrInvalidQty {
			t.Fatalf("expected ErrInvalidQty, got %v", err)
		}
	})

	t.Run("retries a transient deadlock and eventually succeeds", func(t *testing.T) {
		retryCfg := cfg
		retryCfg.DeadlockBaseDelay = time.Millisecond

		repo := newFakeHoldRepo(domain.Product{ID: 1, StockTotal: 100}, nil)
		repo.failDeadlocks = 2
		svc := NewHoldService(repo, newFakeLocker(), newFakeCache(), clock.NewFixed(now), retryCfg, zerolog.Nop())

		hold, err := svc.CreateHold(context.Background(), CreateHoldInput{ProductID: 1, Qty: 10})
		if err != nil {
			t.Fatalf("expected success after retrying past 2 deadlocks, got %v", err)
		}
		if hold.Qty != 10 {
			t.Fatalf("expected qty 10, got %d", hold.Qty)
		}
	})

	t.Run("exhausts deadlock retries as high contention", func(t *testing.T) {
		retryCfg := cfg
		retryCfg.DeadlockBaseDelay = time.Millisecond
		retryCfg.MaxDeadlockRetries = 2

		repo := newFakeHoldRepo(domain.Product{ID: 1, StockTotal: 100}, nil)
		repo.failDeadlocks = 10
		svc := NewHoldService(repo, newFakeLocker(), newFakeCache(), clock.NewFixed(now), retryCfg, zerolog.Nop())

		_, err := svc.CreateHold(context.Background(), CreateHoldInput{ProductID: 1, Qty: 10})
		if err != domain.ErrHighContention {
			t.Fatalf("expected ErrHighContention once retries are exhausted, got %v", err)
		}
	})
}

func TestHoldService_ReleaseHold(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultHoldServiceConfig()

	t.Run("releases active hold", func(t *testing.T) {
		repo := newFakeHoldRepo(domain.Product{ID: 1, StockTotal: 100}, []domain.Hold{
			{ID: 1, ProductID: 1, Qty: 10, ExpiresAt: now.Add(5 * time.Minute)},
		})
		svc := NewHoldService(repo, newFakeLocker(), newFakeCache(), clock.NewFixed(now), cfg, zerolog.Nop())

		released, err := svc.ReleaseHold(context.Background(), 1)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !released {
			t.Fatalf("expected released=true")
		}
		if !repo.holds[0].Released {
			t.Fatalf("expected hold marked released")
		}
	})

	t.Run("does not release a used hold via the public path", func(t *testing.T) {
		repo := newFakeHoldRepo(domain.Product{ID: 1, StockTotal: 100}, []domain.Hold{
			{ID: 2, ProductID: 1, Qty: 10, Used: true, ExpiresAt: now.Add(5 * time.Minute)},
		})
		svc := NewHoldService(repo, newFakeLocker(), newFakeCache(), clock.NewFixed(now), cfg, zerolog.Nop())

		released, err := svc.ReleaseHold(context.Background(), 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if released {
			t.Fatalf("expected released=false for a used hold")
		}
	})

	t.Run("ReleaseUsedHold releases a used hold", func(t *testing.T) {
		repo := newFakeHoldRepo(domain.Product{ID: 1, StockTotal: 100}, []domain.Hold{
			{ID: 3, ProductID: 1, Qty: 10, Used: true, ExpiresAt: now.Add(5 * time.Minute)},
		})
		svc := NewHoldService(repo, newFakeLocker(), newFakeCache(), clock.NewFixed(now), cfg, zerolog.Nop())

		released, err := svc.ReleaseUsedHold(context.Background(), 3)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !released {
			t.Fatalf("expected released=true")
		}
	})

	t.Run("already-released hold is a no-op", func(t *testing.T) {
		repo := newFakeHoldRepo(domain.Product{ID: 1, StockTotal: 100}, []domain.Hold{
			{ID: 4, ProductID: 1, Qty: 10, Released: true, ExpiresAt: now.Add(5 * time.Minute)},
		})
		svc := NewHoldService(repo, newFakeLocker(), newFakeCache(), clock.NewFixed(now), cfg, zerolog.Nop())

		released, err := svc.ReleaseHold(context.Background(), 4)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if released {
			t.Fatalf("expected released=false, already released")
		}
	})
}

type fakeHoldRepo struct {
	mu      sync.Mutex
	product domain.Product
	holds   []domain.Hold
	nextID  int64

	// failDeadlocks, when positive, makes the next N WithTx calls fail
	// with domain.ErrDeadlock (decrementing on each call) before
	// letting fn run, simulating a transient store deadlock for the
	// retry-loop tests.
	failDeadlocks int
}

func newFakeHoldRepo(product domain.Product, holds []domain.Hold) *fakeHoldRepo {
	return &fakeHoldRepo{
		product: product,
		holds:   append([]domain.Hold{}, holds...),
		nextID:  1000,
	}
}

func (f *fakeHoldRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	if f.failDeadlocks > 0 {
		f.failDeadlocks--
		f.mu.Unlock()
		return domain.ErrDeadlock
	}
	f.mu.Unlock()
	return fn(ctx)
}

func (f *fakeHoldRepo) GetProduct(_ context.Context, productID int64) (domain.Product, error) {
	if f.product.ID != productID {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return f.product, nil
}

func (f *fakeHoldRepo) GetProductForUpdate(ctx context.Context, productID int64) (domain.Product, error) {
	return f.GetProduct(ctx, productID)
}

func (f *fakeHoldRepo) SumActiveHoldQty(_ context.Context, productID int64, now time.Time) (int, error) {
	total := 0
	for _, h := range f.holds {
		if h.ProductID == productID && h.Active(now) {
			total += h.Qty
		}
	}
	return total, nil
}

func (f *fakeHoldRepo) SumPendingSettlementQty(_ context.Context, productID int64) (int, error) {
	total := 0
	for _, h := range f.holds {
		if h.ProductID == productID && h.Used && !h.Released {
			total += h.Qty
		}
	}
	return total, nil
}

func (f *fakeHoldRepo) CreateHold(_ context.Context, hold domain.Hold) (domain.Hold, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	hold.ID = f.nextID
	f.holds = append(f.holds, hold)
	return hold, nil
}

func (f *fakeHoldRepo) GetHoldForUpdate(_ context.Context, holdID int64) (domain.Hold, error) {
	for _, h := range f.holds {
		if h.ID == holdID {
			return h, nil
		}
	}
	return domain.Hold{}, domain.ErrHoldNotFound
}

func (f *fakeHoldRepo) MarkHoldReleased(_ context.Context, holdID int64) error {
	for i := range f.holds {
		if f.holds[i].ID == holdID {
			f.holds[i].Released = true
			return nil
		}
	}
	return domain.ErrHoldNotFound
}

// fakeLocker grants every lock immediately, so Hold Manager tests
// exercise only its own retry/state-machine logic; internal/lock has
// its own skip-gated tests against a real Redis for acquire/contend/
// release semantics.
type fakeLocker struct{}

func newFakeLocker() *fakeLocker { return &fakeLocker{} }

func (f *fakeLocker) Acquire(_ context.Context, _ string, _, _ time.Duration) (LockHandle, error) {
	return &lockHandleStub{}, nil
}

type lockHandleStub struct{}

func (h *lockHandleStub) Release(_ context.Context) error { return nil }

// fakeCache is an in-memory stand-in for the Redis cache coordinator.
type fakeCache struct {
	mu     sync.Mutex
	values map[int64]int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[int64]int)}
}

func (c *fakeCache) GetAvailable(_ context.Context, productID int64) (int, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[productID]
	return v, ok, nil
}

func (c *fakeCache) Set(_ context.Context, productID int64, available int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[productID] = available
	return nil
}

func (c *fakeCache) Decrement(_ context.Context, productID int64, qty int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[productID] -= qty
	return c.values[productID], nil
}

func (c *fakeCache) Increment(_ context.Context, productID int64, qty int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[productID] += qty
	return c.values[productID], nil
}
