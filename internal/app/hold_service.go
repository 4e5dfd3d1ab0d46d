package app

import (
	"context"
	"errors"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/clock"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/lock"
	"github.com/rs/zerolog"
)

// HoldRepository is the storage surface Hold Manager needs: product
// row locking, the Stock Calculator aggregates, and hold CRUD.
type HoldRepository interface {
	StockRepository
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetProductForUpdate(ctx context.Context, productID int64) (domain.Product, error)
	CreateHold(ctx context.Context, hold domain.Hold) (domain.Hold, error)
	GetHoldForUpdate(ctx context.Context, holdID int64) (domain.Hold, error)
	MarkHoldReleased(ctx context.Context, holdID int64) error
}

// LockHandle is a held advisory lock; Release gives it up early. It is
// satisfied structurally by *lock.Handle, so production code needs no
// adapter beyond the method set already on that type.
type LockHandle interface {
	Release(ctx context.Context) error
}

// Locker acquires bounded, named advisory locks. Implemented by
// internal/lock.Locker in production via LockerAdapter; swappable for
// tests.
type Locker interface {
	Acquire(ctx context.Context, key string, wait, hold time.Duration) (LockHandle, error)
}

// CacheCoordinator is the advisory stock-counter fast path Hold
// Manager keeps consistent on every write.
type CacheCoordinator interface {
	GetAvailable(ctx context.Context, productID int64) (int, bool, error)
	Set(ctx context.Context, productID int64, available int) error
	Decrement(ctx context.Context, productID int64, qty int) (int, error)
	Increment(ctx context.Context, productID int64, qty int) (int, error)
}

// LockerAdapter wraps the concrete *lock.Locker so it satisfies Locker;
// *lock.Handle already has a matching Release method, so there is
// nothing to translate beyond the Acquire return type.
type LockerAdapter struct {
	l *lock.Locker
}

// NewLockerAdapter returns a Locker backed by l.
func NewLockerAdapter(l *lock.Locker) LockerAdapter {
	return LockerAdapter{l: l}
}

func (a LockerAdapter) Acquire(ctx context.Context, key string, wait, hold time.Duration) (LockHandle, error) {
	h, err := a.l.Acquire(ctx, key, wait, hold)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// HoldServiceConfig bundles the lock wait/hold budgets and retry
// policy spec.md §4.3 and §5 specify.
type HoldServiceConfig struct {
	HoldTTL time.Duration

	ProductLockWait time.Duration
	ProductLockHold time.Duration
	HoldLockWait    time.Duration
	HoldLockHold    time.Duration
	CacheLockWait   time.Duration
	CacheLockHold   time.Duration

	MaxDeadlockRetries int
	DeadlockBaseDelay  time.Duration
}

// DefaultHoldServiceConfig mirrors the concrete numbers spec.md §4.3
// names: 2-minute holds, 3s/10s product lock, 3s/10s hold lock, 2s/5s
// cache-repair lock, 3 deadlock retries backing off 200/400/800ms.
func DefaultHoldServiceConfig() HoldServiceConfig {
	return HoldServiceConfig{
		HoldTTL:            2 * time.Minute,
		ProductLockWait:    3 * time.Second,
		ProductLockHold:    10 * time.Second,
		HoldLockWait:       3 * time.Second,
		HoldLockHold:       10 * time.Second,
		CacheLockWait:      2 * time.Second,
		CacheLockHold:      5 * time.Second,
		MaxDeadlockRetries: 3,
		DeadlockBaseDelay:  100 * time.Millisecond,
	}
}

// HoldService is the Hold Manager component.
type HoldService struct {
	repo   HoldRepository
	locker Locker
	cache  CacheCoordinator
	calc   *StockCalculator
	clock  clock.Clock
	cfg    HoldServiceConfig
	logger zerolog.Logger
}

// NewHoldService wires the Hold Manager.
func NewHoldService(repo HoldRepository, locker Locker, c CacheCoordinator, clk clock.Clock, cfg HoldServiceConfig, logger zerolog.Logger) *HoldService {
	return &HoldService{
		repo:   repo,
		locker: locker,
		cache:  c,
		calc:   NewStockCalculator(repo, clk),
		clock:  clk,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateHoldInput is the Hold Manager's create_hold request.
type CreateHoldInput struct {
	ProductID int64
	Qty       int
}

// CreateHold reserves qty units of a product, per spec.md §4.3. It
// retries up to MaxDeadlockRetries times on a transient store
// deadlock, backing off exponentially in units of DeadlockBaseDelay.
func (s *HoldService) CreateHold(ctx context.Context, in CreateHoldInput) (domain.Hold, error) {
	if in.Qty <= 0 {
		return domain.Hold{}, domain.ErrInvalidQty
	}

	var result domain.Hold
	var lastErr error

	for attempt := 0; attempt <= s.cfg.MaxDeadlockRetries; attempt++ {
		if attempt > 0 {
			backoff := s.cfg.DeadlockBaseDelay * time.Duration(1<<uint(attempt))
			s.logger.Warn().Int64("product_id", in.ProductID).Int("attempt", attempt).Dur("backoff", backoff).Msg("hold: retrying after deadlock")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return domain.Hold{}, ctx.Err()
			}
		}

		result, lastErr = s.createHoldOnce(ctx, in)
		if lastErr == nil || !errors.Is(lastErr, domain.ErrDeadlock) {
			return result, lastErr
		}
	}

	s.logger.Error().Int64("product_id", in.ProductID).Msg("hold: deadlock retries exhausted")
	return domain.Hold{}, domain.ErrHighContention
}

func (s *HoldService) createHoldOnce(ctx context.Context, in CreateHoldInput) (domain.Hold, error) {
	handle, err := s.locker.Acquire(ctx, lock.ProductKey(in.ProductID), s.cfg.ProductLockWait, s.cfg.ProductLockHold)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Hold{}, ctx.Err()
		}
		return domain.Hold{}, domain.ErrHighContention
	}
	defer func() { _ = handle.Release(context.Background()) }()

	var result domain.Hold
	now := s.clock.Now()

	txErr := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		// Row-lock the product; this is the correctness boundary the
		// advisory lock above only exists to reduce contention on.
		if _, err := s.repo.GetProductForUpdate(txCtx, in.ProductID); err != nil {
			return err
		}

		available, _, err := s.calc.Available(txCtx, in.ProductID)
		if err != nil {
			return err
		}

		if cached, ok, err := s.cache.GetAvailable(txCtx, in.ProductID); err == nil {
			if !ok || cached != available {
				if err := s.cache.Set(txCtx, in.ProductID, available); err != nil {
					s.logger.Warn().Err(err).Int64("product_id", in.ProductID).Msg("hold: cache repair failed")
				}
			}
		}

		if available < in.Qty {
			return domain.ErrInsufficientStock
		}

		hold := domain.Hold{
			ProductID: in.ProductID,
			Qty:       in.Qty,
			ExpiresAt: now.Add(s.cfg.HoldTTL),
			CreatedAt: now,
		}
		created, err := s.repo.CreateHold(txCtx, hold)
		if err != nil {
			return err
		}

		if _, err := s.cache.Decrement(txCtx, in.ProductID, in.Qty); err != nil {
			s.logger.Warn().Err(err).Int64("product_id", in.ProductID).Msg("hold: cache decrement failed")
		}

		result = created
		return nil
	})
	if txErr != nil {
		return domain.Hold{}, txErr
	}
	return result, nil
}

// ReleaseHold releases a hold the public way: a hold already used by
// an order is left alone (spec.md §4.3 step 4). Order Manager's
// Cancel path uses ReleaseUsedHold instead (SPEC_FULL.md §9 open
// question, option b).
func (s *HoldService) ReleaseHold(ctx context.Context, holdID int64) (bool, error) {
	return s.releaseHold(ctx, holdID, false)
}

// ReleaseUsedHold is the internal counterpart Order Manager's Cancel
// calls: it releases a hold that is used-but-unreleased, restoring
// its stock, because the order that used it was just cancelled.
func (s *HoldService) ReleaseUsedHold(ctx context.Context, holdID int64) (bool, error) {
	return s.releaseHold(ctx, holdID, true)
}

func (s *HoldService) releaseHold(ctx context.Context, holdID int64, allowUsed bool) (bool, error) {
	handle, err := s.locker.Acquire(ctx, lock.HoldKey(holdID), s.cfg.HoldLockWait, s.cfg.HoldLockHold)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, domain.ErrHighContention
	}
	defer func() { _ = handle.Release(context.Background()) }()

	var hold domain.Hold
	var released bool

	txErr := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		h, err := s.repo.GetHoldForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}
		if h.Released {
			return nil
		}
		if h.Used && !allowUsed {
			return nil
		}

		if err := s.repo.MarkHoldReleased(txCtx, holdID); err != nil {
			return err
		}
		hold = h
		released = true
		return nil
	})
	if txErr != nil {
		return false, txErr
	}
	if !released {
		return false, nil
	}

	s.restoreCache(ctx, hold)
	return true, nil
}

// restoreCache is the best-effort cache repair spec.md §4.3 describes
// for release_hold step 6: try the product lock with a short budget,
// increment if the cache exists, otherwise refresh from the Stock
// Calculator; if the lock itself cannot be had in time, refresh
// unconditionally. None of this affects correctness — the Stock
// Calculator is always the gate — only how quickly reads converge.
func (s *HoldService) restoreCache(ctx context.Context, hold domain.Hold) {
	handle, err := s.locker.Acquire(ctx, lock.ProductKey(hold.ProductID), s.cfg.CacheLockWait, s.cfg.CacheLockHold)
	if err != nil {
		s.refreshCache(ctx, hold.ProductID)
		return
	}
	defer func() { _ = handle.Release(context.Background()) }()

	if _, ok, err := s.cache.GetAvailable(ctx, hold.ProductID); err == nil && ok {
		if _, err := s.cache.Increment(ctx, hold.ProductID, hold.Qty); err != nil {
			s.logger.Warn().Err(err).Int64("product_id", hold.ProductID).Msg("hold: cache increment failed")
		}
		return
	}
	s.refreshCache(ctx, hold.ProductID)
}

func (s *HoldService) refreshCache(ctx context.Context, productID int64) {
	available, _, err := s.calc.Available(ctx, productID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("product_id", productID).Msg("hold: cache refresh failed")
		return
	}
	if err := s.cache.Set(ctx, productID, available); err != nil {
		s.logger.Warn().Err(err).Int64("product_id", productID).Msg("hold: cache set failed")
	}
}
