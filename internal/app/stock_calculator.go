package app

import (
	"context"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/clock"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
)

// StockRepository is the read surface the Stock Calculator needs: the
// product row itself, plus the two disjoint hold-quantity aggregates
// spec.md §4.1 defines (unused-active and used-pending-payment).
type StockRepository interface {
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
	SumActiveHoldQty(ctx context.Context, productID int64, now time.Time) (int, error)
	SumPendingSettlementQty(ctx context.Context, productID int64) (int, error)
}

// StockCalculator derives authoritative available stock directly from
// the store. It holds no cached state of its own; callers that need a
// consistent snapshot invoke it inside a transaction with the product
// row locked (Hold Manager) or accept a plain read (product GET).
type StockCalculator struct {
	repo  StockRepository
	clock clock.Clock
}

// NewStockCalculator returns a StockCalculator reading through repo.
func NewStockCalculator(repo StockRepository, clk clock.Clock) *StockCalculator {
	return &StockCalculator{repo: repo, clock: clk}
}

// Available returns max(0, stock_total - stock_sold - unused_active_qty
// - pending_payment_qty) for productID, per spec.md §4.1.
func (c *StockCalculator) Available(ctx context.Context, productID int64) (int, domain.Product, error) {
	product, err := c.repo.GetProduct(ctx, productID)
	if err != nil {
		return 0, domain.Product{}, err
	}

	now := c.clock.Now()
	activeQty, err := c.repo.SumActiveHoldQty(ctx, productID, now)
	if err != nil {
		return 0, domain.Product{}, err
	}
	pendingQty, err := c.repo.SumPendingSettlementQty(ctx, productID)
	if err != nil {
		return 0, domain.Product{}, err
	}

	return product.AvailableStock(activeQty, pendingQty), product, nil
}
