package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// HoldRepository is the storage surface for the Hold Manager and the
// Stock Calculator's product read path.
type HoldRepository struct {
	pool *pgxpool.Pool
}

func NewHoldRepository(pool *pgxpool.Pool) *HoldRepository {
	return &HoldRepository{pool: pool}
}

func (r *HoldRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *HoldRepository) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	const query = `SELECT id, name, price, stock_total, stock_sold FROM products WHERE id = $1`
	return r.scanProduct(ctx, query, productID)
}

// GetProductForUpdate row-locks the product. This lock, not the
// advisory lock the caller may already hold, is what makes
// create_hold's capacity check and write atomic against concurrent
// holds on the same product.
func (r *HoldRepository) GetProductForUpdate(ctx context.Context, productID int64) (domain.Product, error) {
	const query = `SELECT id, name, price, stock_total, stock_sold FROM products WHERE id = $1 FOR UPDATE`
	return r.scanProduct(ctx, query, productID)
}

func (r *HoldRepository) scanProduct(ctx context.Context, query string, productID int64) (domain.Product, error) {
	var p domain.Product
	err := r.queryRow(ctx, query, productID).Scan(&p.ID, &p.Name, &p.Price, &p.StockTotal, &p.StockSold)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Product{}, domain.ErrProductNotFound
		}
		return domain.Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// SumActiveHoldQty sums the quantity of unused, unreleased,
// unexpired holds for productID — stock reserved by shoppers still
// mid-checkout.
func (r *HoldRepository) SumActiveHoldQty(ctx context.Context, productID int64, now time.Time) (int, error) {
	const query = `
SELECT COALESCE(SUM(qty), 0)
FROM holds
WHERE product_id = $1 AND NOT used AND NOT released AND expires_at > $2`

	var total int
	if err := r.queryRow(ctx, query, productID, now).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum active hold qty: %w", err)
	}
	return total, nil
}

// SumPendingSettlementQty sums the quantity of holds already converted
// to an order awaiting payment settlement — the "pending-payment still
// reserves" half of the oversell guard.
func (r *HoldRepository) SumPendingSettlementQty(ctx context.Context, productID int64) (int, error) {
	const query = `
SELECT COALESCE(SUM(h.qty), 0)
FROM holds h
JOIN orders o ON o.hold_id = h.id
WHERE h.product_id = $1 AND h.used AND NOT h.released AND o.status = 'pending_payment'`

	var total int
	if err := r.queryRow(ctx, query, productID).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum pending settlement qty: %w", err)
	}
	return total, nil
}

func (r *HoldRepository) CreateHold(ctx context.Context, hold domain.Hold) (domain.Hold, error) {
	const stmt = `
INSERT INTO holds (product_id, qty, expires_at, created_at)
VALUES ($1, $2, $3, $4)
RETURNING id`

	err := r.queryRow(ctx, stmt, hold.ProductID, hold.Qty, hold.ExpiresAt, hold.CreatedAt).Scan(&hold.ID)
	if err != nil {
		return domain.Hold{}, fmt.Errorf("create hold: %w", err)
	}
	return hold, nil
}

func (r *HoldRepository) GetHoldForUpdate(ctx context.Context, holdID int64) (domain.Hold, error) {
	const query = `
SELECT id, product_id, qty, expires_at, used, released, created_at
FROM holds
WHERE id = $1
FOR UPDATE`

	var h domain.Hold
	err := r.queryRow(ctx, query, holdID).
		Scan(&h.ID, &h.ProductID, &h.Qty, &h.ExpiresAt, &h.Used, &h.Released, &h.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, fmt.Errorf("get hold for update: %w", err)
	}
	return h, nil
}

func (r *HoldRepository) MarkHoldReleased(ctx context.Context, holdID int64) error {
	const stmt = `UPDATE holds SET released = true WHERE id = $1`

	tag, err := r.exec(ctx, stmt, holdID)
	if err != nil {
		return fmt.Errorf("mark hold released: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

// ExpiredActiveHoldIDs returns the IDs of holds that are still active
// by row state but whose expiry has passed as of now — the Expiry
// Sweeper's source of work.
func (r *HoldRepository) ExpiredActiveHoldIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	const query = `
SELECT id FROM holds
WHERE NOT used AND NOT released AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired holds: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan expired hold id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *HoldRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *HoldRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
