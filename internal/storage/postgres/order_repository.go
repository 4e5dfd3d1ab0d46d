package postgres

import (
	"context"
	"fmt"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrderRepository is the storage surface for the Order Manager.
type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *OrderRepository) GetHoldForUpdate(ctx context.Context, holdID int64) (domain.Hold, error) {
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

func (r *OrderRepository) GetHold(ctx context.Context, holdID int64) (domain.Hold, error) {
	const query = `
SELECT id, product_id, qty, expires_at, used, released, created_at
FROM holds
WHERE id = $1`

	var h domain.Hold
	err := r.queryRow(ctx, query, holdID).
		Scan(&h.ID, &h.ProductID, &h.Qty, &h.ExpiresAt, &h.Used, &h.Released, &h.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Hold{}, domain.ErrHoldNotFound
		}
		return domain.Hold{}, fmt.Errorf("get hold: %w", err)
	}
	return h, nil
}

func (r *OrderRepository) MarkHoldUsed(ctx context.Context, holdID int64) error {
	const stmt = `UPDATE holds SET used = true WHERE id = $1`

	tag, err := r.exec(ctx, stmt, holdID)
	if err != nil {
		return fmt.Errorf("mark hold used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrHoldNotFound
	}
	return nil
}

func (r *OrderRepository) GetProduct(ctx context.Context, productID int64) (domain.Product, error) {
	const query = `SELECT id, name, price, stock_total, stock_sold FROM products WHERE id = $1`

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

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	const stmt = `
INSERT INTO orders (hold_id, status, amount, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`

	err := r.queryRow(ctx, stmt, order.HoldID, order.Status, order.Amount, order.CreatedAt, order.UpdatedAt).Scan(&order.ID)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	return order, nil
}

func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error) {
	const query = `
SELECT id, hold_id, status, amount, created_at, updated_at
FROM orders
WHERE id = $1
FOR UPDATE`

	var o domain.Order
	err := r.queryRow(ctx, query, orderID).
		Scan(&o.ID, &o.HoldID, &o.Status, &o.Amount, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order for update: %w", err)
	}
	return o, nil
}

func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error {
	const stmt = `UPDATE orders SET status = $2, updated_at = now() WHERE id = $1`

	tag, err := r.exec(ctx, stmt, orderID, status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

// IncrementStockSold bumps stock_sold with a single atomic UPDATE
// rather than a read-modify-write, so settling orders for the same
// product never need to serialize on the product row (SPEC_FULL.md
// §9: MarkPaid takes no product lock).
func (r *OrderRepository) IncrementStockSold(ctx context.Context, productID int64, qty int) error {
	const stmt = `UPDATE products SET stock_sold = stock_sold + $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, productID, qty)
	if err != nil {
		return fmt.Errorf("increment stock sold: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *OrderRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *OrderRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
