package postgres

import (
	"context"
	"fmt"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookRepository is the storage surface for Webhook Settlement. Its
// idempotency primitive is a unique constraint on webhook_logs.idempotency_key:
// InsertLog maps that constraint's violation to domain.ErrAlreadyProcessed,
// so a racing duplicate delivery fails the insert instead of corrupting state.
type WebhookRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookRepository(pool *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{pool: pool}
}

func (r *WebhookRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *WebhookRepository) FindLogByIdempotencyKey(ctx context.Context, key string) (*domain.WebhookLog, error) {
	const query = `
SELECT id, idempotency_key, order_id, payment_status, status, processed_at
FROM webhook_logs
WHERE idempotency_key = $1`

	var l domain.WebhookLog
	err := r.queryRow(ctx, query, key).
		Scan(&l.ID, &l.IdempotencyKey, &l.Payload.OrderID, &l.Payload.PaymentStatus, &l.Status, &l.ProcessedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("find webhook log: %w", err)
	}
	l.Payload.IdempotencyKey = l.IdempotencyKey
	return &l, nil
}

func (r *WebhookRepository) OrderExists(ctx context.Context, orderID int64) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`

	var exists bool
	if err := r.queryRow(ctx, query, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check order exists: %w", err)
	}
	return exists, nil
}

func (r *WebhookRepository) InsertLog(ctx context.Context, log domain.WebhookLog) error {
	const stmt = `
INSERT INTO webhook_logs (idempotency_key, order_id, payment_status, status, processed_at)
VALUES ($1, $2, $3, $4, now())`

	_, err := r.exec(ctx, stmt, log.IdempotencyKey, log.Payload.OrderID, log.Payload.PaymentStatus, log.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrAlreadyProcessed
		}
		return fmt.Errorf("insert webhook log: %w", err)
	}
	return nil
}

func (r *WebhookRepository) ListPendingOrderLogs(ctx context.Context) ([]domain.WebhookLog, error) {
	const query = `
SELECT id, idempotency_key, order_id, payment_status, status, processed_at
FROM webhook_logs
WHERE status = 'pending_order'`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending order logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.WebhookLog
	for rows.Next() {
		var l domain.WebhookLog
		if err := rows.Scan(&l.ID, &l.IdempotencyKey, &l.Payload.OrderID, &l.Payload.PaymentStatus, &l.Status, &l.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan webhook log: %w", err)
		}
		l.Payload.IdempotencyKey = l.IdempotencyKey
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *WebhookRepository) MarkLogProcessed(ctx context.Context, idempotencyKey string) error {
	const stmt = `UPDATE webhook_logs SET status = 'processed', processed_at = now() WHERE idempotency_key = $1`

	tag, err := r.exec(ctx, stmt, idempotencyKey)
	if err != nil {
		return fmt.Errorf("mark webhook log processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookLogNotFound
	}
	return nil
}

func (r *WebhookRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *WebhookRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
