package app

import (
	"context"
	"errors"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
	"github.com/rs/zerolog"
)

// WebhookRepository is the storage surface Webhook Settlement needs.
type WebhookRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	FindLogByIdempotencyKey(ctx context.Context, key string) (*domain.WebhookLog, error)
	OrderExists(ctx context.Context, orderID int64) (bool, error)
	InsertLog(ctx context.Context, log domain.WebhookLog) error
	ListPendingOrderLogs(ctx context.Context) ([]domain.WebhookLog, error)
	MarkLogProcessed(ctx context.Context, idempotencyKey string) error
}

// OrderSettler is the narrow capability Webhook Settlement needs from
// Order Manager: mark paid or cancel, per spec.md §4.5.
type OrderSettler interface {
	MarkPaid(ctx context.Context, orderID int64) (domain.Order, error)
	Cancel(ctx context.Context, orderID int64) (domain.Order, error)
}

// WebhookService is the Webhook Settlement component.
type WebhookService struct {
	repo   WebhookRepository
	orders OrderSettler
	logger zerolog.Logger
}

// NewWebhookService wires Webhook Settlement.
func NewWebhookService(repo WebhookRepository, orders OrderSettler, logger zerolog.Logger) *WebhookService {
	return &WebhookService{repo: repo, orders: orders, logger: logger}
}

// HandleInput is the webhook request payload, per spec.md §6.
type HandleInput struct {
	OrderID        int64
	PaymentStatus  domain.PaymentStatus
	IdempotencyKey string
}

// HandleResult mirrors the four possible webhook outcome statuses.
type HandleResult struct {
	Status  domain.WebhookLogStatus
	OrderID int64
	// AlreadyProcessed and PendingOrder distinguish the two
	// informational, non-mutating outcomes from a fresh settlement.
	AlreadyProcessed bool
	PendingOrder     bool
}

// Handle processes a single payment webhook delivery, per spec.md
// §4.5. It is idempotent on IdempotencyKey: N deliveries of the same
// payload produce exactly one WebhookLog row and one set of side
// effects on the order.
func (s *WebhookService) Handle(ctx context.Context, in HandleInput) (HandleResult, error) {
	if in.OrderID == 0 || in.IdempotencyKey == "" {
		return HandleResult{}, domain.ErrMissingField
	}
	if in.PaymentStatus != domain.PaymentStatusSuccess && in.PaymentStatus != domain.PaymentStatusFailed {
		return HandleResult{}, domain.ErrInvalidPaymentStatus
	}

	var result HandleResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.repo.FindLogByIdempotencyKey(txCtx, in.IdempotencyKey)
		if err != nil {
			return err
		}
		if existing != nil {
			result = HandleResult{Status: existing.Status, OrderID: in.OrderID, AlreadyProcessed: true}
			return nil
		}

		exists, err := s.repo.OrderExists(txCtx, in.OrderID)
		if err != nil {
			return err
		}

		payload := domain.WebhookPayload{
			OrderID:        in.OrderID,
			PaymentStatus:  in.PaymentStatus,
			IdempotencyKey: in.IdempotencyKey,
		}

		if !exists {
			insertErr := s.repo.InsertLog(txCtx, domain.WebhookLog{
				IdempotencyKey: in.IdempotencyKey,
				Payload:        payload,
				Status:         domain.WebhookLogStatusPendingOrder,
			})
			if insertErr != nil {
				if errors.Is(insertErr, domain.ErrAlreadyProcessed) {
					result = HandleResult{OrderID: in.OrderID, AlreadyProcessed: true}
					return nil
				}
				return insertErr
			}
			result = HandleResult{Status: domain.WebhookLogStatusPendingOrder, OrderID: in.OrderID, PendingOrder: true}
			return nil
		}

		insertErr := s.repo.InsertLog(txCtx, domain.WebhookLog{
			IdempotencyKey: in.IdempotencyKey,
			Payload:        payload,
			Status:         domain.WebhookLogStatusProcessed,
		})
		if insertErr != nil {
			if errors.Is(insertErr, domain.ErrAlreadyProcessed) {
				result = HandleResult{OrderID: in.OrderID, AlreadyProcessed: true}
				return nil
			}
			return insertErr
		}

		result = HandleResult{Status: domain.WebhookLogStatusProcessed, OrderID: in.OrderID}
		return nil
	})
	if err != nil {
		return HandleResult{}, err
	}

	if result.Status == domain.WebhookLogStatusProcessed && !result.AlreadyProcessed {
		if err := s.settle(ctx, in.OrderID, in.PaymentStatus); err != nil {
			return HandleResult{}, err
		}
	}

	return result, nil
}

func (s *WebhookService) settle(ctx context.Context, orderID int64, status domain.PaymentStatus) error {
	if status == domain.PaymentStatusSuccess {
		_, err := s.orders.MarkPaid(ctx, orderID)
		return err
	}
	_, err := s.orders.Cancel(ctx, orderID)
	return err
}

// ReconcilePending is called after an order is created, because the
// payment webhook may have arrived before the order existed (spec.md
// §4.5). It re-verifies each pending_order log against the live order
// table and, for ones that now resolve, dispatches the settlement and
// marks the log processed. Per-row errors are logged and do not abort
// the sweep; the row stays pending_order for a future attempt.
func (s *WebhookService) ReconcilePending(ctx context.Context, orderID int64) error {
	logs, err := s.repo.ListPendingOrderLogs(ctx)
	if err != nil {
		return err
	}

	for _, l := range logs {
		if l.Payload.OrderID != orderID {
			continue
		}
		if err := s.reconcileOne(ctx, l); err != nil {
			s.logger.Warn().Err(err).Str("idempotency_key", l.IdempotencyKey).Msg("webhook: reconcile failed")
		}
	}
	return nil
}

func (s *WebhookService) reconcileOne(ctx context.Context, l domain.WebhookLog) error {
	exists, err := s.repo.OrderExists(ctx, l.Payload.OrderID)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}

	if err := s.settle(ctx, l.Payload.OrderID, l.Payload.PaymentStatus); err != nil {
		return err
	}
	return s.repo.MarkLogProcessed(ctx, l.IdempotencyKey)
}
