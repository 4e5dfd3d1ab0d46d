package app

import (
	"context"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/clock"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// OrderRepository is the storage surface Order Manager needs.
type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetHoldForUpdate(ctx context.Context, holdID int64) (domain.Hold, error)
	MarkHoldUsed(ctx context.Context, holdID int64) error
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)
	GetOrderForUpdate(ctx context.Context, orderID int64) (domain.Order, error)
	GetHold(ctx context.Context, holdID int64) (domain.Hold, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status domain.OrderStatus) error
	IncrementStockSold(ctx context.Context, productID int64, qty int) error
}

// HoldReleaser is the narrow capability Order Manager's Cancel needs
// from Hold Manager: release a used-but-unreleased hold (SPEC_FULL.md
// §9, open-question resolution (b)).
type HoldReleaser interface {
	ReleaseUsedHold(ctx context.Context, holdID int64) (bool, error)
}

// ReconcileTrigger lets Order Manager kick off webhook reconciliation
// right after a new order commits, because the payment webhook may
// have arrived before the order existed (spec.md §4.4). It is wired
// in after construction (see cmd/api/main.go) rather than taken as a
// constructor argument, so Order Manager can be built before Webhook
// Settlement exists.
type ReconcileTrigger interface {
	ReconcilePending(ctx context.Context, orderID int64) error
}

// OrderService is the Order Manager component.
type OrderService struct {
	repo       OrderRepository
	holds      HoldReleaser
	clock      clock.Clock
	reconciler ReconcileTrigger
	logger     zerolog.Logger
}

// NewOrderService wires the Order Manager.
func NewOrderService(repo OrderRepository, holds HoldReleaser, clk clock.Clock, logger zerolog.Logger) *OrderService {
	return &OrderService{repo: repo, holds: holds, clock: clk, logger: logger}
}

// SetReconciler attaches the webhook reconciliation hook. Safe to
// leave unset in tests that don't exercise the post-commit trigger.
func (s *OrderService) SetReconciler(r ReconcileTrigger) {
	s.reconciler = r
}

// CreateOrderFromHold converts an active hold into a pending-payment
// order, per spec.md §4.4.
func (s *OrderService) CreateOrderFromHold(ctx context.Context, holdID int64) (domain.Order, error) {
	var order domain.Order
	now := s.clock.Now()

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		hold, err := s.repo.GetHoldForUpdate(txCtx, holdID)
		if err != nil {
			return err
		}
		if hold.Used {
			return domain.ErrHoldAlreadyUsed
		}
		if hold.Released {
			return domain.ErrHoldReleased
		}
		if !hold.ExpiresAt.After(now) {
			return domain.ErrHoldExpired
		}

		product, err := s.repo.GetProduct(txCtx, hold.ProductID)
		if err != nil {
			return err
		}
		amount := product.Price.Mul(decimal.NewFromInt(int64(hold.Qty)))

		if err := s.repo.MarkHoldUsed(txCtx, holdID); err != nil {
			return err
		}

		created, err := s.repo.CreateOrder(txCtx, domain.Order{
			HoldID:    holdID,
			Status:    domain.OrderStatusPendingPayment,
			Amount:    amount,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}

		order = created
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if s.reconciler != nil {
		if err := s.reconciler.ReconcilePending(ctx, order.ID); err != nil {
			s.logger.Warn().Err(err).Int64("order_id", order.ID).Msg("order: post-create reconciliation failed")
		}
	}

	return order, nil
}

// MarkPaid advances a pending_payment order to paid and bumps
// stock_sold, per spec.md §4.4. It does not lock the product row
// (SPEC_FULL.md §9 open-question resolution): stock_sold is advanced
// with an atomic UPDATE ... SET stock_sold = stock_sold + $1, so
// concurrent webhook processing for different orders of the same
// product does not serialize on the product row.
func (s *OrderService) MarkPaid(ctx context.Context, orderID int64) (domain.Order, error) {
	var order domain.Order

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.Status == domain.OrderStatusPaid {
			order = o
			return nil
		}
		if o.Status == domain.OrderStatusCancelled {
			return domain.ErrInvalidTransition
		}

		hold, err := s.repo.GetHold(txCtx, o.HoldID)
		if err != nil {
			return err
		}

		if err := s.repo.UpdateOrderStatus(txCtx, orderID, domain.OrderStatusPaid); err != nil {
			return err
		}
		if err := s.repo.IncrementStockSold(txCtx, hold.ProductID, hold.Qty); err != nil {
			return err
		}

		o.Status = domain.OrderStatusPaid
		order = o
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// Cancel moves a pending_payment order to cancelled and releases its
// hold, restoring stock, per spec.md §4.4.
func (s *OrderService) Cancel(ctx context.Context, orderID int64) (domain.Order, error) {
	var order domain.Order
	var holdID int64

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		o, err := s.repo.GetOrderForUpdate(txCtx, orderID)
		if err != nil {
			return err
		}
		if o.Status == domain.OrderStatusCancelled {
			order = o
			return nil
		}
		if o.Status == domain.OrderStatusPaid {
			return domain.ErrCannotCancelPaid
		}

		if err := s.repo.UpdateOrderStatus(txCtx, orderID, domain.OrderStatusCancelled); err != nil {
			return err
		}

		o.Status = domain.OrderStatusCancelled
		order = o
		holdID = o.HoldID
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	if holdID != 0 {
		if _, err := s.holds.ReleaseUsedHold(ctx, holdID); err != nil {
			s.logger.Warn().Err(err).Int64("hold_id", holdID).Msg("order: hold release after cancel failed")
		}
	}

	return order, nil
}
