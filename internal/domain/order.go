package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Order is a pending-payment purchase derived from a hold. Status
// transitions are restricted to pending_payment -> paid and
// pending_payment -> cancelled; both terminal states are absorbing.
type Order struct {
	ID        int64
	HoldID    int64
	Status    OrderStatus
	Amount    decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}
