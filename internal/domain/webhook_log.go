package domain

import "time"

type WebhookLogStatus string

const (
	WebhookLogStatusProcessed    WebhookLogStatus = "processed"
	WebhookLogStatusPendingOrder WebhookLogStatus = "pending_order"
)

type PaymentStatus string

const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// WebhookPayload is the opaque payload recorded with a WebhookLog row;
// it carries enough information to reconcile a pending_order row once
// the order it references finally exists.
type WebhookPayload struct {
	OrderID        int64         `json:"order_id"`
	PaymentStatus  PaymentStatus `json:"payment_status"`
	IdempotencyKey string        `json:"idempotency_key"`
}

// WebhookLog is the idempotency record for a single payment webhook
// delivery. Uniqueness of IdempotencyKey across the table is the
// idempotency primitive: duplicate deliveries collapse to one row.
type WebhookLog struct {
	ID             int64
	IdempotencyKey string
	Payload        WebhookPayload
	Status         WebhookLogStatus
	ProcessedAt    time.Time
}
