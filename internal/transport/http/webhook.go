package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/app"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
)

// WebhookHandler is the minimal interface POST /payments/webhook
// needs: Webhook Settlement's idempotent delivery path.
type WebhookHandler interface {
	Handle(ctx context.Context, in app.HandleInput) (app.HandleResult, error)
}

// HandleWebhook returns an HTTP handler for POST /payments/webhook.
func HandleWebhook(svc WebhookHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req webhookRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.OrderID <= 0 || req.IdempotencyKey == "" {
			writeError(w, http.StatusUnprocessableEntity, codeMissingRequiredField, "order_id and idempotency_key are required")
			return
		}

		status := domain.PaymentStatus(req.PaymentStatus)
		if status != domain.PaymentStatusSuccess && status != domain.PaymentStatusFailed {
			writeError(w, http.StatusBadRequest, codeInvalidPaymentStatus, domain.ErrInvalidPaymentStatus.Error())
			return
		}

		result, err := svc.Handle(r.Context(), app.HandleInput{
			OrderID:        req.OrderID,
			PaymentStatus:  status,
			IdempotencyKey: req.IdempotencyKey,
		})
		if err != nil {
			writeDomainError(w, err, http.StatusBadRequest)
			return
		}

		resp := webhookResponse{OrderID: result.OrderID}
		switch {
		case result.AlreadyProcessed:
			resp.Status = "already_processed"
			resp.Message = "webhook already processed"
		case result.PendingOrder:
			resp.Status = "pending_order"
			resp.Message = "order not found yet, recorded for reconciliation"
		case status == domain.PaymentStatusSuccess:
			resp.Status = "success"
			resp.Message = "payment settled"
		default:
			resp.Status = "failed"
			resp.Message = "payment failed, order cancelled"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type webhookRequest struct {
	OrderID        int64  `json:"order_id"`
	PaymentStatus  string `json:"payment_status"`
	IdempotencyKey string `json:"idempotency_key"`
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	OrderID int64  `json:"order_id,omitempty"`
}
