package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
)

// OrderCreator is the minimal interface POST /orders needs: the Order
// Manager's hold-to-order path.
type OrderCreator interface {
	CreateOrderFromHold(ctx context.Context, holdID int64) (domain.Order, error)
}

// HandleCreateOrder returns an HTTP handler for POST /orders.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createOrderRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.HoldID <= 0 {
			writeError(w, http.StatusUnprocessableEntity, codeMissingRequiredField, "hold_id is required")
			return
		}

		order, err := svc.CreateOrderFromHold(r.Context(), req.HoldID)
		if err != nil {
			writeDomainError(w, err, http.StatusBadRequest)
			return
		}

		resp := orderResponse{
			ID:        order.ID,
			HoldID:    order.HoldID,
			Status:    string(order.Status),
			Amount:    order.Amount.StringFixed(2),
			CreatedAt: order.CreatedAt,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type createOrderRequest struct {
	HoldID int64 `json:"hold_id"`
}

type orderResponse struct {
	ID        int64     `json:"id"`
	HoldID    int64     `json:"hold_id"`
	Status    string    `json:"status"`
	Amount    string    `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}
