package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/app"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
)

// HoldCreator is the minimal interface POST /holds needs: the Hold
// Manager's create path.
type HoldCreator interface {
	CreateHold(ctx context.Context, in app.CreateHoldInput) (domain.Hold, error)
}

// HandleCreateHold returns an HTTP handler for POST /holds.
func HandleCreateHold(svc HoldCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
			return
		}

		var req createHoldRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.ProductID <= 0 {
			writeError(w, http.StatusUnprocessableEntity, codeMissingRequiredField, "product_id is required")
			return
		}
		if req.Qty <= 0 {
			writeError(w, http.StatusUnprocessableEntity, codeInvalidQty, domain.ErrInvalidQty.Error())
			return
		}

		hold, err := svc.CreateHold(r.Context(), app.CreateHoldInput{
			ProductID: req.ProductID,
			Qty:       req.Qty,
		})
		if err != nil {
			writeDomainError(w, err, http.StatusBadRequest)
			return
		}

		resp := createHoldResponse{
			HoldID:    hold.ID,
			ExpiresAt: hold.ExpiresAt,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

type createHoldRequest struct {
	ProductID int64 `json:"product_id"`
	Qty       int   `json:"qty"`
}

type createHoldResponse struct {
	HoldID    int64     `json:"hold_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
