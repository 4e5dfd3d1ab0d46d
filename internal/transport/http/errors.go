package http

import (
	"encoding/json"
	"net/http"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
)

const (
	codeMethodNotAllowed     = "method_not_allowed"
	codeNotFound             = "not_found"
	codeInvalidRequestBody   = "invalid_request_body"
	codeMissingRequiredField = "missing_required_field"
	codeInvalidID            = "invalid_id"
	codeInvalidQty           = "invalid_qty"
	codeInvalidPaymentStatus = "invalid_payment_status"
	codeProductNotFound      = "product_not_found"
	codeHoldNotFound         = "hold_not_found"
	codeOrderNotFound        = "order_not_found"
	codeInsufficientStock    = "insufficient_stock"
	codeHoldAlreadyUsed      = "hold_already_used"
	codeHoldReleased         = "hold_released"
	codeHoldExpired          = "hold_expired"
	codeInvalidTransition    = "invalid_transition"
	codeCannotCancelPaid     = "cannot_cancel_paid"
	codeHighContention       = "high_contention"
	codeForbidden            = "forbidden"
	codeInternalError        = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps a domain sentinel error to the HTTP status and
// code spec.md §7's taxonomy names, writing the JSON error envelope.
// notFoundStatus lets GET /products/{id} return 404 for ErrProductNotFound
// while hold/order operations keep the existing-behavior 400.
func writeDomainError(w http.ResponseWriter, err error, notFoundStatus int) {
	switch err {
	case domain.ErrInvalidID, domain.ErrMissingField:
		writeError(w, http.StatusUnprocessableEntity, codeMissingRequiredField, err.Error())
	case domain.ErrInvalidQty:
		writeError(w, http.StatusUnprocessableEntity, codeInvalidQty, err.Error())
	case domain.ErrInvalidPaymentStatus:
		writeError(w, http.StatusBadRequest, codeInvalidPaymentStatus, err.Error())
	case domain.ErrProductNotFound:
		writeError(w, notFoundStatus, codeProductNotFound, err.Error())
	case domain.ErrHoldNotFound:
		writeError(w, notFoundStatus, codeHoldNotFound, err.Error())
	case domain.ErrOrderNotFound:
		writeError(w, notFoundStatus, codeOrderNotFound, err.Error())
	case domain.ErrInsufficientStock:
		writeError(w, http.StatusBadRequest, codeInsufficientStock, err.Error())
	case domain.ErrHoldAlreadyUsed:
		writeError(w, http.StatusBadRequest, codeHoldAlreadyUsed, err.Error())
	case domain.ErrHoldReleased:
		writeError(w, http.StatusBadRequest, codeHoldReleased, err.Error())
	case domain.ErrHoldExpired:
		writeError(w, http.StatusBadRequest, codeHoldExpired, err.Error())
	case domain.ErrInvalidTransition:
		writeError(w, http.StatusBadRequest, codeInvalidTransition, err.Error())
	case domain.ErrCannotCancelPaid:
		writeError(w, http.StatusBadRequest, codeCannotCancelPaid, err.Error())
	case domain.ErrHighContention, domain.ErrDeadlock:
		writeError(w, http.StatusBadRequest, codeHighContention, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}
