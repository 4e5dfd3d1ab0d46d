package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Mgahed/flash-sale-concurrency-api/internal/app"
	"github.com/Mgahed/flash-sale-concurrency-api/internal/domain"
)

type fakeWebhookHandler struct {
	result app.HandleResult
	err    error
}

func (f fakeWebhookHandler) Handle(_ context.Context, _ app.HandleInput) (app.HandleResult, error) {
	return f.result, f.err
}

func TestHandleWebhook_Success(t *testing.T) {
	svc := fakeWebhookHandler{result: app.HandleResult{Status: domain.WebhookLogStatusProcessed, OrderID: 1}}

	body, _ := json.Marshal(webhookRequest{OrderID: 1, PaymentStatus: "success", IdempotencyKey: "k1"})
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	HandleWebhook(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "success" || resp.OrderID != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestHandleWebhook_AlreadyProcessed(t *testing.T) {
	svc := fakeWebhookHandler{result: app.HandleResult{OrderID: 1, AlreadyProcessed: true}}

	body, _ := json.Marshal(webhookRequest{OrderID: 1, PaymentStatus: "success", IdempotencyKey: "k2"})
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	HandleWebhook(svc).ServeHTTP(rec, req)

	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "already_processed" {
		t.Fatalf("expected already_processed, got %q", resp.Status)
	}
}

func TestHandleWebhook_PendingOrder(t *testing.T) {
	svc := fakeWebhookHandler{result: app.HandleResult{OrderID: 99999, PendingOrder: true}}

	body, _ := json.Marshal(webhookRequest{OrderID: 99999, PaymentStatus: "success", IdempotencyKey: "k3"})
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	HandleWebhook(svc).ServeHTTP(rec, req)

	var resp webhookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "pending_order" {
		t.Fatalf("expected pending_order, got %q", resp.Status)
	}
}

func TestHandleWebhook_MissingFields(t *testing.T) {
	svc := fakeWebhookHandler{}

	body, _ := json.Marshal(webhookRequest{PaymentStatus: "success"})
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	HandleWebhook(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHandleWebhook_InvalidPaymentStatus(t *testing.T) {
	svc := fakeWebhookHandler{}

	body, _ := json.Marshal(webhookRequest{OrderID: 1, PaymentStatus: "bogus", IdempotencyKey: "k4"})
	req := httptest.NewRequest(http.MethodPost, "/payments/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	HandleWebhook(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
