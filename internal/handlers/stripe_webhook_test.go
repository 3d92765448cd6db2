package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/botanicashop/botanica/internal/cache"
	"github.com/botanicashop/botanica/internal/config"
	"github.com/botanicashop/botanica/internal/db"
	"github.com/botanicashop/botanica/internal/models"
	"github.com/botanicashop/botanica/internal/services"
	"github.com/botanicashop/botanica/internal/session"
)

const testWebhookSecret = "whsec_test_secret"

type webhookOrderStore struct {
	order *models.Order

	confirmCalls int
	confirmErr   error
}

func (f *webhookOrderStore) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if f.order == nil || f.order.ID != orderID {
		return nil, db.ErrOrderNotFound
	}
	return f.order, nil
}

func (f *webhookOrderStore) MarkConfirmed(_ context.Context, _ uuid.UUID, _ string) (bool, error) {
	f.confirmCalls++
	if f.confirmErr != nil {
		return false, f.confirmErr
	}
	return true, nil
}

func (f *webhookOrderStore) MarkCancelledFailed(_ context.Context, _ uuid.UUID) (bool, error) {
	return true, nil
}

func newWebhookTestHandlers(t *testing.T, store *webhookOrderStore) *Handlers {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	cacheProvider, err := cache.NewProvider(cache.Config{Provider: "memory"})
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	t.Cleanup(func() { _ = cacheProvider.Close() })

	eventService := services.NewPaymentEventService(store, nil, logger)
	router := NewStripeEventRouter(eventService, logger)

	h, err := New(Dependencies{
		Config:         &config.Config{StripeWebhookSecret: testWebhookSecret},
		DB:             &pgxpool.Pool{},
		CacheProvider:  cacheProvider,
		OrderService:   services.NewOrderService(nil, nil, nil, nil, logger),
		StripeRouter:   router,
		SessionManager: session.NewManager(nil, "0123456789abcdef0123456789abcdef", false),
		Logger:         logger,
	})
	if err != nil {
		t.Fatalf("failed to create handlers: %v", err)
	}
	return h
}

func signedWebhookRequest(t *testing.T, eventID string, orderID uuid.UUID) *http.Request {
	t.Helper()

	payload := fmt.Appendf(nil,
		`{"id":"%s","object":"event","api_version":"2026-01-28.clover","type":"payment_intent.succeeded","data":{"object":{"id":"pi_test","object":"payment_intent","metadata":{"order_id":"%s"}}}}`,
		eventID, orderID)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhook_InvalidSignature(t *testing.T) {
	t.Parallel()

	h := newWebhookTestHandlers(t, &webhookOrderStore{})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewBufferString(`{}`))
	req.Header.Set("Stripe-Signature", "t=123,v1=deadbeef")
	rec := httptest.NewRecorder()

	h.StripeWebhook(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestStripeWebhook_DuplicateEventProcessedOnce(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	store := &webhookOrderStore{order: &models.Order{ID: orderID, CustomerEmail: "ada@example.com"}}
	h := newWebhookTestHandlers(t, store)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.StripeWebhook(rec, signedWebhookRequest(t, "evt_dup", orderID))
		if rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	if store.confirmCalls != 1 {
		t.Errorf("confirm calls = %d, want 1 (duplicate must be dropped)", store.confirmCalls)
	}
}

func TestStripeWebhook_ProcessingFailureAllowsRetry(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	store := &webhookOrderStore{
		order:      &models.Order{ID: orderID},
		confirmErr: errors.New("connection reset"),
	}
	h := newWebhookTestHandlers(t, store)

	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, signedWebhookRequest(t, "evt_retry", orderID))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}

	// The failed event must not be marked processed; the retry goes through.
	store.confirmErr = nil
	rec = httptest.NewRecorder()
	h.StripeWebhook(rec, signedWebhookRequest(t, "evt_retry", orderID))
	if rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", rec.Code)
	}
	if store.confirmCalls != 2 {
		t.Errorf("confirm calls = %d, want 2", store.confirmCalls)
	}
}

func TestStripeWebhook_UnknownEventTypeAcknowledged(t *testing.T) {
	t.Parallel()

	h := newWebhookTestHandlers(t, &webhookOrderStore{})

	payload := []byte(`{"id":"evt_unknown","object":"event","api_version":"2026-01-28.clover","type":"charge.refunded","data":{"object":{"id":"ch_test","object":"charge"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signed.Header)

	rec := httptest.NewRecorder()
	h.StripeWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for unknown event type", rec.Code)
	}
}
