package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/botanicashop/botanica/internal/db"
	"github.com/botanicashop/botanica/internal/models"
)

type fakeReconcilerStore struct {
	order *models.Order

	confirmApplied bool
	confirmErr     error
	confirmCalls   int

	cancelApplied bool
	cancelErr     error
	cancelCalls   int
}

func (f *fakeReconcilerStore) GetByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if f.order == nil || f.order.ID != orderID {
		return nil, db.ErrOrderNotFound
	}
	return f.order, nil
}

func (f *fakeReconcilerStore) MarkConfirmed(_ context.Context, _ uuid.UUID, _ string) (bool, error) {
	f.confirmCalls++
	return f.confirmApplied, f.confirmErr
}

func (f *fakeReconcilerStore) MarkCancelledFailed(_ context.Context, _ uuid.UUID) (bool, error) {
	f.cancelCalls++
	return f.cancelApplied, f.cancelErr
}

type recordingEmailSender struct {
	sent    []*models.Order
	sendErr error
}

func (r *recordingEmailSender) SendOrderConfirmation(_ context.Context, order *models.Order) error {
	r.sent = append(r.sent, order)
	return r.sendErr
}

func intentPayload(orderID uuid.UUID) []byte {
	return fmt.Appendf(nil, `{"id":"pi_test","metadata":{"order_id":"%s"},"payment_method_types":["card"]}`, orderID)
}

func TestHandlePaymentIntentSucceeded(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()
	order := &models.Order{ID: orderID, CustomerEmail: "ada@example.com", Currency: "eur"}

	tests := []struct {
		name       string
		store      *fakeReconcilerStore
		payload    []byte
		sendErr    error
		wantErr    bool
		wantEmails int
	}{
		{
			name:       "transition applied sends email",
			store:      &fakeReconcilerStore{order: order, confirmApplied: true},
			payload:    intentPayload(orderID),
			wantEmails: 1,
		},
		{
			name:       "replay does not resend email",
			store:      &fakeReconcilerStore{order: order, confirmApplied: false},
			payload:    intentPayload(orderID),
			wantEmails: 0,
		},
		{
			name:       "unknown order is acknowledged",
			store:      &fakeReconcilerStore{confirmErr: db.ErrOrderNotFound},
			payload:    intentPayload(uuid.New()),
			wantEmails: 0,
		},
		{
			name:       "invalid transition is acknowledged",
			store:      &fakeReconcilerStore{order: order, confirmErr: db.ErrInvalidStatusTransition},
			payload:    intentPayload(orderID),
			wantEmails: 0,
		},
		{
			name:       "store failure bounces the event",
			store:      &fakeReconcilerStore{order: order, confirmErr: errors.New("connection reset")},
			payload:    intentPayload(orderID),
			wantErr:    true,
			wantEmails: 0,
		},
		{
			name:       "email failure does not bounce the event",
			store:      &fakeReconcilerStore{order: order, confirmApplied: true},
			payload:    intentPayload(orderID),
			sendErr:    errors.New("smtp down"),
			wantEmails: 1,
		},
		{
			name:       "missing metadata is acknowledged",
			store:      &fakeReconcilerStore{order: order, confirmApplied: true},
			payload:    []byte(`{"id":"pi_foreign","metadata":{}}`),
			wantEmails: 0,
		},
		{
			name:       "undecodable payload is acknowledged",
			store:      &fakeReconcilerStore{},
			payload:    []byte(`{`),
			wantEmails: 0,
		},
		{
			name:       "payload without intent id is acknowledged",
			store:      &fakeReconcilerStore{},
			payload:    []byte(`{"metadata":{"order_id":"not-ours"}}`),
			wantEmails: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sender := &recordingEmailSender{sendErr: tt.sendErr}
			svc := NewPaymentEventService(tt.store, sender, slog.New(slog.DiscardHandler))

			err := svc.HandlePaymentIntentSucceeded(context.Background(), tt.payload)
			if tt.wantErr != (err != nil) {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(sender.sent) != tt.wantEmails {
				t.Errorf("sent %d emails, want %d", len(sender.sent), tt.wantEmails)
			}
		})
	}
}

func TestHandlePaymentIntentSucceeded_MissingMetadataSkipsStore(t *testing.T) {
	t.Parallel()

	store := &fakeReconcilerStore{confirmApplied: true}
	svc := NewPaymentEventService(store, nil, slog.New(slog.DiscardHandler))

	if err := svc.HandlePaymentIntentSucceeded(context.Background(), []byte(`{"id":"pi_foreign"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.confirmCalls != 0 {
		t.Error("store was called for an event without order metadata")
	}
}

func TestHandlePaymentIntentSucceeded_UndecodablePayloadSkipsStore(t *testing.T) {
	t.Parallel()

	store := &fakeReconcilerStore{confirmApplied: true}
	svc := NewPaymentEventService(store, nil, slog.New(slog.DiscardHandler))

	// Redelivering a payload that does not parse can never succeed, so the
	// event must be acknowledged rather than bounced back to the processor.
	if err := svc.HandlePaymentIntentSucceeded(context.Background(), []byte(`not json`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.HandlePaymentIntentFailed(context.Background(), []byte(`not json`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.confirmCalls != 0 || store.cancelCalls != 0 {
		t.Error("store was called for an undecodable payload")
	}
}

func TestHandlePaymentIntentFailed(t *testing.T) {
	t.Parallel()

	orderID := uuid.New()

	tests := []struct {
		name    string
		store   *fakeReconcilerStore
		wantErr bool
	}{
		{
			name:  "transition applied",
			store: &fakeReconcilerStore{cancelApplied: true},
		},
		{
			name:  "replay acknowledged",
			store: &fakeReconcilerStore{cancelApplied: false},
		},
		{
			name:  "already confirmed stays confirmed",
			store: &fakeReconcilerStore{cancelErr: db.ErrInvalidStatusTransition},
		},
		{
			name:  "unknown order acknowledged",
			store: &fakeReconcilerStore{cancelErr: db.ErrOrderNotFound},
		},
		{
			name:    "store failure bounces",
			store:   &fakeReconcilerStore{cancelErr: errors.New("connection reset")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			svc := NewPaymentEventService(tt.store, nil, slog.New(slog.DiscardHandler))
			err := svc.HandlePaymentIntentFailed(context.Background(), intentPayload(orderID))
			if tt.wantErr != (err != nil) {
				t.Fatalf("error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.store.cancelCalls != 1 {
				t.Errorf("cancel calls = %d, want 1", tt.store.cancelCalls)
			}
		})
	}
}

func TestHandlePaymentIntentRequiresAction(t *testing.T) {
	t.Parallel()

	store := &fakeReconcilerStore{}
	svc := NewPaymentEventService(store, nil, slog.New(slog.DiscardHandler))

	if err := svc.HandlePaymentIntentRequiresAction(context.Background(), intentPayload(uuid.New())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.confirmCalls != 0 || store.cancelCalls != 0 {
		t.Error("requires_action must not change order state")
	}
}
