package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/botanicashop/botanica/internal/db"
	"github.com/botanicashop/botanica/internal/logging"
	"github.com/botanicashop/botanica/internal/models"
	"github.com/botanicashop/botanica/internal/observability"
)

type reconcilerStore interface {
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkConfirmed(ctx context.Context, orderID uuid.UUID, paymentMethod string) (bool, error)
	MarkCancelledFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
}

// PaymentEventService reconciles processor webhook events against the order
// ledger. Every handler is safe to replay: a duplicate or out-of-order event
// is acknowledged without repeating side effects.
type PaymentEventService struct {
	orderStore  reconcilerStore
	emailSender OrderEmailSender
	logger      *slog.Logger
}

func NewPaymentEventService(orderStore reconcilerStore, emailSender OrderEmailSender, logger *slog.Logger) *PaymentEventService {
	if emailSender == nil {
		emailSender = noopOrderEmailSender{}
	}

	return &PaymentEventService{
		orderStore:  orderStore,
		emailSender: emailSender,
		logger:      logger,
	}
}

func (s *PaymentEventService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

// HandlePaymentIntentSucceeded confirms the order referenced by the intent's
// metadata and sends the confirmation email. The email fires only when this
// event actually applied the transition, so replays never re-send it, and an
// email failure never bounces the webhook.
func (s *PaymentEventService) HandlePaymentIntentSucceeded(ctx context.Context, payload []byte) error {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	intent, orderID := s.decodeIntent(ctx, payload)
	if orderID == uuid.Nil {
		return nil
	}

	applied, err := s.orderStore.MarkConfirmed(ctx, orderID, paymentMethodLabel(intent))
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			logger.Warn("payment succeeded for unknown order", "order_id", orderID, "intent_id", intent.ID)
			return nil
		}
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("ignoring payment_intent.succeeded due to state transition", "order_id", orderID, "intent_id", intent.ID, "error", err)
			return nil
		}
		return fmt.Errorf("failed to confirm order: %w", err)
	}
	if !applied {
		logger.Info("payment_intent.succeeded already applied", "order_id", orderID, "intent_id", intent.ID)
		return nil
	}

	meter.Count("order.confirmed", 1, sentry.WithAttributes(
		attribute.String("currency", string(intent.Currency)),
	))
	logger.Info("order confirmed", "order_id", orderID, "intent_id", intent.ID)

	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		logger.Error("failed to load confirmed order for email", "error", err, "order_id", orderID)
		return nil
	}
	if err := s.emailSender.SendOrderConfirmation(ctx, order); err != nil {
		meter.Count("order.confirmation_email.failed", 1)
		logger.Error("failed to send order confirmation email", "error", err, "order_id", orderID)
	}

	return nil
}

// HandlePaymentIntentFailed cancels the order and records the failed payment.
func (s *PaymentEventService) HandlePaymentIntentFailed(ctx context.Context, payload []byte) error {
	return s.cancelFromIntent(ctx, payload, "payment_intent.payment_failed")
}

// HandlePaymentIntentCanceled cancels the order when the authorization is
// voided before capture.
func (s *PaymentEventService) HandlePaymentIntentCanceled(ctx context.Context, payload []byte) error {
	return s.cancelFromIntent(ctx, payload, "payment_intent.canceled")
}

func (s *PaymentEventService) cancelFromIntent(ctx context.Context, payload []byte, eventType string) error {
	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	intent, orderID := s.decodeIntent(ctx, payload)
	if orderID == uuid.Nil {
		return nil
	}

	applied, err := s.orderStore.MarkCancelledFailed(ctx, orderID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			logger.Warn("payment failure for unknown order", "order_id", orderID, "intent_id", intent.ID, "event_type", eventType)
			return nil
		}
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			logger.Info("ignoring payment failure due to state transition", "order_id", orderID, "intent_id", intent.ID, "event_type", eventType, "error", err)
			return nil
		}
		return fmt.Errorf("failed to cancel order: %w", err)
	}
	if !applied {
		logger.Info("payment failure already applied", "order_id", orderID, "intent_id", intent.ID, "event_type", eventType)
		return nil
	}

	meter.Count("order.payment_failed", 1, sentry.WithAttributes(
		attribute.String("event_type", eventType),
	))
	logger.Info("order cancelled after payment failure", "order_id", orderID, "intent_id", intent.ID, "event_type", eventType)
	return nil
}

// HandlePaymentIntentRequiresAction only records that the customer was sent
// through an extra authentication step; order state does not change.
func (s *PaymentEventService) HandlePaymentIntentRequiresAction(ctx context.Context, payload []byte) error {
	logger := s.loggerFromContext(ctx)

	intent, orderID := s.decodeIntent(ctx, payload)
	if orderID == uuid.Nil {
		return nil
	}

	logger.Info("payment requires customer action", "order_id", orderID, "intent_id", intent.ID)
	return nil
}

// decodeIntent parses the event payload and resolves the order id from the
// intent metadata. The signature check already ran, so anything undecodable
// here is logged and acknowledged (orderID is Nil): redelivery cannot fix a
// parse failure, and events without usable metadata come from objects this
// system did not create.
func (s *PaymentEventService) decodeIntent(ctx context.Context, payload []byte) (*stripeapi.PaymentIntent, uuid.UUID) {
	logger := s.loggerFromContext(ctx)

	var intent stripeapi.PaymentIntent
	if err := json.Unmarshal(payload, &intent); err != nil {
		logger.Error("undecodable payment intent payload; acknowledging", "error", err)
		return nil, uuid.Nil
	}
	if intent.ID == "" {
		logger.Error("payment intent payload missing id; acknowledging")
		return nil, uuid.Nil
	}

	raw, ok := intent.Metadata["order_id"]
	if !ok || raw == "" {
		logger.Info("payment intent missing order metadata; skipping", "intent_id", intent.ID)
		return &intent, uuid.Nil
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		logger.Warn("payment intent has malformed order metadata; skipping", "intent_id", intent.ID, "order_id", raw)
		return &intent, uuid.Nil
	}

	return &intent, orderID
}

func paymentMethodLabel(intent *stripeapi.PaymentIntent) string {
	if intent.PaymentMethod != nil && intent.PaymentMethod.ID != "" {
		return intent.PaymentMethod.ID
	}
	if len(intent.PaymentMethodTypes) > 0 {
		return intent.PaymentMethodTypes[0]
	}
	return "card"
}
