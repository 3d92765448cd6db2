package handlers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/botanicashop/botanica/internal/logging"
	"github.com/botanicashop/botanica/internal/observability"
	"github.com/botanicashop/botanica/internal/services"
)

// StripeEventRouter dispatches verified processor events to the payment
// reconciliation service. Unknown event types are acknowledged, not bounced;
// the processor retries only what we fail.
type StripeEventRouter struct {
	service *services.PaymentEventService
	logger  *slog.Logger
}

func NewStripeEventRouter(service *services.PaymentEventService, logger *slog.Logger) *StripeEventRouter {
	return &StripeEventRouter{
		service: service,
		logger:  logger,
	}
}

func (r *StripeEventRouter) Handle(ctx context.Context, event *stripeapi.Event) error {
	span := sentry.StartSpan(
		ctx,
		"handler.stripe_router.handle",
		sentry.WithOpName("handler.stripe_router"),
		sentry.WithDescription("StripeEventRouter.Handle"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("webhook.provider", "stripe"))
	meter.Count("webhook.router.received", 1)
	recordFailed := func(reason string) {
		meter.Count("webhook.router.failed", 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if event == nil {
		recordFailed("missing_event")
		return fmt.Errorf("missing stripe event")
	}
	if event.Data == nil {
		recordFailed("missing_event_data")
		return fmt.Errorf("missing stripe event data")
	}
	meter.SetAttributes(attribute.String("webhook.event_type", string(event.Type)))

	logger := logging.FromContext(ctx, r.logger)
	payload := event.Data.Raw

	var err error
	switch event.Type {
	case "payment_intent.succeeded":
		err = r.service.HandlePaymentIntentSucceeded(ctx, payload)
	case "payment_intent.payment_failed":
		err = r.service.HandlePaymentIntentFailed(ctx, payload)
	case "payment_intent.canceled":
		err = r.service.HandlePaymentIntentCanceled(ctx, payload)
	case "payment_intent.requires_action":
		err = r.service.HandlePaymentIntentRequiresAction(ctx, payload)
	default:
		logger.Info("unhandled Stripe event type", "type", event.Type)
		meter.Count("webhook.router.unhandled", 1)
		span.Status = sentry.SpanStatusOK
		return nil
	}

	if err != nil {
		recordFailed(string(event.Type))
		return err
	}

	meter.Count("webhook.router.processed", 1)
	span.Status = sentry.SpanStatusOK
	return nil
}
