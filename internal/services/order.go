package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"

	"github.com/botanicashop/botanica/internal/catalog"
	"github.com/botanicashop/botanica/internal/db"
	"github.com/botanicashop/botanica/internal/logging"
	"github.com/botanicashop/botanica/internal/models"
	"github.com/botanicashop/botanica/internal/observability"
	"github.com/botanicashop/botanica/internal/stripe"
)

// ErrPaymentGateway wraps failures talking to the payment processor so
// handlers can map them without inspecting processor error types.
var ErrPaymentGateway = errors.New("payment gateway error")

const listOrdersLimit = 50

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Delete(ctx context.Context, orderID uuid.UUID) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.Order, error)
	SetPaymentIntent(ctx context.Context, orderID uuid.UUID, paymentIntentID string) error
	Cancel(ctx context.Context, orderID uuid.UUID) error
}

type productStore interface {
	GetByIDs(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]*models.Product, error)
}

type paymentGateway interface {
	CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (*stripeapi.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeapi.PaymentIntent, error)
	CancelPaymentIntent(ctx context.Context, paymentIntentID string) error
	CreateCustomer(ctx context.Context, email, name string) (string, error)
	CreateEphemeralKey(ctx context.Context, customerID string) (string, error)
}

type orderPricer interface {
	PriceItems(products map[uuid.UUID]*models.Product, requested []catalog.RequestedItem) ([]catalog.PricedItem, float64, error)
	ShippingCost(subtotal float64) float64
	TaxAmount(subtotal float64) float64
	Currency() string
}

type OrderService struct {
	orderStore   orderStore
	productStore productStore
	gateway      paymentGateway
	pricer       orderPricer
	logger       *slog.Logger
}

func NewOrderService(orderStore orderStore, productStore productStore, gateway paymentGateway, pricer orderPricer, logger *slog.Logger) *OrderService {
	return &OrderService{
		orderStore:   orderStore,
		productStore: productStore,
		gateway:      gateway,
		pricer:       pricer,
		logger:       logger,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type CreateOrderInput struct {
	UserID           uuid.UUID
	CustomerEmail    string
	CustomerName     string
	StripeCustomerID string
	Items            []catalog.RequestedItem
	ShippingAddress  *models.Address
	BillingAddress   *models.Address
}

type CreateOrderOutput struct {
	Order        *models.Order
	Intent       *stripeapi.PaymentIntent
	EphemeralKey string
	// CustomerID is set when a processor customer was created during this
	// call, so the caller can persist it on the session.
	CustomerID string
}

// CreateOrder re-prices the cart against the catalog, writes the order with
// its items atomically, and opens a payment authorization for the total. If
// the authorization cannot be opened the order is deleted again; no order
// row may outlive this call without a payment intent attached.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (*CreateOrderOutput, error) {
	span := sentry.StartSpan(
		ctx,
		"service.order.create",
		sentry.WithOpName("service.order"),
		sentry.WithDescription("CreateOrder"),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	defer span.Finish()
	ctx = span.Context()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.Count("order.create.received", 1)
	recordFailure := func(reason string) {
		meter.Count("order.create.failed", 1, sentry.WithAttributes(
			attribute.String("reason", reason),
		))
	}

	productIDs := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	products, err := s.productStore.GetByIDs(ctx, productIDs)
	if err != nil {
		recordFailure("product_lookup_failed")
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	pricedItems, subtotal, err := s.pricer.PriceItems(products, input.Items)
	if err != nil {
		recordFailure("validation_failed")
		return nil, err
	}

	shipping := s.pricer.ShippingCost(subtotal)
	tax := s.pricer.TaxAmount(subtotal)
	total := catalog.RoundCents(subtotal + shipping + tax)

	order := &models.Order{
		UserID:          input.UserID,
		CustomerEmail:   input.CustomerEmail,
		CustomerName:    input.CustomerName,
		Subtotal:        subtotal,
		ShippingCost:    shipping,
		TaxAmount:       tax,
		Total:           total,
		Currency:        s.pricer.Currency(),
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentPending,
		ShippingAddress: input.ShippingAddress,
		BillingAddress:  input.BillingAddress,
	}
	for _, item := range pricedItems {
		order.Items = append(order.Items, models.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	if err := s.orderStore.Create(ctx, order); err != nil {
		recordFailure("store_create_failed")
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	logger.Info("order created",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", input.UserID,
		"total", total)

	customerID, createdCustomerID := input.StripeCustomerID, ""
	if customerID == "" {
		customerID, err = s.gateway.CreateCustomer(ctx, input.CustomerEmail, input.CustomerName)
		if err != nil {
			// Payment can proceed without an attached customer; only the
			// mobile payment sheet loses saved methods.
			logger.Warn("failed to create processor customer", "error", err, "order_id", order.ID)
			customerID = ""
		} else {
			createdCustomerID = customerID
		}
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, stripe.PaymentIntentParams{
		OrderID:    order.ID,
		UserID:     input.UserID,
		CustomerID: customerID,
		Amount:     total,
		Currency:   order.Currency,
	})
	if err != nil {
		recordFailure("payment_intent_failed")
		s.compensateCreate(ctx, order.ID, "")
		return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
	}
	if intent.ClientSecret == "" {
		recordFailure("payment_intent_no_secret")
		s.compensateCreate(ctx, order.ID, intent.ID)
		return nil, fmt.Errorf("%w: payment intent %s has no client secret", ErrPaymentGateway, intent.ID)
	}

	if err := s.orderStore.SetPaymentIntent(ctx, order.ID, intent.ID); err != nil {
		recordFailure("attach_intent_failed")
		s.compensateCreate(ctx, order.ID, intent.ID)
		return nil, fmt.Errorf("failed to attach payment intent to order: %w", err)
	}
	order.PaymentIntentID = intent.ID

	ephemeralKey := ""
	if customerID != "" {
		ephemeralKey, err = s.gateway.CreateEphemeralKey(ctx, customerID)
		if err != nil {
			logger.Warn("failed to create ephemeral key", "error", err, "order_id", order.ID)
			ephemeralKey = ""
		}
	}

	meter.Count("order.create.succeeded", 1)

	return &CreateOrderOutput{
		Order:        order,
		Intent:       intent,
		EphemeralKey: ephemeralKey,
		CustomerID:   createdCustomerID,
	}, nil
}

// compensateCreate removes an order whose payment authorization never
// materialized. Failures here are logged, not returned; the caller already
// has a more useful error for the client.
func (s *OrderService) compensateCreate(ctx context.Context, orderID uuid.UUID, intentID string) {
	logger := s.loggerFromContext(ctx)

	if intentID != "" {
		if err := s.gateway.CancelPaymentIntent(ctx, intentID); err != nil {
			logger.Error("failed to cancel orphaned payment intent", "error", err, "intent_id", intentID, "order_id", orderID)
		}
	}
	if err := s.orderStore.Delete(ctx, orderID); err != nil {
		logger.Error("failed to delete order after payment intent failure", "error", err, "order_id", orderID)
	}
}

// GetOrder returns the order only to its owner; anything else reads as not
// found so order ids cannot be probed.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orderStore.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, db.ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	return s.orderStore.GetByUser(ctx, userID, listOrdersLimit)
}

// CancelOrder cancels an order that has not been paid yet. The processor
// authorization is cancelled first; if that fails the order is left
// untouched so the webhook stream remains the source of truth.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	logger := s.loggerFromContext(ctx)

	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}

	if !order.Status.IsCancellable() {
		return nil, fmt.Errorf("%w: order is %s/%s", db.ErrInvalidStatusTransition, order.Status, order.PaymentStatus)
	}

	if order.PaymentIntentID != "" && order.PaymentStatus == models.PaymentPending {
		intent, err := s.gateway.GetPaymentIntent(ctx, order.PaymentIntentID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
		}
		switch intent.Status {
		case stripeapi.PaymentIntentStatusCanceled, stripeapi.PaymentIntentStatusSucceeded:
			// Nothing left to cancel at the processor; the webhook stream
			// reconciles the payment side.
			logger.Info("payment intent already settled at processor", "order_id", orderID, "intent_id", intent.ID, "intent_status", intent.Status)
		default:
			if err := s.gateway.CancelPaymentIntent(ctx, order.PaymentIntentID); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrPaymentGateway, err)
			}
		}
	}

	if err := s.orderStore.Cancel(ctx, orderID); err != nil {
		return nil, err
	}

	logger.Info("order cancelled", "order_id", orderID, "order_number", order.OrderNumber, "user_id", userID)

	return s.GetOrder(ctx, userID, orderID)
}
