// Package stripe wraps the payment processor client used to open, retrieve
// and cancel payment authorizations.
package stripe

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	stripeapi "github.com/stripe/stripe-go/v84"
)

// PaymentClient is constructed once and injected; nothing in this package
// holds global processor state.
type PaymentClient struct {
	client *stripeapi.Client
}

// NewPaymentClient builds the processor client. When httpClient is non-nil
// all API calls go through it, so callers can supply an instrumented
// transport.
func NewPaymentClient(secretKey string, httpClient *http.Client) *PaymentClient {
	if httpClient == nil {
		return &PaymentClient{client: stripeapi.NewClient(secretKey)}
	}
	backends := stripeapi.NewBackendsWithConfig(&stripeapi.BackendConfig{
		HTTPClient: httpClient,
	})
	return &PaymentClient{
		client: stripeapi.NewClient(secretKey, stripeapi.WithBackends(backends)),
	}
}

// PaymentIntentParams carries everything needed to open an authorization.
// Amount is the decimal order total; conversion to the processor's minor-unit
// representation happens here, not in callers.
type PaymentIntentParams struct {
	OrderID    uuid.UUID
	UserID     uuid.UUID
	CustomerID string
	Amount     float64
	Currency   string
}

// CreatePaymentIntent opens a payment authorization carrying the order and
// user ids as metadata, so a webhook event maps back to an order without a
// separate lookup table.
func (c *PaymentClient) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*stripeapi.PaymentIntent, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	createParams := &stripeapi.PaymentIntentCreateParams{
		Amount:   stripeapi.Int64(MinorUnits(params.Amount)),
		Currency: stripeapi.String(params.Currency),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
		Metadata: map[string]string{
			"order_id": params.OrderID.String(),
			"user_id":  params.UserID.String(),
		},
	}
	if params.CustomerID != "" {
		createParams.Customer = stripeapi.String(params.CustomerID)
	}

	intent, err := c.client.V1PaymentIntents.Create(ctx, createParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}
	return intent, nil
}

func (c *PaymentClient) GetPaymentIntent(ctx context.Context, paymentIntentID string) (*stripeapi.PaymentIntent, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	intent, err := c.client.V1PaymentIntents.Retrieve(ctx, paymentIntentID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment intent: %w", err)
	}
	return intent, nil
}

// CancelPaymentIntent requests cancellation of an open authorization. On
// failure the caller leaves order state unchanged and surfaces the error.
func (c *PaymentClient) CancelPaymentIntent(ctx context.Context, paymentIntentID string) error {
	if ctx == nil {
		return fmt.Errorf("context is required")
	}

	if _, err := c.client.V1PaymentIntents.Cancel(ctx, paymentIntentID, nil); err != nil {
		return fmt.Errorf("failed to cancel payment intent: %w", err)
	}
	return nil
}

func (c *PaymentClient) CreateCustomer(ctx context.Context, email, name string) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}

	customer, err := c.client.V1Customers.Create(ctx, &stripeapi.CustomerCreateParams{
		Email: stripeapi.String(email),
		Name:  stripeapi.String(name),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return customer.ID, nil
}

// CreateEphemeralKey issues the short-lived key a mobile payment sheet needs
// to act on the customer's behalf.
func (c *PaymentClient) CreateEphemeralKey(ctx context.Context, customerID string) (string, error) {
	if ctx == nil {
		return "", fmt.Errorf("context is required")
	}

	key, err := c.client.V1EphemeralKeys.Create(ctx, &stripeapi.EphemeralKeyCreateParams{
		Customer:      stripeapi.String(customerID),
		StripeVersion: stripeapi.String(stripeapi.APIVersion),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create ephemeral key: %w", err)
	}
	return key.Secret, nil
}
