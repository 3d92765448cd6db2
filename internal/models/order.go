package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusConfirmed  OrderStatus = "confirmed"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

// IsTerminal reports whether no webhook-driven transition may leave the status.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusRefunded, StatusDelivered:
		return true
	default:
		return false
	}
}

// IsCancellable reports whether an explicit customer/admin cancel is allowed.
func (s OrderStatus) IsCancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Address is the shipping/billing snapshot captured at order creation.
// It is never re-derived from the user profile afterwards.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Order struct {
	ID              uuid.UUID     `json:"id"`
	OrderNumber     string        `json:"order_number"`
	UserID          uuid.UUID     `json:"user_id"`
	CustomerEmail   string        `json:"customer_email"`
	CustomerName    string        `json:"customer_name"`
	Subtotal        float64       `json:"subtotal"`
	ShippingCost    float64       `json:"shipping_cost"`
	TaxAmount       float64       `json:"tax_amount"`
	Total           float64       `json:"total"`
	Currency        string        `json:"currency"`
	Status          OrderStatus   `json:"status"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	PaymentIntentID string        `json:"payment_intent_id,omitempty"`
	PaymentMethod   string        `json:"payment_method,omitempty"`
	ShippingAddress *Address      `json:"shipping_address,omitempty"`
	BillingAddress  *Address      `json:"billing_address,omitempty"`
	Items           []OrderItem   `json:"items"`
	CreatedAt       time.Time     `json:"created_at"`
	ConfirmedAt     time.Time     `json:"confirmed_at,omitzero"`
	CancelledAt     time.Time     `json:"cancelled_at,omitzero"`
}

// OrderItem freezes the unit price at order time. Catalog price changes never
// retroactively alter an existing order.
type OrderItem struct {
	ID        uuid.UUID `json:"id"`
	OrderID   uuid.UUID `json:"order_id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}
