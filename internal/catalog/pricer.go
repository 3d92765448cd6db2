package catalog

import (
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/botanicashop/botanica/internal/models"
)

// PriceTolerance is how far a client-submitted price may drift from the
// authoritative catalog price before the cart is rejected. One cent absorbs
// floating-point display rounding; anything beyond it is a stale price.
const PriceTolerance = 0.01

// floatSlack keeps the tolerance comparison itself from tripping on binary
// representation noise.
const floatSlack = 1e-9

// ValidationError marks client-supplied cart data as unacceptable. It maps to
// a 4xx response and is never retried automatically.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// RequestedItem is a cart line as submitted by the client. Price is only ever
// compared against the catalog; it is never persisted.
type RequestedItem struct {
	ProductID uuid.UUID
	Quantity  int
	Price     float64
}

// PricedItem is a normalized line carrying the authoritative unit price.
type PricedItem struct {
	ProductID uuid.UUID
	Name      string
	Quantity  int
	UnitPrice float64
}

type Pricer struct {
	rules *PricingRules
}

func NewPricer(rules *PricingRules) *Pricer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Pricer{rules: rules}
}

func (p *Pricer) Currency() string {
	return p.rules.Currency
}

// PriceItems re-prices the requested lines against the authoritative product
// records and returns the normalized lines plus their subtotal. Stock
// availability is deliberately not checked here.
func (p *Pricer) PriceItems(products map[uuid.UUID]*models.Product, requested []RequestedItem) ([]PricedItem, float64, error) {
	if len(requested) == 0 {
		return nil, 0, validationErrorf("cart is empty")
	}

	priced := make([]PricedItem, 0, len(requested))
	subtotal := 0.0
	for _, item := range requested {
		if item.Quantity <= 0 {
			return nil, 0, validationErrorf("invalid quantity %d for product %s", item.Quantity, item.ProductID)
		}

		product, ok := products[item.ProductID]
		if !ok || product == nil || !product.Active {
			return nil, 0, validationErrorf("product %s is no longer available", item.ProductID)
		}

		if math.Abs(product.Price-item.Price) > PriceTolerance+floatSlack {
			return nil, 0, validationErrorf(
				"price for %q has changed (expected %.2f, got %.2f), please refresh your cart",
				product.Name, product.Price, item.Price,
			)
		}

		priced = append(priced, PricedItem{
			ProductID: product.ID,
			Name:      product.Name,
			Quantity:  item.Quantity,
			UnitPrice: product.Price,
		})
		subtotal += product.Price * float64(item.Quantity)
	}

	return priced, RoundCents(subtotal), nil
}

// ShippingCost applies the flat rate unless the subtotal clears the
// free-shipping threshold.
func (p *Pricer) ShippingCost(subtotal float64) float64 {
	if p.rules.ShippingFlatRate == 0 {
		return 0
	}
	if p.rules.FreeShippingThreshold > 0 && subtotal >= p.rules.FreeShippingThreshold {
		return 0
	}
	return p.rules.ShippingFlatRate
}

func (p *Pricer) TaxAmount(subtotal float64) float64 {
	return RoundCents(subtotal * p.rules.TaxRate)
}

// RoundCents rounds half away from zero at the cent boundary.
func RoundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}
