package catalog

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/botanicashop/botanica/internal/models"
)

func productFixture(price float64, active bool) *models.Product {
	return &models.Product{
		ID:       uuid.New(),
		Name:     "Crème Immortelle",
		Price:    price,
		Currency: "eur",
		Active:   active,
	}
}

func TestPriceItems(t *testing.T) {
	t.Parallel()

	base := productFixture(9.99, true)
	inactive := productFixture(12.50, false)
	catalog := map[uuid.UUID]*models.Product{
		base.ID:     base,
		inactive.ID: inactive,
	}

	tests := []struct {
		name         string
		requested    []RequestedItem
		wantSubtotal float64
		wantErr      bool
	}{
		{
			name:         "exact price match",
			requested:    []RequestedItem{{ProductID: base.ID, Quantity: 2, Price: 9.99}},
			wantSubtotal: 19.98,
		},
		{
			name:         "within one cent tolerance",
			requested:    []RequestedItem{{ProductID: base.ID, Quantity: 1, Price: 9.98}},
			wantSubtotal: 9.99,
		},
		{
			name:      "stale client price",
			requested: []RequestedItem{{ProductID: base.ID, Quantity: 1, Price: 8.99}},
			wantErr:   true,
		},
		{
			name:      "price two cents off",
			requested: []RequestedItem{{ProductID: base.ID, Quantity: 1, Price: 10.01}},
			wantErr:   true,
		},
		{
			name:      "unknown product",
			requested: []RequestedItem{{ProductID: uuid.New(), Quantity: 1, Price: 9.99}},
			wantErr:   true,
		},
		{
			name:      "inactive product",
			requested: []RequestedItem{{ProductID: inactive.ID, Quantity: 1, Price: 12.50}},
			wantErr:   true,
		},
		{
			name:      "zero quantity",
			requested: []RequestedItem{{ProductID: base.ID, Quantity: 0, Price: 9.99}},
			wantErr:   true,
		},
		{
			name:      "empty cart",
			requested: nil,
			wantErr:   true,
		},
	}

	pricer := NewPricer(DefaultRules())
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			priced, subtotal, err := pricer.PriceItems(catalog, tc.requested)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var validationErr *ValidationError
				if !errors.As(err, &validationErr) {
					t.Fatalf("expected ValidationError, got %T: %v", err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if subtotal != tc.wantSubtotal {
				t.Fatalf("subtotal = %v, want %v", subtotal, tc.wantSubtotal)
			}
			if len(priced) != len(tc.requested) {
				t.Fatalf("priced %d lines, want %d", len(priced), len(tc.requested))
			}
			for i, line := range priced {
				if line.UnitPrice != base.Price {
					t.Fatalf("line %d unit price = %v, want authoritative %v", i, line.UnitPrice, base.Price)
				}
			}
		})
	}
}

func TestPriceItemsUsesAuthoritativePrice(t *testing.T) {
	t.Parallel()

	product := productFixture(9.99, true)
	catalog := map[uuid.UUID]*models.Product{product.ID: product}

	// Client price is off by one cent but tolerated; the normalized line must
	// carry the catalog price, not the client's.
	priced, _, err := NewPricer(nil).PriceItems(catalog, []RequestedItem{
		{ProductID: product.ID, Quantity: 3, Price: 10.00},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if priced[0].UnitPrice != 9.99 {
		t.Fatalf("unit price = %v, want 9.99", priced[0].UnitPrice)
	}
}

func TestShippingCost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rules    *PricingRules
		subtotal float64
		want     float64
	}{
		{"default rules ship free", DefaultRules(), 19.98, 0},
		{"flat rate below threshold", &PricingRules{Currency: "eur", ShippingFlatRate: 4.90, FreeShippingThreshold: 50}, 19.98, 4.90},
		{"free above threshold", &PricingRules{Currency: "eur", ShippingFlatRate: 4.90, FreeShippingThreshold: 50}, 50.00, 0},
		{"no threshold always flat", &PricingRules{Currency: "eur", ShippingFlatRate: 4.90}, 500, 4.90},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NewPricer(tc.rules).ShippingCost(tc.subtotal); got != tc.want {
				t.Fatalf("ShippingCost(%v) = %v, want %v", tc.subtotal, got, tc.want)
			}
		})
	}
}

func TestTaxAmount(t *testing.T) {
	t.Parallel()

	pricer := NewPricer(&PricingRules{Currency: "eur", TaxRate: 0.2})
	if got := pricer.TaxAmount(10.00); got != 2.00 {
		t.Fatalf("TaxAmount(10.00) = %v, want 2.00", got)
	}
	if got := NewPricer(DefaultRules()).TaxAmount(19.98); got != 0 {
		t.Fatalf("default tax = %v, want 0", got)
	}
}

func TestRoundCents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   float64
		want float64
	}{
		{19.999, 20.00},
		{19.994, 19.99},
		{19.995, 20.00},
		{0, 0},
	}
	for _, tc := range tests {
		if got := RoundCents(tc.in); got != tc.want {
			t.Fatalf("RoundCents(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
