package catalog

import "testing"

func TestParseRules(t *testing.T) {
	t.Parallel()

	content := []byte(`
pricing:
  currency: eur
  shipping_flat_rate: 4.90
  free_shipping_threshold: 50.00
  tax_rate: 0.2
`)

	rules, err := NewParser().Parse(content)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.Currency != "eur" {
		t.Fatalf("currency = %q, want eur", rules.Currency)
	}
	if rules.ShippingFlatRate != 4.90 {
		t.Fatalf("shipping_flat_rate = %v, want 4.90", rules.ShippingFlatRate)
	}
	if rules.FreeShippingThreshold != 50 {
		t.Fatalf("free_shipping_threshold = %v, want 50", rules.FreeShippingThreshold)
	}
	if rules.TaxRate != 0.2 {
		t.Fatalf("tax_rate = %v, want 0.2", rules.TaxRate)
	}
}

func TestParseRulesDefaultsCurrency(t *testing.T) {
	t.Parallel()

	rules, err := NewParser().Parse([]byte("pricing:\n  shipping_flat_rate: 1.00\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.Currency != "eur" {
		t.Fatalf("currency = %q, want default eur", rules.Currency)
	}
}

func TestParseRulesInvalidYAML(t *testing.T) {
	t.Parallel()

	if _, err := NewParser().Parse([]byte("pricing: [not a map")); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoadRulesMissingFile(t *testing.T) {
	t.Parallel()

	rules, err := NewParser().LoadRules("testdata/does-not-exist.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.ShippingFlatRate != 0 || rules.TaxRate != 0 {
		t.Fatalf("missing file should fall back to defaults, got %+v", rules)
	}
}

func TestValidateRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rules   *PricingRules
		wantErr bool
	}{
		{"defaults are valid", DefaultRules(), false},
		{"full rules valid", &PricingRules{Currency: "eur", ShippingFlatRate: 4.90, FreeShippingThreshold: 50, TaxRate: 0.2}, false},
		{"nil rules", nil, true},
		{"bad currency", &PricingRules{Currency: "euro"}, true},
		{"negative shipping", &PricingRules{Currency: "eur", ShippingFlatRate: -1}, true},
		{"negative threshold", &PricingRules{Currency: "eur", FreeShippingThreshold: -1}, true},
		{"tax rate of one", &PricingRules{Currency: "eur", TaxRate: 1}, true},
	}

	validator := NewValidator()
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := validator.Validate(tc.rules)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
