package catalog

import "fmt"

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(rules *PricingRules) error {
	if rules == nil {
		return fmt.Errorf("pricing rules are required")
	}
	if len(rules.Currency) != 3 {
		return fmt.Errorf("currency must be a three-letter ISO code, got %q", rules.Currency)
	}
	if rules.ShippingFlatRate < 0 {
		return fmt.Errorf("shipping_flat_rate must not be negative")
	}
	if rules.FreeShippingThreshold < 0 {
		return fmt.Errorf("free_shipping_threshold must not be negative")
	}
	if rules.TaxRate < 0 || rules.TaxRate >= 1 {
		return fmt.Errorf("tax_rate must be in [0, 1), got %v", rules.TaxRate)
	}
	return nil
}
