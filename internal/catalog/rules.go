// Package catalog provides server-side pricing and cart validation.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PricingRules drives the shipping and tax amounts added to the re-priced
// subtotal. Rules live in a YAML file deployed with the service.
type PricingRules struct {
	Currency              string  `yaml:"currency"`
	ShippingFlatRate      float64 `yaml:"shipping_flat_rate"`
	FreeShippingThreshold float64 `yaml:"free_shipping_threshold"`
	TaxRate               float64 `yaml:"tax_rate"`
}

type rulesFile struct {
	Pricing PricingRules `yaml:"pricing"`
}

// DefaultRules: prices are tax-inclusive and shipping is free.
func DefaultRules() *PricingRules {
	return &PricingRules{Currency: "eur"}
}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Parse(content []byte) (*PricingRules, error) {
	var file rulesFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("failed to parse pricing rules: %w", err)
	}
	rules := file.Pricing
	if rules.Currency == "" {
		rules.Currency = DefaultRules().Currency
	}
	return &rules, nil
}

// LoadRules reads the rules file at path, falling back to defaults when the
// path is empty or the file does not exist.
func (p *Parser) LoadRules(path string) (*PricingRules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultRules(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read pricing rules: %w", err)
	}
	return p.Parse(content)
}
