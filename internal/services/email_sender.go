package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/botanicashop/botanica/internal/email"
	"github.com/botanicashop/botanica/internal/models"
)

type OrderEmailSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
}

// ProviderOrderEmailSender renders order emails and hands them to the
// configured delivery provider.
type ProviderOrderEmailSender struct {
	provider email.Provider
	shopName string
	shopURL  string
}

func NewProviderOrderEmailSender(provider email.Provider, shopName, shopURL string) *ProviderOrderEmailSender {
	return &ProviderOrderEmailSender{
		provider: provider,
		shopName: shopName,
		shopURL:  shopURL,
	}
}

func (s *ProviderOrderEmailSender) SendOrderConfirmation(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.CustomerEmail == "" {
		return fmt.Errorf("order %s has no customer email", order.ID)
	}

	return email.SendOrderConfirmation(ctx, s.provider, s.buildOrderInfo(order))
}

func (s *ProviderOrderEmailSender) buildOrderInfo(order *models.Order) *email.OrderInfo {
	info := &email.OrderInfo{
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		ShopName:      s.shopName,
		ShopURL:       s.shopURL,
		OrderDate:     order.CreatedAt.Format("January 2, 2006"),
		Subtotal:      formatAmount(order.Currency, order.Subtotal),
		Shipping:      formatAmount(order.Currency, order.ShippingCost),
		Tax:           formatAmount(order.Currency, order.TaxAmount),
		Total:         formatAmount(order.Currency, order.Total),
	}
	if info.CustomerName == "" {
		info.CustomerName = "there"
	}
	for _, item := range order.Items {
		info.Items = append(info.Items, email.OrderItem{
			Name:       item.Name,
			Quantity:   item.Quantity,
			UnitPrice:  formatAmount(order.Currency, item.UnitPrice),
			TotalPrice: formatAmount(order.Currency, item.UnitPrice*float64(item.Quantity)),
		})
	}
	return info
}

var currencySymbols = map[string]string{
	"eur": "€",
	"usd": "$",
	"gbp": "£",
}

func formatAmount(currency string, amount float64) string {
	if symbol, ok := currencySymbols[strings.ToLower(currency)]; ok {
		return fmt.Sprintf("%s%.2f", symbol, amount)
	}
	return fmt.Sprintf("%s %.2f", strings.ToUpper(currency), amount)
}

type noopOrderEmailSender struct{}

func (noopOrderEmailSender) SendOrderConfirmation(context.Context, *models.Order) error {
	return nil
}
