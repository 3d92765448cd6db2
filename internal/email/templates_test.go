package email

import (
	"context"
	"strings"
	"testing"
)

func TestRenderOrderConfirmation(t *testing.T) {
	t.Parallel()

	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer() error: %v", err)
	}

	info := &OrderInfo{
		OrderNumber:   "ORD-20260115-A3F9QK",
		CustomerName:  "Ada",
		CustomerEmail: "ada@example.com",
		ShopName:      "Botanica",
		ShopURL:       "https://botanica.example.com",
		OrderDate:     "January 15, 2026",
		Items: []OrderItem{
			{Name: "Monstera Deliciosa", Quantity: 2, UnitPrice: "€24.50", TotalPrice: "€49.00"},
			{Name: "Terracotta Pot", Quantity: 1, UnitPrice: "€12.00", TotalPrice: "€12.00"},
		},
		Subtotal: "€61.00",
		Shipping: "€0.00",
		Tax:      "€0.00",
		Total:    "€61.00",
	}

	msg, err := renderer.Render(context.Background(), "order_confirmation", info)
	if err != nil {
		t.Fatalf("Render() error: %v", err)
	}

	if msg.To != "ada@example.com" {
		t.Errorf("To = %q, want customer email", msg.To)
	}
	if !strings.Contains(msg.Subject, "ORD-20260115-A3F9QK") {
		t.Errorf("subject %q missing order number", msg.Subject)
	}
	for _, body := range []string{msg.Text, msg.HTML} {
		if !strings.Contains(body, "Monstera Deliciosa") {
			t.Error("body missing item name")
		}
		if !strings.Contains(body, "€61.00") {
			t.Error("body missing total")
		}
	}
}

type recordingProvider struct {
	sent []*Email
}

func (r *recordingProvider) SendEmail(_ context.Context, e *Email) error {
	r.sent = append(r.sent, e)
	return nil
}

func (r *recordingProvider) ValidateAPIKey(context.Context) error { return nil }

func TestSendOrderConfirmation(t *testing.T) {
	t.Parallel()

	p := &recordingProvider{}
	info := &OrderInfo{
		OrderNumber:   "ORD-20260115-A3F9QK",
		CustomerEmail: "ada@example.com",
		ShopName:      "Botanica",
	}

	if err := SendOrderConfirmation(context.Background(), p, info); err != nil {
		t.Fatalf("SendOrderConfirmation() error: %v", err)
	}
	if len(p.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(p.sent))
	}

	if err := SendOrderConfirmation(context.Background(), nil, info); err != nil {
		t.Fatalf("nil provider should be a no-op, got %v", err)
	}
}
