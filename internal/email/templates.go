// Package email provides email templates.
package email

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
)

// OrderInfo contains all the information needed for order email templates.
// Monetary fields arrive pre-formatted so templates stay dumb.
type OrderInfo struct {
	OrderNumber   string
	CustomerName  string
	CustomerEmail string
	ShopName      string
	ShopURL       string
	OrderDate     string
	Items         []OrderItem
	Subtotal      string
	Shipping      string
	Tax           string
	Total         string
}

// OrderItem represents a single item in an order.
type OrderItem struct {
	Name       string
	Quantity   int
	UnitPrice  string
	TotalPrice string
}

// Renderer provides methods to render email templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer creates a new email template renderer with built-in templates.
func NewRenderer() (*Renderer, error) {
	bodies := map[string]struct {
		html string
		text string
	}{
		"order_confirmation": {html: orderConfirmationHTML, text: orderConfirmationText},
	}

	tmpl := template.New("email")
	for key, b := range bodies {
		if _, err := tmpl.New(key + "_html").Parse(b.html); err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", key, err)
		}
		if _, err := tmpl.New(key + "_text").Parse(b.text); err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", key, err)
		}
	}

	return &Renderer{templates: tmpl}, nil
}

// Render renders an email template with the given data.
func (r *Renderer) Render(ctx context.Context, templateName string, data *OrderInfo) (*Email, error) {
	var htmlBuf, textBuf bytes.Buffer

	if err := r.templates.ExecuteTemplate(&htmlBuf, templateName+"_html", data); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	if err := r.templates.ExecuteTemplate(&textBuf, templateName+"_text", data); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}

	subject := ""
	switch templateName {
	case "order_confirmation":
		subject = fmt.Sprintf("Order Confirmed - %s - %s", data.OrderNumber, data.ShopName)
	}

	return &Email{
		To:      data.CustomerEmail,
		Subject: subject,
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// SendOrderConfirmation sends an order confirmation email.
func SendOrderConfirmation(ctx context.Context, p Provider, orderInfo *OrderInfo) error {
	if p == nil {
		return nil
	}

	renderer, err := NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to create renderer: %w", err)
	}

	email, err := renderer.Render(ctx, "order_confirmation", orderInfo)
	if err != nil {
		return fmt.Errorf("failed to render template: %w", err)
	}

	return p.SendEmail(ctx, email)
}

// Template text content - Order Confirmation
const orderConfirmationText = `Thank you for your order!

Hi {{.CustomerName}},

We've received your payment and your order is confirmed.

Order Number: {{.OrderNumber}}
Order Date: {{.OrderDate}}

Items:
{{range .Items}}  {{.Name}} x{{.Quantity}} - {{.TotalPrice}}
{{end}}
Subtotal: {{.Subtotal}}
Shipping: {{.Shipping}}
Tax: {{.Tax}}
Total: {{.Total}}

We'll let you know as soon as your order ships.

{{.ShopName}}
{{.ShopURL}}
`

const orderConfirmationHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; background-color: #f4f4f5; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;">
  <table role="presentation" width="100%" cellpadding="0" cellspacing="0">
    <tr>
      <td align="center" style="padding: 32px 16px;">
        <table role="presentation" width="600" cellpadding="0" cellspacing="0" style="background-color: #ffffff; border-radius: 8px; overflow: hidden;">
          <tr>
            <td style="padding: 32px; border-bottom: 1px solid #e4e4e7;">
              <h1 style="margin: 0; font-size: 20px; color: #18181b;">Order confirmed</h1>
              <p style="margin: 8px 0 0; color: #52525b;">Hi {{.CustomerName}}, we've received your payment.</p>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">
              <p style="margin: 0 0 4px; color: #71717a; font-size: 13px;">Order number</p>
              <p style="margin: 0 0 24px; color: #18181b; font-weight: 600;">{{.OrderNumber}}</p>
              <table role="presentation" width="100%" cellpadding="0" cellspacing="0">
                {{range .Items}}
                <tr>
                  <td style="padding: 8px 0; color: #18181b;">{{.Name}} &times; {{.Quantity}}</td>
                  <td align="right" style="padding: 8px 0; color: #18181b;">{{.TotalPrice}}</td>
                </tr>
                {{end}}
                <tr>
                  <td style="padding: 16px 0 4px; color: #71717a; border-top: 1px solid #e4e4e7;">Subtotal</td>
                  <td align="right" style="padding: 16px 0 4px; color: #18181b; border-top: 1px solid #e4e4e7;">{{.Subtotal}}</td>
                </tr>
                <tr>
                  <td style="padding: 4px 0; color: #71717a;">Shipping</td>
                  <td align="right" style="padding: 4px 0; color: #18181b;">{{.Shipping}}</td>
                </tr>
                <tr>
                  <td style="padding: 4px 0; color: #71717a;">Tax</td>
                  <td align="right" style="padding: 4px 0; color: #18181b;">{{.Tax}}</td>
                </tr>
                <tr>
                  <td style="padding: 12px 0; color: #18181b; font-weight: 600;">Total</td>
                  <td align="right" style="padding: 12px 0; color: #18181b; font-weight: 600;">{{.Total}}</td>
                </tr>
              </table>
              <p style="margin: 24px 0 0; color: #52525b;">We'll let you know as soon as your order ships.</p>
            </td>
          </tr>
          <tr>
            <td style="padding: 24px 32px; background-color: #fafafa; color: #a1a1aa; font-size: 13px;">
              <a href="{{.ShopURL}}" style="color: #a1a1aa;">{{.ShopName}}</a>
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>
`
