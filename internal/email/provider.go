// Package email provides email provider interface.
package email

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/botanicashop/botanica/internal/logging"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Config struct {
	APIKey string
	From   string
}

// NewProvider returns the Resend-backed provider when an API key is
// configured, or a no-op provider otherwise so local environments run
// without sending anything.
func NewProvider(config Config) (Provider, error) {
	if config.APIKey == "" {
		return &NoopProvider{}, nil
	}
	if config.From == "" {
		return nil, fmt.Errorf("EMAIL_FROM is required when RESEND_API_KEY is set")
	}
	return NewResendProvider(config.APIKey, config.From), nil
}

// NoopProvider logs instead of sending.
type NoopProvider struct{}

func (n *NoopProvider) SendEmail(ctx context.Context, email *Email) error {
	logger := logging.FromContext(ctx, slog.Default())
	logger.Info("email sending disabled, dropping message",
		"to", email.To,
		"subject", email.Subject)
	return nil
}

func (n *NoopProvider) ValidateAPIKey(ctx context.Context) error {
	return nil
}
