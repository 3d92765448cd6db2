package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lmittmann/tint"

	"github.com/botanicashop/botanica/internal/cache"
	"github.com/botanicashop/botanica/internal/catalog"
	"github.com/botanicashop/botanica/internal/config"
	"github.com/botanicashop/botanica/internal/db"
	"github.com/botanicashop/botanica/internal/email"
	"github.com/botanicashop/botanica/internal/handlers"
	"github.com/botanicashop/botanica/internal/logging"
	"github.com/botanicashop/botanica/internal/observability"
	"github.com/botanicashop/botanica/internal/services"
	"github.com/botanicashop/botanica/internal/session"
	"github.com/botanicashop/botanica/internal/stripe"
)

type App struct {
	Config         *config.Config
	Logger         *slog.Logger
	DB             *pgxpool.Pool
	CacheProvider  cache.Provider
	SessionManager *session.Manager
	Handlers       *handlers.Handlers
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
			EnableLogs:       true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	logger := newLogger(cfg)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	database, err := db.Connect(startupCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if err := db.Migrate(startupCtx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cacheProvider, err := cache.NewProvider(cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to initialize cache provider: %w", err)
	}

	sessionStore, err := session.NewStore(startupCtx, session.Config{
		Provider:              cfg.SessionStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}
	sessionManager := session.NewManager(sessionStore, cfg.SessionSigningSecret, handlers.SecureCookiesFromConfig(cfg))

	rules, err := loadPricingRules(cfg, logger)
	if err != nil {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, err
	}

	orderStore := db.NewOrderStore(database)
	productStore := db.NewProductStore(database)
	paymentClient := stripe.NewPaymentClient(cfg.StripeSecretKey, observability.NewHTTPClient(30*time.Second))

	emailProvider, err := email.NewProvider(email.Config{
		APIKey: cfg.ResendAPIKey,
		From:   cfg.EmailFrom,
	})
	if err != nil {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize email provider: %w", err)
	}
	orderEmailer := services.NewProviderOrderEmailSender(emailProvider, "Botanica", cfg.BaseURL)

	orderService := services.NewOrderService(
		orderStore,
		productStore,
		paymentClient,
		catalog.NewPricer(rules),
		logger.With("component", "order_service"),
	)
	paymentEventService := services.NewPaymentEventService(
		orderStore,
		orderEmailer,
		logger.With("component", "payment_event_service"),
	)
	stripeRouter := handlers.NewStripeEventRouter(paymentEventService, logger.With("component", "stripe_router"))

	h, err := handlers.New(handlers.Dependencies{
		Config:         cfg,
		DB:             database,
		CacheProvider:  cacheProvider,
		OrderService:   orderService,
		StripeRouter:   stripeRouter,
		SessionManager: sessionManager,
		Logger:         logger,
	})
	if err != nil {
		closeSessionManager(logger, sessionManager)
		closeCacheProvider(logger, cacheProvider)
		database.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return &App{
		Config:         cfg,
		Logger:         logger,
		DB:             database,
		CacheProvider:  cacheProvider,
		SessionManager: sessionManager,
		Handlers:       h,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.SessionManager != nil {
		closeSessionManager(a.Logger, a.SessionManager)
	}
	if a.CacheProvider != nil {
		closeCacheProvider(a.Logger, a.CacheProvider)
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if a.Config != nil && a.Config.SentryDSN != "" {
		sentry.Flush(2 * time.Second)
	}
}

func loadPricingRules(cfg *config.Config, logger *slog.Logger) (*catalog.PricingRules, error) {
	parser := catalog.NewParser()
	rules, err := parser.LoadRules(cfg.PricingRulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load pricing rules: %w", err)
	}
	if rules.Currency == "" {
		rules.Currency = cfg.DefaultCurrency
	}
	if err := catalog.NewValidator().Validate(rules); err != nil {
		return nil, fmt.Errorf("invalid pricing rules: %w", err)
	}

	logger.Info("pricing rules loaded",
		"path", cfg.PricingRulesPath,
		"currency", rules.Currency,
		"shipping_flat_rate", rules.ShippingFlatRate,
		"free_shipping_threshold", rules.FreeShippingThreshold,
		"tax_rate", rules.TaxRate)
	return rules, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	format := strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	if cfg.SentryDSN != "" {
		sentryHandler := sentryslog.Option{
			EventLevel: []slog.Level{slog.LevelError},
			LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
		}.NewSentryHandler(context.Background())
		handler = logging.MultiHandler(handler, sentryHandler)
	}

	return slog.New(handler)
}

func closeSessionManager(logger *slog.Logger, manager *session.Manager) {
	if manager == nil {
		return
	}
	if err := manager.Close(); err != nil && logger != nil {
		logger.Warn("failed to close session manager", "error", err)
	}
}

func closeCacheProvider(logger *slog.Logger, provider cache.Provider) {
	if provider == nil {
		return
	}
	if err := provider.Close(); err != nil && logger != nil {
		logger.Warn("failed to close cache provider", "error", err)
	}
}
