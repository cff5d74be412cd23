package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sunroad-co/sunroad-backend/api/routes"
	"github.com/sunroad-co/sunroad-backend/internal/billing"
	"github.com/sunroad-co/sunroad-backend/internal/entitlements"
	"github.com/sunroad-co/sunroad-backend/internal/ledger"
	"github.com/sunroad-co/sunroad-backend/internal/profiles"
	"github.com/sunroad-co/sunroad-backend/internal/revalidate"
	stripewebhook "github.com/sunroad-co/sunroad-backend/internal/webhooks/stripe"
	"github.com/sunroad-co/sunroad-backend/pkg/config"
	"github.com/sunroad-co/sunroad-backend/pkg/db"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
	"github.com/sunroad-co/sunroad-backend/pkg/metrics"
	"github.com/sunroad-co/sunroad-backend/pkg/migrate"
	"github.com/sunroad-co/sunroad-backend/pkg/redis"
	pkgstripe "github.com/sunroad-co/sunroad-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	billingRepo := billing.NewRepository(dbClient.DB())
	profileRepo := profiles.NewRepository(dbClient.DB())

	ledgerService, err := ledger.NewService(ledger.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	entitlementService, err := entitlements.NewService(entitlements.ServiceParams{
		BillingRepo: billingRepo,
		ProfileRepo: profileRepo,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement service", err)
		os.Exit(1)
	}

	revalidateClient, err := revalidate.NewClient(cfg.Revalidate.URL, cfg.Revalidate.Secret, cfg.Revalidate.Timeout)
	if err != nil {
		logg.Error(context.Background(), "failed to create revalidate client", err)
		os.Exit(1)
	}
	notifier, err := revalidate.NewNotifier(revalidate.NotifierParams{
		Client:      revalidateClient,
		ProfileRepo: profileRepo,
		Cache:       redisClient,
		CacheTTL:    cfg.Revalidate.HandleCacheTTL,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create revalidate notifier", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		BillingRepo:       billingRepo,
		Entitlements:      entitlementService,
		Notifier:          notifier,
		StripeClient:      stripewebhook.NewSubscriptionFetcher(stripeClient),
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			registry,
			stripeClient,
			webhookService,
			ledgerService,
			entitlementService,
			webhookMetrics,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
