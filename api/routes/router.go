package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sunroad-co/sunroad-backend/api/controllers"
	webhookcontrollers "github.com/sunroad-co/sunroad-backend/api/controllers/webhooks"
	"github.com/sunroad-co/sunroad-backend/api/middleware"
	"github.com/sunroad-co/sunroad-backend/internal/entitlements"
	"github.com/sunroad-co/sunroad-backend/internal/ledger"
	"github.com/sunroad-co/sunroad-backend/pkg/config"
	"github.com/sunroad-co/sunroad-backend/pkg/db"
	"github.com/sunroad-co/sunroad-backend/pkg/logger"
	"github.com/sunroad-co/sunroad-backend/pkg/metrics"
	"github.com/sunroad-co/sunroad-backend/pkg/redis"
	pkgstripe "github.com/sunroad-co/sunroad-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	gatherer prometheus.Gatherer,
	stripeClient *pkgstripe.Client,
	webhookService webhookcontrollers.StripeWebhookService,
	ledgerService ledger.Service,
	entitlementService entitlements.Service,
	webhookMetrics *metrics.WebhookMetrics,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(webhookService, stripeClient, ledgerService, webhookMetrics, logg))
	})

	r.Route("/api/v1/admin", func(r chi.Router) {
		r.Post("/entitlements/resync", controllers.AdminEntitlementsResync(entitlementService, cfg.Admin, logg))
	})

	return r
}
