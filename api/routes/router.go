package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/fieldstock-backend/api/controllers"
	"github.com/angelmondragon/fieldstock-backend/api/middleware"
	"github.com/angelmondragon/fieldstock-backend/internal/alerts"
	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/internal/ledger"
	"github.com/angelmondragon/fieldstock-backend/internal/recommendations"
	"github.com/angelmondragon/fieldstock-backend/internal/rollups"
	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/fieldstock-backend/pkg/redis"
)

// Services groups the pipeline services exposed over HTTP.
type Services struct {
	Ledger          ledger.Service
	Rollups         rollups.Service
	Forecasts       forecasts.Service
	Recommendations recommendations.Service
	Alerts          alerts.Service
}

// Deps carries everything NewRouter needs.
type Deps struct {
	Config      *config.Config
	Logger      *logger.Logger
	DB          controllers.Pinger
	Cache       controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	// Gatherer defaults to the global prometheus registry.
	Gatherer prometheus.Gatherer
	Services Services
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger
	svc := deps.Services

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Tracing(),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Cache))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Actor(logg))
		r.Use(middleware.Idempotency(deps.Idempotency, cfg.Redis.IdempotencyTTL, logg))

		r.Route("/ledger", func(r chi.Router) {
			r.Post("/events", controllers.LedgerIngest(svc.Ledger, logg))
			r.Get("/events", controllers.LedgerList(svc.Ledger, logg))
		})

		r.Route("/pipeline", func(r chi.Router) {
			r.Post("/rollups", controllers.PipelineRollups(svc.Rollups, logg))
			r.Post("/forecasts", controllers.PipelineForecasts(svc.Forecasts, logg))
			r.Post("/recommendations", controllers.PipelineRecommendations(svc.Recommendations, logg))
			r.Post("/alerts", controllers.PipelineAlerts(svc.Alerts, logg))
		})

		r.Get("/rollups", controllers.RollupList(svc.Rollups, logg))
		r.Get("/forecasts", controllers.ForecastList(svc.Forecasts, logg))

		r.Route("/recommendations", func(r chi.Router) {
			r.Get("/", controllers.RecommendationList(svc.Recommendations, logg))
			r.Get("/{recommendationId}", controllers.RecommendationDetail(svc.Recommendations, logg))
			r.Post("/{recommendationId}/approve", controllers.RecommendationApprove(svc.Recommendations, logg))
			r.Post("/{recommendationId}/reject", controllers.RecommendationReject(svc.Recommendations, logg))
			r.Post("/{recommendationId}/ordered", controllers.RecommendationOrdered(svc.Recommendations, logg))
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", controllers.AlertList(svc.Alerts, logg))
			r.Post("/{alertId}/resolve", controllers.AlertResolve(svc.Alerts, logg))
		})
	})

	return r
}
