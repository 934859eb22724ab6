package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/fieldstock-backend/internal/alerts"
	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/internal/ledger"
	"github.com/angelmondragon/fieldstock-backend/internal/recommendations"
	"github.com/angelmondragon/fieldstock-backend/internal/rollups"
	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/fieldsvc"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
)

// TrustStore is the cache the dealer trust lookups go through.
type TrustStore interface {
	GetMany(ctx context.Context, keys []string) (map[string]string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DealerTrustKey(dealerID string) string
}

// Params carries the shared clients every binary bootstraps.
type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Trust      TrustStore
	Registerer prometheus.Registerer
}

// Services is the full pipeline, wired once per process.
type Services struct {
	Ledger          ledger.Service
	Rollups         rollups.Service
	Forecasts       forecasts.Service
	Recommendations recommendations.Service
	Alerts          alerts.Service

	Outbox     *outbox.Service
	OutboxRepo *outbox.Repository
	OutboxDLQ  *outbox.DLQRepository
	Metrics    *metrics.PipelineMetrics
}

// WireServices builds repositories and services in stage order.
func WireServices(params Params) (*Services, error) {
	if params.Config == nil {
		return nil, errors.New("config required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.DB == nil {
		return nil, errors.New("database client required")
	}
	if params.Trust == nil {
		return nil, errors.New("trust store required")
	}
	cfg := params.Config
	logg := params.Logger
	conn := params.DB.DB()

	fieldClient, err := fieldsvc.NewClient(
		cfg.FieldService.BaseURL,
		cfg.FieldService.APIKey,
		fieldsvc.WithTimeout(cfg.FieldService.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("field service client: %w", err)
	}
	trust, err := fieldsvc.NewTrustCache(fieldClient, params.Trust, cfg.FieldService.TrustCacheTTL, logg)
	if err != nil {
		return nil, fmt.Errorf("dealer trust cache: %w", err)
	}

	pipelineMetrics := metrics.NewPipelineMetrics(params.Registerer)
	outboxRepo := outbox.NewRepository(conn)
	outboxSvc := outbox.NewService(outboxRepo, logg)

	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:    ledger.NewRepository(conn),
		DB:      params.DB,
		Logger:  logg,
		Metrics: pipelineMetrics,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	rollupSvc, err := rollups.NewService(rollups.ServiceParams{
		Repo:                rollups.NewRepository(conn),
		Events:              ledgerSvc,
		References:          fieldClient,
		DB:                  params.DB,
		Logger:              logg,
		Metrics:             pipelineMetrics,
		DefaultLookbackDays: cfg.Pipeline.RollupLookbackDays,
	})
	if err != nil {
		return nil, fmt.Errorf("rollup service: %w", err)
	}

	forecastSvc, err := forecasts.NewService(forecasts.ServiceParams{
		Repo:        forecasts.NewRepository(conn),
		Rollups:     rollups.NewRepository(conn),
		DB:          params.DB,
		Logger:      logg,
		Metrics:     pipelineMetrics,
		Concurrency: cfg.Pipeline.ForecastConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("forecast service: %w", err)
	}

	recommendationRepo := recommendations.NewRepository(conn)
	recommendationSvc, err := recommendations.NewService(recommendations.ServiceParams{
		Repo:      recommendationRepo,
		Snapshots: forecastSvc,
		Stock:     fieldClient,
		Dealers:   fieldClient,
		Trust:     trust,
		DB:        params.DB,
		Outbox:    outboxSvc,
		Logger:    logg,
		Metrics:   pipelineMetrics,
		Config:    cfg.Pipeline,
	})
	if err != nil {
		return nil, fmt.Errorf("recommendation service: %w", err)
	}

	alertSvc, err := alerts.NewService(alerts.ServiceParams{
		Repo:            alerts.NewRepository(conn),
		Recommendations: recommendationRepo,
		Snapshots:       forecastSvc,
		Stock:           fieldClient,
		DB:              params.DB,
		Outbox:          outboxSvc,
		Logger:          logg,
		Metrics:         pipelineMetrics,
		Config:          cfg.Pipeline,
	})
	if err != nil {
		return nil, fmt.Errorf("alert service: %w", err)
	}

	return &Services{
		Ledger:          ledgerSvc,
		Rollups:         rollupSvc,
		Forecasts:       forecastSvc,
		Recommendations: recommendationSvc,
		Alerts:          alertSvc,
		Outbox:          outboxSvc,
		OutboxRepo:      outboxRepo,
		OutboxDLQ:       outbox.NewDLQRepository(conn),
		Metrics:         pipelineMetrics,
	}, nil
}
