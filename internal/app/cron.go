package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/fieldstock-backend/internal/cron"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
)

// LockStore is the redis surface the pipeline lock needs.
type LockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	LockKey(name string) string
}

// WireCron registers the pipeline stages followed by outbox retention and returns
// the scheduler guarding them with the shared pipeline lock.
func WireCron(params Params, services *Services, locks LockStore) (*cron.Service, error) {
	if services == nil {
		return nil, errors.New("services required")
	}
	if locks == nil {
		return nil, errors.New("lock store required")
	}
	cfg := params.Config

	jobs, err := cron.NewPipelineJobs(cron.PipelineJobsParams{
		Logger:          params.Logger,
		Rollups:         services.Rollups,
		Forecasts:       services.Forecasts,
		Recommendations: services.Recommendations,
		Alerts:          services.Alerts,
		Governance:      services.Recommendations,
		LookbackDays:    cfg.Pipeline.RollupLookbackDays,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline jobs: %w", err)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       params.Logger,
		DB:           params.DB,
		Repository:   services.OutboxRepo,
		DLQ:          services.OutboxDLQ,
		Retention:    cfg.Outbox.RetentionDays,
		DLQRetention: cfg.Outbox.DLQRetention,
		MinAttempts:  cfg.Outbox.MaxAttempts,
		BatchSize:    cfg.Outbox.PruneBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	lock, err := cron.NewPipelineLock(locks, cfg.Cron.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("pipeline lock: %w", err)
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   params.Logger,
		Registry: cron.NewRegistry(append(jobs, retention)...),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(params.Registerer),
		Interval: cfg.Cron.Interval,
	})
}
