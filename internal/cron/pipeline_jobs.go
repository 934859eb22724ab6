package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/fieldstock-backend/internal/alerts"
	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/internal/recommendations"
	"github.com/angelmondragon/fieldstock-backend/internal/rollups"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

// Job names in pipeline order.
const (
	JobDemandRollups          = "demand-rollups"
	JobDemandForecasts        = "demand-forecasts"
	JobReorderRecommendations = "reorder-recommendations"
	JobStockoutAlerts         = "stockout-alerts"
	JobGovernanceAudit        = "governance-audit"
	JobOutboxRetention        = "outbox-retention"
)

type rollupRecomputer interface {
	Recompute(ctx context.Context, params rollups.RecomputeParams) (*rollups.RecomputeResult, error)
}

type forecastRecomputer interface {
	Recompute(ctx context.Context) (*forecasts.RecomputeResult, error)
}

type recommendationGenerator interface {
	Generate(ctx context.Context, params recommendations.GenerateParams) (*recommendations.GenerateResult, error)
}

type alertScanner interface {
	Scan(ctx context.Context) (*alerts.ScanResult, error)
}

type governanceAuditor interface {
	AuditGovernance(ctx context.Context) (*recommendations.AuditResult, error)
}

// PipelineJobsParams wires the pipeline stage services into cron jobs.
type PipelineJobsParams struct {
	Logger          *logger.Logger
	Rollups         rollupRecomputer
	Forecasts       forecastRecomputer
	Recommendations recommendationGenerator
	Alerts          alertScanner
	Governance      governanceAuditor
	LookbackDays    int
}

// NewPipelineJobs returns the stage jobs in the order they must run.
func NewPipelineJobs(params PipelineJobsParams) ([]Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Rollups == nil || params.Forecasts == nil || params.Recommendations == nil || params.Alerts == nil {
		return nil, fmt.Errorf("pipeline stage services required")
	}
	if params.Governance == nil {
		return nil, fmt.Errorf("governance auditor required")
	}
	return []Job{
		&rollupJob{logg: params.Logger, svc: params.Rollups, lookback: params.LookbackDays},
		&forecastJob{logg: params.Logger, svc: params.Forecasts},
		&recommendationJob{logg: params.Logger, svc: params.Recommendations},
		&alertJob{logg: params.Logger, svc: params.Alerts},
		&governanceJob{logg: params.Logger, svc: params.Governance},
	}, nil
}

type rollupJob struct {
	logg     *logger.Logger
	svc      rollupRecomputer
	lookback int
}

func (j *rollupJob) Name() string { return JobDemandRollups }

func (j *rollupJob) Run(ctx context.Context) error {
	result, err := j.svc.Recompute(ctx, rollups.RecomputeParams{LookbackDays: j.lookback})
	if result != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"events_read":     result.EventsRead,
			"events_skipped":  result.EventsSkipped,
			"pairs_processed": result.PairsProcessed,
			"pairs_failed":    result.PairsFailed,
			"rows_written":    result.RowsWritten,
		}), "demand rollups recomputed")
	}
	return err
}

type forecastJob struct {
	logg *logger.Logger
	svc  forecastRecomputer
}

func (j *forecastJob) Name() string { return JobDemandForecasts }

func (j *forecastJob) Run(ctx context.Context) error {
	result, err := j.svc.Recompute(ctx)
	if result != nil {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"pairs_eligible":    result.PairsEligible,
			"pairs_forecast":    result.PairsForecast,
			"pairs_skipped":     result.PairsSkipped,
			"pairs_failed":      result.PairsFailed,
			"snapshots_written": result.SnapshotsWritten,
		}), "demand forecasts recomputed")
	}
	return err
}

type recommendationJob struct {
	logg *logger.Logger
	svc  recommendationGenerator
}

func (j *recommendationJob) Name() string { return JobReorderRecommendations }

func (j *recommendationJob) Run(ctx context.Context) error {
	_, err := j.svc.Generate(ctx, recommendations.GenerateParams{})
	return err
}

type alertJob struct {
	logg *logger.Logger
	svc  alertScanner
}

func (j *alertJob) Name() string { return JobStockoutAlerts }

func (j *alertJob) Run(ctx context.Context) error {
	_, err := j.svc.Scan(ctx)
	return err
}

type governanceJob struct {
	logg *logger.Logger
	svc  governanceAuditor
}

func (j *governanceJob) Name() string { return JobGovernanceAudit }

func (j *governanceJob) Run(ctx context.Context) error {
	result, err := j.svc.AuditGovernance(ctx)
	if err != nil {
		return err
	}
	j.logg.Info(j.logg.WithField(ctx, "checked_at", result.Checked), "governance audit clean")
	return nil
}
