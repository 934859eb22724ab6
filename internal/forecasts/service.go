package forecasts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

const defaultConcurrency = 8

// Service is the forecast engine.
type Service interface {
	Recompute(ctx context.Context) (*RecomputeResult, error)
	ListCurrent(ctx context.Context, filter CurrentFilter) ([]models.ForecastSnapshot, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// RollupReader is the read side of the rollup store the engine depends on.
type RollupReader interface {
	PairsInWindow(ctx context.Context, fromDay, toDay time.Time) ([]types.StockPair, error)
	ListForPair(ctx context.Context, pair types.StockPair, fromDay, toDay time.Time) ([]models.DemandRollup, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecomputeResult summarizes one engine run.
type RecomputeResult struct {
	ComputedAt       time.Time `json:"computed_at"`
	PairsEligible    int       `json:"pairs_eligible"`
	PairsForecast    int       `json:"pairs_forecast"`
	PairsSkipped     int       `json:"pairs_skipped"`
	PairsFailed      int       `json:"pairs_failed"`
	SnapshotsWritten int       `json:"snapshots_written"`
}

// ListParams filters snapshot history.
type ListParams struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	Window     *enums.ForecastWindow
	From       *time.Time
	To         *time.Time
	Limit      int
	Cursor     string
}

// ListResult wraps a page of snapshots.
type ListResult struct {
	Items  []models.ForecastSnapshot `json:"items"`
	Cursor string                    `json:"cursor"`
}

// ServiceParams wires engine dependencies.
type ServiceParams struct {
	Repo        Repository
	Rollups     RollupReader
	DB          txRunner
	Estimator   Estimator
	Logger      *logger.Logger
	Metrics     *metrics.PipelineMetrics
	Concurrency int
	Now         func() time.Time
}

type service struct {
	repo        Repository
	rollups     RollupReader
	db          txRunner
	estimator   Estimator
	logg        *logger.Logger
	metrics     *metrics.PipelineMetrics
	concurrency int
	now         func() time.Time
}

// NewService validates dependencies and returns the forecast engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "forecast repository required")
	}
	if params.Rollups == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "rollup reader required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	estimator := params.Estimator
	if estimator == nil {
		estimator = DampedTrendEstimator{}
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:        params.Repo,
		rollups:     params.Rollups,
		db:          params.DB,
		estimator:   estimator,
		logg:        params.Logger,
		metrics:     params.Metrics,
		concurrency: concurrency,
		now:         now,
	}, nil
}

type pairOutcome int

const (
	pairForecast pairOutcome = iota
	pairSkipped
	pairFailed
)

// Recompute forecasts every pair with rollups in the trailing 90 days. Pairs run
// concurrently; each pair's three snapshots are written in one transaction and
// share one computed_at. A failing pair does not cancel the others.
func (s *service) Recompute(ctx context.Context) (*RecomputeResult, error) {
	computedAt := s.now().UTC()
	endDay := types.StartOfDayUTC(computedAt)
	startDay := endDay.AddDate(0, 0, -(enums.MaxForecastWindow.Days() - 1))

	pairs, err := s.rollups.PairsInWindow(ctx, startDay, endDay)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list eligible pairs")
	}
	result := &RecomputeResult{ComputedAt: computedAt, PairsEligible: len(pairs)}

	var (
		mu   sync.Mutex
		errs error
	)
	record := func(outcome pairOutcome, written int, err error) {
		mu.Lock()
		defer mu.Unlock()
		switch outcome {
		case pairForecast:
			result.PairsForecast++
			result.SnapshotsWritten += written
		case pairSkipped:
			result.PairsSkipped++
		case pairFailed:
			result.PairsFailed++
			errs = multierr.Append(errs, err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, pair := range pairs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				record(pairFailed, 0, err)
				return nil
			}
			outcome, written, err := s.forecastPair(gctx, pair, startDay, endDay, computedAt)
			record(outcome, written, err)
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.AddUnits(metrics.StageForecasts, metrics.OutcomeProcessed, result.PairsForecast)
	s.metrics.AddUnits(metrics.StageForecasts, metrics.OutcomeSkipped, result.PairsSkipped)
	s.metrics.AddUnits(metrics.StageForecasts, metrics.OutcomeFailed, result.PairsFailed)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"computed_at":       computedAt,
		"pairs_eligible":    result.PairsEligible,
		"pairs_forecast":    result.PairsForecast,
		"pairs_skipped":     result.PairsSkipped,
		"pairs_failed":      result.PairsFailed,
		"snapshots_written": result.SnapshotsWritten,
	})
	s.logg.Info(logCtx, "demand forecasts recomputed")

	if errs != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "some forecast pairs failed")
	}
	return result, nil
}

func (s *service) forecastPair(ctx context.Context, pair types.StockPair, startDay, endDay, computedAt time.Time) (pairOutcome, int, error) {
	pairCtx := s.logg.WithPair(ctx, pair.LocationID.String(), pair.PartID.String())

	rows, err := s.rollups.ListForPair(ctx, pair, startDay, endDay)
	if err != nil {
		s.logg.Error(pairCtx, "load rollups failed", err)
		return pairFailed, 0, fmt.Errorf("pair %s: load rollups: %w", pair, err)
	}
	series := denseSeries(rows, startDay, endDay)
	if historySpan(series.Values) == 0 {
		s.logg.Warn(pairCtx, "skipping forecast for pair without demand history")
		return pairSkipped, 0, nil
	}

	snapshots := make([]models.ForecastSnapshot, 0, len(enums.ForecastWindows))
	for _, window := range enums.ForecastWindows {
		est := s.estimator.Estimate(series, window)
		snapshots = append(snapshots, models.ForecastSnapshot{
			ID:              uuid.New(),
			LocationID:      pair.LocationID,
			PartID:          pair.PartID,
			WindowDays:      window.Days(),
			PredictedDemand: est.PredictedDemand,
			ConfidenceScore: est.ConfidenceScore,
			PrimaryReason:   est.PrimaryReason,
			Drivers:         datatypes.NewJSONType(est.Drivers),
			HistoryDays:     est.Drivers.HistorySpanDays,
			ComputedAt:      computedAt,
		})
	}

	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).InsertSnapshots(ctx, snapshots)
	}); err != nil {
		s.logg.Error(pairCtx, "insert forecast snapshots failed", err)
		return pairFailed, 0, fmt.Errorf("pair %s: insert snapshots: %w", pair, err)
	}
	return pairForecast, len(snapshots), nil
}

// denseSeries zero-fills rollups into one value per day in [startDay, endDay].
func denseSeries(rows []models.DemandRollup, startDay, endDay time.Time) Series {
	days := int(endDay.Sub(startDay).Hours()/24) + 1
	values := make([]int64, days)
	for _, row := range rows {
		idx := int(types.StartOfDayUTC(row.Day).Sub(startDay).Hours() / 24)
		if idx < 0 || idx >= days {
			continue
		}
		values[idx] += row.DemandCount
	}
	return Series{EndDay: endDay, Values: values}
}

func (s *service) ListCurrent(ctx context.Context, filter CurrentFilter) ([]models.ForecastSnapshot, error) {
	if filter.Window != nil && !filter.Window.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "window_days must be one of 7, 30, 90")
	}
	snapshots, err := s.repo.ListCurrent(ctx, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list current forecasts")
	}
	return snapshots, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Window != nil && !params.Window.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "window_days must be one of 7, 30, 90")
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	query := listHistoryParams{
		LocationID: params.LocationID,
		PartID:     params.PartID,
		Window:     params.Window,
		From:       params.From,
		To:         params.To,
		Limit:      params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.ListHistory(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list forecast history")
	}
	return &ListResult{Items: rows, Cursor: pagination.Next(next)}, nil
}
