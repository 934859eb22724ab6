package rollups

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/fieldsvc"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

const (
	// DefaultLookbackDays is used when RecomputeParams.LookbackDays is zero.
	DefaultLookbackDays = 30
	// MaxLookbackDays bounds a single recompute.
	MaxLookbackDays = 365
)

// Service is the rollup aggregator.
type Service interface {
	Recompute(ctx context.Context, params RecomputeParams) (*RecomputeResult, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// EventSource supplies outbound ledger events.
type EventSource interface {
	ListOutboundEvents(ctx context.Context, from, to time.Time) ([]models.StockMovementEvent, error)
}

// ReferenceChecker validates location and part ids against reference data.
type ReferenceChecker interface {
	ReferencesExist(ctx context.Context, locationIDs, partIDs []uuid.UUID) (fieldsvc.References, error)
}

// txRunner retries the per-pair replace on serialization failures; the
// delete and insert are safe to repeat.
type txRunner interface {
	WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecomputeParams configures one aggregation run.
type RecomputeParams struct {
	LookbackDays int `json:"lookback_days"`
}

// RecomputeResult summarizes an aggregation run.
type RecomputeResult struct {
	WindowFrom     time.Time `json:"window_from"`
	WindowTo       time.Time `json:"window_to"`
	EventsRead     int       `json:"events_read"`
	EventsSkipped  int       `json:"events_skipped"`
	PairsProcessed int       `json:"pairs_processed"`
	PairsFailed    int       `json:"pairs_failed"`
	RowsWritten    int       `json:"rows_written"`
}

// ListParams filters rollup queries.
type ListParams struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	From       *time.Time
	To         *time.Time
	Limit      int
	Cursor     string
}

// ListResult wraps a page of rollups.
type ListResult struct {
	Items  []models.DemandRollup `json:"items"`
	Cursor string                `json:"cursor"`
}

// ServiceParams wires aggregator dependencies.
type ServiceParams struct {
	Repo                Repository
	Events              EventSource
	References          ReferenceChecker
	DB                  txRunner
	Logger              *logger.Logger
	Metrics             *metrics.PipelineMetrics
	DefaultLookbackDays int
	Now                 func() time.Time
}

type service struct {
	repo            Repository
	events          EventSource
	refs            ReferenceChecker
	db              txRunner
	logg            *logger.Logger
	metrics         *metrics.PipelineMetrics
	defaultLookback int
	now             func() time.Time
}

// NewService validates dependencies and returns the aggregator.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "rollup repository required")
	}
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "event source required")
	}
	if params.References == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reference checker required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	lookback := params.DefaultLookbackDays
	if lookback <= 0 {
		lookback = DefaultLookbackDays
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:            params.Repo,
		events:          params.Events,
		refs:            params.References,
		db:              params.DB,
		logg:            params.Logger,
		metrics:         params.Metrics,
		defaultLookback: lookback,
		now:             now,
	}, nil
}

type dayKey struct {
	pair types.StockPair
	day  time.Time
}

// Recompute rebuilds the rollups for every pair touched by the lookback window.
// Each pair is replaced in its own transaction; one pair failing does not stop
// the others and its error is folded into the returned error.
func (s *service) Recompute(ctx context.Context, params RecomputeParams) (*RecomputeResult, error) {
	lookback := params.LookbackDays
	if lookback == 0 {
		lookback = s.defaultLookback
	}
	if lookback < 1 || lookback > MaxLookbackDays {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "lookback_days out of range").
			WithDetails(map[string]any{"min": 1, "max": MaxLookbackDays})
	}

	now := s.now().UTC()
	fromDay := types.StartOfDayUTC(now).AddDate(0, 0, -(lookback - 1))
	toDay := types.StartOfDayUTC(now)
	result := &RecomputeResult{WindowFrom: fromDay, WindowTo: now}

	events, err := s.events.ListOutboundEvents(ctx, fromDay, now)
	if err != nil {
		return nil, err
	}
	result.EventsRead = len(events)

	refs, err := s.refs.ReferencesExist(ctx, distinctLocations(events), distinctParts(events))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check ledger references")
	}

	totals := map[dayKey]int64{}
	touched := map[types.StockPair]struct{}{}
	for _, evt := range events {
		if evt.LocationID == uuid.Nil || evt.PartID == uuid.Nil || !refs.Known(evt.LocationID, evt.PartID) {
			result.EventsSkipped++
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"event_id":        evt.ID.String(),
				"location_id":     evt.LocationID.String(),
				"part_id":         evt.PartID.String(),
				"idempotency_key": evt.IdempotencyKey,
			})
			s.logg.Warn(logCtx, "skipping ledger event with unknown reference")
			continue
		}
		pair := types.StockPair{LocationID: evt.LocationID, PartID: evt.PartID}
		touched[pair] = struct{}{}
		totals[dayKey{pair: pair, day: types.StartOfDayUTC(evt.OccurredAt)}] += abs(evt.QuantityDelta)
	}

	existing, err := s.repo.PairsInWindow(ctx, fromDay, toDay)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pairs with rollups")
	}
	for _, pair := range existing {
		touched[pair] = struct{}{}
	}

	rowsByPair := map[types.StockPair][]models.DemandRollup{}
	for key, count := range totals {
		rowsByPair[key.pair] = append(rowsByPair[key.pair], models.DemandRollup{
			LocationID:  key.pair.LocationID,
			PartID:      key.pair.PartID,
			Day:         key.day,
			DemandCount: count,
			ComputedAt:  now,
		})
	}

	pairs := make([]types.StockPair, 0, len(touched))
	for pair := range touched {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })

	var errs error
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		rows := rowsByPair[pair]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Day.Before(rows[j].Day) })

		if err := s.db.WithRetryTx(ctx, func(tx *gorm.DB) error {
			return s.repo.WithTx(tx).ReplaceWindow(ctx, pair, fromDay, toDay, rows)
		}); err != nil {
			result.PairsFailed++
			pairCtx := s.logg.WithPair(ctx, pair.LocationID.String(), pair.PartID.String())
			s.logg.Error(pairCtx, "rollup replace failed", err)
			errs = multierr.Append(errs, fmt.Errorf("pair %s: %w", pair, err))
			continue
		}
		result.PairsProcessed++
		result.RowsWritten += len(rows)
	}

	s.metrics.AddUnits(metrics.StageRollups, metrics.OutcomeProcessed, result.PairsProcessed)
	s.metrics.AddUnits(metrics.StageRollups, metrics.OutcomeFailed, result.PairsFailed)
	s.metrics.AddUnits(metrics.StageRollups, metrics.OutcomeSkipped, result.EventsSkipped)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"window_from":     fromDay,
		"window_to":       now,
		"events_read":     result.EventsRead,
		"events_skipped":  result.EventsSkipped,
		"pairs_processed": result.PairsProcessed,
		"pairs_failed":    result.PairsFailed,
		"rows_written":    result.RowsWritten,
	})
	s.logg.Info(logCtx, "demand rollups recomputed")

	if errs != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "some rollup pairs failed")
	}
	return result, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listRollupsParams{
		LocationID: params.LocationID,
		PartID:     params.PartID,
		Limit:      params.Limit,
	}
	if params.From != nil {
		from := types.StartOfDayUTC(*params.From)
		query.FromDay = &from
	}
	if params.To != nil {
		to := types.StartOfDayUTC(*params.To)
		query.ToDay = &to
	}
	if query.FromDay != nil && query.ToDay != nil && query.ToDay.Before(*query.FromDay) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list rollups")
	}
	return &ListResult{Items: rows, Cursor: pagination.Next(next)}, nil
}

func distinctLocations(events []models.StockMovementEvent) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	out := []uuid.UUID{}
	for _, evt := range events {
		if evt.LocationID == uuid.Nil {
			continue
		}
		if _, ok := seen[evt.LocationID]; !ok {
			seen[evt.LocationID] = struct{}{}
			out = append(out, evt.LocationID)
		}
	}
	return out
}

func distinctParts(events []models.StockMovementEvent) []uuid.UUID {
	seen := map[uuid.UUID]struct{}{}
	out := []uuid.UUID{}
	for _, evt := range events {
		if evt.PartID == uuid.Nil {
			continue
		}
		if _, ok := seen[evt.PartID]; !ok {
			seen[evt.PartID] = struct{}{}
			out = append(out, evt.PartID)
		}
	}
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
