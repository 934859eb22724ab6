package alerts

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/internal/recommendations"
	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

// Service raises and resolves stockout alerts.
type Service interface {
	Scan(ctx context.Context) (*ScanResult, error)
	Resolve(ctx context.Context, id uuid.UUID, actor types.Actor) (*models.InventoryAlert, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

// RecommendationReader returns the newest open recommendation per pair at or above a risk.
type RecommendationReader interface {
	LatestAtRisk(ctx context.Context, minRisk int) ([]models.ReorderRecommendation, error)
}

// SnapshotReader returns the current forecast snapshots.
type SnapshotReader interface {
	ListCurrent(ctx context.Context, filter forecasts.CurrentFilter) ([]models.ForecastSnapshot, error)
}

// StockSource reports available quantity for a pair.
type StockSource interface {
	GetAvailable(ctx context.Context, locationID, partID uuid.UUID) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Candidate sources recorded in alert messages and logs.
const (
	SourceRecommendation = "recommendation"
	SourceForecast       = "forecast"
)

// ScanResult summarizes one alert scan.
type ScanResult struct {
	Threshold  int         `json:"threshold"`
	Candidates int         `json:"candidates"`
	Raised     int         `json:"raised"`
	Skipped    int         `json:"skipped"`
	Failed     int         `json:"failed"`
	AlertIDs   []uuid.UUID `json:"alert_ids"`
}

// ListParams filters alerts.
type ListParams struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	OpenOnly   bool
	From       *time.Time
	To         *time.Time
	Limit      int
	Cursor     string
}

// ListResult wraps a page of alerts.
type ListResult struct {
	Items  []models.InventoryAlert `json:"items"`
	Cursor string                  `json:"cursor"`
}

// ServiceParams wires alert dependencies.
type ServiceParams struct {
	Repo            Repository
	Recommendations RecommendationReader
	Snapshots       SnapshotReader
	Stock           StockSource
	DB              txRunner
	Outbox          outbox.Emitter
	Logger          *logger.Logger
	Metrics         *metrics.PipelineMetrics
	Config          config.PipelineConfig
	Now             func() time.Time
}

type service struct {
	repo            Repository
	recommendations RecommendationReader
	snapshots       SnapshotReader
	stock           StockSource
	db              txRunner
	outbox          outbox.Emitter
	logg            *logger.Logger
	metrics         *metrics.PipelineMetrics
	cfg             config.PipelineConfig
	now             func() time.Time
}

// NewService validates dependencies and returns the alert service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "alert repository required")
	}
	if params.Recommendations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recommendation reader required")
	}
	if params.Snapshots == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "snapshot reader required")
	}
	if params.Stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stock source required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:            params.Repo,
		recommendations: params.Recommendations,
		snapshots:       params.Snapshots,
		stock:           params.Stock,
		db:              params.DB,
		outbox:          params.Outbox,
		logg:            params.Logger,
		metrics:         params.Metrics,
		cfg:             params.Config,
		now:             now,
	}, nil
}

type candidate struct {
	pair             types.StockPair
	risk             int
	source           string
	recommendationID *uuid.UUID
	snapshotID       *uuid.UUID
	windowDays       int
}

func (c candidate) message() string {
	if c.source == SourceRecommendation {
		return fmt.Sprintf("stockout risk %d/100 from open reorder recommendation %s", c.risk, c.recommendationID)
	}
	return fmt.Sprintf("stockout risk %d/100 from the %d-day demand forecast", c.risk, c.windowDays)
}

// Scan raises at most one open stockout alert per pair. Recommendations win over
// forecasts when both flag the same pair.
func (s *service) Scan(ctx context.Context) (*ScanResult, error) {
	threshold := s.cfg.AlertRiskThreshold
	if threshold < 0 || threshold > 100 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "alert risk threshold must be between 0 and 100")
	}

	candidates, failed, errs := s.collectCandidates(ctx, threshold)
	if candidates == nil {
		return nil, errs
	}

	result := &ScanResult{
		Threshold:  threshold,
		Candidates: len(candidates),
		Failed:     failed,
		AlertIDs:   []uuid.UUID{},
	}
	for _, cand := range candidates {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		id, raised, err := s.raise(ctx, cand)
		switch {
		case err != nil:
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("pair %s: %w", cand.pair, err))
		case !raised:
			result.Skipped++
		default:
			result.Raised++
			result.AlertIDs = append(result.AlertIDs, id)
		}
	}

	s.metrics.AddUnits(metrics.StageAlerts, metrics.OutcomeProcessed, result.Raised)
	s.metrics.AddUnits(metrics.StageAlerts, metrics.OutcomeSkipped, result.Skipped)
	s.metrics.AddUnits(metrics.StageAlerts, metrics.OutcomeFailed, result.Failed)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"threshold":  threshold,
		"candidates": result.Candidates,
		"raised":     result.Raised,
		"skipped":    result.Skipped,
		"failed":     result.Failed,
	})
	s.logg.Info(logCtx, "stockout alert scan complete")

	if errs != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "some alert candidates failed")
	}
	return result, nil
}

// collectCandidates returns a nil slice only when a source could not be read at all.
func (s *service) collectCandidates(ctx context.Context, threshold int) ([]candidate, int, error) {
	recs, err := s.recommendations.LatestAtRisk(ctx, threshold)
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load at-risk recommendations")
	}
	snapshots, err := s.snapshots.ListCurrent(ctx, forecasts.CurrentFilter{
		ComputedSince: forecasts.FreshSince(s.now(), s.cfg.ForecastMaxAge),
	})
	if err != nil {
		return nil, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current forecasts")
	}

	byPair := map[types.StockPair]candidate{}
	for _, rec := range recs {
		pair := types.StockPair{LocationID: rec.LocationID, PartID: rec.PartID}
		recID := rec.ID
		byPair[pair] = candidate{
			pair:             pair,
			risk:             rec.StockoutRiskScore,
			source:           SourceRecommendation,
			recommendationID: &recID,
		}
	}

	snapsByPair := map[types.StockPair][]models.ForecastSnapshot{}
	for _, snap := range snapshots {
		pair := types.StockPair{LocationID: snap.LocationID, PartID: snap.PartID}
		if _, ok := byPair[pair]; ok {
			continue
		}
		snapsByPair[pair] = append(snapsByPair[pair], snap)
	}
	forecastPairs := make([]types.StockPair, 0, len(snapsByPair))
	for pair := range snapsByPair {
		forecastPairs = append(forecastPairs, pair)
	}
	sort.Slice(forecastPairs, func(i, j int) bool { return forecastPairs[i].Less(forecastPairs[j]) })

	var (
		errs   error
		failed int
	)
	for _, pair := range forecastPairs {
		available, err := s.stock.GetAvailable(ctx, pair.LocationID, pair.PartID)
		if err != nil {
			failed++
			s.logg.Error(s.logg.WithPair(ctx, pair.LocationID.String(), pair.PartID.String()), "stock lookup failed", err)
			errs = multierr.Append(errs, fmt.Errorf("pair %s: stock lookup: %w", pair, err))
			continue
		}
		if cand, ok := riskiestWindow(pair, snapsByPair[pair], available, s.cfg.LeadTimeDays); ok && cand.risk >= threshold {
			byPair[pair] = cand
		}
	}

	out := make([]candidate, 0, len(byPair))
	for _, cand := range byPair {
		out = append(out, cand)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pair.Less(out[j].pair) })
	return out, failed, errs
}

// riskiestWindow picks the highest-risk current window; ties go to the shorter window.
func riskiestWindow(pair types.StockPair, snaps []models.ForecastSnapshot, available int64, leadTimeDays int) (candidate, bool) {
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].WindowDays < snaps[j].WindowDays })
	best := candidate{risk: -1}
	for _, snap := range snaps {
		risk := recommendations.StockoutRisk(snap.PredictedDemand, snap.WindowDays, available, leadTimeDays)
		if risk > best.risk {
			snapID := snap.ID
			best = candidate{
				pair:       pair,
				risk:       risk,
				source:     SourceForecast,
				snapshotID: &snapID,
				windowDays: snap.WindowDays,
			}
		}
	}
	return best, best.risk >= 0
}

func (s *service) raise(ctx context.Context, cand candidate) (uuid.UUID, bool, error) {
	pairCtx := s.logg.WithPair(ctx, cand.pair.LocationID.String(), cand.pair.PartID.String())
	pairCtx = s.logg.WithField(pairCtx, "source", cand.source)

	now := s.now().UTC()
	alert := &models.InventoryAlert{
		ID:                uuid.New(),
		LocationID:        cand.pair.LocationID,
		PartID:            cand.pair.PartID,
		Category:          enums.AlertCategoryStockout,
		Severity:          enums.SeverityForRisk(cand.risk),
		Message:           cand.message(),
		StockoutRiskScore: cand.risk,
		RecommendationID:  cand.recommendationID,
		SnapshotID:        cand.snapshotID,
		CreatedAt:         now,
	}

	var skipped bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		open, err := repo.HasOpenAlert(ctx, cand.pair, enums.AlertCategoryStockout)
		if err != nil {
			return fmt.Errorf("check open alert: %w", err)
		}
		if open {
			skipped = true
			return nil
		}
		if err := repo.Create(ctx, alert); err != nil {
			return err
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventInventoryAlertRaised,
			AggregateType: enums.AggregateInventoryAlert,
			AggregateID:   alert.ID,
			Version:       1,
			OccurredAt:    now,
			Data: payloads.InventoryAlertRaisedEvent{
				AlertID:           alert.ID,
				LocationID:        alert.LocationID,
				PartID:            alert.PartID,
				Category:          alert.Category,
				Severity:          alert.Severity,
				Message:           alert.Message,
				StockoutRiskScore: alert.StockoutRiskScore,
				RecommendationID:  alert.RecommendationID,
				CreatedAt:         alert.CreatedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return fmt.Errorf("queue alert event: %w", err)
		}
		return nil
	})
	switch {
	case err != nil && db.IsUniqueViolation(err, OpenPairIndex):
		s.logg.Info(pairCtx, "concurrent alert already open for pair")
		return uuid.Nil, false, nil
	case err != nil:
		s.logg.Error(pairCtx, "raise stockout alert failed", err)
		return uuid.Nil, false, err
	case skipped:
		s.logg.Debug(pairCtx, "existing open alert")
		return uuid.Nil, false, nil
	}

	logCtx := s.logg.WithFields(pairCtx, map[string]any{
		"alert_id":      alert.ID.String(),
		"severity":      alert.Severity,
		"stockout_risk": alert.StockoutRiskScore,
	})
	s.logg.Info(logCtx, "stockout alert raised")
	return alert.ID, true, nil
}

// Resolve closes an open alert. Resolution never touches recommendations.
func (s *service) Resolve(ctx context.Context, id uuid.UUID, actor types.Actor) (*models.InventoryAlert, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "alert id required")
	}
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	now := s.now().UTC()
	var resolved *models.InventoryAlert
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.Resolve(ctx, id, strings.TrimSpace(actor.ID), now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve alert")
		}
		alert, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.FromStore(err, "alert")
		}
		if affected == 0 {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "alert is already resolved").
				WithDetails(map[string]any{"resolved_at": alert.ResolvedAt})
		}
		resolved = alert
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithActorID(ctx, actor.ID)
	s.logg.Info(s.logg.WithField(logCtx, "alert_id", id.String()), "stockout alert resolved")
	return resolved, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	query := listParams{
		LocationID: params.LocationID,
		PartID:     params.PartID,
		OpenOnly:   params.OpenOnly,
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
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list alerts")
	}
	return &ListResult{Items: rows, Cursor: pagination.Next(next)}, nil
}
