package recommendations

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

type skipReason string

const (
	skipAlreadyOpen     skipReason = "already_open"
	skipBelowThreshold  skipReason = "below_threshold"
	skipSufficientStock skipReason = "sufficient_stock"
)

// GenerateParams overrides the configured thresholds for one run. A nil field
// keeps the default; an explicit 0 disables that gate.
type GenerateParams struct {
	RiskThreshold       *int `json:"risk_threshold,omitempty"`
	ConfidenceThreshold *int `json:"confidence_threshold,omitempty"`
}

func percentOverride(name string, value *int, fallback int) (int, error) {
	if value == nil {
		return fallback, nil
	}
	if *value < 0 || *value > 100 {
		return 0, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be between 0 and 100", name)
	}
	return *value, nil
}

// GenerateResult summarizes one generator run.
type GenerateResult struct {
	RiskThreshold       int            `json:"risk_threshold"`
	ConfidenceThreshold int            `json:"confidence_threshold"`
	PairsEvaluated      int            `json:"pairs_evaluated"`
	Created             int            `json:"created"`
	Skipped             int            `json:"skipped"`
	Failed              int            `json:"failed"`
	SkipReasons         map[string]int `json:"skip_reasons"`
	RecommendationIDs   []uuid.UUID    `json:"recommendation_ids"`
}

func (r *GenerateResult) skip(reason skipReason) {
	r.Skipped++
	r.SkipReasons[string(reason)]++
}

func (s *service) thresholds(params GenerateParams) (Thresholds, error) {
	risk, err := percentOverride("risk_threshold", params.RiskThreshold, s.cfg.RiskThreshold)
	if err != nil {
		return Thresholds{}, err
	}
	confidence, err := percentOverride("confidence_threshold", params.ConfidenceThreshold, s.cfg.ConfidenceThreshold)
	if err != nil {
		return Thresholds{}, err
	}
	th := Thresholds{
		Risk:                risk,
		Confidence:          confidence,
		CriticalRisk:        s.cfg.CriticalRiskThreshold,
		LeadTimeDays:        s.cfg.LeadTimeDays,
		LowConfidenceFlag:   s.cfg.LowConfidenceFlag,
		LargeQuantityFactor: s.cfg.LargeQuantityFactor,
	}
	if th.LeadTimeDays <= 0 {
		return Thresholds{}, pkgerrors.New(pkgerrors.CodeValidation, "lead time days must be positive")
	}
	return th, nil
}

// Generate evaluates every pair with current snapshots and creates at most one
// proposed recommendation per pair. Each creation commits on its own.
func (s *service) Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error) {
	th, err := s.thresholds(params)
	if err != nil {
		return nil, err
	}

	current, err := s.snapshots.ListCurrent(ctx, forecasts.CurrentFilter{
		ComputedSince: forecasts.FreshSince(s.now(), s.cfg.ForecastMaxAge),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load current forecasts")
	}
	byPair := map[types.StockPair][]models.ForecastSnapshot{}
	for _, snap := range current {
		pair := types.StockPair{LocationID: snap.LocationID, PartID: snap.PartID}
		byPair[pair] = append(byPair[pair], snap)
	}
	pairs := make([]types.StockPair, 0, len(byPair))
	for pair, snaps := range byPair {
		sort.Slice(snaps, func(i, j int) bool { return snaps[i].WindowDays < snaps[j].WindowDays })
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Less(pairs[j]) })

	result := &GenerateResult{
		RiskThreshold:       th.Risk,
		ConfidenceThreshold: th.Confidence,
		PairsEvaluated:      len(pairs),
		SkipReasons:         map[string]int{},
		RecommendationIDs:   []uuid.UUID{},
	}
	var errs error
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		id, reason, err := s.generatePair(ctx, pair, byPair[pair], th)
		switch {
		case err != nil:
			result.Failed++
			errs = multierr.Append(errs, fmt.Errorf("pair %s: %w", pair, err))
		case reason != "":
			result.skip(reason)
		default:
			result.Created++
			result.RecommendationIDs = append(result.RecommendationIDs, id)
		}
	}

	s.metrics.AddUnits(metrics.StageRecommendations, metrics.OutcomeProcessed, result.Created)
	s.metrics.AddUnits(metrics.StageRecommendations, metrics.OutcomeSkipped, result.Skipped)
	s.metrics.AddUnits(metrics.StageRecommendations, metrics.OutcomeFailed, result.Failed)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"risk_threshold":       th.Risk,
		"confidence_threshold": th.Confidence,
		"pairs_evaluated":      result.PairsEvaluated,
		"created":              result.Created,
		"skipped":              result.Skipped,
		"failed":               result.Failed,
	})
	s.logg.Info(logCtx, "reorder recommendations generated")

	if errs != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, errs, "some recommendation pairs failed")
	}
	return result, nil
}

func (s *service) generatePair(ctx context.Context, pair types.StockPair, snapshots []models.ForecastSnapshot, th Thresholds) (uuid.UUID, skipReason, error) {
	pairCtx := s.logg.WithPair(ctx, pair.LocationID.String(), pair.PartID.String())

	open, err := s.repo.HasOpenProposal(ctx, pair)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("check open proposal: %w", err)
	}
	if open {
		s.logg.Debug(pairCtx, "pair already has an open proposal")
		return uuid.Nil, skipAlreadyOpen, nil
	}

	available, err := s.stock.GetAvailable(ctx, pair.LocationID, pair.PartID)
	if err != nil {
		s.logg.Error(pairCtx, "stock lookup failed", err)
		return uuid.Nil, "", fmt.Errorf("stock lookup: %w", err)
	}

	decision, reason, ok := decide(evaluateWindows(snapshots, available, th.LeadTimeDays), available, th)
	if !ok {
		return uuid.Nil, reason, nil
	}

	dealer := s.selectDealer(pairCtx, pair)
	now := s.now().UTC()
	snap := decision.window.snapshot
	evidence := types.Evidence{
		Forecast: types.ForecastRef{
			SnapshotID:      snap.ID,
			WindowDays:      snap.WindowDays,
			PredictedDemand: snap.PredictedDemand,
			ConfidenceScore: snap.ConfidenceScore,
			PrimaryReason:   snap.PrimaryReason,
			ComputedAt:      snap.ComputedAt,
		},
		CurrentAvailable: available,
		StockoutRisk:     decision.window.risk,
		LeadTimeDays:     th.LeadTimeDays,
		LeadTimeDemand:   decision.window.leadDemand.Round(4),
		SafetyStock:      decision.safetyStock,
		Sizing:           decision.mode,
		ReviewFlags:      append([]string{}, decision.flags...),
		Dealer:           dealer,
		GeneratedAt:      now,
	}
	if err := evidence.Validate(); err != nil {
		return uuid.Nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build evidence")
	}

	rec := &models.ReorderRecommendation{
		ID:                uuid.New(),
		LocationID:        pair.LocationID,
		PartID:            pair.PartID,
		RecommendedQty:    decision.qty,
		StockoutRiskScore: decision.window.risk,
		Evidence:          datatypes.NewJSONType(evidence),
		ValueScore:        datatypes.NewJSONType(valueScore(decision.window.risk, snap.ConfidenceScore, dealer.TrustScore)),
		SuggestedDealerID: dealer.DealerID,
		NeedsReview:       decision.needsReview,
		Status:            enums.RecommendationProposed,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, rec)
	})
	if err != nil {
		if db.IsUniqueViolation(err, OpenPairIndex) {
			s.logg.Info(pairCtx, "concurrent proposal already open for pair")
			return uuid.Nil, skipAlreadyOpen, nil
		}
		s.logg.Error(pairCtx, "create recommendation failed", err)
		return uuid.Nil, "", fmt.Errorf("create recommendation: %w", err)
	}

	logCtx := s.logg.WithFields(pairCtx, map[string]any{
		"recommendation_id": rec.ID.String(),
		"recommended_qty":   rec.RecommendedQty,
		"stockout_risk":     rec.StockoutRiskScore,
		"window_days":       snap.WindowDays,
		"sizing":            decision.mode,
		"needs_review":      rec.NeedsReview,
	})
	s.logg.Info(logCtx, "reorder recommendation proposed")
	return rec.ID, "", nil
}

// selectDealer attaches the most trusted candidate at or above the reliability
// floor. Collaborator failures degrade to an unattached dealer.
func (s *service) selectDealer(ctx context.Context, pair types.StockPair) types.DealerSelection {
	selection := types.DealerSelection{Outcome: types.DealerBestAvailable, Floor: s.cfg.DealerReliabilityFloor}

	candidates, err := s.dealers.DealerCandidates(ctx, pair.LocationID, pair.PartID)
	if err != nil {
		s.logg.Warn(s.logg.WithError(ctx, err), "dealer candidate lookup failed")
		selection.Outcome = types.DealerLookupFailed
		return selection
	}
	selection.Candidates = len(candidates)
	if len(candidates) == 0 {
		return selection
	}

	scores, err := s.trust.DealerTrust(ctx, candidates)
	if err != nil {
		s.logg.Warn(s.logg.WithError(ctx, err), "dealer trust lookup failed")
		selection.Outcome = types.DealerLookupFailed
		return selection
	}

	var (
		bestID    uuid.UUID
		bestScore = -1
	)
	for _, id := range candidates {
		score, ok := scores[id]
		if !ok {
			continue
		}
		if score > bestScore || (score == bestScore && id.String() < bestID.String()) {
			bestID, bestScore = id, score
		}
	}
	if bestScore < 0 {
		return selection
	}
	trust := bestScore
	selection.TrustScore = &trust
	if bestScore >= s.cfg.DealerReliabilityFloor {
		dealerID := bestID
		selection.Outcome = types.DealerQualified
		selection.DealerID = &dealerID
	}
	return selection
}
