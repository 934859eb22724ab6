package recommendations

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

// Thresholds are the knobs window selection and sizing read.
type Thresholds struct {
	Risk                int
	Confidence          int
	CriticalRisk        int
	LeadTimeDays        int
	LowConfidenceFlag   int
	LargeQuantityFactor int
}

type windowEvaluation struct {
	snapshot   models.ForecastSnapshot
	risk       int
	leadDemand decimal.Decimal
}

type sizingDecision struct {
	window      windowEvaluation
	mode        types.SizingMode
	qty         int64
	safetyStock int64
	flags       []string
	needsReview bool
}

// LeadTimeDemand scales a window's predicted demand down to the lead time.
func LeadTimeDemand(predicted decimal.Decimal, windowDays, leadTimeDays int) decimal.Decimal {
	if windowDays <= 0 {
		return decimal.Zero
	}
	return predicted.Div(decimal.NewFromInt(int64(windowDays))).Mul(decimal.NewFromInt(int64(leadTimeDays)))
}

// StockoutRisk is the 0..100 risk that available stock runs out within the lead
// time. It is 50 when stock exactly covers lead-time demand.
func StockoutRisk(predicted decimal.Decimal, windowDays int, available int64, leadTimeDays int) int {
	if !predicted.IsPositive() {
		return 0
	}
	if available <= 0 {
		return 100
	}
	leadDemand, _ := LeadTimeDemand(predicted, windowDays, leadTimeDays).Float64()
	if leadDemand <= 0 {
		return 0
	}
	cover := float64(available) / leadDemand
	return int(math.Round(100 / (1 + cover*cover)))
}

func evaluateWindows(snapshots []models.ForecastSnapshot, available int64, leadTimeDays int) []windowEvaluation {
	evals := make([]windowEvaluation, 0, len(snapshots))
	for _, snap := range snapshots {
		evals = append(evals, windowEvaluation{
			snapshot:   snap,
			risk:       StockoutRisk(snap.PredictedDemand, snap.WindowDays, available, leadTimeDays),
			leadDemand: LeadTimeDemand(snap.PredictedDemand, snap.WindowDays, leadTimeDays),
		})
	}
	return evals
}

// pickHighestRisk returns the highest-risk evaluation accepted by keep. Evaluations
// arrive in ascending window order, so ties resolve to the shorter window.
func pickHighestRisk(evals []windowEvaluation, keep func(windowEvaluation) bool) (windowEvaluation, bool) {
	var (
		best  windowEvaluation
		found bool
	)
	for _, eval := range evals {
		if !keep(eval) {
			continue
		}
		if !found || eval.risk > best.risk {
			best, found = eval, true
		}
	}
	return best, found
}

// decide chooses a window and sizes the order. ok is false when no window qualifies
// or stock already covers the sized demand.
func decide(evals []windowEvaluation, available int64, th Thresholds) (sizingDecision, skipReason, bool) {
	chosen, found := pickHighestRisk(evals, func(e windowEvaluation) bool {
		return e.risk >= th.Risk && e.snapshot.ConfidenceScore >= th.Confidence
	})
	mode := types.SizingStandard
	var flags []string
	if !found {
		chosen, found = pickHighestRisk(evals, func(e windowEvaluation) bool {
			return e.risk >= th.CriticalRisk
		})
		if !found {
			return sizingDecision{}, skipBelowThreshold, false
		}
		mode = types.SizingConservative
		flags = append(flags, types.ReviewFlagLowConfidenceOverride)
	}

	std := chosen.snapshot.Drivers.Data().StdDevDaily
	stdFloat, _ := std.Float64()
	safety := int64(math.Ceil(stdFloat * math.Sqrt(float64(th.LeadTimeDays))))

	base := chosen.snapshot.PredictedDemand
	if mode == types.SizingConservative {
		base = chosen.leadDemand
	}
	baseFloat, _ := base.Float64()
	qty := int64(math.Ceil(baseFloat + float64(safety) - float64(available)))
	if qty <= 0 {
		return sizingDecision{}, skipSufficientStock, false
	}

	decision := sizingDecision{
		window:      chosen,
		mode:        mode,
		qty:         qty,
		safetyStock: safety,
		flags:       flags,
		needsReview: mode == types.SizingConservative,
	}

	leadFloat, _ := chosen.leadDemand.Float64()
	largeLimit := float64(th.LargeQuantityFactor) * math.Max(leadFloat, 1)
	if chosen.snapshot.ConfidenceScore < th.LowConfidenceFlag && float64(qty) > largeLimit {
		decision.flags = append(decision.flags, types.ReviewFlagLowConfidenceLargeQty)
		decision.needsReview = true
	}
	return decision, "", true
}

// valueScore weights urgency over confidence over dealer trust. A missing trust
// score contributes nothing.
func valueScore(risk, confidence int, trust *int) types.ValueScore {
	overall := decimal.NewFromInt(int64(risk)).Mul(decimal.NewFromFloat(0.5)).
		Add(decimal.NewFromInt(int64(confidence)).Mul(decimal.NewFromFloat(0.3)))
	if trust != nil {
		overall = overall.Add(decimal.NewFromInt(int64(*trust)).Mul(decimal.NewFromFloat(0.2)))
	}
	return types.ValueScore{
		Urgency:     risk,
		Confidence:  confidence,
		DealerTrust: trust,
		Overall:     overall.Round(2),
	}
}
