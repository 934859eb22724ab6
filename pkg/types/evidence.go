package types

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SizingMode records how recommended_qty was derived.
type SizingMode string

const (
	SizingStandard     SizingMode = "standard"
	SizingConservative SizingMode = "conservative"
)

// DealerOutcome is the closed set of dealer selection results.
type DealerOutcome string

const (
	// DealerQualified means a candidate met the reliability floor.
	DealerQualified DealerOutcome = "qualified"
	// DealerBestAvailable means no candidate qualified; UIs render "best available".
	DealerBestAvailable DealerOutcome = "best_available"
	// DealerLookupFailed means the trust collaborator could not be reached.
	DealerLookupFailed DealerOutcome = "lookup_failed"
)

const (
	ReviewFlagLowConfidenceOverride = "low_confidence_override"
	ReviewFlagLowConfidenceLargeQty = "low_confidence_large_quantity"
)

// ForecastRef pins the snapshot a recommendation was generated from.
type ForecastRef struct {
	SnapshotID      uuid.UUID       `json:"snapshot_id"`
	WindowDays      int             `json:"window_days"`
	PredictedDemand decimal.Decimal `json:"predicted_demand"`
	ConfidenceScore int             `json:"confidence_score"`
	PrimaryReason   string          `json:"primary_reason"`
	ComputedAt      time.Time       `json:"computed_at"`
}

// DealerSelection captures what the dealer collaborators returned at generation time.
type DealerSelection struct {
	Outcome    DealerOutcome `json:"outcome"`
	DealerID   *uuid.UUID    `json:"dealer_id,omitempty"`
	TrustScore *int          `json:"trust_score,omitempty"`
	Floor      int           `json:"floor"`
	Candidates int           `json:"candidates"`
}

// Evidence is the frozen bundle stored on each reorder recommendation.
type Evidence struct {
	Forecast         ForecastRef     `json:"forecast"`
	CurrentAvailable int64           `json:"current_available"`
	StockoutRisk     int             `json:"stockout_risk"`
	LeadTimeDays     int             `json:"lead_time_days"`
	LeadTimeDemand   decimal.Decimal `json:"lead_time_demand"`
	SafetyStock      int64           `json:"safety_stock"`
	Sizing           SizingMode      `json:"sizing"`
	ReviewFlags      []string        `json:"review_flags"`
	Dealer           DealerSelection `json:"dealer"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// Validate enforces the keys every evidence bundle must carry.
func (e Evidence) Validate() error {
	if e.Forecast.SnapshotID == uuid.Nil {
		return errors.New("evidence: forecast snapshot reference required")
	}
	if e.Forecast.WindowDays <= 0 {
		return errors.New("evidence: forecast window required")
	}
	if strings.TrimSpace(e.Forecast.PrimaryReason) == "" {
		return errors.New("evidence: forecast primary reason required")
	}
	if e.StockoutRisk < 0 || e.StockoutRisk > 100 {
		return errors.New("evidence: stockout risk must be within 0..100")
	}
	switch e.Sizing {
	case SizingStandard, SizingConservative:
	default:
		return errors.New("evidence: unknown sizing mode")
	}
	switch e.Dealer.Outcome {
	case DealerQualified:
		if e.Dealer.DealerID == nil {
			return errors.New("evidence: qualified dealer requires an id")
		}
	case DealerBestAvailable, DealerLookupFailed:
		if e.Dealer.DealerID != nil {
			return errors.New("evidence: unqualified dealer outcome cannot carry an id")
		}
	default:
		return errors.New("evidence: unknown dealer outcome")
	}
	return nil
}

// HasFlag reports whether a review flag was raised.
func (e Evidence) HasFlag(flag string) bool {
	for _, f := range e.ReviewFlags {
		if f == flag {
			return true
		}
	}
	return false
}

// ValueScore is the multi-factor score attached to each recommendation.
type ValueScore struct {
	Urgency     int             `json:"urgency"`
	Confidence  int             `json:"confidence"`
	DealerTrust *int            `json:"dealer_trust,omitempty"`
	Overall     decimal.Decimal `json:"overall"`
}
