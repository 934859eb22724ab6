package types

import "github.com/shopspring/decimal"

// TrendDirection summarises the sign of the fitted slope.
type TrendDirection string

const (
	TrendRising  TrendDirection = "rising"
	TrendFalling TrendDirection = "falling"
	TrendFlat    TrendDirection = "flat"
)

// ForecastDrivers is the closed set of named factors behind a snapshot.
// Every field is populated for every snapshot, including low confidence ones.
type ForecastDrivers struct {
	Method                 string          `json:"method"`
	WindowDays             int             `json:"window_days"`
	ObservedDays           int             `json:"observed_days"`
	HistorySpanDays        int             `json:"history_span_days"`
	MeanDaily              decimal.Decimal `json:"mean_daily"`
	StdDevDaily            decimal.Decimal `json:"stddev_daily"`
	CoefficientOfVariation decimal.Decimal `json:"coefficient_of_variation"`
	TrendSlope             decimal.Decimal `json:"trend_slope"`
	TrendDirection         TrendDirection  `json:"trend_direction"`
	WeekdaySeasonality     decimal.Decimal `json:"weekday_seasonality"`
	DataSparsity           decimal.Decimal `json:"data_sparsity"`
}
