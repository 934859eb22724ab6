package forecasts

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

const (
	// MethodDampedTrend names the estimator recorded in drivers.method.
	MethodDampedTrend = "damped_linear_trend"

	trendDamping         = 0.5
	trendSignificance    = 0.2
	volatilityThreshold  = 1.0
	seasonalityThreshold = 1.5
	historyFloorScore    = 5
	seasonalityMinWindow = 30
)

// Series is a dense daily demand series ending on EndDay (inclusive), oldest first.
// Days without a rollup are zero.
type Series struct {
	EndDay time.Time
	Values []int64
}

// Estimate is the output of one window.
type Estimate struct {
	Window          enums.ForecastWindow
	PredictedDemand decimal.Decimal
	ConfidenceScore int
	PrimaryReason   string
	Drivers         types.ForecastDrivers
}

// Estimator turns a demand series into one estimate per window.
type Estimator interface {
	Estimate(series Series, window enums.ForecastWindow) Estimate
}

// DampedTrendEstimator projects the window mean forward along half of the
// least-squares slope. Confidence scales with how many days carry demand and
// shrinks with the coefficient of variation.
type DampedTrendEstimator struct{}

// minObservedDays is the number of days with demand a window needs for full sample confidence.
func minObservedDays(window enums.ForecastWindow) int {
	switch window {
	case enums.ForecastWindow7:
		return 4
	case enums.ForecastWindow30:
		return 10
	default:
		return 20
	}
}

func (DampedTrendEstimator) Estimate(series Series, window enums.ForecastWindow) Estimate {
	w := window.Days()
	values := tail(series.Values, w)

	observed := 0
	sum := 0.0
	for _, v := range values {
		if v > 0 {
			observed++
		}
		sum += float64(v)
	}
	mean := sum / float64(w)

	variance := 0.0
	for _, v := range values {
		d := float64(v) - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(w))

	cv := 0.0
	if mean > 0 {
		cv = stddev / mean
	}

	slope := leastSquaresSlope(values)
	predicted := math.Max(0, (mean+trendDamping*slope*float64(w))*float64(w))

	direction := types.TrendFlat
	if mean > 0 && math.Abs(slope*float64(w))/mean > trendSignificance {
		if slope > 0 {
			direction = types.TrendRising
		} else {
			direction = types.TrendFalling
		}
	}

	seasonality, peakDay := 0.0, time.Sunday
	if w >= seasonalityMinWindow {
		seasonality, peakDay = weekdayPeak(values, series.EndDay)
	}

	span := historySpan(series.Values)
	sampleFactor := math.Min(1, float64(observed)/float64(minObservedDays(window)))
	stability := 1 / (1 + cv)
	confidence := int(math.Round(100 * sampleFactor * stability))
	if span > 0 && confidence < historyFloorScore {
		confidence = historyFloorScore
	}
	confidence = clamp(confidence, 0, 100)

	drivers := types.ForecastDrivers{
		Method:                 MethodDampedTrend,
		WindowDays:             w,
		ObservedDays:           observed,
		HistorySpanDays:        span,
		MeanDaily:              round4(mean),
		StdDevDaily:            round4(stddev),
		CoefficientOfVariation: round4(cv),
		TrendSlope:             round4(slope),
		TrendDirection:         direction,
		WeekdaySeasonality:     round4(seasonality),
		DataSparsity:           round4(1 - float64(observed)/float64(w)),
	}

	return Estimate{
		Window:          window,
		PredictedDemand: round4(predicted),
		ConfidenceScore: confidence,
		PrimaryReason:   primaryReason(drivers, window, peakDay),
		Drivers:         drivers,
	}
}

func primaryReason(d types.ForecastDrivers, window enums.ForecastWindow, peakDay time.Weekday) string {
	w := window.Days()
	switch {
	case d.ObservedDays < minObservedDays(window):
		return fmt.Sprintf("insufficient history: demand recorded on %d of the last %d days", d.ObservedDays, w)
	case d.TrendDirection == types.TrendRising:
		return fmt.Sprintf("rising demand trend of %s units/day per day over the last %d days", d.TrendSlope.StringFixed(2), w)
	case d.TrendDirection == types.TrendFalling:
		return fmt.Sprintf("falling demand trend of %s units/day per day over the last %d days", d.TrendSlope.Abs().StringFixed(2), w)
	case d.CoefficientOfVariation.GreaterThan(decimal.NewFromFloat(volatilityThreshold)):
		return fmt.Sprintf("volatile demand (coefficient of variation %s) over the last %d days", d.CoefficientOfVariation.StringFixed(2), w)
	case d.WeekdaySeasonality.GreaterThanOrEqual(decimal.NewFromFloat(seasonalityThreshold)):
		return fmt.Sprintf("weekly seasonality peaking on %ss at %sx the daily average over the last %d days", peakDay, d.WeekdaySeasonality.StringFixed(1), w)
	default:
		return fmt.Sprintf("stable demand averaging %s units/day over the last %d days", d.MeanDaily.StringFixed(2), w)
	}
}

func tail(values []int64, n int) []int64 {
	out := make([]int64, n)
	if len(values) >= n {
		copy(out, values[len(values)-n:])
		return out
	}
	copy(out[n-len(values):], values)
	return out
}

func leastSquaresSlope(values []int64) float64 {
	n := float64(len(values))
	if n < 2 {
		return 0
	}
	meanX := (n - 1) / 2
	meanY := 0.0
	for _, v := range values {
		meanY += float64(v)
	}
	meanY /= n

	num, den := 0.0, 0.0
	for i, v := range values {
		dx := float64(i) - meanX
		num += dx * (float64(v) - meanY)
		den += dx * dx
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// weekdayPeak returns the highest weekday mean relative to the overall mean.
func weekdayPeak(values []int64, endDay time.Time) (float64, time.Weekday) {
	var sums, counts [7]float64
	total := 0.0
	n := len(values)
	for i, v := range values {
		day := endDay.AddDate(0, 0, -(n - 1 - i)).Weekday()
		sums[day] += float64(v)
		counts[day]++
		total += float64(v)
	}
	if total == 0 {
		return 0, time.Sunday
	}
	overall := total / float64(n)
	best, bestDay := 0.0, time.Sunday
	for d := 0; d < 7; d++ {
		if counts[d] == 0 {
			continue
		}
		if avg := sums[d] / counts[d]; avg > best {
			best, bestDay = avg, time.Weekday(d)
		}
	}
	return best / overall, bestDay
}

// historySpan counts days from the first day with demand through the end of the series.
func historySpan(values []int64) int {
	for i, v := range values {
		if v > 0 {
			return len(values) - i
		}
	}
	return 0
}

func round4(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(4)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
