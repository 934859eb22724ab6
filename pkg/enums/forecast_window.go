package enums

import (
	"fmt"
	"strconv"
)

// ForecastWindow is one of the fixed trailing horizons, in days.
type ForecastWindow int

const (
	ForecastWindow7  ForecastWindow = 7
	ForecastWindow30 ForecastWindow = 30
	ForecastWindow90 ForecastWindow = 90
)

// ForecastWindows lists every window in ascending order.
var ForecastWindows = []ForecastWindow{
	ForecastWindow7,
	ForecastWindow30,
	ForecastWindow90,
}

// MaxForecastWindow is the widest trailing horizon any window reads.
const MaxForecastWindow = ForecastWindow90

// Days returns the window length.
func (w ForecastWindow) Days() int { return int(w) }

// IsValid reports whether the value is one of the fixed windows.
func (w ForecastWindow) IsValid() bool {
	for _, candidate := range ForecastWindows {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseForecastWindow converts raw input into ForecastWindow.
func ParseForecastWindow(value string) (ForecastWindow, error) {
	days, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid forecast window %q", value)
	}
	w := ForecastWindow(days)
	if !w.IsValid() {
		return 0, fmt.Errorf("invalid forecast window %q", value)
	}
	return w, nil
}
