package enums

import "fmt"

// AlertCategory maps to the alert_category_enum enum in Postgres.
type AlertCategory string

const (
	AlertCategoryStockout AlertCategory = "stockout"
)

var validAlertCategories = []AlertCategory{
	AlertCategoryStockout,
}

// IsValid reports whether the value matches the canonical alert category enum.
func (c AlertCategory) IsValid() bool {
	for _, candidate := range validAlertCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseAlertCategory converts raw input into AlertCategory.
func ParseAlertCategory(value string) (AlertCategory, error) {
	for _, candidate := range validAlertCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert category %q", value)
}

// AlertSeverity maps to the alert_severity_enum enum in Postgres.
type AlertSeverity string

const (
	AlertSeverityWarning  AlertSeverity = "warning"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityCritical AlertSeverity = "critical"
)

var validAlertSeverities = []AlertSeverity{
	AlertSeverityWarning,
	AlertSeverityHigh,
	AlertSeverityCritical,
}

// IsValid reports whether the value matches the canonical alert severity enum.
func (s AlertSeverity) IsValid() bool {
	for _, candidate := range validAlertSeverities {
		if candidate == s {
			return true
		}
	}
	return false
}

// SeverityForRisk buckets a 0-100 stockout risk score.
func SeverityForRisk(risk int) AlertSeverity {
	switch {
	case risk >= 95:
		return AlertSeverityCritical
	case risk >= 75:
		return AlertSeverityHigh
	default:
		return AlertSeverityWarning
	}
}

// ParseAlertSeverity converts raw input into AlertSeverity.
func ParseAlertSeverity(value string) (AlertSeverity, error) {
	for _, candidate := range validAlertSeverities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid alert severity %q", value)
}
