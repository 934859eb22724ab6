package enums

import "fmt"

// RecommendationStatus maps to the recommendation_status_enum enum in Postgres.
type RecommendationStatus string

const (
	RecommendationProposed RecommendationStatus = "proposed"
	RecommendationApproved RecommendationStatus = "approved"
	RecommendationRejected RecommendationStatus = "rejected"
	RecommendationOrdered  RecommendationStatus = "ordered"
)

var validRecommendationStatuses = []RecommendationStatus{
	RecommendationProposed,
	RecommendationApproved,
	RecommendationRejected,
	RecommendationOrdered,
}

// IsValid reports whether the value matches the canonical status enum.
func (s RecommendationStatus) IsValid() bool {
	for _, candidate := range validRecommendationStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo encodes the only legal edges:
// proposed -> approved | rejected, approved -> ordered.
func (s RecommendationStatus) CanTransitionTo(next RecommendationStatus) bool {
	switch s {
	case RecommendationProposed:
		return next == RecommendationApproved || next == RecommendationRejected
	case RecommendationApproved:
		return next == RecommendationOrdered
	default:
		return false
	}
}

// ParseRecommendationStatus converts raw input into RecommendationStatus.
func ParseRecommendationStatus(value string) (RecommendationStatus, error) {
	for _, candidate := range validRecommendationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid recommendation status %q", value)
}
