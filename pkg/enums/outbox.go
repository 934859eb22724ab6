package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type enum in Postgres.
type OutboxAggregateType string

const (
	AggregateInventoryAlert        OutboxAggregateType = "inventory_alert"
	AggregateReorderRecommendation OutboxAggregateType = "reorder_recommendation"
)

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateInventoryAlert, AggregateReorderRecommendation:
		return true
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	a := OutboxAggregateType(value)
	if !a.IsValid() {
		return "", fmt.Errorf("invalid aggregate type %q", value)
	}
	return a, nil
}

// OutboxEventType maps to the event_type enum in Postgres.
type OutboxEventType string

const (
	EventInventoryAlertRaised   OutboxEventType = "inventory_alert_raised"
	EventRecommendationApproved OutboxEventType = "reorder_recommendation_approved"
	EventRecommendationRejected OutboxEventType = "reorder_recommendation_rejected"
)

// eventAggregates pins every event type to the one aggregate it may be emitted for.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventInventoryAlertRaised:   AggregateInventoryAlert,
	EventRecommendationApproved: AggregateReorderRecommendation,
	EventRecommendationRejected: AggregateReorderRecommendation,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate is the aggregate type e belongs to, or "" for unknown events.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}
