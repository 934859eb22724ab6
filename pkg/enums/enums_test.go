package enums

import "testing"

func TestMovementTypeOutbound(t *testing.T) {
	tests := []struct {
		value    MovementType
		outbound bool
	}{
		{MovementConsume, true},
		{MovementTransferOut, true},
		{MovementTransferIn, false},
		{MovementReceive, false},
	}
	for _, tt := range tests {
		if got := tt.value.IsOutbound(); got != tt.outbound {
			t.Fatalf("%s outbound expected %v got %v", tt.value, tt.outbound, got)
		}
	}
	if _, err := ParseMovementType("shrinkage"); err == nil {
		t.Fatal("expected unknown movement type to fail")
	}
}

func TestRecommendationStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to RecommendationStatus
		allowed  bool
	}{
		{RecommendationProposed, RecommendationApproved, true},
		{RecommendationProposed, RecommendationRejected, true},
		{RecommendationApproved, RecommendationOrdered, true},
		{RecommendationProposed, RecommendationOrdered, false},
		{RecommendationApproved, RecommendationRejected, false},
		{RecommendationApproved, RecommendationApproved, false},
		{RecommendationRejected, RecommendationApproved, false},
		{RecommendationOrdered, RecommendationProposed, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Fatalf("%s -> %s expected %v got %v", tt.from, tt.to, tt.allowed, got)
		}
	}
}

func TestSeverityForRisk(t *testing.T) {
	tests := []struct {
		risk int
		want AlertSeverity
	}{
		{100, AlertSeverityCritical},
		{95, AlertSeverityCritical},
		{90, AlertSeverityHigh},
		{75, AlertSeverityHigh},
		{40, AlertSeverityWarning},
	}
	for _, tt := range tests {
		if got := SeverityForRisk(tt.risk); got != tt.want {
			t.Fatalf("risk %d expected %s got %s", tt.risk, tt.want, got)
		}
	}
}

func TestParseForecastWindow(t *testing.T) {
	for _, raw := range []string{"7", "30", "90"} {
		if _, err := ParseForecastWindow(raw); err != nil {
			t.Fatalf("expected %s to parse: %v", raw, err)
		}
	}
	for _, raw := range []string{"14", "abc", ""} {
		if _, err := ParseForecastWindow(raw); err == nil {
			t.Fatalf("expected %q to fail", raw)
		}
	}
}

func TestOutboxEventTypesPinTheirAggregate(t *testing.T) {
	tests := []struct {
		event OutboxEventType
		want  OutboxAggregateType
	}{
		{EventInventoryAlertRaised, AggregateInventoryAlert},
		{EventRecommendationApproved, AggregateReorderRecommendation},
		{EventRecommendationRejected, AggregateReorderRecommendation},
		{"part_renamed", ""},
	}
	for _, tt := range tests {
		if got := tt.event.Aggregate(); got != tt.want {
			t.Fatalf("%s: expected aggregate %q got %q", tt.event, tt.want, got)
		}
		if tt.event.IsValid() != (tt.want != "") {
			t.Fatalf("%s: unexpected validity", tt.event)
		}
	}
	if _, err := ParseOutboxAggregateType("dealer"); err == nil {
		t.Fatal("expected unknown aggregate to fail")
	}
}
