package payloads

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
)

var validate = validator.New()

// InventoryAlertRaisedEvent asks the notification collaborator to deliver a stockout alert.
type InventoryAlertRaisedEvent struct {
	AlertID           uuid.UUID           `json:"alert_id" validate:"required"`
	LocationID        uuid.UUID           `json:"location_id" validate:"required"`
	PartID            uuid.UUID           `json:"part_id" validate:"required"`
	Category          enums.AlertCategory `json:"category" validate:"required"`
	Severity          enums.AlertSeverity `json:"severity" validate:"oneof=warning high critical"`
	Message           string              `json:"message"`
	StockoutRiskScore int                 `json:"stockout_risk_score" validate:"min=0,max=100"`
	RecommendationID  *uuid.UUID          `json:"recommendation_id,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
}

// RecommendationDecisionEvent is emitted after a human approves or rejects a recommendation.
// Purchasing consumes approvals; rejections are informational.
type RecommendationDecisionEvent struct {
	RecommendationID  uuid.UUID                  `json:"recommendation_id" validate:"required"`
	LocationID        uuid.UUID                  `json:"location_id" validate:"required"`
	PartID            uuid.UUID                  `json:"part_id" validate:"required"`
	Status            enums.RecommendationStatus `json:"status" validate:"oneof=approved rejected"`
	RecommendedQty    int64                      `json:"recommended_qty" validate:"gt=0"`
	SuggestedDealerID *uuid.UUID                 `json:"suggested_dealer_id,omitempty"`
	DecidedBy         string                     `json:"decided_by" validate:"required"`
	DecidedAt         time.Time                  `json:"decided_at"`
	Notes             *string                    `json:"notes,omitempty"`
}

// Validate checks a decoded payload against its struct tags.
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
