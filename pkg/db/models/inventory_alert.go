package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
)

// InventoryAlert is open while ResolvedAt is nil.
type InventoryAlert struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	LocationID        uuid.UUID           `gorm:"column:location_id;type:uuid;not null"`
	PartID            uuid.UUID           `gorm:"column:part_id;type:uuid;not null"`
	Category          enums.AlertCategory `gorm:"column:category;type:alert_category_enum;not null"`
	Severity          enums.AlertSeverity `gorm:"column:severity;type:alert_severity_enum;not null"`
	Message           string              `gorm:"column:message;not null"`
	StockoutRiskScore int                 `gorm:"column:stockout_risk_score;not null"`
	RecommendationID  *uuid.UUID          `gorm:"column:recommendation_id;type:uuid"`
	SnapshotID        *uuid.UUID          `gorm:"column:snapshot_id;type:uuid"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt        *time.Time          `gorm:"column:resolved_at"`
	ResolvedBy        *string             `gorm:"column:resolved_by"`
}

func (InventoryAlert) TableName() string { return "inventory_alerts" }
