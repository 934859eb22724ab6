package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

// ForecastSnapshot is an immutable forecast for one trailing window.
// The row with the latest computed_at per (location, part, window) is current.
type ForecastSnapshot struct {
	ID              uuid.UUID                                 `gorm:"column:id;type:uuid;primaryKey"`
	LocationID      uuid.UUID                                 `gorm:"column:location_id;type:uuid;not null"`
	PartID          uuid.UUID                                 `gorm:"column:part_id;type:uuid;not null"`
	WindowDays      int                                       `gorm:"column:window_days;not null"`
	PredictedDemand decimal.Decimal                           `gorm:"column:predicted_demand;type:numeric(14,4);not null"`
	ConfidenceScore int                                       `gorm:"column:confidence_score;not null"`
	PrimaryReason   string                                    `gorm:"column:primary_reason;not null"`
	Drivers         datatypes.JSONType[types.ForecastDrivers] `gorm:"column:drivers;type:jsonb;not null"`
	HistoryDays     int                                       `gorm:"column:history_days;not null"`
	ComputedAt      time.Time                                 `gorm:"column:computed_at;not null"`
}

func (ForecastSnapshot) TableName() string { return "forecast_snapshots" }
