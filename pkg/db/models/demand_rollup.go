package models

import (
	"time"

	"github.com/google/uuid"
)

// DemandRollup is the outbound demand for one (location, part) on one UTC day.
// It is derived from stock_movement_events and replaced wholesale on recompute.
type DemandRollup struct {
	LocationID  uuid.UUID `gorm:"column:location_id;type:uuid;primaryKey"`
	PartID      uuid.UUID `gorm:"column:part_id;type:uuid;primaryKey"`
	Day         time.Time `gorm:"column:day;type:date;primaryKey"`
	DemandCount int64     `gorm:"column:demand_count;not null"`
	ComputedAt  time.Time `gorm:"column:computed_at;not null"`
}

func (DemandRollup) TableName() string { return "demand_rollups" }
