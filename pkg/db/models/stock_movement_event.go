package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
)

// StockMovementEvent is an immutable ledger fact appended by upstream collaborators.
type StockMovementEvent struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	LocationID     uuid.UUID          `gorm:"column:location_id;type:uuid;not null"`
	PartID         uuid.UUID          `gorm:"column:part_id;type:uuid;not null"`
	MovementType   enums.MovementType `gorm:"column:movement_type;type:movement_type_enum;not null"`
	QuantityDelta  int64              `gorm:"column:quantity_delta;not null"`
	OccurredAt     time.Time          `gorm:"column:occurred_at;not null"`
	SourceType     string             `gorm:"column:source_type;not null"`
	IdempotencyKey string             `gorm:"column:idempotency_key;not null;uniqueIndex:ux_stock_movement_events_idempotency_key"`
	Payload        datatypes.JSON     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (StockMovementEvent) TableName() string { return "stock_movement_events" }
