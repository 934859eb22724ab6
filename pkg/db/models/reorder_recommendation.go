package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

// ReorderRecommendation is a proposed purchase awaiting a human decision.
type ReorderRecommendation struct {
	ID                uuid.UUID                            `gorm:"column:id;type:uuid;primaryKey"`
	LocationID        uuid.UUID                            `gorm:"column:location_id;type:uuid;not null"`
	PartID            uuid.UUID                            `gorm:"column:part_id;type:uuid;not null"`
	RecommendedQty    int64                                `gorm:"column:recommended_qty;not null"`
	StockoutRiskScore int                                  `gorm:"column:stockout_risk_score;not null"`
	Evidence          datatypes.JSONType[types.Evidence]   `gorm:"column:evidence;type:jsonb;not null"`
	ValueScore        datatypes.JSONType[types.ValueScore] `gorm:"column:value_score;type:jsonb;not null"`
	SuggestedDealerID *uuid.UUID                           `gorm:"column:suggested_dealer_id;type:uuid"`
	NeedsReview       bool                                 `gorm:"column:needs_review;not null;default:false"`
	Status            enums.RecommendationStatus           `gorm:"column:status;type:recommendation_status_enum;not null"`
	ApprovedBy        *string                              `gorm:"column:approved_by"`
	ApprovedAt        *time.Time                           `gorm:"column:approved_at"`
	RejectedBy        *string                              `gorm:"column:rejected_by"`
	RejectedAt        *time.Time                           `gorm:"column:rejected_at"`
	DecidedByRole     *string                              `gorm:"column:decided_by_role"`
	Notes             *string                              `gorm:"column:notes"`
	OrderedAt         *time.Time                           `gorm:"column:ordered_at"`
	CreatedAt         time.Time                            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time                            `gorm:"column:updated_at;autoUpdateTime"`
}

func (ReorderRecommendation) TableName() string { return "reorder_recommendations" }
