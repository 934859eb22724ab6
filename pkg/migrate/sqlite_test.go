package migrate

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

func TestApplySQLiteSchemaEnforcesOpenAlertGuard(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_guard?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, ApplySQLiteSchema(conn))

	location, part := uuid.New(), uuid.New()
	alert := func() *models.InventoryAlert {
		return &models.InventoryAlert{
			ID:         uuid.New(),
			LocationID: location,
			PartID:     part,
			Category:   enums.AlertCategoryStockout,
			Severity:   enums.AlertSeverityCritical,
			Message:    "stockout risk 100",
		}
	}
	require.NoError(t, conn.Create(alert()).Error)
	require.Error(t, conn.Create(alert()).Error)

	now := time.Now().UTC()
	require.NoError(t, conn.Model(&models.InventoryAlert{}).
		Where("location_id = ? AND part_id = ?", location, part).
		Update("resolved_at", now).Error)
	require.NoError(t, conn.Create(alert()).Error)
}

func TestApplySQLiteSchemaEnforcesRecommendationChecks(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:migrate_checks?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, ApplySQLiteSchema(conn))

	approver := "planner-1"
	blank := "   "
	rec := func(status enums.RecommendationStatus, mutate func(*models.ReorderRecommendation)) *models.ReorderRecommendation {
		r := &models.ReorderRecommendation{
			ID:                uuid.New(),
			LocationID:        uuid.New(),
			PartID:            uuid.New(),
			RecommendedQty:    5,
			StockoutRiskScore: 80,
			Evidence:          datatypes.NewJSONType(types.Evidence{StockoutRisk: 80, LeadTimeDays: 7}),
			ValueScore:        datatypes.NewJSONType(types.ValueScore{Urgency: 80}),
			Status:            status,
		}
		if mutate != nil {
			mutate(r)
		}
		return r
	}

	require.NoError(t, conn.Create(rec(enums.RecommendationProposed, nil)).Error)
	require.NoError(t, conn.Create(rec(enums.RecommendationOrdered, func(r *models.ReorderRecommendation) {
		r.ApprovedBy = &approver
	})).Error)

	err = conn.Create(rec(enums.RecommendationOrdered, nil)).Error
	require.Error(t, err, "ordered without an approver must be rejected")
	require.Contains(t, err.Error(), "ck_reorder_recommendations_approved_by")

	err = conn.Create(rec(enums.RecommendationApproved, nil)).Error
	require.Error(t, err)

	err = conn.Create(rec(enums.RecommendationRejected, func(r *models.ReorderRecommendation) {
		r.Notes = &blank
	})).Error
	require.Error(t, err)
	require.Contains(t, err.Error(), "ck_reorder_recommendations_rejected_notes")

	err = conn.Create(rec(enums.RecommendationProposed, func(r *models.ReorderRecommendation) {
		r.RecommendedQty = 0
	})).Error
	require.Error(t, err)

	proposed := rec(enums.RecommendationProposed, nil)
	require.NoError(t, conn.Create(proposed).Error)
	err = conn.Model(&models.ReorderRecommendation{}).
		Where("id = ?", proposed.ID).
		Update("status", enums.RecommendationOrdered).Error
	require.Error(t, err, "updates go through the same guard")
}
