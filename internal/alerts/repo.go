package alerts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/internal/repo"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

// OpenPairIndex guards one unresolved alert per pair and category.
const OpenPairIndex = "ux_inventory_alerts_open_pair"

// Repository persists inventory alerts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, alert *models.InventoryAlert) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryAlert, error)
	HasOpenAlert(ctx context.Context, pair types.StockPair, category enums.AlertCategory) (bool, error)
	Resolve(ctx context.Context, id uuid.UUID, resolvedBy string, resolvedAt time.Time) (int64, error)
	List(ctx context.Context, params listParams) ([]models.InventoryAlert, *pagination.Cursor, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns an alert repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

type listParams struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	OpenOnly   bool
	From       *time.Time
	To         *time.Time
	Limit      int
	Cursor     *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, alert *models.InventoryAlert) error {
	return r.DB(ctx).Create(alert).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryAlert, error) {
	var alert models.InventoryAlert
	if err := r.DB(ctx).Where("id = ?", id).First(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *repository) HasOpenAlert(ctx context.Context, pair types.StockPair, category enums.AlertCategory) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.InventoryAlert{}).
		Where("location_id = ? AND part_id = ? AND category = ? AND resolved_at IS NULL",
			pair.LocationID, pair.PartID, category).
		Count(&count).Error
	return count > 0, err
}

// Resolve stamps resolution fields on an open alert and reports affected rows.
func (r *repository) Resolve(ctx context.Context, id uuid.UUID, resolvedBy string, resolvedAt time.Time) (int64, error) {
	result := r.DB(ctx).
		Model(&models.InventoryAlert{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{
			"resolved_at": resolvedAt,
			"resolved_by": resolvedBy,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.InventoryAlert, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.InventoryAlert{})
	if params.LocationID != nil {
		query = query.Where("location_id = ?", *params.LocationID)
	}
	if params.PartID != nil {
		query = query.Where("part_id = ?", *params.PartID)
	}
	if params.OpenOnly {
		query = query.Where("resolved_at IS NULL")
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}
	return repo.Page(query, repo.Keyset{TimeColumn: "created_at"}, params.Cursor, params.Limit, func(a models.InventoryAlert) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
}
