package rollups

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/internal/repo"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

// Repository persists daily demand rollups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ReplaceWindow(ctx context.Context, pair types.StockPair, fromDay, toDay time.Time, rows []models.DemandRollup) error
	PairsInWindow(ctx context.Context, fromDay, toDay time.Time) ([]types.StockPair, error)
	ListForPair(ctx context.Context, pair types.StockPair, fromDay, toDay time.Time) ([]models.DemandRollup, error)
	List(ctx context.Context, params listRollupsParams) ([]models.DemandRollup, *pagination.Cursor, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a rollup repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

type listRollupsParams struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	FromDay    *time.Time
	ToDay      *time.Time
	Limit      int
	Cursor     *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// ReplaceWindow deletes the pair's rollups in [fromDay, toDay] and inserts rows.
// Callers run it inside a transaction so readers never see a half-written window.
func (r *repository) ReplaceWindow(ctx context.Context, pair types.StockPair, fromDay, toDay time.Time, rows []models.DemandRollup) error {
	if err := r.DB(ctx).
		Where("location_id = ? AND part_id = ?", pair.LocationID, pair.PartID).
		Where("day >= ? AND day <= ?", fromDay, toDay).
		Delete(&models.DemandRollup{}).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&rows).Error
}

// PairsInWindow lists the distinct pairs that have at least one rollup in [fromDay, toDay].
func (r *repository) PairsInWindow(ctx context.Context, fromDay, toDay time.Time) ([]types.StockPair, error) {
	var pairs []types.StockPair
	if err := r.DB(ctx).
		Model(&models.DemandRollup{}).
		Distinct("location_id", "part_id").
		Where("day >= ? AND day <= ?", fromDay, toDay).
		Order("location_id ASC, part_id ASC").
		Scan(&pairs).Error; err != nil {
		return nil, err
	}
	return pairs, nil
}

func (r *repository) ListForPair(ctx context.Context, pair types.StockPair, fromDay, toDay time.Time) ([]models.DemandRollup, error) {
	var rows []models.DemandRollup
	if err := r.DB(ctx).
		Where("location_id = ? AND part_id = ?", pair.LocationID, pair.PartID).
		Where("day >= ? AND day <= ?", fromDay, toDay).
		Order("day ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List pages rollups newest day first. The cursor carries (day, location, part).
func (r *repository) List(ctx context.Context, params listRollupsParams) ([]models.DemandRollup, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	query := r.DB(ctx).Model(&models.DemandRollup{})
	if params.LocationID != nil {
		query = query.Where("location_id = ?", *params.LocationID)
	}
	if params.PartID != nil {
		query = query.Where("part_id = ?", *params.PartID)
	}
	if params.FromDay != nil {
		query = query.Where("day >= ?", *params.FromDay)
	}
	if params.ToDay != nil {
		query = query.Where("day <= ?", *params.ToDay)
	}
	if c := params.Cursor; c != nil {
		query = query.Where(
			"day < ? OR (day = ? AND (location_id > ? OR (location_id = ? AND part_id > ?)))",
			c.CreatedAt, c.CreatedAt, c.ID, c.ID, c.SecondaryID,
		)
	}

	var rows []models.DemandRollup
	if err := query.Order("day DESC, location_id ASC, part_id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) > normalized {
		last := rows[normalized-1]
		rows = rows[:normalized]
		return rows, &pagination.Cursor{CreatedAt: last.Day, ID: last.LocationID, SecondaryID: last.PartID}, nil
	}
	return rows, nil, nil
}
