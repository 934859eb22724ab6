package forecasts

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

// Repository persists forecast snapshots. Snapshots are never updated.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertSnapshots(ctx context.Context, snapshots []models.ForecastSnapshot) error
	ListCurrent(ctx context.Context, filter CurrentFilter) ([]models.ForecastSnapshot, error)
	ListHistory(ctx context.Context, params listHistoryParams) ([]models.ForecastSnapshot, *pagination.Cursor, error)
	CurrentPairs(ctx context.Context) ([]types.StockPair, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a snapshot repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

// CurrentFilter narrows current-snapshot lookups.
type CurrentFilter struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	Window     *enums.ForecastWindow
	// ComputedSince drops current snapshots computed before it.
	ComputedSince *time.Time
}

// FreshSince is the ComputedSince bound for maxAge, or nil when maxAge is not positive.
func FreshSince(now time.Time, maxAge time.Duration) *time.Time {
	if maxAge <= 0 {
		return nil
	}
	since := now.UTC().Add(-maxAge)
	return &since
}

type listHistoryParams struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	Window     *enums.ForecastWindow
	From       *time.Time
	To         *time.Time
	Limit      int
	Cursor     *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) InsertSnapshots(ctx context.Context, snapshots []models.ForecastSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&snapshots).Error
}

// latestSubquery selects the newest computed_at per (location, part, window).
func (r *repository) latestSubquery(ctx context.Context) *gorm.DB {
	return r.DB(ctx).
		Model(&models.ForecastSnapshot{}).
		Select("location_id, part_id, window_days, MAX(computed_at) AS computed_at").
		Group("location_id, part_id, window_days")
}

// ListCurrent returns the latest snapshot per (location, part, window).
func (r *repository) ListCurrent(ctx context.Context, filter CurrentFilter) ([]models.ForecastSnapshot, error) {
	query := r.DB(ctx).
		Table("forecast_snapshots AS fs").
		Select("fs.*").
		Joins(`JOIN (?) AS latest
			ON latest.location_id = fs.location_id
			AND latest.part_id = fs.part_id
			AND latest.window_days = fs.window_days
			AND latest.computed_at = fs.computed_at`, r.latestSubquery(ctx))
	if filter.LocationID != nil {
		query = query.Where("fs.location_id = ?", *filter.LocationID)
	}
	if filter.PartID != nil {
		query = query.Where("fs.part_id = ?", *filter.PartID)
	}
	if filter.Window != nil {
		query = query.Where("fs.window_days = ?", int(*filter.Window))
	}
	if filter.ComputedSince != nil {
		query = query.Where("fs.computed_at >= ?", *filter.ComputedSince)
	}

	var snapshots []models.ForecastSnapshot
	if err := query.
		Order("fs.location_id ASC, fs.part_id ASC, fs.window_days ASC").
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

// CurrentPairs lists every pair that has at least one snapshot.
func (r *repository) CurrentPairs(ctx context.Context) ([]types.StockPair, error) {
	var pairs []types.StockPair
	if err := r.DB(ctx).
		Model(&models.ForecastSnapshot{}).
		Distinct("location_id", "part_id").
		Order("location_id ASC, part_id ASC").
		Scan(&pairs).Error; err != nil {
		return nil, err
	}
	return pairs, nil
}

func (r *repository) ListHistory(ctx context.Context, params listHistoryParams) ([]models.ForecastSnapshot, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.ForecastSnapshot{})
	if params.LocationID != nil {
		query = query.Where("location_id = ?", *params.LocationID)
	}
	if params.PartID != nil {
		query = query.Where("part_id = ?", *params.PartID)
	}
	if params.Window != nil {
		query = query.Where("window_days = ?", int(*params.Window))
	}
	if params.From != nil {
		query = query.Where("computed_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("computed_at <= ?", *params.To)
	}
	return repo.Page(query, repo.Keyset{TimeColumn: "computed_at"}, params.Cursor, params.Limit, func(s models.ForecastSnapshot) pagination.Cursor {
		return pagination.Cursor{CreatedAt: s.ComputedAt, ID: s.ID}
	})
}
