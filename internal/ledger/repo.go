package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/fieldstock-backend/internal/repo"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
)

// Repository persists stock movement events. Events are append-only, so there
// is no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIgnoreDuplicates(ctx context.Context, events []models.StockMovementEvent) (int64, error)
	ListOutbound(ctx context.Context, from, to time.Time) ([]models.StockMovementEvent, error)
	List(ctx context.Context, params listEventsParams) ([]models.StockMovementEvent, *pagination.Cursor, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

type listEventsParams struct {
	LocationID   *uuid.UUID
	PartID       *uuid.UUID
	MovementType *enums.MovementType
	From         *time.Time
	To           *time.Time
	Limit        int
	Cursor       *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// InsertIgnoreDuplicates inserts events and skips rows whose idempotency key
// already exists. It returns the number of rows actually inserted.
func (r *repository) InsertIgnoreDuplicates(ctx context.Context, events []models.StockMovementEvent) (int64, error) {
	if len(events) == 0 {
		return 0, nil
	}
	result := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).
		Create(&events)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// ListOutbound returns consume and transfer_out events with occurred_at in [from, to].
func (r *repository) ListOutbound(ctx context.Context, from, to time.Time) ([]models.StockMovementEvent, error) {
	var events []models.StockMovementEvent
	if err := r.DB(ctx).
		Where("movement_type IN ?", enums.OutboundMovementTypes).
		Where("occurred_at >= ? AND occurred_at <= ?", from, to).
		Order("location_id ASC, part_id ASC, occurred_at ASC, id ASC").
		Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repository) List(ctx context.Context, params listEventsParams) ([]models.StockMovementEvent, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.StockMovementEvent{})
	if params.LocationID != nil {
		query = query.Where("location_id = ?", *params.LocationID)
	}
	if params.PartID != nil {
		query = query.Where("part_id = ?", *params.PartID)
	}
	if params.MovementType != nil {
		query = query.Where("movement_type = ?", *params.MovementType)
	}
	if params.From != nil {
		query = query.Where("occurred_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("occurred_at <= ?", *params.To)
	}
	return repo.Page(query, repo.Keyset{TimeColumn: "occurred_at"}, params.Cursor, params.Limit, func(e models.StockMovementEvent) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.OccurredAt, ID: e.ID}
	})
}
