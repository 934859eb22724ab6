package recommendations

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

// OpenPairIndex guards one proposed recommendation per pair.
const OpenPairIndex = "ux_reorder_recommendations_open_pair"

// Repository persists reorder recommendations. Status only moves through TransitionStatus.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, rec *models.ReorderRecommendation) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ReorderRecommendation, error)
	HasOpenProposal(ctx context.Context, pair types.StockPair) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from enums.RecommendationStatus, updates map[string]any) (int64, error)
	ListOrderedWithoutApprover(ctx context.Context) ([]models.ReorderRecommendation, error)
	LatestAtRisk(ctx context.Context, minRisk int) ([]models.ReorderRecommendation, error)
	List(ctx context.Context, params listParams) ([]models.ReorderRecommendation, *pagination.Cursor, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a recommendation repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

type listParams struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	Status     *enums.RecommendationStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Cursor     *pagination.Cursor
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, rec *models.ReorderRecommendation) error {
	return r.DB(ctx).Create(rec).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ReorderRecommendation, error) {
	var rec models.ReorderRecommendation
	if err := r.DB(ctx).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *repository) HasOpenProposal(ctx context.Context, pair types.StockPair) (bool, error) {
	var count int64
	err := r.DB(ctx).
		Model(&models.ReorderRecommendation{}).
		Where("location_id = ? AND part_id = ? AND status = ?", pair.LocationID, pair.PartID, enums.RecommendationProposed).
		Count(&count).Error
	return count > 0, err
}

// TransitionStatus applies updates only while the row is still in status from.
// Callers treat zero affected rows as a lost race or a missing row.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from enums.RecommendationStatus, updates map[string]any) (int64, error) {
	result := r.DB(ctx).
		Model(&models.ReorderRecommendation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repository) ListOrderedWithoutApprover(ctx context.Context) ([]models.ReorderRecommendation, error) {
	var rows []models.ReorderRecommendation
	err := r.DB(ctx).
		Where("status = ? AND approved_by IS NULL", enums.RecommendationOrdered).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

// LatestAtRisk returns, per pair, the newest proposed or approved recommendation
// when its risk is at least minRisk.
func (r *repository) LatestAtRisk(ctx context.Context, minRisk int) ([]models.ReorderRecommendation, error) {
	open := []enums.RecommendationStatus{enums.RecommendationProposed, enums.RecommendationApproved}
	latest := r.DB(ctx).
		Model(&models.ReorderRecommendation{}).
		Select("location_id, part_id, MAX(created_at) AS created_at").
		Where("status IN ?", open).
		Group("location_id, part_id")

	var rows []models.ReorderRecommendation
	err := r.DB(ctx).
		Table("reorder_recommendations AS rr").
		Select("rr.*").
		Joins(`JOIN (?) AS latest
			ON latest.location_id = rr.location_id
			AND latest.part_id = rr.part_id
			AND latest.created_at = rr.created_at`, latest).
		Where("rr.status IN ? AND rr.stockout_risk_score >= ?", open, minRisk).
		Order("rr.location_id ASC, rr.part_id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.ReorderRecommendation, *pagination.Cursor, error) {
	query := r.DB(ctx).Model(&models.ReorderRecommendation{})
	if params.LocationID != nil {
		query = query.Where("location_id = ?", *params.LocationID)
	}
	if params.PartID != nil {
		query = query.Where("part_id = ?", *params.PartID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}
	return repo.Page(query, repo.Keyset{TimeColumn: "created_at"}, params.Cursor, params.Limit, func(rec models.ReorderRecommendation) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rec.CreatedAt, ID: rec.ID}
	})
}
