package recommendations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

// Service covers recommendation generation and the human approval workflow.
type Service interface {
	Generate(ctx context.Context, params GenerateParams) (*GenerateResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ReorderRecommendation, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
	Approve(ctx context.Context, input ApproveInput) (*models.ReorderRecommendation, error)
	Reject(ctx context.Context, input RejectInput) (*models.ReorderRecommendation, error)
	MarkOrdered(ctx context.Context, id uuid.UUID, actor types.Actor) (*models.ReorderRecommendation, error)
	AuditGovernance(ctx context.Context) (*AuditResult, error)
}

// SnapshotReader returns the current forecast snapshots.
type SnapshotReader interface {
	ListCurrent(ctx context.Context, filter forecasts.CurrentFilter) ([]models.ForecastSnapshot, error)
}

// StockSource reports available quantity for a pair.
type StockSource interface {
	GetAvailable(ctx context.Context, locationID, partID uuid.UUID) (int64, error)
}

// DealerSource lists dealers able to supply a pair.
type DealerSource interface {
	DealerCandidates(ctx context.Context, locationID, partID uuid.UUID) ([]uuid.UUID, error)
}

// TrustSource scores dealer reliability on 0..100.
type TrustSource interface {
	DealerTrust(ctx context.Context, dealerIDs []uuid.UUID) (map[uuid.UUID]int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ListParams filters recommendations.
type ListParams struct {
	LocationID *uuid.UUID
	PartID     *uuid.UUID
	Status     *enums.RecommendationStatus
	From       *time.Time
	To         *time.Time
	Limit      int
	Cursor     string
}

// ListResult wraps a page of recommendations.
type ListResult struct {
	Items  []models.ReorderRecommendation `json:"items"`
	Cursor string                         `json:"cursor"`
}

// ServiceParams wires recommendation dependencies.
type ServiceParams struct {
	Repo      Repository
	Snapshots SnapshotReader
	Stock     StockSource
	Dealers   DealerSource
	Trust     TrustSource
	DB        txRunner
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	Metrics   *metrics.PipelineMetrics
	Config    config.PipelineConfig
	Now       func() time.Time
}

type service struct {
	repo      Repository
	snapshots SnapshotReader
	stock     StockSource
	dealers   DealerSource
	trust     TrustSource
	db        txRunner
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.PipelineMetrics
	cfg       config.PipelineConfig
	now       func() time.Time
}

// NewService validates dependencies and returns the recommendation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "recommendation repository required")
	}
	if params.Snapshots == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "snapshot reader required")
	}
	if params.Stock == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "stock source required")
	}
	if params.Dealers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dealer source required")
	}
	if params.Trust == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "trust source required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		snapshots: params.Snapshots,
		stock:     params.Stock,
		dealers:   params.Dealers,
		trust:     params.Trust,
		db:        params.DB,
		outbox:    params.Outbox,
		logg:      params.Logger,
		metrics:   params.Metrics,
		cfg:       params.Config,
		now:       now,
	}, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	if params.From != nil && params.To != nil && params.To.Before(*params.From) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	query := listParams{
		LocationID: params.LocationID,
		PartID:     params.PartID,
		Status:     params.Status,
		From:       params.From,
		To:         params.To,
		Limit:      params.Limit,
	}
	if params.Cursor != "" {
		cursor, err := pagination.ParseCursor(params.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}
	rows, next, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list recommendations")
	}
	return &ListResult{Items: rows, Cursor: pagination.Next(next)}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.ReorderRecommendation, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recommendation id required")
	}
	rec, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.FromStore(err, "recommendation")
	}
	return rec, nil
}
