package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
)

// MaxIngestBatch caps how many events one ingest call may carry.
const MaxIngestBatch = 500

// Service is the ingestion boundary for stock movement events.
type Service interface {
	Ingest(ctx context.Context, events []IngestEventInput) (*IngestResult, error)
	ListOutboundEvents(ctx context.Context, from, to time.Time) ([]models.StockMovementEvent, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// IngestEventInput is one upstream movement fact.
type IngestEventInput struct {
	LocationID     string          `json:"location_id" validate:"required,uuid"`
	PartID         string          `json:"part_id" validate:"required,uuid"`
	MovementType   string          `json:"movement_type" validate:"required,oneof=consume transfer_in transfer_out receive"`
	QuantityDelta  int64           `json:"quantity_delta" validate:"required"`
	OccurredAt     time.Time       `json:"occurred_at" validate:"required"`
	SourceType     string          `json:"source_type" validate:"required,max=64"`
	IdempotencyKey string          `json:"idempotency_key" validate:"required,max=255"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// IngestResult summarizes an ingest call. Duplicates are events whose
// idempotency key was already recorded, including repeats inside the batch.
type IngestResult struct {
	Received   int `json:"received"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

// ListParams filters the audit listing.
type ListParams struct {
	LocationID   *uuid.UUID
	PartID       *uuid.UUID
	MovementType *enums.MovementType
	From         *time.Time
	To           *time.Time
	Limit        int
	Cursor       string
}

// ListResult wraps a page of events.
type ListResult struct {
	Items  []models.StockMovementEvent `json:"items"`
	Cursor string                      `json:"cursor"`
}

// ServiceParams wires ledger dependencies.
type ServiceParams struct {
	Repo    Repository
	DB      txRunner
	Logger  *logger.Logger
	Metrics *metrics.PipelineMetrics
	Now     func() time.Time
}

type service struct {
	repo     Repository
	db       txRunner
	logg     *logger.Logger
	metrics  *metrics.PipelineMetrics
	validate *validator.Validate
	now      func() time.Time
}

// NewService validates dependencies and returns the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "ledger repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		db:       params.DB,
		logg:     params.Logger,
		metrics:  params.Metrics,
		validate: newValidator(),
		now:      now,
	}, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" {
			return f.Name
		}
		return tag
	})
	return v
}

// Ingest validates the whole batch before writing anything; one malformed
// event rejects the call. Accepted events are inserted in one transaction.
func (s *service) Ingest(ctx context.Context, inputs []IngestEventInput) (*IngestResult, error) {
	if len(inputs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one event is required")
	}
	if len(inputs) > MaxIngestBatch {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "too many events").
			WithDetails(map[string]any{"max": MaxIngestBatch, "received": len(inputs)})
	}

	rows := make([]models.StockMovementEvent, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	inBatchDuplicates := 0
	createdAt := s.now().UTC()
	for i, input := range inputs {
		row, err := s.toModel(i, input)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[row.IdempotencyKey]; dup {
			inBatchDuplicates++
			continue
		}
		seen[row.IdempotencyKey] = struct{}{}
		row.CreatedAt = createdAt
		rows = append(rows, row)
	}

	var inserted int64
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).InsertIgnoreDuplicates(ctx, rows)
		if err != nil {
			return err
		}
		inserted = n
		return nil
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert stock movement events")
	}

	result := &IngestResult{
		Received:   len(inputs),
		Inserted:   int(inserted),
		Duplicates: len(inputs) - int(inserted),
	}
	s.metrics.AddUnits(metrics.StageLedger, metrics.OutcomeProcessed, result.Inserted)
	s.metrics.AddUnits(metrics.StageLedger, metrics.OutcomeDuplicate, result.Duplicates)

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"received":            result.Received,
		"inserted":            result.Inserted,
		"duplicates":          result.Duplicates,
		"in_batch_duplicates": inBatchDuplicates,
	})
	s.logg.Info(logCtx, "stock movement events ingested")
	return result, nil
}

func (s *service) toModel(index int, input IngestEventInput) (models.StockMovementEvent, error) {
	input.SourceType = strings.TrimSpace(input.SourceType)
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if err := s.validate.Struct(input); err != nil {
		return models.StockMovementEvent{}, eventValidationError(index, err)
	}

	movementType, err := enums.ParseMovementType(input.MovementType)
	if err != nil {
		return models.StockMovementEvent{}, eventValidationError(index, err)
	}
	locationID, err := uuid.Parse(input.LocationID)
	if err != nil {
		return models.StockMovementEvent{}, eventValidationError(index, err)
	}
	partID, err := uuid.Parse(input.PartID)
	if err != nil {
		return models.StockMovementEvent{}, eventValidationError(index, err)
	}

	var payload datatypes.JSON
	if len(input.Payload) > 0 && string(input.Payload) != "null" {
		if !json.Valid(input.Payload) {
			return models.StockMovementEvent{}, eventValidationError(index, fmt.Errorf("payload must be valid json"))
		}
		payload = datatypes.JSON(input.Payload)
	}

	return models.StockMovementEvent{
		ID:             uuid.New(),
		LocationID:     locationID,
		PartID:         partID,
		MovementType:   movementType,
		QuantityDelta:  input.QuantityDelta,
		OccurredAt:     input.OccurredAt.UTC(),
		SourceType:     input.SourceType,
		IdempotencyKey: input.IdempotencyKey,
		Payload:        payload,
	}, nil
}

func eventValidationError(index int, err error) *pkgerrors.Error {
	details := map[string]any{"index": index}
	if errs, ok := err.(validator.ValidationErrors); ok {
		fields := map[string]string{}
		for _, fe := range errs {
			fields[fe.Field()] = fe.Tag()
		}
		details["fields"] = fields
	} else {
		details["error"] = err.Error()
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stock movement event").WithDetails(details)
}

func (s *service) ListOutboundEvents(ctx context.Context, from, to time.Time) ([]models.StockMovementEvent, error) {
	if to.Before(from) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "to must not be before from")
	}
	events, err := s.repo.ListOutbound(ctx, from.UTC(), to.UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list outbound events")
	}
	return events, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	query := listEventsParams{
		LocationID:   params.LocationID,
		PartID:       params.PartID,
		MovementType: params.MovementType,
		From:         params.From,
		To:           params.To,
		Limit:        params.Limit,
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
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stock movement events")
	}
	return &ListResult{Items: rows, Cursor: pagination.Next(next)}, nil
}
