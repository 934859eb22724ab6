package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

// eventAggregateIndex keeps one row per (event type, aggregate).
const eventAggregateIndex = "ux_outbox_events_event_aggregate"

// ErrTxRequired is returned when an event is emitted outside a transaction.
var ErrTxRequired = errors.New("outbox: transaction required")

// DomainEvent is what a service hands to the outbox. AggregateType, Version and
// OccurredAt are filled in when left zero.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

// Emitter is the narrow surface domain services depend on.
type Emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error
}

// Service writes domain events into outbox_events in the caller's transaction.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event. The row id doubles as the envelope event id, so logs, the
// DLQ and the published message all carry the same identifier.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return ErrTxRequired
	}
	row, err := buildRow(event, uuid.New(), s.now().UTC())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("insert outbox event %s: %w", row.EventType, err)
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_id":       row.ID.String(),
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID.String(),
		})
		s.logg.Info(logCtx, "outbox event queued")
	}
	return nil
}

// EmitIfNotExists queues event unless one of the same type is already stored
// for the aggregate. A concurrent writer losing the unique index race is not an error.
func (s *Service) EmitIfNotExists(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return ErrTxRequired
	}
	if event.AggregateType == "" {
		event.AggregateType = event.EventType.Aggregate()
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil || exists {
		return err
	}
	err = s.Emit(ctx, tx, event)
	if dbpkg.IsUniqueViolation(err, eventAggregateIndex) {
		return nil
	}
	return err
}

func buildRow(event DomainEvent, id uuid.UUID, now time.Time) (models.OutboxEvent, error) {
	if event.AggregateType == "" {
		event.AggregateType = event.EventType.Aggregate()
	}
	switch {
	case !event.EventType.IsValid():
		return models.OutboxEvent{}, fmt.Errorf("unknown outbox event type %q", event.EventType)
	case event.EventType.Aggregate() != event.AggregateType:
		return models.OutboxEvent{}, fmt.Errorf("event %s belongs to %s, not %s",
			event.EventType, event.EventType.Aggregate(), event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return models.OutboxEvent{}, fmt.Errorf("event %s requires an aggregate id", event.EventType)
	case event.Data == nil:
		return models.OutboxEvent{}, fmt.Errorf("event %s requires data", event.EventType)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = now
	}
	version := event.Version
	if version == 0 {
		version = EnvelopeVersion
	}
	payload, err := json.Marshal(PayloadEnvelope{
		Version:    version,
		EventID:    id.String(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode %s envelope: %w", event.EventType, err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       json.RawMessage(payload),
	}, nil
}
