package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type to a topic and names its payload shape.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is an outbox row decoded into its typed, validated payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

// NewNonRetryableError wraps err so the publisher dead-letters instead of retrying.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, is a NonRetryableError.
func IsNonRetryable(err error) bool {
	var target NonRetryableError
	return errors.As(err, &target)
}

func rejectf(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// EventRegistry resolves outbox rows for every event type the service emits.
type EventRegistry struct {
	byType map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry binds each event type to the topic of its aggregate.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[enums.OutboxAggregateType]string{
		enums.AggregateInventoryAlert:        cfg.AlertTopic,
		enums.AggregateReorderRecommendation: cfg.RecommendationTopic,
	}
	for aggregate, topic := range topics {
		if topic == "" {
			return nil, fmt.Errorf("topic for %s events is required", aggregate)
		}
	}

	reg := &EventRegistry{byType: make(map[enums.OutboxEventType]EventDescriptor, 3)}
	for _, d := range []EventDescriptor{
		{EventType: enums.EventInventoryAlertRaised, PayloadFactory: payloadOf[payloads.InventoryAlertRaisedEvent]()},
		{EventType: enums.EventRecommendationApproved, PayloadFactory: payloadOf[payloads.RecommendationDecisionEvent]()},
		{EventType: enums.EventRecommendationRejected, PayloadFactory: payloadOf[payloads.RecommendationDecisionEvent]()},
	} {
		d.AggregateType = d.EventType.Aggregate()
		d.Topic = topics[d.AggregateType]
		if !d.EventType.IsValid() || d.Topic == "" {
			return nil, fmt.Errorf("incomplete registration for %s", d.EventType)
		}
		reg.byType[d.EventType] = d
	}
	return reg, nil
}

// Resolve checks the row against its descriptor, then decodes and validates
// the payload. Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.byType[event.EventType]
	switch {
	case !ok:
		return nil, rejectf("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, rejectf("%s belongs to %s aggregates, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, rejectf("%s: missing aggregate_id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, rejectf("%s: %w", event.EventType, err)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, rejectf("decode %s payload: %w", event.EventType, err)
	}
	if err := payloads.Validate(payload); err != nil {
		return nil, rejectf("%s: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
