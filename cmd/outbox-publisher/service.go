package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox/registry"
	"github.com/angelmondragon/fieldstock-backend/pkg/tracing"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
	publishConcurrency    = 8

	stageOutbox = "outbox"
)

// Per-event outcomes, also used as metric labels.
const (
	outcomePublished    = "published"
	outcomeRetry        = "retry"
	outcomeDeadLettered = "dead_lettered"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.PipelineMetrics
}

// settings are the publisher tunables after defaults are applied.
type settings struct {
	batchSize      int
	maxAttempts    int
	pollInterval   time.Duration
	publishTimeout time.Duration
}

func settingsFrom(cfg *config.Config) settings {
	return settings{
		batchSize:      positiveOr(cfg.Outbox.BatchSize, defaultBatchSize),
		maxAttempts:    positiveOr(cfg.Outbox.MaxAttempts, defaultMaxAttempts),
		pollInterval:   time.Duration(positiveOr(cfg.Outbox.PollIntervalMS, defaultPollMs)) * time.Millisecond,
		publishTimeout: positiveOr(cfg.PubSub.PublishTimeout, defaultPublishTimeout),
	}
}

func positiveOr[T int | time.Duration](v, fallback T) T {
	if v > 0 {
		return v
	}
	return fallback
}

type Service struct {
	settings
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	registry         registryResolver
	dlq              dlqRepository
	publisherFactory publisherFactory
	metrics          *metrics.PipelineMetrics
}

// NewService reports every missing dependency at once.
func NewService(params ServiceParams) (*Service, error) {
	var errs error
	for name, missing := range map[string]bool{
		"config":            params.Config == nil,
		"logger":            params.Logger == nil,
		"database client":   params.DB == nil,
		"pubsub client":     params.PubSub == nil,
		"outbox repository": params.Repository == nil,
		"event registry":    params.Registry == nil,
		"dlq repository":    params.DLQRepository == nil,
	} {
		if missing {
			errs = multierr.Append(errs, fmt.Errorf("%s is required", name))
		}
	}
	if errs != nil {
		return nil, errs
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = cachedPublishers(params.PubSub)
	}
	return &Service{
		settings:         settingsFrom(params.Config),
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		dlq:              params.DLQRepository,
		publisherFactory: factory,
		metrics:          params.Metrics,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", dep.name), "readiness check failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// Run polls until ctx is done. A full batch is followed immediately by the
// next one; an empty poll waits one interval; failures back off exponentially.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	delay := pollDelay{interval: s.pollInterval, max: maxBackoff}
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "consecutive_failures", delay.failures+1), "outbox publisher batch error", err)
		}
		if err := sleepCtx(ctx, delay.next(processed, err)); err != nil {
			return err
		}
	}
}

// pollDelay picks the wait before the next poll.
type pollDelay struct {
	interval time.Duration
	max      time.Duration
	failures int
}

func (p *pollDelay) next(processed bool, err error) time.Duration {
	if err != nil {
		p.failures++
		backoff := p.interval << min(p.failures, 16)
		if backoff <= 0 || backoff > p.max {
			backoff = p.max
		}
		return withJitter(backoff)
	}
	p.failures = 0
	if processed {
		return 0
	}
	return withJitter(p.interval)
}

// pendingPublish is one resolved event and, after the publish phase, its result.
type pendingPublish struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	err      error
}

// processBatch claims a batch, publishes it concurrently and records each outcome
// inside the claiming transaction. It reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	ctx, span := tracing.Tracer().Start(ctx, "outbox.batch")
	processed := false
	counts := map[string]int{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		processed = true
		span.SetAttributes(attribute.Int("outbox.batch_size", len(events)))

		pending := make([]*pendingPublish, 0, len(events))
		for _, event := range events {
			resolved, err := s.registry.Resolve(event)
			if err != nil {
				if markErr := s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonInvalidPayload, err, "", nil); markErr != nil {
					return markErr
				}
				counts[outcomeDeadLettered]++
				continue
			}
			pending = append(pending, &pendingPublish{event: event, resolved: resolved})
		}

		s.publishAll(ctx, pending)

		for _, p := range pending {
			outcome, err := s.settle(ctx, tx, p)
			if err != nil {
				return err
			}
			counts[outcome]++
		}
		return nil
	})
	if processed && err == nil {
		for outcome, n := range counts {
			s.metrics.AddUnits(stageOutbox, outcome, n)
		}
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"published":     counts[outcomePublished],
			"retried":       counts[outcomeRetry],
			"dead_lettered": counts[outcomeDeadLettered],
		}), "outbox batch processed")
	}
	tracing.End(span, err)
	return processed, err
}

// publishAll sends every pending event with bounded concurrency. Failures are kept
// on the entry so one bad topic does not cancel the rest of the batch.
func (s *Service) publishAll(ctx context.Context, pending []*pendingPublish) {
	var g errgroup.Group
	g.SetLimit(publishConcurrency)
	for _, p := range pending {
		g.Go(func() error {
			p.err = s.publishResolved(ctx, p.event, p.resolved)
			return nil
		})
	}
	_ = g.Wait()
}

// settle records the publish result of one event in tx and returns its outcome.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, p *pendingPublish) (string, error) {
	event, topic := p.event, p.resolved.Descriptor.Topic
	fields := s.eventFields(event, p.resolved.Envelope, topic)

	if p.err == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return outcomePublished, nil
	}

	if registry.IsNonRetryable(p.err) {
		if err := s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, p.err, topic, fields); err != nil {
			return "", err
		}
		return outcomeDeadLettered, nil
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		terminalErr := fmt.Errorf("max publish attempts reached: %w", p.err)
		if err := s.handleTerminal(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, terminalErr, topic, fields); err != nil {
			return "", err
		}
		return outcomeDeadLettered, nil
	}

	logCtx := s.logg.WithError(s.logg.WithFields(ctx, fields), p.err)
	s.logg.Warn(logCtx, "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, p.err); err != nil {
		return "", fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

func (s *Service) handleTerminal(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, err error, topic string, fields map[string]any) error {
	if fields == nil {
		fields = s.eventFields(event, outbox.PayloadEnvelope{}, topic)
	}
	fields["error_reason"] = reason
	ctxWithFields := s.logg.WithFields(ctx, fields)
	ctxWithFields = s.logg.WithError(ctxWithFields, err)
	s.logg.Warn(ctxWithFields, "outbox event will not be retried")

	dlqEntry := models.OutboxDLQ{
		ID:            uuid.New(),
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  dlqErrorMessage(err),
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if dlqErr := s.dlq.InsertTx(tx, dlqEntry); dlqErr != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, dlqErr)
	}
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

func dlqErrorMessage(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	return &msg
}

func (s *Service) publishResolved(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFactory(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	// subscribers continue the emitting trace from the message attributes
	otel.GetTextMapPropagator().Inject(ctx, propagation.MapCarrier(msg.Attributes))

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		return err
	}
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     s.batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
		fields["occurred_at"] = envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

// cachedPublishers reuses one publisher per topic for the life of the process.
func cachedPublishers(client pubSubClient) publisherFactory {
	var mu sync.Mutex
	cache := map[string]publisher{}
	return func(topic string) publisher {
		mu.Lock()
		defer mu.Unlock()
		if pub, ok := cache[topic]; ok {
			return pub
		}
		raw := client.Publisher(topic)
		if raw == nil {
			return nil
		}
		pub := newGCPPubPublisher(raw)
		cache[topic] = pub
		return pub
	}
}

func newGCPPubPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
