package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/metrics"
	"github.com/angelmondragon/fieldstock-backend/pkg/tracing"
)

const (
	defaultInterval    = 24 * time.Hour
	lockReleaseTimeout = 5 * time.Second
)

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs the pipeline jobs in registration order on a fixed cadence.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.RunOnce(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

// CycleReport lists job outcomes for one cycle.
type CycleReport struct {
	Skipped   bool
	Succeeded []string
	Failed    []string
	JobErrors error
}

// RunOnce runs a single locked cycle. A failing job never stops later jobs; job
// failures are collected in the report and only lock errors are returned.
func (s *Service) RunOnce(ctx context.Context) (*CycleReport, error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another pipeline instance holds the lock; skipping this cycle")
		s.metrics.IncCycleSkipped()
		return &CycleReport{Skipped: true}, nil
	}
	defer func() {
		// release even when the cycle was canceled
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lockReleaseTimeout)
		defer cancel()
		switch relErr := s.lock.Release(relCtx); {
		case errors.Is(relErr, ErrLockLost):
			s.logg.Warn(ctx, "pipeline lock expired before the cycle finished")
		case relErr != nil:
			s.logg.Error(ctx, "failed to release cron lock", relErr)
		}
	}()

	report := &CycleReport{}
	s.logg.Info(ctx, "pipeline cycle starting")
	for _, job := range s.registry.Jobs() {
		if ctx.Err() != nil {
			report.JobErrors = multierr.Append(report.JobErrors, ctx.Err())
			break
		}
		if err := s.runJob(ctx, job); err != nil {
			report.Failed = append(report.Failed, job.Name())
			report.JobErrors = multierr.Append(report.JobErrors, fmt.Errorf("%s: %w", job.Name(), err))
			continue
		}
		report.Succeeded = append(report.Succeeded, job.Name())
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"succeeded": len(report.Succeeded),
		"failed":    len(report.Failed),
	})
	s.logg.Info(logCtx, "pipeline cycle complete")
	return report, nil
}

func (s *Service) runJob(ctx context.Context, job Job) (err error) {
	ctx, span := tracing.Tracer().Start(ctx, "cron."+job.Name(),
		trace.WithAttributes(attribute.String("cron.job", job.Name())))
	defer func() { tracing.End(span, err) }()

	jobCtx := s.logg.WithJob(ctx, job.Name())
	jobCtx = s.logg.WithField(jobCtx, "event", "cron.job")
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err = job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.ObserveRun(job.Name(), duration, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		jobCtx = s.logg.WithField(jobCtx, "transient", pkgerrors.IsTransientDB(err))
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}

// Restrict limits later cycles to the named jobs.
func (s *Service) Restrict(names ...string) error {
	subset, err := s.registry.Only(names...)
	if err != nil {
		return err
	}
	s.registry = subset
	return nil
}

// JobNames lists the scheduled jobs in execution order.
func (s *Service) JobNames() []string {
	return s.registry.Names()
}
