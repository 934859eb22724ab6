package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	dlqRetentionDays    = 90
	outboxMinAttempts   = 10
	pruneBatchSize      = 5000
	// bounds a single run; the next run resumes where this one stopped
	maxPruneChunks = 200
)

// OutboxRetentionJobParams configures pruning of published outbox rows and old
// dead letters.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	DB           txRunner
	Repository   outboxRetentionRepo
	DLQ          dlqRetentionRepo
	Retention    int
	DLQRetention int
	MinAttempts  int
	BatchSize    int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	PruneBefore(tx *gorm.DB, cutoff time.Time, minAttemptCount, limit int) (int64, error)
}

type dlqRetentionRepo interface {
	PruneBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error)
}

// NewOutboxRetentionJob deletes events published before the retention cutoff, plus
// unpublished events that exhausted MinAttempts before it. When a DLQ repository is
// set, dead letters older than DLQRetention days are removed too. Rows go in chunks
// of BatchSize, one transaction per chunk.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		dlq:          params.DLQ,
		retention:    positiveOr(params.Retention, outboxRetentionDays),
		dlqRetention: positiveOr(params.DLQRetention, dlqRetentionDays),
		minAttempts:  positiveOr(params.MinAttempts, outboxMinAttempts),
		batchSize:    positiveOr(params.BatchSize, pruneBatchSize),
		now:          time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxRetentionRepo
	dlq          dlqRetentionRepo
	retention    int
	dlqRetention int
	minAttempts  int
	batchSize    int
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return JobOutboxRetention }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-days(j.retention))
	deleted, err := j.prune(ctx, func(tx *gorm.DB) (int64, error) {
		return j.repo.PruneBefore(tx, cutoff, j.minAttempts, j.batchSize)
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	fields := map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"min_attempts":   j.minAttempts,
		"rows_deleted":   deleted,
	}

	if j.dlq != nil {
		dlqCutoff := now.Add(-days(j.dlqRetention))
		dlqDeleted, err := j.prune(ctx, func(tx *gorm.DB) (int64, error) {
			return j.dlq.PruneBefore(tx, dlqCutoff, j.batchSize)
		})
		if err != nil {
			return fmt.Errorf("outbox dlq retention: %w", err)
		}
		fields["dlq_cutoff"] = dlqCutoff
		fields["dlq_rows_deleted"] = dlqDeleted
	}

	j.logg.Info(j.logg.WithFields(ctx, fields), "outbox retention cleanup complete")
	return nil
}

// prune repeats chunk until it deletes less than a full batch.
func (j *outboxRetentionJob) prune(ctx context.Context, chunk func(tx *gorm.DB) (int64, error)) (int64, error) {
	var total int64
	for i := 0; i < maxPruneChunks; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		var rows int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			rows, err = chunk(tx)
			return err
		})
		if err != nil {
			return total, err
		}
		total += rows
		if rows < int64(j.batchSize) {
			break
		}
	}
	return total, nil
}

func days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
