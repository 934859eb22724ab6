package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
)

const maxDLQErrorLen = 1024

// ErrNotRequeueable is returned for dead letters whose payload cannot be published as stored.
var ErrNotRequeueable = errors.New("dead letter is not requeueable")

// DLQRepository stores and replays dead-lettered outbox events.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := truncateMessage(*entry.ErrorMessage, maxDLQErrorLen)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// PruneBefore deletes up to limit dead letters that failed before cutoff.
func (r *DLQRepository) PruneBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	if limit <= 0 {
		return 0, errors.New("prune limit must be positive")
	}
	ids := tx.Model(&models.OutboxDLQ{}).Select("id").Where("failed_at < ?", cutoff).Order("failed_at").Limit(limit)
	res := tx.Where("id IN (?)", ids).Delete(&models.OutboxDLQ{})
	return res.RowsAffected, res.Error
}

func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var dlq models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).First(&dlq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dlq, nil
}

// List returns the newest dead letters, optionally for a single reason.
func (r *DLQRepository) List(ctx context.Context, reason enums.OutboxDLQErrorReason, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&models.OutboxDLQ{})
	if reason != "" {
		query = query.Where("error_reason = ?", reason)
	}
	var rows []models.OutboxDLQ
	err := query.Order("failed_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// Requeue hands a dead letter back to the publisher. The parked outbox row is
// reset to zero attempts; when retention already removed it, the stored
// payload is re-inserted under the original event id. The dead letter is
// deleted in the same transaction.
func (r *DLQRepository) Requeue(ctx context.Context, id uuid.UUID) (*models.OutboxEvent, error) {
	var revived models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.OutboxDLQ
		if err := tx.Where("id = ?", id).First(&entry).Error; err != nil {
			return err
		}
		if !entry.ErrorReason.Requeueable() {
			return fmt.Errorf("%w: %s", ErrNotRequeueable, entry.ErrorReason)
		}

		res := tx.Model(&models.OutboxEvent{}).
			Where("id = ? AND published_at IS NULL", entry.EventID).
			Updates(map[string]any{
				"attempt_count": 0,
				"last_error":    nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			row := models.OutboxEvent{
				ID:            entry.EventID,
				EventType:     entry.EventType,
				AggregateType: entry.AggregateType,
				AggregateID:   entry.AggregateID,
				Payload:       entry.Payload,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&models.OutboxDLQ{}, "id = ?", entry.ID).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", entry.EventID).First(&revived).Error
	})
	if err != nil {
		return nil, err
	}
	return &revived, nil
}

func truncateMessage(message string, limit int) string {
	if len(message) <= limit {
		return message
	}
	return message[:limit]
}
