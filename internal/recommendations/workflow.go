package recommendations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

const (
	transitionApprove     = "approve"
	transitionReject      = "reject"
	transitionMarkOrdered = "mark_ordered"
)

// ApproveInput identifies the recommendation and the approving actor.
type ApproveInput struct {
	RecommendationID uuid.UUID
	Actor            types.Actor
}

// RejectInput requires non-empty notes.
type RejectInput struct {
	RecommendationID uuid.UUID
	Actor            types.Actor
	Notes            string
}

// AuditResult lists ordered recommendations that were never approved.
type AuditResult struct {
	Checked    time.Time   `json:"checked_at"`
	Violations []uuid.UUID `json:"violations"`
}

func (s *service) Approve(ctx context.Context, input ApproveInput) (*models.ReorderRecommendation, error) {
	if err := validateDecision(input.RecommendationID, input.Actor); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	updates := map[string]any{
		"status":          enums.RecommendationApproved,
		"approved_by":     input.Actor.ID,
		"approved_at":     now,
		"decided_by_role": input.Actor.RolePtr(),
		"updated_at":      now,
	}
	return s.applyDecision(ctx, transitionApprove, input.RecommendationID, input.Actor, updates, enums.EventRecommendationApproved, nil, now)
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*models.ReorderRecommendation, error) {
	if err := validateDecision(input.RecommendationID, input.Actor); err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(input.Notes)
	if notes == "" {
		s.metrics.IncTransition(transitionReject, "validation")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notes are required to reject a recommendation")
	}
	now := s.now().UTC()
	updates := map[string]any{
		"status":          enums.RecommendationRejected,
		"rejected_by":     input.Actor.ID,
		"rejected_at":     now,
		"decided_by_role": input.Actor.RolePtr(),
		"notes":           notes,
		"updated_at":      now,
	}
	return s.applyDecision(ctx, transitionReject, input.RecommendationID, input.Actor, updates, enums.EventRecommendationRejected, &notes, now)
}

func validateDecision(id uuid.UUID, actor types.Actor) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "recommendation id required")
	}
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor id required")
	}
	return nil
}

// applyDecision moves a proposed recommendation to its decided status and queues the
// decision event in the same transaction.
func (s *service) applyDecision(
	ctx context.Context,
	transition string,
	id uuid.UUID,
	actor types.Actor,
	updates map[string]any,
	eventType enums.OutboxEventType,
	notes *string,
	decidedAt time.Time,
) (*models.ReorderRecommendation, error) {
	var updated *models.ReorderRecommendation
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.TransitionStatus(ctx, id, enums.RecommendationProposed, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update recommendation status")
		}
		if affected == 0 {
			return s.lostTransition(ctx, repo, id)
		}

		rec, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.FromStore(err, "recommendation")
		}
		updated = rec

		event := outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateReorderRecommendation,
			AggregateID:   rec.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{ActorID: actor.ID, Role: actor.Role},
			OccurredAt:    decidedAt,
			Data: payloads.RecommendationDecisionEvent{
				RecommendationID:  rec.ID,
				LocationID:        rec.LocationID,
				PartID:            rec.PartID,
				Status:            rec.Status,
				RecommendedQty:    rec.RecommendedQty,
				SuggestedDealerID: rec.SuggestedDealerID,
				DecidedBy:         actor.ID,
				DecidedAt:         decidedAt,
				Notes:             notes,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue decision event")
		}
		return nil
	})
	if err != nil {
		s.metrics.IncTransition(transition, outcomeFor(err))
		return nil, err
	}
	s.metrics.IncTransition(transition, "success")

	logCtx := s.logg.WithActorID(ctx, actor.ID)
	logCtx = s.logg.WithActorRole(logCtx, actor.Role)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"recommendation_id": id.String(),
		"status":            updated.Status,
	})
	s.logg.Info(logCtx, "recommendation decided")
	return updated, nil
}

// lostTransition explains zero affected rows: the row is missing or another
// actor already moved it.
func (s *service) lostTransition(ctx context.Context, repo Repository, id uuid.UUID) error {
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return pkgerrors.FromStore(err, "recommendation")
	}
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("recommendation is already %s", current.Status)).
		WithDetails(map[string]any{"status": current.Status})
}

// MarkOrdered is the purchasing hook. Only approved recommendations with a
// recorded approver may become ordered.
func (s *service) MarkOrdered(ctx context.Context, id uuid.UUID, actor types.Actor) (*models.ReorderRecommendation, error) {
	if err := validateDecision(id, actor); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var updated *models.ReorderRecommendation
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rec, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.FromStore(err, "recommendation")
		}
		if rec.Status == enums.RecommendationApproved && (rec.ApprovedBy == nil || strings.TrimSpace(*rec.ApprovedBy) == "") {
			govErr := pkgerrors.New(pkgerrors.CodeGovernance, "approved recommendation has no recorded approver")
			logCtx := s.logg.WithFields(ctx, map[string]any{"recommendation_id": id.String()})
			s.logg.Error(logCtx, "refusing to order recommendation without approver", govErr)
			return govErr
		}
		if !rec.Status.CanTransitionTo(enums.RecommendationOrdered) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot order a %s recommendation", rec.Status)).
				WithDetails(map[string]any{"status": rec.Status})
		}

		affected, err := repo.TransitionStatus(ctx, id, enums.RecommendationApproved, map[string]any{
			"status":     enums.RecommendationOrdered,
			"ordered_at": now,
			"updated_at": now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update recommendation status")
		}
		if affected == 0 {
			return s.lostTransition(ctx, repo, id)
		}
		updated, err = repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.FromStore(err, "recommendation")
		}
		return nil
	})
	if err != nil {
		s.metrics.IncTransition(transitionMarkOrdered, outcomeFor(err))
		return nil, err
	}
	s.metrics.IncTransition(transitionMarkOrdered, "success")
	logCtx := s.logg.WithActorID(ctx, actor.ID)
	s.logg.Info(s.logg.WithField(logCtx, "recommendation_id", id.String()), "recommendation marked ordered")
	return updated, nil
}

// AuditGovernance fails when any ordered recommendation lacks an approver.
func (s *service) AuditGovernance(ctx context.Context) (*AuditResult, error) {
	rows, err := s.repo.ListOrderedWithoutApprover(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "audit ordered recommendations")
	}
	result := &AuditResult{Checked: s.now().UTC(), Violations: make([]uuid.UUID, 0, len(rows))}
	for _, row := range rows {
		result.Violations = append(result.Violations, row.ID)
		logCtx := s.logg.WithPair(ctx, row.LocationID.String(), row.PartID.String())
		logCtx = s.logg.WithField(logCtx, "recommendation_id", row.ID.String())
		s.logg.Error(logCtx, "ordered recommendation has no approver",
			pkgerrors.New(pkgerrors.CodeGovernance, "ordered without approval"))
	}
	if len(result.Violations) > 0 {
		return result, pkgerrors.New(pkgerrors.CodeGovernance,
			fmt.Sprintf("%d ordered recommendations have no approver", len(result.Violations))).
			WithDetails(map[string]any{"recommendation_ids": result.Violations})
	}
	return result, nil
}

func outcomeFor(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return strings.ToLower(string(typed.Code()))
	}
	return "error"
}
