package recommendations

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

var (
	planner    = types.Actor{ID: "planner-1", Role: "inventory_planner"}
	otherActor = types.Actor{ID: "planner-2", Role: "inventory_planner"}
)

func seedRecommendation(t *testing.T, conn *gorm.DB, status enums.RecommendationStatus, approvedBy *string) models.ReorderRecommendation {
	t.Helper()
	if approvedBy == nil && (status == enums.RecommendationApproved || status == enums.RecommendationOrdered) {
		// rows like this only predate the CHECK constraint, so seed them past it
		require.NoError(t, conn.Exec("PRAGMA ignore_check_constraints = ON").Error)
		defer func() { require.NoError(t, conn.Exec("PRAGMA ignore_check_constraints = OFF").Error) }()
	}
	evidence := types.Evidence{
		Forecast: types.ForecastRef{
			SnapshotID:      uuid.New(),
			WindowDays:      7,
			PredictedDemand: decimal.NewFromInt(10),
			ConfidenceScore: 70,
			PrimaryReason:   "stable demand averaging 1.43 units/day over the last 7 days",
			ComputedAt:      testNow,
		},
		StockoutRisk: 95,
		LeadTimeDays: 7,
		Sizing:       types.SizingStandard,
		ReviewFlags:  []string{},
		Dealer:       types.DealerSelection{Outcome: types.DealerBestAvailable, Floor: 70},
		GeneratedAt:  testNow,
	}
	rec := models.ReorderRecommendation{
		ID:                uuid.New(),
		LocationID:        uuid.New(),
		PartID:            uuid.New(),
		RecommendedQty:    12,
		StockoutRiskScore: 95,
		Evidence:          datatypes.NewJSONType(evidence),
		ValueScore:        datatypes.NewJSONType(valueScore(95, 70, nil)),
		Status:            status,
		ApprovedBy:        approvedBy,
		CreatedAt:         testNow.Add(-time.Hour),
		UpdatedAt:         testNow.Add(-time.Hour),
	}
	require.NoError(t, conn.Create(&rec).Error)
	return rec
}

func reload(t *testing.T, conn *gorm.DB, id uuid.UUID) models.ReorderRecommendation {
	t.Helper()
	var rec models.ReorderRecommendation
	require.NoError(t, conn.Where("id = ?", id).First(&rec).Error)
	return rec
}

func outboxRows(t *testing.T, conn *gorm.DB) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, conn.Order("created_at").Find(&rows).Error)
	return rows
}

func TestApproveRecordsApproverAndQueuesEvent(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})
	rec := seedRecommendation(t, conn, enums.RecommendationProposed, nil)

	updated, err := svc.Approve(context.Background(), ApproveInput{RecommendationID: rec.ID, Actor: planner})
	require.NoError(t, err)
	assert.Equal(t, enums.RecommendationApproved, updated.Status)

	stored := reload(t, conn, rec.ID)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, planner.ID, *stored.ApprovedBy)
	require.NotNil(t, stored.ApprovedAt)
	assert.True(t, stored.ApprovedAt.Equal(testNow))
	require.NotNil(t, stored.DecidedByRole)
	assert.Equal(t, planner.Role, *stored.DecidedByRole)

	events := outboxRows(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventRecommendationApproved, events[0].EventType)
	assert.Equal(t, rec.ID, events[0].AggregateID)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, planner.ID, envelope.Actor.ActorID)
	var payload payloads.RecommendationDecisionEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &payload))
	assert.Equal(t, enums.RecommendationApproved, payload.Status)
	assert.EqualValues(t, 12, payload.RecommendedQty)
}

func TestApproveAlreadyApprovedConflicts(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})
	rec := seedRecommendation(t, conn, enums.RecommendationProposed, nil)
	ctx := context.Background()

	_, err := svc.Approve(ctx, ApproveInput{RecommendationID: rec.ID, Actor: otherActor})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, ApproveInput{RecommendationID: rec.ID, Actor: planner})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	stored := reload(t, conn, rec.ID)
	assert.Equal(t, enums.RecommendationApproved, stored.Status)
	require.NotNil(t, stored.ApprovedBy)
	assert.Equal(t, otherActor.ID, *stored.ApprovedBy, "the losing approval must not overwrite the winner")
	assert.Len(t, outboxRows(t, conn), 1)
}

func TestConcurrentApprovalsHaveOneWinner(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})
	rec := seedRecommendation(t, conn, enums.RecommendationProposed, nil)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			actor := types.Actor{ID: uuid.NewString()}
			_, err := svc.Approve(context.Background(), ApproveInput{RecommendationID: rec.ID, Actor: actor})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
	assert.Equal(t, 3, conflicts)
	assert.Len(t, outboxRows(t, conn), 1)
}

func TestRejectRequiresNotes(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})
	rec := seedRecommendation(t, conn, enums.RecommendationProposed, nil)

	for _, notes := range []string{"", "   \t"} {
		_, err := svc.Reject(context.Background(), RejectInput{RecommendationID: rec.ID, Actor: planner, Notes: notes})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	}

	stored := reload(t, conn, rec.ID)
	assert.Equal(t, enums.RecommendationProposed, stored.Status)
	assert.Nil(t, stored.Notes)
	assert.Empty(t, outboxRows(t, conn))
}

func TestRejectStoresNotes(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})
	rec := seedRecommendation(t, conn, enums.RecommendationProposed, nil)

	updated, err := svc.Reject(context.Background(), RejectInput{
		RecommendationID: rec.ID,
		Actor:            planner,
		Notes:            "  supplier discontinued this part  ",
	})
	require.NoError(t, err)
	assert.Equal(t, enums.RecommendationRejected, updated.Status)
	require.NotNil(t, updated.Notes)
	assert.Equal(t, "supplier discontinued this part", *updated.Notes)
	require.NotNil(t, updated.RejectedBy)
	assert.Equal(t, planner.ID, *updated.RejectedBy)
	assert.Nil(t, updated.ApprovedBy)

	events := outboxRows(t, conn)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventRecommendationRejected, events[0].EventType)

	_, err = svc.Approve(context.Background(), ApproveInput{RecommendationID: rec.ID, Actor: otherActor})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
}

func TestDecisionOnMissingRecommendation(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})

	_, err := svc.Approve(context.Background(), ApproveInput{RecommendationID: uuid.New(), Actor: planner})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Approve(context.Background(), ApproveInput{RecommendationID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "actor id is required")

	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkOrderedFromApproved(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})
	approver := planner.ID
	rec := seedRecommendation(t, conn, enums.RecommendationApproved, &approver)

	updated, err := svc.MarkOrdered(context.Background(), rec.ID, types.Actor{ID: "purchasing"})
	require.NoError(t, err)
	assert.Equal(t, enums.RecommendationOrdered, updated.Status)
	require.NotNil(t, updated.OrderedAt)

	_, err = svc.MarkOrdered(context.Background(), rec.ID, types.Actor{ID: "purchasing"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestMarkOrderedRejectsIllegalStates(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})

	proposed := seedRecommendation(t, conn, enums.RecommendationProposed, nil)
	_, err := svc.MarkOrdered(context.Background(), proposed.ID, types.Actor{ID: "purchasing"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, enums.RecommendationProposed, reload(t, conn, proposed.ID).Status)

	unapproved := seedRecommendation(t, conn, enums.RecommendationApproved, nil)
	_, err = svc.MarkOrdered(context.Background(), unapproved.ID, types.Actor{ID: "purchasing"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGovernance))
	assert.Equal(t, enums.RecommendationApproved, reload(t, conn, unapproved.ID).Status)
}

func TestAuditGovernance(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})
	approver := planner.ID
	seedRecommendation(t, conn, enums.RecommendationOrdered, &approver)

	result, err := svc.AuditGovernance(context.Background())
	require.NoError(t, err)
	assert.Empty(t, result.Violations)

	bad := seedRecommendation(t, conn, enums.RecommendationOrdered, nil)
	result, err = svc.AuditGovernance(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGovernance))
	assert.Equal(t, []uuid.UUID{bad.ID}, result.Violations)
}

func TestListFiltersByStatus(t *testing.T) {
	conn := newTestDB(t)
	svc := newRecommendationService(t, conn, collaborators{})
	for i := 0; i < 3; i++ {
		seedRecommendation(t, conn, enums.RecommendationProposed, nil)
	}
	approver := planner.ID
	seedRecommendation(t, conn, enums.RecommendationApproved, &approver)

	status := enums.RecommendationProposed
	page, err := svc.List(context.Background(), ListParams{Status: &status, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.Cursor)

	next, err := svc.List(context.Background(), ListParams{Status: &status, Limit: 2, Cursor: page.Cursor})
	require.NoError(t, err)
	require.Len(t, next.Items, 1)
	assert.Empty(t, next.Cursor)

	bogus := enums.RecommendationStatus("cancelled")
	_, err = svc.List(context.Background(), ListParams{Status: &bogus})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestRepositoryCannotOrderWithoutApprover(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	rec := seedRecommendation(t, conn, enums.RecommendationProposed, nil)

	_, err := repo.TransitionStatus(context.Background(), rec.ID, enums.RecommendationProposed, map[string]any{
		"status":     enums.RecommendationOrdered,
		"ordered_at": testNow,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ck_reorder_recommendations_approved_by")
	assert.Equal(t, enums.RecommendationProposed, reload(t, conn, rec.ID).Status)
}
