package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/internal/recommendations"
	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	"github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/migrate"
	"github.com/angelmondragon/fieldstock-backend/pkg/outbox"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

var testNow = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

var operator = types.Actor{ID: "ops-17", Role: "inventory_manager"}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, migrate.ApplySQLiteSchema(conn))
	return conn
}

type fakeStock struct {
	available map[types.StockPair]int64
	err       error
}

func (f fakeStock) GetAvailable(ctx context.Context, locationID, partID uuid.UUID) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.available[types.StockPair{LocationID: locationID, PartID: partID}], nil
}

func newAlertService(t *testing.T, conn *gorm.DB, stock fakeStock) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:            NewRepository(conn),
		Recommendations: recommendations.NewRepository(conn),
		Snapshots:       forecasts.NewRepository(conn),
		Stock:           stock,
		DB:              db.NewFromConn(conn),
		Outbox:          outbox.NewService(outbox.NewRepository(conn), nil),
		Logger:          logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Config:          config.PipelineConfig{AlertRiskThreshold: 90, LeadTimeDays: 7, ForecastMaxAge: 48 * time.Hour},
		Now:             func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return svc
}

func newPair() types.StockPair {
	return types.StockPair{LocationID: uuid.New(), PartID: uuid.New()}
}

func seedRecommendation(t *testing.T, conn *gorm.DB, pair types.StockPair, status enums.RecommendationStatus, risk int) models.ReorderRecommendation {
	t.Helper()
	rec := models.ReorderRecommendation{
		ID:                uuid.New(),
		LocationID:        pair.LocationID,
		PartID:            pair.PartID,
		RecommendedQty:    10,
		StockoutRiskScore: risk,
		Evidence:          datatypes.NewJSONType(types.Evidence{StockoutRisk: risk, LeadTimeDays: 7, Sizing: types.SizingStandard}),
		ValueScore:        datatypes.NewJSONType(types.ValueScore{Urgency: risk}),
		Status:            status,
		CreatedAt:         testNow.Add(-time.Hour),
		UpdatedAt:         testNow.Add(-time.Hour),
	}
	decider := "planner-1"
	switch status {
	case enums.RecommendationApproved, enums.RecommendationOrdered:
		rec.ApprovedBy = &decider
	case enums.RecommendationRejected:
		notes := "covered by transfer"
		rec.RejectedBy, rec.Notes = &decider, &notes
	}
	require.NoError(t, conn.Create(&rec).Error)
	return rec
}

func seedSnapshot(t *testing.T, conn *gorm.DB, pair types.StockPair, window int, predicted int64) models.ForecastSnapshot {
	t.Helper()
	snap := models.ForecastSnapshot{
		ID:              uuid.New(),
		LocationID:      pair.LocationID,
		PartID:          pair.PartID,
		WindowDays:      window,
		PredictedDemand: decimal.NewFromInt(predicted),
		ConfidenceScore: 80,
		PrimaryReason:   fmt.Sprintf("stable demand over the last %d days", window),
		Drivers:         datatypes.NewJSONType(types.ForecastDrivers{Method: forecasts.MethodDampedTrend, WindowDays: window}),
		HistoryDays:     30,
		ComputedAt:      testNow.Add(-2 * time.Hour),
	}
	require.NoError(t, conn.Create(&snap).Error)
	return snap
}

func loadAlerts(t *testing.T, conn *gorm.DB) []models.InventoryAlert {
	t.Helper()
	var rows []models.InventoryAlert
	require.NoError(t, conn.Order("created_at, id").Find(&rows).Error)
	return rows
}

func TestScanRaisesAlertFromOpenRecommendation(t *testing.T) {
	conn := newTestDB(t)
	pair := newPair()
	rec := seedRecommendation(t, conn, pair, enums.RecommendationProposed, 96)
	svc := newAlertService(t, conn, fakeStock{})

	result, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)
	assert.Equal(t, 1, result.Raised)

	alerts := loadAlerts(t, conn)
	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, enums.AlertCategoryStockout, alert.Category)
	assert.Equal(t, enums.AlertSeverityCritical, alert.Severity)
	assert.Equal(t, 96, alert.StockoutRiskScore)
	require.NotNil(t, alert.RecommendationID)
	assert.Equal(t, rec.ID, *alert.RecommendationID)
	assert.Contains(t, alert.Message, "96/100")
	assert.Nil(t, alert.ResolvedAt)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventInventoryAlertRaised, events[0].EventType)
	assert.Equal(t, alert.ID, events[0].AggregateID)
}

func TestScanDoesNotDuplicateOpenAlert(t *testing.T) {
	conn := newTestDB(t)
	seedRecommendation(t, conn, newPair(), enums.RecommendationApproved, 92)
	svc := newAlertService(t, conn, fakeStock{})

	_, err := svc.Scan(context.Background())
	require.NoError(t, err)
	second, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.Raised)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, loadAlerts(t, conn), 1)
}

func TestScanIgnoresDecidedAndLowRiskRecommendations(t *testing.T) {
	conn := newTestDB(t)
	seedRecommendation(t, conn, newPair(), enums.RecommendationRejected, 99)
	seedRecommendation(t, conn, newPair(), enums.RecommendationOrdered, 99)
	seedRecommendation(t, conn, newPair(), enums.RecommendationProposed, 80)
	svc := newAlertService(t, conn, fakeStock{})

	result, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Candidates)
	assert.Empty(t, loadAlerts(t, conn))
}

func TestScanRaisesAlertFromForecastRisk(t *testing.T) {
	conn := newTestDB(t)
	empty := newPair()
	covered := newPair()
	snap := seedSnapshot(t, conn, empty, 7, 14)
	seedSnapshot(t, conn, empty, 30, 40)
	seedSnapshot(t, conn, covered, 7, 14)
	svc := newAlertService(t, conn, fakeStock{available: map[types.StockPair]int64{empty: 0, covered: 28}})

	result, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Raised)

	alerts := loadAlerts(t, conn)
	require.Len(t, alerts, 1)
	assert.Equal(t, empty.LocationID, alerts[0].LocationID)
	assert.Equal(t, 100, alerts[0].StockoutRiskScore)
	assert.Nil(t, alerts[0].RecommendationID)
	require.NotNil(t, alerts[0].SnapshotID)
	assert.Equal(t, snap.ID, *alerts[0].SnapshotID, "ties go to the shorter window")
	assert.Contains(t, alerts[0].Message, "7-day")
}

func TestScanPrefersRecommendationOverForecast(t *testing.T) {
	conn := newTestDB(t)
	pair := newPair()
	rec := seedRecommendation(t, conn, pair, enums.RecommendationProposed, 91)
	seedSnapshot(t, conn, pair, 7, 14)
	svc := newAlertService(t, conn, fakeStock{available: map[types.StockPair]int64{pair: 0}})

	result, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Candidates)

	alerts := loadAlerts(t, conn)
	require.Len(t, alerts, 1)
	require.NotNil(t, alerts[0].RecommendationID)
	assert.Equal(t, rec.ID, *alerts[0].RecommendationID)
	assert.Nil(t, alerts[0].SnapshotID)
	assert.Equal(t, enums.AlertSeverityHigh, alerts[0].Severity)
}

func TestScanStockOutageFailsForecastCandidatesOnly(t *testing.T) {
	conn := newTestDB(t)
	seedRecommendation(t, conn, newPair(), enums.RecommendationProposed, 97)
	seedSnapshot(t, conn, newPair(), 7, 14)
	svc := newAlertService(t, conn, fakeStock{err: errors.New("field service unavailable")})

	result, err := svc.Scan(context.Background())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Raised)
	assert.Equal(t, 1, result.Failed)
}

func TestResolveClosesAlertOnce(t *testing.T) {
	conn := newTestDB(t)
	seedRecommendation(t, conn, newPair(), enums.RecommendationProposed, 95)
	svc := newAlertService(t, conn, fakeStock{})
	result, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, result.AlertIDs, 1)
	id := result.AlertIDs[0]

	resolved, err := svc.Resolve(context.Background(), id, operator)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolvedAt)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, operator.ID, *resolved.ResolvedBy)

	_, err = svc.Resolve(context.Background(), id, operator)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = svc.Resolve(context.Background(), uuid.New(), operator)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Resolve(context.Background(), id, types.Actor{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	again, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, again.Raised, "a resolved alert no longer blocks a new one")
}

func TestListFiltersOpenAlerts(t *testing.T) {
	conn := newTestDB(t)
	seedRecommendation(t, conn, newPair(), enums.RecommendationProposed, 95)
	seedRecommendation(t, conn, newPair(), enums.RecommendationProposed, 93)
	svc := newAlertService(t, conn, fakeStock{})
	result, err := svc.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, result.AlertIDs, 2)

	_, err = svc.Resolve(context.Background(), result.AlertIDs[0], operator)
	require.NoError(t, err)

	open, err := svc.List(context.Background(), ListParams{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open.Items, 1)
	assert.Equal(t, result.AlertIDs[1], open.Items[0].ID)
	assert.Empty(t, open.Cursor)

	all, err := svc.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Len(t, all.Items, 2)

	from := testNow
	to := testNow.Add(-time.Hour)
	_, err = svc.List(context.Background(), ListParams{From: &from, To: &to})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestScanIgnoresStaleForecasts(t *testing.T) {
	conn := newTestDB(t)
	fresh, stale := newPair(), newPair()
	seedSnapshot(t, conn, fresh, 7, 14)
	old := seedSnapshot(t, conn, stale, 7, 14)
	require.NoError(t, conn.Model(&models.ForecastSnapshot{}).
		Where("id = ?", old.ID).
		Update("computed_at", testNow.Add(-72*time.Hour)).Error)
	svc := newAlertService(t, conn, fakeStock{available: map[types.StockPair]int64{fresh: 0, stale: 0}})

	result, err := svc.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Raised)

	alerts := loadAlerts(t, conn)
	require.Len(t, alerts, 1)
	assert.Equal(t, fresh.PartID, alerts[0].PartID)
}
