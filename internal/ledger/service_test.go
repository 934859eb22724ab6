package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/fieldstock-backend/pkg/db"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/migrate"
	"github.com/angelmondragon/fieldstock-backend/pkg/pagination"
)

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

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		DB:     db.NewFromConn(conn),
		Logger: testLogger(),
		Now:    func() time.Time { return time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc
}

func validInput(key string) IngestEventInput {
	return IngestEventInput{
		LocationID:     uuid.NewString(),
		PartID:         uuid.NewString(),
		MovementType:   string(enums.MovementConsume),
		QuantityDelta:  -3,
		OccurredAt:     time.Date(2026, 3, 9, 8, 30, 0, 0, time.UTC),
		SourceType:     "ticket_fulfillment",
		IdempotencyKey: key,
		Payload:        json.RawMessage(`{"ticket_id":"T-100"}`),
	}
}

func TestIngestInsertsAndCountsDuplicates(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	first := validInput("evt-1")
	second := validInput("evt-2")
	result, err := svc.Ingest(ctx, []IngestEventInput{first, second, first})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Received)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)

	result, err = svc.Ingest(ctx, []IngestEventInput{first, validInput("evt-3")})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Duplicates)

	var count int64
	require.NoError(t, conn.Model(&models.StockMovementEvent{}).Count(&count).Error)
	assert.EqualValues(t, 3, count)
}

func TestIngestRejectsWholeBatchOnMalformedEvent(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	bad := validInput("evt-bad")
	bad.QuantityDelta = 0
	_, err := svc.Ingest(context.Background(), []IngestEventInput{validInput("evt-ok"), bad})
	require.Error(t, err)
	apiErr := pkgerrors.As(err)
	require.NotNil(t, apiErr)
	assert.Equal(t, pkgerrors.CodeValidation, apiErr.Code())
	details, ok := apiErr.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, details["index"])

	var count int64
	require.NoError(t, conn.Model(&models.StockMovementEvent{}).Count(&count).Error)
	assert.Zero(t, count, "no event from a rejected batch may be written")
}

func TestIngestValidation(t *testing.T) {
	svc, err := NewService(ServiceParams{Repo: &fakeRepository{}, DB: fakeTxRunner{}, Logger: testLogger()})
	require.NoError(t, err)

	cases := map[string]func(*IngestEventInput){
		"missing location":   func(in *IngestEventInput) { in.LocationID = "" },
		"bad part id":        func(in *IngestEventInput) { in.PartID = "not-a-uuid" },
		"unknown movement":   func(in *IngestEventInput) { in.MovementType = "shrinkage" },
		"missing occurred":   func(in *IngestEventInput) { in.OccurredAt = time.Time{} },
		"blank source":       func(in *IngestEventInput) { in.SourceType = "   " },
		"missing key":        func(in *IngestEventInput) { in.IdempotencyKey = "" },
		"invalid payload":    func(in *IngestEventInput) { in.Payload = json.RawMessage(`{broken`) },
		"zero delta":         func(in *IngestEventInput) { in.QuantityDelta = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validInput("k")
			mutate(&in)
			_, err := svc.Ingest(context.Background(), []IngestEventInput{in})
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err = svc.Ingest(context.Background(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestIngestRepoErrorIsDependency(t *testing.T) {
	repo := &fakeRepository{
		insertFn: func(ctx context.Context, events []models.StockMovementEvent) (int64, error) {
			return 0, errors.New("db down")
		},
	}
	svc, err := NewService(ServiceParams{Repo: repo, DB: fakeTxRunner{}, Logger: testLogger()})
	require.NoError(t, err)

	_, err = svc.Ingest(context.Background(), []IngestEventInput{validInput("k")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestListOutboundEventsFiltersTypesAndWindow(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	consume := validInput("consume")
	receive := validInput("receive")
	receive.MovementType = string(enums.MovementReceive)
	receive.QuantityDelta = 10
	transferOut := validInput("transfer-out")
	transferOut.MovementType = string(enums.MovementTransferOut)
	old := validInput("old")
	old.OccurredAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Ingest(ctx, []IngestEventInput{consume, receive, transferOut, old})
	require.NoError(t, err)

	events, err := svc.ListOutboundEvents(ctx,
		time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, evt := range events {
		assert.True(t, evt.MovementType.IsOutbound())
	}

	_, err = svc.ListOutboundEvents(ctx, time.Now(), time.Now().Add(-time.Hour))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListPaginates(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	location := uuid.NewString()
	inputs := make([]IngestEventInput, 0, 5)
	for i := 0; i < 5; i++ {
		in := validInput(fmt.Sprintf("evt-%d", i))
		in.LocationID = location
		in.OccurredAt = time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.UTC)
		inputs = append(inputs, in)
	}
	_, err := svc.Ingest(ctx, inputs)
	require.NoError(t, err)

	locationID := uuid.MustParse(location)
	page, err := svc.List(ctx, ListParams{LocationID: &locationID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.NotEmpty(t, page.Cursor)
	assert.Equal(t, 5, page.Items[0].OccurredAt.Day())

	seen := map[uuid.UUID]struct{}{}
	for _, item := range page.Items {
		seen[item.ID] = struct{}{}
	}
	cursor := page.Cursor
	for cursor != "" {
		next, err := svc.List(ctx, ListParams{LocationID: &locationID, Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, item := range next.Items {
			_, dup := seen[item.ID]
			require.False(t, dup, "page overlap")
			seen[item.ID] = struct{}{}
		}
		cursor = next.Cursor
	}
	assert.Len(t, seen, 5)

	_, err = svc.List(ctx, ListParams{Cursor: "bad"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type fakeTxRunner struct{}

func (fakeTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepository struct {
	insertFn func(ctx context.Context, events []models.StockMovementEvent) (int64, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) InsertIgnoreDuplicates(ctx context.Context, events []models.StockMovementEvent) (int64, error) {
	if f.insertFn != nil {
		return f.insertFn(ctx, events)
	}
	return int64(len(events)), nil
}

func (f *fakeRepository) ListOutbound(ctx context.Context, from, to time.Time) ([]models.StockMovementEvent, error) {
	return nil, nil
}

func (f *fakeRepository) List(ctx context.Context, params listEventsParams) ([]models.StockMovementEvent, *pagination.Cursor, error) {
	return nil, nil, nil
}
