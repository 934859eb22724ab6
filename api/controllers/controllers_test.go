package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fieldstock-backend/api/middleware"
	"github.com/angelmondragon/fieldstock-backend/internal/alerts"
	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/internal/ledger"
	"github.com/angelmondragon/fieldstock-backend/internal/recommendations"
	"github.com/angelmondragon/fieldstock-backend/internal/rollups"
	"github.com/angelmondragon/fieldstock-backend/pkg/db/models"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "controllers-test", Output: io.Discard})
}

func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

type stubLedger struct {
	ledger.Service
	result *ledger.IngestResult
	err    error
	got    []ledger.IngestEventInput
}

func (s *stubLedger) Ingest(_ context.Context, events []ledger.IngestEventInput) (*ledger.IngestResult, error) {
	s.got = events
	return s.result, s.err
}

func TestLedgerIngestStatusReflectsInserts(t *testing.T) {
	body := `{"events":[{"location_id":"` + uuid.NewString() + `","part_id":"` + uuid.NewString() +
		`","movement_type":"consume","quantity_delta":-2,"occurred_at":"2026-03-01T10:00:00Z","source_type":"work_order","idempotency_key":"wo-1"}]}`

	svc := &stubLedger{result: &ledger.IngestResult{Received: 1, Inserted: 1}}
	rec := httptest.NewRecorder()
	LedgerIngest(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, svc.got, 1)
	require.Equal(t, "wo-1", svc.got[0].IdempotencyKey)

	svc.result = &ledger.IngestResult{Received: 1, Duplicates: 1}
	rec = httptest.NewRecorder()
	LedgerIngest(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLedgerIngestRejectsEmptyBatch(t *testing.T) {
	svc := &stubLedger{}
	rec := httptest.NewRecorder()
	LedgerIngest(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"events":[]}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, svc.got)
}

func TestLedgerListRejectsUnknownMovementType(t *testing.T) {
	rec := httptest.NewRecorder()
	LedgerList(&stubLedger{}, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?movement_type=teleport", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubRollups struct {
	rollups.Service
	params rollups.RecomputeParams
	result *rollups.RecomputeResult
	err    error
}

func (s *stubRollups) Recompute(_ context.Context, params rollups.RecomputeParams) (*rollups.RecomputeResult, error) {
	s.params = params
	return s.result, s.err
}

func TestPipelineRollupsReportsPartialFailure(t *testing.T) {
	svc := &stubRollups{
		result: &rollups.RecomputeResult{PairsProcessed: 3, PairsFailed: 1},
		err:    pkgerrors.New(pkgerrors.CodeDependency, "1 pair failed"),
	}
	rec := httptest.NewRecorder()
	PipelineRollups(svc, testLogger()).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lookback_days":14}`)))

	require.Equal(t, http.StatusMultiStatus, rec.Code)
	require.Equal(t, 14, svc.params.LookbackDays)

	env := decodeEnvelope(t, rec)
	var stage struct {
		Result rollups.RecomputeResult `json:"result"`
		Error  stageFailureDTO         `json:"error"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &stage))
	require.Equal(t, 1, stage.Result.PairsFailed)
	require.Equal(t, string(pkgerrors.CodeDependency), stage.Error.Code)
}

func TestPipelineRollupsValidatesLookback(t *testing.T) {
	svc := &stubRollups{}
	rec := httptest.NewRecorder()
	PipelineRollups(svc, testLogger()).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"lookback_days":400}`)))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPipelineRollupsWithoutResultReturnsError(t *testing.T) {
	svc := &stubRollups{err: pkgerrors.New(pkgerrors.CodeValidation, "lookback too large")}
	rec := httptest.NewRecorder()
	PipelineRollups(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeEnvelope(t, rec)
	require.NotNil(t, env.Error)
	require.Equal(t, "lookback too large", env.Error.Message)
}

type stubForecasts struct {
	forecasts.Service
	current []forecasts.CurrentFilter
	history []forecasts.ListParams
}

func (s *stubForecasts) ListCurrent(_ context.Context, filter forecasts.CurrentFilter) ([]models.ForecastSnapshot, error) {
	s.current = append(s.current, filter)
	return []models.ForecastSnapshot{}, nil
}

func (s *stubForecasts) List(_ context.Context, params forecasts.ListParams) (*forecasts.ListResult, error) {
	s.history = append(s.history, params)
	return &forecasts.ListResult{}, nil
}

func TestForecastListSelectsCurrentOrHistory(t *testing.T) {
	svc := &stubForecasts{}

	rec := httptest.NewRecorder()
	ForecastList(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?window_days=30", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.current, 1)
	require.NotNil(t, svc.current[0].Window)
	require.Equal(t, enums.ForecastWindow30, *svc.current[0].Window)

	rec = httptest.NewRecorder()
	ForecastList(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?history=true&from=2026-01-01", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.history, 1)
	require.NotNil(t, svc.history[0].From)

	rec = httptest.NewRecorder()
	ForecastList(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?window_days=14", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubRecommendations struct {
	recommendations.Service
	generated []recommendations.GenerateParams
	rejected  []recommendations.RejectInput
	ordered  []types.Actor
	err      error
}

func (s *stubRecommendations) Generate(_ context.Context, params recommendations.GenerateParams) (*recommendations.GenerateResult, error) {
	s.generated = append(s.generated, params)
	return &recommendations.GenerateResult{SkipReasons: map[string]int{}}, s.err
}

func (s *stubRecommendations) Reject(_ context.Context, input recommendations.RejectInput) (*models.ReorderRecommendation, error) {
	s.rejected = append(s.rejected, input)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ReorderRecommendation{ID: input.RecommendationID, Status: enums.RecommendationRejected}, nil
}

func (s *stubRecommendations) MarkOrdered(_ context.Context, id uuid.UUID, actor types.Actor) (*models.ReorderRecommendation, error) {
	s.ordered = append(s.ordered, actor)
	if s.err != nil {
		return nil, s.err
	}
	return &models.ReorderRecommendation{ID: id, Status: enums.RecommendationOrdered}, nil
}

func TestPipelineRecommendationsKeepsExplicitZeroThreshold(t *testing.T) {
	svc := &stubRecommendations{}

	rec := httptest.NewRecorder()
	PipelineRecommendations(svc, testLogger()).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"confidence_threshold":0}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	PipelineRecommendations(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, svc.generated, 2)
	require.NotNil(t, svc.generated[0].ConfidenceThreshold)
	require.Equal(t, 0, *svc.generated[0].ConfidenceThreshold)
	require.Nil(t, svc.generated[0].RiskThreshold)
	require.Nil(t, svc.generated[1].ConfidenceThreshold)

	rec = httptest.NewRecorder()
	PipelineRecommendations(svc, testLogger()).ServeHTTP(rec,
		httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"risk_threshold":120}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Len(t, svc.generated, 2)
}

func TestRecommendationRejectPassesNotesAndActor(t *testing.T) {
	svc := &stubRecommendations{}
	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"notes":"  dealer backlog  "}`))
	req = withURLParam(req, "recommendationId", id.String())
	req = req.WithContext(middleware.WithActor(req.Context(), types.Actor{ID: "planner-2", Role: "planner"}))

	rec := httptest.NewRecorder()
	RecommendationReject(svc, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.rejected, 1)
	require.Equal(t, id, svc.rejected[0].RecommendationID)
	require.Equal(t, "dealer backlog", svc.rejected[0].Notes)
	require.Equal(t, "planner-2", svc.rejected[0].Actor.ID)
}

func TestRecommendationOrderedMapsStateConflict(t *testing.T) {
	svc := &stubRecommendations{err: pkgerrors.New(pkgerrors.CodeStateConflict, "recommendation is not approved")}
	req := withURLParam(httptest.NewRequest(http.MethodPost, "/", nil), "recommendationId", uuid.NewString())

	rec := httptest.NewRecorder()
	RecommendationOrdered(svc, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeEnvelope(t, rec)
	require.Equal(t, string(pkgerrors.CodeStateConflict), env.Error.Code)
}

func TestRecommendationDetailRejectsBadID(t *testing.T) {
	req := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "recommendationId", "abc")

	rec := httptest.NewRecorder()
	RecommendationDetail(&stubRecommendations{}, testLogger()).ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

type stubAlerts struct {
	alerts.Service
	listed []alerts.ListParams
}

func (s *stubAlerts) List(_ context.Context, params alerts.ListParams) (*alerts.ListResult, error) {
	s.listed = append(s.listed, params)
	return &alerts.ListResult{}, nil
}

func TestAlertListOpenFilter(t *testing.T) {
	svc := &stubAlerts{}
	rec := httptest.NewRecorder()
	AlertList(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?open=true&limit=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.listed, 1)
	require.True(t, svc.listed[0].OpenOnly)
	require.Equal(t, 5, svc.listed[0].Limit)
}

func TestNilServicesReturnInternalError(t *testing.T) {
	rec := httptest.NewRecorder()
	AlertList(nil, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
