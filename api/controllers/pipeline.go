package controllers

import (
	"net/http"

	"github.com/angelmondragon/fieldstock-backend/api/responses"
	"github.com/angelmondragon/fieldstock-backend/api/validators"
	"github.com/angelmondragon/fieldstock-backend/internal/alerts"
	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/internal/recommendations"
	"github.com/angelmondragon/fieldstock-backend/internal/rollups"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

type rollupTriggerRequest struct {
	LookbackDays int `json:"lookback_days" validate:"gte=0,lte=365"`
}

type recommendationTriggerRequest struct {
	RiskThreshold       *int `json:"risk_threshold" validate:"omitnil,gte=0,lte=100"`
	ConfidenceThreshold *int `json:"confidence_threshold" validate:"omitnil,gte=0,lte=100"`
}

// Stage triggers return the run summary even when some pairs failed, so operators
// can see partial progress next to the error.
type stageResponse struct {
	Result any              `json:"result"`
	Error  *stageFailureDTO `json:"error,omitempty"`
}

type stageFailureDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeStageResult(w http.ResponseWriter, r *http.Request, logg *logger.Logger, result any, err error, hasResult bool) {
	if err != nil && !hasResult {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	if err != nil {
		typed := pkgerrors.As(err)
		if typed == nil {
			typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stage failed")
		}
		if logg != nil {
			logg.Error(r.Context(), "pipeline stage partially failed", err)
		}
		responses.WriteSuccessStatus(w, http.StatusMultiStatus, stageResponse{
			Result: result,
			Error:  &stageFailureDTO{Code: string(typed.Code()), Message: typed.Message()},
		})
		return
	}
	responses.WriteSuccess(w, stageResponse{Result: result})
}

// PipelineRollups recomputes the trailing demand rollups.
func PipelineRollups(svc rollups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rollup service unavailable"))
			return
		}
		var req rollupTriggerRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Recompute(r.Context(), rollups.RecomputeParams{LookbackDays: req.LookbackDays})
		writeStageResult(w, r, logg, result, err, result != nil)
	}
}

// PipelineForecasts recomputes forecast snapshots for every eligible pair.
func PipelineForecasts(svc forecasts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "forecast service unavailable"))
			return
		}
		result, err := svc.Recompute(r.Context())
		writeStageResult(w, r, logg, result, err, result != nil)
	}
}

// PipelineRecommendations runs the generator with optional threshold overrides.
func PipelineRecommendations(svc recommendations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recommendation service unavailable"))
			return
		}
		var req recommendationTriggerRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Generate(r.Context(), recommendations.GenerateParams{
			RiskThreshold:       req.RiskThreshold,
			ConfidenceThreshold: req.ConfidenceThreshold,
		})
		writeStageResult(w, r, logg, result, err, result != nil)
	}
}

// PipelineAlerts runs a stockout alert scan.
func PipelineAlerts(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "alert service unavailable"))
			return
		}
		result, err := svc.Scan(r.Context())
		writeStageResult(w, r, logg, result, err, result != nil)
	}
}
