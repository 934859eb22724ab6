package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fieldstock-backend/api/middleware"
	"github.com/angelmondragon/fieldstock-backend/api/responses"
	"github.com/angelmondragon/fieldstock-backend/api/validators"
	"github.com/angelmondragon/fieldstock-backend/internal/recommendations"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

const maxNotesLen = 2000

type rejectRequest struct {
	Notes string `json:"notes"`
}

// RecommendationList filters recommendations by pair, status and created range.
func RecommendationList(svc recommendations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recommendation service unavailable"))
			return
		}
		filter, err := parsePairRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := recommendations.ListParams{
			LocationID: filter.locationID,
			PartID:     filter.partID,
			From:       filter.from,
			To:         filter.to,
			Limit:      filter.limit,
			Cursor:     filter.cursor,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseRecommendationStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = &status
		}
		resp, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

func RecommendationDetail(svc recommendations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recommendation service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "recommendationId"), "recommendation id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}

// RecommendationApprove moves a proposed recommendation to approved for the calling actor.
func RecommendationApprove(svc recommendations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recommendation service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "recommendationId"), "recommendation id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.Approve(r.Context(), recommendations.ApproveInput{
			RecommendationID: id,
			Actor:            middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}

// RecommendationReject requires notes explaining the decision.
func RecommendationReject(svc recommendations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recommendation service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "recommendationId"), "recommendation id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req rejectRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.Reject(r.Context(), recommendations.RejectInput{
			RecommendationID: id,
			Actor:            middleware.ActorFromContext(r.Context()),
			Notes:            validators.SanitizeString(req.Notes, maxNotesLen),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}

// RecommendationOrdered is called by purchasing once an order is placed.
func RecommendationOrdered(svc recommendations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "recommendation service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "recommendationId"), "recommendation id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rec, err := svc.MarkOrdered(r.Context(), id, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rec)
	}
}
