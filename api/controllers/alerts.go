package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fieldstock-backend/api/middleware"
	"github.com/angelmondragon/fieldstock-backend/api/responses"
	"github.com/angelmondragon/fieldstock-backend/api/validators"
	"github.com/angelmondragon/fieldstock-backend/internal/alerts"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

// AlertList returns stockout alerts; open=true limits to unresolved ones.
func AlertList(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "alert service unavailable"))
			return
		}
		filter, err := parsePairRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		open, err := validators.ParseQueryBool(r, "open", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.List(r.Context(), alerts.ListParams{
			LocationID: filter.locationID,
			PartID:     filter.partID,
			OpenOnly:   open,
			From:       filter.from,
			To:         filter.to,
			Limit:      filter.limit,
			Cursor:     filter.cursor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}

func AlertResolve(svc alerts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "alert service unavailable"))
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "alertId"), "alert id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alert, err := svc.Resolve(r.Context(), id, middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, alert)
	}
}
