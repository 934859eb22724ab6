package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/fieldstock-backend/api/responses"
	"github.com/angelmondragon/fieldstock-backend/api/validators"
	"github.com/angelmondragon/fieldstock-backend/internal/forecasts"
	"github.com/angelmondragon/fieldstock-backend/internal/rollups"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

// RollupList returns daily demand rollups.
func RollupList(svc rollups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "rollup service unavailable"))
			return
		}
		filter, err := parsePairRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		resp, err := svc.List(r.Context(), rollups.ListParams{
			LocationID: filter.locationID,
			PartID:     filter.partID,
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

// ForecastList returns current snapshots, or the snapshot history when history=true.
func ForecastList(svc forecasts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "forecast service unavailable"))
			return
		}
		filter, err := parsePairRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var window *enums.ForecastWindow
		if raw := strings.TrimSpace(r.URL.Query().Get("window_days")); raw != "" {
			parsed, err := enums.ParseForecastWindow(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid window_days"))
				return
			}
			window = &parsed
		}
		history, err := validators.ParseQueryBool(r, "history", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if !history {
			items, err := svc.ListCurrent(r.Context(), forecasts.CurrentFilter{
				LocationID: filter.locationID,
				PartID:     filter.partID,
				Window:     window,
			})
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			responses.WriteSuccess(w, map[string]any{"items": items})
			return
		}

		resp, err := svc.List(r.Context(), forecasts.ListParams{
			LocationID: filter.locationID,
			PartID:     filter.partID,
			Window:     window,
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
