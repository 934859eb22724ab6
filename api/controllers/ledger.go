package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/fieldstock-backend/api/responses"
	"github.com/angelmondragon/fieldstock-backend/api/validators"
	"github.com/angelmondragon/fieldstock-backend/internal/ledger"
	"github.com/angelmondragon/fieldstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

type ingestRequest struct {
	Events []ledger.IngestEventInput `json:"events" validate:"required,min=1,max=1000"`
}

// LedgerIngest appends a batch of stock movement events. Field-level validation
// happens in the ledger service so the failing index can be reported.
func LedgerIngest(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		var req ingestRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Ingest(r.Context(), req.Events)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusCreated
		if result.Inserted == 0 {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// LedgerList is the audit query over recorded movements.
func LedgerList(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger service unavailable"))
			return
		}
		filter, err := parsePairRange(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := ledger.ListParams{
			LocationID: filter.locationID,
			PartID:     filter.partID,
			From:       filter.from,
			To:         filter.to,
			Limit:      filter.limit,
			Cursor:     filter.cursor,
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("movement_type")); raw != "" {
			movement, err := enums.ParseMovementType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid movement_type"))
				return
			}
			params.MovementType = &movement
		}
		resp, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, resp)
	}
}
