package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// dependencyRetryAfter is advertised on retryable 503s.
const dependencyRetryAfter = 5 * time.Second

// exposedMessages are the codes whose own message reaches the caller. Every
// other code answers with the generic public message for its status.
var exposedMessages = map[pkgerrors.Code]bool{
	pkgerrors.CodeValidation:    true,
	pkgerrors.CodeNotFound:      true,
	pkgerrors.CodeConflict:      true,
	pkgerrors.CodeStateConflict: true,
	pkgerrors.CodeGovernance:    true,
	pkgerrors.CodeIdempotency:   true,
}

func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError maps typed errors to their HTTP status and envelope. Untyped errors
// become INTERNAL_ERROR with the public message only. Server-side failures are
// logged with the unwrapped error chain; rejections are left to the access log.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	if logg != nil && meta.HTTPStatus >= http.StatusInternalServerError {
		logg.Error(logg.WithFields(ctx, pkgerrors.Dump(err).Fields()), "request failed", err)
	}
	if meta.Retryable && meta.HTTPStatus == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(int(dependencyRetryAfter.Seconds())))
	}
	writeJSON(w, meta.HTTPStatus, errorEnvelope(typed, meta, w.Header().Get(RequestIDHeader)))
}

func errorEnvelope(typed *pkgerrors.Error, meta pkgerrors.Metadata, requestID string) types.ErrorEnvelope {
	apiErr := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		RequestID: requestID,
	}
	if exposedMessages[typed.Code()] && typed.Message() != "" {
		apiErr.Message = typed.Message()
	}
	if meta.DetailsAllowed {
		apiErr.Details = typed.Details()
	}
	return types.ErrorEnvelope{Error: apiErr}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Int("status", status).Msg("failed to encode response")
	}
}
