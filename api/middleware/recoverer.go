package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/fieldstock-backend/api/responses"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

// Recoverer turns a handler panic into an INTERNAL_ERROR envelope, unless the
// handler already started its response. http.ErrAbortHandler is re-panicked
// so net/http drops the connection.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				handlePanic(logg, ww, r, rec)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func handlePanic(logg *logger.Logger, ww chimw.WrapResponseWriter, r *http.Request, rec any) {
	err := fmt.Errorf("panic: %v", rec)
	ctx := r.Context()
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{
			"method":          r.Method,
			"path":            r.URL.Path,
			"stack":           string(debug.Stack()),
			"response_status": ww.Status(),
		})
	}
	if ww.Status() != 0 {
		if logg != nil {
			logg.Error(ctx, "panic after response started", err)
		}
		return
	}
	// WriteError owns the 5xx log line, so the stack rides on ctx
	responses.WriteError(ctx, logg, ww, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
}
