package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

// quietPrefixes are health check and scrape paths logged only when they fail.
var quietPrefixes = []string{"/health/", "/metrics"}

// Logging writes one record per request once the response is done. 5xx logs at
// error level and 4xx at warn.
func Logging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logg == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := responseStatus(ww)
			if status < http.StatusBadRequest && isQuiet(r.URL.Path) {
				return
			}
			ctx := logg.WithFields(r.Context(), map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"route":       routePattern(r),
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			logRequest(ctx, logg, status)
		})
	}
}

func logRequest(ctx context.Context, logg *logger.Logger, status int) {
	switch {
	case status >= http.StatusInternalServerError:
		logg.Error(ctx, "request failed", nil)
	case status >= http.StatusBadRequest:
		logg.Warn(ctx, "request rejected")
	default:
		logg.Info(ctx, "request completed")
	}
}

func responseStatus(ww chimw.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func isQuiet(path string) bool {
	for _, prefix := range quietPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
