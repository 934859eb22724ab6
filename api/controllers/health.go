package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/fieldstock-backend/api/responses"
	"github.com/angelmondragon/fieldstock-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/fieldstock-backend/pkg/errors"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
)

const readinessTimeout = 2 * time.Second

// Pinger is satisfied by the database and Redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FieldStock-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings each dependency and reports the first failure.
func HealthReady(cfg *config.Config, logg *logger.Logger, database Pinger, cache Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-FieldStock-Env", cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := []struct {
			name   string
			pinger Pinger
		}{
			{name: "database", pinger: database},
			{name: "redis", pinger: cache},
		}
		status := map[string]string{}
		for _, check := range checks {
			if check.pinger == nil {
				status[check.name] = "skipped"
				continue
			}
			if err := check.pinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Wrap(pkgerrors.CodeDependency, err, check.name+" unavailable").
						WithDetails(map[string]any{"dependency": check.name}))
				return
			}
			status[check.name] = "ok"
		}
		status["status"] = "ready"
		responses.WriteSuccess(w, status)
	}
}
