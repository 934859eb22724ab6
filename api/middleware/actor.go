package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/fieldstock-backend/api/validators"
	"github.com/angelmondragon/fieldstock-backend/pkg/logger"
	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

const (
	actorIDHeader   = "X-Actor-ID"
	actorRoleHeader = "X-Actor-Role"

	maxActorFieldLen = 128
)

// Actor reads the caller identity forwarded by the gateway. Authorization happens
// upstream; the role is recorded for audit only.
func Actor(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := types.Actor{
				ID:   validators.SanitizeString(r.Header.Get(actorIDHeader), maxActorFieldLen),
				Role: strings.ToLower(validators.SanitizeString(r.Header.Get(actorRoleHeader), maxActorFieldLen)),
			}
			ctx := WithActor(r.Context(), actor)
			if logg != nil && actor.ID != "" {
				ctx = logg.WithActorID(ctx, actor.ID)
				if actor.Role != "" {
					ctx = logg.WithActorRole(ctx, actor.Role)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
