package middleware

import (
	"context"

	"github.com/angelmondragon/fieldstock-backend/pkg/types"
)

type contextKey string

const (
	ctxActorID   contextKey = "actor_id"
	ctxActorRole contextKey = "actor_role"
)

// ActorFromContext returns the caller identity attached by the Actor middleware.
func ActorFromContext(ctx context.Context) types.Actor {
	if ctx == nil {
		return types.Actor{}
	}
	var actor types.Actor
	if v, ok := ctx.Value(ctxActorID).(string); ok {
		actor.ID = v
	}
	if v, ok := ctx.Value(ctxActorRole).(string); ok {
		actor.Role = v
	}
	return actor
}

// WithActor injects the caller identity into the context.
func WithActor(ctx context.Context, actor types.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxActorID, actor.ID)
	return context.WithValue(ctx, ctxActorRole, actor.Role)
}
