package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/torquehub/torquehub-backend/pkg/auth"
	"github.com/torquehub/torquehub-backend/pkg/enums"
)

type contextKey string

const ctxActor contextKey = "actor"

// WithActor seeds the context with the authenticated actor.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	if !ok || actor.ID == uuid.Nil {
		return auth.Actor{}, false
	}
	return actor, true
}

// RoleFromContext returns the authenticated actor's role, or the zero role.
func RoleFromContext(ctx context.Context) enums.ActorRole {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return actor.Role
}
