package interceptors

import (
	"context"

	"esign-workflow/internal/platform/actor"
)

type contextKey struct{ name string }

var actorKey = contextKey{"actor"}

// WithActor returns a context carrying the authenticated actor.
func WithActor(ctx context.Context, a actor.Actor) context.Context {
	return context.WithValue(ctx, actorKey, a)
}

// ActorFrom returns the actor set by AuthUnary and true, or the zero actor and false.
func ActorFrom(ctx context.Context) (actor.Actor, bool) {
	a, ok := ctx.Value(actorKey).(actor.Actor)
	return a, ok
}
