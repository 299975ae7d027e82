package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the acting user identifier in context. The ID is
// opaque to the core: it is attributed on audit records and state
// transitions, never authenticated here.
func ContextWithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actorID)
}

// ActorFromContext extracts the actor identifier, empty when absent.
func ActorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor
}
