package shared

import "context"

// Actor identifies the authenticated caller: the acting user and the pharmacy
// they represent. Resolving credentials to an Actor is the identity
// collaborator's job; the core only consumes this pair.
type Actor struct {
	UserID     int64
	PharmacyID int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in the context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext retrieves the actor, reporting whether one was set.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
