// ABOUTME: Actor identity carried through request handlers
// ABOUTME: Provides WithActor/FromContext for propagating identity via context

package auth

import (
	"context"
)

// Actor is the authenticated user behind a request.
type Actor struct {
	ID    string
	Roles []string
}

// HasRole reports whether the actor carries role.
func (a *Actor) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

type actorContextKey struct{}

// WithActor returns a new context with the actor attached.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext returns the actor of the request, or nil for anonymous requests.
func FromContext(ctx context.Context) *Actor {
	actor, ok := ctx.Value(actorContextKey{}).(*Actor)
	if !ok {
		return nil
	}
	return actor
}

// ActorID returns the actor ID of the request, or "" when anonymous.
func ActorID(ctx context.Context) string {
	if a := FromContext(ctx); a != nil {
		return a.ID
	}
	return ""
}
