// Package actor identifies who performs an action. The API gateway
// authenticates the caller and forwards the user id; background jobs act as
// the system actor.
package actor

import (
	"context"
)

// SystemID is the id recorded for system initiated operations.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Actor represents the entity performing an action in the system.
type Actor struct {
	// ID is the unique identifier of the actor (user ID)
	ID string `json:"id"`

	// TenantID is the tenant the actor acts for
	TenantID string `json:"tenant_id"`
}

// String returns a string representation of the actor for logging
func (a *Actor) String() string {
	if a.IsSystem() {
		return "system"
	}
	return a.ID
}

type contextKey string

const actorContextKey contextKey = "actor"

// FromContext retrieves the Actor from the context.
// Returns nil if no actor is present.
func FromContext(ctx context.Context) *Actor {
	if ctx == nil {
		return nil
	}
	a, ok := ctx.Value(actorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return a
}

// WithActor returns a new context with the Actor attached.
func WithActor(ctx context.Context, a *Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey, a)
}

// IDFromContext returns the acting user's id, or nil for anonymous and
// system operations. Suitable for nullable performed_by columns.
func IDFromContext(ctx context.Context) *string {
	a := FromContext(ctx)
	if a == nil || a.IsSystem() || a.ID == "" {
		return nil
	}
	id := a.ID
	return &id
}

// SystemActor returns an Actor representing the system itself.
// Use this for background jobs, scheduled tasks, and system-initiated operations.
func SystemActor(tenantID string) *Actor {
	return &Actor{ID: SystemID, TenantID: tenantID}
}

// IsSystem returns true if the actor represents the system.
func (a *Actor) IsSystem() bool {
	if a == nil {
		return true
	}
	return a.ID == SystemID
}
