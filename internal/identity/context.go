// ABOUTME: Identity context propagation through request handlers
// ABOUTME: Provides WithContext/FromContext for attaching identity to context.Context

package identity

import (
	"context"
)

// identityContextKey is the key type for storing Context in context.Context.
type identityContextKey struct{}

// WithContext returns a new context.Context with the identity Context attached.
func WithContext(ctx context.Context, id Context) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext retrieves the identity Context, returning a zero (not ready)
// Context if none is present.
func FromContext(ctx context.Context) Context {
	val := ctx.Value(identityContextKey{})
	if val == nil {
		return Context{}
	}
	id, ok := val.(Context)
	if !ok {
		return Context{}
	}
	return id
}

// MustFromContext retrieves the identity Context, panicking if it is absent
// or not ready. Only for handlers behind the auth middleware.
func MustFromContext(ctx context.Context) Context {
	id := FromContext(ctx)
	if !id.Ready {
		panic("identity: ready Context not found in context")
	}
	return id
}
