// ABOUTME: Resolves authentication state into a validated identity context
// ABOUTME: Ready=true guarantees a non-empty, non-anonymous user identifier

package identity

import (
	"log/slog"
	"strings"
)

// AnonymousSentinel is the reserved user identifier that can never
// resolve to a ready identity.
const AnonymousSentinel = "anonymous"

// AuthState is a snapshot of the identity source. The core only reads
// this; it never mutates authentication state.
type AuthState struct {
	UserID        string // raw user identifier, may be empty or padded
	Token         string // bearer session token, opaque to the resolver
	Authenticated bool
	Loading       bool
}

// Context is a validated identity context derived from an AuthState.
// Invariant: Ready implies UserID is non-empty and not the anonymous
// sentinel. Contexts are ephemeral and never persisted.
type Context struct {
	UserID string
	Ready  bool
}

// Resolver converts AuthState snapshots into identity Contexts.
// Resolution is pure and idempotent; the logger is used only for
// transition diagnostics.
type Resolver struct {
	logger *slog.Logger

	lastReady  bool
	lastUserID string
	resolved   bool
}

// NewResolver creates a resolver. Pass nil logger for default.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger.With("component", "identity")}
}

// Resolve derives an identity Context from the given snapshot.
// While authentication is loading or absent the context is not ready.
// An authenticated but unusable identifier (empty or "anonymous") also
// yields a not-ready context and an invalid-identity diagnostic.
func (r *Resolver) Resolve(state AuthState) Context {
	ctx := resolve(state)

	if !r.resolved || ctx.Ready != r.lastReady || ctx.UserID != r.lastUserID {
		if ctx.Ready {
			r.logger.Debug("identity ready", "user_id", ctx.UserID)
		} else if state.Authenticated && !state.Loading {
			r.logger.Warn("invalid identity for authenticated user",
				"raw_user_id", state.UserID)
		} else {
			r.logger.Debug("identity not ready",
				"loading", state.Loading,
				"authenticated", state.Authenticated)
		}
	}
	r.resolved = true
	r.lastReady = ctx.Ready
	r.lastUserID = ctx.UserID

	return ctx
}

// resolve is the pure resolution rule; Resolve adds diagnostics on top.
func resolve(state AuthState) Context {
	if state.Loading || !state.Authenticated {
		return Context{}
	}

	userID := strings.TrimSpace(state.UserID)
	if userID == "" || strings.EqualFold(userID, AnonymousSentinel) {
		return Context{}
	}

	return Context{UserID: userID, Ready: true}
}
