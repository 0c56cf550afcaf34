// Package identity resolves authentication state into a validated
// identity context and manages session tokens.
//
// # Resolver
//
// The Resolver turns an AuthState snapshot (what the identity source
// exposes) into a Context that the rest of the system can trust:
//
//	ctx := resolver.Resolve(state)
//	if !ctx.Ready {
//	    // do not open a stream
//	}
//
// Ready is false while authentication is loading, when the user is not
// authenticated, and when the provided user identifier is empty or the
// reserved "anonymous" sentinel (case-insensitive after trimming). A
// Ready context always carries a usable, trimmed user identifier.
//
// Resolution is pure: the same AuthState snapshot always produces the
// same Context. Transitions between ready and not-ready are logged as
// diagnostics only.
//
// # Session Tokens
//
// Session tokens are HS256-signed JWTs with the user identifier in the
// "sub" claim:
//
//	token, err := issuer.Issue("bob", 24*time.Hour)
//	userID, err := issuer.Verify(token)
//
// The session registry verifies these tokens on every request; the chat
// client restores a stored token at startup to re-establish identity.
//
// # Context Propagation
//
// WithContext/FromContext attach a resolved Context to a request
// context.Context for use in server-side handlers.
package identity
