// Package sessionsync talks to the external session registry.
//
// The registry associates an authenticated session with the threads it
// has created, independent of the client's local history. Two
// operations exist, both idempotent and safe to retry:
//
//	ack, err := client.CreateSession(ctx, token)
//	ack, err := client.LinkThread(ctx, threadID, token)
//
// Both are fire-and-forget from the chat flow's perspective: the
// session controller routes failures to diagnostics only, never into
// the visible conversation state.
//
// Failures carry the server-provided detail when the response body has
// one, falling back to a generic message:
//
//	var syncErr *SessionSyncError
//	if errors.As(err, &syncErr) {
//	    log.Warn("registry rejected request", "detail", syncErr.Detail)
//	}
package sessionsync
