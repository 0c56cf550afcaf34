// Package stream provides the raw message stream the session controller
// consumes, and the stabilizer that turns it into a coherent transcript.
//
// # Stream
//
// A Stream is the opaque connection to the agent backend. It emits raw
// Events (thread assignment, message chunks, errors, completion) and
// accepts user input:
//
//	st, _ := opener.Open(ctx, stream.OpenOptions{
//	    Endpoint:     "http://localhost:2024",
//	    AssistantKey: "agent",
//	    Identity:     id,
//	})
//	st.Submit(ctx, "hello")
//	for ev := range st.Events() { ... }
//
// The wire protocol behind SSEStream (HTTP POST answered with
// text/event-stream) is treated as external: this package normalizes it
// at the boundary and nothing downstream ever sees wire shapes. In
// particular, error payloads arrive as either a plain string or a
// structured object; NormalizeError resolves both into an ErrorValue
// exactly once.
//
// # Stabilizer
//
// The raw feed may deliver the same logical message more than once and
// delivers streaming tool-call output as partial deltas. The Stabilizer
// collapses duplicates by message id, merges deltas into one logical
// entry, and guarantees that entries never reorder once emitted:
//
//	stab.Apply(raw)
//	transcript := stab.Messages()
//	if stab.WaitingForUser() { ... }
package stream
