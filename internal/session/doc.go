// Package session owns the lifecycle of one streaming conversation.
//
// # Controller
//
// The Controller orchestrates identity, the raw stream, the stabilizer,
// the chat history store, and the session registry client. It owns
// exactly one thread session at a time:
//
//	ctl := session.NewController(session.Deps{...})
//	ctl.OnAuthState(authState)
//	ctl.Open("")          // new thread; requires ready identity
//	ctl.Submit("hello")
//	snap := ctl.Snapshot()
//
// State machine:
//
//	Idle -> Connecting -> Streaming -> WaitingForUser -> Connecting ...
//
// Any state can fall into Erroring on a stream fault; Erroring returns
// to Connecting on retry or new input. Stopped is terminal for the
// session instance. Opening a stream is gated on a ready identity: a
// not-ready identity keeps the controller Idle with zero network
// activity — a precondition failure, never a stream error.
//
// Switching threads tears the previous session down (cancelling its
// in-flight work) and starts fresh; a late event from an abandoned
// session can never mutate the active one.
//
// # Circuit Breaker
//
// Stream errors are recorded in a bounded ring (capacity 5) scoped to
// the session. Three identical consecutive error texts trip the
// breaker: the error view becomes final, the retry affordance
// disappears, and only new input or navigation clears it. Debug mode
// never trips — it always offers a manual retry instead. Any successful
// event wipes the ring; the breaker holds no memory across successes.
//
// Session registry calls (create session, link thread) are fire and
// forget: their failures go to diagnostics and never touch the state
// machine.
package session
