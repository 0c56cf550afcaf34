// ABOUTME: Stream session controller - owns the lifecycle of one thread session
// ABOUTME: Gates opening on identity, feeds the stabilizer, applies the circuit breaker

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/skeinworks/skein/internal/identity"
	"github.com/skeinworks/skein/internal/sessionsync"
	"github.com/skeinworks/skein/internal/stream"
)

// Controller errors.
var (
	// ErrIdentityNotReady means the hard precondition for any network
	// activity failed. This is not a stream error and is never retried
	// automatically.
	ErrIdentityNotReady = errors.New("identity not ready")

	// ErrNoSession means no thread session is open.
	ErrNoSession = errors.New("no active session")

	// ErrSessionStopped means the session was explicitly cancelled.
	ErrSessionStopped = errors.New("session stopped")

	// ErrBreakerTripped means the repetition breaker suppressed a retry.
	ErrBreakerTripped = errors.New("circuit breaker tripped")
)

// State is the thread session's stream state.
type State int

// Session states.
const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateWaitingForUser
	StateErroring
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateWaitingForUser:
		return "waiting_for_user"
	case StateErroring:
		return "erroring"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// HistoryStore defines what the controller needs from chat history.
type HistoryStore interface {
	Upsert(threadID, messagePreview, explicitTitle string)
	SetOwner(userID string)
	Clear()
}

// RegistrySync defines what the controller needs from the session
// registry client. Both calls are fire-and-forget side channels.
type RegistrySync interface {
	CreateSession(ctx context.Context, token string) (*sessionsync.Ack, error)
	LinkThread(ctx context.Context, threadID, token string) (*sessionsync.Ack, error)
}

// Deps are the controller's constructor-supplied collaborators.
type Deps struct {
	Opener       stream.Opener
	History      HistoryStore
	Registry     RegistrySync // may be nil: registry sync disabled
	Resolver     *identity.Resolver
	Endpoint     string
	AssistantKey string
	Debug        bool
	Logger       *slog.Logger
}

// ErrorView is the breaker-aware error state exposed to the UI.
type ErrorView struct {
	Text      string
	Retryable bool
	Final     bool
}

// Snapshot is a stable view of the active session for rendering.
type Snapshot struct {
	State          State
	ThreadID       string
	Messages       []stream.StableMessage
	WaitingForUser bool
	Error          *ErrorView
}

// threadSession is the per-conversation state. Everything here dies
// with the session: history, errors, and flags never leak across
// threads.
type threadSession struct {
	threadID   string
	state      State
	stream     stream.Stream
	stabilizer *stream.Stabilizer
	breaker    *Breaker
	lastInput  string
	cancel     context.CancelFunc
}

// Controller owns one thread session at a time and orchestrates the
// identity resolver, stream, stabilizer, breaker, history store, and
// registry client.
type Controller struct {
	deps   Deps
	logger *slog.Logger

	mu       sync.Mutex
	id       identity.Context
	token    string
	sess     *threadSession
	now      func() time.Time
	lastAuth string // user id of the last session-create, "" if none
}

// NewController creates a controller from its collaborators.
func NewController(deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Resolver == nil {
		deps.Resolver = identity.NewResolver(logger)
	}
	return &Controller{
		deps:   deps,
		logger: logger.With("component", "session"),
		now:    time.Now,
	}
}

// OnAuthState feeds an identity source snapshot into the controller.
// A newly ready identity claims the history store and registers its
// session with the registry (once per authentication event, including
// restoration from a stored token). A logout clears local history.
func (c *Controller) OnAuthState(state identity.AuthState) {
	id := c.deps.Resolver.Resolve(state)

	c.mu.Lock()
	c.id = id
	c.token = state.Token

	if !id.Ready {
		loggedOut := !state.Loading && !state.Authenticated
		if loggedOut {
			// The next sign-in is a fresh authentication event even
			// for the same user.
			c.lastAuth = ""
		}
		c.mu.Unlock()
		if loggedOut {
			c.deps.History.Clear()
		}
		return
	}

	firstForUser := c.lastAuth != id.UserID
	if firstForUser {
		c.lastAuth = id.UserID
	}
	token := state.Token
	c.mu.Unlock()

	c.deps.History.SetOwner(id.UserID)

	if firstForUser && c.deps.Registry != nil {
		go c.createSession(token)
	}
}

// Identity returns the current identity context.
func (c *Controller) Identity() identity.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Open opens (or resumes, for a non-empty threadID) a thread session.
// Hard precondition: the identity must be ready; otherwise no network
// action happens and the controller stays idle.
func (c *Controller) Open(threadID string) error {
	c.mu.Lock()
	if !c.id.Ready {
		c.mu.Unlock()
		c.logger.Warn("open rejected: identity not ready", "thread_id", threadID)
		return ErrIdentityNotReady
	}
	prev := c.sess
	id := c.id
	c.mu.Unlock()

	if prev != nil {
		c.teardown(prev)
	}

	ctx, cancel := context.WithCancel(context.Background())
	st, err := c.deps.Opener.Open(ctx, stream.OpenOptions{
		Endpoint:     c.deps.Endpoint,
		AssistantKey: c.deps.AssistantKey,
		ThreadID:     threadID,
		Identity:     id,
	})
	if err != nil {
		cancel()
		return fmt.Errorf("opening stream: %w", err)
	}

	sess := &threadSession{
		threadID:   threadID,
		state:      StateWaitingForUser,
		stream:     st,
		stabilizer: stream.NewStabilizer(),
		breaker:    NewBreaker(c.deps.Debug),
		cancel:     cancel,
	}

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	go c.pump(ctx, sess)

	c.logger.Debug("session opened", "thread_id", threadID, "user_id", id.UserID)
	return nil
}

// SwitchThread tears down the current session and opens the given
// thread. In-flight work of the previous session is cancelled; its
// late-arriving events are discarded.
func (c *Controller) SwitchThread(threadID string) error {
	return c.Open(threadID)
}

// Submit sends user input into the stream. Valid from WaitingForUser,
// Erroring (new input clears the breaker trip), and right after Open.
func (c *Controller) Submit(input string) error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if sess.state == StateStopped {
		c.mu.Unlock()
		return ErrSessionStopped
	}
	if !c.id.Ready {
		c.mu.Unlock()
		c.logger.Warn("submit rejected: identity not ready")
		return ErrIdentityNotReady
	}

	// New input is an explicit fresh start: the breaker forgets.
	sess.breaker.Clear()
	sess.lastInput = input
	sess.state = StateConnecting
	threadID := sess.threadID
	st := sess.stream
	c.mu.Unlock()

	if threadID != "" {
		c.deps.History.Upsert(threadID, input, "")
	}

	if err := st.Submit(context.Background(), input); err != nil {
		c.streamFault(sess, stream.ErrorValue{Kind: stream.ErrorPlainText, Text: err.Error()})
		return fmt.Errorf("submitting input: %w", err)
	}
	return nil
}

// Retry re-submits the last input after a transient stream error.
// Rejected without any network call when the identity is not ready at
// retry time (a distinct, logged failure) or when the breaker is
// tripped.
func (c *Controller) Retry() error {
	c.mu.Lock()
	sess := c.sess
	if sess == nil {
		c.mu.Unlock()
		return ErrNoSession
	}
	if !c.id.Ready {
		c.mu.Unlock()
		c.logger.Warn("retry rejected: identity not ready")
		return ErrIdentityNotReady
	}
	if !sess.breaker.RetryAllowed() {
		c.mu.Unlock()
		c.logger.Warn("retry rejected: breaker tripped")
		return ErrBreakerTripped
	}
	input := sess.lastInput
	sess.state = StateConnecting
	st := sess.stream
	c.mu.Unlock()

	if err := st.Submit(context.Background(), input); err != nil {
		c.streamFault(sess, stream.ErrorValue{Kind: stream.ErrorPlainText, Text: err.Error()})
		return fmt.Errorf("retrying input: %w", err)
	}
	return nil
}

// Stop cancels the session. Terminal for this session instance.
func (c *Controller) Stop() {
	c.mu.Lock()
	sess := c.sess
	if sess == nil {
		c.mu.Unlock()
		return
	}
	sess.state = StateStopped
	c.mu.Unlock()

	c.teardown(sess)
}

// Snapshot returns a stable view of the active session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess == nil {
		return Snapshot{State: StateIdle}
	}

	snap := Snapshot{
		State:          c.sess.state,
		ThreadID:       c.sess.threadID,
		Messages:       c.sess.stabilizer.Messages(),
		WaitingForUser: c.sess.stabilizer.WaitingForUser(),
	}
	snap.Error = c.errorViewLocked(c.sess)
	return snap
}

// errorViewLocked derives the breaker-aware error view. Must be called
// with mu held.
func (c *Controller) errorViewLocked(sess *threadSession) *ErrorView {
	if sess.breaker.Tripped() {
		text, _ := sess.breaker.LastError()
		return &ErrorView{
			Text:      fmt.Sprintf("%s\n\nExecution stopped: the same error occurred %d times in a row.", text, tripThreshold),
			Retryable: false,
			Final:     true,
		}
	}
	if sess.state != StateErroring {
		return nil
	}
	text, ok := sess.breaker.LastError()
	if !ok {
		return nil
	}
	return &ErrorView{Text: text, Retryable: sess.breaker.RetryAllowed()}
}

// pump forwards stream events into the state machine until the session
// context dies. One pump per session; events are handled in arrival
// order.
func (c *Controller) pump(ctx context.Context, sess *threadSession) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-sess.stream.Events():
			c.handleEvent(sess, ev)
		}
	}
}

// handleEvent applies one stream event. Events that belong to a
// session that is no longer active are discarded: an abandoned
// thread's late responses never touch the active session.
func (c *Controller) handleEvent(sess *threadSession, ev stream.Event) {
	c.mu.Lock()
	if c.sess != sess || sess.state == StateStopped {
		c.mu.Unlock()
		c.logger.Debug("discarding event for inactive session",
			"thread_id", sess.threadID)
		return
	}

	switch ev.Kind {
	case stream.KindThreadCreated:
		fresh := sess.threadID == ""
		sess.threadID = ev.ThreadID
		preview := sess.lastInput
		token := c.token
		c.mu.Unlock()

		c.deps.History.Upsert(ev.ThreadID, preview, "")
		if fresh && c.deps.Registry != nil {
			go c.linkThread(ev.ThreadID, token)
		}

	case stream.KindMessage:
		sess.stabilizer.Apply(ev.Message)
		if sess.state == StateConnecting || sess.state == StateErroring {
			sess.state = StateStreaming
		}
		// Data flowing is success: the breaker forgets.
		sess.breaker.Clear()
		c.mu.Unlock()

	case stream.KindError:
		c.mu.Unlock()
		c.streamFault(sess, ev.Err)

	case stream.KindDone:
		if sess.state == StateStreaming || sess.state == StateConnecting {
			sess.state = StateWaitingForUser
			sess.breaker.Clear()
		}
		c.mu.Unlock()

	default:
		c.mu.Unlock()
	}
}

// streamFault records a stream error and moves the session to Erroring.
func (c *Controller) streamFault(sess *threadSession, errVal stream.ErrorValue) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess != sess || sess.state == StateStopped {
		return
	}

	sess.state = StateErroring
	sess.breaker.Record(errVal.Text, c.now())

	if sess.breaker.Tripped() {
		c.logger.Error("circuit breaker tripped",
			"thread_id", sess.threadID,
			"error", errVal.Text)
	} else {
		c.logger.Warn("stream error",
			"thread_id", sess.threadID,
			"error", errVal.Text)
	}
}

// teardown cancels a session's in-flight work and stops its stream.
func (c *Controller) teardown(sess *threadSession) {
	sess.cancel()
	sess.stream.Stop()

	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
	}
	c.mu.Unlock()
}

// createSession registers the authenticated session with the registry.
// Best-effort: failures are diagnostics, never chat-flow errors.
func (c *Controller) createSession(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ack, err := c.deps.Registry.CreateSession(ctx, token)
	if err != nil {
		c.logger.Warn("session registry create failed", "error", err)
		return
	}
	c.logger.Debug("session registered", "message", ack.Message)
}

// linkThread associates a newly assigned thread with the session.
// Best-effort side channel, same contract as createSession.
func (c *Controller) linkThread(threadID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ack, err := c.deps.Registry.LinkThread(ctx, threadID, token)
	if err != nil {
		c.logger.Warn("thread link failed", "thread_id", threadID, "error", err)
		return
	}
	c.logger.Debug("thread linked",
		"thread_id", ack.ThreadID,
		"user_id", ack.UserID)
}
