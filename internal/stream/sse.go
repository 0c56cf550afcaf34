// ABOUTME: SSE-based Stream implementation over the agent backend's HTTP surface
// ABOUTME: POSTs user input and consumes the text/event-stream response

package stream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// eventBufferSize is the raw event channel buffer. Matches the
// subscriber buffer used elsewhere in the system.
const eventBufferSize = 64

// submitRequest is the JSON body POSTed to the agent backend.
type submitRequest struct {
	AssistantKey string            `json:"assistant_key"`
	ThreadID     string            `json:"thread_id,omitempty"`
	Input        string            `json:"input"`
	Configurable map[string]string `json:"configurable"`
}

// SSEOpener opens SSEStreams against an HTTP agent backend.
type SSEOpener struct {
	HTTP   *http.Client
	Logger *slog.Logger
}

// Open creates a stream for the given options. No network activity
// happens until the first Submit.
func (o *SSEOpener) Open(_ context.Context, opts OpenOptions) (Stream, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if !opts.Identity.Ready {
		return nil, fmt.Errorf("identity is not ready")
	}

	httpClient := o.HTTP
	if httpClient == nil {
		// No global timeout: the SSE body stays open for the whole
		// response. Cancellation comes from the submit context.
		httpClient = &http.Client{}
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &SSEStream{
		opts:   opts,
		http:   httpClient,
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
		logger: logger.With("component", "sse-stream"),
	}, nil
}

// SSEStream implements Stream over HTTP POST + server-sent events.
type SSEStream struct {
	opts   OpenOptions
	http   *http.Client
	events chan Event
	done   chan struct{}
	logger *slog.Logger

	mu       sync.Mutex
	threadID string
	cancel   context.CancelFunc
	stopped  bool
}

// Events returns the raw event feed.
func (s *SSEStream) Events() <-chan Event {
	return s.events
}

// ThreadID returns the backend-assigned thread id, if one exists yet.
func (s *SSEStream) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Submit POSTs input to the backend and consumes the SSE response into
// the event feed. A previous in-flight request is cancelled first:
// events for one submission are processed in arrival order and never
// interleave with a stale response.
func (s *SSEStream) Submit(ctx context.Context, input string) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("stream is stopped")
	}
	if s.cancel != nil {
		s.cancel()
	}
	reqCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	threadID := s.threadID
	if threadID == "" {
		threadID = s.opts.ThreadID
	}
	s.mu.Unlock()

	body, err := json.Marshal(submitRequest{
		AssistantKey: s.opts.AssistantKey,
		ThreadID:     threadID,
		Input:        input,
		Configurable: map[string]string{"user_id": s.opts.Identity.UserID},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("encoding submit request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		strings.TrimRight(s.opts.Endpoint, "/")+"/runs/stream", bytes.NewReader(body))
	if err != nil {
		cancel()
		return fmt.Errorf("building submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.http.Do(req)
	if err != nil {
		cancel()
		return fmt.Errorf("submitting to stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return fmt.Errorf("stream rejected submit: status %d", resp.StatusCode)
	}

	go s.consume(reqCtx, resp)
	return nil
}

// Stop cancels in-flight activity and retires the event feed.
// Terminal: a stopped stream rejects further submits and emits nothing
// more. The events channel itself stays open so a concurrent consumer
// never races a close; consumers select on their own context.
func (s *SSEStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	close(s.done)
}

// consume reads SSE frames from the response body and emits Events.
func (s *SSEStream) consume(ctx context.Context, resp *http.Response) {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var eventName string
	var data bytes.Buffer

	flush := func() {
		if eventName == "" && data.Len() == 0 {
			return
		}
		s.dispatch(ctx, eventName, data.Bytes())
		eventName = ""
		data.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	flush()

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.send(ctx, Event{Kind: KindError, Err: ErrorValue{Kind: ErrorPlainText, Text: err.Error()}})
	}
}

// dispatch maps one SSE frame to a stream Event.
func (s *SSEStream) dispatch(ctx context.Context, eventName string, data []byte) {
	switch eventName {
	case "started":
		var payload struct {
			ThreadID string `json:"thread_id"`
		}
		if err := json.Unmarshal(data, &payload); err != nil || payload.ThreadID == "" {
			s.logger.Warn("malformed started event", "data", string(data))
			return
		}
		s.mu.Lock()
		s.threadID = payload.ThreadID
		s.mu.Unlock()
		s.send(ctx, Event{Kind: KindThreadCreated, ThreadID: payload.ThreadID})

	case "message":
		var msg RawMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Warn("malformed message event", "error", err)
			return
		}
		s.send(ctx, Event{Kind: KindMessage, Message: msg})

	case "error":
		s.send(ctx, Event{Kind: KindError, Err: NormalizeError(data)})

	case "done":
		s.send(ctx, Event{Kind: KindDone})

	default:
		s.logger.Debug("ignoring unknown stream event", "event", eventName)
	}
}

// send delivers an event unless the stream is stopped or the request
// context is gone.
func (s *SSEStream) send(ctx context.Context, ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	case <-ctx.Done():
	}
}
