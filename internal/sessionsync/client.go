// ABOUTME: HTTP client for the external session registry
// ABOUTME: Bearer-auth POSTs for session creation and thread linking

package sessionsync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// defaultTimeout bounds registry calls so a slow registry can never
// stall a caller that forgot its own context deadline.
const defaultTimeout = 10 * time.Second

// Ack is the registry's structured acknowledgement.
type Ack struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	UserID   string `json:"user_id,omitempty"`
	ThreadID string `json:"thread_id,omitempty"`
}

// SessionSyncError is a registry failure carrying the server-provided
// detail or a generic fallback.
type SessionSyncError struct {
	Status int
	Detail string
}

func (e *SessionSyncError) Error() string {
	return fmt.Sprintf("session registry error (status %d): %s", e.Status, e.Detail)
}

// Client is the session registry HTTP client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a registry client for the given base URL.
// Pass nil httpClient for a default with a 10s timeout.
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.With("component", "sessionsync"),
	}
}

// CreateSession registers the authenticated session with the registry.
// Idempotent: re-creating an existing session refreshes it.
func (c *Client) CreateSession(ctx context.Context, token string) (*Ack, error) {
	return c.post(ctx, "/session/create", token)
}

// LinkThread associates threadID with the authenticated session.
// Idempotent: linking an already-linked thread refreshes the link.
func (c *Client) LinkThread(ctx context.Context, threadID, token string) (*Ack, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	return c.post(ctx, "/thread/"+threadID, token)
}

func (c *Client) post(ctx context.Context, path, token string) (*Ack, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(nil))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling registry: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading registry response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &SessionSyncError{
			Status: resp.StatusCode,
			Detail: errorDetail(body),
		}
	}

	var ack Ack
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("parsing registry response: %w", err)
	}

	c.logger.Debug("registry call succeeded",
		"path", path,
		"message", ack.Message)
	return &ack, nil
}

// errorDetail extracts the {detail} field from an error body, falling
// back to a generic message.
func errorDetail(body []byte) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return "session registry request failed"
}
