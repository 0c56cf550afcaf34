// ABOUTME: Minimal fake agent backend for E2E testing — serves the SSE run endpoint, echoes messages with markdown.
// ABOUTME: Usage: fake-agent [-addr localhost:8123] [-fail-with "boom"] [-fail-count 3]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

func main() {
	addr := flag.String("addr", "localhost:8123", "HTTP listen address")
	failWith := flag.String("fail-with", "", "Emit this error text instead of a reply")
	failCount := flag.Int("fail-count", -1, "Number of runs to fail before recovering (-1 = every run)")
	delay := flag.Duration("delay", 50*time.Millisecond, "Delay between streamed chunks")
	flag.Parse()

	if err := run(*addr, *failWith, *failCount, *delay); err != nil {
		log.Fatal(err)
	}
}

type agent struct {
	failWith  string
	failCount int64 // -1 means fail forever
	failed    atomic.Int64
	delay     time.Duration
}

type runRequest struct {
	AssistantKey string            `json:"assistant_key"`
	ThreadID     string            `json:"thread_id"`
	Input        string            `json:"input"`
	Configurable map[string]string `json:"configurable"`
}

func run(addr, failWith string, failCount int, delay time.Duration) error {
	a := &agent{failWith: failWith, failCount: int64(failCount), delay: delay}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /runs/stream", a.handleRun)

	server := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		fmt.Fprintf(os.Stderr, "fake-agent listening on %s\n", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	return server.Shutdown(shutdownCtx)
}

func (a *agent) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	threadID := req.ThreadID
	if threadID == "" {
		threadID = uuid.New().String()
	}

	log.Printf("run [thread=%s user=%s]: %s", threadID, req.Configurable["user_id"], req.Input)

	emit := func(event string, data any) {
		payload, _ := json.Marshal(data)
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
		flusher.Flush()
	}

	emit("started", map[string]string{"thread_id": threadID})

	if a.failWith != "" && (a.failCount < 0 || a.failed.Add(1) <= a.failCount) {
		emit("error", map[string]string{"error": a.failWith})
		emit("done", map[string]string{})
		return
	}

	reply := echoReply(req.Input)
	msgID := uuid.New().String()

	// Stream the reply in chunks so clients see partial deltas.
	for _, chunk := range chunks(reply, 24) {
		emit("message", map[string]any{
			"id":      msgID,
			"role":    "agent",
			"content": chunk,
			"delta":   true,
		})
		select {
		case <-r.Context().Done():
			return
		case <-time.After(a.delay):
		}
	}

	// Final snapshot of the full message, then done.
	emit("message", map[string]any{
		"id":      msgID,
		"role":    "agent",
		"content": reply,
	})
	emit("done", map[string]string{})
}

func chunks(s string, size int) []string {
	var out []string
	runes := []rune(s)
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		out = append(out, string(runes[:n]))
		runes = runes[n:]
	}
	return out
}

func echoReply(input string) string {
	lower := strings.ToLower(input)
	if strings.Contains(lower, "markdown") || strings.Contains(lower, "bullet") || strings.Contains(lower, "list") {
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote.\n"
	}
	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", input)
}
