// ABOUTME: Entry point for the skein-registry session registry server
// ABOUTME: Records user sessions and thread ownership in Redis

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/skeinworks/skein/internal/config"
	"github.com/skeinworks/skein/internal/identity"
	"github.com/skeinworks/skein/internal/registry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
     _        _
 ___| | _____(_)_ __        _ __ ___  __ _
/ __| |/ / _ \ | '_ \ _____| '__/ _ \/ _' |
\__ \   <  __/ | | | |_____| | |  __/ (_| |
|___/_|\_\___|_|_| |_|     |_|  \___|\__, |
                                     |___/
`

// getConfigPath returns the path to the registry config file.
// Priority: SKEIN_CONFIG env var > XDG_CONFIG_HOME/skein/registry.yaml > ~/.config/skein/registry.yaml
func getConfigPath() string {
	if envPath := os.Getenv("SKEIN_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "registry.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "skein", "registry.yaml")
}

func main() {
	// Local .env overrides are optional.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Println("Usage: skein-registry <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve                Start the registry server")
		fmt.Println("  init                 Create a new config file interactively")
		fmt.Println("  token --user USER    Issue a session token for a user")
		fmt.Println("  health               Check registry health")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "token":
		err = runToken()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:    %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Redis:   %s\n", cfg.Redis.URI)
	green.Print("    ▶ ")
	fmt.Printf("TTL:     %s\n", cfg.Auth.SessionTTL)
	fmt.Println()

	logger.Info("starting skein-registry",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"session_ttl", cfg.Auth.SessionTTL,
	)

	store, err := registry.NewRedisStore(ctx, cfg.Redis.URI, cfg.Auth.SessionTTL, logger)
	if err != nil {
		return fmt.Errorf("opening redis store: %w", err)
	}
	defer store.Close()

	verifier := identity.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	srv := registry.NewServer(store, verifier, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// runToken issues a session token signed with the registry's secret.
// Useful for local development and smoke tests.
func runToken() error {
	var userID string
	args := os.Args[2:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--user" || arg == "-u":
			if i+1 >= len(args) {
				return fmt.Errorf("--user requires a value")
			}
			userID = args[i+1]
			i++
		case strings.HasPrefix(arg, "--user="):
			userID = strings.TrimPrefix(arg, "--user=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("unknown flag: %s", arg)
		default:
			return fmt.Errorf("unexpected argument: %s", arg)
		}
	}

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return fmt.Errorf("--user flag is required")
	}
	if strings.EqualFold(userID, identity.AnonymousSentinel) {
		return fmt.Errorf("%q is a reserved identifier", userID)
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	verifier := identity.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	token, err := verifier.Issue(userID, cfg.Auth.SessionTTL)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}

	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	url := fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}

	fmt.Println("healthy")
	return nil
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("skein-registry configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	defaultConfigPath := getConfigPath()
	outputFile := prompt(reader, "Config file path", defaultConfigPath)

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", "localhost:8090")

	fmt.Println("\n--- Redis Configuration ---")
	redisURI := prompt(reader, "Redis URI", "redis://localhost:6379/0")

	fmt.Println("\n--- Auth Configuration ---")
	sessionTTL := prompt(reader, "Session TTL", "24h")

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	var cfg strings.Builder
	cfg.WriteString("# skein-registry configuration\n")
	cfg.WriteString("# Generated by skein-registry init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString("\n")

	cfg.WriteString("redis:\n")
	cfg.WriteString(fmt.Sprintf("  uri: \"%s\"\n", redisURI))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", jwtSecret))
	cfg.WriteString(fmt.Sprintf("  session_ttl: \"%s\"\n", sessionTTL))
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Printf("  skein-registry serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{level: level, out: os.Stdout})
}

// levelTags maps slog levels to colored three-letter tags.
var levelTags = map[slog.Level]string{
	slog.LevelDebug: color.MagentaString("DBG"),
	slog.LevelInfo:  color.CyanString("INF"),
	slog.LevelWarn:  color.YellowString("WRN"),
	slog.LevelError: color.New(color.FgRed, color.Bold).Sprint("ERR"),
}

// colorHandler renders one colorized line per record. Writes are
// serialized so concurrent goroutines never interleave lines.
type colorHandler struct {
	mu    sync.Mutex
	level slog.Level
	out   io.Writer
	attrs []slog.Attr
	group string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05")))
	buf.WriteByte(' ')
	tag, ok := levelTags[r.Level]
	if !ok {
		tag = "???"
	}
	buf.WriteString(tag)
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		h.writeAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) writeAttr(buf *strings.Builder, a slog.Attr) {
	key := a.Key
	if h.group != "" {
		key = h.group + "." + key
	}
	buf.WriteString(color.HiBlackString(" " + key + "="))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) clone() *colorHandler {
	return &colorHandler{
		level: h.level,
		out:   h.out,
		attrs: append([]slog.Attr(nil), h.attrs...),
		group: h.group,
	}
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	c.attrs = append(c.attrs, attrs...)
	return c
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	c := h.clone()
	if c.group != "" {
		c.group += "." + name
	} else {
		c.group = name
	}
	return c
}
