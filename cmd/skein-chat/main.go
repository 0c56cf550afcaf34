// ABOUTME: Entry point for the skein-chat terminal client
// ABOUTME: Streams conversations against an agent backend with local history

package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	"github.com/skeinworks/skein/internal/config"
	"github.com/skeinworks/skein/internal/history"
	"github.com/skeinworks/skein/internal/identity"
	"github.com/skeinworks/skein/internal/session"
	"github.com/skeinworks/skein/internal/sessionsync"
	"github.com/skeinworks/skein/internal/stream"
)

var version = "dev"

// getConfigPath returns the path to the chat client config file.
// Priority: SKEIN_CHAT_CONFIG env var > XDG_CONFIG_HOME/skein/chat.toml > ~/.config/skein/chat.toml
func getConfigPath() string {
	if envPath := os.Getenv("SKEIN_CHAT_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chat.toml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "skein", "chat.toml")
}

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := getConfigPath()
	cfg, err := config.LoadClient(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, cfg.Chat.Debug)

	var registryClient session.RegistrySync
	if cfg.Registry.URL != "" {
		registryClient = sessionsync.New(cfg.Registry.URL, nil, logger)
	}

	persister, err := history.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer persister.Close()

	hist, err := history.New(persister, logger)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	ctrl := session.NewController(session.Deps{
		Opener:       &stream.SSEOpener{Logger: logger},
		History:      hist,
		Registry:     registryClient,
		Endpoint:     cfg.Stream.Endpoint,
		AssistantKey: cfg.Stream.AssistantKey,
		Debug:        cfg.Chat.Debug,
		Logger:       logger,
	})

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	cyan.Printf("skein-chat %s\n", version)
	gray.Printf("  backend:      %s\n", cfg.Stream.Endpoint)
	gray.Printf("  history:      %s\n", cfg.History.Path)
	if cfg.Chat.Debug {
		gray.Printf("  debug:        on\n")
	}
	if cfg.Chat.AutoApprove {
		gray.Printf("  auto-approve: on\n")
	}
	fmt.Println()

	if token := restoreToken(cfg.Registry.TokenFile); token != "" {
		userID, err := userIDFromToken(token)
		if err != nil {
			logger.Warn("stored token unusable", "error", err)
		} else {
			ctrl.OnAuthState(identity.AuthState{
				UserID:        userID,
				Token:         token,
				Authenticated: true,
			})
		}
	}

	return repl(ctrl, hist, cfg)
}

// restoreToken reads a previously saved session token, if any.
func restoreToken(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// userIDFromToken extracts the subject claim without verifying the
// signature. Verification is the registry's job; the client only needs
// the user identifier the token was issued for.
func userIDFromToken(token string) (string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("parsing token: %w", err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return sub, nil
}

func repl(ctrl *session.Controller, hist *history.Store, cfg *config.ClientConfig) error {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	if id := ctrl.Identity(); id.Ready {
		green.Printf("signed in as %s\n", id.UserID)
		if err := ctrl.Open(""); err != nil {
			return fmt.Errorf("opening session: %w", err)
		}
	} else {
		yellow.Println("not signed in: use /login <token> (see skein-registry token)")
	}
	gray.Println("type /help for commands")
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		green.Print("> ")
		if !scanner.Scan() {
			ctrl.Stop()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctrl, hist, cfg, line)
			if err != nil {
				red.Printf("error: %v\n", err)
			}
			if quit {
				ctrl.Stop()
				return nil
			}
			continue
		}

		if err := ctrl.Submit(line); err != nil {
			red.Printf("error: %v\n", err)
			continue
		}
		renderRun(ctrl)
	}
}

func handleCommand(ctrl *session.Controller, hist *history.Store, cfg *config.ClientConfig, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/help":
		printHelp()

	case "/login":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /login <token>")
		}
		token := args[0]
		userID, err := userIDFromToken(token)
		if err != nil {
			return false, err
		}
		ctrl.OnAuthState(identity.AuthState{
			UserID:        userID,
			Token:         token,
			Authenticated: true,
		})
		if !ctrl.Identity().Ready {
			return false, fmt.Errorf("token subject %q is not a usable identity", userID)
		}
		if cfg.Registry.TokenFile != "" {
			if err := os.MkdirAll(filepath.Dir(cfg.Registry.TokenFile), 0755); err == nil {
				_ = os.WriteFile(cfg.Registry.TokenFile, []byte(token), 0600)
			}
		}
		color.Green("signed in as %s", userID)
		return false, ctrl.Open("")

	case "/logout":
		ctrl.Stop()
		ctrl.OnAuthState(identity.AuthState{})
		if cfg.Registry.TokenFile != "" {
			_ = os.Remove(cfg.Registry.TokenFile)
		}
		color.Yellow("signed out; local history cleared")

	case "/new":
		return false, ctrl.Open("")

	case "/switch":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /switch <thread-id|number>")
		}
		threadID := args[0]
		if n, err := strconv.Atoi(threadID); err == nil {
			chats := hist.List()
			if n < 1 || n > len(chats) {
				return false, fmt.Errorf("no chat numbered %d", n)
			}
			threadID = chats[n-1].ThreadID
		}
		if err := ctrl.SwitchThread(threadID); err != nil {
			return false, err
		}
		color.Cyan("switched to %s", threadID)

	case "/history":
		chats := hist.List()
		if len(chats) == 0 {
			fmt.Println("no saved chats")
			return false, nil
		}
		for i, chat := range chats {
			fmt.Printf("%3d. %s  %s  %s\n",
				i+1,
				chat.UpdatedAt.Local().Format("Jan 02 15:04"),
				chat.ThreadID,
				chat.Title)
		}

	case "/rename":
		if len(args) < 1 {
			return false, fmt.Errorf("usage: /rename <title>")
		}
		snap := ctrl.Snapshot()
		if snap.ThreadID == "" {
			return false, fmt.Errorf("no active thread")
		}
		hist.Rename(snap.ThreadID, strings.Join(args, " "))

	case "/delete":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /delete <thread-id>")
		}
		hist.Remove(args[0])

	case "/retry":
		if err := ctrl.Retry(); err != nil {
			return false, err
		}
		renderRun(ctrl)

	case "/stop":
		ctrl.Stop()
		color.Yellow("session stopped")

	case "/quit", "/exit":
		return true, nil

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", cmd)
	}

	return false, nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /login <token>     Sign in with a session token")
	fmt.Println("  /logout            Sign out and clear local history")
	fmt.Println("  /new               Start a new conversation")
	fmt.Println("  /switch <id|n>     Switch to a saved conversation")
	fmt.Println("  /history           List saved conversations")
	fmt.Println("  /rename <title>    Rename the active conversation")
	fmt.Println("  /delete <id>       Delete a saved conversation")
	fmt.Println("  /retry             Retry after a stream error")
	fmt.Println("  /stop              Stop the active session")
	fmt.Println("  /quit              Exit")
}

// renderRun prints streamed output until the run settles: either the
// conversation is waiting for the user again or it ended in an error.
func renderRun(ctrl *session.Controller) {
	red := color.New(color.FgRed)
	gray := color.New(color.FgHiBlack)

	printed := map[string]int{} // message id -> printed rune count
	var lastErr string

	for {
		time.Sleep(80 * time.Millisecond)
		snap := ctrl.Snapshot()

		for _, msg := range snap.Messages {
			if msg.Role == stream.RoleUser {
				continue
			}
			runes := []rune(msg.Content)
			if n := printed[msg.ID]; n < len(runes) {
				if msg.Role == stream.RoleToolCall && n == 0 {
					gray.Print("[tool] ")
				}
				fmt.Print(string(runes[n:]))
				printed[msg.ID] = len(runes)
			}
		}

		switch snap.State {
		case session.StateWaitingForUser, session.StateIdle, session.StateStopped:
			fmt.Println()
			return
		case session.StateErroring:
			if snap.Error != nil && snap.Error.Text != lastErr {
				lastErr = snap.Error.Text
				fmt.Println()
				red.Println(snap.Error.Text)
				if snap.Error.Retryable {
					gray.Println("(/retry to try again)")
				}
			}
			return
		}
	}
}

func setupLogger(cfg config.LoggingTOML, debug bool) *slog.Logger {
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
		if debug {
			level = slog.LevelDebug
		} else {
			level = slog.LevelWarn
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	// Logs go to stderr so they never interleave with the chat transcript.
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
