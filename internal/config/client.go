// ABOUTME: Chat client configuration loaded from TOML
// ABOUTME: Applies the debug/auto-approve coupling during normalization

package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ClientConfig represents the chat client configuration.
type ClientConfig struct {
	Stream   StreamConfig   `toml:"stream"`
	History  HistoryConfig  `toml:"history"`
	Registry RegistryConfig `toml:"registry"`
	Chat     ChatConfig     `toml:"chat"`
	Logging  LoggingTOML    `toml:"logging"`
}

// StreamConfig identifies the agent backend the client streams against.
type StreamConfig struct {
	Endpoint     string `toml:"endpoint"`
	AssistantKey string `toml:"assistant_key"`
}

// HistoryConfig holds the local chat history store configuration.
type HistoryConfig struct {
	Path string `toml:"path"`
}

// RegistryConfig points at the external session registry.
type RegistryConfig struct {
	URL       string `toml:"url"`
	TokenFile string `toml:"token_file"`
}

// ChatConfig holds chat behavior flags.
type ChatConfig struct {
	Debug       bool `toml:"debug"`
	AutoApprove bool `toml:"auto_approve"`
}

// LoggingTOML mirrors LoggingConfig for the TOML surface.
type LoggingTOML struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// LoadClient reads the chat client configuration from a TOML file.
// Environment variables in the format ${VAR_NAME} are expanded, then the
// debug/auto-approve coupling is applied.
func LoadClient(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg ClientConfig
	if _, err := toml.Decode(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Normalize applies cross-field policy. Disabling debug mode force-enables
// auto-approve so that non-debug runs never block on tool prompts. The
// session state machine never sees this rule.
func (c *ClientConfig) Normalize() {
	if !c.Chat.Debug {
		c.Chat.AutoApprove = true
	}
}

// Validate checks that all required configuration fields are present.
func (c *ClientConfig) Validate() error {
	if c.Stream.Endpoint == "" {
		return fmt.Errorf("stream.endpoint is required")
	}
	if c.Stream.AssistantKey == "" {
		return fmt.Errorf("stream.assistant_key is required")
	}
	if c.History.Path == "" {
		return fmt.Errorf("history.path is required")
	}
	return nil
}
