// Package config handles configuration loading for skein.
//
// # Overview
//
// Two surfaces are configured separately:
//
//   - The session registry server loads YAML (Load) with environment
//     variable expansion and duration parsing.
//   - The chat client loads TOML (LoadClient), also with environment
//     variable expansion.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${SKEIN_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  session_ttl: "24h"
//
// # Debug / Auto-Approve Coupling
//
// The chat client's verbose debug mode and the tool auto-approve flag are
// coupled: when debug is off, auto-approve is forced on so that normal
// runs never stall on tool prompts. The coupling is applied once, during
// client config normalization, and nowhere else.
package config
