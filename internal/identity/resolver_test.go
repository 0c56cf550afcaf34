// ABOUTME: Tests for identity resolution from authentication snapshots
// ABOUTME: Verifies ready invariant, trimming, and the anonymous sentinel

package identity

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testResolver() *Resolver {
	return NewResolver(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolver_Resolve(t *testing.T) {
	tests := []struct {
		name       string
		state      AuthState
		wantReady  bool
		wantUserID string
	}{
		{
			name:      "loading never ready",
			state:     AuthState{UserID: "bob", Authenticated: true, Loading: true},
			wantReady: false,
		},
		{
			name:      "unauthenticated never ready",
			state:     AuthState{UserID: "bob"},
			wantReady: false,
		},
		{
			name:       "valid identifier",
			state:      AuthState{UserID: "bob", Authenticated: true},
			wantReady:  true,
			wantUserID: "bob",
		},
		{
			name:       "identifier is trimmed",
			state:      AuthState{UserID: "  Bob  ", Authenticated: true},
			wantReady:  true,
			wantUserID: "Bob",
		},
		{
			name:      "empty identifier",
			state:     AuthState{UserID: "", Authenticated: true},
			wantReady: false,
		},
		{
			name:      "whitespace only identifier",
			state:     AuthState{UserID: "   ", Authenticated: true},
			wantReady: false,
		},
		{
			name:      "anonymous sentinel",
			state:     AuthState{UserID: "anonymous", Authenticated: true},
			wantReady: false,
		},
		{
			name:      "anonymous sentinel is case-insensitive",
			state:     AuthState{UserID: "Anonymous", Authenticated: true},
			wantReady: false,
		},
		{
			name:      "anonymous sentinel after trimming",
			state:     AuthState{UserID: "  ANONYMOUS  ", Authenticated: true},
			wantReady: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := testResolver().Resolve(tt.state)
			assert.Equal(t, tt.wantReady, got.Ready)
			assert.Equal(t, tt.wantUserID, got.UserID)
		})
	}
}

// A ready context must never carry an empty or anonymous identifier,
// whatever the input snapshot looked like.
func TestResolver_ReadyInvariant(t *testing.T) {
	inputs := []AuthState{
		{UserID: "bob", Authenticated: true},
		{UserID: " alice ", Authenticated: true},
		{UserID: "anonymous", Authenticated: true},
		{UserID: "ANONYMOUS ", Authenticated: true},
		{UserID: "", Authenticated: true},
		{UserID: "carol", Authenticated: false},
		{UserID: "carol", Authenticated: true, Loading: true},
	}

	r := testResolver()
	for _, state := range inputs {
		got := r.Resolve(state)
		if got.Ready {
			assert.NotEmpty(t, got.UserID)
			assert.Equal(t, got.UserID, strings.TrimSpace(got.UserID))
			assert.NotEqual(t, AnonymousSentinel, strings.ToLower(got.UserID))
		}
	}
}

func TestResolver_Idempotent(t *testing.T) {
	r := testResolver()
	state := AuthState{UserID: "  Bob  ", Authenticated: true}

	first := r.Resolve(state)
	second := r.Resolve(state)
	assert.Equal(t, first, second)
}
