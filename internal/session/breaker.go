// ABOUTME: Error repetition circuit breaker over a bounded ring of recent errors
// ABOUTME: Trips on three identical consecutive error texts unless debug mode is on

package session

import (
	"time"
)

// ErrorRingCapacity bounds the per-session error ring.
const ErrorRingCapacity = 5

// tripThreshold is how many identical consecutive errors trip the breaker.
const tripThreshold = 3

// ErrorRecord is one observed stream error.
type ErrorRecord struct {
	Text      string
	Timestamp time.Time
}

// Breaker observes stream errors for one thread session and decides
// whether retrying still makes sense. Not safe for concurrent use; the
// controller serializes access.
type Breaker struct {
	debug   bool
	ring    []ErrorRecord // most recent last, len <= ErrorRingCapacity
	tripped bool
}

// NewBreaker creates an untripped breaker. With debug true the breaker
// never trips: repetition protection is traded for operator visibility.
func NewBreaker(debug bool) *Breaker {
	return &Breaker{debug: debug}
}

// Record appends an error to the ring, dropping the oldest beyond
// capacity, and evaluates the trip condition.
func (b *Breaker) Record(text string, at time.Time) {
	b.ring = append(b.ring, ErrorRecord{Text: text, Timestamp: at})
	if len(b.ring) > ErrorRingCapacity {
		b.ring = b.ring[len(b.ring)-ErrorRingCapacity:]
	}

	if b.debug || len(b.ring) < tripThreshold {
		return
	}

	last := b.ring[len(b.ring)-tripThreshold:]
	for _, r := range last {
		if r.Text != last[0].Text {
			return
		}
	}
	b.tripped = true
}

// Tripped reports whether the breaker is in its terminal tripped state.
func (b *Breaker) Tripped() bool {
	return b.tripped
}

// RetryAllowed reports whether a retry affordance should be offered.
// Debug mode always offers one.
func (b *Breaker) RetryAllowed() bool {
	if b.debug {
		return true
	}
	return !b.tripped
}

// Clear wipes the ring and untrips the breaker. Called on any
// successful, non-erroring transition: the breaker is amnesiac across
// successes.
func (b *Breaker) Clear() {
	b.ring = nil
	b.tripped = false
}

// Records returns the ring contents, oldest first.
func (b *Breaker) Records() []ErrorRecord {
	out := make([]ErrorRecord, len(b.ring))
	copy(out, b.ring)
	return out
}

// LastError returns the most recent error text, if any.
func (b *Breaker) LastError() (string, bool) {
	if len(b.ring) == 0 {
		return "", false
	}
	return b.ring[len(b.ring)-1].Text, true
}
