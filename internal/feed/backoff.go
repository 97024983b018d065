package feed

import (
	"math"
	"time"
)

// Default reconnect policy for the upstream news feed.
const (
	DefaultBaseBackoff = time.Second
	DefaultMaxBackoff  = 60 * time.Second
)

// Backoff is an exponential reconnect policy: Delay(n) = min(Base*2^n, Max).
// A non-positive Max disables the cap.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff returns the 1s/60s upstream policy.
func DefaultBackoff() Backoff {
	return Backoff{Base: DefaultBaseBackoff, Max: DefaultMaxBackoff}
}

// Delay returns the wait before reconnect attempt n (zero-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	ceiling := b.Max
	if ceiling <= 0 {
		ceiling = time.Duration(math.MaxInt64)
	}
	if attempt >= 62 {
		return ceiling
	}

	d := b.Base << uint(attempt)
	if d <= 0 || d>>uint(attempt) != b.Base || d > ceiling {
		return ceiling
	}
	return d
}
