package lsg

import "time"

// Backoff computes reconnect delays: min(Base·2^(attempt-1), Cap).
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// DefaultBackoff matches the gateway operators' guidance: start at two
// seconds, never wait more than a minute.
func DefaultBackoff() Backoff {
	return Backoff{Base: 2 * time.Second, Cap: 60 * time.Second}
}

// Next returns the delay before the given 1-based attempt.
func (b Backoff) Next(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 2 * time.Second
	}
	cap := b.Cap
	if cap <= 0 {
		cap = 60 * time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	wait := base
	for i := 1; i < attempt; i++ {
		wait *= 2
		if wait >= cap {
			return cap
		}
	}
	if wait > cap {
		return cap
	}
	return wait
}
