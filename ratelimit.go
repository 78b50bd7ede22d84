package irc

import (
	"sync"
	"time"
)

// RateLimit configures the outbound token bucket: capacity tokens are
// available per window, refilled in one jump once window has elapsed
// rather than trickling in continuously.
type RateLimit struct {
	Capacity int
	Window   time.Duration
}

// defaultRateLimit matches SessionConfig's documented default: 5
// messages per 2 seconds.
var defaultRateLimit = RateLimit{Capacity: 5, Window: 2 * time.Second}

// rateLimiter is a window-snapshot token bucket implementing the
// acquire algorithm in spec.md §4.4 exactly: tokens reset to capacity
// once an entire window has elapsed since the last refill, rather than
// trickling in continuously like golang.org/x/time/rate (see
// DESIGN.md's Domain stack section for why that package isn't used
// here). sync.Mutex + time.Sleep is the simplest correct translation of
// the pseudocode's "while tokens <= 0: sleep" loop.
type rateLimiter struct {
	mu         sync.Mutex
	capacity   int
	window     time.Duration
	tokens     int
	lastRefill time.Time
	now        func() time.Time
	sleep      func(time.Duration)
}

func newRateLimiter(cfg RateLimit) *rateLimiter {
	if cfg.Capacity <= 0 {
		cfg.Capacity = defaultRateLimit.Capacity
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultRateLimit.Window
	}
	return &rateLimiter{
		capacity:   cfg.Capacity,
		window:     cfg.Window,
		tokens:     cfg.Capacity,
		lastRefill: time.Now(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// acquire blocks, if necessary, until a token is available, then
// consumes one. It implements spec.md §4.4 steps 1-3 under the
// limiter's own mutex, so concurrent callers never observe tokens go
// negative (invariant 5 of §3).
func (r *rateLimiter) acquire() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for {
		elapsed := r.now().Sub(r.lastRefill)
		if elapsed >= r.window {
			r.tokens = r.capacity
			r.lastRefill = r.now()
			elapsed = 0
		}
		if r.tokens > 0 {
			break
		}
		wait := r.window - elapsed
		if wait < 0 {
			wait = 0
		}
		r.mu.Unlock()
		r.sleep(wait)
		r.mu.Lock()
	}
	r.tokens--
}
