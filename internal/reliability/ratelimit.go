package reliability

import (
	"sync"
	"time"
)

// RateStatus reports the remaining budget of a fixed window.
type RateStatus struct {
	RequestsRemaining int       `json:"requestsRemaining"`
	ResetAt           time.Time `json:"resetAt"`
}

// RateLimiter is a fixed-window counter: at most maxRequests admissions per
// window. Admission checks and increments happen under one lock, so the
// (count+1)-th request inside a window is always rejected.
type RateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu              sync.Mutex
	count           int
	windowStartedAt time.Time
}

// NewRateLimiter creates a fixed-window limiter.
func NewRateLimiter(maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// SetClock overrides the time source, for tests.
func (rl *RateLimiter) SetClock(now func() time.Time) {
	rl.mu.Lock()
	rl.now = now
	rl.mu.Unlock()
}

// Allow admits the request iff the current window has budget, incrementing
// the counter on admission.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.rollWindow()
	if rl.count >= rl.maxRequests {
		return false
	}
	rl.count++
	return true
}

// Status returns the remaining budget without consuming any.
func (rl *RateLimiter) Status() RateStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.rollWindow()
	return RateStatus{
		RequestsRemaining: rl.maxRequests - rl.count,
		ResetAt:           rl.windowStartedAt.Add(rl.window),
	}
}

// rollWindow resets the counter when the window has elapsed. Caller holds mu.
func (rl *RateLimiter) rollWindow() {
	now := rl.now()
	if rl.windowStartedAt.IsZero() || now.Sub(rl.windowStartedAt) > rl.window {
		rl.windowStartedAt = now
		rl.count = 0
	}
}

// KeyedRateLimiter maintains an independent fixed window per key. Used for
// the per-IP inbound limiter.
type KeyedRateLimiter struct {
	maxRequests int
	window      time.Duration
	now         func() time.Time

	mu      sync.Mutex
	windows map[string]*keyWindow
}

type keyWindow struct {
	count           int
	windowStartedAt time.Time
}

// NewKeyedRateLimiter creates a per-key fixed-window limiter.
func NewKeyedRateLimiter(maxRequests int, window time.Duration) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
		windows:     make(map[string]*keyWindow),
	}
}

// SetClock overrides the time source, for tests.
func (kl *KeyedRateLimiter) SetClock(now func() time.Time) {
	kl.mu.Lock()
	kl.now = now
	kl.mu.Unlock()
}

// Allow admits a request for key, returning the admission decision, the
// remaining budget, and the end of the current window.
func (kl *KeyedRateLimiter) Allow(key string) (bool, int, time.Time) {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	w, ok := kl.windows[key]
	if !ok || now.Sub(w.windowStartedAt) > kl.window {
		w = &keyWindow{windowStartedAt: now}
		kl.windows[key] = w
	}

	resetAt := w.windowStartedAt.Add(kl.window)
	if w.count >= kl.maxRequests {
		return false, 0, resetAt
	}
	w.count++
	return true, kl.maxRequests - w.count, resetAt
}

// Prune drops windows idle for longer than the window size, bounding the map.
func (kl *KeyedRateLimiter) Prune() int {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	now := kl.now()
	removed := 0
	for key, w := range kl.windows {
		if now.Sub(w.windowStartedAt) > kl.window {
			delete(kl.windows, key)
			removed++
		}
	}
	return removed
}
