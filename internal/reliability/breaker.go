// Package reliability provides the failure-containment primitives shared by
// every upstream adapter: per-upstream circuit breakers and fixed-window
// rate limiters.
package reliability

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is a circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// ErrCircuitOpen is returned when a call is rejected without being attempted.
var ErrCircuitOpen = errors.New("circuit open")

// BreakerConfig holds per-breaker parameters.
type BreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures in CLOSED before opening
	SuccessThreshold int           // consecutive successes in HALF_OPEN before closing
	ResetTimeout     time.Duration // OPEN dwell time before a trial call
}

// BreakerStats is a snapshot of breaker state for status endpoints.
type BreakerStats struct {
	Name          string    `json:"name"`
	State         State     `json:"state"`
	FailureCount  int       `json:"failureCount"`
	SuccessCount  int       `json:"successCount"`
	LastFailureAt time.Time `json:"lastFailureAt"`
}

// Breaker gates outbound calls to one named upstream. All transitions are
// serialized per breaker; calls themselves run outside the lock.
type Breaker struct {
	cfg BreakerConfig
	log zerolog.Logger
	now func() time.Time

	mu            sync.Mutex
	state         State
	failureCount  int
	successCount  int
	lastFailureAt time.Time
}

// NewBreaker creates a breaker in the CLOSED state.
func NewBreaker(cfg BreakerConfig, log zerolog.Logger) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}

	return &Breaker{
		cfg:   cfg,
		log:   log.With().Str("breaker", cfg.Name).Logger(),
		now:   time.Now,
		state: StateClosed,
	}
}

// SetClock overrides the time source, for tests.
func (b *Breaker) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Execute runs fn through the breaker. It is the only way to call an
// upstream: an OPEN breaker rejects with ErrCircuitOpen before fn runs.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	if err := fn(); err != nil {
		b.recordFailure()
		return err
	}

	b.recordSuccess()
	return nil
}

// ExecuteWithFallback runs fn through the breaker and falls back on any
// error, including ErrCircuitOpen.
func (b *Breaker) ExecuteWithFallback(fn, fallback func() error) error {
	if err := b.Execute(fn); err != nil {
		return fallback()
	}
	return nil
}

// Reset forces the breaker back to CLOSED with zeroed counters. Operator
// escape hatch.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.successCount = 0
	b.log.Info().Msg("Breaker manually reset")
}

// Stats returns a snapshot of the breaker state.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerStats{
		Name:          b.cfg.Name,
		State:         b.state,
		FailureCount:  b.failureCount,
		SuccessCount:  b.successCount,
		LastFailureAt: b.lastFailureAt,
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	if b.now().Sub(b.lastFailureAt) >= b.cfg.ResetTimeout {
		b.state = StateHalfOpen
		b.successCount = 0
		b.log.Info().Msg("Breaker half-open, admitting trial call")
		return nil
	}

	return ErrCircuitOpen
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.log.Info().Msg("Breaker closed")
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
			b.lastFailureAt = b.now()
			b.log.Warn().
				Int("failures", b.failureCount).
				Msg("Breaker opened")
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successCount = 0
		b.lastFailureAt = b.now()
		b.log.Warn().Msg("Trial call failed, breaker re-opened")
	}
}
