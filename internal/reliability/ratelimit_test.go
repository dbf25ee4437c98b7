package reliability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterAdmitsUpToMax(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(5, time.Minute)
	rl.SetClock(func() time.Time { return now })

	for i := 0; i < 5; i++ {
		assert.True(t, rl.Allow(), "request %d should be admitted", i)
	}
	assert.False(t, rl.Allow(), "6th request in window must be rejected")
}

func TestRateLimiterWindowReset(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(2, time.Minute)
	rl.SetClock(func() time.Time { return now })

	require.True(t, rl.Allow())
	require.True(t, rl.Allow())
	require.False(t, rl.Allow())

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow(), "admission resumes after the window elapses")
}

func TestRateLimiterStatus(t *testing.T) {
	now := time.Now()
	rl := NewRateLimiter(3, time.Minute)
	rl.SetClock(func() time.Time { return now })

	assert.Equal(t, 3, rl.Status().RequestsRemaining)

	rl.Allow()
	rl.Allow()
	st := rl.Status()
	assert.Equal(t, 1, st.RequestsRemaining)
	assert.Equal(t, now.Add(time.Minute), st.ResetAt)

	// Status never consumes budget.
	assert.Equal(t, 1, rl.Status().RequestsRemaining)
}

func TestKeyedRateLimiterIndependentWindows(t *testing.T) {
	now := time.Now()
	kl := NewKeyedRateLimiter(2, time.Minute)
	kl.SetClock(func() time.Time { return now })

	ok, remaining, _ := kl.Allow("1.2.3.4")
	require.True(t, ok)
	assert.Equal(t, 1, remaining)

	kl.Allow("1.2.3.4")
	ok, _, resetAt := kl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, now.Add(time.Minute), resetAt)

	// A different client is unaffected.
	ok, _, _ = kl.Allow("5.6.7.8")
	assert.True(t, ok)
}

func TestKeyedRateLimiterReset(t *testing.T) {
	now := time.Now()
	kl := NewKeyedRateLimiter(1, time.Minute)
	kl.SetClock(func() time.Time { return now })

	kl.Allow("ip")
	ok, _, _ := kl.Allow("ip")
	require.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _, _ = kl.Allow("ip")
	assert.True(t, ok)
}

func TestKeyedRateLimiterPrune(t *testing.T) {
	now := time.Now()
	kl := NewKeyedRateLimiter(1, time.Minute)
	kl.SetClock(func() time.Time { return now })

	kl.Allow("a")
	kl.Allow("b")

	now = now.Add(2 * time.Minute)
	kl.Allow("c")

	removed := kl.Prune()
	assert.Equal(t, 2, removed)
}
