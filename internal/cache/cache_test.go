package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetWithinMaxAge(t *testing.T) {
	now := time.Now()
	c := NewWithClock(func() time.Time { return now })

	c.Set("prices", []float64{43250.00})

	got, ok := c.Get("prices", time.Minute)
	assert.True(t, ok)
	assert.Equal(t, []float64{43250.00}, got)
}

func TestGetBeyondMaxAge(t *testing.T) {
	now := time.Now()
	c := NewWithClock(func() time.Time { return now })

	c.Set("prices", "v")

	// Same entry: fresh for a 5-minute reader, stale for a 1-minute reader.
	now = now.Add(2 * time.Minute)
	_, ok := c.Get("prices", time.Minute)
	assert.False(t, ok)
	_, ok = c.Get("prices", 5*time.Minute)
	assert.True(t, ok)
}

func TestGetExactBoundaryIsStale(t *testing.T) {
	now := time.Now()
	c := NewWithClock(func() time.Time { return now })

	c.Set("k", 1)
	now = now.Add(time.Minute)

	// now - insertedAt >= maxAge means absent.
	_, ok := c.Get("k", time.Minute)
	assert.False(t, ok)
}

func TestGetMissingKey(t *testing.T) {
	c := New()

	_, ok := c.Get("nothing", time.Hour)
	assert.False(t, ok)
}

func TestSetReplaces(t *testing.T) {
	now := time.Now()
	c := NewWithClock(func() time.Time { return now })

	c.Set("k", "old")
	now = now.Add(time.Hour)
	c.Set("k", "new")

	got, ok := c.Get("k", time.Minute)
	assert.True(t, ok)
	assert.Equal(t, "new", got)
}

func TestHas(t *testing.T) {
	now := time.Now()
	c := NewWithClock(func() time.Time { return now })

	c.Set("k", 42)
	assert.True(t, c.Has("k", time.Minute))

	now = now.Add(2 * time.Minute)
	assert.False(t, c.Has("k", time.Minute))
}

func TestDelete(t *testing.T) {
	c := New()

	c.Set("k", 1)
	assert.True(t, c.Delete("k"))
	assert.False(t, c.Delete("k"))
	assert.False(t, c.Has("k", time.Hour))
}

func TestInvalidateBySubstring(t *testing.T) {
	c := New()

	c.Set(Key("fmp", "profile", "AAPL"), 1)
	c.Set(Key("fmp", "profile", "MSFT"), 2)
	c.Set(Key("fmp", "quote", "AAPL"), 3)
	c.Set(Key("ai", "summary", "AAPL"), 4)

	removed := c.Invalidate("fmp:profile")
	assert.Equal(t, 2, removed)

	assert.False(t, c.Has("fmp:profile:AAPL", time.Hour))
	assert.False(t, c.Has("fmp:profile:MSFT", time.Hour))
	assert.True(t, c.Has("fmp:quote:AAPL", time.Hour))
	assert.True(t, c.Has("ai:summary:AAPL", time.Hour))
}

func TestStats(t *testing.T) {
	c := New()

	c.Set("a", 1)
	c.Set("b", 2)

	size, keys := c.Stats()
	assert.Equal(t, 2, size)
	assert.ElementsMatch(t, []string{"a", "b"}, keys)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "fmp:profile:AAPL", Key("fmp", "profile", "AAPL"))
	assert.Equal(t, "prices", Key("prices"))
}

func TestConcurrentAccess(t *testing.T) {
	c := New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				c.Set("shared", j)
				c.Get("shared", time.Minute)
				c.Has("shared", time.Minute)
			}
		}()
	}
	wg.Wait()

	// The last write must be observable in full; no torn pairs.
	_, ok := c.Get("shared", time.Minute)
	assert.True(t, ok)
}
