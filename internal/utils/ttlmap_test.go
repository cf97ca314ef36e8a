package utils

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMap(t *testing.T) (*TTLMap[string, int], *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := newTTLMap[string, int](time.Minute, clock.Now)
	t.Cleanup(m.Close)

	return m, clock
}

func TestTTLMap(t *testing.T) {
	t.Parallel()

	t.Run("set and get", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMap(t)
		m.Set("a", 1)

		value, ok := m.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, value)

		_, ok = m.Get("missing")
		assert.False(t, ok)
	})

	t.Run("expiry", func(t *testing.T) {
		t.Parallel()

		m, clock := newTestMap(t)
		m.Set("a", 1)
		clock.Advance(time.Minute + time.Second)

		_, ok := m.Get("a")
		assert.False(t, ok)

		m.removeExpired()
		assert.Zero(t, m.Len())
	})

	t.Run("delete", func(t *testing.T) {
		t.Parallel()

		m, _ := newTestMap(t)
		m.Set("a", 1)
		m.Delete("a")

		_, ok := m.Get("a")
		assert.False(t, ok)
	})

	t.Run("get or set refreshes expiry", func(t *testing.T) {
		t.Parallel()

		m, clock := newTestMap(t)
		calls := 0
		create := func() int {
			calls++
			return calls
		}

		assert.Equal(t, 1, m.GetOrSet("a", create))
		clock.Advance(50 * time.Second)
		assert.Equal(t, 1, m.GetOrSet("a", create))
		clock.Advance(50 * time.Second)

		value, ok := m.Get("a")
		assert.True(t, ok)
		assert.Equal(t, 1, value)

		clock.Advance(2 * time.Minute)
		assert.Equal(t, 2, m.GetOrSet("a", create))
	})
}
