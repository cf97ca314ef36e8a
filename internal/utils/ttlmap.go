package utils

import (
	"sync"
	"time"
)

// TTLMap is a thread-safe map whose entries expire a fixed duration after
// their last write. A background goroutine sweeps expired entries until Close.
type TTLMap[K comparable, V any] struct {
	mu      sync.RWMutex
	data    map[K]V
	expires map[K]time.Time
	ttl     time.Duration
	now     func() time.Time
	done    chan struct{}
	once    sync.Once
}

// NewTTLMap creates a TTLMap and starts its sweeper.
func NewTTLMap[K comparable, V any](ttl time.Duration) *TTLMap[K, V] {
	return newTTLMap[K, V](ttl, time.Now)
}

func newTTLMap[K comparable, V any](ttl time.Duration, now func() time.Time) *TTLMap[K, V] {
	m := &TTLMap[K, V]{
		data:    make(map[K]V),
		expires: make(map[K]time.Time),
		ttl:     ttl,
		now:     now,
		done:    make(chan struct{}),
	}

	go m.sweep()

	return m
}

// Get returns the value stored under key if it has not expired.
func (m *TTLMap[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.data[key]
	if !ok || m.now().After(m.expires[key]) {
		var zero V
		return zero, false
	}

	return value, true
}

// GetOrSet returns the live value under key, or stores and returns the one
// built by create. The expiry is refreshed either way.
func (m *TTLMap[K, V]) GetOrSet(key K, create func() V) V {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	value, ok := m.data[key]
	if !ok || now.After(m.expires[key]) {
		value = create()
		m.data[key] = value
	}

	m.expires[key] = now.Add(m.ttl)

	return value
}

// Set stores value under key.
func (m *TTLMap[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value
	m.expires[key] = m.now().Add(m.ttl)
}

// Delete removes key.
func (m *TTLMap[K, V]) Delete(key K) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	delete(m.expires, key)
}

// Len returns the number of stored entries, expired or not.
func (m *TTLMap[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.data)
}

// Close stops the sweeper. The map remains usable.
func (m *TTLMap[K, V]) Close() {
	m.once.Do(func() { close(m.done) })
}

func (m *TTLMap[K, V]) sweep() {
	ticker := time.NewTicker(m.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.removeExpired()
		}
	}
}

func (m *TTLMap[K, V]) removeExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, expires := range m.expires {
		if now.After(expires) {
			delete(m.data, key)
			delete(m.expires, key)
		}
	}
}
