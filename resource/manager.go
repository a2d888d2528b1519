// Package resource implements a reference-counted cache for expensive
// shared resources such as parsed instruments and opened sample files.
// Loading happens on the borrowing (non-real-time) goroutine; borrowed
// resources are immutable and therefore safe to share by pointer.
package resource

import (
	"fmt"
	"sync"
)

// Mode controls how long a resource outlives its consumers.
type Mode int

const (
	// OnDemand frees the resource as soon as its last consumer hands
	// it back.
	OnDemand Mode = iota
	// OnDemandHold keeps an unreferenced resource cached until the
	// mode changes back to OnDemand or the manager is cleared.
	OnDemandHold
	// Persistent keeps the resource forever once loaded.
	Persistent
)

// Consumer identifies a borrower. Loading progress is forwarded to the
// borrowing consumer as fractions in 0..1.
type Consumer interface {
	OnResourceProgress(progress float32)
}

// Hooks supplies the load and unload behavior of a concrete manager.
type Hooks[K comparable, R any] interface {
	// Create loads the resource for key. progress may be called with
	// fractions in 0..1 during loading.
	Create(key K, consumer Consumer, progress func(float32)) (R, error)
	// Destroy frees a resource created by Create.
	Destroy(key K, resource R)
	// OnBorrow runs for every borrow of an already loaded resource.
	OnBorrow(key K, resource R, consumer Consumer)
}

type entry[R any] struct {
	res   R
	refs  map[Consumer]int
	total int
	mode  Mode
}

// Manager is a cache mapping keys to reference-counted resources.
// Borrow and HandBack may block (they load and free); they must only
// be called from non-real-time goroutines.
type Manager[K comparable, R any] struct {
	mu      sync.Mutex
	hooks   Hooks[K, R]
	entries map[K]*entry[R]
}

// NewManager creates a manager using the given hooks.
func NewManager[K comparable, R any](hooks Hooks[K, R]) *Manager[K, R] {
	return &Manager[K, R]{
		hooks:   hooks,
		entries: make(map[K]*entry[R]),
	}
}

// Borrow returns the resource for key, loading it if absent. Every
// borrow adds one reference for the consumer; re-entrant borrows by
// the same consumer are allowed and each adds one count.
func (m *Manager[K, R]) Borrow(key K, consumer Consumer) (R, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		progress := func(p float32) {
			if consumer != nil {
				consumer.OnResourceProgress(p)
			}
		}
		res, err := m.hooks.Create(key, consumer, progress)
		if err != nil {
			var zero R
			return zero, fmt.Errorf("loading resource %v: %w", key, err)
		}
		progress(1.0)
		e = &entry[R]{res: res, refs: make(map[Consumer]int)}
		m.entries[key] = e
	} else {
		m.hooks.OnBorrow(key, e.res, consumer)
	}
	e.refs[consumer]++
	e.total++
	return e.res, nil
}

// HandBack releases one reference the consumer holds on key and
// returns the consumer's remaining count. The last hand-back of an
// OnDemand resource frees it.
func (m *Manager[K, R]) HandBack(key K, consumer Consumer) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok || e.refs[consumer] == 0 {
		return 0
	}
	e.refs[consumer]--
	e.total--
	remaining := e.refs[consumer]
	if remaining == 0 {
		delete(e.refs, consumer)
	}
	if e.total == 0 && e.mode == OnDemand {
		delete(m.entries, key)
		m.hooks.Destroy(key, e.res)
	}
	return remaining
}

// RefCount returns the total number of borrows outstanding on key.
func (m *Manager[K, R]) RefCount(key K) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.total
	}
	return 0
}

// SetMode changes how long the resource for key outlives its
// consumers. Dropping back to OnDemand frees an unreferenced resource
// immediately.
func (m *Manager[K, R]) SetMode(key K, mode Mode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return
	}
	e.mode = mode
	if e.total == 0 && mode == OnDemand {
		delete(m.entries, key)
		m.hooks.Destroy(key, e.res)
	}
}

// ModeOf returns the availability mode of key.
func (m *Manager[K, R]) ModeOf(key K) Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.mode
	}
	return OnDemand
}

// Resource returns the loaded resource for key without borrowing it.
func (m *Manager[K, R]) Resource(key K) (R, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		return e.res, true
	}
	var zero R
	return zero, false
}

// Keys lists the currently cached keys.
func (m *Manager[K, R]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]K, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys
}

// Clear frees every resource regardless of mode or reference count.
// Intended for shutdown.
func (m *Manager[K, R]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, e := range m.entries {
		delete(m.entries, k)
		m.hooks.Destroy(k, e.res)
	}
}
