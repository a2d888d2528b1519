package sampler

import (
	"sync/atomic"
	"time"
)

// SynchronizedConfig manages configuration data updated by a single
// non-real-time goroutine and read by a single real-time goroutine.
//
// Two instances of the data are kept. The writer mutates the instance
// not currently in use via GetConfigForUpdate, publishes it with
// SwitchConfig, and must then redo the same mutation on the returned
// stale instance. SwitchConfig blocks until the reader has let go of
// the old instance; Lock and Unlock on the reader side never block and
// never enter the OS.
//
// GetConfigForUpdate and SwitchConfig must always be called from the
// same goroutine (or under one mutex owned by the caller).
type SynchronizedConfig[T any] struct {
	readerLock  atomic.Int32
	index       atomic.Int32
	updateIndex int32
	config      [2]T
}

// Lock returns the configuration instance for the real-time reader.
// The instance is safe to read until Unlock is called.
func (s *SynchronizedConfig[T]) Lock() *T {
	s.readerLock.Store(1)
	return &s.config[s.index.Load()]
}

// Unlock releases the instance returned by Lock. If the writer is
// waiting inside SwitchConfig it may proceed afterwards.
func (s *SynchronizedConfig[T]) Unlock() {
	s.readerLock.Store(0)
}

// GetConfigForUpdate returns the instance not in use by the reader,
// ready to be mutated by the writer.
func (s *SynchronizedConfig[T]) GetConfigForUpdate() *T {
	s.updateIndex = s.index.Load() ^ 1
	return &s.config[s.updateIndex]
}

// SwitchConfig atomically publishes the updated instance, waits until
// the reader has released the old one at least once, and returns the
// now-stale instance so the writer can mirror the same mutation on it.
func (s *SynchronizedConfig[T]) SwitchConfig() *T {
	s.index.Store(s.updateIndex)
	for s.readerLock.Load() != 0 {
		time.Sleep(50 * time.Microsecond)
	}
	return &s.config[s.updateIndex^1]
}
