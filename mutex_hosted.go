//go:build !spinlock

package netstack

import "sync"

// Mutex is the hosted multi-threaded variant, selected by default (absence
// of the spinlock build tag). Go's sync.Mutex has no poisoned state the
// way the source's hosted lock does on an unwind through a held guard —
// there is no Go equivalent to panic-based unwinding through a mutex guard
// to check, so a panic inside a critical section here simply propagates
// without marking the Mutex poisoned.
type Mutex struct {
	mu sync.Mutex
}

// TryLock attempts to acquire the lock without blocking.
func (m *Mutex) TryLock() bool { return m.mu.TryLock() }

// Lock blocks until the lock is acquired.
func (m *Mutex) Lock() { m.mu.Lock() }

// Unlock releases the lock.
func (m *Mutex) Unlock() { m.mu.Unlock() }
