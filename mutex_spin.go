//go:build spinlock

package netstack

import "sync/atomic"

// Mutex is the cooperative spin-lock variant, selected by the spinlock
// build tag for bare-metal/no-heap environments: TryLock is a single atomic
// compare-and-swap, Lock spins until it succeeds, Unlock is a plain atomic
// store of zero. Grounded on original_source/src/mutex.rs's AtomicBool
// swap-based Mutex<T>, adapted from a value-wrapping guard type (not
// idiomatic Go) to a bare lock embedded alongside the data it protects.
type Mutex struct {
	locked uint32
}

// TryLock attempts to acquire the lock without blocking.
func (m *Mutex) TryLock() bool {
	return atomic.CompareAndSwapUint32(&m.locked, 0, 1)
}

// Lock spins until the lock is acquired.
func (m *Mutex) Lock() {
	for !m.TryLock() {
	}
}

// Unlock releases the lock. Unlocking an already-unlocked Mutex is a
// caller error, same as sync.Mutex.
func (m *Mutex) Unlock() {
	atomic.StoreUint32(&m.locked, 0)
}
