package netstack

import (
	"sync"
	"sync/atomic"
)

// SocketHandle is an opaque dense index identifying a slot in a SocketSet,
// stable for the socket's lifetime (spec.md §3).
type SocketHandle int

// SocketMeta is the mutable, reader/writer-locked side of an Item: at
// minimum the socket's own handle, plus neighbor/routing metadata decoders
// refresh as frames arrive.
type SocketMeta struct {
	Handle       SocketHandle
	NeighborHint [4]byte // last-seen next-hop for this socket's remote, if any
}

// Item is one occupied slot of a SocketSet: metadata under its own
// reader/writer lock, an atomically steered queue affinity, and the socket
// itself under a second reader/writer lock (spec.md §3 invariant 3: while a
// worker holds Item.socket's write lock, no other worker reads or writes
// that socket).
type Item struct {
	metaMu sync.RWMutex
	meta   SocketMeta

	queueID int32 // atomic; advisory per spec.md §9, relaxed ordering is fine

	socketMu sync.RWMutex
	socket   Socket
}

// Meta returns a copy of the item's metadata under a read lock.
func (it *Item) Meta() SocketMeta {
	it.metaMu.RLock()
	defer it.metaMu.RUnlock()
	return it.meta
}

// SetNeighborHint updates the item's cached next-hop under a write lock.
func (it *Item) SetNeighborHint(addr [4]byte) {
	it.metaMu.Lock()
	it.meta.NeighborHint = addr
	it.metaMu.Unlock()
}

// QueueID returns the queue currently responsible for this socket.
func (it *Item) QueueID() int {
	return int(atomic.LoadInt32(&it.queueID))
}

// SteerTo compare-swaps the item's queue affinity to queueID, returning
// whether the affinity actually changed (callers use this to decide
// whether to log a steering event, per spec.md §4.H step 3).
func (it *Item) SteerTo(queueID int) (changed bool) {
	for {
		old := atomic.LoadInt32(&it.queueID)
		if int(old) == queueID {
			return false
		}
		if atomic.CompareAndSwapInt32(&it.queueID, old, int32(queueID)) {
			return true
		}
	}
}

// TryReadSocket attempts a non-blocking read lock on the socket, calling fn
// with it if acquired. ok is false if another worker currently holds the
// write lock — the load-shedding "skip this round" path of spec.md §4.H.
func (it *Item) TryReadSocket(fn func(Socket)) (ok bool) {
	if !it.socketMu.TryRLock() {
		return false
	}
	defer it.socketMu.RUnlock()
	fn(it.socket)
	return true
}

// WriteSocket takes the blocking write lock and calls fn with the socket.
// Per spec.md §5, this is the one lock acquisition in the hot path allowed
// to block, bounded by the single socket's own work.
func (it *Item) WriteSocket(fn func(Socket)) {
	it.socketMu.Lock()
	defer it.socketMu.Unlock()
	fn(it.socket)
}

// socketStorage is one slot of a SocketSet: nil item means empty, reusable.
type socketStorage struct {
	item *Item
}

// SocketSet is the shared, concurrently-accessible collection of protocol
// sockets (spec.md §3/§4.C). Structural mutation (Add/Remove changing which
// slots are occupied) is serialized by mu; Items() takes a point-in-time
// snapshot of the slice under mu and then iterates outside it, matching the
// spec's "not resized concurrently with iteration" contract — callers must
// not Add/Remove while holding onto a snapshot from a prior Items() call.
type SocketSet struct {
	mu         sync.Mutex
	storage    []*socketStorage
	counter    uint32 // atomic round-robin initial-affinity assignment
	queueCount int
}

// NewSocketSet creates an empty, growable SocketSet steering new sockets
// round-robin across queueCount queues.
func NewSocketSet(queueCount int) *SocketSet {
	if queueCount < 1 {
		queueCount = 1
	}
	return &SocketSet{queueCount: queueCount}
}

// Add inserts socket into the first empty slot (or appends if none),
// assigning queue_id = counter.fetch_add(1) mod QUEUE_COUNT and setting the
// new Item's meta.Handle to the chosen index, per spec.md §4.C. This
// SocketSet is always growable, so Add never fails; the source's
// fixed-storage panic path has no counterpart here.
func (s *SocketSet) Add(socket Socket) SocketHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	qid := int32(atomic.AddUint32(&s.counter, 1)-1) % int32(s.queueCount)
	item := &Item{socket: socket, queueID: qid}

	for i, st := range s.storage {
		if st.item == nil {
			item.meta.Handle = SocketHandle(i)
			s.storage[i] = &socketStorage{item: item}
			return SocketHandle(i)
		}
	}
	idx := len(s.storage)
	item.meta.Handle = SocketHandle(idx)
	s.storage = append(s.storage, &socketStorage{item: item})
	return SocketHandle(idx)
}

// GetMut returns the Item at handle for direct access. Panics if the slot
// is absent or empty — a caller error per spec.md §4.C.
func (s *SocketSet) GetMut(handle SocketHandle) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(handle) < 0 || int(handle) >= len(s.storage) || s.storage[handle].item == nil {
		panic("netstack: SocketSet.GetMut on absent handle")
	}
	return s.storage[handle].item
}

// Remove vacates handle's slot and returns the socket that occupied it.
// After Remove, handle is invalid; further use is a caller error (spec.md
// §3 invariant 1).
func (s *SocketSet) Remove(handle SocketHandle) Socket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(handle) < 0 || int(handle) >= len(s.storage) || s.storage[handle].item == nil {
		panic("netstack: SocketSet.Remove on absent handle")
	}
	item := s.storage[handle].item
	s.storage[handle] = &socketStorage{}
	return item.socket
}

// Items returns a snapshot of every occupied Item, in slot order, skipping
// empty slots.
func (s *SocketSet) Items() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Item, 0, len(s.storage))
	for _, st := range s.storage {
		if st.item != nil {
			out = append(out, st.item)
		}
	}
	return out
}

// Len reports the number of occupied slots.
func (s *SocketSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.storage {
		if st.item != nil {
			n++
		}
	}
	return n
}
