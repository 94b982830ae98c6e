package netstack

import (
	"github.com/packetlayer/netstack/internal/wire"
	"github.com/packetlayer/netstack/internal/worker"
)

// Fragmenter is one queue's egress scratch buffer for IPv4 fragmentation.
// Guarded by the build-tag-selected Mutex so the spin and hosted variants
// both work here, per spec.md §4.A.
//
// The array-of-Fragmenters-one-per-queue pattern (see Fragmenters below)
// mirrors the teacher's sharded-mutex backend (backend/mem.go): contention
// is bounded to "another worker on the same queue already holds it", never
// cross-queue, by construction — spec.md §9's design note on the array-of-
// locks pattern avoiding a single global fragmenter's convoy effect.
type Fragmenter struct {
	mu      Mutex
	scratch []byte
}

// Fragmenters is a QUEUE_COUNT-wide array of independent Fragmenters, one
// per worker queue (spec.md §3: "Interface owns ... a per-queue array of
// Fragmenters").
type Fragmenters struct {
	slots []*Fragmenter
}

// NewFragmenters allocates one Fragmenter per queue.
func NewFragmenters(queueCount int) *Fragmenters {
	slots := make([]*Fragmenter, queueCount)
	for i := range slots {
		slots[i] = &Fragmenter{}
	}
	return &Fragmenters{slots: slots}
}

// GetEgress returns the Fragmenter for queueID and true, or (nil, false) if
// another worker on the same queue already holds it — spec.md §4.D: "this
// worker skips egress this round" rather than blocking.
func (f *Fragmenters) GetEgress(queueID int) (*Fragmenter, bool) {
	frag := f.slots[queueID]
	if !frag.mu.TryLock() {
		return nil, false
	}
	return frag, true
}

// Release gives up the Fragmenter acquired from GetEgress, returning its
// scratch buffer (if FragmentIpv4 borrowed one) to the size-bucketed pool.
func (f *Fragmenter) Release() {
	if f.scratch != nil {
		worker.PutFragBuffer(f.scratch)
		f.scratch = nil
	}
	f.mu.Unlock()
}

// FragmentIpv4 splits an IPv4 payload across the link MTU, calling emit
// once per fragment in order: header, the fragment's data slice, and a
// pooled scratch buffer (reused across every fragment of this call) big
// enough for emit to serialize the fragment's header+data into without
// allocating. Every fragment except the last sets MoreFragments; each
// header's FragOffset is the fragment's byte offset (a multiple of 8),
// which Ipv4Repr.Serialize writes in the wire format's 8-byte units. emit
// returning an error aborts remaining fragments.
func (f *Fragmenter) FragmentIpv4(base wire.Ipv4Repr, payload []byte, mtu int, emit func(header wire.Ipv4Repr, fragment []byte, scratch []byte) error) error {
	maxData := ((mtu - wire.Ipv4MinHeaderLen) / 8) * 8
	if maxData <= 0 || len(payload) <= maxData {
		base.PayloadLen = uint16(len(payload))
		base.MoreFragments = false
		base.FragOffset = 0
		return emit(base, payload, nil)
	}

	if cap(f.scratch) < mtu {
		if f.scratch != nil {
			worker.PutFragBuffer(f.scratch)
		}
		f.scratch = worker.GetFragBuffer(mtu)
	}

	offset := 0
	for offset < len(payload) {
		end := offset + maxData
		more := true
		if end >= len(payload) {
			end = len(payload)
			more = false
		}
		chunk := base
		chunk.PayloadLen = uint16(end - offset)
		chunk.MoreFragments = more
		chunk.FragOffset = uint16(offset)
		if err := emit(chunk, payload[offset:end], f.scratch); err != nil {
			return err
		}
		offset = end
	}
	return nil
}
