package worker

import (
	"sync"

	"github.com/packetlayer/netstack/internal/constants"
)

// Fragmenter scratch buffers are pooled per size class to keep the egress
// fragmentation hot path off the allocator, the same way the teacher's
// pool.go buckets oversized I/O buffers rather than allocating per request.
//
// Uses *[]byte pattern to avoid sync.Pool interface allocation overhead.
var globalFragPool = struct {
	pool4k  sync.Pool
	pool16k sync.Pool
	pool64k sync.Pool
}{
	pool4k:  sync.Pool{New: func() any { b := make([]byte, constants.FragBucket4k); return &b }},
	pool16k: sync.Pool{New: func() any { b := make([]byte, constants.FragBucket16k); return &b }},
	pool64k: sync.Pool{New: func() any { b := make([]byte, constants.FragBucket64k); return &b }},
}

// GetFragBuffer returns a pooled buffer of at least the requested size, for
// use as egress fragmentation scratch. Caller must call PutFragBuffer when
// done with it.
func GetFragBuffer(size int) []byte {
	switch {
	case size <= constants.FragBucket4k:
		return (*globalFragPool.pool4k.Get().(*[]byte))[:size]
	case size <= constants.FragBucket16k:
		return (*globalFragPool.pool16k.Get().(*[]byte))[:size]
	case size <= constants.FragBucket64k:
		return (*globalFragPool.pool64k.Get().(*[]byte))[:size]
	default:
		// Larger than every bucket: a plain allocation, which PutFragBuffer
		// drops since its capacity matches no bucket.
		return make([]byte, size)
	}
}

// PutFragBuffer returns a buffer to the pool. The buffer's capacity
// determines which pool it goes to; non-standard capacities are dropped.
func PutFragBuffer(buf []byte) {
	c := cap(buf)
	buf = buf[:c]
	switch c {
	case constants.FragBucket4k:
		globalFragPool.pool4k.Put(&buf)
	case constants.FragBucket16k:
		globalFragPool.pool16k.Put(&buf)
	case constants.FragBucket64k:
		globalFragPool.pool64k.Put(&buf)
	}
}
