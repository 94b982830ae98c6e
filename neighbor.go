package netstack

import "github.com/packetlayer/netstack/internal/wire"

const neighborCacheCapacity = 8

type neighborEntry struct {
	addr [4]byte
	hw   wire.HardwareAddr
}

// NeighborCache maps IPv4 addresses to hardware addresses, updated on any
// ingress that reveals a mapping (ARP reply/request, IP source), with LRU
// eviction at capacity (spec.md §4.E: "cache updates on any ingress seen,
// cache eviction LRU").
//
// Guarded by the build-tag-selected Mutex. Lookup and Fill both take it
// with a blocking Lock; there is no TryLock read path.
type NeighborCache struct {
	mu      Mutex
	entries []neighborEntry // front = most recently used
}

// Lookup returns the cached hardware address for addr, refreshing its LRU
// position on hit.
func (c *NeighborCache) Lookup(addr [4]byte) (wire.HardwareAddr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.addr == addr {
			c.touch(i)
			return e.hw, true
		}
	}
	return wire.HardwareAddr{}, false
}

// Fill inserts or updates addr -> hw, evicting the least-recently-used
// entry if the cache is at capacity.
func (c *NeighborCache) Fill(addr [4]byte, hw wire.HardwareAddr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, e := range c.entries {
		if e.addr == addr {
			c.entries[i].hw = hw
			c.touch(i)
			return
		}
	}
	if len(c.entries) >= neighborCacheCapacity {
		c.entries = c.entries[:len(c.entries)-1] // drop LRU (tail)
	}
	c.entries = append([]neighborEntry{{addr: addr, hw: hw}}, c.entries...)
}

// touch moves entries[i] to the front (most-recently-used position).
func (c *NeighborCache) touch(i int) {
	if i == 0 {
		return
	}
	e := c.entries[i]
	copy(c.entries[1:i+1], c.entries[:i])
	c.entries[0] = e
}
