package netstack

// multicastMember is one entry of the IPv4 multicast table: the group
// address this host has joined, plus whatever IGMP needs to remember about
// it (currently nothing beyond membership itself).
type multicastMember struct {
	addr [4]byte
}

// MulticastTable is InterfaceInner's bounded mapping from IPv4 multicast
// address to membership (spec.md §3: "IPv4 multicast table (mapping from
// IPv4 address to unit, bounded capacity)"). Iteration order is insertion
// order, which igmp.go's ToGeneralQuery state relies on for next_index.
//
// Guarded by the build-tag-selected Mutex, same as NeighborCache: it's read
// from every queue's ingress IGMP processing and igmp_egress, and written
// from JoinMulticastGroup/LeaveMulticastGroup on whatever goroutine the
// application calls those from.
type MulticastTable struct {
	mu       Mutex
	members  []multicastMember
	capacity int
}

// NewMulticastTable creates an empty table bounded to capacity entries.
func NewMulticastTable(capacity int) *MulticastTable {
	if capacity < 1 {
		capacity = DefaultMulticastTableCapacity
	}
	return &MulticastTable{capacity: capacity}
}

// Contains reports whether addr is currently joined.
func (t *MulticastTable) Contains(addr [4]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.contains(addr)
}

func (t *MulticastTable) contains(addr [4]byte) bool {
	for _, m := range t.members {
		if m.addr == addr {
			return true
		}
	}
	return false
}

// Join inserts addr, returning changed=true if it was not already present.
// At capacity, insertion of a new group fails with GroupTableFull and
// leaves the table unchanged (spec.md §3 invariant 4); joining an
// already-present group always succeeds with changed=false regardless of
// capacity.
func (t *MulticastTable) Join(addr [4]byte) (changed bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.contains(addr) {
		return false, nil
	}
	if len(t.members) >= t.capacity {
		return false, NewError("join_multicast_group", ErrCodeGroupTableFull, "multicast table at capacity")
	}
	t.members = append(t.members, multicastMember{addr: addr})
	return true, nil
}

// Leave removes addr, returning changed=true if it was present.
func (t *MulticastTable) Leave(addr [4]byte) (changed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, m := range t.members {
		if m.addr == addr {
			t.members = append(t.members[:i], t.members[i+1:]...)
			return true
		}
	}
	return false
}

// Len reports how many groups are currently joined.
func (t *MulticastTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.members)
}

// At returns the group address at index i in insertion order, and false if
// i is out of range. Used by igmp.go's ToGeneralQuery next_index walk.
func (t *MulticastTable) At(i int) (addr [4]byte, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.members) {
		return [4]byte{}, false
	}
	return t.members[i].addr, true
}
