package netstack

import "github.com/packetlayer/netstack/internal/wire"

// Ipv4Cidr is a configured interface address plus its subnet prefix length,
// the same `IpCidr` shape original_source/examples/benchmark.rs pushes onto
// `update_ip_addrs` (`IpCidr::new(addr, prefix_len)`). The prefix is what
// lets the stack recognize an on-link peer as directly reachable without an
// explicit route entry for every address on the subnet.
type Ipv4Cidr struct {
	Addr      [4]byte
	PrefixLen uint8
}

// netmask returns the /PrefixLen network mask, clamping PrefixLen to
// [0, 32].
func (c Ipv4Cidr) netmask() [4]byte {
	prefix := c.PrefixLen
	if prefix > 32 {
		prefix = 32
	}
	var mask [4]byte
	for i := 0; i < 4; i++ {
		bits := prefix - uint8(i*8)
		switch {
		case prefix <= uint8(i*8):
			mask[i] = 0
		case bits >= 8:
			mask[i] = 0xff
		default:
			mask[i] = 0xff << (8 - bits)
		}
	}
	return mask
}

// Contains reports whether addr is on this cidr's subnet (on-link).
func (c Ipv4Cidr) Contains(addr [4]byte) bool {
	mask := c.netmask()
	for i := 0; i < 4; i++ {
		if addr[i]&mask[i] != c.Addr[i]&mask[i] {
			return false
		}
	}
	return true
}

// Route is one entry of the routing table: packets to addr & mask ==
// network are sent directly if via is the zero address, or forwarded to
// via otherwise.
type Route struct {
	Network [4]byte
	Mask    [4]byte
	Via     [4]byte // zero = on-link, deliver directly
}

func (r Route) matches(addr [4]byte) bool {
	for i := 0; i < 4; i++ {
		if addr[i]&r.Mask[i] != r.Network[i]&r.Mask[i] {
			return false
		}
	}
	return true
}

// RouteTable is InterfaceInner's routing table: a small ordered list,
// first-match-wins, mutated only under explicit user calls (spec.md §3
// lifecycle note: "IP address list and routes mutate only under explicit
// user calls that also refresh the neighbor cache").
type RouteTable struct {
	routes []Route
}

// Add appends a route; more specific routes should be added first since
// lookup is first-match-wins.
func (t *RouteTable) Add(r Route) { t.routes = append(t.routes, r) }

// Lookup returns the next hop to reach dst: the zero address if dst is
// on-link, otherwise the gateway address. ok is false if unroutable.
func (t *RouteTable) Lookup(dst [4]byte) (via [4]byte, ok bool) {
	if wire.Ipv4IsMulticast(dst) {
		// spec.md §4.E: "multicast destinations are always routable".
		return [4]byte{}, true
	}
	for _, r := range t.routes {
		if r.matches(dst) {
			return r.Via, true
		}
	}
	return [4]byte{}, false
}
