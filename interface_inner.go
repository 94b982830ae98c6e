package netstack

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/packetlayer/netstack/internal/device"
	"github.com/packetlayer/netstack/internal/logging"
	"github.com/packetlayer/netstack/internal/wire"
)

// InterfaceConfig carries the construction-time knobs spec.md §6's
// Interface::new(config, &mut device, now) takes: the link address and a
// random seed (used here to seed the IPv4 identification counter).
type InterfaceConfig struct {
	HardwareAddr wire.HardwareAddr
	RandomSeed   uint64
	QueueCount   int

	// MulticastTableCapacity bounds the IPv4 multicast table; defaults to
	// DefaultMulticastTableCapacity if zero.
	MulticastTableCapacity int
}

// InterfaceInner is the stack-wide, mostly-immutable side of the stack
// (spec.md §3): link address, IP address list, routing table, neighbor
// cache, IPv4 multicast table, IGMP report state, capability descriptor.
// It owns the ingress decoders (process_ethernet/process_ip/...) and the
// egress dispatch_ip helper.
type InterfaceInner struct {
	hardwareAddr wire.HardwareAddr
	caps         device.Capabilities

	addrsMu  sync.RWMutex
	ipv4Addr []Ipv4Cidr

	routesMu sync.RWMutex
	routes   RouteTable

	neighbors *NeighborCache
	multicast *MulticastTable
	igmp      IgmpReportState

	ident      uint32 // atomic IPv4 identification counter, seeded from config
	igmpVer    uint32 // atomic IgmpVersion, default IgmpV2 (switches to V1 on seeing a v1 query)
	logger     *logging.Logger
	metrics    *Metrics
}

// NewInterfaceInner creates the stack state from config and a capability
// snapshot taken from the device at construction time (spec.md §3
// lifecycle: "InterfaceInner: created once with the device's capabilities
// snapshot").
func NewInterfaceInner(config InterfaceConfig, caps device.Capabilities, metrics *Metrics) *InterfaceInner {
	capacity := config.MulticastTableCapacity
	if capacity == 0 {
		capacity = DefaultMulticastTableCapacity
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &InterfaceInner{
		hardwareAddr: config.HardwareAddr,
		caps:         caps,
		neighbors:    &NeighborCache{},
		multicast:    NewMulticastTable(capacity),
		ident:        uint32(config.RandomSeed),
		igmpVer:      uint32(IgmpV2),
		logger:       logging.Default(),
		metrics:      metrics,
	}
}

// CompatibilityVersion reports the IGMP host-compatibility version this
// interface currently reports with: IgmpV2 by default, or IgmpV1 once a v1
// query has been observed (IGMPv1 carries no max-response-time field, so a
// v1 query on the wire switches this host into v1-compatible behavior for
// its own spontaneous reports).
func (in *InterfaceInner) CompatibilityVersion() IgmpVersion {
	return IgmpVersion(atomic.LoadUint32(&in.igmpVer))
}

func (in *InterfaceInner) noteQueryVersion(v IgmpVersion) {
	atomic.StoreUint32(&in.igmpVer, uint32(v))
}

func (in *InterfaceInner) nextIdent() uint16 {
	return uint16(atomic.AddUint32(&in.ident, 1))
}

// HasIpv4Addr reports whether addr is one of this interface's configured
// IPv4 addresses.
func (in *InterfaceInner) HasIpv4Addr(addr [4]byte) bool {
	in.addrsMu.RLock()
	defer in.addrsMu.RUnlock()
	for _, c := range in.ipv4Addr {
		if c.Addr == addr {
			return true
		}
	}
	return false
}

// onLink reports whether dst shares a subnet with one of this interface's
// configured addresses, i.e. is reachable directly without a gateway.
func (in *InterfaceInner) onLink(dst [4]byte) bool {
	in.addrsMu.RLock()
	defer in.addrsMu.RUnlock()
	for _, c := range in.ipv4Addr {
		if c.Contains(dst) {
			return true
		}
	}
	return false
}

// UpdateIpAddrs mutates the interface's IPv4 address/prefix list under the
// write lock and refreshes the neighbor cache (spec.md §3: "IP address list
// ... mutate only under explicit user calls that also refresh the neighbor
// cache").
func (in *InterfaceInner) UpdateIpAddrs(fn func(addrs *[]Ipv4Cidr)) {
	in.addrsMu.Lock()
	fn(&in.ipv4Addr)
	in.addrsMu.Unlock()
	in.neighbors = &NeighborCache{}
}

// RoutesMut exposes the routing table under its own lock for mutation and
// then refreshes the neighbor cache, as UpdateIpAddrs does.
func (in *InterfaceInner) RoutesMut(fn func(*RouteTable)) {
	in.routesMu.Lock()
	defer in.routesMu.Unlock()
	fn(&in.routes)
	in.neighbors = &NeighborCache{}
}

// lookupRoute resolves dst to a next hop: the zero address for a multicast
// destination or an on-link peer (both reachable without a gateway, per
// original_source's route() giving on-link subnets the same direct-delivery
// treatment as its own addresses), otherwise whatever the explicit routing
// table has.
func (in *InterfaceInner) lookupRoute(dst [4]byte) ([4]byte, bool) {
	if wire.Ipv4IsMulticast(dst) || in.onLink(dst) {
		return [4]byte{}, true
	}
	in.routesMu.RLock()
	defer in.routesMu.RUnlock()
	return in.routes.Lookup(dst)
}

// Reply is a fully-serialized outgoing frame (including any link-layer
// header the device's medium requires), returned by a decoder when ingress
// synthesizes an immediate response (ARP reply, ICMP echo reply, TCP RST,
// ICMP port-unreachable).
type Reply struct {
	Frame []byte
}

// ProcessFrame is InterfaceInner's single ingress entry point: decode the
// link layer (process_ethernet) or hand straight to IP (process_ip) for an
// IP-medium device, per spec.md §4.E. Malformed frames are dropped silently
// (trace log only, never propagated) per spec.md §7.
func (in *InterfaceInner) ProcessFrame(now time.Time, queueID int, frame []byte, sockets *SocketSet) (*Reply, bool) {
	switch in.caps.Medium {
	case device.MediumEthernet:
		return in.processEthernet(now, queueID, frame, sockets)
	default:
		return in.processIP(now, queueID, wire.HardwareAddr{}, frame, sockets)
	}
}

func (in *InterfaceInner) processEthernet(now time.Time, queueID int, frame []byte, sockets *SocketSet) (*Reply, bool) {
	eth, payload, err := wire.ParseEthernet(frame)
	if err != nil {
		in.logger.Debugf("queue %d: dropping truncated ethernet frame: %v", queueID, err)
		in.metrics.DecodeErrors.Add(1)
		return nil, false
	}
	if !eth.DstAddr.IsBroadcast() && eth.DstAddr != in.hardwareAddr {
		// Not for us and not broadcast; a real bridge/promisc device
		// wouldn't even hand this frame up, but loopback/TUN backends
		// may, so drop quietly.
		return nil, false
	}
	switch eth.EtherType {
	case wire.EtherTypeARP:
		return in.processArp(now, queueID, eth.SrcAddr, payload)
	case wire.EtherTypeIPv4:
		return in.processIpv4(now, queueID, eth.SrcAddr, payload, sockets)
	case wire.EtherTypeIPv6:
		in.logger.Debugf("queue %d: dropping ipv6 frame (no ipv6 support)", queueID)
		return nil, false
	default:
		in.logger.Debugf("queue %d: dropping frame with unknown ethertype %#x", queueID, uint16(eth.EtherType))
		return nil, false
	}
}

// processIP handles an IP-medium device's frame, which carries no
// link-layer header at all.
func (in *InterfaceInner) processIP(now time.Time, queueID int, srcHW wire.HardwareAddr, frame []byte, sockets *SocketSet) (*Reply, bool) {
	if len(frame) == 0 {
		return nil, false
	}
	version := frame[0] >> 4
	switch version {
	case 4:
		return in.processIpv4(now, queueID, srcHW, frame, sockets)
	case 6:
		in.logger.Debugf("queue %d: dropping ipv6 datagram (no ipv6 support)", queueID)
		return nil, false
	default:
		in.logger.Debugf("queue %d: dropping frame with unknown ip version %d", queueID, version)
		return nil, false
	}
}

func (in *InterfaceInner) processArp(now time.Time, queueID int, srcHW wire.HardwareAddr, payload []byte) (*Reply, bool) {
	arp, err := wire.ParseArp(payload)
	if err != nil {
		in.logger.Debugf("queue %d: dropping truncated arp packet: %v", queueID, err)
		in.metrics.DecodeErrors.Add(1)
		return nil, false
	}
	in.neighbors.Fill(arp.SourceProtocol, arp.SourceHardware)

	if arp.Operation != wire.ArpRequest || !in.HasIpv4Addr(arp.TargetProtocol) {
		return nil, false
	}
	reply := wire.ArpRepr{
		Operation:      wire.ArpReply,
		SourceHardware: in.hardwareAddr,
		SourceProtocol: arp.TargetProtocol,
		TargetHardware: arp.SourceHardware,
		TargetProtocol: arp.SourceProtocol,
	}
	body := make([]byte, wire.ArpPacketLen)
	if err := reply.Serialize(body); err != nil {
		return nil, false
	}
	frame := in.wrapEthernet(arp.SourceHardware, wire.EtherTypeARP, body)
	return &Reply{Frame: frame}, true
}

// wrapEthernet prepends an Ethernet header to payload when this interface's
// medium is Ethernet; on an IP-medium device it returns payload unchanged.
func (in *InterfaceInner) wrapEthernet(dst wire.HardwareAddr, etherType wire.EtherType, payload []byte) []byte {
	if in.caps.Medium != device.MediumEthernet {
		return payload
	}
	frame := make([]byte, wire.EthernetHeaderLen+len(payload))
	eth := wire.EthernetRepr{SrcAddr: in.hardwareAddr, DstAddr: dst, EtherType: etherType}
	_ = eth.Serialize(frame)
	copy(frame[wire.EthernetHeaderLen:], payload)
	return frame
}

func (in *InterfaceInner) processIpv4(now time.Time, queueID int, srcHW wire.HardwareAddr, buf []byte, sockets *SocketSet) (*Reply, bool) {
	ip, payload, err := wire.ParseIpv4(buf)
	if err != nil {
		in.logger.Debugf("queue %d: dropping truncated ipv4 datagram: %v", queueID, err)
		in.metrics.DecodeErrors.Add(1)
		return nil, false
	}
	if ip.FragOffset != 0 || ip.MoreFragments {
		// Reassembly is out of scope per spec.md §1 (only fragmentation
		// of our own egress is specified); drop fragmented ingress.
		in.logger.Debugf("queue %d: dropping fragmented ipv4 datagram (reassembly unsupported)", queueID)
		return nil, false
	}
	if in.caps.Medium == device.MediumEthernet {
		in.neighbors.Fill(ip.SrcAddr, srcHW)
	}
	if !wire.Ipv4IsMulticast(ip.DstAddr) && !in.HasIpv4Addr(ip.DstAddr) && ip.DstAddr != wire.Ipv4Broadcast {
		return nil, false
	}

	switch ip.Protocol {
	case wire.ProtocolIcmp:
		return in.processIcmp(now, queueID, srcHW, ip, payload)
	case wire.ProtocolIgmp:
		in.processIgmp(now, queueID, ip, payload)
		return nil, false
	case wire.ProtocolUdp:
		return dispatchUdp(in, now, queueID, srcHW, ip, payload, sockets)
	case wire.ProtocolTcp:
		return dispatchTcp(in, now, queueID, srcHW, ip, payload, sockets)
	default:
		in.logger.Debugf("queue %d: dropping ipv4 datagram with unhandled protocol %d", queueID, ip.Protocol)
		return nil, false
	}
}

func (in *InterfaceInner) processIcmp(now time.Time, queueID int, srcHW wire.HardwareAddr, ip wire.Ipv4Repr, payload []byte) (*Reply, bool) {
	icmp, err := wire.ParseIcmpv4(payload)
	if err != nil {
		in.logger.Debugf("queue %d: dropping truncated icmpv4 message: %v", queueID, err)
		in.metrics.DecodeErrors.Add(1)
		return nil, false
	}
	if icmp.Kind != wire.Icmpv4EchoRequest {
		// Echo replies and errors are dropped here: no socket (IcmpSocket
		// or RawSocket) is offered ICMP traffic by ingress, and no reply
		// is synthesized.
		return nil, false
	}
	reply := wire.Icmpv4Repr{Kind: wire.Icmpv4EchoReply, Ident: icmp.Ident, SeqNo: icmp.SeqNo, Data: icmp.Data}
	body := make([]byte, reply.WireLen())
	if err := reply.Serialize(body); err != nil {
		return nil, false
	}
	replyIP := wire.Ipv4Repr{
		SrcAddr:  ip.DstAddr,
		DstAddr:  ip.SrcAddr,
		Protocol: wire.ProtocolIcmp,
		Ident:    in.nextIdent(),
		Ttl:      64,
	}
	return in.buildIpv4Reply(srcHW, replyIP, body), true
}

// buildIpv4Reply serializes an IPv4 header + payload and wraps it with an
// Ethernet header if this interface's medium requires one.
func (in *InterfaceInner) buildIpv4Reply(dstHW wire.HardwareAddr, ip wire.Ipv4Repr, payload []byte) *Reply {
	buf := make([]byte, wire.Ipv4MinHeaderLen+len(payload))
	ip.PayloadLen = uint16(len(payload))
	if err := ip.Serialize(buf); err != nil {
		return nil
	}
	copy(buf[wire.Ipv4MinHeaderLen:], payload)
	return &Reply{Frame: in.wrapEthernet(dstHW, wire.EtherTypeIPv4, buf)}
}

// allSystems is the ALL_SYSTEMS IPv4 multicast address (224.0.0.1).
var allSystems = [4]byte{224, 0, 0, 1}

func (in *InterfaceInner) processIgmp(now time.Time, queueID int, ip wire.Ipv4Repr, payload []byte) {
	igmp, err := wire.ParseIgmp(payload)
	if err != nil {
		in.logger.Debugf("queue %d: dropping truncated igmp message: %v", queueID, err)
		in.metrics.DecodeErrors.Add(1)
		return
	}
	switch igmp.Kind {
	case wire.IgmpMembershipQuery:
		if igmp.IsV1() {
			in.noteQueryVersion(IgmpV1)
		}
		general := wire.Ipv4IsUnspecified(igmp.GroupAddr) && ip.DstAddr == allSystems
		if general {
			in.igmp.ProcessQuery(now, igmp, true, in.multicast)
			return
		}
		if ip.DstAddr == igmp.GroupAddr && in.multicast.Contains(igmp.GroupAddr) {
			in.igmp.ProcessQuery(now, igmp, false, in.multicast)
		}
	case wire.IgmpV1Report, wire.IgmpV2Report, wire.IgmpLeaveGroup:
		// Host-only stack; ignored per spec.md §4.G.
	default:
		in.logger.Debugf("queue %d: dropping igmp message with unknown kind %#x", queueID, uint8(igmp.Kind))
	}
}
