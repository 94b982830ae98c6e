package netstack

import (
	"net"
	"time"

	"github.com/packetlayer/netstack/internal/device"
	"github.com/packetlayer/netstack/internal/wire"
)

// broadcastHW is used as the destination hardware address for egress to a
// peer this interface has no neighbor-cache entry for (e.g. a freshly
// opened loopback/TUN device before any ARP exchange). Real link-layer
// address resolution is the neighbor cache's job on ingress; this is the
// best-effort fallback for the rare send-before-resolve case, since active
// ARP probing is out of scope per spec.md §1.
var broadcastHW = wire.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// Interface is the top-level handle applications hold: InterfaceInner plus
// a per-queue array of Fragmenters (spec.md §3: "Interface owns
// InterfaceInner plus a per-queue array of Fragmenters ... and neighbor-
// solicitation scratch").
type Interface struct {
	inner      *InterfaceInner
	frags      *Fragmenters
	queueCount int
}

// New constructs an Interface from config and a snapshot of device's
// capabilities, per spec.md §6: "Interface::new(config, &mut device, now)".
func New(config InterfaceConfig, dev device.Device, now time.Time, metrics *Metrics) *Interface {
	caps := dev.Capabilities()
	queueCount := config.QueueCount
	if queueCount <= 0 {
		queueCount = caps.QueueCount
	}
	if queueCount <= 0 {
		queueCount = DefaultQueueCount
	}
	return &Interface{
		inner:      NewInterfaceInner(config, caps, metrics),
		frags:      NewFragmenters(queueCount),
		queueCount: queueCount,
	}
}

// UpdateIpAddrs mutates the IPv4 address/prefix list (spec.md §6).
func (ifc *Interface) UpdateIpAddrs(fn func(addrs *[]Ipv4Cidr)) { ifc.inner.UpdateIpAddrs(fn) }

// RoutesMut exposes the routing table for mutation (spec.md §6).
func (ifc *Interface) RoutesMut(fn func(*RouteTable)) { ifc.inner.RoutesMut(fn) }

// Metrics returns the Metrics instance this Interface records to, or nil.
func (ifc *Interface) Metrics() *Metrics { return ifc.inner.metrics }

// Poll drains ingress for queueID (spec.md §4.F operation 1): loop
// device.Receive until it reports no frame ready, decoding and dispatching
// each frame, emitting any synthesized reply through the RxToken's paired
// TxToken immediately.
func (ifc *Interface) Poll(now time.Time, dev device.Device, sockets *SocketSet, queueID int) {
	for {
		rx, tx, ok := dev.Receive(now, queueID)
		if !ok {
			return
		}
		var frame []byte
		consumeErr := rx.Consume(func(f []byte) error {
			frame = append([]byte(nil), f...)
			return nil
		})
		if consumeErr != nil {
			continue
		}
		if ifc.inner.metrics != nil {
			ifc.inner.metrics.FramesRx.Add(1)
		}

		reply, hasReply := ifc.inner.ProcessFrame(now, queueID, frame, sockets)
		if !hasReply || reply == nil {
			continue
		}
		_ = tx.Consume(len(reply.Frame), func(buf []byte) error {
			copy(buf, reply.Frame)
			return nil
		})
		if ifc.inner.metrics != nil {
			ifc.inner.metrics.FramesTx.Add(1)
		}
	}
}

// PollTx drains egress for sockets currently affined to queueID (spec.md
// §4.F operation 2), then emits any IGMP reports whose deadline has
// elapsed.
func (ifc *Interface) PollTx(now time.Time, dev device.Device, sockets *SocketSet, queueID int) {
	for _, item := range sockets.Items() {
		if item.QueueID() != queueID {
			continue
		}
		ready := false
		item.TryReadSocket(func(sock Socket) { ready = sock.DispatchEvents() })
		if !ready {
			continue
		}
		item.WriteSocket(func(sock Socket) {
			ifc.drainSocketEgress(now, dev, queueID, sock)
		})
	}
	ifc.igmpEgress(now, dev, queueID)
}

// PollAt reports how long queueID's worker may wait (spec.md §4.F operation
// 3), as a duration from now so device.Waiter.Wait can size its block
// directly: zero if any socket affined to queueID has egress ready
// (DispatchEvents) or the IGMP deadline has passed, otherwise the time until
// the IGMP state's pending deadline, capped at 100ms. Sockets carry no
// deadlines of their own.
func (ifc *Interface) PollAt(now time.Time, sockets *SocketSet, queueID int) time.Duration {
	const fallback = 100 * time.Millisecond
	best := now.Add(fallback)
	if d, ok := ifc.inner.igmp.NextDeadline(); ok && d.Before(best) {
		best = d
	}
	for _, item := range sockets.Items() {
		if item.QueueID() != queueID {
			continue
		}
		ready := false
		item.TryReadSocket(func(sock Socket) { ready = sock.DispatchEvents() })
		if ready {
			return 0
		}
	}
	if best.Before(now) {
		return 0
	}
	return best.Sub(now)
}

// drainSocketEgress drains one socket's pending outgoing packets through a
// TxToken obtained from dev.Transmit. UDP/TCP payloads that don't fit the
// device MTU are split via this queue's Fragmenter (spec.md §4.D); if the
// fragmenter is held by another worker on the same queue, egress is skipped
// this round rather than blocking.
func (ifc *Interface) drainSocketEgress(now time.Time, dev device.Device, queueID int, sock Socket) {
	switch s := sock.(type) {
	case *UdpSocket:
		for _, dgram := range s.TakePending() {
			ifc.sendUdp(now, dev, queueID, s.LocalPort, dgram)
		}
	case *TcpSocket:
		for _, chunk := range s.TakePendingData() {
			ifc.sendTcpData(now, dev, queueID, s, chunk)
		}
		if s.pendingFin {
			ifc.sendTcpFin(now, dev, queueID, s)
			s.pendingFin = false
		}
	}
}

// sendTcpData emits one queued outgoing segment for an established TCP
// socket, advancing its sequence number by the payload length. Congestion
// control and retransmission are out of scope per spec.md §1; this always
// sends immediately and assumes the loopback/TUN transport below it is
// reliable and ordered.
func (ifc *Interface) sendTcpData(now time.Time, dev device.Device, queueID int, s *TcpSocket, payload []byte) {
	src := ifc.inner.firstIpv4Addr()
	tcp := wire.TcpRepr{
		SrcPort:   s.LocalPort,
		DstPort:   s.RemotePort,
		SeqNumber: s.SeqNumber,
		AckNumber: s.AckNumber,
		Flags:     wire.TcpFlagPsh | wire.TcpFlagAck,
	}
	body := make([]byte, wire.TcpMinHeaderLen+len(payload))
	if err := tcp.Serialize(body, payload, src, s.RemoteAddr); err != nil {
		return
	}
	s.SeqNumber += uint32(len(payload))
	ip := wire.Ipv4Repr{SrcAddr: src, DstAddr: s.RemoteAddr, Protocol: wire.ProtocolTcp, Ident: ifc.inner.nextIdent(), Ttl: 64}
	ifc.dispatchIP(now, dev, queueID, ip, body)
}

func (ifc *Interface) sendUdp(now time.Time, dev device.Device, queueID int, localPort uint16, dgram UdpDatagram) {
	src := ifc.inner.firstIpv4Addr()
	udp := wire.UdpRepr{SrcPort: localPort, DstPort: dgram.DstPort}
	body := make([]byte, wire.UdpHeaderLen+len(dgram.Payload))
	if err := udp.Serialize(body, dgram.Payload, src, dgram.DstAddr); err != nil {
		return
	}
	ip := wire.Ipv4Repr{SrcAddr: src, DstAddr: dgram.DstAddr, Protocol: wire.ProtocolUdp, Ident: ifc.inner.nextIdent(), Ttl: 64}
	ifc.dispatchIP(now, dev, queueID, ip, body)
}

func (ifc *Interface) sendTcpFin(now time.Time, dev device.Device, queueID int, s *TcpSocket) {
	src := ifc.inner.firstIpv4Addr()
	tcp := wire.TcpRepr{
		SrcPort:   s.LocalPort,
		DstPort:   s.RemotePort,
		SeqNumber: s.SeqNumber,
		AckNumber: s.AckNumber,
		Flags:     wire.TcpFlagFin | wire.TcpFlagAck,
	}
	body := make([]byte, wire.TcpMinHeaderLen)
	if err := tcp.Serialize(body, nil, src, s.RemoteAddr); err != nil {
		return
	}
	s.SeqNumber++
	ip := wire.Ipv4Repr{SrcAddr: src, DstAddr: s.RemoteAddr, Protocol: wire.ProtocolTcp, Ident: ifc.inner.nextIdent(), Ttl: 64}
	ifc.dispatchIP(now, dev, queueID, ip, body)
}

// dispatchIP implements spec.md §4.E's dispatch_ip: look up the route,
// serialize header+payload (fragmenting through this queue's Fragmenter if
// it exceeds the device MTU), and hand the buffer to a TxToken. Unroutable
// destinations are silently dropped here since none of dispatchIP's
// callers are user-facing (JoinMulticastGroup/LeaveMulticastGroup send
// through transmitIgmp, which does no route lookup).
func (ifc *Interface) dispatchIP(now time.Time, dev device.Device, queueID int, ip wire.Ipv4Repr, payload []byte) bool {
	if _, ok := ifc.inner.lookupRoute(ip.DstAddr); !ok {
		return false
	}
	dstHW, _ := ifc.inner.neighbors.Lookup(ip.DstAddr)
	if dstHW == (wire.HardwareAddr{}) {
		dstHW = broadcastHW
	}

	caps := ifc.inner.caps
	mtu := caps.MaxTransmissionUnit
	if mtu <= 0 {
		mtu = DefaultEthernetMTU
	}

	sent := false
	emit := func(header wire.Ipv4Repr, fragment []byte, scratch []byte) error {
		tx, ok := dev.Transmit(now, queueID)
		if !ok {
			return NewQueueError("dispatch_ip", queueID, ErrCodeExhausted, "no TxToken available")
		}
		need := wire.Ipv4MinHeaderLen + len(fragment)
		buf := scratch
		if cap(buf) < need {
			buf = make([]byte, need)
		} else {
			buf = buf[:need]
		}
		if err := header.Serialize(buf); err != nil {
			return err
		}
		copy(buf[wire.Ipv4MinHeaderLen:], fragment)
		frame := ifc.inner.wrapEthernet(dstHW, wire.EtherTypeIPv4, buf)
		err := tx.Consume(len(frame), func(out []byte) error {
			copy(out, frame)
			return nil
		})
		if err == nil {
			sent = true
			if ifc.inner.metrics != nil {
				ifc.inner.metrics.FramesTx.Add(1)
			}
		}
		return err
	}

	if len(payload) <= mtu-wire.Ipv4MinHeaderLen {
		_ = emit(ip, payload, nil)
		return sent
	}

	frag, ok := ifc.frags.GetEgress(queueID)
	if !ok {
		return false // another worker on this queue holds the fragmenter; skip this round
	}
	defer frag.Release()
	_ = frag.FragmentIpv4(ip, payload, mtu, emit)
	return sent
}

// igmpEgress drives the IGMP report state's egress transition (spec.md
// §4.G), transmitting through queueID if its deadline has elapsed.
func (ifc *Interface) igmpEgress(now time.Time, dev device.Device, queueID int) bool {
	return ifc.inner.igmp.Egress(now, ifc.inner.multicast, func(version IgmpVersion, group [4]byte) bool {
		return ifc.transmitIgmp(now, dev, queueID, BuildIgmpReport(version, group), group)
	})
}

// transmitIgmp serializes and sends an IGMP message with IP destination
// group: the reported group itself for a membership report, allRoutersAddr
// for a leave.
func (ifc *Interface) transmitIgmp(now time.Time, dev device.Device, queueID int, msg wire.IgmpRepr, group [4]byte) bool {
	body := make([]byte, wire.IgmpHeaderLen)
	if err := msg.Serialize(body); err != nil {
		return false
	}
	src := ifc.inner.firstIpv4Addr()
	ip := wire.Ipv4Repr{SrcAddr: src, DstAddr: group, Protocol: wire.ProtocolIgmp, Ident: ifc.inner.nextIdent(), Ttl: 1}

	tx, ok := dev.Transmit(now, queueID)
	if !ok {
		return false
	}
	buf := make([]byte, wire.Ipv4MinHeaderLen+len(body))
	ip.PayloadLen = uint16(len(body))
	if err := ip.Serialize(buf); err != nil {
		return false
	}
	copy(buf[wire.Ipv4MinHeaderLen:], body)
	frame := ifc.inner.wrapEthernet(broadcastHW, wire.EtherTypeIPv4, buf)
	err := tx.Consume(len(frame), func(out []byte) error {
		copy(out, frame)
		return nil
	})
	if err != nil {
		return false
	}
	if ifc.inner.metrics != nil {
		ifc.inner.metrics.IgmpReports.Add(1)
		ifc.inner.metrics.FramesTx.Add(1)
	}
	return true
}

// JoinMulticastGroup joins addr, synchronously emitting one membership
// report if the table changed (spec.md §4.G). It returns (changed,
// announce_sent)-equivalent via (changed, error): a nil error with
// changed=true means the join succeeded and the report went out;
// ErrCodeExhausted means the join succeeded but no TxToken was available to
// announce it; ErrCodeGroupTableFull/ErrCodeIpv6NotSupported mean the join
// itself failed.
func (ifc *Interface) JoinMulticastGroup(dev device.Device, addr net.IP, now time.Time) (changed bool, err error) {
	a, ok := ipv4Of(addr)
	if !ok {
		return false, NewError("join_multicast_group", ErrCodeIpv6NotSupported, "ipv6 multicast not supported")
	}
	changed, err = ifc.inner.multicast.Join(a)
	if err != nil {
		if ifc.inner.metrics != nil {
			ifc.inner.metrics.GroupTableFullErrors.Add(1)
		}
		return false, err
	}
	if !changed {
		return false, nil
	}
	report := BuildIgmpReport(ifc.inner.CompatibilityVersion(), a)
	if !ifc.transmitIgmp(now, dev, 0, report, a) {
		return true, NewError("join_multicast_group", ErrCodeExhausted, "no TxToken available to announce join")
	}
	return true, nil
}

// LeaveMulticastGroup leaves addr, synchronously emitting a leave message
// if the table changed and this host is operating in IGMPv2 compatibility
// (IGMPv1 hosts stay silent on departure). Per the Open Question resolution
// recorded in DESIGN.md, any pending ToSpecificQuery for addr is drained so
// it cannot spuriously emit a report for a group we just left.
func (ifc *Interface) LeaveMulticastGroup(dev device.Device, addr net.IP, now time.Time) (changed bool, err error) {
	a, ok := ipv4Of(addr)
	if !ok {
		return false, NewError("leave_multicast_group", ErrCodeIpv6NotSupported, "ipv6 multicast not supported")
	}
	changed = ifc.inner.multicast.Leave(a)
	if !changed {
		return false, nil
	}
	ifc.inner.igmp.ResetForGroup(a)
	if ifc.inner.CompatibilityVersion() == IgmpV1 {
		return true, nil
	}
	leave := BuildIgmpLeave(a)
	if !ifc.transmitIgmp(now, dev, 0, leave, allRoutersAddr) {
		return true, NewError("leave_multicast_group", ErrCodeExhausted, "no TxToken available to announce leave")
	}
	return true, nil
}

// allRoutersAddr is the destination IGMPv2 Leave Group messages are sent
// to (224.0.0.2), distinct from the group address itself.
var allRoutersAddr = [4]byte{224, 0, 0, 2}

func ipv4Of(addr net.IP) (out [4]byte, ok bool) {
	v4 := addr.To4()
	if v4 == nil {
		return out, false
	}
	copy(out[:], v4)
	return out, true
}

// firstIpv4Addr returns this interface's first configured IPv4 address, or
// the unspecified address if none is configured yet.
func (in *InterfaceInner) firstIpv4Addr() [4]byte {
	in.addrsMu.RLock()
	defer in.addrsMu.RUnlock()
	if len(in.ipv4Addr) == 0 {
		return wire.Ipv4Unspecified
	}
	return in.ipv4Addr[0].Addr
}
