package netstack

import (
	"time"

	"github.com/packetlayer/netstack/internal/wire"
)

// dispatchUdp implements spec.md §4.H for a decoded UDP datagram: try-read
// every socket, match by Accepts, steer affinity on a match, then process
// under a write lock. If nothing matched and no raw socket already handled
// the datagram, an ICMPv4 port-unreachable reply is synthesized.
func dispatchUdp(in *InterfaceInner, now time.Time, queueID int, srcHW wire.HardwareAddr, ip wire.Ipv4Repr, payload []byte, sockets *SocketSet) (*Reply, bool) {
	udp, data, err := wire.ParseUdp(payload)
	if err != nil {
		in.logger.Debugf("queue %d: dropping truncated udp datagram: %v", queueID, err)
		in.metrics.DecodeErrors.Add(1)
		return nil, false
	}
	env := Envelope{SrcAddr: ip.SrcAddr, DstAddr: ip.DstAddr, SrcPort: udp.SrcPort, DstPort: udp.DstPort, Now: now, Payload: data}

	handledByRaw := false
	matched := false

	for _, item := range sockets.Items() {
		var kind SocketKind
		var accepts bool
		ok := item.TryReadSocket(func(sock Socket) {
			kind = sock.Kind()
			switch s := sock.(type) {
			case *RawSocket:
				accepts = s.Accepts(uint8(wire.ProtocolUdp))
			case *UdpSocket:
				accepts = s.Accepts(env)
			case *DnsSocket:
				accepts = s.Accepts(env)
			}
		})
		if !ok || !accepts {
			continue // try-read contention or no match: skip this round (load-shedding)
		}

		if kind == SocketKindRaw {
			handledByRaw = true
			item.WriteSocket(func(sock Socket) {
				if s, ok := sock.(*RawSocket); ok {
					s.Process(now, payload)
				}
			})
			continue
		}

		matched = true
		if item.SteerTo(queueID) {
			in.logger.Debugf("queue %d: steered socket %d to this queue (udp dst port %d)", queueID, item.Meta().Handle, udp.DstPort)
			if in.metrics != nil {
				in.metrics.SocketsSteered.Add(1)
			}
		}
		item.WriteSocket(func(sock Socket) {
			switch s := sock.(type) {
			case *UdpSocket:
				s.Process(env)
			case *DnsSocket:
				s.Process(env)
			}
		})
	}

	if matched || handledByRaw {
		return nil, false
	}
	return in.buildPortUnreachable(srcHW, ip, payload), true
}

// buildPortUnreachable synthesizes an ICMPv4 DstUnreachable/PortUnreachable
// reply whose Data is the original IPv4 header plus payload, truncated to
// the IPv4 min-MTU ICMP budget (spec.md §8 scenario 6).
func (in *InterfaceInner) buildPortUnreachable(dstHW wire.HardwareAddr, ip wire.Ipv4Repr, udpDatagram []byte) *Reply {
	original := make([]byte, wire.Ipv4MinHeaderLen+len(udpDatagram))
	originalIP := ip
	originalIP.PayloadLen = uint16(len(udpDatagram))
	if err := originalIP.Serialize(original); err != nil {
		return nil
	}
	copy(original[wire.Ipv4MinHeaderLen:], udpDatagram)

	icmp := wire.Icmpv4Repr{
		Kind: wire.Icmpv4DstUnreachable,
		Code: wire.Icmpv4CodePortUnreachable,
		Data: wire.TruncatedOriginal(original),
	}
	body := make([]byte, icmp.WireLen())
	if err := icmp.Serialize(body); err != nil {
		return nil
	}
	replyIP := wire.Ipv4Repr{
		SrcAddr:  ip.DstAddr,
		DstAddr:  ip.SrcAddr,
		Protocol: wire.ProtocolIcmp,
		Ident:    in.nextIdent(),
		Ttl:      64,
	}
	if in.metrics != nil {
		in.metrics.PortUnreachableSent.Add(1)
	}
	return in.buildIpv4Reply(dstHW, replyIP, body)
}
