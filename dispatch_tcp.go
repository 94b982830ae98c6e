package netstack

import (
	"time"

	"github.com/packetlayer/netstack/internal/wire"
)

// dispatchTcp implements spec.md §4.H for a decoded TCP segment: try-read
// every socket, match by Accepts, steer affinity on a match, then process
// under a write lock. If nothing matched, a RST reply is synthesized unless
// the inbound segment was itself RST or its source/destination is
// unspecified (spec.md §8 scenario 5, §4.H).
func dispatchTcp(in *InterfaceInner, now time.Time, queueID int, srcHW wire.HardwareAddr, ip wire.Ipv4Repr, payload []byte, sockets *SocketSet) (*Reply, bool) {
	tcp, data, err := wire.ParseTcp(payload)
	if err != nil {
		in.logger.Debugf("queue %d: dropping truncated tcp segment: %v", queueID, err)
		in.metrics.DecodeErrors.Add(1)
		return nil, false
	}
	env := Envelope{SrcAddr: ip.SrcAddr, DstAddr: ip.DstAddr, SrcPort: tcp.SrcPort, DstPort: tcp.DstPort, Now: now, Payload: data}

	matched := false
	for _, item := range sockets.Items() {
		var kind SocketKind
		var accepts bool
		ok := item.TryReadSocket(func(sock Socket) {
			kind = sock.Kind()
			switch s := sock.(type) {
			case *RawSocket:
				accepts = s.Accepts(uint8(wire.ProtocolTcp))
			case *TcpSocket:
				accepts = s.Accepts(env)
			}
		})
		if !ok || !accepts {
			continue
		}

		if kind == SocketKindRaw {
			item.WriteSocket(func(sock Socket) {
				if s, ok := sock.(*RawSocket); ok {
					s.Process(now, payload)
				}
			})
			continue
		}

		matched = true
		if item.SteerTo(queueID) {
			in.logger.Debugf("queue %d: steered socket %d to this queue (tcp dst port %d)", queueID, item.Meta().Handle, tcp.DstPort)
			if in.metrics != nil {
				in.metrics.SocketsSteered.Add(1)
			}
		}
		item.WriteSocket(func(sock Socket) {
			if s, ok := sock.(*TcpSocket); ok {
				s.Process(env, uint8(tcp.Flags))
			}
		})
	}

	if matched {
		return nil, false
	}
	if tcp.Flags.Has(wire.TcpFlagRst) || wire.Ipv4IsUnspecified(ip.SrcAddr) || wire.Ipv4IsUnspecified(ip.DstAddr) {
		return nil, false
	}
	return in.buildRst(srcHW, ip, tcp, len(data)), true
}

// buildRst synthesizes a RST (RFC 793 §3.4) in reply to an unmatched
// segment: if the inbound segment carried ACK, the RST echoes that ack
// number as its own sequence number with no ACK of its own; otherwise the
// RST acknowledges the inbound segment's implied sequence-space
// consumption (SYN/FIN each count as one byte) with RST|ACK.
func (in *InterfaceInner) buildRst(dstHW wire.HardwareAddr, ip wire.Ipv4Repr, incoming wire.TcpRepr, payloadLen int) *Reply {
	var rst wire.TcpRepr
	rst.SrcPort = incoming.DstPort
	rst.DstPort = incoming.SrcPort

	if incoming.Flags.Has(wire.TcpFlagAck) {
		rst.SeqNumber = incoming.AckNumber
		rst.Flags = wire.TcpFlagRst
	} else {
		consumed := uint32(payloadLen)
		if incoming.Flags.Has(wire.TcpFlagSyn) {
			consumed++
		}
		if incoming.Flags.Has(wire.TcpFlagFin) {
			consumed++
		}
		rst.SeqNumber = 0
		rst.AckNumber = incoming.SeqNumber + consumed
		rst.Flags = wire.TcpFlagRst | wire.TcpFlagAck
	}

	body := make([]byte, wire.TcpMinHeaderLen)
	if err := rst.Serialize(body, nil, ip.DstAddr, ip.SrcAddr); err != nil {
		return nil
	}
	replyIP := wire.Ipv4Repr{
		SrcAddr:  ip.DstAddr,
		DstAddr:  ip.SrcAddr,
		Protocol: wire.ProtocolTcp,
		Ident:    in.nextIdent(),
		Ttl:      64,
	}
	if in.metrics != nil {
		in.metrics.RstSent.Add(1)
	}
	return in.buildIpv4Reply(dstHW, replyIP, body)
}
