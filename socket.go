package netstack

import (
	"encoding/binary"
	"time"
)

// SocketKind tags a Socket's concrete protocol variant. The dispatch loop
// reaches each variant's Accepts/Process through a type switch on the
// concrete socket type and uses Kind() only to single out raw sockets.
type SocketKind uint8

const (
	SocketKindRaw SocketKind = iota
	SocketKindIcmp
	SocketKindUdp
	SocketKindTcp
	SocketKindDns
)

func (k SocketKind) String() string {
	switch k {
	case SocketKindRaw:
		return "raw"
	case SocketKindIcmp:
		return "icmp"
	case SocketKindUdp:
		return "udp"
	case SocketKindTcp:
		return "tcp"
	case SocketKindDns:
		return "dns"
	default:
		return "unknown"
	}
}

// Envelope carries the addressing context a socket's Accepts/Process
// contract is evaluated against: the parsed IP representation plus the
// decoded transport-layer representation, both owned by InterfaceInner's
// decoders.
type Envelope struct {
	SrcAddr  [4]byte
	DstAddr  [4]byte
	SrcPort  uint16
	DstPort  uint16
	Now      time.Time
	Payload  []byte
}

// Socket is the tagged-union contract every protocol variant satisfies.
// Concrete types (RawSocket, IcmpSocket, UdpSocket, TcpSocket, DnsSocket)
// additionally expose protocol-specific Accepts/Process methods that
// dispatch_tcp.go/dispatch_udp.go call after a type switch on the concrete
// type.
//
// Per spec.md §1, the per-socket transport state machines themselves (TCP
// congestion control, UDP buffering, DNS resolution) are out of scope; the
// core only invokes their accepts/process contracts, so the concrete types
// below are intentionally thin.
type Socket interface {
	Kind() SocketKind
	// DispatchEvents reports whether this socket has egress work ready
	// (a readiness check poll_tx uses under read lock before deciding to
	// escalate to a write lock).
	DispatchEvents() bool
}

// RawSocket receives the transport segment (header plus data) of every UDP
// or TCP datagram whose protocol number matches its filter. Only
// dispatchUdp and dispatchTcp offer segments to raw sockets; ICMP, IGMP and
// other protocols never reach one.
type RawSocket struct {
	Protocol uint8
	Inbox    [][]byte
}

func (s *RawSocket) Kind() SocketKind      { return SocketKindRaw }
func (s *RawSocket) DispatchEvents() bool  { return false }

// Accepts reports whether protocol matches this raw socket's filter.
func (s *RawSocket) Accepts(protocol uint8) bool { return protocol == s.Protocol }

// Process appends the packet to Inbox for the owning application to drain.
func (s *RawSocket) Process(now time.Time, packet []byte) {
	s.Inbox = append(s.Inbox, append([]byte(nil), packet...))
}

// IcmpSocket matches ICMPv4 echo replies by identifier, the minimal
// userspace-ping contract.
type IcmpSocket struct {
	Ident uint16
	Inbox [][]byte
}

func (s *IcmpSocket) Kind() SocketKind     { return SocketKindIcmp }
func (s *IcmpSocket) DispatchEvents() bool { return false }

func (s *IcmpSocket) Accepts(ident uint16) bool { return ident == s.Ident }

func (s *IcmpSocket) Process(now time.Time, payload []byte) {
	s.Inbox = append(s.Inbox, append([]byte(nil), payload...))
}

// UdpSocket is a single-endpoint UDP socket: bound to a local port,
// optionally connected to one remote endpoint (zero remote = wildcard).
type UdpSocket struct {
	LocalPort  uint16
	RemoteAddr [4]byte
	RemotePort uint16 // 0 = unconnected, accept any remote
	Inbox      []UdpDatagram
	pending    []UdpDatagram
}

// UdpDatagram is one received or queued-for-send UDP payload.
type UdpDatagram struct {
	SrcAddr [4]byte
	SrcPort uint16
	DstAddr [4]byte
	DstPort uint16
	Payload []byte
}

func (s *UdpSocket) Kind() SocketKind     { return SocketKindUdp }
func (s *UdpSocket) DispatchEvents() bool { return len(s.pending) > 0 }

// Accepts reports whether env's destination port matches this socket's
// bound local port, and its source matches a connected remote if one is
// set.
func (s *UdpSocket) Accepts(env Envelope) bool {
	if env.DstPort != s.LocalPort {
		return false
	}
	if s.RemotePort != 0 && (env.SrcPort != s.RemotePort || env.SrcAddr != s.RemoteAddr) {
		return false
	}
	return true
}

// Process appends the datagram to Inbox.
func (s *UdpSocket) Process(env Envelope) {
	s.Inbox = append(s.Inbox, UdpDatagram{
		SrcAddr: env.SrcAddr,
		SrcPort: env.SrcPort,
		DstAddr: env.DstAddr,
		DstPort: env.DstPort,
		Payload: append([]byte(nil), env.Payload...),
	})
}

// Send queues a datagram for poll_tx to drain through a TxToken.
func (s *UdpSocket) Send(dst [4]byte, dstPort uint16, payload []byte) {
	s.pending = append(s.pending, UdpDatagram{DstPort: dstPort, DstAddr: dst, Payload: payload})
}

// TakePending drains and returns every queued outgoing datagram.
func (s *UdpSocket) TakePending() []UdpDatagram {
	p := s.pending
	s.pending = nil
	return p
}

// TcpState is a minimal connection-state tag; the full state machine
// (retransmission, congestion control) is explicitly out of scope per
// spec.md §1 — this stack only needs enough state to route SYNs to a
// listener and synthesize RST. There is no listening backlog: a listener
// becomes the established connection on the first segment it accepts.
type TcpState uint8

const (
	TcpStateListen TcpState = iota
	TcpStateEstablished
	TcpStateClosed
)

// TcpSocket is a single listening or connected TCP endpoint.
type TcpSocket struct {
	LocalPort   uint16
	RemoteAddr  [4]byte
	RemotePort  uint16
	State       TcpState
	SeqNumber   uint32
	AckNumber   uint32
	Inbox       [][]byte
	pendingFin  bool
	pendingData [][]byte
}

func (s *TcpSocket) Kind() SocketKind     { return SocketKindTcp }
func (s *TcpSocket) DispatchEvents() bool { return s.pendingFin || len(s.pendingData) > 0 }

// Accepts reports whether env matches this socket: for a listener, any
// source to LocalPort; for an established socket, the specific 5-tuple.
func (s *TcpSocket) Accepts(env Envelope) bool {
	if env.DstPort != s.LocalPort {
		return false
	}
	if s.State == TcpStateListen {
		return true
	}
	return env.SrcPort == s.RemotePort && env.SrcAddr == s.RemoteAddr
}

// Send queues payload for poll_tx to drain through a TxToken, mirroring
// UdpSocket's Send/TakePending convention. A no-op on a socket that isn't
// established (nothing to send to yet, or already closing).
func (s *TcpSocket) Send(payload []byte) {
	if s.State != TcpStateEstablished {
		return
	}
	s.pendingData = append(s.pendingData, append([]byte(nil), payload...))
}

// TakePendingData drains and returns every queued outgoing segment payload.
func (s *TcpSocket) TakePendingData() [][]byte {
	p := s.pendingData
	s.pendingData = nil
	return p
}

// Close queues a FIN for poll_tx to drain through a TxToken, if the
// connection is established; a listening or already-closed socket has
// nothing to flush.
func (s *TcpSocket) Close() {
	if s.State == TcpStateEstablished {
		s.pendingFin = true
	}
	s.State = TcpStateClosed
}

// Process advances minimal connection state and appends any data payload
// to Inbox. It does not implement retransmission or flow control.
func (s *TcpSocket) Process(env Envelope, flags uint8) {
	if s.State == TcpStateListen {
		s.RemoteAddr = env.SrcAddr
		s.RemotePort = env.SrcPort
		s.State = TcpStateEstablished
	}
	if len(env.Payload) > 0 {
		s.Inbox = append(s.Inbox, append([]byte(nil), env.Payload...))
	}
	s.AckNumber += uint32(len(env.Payload))
}

// DnsSocket is a stub UDP/53 resolver client socket: it only needs enough
// state to match inbound replies by transaction id, the actual resolution
// logic being out of scope per spec.md §1.
type DnsSocket struct {
	LocalPort uint16
	TxnID     uint16
	Inbox     [][]byte
}

func (s *DnsSocket) Kind() SocketKind     { return SocketKindDns }
func (s *DnsSocket) DispatchEvents() bool { return false }

// Accepts reports whether env is addressed to LocalPort and its DNS header
// carries TxnID as the transaction id.
func (s *DnsSocket) Accepts(env Envelope) bool {
	if env.DstPort != s.LocalPort || len(env.Payload) < 2 {
		return false
	}
	return binary.BigEndian.Uint16(env.Payload[0:2]) == s.TxnID
}

func (s *DnsSocket) Process(env Envelope) {
	s.Inbox = append(s.Inbox, append([]byte(nil), env.Payload...))
}
