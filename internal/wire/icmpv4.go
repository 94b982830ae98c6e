package wire

import "encoding/binary"

// Icmpv4Kind is the ICMPv4 message type.
type Icmpv4Kind uint8

const (
	Icmpv4EchoReply        Icmpv4Kind = 0
	Icmpv4DstUnreachable   Icmpv4Kind = 3
	Icmpv4EchoRequest      Icmpv4Kind = 8
)

// Icmpv4Code is the ICMPv4 message code, meaningful for DstUnreachable.
type Icmpv4Code uint8

const (
	Icmpv4CodePortUnreachable Icmpv4Code = 3
)

const icmpv4HeaderLen = 8

// Icmpv4Repr is a decoded ICMPv4 message. For Echo, Ident/SeqNo/Data carry
// the echo payload; for DstUnreachable, Data carries the offending IPv4
// header plus up to Ipv4MinMTU-budgeted bytes of its payload.
type Icmpv4Repr struct {
	Kind  Icmpv4Kind
	Code  Icmpv4Code
	Ident uint16
	SeqNo uint16
	Data  []byte
}

// ParseIcmpv4 decodes an ICMPv4 message from buf.
func ParseIcmpv4(buf []byte) (Icmpv4Repr, error) {
	if len(buf) < icmpv4HeaderLen {
		return Icmpv4Repr{}, ErrTruncated
	}
	var r Icmpv4Repr
	r.Kind = Icmpv4Kind(buf[0])
	r.Code = Icmpv4Code(buf[1])
	switch r.Kind {
	case Icmpv4EchoRequest, Icmpv4EchoReply:
		r.Ident = binary.BigEndian.Uint16(buf[4:6])
		r.SeqNo = binary.BigEndian.Uint16(buf[6:8])
		r.Data = buf[icmpv4HeaderLen:]
	default:
		r.Data = buf[icmpv4HeaderLen:]
	}
	return r, nil
}

// WireLen is the serialized size of the message, including the header.
func (r Icmpv4Repr) WireLen() int { return icmpv4HeaderLen + len(r.Data) }

// Serialize writes the ICMPv4 message (header + Data) into buf and fills
// in the checksum.
func (r Icmpv4Repr) Serialize(buf []byte) error {
	if len(buf) < r.WireLen() {
		return ErrTruncated
	}
	buf[0] = uint8(r.Kind)
	buf[1] = uint8(r.Code)
	binary.BigEndian.PutUint16(buf[2:4], 0) // checksum placeholder
	switch r.Kind {
	case Icmpv4EchoRequest, Icmpv4EchoReply:
		binary.BigEndian.PutUint16(buf[4:6], r.Ident)
		binary.BigEndian.PutUint16(buf[6:8], r.SeqNo)
	default:
		binary.BigEndian.PutUint32(buf[4:8], 0)
	}
	copy(buf[icmpv4HeaderLen:], r.Data)
	csum := Checksum(buf[:r.WireLen()], 0)
	binary.BigEndian.PutUint16(buf[2:4], csum)
	return nil
}

// TruncatedOriginal truncates an offending IPv4 datagram (header + payload)
// to the budget an ICMP error carried over an Ipv4MinMTU-sized link allows.
func TruncatedOriginal(ipv4HeaderAndPayload []byte) []byte {
	budget := Ipv4MinMTU - Ipv4MinHeaderLen - icmpv4HeaderLen
	if len(ipv4HeaderAndPayload) <= budget {
		return ipv4HeaderAndPayload
	}
	return ipv4HeaderAndPayload[:budget]
}
