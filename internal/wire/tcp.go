package wire

import "encoding/binary"

const TcpMinHeaderLen = 20

// TcpFlags are the TCP control bits.
type TcpFlags uint8

const (
	TcpFlagFin TcpFlags = 1 << 0
	TcpFlagSyn TcpFlags = 1 << 1
	TcpFlagRst TcpFlags = 1 << 2
	TcpFlagPsh TcpFlags = 1 << 3
	TcpFlagAck TcpFlags = 1 << 4
	TcpFlagUrg TcpFlags = 1 << 5
)

func (f TcpFlags) Has(flag TcpFlags) bool { return f&flag != 0 }

// TcpRepr is a decoded TCP header. Options are skipped, not retained —
// per-socket transport state machines (congestion control, retransmission)
// are out of scope per spec.md §1; this stack only needs enough of the
// header to route, accept, and synthesize RST replies.
type TcpRepr struct {
	SrcPort    uint16
	DstPort    uint16
	SeqNumber  uint32
	AckNumber  uint32
	Flags      TcpFlags
	WindowLen  uint16
}

// ParseTcp decodes the TCP header and returns it plus the payload slice
// (options, if any, are skipped over).
func ParseTcp(buf []byte) (TcpRepr, []byte, error) {
	if len(buf) < TcpMinHeaderLen {
		return TcpRepr{}, nil, ErrTruncated
	}
	dataOffset := int(buf[12]>>4) * 4
	if dataOffset < TcpMinHeaderLen || dataOffset > len(buf) {
		return TcpRepr{}, nil, ErrTruncated
	}
	r := TcpRepr{
		SrcPort:   binary.BigEndian.Uint16(buf[0:2]),
		DstPort:   binary.BigEndian.Uint16(buf[2:4]),
		SeqNumber: binary.BigEndian.Uint32(buf[4:8]),
		AckNumber: binary.BigEndian.Uint32(buf[8:12]),
		Flags:     TcpFlags(buf[13] & 0x3f),
		WindowLen: binary.BigEndian.Uint16(buf[14:16]),
	}
	return r, buf[dataOffset:], nil
}

// Serialize writes the TCP header + payload into buf (no options, data
// offset fixed at 5 32-bit words) and fills in the checksum.
func (r TcpRepr) Serialize(buf []byte, payload []byte, src, dst [4]byte) error {
	total := TcpMinHeaderLen + len(payload)
	if len(buf) < total {
		return ErrTruncated
	}
	binary.BigEndian.PutUint16(buf[0:2], r.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], r.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], r.SeqNumber)
	binary.BigEndian.PutUint32(buf[8:12], r.AckNumber)
	buf[12] = 5 << 4
	buf[13] = uint8(r.Flags)
	binary.BigEndian.PutUint16(buf[14:16], r.WindowLen)
	binary.BigEndian.PutUint16(buf[16:18], 0) // checksum placeholder
	binary.BigEndian.PutUint16(buf[18:20], 0) // urgent pointer, unused
	copy(buf[TcpMinHeaderLen:total], payload)
	carry := PseudoHeaderIpv4(src, dst, uint8(ProtocolTcp), uint16(total))
	csum := Checksum(buf[:total], carry)
	binary.BigEndian.PutUint16(buf[16:18], csum)
	return nil
}
