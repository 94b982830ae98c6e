package wire

import "encoding/binary"

// IpProtocol identifies the IPv4 payload protocol.
type IpProtocol uint8

const (
	ProtocolIcmp IpProtocol = 1
	ProtocolIgmp IpProtocol = 2
	ProtocolTcp  IpProtocol = 6
	ProtocolUdp  IpProtocol = 17
)

const (
	Ipv4MinHeaderLen = 20
	// Ipv4MinMTU is the smallest MTU IPv4 requires every link to carry;
	// ICMP error payloads are truncated to this budget per spec.md §8
	// scenario 6.
	Ipv4MinMTU = 576
)

var Ipv4Unspecified = [4]byte{0, 0, 0, 0}
var Ipv4Broadcast = [4]byte{255, 255, 255, 255}

func Ipv4IsMulticast(a [4]byte) bool { return a[0]&0xf0 == 0xe0 }
func Ipv4IsUnspecified(a [4]byte) bool { return a == Ipv4Unspecified }

// Ipv4Repr is a decoded IPv4 header, ignoring options.
type Ipv4Repr struct {
	SrcAddr      [4]byte
	DstAddr      [4]byte
	Protocol     IpProtocol
	PayloadLen   uint16
	Ident        uint16
	DontFragment bool
	MoreFragments bool
	FragOffset   uint16
	Ttl          uint8
}

// ParseIpv4 decodes the IPv4 header (options are skipped, not retained)
// and returns the header plus the remaining payload slice.
func ParseIpv4(buf []byte) (Ipv4Repr, []byte, error) {
	if len(buf) < Ipv4MinHeaderLen {
		return Ipv4Repr{}, nil, ErrTruncated
	}
	version := buf[0] >> 4
	ihl := int(buf[0]&0x0f) * 4
	if version != 4 || ihl < Ipv4MinHeaderLen || len(buf) < ihl {
		return Ipv4Repr{}, nil, ErrTruncated
	}
	totalLen := int(binary.BigEndian.Uint16(buf[2:4]))
	if totalLen < ihl || totalLen > len(buf) {
		return Ipv4Repr{}, nil, ErrTruncated
	}
	flagsFrag := binary.BigEndian.Uint16(buf[6:8])
	var r Ipv4Repr
	r.Ident = binary.BigEndian.Uint16(buf[4:6])
	r.DontFragment = flagsFrag&0x4000 != 0
	r.MoreFragments = flagsFrag&0x2000 != 0
	r.FragOffset = (flagsFrag & 0x1fff) * 8
	r.Ttl = buf[8]
	r.Protocol = IpProtocol(buf[9])
	copy(r.SrcAddr[:], buf[12:16])
	copy(r.DstAddr[:], buf[16:20])
	r.PayloadLen = uint16(totalLen - ihl)
	return r, buf[ihl:totalLen], nil
}

// Serialize writes the IPv4 header (no options, IHL=5) into buf[:20] and
// fills in the header checksum. payloadLen must match what the caller will
// append after the header.
func (r Ipv4Repr) Serialize(buf []byte) error {
	if len(buf) < Ipv4MinHeaderLen {
		return ErrTruncated
	}
	buf[0] = 0x45 // version 4, IHL 5
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], Ipv4MinHeaderLen+r.PayloadLen)
	binary.BigEndian.PutUint16(buf[4:6], r.Ident)
	var flagsFrag uint16
	if r.DontFragment {
		flagsFrag |= 0x4000
	}
	if r.MoreFragments {
		flagsFrag |= 0x2000
	}
	flagsFrag |= (r.FragOffset / 8) & 0x1fff
	binary.BigEndian.PutUint16(buf[6:8], flagsFrag)
	buf[8] = r.Ttl
	buf[9] = uint8(r.Protocol)
	binary.BigEndian.PutUint16(buf[10:12], 0) // checksum placeholder
	copy(buf[12:16], r.SrcAddr[:])
	copy(buf[16:20], r.DstAddr[:])
	csum := Checksum(buf[:Ipv4MinHeaderLen], 0)
	binary.BigEndian.PutUint16(buf[10:12], csum)
	return nil
}
