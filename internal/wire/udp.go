package wire

import "encoding/binary"

const UdpHeaderLen = 8

// UdpRepr is a decoded UDP header.
type UdpRepr struct {
	SrcPort uint16
	DstPort uint16
}

// ParseUdp decodes the UDP header and returns it plus the payload slice.
func ParseUdp(buf []byte) (UdpRepr, []byte, error) {
	if len(buf) < UdpHeaderLen {
		return UdpRepr{}, nil, ErrTruncated
	}
	length := int(binary.BigEndian.Uint16(buf[4:6]))
	if length < UdpHeaderLen || length > len(buf) {
		return UdpRepr{}, nil, ErrTruncated
	}
	r := UdpRepr{
		SrcPort: binary.BigEndian.Uint16(buf[0:2]),
		DstPort: binary.BigEndian.Uint16(buf[2:4]),
	}
	return r, buf[UdpHeaderLen:length], nil
}

// Serialize writes the UDP header + payload into buf and fills in the
// checksum using the IPv4 pseudo-header.
func (r UdpRepr) Serialize(buf []byte, payload []byte, src, dst [4]byte) error {
	total := UdpHeaderLen + len(payload)
	if len(buf) < total {
		return ErrTruncated
	}
	binary.BigEndian.PutUint16(buf[0:2], r.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], r.DstPort)
	binary.BigEndian.PutUint16(buf[4:6], uint16(total))
	binary.BigEndian.PutUint16(buf[6:8], 0)
	copy(buf[UdpHeaderLen:total], payload)
	carry := PseudoHeaderIpv4(src, dst, uint8(ProtocolUdp), uint16(total))
	csum := Checksum(buf[:total], carry)
	if csum == 0 {
		csum = 0xffff
	}
	binary.BigEndian.PutUint16(buf[6:8], csum)
	return nil
}
