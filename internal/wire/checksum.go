// Package wire provides the minimal packet representations the interface
// and dispatch layers need. It stands in for the concrete packet-codec
// layer spec.md treats as an external collaborator (see SPEC_FULL.md §3):
// enough Ethernet/ARP/IPv4/ICMPv4/UDP/TCP/IGMP parsing and serialization to
// decode ingress and build replies, with no claim to bit-exact wire
// compatibility beyond what the stack's own tests exercise.
package wire

import "encoding/binary"

// Checksum computes the Internet checksum (RFC 1071) over b, folding a
// carry-in accumulator so callers can combine a pseudo-header with a
// payload without concatenating buffers.
func Checksum(b []byte, carry uint32) uint16 {
	sum := carry
	n := len(b)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(b[i : i+2]))
	}
	if n%2 == 1 {
		sum += uint32(b[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// PseudoHeaderIpv4 folds the IPv4 pseudo-header used by TCP/UDP checksums
// into a partial checksum accumulator.
func PseudoHeaderIpv4(src, dst [4]byte, protocol uint8, length uint16) uint32 {
	var sum uint32
	sum += uint32(binary.BigEndian.Uint16(src[0:2]))
	sum += uint32(binary.BigEndian.Uint16(src[2:4]))
	sum += uint32(binary.BigEndian.Uint16(dst[0:2]))
	sum += uint32(binary.BigEndian.Uint16(dst[2:4]))
	sum += uint32(protocol)
	sum += uint32(length)
	return sum
}
