package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HardwareAddr is a 6-byte Ethernet MAC address.
type HardwareAddr [6]byte

func (a HardwareAddr) IsUnicast() bool { return a[0]&0x01 == 0 }
func (a HardwareAddr) IsBroadcast() bool {
	return a == HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
}

func (a HardwareAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// EtherType identifies the payload protocol carried by an Ethernet frame.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeIPv6 EtherType = 0x86DD
)

const EthernetHeaderLen = 14

// ErrTruncated is returned by Parse functions when the buffer is shorter
// than the format requires. Per spec.md §4.E, callers drop such frames
// silently (trace log only); it is never propagated past InterfaceInner.
var ErrTruncated = errors.New("wire: truncated frame")

// EthernetRepr is the decoded form of an Ethernet header.
type EthernetRepr struct {
	SrcAddr   HardwareAddr
	DstAddr   HardwareAddr
	EtherType EtherType
}

// ParseEthernet decodes the Ethernet header from buf and returns the
// header fields plus the remaining payload slice (aliasing buf).
func ParseEthernet(buf []byte) (EthernetRepr, []byte, error) {
	if len(buf) < EthernetHeaderLen {
		return EthernetRepr{}, nil, ErrTruncated
	}
	var r EthernetRepr
	copy(r.DstAddr[:], buf[0:6])
	copy(r.SrcAddr[:], buf[6:12])
	r.EtherType = EtherType(binary.BigEndian.Uint16(buf[12:14]))
	return r, buf[EthernetHeaderLen:], nil
}

// Serialize writes the Ethernet header into buf, which must be at least
// EthernetHeaderLen bytes.
func (r EthernetRepr) Serialize(buf []byte) error {
	if len(buf) < EthernetHeaderLen {
		return ErrTruncated
	}
	copy(buf[0:6], r.DstAddr[:])
	copy(buf[6:12], r.SrcAddr[:])
	binary.BigEndian.PutUint16(buf[12:14], uint16(r.EtherType))
	return nil
}
