package wire

import "encoding/binary"

// ArpOperation is the ARP opcode.
type ArpOperation uint16

const (
	ArpRequest ArpOperation = 1
	ArpReply   ArpOperation = 2
)

const arpEthIpv4Len = 28

// ArpRepr is an Ethernet/IPv4 ARP packet. Other hardware/protocol
// combinations are not needed by this stack and are rejected by Parse.
type ArpRepr struct {
	Operation       ArpOperation
	SourceHardware  HardwareAddr
	SourceProtocol  [4]byte
	TargetHardware  HardwareAddr
	TargetProtocol  [4]byte
}

// ParseArp decodes an Ethernet/IPv4 ARP packet from buf.
func ParseArp(buf []byte) (ArpRepr, error) {
	if len(buf) < arpEthIpv4Len {
		return ArpRepr{}, ErrTruncated
	}
	hwType := binary.BigEndian.Uint16(buf[0:2])
	protoType := binary.BigEndian.Uint16(buf[2:4])
	hwLen := buf[4]
	protoLen := buf[5]
	if hwType != 1 || protoType != uint16(EtherTypeIPv4) || hwLen != 6 || protoLen != 4 {
		return ArpRepr{}, ErrTruncated
	}
	var r ArpRepr
	r.Operation = ArpOperation(binary.BigEndian.Uint16(buf[6:8]))
	copy(r.SourceHardware[:], buf[8:14])
	copy(r.SourceProtocol[:], buf[14:18])
	copy(r.TargetHardware[:], buf[18:24])
	copy(r.TargetProtocol[:], buf[24:28])
	return r, nil
}

// Serialize writes the ARP packet into buf (at least arpEthIpv4Len bytes).
func (r ArpRepr) Serialize(buf []byte) error {
	if len(buf) < arpEthIpv4Len {
		return ErrTruncated
	}
	binary.BigEndian.PutUint16(buf[0:2], 1)
	binary.BigEndian.PutUint16(buf[2:4], uint16(EtherTypeIPv4))
	buf[4] = 6
	buf[5] = 4
	binary.BigEndian.PutUint16(buf[6:8], uint16(r.Operation))
	copy(buf[8:14], r.SourceHardware[:])
	copy(buf[14:18], r.SourceProtocol[:])
	copy(buf[18:24], r.TargetHardware[:])
	copy(buf[24:28], r.TargetProtocol[:])
	return nil
}

// ArpPacketLen is the wire length of an Ethernet/IPv4 ARP packet.
const ArpPacketLen = arpEthIpv4Len
