package wire

import "encoding/binary"

// IgmpKind is the IGMP message type.
type IgmpKind uint8

const (
	IgmpMembershipQuery  IgmpKind = 0x11
	IgmpV1Report         IgmpKind = 0x12
	IgmpV2Report         IgmpKind = 0x16
	IgmpLeaveGroup       IgmpKind = 0x17
)

const IgmpHeaderLen = 8

// IgmpRepr is a decoded IGMPv1/v2 message.
//
// MaxRespTime is in units of 100ms (as on the wire) and is zero for an
// IGMPv1 message, which carries no response-time field; version
// discrimination follows this field per SPEC_FULL.md §12.
type IgmpRepr struct {
	Kind        IgmpKind
	MaxRespTime uint8
	GroupAddr   [4]byte
}

// ParseIgmp decodes an IGMPv1/v2 message. The checksum is not verified,
// here or by any caller; only a message shorter than IgmpHeaderLen is
// rejected.
func ParseIgmp(buf []byte) (IgmpRepr, error) {
	if len(buf) < IgmpHeaderLen {
		return IgmpRepr{}, ErrTruncated
	}
	var r IgmpRepr
	r.Kind = IgmpKind(buf[0])
	r.MaxRespTime = buf[1]
	copy(r.GroupAddr[:], buf[4:8])
	return r, nil
}

// IsV1 reports whether this query/report carries no max-response-time
// field, i.e. is IGMPv1.
func (r IgmpRepr) IsV1() bool { return r.MaxRespTime == 0 }

// Serialize writes the IGMP message into buf and fills in the checksum.
func (r IgmpRepr) Serialize(buf []byte) error {
	if len(buf) < IgmpHeaderLen {
		return ErrTruncated
	}
	buf[0] = uint8(r.Kind)
	buf[1] = r.MaxRespTime
	binary.BigEndian.PutUint16(buf[2:4], 0) // checksum placeholder
	copy(buf[4:8], r.GroupAddr[:])
	csum := Checksum(buf[:IgmpHeaderLen], 0)
	binary.BigEndian.PutUint16(buf[2:4], csum)
	return nil
}
