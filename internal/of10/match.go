package of10

import (
	"encoding/binary"
	"fmt"
)

// -------------------------------------------------------------------------
// Wildcards — ofp_flow_wildcards
// -------------------------------------------------------------------------

// Wildcard bits for ofp_match. A set bit means the corresponding field is
// ignored when matching. The IPv4 source and destination wildcards are
// 6-bit sub-fields counting ignored low-order address bits; 32 or more
// wildcards the entire address.
const (
	WildcardInPort  uint32 = 1 << 0
	WildcardDLVLAN  uint32 = 1 << 1
	WildcardDLSrc   uint32 = 1 << 2
	WildcardDLDst   uint32 = 1 << 3
	WildcardDLType  uint32 = 1 << 4
	WildcardNWProto uint32 = 1 << 5
	WildcardTPSrc   uint32 = 1 << 6
	WildcardTPDst   uint32 = 1 << 7

	// NWSrcShift/NWDstShift locate the 6-bit prefix wildcard sub-fields.
	NWSrcShift uint32 = 8
	NWDstShift uint32 = 14

	WildcardNWSrcMask uint32 = 0x3f << NWSrcShift
	WildcardNWDstMask uint32 = 0x3f << NWDstShift

	// WildcardNWSrcAll / WildcardNWDstAll wildcard the whole address.
	WildcardNWSrcAll uint32 = 32 << NWSrcShift
	WildcardNWDstAll uint32 = 32 << NWDstShift

	WildcardDLVLANPCP uint32 = 1 << 20
	WildcardNWTOS     uint32 = 1 << 21

	// WildcardAll wildcards every field.
	WildcardAll uint32 = (1 << 22) - 1
)

// MatchSize is the encoded size of ofp_match in bytes.
const MatchSize = 40

// -------------------------------------------------------------------------
// Match — ofp_match
// -------------------------------------------------------------------------

// Match is the OpenFlow 1.0 flow match structure. Fields are host byte
// order; a field is only consulted when its wildcard bit is clear.
//
// Wire format (40 bytes):
//
//	Bytes 0-3:   wildcards
//	Bytes 4-5:   in_port
//	Bytes 6-11:  dl_src
//	Bytes 12-17: dl_dst
//	Bytes 18-19: dl_vlan
//	Byte 20:     dl_vlan_pcp
//	Byte 21:     pad
//	Bytes 22-23: dl_type
//	Byte 24:     nw_tos
//	Byte 25:     nw_proto
//	Bytes 26-27: pad
//	Bytes 28-31: nw_src
//	Bytes 32-35: nw_dst
//	Bytes 36-37: tp_src
//	Bytes 38-39: tp_dst
type Match struct {
	Wildcards uint32
	InPort    uint16
	DLSrc     [6]byte
	DLDst     [6]byte
	DLVLAN    uint16
	DLVLANPCP uint8
	DLType    uint16
	NWTOS     uint8
	NWProto   uint8
	NWSrc     uint32
	NWDst     uint32
	TPSrc     uint16
	TPDst     uint16
}

// PutMatch encodes m into buf, which must be at least MatchSize bytes.
func PutMatch(buf []byte, m *Match) {
	binary.BigEndian.PutUint32(buf[0:4], m.Wildcards)
	binary.BigEndian.PutUint16(buf[4:6], m.InPort)
	copy(buf[6:12], m.DLSrc[:])
	copy(buf[12:18], m.DLDst[:])
	binary.BigEndian.PutUint16(buf[18:20], m.DLVLAN)
	buf[20] = m.DLVLANPCP
	buf[21] = 0
	binary.BigEndian.PutUint16(buf[22:24], m.DLType)
	buf[24] = m.NWTOS
	buf[25] = m.NWProto
	buf[26], buf[27] = 0, 0
	binary.BigEndian.PutUint32(buf[28:32], m.NWSrc)
	binary.BigEndian.PutUint32(buf[32:36], m.NWDst)
	binary.BigEndian.PutUint16(buf[36:38], m.TPSrc)
	binary.BigEndian.PutUint16(buf[38:40], m.TPDst)
}

// DecodeMatch decodes an ofp_match from the start of buf.
func DecodeMatch(buf []byte) (Match, error) {
	var m Match
	if len(buf) < MatchSize {
		return m, fmt.Errorf("decode match: %d bytes: %w", len(buf), ErrShortBuffer)
	}

	m.Wildcards = binary.BigEndian.Uint32(buf[0:4])
	m.InPort = binary.BigEndian.Uint16(buf[4:6])
	copy(m.DLSrc[:], buf[6:12])
	copy(m.DLDst[:], buf[12:18])
	m.DLVLAN = binary.BigEndian.Uint16(buf[18:20])
	m.DLVLANPCP = buf[20]
	m.DLType = binary.BigEndian.Uint16(buf[22:24])
	m.NWTOS = buf[24]
	m.NWProto = buf[25]
	m.NWSrc = binary.BigEndian.Uint32(buf[28:32])
	m.NWDst = binary.BigEndian.Uint32(buf[32:36])
	m.TPSrc = binary.BigEndian.Uint16(buf[36:38])
	m.TPDst = binary.BigEndian.Uint16(buf[38:40])
	return m, nil
}

// NWSrcWildBits returns the number of ignored low-order bits of NWSrc,
// clamped to 32.
func (m *Match) NWSrcWildBits() uint32 {
	bits := (m.Wildcards & WildcardNWSrcMask) >> NWSrcShift
	if bits > 32 {
		bits = 32
	}
	return bits
}

// NWDstWildBits returns the number of ignored low-order bits of NWDst,
// clamped to 32.
func (m *Match) NWDstWildBits() uint32 {
	bits := (m.Wildcards & WildcardNWDstMask) >> NWDstShift
	if bits > 32 {
		bits = 32
	}
	return bits
}

// prefixMask converts an ignored-low-bits count into an address mask.
func prefixMask(wildBits uint32) uint32 {
	if wildBits >= 32 {
		return 0
	}
	return ^uint32(0) << wildBits
}

// Equal reports byte-for-byte equality of the two matches, the strict
// comparison used by MODIFY_STRICT and DELETE_STRICT.
func (m *Match) Equal(other *Match) bool {
	return *m == *other
}

// Covers reports whether every frame matched by entry is also matched by
// m — i.e. entry is at least as specific as m. This is the non-strict
// comparison used by MODIFY and DELETE: a candidate match from the
// controller selects all table entries it covers.
//
// For each scalar field: if m wildcards it, it constrains nothing; if m
// specifies it, entry must specify it too with the same value. For the
// IPv4 addresses: m's prefix must be no longer than entry's, and the two
// addresses must agree on m's prefix bits.
func (m *Match) Covers(entry *Match) bool {
	type scalar struct {
		wild   uint32
		cand   uint64
		entryV uint64
	}
	scalars := []scalar{
		{WildcardInPort, uint64(m.InPort), uint64(entry.InPort)},
		{WildcardDLVLAN, uint64(m.DLVLAN), uint64(entry.DLVLAN)},
		{WildcardDLVLANPCP, uint64(m.DLVLANPCP), uint64(entry.DLVLANPCP)},
		{WildcardDLType, uint64(m.DLType), uint64(entry.DLType)},
		{WildcardNWProto, uint64(m.NWProto), uint64(entry.NWProto)},
		{WildcardNWTOS, uint64(m.NWTOS), uint64(entry.NWTOS)},
		{WildcardTPSrc, uint64(m.TPSrc), uint64(entry.TPSrc)},
		{WildcardTPDst, uint64(m.TPDst), uint64(entry.TPDst)},
	}
	for _, s := range scalars {
		if m.Wildcards&s.wild != 0 {
			continue
		}
		if entry.Wildcards&s.wild != 0 || s.cand != s.entryV {
			return false
		}
	}

	if m.Wildcards&WildcardDLSrc == 0 {
		if entry.Wildcards&WildcardDLSrc != 0 || m.DLSrc != entry.DLSrc {
			return false
		}
	}
	if m.Wildcards&WildcardDLDst == 0 {
		if entry.Wildcards&WildcardDLDst != 0 || m.DLDst != entry.DLDst {
			return false
		}
	}

	candBits, entryBits := m.NWSrcWildBits(), entry.NWSrcWildBits()
	if candBits < entryBits {
		return false
	}
	if mask := prefixMask(candBits); m.NWSrc&mask != entry.NWSrc&mask {
		return false
	}

	candBits, entryBits = m.NWDstWildBits(), entry.NWDstWildBits()
	if candBits < entryBits {
		return false
	}
	if mask := prefixMask(candBits); m.NWDst&mask != entry.NWDst&mask {
		return false
	}

	return true
}

// Overlaps reports whether some frame could match both m and other. Two
// matches overlap when, for every field, either one wildcards it or their
// constraints agree. Used for the CHECK_OVERLAP flow-mod flag.
func (m *Match) Overlaps(other *Match) bool {
	type scalar struct {
		wild uint32
		a, b uint64
	}
	scalars := []scalar{
		{WildcardInPort, uint64(m.InPort), uint64(other.InPort)},
		{WildcardDLVLAN, uint64(m.DLVLAN), uint64(other.DLVLAN)},
		{WildcardDLVLANPCP, uint64(m.DLVLANPCP), uint64(other.DLVLANPCP)},
		{WildcardDLType, uint64(m.DLType), uint64(other.DLType)},
		{WildcardNWProto, uint64(m.NWProto), uint64(other.NWProto)},
		{WildcardNWTOS, uint64(m.NWTOS), uint64(other.NWTOS)},
		{WildcardTPSrc, uint64(m.TPSrc), uint64(other.TPSrc)},
		{WildcardTPDst, uint64(m.TPDst), uint64(other.TPDst)},
	}
	for _, s := range scalars {
		if m.Wildcards&s.wild != 0 || other.Wildcards&s.wild != 0 {
			continue
		}
		if s.a != s.b {
			return false
		}
	}

	if m.Wildcards&WildcardDLSrc == 0 && other.Wildcards&WildcardDLSrc == 0 && m.DLSrc != other.DLSrc {
		return false
	}
	if m.Wildcards&WildcardDLDst == 0 && other.Wildcards&WildcardDLDst == 0 && m.DLDst != other.DLDst {
		return false
	}

	// Addresses overlap when they agree on the shorter of the two prefixes.
	bits := m.NWSrcWildBits()
	if b := other.NWSrcWildBits(); b > bits {
		bits = b
	}
	if mask := prefixMask(bits); m.NWSrc&mask != other.NWSrc&mask {
		return false
	}
	bits = m.NWDstWildBits()
	if b := other.NWDstWildBits(); b > bits {
		bits = b
	}
	if mask := prefixMask(bits); m.NWDst&mask != other.NWDst&mask {
		return false
	}

	return true
}
