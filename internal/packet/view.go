// Package packet provides a mutable view over a raw Ethernet frame.
//
// A View wraps a caller-owned byte buffer plus a length cell and exposes
// named accessors for the 802.1Q tag, the IPv4 header, and the TCP/UDP
// ports, together with the Internet checksum recomputation the action
// engine needs after a rewrite. All offset arithmetic for the
// tagged-vs-untagged cases lives here; nothing outside this package
// computes a header offset.
//
// A View never reallocates. Callers that may insert a VLAN tag must
// provide a buffer with at least four bytes of headroom beyond the frame.
package packet

import (
	"encoding/binary"
	"errors"
)

// Ethernet and 802.1Q constants.
const (
	// EtherTypeVLAN is the 802.1Q TPID.
	EtherTypeVLAN uint16 = 0x8100

	// EtherTypeIPv4 is the IPv4 EtherType.
	EtherTypeIPv4 uint16 = 0x0800

	// EtherTypeARP is the ARP EtherType.
	EtherTypeARP uint16 = 0x0806

	// EthHeaderSize is the untagged Ethernet header size.
	EthHeaderSize = 14

	// VLANTagSize is the size of an 802.1Q tag.
	VLANTagSize = 4

	// MinFrameSize is the smallest frame the data plane will look at:
	// a bare Ethernet header.
	MinFrameSize = EthHeaderSize
)

// IP protocol numbers consulted for checksum coverage.
const (
	ProtoTCP uint8 = 6
	ProtoUDP uint8 = 17
)

// MACSide selects the source or destination Ethernet address.
type MACSide uint8

// L4Side selects the source or destination L4 port, and likewise for
// the IPv4 address mutators.
type L4Side uint8

const (
	Src MACSide = iota
	Dst
)

const (
	SrcPort L4Side = iota
	DstPort
)

// ErrNoHeadroom is returned by InsertVLAN when the buffer cannot grow by
// a tag's worth of bytes.
var ErrNoHeadroom = errors.New("no headroom for VLAN tag")

// View is a mutable window over an Ethernet frame. The frame occupies
// buf[:*length]; mutations that change the frame size update the length
// cell in place so the caller's size variable stays accurate.
type View struct {
	buf    []byte
	length *int
}

// NewView wraps buf[:*length] in a View. The caller retains ownership of
// the buffer; the View holds no other state.
func NewView(buf []byte, length *int) View {
	return View{buf: buf, length: length}
}

// Len returns the current frame length.
func (v View) Len() int { return *v.length }

// Bytes returns the live frame contents.
func (v View) Bytes() []byte { return v.buf[:*v.length] }

// HasVLAN reports whether the frame carries an 802.1Q tag.
func (v View) HasVLAN() bool {
	return *v.length >= EthHeaderSize &&
		binary.BigEndian.Uint16(v.buf[12:14]) == EtherTypeVLAN
}

// EtherType returns the frame's EtherType, looking through a VLAN tag.
func (v View) EtherType() uint16 {
	if v.HasVLAN() {
		if *v.length < EthHeaderSize+VLANTagSize {
			return 0
		}
		return binary.BigEndian.Uint16(v.buf[16:18])
	}
	if *v.length < EthHeaderSize {
		return 0
	}
	return binary.BigEndian.Uint16(v.buf[12:14])
}

// L3Offset returns the offset of the L3 header: 14 for untagged frames,
// 18 for tagged ones.
func (v View) L3Offset() int {
	if v.HasVLAN() {
		return EthHeaderSize + VLANTagSize
	}
	return EthHeaderSize
}

// VLANTCI returns the 802.1Q tag control information, or 0 when untagged.
func (v View) VLANTCI() uint16 {
	if !v.HasVLAN() || *v.length < 16 {
		return 0
	}
	return binary.BigEndian.Uint16(v.buf[14:16])
}

// SrcMAC returns the source Ethernet address.
func (v View) SrcMAC() [6]byte {
	var m [6]byte
	copy(m[:], v.buf[6:12])
	return m
}

// DstMAC returns the destination Ethernet address.
func (v View) DstMAC() [6]byte {
	var m [6]byte
	copy(m[:], v.buf[0:6])
	return m
}

// SetMAC overwrites the source or destination Ethernet address.
func (v View) SetMAC(side MACSide, addr [6]byte) {
	if side == Src {
		copy(v.buf[6:12], addr[:])
	} else {
		copy(v.buf[0:6], addr[:])
	}
}

// -------------------------------------------------------------------------
// IPv4 accessors
// -------------------------------------------------------------------------

// ipv4HeaderLen returns the IPv4 header length from the IHL field, or 0
// when the frame has no complete IPv4 header.
func (v View) ipv4HeaderLen() int {
	l3 := v.L3Offset()
	if v.EtherType() != EtherTypeIPv4 || *v.length < l3+20 {
		return 0
	}
	ihl := int(v.buf[l3]&0x0f) * 4
	if ihl < 20 || *v.length < l3+ihl {
		return 0
	}
	return ihl
}

// IsIPv4 reports whether the frame carries a complete IPv4 header.
func (v View) IsIPv4() bool { return v.ipv4HeaderLen() != 0 }

// IPProto returns the IPv4 protocol number, or 0 for non-IPv4 frames.
func (v View) IPProto() uint8 {
	if v.ipv4HeaderLen() == 0 {
		return 0
	}
	return v.buf[v.L3Offset()+9]
}

// IPTOS returns the IPv4 ToS byte, or 0 for non-IPv4 frames.
func (v View) IPTOS() uint8 {
	if v.ipv4HeaderLen() == 0 {
		return 0
	}
	return v.buf[v.L3Offset()+1]
}

// IPv4Src returns the IPv4 source address in host order.
func (v View) IPv4Src() uint32 {
	if v.ipv4HeaderLen() == 0 {
		return 0
	}
	l3 := v.L3Offset()
	return binary.BigEndian.Uint32(v.buf[l3+12 : l3+16])
}

// IPv4Dst returns the IPv4 destination address in host order.
func (v View) IPv4Dst() uint32 {
	if v.ipv4HeaderLen() == 0 {
		return 0
	}
	l3 := v.L3Offset()
	return binary.BigEndian.Uint32(v.buf[l3+16 : l3+20])
}

// SetIPv4 overwrites the IPv4 source or destination address. No-op on
// non-IPv4 frames. Callers follow up with RecomputeChecksums.
func (v View) SetIPv4(side L4Side, addr uint32) {
	if v.ipv4HeaderLen() == 0 {
		return
	}
	l3 := v.L3Offset()
	if side == SrcPort {
		binary.BigEndian.PutUint32(v.buf[l3+12:l3+16], addr)
	} else {
		binary.BigEndian.PutUint32(v.buf[l3+16:l3+20], addr)
	}
}

// SetTOS overwrites the IPv4 ToS byte. No-op on non-IPv4 frames.
func (v View) SetTOS(tos uint8) {
	if v.ipv4HeaderLen() == 0 {
		return
	}
	v.buf[v.L3Offset()+1] = tos
}

// -------------------------------------------------------------------------
// L4 accessors
// -------------------------------------------------------------------------

// l4Offset returns the offset of the TCP/UDP header, or 0 when the frame
// is not TCP or UDP over IPv4 or the header is incomplete.
func (v View) l4Offset() int {
	ihl := v.ipv4HeaderLen()
	if ihl == 0 {
		return 0
	}
	proto := v.IPProto()
	if proto != ProtoTCP && proto != ProtoUDP {
		return 0
	}
	l4 := v.L3Offset() + ihl
	if *v.length < l4+4 {
		return 0
	}
	return l4
}

// L4Port returns the TCP/UDP source or destination port, or 0 when the
// frame carries neither protocol.
func (v View) L4Port(side L4Side) uint16 {
	l4 := v.l4Offset()
	if l4 == 0 {
		return 0
	}
	if side == SrcPort {
		return binary.BigEndian.Uint16(v.buf[l4 : l4+2])
	}
	return binary.BigEndian.Uint16(v.buf[l4+2 : l4+4])
}

// SetL4Port overwrites the TCP/UDP source or destination port. No-op when
// the frame carries neither protocol. Callers follow up with
// RecomputeChecksums.
func (v View) SetL4Port(side L4Side, port uint16) {
	l4 := v.l4Offset()
	if l4 == 0 {
		return
	}
	if side == SrcPort {
		binary.BigEndian.PutUint16(v.buf[l4:l4+2], port)
	} else {
		binary.BigEndian.PutUint16(v.buf[l4+2:l4+4], port)
	}
}

// -------------------------------------------------------------------------
// VLAN mutation
// -------------------------------------------------------------------------

// InsertVLAN inserts an 802.1Q tag with the given TCI after the Ethernet
// addresses, shifting the rest of the frame by four bytes and growing the
// length cell. If the frame is already tagged only the TCI is rewritten.
func (v View) InsertVLAN(tci uint16) error {
	if v.HasVLAN() {
		binary.BigEndian.PutUint16(v.buf[14:16], tci)
		return nil
	}
	if cap(v.buf) < *v.length+VLANTagSize {
		return ErrNoHeadroom
	}

	n := *v.length
	buf := v.buf[:n+VLANTagSize]
	copy(buf[16:n+4], buf[12:n])
	binary.BigEndian.PutUint16(buf[12:14], EtherTypeVLAN)
	binary.BigEndian.PutUint16(buf[14:16], tci)
	*v.length = n + VLANTagSize
	return nil
}

// StripVLAN removes the 802.1Q tag, contracting the frame by four bytes.
// No-op on untagged frames.
func (v View) StripVLAN() {
	if !v.HasVLAN() {
		return
	}
	n := *v.length
	copy(v.buf[12:n-4], v.buf[16:n])
	*v.length = n - VLANTagSize
}

// SetVLANVID sets the VLAN id, inserting a tag with priority 0 when the
// frame is untagged. Only the low 12 bits of vid are used.
func (v View) SetVLANVID(vid uint16) error {
	vid &= 0x0fff
	if v.HasVLAN() {
		tci := v.VLANTCI()
		binary.BigEndian.PutUint16(v.buf[14:16], tci&^0x0fff|vid)
		return nil
	}
	return v.InsertVLAN(vid)
}

// SetVLANPCP sets the VLAN priority, inserting a tag with VID 0 when the
// frame is untagged. Only the low 3 bits of pcp are used.
func (v View) SetVLANPCP(pcp uint8) error {
	tci := uint16(pcp&0x07) << 13
	if v.HasVLAN() {
		cur := v.VLANTCI()
		binary.BigEndian.PutUint16(v.buf[14:16], cur&0x1fff|tci)
		return nil
	}
	return v.InsertVLAN(tci)
}

// -------------------------------------------------------------------------
// Checksums
// -------------------------------------------------------------------------

// RecomputeChecksums rewrites the IPv4 header checksum and, for TCP and
// UDP, the L4 checksum over the pseudo-header and segment. Frames that
// are not IPv4 are left untouched.
//
// A UDP checksum that was zero on ingress (checksum disabled by the
// sender) is left zero; every other L4 checksum is recomputed from
// scratch. A recomputed UDP checksum of zero is transmitted as 0xffff as
// the protocol requires.
func (v View) RecomputeChecksums() {
	ihl := v.ipv4HeaderLen()
	if ihl == 0 {
		return
	}
	l3 := v.L3Offset()

	// IPv4 header checksum: zero the field, sum the header.
	v.buf[l3+10], v.buf[l3+11] = 0, 0
	ipsum := finishChecksum(sumBytes(v.buf[l3:l3+ihl], 0))
	binary.BigEndian.PutUint16(v.buf[l3+10:l3+12], ipsum)

	l4 := l3 + ihl
	segLen := *v.length - l4
	if segLen < 8 {
		return
	}

	switch v.IPProto() {
	case ProtoTCP:
		if segLen < 20 {
			return
		}
		v.putL4Checksum(l4, 16, segLen, ProtoTCP, false)
	case ProtoUDP:
		wasZero := v.buf[l4+6] == 0 && v.buf[l4+7] == 0
		if wasZero {
			return
		}
		v.putL4Checksum(l4, 6, segLen, ProtoUDP, true)
	}
}

// putL4Checksum computes the pseudo-header checksum for the segment at l4
// and stores it at l4+csumOff.
func (v View) putL4Checksum(l4, csumOff, segLen int, proto uint8, udp bool) {
	v.buf[l4+csumOff], v.buf[l4+csumOff+1] = 0, 0

	l3 := v.L3Offset()
	var sum uint32
	sum = sumBytes(v.buf[l3+12:l3+20], sum) // src + dst addresses
	sum += uint32(proto)
	sum += uint32(segLen)
	sum = sumBytes(v.buf[l4:l4+segLen], sum)

	csum := finishChecksum(sum)
	if udp && csum == 0 {
		csum = 0xffff
	}
	binary.BigEndian.PutUint16(v.buf[l4+csumOff:l4+csumOff+2], csum)
}

// sumBytes accumulates the one's-complement sum of b onto acc.
func sumBytes(b []byte, acc uint32) uint32 {
	for len(b) >= 2 {
		acc += uint32(binary.BigEndian.Uint16(b[:2]))
		b = b[2:]
	}
	if len(b) == 1 {
		acc += uint32(b[0]) << 8
	}
	return acc
}

// finishChecksum folds the carries and complements the sum.
func finishChecksum(sum uint32) uint16 {
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
