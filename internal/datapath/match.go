package datapath

import (
	"github.com/dantte-lp/goswitch/internal/of10"
	"github.com/dantte-lp/goswitch/internal/packet"
)

// frameFields is the set of header fields a lookup consults, extracted
// once per frame so the per-entry match loop never re-parses the buffer.
type frameFields struct {
	inPort  uint16
	dlSrc   [6]byte
	dlDst   [6]byte
	dlType  uint16
	hasVLAN bool
	vlanVID uint16
	vlanPCP uint8
	isIPv4  bool
	nwProto uint8
	nwTOS   uint8
	nwSrc   uint32
	nwDst   uint32
	hasL4   bool
	tpSrc   uint16
	tpDst   uint16
}

// extractFields reads the match-relevant headers out of the frame.
func extractFields(v packet.View, inPort uint16) frameFields {
	fr := frameFields{
		inPort: inPort,
		dlSrc:  v.SrcMAC(),
		dlDst:  v.DstMAC(),
		dlType: v.EtherType(),
	}
	if v.HasVLAN() {
		tci := v.VLANTCI()
		fr.hasVLAN = true
		fr.vlanVID = tci & 0x0fff
		fr.vlanPCP = uint8(tci >> 13)
	}
	if v.IsIPv4() {
		fr.isIPv4 = true
		fr.nwProto = v.IPProto()
		fr.nwTOS = v.IPTOS()
		fr.nwSrc = v.IPv4Src()
		fr.nwDst = v.IPv4Dst()
		if fr.nwProto == packet.ProtoTCP || fr.nwProto == packet.ProtoUDP {
			fr.hasL4 = true
			fr.tpSrc = v.L4Port(packet.SrcPort)
			fr.tpDst = v.L4Port(packet.DstPort)
		}
	}
	return fr
}

// vlanNone is the dl_vlan value matching untagged frames (OFP_VLAN_NONE).
const vlanNone uint16 = 0xffff

// matchesFrame reports whether the entry match accepts the frame. A
// wildcarded field accepts anything; the IPv4 addresses honor their
// prefix-length wildcard sub-fields. Network and transport fields only
// constrain frames that actually carry those layers: a match that pins
// nw_src can never accept a non-IP frame.
func matchesFrame(m *of10.Match, fr frameFields) bool {
	w := m.Wildcards

	if w&of10.WildcardInPort == 0 && m.InPort != fr.inPort {
		return false
	}
	if w&of10.WildcardDLSrc == 0 && m.DLSrc != fr.dlSrc {
		return false
	}
	if w&of10.WildcardDLDst == 0 && m.DLDst != fr.dlDst {
		return false
	}
	if w&of10.WildcardDLType == 0 && m.DLType != fr.dlType {
		return false
	}

	if w&of10.WildcardDLVLAN == 0 {
		if m.DLVLAN == vlanNone {
			if fr.hasVLAN {
				return false
			}
		} else if !fr.hasVLAN || m.DLVLAN&0x0fff != fr.vlanVID {
			return false
		}
	}
	if w&of10.WildcardDLVLANPCP == 0 {
		if !fr.hasVLAN || m.DLVLANPCP != fr.vlanPCP {
			return false
		}
	}

	if w&of10.WildcardNWProto == 0 && (!fr.isIPv4 || m.NWProto != fr.nwProto) {
		return false
	}
	if w&of10.WildcardNWTOS == 0 && (!fr.isIPv4 || m.NWTOS != fr.nwTOS) {
		return false
	}

	if bits := m.NWSrcWildBits(); bits < 32 {
		mask := ^uint32(0) << bits
		if !fr.isIPv4 || m.NWSrc&mask != fr.nwSrc&mask {
			return false
		}
	}
	if bits := m.NWDstWildBits(); bits < 32 {
		mask := ^uint32(0) << bits
		if !fr.isIPv4 || m.NWDst&mask != fr.nwDst&mask {
			return false
		}
	}

	if w&of10.WildcardTPSrc == 0 && (!fr.hasL4 || m.TPSrc != fr.tpSrc) {
		return false
	}
	if w&of10.WildcardTPDst == 0 && (!fr.hasL4 || m.TPDst != fr.tpDst) {
		return false
	}

	return true
}
