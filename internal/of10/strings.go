package of10

import (
	"fmt"
	"strings"
)

// ActionString renders a typed action for logs and the admin API, in the
// flow-syntax style controllers print.
func ActionString(a Action) string {
	switch v := a.(type) {
	case ActionOutput:
		switch v.Port {
		case PortController:
			return fmt.Sprintf("output:controller(max_len=%d)", v.MaxLen)
		case PortInPort:
			return "output:in_port"
		case PortAll:
			return "output:all"
		case PortFlood:
			return "output:flood"
		default:
			return fmt.Sprintf("output:%d", v.Port)
		}
	case ActionSetDLSrc:
		return "set_dl_src:" + macString(v.Addr)
	case ActionSetDLDst:
		return "set_dl_dst:" + macString(v.Addr)
	case ActionSetNWSrc:
		return "set_nw_src:" + ipv4String(v.Addr)
	case ActionSetNWDst:
		return "set_nw_dst:" + ipv4String(v.Addr)
	case ActionSetNWTOS:
		return fmt.Sprintf("set_nw_tos:%d", v.TOS)
	case ActionSetVLANVID:
		return fmt.Sprintf("set_vlan_vid:%d", v.VID)
	case ActionSetVLANPCP:
		return fmt.Sprintf("set_vlan_pcp:%d", v.PCP)
	case ActionStripVLAN:
		return "strip_vlan"
	case ActionSetTPSrc:
		return fmt.Sprintf("set_tp_src:%d", v.Port)
	case ActionSetTPDst:
		return fmt.Sprintf("set_tp_dst:%d", v.Port)
	default:
		return fmt.Sprintf("action(%d)", a.ActionType())
	}
}

// MatchString renders a match as a comma-separated field list, omitting
// wildcarded fields. A fully wildcarded match renders as "any".
func MatchString(m *Match) string {
	var parts []string
	w := m.Wildcards

	if w&WildcardInPort == 0 {
		parts = append(parts, fmt.Sprintf("in_port=%d", m.InPort))
	}
	if w&WildcardDLSrc == 0 {
		parts = append(parts, "dl_src="+macString(m.DLSrc))
	}
	if w&WildcardDLDst == 0 {
		parts = append(parts, "dl_dst="+macString(m.DLDst))
	}
	if w&WildcardDLVLAN == 0 {
		parts = append(parts, fmt.Sprintf("dl_vlan=%d", m.DLVLAN))
	}
	if w&WildcardDLVLANPCP == 0 {
		parts = append(parts, fmt.Sprintf("dl_vlan_pcp=%d", m.DLVLANPCP))
	}
	if w&WildcardDLType == 0 {
		parts = append(parts, fmt.Sprintf("dl_type=0x%04x", m.DLType))
	}
	if w&WildcardNWProto == 0 {
		parts = append(parts, fmt.Sprintf("nw_proto=%d", m.NWProto))
	}
	if w&WildcardNWTOS == 0 {
		parts = append(parts, fmt.Sprintf("nw_tos=%d", m.NWTOS))
	}
	if bits := m.NWSrcWildBits(); bits < 32 {
		parts = append(parts, fmt.Sprintf("nw_src=%s/%d", ipv4String(m.NWSrc), 32-bits))
	}
	if bits := m.NWDstWildBits(); bits < 32 {
		parts = append(parts, fmt.Sprintf("nw_dst=%s/%d", ipv4String(m.NWDst), 32-bits))
	}
	if w&WildcardTPSrc == 0 {
		parts = append(parts, fmt.Sprintf("tp_src=%d", m.TPSrc))
	}
	if w&WildcardTPDst == 0 {
		parts = append(parts, fmt.Sprintf("tp_dst=%d", m.TPDst))
	}

	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, ",")
}

func macString(m [6]byte) string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

func ipv4String(a uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}
