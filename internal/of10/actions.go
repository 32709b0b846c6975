package of10

import (
	"encoding/binary"
	"fmt"
)

// -------------------------------------------------------------------------
// Action Types — ofp_action_type
// -------------------------------------------------------------------------

// ActionType identifies an OpenFlow 1.0 action (ofp_action_type).
type ActionType uint16

const (
	ActionTypeOutput     ActionType = iota /* Output to switch port. */
	ActionTypeSetVLANVID                   /* Set the 802.1q VLAN id. */
	ActionTypeSetVLANPCP                   /* Set the 802.1q priority. */
	ActionTypeStripVLAN                    /* Strip the 802.1q header. */
	ActionTypeSetDLSrc                     /* Ethernet source address. */
	ActionTypeSetDLDst                     /* Ethernet destination address. */
	ActionTypeSetNWSrc                     /* IP source address. */
	ActionTypeSetNWDst                     /* IP destination address. */
	ActionTypeSetNWTOS                     /* IP ToS (DSCP field, 6 bits). */
	ActionTypeSetTPSrc                     /* TCP/UDP source port. */
	ActionTypeSetTPDst                     /* TCP/UDP destination port. */
	ActionTypeEnqueue                      /* Output to queue. */
	ActionTypeVendor     ActionType = 0xffff
)

// actionTypeNames maps action types to their specification names.
var actionTypeNames = [...]string{
	"OUTPUT", "SET_VLAN_VID", "SET_VLAN_PCP", "STRIP_VLAN", "SET_DL_SRC",
	"SET_DL_DST", "SET_NW_SRC", "SET_NW_DST", "SET_NW_TOS", "SET_TP_SRC",
	"SET_TP_DST", "ENQUEUE",
}

// String returns the specification name for the action type.
func (t ActionType) String() string {
	if int(t) < len(actionTypeNames) {
		return actionTypeNames[t]
	}
	return fmt.Sprintf(unknownFmt, uint16(t))
}

// SupportedActionBitmap is the action capability bitmap advertised in the
// FEATURES_REPLY: every action type this switch executes.
const SupportedActionBitmap uint32 = 1<<ActionTypeOutput |
	1<<ActionTypeSetVLANVID |
	1<<ActionTypeSetVLANPCP |
	1<<ActionTypeStripVLAN |
	1<<ActionTypeSetDLSrc |
	1<<ActionTypeSetDLDst |
	1<<ActionTypeSetNWSrc |
	1<<ActionTypeSetNWDst |
	1<<ActionTypeSetNWTOS |
	1<<ActionTypeSetTPSrc |
	1<<ActionTypeSetTPDst

// MaxActions is the per-entry action budget. Four 8-byte slots matches the
// table's fixed storage; the two 16-byte DL-address actions each consume
// what they consume on the wire but still count one slot here.
const MaxActions = 4

// -------------------------------------------------------------------------
// Typed Actions
// -------------------------------------------------------------------------

// Action is a decoded OpenFlow 1.0 action. Raw action lists are parsed
// once at flow install time into typed values; the data-plane never
// re-parses wire bytes.
type Action interface {
	// ActionType returns the wire type of the action.
	ActionType() ActionType

	// wireLen returns the encoded length in bytes (a multiple of 8).
	wireLen() int

	// put encodes the action into buf, which has at least wireLen bytes.
	put(buf []byte)
}

// ActionOutput forwards the frame to a port. MaxLen bounds the bytes sent
// to the controller when Port is PortController.
type ActionOutput struct {
	Port   PortNo
	MaxLen uint16
}

func (a ActionOutput) ActionType() ActionType { return ActionTypeOutput }
func (a ActionOutput) wireLen() int           { return 8 }
func (a ActionOutput) put(buf []byte) {
	putActionHeader(buf, ActionTypeOutput, 8)
	binary.BigEndian.PutUint16(buf[4:6], uint16(a.Port))
	binary.BigEndian.PutUint16(buf[6:8], a.MaxLen)
}

// ActionSetDLSrc rewrites the Ethernet source address.
type ActionSetDLSrc struct {
	Addr [6]byte
}

func (a ActionSetDLSrc) ActionType() ActionType { return ActionTypeSetDLSrc }
func (a ActionSetDLSrc) wireLen() int           { return 16 }
func (a ActionSetDLSrc) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetDLSrc, 16)
	copy(buf[4:10], a.Addr[:])
	clearBytes(buf[10:16])
}

// ActionSetDLDst rewrites the Ethernet destination address.
type ActionSetDLDst struct {
	Addr [6]byte
}

func (a ActionSetDLDst) ActionType() ActionType { return ActionTypeSetDLDst }
func (a ActionSetDLDst) wireLen() int           { return 16 }
func (a ActionSetDLDst) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetDLDst, 16)
	copy(buf[4:10], a.Addr[:])
	clearBytes(buf[10:16])
}

// ActionSetNWSrc rewrites the IPv4 source address.
type ActionSetNWSrc struct {
	Addr uint32
}

func (a ActionSetNWSrc) ActionType() ActionType { return ActionTypeSetNWSrc }
func (a ActionSetNWSrc) wireLen() int           { return 8 }
func (a ActionSetNWSrc) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetNWSrc, 8)
	binary.BigEndian.PutUint32(buf[4:8], a.Addr)
}

// ActionSetNWDst rewrites the IPv4 destination address.
type ActionSetNWDst struct {
	Addr uint32
}

func (a ActionSetNWDst) ActionType() ActionType { return ActionTypeSetNWDst }
func (a ActionSetNWDst) wireLen() int           { return 8 }
func (a ActionSetNWDst) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetNWDst, 8)
	binary.BigEndian.PutUint32(buf[4:8], a.Addr)
}

// ActionSetNWTOS rewrites the IPv4 ToS byte.
type ActionSetNWTOS struct {
	TOS uint8
}

func (a ActionSetNWTOS) ActionType() ActionType { return ActionTypeSetNWTOS }
func (a ActionSetNWTOS) wireLen() int           { return 8 }
func (a ActionSetNWTOS) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetNWTOS, 8)
	buf[4] = a.TOS
	buf[5], buf[6], buf[7] = 0, 0, 0
}

// ActionSetVLANVID sets the 802.1q VLAN id, inserting a tag when the frame
// has none. A VID of 0 or 0xffff never reaches the data plane; both are
// normalized to ActionStripVLAN at install time.
type ActionSetVLANVID struct {
	VID uint16
}

func (a ActionSetVLANVID) ActionType() ActionType { return ActionTypeSetVLANVID }
func (a ActionSetVLANVID) wireLen() int           { return 8 }
func (a ActionSetVLANVID) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetVLANVID, 8)
	binary.BigEndian.PutUint16(buf[4:6], a.VID)
	buf[6], buf[7] = 0, 0
}

// ActionSetVLANPCP sets the 802.1q priority, inserting a tag when the
// frame has none.
type ActionSetVLANPCP struct {
	PCP uint8
}

func (a ActionSetVLANPCP) ActionType() ActionType { return ActionTypeSetVLANPCP }
func (a ActionSetVLANPCP) wireLen() int           { return 8 }
func (a ActionSetVLANPCP) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetVLANPCP, 8)
	buf[4] = a.PCP
	buf[5], buf[6], buf[7] = 0, 0, 0
}

// ActionStripVLAN removes the 802.1q tag if present.
type ActionStripVLAN struct{}

func (a ActionStripVLAN) ActionType() ActionType { return ActionTypeStripVLAN }
func (a ActionStripVLAN) wireLen() int           { return 8 }
func (a ActionStripVLAN) put(buf []byte) {
	putActionHeader(buf, ActionTypeStripVLAN, 8)
	buf[4], buf[5], buf[6], buf[7] = 0, 0, 0, 0
}

// ActionSetTPSrc rewrites the TCP/UDP source port.
type ActionSetTPSrc struct {
	Port uint16
}

func (a ActionSetTPSrc) ActionType() ActionType { return ActionTypeSetTPSrc }
func (a ActionSetTPSrc) wireLen() int           { return 8 }
func (a ActionSetTPSrc) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetTPSrc, 8)
	binary.BigEndian.PutUint16(buf[4:6], a.Port)
	buf[6], buf[7] = 0, 0
}

// ActionSetTPDst rewrites the TCP/UDP destination port.
type ActionSetTPDst struct {
	Port uint16
}

func (a ActionSetTPDst) ActionType() ActionType { return ActionTypeSetTPDst }
func (a ActionSetTPDst) wireLen() int           { return 8 }
func (a ActionSetTPDst) put(buf []byte) {
	putActionHeader(buf, ActionTypeSetTPDst, 8)
	binary.BigEndian.PutUint16(buf[4:6], a.Port)
	buf[6], buf[7] = 0, 0
}

func putActionHeader(buf []byte, t ActionType, length int) {
	binary.BigEndian.PutUint16(buf[0:2], uint16(t))
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
}

func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// -------------------------------------------------------------------------
// Action List Parsing — install-time validation
// -------------------------------------------------------------------------

// BadActionError reports an action list rejected at install time. It maps
// directly onto ERROR(OFPET_BAD_ACTION, Code).
type BadActionError struct {
	// Code is the ofp_bad_action_code to surface to the controller.
	Code uint16

	// Index is the position of the offending action in the list.
	Index int

	// Reason is a human-readable explanation for logs.
	Reason string
}

// Error implements the error interface.
func (e *BadActionError) Error() string {
	return fmt.Sprintf("bad action at index %d: %s", e.Index, e.Reason)
}

// ParseActions decodes a raw OpenFlow 1.0 action list into typed actions,
// applying the install-time rules:
//
//   - Output to NORMAL is unsupported: BAD_OUT_PORT.
//   - SET_VLAN_VID with VID 0 or 0xffff becomes STRIP_VLAN.
//   - More than MaxActions actions: TOO_MANY.
//   - An action length that is zero, not a multiple of 8, wrong for its
//     type, or overrunning the list: BAD_LEN.
//   - ENQUEUE, VENDOR, and unknown types: BAD_TYPE.
//
// The returned slice is nil when buf is empty (a valid drop rule).
func ParseActions(buf []byte) ([]Action, error) {
	var actions []Action
	off, idx := 0, 0

	for off < len(buf) {
		if len(buf)-off < 4 {
			return nil, &BadActionError{Code: BadActionBadLen, Index: idx,
				Reason: fmt.Sprintf("%d trailing bytes", len(buf)-off)}
		}

		t := ActionType(binary.BigEndian.Uint16(buf[off : off+2]))
		alen := int(binary.BigEndian.Uint16(buf[off+2 : off+4]))
		if alen == 0 || alen%8 != 0 || off+alen > len(buf) {
			return nil, &BadActionError{Code: BadActionBadLen, Index: idx,
				Reason: fmt.Sprintf("action %s length %d", t, alen)}
		}
		if idx == MaxActions {
			return nil, &BadActionError{Code: BadActionTooMany, Index: idx,
				Reason: fmt.Sprintf("more than %d actions", MaxActions)}
		}

		act, err := parseOne(t, alen, buf[off:off+alen], idx)
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)

		off += alen
		idx++
	}

	return actions, nil
}

// parseOne decodes a single action whose bounds are already validated.
func parseOne(t ActionType, alen int, buf []byte, idx int) (Action, error) {
	badLen := func() error {
		return &BadActionError{Code: BadActionBadLen, Index: idx,
			Reason: fmt.Sprintf("action %s length %d", t, alen)}
	}

	switch t {
	case ActionTypeOutput:
		if alen != 8 {
			return nil, badLen()
		}
		port := PortNo(binary.BigEndian.Uint16(buf[4:6]))
		if port == PortNormal {
			return nil, &BadActionError{Code: BadActionBadOutPort, Index: idx,
				Reason: "output to NORMAL is not supported"}
		}
		return ActionOutput{Port: port, MaxLen: binary.BigEndian.Uint16(buf[6:8])}, nil

	case ActionTypeSetVLANVID:
		if alen != 8 {
			return nil, badLen()
		}
		vid := binary.BigEndian.Uint16(buf[4:6])
		if vid == 0 || vid == 0xffff {
			return ActionStripVLAN{}, nil
		}
		return ActionSetVLANVID{VID: vid & 0x0fff}, nil

	case ActionTypeSetVLANPCP:
		if alen != 8 {
			return nil, badLen()
		}
		return ActionSetVLANPCP{PCP: buf[4] & 0x07}, nil

	case ActionTypeStripVLAN:
		if alen != 8 {
			return nil, badLen()
		}
		return ActionStripVLAN{}, nil

	case ActionTypeSetDLSrc, ActionTypeSetDLDst:
		if alen != 16 {
			return nil, badLen()
		}
		var addr [6]byte
		copy(addr[:], buf[4:10])
		if t == ActionTypeSetDLSrc {
			return ActionSetDLSrc{Addr: addr}, nil
		}
		return ActionSetDLDst{Addr: addr}, nil

	case ActionTypeSetNWSrc, ActionTypeSetNWDst:
		if alen != 8 {
			return nil, badLen()
		}
		addr := binary.BigEndian.Uint32(buf[4:8])
		if t == ActionTypeSetNWSrc {
			return ActionSetNWSrc{Addr: addr}, nil
		}
		return ActionSetNWDst{Addr: addr}, nil

	case ActionTypeSetNWTOS:
		if alen != 8 {
			return nil, badLen()
		}
		return ActionSetNWTOS{TOS: buf[4]}, nil

	case ActionTypeSetTPSrc:
		if alen != 8 {
			return nil, badLen()
		}
		return ActionSetTPSrc{Port: binary.BigEndian.Uint16(buf[4:6])}, nil

	case ActionTypeSetTPDst:
		if alen != 8 {
			return nil, badLen()
		}
		return ActionSetTPDst{Port: binary.BigEndian.Uint16(buf[4:6])}, nil

	default:
		return nil, &BadActionError{Code: BadActionBadType, Index: idx,
			Reason: fmt.Sprintf("unsupported action type %s", t)}
	}
}

// ActionsWireLen returns the encoded size of the action list in bytes.
func ActionsWireLen(actions []Action) int {
	n := 0
	for _, a := range actions {
		n += a.wireLen()
	}
	return n
}

// AppendActions encodes the action list onto buf and returns the extended
// slice. Used when building FLOW stats replies.
func AppendActions(buf []byte, actions []Action) []byte {
	for _, a := range actions {
		off := len(buf)
		buf = append(buf, make([]byte, a.wireLen())...)
		a.put(buf[off:])
	}
	return buf
}
