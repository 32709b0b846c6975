package of10

import "fmt"

// Version is the OpenFlow protocol version byte carried by every message
// this package handles (OpenFlow 1.0.0 specification, section 5.1).
const Version uint8 = 0x01

// HeaderSize is the fixed OpenFlow header size in bytes: version(1) +
// type(1) + length(2) + xid(4).
const HeaderSize = 8

// unknownFmt is the format string for unrecognized enum values with numeric code.
const unknownFmt = "Unknown(%d)"

// -------------------------------------------------------------------------
// Message Types — ofp_type
// -------------------------------------------------------------------------

// MsgType identifies the OpenFlow 1.0 message type (ofp_type).
type MsgType uint8

const (
	TypeHello MsgType = iota
	TypeError
	TypeEchoRequest
	TypeEchoReply
	TypeVendor
	TypeFeaturesRequest
	TypeFeaturesReply
	TypeGetConfigRequest
	TypeGetConfigReply
	TypeSetConfig
	TypePacketIn
	TypeFlowRemoved
	TypePortStatus
	TypePacketOut
	TypeFlowMod
	TypePortMod
	TypeStatsRequest
	TypeStatsReply
	TypeBarrierRequest
	TypeBarrierReply
	TypeQueueGetConfigRequest
	TypeQueueGetConfigReply
)

// msgTypeNames maps message types to their specification names.
var msgTypeNames = [...]string{
	"HELLO", "ERROR", "ECHO_REQUEST", "ECHO_REPLY", "VENDOR",
	"FEATURES_REQUEST", "FEATURES_REPLY", "GET_CONFIG_REQUEST",
	"GET_CONFIG_REPLY", "SET_CONFIG", "PACKET_IN", "FLOW_REMOVED",
	"PORT_STATUS", "PACKET_OUT", "FLOW_MOD", "PORT_MOD", "STATS_REQUEST",
	"STATS_REPLY", "BARRIER_REQUEST", "BARRIER_REPLY",
	"QUEUE_GET_CONFIG_REQUEST", "QUEUE_GET_CONFIG_REPLY",
}

// String returns the specification name for the message type.
func (t MsgType) String() string {
	if int(t) < len(msgTypeNames) {
		return msgTypeNames[t]
	}
	return fmt.Sprintf(unknownFmt, uint8(t))
}

// -------------------------------------------------------------------------
// Port Numbers — ofp_port
// -------------------------------------------------------------------------

// PortNo is an OpenFlow 1.0 port number. Physical ports are numbered
// starting at 1; values at or above PortMax are reserved virtual ports.
type PortNo uint16

const (
	// PortMax is the highest valid physical port number.
	PortMax PortNo = 0xff00

	// PortInPort sends the packet out the input port. Virtual port.
	PortInPort PortNo = 0xfff8

	// PortTable submits the packet to the flow table (packet-out only).
	PortTable PortNo = 0xfff9

	// PortNormal processes with the traditional non-OpenFlow pipeline.
	// Not supported by this switch; rejected at flow install time.
	PortNormal PortNo = 0xfffa

	// PortFlood floods to all physical ports except the input port.
	PortFlood PortNo = 0xfffb

	// PortAll sends out all physical ports except the input port.
	PortAll PortNo = 0xfffc

	// PortController encapsulates the packet and sends it to the controller.
	PortController PortNo = 0xfffd

	// PortLocal is the local openflow "port".
	PortLocal PortNo = 0xfffe

	// PortNone is the wildcard / "no port" value.
	PortNone PortNo = 0xffff
)

// -------------------------------------------------------------------------
// Error Types and Codes — ofp_error_type, ofp_*_code
// -------------------------------------------------------------------------

// ErrType is the high-level OpenFlow error type (ofp_error_type).
type ErrType uint16

const (
	ErrTypeHelloFailed ErrType = iota
	ErrTypeBadRequest
	ErrTypeBadAction
	ErrTypeFlowModFailed
	ErrTypePortModFailed
	ErrTypeQueueOpFailed
)

// ofp_hello_failed_code
const (
	HelloFailedIncompatible uint16 = iota
	HelloFailedEPerm
)

// ofp_bad_request_code
const (
	BadRequestBadVersion uint16 = iota
	BadRequestBadType
	BadRequestBadStat
	BadRequestBadVendor
	BadRequestBadSubtype
	BadRequestEPerm
	BadRequestBadLen
	BadRequestBufferEmpty
	BadRequestBufferUnknown
)

// ofp_bad_action_code
const (
	BadActionBadType uint16 = iota
	BadActionBadLen
	BadActionBadVendor
	BadActionBadVendorType
	BadActionBadOutPort
	BadActionBadArgument
	BadActionEPerm
	BadActionTooMany
	BadActionBadQueue
)

// ofp_flow_mod_failed_code
const (
	FlowModFailedAllTablesFull uint16 = iota
	FlowModFailedOverlap
	FlowModFailedEPerm
	FlowModFailedBadEmergTimeout
	FlowModFailedBadCommand
	FlowModFailedUnsupported
)

// -------------------------------------------------------------------------
// Capabilities and Port Properties
// -------------------------------------------------------------------------

// ofp_capabilities
const (
	CapFlowStats  uint32 = 1 << 0 /* Flow statistics. */
	CapTableStats uint32 = 1 << 1 /* Table statistics. */
	CapPortStats  uint32 = 1 << 2 /* Port statistics. */
	CapSTP        uint32 = 1 << 3 /* 802.1d spanning tree. */
	CapIPReasm    uint32 = 1 << 5 /* Can reassemble IP fragments. */
	CapQueueStats uint32 = 1 << 6 /* Queue statistics. */
	CapARPMatchIP uint32 = 1 << 7 /* Match IP addresses in ARP pkts. */
)

// ofp_port_state. The STP portion occupies bits 8-9; a port with no
// spanning tree reports STP_LISTEN (zero bits) there.
const (
	PortStateLinkDown  uint32 = 1 << 0
	PortStateSTPListen uint32 = 0 << 8
)

// ofp_port_features
const (
	PortFeat10MbHD    uint32 = 1 << 0
	PortFeat10MbFD    uint32 = 1 << 1
	PortFeat100MbHD   uint32 = 1 << 2
	PortFeat100MbFD   uint32 = 1 << 3
	PortFeat1GbHD     uint32 = 1 << 4
	PortFeat1GbFD     uint32 = 1 << 5
	PortFeat10GbFD    uint32 = 1 << 6
	PortFeatCopper    uint32 = 1 << 7
	PortFeatFiber     uint32 = 1 << 8
	PortFeatAutoneg   uint32 = 1 << 9
	PortFeatPause     uint32 = 1 << 10
	PortFeatPauseAsym uint32 = 1 << 11
)

// ofp_port_reason for PORT_STATUS messages.
const (
	PortReasonAdd uint8 = iota
	PortReasonDelete
	PortReasonModify
)

// -------------------------------------------------------------------------
// Flow Mod — ofp_flow_mod_command, ofp_flow_mod_flags
// -------------------------------------------------------------------------

// FlowModCommand selects the flow table modification operation.
type FlowModCommand uint16

const (
	FlowAdd FlowModCommand = iota
	FlowModify
	FlowModifyStrict
	FlowDelete
	FlowDeleteStrict
)

// flowModCommandNames maps flow-mod commands to their specification names.
var flowModCommandNames = [...]string{
	"ADD", "MODIFY", "MODIFY_STRICT", "DELETE", "DELETE_STRICT",
}

// String returns the specification name for the flow-mod command.
func (c FlowModCommand) String() string {
	if int(c) < len(flowModCommandNames) {
		return flowModCommandNames[c]
	}
	return fmt.Sprintf(unknownFmt, uint16(c))
}

// ofp_flow_mod_flags
const (
	// FlagSendFlowRem requests a FLOW_REMOVED notification when the entry
	// is deleted or expires.
	FlagSendFlowRem uint16 = 1 << 0

	// FlagCheckOverlap requests that an ADD fail with OVERLAP rather than
	// install an entry that overlaps an existing one at the same priority.
	FlagCheckOverlap uint16 = 1 << 1

	// FlagEmerg marks an emergency flow entry. Emergency flows are out of
	// scope for this switch and the flag is ignored.
	FlagEmerg uint16 = 1 << 2
)

// -------------------------------------------------------------------------
// Packet In / Flow Removed Reasons
// -------------------------------------------------------------------------

// PacketInReason explains why a frame was forwarded to the controller.
type PacketInReason uint8

const (
	// ReasonNoMatch indicates no flow entry matched the frame.
	ReasonNoMatch PacketInReason = iota

	// ReasonAction indicates a flow entry explicitly output to CONTROLLER.
	ReasonAction
)

// String returns the human-readable name for the packet-in reason.
func (r PacketInReason) String() string {
	switch r {
	case ReasonNoMatch:
		return "NoMatch"
	case ReasonAction:
		return "Action"
	default:
		return fmt.Sprintf(unknownFmt, uint8(r))
	}
}

// FlowRemovedReason explains why a flow entry left the table.
type FlowRemovedReason uint8

const (
	RemovedIdleTimeout FlowRemovedReason = iota
	RemovedHardTimeout
	RemovedDelete
)

// String returns the human-readable name for the flow-removed reason.
func (r FlowRemovedReason) String() string {
	switch r {
	case RemovedIdleTimeout:
		return "IdleTimeout"
	case RemovedHardTimeout:
		return "HardTimeout"
	case RemovedDelete:
		return "Delete"
	default:
		return fmt.Sprintf(unknownFmt, uint8(r))
	}
}

// -------------------------------------------------------------------------
// Stats Types — ofp_stats_types
// -------------------------------------------------------------------------

// StatsType identifies the body of a STATS_REQUEST / STATS_REPLY.
type StatsType uint16

const (
	StatsDesc      StatsType = 0
	StatsFlow      StatsType = 1
	StatsAggregate StatsType = 2
	StatsTable     StatsType = 3
	StatsPort      StatsType = 4
	StatsQueue     StatsType = 5
	StatsVendor    StatsType = 0xffff
)

// String returns the specification name for the stats type.
func (t StatsType) String() string {
	switch t {
	case StatsDesc:
		return "DESC"
	case StatsFlow:
		return "FLOW"
	case StatsAggregate:
		return "AGGREGATE"
	case StatsTable:
		return "TABLE"
	case StatsPort:
		return "PORT"
	case StatsQueue:
		return "QUEUE"
	case StatsVendor:
		return "VENDOR"
	default:
		return fmt.Sprintf(unknownFmt, uint16(t))
	}
}

// ofp_config_flags fragment handling. Only FRAG_NORMAL is meaningful here.
const (
	ConfigFragNormal uint16 = 0
	ConfigFragDrop   uint16 = 1
	ConfigFragReasm  uint16 = 2
	ConfigFragMask   uint16 = 3
)

// NoBuffer is the buffer_id value meaning "no buffered packet". This
// switch never buffers (n_buffers = 0), so it is the only id ever used.
const NoBuffer uint32 = 0xffffffff

// DefaultMissSendLen is the default number of frame bytes included in a
// PACKET_IN when no SET_CONFIG has been received.
const DefaultMissSendLen uint16 = 128
