package of10

import (
	"encoding/binary"
	"fmt"
)

// Fixed structure sizes in bytes.
const (
	// PhyPortSize is the encoded size of ofp_phy_port.
	PhyPortSize = 48

	// FeaturesReplySize is the fixed portion of ofp_switch_features.
	FeaturesReplySize = HeaderSize + 24

	// SwitchConfigSize is the encoded size of ofp_switch_config.
	SwitchConfigSize = HeaderSize + 4

	// PacketInSize is the fixed portion of ofp_packet_in preceding the
	// frame data.
	PacketInSize = HeaderSize + 10

	// PacketOutSize is the fixed portion of ofp_packet_out preceding the
	// action list.
	PacketOutSize = HeaderSize + 8

	// FlowModSize is the fixed portion of ofp_flow_mod preceding the
	// action list.
	FlowModSize = HeaderSize + MatchSize + 24

	// FlowRemovedSize is the encoded size of ofp_flow_removed.
	FlowRemovedSize = HeaderSize + MatchSize + 40

	// StatsHeaderSize is the fixed portion of ofp_stats_request and
	// ofp_stats_reply preceding the body.
	StatsHeaderSize = HeaderSize + 4

	// FlowStatsRequestSize is the body of a FLOW or AGGREGATE stats request.
	FlowStatsRequestSize = MatchSize + 4

	// FlowStatsSize is the fixed portion of one ofp_flow_stats entry.
	FlowStatsSize = MatchSize + 48

	// TableStatsSize is the encoded size of one ofp_table_stats entry.
	TableStatsSize = 64

	// PortStatsSize is the encoded size of one ofp_port_stats entry.
	PortStatsSize = 104

	// DescStatsSize is the encoded size of ofp_desc_stats.
	DescStatsSize = 1056

	// PortStatusSize is the encoded size of ofp_port_status.
	PortStatusSize = HeaderSize + 8 + PhyPortSize

	// maxPortNameLen is OFP_MAX_PORT_NAME_LEN.
	maxPortNameLen = 16

	// maxTableNameLen is OFP_MAX_TABLE_NAME_LEN.
	maxTableNameLen = 32
)

// -------------------------------------------------------------------------
// Features Reply — ofp_switch_features
// -------------------------------------------------------------------------

// PhyPort describes one physical port in FEATURES_REPLY and PORT_STATUS.
type PhyPort struct {
	PortNo     uint16
	HWAddr     [6]byte
	Name       string
	Config     uint32
	State      uint32
	Curr       uint32
	Advertised uint32
	Supported  uint32
	Peer       uint32
}

func putPhyPort(buf []byte, p *PhyPort) {
	binary.BigEndian.PutUint16(buf[0:2], p.PortNo)
	copy(buf[2:8], p.HWAddr[:])
	clearBytes(buf[8 : 8+maxPortNameLen])
	copy(buf[8:8+maxPortNameLen], p.Name)
	binary.BigEndian.PutUint32(buf[24:28], p.Config)
	binary.BigEndian.PutUint32(buf[28:32], p.State)
	binary.BigEndian.PutUint32(buf[32:36], p.Curr)
	binary.BigEndian.PutUint32(buf[36:40], p.Advertised)
	binary.BigEndian.PutUint32(buf[40:44], p.Supported)
	binary.BigEndian.PutUint32(buf[44:48], p.Peer)
}

// FeaturesReply is the switch side of the feature handshake.
type FeaturesReply struct {
	DatapathID   uint64
	NBuffers     uint32
	NTables      uint8
	Capabilities uint32
	Actions      uint32
	Ports        []PhyPort
}

// EncodeFeaturesReply serializes an OFPT_FEATURES_REPLY.
func EncodeFeaturesReply(xid uint32, fr *FeaturesReply) []byte {
	buf := make([]byte, FeaturesReplySize+len(fr.Ports)*PhyPortSize)
	PutHeader(buf, TypeFeaturesReply, len(buf), xid)
	binary.BigEndian.PutUint64(buf[8:16], fr.DatapathID)
	binary.BigEndian.PutUint32(buf[16:20], fr.NBuffers)
	buf[20] = fr.NTables
	binary.BigEndian.PutUint32(buf[24:28], fr.Capabilities)
	binary.BigEndian.PutUint32(buf[28:32], fr.Actions)
	for i := range fr.Ports {
		putPhyPort(buf[FeaturesReplySize+i*PhyPortSize:], &fr.Ports[i])
	}
	return buf
}

// DecodeFeaturesReply decodes an OFPT_FEATURES_REPLY. Used by tests.
func DecodeFeaturesReply(buf []byte) (FeaturesReply, error) {
	var fr FeaturesReply
	h, err := DecodeHeader(buf)
	if err != nil {
		return fr, err
	}
	if h.Length < FeaturesReplySize || (int(h.Length)-FeaturesReplySize)%PhyPortSize != 0 {
		return fr, fmt.Errorf("decode features reply: length %d: %w", h.Length, ErrBadLength)
	}

	fr.DatapathID = binary.BigEndian.Uint64(buf[8:16])
	fr.NBuffers = binary.BigEndian.Uint32(buf[16:20])
	fr.NTables = buf[20]
	fr.Capabilities = binary.BigEndian.Uint32(buf[24:28])
	fr.Actions = binary.BigEndian.Uint32(buf[28:32])

	nports := (int(h.Length) - FeaturesReplySize) / PhyPortSize
	fr.Ports = make([]PhyPort, nports)
	for i := range fr.Ports {
		p := buf[FeaturesReplySize+i*PhyPortSize:]
		fr.Ports[i].PortNo = binary.BigEndian.Uint16(p[0:2])
		copy(fr.Ports[i].HWAddr[:], p[2:8])
		fr.Ports[i].Name = cString(p[8 : 8+maxPortNameLen])
		fr.Ports[i].Config = binary.BigEndian.Uint32(p[24:28])
		fr.Ports[i].State = binary.BigEndian.Uint32(p[28:32])
		fr.Ports[i].Curr = binary.BigEndian.Uint32(p[32:36])
		fr.Ports[i].Advertised = binary.BigEndian.Uint32(p[36:40])
		fr.Ports[i].Supported = binary.BigEndian.Uint32(p[40:44])
		fr.Ports[i].Peer = binary.BigEndian.Uint32(p[44:48])
	}
	return fr, nil
}

// cString trims a fixed-size NUL-padded string field.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// -------------------------------------------------------------------------
// Switch Config — ofp_switch_config
// -------------------------------------------------------------------------

// SwitchConfig is the body of GET_CONFIG_REPLY and SET_CONFIG.
type SwitchConfig struct {
	Flags       uint16
	MissSendLen uint16
}

// EncodeGetConfigReply serializes an OFPT_GET_CONFIG_REPLY.
func EncodeGetConfigReply(xid uint32, sc SwitchConfig) []byte {
	buf := make([]byte, SwitchConfigSize)
	PutHeader(buf, TypeGetConfigReply, len(buf), xid)
	binary.BigEndian.PutUint16(buf[8:10], sc.Flags)
	binary.BigEndian.PutUint16(buf[10:12], sc.MissSendLen)
	return buf
}

// DecodeSwitchConfig decodes the body shared by SET_CONFIG and
// GET_CONFIG_REPLY.
func DecodeSwitchConfig(buf []byte) (SwitchConfig, error) {
	var sc SwitchConfig
	h, err := DecodeHeader(buf)
	if err != nil {
		return sc, err
	}
	if h.Length < SwitchConfigSize {
		return sc, fmt.Errorf("decode switch config: length %d: %w", h.Length, ErrBadLength)
	}
	sc.Flags = binary.BigEndian.Uint16(buf[8:10])
	sc.MissSendLen = binary.BigEndian.Uint16(buf[10:12])
	return sc, nil
}

// -------------------------------------------------------------------------
// Packet In — ofp_packet_in
// -------------------------------------------------------------------------

// PacketIn carries a (possibly truncated) received frame to the controller.
type PacketIn struct {
	BufferID uint32
	TotalLen uint16
	InPort   uint16
	Reason   PacketInReason
	Data     []byte
}

// PutPacketIn serializes an OFPT_PACKET_IN into buf and returns the
// message length. The buffer must hold PacketInSize + len(pi.Data) bytes;
// the data-plane passes a slice of the shared scratch buffer so the hot
// path does not allocate.
func PutPacketIn(buf []byte, xid uint32, pi *PacketIn) int {
	total := PacketInSize + len(pi.Data)
	PutHeader(buf, TypePacketIn, total, xid)
	binary.BigEndian.PutUint32(buf[8:12], pi.BufferID)
	binary.BigEndian.PutUint16(buf[12:14], pi.TotalLen)
	binary.BigEndian.PutUint16(buf[14:16], pi.InPort)
	buf[16] = uint8(pi.Reason)
	buf[17] = 0
	copy(buf[PacketInSize:total], pi.Data)
	return total
}

// DecodePacketIn decodes an OFPT_PACKET_IN message.
func DecodePacketIn(buf []byte) (PacketIn, error) {
	var pi PacketIn
	h, err := DecodeHeader(buf)
	if err != nil {
		return pi, err
	}
	if h.Length < PacketInSize {
		return pi, fmt.Errorf("decode packet in: length %d: %w", h.Length, ErrBadLength)
	}
	pi.BufferID = binary.BigEndian.Uint32(buf[8:12])
	pi.TotalLen = binary.BigEndian.Uint16(buf[12:14])
	pi.InPort = binary.BigEndian.Uint16(buf[14:16])
	pi.Reason = PacketInReason(buf[16])
	pi.Data = buf[PacketInSize:h.Length]
	return pi, nil
}

// -------------------------------------------------------------------------
// Packet Out — ofp_packet_out
// -------------------------------------------------------------------------

// PacketOut is a controller-originated frame plus the actions to apply.
type PacketOut struct {
	BufferID   uint32
	InPort     uint16
	RawActions []byte
	Data       []byte
}

// DecodePacketOut decodes an OFPT_PACKET_OUT message. The action list is
// returned raw; callers run it through ParseActions.
func DecodePacketOut(buf []byte) (PacketOut, error) {
	var po PacketOut
	h, err := DecodeHeader(buf)
	if err != nil {
		return po, err
	}
	if h.Length < PacketOutSize {
		return po, fmt.Errorf("decode packet out: length %d: %w", h.Length, ErrBadLength)
	}

	po.BufferID = binary.BigEndian.Uint32(buf[8:12])
	po.InPort = binary.BigEndian.Uint16(buf[12:14])
	actionsLen := int(binary.BigEndian.Uint16(buf[14:16]))
	if PacketOutSize+actionsLen > int(h.Length) {
		return po, fmt.Errorf("decode packet out: actions length %d overruns message %d: %w",
			actionsLen, h.Length, ErrBadLength)
	}
	po.RawActions = buf[PacketOutSize : PacketOutSize+actionsLen]
	po.Data = buf[PacketOutSize+actionsLen : h.Length]
	return po, nil
}

// EncodePacketOut serializes an OFPT_PACKET_OUT. Used by tests driving the
// handler the way a controller would.
func EncodePacketOut(xid uint32, po *PacketOut) []byte {
	buf := make([]byte, PacketOutSize+len(po.RawActions)+len(po.Data))
	PutHeader(buf, TypePacketOut, len(buf), xid)
	binary.BigEndian.PutUint32(buf[8:12], po.BufferID)
	binary.BigEndian.PutUint16(buf[12:14], po.InPort)
	binary.BigEndian.PutUint16(buf[14:16], uint16(len(po.RawActions)))
	copy(buf[PacketOutSize:], po.RawActions)
	copy(buf[PacketOutSize+len(po.RawActions):], po.Data)
	return buf
}

// -------------------------------------------------------------------------
// Flow Mod — ofp_flow_mod
// -------------------------------------------------------------------------

// FlowMod is a controller flow table modification request.
type FlowMod struct {
	Match       Match
	Cookie      uint64
	Command     FlowModCommand
	IdleTimeout uint16
	HardTimeout uint16
	Priority    uint16
	BufferID    uint32
	OutPort     uint16
	Flags       uint16
	RawActions  []byte
}

// DecodeFlowMod decodes an OFPT_FLOW_MOD message. The action list is
// returned raw; install paths run it through ParseActions.
func DecodeFlowMod(buf []byte) (FlowMod, error) {
	var fm FlowMod
	h, err := DecodeHeader(buf)
	if err != nil {
		return fm, err
	}
	if h.Length < FlowModSize {
		return fm, fmt.Errorf("decode flow mod: length %d: %w", h.Length, ErrBadLength)
	}

	fm.Match, err = DecodeMatch(buf[HeaderSize:])
	if err != nil {
		return fm, err
	}

	body := buf[HeaderSize+MatchSize:]
	fm.Cookie = binary.BigEndian.Uint64(body[0:8])
	fm.Command = FlowModCommand(binary.BigEndian.Uint16(body[8:10]))
	fm.IdleTimeout = binary.BigEndian.Uint16(body[10:12])
	fm.HardTimeout = binary.BigEndian.Uint16(body[12:14])
	fm.Priority = binary.BigEndian.Uint16(body[14:16])
	fm.BufferID = binary.BigEndian.Uint32(body[16:20])
	fm.OutPort = binary.BigEndian.Uint16(body[20:22])
	fm.Flags = binary.BigEndian.Uint16(body[22:24])
	fm.RawActions = buf[FlowModSize:h.Length]
	return fm, nil
}

// EncodeFlowMod serializes an OFPT_FLOW_MOD. Used by tests driving the
// handler the way a controller would.
func EncodeFlowMod(xid uint32, fm *FlowMod) []byte {
	buf := make([]byte, FlowModSize+len(fm.RawActions))
	PutHeader(buf, TypeFlowMod, len(buf), xid)
	PutMatch(buf[HeaderSize:], &fm.Match)

	body := buf[HeaderSize+MatchSize:]
	binary.BigEndian.PutUint64(body[0:8], fm.Cookie)
	binary.BigEndian.PutUint16(body[8:10], uint16(fm.Command))
	binary.BigEndian.PutUint16(body[10:12], fm.IdleTimeout)
	binary.BigEndian.PutUint16(body[12:14], fm.HardTimeout)
	binary.BigEndian.PutUint16(body[14:16], fm.Priority)
	binary.BigEndian.PutUint32(body[16:20], fm.BufferID)
	binary.BigEndian.PutUint16(body[20:22], fm.OutPort)
	binary.BigEndian.PutUint16(body[22:24], fm.Flags)
	copy(buf[FlowModSize:], fm.RawActions)
	return buf
}

// -------------------------------------------------------------------------
// Flow Removed — ofp_flow_removed
// -------------------------------------------------------------------------

// FlowRemoved notifies the controller that a flow entry left the table.
type FlowRemoved struct {
	Match        Match
	Cookie       uint64
	Priority     uint16
	Reason       FlowRemovedReason
	DurationSec  uint32
	DurationNsec uint32
	IdleTimeout  uint16
	PacketCount  uint64
	ByteCount    uint64
}

// EncodeFlowRemoved serializes an OFPT_FLOW_REMOVED. The xid is zero:
// the message is asynchronous, not a reply.
func EncodeFlowRemoved(fr *FlowRemoved) []byte {
	buf := make([]byte, FlowRemovedSize)
	PutHeader(buf, TypeFlowRemoved, len(buf), 0)
	PutMatch(buf[HeaderSize:], &fr.Match)

	body := buf[HeaderSize+MatchSize:]
	binary.BigEndian.PutUint64(body[0:8], fr.Cookie)
	binary.BigEndian.PutUint16(body[8:10], fr.Priority)
	body[10] = uint8(fr.Reason)
	body[11] = 0
	binary.BigEndian.PutUint32(body[12:16], fr.DurationSec)
	binary.BigEndian.PutUint32(body[16:20], fr.DurationNsec)
	binary.BigEndian.PutUint16(body[20:22], fr.IdleTimeout)
	body[22], body[23] = 0, 0
	binary.BigEndian.PutUint64(body[24:32], fr.PacketCount)
	binary.BigEndian.PutUint64(body[32:40], fr.ByteCount)
	return buf
}

// DecodeFlowRemoved decodes an OFPT_FLOW_REMOVED message.
func DecodeFlowRemoved(buf []byte) (FlowRemoved, error) {
	var fr FlowRemoved
	h, err := DecodeHeader(buf)
	if err != nil {
		return fr, err
	}
	if h.Length < FlowRemovedSize {
		return fr, fmt.Errorf("decode flow removed: length %d: %w", h.Length, ErrBadLength)
	}

	fr.Match, err = DecodeMatch(buf[HeaderSize:])
	if err != nil {
		return fr, err
	}
	body := buf[HeaderSize+MatchSize:]
	fr.Cookie = binary.BigEndian.Uint64(body[0:8])
	fr.Priority = binary.BigEndian.Uint16(body[8:10])
	fr.Reason = FlowRemovedReason(body[10])
	fr.DurationSec = binary.BigEndian.Uint32(body[12:16])
	fr.DurationNsec = binary.BigEndian.Uint32(body[16:20])
	fr.IdleTimeout = binary.BigEndian.Uint16(body[20:22])
	fr.PacketCount = binary.BigEndian.Uint64(body[24:32])
	fr.ByteCount = binary.BigEndian.Uint64(body[32:40])
	return fr, nil
}

// -------------------------------------------------------------------------
// Port Status — ofp_port_status
// -------------------------------------------------------------------------

// EncodePortStatus serializes an OFPT_PORT_STATUS for a link change.
func EncodePortStatus(reason uint8, port *PhyPort) []byte {
	buf := make([]byte, PortStatusSize)
	PutHeader(buf, TypePortStatus, len(buf), 0)
	buf[8] = reason
	putPhyPort(buf[16:], port)
	return buf
}
