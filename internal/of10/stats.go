package of10

import (
	"encoding/binary"
	"fmt"
)

// -------------------------------------------------------------------------
// Stats Request — ofp_stats_request
// -------------------------------------------------------------------------

// StatsRequest is a decoded OFPT_STATS_REQUEST. Body interpretation
// depends on Type.
type StatsRequest struct {
	Type  StatsType
	Flags uint16
	Body  []byte
}

// DecodeStatsRequest decodes an OFPT_STATS_REQUEST message.
func DecodeStatsRequest(buf []byte) (StatsRequest, error) {
	var sr StatsRequest
	h, err := DecodeHeader(buf)
	if err != nil {
		return sr, err
	}
	if h.Length < StatsHeaderSize {
		return sr, fmt.Errorf("decode stats request: length %d: %w", h.Length, ErrBadLength)
	}
	sr.Type = StatsType(binary.BigEndian.Uint16(buf[8:10]))
	sr.Flags = binary.BigEndian.Uint16(buf[10:12])
	sr.Body = buf[StatsHeaderSize:h.Length]
	return sr, nil
}

// EncodeStatsRequest serializes an OFPT_STATS_REQUEST. Used by tests.
func EncodeStatsRequest(xid uint32, t StatsType, body []byte) []byte {
	buf := make([]byte, StatsHeaderSize+len(body))
	PutHeader(buf, TypeStatsRequest, len(buf), xid)
	binary.BigEndian.PutUint16(buf[8:10], uint16(t))
	copy(buf[StatsHeaderSize:], body)
	return buf
}

// putStatsReplyHeader fills the common reply prefix. A more flag of 1
// indicates further reply fragments follow.
func putStatsReplyHeader(buf []byte, xid uint32, t StatsType, more bool) {
	PutHeader(buf, TypeStatsReply, len(buf), xid)
	binary.BigEndian.PutUint16(buf[8:10], uint16(t))
	var flags uint16
	if more {
		flags = 1
	}
	binary.BigEndian.PutUint16(buf[10:12], flags)
}

// DecodeStatsReply splits an OFPT_STATS_REPLY into type, flags and body.
func DecodeStatsReply(buf []byte) (StatsRequest, error) {
	var sr StatsRequest
	h, err := DecodeHeader(buf)
	if err != nil {
		return sr, err
	}
	if h.Length < StatsHeaderSize {
		return sr, fmt.Errorf("decode stats reply: length %d: %w", h.Length, ErrBadLength)
	}
	sr.Type = StatsType(binary.BigEndian.Uint16(buf[8:10]))
	sr.Flags = binary.BigEndian.Uint16(buf[10:12])
	sr.Body = buf[StatsHeaderSize:h.Length]
	return sr, nil
}

// -------------------------------------------------------------------------
// DESC — ofp_desc_stats
// -------------------------------------------------------------------------

// DescStats identifies the switch to the controller.
type DescStats struct {
	MfrDesc   string
	HWDesc    string
	SWDesc    string
	SerialNum string
	DPDesc    string
}

// EncodeDescStatsReply serializes a DESC stats reply.
func EncodeDescStatsReply(xid uint32, d *DescStats) []byte {
	buf := make([]byte, StatsHeaderSize+DescStatsSize)
	putStatsReplyHeader(buf, xid, StatsDesc, false)

	body := buf[StatsHeaderSize:]
	copy(body[0:256], d.MfrDesc)
	copy(body[256:512], d.HWDesc)
	copy(body[512:768], d.SWDesc)
	copy(body[768:800], d.SerialNum)
	copy(body[800:1056], d.DPDesc)
	return buf
}

// -------------------------------------------------------------------------
// FLOW — ofp_flow_stats
// -------------------------------------------------------------------------

// FlowStatsRequest is the body of a FLOW stats request.
type FlowStatsRequest struct {
	Match   Match
	TableID uint8
	OutPort uint16
}

// DecodeFlowStatsRequest decodes the body of a FLOW stats request.
func DecodeFlowStatsRequest(body []byte) (FlowStatsRequest, error) {
	var fsr FlowStatsRequest
	if len(body) < FlowStatsRequestSize {
		return fsr, fmt.Errorf("decode flow stats request: %d bytes: %w", len(body), ErrShortBuffer)
	}
	m, err := DecodeMatch(body)
	if err != nil {
		return fsr, err
	}
	fsr.Match = m
	fsr.TableID = body[MatchSize]
	fsr.OutPort = binary.BigEndian.Uint16(body[MatchSize+2 : MatchSize+4])
	return fsr, nil
}

// FlowStats is one per-entry record in a FLOW stats reply.
type FlowStats struct {
	TableID      uint8
	Match        Match
	DurationSec  uint32
	DurationNsec uint32
	Priority     uint16
	IdleTimeout  uint16
	HardTimeout  uint16
	Cookie       uint64
	PacketCount  uint64
	ByteCount    uint64
	Actions      []Action
}

// AppendFlowStats encodes one ofp_flow_stats entry (including its action
// list) onto buf and returns the extended slice.
func AppendFlowStats(buf []byte, fs *FlowStats) []byte {
	entryLen := FlowStatsSize + ActionsWireLen(fs.Actions)
	off := len(buf)
	buf = append(buf, make([]byte, FlowStatsSize)...)
	e := buf[off:]

	binary.BigEndian.PutUint16(e[0:2], uint16(entryLen))
	e[2] = fs.TableID
	PutMatch(e[4:], &fs.Match)
	b := e[4+MatchSize:]
	binary.BigEndian.PutUint32(b[0:4], fs.DurationSec)
	binary.BigEndian.PutUint32(b[4:8], fs.DurationNsec)
	binary.BigEndian.PutUint16(b[8:10], fs.Priority)
	binary.BigEndian.PutUint16(b[10:12], fs.IdleTimeout)
	binary.BigEndian.PutUint16(b[12:14], fs.HardTimeout)
	binary.BigEndian.PutUint64(b[20:28], fs.Cookie)
	binary.BigEndian.PutUint64(b[28:36], fs.PacketCount)
	binary.BigEndian.PutUint64(b[36:44], fs.ByteCount)

	return AppendActions(buf, fs.Actions)
}

// EncodeFlowStatsReply serializes a FLOW stats reply fragment containing
// the given entries. more marks a continuation fragment.
func EncodeFlowStatsReply(xid uint32, entries []FlowStats, more bool) []byte {
	buf := make([]byte, StatsHeaderSize)
	for i := range entries {
		buf = AppendFlowStats(buf, &entries[i])
	}
	putStatsReplyHeader(buf, xid, StatsFlow, more)
	return buf
}

// -------------------------------------------------------------------------
// TABLE — ofp_table_stats
// -------------------------------------------------------------------------

// TableStats describes the single flow table of this switch.
type TableStats struct {
	TableID      uint8
	Name         string
	Wildcards    uint32
	MaxEntries   uint32
	ActiveCount  uint32
	LookupCount  uint64
	MatchedCount uint64
}

// EncodeTableStatsReply serializes a TABLE stats reply.
func EncodeTableStatsReply(xid uint32, ts *TableStats) []byte {
	buf := make([]byte, StatsHeaderSize+TableStatsSize)
	putStatsReplyHeader(buf, xid, StatsTable, false)

	body := buf[StatsHeaderSize:]
	body[0] = ts.TableID
	copy(body[4:4+maxTableNameLen], ts.Name)
	binary.BigEndian.PutUint32(body[36:40], ts.Wildcards)
	binary.BigEndian.PutUint32(body[40:44], ts.MaxEntries)
	binary.BigEndian.PutUint32(body[44:48], ts.ActiveCount)
	binary.BigEndian.PutUint64(body[48:56], ts.LookupCount)
	binary.BigEndian.PutUint64(body[56:64], ts.MatchedCount)
	return buf
}

// -------------------------------------------------------------------------
// PORT — ofp_port_stats
// -------------------------------------------------------------------------

// PortStats carries the per-port counters for a PORT stats reply.
type PortStats struct {
	PortNo     uint16
	RxPackets  uint64
	TxPackets  uint64
	RxBytes    uint64
	TxBytes    uint64
	RxDropped  uint64
	TxDropped  uint64
	RxErrors   uint64
	TxErrors   uint64
	RxFrameErr uint64
	RxOverErr  uint64
	RxCRCErr   uint64
	Collisions uint64
}

// DecodePortStatsRequest extracts the port number from a PORT stats
// request body. PortNone requests all ports.
func DecodePortStatsRequest(body []byte) (uint16, error) {
	if len(body) < 8 {
		return 0, fmt.Errorf("decode port stats request: %d bytes: %w", len(body), ErrShortBuffer)
	}
	return binary.BigEndian.Uint16(body[0:2]), nil
}

// EncodePortStatsReply serializes a PORT stats reply for the given ports.
func EncodePortStatsReply(xid uint32, ports []PortStats) []byte {
	buf := make([]byte, StatsHeaderSize+len(ports)*PortStatsSize)
	putStatsReplyHeader(buf, xid, StatsPort, false)

	for i := range ports {
		p := &ports[i]
		e := buf[StatsHeaderSize+i*PortStatsSize:]
		binary.BigEndian.PutUint16(e[0:2], p.PortNo)
		binary.BigEndian.PutUint64(e[8:16], p.RxPackets)
		binary.BigEndian.PutUint64(e[16:24], p.TxPackets)
		binary.BigEndian.PutUint64(e[24:32], p.RxBytes)
		binary.BigEndian.PutUint64(e[32:40], p.TxBytes)
		binary.BigEndian.PutUint64(e[40:48], p.RxDropped)
		binary.BigEndian.PutUint64(e[48:56], p.TxDropped)
		binary.BigEndian.PutUint64(e[56:64], p.RxErrors)
		binary.BigEndian.PutUint64(e[64:72], p.TxErrors)
		binary.BigEndian.PutUint64(e[72:80], p.RxFrameErr)
		binary.BigEndian.PutUint64(e[80:88], p.RxOverErr)
		binary.BigEndian.PutUint64(e[88:96], p.RxCRCErr)
		binary.BigEndian.PutUint64(e[96:104], p.Collisions)
	}
	return buf
}
