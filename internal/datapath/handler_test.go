package datapath_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/dantte-lp/goswitch/internal/datapath"
	"github.com/dantte-lp/goswitch/internal/of10"
)

// lastError decodes the most recent sent message as an OFPT_ERROR.
func lastError(t *testing.T, conn *fakeConn) of10.ErrorMsg {
	t.Helper()

	if len(conn.sent) == 0 {
		t.Fatal("no messages sent")
	}
	e, err := of10.DecodeError(conn.sent[len(conn.sent)-1])
	if err != nil {
		t.Fatalf("last message is not an ERROR: %v", err)
	}
	return e
}

func TestEchoRequestReply(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	payload := []byte{1, 2, 3, 4}
	req := make([]byte, of10.HeaderSize+len(payload))
	of10.PutHeader(req, of10.TypeEchoRequest, len(req), 0x55)
	copy(req[of10.HeaderSize:], payload)

	sw.HandleBatch([][]byte{req})

	if len(conn.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(conn.sent))
	}
	h, err := of10.DecodeHeader(conn.sent[0])
	if err != nil {
		t.Fatalf("reply undecodable: %v", err)
	}
	if h.Type != of10.TypeEchoReply || h.XID != 0x55 {
		t.Errorf("reply header = %+v", h)
	}
	if !bytes.Equal(conn.sent[0][of10.HeaderSize:], payload) {
		t.Error("echo payload not reflected")
	}
}

func TestFeaturesReply(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	req := make([]byte, of10.HeaderSize)
	of10.PutHeader(req, of10.TypeFeaturesRequest, len(req), 0x99)
	sw.HandleBatch([][]byte{req})

	if len(conn.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(conn.sent))
	}
	fr, err := of10.DecodeFeaturesReply(conn.sent[0])
	if err != nil {
		t.Fatalf("DecodeFeaturesReply() error = %v", err)
	}

	// Datapath id is the MAC in the low 48 bits.
	if fr.DatapathID != 0x0000020000000001 {
		t.Errorf("datapath_id = %016x", fr.DatapathID)
	}
	if fr.NTables != 1 || fr.NBuffers != 0 {
		t.Errorf("n_tables=%d n_buffers=%d", fr.NTables, fr.NBuffers)
	}
	wantCaps := of10.CapFlowStats | of10.CapTableStats | of10.CapPortStats
	if fr.Capabilities != wantCaps {
		t.Errorf("capabilities = %08x, want %08x", fr.Capabilities, wantCaps)
	}
	if fr.Actions != of10.SupportedActionBitmap {
		t.Errorf("actions = %08x, want %08x", fr.Actions, of10.SupportedActionBitmap)
	}
	if len(fr.Ports) != datapath.MaxPorts {
		t.Fatalf("ports = %d, want %d", len(fr.Ports), datapath.MaxPorts)
	}
	for i, p := range fr.Ports {
		if int(p.PortNo) != i+1 {
			t.Errorf("port[%d].port_no = %d", i, p.PortNo)
		}
		// No link transitions recorded: everything reports link down.
		if p.State != of10.PortStateLinkDown {
			t.Errorf("port[%d].state = %08x, want LINK_DOWN", i, p.State)
		}
	}
}

func TestGetSetConfig(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	// Default miss_send_len is 128.
	req := make([]byte, of10.HeaderSize)
	of10.PutHeader(req, of10.TypeGetConfigRequest, len(req), 1)
	sw.HandleBatch([][]byte{req})

	sc, err := of10.DecodeSwitchConfig(conn.sent[0])
	if err != nil {
		t.Fatalf("DecodeSwitchConfig() error = %v", err)
	}
	if sc.MissSendLen != 128 {
		t.Errorf("default miss_send_len = %d, want 128", sc.MissSendLen)
	}

	// SET_CONFIG stores the new value; no reply.
	conn.sent = nil
	set := make([]byte, of10.SwitchConfigSize)
	of10.PutHeader(set, of10.TypeSetConfig, len(set), 2)
	binary.BigEndian.PutUint16(set[10:12], 64)
	sw.HandleBatch([][]byte{set})
	if len(conn.sent) != 0 {
		t.Fatalf("SET_CONFIG produced a reply")
	}

	of10.PutHeader(req, of10.TypeGetConfigRequest, len(req), 3)
	sw.HandleBatch([][]byte{req})
	sc, err = of10.DecodeSwitchConfig(conn.sent[0])
	if err != nil {
		t.Fatalf("DecodeSwitchConfig() error = %v", err)
	}
	if sc.MissSendLen != 64 {
		t.Errorf("miss_send_len = %d, want 64", sc.MissSendLen)
	}
}

func TestVendorRejected(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	req := make([]byte, of10.HeaderSize+8)
	of10.PutHeader(req, of10.TypeVendor, len(req), 7)
	sw.HandleBatch([][]byte{req})

	e := lastError(t, conn)
	if e.Type != of10.ErrTypeBadRequest || e.Code != of10.BadRequestBadVendor {
		t.Errorf("error = %d/%d, want BAD_REQUEST/BAD_VENDOR", e.Type, e.Code)
	}
	if e.XID != 7 {
		t.Errorf("xid = %d, want 7", e.XID)
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	req := make([]byte, of10.HeaderSize)
	req[0] = of10.Version
	req[1] = 0xf0
	binary.BigEndian.PutUint16(req[2:4], of10.HeaderSize)
	binary.BigEndian.PutUint32(req[4:8], 11)
	sw.HandleBatch([][]byte{req})

	e := lastError(t, conn)
	if e.Type != of10.ErrTypeBadRequest || e.Code != of10.BadRequestBadType {
		t.Errorf("error = %d/%d, want BAD_REQUEST/BAD_TYPE", e.Type, e.Code)
	}
}

func TestStatsDescReply(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	sw.HandleBatch([][]byte{of10.EncodeStatsRequest(4, of10.StatsDesc, nil)})

	sr, err := of10.DecodeStatsReply(conn.sent[0])
	if err != nil {
		t.Fatalf("DecodeStatsReply() error = %v", err)
	}
	if sr.Type != of10.StatsDesc || len(sr.Body) != of10.DescStatsSize {
		t.Errorf("reply = type %v body %d", sr.Type, len(sr.Body))
	}
	if !bytes.HasPrefix(sr.Body, []byte("goswitch")) {
		t.Errorf("mfr_desc = %q", sr.Body[:16])
	}
}

func TestStatsTableReply(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)
	addFlow(t, sw, conn, ipDstMatch(0x0a000002), 100, rawOutput(2, 0))

	f := testFrame(t)
	sw.HandleFrame(&f)

	sw.HandleBatch([][]byte{of10.EncodeStatsRequest(4, of10.StatsTable, nil)})

	sr, err := of10.DecodeStatsReply(conn.sent[len(conn.sent)-1])
	if err != nil {
		t.Fatalf("DecodeStatsReply() error = %v", err)
	}
	body := sr.Body
	if got := binary.BigEndian.Uint32(body[40:44]); got != datapath.MaxFlows {
		t.Errorf("max_entries = %d, want %d", got, datapath.MaxFlows)
	}
	if got := binary.BigEndian.Uint32(body[44:48]); got != 1 {
		t.Errorf("active_count = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint64(body[48:56]); got != 1 {
		t.Errorf("lookup_count = %d, want 1", got)
	}
	if got := binary.BigEndian.Uint64(body[56:64]); got != 1 {
		t.Errorf("matched_count = %d, want 1", got)
	}
}

func TestStatsFlowReply(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)
	addFlow(t, sw, conn, ipDstMatch(0x0a000002), 100, rawOutput(2, 0))

	body := make([]byte, of10.FlowStatsRequestSize)
	m := of10.Match{Wildcards: of10.WildcardAll}
	of10.PutMatch(body, &m)
	binary.BigEndian.PutUint16(body[of10.MatchSize+2:], uint16(of10.PortNone))

	sw.HandleBatch([][]byte{of10.EncodeStatsRequest(6, of10.StatsFlow, body)})

	sr, err := of10.DecodeStatsReply(conn.sent[len(conn.sent)-1])
	if err != nil {
		t.Fatalf("DecodeStatsReply() error = %v", err)
	}
	if sr.Type != of10.StatsFlow || sr.Flags != 0 {
		t.Errorf("reply header = %+v", sr)
	}
	// One entry with one 8-byte action.
	if len(sr.Body) != of10.FlowStatsSize+8 {
		t.Errorf("body = %d bytes, want %d", len(sr.Body), of10.FlowStatsSize+8)
	}
	if got := binary.BigEndian.Uint16(sr.Body[52:54]); got != 100 {
		t.Errorf("priority = %d, want 100", got)
	}
}

func TestStatsPortReplyAllPorts(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	f := testFrame(t)
	sw.HandleFrame(&f) // counts rx on port 1, emits packet-in
	conn.sent = nil

	body := make([]byte, 8)
	binary.BigEndian.PutUint16(body[0:2], uint16(of10.PortNone))
	sw.HandleBatch([][]byte{of10.EncodeStatsRequest(5, of10.StatsPort, body)})

	sr, err := of10.DecodeStatsReply(conn.sent[0])
	if err != nil {
		t.Fatalf("DecodeStatsReply() error = %v", err)
	}
	if len(sr.Body) != datapath.MaxPorts*of10.PortStatsSize {
		t.Fatalf("body = %d bytes, want %d ports", len(sr.Body), datapath.MaxPorts)
	}
	// Port 1 counted one received frame.
	if got := binary.BigEndian.Uint64(sr.Body[8:16]); got != 1 {
		t.Errorf("port 1 rx_packets = %d, want 1", got)
	}
}

func TestStatsAggregateRejected(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	sw.HandleBatch([][]byte{of10.EncodeStatsRequest(4, of10.StatsAggregate, make([]byte, 44))})

	e := lastError(t, conn)
	if e.Type != of10.ErrTypeBadRequest || e.Code != of10.BadRequestBadStat {
		t.Errorf("error = %d/%d, want BAD_REQUEST/BAD_STAT", e.Type, e.Code)
	}
}

func TestPacketOutExecutesActions(t *testing.T) {
	t.Parallel()

	sw, driver, _ := newTestSwitch(t)

	frame := testFrame(t)
	po := of10.PacketOut{
		BufferID:   of10.NoBuffer,
		InPort:     1,
		RawActions: rawOutput(3, 0),
		Data:       frame.Data[:frame.Len],
	}
	sw.HandleBatch([][]byte{of10.EncodePacketOut(2, &po)})

	if len(driver.writes) != 1 {
		t.Fatalf("driver wrote %d frames, want 1", len(driver.writes))
	}
	if driver.writes[0].mask != 0b0100 {
		t.Errorf("port bitmap = %04b, want 0100", driver.writes[0].mask)
	}
	if !bytes.Equal(driver.writes[0].frame, frame.Data[:frame.Len]) {
		t.Error("packet-out frame modified unexpectedly")
	}
}

func TestPacketOutVLANInsert(t *testing.T) {
	t.Parallel()

	sw, driver, _ := newTestSwitch(t)

	frame := testFrame(t)
	po := of10.PacketOut{
		BufferID:   of10.NoBuffer,
		InPort:     1,
		RawActions: concat(rawSetVLANVID(42), rawOutput(2, 0)),
		Data:       frame.Data[:frame.Len],
	}
	sw.HandleBatch([][]byte{of10.EncodePacketOut(2, &po)})

	if len(driver.writes) != 1 {
		t.Fatalf("driver wrote %d frames, want 1", len(driver.writes))
	}
	out := driver.writes[0].frame
	if len(out) != frame.Len+4 {
		t.Errorf("egress length = %d, want %d", len(out), frame.Len+4)
	}
	if got := binary.BigEndian.Uint16(out[12:14]); got != 0x8100 {
		t.Errorf("TPID = %04x", got)
	}
}

func TestBadVersionHelloFailed(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	// A HELLO carrying a version this datapath does not speak.
	req := []byte{0x06, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x01}
	sw.HandleBatch([][]byte{req})

	e := lastError(t, conn)
	if e.Type != of10.ErrTypeHelloFailed || e.Code != of10.HelloFailedIncompatible {
		t.Errorf("error = %d/%d, want HELLO_FAILED/INCOMPATIBLE", e.Type, e.Code)
	}
}

func TestBadVersionRejected(t *testing.T) {
	t.Parallel()

	sw, _, conn := newTestSwitch(t)

	req := []byte{0x04, 0x0e, 0x00, 0x08, 0x00, 0x00, 0x00, 0x21}
	sw.HandleBatch([][]byte{req})

	e := lastError(t, conn)
	if e.Type != of10.ErrTypeBadRequest || e.Code != of10.BadRequestBadVersion {
		t.Errorf("error = %d/%d, want BAD_REQUEST/BAD_VERSION", e.Type, e.Code)
	}
	if e.XID != 0x21 {
		t.Errorf("xid = %d, want 0x21", e.XID)
	}
}
