package of10_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/dantte-lp/goswitch/internal/of10"
)

// -------------------------------------------------------------------------
// FlowMod
// -------------------------------------------------------------------------

func TestFlowModRoundTrip(t *testing.T) {
	t.Parallel()

	fm := of10.FlowMod{
		Match:       exactMatch(),
		Cookie:      0xdeadbeefcafef00d,
		Command:     of10.FlowAdd,
		IdleTimeout: 60,
		HardTimeout: 300,
		Priority:    100,
		BufferID:    of10.NoBuffer,
		OutPort:     uint16(of10.PortNone),
		Flags:       of10.FlagSendFlowRem,
		RawActions:  rawOutput(2, 0),
	}

	buf := of10.EncodeFlowMod(0x11223344, &fm)
	got, err := of10.DecodeFlowMod(buf)
	if err != nil {
		t.Fatalf("DecodeFlowMod() error = %v", err)
	}

	if got.Match != fm.Match {
		t.Errorf("match = %+v, want %+v", got.Match, fm.Match)
	}
	if got.Cookie != fm.Cookie || got.Command != fm.Command ||
		got.IdleTimeout != fm.IdleTimeout || got.HardTimeout != fm.HardTimeout ||
		got.Priority != fm.Priority || got.BufferID != fm.BufferID ||
		got.OutPort != fm.OutPort || got.Flags != fm.Flags {
		t.Errorf("body = %+v, want %+v", got, fm)
	}
	if !bytes.Equal(got.RawActions, fm.RawActions) {
		t.Errorf("actions = %x, want %x", got.RawActions, fm.RawActions)
	}
}

func TestFlowModWireOffsets(t *testing.T) {
	t.Parallel()

	fm := of10.FlowMod{
		Match:    of10.Match{Wildcards: of10.WildcardAll},
		Cookie:   0x0102030405060708,
		Command:  of10.FlowDeleteStrict,
		Priority: 0xabcd,
	}
	buf := of10.EncodeFlowMod(0, &fm)

	if len(buf) != of10.FlowModSize {
		t.Fatalf("length = %d, want %d", len(buf), of10.FlowModSize)
	}
	// Cookie sits right after the 40-byte match.
	if got := binary.BigEndian.Uint64(buf[48:56]); got != fm.Cookie {
		t.Errorf("cookie bytes = %016x", got)
	}
	if got := binary.BigEndian.Uint16(buf[56:58]); got != uint16(of10.FlowDeleteStrict) {
		t.Errorf("command = %d", got)
	}
	if got := binary.BigEndian.Uint16(buf[62:64]); got != 0xabcd {
		t.Errorf("priority = %04x", got)
	}
}

// -------------------------------------------------------------------------
// PacketIn / PacketOut
// -------------------------------------------------------------------------

func TestPacketInLayout(t *testing.T) {
	t.Parallel()

	data := []byte{0xde, 0xad, 0xbe, 0xef}
	pi := of10.PacketIn{
		BufferID: of10.NoBuffer,
		TotalLen: 1000,
		InPort:   1,
		Reason:   of10.ReasonNoMatch,
		Data:     data,
	}

	buf := make([]byte, of10.PacketInSize+len(data))
	n := of10.PutPacketIn(buf, 0, &pi)
	if n != 22 {
		t.Fatalf("PutPacketIn() = %d bytes, want 22", n)
	}

	// The fixed prefix is 18 bytes: header(8) + buffer_id(4) +
	// total_len(2) + in_port(2) + reason(1) + pad(1).
	if got := binary.BigEndian.Uint32(buf[8:12]); got != of10.NoBuffer {
		t.Errorf("buffer_id = %08x", got)
	}
	if got := binary.BigEndian.Uint16(buf[12:14]); got != 1000 {
		t.Errorf("total_len = %d", got)
	}
	if got := binary.BigEndian.Uint16(buf[14:16]); got != 1 {
		t.Errorf("in_port = %d", got)
	}
	if buf[16] != uint8(of10.ReasonNoMatch) {
		t.Errorf("reason = %d", buf[16])
	}
	if !bytes.Equal(buf[18:22], data) {
		t.Errorf("data = %x", buf[18:22])
	}

	got, err := of10.DecodePacketIn(buf[:n])
	if err != nil {
		t.Fatalf("DecodePacketIn() error = %v", err)
	}
	if got.TotalLen != pi.TotalLen || got.InPort != pi.InPort ||
		got.Reason != pi.Reason || !bytes.Equal(got.Data, data) {
		t.Errorf("round trip = %+v", got)
	}
}

func TestPacketOutRoundTrip(t *testing.T) {
	t.Parallel()

	po := of10.PacketOut{
		BufferID:   of10.NoBuffer,
		InPort:     3,
		RawActions: rawOutput(of10.PortFlood, 0),
		Data:       bytes.Repeat([]byte{0x5a}, 60),
	}

	buf := of10.EncodePacketOut(77, &po)
	got, err := of10.DecodePacketOut(buf)
	if err != nil {
		t.Fatalf("DecodePacketOut() error = %v", err)
	}
	if got.BufferID != po.BufferID || got.InPort != po.InPort {
		t.Errorf("fields = %+v", got)
	}
	if !bytes.Equal(got.RawActions, po.RawActions) {
		t.Errorf("actions = %x", got.RawActions)
	}
	if !bytes.Equal(got.Data, po.Data) {
		t.Errorf("data mismatch")
	}
}

func TestDecodePacketOutActionsOverrun(t *testing.T) {
	t.Parallel()

	po := of10.PacketOut{BufferID: of10.NoBuffer, InPort: 1}
	buf := of10.EncodePacketOut(1, &po)
	// Claim more action bytes than the message holds.
	binary.BigEndian.PutUint16(buf[14:16], 64)

	if _, err := of10.DecodePacketOut(buf); err == nil {
		t.Fatal("DecodePacketOut() with overrunning actions_len succeeded")
	}
}

// -------------------------------------------------------------------------
// FeaturesReply / SwitchConfig
// -------------------------------------------------------------------------

func TestFeaturesReplyRoundTrip(t *testing.T) {
	t.Parallel()

	fr := of10.FeaturesReply{
		DatapathID:   0x0000020000000001,
		NTables:      1,
		Capabilities: of10.CapFlowStats | of10.CapTableStats | of10.CapPortStats,
		Actions:      of10.SupportedActionBitmap,
		Ports: []of10.PhyPort{
			{
				PortNo: 1,
				HWAddr: [6]byte{2, 0, 0, 0, 0, 1},
				Name:   "eth0",
				State:  of10.PortStateSTPListen,
				Curr:   of10.PortFeat100MbFD | of10.PortFeatCopper,
			},
			{
				PortNo: 2,
				HWAddr: [6]byte{2, 0, 0, 0, 0, 3},
				Name:   "eth1",
				State:  of10.PortStateLinkDown,
				Curr:   of10.PortFeat100MbFD | of10.PortFeatCopper,
			},
		},
	}

	buf := of10.EncodeFeaturesReply(5, &fr)
	if len(buf) != of10.FeaturesReplySize+2*of10.PhyPortSize {
		t.Fatalf("length = %d", len(buf))
	}

	got, err := of10.DecodeFeaturesReply(buf)
	if err != nil {
		t.Fatalf("DecodeFeaturesReply() error = %v", err)
	}
	if got.DatapathID != fr.DatapathID || got.Capabilities != fr.Capabilities ||
		got.Actions != fr.Actions || got.NTables != fr.NTables {
		t.Errorf("fields = %+v", got)
	}
	if len(got.Ports) != 2 {
		t.Fatalf("ports = %d, want 2", len(got.Ports))
	}
	for i := range got.Ports {
		if got.Ports[i] != fr.Ports[i] {
			t.Errorf("port[%d] = %+v, want %+v", i, got.Ports[i], fr.Ports[i])
		}
	}
}

func TestGetConfigReplyRoundTrip(t *testing.T) {
	t.Parallel()

	sc := of10.SwitchConfig{Flags: of10.ConfigFragNormal, MissSendLen: 128}
	buf := of10.EncodeGetConfigReply(3, sc)

	got, err := of10.DecodeSwitchConfig(buf)
	if err != nil {
		t.Fatalf("DecodeSwitchConfig() error = %v", err)
	}
	if got != sc {
		t.Errorf("round trip = %+v, want %+v", got, sc)
	}
}

// -------------------------------------------------------------------------
// FlowRemoved
// -------------------------------------------------------------------------

func TestFlowRemovedRoundTrip(t *testing.T) {
	t.Parallel()

	fr := of10.FlowRemoved{
		Match:        exactMatch(),
		Cookie:       42,
		Priority:     100,
		Reason:       of10.RemovedDelete,
		DurationSec:  12,
		DurationNsec: 500,
		IdleTimeout:  60,
		PacketCount:  9,
		ByteCount:    1234,
	}

	buf := of10.EncodeFlowRemoved(&fr)
	if len(buf) != of10.FlowRemovedSize {
		t.Fatalf("length = %d, want %d", len(buf), of10.FlowRemovedSize)
	}

	got, err := of10.DecodeFlowRemoved(buf)
	if err != nil {
		t.Fatalf("DecodeFlowRemoved() error = %v", err)
	}
	if got != fr {
		t.Errorf("round trip = %+v, want %+v", got, fr)
	}
}

// -------------------------------------------------------------------------
// Stats
// -------------------------------------------------------------------------

func TestStatsRequestRoundTrip(t *testing.T) {
	t.Parallel()

	body := make([]byte, of10.FlowStatsRequestSize)
	m := of10.Match{Wildcards: of10.WildcardAll}
	of10.PutMatch(body, &m)
	body[of10.MatchSize] = 0xff // table_id: all tables
	binary.BigEndian.PutUint16(body[of10.MatchSize+2:], uint16(of10.PortNone))

	buf := of10.EncodeStatsRequest(8, of10.StatsFlow, body)
	sr, err := of10.DecodeStatsRequest(buf)
	if err != nil {
		t.Fatalf("DecodeStatsRequest() error = %v", err)
	}
	if sr.Type != of10.StatsFlow {
		t.Errorf("type = %v", sr.Type)
	}

	fsr, err := of10.DecodeFlowStatsRequest(sr.Body)
	if err != nil {
		t.Fatalf("DecodeFlowStatsRequest() error = %v", err)
	}
	if fsr.Match != m || fsr.TableID != 0xff || fsr.OutPort != uint16(of10.PortNone) {
		t.Errorf("flow stats request = %+v", fsr)
	}
}

func TestEncodeDescStatsReplyLayout(t *testing.T) {
	t.Parallel()

	d := of10.DescStats{
		MfrDesc:   "goswitch",
		HWDesc:    "soft-datapath",
		SWDesc:    "v0.1.0",
		SerialNum: "none",
		DPDesc:    "test datapath",
	}
	buf := of10.EncodeDescStatsReply(2, &d)

	if len(buf) != of10.StatsHeaderSize+of10.DescStatsSize {
		t.Fatalf("length = %d", len(buf))
	}
	body := buf[of10.StatsHeaderSize:]
	if !bytes.HasPrefix(body[0:256], []byte("goswitch")) {
		t.Errorf("mfr_desc = %q", body[:16])
	}
	if !bytes.HasPrefix(body[768:800], []byte("none")) {
		t.Errorf("serial_num = %q", body[768:776])
	}
	if !bytes.HasPrefix(body[800:], []byte("test datapath")) {
		t.Errorf("dp_desc = %q", body[800:816])
	}
}

func TestEncodeFlowStatsReply(t *testing.T) {
	t.Parallel()

	entries := []of10.FlowStats{
		{
			Match:       exactMatch(),
			Priority:    100,
			DurationSec: 5,
			Cookie:      7,
			PacketCount: 3,
			ByteCount:   180,
			Actions:     []of10.Action{of10.ActionOutput{Port: 2}},
		},
	}

	buf := of10.EncodeFlowStatsReply(4, entries, false)
	sr, err := of10.DecodeStatsReply(buf)
	if err != nil {
		t.Fatalf("DecodeStatsReply() error = %v", err)
	}
	if sr.Type != of10.StatsFlow || sr.Flags != 0 {
		t.Errorf("reply header = %+v", sr)
	}

	// One entry: 88 fixed bytes + one 8-byte action.
	if len(sr.Body) != of10.FlowStatsSize+8 {
		t.Fatalf("body = %d bytes, want %d", len(sr.Body), of10.FlowStatsSize+8)
	}
	if got := binary.BigEndian.Uint16(sr.Body[0:2]); int(got) != len(sr.Body) {
		t.Errorf("entry length field = %d, want %d", got, len(sr.Body))
	}
	if got := binary.BigEndian.Uint64(sr.Body[4+of10.MatchSize+28:]); got != 3 {
		t.Errorf("packet_count = %d, want 3", got)
	}
}

func TestEncodeFlowStatsReplyMoreFlag(t *testing.T) {
	t.Parallel()

	buf := of10.EncodeFlowStatsReply(4, nil, true)
	sr, err := of10.DecodeStatsReply(buf)
	if err != nil {
		t.Fatalf("DecodeStatsReply() error = %v", err)
	}
	if sr.Flags != 1 {
		t.Errorf("more flag = %d, want 1", sr.Flags)
	}
}

func TestEncodeTableStatsReplyLayout(t *testing.T) {
	t.Parallel()

	ts := of10.TableStats{
		TableID:      0,
		Name:         "flows",
		Wildcards:    of10.WildcardAll,
		MaxEntries:   128,
		ActiveCount:  3,
		LookupCount:  100,
		MatchedCount: 42,
	}
	buf := of10.EncodeTableStatsReply(6, &ts)
	body := buf[of10.StatsHeaderSize:]

	if len(body) != of10.TableStatsSize {
		t.Fatalf("body = %d bytes", len(body))
	}
	if got := binary.BigEndian.Uint32(body[40:44]); got != 128 {
		t.Errorf("max_entries = %d", got)
	}
	if got := binary.BigEndian.Uint32(body[44:48]); got != 3 {
		t.Errorf("active_count = %d", got)
	}
	if got := binary.BigEndian.Uint64(body[48:56]); got != 100 {
		t.Errorf("lookup_count = %d", got)
	}
	if got := binary.BigEndian.Uint64(body[56:64]); got != 42 {
		t.Errorf("matched_count = %d", got)
	}
}

func TestEncodePortStatsReplyLayout(t *testing.T) {
	t.Parallel()

	ports := []of10.PortStats{
		{PortNo: 1, RxPackets: 10, TxPackets: 20, RxBytes: 100, TxBytes: 200, RxCRCErr: 1},
		{PortNo: 2},
	}
	buf := of10.EncodePortStatsReply(9, ports)

	if len(buf) != of10.StatsHeaderSize+2*of10.PortStatsSize {
		t.Fatalf("length = %d", len(buf))
	}
	e := buf[of10.StatsHeaderSize:]
	if got := binary.BigEndian.Uint16(e[0:2]); got != 1 {
		t.Errorf("port_no = %d", got)
	}
	if got := binary.BigEndian.Uint64(e[8:16]); got != 10 {
		t.Errorf("rx_packets = %d", got)
	}
	if got := binary.BigEndian.Uint64(e[88:96]); got != 1 {
		t.Errorf("rx_crc_err = %d", got)
	}
}
