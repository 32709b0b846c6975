package datapath_test

import (
	"bytes"
	"encoding/binary"
	"log/slog"
	"testing"
	"time"

	"github.com/dantte-lp/goswitch/internal/datapath"
	"github.com/dantte-lp/goswitch/internal/of10"
	"github.com/dantte-lp/goswitch/internal/packet"
)

// -------------------------------------------------------------------------
// Fakes — driver and controller channel
// -------------------------------------------------------------------------

// driverWrite records one egress driver call.
type driverWrite struct {
	frame []byte
	mask  uint8
}

// fakeDriver records frames the datapath writes.
type fakeDriver struct {
	writes []driverWrite
	err    error
}

func (d *fakeDriver) WriteFrame(frame []byte, portBitmap uint8) error {
	if d.err != nil {
		return d.err
	}
	cp := append([]byte(nil), frame...)
	d.writes = append(d.writes, driverWrite{frame: cp, mask: portBitmap})
	return nil
}

// fakeConn records messages the datapath sends to the controller.
type fakeConn struct {
	connected bool
	window    int
	sent      [][]byte
}

func (c *fakeConn) Send(b []byte) error {
	c.sent = append(c.sent, append([]byte(nil), b...))
	return nil
}

func (c *fakeConn) SendWindow() int { return c.window }
func (c *fakeConn) Connected() bool { return c.connected }

// sentTypes returns the message types sent so far, in order.
func (c *fakeConn) sentTypes(t *testing.T) []of10.MsgType {
	t.Helper()

	types := make([]of10.MsgType, 0, len(c.sent))
	for _, b := range c.sent {
		h, err := of10.DecodeHeader(b)
		if err != nil {
			t.Fatalf("sent message undecodable: %v", err)
		}
		types = append(types, h.Type)
	}
	return types
}

// -------------------------------------------------------------------------
// Fixtures
// -------------------------------------------------------------------------

// testClock is the fixed time source for deterministic counters.
var testClock = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestSwitch builds a Switch with all four ports enabled, a connected
// controller, and a generous send window.
func newTestSwitch(t *testing.T) (*datapath.Switch, *fakeDriver, *fakeConn) {
	t.Helper()

	driver := &fakeDriver{}
	conn := &fakeConn{connected: true, window: 1 << 20}
	cfg := datapath.Config{
		MAC:         [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		PortEnabled: [datapath.MaxPorts]bool{true, true, true, true},
		FailMode:    datapath.FailSecure,
		Desc: of10.DescStats{
			MfrDesc: "goswitch",
			HWDesc:  "test",
		},
	}
	logger := slog.New(slog.DiscardHandler)
	sw := datapath.New(cfg, driver, conn, logger,
		datapath.WithClock(func() time.Time { return testClock }),
	)
	return sw, driver, conn
}

// testFrame builds the canonical test frame: untagged Ethernet
// [dst=AA*6, src=BB*6] carrying IPv4 10.0.0.1 -> 10.0.0.2 TCP 1234 -> 80,
// with valid checksums and VLAN headroom.
func testFrame(t *testing.T) datapath.Frame {
	t.Helper()

	const l4Len = 20
	buf := make([]byte, 14+20+l4Len, 14+20+l4Len+packet.VLANTagSize)

	copy(buf[0:6], bytes.Repeat([]byte{0xaa}, 6))
	copy(buf[6:12], bytes.Repeat([]byte{0xbb}, 6))
	binary.BigEndian.PutUint16(buf[12:14], packet.EtherTypeIPv4)

	ip := buf[14:34]
	ip[0] = 0x45
	binary.BigEndian.PutUint16(ip[2:4], 20+l4Len)
	ip[8] = 64
	ip[9] = packet.ProtoTCP
	binary.BigEndian.PutUint32(ip[12:16], 0x0a000001)
	binary.BigEndian.PutUint32(ip[16:20], 0x0a000002)

	l4 := buf[34:]
	binary.BigEndian.PutUint16(l4[0:2], 1234)
	binary.BigEndian.PutUint16(l4[2:4], 80)
	l4[12] = 0x50

	length := len(buf)
	packet.NewView(buf, &length).RecomputeChecksums()

	return datapath.Frame{Data: buf, Len: length, Port: 1}
}

// ipDstMatch matches eth_type 0x0800 with the given destination address.
func ipDstMatch(dst uint32) of10.Match {
	return of10.Match{
		Wildcards: of10.WildcardAll &^ (of10.WildcardDLType | of10.WildcardNWDstMask),
		DLType:    0x0800,
		NWDst:     dst,
	}
}

// addFlow installs one flow through the controller handler and fails the
// test if the handler answered with anything.
func addFlow(t *testing.T, sw *datapath.Switch, conn *fakeConn, m of10.Match, priority uint16, rawActions []byte) {
	t.Helper()

	before := len(conn.sent)
	fm := of10.FlowMod{
		Match:      m,
		Command:    of10.FlowAdd,
		Priority:   priority,
		BufferID:   of10.NoBuffer,
		OutPort:    uint16(of10.PortNone),
		RawActions: rawActions,
	}
	sw.HandleBatch([][]byte{of10.EncodeFlowMod(1, &fm)})
	if len(conn.sent) != before {
		t.Fatalf("flow add produced a reply: %x", conn.sent[len(conn.sent)-1])
	}
}

// rawOutput encodes an OUTPUT action list entry.
func rawOutput(port of10.PortNo, maxLen uint16) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[2:4], 8)
	binary.BigEndian.PutUint16(buf[4:6], uint16(port))
	binary.BigEndian.PutUint16(buf[6:8], maxLen)
	return buf
}

// rawSetNWDst encodes a SET_NW_DST action.
func rawSetNWDst(addr uint32) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(of10.ActionTypeSetNWDst))
	binary.BigEndian.PutUint16(buf[2:4], 8)
	binary.BigEndian.PutUint32(buf[4:8], addr)
	return buf
}

// rawSetVLANVID encodes a SET_VLAN_VID action.
func rawSetVLANVID(vid uint16) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(of10.ActionTypeSetVLANVID))
	binary.BigEndian.PutUint16(buf[2:4], 8)
	binary.BigEndian.PutUint16(buf[4:6], vid)
	return buf
}

func concat(lists ...[]byte) []byte {
	var out []byte
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
