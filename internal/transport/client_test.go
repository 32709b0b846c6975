package transport

import (
	"context"
	"encoding/binary"
	"log/slog"
	"net"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// msg builds a minimal OpenFlow message of the given total length.
func msg(t byte, length int, xid uint32) []byte {
	buf := make([]byte, length)
	buf[0] = 0x01
	buf[1] = t
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
	binary.BigEndian.PutUint32(buf[4:8], xid)
	return buf
}

// -------------------------------------------------------------------------
// TestFrameMessages — stream reassembly
// -------------------------------------------------------------------------

func TestFrameMessages(t *testing.T) {
	t.Parallel()

	t.Run("two complete messages in one read", func(t *testing.T) {
		t.Parallel()

		stream := append(msg(0, 8, 1), msg(2, 16, 2)...)
		batch, rest, err := frameMessages(stream)
		if err != nil {
			t.Fatalf("frameMessages() error = %v", err)
		}
		if len(batch) != 2 {
			t.Fatalf("batch = %d messages, want 2", len(batch))
		}
		if len(batch[0]) != 8 || len(batch[1]) != 16 {
			t.Errorf("message lengths = %d, %d", len(batch[0]), len(batch[1]))
		}
		if len(rest) != 0 {
			t.Errorf("rest = %d bytes, want 0", len(rest))
		}
	})

	t.Run("partial tail stays buffered", func(t *testing.T) {
		t.Parallel()

		full := msg(0, 8, 1)
		partial := msg(14, 72, 2)[:20]
		stream := append(append([]byte(nil), full...), partial...)

		batch, rest, err := frameMessages(stream)
		if err != nil {
			t.Fatalf("frameMessages() error = %v", err)
		}
		if len(batch) != 1 {
			t.Fatalf("batch = %d messages, want 1", len(batch))
		}
		if len(rest) != 20 {
			t.Errorf("rest = %d bytes, want 20", len(rest))
		}
	})

	t.Run("short header fragment", func(t *testing.T) {
		t.Parallel()

		batch, rest, err := frameMessages([]byte{0x01, 0x00, 0x00})
		if err != nil {
			t.Fatalf("frameMessages() error = %v", err)
		}
		if len(batch) != 0 || len(rest) != 3 {
			t.Errorf("batch=%d rest=%d", len(batch), len(rest))
		}
	})

	t.Run("length below header size is corrupt", func(t *testing.T) {
		t.Parallel()

		if _, _, err := frameMessages([]byte{0x01, 0x00, 0x00, 0x04, 0, 0, 0, 0}); err == nil {
			t.Fatal("corrupt length accepted")
		}
	})
}

// -------------------------------------------------------------------------
// TestClientSession — dial, batch delivery, send, disconnect
// -------------------------------------------------------------------------

func TestClientSession(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	logger := slog.New(slog.DiscardHandler)
	c := NewClient(Config{Addr: ln.Addr().String()}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	conn, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer conn.Close()

	// Session comes up.
	select {
	case up := <-c.Sessions():
		if !up {
			t.Fatal("first session event is down")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no session event")
	}
	if !c.Connected() {
		t.Error("Connected() = false after session up")
	}

	// Two messages written in one segment arrive as one batch.
	segment := append(msg(0, 8, 1), msg(18, 8, 7)...)
	if _, err := conn.Write(segment); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case batch := <-c.Batches():
		if len(batch) != 2 {
			t.Fatalf("batch = %d messages, want 2", len(batch))
		}
		if got := binary.BigEndian.Uint32(batch[1][4:8]); got != 7 {
			t.Errorf("second message xid = %d, want 7", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no batch delivered")
	}

	// Send flows back to the controller side.
	if err := c.Send(msg(3, 8, 9)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	reply := make([]byte, 8)
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, err := readFull(conn, reply); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if reply[1] != 3 {
		t.Errorf("reply type = %d, want 3", reply[1])
	}

	// Peer close drops the session.
	conn.Close()
	select {
	case up := <-c.Sessions():
		if up {
			t.Fatal("expected session down event")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no session down event")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
}

// readFull reads exactly len(buf) bytes.
func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSendWhileDisconnected(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.DiscardHandler)
	c := NewClient(Config{Addr: "127.0.0.1:1"}, logger)

	if err := c.Send([]byte{0x01}); err == nil {
		t.Fatal("Send() while disconnected succeeded")
	}
	if c.SendWindow() != DefaultSendBuf {
		t.Errorf("SendWindow() = %d, want %d", c.SendWindow(), DefaultSendBuf)
	}
}
