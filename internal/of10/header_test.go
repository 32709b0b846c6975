package of10_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/dantte-lp/goswitch/internal/of10"
)

// -------------------------------------------------------------------------
// TestDecodeHeader — validation of the common header
// -------------------------------------------------------------------------

func TestDecodeHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		buf     []byte
		wantErr error
		want    of10.Header
	}{
		{
			name: "valid hello",
			buf:  []byte{0x01, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x2a},
			want: of10.Header{Version: 1, Type: of10.TypeHello, Length: 8, XID: 42},
		},
		{
			name: "valid with payload",
			buf: []byte{
				0x01, 0x02, 0x00, 0x0c, 0xde, 0xad, 0xbe, 0xef,
				0x01, 0x02, 0x03, 0x04,
			},
			want: of10.Header{Version: 1, Type: of10.TypeEchoRequest, Length: 12, XID: 0xdeadbeef},
		},
		{
			name:    "short buffer",
			buf:     []byte{0x01, 0x00, 0x00},
			wantErr: of10.ErrShortBuffer,
		},
		{
			name:    "bad version",
			buf:     []byte{0x04, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00},
			wantErr: of10.ErrBadVersion,
		},
		{
			name:    "length below header size",
			buf:     []byte{0x01, 0x00, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00},
			wantErr: of10.ErrBadLength,
		},
		{
			name:    "length exceeds buffer",
			buf:     []byte{0x01, 0x00, 0x00, 0x10, 0x00, 0x00, 0x00, 0x00},
			wantErr: of10.ErrShortBuffer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h, err := of10.DecodeHeader(tt.buf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("DecodeHeader() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeHeader() error = %v", err)
			}
			if h != tt.want {
				t.Errorf("DecodeHeader() = %+v, want %+v", h, tt.want)
			}
		})
	}
}

func TestEncodeHelloLayout(t *testing.T) {
	t.Parallel()

	got := of10.EncodeHello(7)
	want := []byte{0x01, 0x00, 0x00, 0x08, 0x00, 0x00, 0x00, 0x07}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeHello() = %x, want %x", got, want)
	}
}

func TestEncodeEchoReplyEchoesPayload(t *testing.T) {
	t.Parallel()

	payload := []byte{0xaa, 0xbb, 0xcc}
	got := of10.EncodeEchoReply(9, payload)

	h, err := of10.DecodeHeader(got)
	if err != nil {
		t.Fatalf("DecodeHeader() error = %v", err)
	}
	if h.Type != of10.TypeEchoReply || h.XID != 9 || int(h.Length) != len(got) {
		t.Errorf("header = %+v", h)
	}
	if !bytes.Equal(got[8:], payload) {
		t.Errorf("payload = %x, want %x", got[8:], payload)
	}
}

func TestEncodeBarrierReplyLayout(t *testing.T) {
	t.Parallel()

	got := of10.EncodeBarrierReply(0x01020304)
	want := []byte{0x01, 0x13, 0x00, 0x08, 0x01, 0x02, 0x03, 0x04}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeBarrierReply() = %x, want %x", got, want)
	}
}

// -------------------------------------------------------------------------
// TestEncodeError — echo truncation and round trip
// -------------------------------------------------------------------------

func TestEncodeErrorEchoTruncation(t *testing.T) {
	t.Parallel()

	offending := make([]byte, 100)
	for i := range offending {
		offending[i] = byte(i)
	}

	msg := of10.EncodeError(5, of10.ErrTypeFlowModFailed, of10.FlowModFailedAllTablesFull, offending)

	e, err := of10.DecodeError(msg)
	if err != nil {
		t.Fatalf("DecodeError() error = %v", err)
	}
	if e.Type != of10.ErrTypeFlowModFailed {
		t.Errorf("error type = %d, want FLOW_MOD_FAILED", e.Type)
	}
	if e.Code != of10.FlowModFailedAllTablesFull {
		t.Errorf("error code = %d, want ALL_TABLES_FULL", e.Code)
	}
	if len(e.Data) != 64 {
		t.Errorf("echoed %d bytes, want 64", len(e.Data))
	}
	if !bytes.Equal(e.Data, offending[:64]) {
		t.Errorf("echoed data mismatch")
	}
}

func TestEncodeErrorShortEcho(t *testing.T) {
	t.Parallel()

	offending := []byte{0x01, 0x0e, 0x00, 0x08, 0x00, 0x00, 0x00, 0x01}
	msg := of10.EncodeError(1, of10.ErrTypeBadRequest, of10.BadRequestBadType, offending)

	e, err := of10.DecodeError(msg)
	if err != nil {
		t.Fatalf("DecodeError() error = %v", err)
	}
	if !bytes.Equal(e.Data, offending) {
		t.Errorf("echoed data = %x, want %x", e.Data, offending)
	}
}
