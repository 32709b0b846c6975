// Package of10 implements the OpenFlow 1.0 wire codec.
//
// The codec is pure: it converts between Go values and the big-endian wire
// format defined by the OpenFlow 1.0.0 specification and performs no I/O.
// All exported Decode functions validate lengths before touching the buffer
// and return sentinel errors that callers translate into controller-visible
// OFPT_ERROR messages or local drops. Internal state is host byte order;
// every byte-order conversion lives in this package.
package of10

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// -------------------------------------------------------------------------
// Codec Errors
// -------------------------------------------------------------------------

// Sentinel errors for message decoding failures.
var (
	// ErrShortBuffer indicates the buffer is smaller than the structure
	// being decoded, or smaller than the header's length field claims.
	ErrShortBuffer = errors.New("buffer too short")

	// ErrBadVersion indicates the version byte is not 0x01.
	ErrBadVersion = errors.New("bad OpenFlow version")

	// ErrBadLength indicates a length field that is inconsistent with the
	// structure it describes (below minimum, not a valid multiple, or
	// overrunning the enclosing message).
	ErrBadLength = errors.New("bad length field")

	// ErrBadType indicates a type field with no known decoding.
	ErrBadType = errors.New("bad type field")
)

// -------------------------------------------------------------------------
// Header — ofp_header
// -------------------------------------------------------------------------

// Header is the common OpenFlow message header carried by every message.
//
// Wire format (8 bytes):
//
//	Byte 0:    Version
//	Byte 1:    Type
//	Bytes 2-3: Length (big-endian, total message length including header)
//	Bytes 4-7: XID (big-endian, transaction id echoed in replies)
type Header struct {
	Version uint8
	Type    MsgType
	Length  uint16
	XID     uint32
}

// PutHeader writes an OpenFlow header into buf. The buffer must be at
// least HeaderSize bytes; callers have sized it already.
func PutHeader(buf []byte, t MsgType, length int, xid uint32) {
	buf[0] = Version
	buf[1] = uint8(t)
	binary.BigEndian.PutUint16(buf[2:4], uint16(length))
	binary.BigEndian.PutUint32(buf[4:8], xid)
}

// DecodeHeader decodes and validates the common header at the start of buf.
//
// Validation: at least HeaderSize bytes available, version byte 0x01,
// length field at least HeaderSize, and length not exceeding the buffer.
// The caller dispatches on Header.Type only after DecodeHeader succeeds,
// so every message handler can rely on buf[:h.Length] being present.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, fmt.Errorf("decode header: %d bytes: %w", len(buf), ErrShortBuffer)
	}

	h.Version = buf[0]
	h.Type = MsgType(buf[1])
	h.Length = binary.BigEndian.Uint16(buf[2:4])
	h.XID = binary.BigEndian.Uint32(buf[4:8])

	if h.Version != Version {
		return h, fmt.Errorf("decode header: version 0x%02x: %w", h.Version, ErrBadVersion)
	}
	if h.Length < HeaderSize {
		return h, fmt.Errorf("decode header: length %d below header size: %w", h.Length, ErrBadLength)
	}
	if int(h.Length) > len(buf) {
		return h, fmt.Errorf("decode header: length %d exceeds buffer %d: %w",
			h.Length, len(buf), ErrShortBuffer)
	}

	return h, nil
}

// EncodeHello builds an OFPT_HELLO message. A 1.0 HELLO is a bare header.
func EncodeHello(xid uint32) []byte {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, TypeHello, HeaderSize, xid)
	return buf
}

// EncodeEchoReply builds an OFPT_ECHO_REPLY echoing the request's xid and
// arbitrary payload, as required for the controller keepalive exchange.
func EncodeEchoReply(xid uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	PutHeader(buf, TypeEchoReply, len(buf), xid)
	copy(buf[HeaderSize:], payload)
	return buf
}

// EncodeBarrierReply builds an OFPT_BARRIER_REPLY for the given xid.
func EncodeBarrierReply(xid uint32) []byte {
	buf := make([]byte, HeaderSize)
	PutHeader(buf, TypeBarrierReply, HeaderSize, xid)
	return buf
}

// -------------------------------------------------------------------------
// Error Message — ofp_error_msg
// -------------------------------------------------------------------------

// errorEchoLimit caps how much of the offending message an ERROR echoes
// back to the controller.
const errorEchoLimit = 64

// EncodeError builds an OFPT_ERROR message of the given type and code,
// echoing up to 64 bytes of the offending message (which begins with its
// own header, so the controller can correlate).
func EncodeError(xid uint32, errType ErrType, code uint16, offending []byte) []byte {
	echo := offending
	if len(echo) > errorEchoLimit {
		echo = echo[:errorEchoLimit]
	}

	buf := make([]byte, HeaderSize+4+len(echo))
	PutHeader(buf, TypeError, len(buf), xid)
	binary.BigEndian.PutUint16(buf[8:10], uint16(errType))
	binary.BigEndian.PutUint16(buf[10:12], code)
	copy(buf[12:], echo)
	return buf
}

// ErrorMsg is a decoded OFPT_ERROR, used by tests and the admin surface.
type ErrorMsg struct {
	XID  uint32
	Type ErrType
	Code uint16
	Data []byte
}

// DecodeError decodes an OFPT_ERROR message body.
func DecodeError(buf []byte) (ErrorMsg, error) {
	var e ErrorMsg
	h, err := DecodeHeader(buf)
	if err != nil {
		return e, err
	}
	if h.Length < HeaderSize+4 {
		return e, fmt.Errorf("decode error msg: length %d: %w", h.Length, ErrBadLength)
	}

	e.XID = h.XID
	e.Type = ErrType(binary.BigEndian.Uint16(buf[8:10]))
	e.Code = binary.BigEndian.Uint16(buf[10:12])
	e.Data = buf[12:h.Length]
	return e, nil
}
