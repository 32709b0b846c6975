// Package transport maintains the controller channel: a single reliable,
// ordered TCP session to the OpenFlow controller.
//
// The client owns dialing, reconnection with backoff, message framing by
// the OpenFlow header length field, and the send-window accounting the
// datapath consults before emitting a PACKET_IN. Messages that arrive in
// one socket read are delivered together as a batch; batch boundaries
// drive the barrier sequencer.
package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for the dial/retry loop and buffering.
const (
	// DefaultSendBuf is the send-window size in bytes. A PACKET_IN is
	// only emitted while at least its encoded size fits.
	DefaultSendBuf = 16 * 1024

	// defaultDialTimeout bounds a single connection attempt.
	defaultDialTimeout = 5 * time.Second

	// retryMin/retryMax bound the reconnect backoff.
	retryMin = 500 * time.Millisecond
	retryMax = 15 * time.Second

	// readBufSize is the socket read chunk size.
	readBufSize = 4096

	// maxMessageSize bounds a single controller message; the OpenFlow
	// length field is 16 bits, so this is its ceiling.
	maxMessageSize = 0xffff

	// sendQueueLen is the outbound message queue depth.
	sendQueueLen = 256
)

// Sentinel errors for the controller channel.
var (
	// ErrNotConnected indicates a send while no session is established.
	ErrNotConnected = errors.New("controller not connected")

	// ErrSendQueueFull indicates the outbound queue cannot take another
	// message.
	ErrSendQueueFull = errors.New("controller send queue full")
)

// Config carries the controller channel settings.
type Config struct {
	// Addr is the controller address (host:port).
	Addr string

	// DialTimeout bounds a single connection attempt. Zero selects the
	// default.
	DialTimeout time.Duration

	// SendBuf is the send-window size in bytes. Zero selects the default.
	SendBuf int
}

// Client is the controller-channel implementation handed to the datapath
// as its ControllerConn.
type Client struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn

	connected atomic.Bool
	pending   atomic.Int64

	sendq    chan []byte
	batches  chan [][]byte
	sessions chan bool
}

// NewClient creates a controller channel client for the given address.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.SendBuf == 0 {
		cfg.SendBuf = DefaultSendBuf
	}
	return &Client{
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "transport")),
		sendq:    make(chan []byte, sendQueueLen),
		batches:  make(chan [][]byte, 16),
		sessions: make(chan bool, 4),
	}
}

// Batches delivers controller message batches: every complete message
// framed out of one socket read, in arrival order.
func (c *Client) Batches() <-chan [][]byte { return c.batches }

// Sessions delivers controller session transitions: true on connect,
// false on loss.
func (c *Client) Sessions() <-chan bool { return c.sessions }

// Connected reports whether a controller session is established.
func (c *Client) Connected() bool { return c.connected.Load() }

// SendWindow returns the bytes the channel currently accepts without
// blocking: the configured buffer minus what is queued but unsent.
func (c *Client) SendWindow() int {
	w := c.cfg.SendBuf - int(c.pending.Load())
	if w < 0 {
		return 0
	}
	return w
}

// Send queues an encoded message for reliable in-order delivery. The
// caller must not reuse b after Send returns.
func (c *Client) Send(b []byte) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	select {
	case c.sendq <- b:
		c.pending.Add(int64(len(b)))
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Run drives the connect/read/write loops until the context is canceled.
// Session transitions and message batches flow out on the channels; on
// return both are closed.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.batches)
	defer close(c.sessions)

	backoff := retryMin
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		conn, err := c.dial(ctx)
		if err != nil {
			c.logger.Warn("controller dial failed",
				slog.String("addr", c.cfg.Addr),
				slog.String("error", err.Error()),
				slog.Duration("retry_in", backoff),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > retryMax {
				backoff = retryMax
			}
			continue
		}
		backoff = retryMin

		c.session(ctx, conn)
		if ctx.Err() != nil {
			return nil
		}
	}
}

// dial opens one TCP connection to the controller.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial controller %s: %w", c.cfg.Addr, err)
	}
	return conn, nil
}

// session runs one established controller session: a writer goroutine
// draining the send queue and the framing read loop on the caller's
// goroutine. Returns when either side fails or the context is canceled.
func (c *Client) session(ctx context.Context, conn net.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	c.logger.Info("controller connected",
		slog.String("addr", c.cfg.Addr),
	)
	c.sessions <- true

	sessionCtx, cancel := context.WithCancel(ctx)

	// Unblock the read loop when the session or the daemon winds down;
	// closing the socket is the only way to interrupt a blocking Read.
	stopClose := context.AfterFunc(sessionCtx, func() { _ = conn.Close() })
	defer stopClose()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(sessionCtx, conn)
	}()

	c.readLoop(conn)

	c.connected.Store(false)
	cancel()
	_ = conn.Close()
	wg.Wait()
	c.drainSendQueue()

	c.logger.Warn("controller disconnected",
		slog.String("addr", c.cfg.Addr),
	)
	if ctx.Err() == nil {
		c.sessions <- false
	}
}

// writeLoop drains the send queue onto the socket in order.
func (c *Client) writeLoop(ctx context.Context, conn net.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-c.sendq:
			c.pending.Add(-int64(len(b)))
			if _, err := conn.Write(b); err != nil {
				c.logger.Warn("controller write failed",
					slog.String("error", err.Error()),
				)
				_ = conn.Close()
				return
			}
		}
	}
}

// drainSendQueue discards messages queued for a session that no longer
// exists; a reconnecting controller starts from a clean handshake.
func (c *Client) drainSendQueue() {
	for {
		select {
		case b := <-c.sendq:
			c.pending.Add(-int64(len(b)))
		default:
			return
		}
	}
}

// readLoop reassembles OpenFlow messages from the byte stream. All
// complete messages framed out of one socket read are delivered as one
// batch; a partial tail stays buffered for the next read.
func (c *Client) readLoop(conn net.Conn) {
	var stream []byte
	chunk := make([]byte, readBufSize)

	for {
		n, err := conn.Read(chunk)
		if n > 0 {
			stream = append(stream, chunk[:n]...)
			batch, rest, ferr := frameMessages(stream)
			if ferr != nil {
				c.logger.Error("controller stream corrupt",
					slog.String("error", ferr.Error()),
				)
				return
			}
			stream = rest
			if len(batch) > 0 {
				c.batches <- batch
			}
		}
		if err != nil {
			return
		}
	}
}

// frameMessages splits the buffered stream into complete messages using
// the 16-bit length field at header offset 2. Returns the completed
// batch and the unconsumed tail. A length below the header size means
// the stream is unrecoverable.
func frameMessages(stream []byte) ([][]byte, []byte, error) {
	var batch [][]byte
	for len(stream) >= 4 {
		length := int(binary.BigEndian.Uint16(stream[2:4]))
		if length < 8 || length > maxMessageSize {
			return batch, nil, fmt.Errorf("message length %d out of range", length)
		}
		if len(stream) < length {
			break
		}
		msg := make([]byte, length)
		copy(msg, stream[:length])
		batch = append(batch, msg)
		stream = stream[length:]
	}

	// Compact the tail so the backing array does not pin old batches.
	rest := make([]byte, len(stream))
	copy(rest, stream)
	return batch, rest, nil
}
