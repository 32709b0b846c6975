// Package datapath implements the OpenFlow 1.0 switch core: the flow
// table, the action engine, the data-plane ingress pipeline, the
// controller protocol handler, and the barrier sequencer.
//
// The core is a single Switch value driven by one event-loop goroutine
// (Run) that owns all mutable state. Frames and controller message
// batches arrive on channels; every side effect toward the controller is
// serialized through the barrier sequencer so that reply ordering holds
// across a barrier boundary. Admin and metrics readers take snapshots
// under a mutex the loop holds while it processes an event, preserving
// the per-entry (not per-table) consistency the stats protocol promises.
package datapath

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dantte-lp/goswitch/internal/of10"
	swmetrics "github.com/dantte-lp/goswitch/internal/metrics"
)

// MaxPorts is the number of physical switch ports. Port bitmaps are
// uint8 with bit i meaning egress on physical port i+1.
const MaxPorts = 4

// sharedBufSize is the scratch buffer used for PACKET_IN and stats reply
// assembly. One outstanding use per event-loop iteration.
const sharedBufSize = 2048

// maxFrameSize bounds the frames the data plane accepts; ingress buffers
// carry four bytes of headroom beyond this for a VLAN insertion.
const maxFrameSize = 1518

// FailMode selects the data-plane behavior while no controller session
// is established.
type FailMode uint8

const (
	// FailStandalone keeps forwarding on the installed table without a
	// controller.
	FailStandalone FailMode = iota

	// FailSecure drops every data-plane frame while the controller is
	// disconnected.
	FailSecure
)

// String returns the configuration name of the fail mode.
func (m FailMode) String() string {
	if m == FailSecure {
		return "secure"
	}
	return "standalone"
}

// FrameWriter is the egress side of the Ethernet driver boundary. Bit i
// of the port bitmap requests transmission on physical port i+1.
type FrameWriter interface {
	WriteFrame(frame []byte, portBitmap uint8) error
}

// ControllerConn is the transport side of the controller channel: a
// reliable ordered byte stream plus the send-window accounting that
// gates PACKET_IN emission.
type ControllerConn interface {
	// Send queues an encoded message for reliable delivery.
	Send(b []byte) error

	// SendWindow returns the bytes currently accepted without blocking.
	SendWindow() int

	// Connected reports whether a controller session is established.
	Connected() bool
}

// Config carries the switch identity and port provisioning.
type Config struct {
	// MAC is the switch MAC address; the datapath id is its low 48 bits.
	MAC [6]byte

	// PortEnabled marks which physical ports belong to the OpenFlow
	// datapath.
	PortEnabled [MaxPorts]bool

	// FailMode gates the data plane while disconnected.
	FailMode FailMode

	// Desc is the identity reported in DESC stats replies.
	Desc of10.DescStats
}

// DatapathID derives the 64-bit datapath id from the MAC address.
func (c *Config) DatapathID() uint64 {
	var id uint64
	for _, b := range c.MAC {
		id = id<<8 | uint64(b)
	}
	return id
}

// enabledPortMask returns the bitmap of OF-enabled physical ports.
func (c *Config) enabledPortMask() uint8 {
	var mask uint8
	for i, on := range c.PortEnabled {
		if on {
			mask |= 1 << i
		}
	}
	return mask
}

// Switch is the OpenFlow 1.0 switch core. Frames, controller batches and
// session transitions are handled on the Run goroutine; link transitions
// arrive through SetLinkState from the link forwarder. mu serializes all
// of these with the snapshot readers.
type Switch struct {
	mu sync.Mutex

	logger *slog.Logger
	cfg    Config

	table     FlowTable
	portStats [MaxPorts]of10.PortStats
	linkUp    [MaxPorts]bool

	// swCfg holds the controller-settable flags and miss_send_len.
	swCfg of10.SwitchConfig

	barrier barrierState

	conn    ControllerConn
	driver  FrameWriter
	metrics *swmetrics.Collector

	clock func() time.Time
	start time.Time

	// scratch is the shared assembly buffer for PACKET_IN and stats
	// replies. Only the event-loop goroutine touches it, one use per
	// iteration.
	scratch [sharedBufSize]byte
}

// Option configures optional Switch collaborators.
type Option func(*Switch)

// WithMetrics wires a Prometheus collector into the switch.
func WithMetrics(c *swmetrics.Collector) Option {
	return func(s *Switch) { s.metrics = c }
}

// WithClock overrides the time source. Tests use a fixed clock so entry
// timestamps and durations are deterministic.
func WithClock(clock func() time.Time) Option {
	return func(s *Switch) { s.clock = clock }
}

// New creates a Switch bound to the given driver and controller channel.
func New(cfg Config, driver FrameWriter, conn ControllerConn, logger *slog.Logger, opts ...Option) *Switch {
	s := &Switch{
		logger: logger.With(slog.String("component", "datapath")),
		cfg:    cfg,
		driver: driver,
		conn:   conn,
		clock:  time.Now,
		swCfg: of10.SwitchConfig{
			Flags:       of10.ConfigFragNormal,
			MissSendLen: of10.DefaultMissSendLen,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.clock()
	return s
}

// SetLinkState records a physical link transition and notifies the
// controller with a PORT_STATUS when a session is up. Called from the
// goroutine that forwards the driver's link events, outside Run; it takes
// mu like the event-loop handlers do.
func (s *Switch) SetLinkState(port uint8, up bool) {
	if int(port) < 1 || int(port) > MaxPorts {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := int(port) - 1
	if s.linkUp[idx] == up {
		return
	}
	s.linkUp[idx] = up
	s.logger.Info("link state changed",
		slog.Int("port", int(port)),
		slog.Bool("up", up),
	)

	if s.conn.Connected() && s.cfg.PortEnabled[idx] {
		pp := s.phyPort(idx)
		s.sendAsync(of10.EncodePortStatus(of10.PortReasonModify, &pp))
	}
}

// phyPort builds the ofp_phy_port description of an enabled port.
func (s *Switch) phyPort(idx int) of10.PhyPort {
	state := of10.PortStateSTPListen
	if !s.linkUp[idx] {
		state = of10.PortStateLinkDown
	}

	// Per-port MAC: switch MAC with the port number mixed into the last
	// octet, matching what the hardware presents on its taps.
	hw := s.cfg.MAC
	hw[5] ^= uint8(idx + 1)

	return of10.PhyPort{
		PortNo: uint16(idx + 1),
		HWAddr: hw,
		Name:   portName(idx),
		State:  state,
		Curr:   of10.PortFeat100MbFD | of10.PortFeatCopper,
	}
}

// portName returns the interface-style name of physical port idx.
func portName(idx int) string {
	return fmt.Sprintf("eth%d", idx)
}

// now returns the current time from the injected clock.
func (s *Switch) now() time.Time { return s.clock() }

// duration splits the time since a reference point into the wire's
// second/nanosecond fields.
func (s *Switch) duration(since time.Time) (uint32, uint32) {
	d := s.now().Sub(since)
	if d < 0 {
		d = 0
	}
	return uint32(d / time.Second), uint32(d % time.Second)
}
