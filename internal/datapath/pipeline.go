package datapath

import (
	"log/slog"

	"github.com/dantte-lp/goswitch/internal/of10"
	"github.com/dantte-lp/goswitch/internal/packet"
)

// Frame is a received Ethernet frame plus its ingress port. Data must
// have at least packet.VLANTagSize bytes of capacity beyond Len so a
// VLAN insertion never reallocates. Defined here rather than in netio to
// keep the dependency pointing at the core.
type Frame struct {
	Data []byte
	Len  int
	Port uint8
}

// HandleFrame runs one frame through the data-plane pipeline under the
// loop mutex.
func (s *Switch) HandleFrame(f *Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handleFrame(f)
}

// handleFrame is the per-frame data-plane pipeline: fail-secure gate,
// table lookup, counter updates, and action application or PACKET_IN.
func (s *Switch) handleFrame(f *Frame) {
	if f.Len < packet.MinFrameSize || f.Len > maxFrameSize || int(f.Port) < 1 || int(f.Port) > MaxPorts {
		// Runt, oversized, or misported frames are a driver-boundary
		// problem; recover locally by dropping.
		if int(f.Port) >= 1 && int(f.Port) <= MaxPorts {
			s.portStats[f.Port-1].RxDropped++
		}
		return
	}

	s.portStats[f.Port-1].RxPackets++
	s.portStats[f.Port-1].RxBytes += uint64(f.Len)
	s.table.LookupCount++
	if s.metrics != nil {
		s.metrics.IncRxFrame(int(f.Port), f.Len)
		s.metrics.IncLookup()
	}

	if s.cfg.FailMode == FailSecure && !s.conn.Connected() {
		s.portStats[f.Port-1].RxDropped++
		return
	}

	view := packet.NewView(f.Data, &f.Len)

	if s.table.Len() == 0 {
		s.emitPacketIn(view.Bytes(), f.Len, f.Port, of10.ReasonNoMatch, s.swCfg.MissSendLen)
		return
	}

	idx := s.table.lookup(extractFields(view, uint16(f.Port)))
	if idx < 0 {
		s.emitPacketIn(view.Bytes(), f.Len, f.Port, of10.ReasonNoMatch, s.swCfg.MissSendLen)
		return
	}

	entry := s.table.Entry(idx)
	entry.Hits++
	entry.ByteCount += uint64(f.Len)
	entry.LastMatch = s.now()
	s.table.MatchedCount++
	if s.metrics != nil {
		s.metrics.IncMatched()
	}

	// A matched entry with no actions is an explicit drop rule.
	if len(entry.Actions) == 0 {
		return
	}

	s.applyActions(entry.Actions, view, f.Port)
}

// emitPacketIn sends a truncated copy of the frame to the controller.
// The message is assembled in the shared scratch buffer and dropped
// silently when the transport send window cannot take it, as permitted
// for asynchronous notifications.
func (s *Switch) emitPacketIn(frame []byte, totalLen int, inPort uint8, reason of10.PacketInReason, maxLen uint16) {
	if !s.conn.Connected() {
		return
	}

	sendLen := len(frame)
	if int(maxLen) < sendLen {
		sendLen = int(maxLen)
	}
	msgLen := of10.PacketInSize + sendLen
	if msgLen > len(s.scratch) {
		sendLen = len(s.scratch) - of10.PacketInSize
		msgLen = len(s.scratch)
	}

	if s.conn.SendWindow() < msgLen {
		if s.metrics != nil {
			s.metrics.IncPacketInDropped()
		}
		s.logger.Debug("packet-in dropped, send window exhausted",
			slog.Int("need", msgLen),
			slog.Int("window", s.conn.SendWindow()),
		)
		return
	}

	pi := of10.PacketIn{
		BufferID: of10.NoBuffer,
		TotalLen: uint16(totalLen),
		InPort:   uint16(inPort),
		Reason:   reason,
		Data:     frame[:sendLen],
	}
	n := of10.PutPacketIn(s.scratch[:], 0, &pi)

	// The transport owns the bytes once queued; copy out of the scratch
	// buffer so the next iteration can reuse it.
	msg := make([]byte, n)
	copy(msg, s.scratch[:n])
	s.sendAsync(msg)

	if s.metrics != nil {
		s.metrics.IncPacketIn(reason.String())
	}
}
