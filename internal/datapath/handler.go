package datapath

import (
	"errors"
	"log/slog"

	"github.com/dantte-lp/goswitch/internal/of10"
	"github.com/dantte-lp/goswitch/internal/packet"
)

// flowStatsChunk bounds the entries per FLOW stats reply fragment so a
// fragment fits the transport segment size.
const flowStatsChunk = 12

// HandleBatch processes one batch of controller messages: everything the
// transport had buffered when the loop woke up. Batch boundaries are what
// the barrier sequencer keys on — a BARRIER_REQUEST that is not the tail
// of its batch defers its reply until the batch drains.
func (s *Switch) HandleBatch(msgs [][]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, msg := range msgs {
		s.handleMessage(msg, i == len(msgs)-1)
	}
	s.finishBatch()
}

// handleMessage dispatches a single controller message on its type.
func (s *Switch) handleMessage(buf []byte, lastInBatch bool) {
	h, err := of10.DecodeHeader(buf)
	if err != nil {
		s.rejectUndecodable(buf, err)
		return
	}
	msg := buf[:h.Length]

	if s.metrics != nil {
		s.metrics.IncControllerMsg(h.Type.String())
	}

	switch h.Type {
	case of10.TypeHello:
		// The handshake HELLO. DecodeHeader above has already rejected
		// any version other than 0x01.

	case of10.TypeEchoRequest:
		s.sendReply(of10.EncodeEchoReply(h.XID, msg[of10.HeaderSize:]))

	case of10.TypeEchoReply:
		// Answer to our own keepalive; nothing to do.

	case of10.TypeFeaturesRequest:
		s.sendReply(s.featuresReply(h.XID))

	case of10.TypeGetConfigRequest:
		s.sendReply(of10.EncodeGetConfigReply(h.XID, s.swCfg))

	case of10.TypeSetConfig:
		s.handleSetConfig(msg, h.XID)

	case of10.TypeStatsRequest:
		s.handleStatsRequest(msg, h.XID)

	case of10.TypePacketOut:
		s.handlePacketOut(msg, h.XID)

	case of10.TypeFlowMod:
		s.handleFlowMod(msg, h.XID)

	case of10.TypeBarrierRequest:
		s.handleBarrierRequest(h.XID, lastInBatch)

	case of10.TypeVendor:
		s.sendReply(of10.EncodeError(h.XID, of10.ErrTypeBadRequest, of10.BadRequestBadVendor, msg))

	default:
		s.logger.Warn("unhandled controller message",
			slog.String("type", h.Type.String()),
			slog.Int("len", int(h.Length)),
		)
		s.sendReply(of10.EncodeError(h.XID, of10.ErrTypeBadRequest, of10.BadRequestBadType, msg))
	}
}

// rejectUndecodable answers a message whose header failed validation.
func (s *Switch) rejectUndecodable(buf []byte, err error) {
	// Best-effort xid: present whenever at least a full header arrived.
	var xid uint32
	if len(buf) >= of10.HeaderSize {
		xid = uint32(buf[4])<<24 | uint32(buf[5])<<16 | uint32(buf[6])<<8 | uint32(buf[7])
	}

	errType := of10.ErrTypeBadRequest
	code := of10.BadRequestBadLen
	if errors.Is(err, of10.ErrBadVersion) {
		errType, code = of10.ErrTypeBadRequest, of10.BadRequestBadVersion
		// A mismatched HELLO means the version negotiation itself failed.
		if len(buf) >= 2 && of10.MsgType(buf[1]) == of10.TypeHello {
			errType, code = of10.ErrTypeHelloFailed, of10.HelloFailedIncompatible
		}
	}
	s.logger.Warn("undecodable controller message",
		slog.Int("len", len(buf)),
		slog.String("error", err.Error()),
	)
	s.sendReply(of10.EncodeError(xid, errType, code, buf))
}

// featuresReply builds the OFPT_FEATURES_REPLY for this datapath.
func (s *Switch) featuresReply(xid uint32) []byte {
	fr := of10.FeaturesReply{
		DatapathID:   s.cfg.DatapathID(),
		NBuffers:     0,
		NTables:      1,
		Capabilities: of10.CapFlowStats | of10.CapTableStats | of10.CapPortStats,
		Actions:      of10.SupportedActionBitmap,
	}
	for i := 0; i < MaxPorts; i++ {
		if s.cfg.PortEnabled[i] {
			fr.Ports = append(fr.Ports, s.phyPort(i))
		}
	}
	return of10.EncodeFeaturesReply(xid, &fr)
}

// handleSetConfig stores the controller's flags and miss_send_len.
func (s *Switch) handleSetConfig(msg []byte, xid uint32) {
	sc, err := of10.DecodeSwitchConfig(msg)
	if err != nil {
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeBadRequest, of10.BadRequestBadLen, msg))
		return
	}
	s.swCfg = sc
	s.logger.Info("switch config updated",
		slog.Int("flags", int(sc.Flags)),
		slog.Int("miss_send_len", int(sc.MissSendLen)),
	)
}

// handleStatsRequest sub-dispatches OFPT_STATS_REQUEST on the stats type.
func (s *Switch) handleStatsRequest(msg []byte, xid uint32) {
	sr, err := of10.DecodeStatsRequest(msg)
	if err != nil {
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeBadRequest, of10.BadRequestBadLen, msg))
		return
	}

	switch sr.Type {
	case of10.StatsDesc:
		s.sendReply(of10.EncodeDescStatsReply(xid, &s.cfg.Desc))

	case of10.StatsFlow:
		s.flowStatsReply(msg, xid, sr.Body)

	case of10.StatsTable:
		ts := of10.TableStats{
			TableID:      0,
			Name:         "flows",
			Wildcards:    of10.WildcardAll,
			MaxEntries:   MaxFlows,
			ActiveCount:  uint32(s.table.Len()),
			LookupCount:  s.table.LookupCount,
			MatchedCount: s.table.MatchedCount,
		}
		s.sendReply(of10.EncodeTableStatsReply(xid, &ts))

	case of10.StatsPort:
		s.portStatsReply(msg, xid, sr.Body)

	default:
		// AGGREGATE, QUEUE, VENDOR, and anything newer.
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeBadRequest, of10.BadRequestBadStat, msg))
	}
}

// flowStatsReply answers a FLOW stats request, filtered by the request
// match and chunked so each fragment stays within a transport segment.
func (s *Switch) flowStatsReply(msg []byte, xid uint32, body []byte) {
	fsr, err := of10.DecodeFlowStatsRequest(body)
	if err != nil {
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeBadRequest, of10.BadRequestBadLen, msg))
		return
	}

	var selected []of10.FlowStats
	for i := 0; i < s.table.Len(); i++ {
		e := s.table.Entry(i)
		if !fsr.Match.Covers(&e.Match) {
			continue
		}
		sec, nsec := s.duration(e.InstallTime)
		selected = append(selected, of10.FlowStats{
			TableID:      0,
			Match:        e.Match,
			DurationSec:  sec,
			DurationNsec: nsec,
			Priority:     e.Priority,
			IdleTimeout:  e.IdleTimeout,
			HardTimeout:  e.HardTimeout,
			Cookie:       e.Cookie,
			PacketCount:  e.Hits,
			ByteCount:    e.ByteCount,
			Actions:      e.Actions,
		})
	}

	if len(selected) == 0 {
		s.sendReply(of10.EncodeFlowStatsReply(xid, nil, false))
		return
	}
	for off := 0; off < len(selected); off += flowStatsChunk {
		end := off + flowStatsChunk
		if end > len(selected) {
			end = len(selected)
		}
		s.sendReply(of10.EncodeFlowStatsReply(xid, selected[off:end], end < len(selected)))
	}
}

// portStatsReply answers a PORT stats request for one port or all
// enabled ports.
func (s *Switch) portStatsReply(msg []byte, xid uint32, body []byte) {
	portNo, err := of10.DecodePortStatsRequest(body)
	if err != nil {
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeBadRequest, of10.BadRequestBadLen, msg))
		return
	}

	var ports []of10.PortStats
	if of10.PortNo(portNo) == of10.PortNone {
		for i := 0; i < MaxPorts; i++ {
			if s.cfg.PortEnabled[i] {
				ports = append(ports, s.portStatRecord(i))
			}
		}
	} else if portNo >= 1 && int(portNo) <= MaxPorts {
		ports = append(ports, s.portStatRecord(int(portNo)-1))
	}
	s.sendReply(of10.EncodePortStatsReply(xid, ports))
}

// portStatRecord copies the counters of port index idx into wire form.
func (s *Switch) portStatRecord(idx int) of10.PortStats {
	ps := s.portStats[idx]
	ps.PortNo = uint16(idx + 1)
	return ps
}

// handlePacketOut executes a controller-supplied action list against the
// embedded frame. With n_buffers = 0 there is never a buffered frame to
// resolve, so an empty payload is a no-op.
func (s *Switch) handlePacketOut(msg []byte, xid uint32) {
	po, err := of10.DecodePacketOut(msg)
	if err != nil {
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeBadRequest, of10.BadRequestBadLen, msg))
		return
	}

	actions, err := of10.ParseActions(po.RawActions)
	if err != nil {
		s.rejectBadAction(msg, xid, err)
		return
	}
	if len(po.Data) < packet.MinFrameSize {
		return
	}

	// Copy into a headroom-capable buffer: the action list may insert a
	// VLAN tag.
	buf := make([]byte, len(po.Data), len(po.Data)+packet.VLANTagSize)
	copy(buf, po.Data)
	length := len(buf)
	view := packet.NewView(buf, &length)

	inPort := uint8(0)
	if po.InPort >= 1 && po.InPort <= MaxPorts {
		inPort = uint8(po.InPort)
	}
	s.applyActions(actions, view, inPort)
}

// rejectBadAction translates a ParseActions failure into the
// controller-visible BAD_ACTION error.
func (s *Switch) rejectBadAction(msg []byte, xid uint32, err error) {
	var bad *of10.BadActionError
	code := of10.BadActionBadType
	if errors.As(err, &bad) {
		code = bad.Code
	}
	s.logger.Warn("action list rejected",
		slog.String("error", err.Error()),
	)
	s.sendReply(of10.EncodeError(xid, of10.ErrTypeBadAction, code, msg))
}
