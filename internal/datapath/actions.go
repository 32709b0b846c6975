package datapath

import (
	"log/slog"

	"github.com/dantte-lp/goswitch/internal/of10"
	"github.com/dantte-lp/goswitch/internal/packet"
)

// applyActions executes a typed action list against the frame, strictly
// in list order. Output actions transmit the frame as it stands at that
// point in the list, so a rewrite after an output does not affect what
// the earlier port saw. Unknown action variants cannot occur here: the
// install path already rejected them.
func (s *Switch) applyActions(actions []of10.Action, view packet.View, inPort uint8) {
	for _, act := range actions {
		switch a := act.(type) {
		case of10.ActionOutput:
			s.outputAction(a, view, inPort)

		case of10.ActionSetDLSrc:
			view.SetMAC(packet.Src, a.Addr)

		case of10.ActionSetDLDst:
			view.SetMAC(packet.Dst, a.Addr)

		case of10.ActionSetNWSrc:
			view.SetIPv4(packet.SrcPort, a.Addr)
			view.RecomputeChecksums()

		case of10.ActionSetNWDst:
			view.SetIPv4(packet.DstPort, a.Addr)
			view.RecomputeChecksums()

		case of10.ActionSetNWTOS:
			view.SetTOS(a.TOS)
			view.RecomputeChecksums()

		case of10.ActionSetVLANVID:
			if err := view.SetVLANVID(a.VID); err != nil {
				s.logger.Warn("vlan insert failed",
					slog.Int("len", view.Len()),
					slog.String("error", err.Error()),
				)
			}

		case of10.ActionSetVLANPCP:
			if err := view.SetVLANPCP(a.PCP); err != nil {
				s.logger.Warn("vlan insert failed",
					slog.Int("len", view.Len()),
					slog.String("error", err.Error()),
				)
			}

		case of10.ActionStripVLAN:
			view.StripVLAN()

		case of10.ActionSetTPSrc:
			view.SetL4Port(packet.SrcPort, a.Port)
			view.RecomputeChecksums()

		case of10.ActionSetTPDst:
			view.SetL4Port(packet.DstPort, a.Port)
			view.RecomputeChecksums()
		}
	}
}

// outputAction resolves one OUTPUT action into a driver write, a
// controller copy, or both bitmap expansions.
func (s *Switch) outputAction(a of10.ActionOutput, view packet.View, inPort uint8) {
	switch {
	case a.Port == of10.PortController:
		s.emitPacketIn(view.Bytes(), view.Len(), inPort, of10.ReasonAction, a.MaxLen)

	case a.Port == of10.PortInPort:
		s.writeFrame(view.Bytes(), portBit(inPort))

	case a.Port == of10.PortAll || a.Port == of10.PortFlood:
		// All enabled OpenFlow ports except ingress.
		mask := s.cfg.enabledPortMask() &^ portBit(inPort)
		if mask != 0 {
			s.writeFrame(view.Bytes(), mask)
		}

	case a.Port >= 1 && a.Port <= MaxPorts:
		s.writeFrame(view.Bytes(), portBit(uint8(a.Port)))

	default:
		// Reserved ports this switch does not implement (TABLE, LOCAL)
		// and out-of-range physical ports drop silently at execution.
		s.logger.Debug("output to unsupported port",
			slog.Int("port", int(a.Port)),
		)
	}
}

// portBit converts a 1-based physical port number to its bitmap bit.
func portBit(port uint8) uint8 {
	if port < 1 || port > MaxPorts {
		return 0
	}
	return 1 << (port - 1)
}

// writeFrame hands a frame to the egress driver and accounts the
// transmission on every port in the bitmap.
func (s *Switch) writeFrame(frame []byte, portMask uint8) {
	if portMask == 0 {
		return
	}
	if err := s.driver.WriteFrame(frame, portMask); err != nil {
		s.logger.Warn("egress write failed",
			slog.Int("ports", int(portMask)),
			slog.String("error", err.Error()),
		)
		for i := 0; i < MaxPorts; i++ {
			if portMask&(1<<i) != 0 {
				s.portStats[i].TxDropped++
			}
		}
		return
	}

	for i := 0; i < MaxPorts; i++ {
		if portMask&(1<<i) != 0 {
			s.portStats[i].TxPackets++
			s.portStats[i].TxBytes += uint64(len(frame))
			if s.metrics != nil {
				s.metrics.IncTxFrame(i+1, len(frame))
			}
		}
	}
}
