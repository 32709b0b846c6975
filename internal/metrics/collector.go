// Package swmetrics exposes the switch's Prometheus metrics.
package swmetrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "goswitch"
	subsystem = "of10"
)

// Label names for switch metrics.
const (
	labelPort    = "port"
	labelReason  = "reason"
	labelMsgType = "type"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Switch Metrics
// -------------------------------------------------------------------------

// Collector holds all switch Prometheus metrics.
//
// The gauges mirror the OpenFlow table/port counters so that fleet
// monitoring does not need a controller session:
//   - Frame counters track per-port RX/TX volume.
//   - Lookup/matched counters mirror the table-wide OpenFlow counters.
//   - PacketIn counters record controller notifications and drops.
//   - ControllerMessages records per-type protocol traffic for alerting
//     on misbehaving controllers.
type Collector struct {
	// FlowEntries tracks the current flow table occupancy.
	FlowEntries prometheus.Gauge

	// ControllerConnected is 1 while a controller session is established.
	ControllerConnected prometheus.Gauge

	// Lookups counts data-plane table lookups.
	Lookups prometheus.Counter

	// Matches counts lookups that hit a flow entry. Never exceeds Lookups.
	Matches prometheus.Counter

	// RxFrames / RxBytes / TxFrames / TxBytes count per-port traffic.
	RxFrames *prometheus.CounterVec
	RxBytes  *prometheus.CounterVec
	TxFrames *prometheus.CounterVec
	TxBytes  *prometheus.CounterVec

	// PacketIns counts PACKET_IN notifications by reason.
	PacketIns *prometheus.CounterVec

	// PacketInDrops counts PACKET_IN messages dropped because the
	// transport send window was exhausted.
	PacketInDrops prometheus.Counter

	// ControllerMessages counts received controller messages by type.
	ControllerMessages *prometheus.CounterVec
}

// NewCollector creates a Collector with all switch metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics carry the "goswitch_of10_" prefix (namespace_subsystem) to
// avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.FlowEntries,
		c.ControllerConnected,
		c.Lookups,
		c.Matches,
		c.RxFrames,
		c.RxBytes,
		c.TxFrames,
		c.TxBytes,
		c.PacketIns,
		c.PacketInDrops,
		c.ControllerMessages,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	portLabels := []string{labelPort}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		})
	}
	counterVec := func(name, help string, labels []string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: subsystem, Name: name, Help: help,
		}, labels)
	}

	return &Collector{
		FlowEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "flow_entries",
			Help: "Number of active flow table entries.",
		}),
		ControllerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: subsystem,
			Name: "controller_connected",
			Help: "1 while an OpenFlow controller session is established.",
		}),
		Lookups: counter("table_lookups_total",
			"Total data-plane flow table lookups."),
		Matches: counter("table_matches_total",
			"Total data-plane lookups that matched a flow entry."),
		RxFrames: counterVec("rx_frames_total",
			"Total frames received per port.", portLabels),
		RxBytes: counterVec("rx_bytes_total",
			"Total bytes received per port.", portLabels),
		TxFrames: counterVec("tx_frames_total",
			"Total frames transmitted per port.", portLabels),
		TxBytes: counterVec("tx_bytes_total",
			"Total bytes transmitted per port.", portLabels),
		PacketIns: counterVec("packet_in_total",
			"Total PACKET_IN notifications sent to the controller.",
			[]string{labelReason}),
		PacketInDrops: counter("packet_in_dropped_total",
			"Total PACKET_IN notifications dropped on send-window exhaustion."),
		ControllerMessages: counterVec("controller_messages_total",
			"Total controller messages received by message type.",
			[]string{labelMsgType}),
	}
}

// -------------------------------------------------------------------------
// Data Plane
// -------------------------------------------------------------------------

// IncRxFrame accounts one received frame on the given physical port.
func (c *Collector) IncRxFrame(port, bytes int) {
	l := strconv.Itoa(port)
	c.RxFrames.WithLabelValues(l).Inc()
	c.RxBytes.WithLabelValues(l).Add(float64(bytes))
}

// IncTxFrame accounts one transmitted frame on the given physical port.
func (c *Collector) IncTxFrame(port, bytes int) {
	l := strconv.Itoa(port)
	c.TxFrames.WithLabelValues(l).Inc()
	c.TxBytes.WithLabelValues(l).Add(float64(bytes))
}

// IncLookup counts one flow table lookup.
func (c *Collector) IncLookup() { c.Lookups.Inc() }

// IncMatched counts one flow table hit.
func (c *Collector) IncMatched() { c.Matches.Inc() }

// -------------------------------------------------------------------------
// Controller Channel
// -------------------------------------------------------------------------

// IncPacketIn counts one PACKET_IN by reason ("NoMatch" or "Action").
func (c *Collector) IncPacketIn(reason string) {
	c.PacketIns.WithLabelValues(reason).Inc()
}

// IncPacketInDropped counts one PACKET_IN dropped for lack of send window.
func (c *Collector) IncPacketInDropped() { c.PacketInDrops.Inc() }

// IncControllerMsg counts one received controller message by type name.
func (c *Collector) IncControllerMsg(msgType string) {
	c.ControllerMessages.WithLabelValues(msgType).Inc()
}

// SetConnected records the controller session state.
func (c *Collector) SetConnected(up bool) {
	if up {
		c.ControllerConnected.Set(1)
	} else {
		c.ControllerConnected.Set(0)
	}
}

// SetFlowCount records the current flow table occupancy.
func (c *Collector) SetFlowCount(n int) {
	c.FlowEntries.Set(float64(n))
}
