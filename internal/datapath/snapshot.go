package datapath

import (
	"fmt"
	"time"

	"github.com/dantte-lp/goswitch/internal/of10"
)

// Snapshot types are the read-only views the admin API serves. They are
// copied out under the loop mutex; no references into live table state
// escape.

// StatusSnapshot summarizes the switch for GET /api/v1/status.
type StatusSnapshot struct {
	DatapathID   string    `json:"datapath_id"`
	Connected    bool      `json:"controller_connected"`
	FailMode     string    `json:"fail_mode"`
	FlowCount    int       `json:"flow_count"`
	MaxFlows     int       `json:"max_flows"`
	LookupCount  uint64    `json:"lookup_count"`
	MatchedCount uint64    `json:"matched_count"`
	MissSendLen  uint16    `json:"miss_send_len"`
	StartedAt    time.Time `json:"started_at"`
}

// FlowSnapshot is one table entry for GET /api/v1/flows.
type FlowSnapshot struct {
	Index     int       `json:"index"`
	Priority  uint16    `json:"priority"`
	Cookie    uint64    `json:"cookie"`
	Match     string    `json:"match"`
	Actions   []string  `json:"actions"`
	Hits      uint64    `json:"hits"`
	Bytes     uint64    `json:"bytes"`
	Installed time.Time `json:"installed"`
	LastMatch time.Time `json:"last_match"`
}

// PortSnapshot is one physical port for GET /api/v1/ports.
type PortSnapshot struct {
	Port      int    `json:"port"`
	Enabled   bool   `json:"enabled"`
	LinkUp    bool   `json:"link_up"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
	RxCRCErr  uint64 `json:"rx_crc_err"`
}

// DatapathIDString renders the datapath id the way controllers log it.
func (s *Switch) DatapathIDString() string {
	return fmt.Sprintf("%016x", s.cfg.DatapathID())
}

// Status returns a point-in-time summary of the switch.
func (s *Switch) Status() StatusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return StatusSnapshot{
		DatapathID:   s.DatapathIDString(),
		Connected:    s.conn.Connected(),
		FailMode:     s.cfg.FailMode.String(),
		FlowCount:    s.table.Len(),
		MaxFlows:     MaxFlows,
		LookupCount:  s.table.LookupCount,
		MatchedCount: s.table.MatchedCount,
		MissSendLen:  s.swCfg.MissSendLen,
		StartedAt:    s.start,
	}
}

// Flows returns a copy of every active table entry. Each snapshot is
// consistent per entry; the table as a whole may move between entries,
// mirroring the guarantee the stats protocol gives controllers.
func (s *Switch) Flows() []FlowSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	flows := make([]FlowSnapshot, 0, s.table.Len())
	for i := 0; i < s.table.Len(); i++ {
		e := s.table.Entry(i)
		actions := make([]string, len(e.Actions))
		for j, a := range e.Actions {
			actions[j] = of10.ActionString(a)
		}
		flows = append(flows, FlowSnapshot{
			Index:     i,
			Priority:  e.Priority,
			Cookie:    e.Cookie,
			Match:     of10.MatchString(&e.Match),
			Actions:   actions,
			Hits:      e.Hits,
			Bytes:     e.ByteCount,
			Installed: e.InstallTime,
			LastMatch: e.LastMatch,
		})
	}
	return flows
}

// Ports returns the per-port counters and link state.
func (s *Switch) Ports() []PortSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	ports := make([]PortSnapshot, MaxPorts)
	for i := 0; i < MaxPorts; i++ {
		ports[i] = PortSnapshot{
			Port:      i + 1,
			Enabled:   s.cfg.PortEnabled[i],
			LinkUp:    s.linkUp[i],
			RxPackets: s.portStats[i].RxPackets,
			TxPackets: s.portStats[i].TxPackets,
			RxBytes:   s.portStats[i].RxBytes,
			TxBytes:   s.portStats[i].TxBytes,
			RxDropped: s.portStats[i].RxDropped,
			TxDropped: s.portStats[i].TxDropped,
			RxCRCErr:  s.portStats[i].RxCRCErr,
		}
	}
	return ports
}

// RecordRxError accounts a driver-reported receive error on a port.
// CRC errors arrive from the hardware ring, not the pipeline.
func (s *Switch) RecordRxError(port uint8, crc bool) {
	if int(port) < 1 || int(port) > MaxPorts {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if crc {
		s.portStats[port-1].RxCRCErr++
	} else {
		s.portStats[port-1].RxDropped++
	}
}
