package datapath

import (
	"log/slog"

	"github.com/dantte-lp/goswitch/internal/of10"
)

// handleFlowMod dispatches OFPT_FLOW_MOD on its command. Action lists
// are parsed and validated up front, before any table mutation, so a
// rejected flow-mod leaves the table untouched.
func (s *Switch) handleFlowMod(msg []byte, xid uint32) {
	fm, err := of10.DecodeFlowMod(msg)
	if err != nil {
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeBadRequest, of10.BadRequestBadLen, msg))
		return
	}

	actions, err := of10.ParseActions(fm.RawActions)
	if err != nil {
		s.rejectBadAction(msg, xid, err)
		return
	}

	switch fm.Command {
	case of10.FlowAdd:
		s.flowAdd(&fm, actions, msg, xid)
	case of10.FlowModify:
		s.flowModify(&fm, actions, msg, xid, false)
	case of10.FlowModifyStrict:
		s.flowModify(&fm, actions, msg, xid, true)
	case of10.FlowDelete:
		s.flowDelete(&fm, false)
	case of10.FlowDeleteStrict:
		s.flowDelete(&fm, true)
	default:
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeFlowModFailed, of10.FlowModFailedBadCommand, msg))
	}
}

// flowAdd installs a new entry.
func (s *Switch) flowAdd(fm *of10.FlowMod, actions []of10.Action, msg []byte, xid uint32) {
	if fm.Flags&of10.FlagCheckOverlap != 0 {
		for i := 0; i < s.table.Len(); i++ {
			e := s.table.Entry(i)
			if e.Priority == fm.Priority && fm.Match.Overlaps(&e.Match) {
				s.sendReply(of10.EncodeError(xid, of10.ErrTypeFlowModFailed, of10.FlowModFailedOverlap, msg))
				return
			}
		}
	}

	now := s.now()
	idx, err := s.table.insert(FlowEntry{
		Match:       fm.Match,
		Priority:    fm.Priority,
		Cookie:      fm.Cookie,
		Flags:       fm.Flags,
		Actions:     actions,
		IdleTimeout: fm.IdleTimeout,
		HardTimeout: fm.HardTimeout,
		InstallTime: now,
		LastMatch:   now,
	})
	if err != nil {
		s.sendReply(of10.EncodeError(xid, of10.ErrTypeFlowModFailed, of10.FlowModFailedAllTablesFull, msg))
		return
	}

	if s.metrics != nil {
		s.metrics.SetFlowCount(s.table.Len())
	}
	s.logger.Debug("flow added",
		slog.Int("index", idx),
		slog.Int("priority", int(fm.Priority)),
		slog.Int("actions", len(actions)),
	)
}

// flowModify replaces the action list of every entry the request match
// selects: all covered entries for MODIFY, the exact match-and-priority
// entry for MODIFY_STRICT. The replacement is wholesale, never a merge.
// When the full scan selects nothing, the request degrades to an ADD —
// decided only after the scan completes, so a single request can never
// insert twice.
func (s *Switch) flowModify(fm *of10.FlowMod, actions []of10.Action, msg []byte, xid uint32, strict bool) {
	modified := 0
	for i := 0; i < s.table.Len(); i++ {
		e := s.table.Entry(i)
		if strict {
			if !e.Match.Equal(&fm.Match) || e.Priority != fm.Priority {
				continue
			}
		} else if !fm.Match.Covers(&e.Match) {
			continue
		}
		e.Actions = actions
		modified++
	}

	if modified == 0 {
		s.flowAdd(fm, actions, msg, xid)
		return
	}
	s.logger.Debug("flows modified",
		slog.Int("count", modified),
		slog.Bool("strict", strict),
	)
}

// flowDelete removes every selected entry: covered entries for DELETE,
// exact match-and-cookie entries for DELETE_STRICT. Entries installed
// with SEND_FLOW_REM produce a FLOW_REMOVED notification as they go.
func (s *Switch) flowDelete(fm *of10.FlowMod, strict bool) {
	pred := func(e *FlowEntry) bool {
		if strict {
			return e.Match.Equal(&fm.Match) && e.Cookie == fm.Cookie
		}
		return fm.Match.Covers(&e.Match)
	}

	removed := s.table.removeWhere(pred, func(e FlowEntry) {
		if e.Flags&of10.FlagSendFlowRem != 0 {
			s.emitFlowRemoved(&e, of10.RemovedDelete)
		}
	})

	if removed > 0 {
		if s.metrics != nil {
			s.metrics.SetFlowCount(s.table.Len())
		}
		s.logger.Debug("flows deleted",
			slog.Int("count", removed),
			slog.Bool("strict", strict),
		)
	}
}

// emitFlowRemoved notifies the controller of an entry's removal. The
// notification is asynchronous and therefore not gated by a pending
// barrier.
func (s *Switch) emitFlowRemoved(e *FlowEntry, reason of10.FlowRemovedReason) {
	if !s.conn.Connected() {
		return
	}
	sec, nsec := s.duration(e.InstallTime)
	s.sendAsync(of10.EncodeFlowRemoved(&of10.FlowRemoved{
		Match:        e.Match,
		Cookie:       e.Cookie,
		Priority:     e.Priority,
		Reason:       reason,
		DurationSec:  sec,
		DurationNsec: nsec,
		IdleTimeout:  e.IdleTimeout,
		PacketCount:  e.Hits,
		ByteCount:    e.ByteCount,
	}))
}

// ExpireFlow removes the entry at index idx for an externally driven
// timeout. Expiry timers live outside the core; this is their entry
// point into the table.
func (s *Switch) ExpireFlow(idx int, reason of10.FlowRemovedReason) {
	if idx < 0 || idx >= s.table.Len() {
		return
	}
	e := s.table.remove(idx)
	if e.Flags&of10.FlagSendFlowRem != 0 {
		s.emitFlowRemoved(&e, reason)
	}
	if s.metrics != nil {
		s.metrics.SetFlowCount(s.table.Len())
	}
}
