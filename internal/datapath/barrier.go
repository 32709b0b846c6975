package datapath

import (
	"log/slog"

	"github.com/dantte-lp/goswitch/internal/of10"
)

// barrierState serializes controller-visible replies around a barrier
// boundary. While a barrier is pending, replies triggered by later
// requests queue up; they drain in order right after the barrier reply.
// Asynchronous notifications (PACKET_IN, FLOW_REMOVED, PORT_STATUS) are
// not gated.
type barrierState struct {
	pending bool
	xid     uint32
	queued  [][]byte
}

// sendReply emits a reply to a controller request, honoring a pending
// barrier by deferring the send.
func (s *Switch) sendReply(b []byte) {
	if s.barrier.pending {
		s.barrier.queued = append(s.barrier.queued, b)
		return
	}
	s.sendAsync(b)
}

// sendAsync emits a message on the controller channel immediately.
// Transport failures tear the session down elsewhere; here they only log.
func (s *Switch) sendAsync(b []byte) {
	if err := s.conn.Send(b); err != nil {
		s.logger.Warn("controller send failed",
			slog.Int("bytes", len(b)),
			slog.String("error", err.Error()),
		)
	}
}

// handleBarrierRequest implements OFPT_BARRIER_REQUEST. A request at the
// tail of the current batch is answered immediately: everything before it
// has already been processed. Mid-batch, the reply is deferred until the
// handler loop drains the remaining messages of the batch.
func (s *Switch) handleBarrierRequest(xid uint32, lastInBatch bool) {
	if lastInBatch && !s.barrier.pending {
		s.sendAsync(of10.EncodeBarrierReply(xid))
		return
	}
	s.barrier.pending = true
	s.barrier.xid = xid
}

// finishBatch completes a deferred barrier: the barrier reply goes out
// first, then the queued replies in arrival order.
func (s *Switch) finishBatch() {
	if !s.barrier.pending {
		return
	}
	s.sendAsync(of10.EncodeBarrierReply(s.barrier.xid))
	for _, b := range s.barrier.queued {
		s.sendAsync(b)
	}
	s.barrier = barrierState{}
}

// resetBarrier drops all pending barrier state on session loss.
func (s *Switch) resetBarrier() {
	s.barrier = barrierState{}
}
