package datapath

import (
	"context"
	"log/slog"

	"github.com/dantte-lp/goswitch/internal/of10"
)

// Run is the switch event loop. It multiplexes received frames, controller
// message batches, and controller session transitions until the context is
// canceled. Invariants hold between loop iterations; the mutex is taken
// per event so snapshot readers and SetLinkState, which runs outside this
// loop, observe consistent state.
func (s *Switch) Run(ctx context.Context, frames <-chan Frame, batches <-chan [][]byte, sessions <-chan bool) error {
	s.logger.Info("datapath running",
		slog.String("datapath_id", s.DatapathIDString()),
		slog.String("fail_mode", s.cfg.FailMode.String()),
		slog.Int("max_flows", MaxFlows),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("datapath stopped")
			return nil

		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			s.HandleFrame(&f)

		case batch, ok := <-batches:
			if !ok {
				batches = nil
				continue
			}
			s.HandleBatch(batch)

		case up, ok := <-sessions:
			if !ok {
				sessions = nil
				continue
			}
			s.HandleSession(up)
		}
	}
}

// HandleSession reacts to a controller session transition. A new session
// opens with our HELLO; a lost session clears any pending barrier so a
// reconnecting controller starts from a clean sequencer.
func (s *Switch) HandleSession(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetConnected(up)
	}
	if up {
		s.logger.Info("controller session established")
		s.sendAsync(of10.EncodeHello(0))
		return
	}
	s.logger.Warn("controller session lost",
		slog.String("fail_mode", s.cfg.FailMode.String()),
	)
	s.resetBarrier()
}
