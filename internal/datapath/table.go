package datapath

import (
	"errors"
	"time"

	"github.com/dantte-lp/goswitch/internal/of10"
)

// MaxFlows is the flow table capacity. The table is a fixed array; an ADD
// beyond this limit fails with FLOW_MOD_FAILED / ALL_TABLES_FULL.
const MaxFlows = 128

// ErrTableFull is returned by insert when every slot is occupied.
var ErrTableFull = errors.New("flow table full")

// FlowEntry is one slot of the flow table: a match, its priority and
// cookie, the typed action list, and the entry counters.
//
// The match/action portion is written only by the controller handler; the
// data plane touches nothing but the counter fields. Both run on the
// event-loop goroutine with the switch mutex held; admin reads go through
// snapshots copied under the same mutex.
type FlowEntry struct {
	Match    of10.Match
	Priority uint16
	Cookie   uint64
	Flags    uint16
	Actions  []of10.Action

	// IdleTimeout and HardTimeout are carried for flow-stats replies and
	// FLOW_REMOVED notifications; expiry itself is external.
	IdleTimeout uint16
	HardTimeout uint16

	Hits        uint64
	ByteCount   uint64
	InstallTime time.Time
	LastMatch   time.Time
}

// FlowTable is the single flat table of the switch: a fixed-capacity
// array kept compact, entries [0, n) active and the rest free. Deletion
// swaps the tail entry into the hole, so iteration is always a dense
// prefix scan.
type FlowTable struct {
	entries [MaxFlows]FlowEntry
	n       int

	// LookupCount and MatchedCount are the table-wide counters reported
	// in TABLE stats. MatchedCount never exceeds LookupCount.
	LookupCount  uint64
	MatchedCount uint64
}

// Len returns the number of active entries.
func (t *FlowTable) Len() int { return t.n }

// Entry returns the active entry at index i.
func (t *FlowTable) Entry(i int) *FlowEntry { return &t.entries[i] }

// insert appends a new entry, returning its index or ErrTableFull.
func (t *FlowTable) insert(e FlowEntry) (int, error) {
	if t.n == MaxFlows {
		return 0, ErrTableFull
	}
	idx := t.n
	t.entries[idx] = e
	t.n++
	return idx, nil
}

// remove deletes the entry at index i by swapping the tail into the hole
// and shrinking the active prefix. The removed entry is returned by value
// so the caller can build a FLOW_REMOVED notification after the table has
// already forgotten it.
func (t *FlowTable) remove(i int) FlowEntry {
	removed := t.entries[i]
	t.n--
	if i != t.n {
		t.entries[i] = t.entries[t.n]
	}
	t.entries[t.n] = FlowEntry{}
	return removed
}

// removeWhere removes every active entry for which pred returns true and
// hands each removed entry to emit. The backwards swap-removal order
// keeps unvisited indices stable.
func (t *FlowTable) removeWhere(pred func(*FlowEntry) bool, emit func(FlowEntry)) int {
	removedCount := 0
	for i := t.n - 1; i >= 0; i-- {
		if !pred(&t.entries[i]) {
			continue
		}
		removed := t.remove(i)
		removedCount++
		if emit != nil {
			emit(removed)
		}
	}
	return removedCount
}

// lookup returns the index of the highest-priority entry matching the
// frame, ties broken by lower index, or -1 on a miss. The caller has
// already counted the lookup.
func (t *FlowTable) lookup(fr frameFields) int {
	best := -1
	var bestPrio uint16
	for i := 0; i < t.n; i++ {
		if !matchesFrame(&t.entries[i].Match, fr) {
			continue
		}
		if best == -1 || t.entries[i].Priority > bestPrio {
			best = i
			bestPrio = t.entries[i].Priority
		}
	}
	return best
}
