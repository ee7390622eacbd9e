package pipeline

import "github.com/sarchlab/oosim/trace"

// DispatchStage selects ISSUED_READY reservation stations onto free
// execution units, oldest-first (spec.md §4.3).
type DispatchStage struct {
	RS    *RSPool
	EUs   *EUPool
	NWide int
	Log   *trace.Logger
}

// Dispatch performs up to NWide dispatches this tick. stalled reports
// whether a ready reservation station was left undispatched this tick
// (width or execution-unit pressure), spec.md §6(b)'s stall counter.
func (d *DispatchStage) Dispatch(cycle uint64) (dispatched int, stalled bool) {
	ready := d.RS.ReadyIndices()
	for _, rsIdx := range ready {
		if dispatched >= d.NWide {
			return dispatched, true
		}
		euIdx, ok := d.EUs.Alloc()
		if !ok {
			return dispatched, true
		}
		rs := d.RS.Slot(rsIdx)
		rs.State = RSDispatched
		d.EUs.Start(euIdx, rsIdx, rs)
		dispatched++

		if d.Log != nil {
			d.Log.Emit(trace.StageDispatch, cycle, "dispatched to execution unit",
				"rs", rsIdx, "eu", euIdx, "rob", rs.ROBIndex)
		}
	}
	return dispatched, false
}
