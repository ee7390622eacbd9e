package pipeline

import (
	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/trace"
)

// RetireStage retires up to NWide contiguous done head entries per tick and
// performs pipeline flush on a mispredicted branch (spec.md §4.5).
type RetireStage struct {
	ARF *core.ARF
	PRF *core.PRF
	ROB *ROB
	RS  *RSPool
	SB  *SB
	EUs *EUPool
	IQ  *InstrQueue
	BP  *BranchPredictor

	Frontend *Frontend

	NWide int
	Log   *trace.Logger
	Perf  *trace.PerfMonitor
}

// Retire processes up to NWide head entries; returns the number retired and
// whether a flush occurred.
func (rt *RetireStage) Retire(cycle uint64) (retired int, flushed bool) {
	for retired < rt.NWide {
		if rt.ROB.Count() == 0 {
			break
		}
		head := rt.ROB.Entry(rt.ROB.HeadIndex())
		if !head.Done {
			break
		}

		if head.ArchDest >= 0 {
			rt.PRF.Free(head.OldPhys)
			rt.ARF.Commit(head.ArchDest, head.Result)
		}
		if head.IsStore {
			rt.SB.MarkEligible(rt.ROB.HeadIndex())
		}

		isMispredictedBranch := head.Branch != nil && head.Mispredicted
		if head.Branch != nil {
			rt.BP.Update(head.Branch.PredictedTaken, head.ActualTaken)
		}

		robIdx := rt.ROB.HeadIndex()
		branchSnapshot := *head
		rt.ROB.RetireHead()
		retired++
		if rt.Perf != nil {
			rt.Perf.RecordRetired(1)
		}
		if rt.Log != nil {
			rt.Log.Emit(trace.StageRetire, cycle, "retired instruction", "rob", robIdx)
		}

		if isMispredictedBranch {
			if rt.Perf != nil {
				rt.Perf.RecordMisprediction()
			}
			rt.flush(&branchSnapshot, cycle)
			return retired, true
		}
	}
	return retired, false
}

// flush performs the atomic rollback of spec.md §4.5: every remaining ROB
// entry is, by construction, newer than the branch that just retired (see
// rob.go's DrainAll doc comment).
func (rt *RetireStage) flush(branch *ROBEntry, cycle uint64) {
	drained := rt.ROB.DrainAll()

	seqs := make(map[uint64]bool, len(drained))
	for _, e := range drained {
		seqs[e.Seq] = true
	}

	// Newest-first: the last restore applied, for any architectural
	// register renamed by more than one flushed entry, is the oldest
	// flushed entry's old_phys (spec.md §3's flush invariant).
	for _, e := range drained {
		if e.ArchDest >= 0 {
			rt.ARF.RestoreRename(e.ArchDest, e.OldPhys)
			rt.PRF.Free(e.NewPhys)
		}
	}

	// EU cancellation must run before the RS slots it inspects are freed:
	// CancelForSeq looks up each busy EU's reservation station to read its
	// Seq, and FreeBySeq zeroes that field on free.
	rt.EUs.CancelForSeq(rt.RS, seqs)
	rt.RS.FreeBySeq(seqs)
	rt.SB.CancelSeq(seqs)

	rt.IQ.Clear()
	rt.Frontend.PC = branch.ActualTarget

	if rt.Log != nil {
		rt.Log.Emit(trace.StagePipelineFlush, cycle, "pipeline flush",
			"branch_rob_target", branch.ActualTarget, "entries_cancelled", len(drained))
	}
}
