package pipeline

import (
	"github.com/sarchlab/oosim/isa"
	"github.com/sarchlab/oosim/program"
	"github.com/sarchlab/oosim/trace"
)

// IQEntry is one instruction queue entry: the decoded instruction plus the
// branch-prediction record attached at fetch time, if any (spec.md §4.1).
type IQEntry struct {
	Instr  isa.Instruction
	Branch *BranchRecord
}

// InstrQueue is the bounded FIFO between frontend and rename (spec.md §3).
type InstrQueue struct {
	entries  []IQEntry
	capacity int
}

// NewInstrQueue allocates an empty instruction queue with the given
// capacity.
func NewInstrQueue(capacity int) *InstrQueue {
	return &InstrQueue{capacity: capacity}
}

// Len returns the number of queued instructions.
func (q *InstrQueue) Len() int { return len(q.entries) }

// Full reports whether the queue has reached capacity.
func (q *InstrQueue) Full() bool { return len(q.entries) >= q.capacity }

// Push enqueues e, or reports false if the queue is full.
func (q *InstrQueue) Push(e IQEntry) bool {
	if q.Full() {
		return false
	}
	q.entries = append(q.entries, e)
	return true
}

// Peek returns the entry at the head of the queue without removing it.
func (q *InstrQueue) Peek() (IQEntry, bool) {
	if len(q.entries) == 0 {
		return IQEntry{}, false
	}
	return q.entries[0], true
}

// Pop removes and discards the head entry.
func (q *InstrQueue) Pop() {
	if len(q.entries) == 0 {
		return
	}
	q.entries = q.entries[1:]
}

// Clear drops all contents, called on pipeline flush (spec.md §4.5).
func (q *InstrQueue) Clear() {
	q.entries = q.entries[:0]
}

// Frontend fetches from the program image, decoding having already been
// done by the external loader (package program), and applies branch
// prediction to its own PC (spec.md §4.1).
type Frontend struct {
	Prog *program.Program
	PC   int

	predictor *BranchPredictor
	nWide     int

	Log *trace.Logger
}

// NewFrontend builds a frontend starting at prog's entry point.
func NewFrontend(prog *program.Program, predictor *BranchPredictor, nWide int) *Frontend {
	return &Frontend{Prog: prog, PC: prog.EntryPC, predictor: predictor, nWide: nWide}
}

// AtEnd reports whether the PC has walked off the end of the program image.
func (f *Frontend) AtEnd() bool {
	return f.PC < 0 || f.PC >= f.Prog.NumInstructions()
}

// branchTarget extracts a direct branch's static target instruction index
// from its operands, or false if the instruction has none: B/BL and the
// conditional branches carry it in Src1, CBZ/CBNZ in Src2; BX/RET have none.
func branchTarget(instr isa.Instruction) (target int, ok bool) {
	switch instr.Op {
	case isa.OpB, isa.OpBL, isa.OpBEQ, isa.OpBNE, isa.OpBLE, isa.OpBLT, isa.OpBGE, isa.OpBGT:
		return instr.Src1.Addr, true
	case isa.OpCBZ, isa.OpCBNZ:
		return instr.Src2.Addr, true
	default:
		return 0, false
	}
}

// Fetch enqueues up to f.nWide instructions into iq, stopping when iq is
// full, when a predicted-taken branch is fetched (its successor replaces PC
// for the next tick), or when the PC leaves the program image. lrHint
// supplies the speculative return address for BX/RET prediction (spec.md
// §4.7, §11 open question 3): the in-flight LR value when already produced,
// else the last committed LR value (see Pipeline.lrHint).
// stalled reports whether fetch was cut short by a full instruction queue
// (resource pressure, spec.md §6(b)'s stall counter) rather than simply
// running off the end of the program image.
func (f *Frontend) Fetch(iq *InstrQueue, lrHint int, cycle uint64) (stalled bool) {
	for i := 0; i < f.nWide; i++ {
		if f.AtEnd() {
			return false
		}
		if iq.Full() {
			return true
		}
		pcAtFetch := f.PC
		instr := f.Prog.Instructions[f.PC]
		entry := IQEntry{Instr: instr}

		if f.Log != nil {
			f.Log.Emit(trace.StageDecode, cycle, "decoded instruction",
				"pc", pcAtFetch, "op", instr.Op.String())
		}

		if instr.Op.IsBranch() {
			pc := f.PC
			isIndirect := instr.Op == isa.OpBX || instr.Op == isa.OpRET
			unconditional := !instr.Op.IsConditional() && !isIndirect
			target, _ := branchTarget(instr)

			taken, predictedTarget := f.predictor.Predict(pc, unconditional, isIndirect, target, lrHint)
			fallThrough := pc + 1
			entry.Branch = &BranchRecord{
				PredictedTaken:  taken,
				PredictedTarget: predictedTarget,
				FallThrough:     fallThrough,
			}

			if !iq.Push(entry) {
				return true
			}
			if taken {
				f.PC = predictedTarget
				return false
			}
			f.PC = fallThrough
			continue
		}

		if !iq.Push(entry) {
			return true
		}
		f.PC++
	}
	return false
}
