package pipeline

import (
	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/isa"
	"github.com/sarchlab/oosim/trace"
)

// conditionalUsesFlags reports whether op's prediction/execution consults
// the NZCV flags register rather than testing a general register (CBZ/CBNZ
// test a register directly and so are excluded) or no register at all
// (unconditional branches).
func conditionalUsesFlags(op isa.Op) bool {
	switch op {
	case isa.OpBEQ, isa.OpBNE, isa.OpBLE, isa.OpBLT, isa.OpBGE, isa.OpBGT:
		return true
	default:
		return false
	}
}

// RenameStage is the issue/allocate stage of spec.md §4.2.
type RenameStage struct {
	ARF *core.ARF
	PRF *core.PRF
	ROB *ROB
	RS  *RSPool
	SB  *SB

	NWide int
	Log   *trace.Logger
}

func resolveSource(arf *core.ARF, prf *core.PRF, reg int) srcOperand {
	value, renamed, tag := arf.Read(reg)
	if !renamed {
		return srcOperand{used: true, ready: true, val: value}
	}
	if v, valid := prf.Read(tag); valid {
		return srcOperand{used: true, ready: true, val: v}
	}
	return srcOperand{used: true, ready: false, tag: tag}
}

// literalOf returns the statically-known value of a non-register source
// operand (Immediate or AddressOf), for sources that never need a physical
// register tag.
func literalOf(o isa.Operand) core.Word {
	switch o.Kind {
	case isa.OperandImmediate:
		return core.FromSigned(o.Imm)
	case isa.OperandAddressOf:
		return core.Word(o.Addr)
	default:
		return 0
	}
}

// Issue consumes up to NWide instructions from iq's head, in program order,
// stopping at the first one that cannot be allocated this tick (spec.md
// §4.2: "the instruction remains at IQ head for next tick"). seq is the
// pipeline's running program-order counter, incremented per instruction
// successfully issued.
func (rn *RenameStage) Issue(iq *InstrQueue, seq *uint64, cycle uint64) (issued int, stalled bool) {
	for i := 0; i < rn.NWide; i++ {
		entry, ok := iq.Peek()
		if !ok {
			return issued, false
		}
		if !rn.issueOne(entry, *seq, cycle) {
			return issued, true
		}
		*seq++
		iq.Pop()
		issued++
	}
	return issued, false
}

// issueOne attempts the atomic all-or-nothing issue of a single instruction
// (spec.md §4.2).
func (rn *RenameStage) issueOne(entry IQEntry, seq uint64, cycle uint64) bool {
	instr := entry.Instr

	robIdx, ok := rn.ROB.Alloc(seq)
	if !ok {
		return false
	}
	rob := rn.ROB.Entry(robIdx)
	rob.InstrPC = instr.Addr
	rob.Branch = entry.Branch

	var src [2]srcOperand
	if instr.Src1.ReadsReg() {
		src[0] = resolveSource(rn.ARF, rn.PRF, instr.Src1.Reg)
	}
	if instr.Src2.ReadsReg() {
		src[1] = resolveSource(rn.ARF, rn.PRF, instr.Src2.Reg)
	}
	if conditionalUsesFlags(instr.Op) {
		src[0] = resolveSource(rn.ARF, rn.PRF, core.FlagsReg)
	}

	destReg := -1
	newPhys := core.NoTag
	oldPhys := core.NoTag
	if instr.Dest.Kind == isa.OperandRegister {
		phys, ok := rn.PRF.Alloc()
		if !ok {
			rn.ROB.RollbackAlloc()
			return false
		}
		destReg = instr.Dest.Reg
		newPhys = phys
		oldPhys = rn.ARF.Rename(destReg, phys)
	}

	isStore := instr.Op == isa.OpSTR
	sbIdx := -1
	if isStore {
		idx, ok := rn.SB.Alloc(seq, robIdx)
		if !ok {
			rn.undoDestAlloc(destReg, oldPhys, newPhys)
			rn.ROB.RollbackAlloc()
			return false
		}
		sbIdx = idx
	}

	rsIdx, ok := rn.RS.Alloc()
	if !ok {
		if isStore {
			rn.SB.RollbackAlloc()
		}
		rn.undoDestAlloc(destReg, oldPhys, newPhys)
		rn.ROB.RollbackAlloc()
		return false
	}

	rs := rn.RS.Slot(rsIdx)
	*rs = RSSlot{
		State:    RSIssuedWaiting,
		Seq:      seq,
		ROBIndex: robIdx,
		InstrPC:  instr.Addr,
		Op:       opDescriptor{Op: instr.Op, Cond: isa.ConditionFor(instr.Op)},
		Instr:    instr,
		Src:      src,
		Dest:     newPhys,
		IsStore:  isStore,
		SBIndex:  sbIdx,
		Branch:   entry.Branch,
	}
	if rs.allSourcesReady() {
		rs.State = RSIssuedReady
	}
	if rn.Log != nil {
		rn.Log.Emit(trace.StageAllocateRS, cycle, "allocated reservation station",
			"instr_pc", instr.Addr, "rob", robIdx, "rs", rsIdx)
	}

	rob.ArchDest = destReg
	rob.OldPhys = oldPhys
	rob.NewPhys = newPhys
	rob.IsStore = isStore
	rob.SBIndex = sbIdx

	if rn.Log != nil {
		rn.Log.Emit(trace.StageIssue, cycle, "issued instruction",
			"instr_pc", instr.Addr, "rob", robIdx, "rs", rsIdx)
	}
	return true
}

// undoDestAlloc reverses the ARF rename and physical-register allocation
// performed for a destination register, part of the atomic rollback of
// spec.md §4.2.
func (rn *RenameStage) undoDestAlloc(destReg, oldPhys, newPhys int) {
	if destReg < 0 {
		return
	}
	rn.ARF.RestoreRename(destReg, oldPhys)
	rn.PRF.Free(newPhys)
}
