package pipeline

import (
	"fmt"
	"io"

	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/isa"
	"github.com/sarchlab/oosim/trace"
)

// latencyOf returns an operation's fixed execution-unit latency, spec.md
// §4.4. Anything not listed (RSB, TST, TEQ, branches, PRINTR) is a single
// cycle like the rest of the ALU class.
func latencyOf(op isa.Op) int {
	switch op {
	case isa.OpMUL:
		return 3
	case isa.OpSDIV:
		return 20
	case isa.OpLDR:
		return 3
	default:
		return 1
	}
}

// EUSlot is one execution unit: busy/free plus the reservation station it
// is working on (spec.md §4.4).
type EUSlot struct {
	Busy      bool
	RSIndex   int
	Remaining int
	Flushed   bool
}

// EUPool is the fixed-size array of identical execution units (spec.md
// §3's eu_count).
type EUPool struct {
	slots []EUSlot
}

// NewEUPool allocates n free execution units.
func NewEUPool(n int) *EUPool {
	return &EUPool{slots: make([]EUSlot, n)}
}

// Alloc finds a free execution unit, or fails if all are busy.
func (p *EUPool) Alloc() (idx int, ok bool) {
	for i := range p.slots {
		if !p.slots[i].Busy {
			return i, true
		}
	}
	return 0, false
}

// Start occupies execution unit idx with the instruction in reservation
// station rsIdx.
func (p *EUPool) Start(idx, rsIdx int, rs *RSSlot) {
	p.slots[idx] = EUSlot{Busy: true, RSIndex: rsIdx, Remaining: latencyOf(rs.Op.Op)}
}

// CancelForSeq marks every busy execution unit working on an instruction
// whose sequence number is in seqs as drained, so it produces no result on
// completion (spec.md §4.5's pipeline flush: "mark its EU slot (if
// occupied) as drained").
func (p *EUPool) CancelForSeq(rs *RSPool, seqs map[uint64]bool) {
	for i := range p.slots {
		s := &p.slots[i]
		if s.Busy && seqs[rs.Slot(s.RSIndex).Seq] {
			s.Flushed = true
		}
	}
}

// ExecuteStage performs the operation and, in the same step, publishes the
// result bus and marks ROB entries done: spec.md §2 lists "execute/produce
// results" and "write back" as adjacent stages, and §5 permits modeling the
// bus as same-tick (this repository's open-question 4 resolution), so both
// happen together here.
type ExecuteStage struct {
	RS  *RSPool
	ROB *ROB
	PRF *core.PRF
	SB  *SB
	Mem *core.Memory
	EUs *EUPool
	BP  *BranchPredictor
	Log *trace.Logger

	// Print is the PRINTR sink (spec.md §6(a)); left pluggable rather than
	// hardwired to stdout so tests can capture the stream.
	Print io.Writer
}

// operandValue resolves operand o's runtime value given the reservation
// station's resolved source slot src (meaningful when o.ReadsReg()).
func operandValue(o isa.Operand, src srcOperand) core.Word {
	if o.ReadsReg() {
		return src.val
	}
	return literalOf(o)
}

// Run advances every busy execution unit one cycle, completing those whose
// latency has elapsed (spec.md §4.4).
func (ex *ExecuteStage) Run(cycle uint64) {
	for i := range ex.EUs.slots {
		eu := &ex.EUs.slots[i]
		if !eu.Busy {
			continue
		}
		if eu.Flushed {
			ex.RS.Free(eu.RSIndex)
			*eu = EUSlot{}
			continue
		}
		if eu.Remaining > 0 {
			eu.Remaining--
		}
		if eu.Remaining > 0 {
			continue
		}
		if ex.complete(i, cycle) {
			*eu = EUSlot{}
		}
	}
}

// complete computes op's result and publishes it. It returns false (without
// freeing the EU) for a load blocked on an unresolved store in the buffer,
// so the next tick retries the same snoop.
func (ex *ExecuteStage) complete(euIdx int, cycle uint64) bool {
	eu := &ex.EUs.slots[euIdx]
	rs := ex.RS.Slot(eu.RSIndex)
	rob := ex.ROB.Entry(rs.ROBIndex)
	instr := rs.Instr

	v1 := operandValue(instr.Src1, rs.Src[0])
	v2 := operandValue(instr.Src2, rs.Src[1])
	if conditionalUsesFlags(instr.Op) {
		v1 = rs.Src[0].val
	}

	var result core.Word
	var fault *Fault

	switch instr.Op {
	case isa.OpADD:
		result = core.FromSigned(v1.Signed() + v2.Signed())
	case isa.OpSUB:
		result = core.FromSigned(v1.Signed() - v2.Signed())
	case isa.OpRSB:
		result = core.FromSigned(v2.Signed() - v1.Signed())
	case isa.OpMUL:
		result = core.FromSigned(v1.Signed() * v2.Signed())
	case isa.OpSDIV:
		if v2.Signed() == 0 {
			fault = &Fault{Kind: FaultDivideByZero}
			result = 0
		} else {
			result = core.FromSigned(v1.Signed() / v2.Signed())
		}
	case isa.OpNEG:
		result = core.FromSigned(-v1.Signed())
	case isa.OpAND:
		result = v1 & v2
	case isa.OpORR:
		result = v1 | v2
	case isa.OpEOR:
		result = v1 ^ v2
	case isa.OpMVN:
		result = ^v1
	case isa.OpMOV:
		result = v1
	case isa.OpCMP:
		result = flagsOf(v1.Signed()-v2.Signed(), v1, v2, true)
	case isa.OpTST:
		result = flagsOf(int64(v1&v2), v1, v2, false)
	case isa.OpTEQ:
		result = flagsOf(int64(v1^v2), v1, v2, false)
	case isa.OpLDR:
		addr := int(v1)
		fr := ex.SB.Forward(rs.Seq, addr)
		if fr.Found && !fr.Ready {
			return false
		}
		if fr.Found {
			result = fr.Value
		} else {
			v, err := ex.Mem.Read(addr)
			if err != nil {
				fault = &Fault{Kind: FaultMemoryOutOfBounds, Addr: addr}
			}
			result = v
		}
	case isa.OpSTR:
		addr := int(v2)
		sb := ex.SB.Entry(rs.SBIndex)
		sb.Addr = addr
		sb.Value = v1
		if addr < 0 || addr >= ex.Mem.Size() {
			fault = &Fault{Kind: FaultMemoryOutOfBounds, Addr: addr}
			sb.Faulted = true
		}
		sb.Ready = true
	case isa.OpPRINTR:
		result = v1
		if ex.Print != nil {
			fmt.Fprintf(ex.Print, "%d\n", v1.Signed())
		}
	case isa.OpNOP, isa.OpDSB:
	default:
		if instr.Op.IsBranch() {
			ex.completeBranch(rs, rob, instr, v1)
			if instr.Op == isa.OpBL {
				result = core.Word(instr.Addr + 1)
			}
		}
	}

	rob.Done = true
	rob.Result = result
	rob.Fault = fault

	if rs.Dest != -1 {
		ex.PRF.Write(rs.Dest, result)
		ex.RS.Publish(rs.Dest, result)
	}

	if ex.Log != nil {
		ex.Log.Emit(trace.StageExecute, cycle, "execution completed",
			"eu", euIdx, "rob", rs.ROBIndex, "op", instr.Op.String())
	}

	ex.RS.Free(eu.RSIndex)
	return true
}

// completeBranch resolves a branch's actual direction/target and records
// the misprediction flag on its ROB entry (spec.md §4.4). flagsVal carries
// the resolved conditional-branch flags source, v1 from the caller.
func (ex *ExecuteStage) completeBranch(rs *RSSlot, rob *ROBEntry, instr isa.Instruction, flagsVal core.Word) {
	br := rob.Branch
	actualTaken := false
	actualTarget := br.FallThrough

	switch instr.Op {
	case isa.OpB, isa.OpBL:
		actualTaken = true
		actualTarget = instr.Src1.Addr
	case isa.OpBEQ, isa.OpBNE, isa.OpBLE, isa.OpBLT, isa.OpBGE, isa.OpBGT:
		nzcv := core.UnpackNZCV(flagsVal)
		cond := isa.ConditionFor(instr.Op)
		actualTaken = cond.Eval(nzcv.N, nzcv.Z, nzcv.C, nzcv.V)
		if actualTaken {
			actualTarget = instr.Src1.Addr
		}
	case isa.OpCBZ, isa.OpCBNZ:
		regVal := rs.Src[0].val
		isZero := regVal == 0
		actualTaken = isZero == (instr.Op == isa.OpCBZ)
		if actualTaken {
			actualTarget = instr.Src2.Addr
		}
	case isa.OpBX, isa.OpRET:
		actualTaken = true
		actualTarget = int(rs.Src[0].val)
	}

	rob.ActualTaken = actualTaken
	rob.ActualTarget = actualTarget

	predictedTarget := br.FallThrough
	if br.PredictedTaken {
		predictedTarget = br.PredictedTarget
	}
	actualResolvedTarget := br.FallThrough
	if actualTaken {
		actualResolvedTarget = actualTarget
	}
	rob.Mispredicted = actualResolvedTarget != predictedTarget
}

// flagsOf packs NZCV from a subtraction-shaped result, the way CMP/TST/TEQ
// derive flags (spec.md §4.4, §9). isSub additionally derives carry/overflow
// from the two subtraction operands; TST/TEQ (bitwise) leave C/V clear.
func flagsOf(signedResult int64, a, b core.Word, isSub bool) core.Word {
	var f core.NZCV
	f.N = signedResult < 0
	f.Z = signedResult == 0
	if isSub {
		f.C = a.Signed() >= b.Signed()
		sa, sb := a.Signed() < 0, b.Signed() < 0
		sr := signedResult < 0
		f.V = sa != sb && sr != sa
	}
	return f.Pack()
}
