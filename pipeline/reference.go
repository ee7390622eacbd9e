package pipeline

import (
	"fmt"
	"io"

	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/isa"
	"github.com/sarchlab/oosim/program"
)

// Reference is a minimal straight-line, purely in-order interpreter used
// only by tests to validate architectural equivalence against the
// speculative, out-of-order core (spec.md §8 property 5 and law (c)).
type Reference struct {
	Prog *program.Program
	Mem  *core.Memory
	regs [core.NumArchTotal]core.Word
	pc   int
}

// NewReference builds a reference interpreter over prog with a fresh
// memory image of memSize words.
func NewReference(prog *program.Program, memSize int) *Reference {
	mem := core.NewMemory(memSize)
	for addr, v := range prog.Data {
		_ = mem.Write(addr, core.FromSigned(v))
	}
	return &Reference{Prog: prog, Mem: mem, pc: prog.EntryPC}
}

func (r *Reference) read(o isa.Operand) core.Word {
	switch o.Kind {
	case isa.OperandRegister:
		return r.regs[o.Reg]
	case isa.OperandImmediate:
		return core.FromSigned(o.Imm)
	case isa.OperandAddressOf:
		return core.Word(o.Addr)
	case isa.OperandMemIndirect:
		return r.regs[o.Reg]
	default:
		return 0
	}
}

// Run executes the program to completion (PC off the end), writing the
// PRINTR stream to out.
func (r *Reference) Run(out io.Writer) error {
	for r.pc >= 0 && r.pc < len(r.Prog.Instructions) {
		instr := r.Prog.Instructions[r.pc]
		next := r.pc + 1

		switch instr.Op {
		case isa.OpADD:
			r.regs[instr.Dest.Reg] = core.FromSigned(r.read(instr.Src1).Signed() + r.read(instr.Src2).Signed())
		case isa.OpSUB:
			r.regs[instr.Dest.Reg] = core.FromSigned(r.read(instr.Src1).Signed() - r.read(instr.Src2).Signed())
		case isa.OpRSB:
			r.regs[instr.Dest.Reg] = core.FromSigned(r.read(instr.Src2).Signed() - r.read(instr.Src1).Signed())
		case isa.OpMUL:
			r.regs[instr.Dest.Reg] = core.FromSigned(r.read(instr.Src1).Signed() * r.read(instr.Src2).Signed())
		case isa.OpSDIV:
			divisor := r.read(instr.Src2).Signed()
			if divisor == 0 {
				r.regs[instr.Dest.Reg] = 0
			} else {
				r.regs[instr.Dest.Reg] = core.FromSigned(r.read(instr.Src1).Signed() / divisor)
			}
		case isa.OpNEG:
			r.regs[instr.Dest.Reg] = core.FromSigned(-r.read(instr.Src1).Signed())
		case isa.OpAND:
			r.regs[instr.Dest.Reg] = r.read(instr.Src1) & r.read(instr.Src2)
		case isa.OpORR:
			r.regs[instr.Dest.Reg] = r.read(instr.Src1) | r.read(instr.Src2)
		case isa.OpEOR:
			r.regs[instr.Dest.Reg] = r.read(instr.Src1) ^ r.read(instr.Src2)
		case isa.OpMVN:
			r.regs[instr.Dest.Reg] = ^r.read(instr.Src1)
		case isa.OpMOV:
			r.regs[instr.Dest.Reg] = r.read(instr.Src1)
		case isa.OpLDR:
			addr := int(r.read(instr.Src1))
			v, err := r.Mem.Read(addr)
			if err != nil {
				return err
			}
			r.regs[instr.Dest.Reg] = v
		case isa.OpSTR:
			addr := int(r.read(instr.Src2))
			if err := r.Mem.Write(addr, r.read(instr.Src1)); err != nil {
				return err
			}
		case isa.OpCMP:
			r.regs[core.FlagsReg] = flagsOf(r.read(instr.Src1).Signed()-r.read(instr.Src2).Signed(), r.read(instr.Src1), r.read(instr.Src2), true)
		case isa.OpTST:
			v := r.read(instr.Src1) & r.read(instr.Src2)
			r.regs[core.FlagsReg] = flagsOf(int64(v), r.read(instr.Src1), r.read(instr.Src2), false)
		case isa.OpTEQ:
			v := r.read(instr.Src1) ^ r.read(instr.Src2)
			r.regs[core.FlagsReg] = flagsOf(int64(v), r.read(instr.Src1), r.read(instr.Src2), false)
		case isa.OpB:
			next = instr.Src1.Addr
		case isa.OpBL:
			r.regs[core.LR] = core.Word(r.pc + 1)
			next = instr.Src1.Addr
		case isa.OpBX, isa.OpRET:
			next = int(r.read(instr.Src1))
		case isa.OpCBZ:
			if r.read(instr.Src1) == 0 {
				next = instr.Src2.Addr
			}
		case isa.OpCBNZ:
			if r.read(instr.Src1) != 0 {
				next = instr.Src2.Addr
			}
		case isa.OpBEQ, isa.OpBNE, isa.OpBLE, isa.OpBLT, isa.OpBGE, isa.OpBGT:
			nzcv := core.UnpackNZCV(r.regs[core.FlagsReg])
			if isa.ConditionFor(instr.Op).Eval(nzcv.N, nzcv.Z, nzcv.C, nzcv.V) {
				next = instr.Src1.Addr
			}
		case isa.OpPRINTR:
			fmt.Fprintf(out, "%d\n", r.read(instr.Src1).Signed())
		case isa.OpNOP, isa.OpDSB:
		}

		r.pc = next
	}
	return nil
}

// Regs returns the final architectural register values, for comparison
// against the out-of-order core's ARF after a clean halt.
func (r *Reference) Regs() [core.NumArchTotal]core.Word {
	return r.regs
}
