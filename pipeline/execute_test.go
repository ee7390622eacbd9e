package pipeline_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/isa"
	"github.com/sarchlab/oosim/pipeline"
)

// execHarness wires just enough of rename+dispatch+execute to drive a single
// instruction to completion without the full Pipeline, so each opcode's
// semantics can be checked in isolation.
type execHarness struct {
	arf *core.ARF
	prf *core.PRF
	rob *pipeline.ROB
	rs  *pipeline.RSPool
	sb  *pipeline.SB
	eus *pipeline.EUPool

	rename *pipeline.RenameStage
	disp   *pipeline.DispatchStage
	exec   *pipeline.ExecuteStage

	seq uint64
}

func newExecHarness(mem *core.Memory, out *bytes.Buffer) *execHarness {
	h := &execHarness{
		arf: core.NewARF(),
		prf: core.NewPRF(16),
		rob: pipeline.NewROB(8),
		rs:  pipeline.NewRSPool(8),
		sb:  pipeline.NewSB(8),
		eus: pipeline.NewEUPool(4),
	}
	h.rename = &pipeline.RenameStage{ARF: h.arf, PRF: h.prf, ROB: h.rob, RS: h.rs, SB: h.sb, NWide: 4}
	h.disp = &pipeline.DispatchStage{RS: h.rs, EUs: h.eus, NWide: 4}
	h.exec = &pipeline.ExecuteStage{RS: h.rs, ROB: h.rob, PRF: h.prf, SB: h.sb, Mem: mem, EUs: h.eus, BP: pipeline.NewBranchPredictor(), Print: out}
	return h
}

// robIndexOfLastAlloc returns the slot a just-completed Alloc landed in,
// given the ROB's occupancy before that Alloc ran.
func robIndexOfLastAlloc(rob *pipeline.ROB, countBefore int) int {
	return (rob.HeadIndex() + countBefore) % rob.Capacity()
}

// run issues instr, dispatches it, and steps Execute until its ROB entry is
// done, returning that entry. Fails the test if it never completes. A
// branch gets a predicted-not-taken record, as the frontend attaches one
// to every branch it fetches.
func (h *execHarness) run(instr isa.Instruction) *pipeline.ROBEntry {
	countBefore := h.rob.Count()
	iq := pipeline.NewInstrQueue(1)
	entry := pipeline.IQEntry{Instr: instr}
	if instr.Op.IsBranch() {
		entry.Branch = &pipeline.BranchRecord{FallThrough: instr.Addr + 1}
	}
	iq.Push(entry)
	issued, _ := h.rename.Issue(iq, &h.seq, 0)
	Expect(issued).To(Equal(1))
	robIdx := robIndexOfLastAlloc(h.rob, countBefore)

	for i := 0; i < 30; i++ {
		h.disp.Dispatch(0)
		h.exec.Run(0)
		if h.rob.Entry(robIdx).Done {
			return h.rob.Entry(robIdx)
		}
	}
	Fail("instruction never completed")
	return nil
}

var _ = Describe("ExecuteStage", func() {
	It("computes ADD and publishes the result", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		entry := h.run(isa.Instruction{Op: isa.OpADD, Dest: isa.Register(2), Src1: isa.Immediate(3), Src2: isa.Immediate(4)})
		Expect(entry.Result).To(Equal(core.Word(7)))
	})

	It("takes MUL's full multi-cycle latency before completing", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		iq := pipeline.NewInstrQueue(1)
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{Op: isa.OpMUL, Dest: isa.Register(0), Src1: isa.Immediate(6), Src2: isa.Immediate(7)}})
		h.rename.Issue(iq, &h.seq, 0)
		robIdx := robIndexOfLastAlloc(h.rob, 0)

		h.disp.Dispatch(0)
		h.exec.Run(0)
		Expect(h.rob.Entry(robIdx).Done).To(BeFalse())
		h.exec.Run(0)
		Expect(h.rob.Entry(robIdx).Done).To(BeFalse())
		h.exec.Run(0)
		Expect(h.rob.Entry(robIdx).Done).To(BeTrue())
		Expect(h.rob.Entry(robIdx).Result).To(Equal(core.Word(42)))
	})

	It("raises a divide-by-zero fault and produces a zero result", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		entry := h.run(isa.Instruction{Op: isa.OpSDIV, Dest: isa.Register(0), Src1: isa.Immediate(10), Src2: isa.Immediate(0)})
		Expect(entry.Fault).NotTo(BeNil())
		Expect(entry.Fault.Kind).To(Equal(pipeline.FaultDivideByZero))
		Expect(entry.Result).To(Equal(core.Word(0)))
	})

	It("derives NZCV flags from CMP the way a subtraction would", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		entry := h.run(isa.Instruction{Op: isa.OpCMP, Src1: isa.Immediate(3), Src2: isa.Immediate(3)})
		nzcv := core.UnpackNZCV(entry.Result)
		Expect(nzcv.Z).To(BeTrue())
		Expect(nzcv.N).To(BeFalse())
	})

	It("writes a store's address and value into its store-buffer entry", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		h.arf.Commit(0, core.Word(99))
		entry := h.run(isa.Instruction{Op: isa.OpSTR, Src1: isa.Register(0), Src2: isa.MemIndirect(1)})
		Expect(entry.IsStore).To(BeTrue())
		sbEntry := h.sb.Entry(entry.SBIndex)
		Expect(sbEntry.Addr).To(Equal(0))
		Expect(sbEntry.Value).To(Equal(core.Word(99)))
		Expect(sbEntry.Ready).To(BeTrue())
	})

	It("reads straight from memory when no store buffer entry forwards", func() {
		mem := core.NewMemory(8)
		mem.Write(2, core.Word(17))
		h := newExecHarness(mem, nil)
		h.arf.Commit(0, core.Word(2))
		entry := h.run(isa.Instruction{Op: isa.OpLDR, Dest: isa.Register(1), Src1: isa.MemIndirect(0)})
		Expect(entry.Result).To(Equal(core.Word(17)))
	})

	It("forwards a load from an older un-drained store to the same address", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		h.arf.Commit(0, core.Word(55))
		h.run(isa.Instruction{Op: isa.OpSTR, Src1: isa.Register(0), Src2: isa.MemIndirect(1)})

		entry := h.run(isa.Instruction{Op: isa.OpLDR, Dest: isa.Register(2), Src1: isa.MemIndirect(1)})
		Expect(entry.Result).To(Equal(core.Word(55)))
	})

	It("raises a memory-out-of-bounds fault for a load past the end of memory", func() {
		h := newExecHarness(core.NewMemory(2), nil)
		h.arf.Commit(0, core.Word(99))
		entry := h.run(isa.Instruction{Op: isa.OpLDR, Dest: isa.Register(1), Src1: isa.MemIndirect(0)})
		Expect(entry.Fault).NotTo(BeNil())
		Expect(entry.Fault.Kind).To(Equal(pipeline.FaultMemoryOutOfBounds))
	})

	It("emits PRINTR's operand to the print sink at execute time", func() {
		var out bytes.Buffer
		h := newExecHarness(core.NewMemory(8), &out)
		h.arf.Commit(0, core.FromSigned(-3))
		h.run(isa.Instruction{Op: isa.OpPRINTR, Src1: isa.Register(0)})
		Expect(out.String()).To(Equal("-3\n"))
	})

	It("sets the link register result for BL to the successor instruction index", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		entry := h.run(isa.Instruction{Op: isa.OpBL, Dest: isa.Register(core.LR), Src1: isa.Label(0), Addr: 4})
		Expect(entry.Result).To(Equal(core.Word(5)))
	})

	It("flags a conditional branch mispredicted when the actual direction disagrees with the prediction", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		h.arf.Commit(core.FlagsReg, core.NZCV{Z: true}.Pack())
		iq := pipeline.NewInstrQueue(1)
		iq.Push(pipeline.IQEntry{
			Instr:  isa.Instruction{Op: isa.OpBEQ, Src1: isa.Label(0), Addr: 3},
			Branch: &pipeline.BranchRecord{PredictedTaken: false, FallThrough: 4},
		})
		h.rename.Issue(iq, &h.seq, 0)
		robIdx := h.rob.HeadIndex()
		for i := 0; i < 10 && !h.rob.Entry(robIdx).Done; i++ {
			h.disp.Dispatch(0)
			h.exec.Run(0)
		}

		entry := h.rob.Entry(robIdx)
		Expect(entry.ActualTaken).To(BeTrue())
		Expect(entry.ActualTarget).To(Equal(0))
		Expect(entry.Mispredicted).To(BeTrue())
	})

	It("agrees a conditional branch was correctly predicted when directions match", func() {
		h := newExecHarness(core.NewMemory(8), nil)
		h.arf.Commit(core.FlagsReg, core.NZCV{Z: false}.Pack())
		iq := pipeline.NewInstrQueue(1)
		iq.Push(pipeline.IQEntry{
			Instr:  isa.Instruction{Op: isa.OpBEQ, Src1: isa.Label(0), Addr: 3},
			Branch: &pipeline.BranchRecord{PredictedTaken: false, FallThrough: 4},
		})
		h.rename.Issue(iq, &h.seq, 0)
		robIdx := h.rob.HeadIndex()
		for i := 0; i < 10 && !h.rob.Entry(robIdx).Done; i++ {
			h.disp.Dispatch(0)
			h.exec.Run(0)
		}

		Expect(h.rob.Entry(robIdx).Mispredicted).To(BeFalse())
	})
})
