package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/isa"
	"github.com/sarchlab/oosim/pipeline"
)

var _ = Describe("RenameStage", func() {
	var (
		arf *core.ARF
		prf *core.PRF
		rob *pipeline.ROB
		rs  *pipeline.RSPool
		sb  *pipeline.SB
		rn  *pipeline.RenameStage
		iq  *pipeline.InstrQueue
		seq uint64
	)

	BeforeEach(func() {
		arf = core.NewARF()
		prf = core.NewPRF(8)
		rob = pipeline.NewROB(4)
		rs = pipeline.NewRSPool(4)
		sb = pipeline.NewSB(4)
		rn = &pipeline.RenameStage{ARF: arf, PRF: prf, ROB: rob, RS: rs, SB: sb, NWide: 4}
		iq = pipeline.NewInstrQueue(8)
		seq = 0
	})

	It("issues an instruction whose sources are already committed directly to ISSUED_READY", func() {
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{
			Op: isa.OpADD, Dest: isa.Register(2), Src1: isa.Register(0), Src2: isa.Register(1),
		}})

		issued, stalled := rn.Issue(iq, &seq, 0)
		Expect(issued).To(Equal(1))
		Expect(stalled).To(BeFalse())
		Expect(rs.ReadyIndices()).To(HaveLen(1))
		Expect(seq).To(Equal(uint64(1)))
	})

	It("renames the destination register and advances the ARF rename tag", func() {
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{
			Op: isa.OpMOV, Dest: isa.Register(3), Src1: isa.Immediate(7),
		}})
		rn.Issue(iq, &seq, 0)

		_, renamed, tag := arf.Read(3)
		Expect(renamed).To(BeTrue())
		v, valid := prf.Read(tag)
		Expect(valid).To(BeFalse())
		_ = v
	})

	It("leaves an instruction at the IQ head when the ROB is full", func() {
		rn.ROB = pipeline.NewROB(0)
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{Op: isa.OpNOP}})

		issued, stalled := rn.Issue(iq, &seq, 0)
		Expect(issued).To(Equal(0))
		Expect(stalled).To(BeTrue())
		Expect(iq.Len()).To(Equal(1))
	})

	It("rolls back the ROB reservation when the physical register file is exhausted", func() {
		rn.PRF = core.NewPRF(0)
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{
			Op: isa.OpMOV, Dest: isa.Register(1), Src1: isa.Immediate(1),
		}})

		issued, stalled := rn.Issue(iq, &seq, 0)
		Expect(issued).To(Equal(0))
		Expect(stalled).To(BeTrue())
		Expect(rob.Count()).To(Equal(0))
	})

	It("rolls back both the ROB and the physical register allocation when the RS pool is full", func() {
		rn.RS = pipeline.NewRSPool(0)
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{
			Op: isa.OpMOV, Dest: isa.Register(1), Src1: isa.Immediate(1),
		}})
		freeBefore := prf.FreeCount()

		issued, stalled := rn.Issue(iq, &seq, 0)
		Expect(issued).To(Equal(0))
		Expect(stalled).To(BeTrue())
		Expect(rob.Count()).To(Equal(0))
		Expect(prf.FreeCount()).To(Equal(freeBefore))
	})

	It("rolls back the store buffer reservation and earlier allocations when the RS pool is full for a store", func() {
		rn.RS = pipeline.NewRSPool(0)
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{
			Op: isa.OpSTR, Src1: isa.Register(0), Src2: isa.MemIndirect(1),
		}})

		issued, stalled := rn.Issue(iq, &seq, 0)
		Expect(issued).To(Equal(0))
		Expect(stalled).To(BeTrue())
		Expect(sb.Count()).To(Equal(0))
		Expect(rob.Count()).To(Equal(0))
	})

	It("stops issuing mid-width once an instruction stalls, preserving program order", func() {
		rn.ROB = pipeline.NewROB(1)
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{Op: isa.OpNOP}})
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{Op: isa.OpNOP}})

		issued, stalled := rn.Issue(iq, &seq, 0)
		Expect(issued).To(Equal(1))
		Expect(stalled).To(BeTrue())
		Expect(iq.Len()).To(Equal(1))
	})

	It("resolves a source from the physical register file when the producer has already written back", func() {
		old := arf.Rename(0, 3)
		_ = old
		prf.Write(3, core.Word(55))
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{
			Op: isa.OpMOV, Dest: isa.Register(1), Src1: isa.Register(0),
		}})

		rn.Issue(iq, &seq, 0)
		Expect(rs.ReadyIndices()).To(HaveLen(1))
	})

	It("leaves a source not-ready when its producer has not written back yet", func() {
		arf.Rename(0, 3)
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{
			Op: isa.OpMOV, Dest: isa.Register(1), Src1: isa.Register(0),
		}})

		rn.Issue(iq, &seq, 0)
		Expect(rs.ReadyIndices()).To(BeEmpty())
	})

	It("routes a conditional branch's implicit flags read through the flags register's rename state", func() {
		arf.Rename(core.FlagsReg, 2)
		iq.Push(pipeline.IQEntry{Instr: isa.Instruction{
			Op: isa.OpBEQ, Src1: isa.Label(0),
		}, Branch: &pipeline.BranchRecord{FallThrough: 1}})

		rn.Issue(iq, &seq, 0)
		Expect(rs.ReadyIndices()).To(BeEmpty())

		prf.Write(2, core.Word(1))
		rs.Publish(2, core.Word(1))
		Expect(rs.ReadyIndices()).To(HaveLen(1))
	})
})
