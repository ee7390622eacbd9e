package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oosim/pipeline"
)

var _ = Describe("ROB", func() {
	var rob *pipeline.ROB

	BeforeEach(func() {
		rob = pipeline.NewROB(3)
	})

	It("allocates into the tail and fails once full", func() {
		_, ok := rob.Alloc(1)
		Expect(ok).To(BeTrue())
		_, ok = rob.Alloc(2)
		Expect(ok).To(BeTrue())
		_, ok = rob.Alloc(3)
		Expect(ok).To(BeTrue())
		_, ok = rob.Alloc(4)
		Expect(ok).To(BeFalse())
	})

	It("rolls back the most recent allocation", func() {
		_, _ = rob.Alloc(1)
		Expect(rob.Count()).To(Equal(1))
		rob.RollbackAlloc()
		Expect(rob.Count()).To(Equal(0))
		Expect(rob.Empty()).To(BeTrue())
	})

	It("retires the head in order, advancing the window", func() {
		idx0, _ := rob.Alloc(1)
		_, _ = rob.Alloc(2)
		Expect(rob.HeadIndex()).To(Equal(idx0))

		rob.RetireHead()
		Expect(rob.Count()).To(Equal(1))
	})

	It("wraps the head index around the ring as entries retire and reallocate", func() {
		_, _ = rob.Alloc(1)
		_, _ = rob.Alloc(2)
		_, _ = rob.Alloc(3)
		rob.RetireHead()
		rob.RetireHead()
		idx, ok := rob.Alloc(4)
		Expect(ok).To(BeTrue())
		_, ok = rob.Alloc(5)
		Expect(ok).To(BeTrue())
		Expect(idx).To(BeNumerically(">=", 0))
		Expect(rob.Count()).To(Equal(3))
	})

	It("returns head-to-tail entries in program order", func() {
		i0, _ := rob.Alloc(10)
		i1, _ := rob.Alloc(11)
		rob.Entry(i0).InstrPC = 100
		rob.Entry(i1).InstrPC = 200

		entries := rob.HeadEntries(2)
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].InstrPC).To(Equal(100))
		Expect(entries[1].InstrPC).To(Equal(200))
	})

	It("drains every live entry newest-first and empties the ROB", func() {
		_, _ = rob.Alloc(1)
		_, _ = rob.Alloc(2)
		_, _ = rob.Alloc(3)

		drained := rob.DrainAll()
		Expect(drained).To(HaveLen(3))
		Expect(drained[0].Seq).To(Equal(uint64(3)))
		Expect(drained[1].Seq).To(Equal(uint64(2)))
		Expect(drained[2].Seq).To(Equal(uint64(1)))
		Expect(rob.Empty()).To(BeTrue())
		Expect(rob.Count()).To(Equal(0))
	})
})
