package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/pipeline"
)

var _ = Describe("SB", func() {
	var sb *pipeline.SB

	BeforeEach(func() {
		sb = pipeline.NewSB(4)
	})

	It("allocates into the tail and fails once full", func() {
		for i := 0; i < 4; i++ {
			_, ok := sb.Alloc(uint64(i), i)
			Expect(ok).To(BeTrue())
		}
		_, ok := sb.Alloc(99, 99)
		Expect(ok).To(BeFalse())
	})

	It("marks the entry owned by a given ROB index eligible", func() {
		idx, _ := sb.Alloc(1, 7)
		sb.MarkEligible(7)
		Expect(sb.Entry(idx).CommittedEligible).To(BeTrue())
	})

	It("drains only eligible, ready entries, up to the per-tick bound, in order", func() {
		mem := core.NewMemory(8)
		idx0, _ := sb.Alloc(1, 0)
		idx1, _ := sb.Alloc(2, 1)
		sb.Entry(idx0).Addr, sb.Entry(idx0).Value, sb.Entry(idx0).Ready = 2, 111, true
		sb.Entry(idx1).Addr, sb.Entry(idx1).Value, sb.Entry(idx1).Ready = 3, 222, true
		sb.MarkEligible(0)
		sb.MarkEligible(1)

		n, err := sb.DrainEligible(1, mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(sb.Count()).To(Equal(1))

		v, _ := mem.Read(2)
		Expect(v).To(Equal(core.Word(111)))

		n, err = sb.DrainEligible(1, mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(1))
		Expect(sb.Empty()).To(BeTrue())
	})

	It("refuses to drain an entry that has not yet become eligible", func() {
		mem := core.NewMemory(8)
		idx, _ := sb.Alloc(1, 0)
		sb.Entry(idx).Addr, sb.Entry(idx).Value, sb.Entry(idx).Ready = 0, 5, true

		n, err := sb.DrainEligible(4, mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	It("refuses to drain an eligible entry whose value is not yet ready", func() {
		mem := core.NewMemory(8)
		idx, _ := sb.Alloc(1, 0)
		sb.MarkEligible(0)
		sb.Entry(idx).Ready = false

		n, err := sb.DrainEligible(4, mem)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(0))
	})

	Describe("Forward", func() {
		It("reports no match when no older store exists", func() {
			fr := sb.Forward(0, 5)
			Expect(fr.Found).To(BeFalse())
		})

		It("forwards the newest older ready store to the matching address", func() {
			idx0, _ := sb.Alloc(1, 0)
			idx1, _ := sb.Alloc(2, 1)
			sb.Entry(idx0).Addr, sb.Entry(idx0).Value, sb.Entry(idx0).Ready = 5, 1, true
			sb.Entry(idx1).Addr, sb.Entry(idx1).Value, sb.Entry(idx1).Ready = 5, 2, true

			fr := sb.Forward(3, 5)
			Expect(fr.Found).To(BeTrue())
			Expect(fr.Ready).To(BeTrue())
			Expect(fr.Value).To(Equal(core.Word(2)))
		})

		It("ignores stores that are not older than the load by sequence", func() {
			idx0, _ := sb.Alloc(10, 0)
			sb.Entry(idx0).Addr, sb.Entry(idx0).Value, sb.Entry(idx0).Ready = 5, 1, true

			fr := sb.Forward(3, 5)
			Expect(fr.Found).To(BeFalse())
		})

		It("blocks on an older store whose address has not yet resolved, even if a matching address appears further back", func() {
			idx0, _ := sb.Alloc(1, 0)
			idx1, _ := sb.Alloc(2, 1)
			sb.Entry(idx0).Addr, sb.Entry(idx0).Value, sb.Entry(idx0).Ready = 5, 1, true
			// idx1's address is still unresolved.

			fr := sb.Forward(3, 5)
			Expect(fr.Found).To(BeTrue())
			Expect(fr.Ready).To(BeFalse())
		})
	})

	It("cancels only the tail run of flushed sequence numbers", func() {
		_, _ = sb.Alloc(1, 0)
		_, _ = sb.Alloc(2, 1)
		_, _ = sb.Alloc(3, 2)

		sb.CancelSeq(map[uint64]bool{2: true, 3: true})

		Expect(sb.Count()).To(Equal(1))
		Expect(sb.Entry(0).Seq).To(Equal(uint64(1)))
	})
})
