package pipeline_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/oosim/pipeline"
)

var _ = Describe("BranchPredictor", func() {
	var bp *pipeline.BranchPredictor

	BeforeEach(func() {
		bp = pipeline.NewBranchPredictor()
	})

	It("predicts unconditional branches taken at their static target", func() {
		taken, target := bp.Predict(10, true, false, 20, 0)
		Expect(taken).To(BeTrue())
		Expect(target).To(Equal(20))
	})

	It("predicts a backward conditional branch taken", func() {
		taken, target := bp.Predict(10, false, false, 3, 0)
		Expect(taken).To(BeTrue())
		Expect(target).To(Equal(3))
	})

	It("predicts a forward conditional branch not-taken", func() {
		taken, _ := bp.Predict(10, false, false, 15, 0)
		Expect(taken).To(BeFalse())
	})

	It("predicts an indirect branch taken at the supplied lr hint", func() {
		taken, target := bp.Predict(10, false, true, 0, 42)
		Expect(taken).To(BeTrue())
		Expect(target).To(Equal(42))
	})

	It("tallies accuracy and misprediction counts on Update", func() {
		bp.Predict(1, true, false, 5, 0)
		bp.Update(true, true)
		bp.Predict(2, false, false, 20, 0)
		bp.Update(false, true)

		stats := bp.Stats()
		Expect(stats.Predictions).To(Equal(uint64(2)))
		Expect(stats.Correct).To(Equal(uint64(1)))
		Expect(stats.Mispredictions).To(Equal(uint64(1)))
		Expect(stats.MispredictionRate()).To(Equal(0.5))
	})

	It("reports a zero misprediction rate before any prediction is made", func() {
		Expect(bp.Stats().MispredictionRate()).To(Equal(0.0))
	})
})
