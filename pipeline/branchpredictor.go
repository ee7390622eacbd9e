package pipeline

// BranchPredictorStats mirrors the teacher's bimodal predictor's stat
// shape (Predictions/Correct/Mispredictions), generalized to a static
// policy that has no BTB to report hit rates for.
type BranchPredictorStats struct {
	Predictions    uint64
	Correct        uint64
	Mispredictions uint64
}

// MispredictionRate returns the misprediction rate as a fraction in [0,1].
func (s BranchPredictorStats) MispredictionRate() float64 {
	if s.Predictions == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Predictions)
}

// BranchPredictor implements the static policy of spec.md §4.7: backward
// branches taken, forward branches not-taken, unconditional branches always
// taken, BX lr always taken. It carries no per-PC state (nothing to index
// a BHT/BTB with beyond the static rule), only aggregate statistics,
// updated on retirement per spec.md §4.7's last sentence.
type BranchPredictor struct {
	stats BranchPredictorStats
}

// NewBranchPredictor returns a predictor with zeroed statistics.
func NewBranchPredictor() *BranchPredictor {
	return &BranchPredictor{}
}

// Predict returns the predicted-taken decision and, if taken, the target
// instruction index for a branch at instruction index pc with static
// target target (meaningless for BX/RET, where lrHint supplies the
// predicted return address instead).
//
// isBackward is target <= pc: a branch whose target does not advance the
// PC is predicted taken (loop-closing branches are the common case).
func (bp *BranchPredictor) Predict(pc int, unconditional bool, isIndirect bool, target int, lrHint int) (taken bool, predictedTarget int) {
	bp.stats.Predictions++

	switch {
	case isIndirect:
		return true, lrHint
	case unconditional:
		return true, target
	case target <= pc:
		return true, target
	default:
		return false, 0
	}
}

// Update records the observed outcome of a retired branch against its
// prediction (spec.md §4.7: "updated on retirement").
func (bp *BranchPredictor) Update(predictedTaken bool, actualTaken bool) {
	if predictedTaken == actualTaken {
		bp.stats.Correct++
	} else {
		bp.stats.Mispredictions++
	}
}

// Stats returns the predictor's accumulated statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}
