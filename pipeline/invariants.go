package pipeline

import "github.com/sarchlab/oosim/core"

// CheckInvariants verifies the reachable-state invariants of spec.md §8
// that are cheap to assert after any tick: free-list/live-register
// conservation (invariant 3) and ROB retired-count monotonicity is the
// caller's responsibility to track across ticks, since it requires
// comparing against a previous snapshot. Violations are StructuralViolation
// errors (spec.md §7), fatal by construction.
func (p *Pipeline) CheckInvariants() error {
	live := p.PRF.Size() - p.PRF.FreeCount()

	// A physical register is still allocated exactly until the ROB entry
	// whose old_phys it was retires. That is either the entry's current ARF
	// rename tag (not yet superseded by a later rename of the same
	// architectural register) or, for any still-in-flight entry, its
	// old_phys (kept alive for that entry's own flush rollback even after an
	// older same-register producer has already retired — a "zombie"
	// register the naive retired-count formula misses).
	owned := make(map[int]bool)
	for r := 0; r < core.NumArchTotal; r++ {
		if _, renamed, tag := p.ARF.Read(r); renamed {
			owned[tag] = true
		}
	}
	for _, e := range p.ROB.HeadEntries(p.ROB.Count()) {
		if e.ArchDest >= 0 && e.OldPhys != core.NoTag {
			owned[e.OldPhys] = true
		}
	}

	if live != len(owned) {
		return &StructuralViolation{Msg: "live physical registers do not match owned rename targets"}
	}
	return nil
}
