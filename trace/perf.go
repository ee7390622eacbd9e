package trace

import "fmt"

// PerfMonitor accumulates the counters spec.md §6(b) names and produces
// periodic snapshots, computing derived rates the way the teacher's
// BranchPredictorStats computes Accuracy/MispredictionRate from raw counts.
type PerfMonitor struct {
	Cycles         uint64
	Retired        uint64
	Stalls         uint64
	Mispredictions uint64
}

// Snapshot is an immutable perf-counter reading, spec.md §6(b).
type Snapshot struct {
	Cycles         uint64
	Retired        uint64
	Stalls         uint64
	Mispredictions uint64
	IPC            float64
}

// TickCycle advances the cycle counter, called once per pipeline Tick.
func (m *PerfMonitor) TickCycle() {
	m.Cycles++
}

// RecordRetired adds n to the retired-instruction counter.
func (m *PerfMonitor) RecordRetired(n int) {
	m.Retired += uint64(n)
}

// RecordStall records a stage stall (a full queue/pool preventing forward
// progress), not an error per spec.md §7.
func (m *PerfMonitor) RecordStall() {
	m.Stalls++
}

// RecordMisprediction records a retired branch misprediction.
func (m *PerfMonitor) RecordMisprediction() {
	m.Mispredictions++
}

// Snapshot returns the current counters plus derived IPC.
func (m *PerfMonitor) Snapshot() Snapshot {
	s := Snapshot{
		Cycles:         m.Cycles,
		Retired:        m.Retired,
		Stalls:         m.Stalls,
		Mispredictions: m.Mispredictions,
	}
	if m.Cycles > 0 {
		s.IPC = float64(m.Retired) / float64(m.Cycles)
	}
	return s
}

// String renders a snapshot line suitable for the CLI driver's periodic
// report (spec.md §6(b)).
func (s Snapshot) String() string {
	return fmt.Sprintf("cycles=%d retired=%d ipc=%.3f stalls=%d mispredictions=%d",
		s.Cycles, s.Retired, s.IPC, s.Stalls, s.Mispredictions)
}
