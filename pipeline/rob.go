package pipeline

import "github.com/sarchlab/oosim/core"

// ROBEntry is one reorder-buffer slot (spec.md §3).
type ROBEntry struct {
	Valid bool
	Seq   uint64

	ArchDest int // architectural register, -1 if the op writes none
	OldPhys  int // for free-on-retire and flush restoration
	NewPhys  int // -1 if ArchDest == -1

	InstrPC int

	IsStore bool
	SBIndex int

	Branch       *BranchRecord
	ActualTaken  bool
	ActualTarget int
	Mispredicted bool

	Done   bool
	Result core.Word
	Fault  *Fault
}

// ROB is the fixed-capacity circular reorder buffer: a contiguous
// program-order window, head retires, tail allocates (spec.md §3).
type ROB struct {
	entries []ROBEntry
	head    int
	count   int
}

// NewROB allocates a ROB with the given capacity.
func NewROB(capacity int) *ROB {
	return &ROB{entries: make([]ROBEntry, capacity)}
}

// Capacity returns the fixed ROB size.
func (r *ROB) Capacity() int { return len(r.entries) }

// Count returns the number of live (un-retired) entries.
func (r *ROB) Count() int { return r.count }

// Empty reports whether the ROB holds no in-flight instructions, part of
// the clean-halt condition of spec.md §6.
func (r *ROB) Empty() bool { return r.count == 0 }

func (r *ROB) slotAt(dist int) int {
	return (r.head + dist) % len(r.entries)
}

// Alloc reserves the tail slot, or fails if the ROB is full (a stall per
// spec.md §5).
func (r *ROB) Alloc(seq uint64) (idx int, ok bool) {
	if r.count == len(r.entries) {
		return 0, false
	}
	idx = r.slotAt(r.count)
	r.entries[idx] = ROBEntry{Valid: true, Seq: seq, ArchDest: -1, OldPhys: core.NoTag, NewPhys: core.NoTag, SBIndex: -1}
	r.count++
	return idx, true
}

// RollbackAlloc undoes the most recent Alloc, used when a later step of
// issue (RS/SB/PRF reservation) fails after the ROB slot was reserved
// (spec.md §4.2: "fail -> stall (roll back ROB reservation)").
func (r *ROB) RollbackAlloc() {
	r.count--
	idx := r.slotAt(r.count)
	r.entries[idx] = ROBEntry{}
}

// Entry returns a pointer to ROB slot idx.
func (r *ROB) Entry(idx int) *ROBEntry { return &r.entries[idx] }

// HeadIndex returns the slot index of the oldest live entry; only valid
// when Count() > 0.
func (r *ROB) HeadIndex() int { return r.head }

// HeadEntries returns up to n pointers to contiguous entries starting at
// head, in program order; CheckInvariants uses it to walk the live window.
func (r *ROB) HeadEntries(n int) []*ROBEntry {
	if n > r.count {
		n = r.count
	}
	out := make([]*ROBEntry, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &r.entries[r.slotAt(i)])
	}
	return out
}

// RetireHead pops the oldest entry.
func (r *ROB) RetireHead() {
	r.entries[r.head] = ROBEntry{}
	r.head = (r.head + 1) % len(r.entries)
	r.count--
}

// DrainAll removes every remaining live entry and returns them newest-first
// (tail to head), the order spec.md §4.5's flush restoration walks in so
// that, for a register renamed by more than one flushed entry, the last
// restore applied is the oldest flushed entry's old_phys.
func (r *ROB) DrainAll() []ROBEntry {
	out := make([]ROBEntry, 0, r.count)
	for i := r.count - 1; i >= 0; i-- {
		out = append(out, r.entries[r.slotAt(i)])
	}
	for i := range r.entries {
		r.entries[i] = ROBEntry{}
	}
	r.count = 0
	return out
}
