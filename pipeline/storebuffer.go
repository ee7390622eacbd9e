package pipeline

import "github.com/sarchlab/oosim/core"

const addrUnknown = -1

// SBEntry is one store-buffer slot (spec.md §3, §4.6).
type SBEntry struct {
	Valid bool
	Seq   uint64 // program-order sequence number, for forwarding comparisons

	ROBIndex int

	Addr  int // word address, addrUnknown until the store executes
	Value core.Word

	Ready             bool // address and value resolved
	CommittedEligible bool // owning ROB entry retired
	Faulted           bool // address was out of bounds; never written to memory
}

// SB is the fixed-capacity ordered ring of uncommitted stores (spec.md §3,
// §4.6).
type SB struct {
	entries []SBEntry
	head    int
	count   int
}

// NewSB allocates a store buffer with the given capacity.
func NewSB(capacity int) *SB {
	return &SB{entries: make([]SBEntry, capacity)}
}

// Count returns the number of live (undrained) entries.
func (b *SB) Count() int { return b.count }

// Empty reports whether every store has drained to memory, part of the
// clean-halt condition of spec.md §6.
func (b *SB) Empty() bool { return b.count == 0 }

func (b *SB) slotAt(dist int) int {
	return (b.head + dist) % len(b.entries)
}

// Alloc reserves the tail slot for a store issued with program-order
// sequence number seq and owning ROB index rob, or fails if the SB is full.
func (b *SB) Alloc(seq uint64, rob int) (idx int, ok bool) {
	if b.count == len(b.entries) {
		return 0, false
	}
	idx = b.slotAt(b.count)
	b.entries[idx] = SBEntry{Valid: true, Seq: seq, ROBIndex: rob, Addr: addrUnknown}
	b.count++
	return idx, true
}

// RollbackAlloc undoes the most recent Alloc, mirroring ROB.RollbackAlloc
// for the atomic-issue rollback of spec.md §4.2.
func (b *SB) RollbackAlloc() {
	b.count--
	b.entries[b.slotAt(b.count)] = SBEntry{}
}

// Entry returns a pointer to store-buffer slot idx.
func (b *SB) Entry(idx int) *SBEntry { return &b.entries[idx] }

// MarkEligible marks the store owned by ROB entry rob as committed_eligible
// (spec.md §4.5 step 2), called at the owning entry's retirement. Entries
// already eligible are skipped: they belong to an older store that held the
// same (since recycled) ROB slot and has not drained yet.
func (b *SB) MarkEligible(rob int) {
	for i := 0; i < b.count; i++ {
		e := &b.entries[b.slotAt(i)]
		if e.ROBIndex == rob && !e.CommittedEligible {
			e.CommittedEligible = true
			return
		}
	}
}

// DrainEligible commits up to n head-eligible entries to memory in SB
// order, the lfb_count-bounded committer of spec.md §4.6.
func (b *SB) DrainEligible(n int, mem *core.Memory) (drained int, err error) {
	for drained < n && b.count > 0 {
		e := &b.entries[b.head]
		if !e.CommittedEligible {
			break
		}
		if !e.Ready {
			break
		}
		if !e.Faulted {
			if err := mem.Write(e.Addr, e.Value); err != nil {
				return drained, err
			}
		}
		b.entries[b.head] = SBEntry{}
		b.head = (b.head + 1) % len(b.entries)
		b.count--
		drained++
	}
	return drained, nil
}

// ForwardResult is the outcome of an SB forwarding snoop (spec.md §4.6).
type ForwardResult struct {
	Found bool // an older store to the same address exists
	Ready bool // valid only when Found: whether its value is available
	Value core.Word
}

// Forward resolves a load at address addr issued with sequence number
// loadSeq against the store buffer: the newest entry strictly older than
// the load with a matching, already-known address supplies the value.
// An older entry whose address has not yet resolved blocks the search,
// since it might alias addr (spec.md §4.6's "if the matching older store
// exists but its value is not yet ready, the load waits" is extended here
// to "might match" for addresses still unresolved, a conservative
// disambiguation choice).
func (b *SB) Forward(loadSeq uint64, addr int) ForwardResult {
	for i := b.count - 1; i >= 0; i-- {
		e := &b.entries[b.slotAt(i)]
		if e.Seq >= loadSeq {
			continue
		}
		if e.Addr == addrUnknown {
			return ForwardResult{Found: true, Ready: false}
		}
		if e.Addr == addr {
			return ForwardResult{Found: true, Ready: e.Ready, Value: e.Value}
		}
	}
	return ForwardResult{Found: false}
}

// CancelSeq invalidates every entry whose program-order sequence number is
// in seqs, called during pipeline flush (spec.md §4.5). Because the SB
// preserves program order like the ROB, the cancelled entries are always a
// tail run; once a non-cancelled entry is reached the scan stops.
func (b *SB) CancelSeq(seqs map[uint64]bool) {
	for b.count > 0 {
		idx := b.slotAt(b.count - 1)
		if !seqs[b.entries[idx].Seq] {
			break
		}
		b.entries[idx] = SBEntry{}
		b.count--
	}
}
