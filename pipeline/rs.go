package pipeline

import (
	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/isa"
)

// opDescriptor is the "operation (opcode + condition code)" field of
// spec.md §3's RS slot.
type opDescriptor struct {
	Op   isa.Op
	Cond isa.Condition
}

// RSState is the reservation-station slot state machine of spec.md §3.
type RSState uint8

const (
	RSFree RSState = iota
	RSIssuedWaiting
	RSIssuedReady
	RSDispatched
)

// BranchRecord is the prediction snapshot attached to a branch instruction
// at fetch time and carried through the IQ, RS and ROB (spec.md §4.1).
type BranchRecord struct {
	PredictedTaken  bool
	PredictedTarget int // instruction index, valid when PredictedTaken
	FallThrough     int // PC+1, the not-taken successor
}

// srcOperand is one reservation-station source: either already resolved to
// a value, or still waiting on a physical register's producer.
type srcOperand struct {
	used  bool
	ready bool
	tag   int       // physical register id, valid when used && !ready
	val   core.Word // resolved value, valid when used && ready
}

// RSSlot is one reservation-station entry (spec.md §3). At most two sources:
// general ALU ops read Rn/Rm, STR reads value+base, LDR reads base, CBZ/CBNZ
// and conditional branches read a single tested register or the flags
// register.
type RSSlot struct {
	State RSState

	Seq      uint64 // program-order sequence number, assigned at issue
	ROBIndex int    // owning ROB slot
	InstrPC  int    // instruction index, for trace

	Op    opDescriptor
	Instr isa.Instruction // decoded instruction, consulted at execute for operand shapes
	Src   [2]srcOperand
	Dest  int // destination physical register, -1 if the op writes none

	IsStore bool
	SBIndex int // valid when IsStore

	Branch *BranchRecord // non-nil for branch ops
}

func (s *RSSlot) free() *RSSlot {
	*s = RSSlot{State: RSFree}
	return s
}

// allSourcesReady reports whether every used source has resolved to a value.
func (s *RSSlot) allSourcesReady() bool {
	for _, src := range s.Src {
		if src.used && !src.ready {
			return false
		}
	}
	return true
}

// latch resolves any source currently waiting on producerPhys, publishing
// value into it and re-evaluating readiness. Called on every result-bus
// publish (spec.md §4.4): "every RS waiting on phys_reg latches the value
// and re-evaluates readiness (same tick)".
func (s *RSSlot) latch(producerPhys int, value core.Word) {
	if s.State != RSIssuedWaiting {
		return
	}
	for i := range s.Src {
		src := &s.Src[i]
		if src.used && !src.ready && src.tag == producerPhys {
			src.ready = true
			src.val = value
		}
	}
	if s.allSourcesReady() {
		s.State = RSIssuedReady
	}
}

// RSPool is the fixed-size array of reservation stations (spec.md §3, §9:
// "arena + index for graph-like links").
type RSPool struct {
	slots []RSSlot
}

// NewRSPool allocates n free reservation-station slots.
func NewRSPool(n int) *RSPool {
	return &RSPool{slots: make([]RSSlot, n)}
}

// Len returns the pool's fixed capacity.
func (p *RSPool) Len() int { return len(p.slots) }

// Slot returns a pointer to reservation-station slot i.
func (p *RSPool) Slot(i int) *RSSlot { return &p.slots[i] }

// Alloc finds a free slot, reserves it by marking it ISSUED_WAITING, and
// returns its index; the caller fills the slot and promotes it to
// ISSUED_READY once all sources have resolved.
func (p *RSPool) Alloc() (idx int, ok bool) {
	for i := range p.slots {
		if p.slots[i].State == RSFree {
			p.slots[i].State = RSIssuedWaiting
			return i, true
		}
	}
	return 0, false
}

// Free returns slot i to the free pool.
func (p *RSPool) Free(i int) {
	p.slots[i].free()
}

// FreeBySeq frees every allocated slot whose program-order sequence number
// is in seqs, used by pipeline flush (spec.md §4.5: "release its RS slot").
func (p *RSPool) FreeBySeq(seqs map[uint64]bool) {
	for i := range p.slots {
		if p.slots[i].State != RSFree && seqs[p.slots[i].Seq] {
			p.slots[i].free()
		}
	}
}

// Publish latches value on every waiting slot sourced from producerPhys,
// as the result bus does each tick (spec.md §4.4).
func (p *RSPool) Publish(producerPhys int, value core.Word) {
	for i := range p.slots {
		p.slots[i].latch(producerPhys, value)
	}
}

// ReadyIndices returns the indices of all ISSUED_READY slots, oldest-first
// by sequence number, the dispatch selection order of spec.md §4.3.
func (p *RSPool) ReadyIndices() []int {
	out := make([]int, 0, len(p.slots))
	for i := range p.slots {
		if p.slots[i].State == RSIssuedReady {
			out = append(out, i)
		}
	}
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && p.slots[out[j-1]].Seq > p.slots[out[j]].Seq {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}
