package pipeline

import "fmt"

// FaultKind discriminates the error kinds of spec.md §7 that can be attached
// to a ROB entry and delivered at retirement.
type FaultKind uint8

const (
	FaultMemoryOutOfBounds FaultKind = iota
	FaultDivideByZero
)

// Fault is an architectural event (never a speculative one: spec.md §7
// requires memory faults and divide-by-zero be attached at execute but only
// delivered at retirement) carried on a ROB entry.
type Fault struct {
	Kind FaultKind
	Addr int // meaningful for FaultMemoryOutOfBounds
}

func (f *Fault) Error() string {
	switch f.Kind {
	case FaultMemoryOutOfBounds:
		return fmt.Sprintf("memory out of bounds at address %d", f.Addr)
	case FaultDivideByZero:
		return "divide by zero"
	default:
		return "unknown fault"
	}
}

// StructuralViolation reports an invariant check failing (spec.md §7): it is
// always fatal and aborts the run with context.
type StructuralViolation struct {
	Msg string
}

func (e *StructuralViolation) Error() string {
	return "structural violation: " + e.Msg
}

// Fatal reports whether the driver should treat this error as terminating
// the run with a non-zero exit code.
func (e *StructuralViolation) Fatal() bool { return true }
