// Package program defines the program image external collaborators (the
// assembler/loader) hand to the pipeline: an ordered, fully-resolved
// instruction sequence plus a named data segment (spec.md §6).
package program

import "github.com/sarchlab/oosim/isa"

// Program is the external "program image" interface type of spec.md §6: an
// ordered sequence of decoded instructions with resolved labels and
// address-of references, plus a data segment of named words.
type Program struct {
	Instructions []isa.Instruction
	Data         []int64
	Symbols      map[string]int // data label name -> absolute word address
	EntryPC      int            // instruction index of the _start label
}

// NumInstructions returns the length of the program image.
func (p *Program) NumInstructions() int {
	return len(p.Instructions)
}
