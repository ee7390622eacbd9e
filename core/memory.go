package core

import "fmt"

// Memory is a flat array of words. There is no sub-word access and no
// caching: committed stores go directly here (spec.md §1, §3).
type Memory struct {
	words []Word
}

// NewMemory allocates a zero-filled memory of the given size, in words.
func NewMemory(size int) *Memory {
	return &Memory{words: make([]Word, size)}
}

// Size returns the number of addressable words.
func (m *Memory) Size() int {
	return len(m.words)
}

// OutOfBoundsError reports a load or store outside the memory image,
// spec.md §7's MemoryOutOfBounds kind.
type OutOfBoundsError struct {
	Addr int
	Size int
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("memory access at %d out of bounds (size %d)", e.Addr, e.Size)
}

// Read returns the word at addr, or an OutOfBoundsError.
func (m *Memory) Read(addr int) (Word, error) {
	if addr < 0 || addr >= len(m.words) {
		return 0, &OutOfBoundsError{Addr: addr, Size: len(m.words)}
	}
	return m.words[addr], nil
}

// Write stores value at addr, or returns an OutOfBoundsError.
func (m *Memory) Write(addr int, value Word) error {
	if addr < 0 || addr >= len(m.words) {
		return &OutOfBoundsError{Addr: addr, Size: len(m.words)}
	}
	m.words[addr] = value
	return nil
}
