// Package isa defines the restricted ARM-like instruction set the pipeline
// executes: the mnemonic set, operand shapes, and the decoded Instruction
// struct handed over by the external assembler/loader (spec.md §6).
package isa

import "fmt"

// Op identifies a decoded mnemonic.
type Op uint8

const (
	OpADD Op = iota
	OpSUB
	OpRSB
	OpMUL
	OpSDIV
	OpNEG
	OpAND
	OpORR
	OpEOR
	OpMVN
	OpMOV
	OpLDR
	OpSTR
	OpCMP
	OpTST
	OpTEQ
	OpB
	OpBX
	OpBL
	OpRET
	OpCBZ
	OpCBNZ
	OpBEQ
	OpBNE
	OpBLE
	OpBLT
	OpBGE
	OpBGT
	OpNOP
	OpDSB
	OpPRINTR
)

var opNames = map[Op]string{
	OpADD: "ADD", OpSUB: "SUB", OpRSB: "RSB", OpMUL: "MUL", OpSDIV: "SDIV",
	OpNEG: "NEG", OpAND: "AND", OpORR: "ORR", OpEOR: "EOR", OpMVN: "MVN",
	OpMOV: "MOV", OpLDR: "LDR", OpSTR: "STR", OpCMP: "CMP", OpTST: "TST",
	OpTEQ: "TEQ", OpB: "B", OpBX: "BX", OpBL: "BL", OpRET: "RET",
	OpCBZ: "CBZ", OpCBNZ: "CBNZ", OpBEQ: "BEQ", OpBNE: "BNE", OpBLE: "BLE",
	OpBLT: "BLT", OpBGE: "BGE", OpBGT: "BGT", OpNOP: "NOP", OpDSB: "DSB",
	OpPRINTR: "PRINTR",
}

// Mnemonics maps mnemonic text to its Op, the table the assembler and any
// other external loader consult when decoding a program image.
var Mnemonics = func() map[string]Op {
	m := make(map[string]Op, len(opNames))
	for op, name := range opNames {
		m[name] = op
	}
	return m
}()

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Op(%d)", o)
}

// IsBranch reports whether op is any branch/call/return form.
func (o Op) IsBranch() bool {
	switch o {
	case OpB, OpBX, OpBL, OpRET, OpCBZ, OpCBNZ,
		OpBEQ, OpBNE, OpBLE, OpBLT, OpBGE, OpBGT:
		return true
	default:
		return false
	}
}

// IsConditional reports whether op's outcome depends on NZCV or a register
// value rather than being unconditional.
func (o Op) IsConditional() bool {
	switch o {
	case OpBEQ, OpBNE, OpBLE, OpBLT, OpBGE, OpBGT, OpCBZ, OpCBNZ:
		return true
	default:
		return false
	}
}

// WritesFlags reports whether op defines NZCV.
func (o Op) WritesFlags() bool {
	switch o {
	case OpCMP, OpTST, OpTEQ:
		return true
	default:
		return false
	}
}

// Condition is the NZCV-derived condition a conditional branch tests.
type Condition uint8

const (
	CondEQ Condition = iota
	CondNE
	CondLE
	CondLT
	CondGE
	CondGT
	CondAL // always -- unconditional branches and CBZ/CBNZ don't consult NZCV
)

// ConditionFor returns the condition code implied by a conditional branch
// mnemonic.
func ConditionFor(op Op) Condition {
	switch op {
	case OpBEQ:
		return CondEQ
	case OpBNE:
		return CondNE
	case OpBLE:
		return CondLE
	case OpBLT:
		return CondLT
	case OpBGE:
		return CondGE
	case OpBGT:
		return CondGT
	default:
		return CondAL
	}
}

// Eval evaluates the condition against a flags word (see core.NZCV.Pack).
func (c Condition) Eval(n, z, cf, v bool) bool {
	switch c {
	case CondEQ:
		return z
	case CondNE:
		return !z
	case CondLE:
		return z || n != v
	case CondLT:
		return n != v
	case CondGE:
		return n == v
	case CondGT:
		return !z && n == v
	default:
		return true
	}
}

// Fixed architectural register aliases and the distinguished flags
// register, mirrored in core.SP/core.FP/core.LR/core.FlagsReg (spec.md §3,
// §9). Kept duplicated rather than imported so the decode layer has no
// dependency on the register-file package.
const (
	RegSP    = 29
	RegFP    = 30
	RegLR    = 31
	FlagsReg = 32
)

// OperandKind discriminates the Operand tagged union (spec.md §9).
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandRegister
	OperandImmediate
	OperandLabel      // bare label: a branch target, resolved to an instruction index
	OperandAddressOf  // =label: resolved to an absolute data-segment word address
	OperandMemIndirect // [reg]: register-indirect memory address
)

// Operand is a tagged union over the operand shapes spec.md §9 names.
type Operand struct {
	Kind OperandKind
	Reg  int   // valid when Kind == OperandRegister or OperandMemIndirect
	Imm  int64 // valid when Kind == OperandImmediate
	Addr int   // valid when Kind == OperandLabel (instruction index) or OperandAddressOf (word address)
}

// Register builds a register operand.
func Register(r int) Operand { return Operand{Kind: OperandRegister, Reg: r} }

// Immediate builds an immediate operand.
func Immediate(v int64) Operand { return Operand{Kind: OperandImmediate, Imm: v} }

// Label builds a resolved branch-target operand.
func Label(instrIndex int) Operand { return Operand{Kind: OperandLabel, Addr: instrIndex} }

// AddressOf builds a resolved =label operand.
func AddressOf(wordAddr int) Operand { return Operand{Kind: OperandAddressOf, Addr: wordAddr} }

// MemIndirect builds a [reg] operand.
func MemIndirect(r int) Operand { return Operand{Kind: OperandMemIndirect, Reg: r} }

// Instruction is the decoded, fully resolved form the frontend fetches:
// labels and address-of references are already absolute (spec.md §6).
type Instruction struct {
	Op   Op
	Dest Operand // architectural destination register, when the op writes one
	Src1 Operand
	Src2 Operand
	Addr int // instruction index of this instruction in the program image
}

// ReadsReg reports whether operand o is a register read this instruction
// consumes as a source (register operands and the base of a MemIndirect).
func (o Operand) ReadsReg() bool {
	return o.Kind == OperandRegister || o.Kind == OperandMemIndirect
}

// DecodeError reports an unknown mnemonic or an unsupported operand shape,
// spec.md §7's DecodeError kind, raised by the external loader (here, the
// program package's assembler).
type DecodeError struct {
	Line int
	Text string
	Msg  string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode error at line %d (%q): %s", e.Line, e.Text, e.Msg)
}
