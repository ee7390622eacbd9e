package program

import (
	"bufio"
	"strconv"
	"strings"

	"github.com/sarchlab/oosim/isa"
)

// Assemble parses the bracketed/semicolon assembly syntax of spec.md §6 into
// a Program. It is a small two-pass assembler (collect labels, then resolve
// operands), grounded on rcornwell-S370's emu/assemble package: the first
// pass records every label so forward references resolve in the second,
// which decodes each instruction through an opcode table keyed by mnemonic.
func Assemble(src string) (*Program, error) {
	lines := splitLines(src)

	instrSymbols := map[string]int{}
	dataSymbols := map[string]int{}
	var data []int64
	var instrLines []rawInstr
	entryLabel := "_start"

	section := "text"
	for lineNo, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		switch {
		case line == ".data":
			section = "data"
			continue
		case line == ".text":
			section = "text"
			continue
		case strings.HasPrefix(line, ".global"):
			fields := strings.Fields(line)
			if len(fields) == 2 {
				entryLabel = fields[1]
			}
			continue
		}

		if section == "data" {
			name, rest, hasLabel := splitLabel(line)
			if !hasLabel {
				return nil, &isa.DecodeError{Line: lineNo + 1, Text: raw, Msg: "data entry missing label"}
			}
			vals, err := parseDataDirective(rest)
			if err != nil {
				return nil, &isa.DecodeError{Line: lineNo + 1, Text: raw, Msg: err.Error()}
			}
			dataSymbols[name] = len(data)
			data = append(data, vals...)
			continue
		}

		// text section: a line may be "label:" alone, "label: INSTR ...;",
		// or just "INSTR ...;".
		name, rest, hasLabel := splitLabel(line)
		if hasLabel {
			instrSymbols[name] = len(instrLines)
			rest = strings.TrimSpace(rest)
			if rest == "" {
				continue
			}
		}
		instrLines = append(instrLines, rawInstr{lineNo: lineNo + 1, text: rest, orig: raw})
	}

	entryPC, ok := instrSymbols[entryLabel]
	if !ok {
		return nil, &isa.DecodeError{Line: 0, Text: entryLabel, Msg: "entry label not found"}
	}

	instrs := make([]isa.Instruction, len(instrLines))
	for i, ri := range instrLines {
		inst, err := decodeInstruction(ri.text, i, instrSymbols, dataSymbols)
		if err != nil {
			if de, ok := err.(*isa.DecodeError); ok {
				de.Line = ri.lineNo
				de.Text = ri.orig
				return nil, de
			}
			return nil, &isa.DecodeError{Line: ri.lineNo, Text: ri.orig, Msg: err.Error()}
		}
		instrs[i] = inst
	}

	return &Program{
		Instructions: instrs,
		Data:         data,
		Symbols:      dataSymbols,
		EntryPC:      entryPC,
	}, nil
}

type rawInstr struct {
	lineNo int
	text   string
	orig   string
}

func splitLines(src string) []string {
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(src))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines
}

// splitLabel splits "name: rest" into ("name", "rest", true), or returns
// ("", line, false) if line has no label prefix.
func splitLabel(line string) (name, rest string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", line, false
	}
	candidate := strings.TrimSpace(line[:idx])
	if candidate == "" || strings.ContainsAny(candidate, " \t") {
		return "", line, false
	}
	return candidate, line[idx+1:], true
}

func parseDataDirective(rest string) ([]int64, error) {
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, ".word") {
		return nil, errStr("expected .word directive")
	}
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ".word"))
	parts := strings.Split(rest, ",")
	vals := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 0, 64)
		if err != nil {
			return nil, errStr("bad .word literal " + p)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

type errStr string

func (e errStr) Error() string { return string(e) }

var regAliases = map[string]int{
	"sp": isa.RegSP, "fp": isa.RegFP, "lr": isa.RegLR,
}

func parseRegister(tok string) (int, bool) {
	tok = strings.ToLower(strings.TrimSpace(tok))
	if r, ok := regAliases[tok]; ok {
		return r, true
	}
	if len(tok) < 2 || tok[0] != 'r' {
		return 0, false
	}
	n, err := strconv.Atoi(tok[1:])
	if err != nil || n < 0 || n > 31 {
		return 0, false
	}
	return n, true
}

func parseOperand(tok string, instrSymbols, dataSymbols map[string]int) (isa.Operand, error) {
	tok = strings.TrimSpace(tok)
	switch {
	case strings.HasPrefix(tok, "#"):
		v, err := strconv.ParseInt(strings.TrimPrefix(tok, "#"), 0, 64)
		if err != nil {
			return isa.Operand{}, errStr("bad immediate " + tok)
		}
		return isa.Immediate(v), nil
	case strings.HasPrefix(tok, "="):
		name := strings.TrimPrefix(tok, "=")
		addr, ok := dataSymbols[name]
		if !ok {
			return isa.Operand{}, errStr("unknown data label " + name)
		}
		return isa.AddressOf(addr), nil
	case strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]"):
		inner := strings.TrimSpace(tok[1 : len(tok)-1])
		r, ok := parseRegister(inner)
		if !ok {
			return isa.Operand{}, errStr("bad register-indirect operand " + tok)
		}
		return isa.MemIndirect(r), nil
	default:
		if r, ok := parseRegister(tok); ok {
			return isa.Register(r), nil
		}
		idx, ok := instrSymbols[tok]
		if !ok {
			return isa.Operand{}, errStr("unknown label " + tok)
		}
		return isa.Label(idx), nil
	}
}

// decodeInstruction parses one semicolon-terminated instruction line.
func decodeInstruction(text string, selfIndex int, instrSymbols, dataSymbols map[string]int) (isa.Instruction, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, ";")
	fields := strings.SplitN(text, " ", 2)
	mnemonic := strings.ToUpper(strings.TrimSpace(fields[0]))

	op, ok := isa.Mnemonics[mnemonic]
	if !ok {
		return isa.Instruction{}, &isa.DecodeError{Msg: "unknown mnemonic " + mnemonic}
	}

	var args []string
	if len(fields) == 2 {
		for _, a := range strings.Split(fields[1], ",") {
			a = strings.TrimSpace(a)
			if a != "" {
				args = append(args, a)
			}
		}
	}

	operand := func(i int) (isa.Operand, error) {
		if i >= len(args) {
			return isa.Operand{}, errStr("missing operand")
		}
		return parseOperand(args[i], instrSymbols, dataSymbols)
	}

	inst := isa.Instruction{Op: op, Addr: selfIndex}

	switch op {
	case isa.OpADD, isa.OpSUB, isa.OpRSB, isa.OpMUL, isa.OpSDIV,
		isa.OpAND, isa.OpORR, isa.OpEOR:
		if len(args) != 3 {
			return isa.Instruction{}, errStr(mnemonic + " needs 3 operands")
		}
		d, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		n, err := operand(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		m, err := operand(2)
		if err != nil {
			return isa.Instruction{}, err
		}
		if d.Kind != isa.OperandRegister {
			return isa.Instruction{}, errStr("destination must be a register")
		}
		inst.Dest, inst.Src1, inst.Src2 = d, n, m

	case isa.OpNEG, isa.OpMVN, isa.OpMOV:
		if len(args) != 2 {
			return isa.Instruction{}, errStr(mnemonic + " needs 2 operands")
		}
		d, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		s, err := operand(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		if d.Kind != isa.OperandRegister {
			return isa.Instruction{}, errStr("destination must be a register")
		}
		if op == isa.OpMOV {
			if s.Kind != isa.OperandRegister && s.Kind != isa.OperandImmediate && s.Kind != isa.OperandAddressOf {
				return isa.Instruction{}, errStr("unsupported MOV source shape")
			}
		}
		inst.Dest, inst.Src1 = d, s

	case isa.OpLDR:
		if len(args) != 2 {
			return isa.Instruction{}, errStr("LDR needs 2 operands")
		}
		d, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		a, err := operand(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		if d.Kind != isa.OperandRegister || a.Kind != isa.OperandMemIndirect {
			return isa.Instruction{}, errStr("LDR Rd, [Rn] expected")
		}
		inst.Dest, inst.Src1 = d, a

	case isa.OpSTR:
		if len(args) != 2 {
			return isa.Instruction{}, errStr("STR needs 2 operands")
		}
		v, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		a, err := operand(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		if v.Kind != isa.OperandRegister || a.Kind != isa.OperandMemIndirect {
			return isa.Instruction{}, errStr("STR Rt, [Rn] expected")
		}
		inst.Src1, inst.Src2 = v, a

	case isa.OpCMP, isa.OpTST, isa.OpTEQ:
		if len(args) != 2 {
			return isa.Instruction{}, errStr(mnemonic + " needs 2 operands")
		}
		n, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		m, err := operand(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		inst.Src1, inst.Src2 = n, m
		inst.Dest = isa.Register(isa.FlagsReg)

	case isa.OpB, isa.OpBL, isa.OpBEQ, isa.OpBNE, isa.OpBLE, isa.OpBLT, isa.OpBGE, isa.OpBGT:
		if len(args) != 1 {
			return isa.Instruction{}, errStr(mnemonic + " needs a label operand")
		}
		t, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		if t.Kind != isa.OperandLabel {
			return isa.Instruction{}, errStr(mnemonic + " target must be a label")
		}
		inst.Src1 = t
		if op == isa.OpBL {
			inst.Dest = isa.Register(isa.RegLR)
		}

	case isa.OpCBZ, isa.OpCBNZ:
		if len(args) != 2 {
			return isa.Instruction{}, errStr(mnemonic + " needs Rn, label")
		}
		r, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		t, err := operand(1)
		if err != nil {
			return isa.Instruction{}, err
		}
		if r.Kind != isa.OperandRegister || t.Kind != isa.OperandLabel {
			return isa.Instruction{}, errStr(mnemonic + " Rn, label expected")
		}
		inst.Src1, inst.Src2 = r, t

	case isa.OpBX:
		if len(args) != 1 {
			return isa.Instruction{}, errStr("BX needs a register operand")
		}
		r, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		if r.Kind != isa.OperandRegister {
			return isa.Instruction{}, errStr("BX target must be a register")
		}
		inst.Src1 = r

	case isa.OpRET:
		if len(args) != 0 {
			return isa.Instruction{}, errStr("RET takes no operands")
		}
		inst.Src1 = isa.Register(isa.RegLR)

	case isa.OpPRINTR:
		if len(args) != 1 {
			return isa.Instruction{}, errStr("PRINTR needs a register operand")
		}
		r, err := operand(0)
		if err != nil {
			return isa.Instruction{}, err
		}
		if r.Kind != isa.OperandRegister {
			return isa.Instruction{}, errStr("PRINTR operand must be a register")
		}
		inst.Src1 = r

	case isa.OpNOP, isa.OpDSB:
		if len(args) != 0 {
			return isa.Instruction{}, errStr(mnemonic + " takes no operands")
		}

	default:
		return isa.Instruction{}, errStr("unsupported mnemonic " + mnemonic)
	}

	return inst, nil
}
