// Package textir implements the line-oriented textual intermediate
// representation described in spec.md §4.5 (recommended extension
// .phir): the diff-friendly distribution surface, as opposed to
// pkg/binarycodec's load-fast binary surface. Unlike the binary format,
// the struct table survives a text round trip.
//
// Each section is introduced by a directive line starting with '.'
// (.CONSTANTS, .VARIABLES, .FUNCTIONS, .STRUCTS, .INSTRUCTIONS).
// Instructions render as "OPCODE operand, operand, ...", with register
// operands as "rN", and may carry a trailing "; comment" with symbolic
// context (constant preview, variable name, function name) that Decode
// ignores. The per-opcode-family comment dispatch (constant index ->
// literal preview, variable index -> name, function index -> name)
// follows original_source/src/Codegen/IR/PhasorIR.cpp, which emits one
// such annotation per instruction class rather than a single generic
// "operand: N" note.
//
// DumpTable renders the same instruction stream as a fixed-width table
// (via github.com/olekukonko/tablewriter, from the pack's
// go-probe-master dependency stack) for interactive disassembly — a
// read-only diagnostic view, not a third serialization format.
package textir

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dmcguire/phasor/pkg/bytecode"
	"github.com/dmcguire/phasor/pkg/isa"
	"github.com/dmcguire/phasor/pkg/value"
	"github.com/olekukonko/tablewriter"
)

// Encode writes bc to w in the .phir textual format.
func Encode(bc *bytecode.Bytecode, w io.Writer) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, ".CONSTANTS %d\n", len(bc.Constants))
	for _, c := range bc.Constants {
		if err := encodeConstant(bw, c); err != nil {
			return err
		}
	}

	fmt.Fprintf(bw, ".VARIABLES %d %d\n", len(bc.Variables), bc.NextVarIndex)
	for name, slot := range bc.Variables {
		fmt.Fprintf(bw, "%s %d\n", escapeBare(name), slot)
	}

	fmt.Fprintf(bw, ".FUNCTIONS %d\n", len(bc.FunctionEntries))
	for name, entry := range bc.FunctionEntries {
		fmt.Fprintf(bw, "%s %d %d %d\n", escapeBare(name), entry, bc.FunctionParamCounts[name], bc.FunctionLocalCounts[name])
	}

	fmt.Fprintf(bw, ".STRUCTS %d\n", len(bc.StructTable))
	for _, s := range bc.StructTable {
		fmt.Fprintf(bw, "%s %d %d", escapeBare(s.Name), len(s.Fields), s.DefaultConstBase)
		for _, f := range s.Fields {
			fmt.Fprintf(bw, " %s", escapeBare(f))
		}
		bw.WriteByte('\n')
	}

	fmt.Fprintf(bw, ".INSTRUCTIONS %d\n", len(bc.Instructions))
	for _, ins := range bc.Instructions {
		if err := encodeInstruction(bw, bc, ins); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func encodeConstant(w io.Writer, v value.Value) error {
	switch v.Kind() {
	case value.Null:
		_, err := fmt.Fprintln(w, "NULL")
		return err
	case value.Bool:
		_, err := fmt.Fprintf(w, "BOOL %v\n", v.AsBool())
		return err
	case value.Int:
		_, err := fmt.Fprintf(w, "INT %d\n", v.AsInt())
		return err
	case value.Float:
		_, err := fmt.Fprintf(w, "FLOAT %s\n", strconv.FormatFloat(v.AsFloat(), 'g', -1, 64))
		return err
	case value.String:
		_, err := fmt.Fprintf(w, "STRING %s\n", quote(v.AsString()))
		return err
	default:
		return fmt.Errorf("textir: cannot encode constant of kind %s", v.Kind())
	}
}

// quote applies the escaping rules spec.md §4.5 specifies: \\, \", \n,
// \r, \t.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func unquote(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("textir: malformed string literal %q", s)
	}
	inner := s[1 : len(s)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(inner) {
			return "", fmt.Errorf("textir: dangling escape in %q", s)
		}
		switch inner[i] {
		case '\\':
			b.WriteByte('\\')
		case '"':
			b.WriteByte('"')
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			return "", fmt.Errorf("textir: unknown escape \\%c", inner[i])
		}
	}
	return b.String(), nil
}

// escapeBare returns a bare identifier field (variable/function/struct/field
// names) unchanged; no quoting is applied, so a name containing whitespace
// does not survive a round trip.
func escapeBare(s string) string { return s }

func encodeInstruction(w io.Writer, bc *bytecode.Bytecode, ins bytecode.Instruction) error {
	n := isa.OperandCount(ins.Op)
	var operands []string
	for i := 0; i < n; i++ {
		operands = append(operands, formatOperand(ins.Op, i, ins.Operands[i]))
	}
	line := isa.Name(ins.Op)
	if len(operands) > 0 {
		line += " " + strings.Join(operands, ", ")
	}
	if comment := annotate(bc, ins); comment != "" {
		line += "; " + comment
	}
	_, err := fmt.Fprintln(w, line)
	return err
}

// mixedOperandOpcodes lists register-form opcodes where only operand 0 is
// a register and the remaining operand is a plain index (a constant-pool
// index for LOAD_CONST_R, a variable slot for LOAD_VAR_R/STORE_VAR_R).
var mixedOperandOpcodes = map[isa.Opcode]bool{
	isa.LoadConstR: true, isa.LoadVarR: true, isa.StoreVarR: true,
}

// formatOperand renders a single operand: register-form opcodes render
// register operands as "rN"; plain index operands (including the
// non-register operand of the mixed opcodes above) render as a raw
// signed value.
func formatOperand(op isa.Opcode, idx int, v int32) string {
	if isa.IsRegisterForm(op) && !(mixedOperandOpcodes[op] && idx > 0) {
		return fmt.Sprintf("r%d", v)
	}
	return strconv.Itoa(int(v))
}

// annotate produces the symbolic-context comment for ins, dispatched by
// opcode family the way original_source/src/Codegen/IR/PhasorIR.cpp does:
// a constant-pool operand gets a literal preview, a variable-slot operand
// gets the identifier name, a function operand gets the function name.
func annotate(bc *bytecode.Bytecode, ins bytecode.Instruction) string {
	preview := func(idx int32) string {
		if int(idx) < 0 || int(idx) >= len(bc.Constants) {
			return fmt.Sprintf("const[%d]=?", idx)
		}
		return fmt.Sprintf("const[%d]=%s", idx, value.Display(bc.Constants[idx]))
	}
	varName := func(slot int32) string {
		for name, s := range bc.Variables {
			if int32(s) == slot {
				return fmt.Sprintf("var=%s", name)
			}
		}
		return fmt.Sprintf("var[%d]", slot)
	}
	funcName := func(idx int32) string {
		if int(idx) < 0 || int(idx) >= len(bc.Constants) {
			return ""
		}
		return fmt.Sprintf("func=%s", value.Display(bc.Constants[idx]))
	}

	switch ins.Op {
	case isa.PushConst, isa.NewStruct, isa.GetField, isa.SetField:
		return preview(ins.Operands[0])
	case isa.LoadVar, isa.StoreVar:
		return varName(ins.Operands[0])
	case isa.LoadVarR, isa.StoreVarR:
		return varName(ins.Operands[1])
	case isa.Call:
		return funcName(ins.Operands[0])
	case isa.CallNative:
		return preview(ins.Operands[0])
	case isa.NewStructInstanceStatic:
		if int(ins.Operands[0]) < len(bc.StructTable) {
			return fmt.Sprintf("struct=%s", bc.StructTable[ins.Operands[0]].Name)
		}
	case isa.GetFieldStatic, isa.SetFieldStatic:
		si := ins.Operands[0]
		if int(si) < len(bc.StructTable) {
			s := bc.StructTable[si]
			off := int(ins.Operands[1])
			if off >= 0 && off < len(s.Fields) {
				return fmt.Sprintf("struct=%s field=%s", s.Name, s.Fields[off])
			}
			return fmt.Sprintf("struct=%s", s.Name)
		}
	case isa.Jump, isa.JumpIfFalse, isa.JumpIfTrue, isa.JumpBack:
		return fmt.Sprintf("target=%d", ins.Operands[0])
	}
	return ""
}

// Decode parses a .phir stream produced by Encode back into a Bytecode.
// All fields survive except comments (spec.md §4.5).
func Decode(r io.Reader) (*bytecode.Bytecode, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	bc := bytecode.New()

	nextDirective := func() (string, []string, bool, error) {
		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if line[0] != '.' {
				return "", nil, false, fmt.Errorf("textir: expected directive, got %q", line)
			}
			fields := strings.Fields(line)
			return fields[0], fields[1:], true, nil
		}
		return "", nil, false, sc.Err()
	}

	dir, args, ok, err := nextDirective()
	if err != nil {
		return nil, err
	}
	if !ok || dir != ".CONSTANTS" {
		return nil, fmt.Errorf("textir: expected .CONSTANTS directive")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return nil, err
	}
	bc.Constants = make([]value.Value, n)
	for i := 0; i < n; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("textir: unexpected EOF in constants section")
		}
		v, err := decodeConstantLine(strings.TrimSpace(sc.Text()))
		if err != nil {
			return nil, err
		}
		bc.Constants[i] = v
	}

	dir, args, ok, err = nextDirective()
	if err != nil {
		return nil, err
	}
	if !ok || dir != ".VARIABLES" {
		return nil, fmt.Errorf("textir: expected .VARIABLES directive")
	}
	varCount, _ := strconv.Atoi(args[0])
	bc.NextVarIndex, _ = strconv.Atoi(args[1])
	bc.Variables = make(map[string]int, varCount)
	for i := 0; i < varCount; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("textir: unexpected EOF in variables section")
		}
		fields := strings.Fields(sc.Text())
		slot, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, err
		}
		bc.Variables[fields[0]] = slot
	}

	dir, args, ok, err = nextDirective()
	if err != nil {
		return nil, err
	}
	if !ok || dir != ".FUNCTIONS" {
		return nil, fmt.Errorf("textir: expected .FUNCTIONS directive")
	}
	fnCount, _ := strconv.Atoi(args[0])
	bc.FunctionEntries = make(map[string]int, fnCount)
	bc.FunctionParamCounts = make(map[string]int, fnCount)
	bc.FunctionLocalCounts = make(map[string]int, fnCount)
	for i := 0; i < fnCount; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("textir: unexpected EOF in functions section")
		}
		fields := strings.Fields(sc.Text())
		entry, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, err
		}
		bc.FunctionEntries[fields[0]] = entry
		if len(fields) > 2 {
			if p, err := strconv.Atoi(fields[2]); err == nil {
				bc.FunctionParamCounts[fields[0]] = p
			}
		}
		if len(fields) > 3 {
			if l, err := strconv.Atoi(fields[3]); err == nil {
				bc.FunctionLocalCounts[fields[0]] = l
			}
		}
	}

	dir, args, ok, err = nextDirective()
	if err != nil {
		return nil, err
	}
	if !ok || dir != ".STRUCTS" {
		return nil, fmt.Errorf("textir: expected .STRUCTS directive")
	}
	structCount, _ := strconv.Atoi(args[0])
	bc.Structs = make(map[string]int, structCount)
	bc.StructTable = make([]bytecode.StructEntry, structCount)
	for i := 0; i < structCount; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("textir: unexpected EOF in structs section")
		}
		fields := strings.Fields(sc.Text())
		fieldCount, _ := strconv.Atoi(fields[1])
		base, _ := strconv.Atoi(fields[2])
		entry := bytecode.StructEntry{Name: fields[0], DefaultConstBase: base, Fields: fields[3 : 3+fieldCount]}
		bc.StructTable[i] = entry
		bc.Structs[entry.Name] = i
	}

	dir, args, ok, err = nextDirective()
	if err != nil {
		return nil, err
	}
	if !ok || dir != ".INSTRUCTIONS" {
		return nil, fmt.Errorf("textir: expected .INSTRUCTIONS directive")
	}
	insCount, _ := strconv.Atoi(args[0])
	bc.Instructions = make([]bytecode.Instruction, insCount)
	for i := 0; i < insCount; i++ {
		if !sc.Scan() {
			return nil, fmt.Errorf("textir: unexpected EOF in instructions section")
		}
		ins, err := decodeInstructionLine(sc.Text())
		if err != nil {
			return nil, err
		}
		bc.Instructions[i] = ins
	}

	return bc, sc.Err()
}

func decodeConstantLine(line string) (value.Value, error) {
	sp := strings.IndexByte(line, ' ')
	var kw, rest string
	if sp < 0 {
		kw, rest = line, ""
	} else {
		kw, rest = line[:sp], strings.TrimSpace(line[sp+1:])
	}
	switch kw {
	case "NULL":
		return value.NewNull(), nil
	case "BOOL":
		return value.NewBool(rest == "true"), nil
	case "INT":
		i, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewInt(i), nil
	case "FLOAT":
		f, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewFloat(f), nil
	case "STRING":
		s, err := unquote(rest)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewString(s), nil
	default:
		return value.Value{}, fmt.Errorf("textir: unknown constant keyword %q", kw)
	}
}

func decodeInstructionLine(line string) (bytecode.Instruction, error) {
	if i := strings.Index(line, "; "); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)
	sp := strings.IndexByte(line, ' ')
	var mnemonic, rest string
	if sp < 0 {
		mnemonic, rest = line, ""
	} else {
		mnemonic, rest = line[:sp], strings.TrimSpace(line[sp+1:])
	}
	op, ok := isa.ByName(mnemonic)
	if !ok {
		return bytecode.Instruction{}, fmt.Errorf("textir: unknown opcode mnemonic %q", mnemonic)
	}
	var ins bytecode.Instruction
	ins.Op = op
	if rest == "" {
		return ins, nil
	}
	parts := strings.Split(rest, ",")
	for i, p := range parts {
		if i >= 5 {
			break
		}
		p = strings.TrimSpace(p)
		p = strings.TrimPrefix(p, "r")
		n, err := strconv.Atoi(p)
		if err != nil {
			return bytecode.Instruction{}, fmt.Errorf("textir: bad operand %q: %w", p, err)
		}
		ins.Operands[i] = int32(n)
	}
	return ins, nil
}

// DumpTable renders bc's instruction stream as a fixed-width table
// (index, opcode, operands, annotation) for interactive disassembly.
func DumpTable(bc *bytecode.Bytecode, w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"IP", "OPCODE", "OPERANDS", "NOTE"})
	table.SetAutoWrapText(false)
	for ip, ins := range bc.Instructions {
		n := isa.OperandCount(ins.Op)
		var operands []string
		for i := 0; i < n; i++ {
			operands = append(operands, formatOperand(ins.Op, i, ins.Operands[i]))
		}
		table.Append([]string{
			strconv.Itoa(ip),
			isa.Name(ins.Op),
			strings.Join(operands, ", "),
			annotate(bc, ins),
		})
	}
	table.Render()
}
