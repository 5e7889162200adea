// Package bytecode defines the in-memory Bytecode container produced by
// pkg/codegen and consumed by pkg/binarycodec, pkg/textir, and pkg/vm.
//
// A Bytecode holds everything needed to run a Phasor program: an
// instruction stream, a constant pool, a variable-name-to-slot map, a
// function table (entry point + parameter count per name), and a struct
// table (field layout + default-value constants per struct type).
// Instructions reference all four by index; see Instruction and
// isa.OperandCount for per-opcode operand meaning.
//
// This generalizes the teacher's pkg/bytecode/bytecode.go — which only
// needed Instructions + a flat Constants pool, since smog's classes and
// globals live in separate runtime maps — with the variable map,
// function table, and struct table spec.md §3 requires.
package bytecode

import (
	"github.com/dmcguire/phasor/pkg/isa"
	"github.com/dmcguire/phasor/pkg/value"
)

// Instruction is a single bytecode instruction: a one-byte opcode plus
// five signed 32-bit operands. Which operands are meaningful is
// opcode-specific (isa.OperandCount).
type Instruction struct {
	Op       isa.Opcode
	Operands [5]int32
}

// StructEntry records one struct type's layout in the struct table:
// its name, ordered field names, and the index of the first of its
// per-field default-value constants in the constant pool (one constant
// per field, in field order — see spec.md §3, §9).
type StructEntry struct {
	Name             string
	Fields           []string
	DefaultConstBase int
}

// FieldCount reports how many fields this struct type declares.
func (s StructEntry) FieldCount() int { return len(s.Fields) }

// FieldOffset returns the index of name within s.Fields, or -1 if name
// is not a field of this struct.
func (s StructEntry) FieldOffset(name string) int {
	for i, f := range s.Fields {
		if f == name {
			return i
		}
	}
	return -1
}

// Bytecode is the compiled, in-memory form of a Phasor program.
type Bytecode struct {
	// Constants is the ordered constant pool, addressed by index.
	// Immutable once generation completes.
	Constants []value.Value

	// Variables maps identifier -> slot index. NextVarIndex is the
	// first unallocated slot (the cursor pkg/codegen advances on first
	// sight of each new identifier).
	Variables    map[string]int
	NextVarIndex int

	// Instructions is the full instruction stream; jump operands are
	// indices into this slice.
	Instructions []Instruction

	// FunctionEntries maps function name -> entry instruction index.
	// FunctionParamCounts is the parallel map of declared parameter
	// counts, used by CALL to know how many values to pop.
	// FunctionLocalCounts is the parallel map of how many frame-local
	// variable slots (params + locals) the function's Frame needs —
	// the per-frame-local variable slotting decision (spec.md §9) means
	// each call gets its own slot array sized by this count, instead of
	// sharing the top-level Variables/NextVarIndex slot space.
	FunctionEntries     map[string]int
	FunctionParamCounts map[string]int
	FunctionLocalCounts map[string]int

	// Structs maps struct name -> index into StructTable.
	Structs    map[string]int
	StructTable []StructEntry
}

// New returns an empty Bytecode ready for pkg/codegen to populate.
func New() *Bytecode {
	return &Bytecode{
		Variables:           make(map[string]int),
		FunctionEntries:     make(map[string]int),
		FunctionParamCounts: make(map[string]int),
		FunctionLocalCounts: make(map[string]int),
		Structs:             make(map[string]int),
	}
}

// Equal performs a field-by-field comparison, used by the text codec
// round-trip tests (spec.md §8, Testable Property 2).
func Equal(a, b *Bytecode) bool {
	if a.NextVarIndex != b.NextVarIndex {
		return false
	}
	if len(a.Constants) != len(b.Constants) {
		return false
	}
	for i := range a.Constants {
		if !a.Constants[i].Equal(b.Constants[i]) {
			return false
		}
	}
	if len(a.Variables) != len(b.Variables) {
		return false
	}
	for k, v := range a.Variables {
		if b.Variables[k] != v {
			return false
		}
	}
	if len(a.Instructions) != len(b.Instructions) {
		return false
	}
	for i := range a.Instructions {
		if a.Instructions[i] != b.Instructions[i] {
			return false
		}
	}
	if len(a.FunctionEntries) != len(b.FunctionEntries) {
		return false
	}
	for k, v := range a.FunctionEntries {
		if b.FunctionEntries[k] != v {
			return false
		}
	}
	for k, v := range a.FunctionParamCounts {
		if b.FunctionParamCounts[k] != v {
			return false
		}
	}
	for k, v := range a.FunctionLocalCounts {
		if b.FunctionLocalCounts[k] != v {
			return false
		}
	}
	if len(a.Structs) != len(b.Structs) {
		return false
	}
	for k, v := range a.Structs {
		if b.Structs[k] != v {
			return false
		}
	}
	if len(a.StructTable) != len(b.StructTable) {
		return false
	}
	for i := range a.StructTable {
		sa, sb := a.StructTable[i], b.StructTable[i]
		if sa.Name != sb.Name || sa.DefaultConstBase != sb.DefaultConstBase || len(sa.Fields) != len(sb.Fields) {
			return false
		}
		for j := range sa.Fields {
			if sa.Fields[j] != sb.Fields[j] {
				return false
			}
		}
	}
	return true
}
