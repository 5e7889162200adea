package textir

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dmcguire/phasor/pkg/bytecode"
	"github.com/dmcguire/phasor/pkg/isa"
	"github.com/dmcguire/phasor/pkg/value"
)

func sampleBytecode() *bytecode.Bytecode {
	bc := bytecode.New()
	bc.Constants = []value.Value{
		value.NewInt(1), value.NewFloat(2.5), value.NewString("hi\n\"there\""),
		value.NewString("main"), value.NewString("p"), value.NewNull(), value.NewBool(true),
	}
	bc.Variables = map[string]int{"x": 0, "y": 1}
	bc.NextVarIndex = 2
	bc.FunctionEntries = map[string]int{"main": 0}
	bc.FunctionParamCounts = map[string]int{"main": 0}
	bc.FunctionLocalCounts = map[string]int{"main": 2}
	bc.Structs = map[string]int{"Point": 0}
	bc.StructTable = []bytecode.StructEntry{
		{Name: "Point", Fields: []string{"x", "y"}, DefaultConstBase: 0},
	}
	bc.Instructions = []bytecode.Instruction{
		{Op: isa.PushConst, Operands: [5]int32{0}},
		{Op: isa.LoadVar, Operands: [5]int32{0}},
		{Op: isa.IAdd},
		{Op: isa.LoadConstR, Operands: [5]int32{1, 1}},
		{Op: isa.StoreVarR, Operands: [5]int32{1, 0}},
		{Op: isa.IAddR, Operands: [5]int32{2, 0, 1}},
		{Op: isa.Jump, Operands: [5]int32{0}},
		{Op: isa.NewStructInstanceStatic, Operands: [5]int32{0}},
		{Op: isa.GetFieldStatic, Operands: [5]int32{0, 1}},
		{Op: isa.Halt},
	}
	return bc
}

// TestTextRoundTrip checks Testable Property 2: decode(encode(b)) == b
// ignoring comments, and the struct table survives.
func TestTextRoundTrip(t *testing.T) {
	bc := sampleBytecode()
	var buf bytes.Buffer
	if err := Encode(bc, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode: %v\n%s", err, buf.String())
	}
	if !bytecode.Equal(bc, got) {
		t.Errorf("round trip mismatch:\nwant %+v\ngot  %+v", bc, got)
	}
}

func TestEncodeContainsAnnotations(t *testing.T) {
	bc := sampleBytecode()
	var buf bytes.Buffer
	if err := Encode(bc, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "; var=x") {
		t.Errorf("expected a var=x annotation, got:\n%s", out)
	}
	if !strings.Contains(out, "struct=Point") {
		t.Errorf("expected a struct=Point annotation, got:\n%s", out)
	}
}

func TestDecodeIgnoresComments(t *testing.T) {
	bc := sampleBytecode()
	var buf bytes.Buffer
	if err := Encode(bc, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	mutated := strings.ReplaceAll(buf.String(), "; var=x", "; some other note entirely")
	got, err := Decode(strings.NewReader(mutated))
	if err != nil {
		t.Fatalf("Decode with mutated comment: %v", err)
	}
	if !bytecode.Equal(bc, got) {
		t.Errorf("comment mutation should not affect decoded semantics")
	}
}

func TestQuoteUnquoteEscaping(t *testing.T) {
	s := "line1\nline2\t\"quoted\"\\backslash\r"
	q := quote(s)
	back, err := unquote(q)
	if err != nil {
		t.Fatalf("unquote: %v", err)
	}
	if back != s {
		t.Errorf("escape round trip: got %q want %q", back, s)
	}
}

func TestDumpTableRenders(t *testing.T) {
	bc := sampleBytecode()
	var buf bytes.Buffer
	DumpTable(bc, &buf)
	out := buf.String()
	if !strings.Contains(out, "PUSH_CONST") {
		t.Errorf("expected disassembly table to mention PUSH_CONST, got:\n%s", out)
	}
	if !strings.Contains(out, "HALT") {
		t.Errorf("expected disassembly table to mention HALT, got:\n%s", out)
	}
}
