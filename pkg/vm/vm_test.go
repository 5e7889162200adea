package vm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dmcguire/phasor/pkg/ast"
	"github.com/dmcguire/phasor/pkg/bytecode"
	"github.com/dmcguire/phasor/pkg/codegen"
	"github.com/dmcguire/phasor/pkg/isa"
	"github.com/dmcguire/phasor/pkg/value"
)

func prog(stmts ...ast.Statement) *ast.Program {
	return &ast.Program{Statements: stmts}
}

func exprStmt(e ast.Expression) *ast.ExpressionStatement {
	return &ast.ExpressionStatement{Expr: e}
}

func num(text string) *ast.NumberLiteral { return &ast.NumberLiteral{Text: text} }

func bin(op string, l, r ast.Expression) *ast.BinaryExpr {
	return &ast.BinaryExpr{Op: op, Left: l, Right: r}
}

// runProgram compiles p and executes it to completion on a fresh VM,
// returning the captured stdout and the fault (nil on a clean halt).
func runProgram(t *testing.T, p *ast.Program) (string, error) {
	t.Helper()
	bc, err := codegen.Generate(p)
	if err != nil {
		t.Fatalf("codegen.Generate: %v", err)
	}
	return runBytecode(t, bc)
}

func runBytecode(t *testing.T, bc *bytecode.Bytecode) (string, error) {
	t.Helper()
	v := New()
	var out bytes.Buffer
	v.Out = &out
	h := v.Load(bc)
	err := v.Execute(h)
	return out.String(), err
}

func TestArithmeticPrecedenceAndPrint(t *testing.T) {
	// print 1 + 2 * 3;  =>  7, right operand evaluated on top per the
	// documented pop2 order.
	p := prog(&ast.PrintStatement{
		Value: bin("+", num("1"), bin("*", num("2"), num("3"))),
	})
	out, err := runProgram(t, p)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "7\n" {
		t.Errorf("got %q, want %q", out, "7\n")
	}
}

func TestVarDeclAndStringConcat(t *testing.T) {
	p := prog(
		&ast.VarDecl{Name: "x", Init: &ast.StringLiteral{Value: "foo"}},
		&ast.PrintStatement{Value: bin("+", &ast.Identifier{Name: "x"}, &ast.StringLiteral{Value: "bar"})},
	)
	out, err := runProgram(t, p)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "foobar\n" {
		t.Errorf("got %q, want %q", out, "foobar\n")
	}
}

func TestIntegerDivisionByZeroFaults(t *testing.T) {
	p := prog(exprStmt(bin("/", num("1"), num("0"))))
	_, err := runProgram(t, p)
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if rerr.Kind != ArithmeticErrorKind {
		t.Errorf("got kind %v, want arithmetic", rerr.Kind)
	}
}

func TestFunctionCallAndReturn(t *testing.T) {
	// fn add(a, b) { return a + b; }
	// print add(3, 4);
	add := &ast.FunctionDecl{
		Name:   "add",
		Params: []ast.Param{{Name: "a"}, {Name: "b"}},
		Body: &ast.BlockStatement{Statements: []ast.Statement{
			&ast.ReturnStatement{Value: bin("+", &ast.Identifier{Name: "a"}, &ast.Identifier{Name: "b"})},
		}},
	}
	call := &ast.PrintStatement{Value: &ast.CallExpr{Callee: "add", Args: []ast.Expression{num("3"), num("4")}}}
	p := prog(add, call)
	out, err := runProgram(t, p)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "7\n" {
		t.Errorf("got %q, want %q", out, "7\n")
	}
}

func TestStructFieldAssignmentAsExpression(t *testing.T) {
	// struct Point { x: int }
	// var p = Point{ x: 1 };
	// print (p.x = p.x + 1);
	structDecl := &ast.StructDecl{Name: "Point", Fields: []ast.FieldDecl{{Name: "x", Type: &ast.TypeNode{Name: "int"}}}}
	makeP := &ast.VarDecl{
		Name: "p",
		Init: &ast.StructInstanceExpr{StructName: "Point", Fields: []ast.FieldInit{{Name: "x", Value: num("1")}}},
	}
	assign := &ast.PrintStatement{
		Value: &ast.AssignExpr{
			Target: &ast.FieldExpr{Receiver: &ast.Identifier{Name: "p"}, Field: "x"},
			Value:  bin("+", &ast.FieldExpr{Receiver: &ast.Identifier{Name: "p"}, Field: "x"}, num("1")),
		},
	}
	p := prog(structDecl, makeP, assign)
	out, err := runProgram(t, p)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "2\n" {
		t.Errorf("got %q, want %q", out, "2\n")
	}
}

func TestArrayLiteralIndexAndAssign(t *testing.T) {
	// var a = [1, 2, 3];
	// a[1] = 9;
	// print a[1];
	arr := &ast.VarDecl{Name: "a", Init: &ast.ArrayLiteral{Elements: []ast.Expression{num("1"), num("2"), num("3")}}}
	assign := exprStmt(&ast.AssignExpr{
		Target: &ast.IndexExpr{Array: &ast.Identifier{Name: "a"}, Index: num("1")},
		Value:  num("9"),
	})
	print := &ast.PrintStatement{Value: &ast.IndexExpr{Array: &ast.Identifier{Name: "a"}, Index: num("1")}}
	p := prog(arr, assign, print)
	out, err := runProgram(t, p)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "9\n" {
		t.Errorf("got %q, want %q", out, "9\n")
	}
}

func TestRanOffEndWithoutHaltIsFatal(t *testing.T) {
	bc := bytecode.New()
	bc.Constants = append(bc.Constants, value.NewInt(1))
	bc.Instructions = []bytecode.Instruction{
		{Op: isa.PushConst, Operands: [5]int32{0}},
	}
	_, err := runBytecode(t, bc)
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if rerr.Kind != StructuralError {
		t.Errorf("got kind %v, want structural", rerr.Kind)
	}
	if !strings.Contains(rerr.Error(), "ran off the end") {
		t.Errorf("message %q does not mention running off the end", rerr.Error())
	}
}

func TestHaltOpcodeIsCleanHalt(t *testing.T) {
	bc := bytecode.New()
	bc.Instructions = []bytecode.Instruction{{Op: isa.Halt}}
	_, err := runBytecode(t, bc)
	if err != nil {
		t.Fatalf("expected a clean halt, got %v", err)
	}
}

func TestReturnFromBottomFrameIsCleanHalt(t *testing.T) {
	bc := bytecode.New()
	bc.Instructions = []bytecode.Instruction{
		{Op: isa.Null},
		{Op: isa.Return},
	}
	_, err := runBytecode(t, bc)
	if err != nil {
		t.Fatalf("expected a clean halt from the bottom frame, got %v", err)
	}
}

func TestPopFromEmptyStackIsStackError(t *testing.T) {
	bc := bytecode.New()
	bc.Instructions = []bytecode.Instruction{{Op: isa.Pop}}
	_, err := runBytecode(t, bc)
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if rerr.Kind != StackErrorKind {
		t.Errorf("got kind %v, want stack", rerr.Kind)
	}
}

func TestCharAtOutOfRangeIsEmptyString(t *testing.T) {
	bc := bytecode.New()
	bc.Constants = append(bc.Constants, value.NewString("hi"), value.NewInt(99))
	bc.Instructions = []bytecode.Instruction{
		{Op: isa.PushConst, Operands: [5]int32{0}},
		{Op: isa.PushConst, Operands: [5]int32{1}},
		{Op: isa.CharAt},
		{Op: isa.Print},
		{Op: isa.Halt},
	}
	out, err := runBytecode(t, bc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "\n" {
		t.Errorf("got %q, want empty-string print", out)
	}
}

func TestSubstrClampsOverlongLength(t *testing.T) {
	bc := bytecode.New()
	bc.Constants = append(bc.Constants, value.NewString("hello"), value.NewInt(1), value.NewInt(100))
	bc.Instructions = []bytecode.Instruction{
		{Op: isa.PushConst, Operands: [5]int32{0}}, // string
		{Op: isa.PushConst, Operands: [5]int32{1}}, // start
		{Op: isa.PushConst, Operands: [5]int32{2}}, // length
		{Op: isa.Substr},
		{Op: isa.Print},
		{Op: isa.Halt},
	}
	out, err := runBytecode(t, bc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "ello\n" {
		t.Errorf("got %q, want %q", out, "ello\n")
	}
}

func TestRegisterFormArithmetic(t *testing.T) {
	// r0 = 2 (const), r1 = 3 (const), r2 = r0 + r1, print r2
	bc := bytecode.New()
	bc.Constants = append(bc.Constants, value.NewInt(2), value.NewInt(3))
	bc.Instructions = []bytecode.Instruction{
		{Op: isa.LoadConstR, Operands: [5]int32{0, 0}},
		{Op: isa.LoadConstR, Operands: [5]int32{1, 1}},
		{Op: isa.IAddR, Operands: [5]int32{2, 0, 1}},
		{Op: isa.PrintR, Operands: [5]int32{2}},
		{Op: isa.Halt},
	}
	out, err := runBytecode(t, bc)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out != "5\n" {
		t.Errorf("got %q, want %q", out, "5\n")
	}
}

func TestUnknownOpcodeIsStructuralFault(t *testing.T) {
	bc := bytecode.New()
	bc.Instructions = []bytecode.Instruction{{Op: isa.Opcode(250)}}
	_, err := runBytecode(t, bc)
	rerr, ok := err.(*RuntimeError)
	if !ok {
		t.Fatalf("expected *RuntimeError, got %v", err)
	}
	if rerr.Kind != StructuralError {
		t.Errorf("got kind %v, want structural", rerr.Kind)
	}
}

func TestMultipleInstancesAreIsolated(t *testing.T) {
	// Two loads of the same bytecode must not share Variables or Frames.
	bc := bytecode.New()
	bc.Variables["x"] = 0
	bc.NextVarIndex = 1
	bc.Constants = append(bc.Constants, value.NewInt(1), value.NewInt(2))
	bcA := *bc
	bcA.Instructions = []bytecode.Instruction{
		{Op: isa.PushConst, Operands: [5]int32{0}},
		{Op: isa.StoreVar, Operands: [5]int32{0}},
		{Op: isa.Halt},
	}
	v := New()
	hA := v.Load(&bcA)
	hB := v.Load(&bcA)
	if err := v.Execute(hA); err != nil {
		t.Fatalf("Execute hA: %v", err)
	}
	instA, _ := v.instance(hA)
	instB, _ := v.instance(hB)
	if !instA.Variables[0].Equal(value.NewInt(1)) {
		t.Errorf("instance A's variable not set")
	}
	if instB.Variables[0].Kind() != value.Null {
		t.Errorf("instance B's variable should remain unset, got %v", instB.Variables[0])
	}
}
