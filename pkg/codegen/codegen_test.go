package codegen

import (
	"testing"

	"github.com/dmcguire/phasor/pkg/ast"
	"github.com/dmcguire/phasor/pkg/isa"
	"github.com/dmcguire/phasor/pkg/value"
)

func prog(stmts ...ast.Statement) *ast.Program {
	return &ast.Program{Statements: stmts}
}

func exprStmt(e ast.Expression) *ast.ExpressionStatement {
	return &ast.ExpressionStatement{Expr: e}
}

func block(stmts ...ast.Statement) *ast.BlockStatement {
	return &ast.BlockStatement{Statements: stmts}
}

func TestCompileIntegerLiteral(t *testing.T) {
	bc, err := Generate(prog(exprStmt(&ast.NumberLiteral{Text: "42"})))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(bc.Instructions) != 3 {
		t.Fatalf("expected 3 instructions (PUSH_CONST, POP, HALT), got %d", len(bc.Instructions))
	}
	if bc.Instructions[0].Op != isa.PushConst {
		t.Errorf("expected PUSH_CONST, got %v", bc.Instructions[0].Op)
	}
	if bc.Instructions[1].Op != isa.Pop {
		t.Errorf("expected POP, got %v", bc.Instructions[1].Op)
	}
	if got := bc.Constants[0]; !got.Equal(value.NewInt(42)) {
		t.Errorf("expected constant 42, got %v", got)
	}
}

func TestCompileFloatLiteral(t *testing.T) {
	bc, err := Generate(prog(exprStmt(&ast.NumberLiteral{Text: "3.5"})))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !bc.Constants[0].Equal(value.NewFloat(3.5)) {
		t.Errorf("expected constant 3.5, got %v", bc.Constants[0])
	}
}

func TestConstantInterning(t *testing.T) {
	bc, err := Generate(prog(
		exprStmt(&ast.NumberLiteral{Text: "7"}),
		exprStmt(&ast.NumberLiteral{Text: "7"}),
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(bc.Constants) != 1 {
		t.Fatalf("expected constant 7 to be interned once, got %d constants", len(bc.Constants))
	}
}

func TestCompileVarDeclAndIdentifier(t *testing.T) {
	bc, err := Generate(prog(
		&ast.VarDecl{Name: "x", Init: &ast.NumberLiteral{Text: "42"}},
		exprStmt(&ast.Identifier{Name: "x"}),
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// PUSH_CONST 42, STORE_VAR 0, LOAD_VAR 0, POP
	want := []isa.Opcode{isa.PushConst, isa.StoreVar, isa.LoadVar, isa.Pop}
	for i, op := range want {
		if bc.Instructions[i].Op != op {
			t.Fatalf("instruction %d: want %v got %v", i, op, bc.Instructions[i].Op)
		}
	}
	if bc.Instructions[1].Operands[0] != 0 || bc.Instructions[2].Operands[0] != 0 {
		t.Errorf("expected slot 0 for x, got store=%d load=%d",
			bc.Instructions[1].Operands[0], bc.Instructions[2].Operands[0])
	}
	if bc.NextVarIndex != 1 {
		t.Errorf("expected NextVarIndex 1, got %d", bc.NextVarIndex)
	}
}

func TestCompileAssignExprReloadsValue(t *testing.T) {
	bc, err := Generate(prog(
		&ast.VarDecl{Name: "x"},
		exprStmt(&ast.AssignExpr{Target: &ast.Identifier{Name: "x"}, Value: &ast.NumberLiteral{Text: "1"}}),
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// var x: NULL, STORE_VAR 0; assign: PUSH_CONST 1, STORE_VAR 0, LOAD_VAR 0, POP
	tail := bc.Instructions[2:]
	want := []isa.Opcode{isa.PushConst, isa.StoreVar, isa.LoadVar, isa.Pop}
	for i, op := range want {
		if tail[i].Op != op {
			t.Fatalf("tail instruction %d: want %v got %v", i, op, tail[i].Op)
		}
	}
}

func TestBinaryOpcodeSpecialization(t *testing.T) {
	tests := []struct {
		name     string
		left     ast.Expression
		right    ast.Expression
		op       string
		wantLast isa.Opcode
	}{
		{"int+int", &ast.NumberLiteral{Text: "1"}, &ast.NumberLiteral{Text: "2"}, "+", isa.IAdd},
		{"int+float", &ast.NumberLiteral{Text: "1"}, &ast.NumberLiteral{Text: "2.0"}, "+", isa.FAdd},
		{"string+string", &ast.StringLiteral{Value: "a"}, &ast.StringLiteral{Value: "b"}, "+", isa.FAdd},
		{"int==int", &ast.NumberLiteral{Text: "1"}, &ast.NumberLiteral{Text: "2"}, "==", isa.IEq},
		{"unknown==unknown", &ast.Identifier{Name: "x"}, &ast.Identifier{Name: "y"}, "==", isa.FEq},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc, err := Generate(prog(
				&ast.VarDecl{Name: "x"}, &ast.VarDecl{Name: "y"},
				exprStmt(&ast.BinaryExpr{Op: tt.op, Left: tt.left, Right: tt.right}),
			))
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			// the binary op opcode is always emitted immediately before the
			// trailing POP of the expression statement and the closing HALT.
			got := bc.Instructions[len(bc.Instructions)-3].Op
			if got != tt.wantLast {
				t.Errorf("want %v got %v", tt.wantLast, got)
			}
		})
	}
}

func TestShortCircuitAndLowering(t *testing.T) {
	bc, err := Generate(prog(
		&ast.VarDecl{Name: "a", Type: &ast.TypeNode{Name: "bool"}},
		&ast.VarDecl{Name: "b", Type: &ast.TypeNode{Name: "bool"}},
		exprStmt(&ast.BinaryExpr{
			Op:    "&&",
			Left:  &ast.Identifier{Name: "a"},
			Right: &ast.Identifier{Name: "b"},
		}),
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	foundJumpIfFalse := false
	for _, in := range bc.Instructions {
		if in.Op == isa.JumpIfFalse {
			foundJumpIfFalse = true
		}
	}
	if !foundJumpIfFalse {
		t.Errorf("expected a JUMP_IF_FALSE for short-circuit &&, instructions: %+v", bc.Instructions)
	}
}

func TestShortCircuitConstantFolding(t *testing.T) {
	bc, err := Generate(prog(
		exprStmt(&ast.BinaryExpr{
			Op:    "&&",
			Left:  &ast.BoolLiteral{Value: true},
			Right: &ast.BoolLiteral{Value: false},
		}),
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if bc.Instructions[0].Op != isa.FalseP {
		t.Errorf("expected constant-folded FALSE_P, got %v", bc.Instructions[0].Op)
	}
}

func TestCompileIfElse(t *testing.T) {
	bc, err := Generate(prog(&ast.IfStatement{
		Cond: &ast.BoolLiteral{Value: true},
		Then: block(exprStmt(&ast.NumberLiteral{Text: "1"})),
		Else: block(exprStmt(&ast.NumberLiteral{Text: "2"})),
	}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ops := make([]isa.Opcode, len(bc.Instructions))
	for i, in := range bc.Instructions {
		ops[i] = in.Op
	}
	want := []isa.Opcode{isa.True, isa.JumpIfFalse, isa.PushConst, isa.Pop, isa.Jump, isa.PushConst, isa.Pop, isa.Halt}
	if len(ops) != len(want) {
		t.Fatalf("want %v got %v", want, ops)
	}
	for i := range want {
		if ops[i] != want[i] {
			t.Fatalf("instruction %d: want %v got %v", i, want[i], ops[i])
		}
	}
	// JUMP_IF_FALSE must target the else branch's first instruction (index 5).
	if bc.Instructions[1].Operands[0] != 5 {
		t.Errorf("JUMP_IF_FALSE target: want 5 got %d", bc.Instructions[1].Operands[0])
	}
	// the Jump after the then-branch must target the end (index 7, the HALT).
	if bc.Instructions[4].Operands[0] != 7 {
		t.Errorf("JUMP target: want 7 got %d", bc.Instructions[4].Operands[0])
	}
}

func TestCompileWhileWithBreakAndContinue(t *testing.T) {
	bc, err := Generate(prog(&ast.WhileStatement{
		Cond: &ast.BoolLiteral{Value: true},
		Body: block(
			&ast.IfStatement{
				Cond: &ast.BoolLiteral{Value: true},
				Then: block(&ast.BreakStatement{}),
			},
			&ast.ContinueStatement{},
		),
	}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var jumpBackIdx = -1
	breakTargets := map[int32]bool{}
	for i, in := range bc.Instructions {
		if in.Op == isa.JumpBack {
			jumpBackIdx = i
		}
	}
	if jumpBackIdx < 0 {
		t.Fatalf("expected a JUMP_BACK closing the loop, got %+v", bc.Instructions)
	}
	// the loop's end is the program's closing HALT.
	end := int32(len(bc.Instructions) - 1)
	for _, in := range bc.Instructions {
		if in.Op == isa.Jump {
			breakTargets[in.Operands[0]] = true
		}
	}
	if !breakTargets[end] {
		t.Errorf("expected a break jump targeting loop end %d, targets seen: %v", end, breakTargets)
	}
	if !breakTargets[0] {
		t.Errorf("expected a continue jump targeting loop start 0, targets seen: %v", breakTargets)
	}
}

func TestCompileFunctionDeclAndCall(t *testing.T) {
	fn := &ast.FunctionDecl{
		Name:   "add",
		Params: []ast.Param{{Name: "a", Type: &ast.TypeNode{Name: "int"}}, {Name: "b", Type: &ast.TypeNode{Name: "int"}}},
		Body: block(&ast.ReturnStatement{
			Value: &ast.BinaryExpr{Op: "+", Left: &ast.Identifier{Name: "a"}, Right: &ast.Identifier{Name: "b"}},
		}),
	}
	call := exprStmt(&ast.CallExpr{
		Callee: "add",
		Args:   []ast.Expression{&ast.NumberLiteral{Text: "1"}, &ast.NumberLiteral{Text: "2"}},
	})
	bc, err := Generate(prog(fn, call))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if bc.FunctionParamCounts["add"] != 2 {
		t.Errorf("expected add to have 2 params, got %d", bc.FunctionParamCounts["add"])
	}
	if bc.FunctionLocalCounts["add"] != 2 {
		t.Errorf("expected add to need 2 frame-local slots, got %d", bc.FunctionLocalCounts["add"])
	}
	entry := bc.FunctionEntries["add"]
	// prologue stores params in reverse order (b then a).
	if bc.Instructions[entry].Op != isa.StoreVar || bc.Instructions[entry+1].Op != isa.StoreVar {
		t.Fatalf("expected two STORE_VAR prologue instructions at entry %d, got %+v", entry, bc.Instructions[entry:entry+2])
	}
	if bc.Instructions[entry].Operands[0] != 1 || bc.Instructions[entry+1].Operands[0] != 0 {
		t.Errorf("expected reverse-order param store (slot 1 then 0), got %d then %d",
			bc.Instructions[entry].Operands[0], bc.Instructions[entry+1].Operands[0])
	}

	foundCall := false
	for _, in := range bc.Instructions {
		if in.Op == isa.Call {
			foundCall = true
			if !bc.Constants[in.Operands[0]].Equal(value.NewString("add")) {
				t.Errorf("CALL operand should name \"add\", got %v", bc.Constants[in.Operands[0]])
			}
		}
	}
	if !foundCall {
		t.Errorf("expected a CALL instruction for add(1, 2)")
	}
}

func TestFunctionForwardReference(t *testing.T) {
	// Calling a function declared later in the program must still resolve
	// to CALL, not a native fallback, since funcNames is hoisted.
	call := exprStmt(&ast.CallExpr{Callee: "later", Args: nil})
	fn := &ast.FunctionDecl{Name: "later", Body: block()}
	bc, err := Generate(prog(call, fn))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if bc.Instructions[0].Op != isa.Call {
		t.Errorf("expected forward call to lower to CALL, got %v", bc.Instructions[0].Op)
	}
}

func TestUnknownCalleeLowersToNative(t *testing.T) {
	bc, err := Generate(prog(exprStmt(&ast.CallExpr{
		Callee: "host_fn",
		Args:   []ast.Expression{&ast.NumberLiteral{Text: "1"}},
	})))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	foundNative := false
	for _, in := range bc.Instructions {
		if in.Op == isa.CallNative {
			foundNative = true
			if !bc.Constants[in.Operands[0]].Equal(value.NewString("host_fn")) {
				t.Errorf("CALL_NATIVE operand should name host_fn, got %v", bc.Constants[in.Operands[0]])
			}
		}
	}
	if !foundNative {
		t.Errorf("expected CALL_NATIVE for unrecognised callee")
	}
}

func TestStructDeclAndStaticInstantiation(t *testing.T) {
	sd := &ast.StructDecl{
		Name: "Point",
		Fields: []ast.FieldDecl{
			{Name: "x", Type: &ast.TypeNode{Name: "int"}},
			{Name: "y", Type: &ast.TypeNode{Name: "int"}},
		},
	}
	inst := &ast.VarDecl{
		Name: "p",
		Type: &ast.TypeNode{Name: "Point"},
		Init: &ast.StructInstanceExpr{
			StructName: "Point",
			Fields: []ast.FieldInit{
				{Name: "x", Value: &ast.NumberLiteral{Text: "1"}},
				{Name: "y", Value: &ast.NumberLiteral{Text: "2"}},
			},
		},
	}
	access := exprStmt(&ast.FieldExpr{Receiver: &ast.Identifier{Name: "p"}, Field: "x"})
	bc, err := Generate(prog(sd, inst, access))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(bc.StructTable) != 1 || bc.StructTable[0].Name != "Point" {
		t.Fatalf("expected Point in struct table, got %+v", bc.StructTable)
	}
	if bc.StructTable[0].FieldOffset("y") != 1 {
		t.Errorf("expected y at offset 1, got %d", bc.StructTable[0].FieldOffset("y"))
	}

	foundNewStatic, foundSetStatic, foundGetStatic := false, false, false
	for _, in := range bc.Instructions {
		switch in.Op {
		case isa.NewStructInstanceStatic:
			foundNewStatic = true
		case isa.SetFieldStatic:
			foundSetStatic = true
		case isa.GetFieldStatic:
			foundGetStatic = true
		}
	}
	if !foundNewStatic || !foundSetStatic || !foundGetStatic {
		t.Errorf("expected NEW_STRUCT_INSTANCE_STATIC, SET_FIELD_STATIC, and GET_FIELD_STATIC, got %+v", bc.Instructions)
	}
}

func TestArrayLiteralAndIndexLowerToNativeCalls(t *testing.T) {
	bc, err := Generate(prog(
		&ast.VarDecl{Name: "arr", Init: &ast.ArrayLiteral{Elements: []ast.Expression{
			&ast.NumberLiteral{Text: "1"}, &ast.NumberLiteral{Text: "2"},
		}}},
		exprStmt(&ast.IndexExpr{Array: &ast.Identifier{Name: "arr"}, Index: &ast.NumberLiteral{Text: "0"}}),
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	var natives []string
	for _, in := range bc.Instructions {
		if in.Op == isa.CallNative {
			natives = append(natives, bc.Constants[in.Operands[0]].AsString())
		}
	}
	if len(natives) != 2 || natives[0] != "__array_new" || natives[1] != "__array_get" {
		t.Errorf("expected [__array_new, __array_get] CALL_NATIVE sequence, got %v", natives)
	}
}

func TestPostfixIncrementWithoutDup(t *testing.T) {
	bc, err := Generate(prog(
		&ast.VarDecl{Name: "i", Type: &ast.TypeNode{Name: "int"}, Init: &ast.NumberLiteral{Text: "0"}},
		exprStmt(&ast.PostfixExpr{Op: "++", Operand: &ast.Identifier{Name: "i"}}),
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// var decl: PUSH_CONST 0, STORE_VAR 0
	// postfix: LOAD_VAR 0, LOAD_VAR 0, PUSH_CONST 1, IADD, STORE_VAR 0, POP
	tail := bc.Instructions[2:]
	want := []isa.Opcode{isa.LoadVar, isa.LoadVar, isa.PushConst, isa.IAdd, isa.StoreVar, isa.Pop}
	for i, op := range want {
		if tail[i].Op != op {
			t.Fatalf("tail instruction %d: want %v got %v (full: %+v)", i, op, tail[i].Op, bc.Instructions)
		}
	}
}

func TestGenerateIncrementalPreservesSlots(t *testing.T) {
	bc1, err := Generate(prog(&ast.VarDecl{Name: "x", Init: &ast.NumberLiteral{Text: "1"}}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	slot := bc1.Variables["x"]

	bc2, err := GenerateIncremental(
		prog(exprStmt(&ast.Identifier{Name: "x"})),
		bc1.Variables, bc1.NextVarIndex,
	)
	if err != nil {
		t.Fatalf("GenerateIncremental: %v", err)
	}
	if bc2.Instructions[0].Op != isa.LoadVar || bc2.Instructions[0].Operands[0] != int32(slot) {
		t.Errorf("expected LOAD_VAR to reuse slot %d, got %+v", slot, bc2.Instructions[0])
	}
}

func TestSwitchStatement(t *testing.T) {
	sw := &ast.SwitchStatement{
		Value: &ast.NumberLiteral{Text: "1"},
		Cases: []ast.SwitchCase{
			{Value: &ast.NumberLiteral{Text: "1"}, Body: block(exprStmt(&ast.NumberLiteral{Text: "10"}))},
			{Value: &ast.NumberLiteral{Text: "2"}, Body: block(exprStmt(&ast.NumberLiteral{Text: "20"}))},
		},
		Default: block(exprStmt(&ast.NumberLiteral{Text: "0"})),
	}
	bc, err := Generate(prog(sw))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ieqCount := 0
	for _, in := range bc.Instructions {
		if in.Op == isa.IEq {
			ieqCount++
		}
	}
	if ieqCount != 2 {
		t.Errorf("expected 2 IEQ comparisons (one per case), got %d", ieqCount)
	}
}
