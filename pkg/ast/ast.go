// Package ast defines the Abstract Syntax Tree node shapes the code
// generator (pkg/codegen) consumes.
//
// Lexing and parsing a Phasor source file into this tree is explicitly
// out of scope for this module (spec.md §1): a front end is expected to
// produce a *Program from its own lexer/parser and hand it to
// codegen.Generate. This package only fixes the node shapes of that
// hand-off, the way a compiler's AST package documents its contract with
// a separately-maintained parser.
//
// Every node implements Node (TokenLiteral, for debug/error messages, and
// String, for a parenthesised debug rendering); Statement and Expression
// are marker interfaces distinguishing the two node families, mirroring
// the split in the teacher's pkg/ast/ast.go and cross-checked against
// original_source/src/AST/AST.hpp's node catalogue.
package ast

import "strings"

// Node is the base interface every AST node implements.
type Node interface {
	TokenLiteral() string
	String() string
}

// Statement is a marker interface for statement-level nodes.
type Statement interface {
	Node
	statementNode()
}

// Expression is a marker interface for expression-level nodes.
type Expression interface {
	Node
	expressionNode()
}

// Program is the root node: an ordered sequence of statements.
type Program struct {
	Statements []Statement
}

func (p *Program) TokenLiteral() string {
	if len(p.Statements) > 0 {
		return p.Statements[0].TokenLiteral()
	}
	return ""
}

func (p *Program) String() string {
	var b strings.Builder
	for _, s := range p.Statements {
		b.WriteString(s.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// TypeNode names a declared type (int, float, string, bool, a struct
// name, or an array-of element form). The code generator only uses it
// for the type-inference table (pkg/codegen); it never reaches the VM.
type TypeNode struct {
	Name    string
	IsArray bool
	Elem    *TypeNode
}

func (t *TypeNode) String() string {
	if t == nil {
		return ""
	}
	if t.IsArray {
		return "[]" + t.Elem.String()
	}
	return t.Name
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// VarDecl declares a variable, with an optional initializer expression.
type VarDecl struct {
	Name string
	Type *TypeNode
	Init Expression // nil if uninitialized
}

func (n *VarDecl) TokenLiteral() string { return "var" }
func (n *VarDecl) statementNode()       {}
func (n *VarDecl) String() string {
	if n.Init != nil {
		return "var " + n.Name + " = " + n.Init.String()
	}
	return "var " + n.Name
}

// ExpressionStatement wraps an expression evaluated for its side effect;
// its value is discarded (POP emitted after it, per spec.md §4.2).
type ExpressionStatement struct {
	Expr Expression
}

func (n *ExpressionStatement) TokenLiteral() string { return n.Expr.TokenLiteral() }
func (n *ExpressionStatement) statementNode()       {}
func (n *ExpressionStatement) String() string       { return n.Expr.String() }

// PrintStatement is `print <expr>;`.
type PrintStatement struct {
	Value Expression
	Error bool // true => PRINTERROR instead of PRINT
}

func (n *PrintStatement) TokenLiteral() string { return "print" }
func (n *PrintStatement) statementNode()       {}
func (n *PrintStatement) String() string       { return "print " + n.Value.String() }

// ImportStatement names a module path to import (compiles to IMPORT, or
// is handled entirely by the module runtime — see spec.md §9).
type ImportStatement struct {
	Path string
}

func (n *ImportStatement) TokenLiteral() string { return "import" }
func (n *ImportStatement) statementNode()       {}
func (n *ImportStatement) String() string       { return "import " + n.Path }

// ExportDecl decorates an inner declaration as exported; codegen
// compiles the inner declaration and records the exported name in
// Generator.Exports, not in the bytecode itself.
type ExportDecl struct {
	Inner Statement
}

func (n *ExportDecl) TokenLiteral() string { return "export" }
func (n *ExportDecl) statementNode()       {}
func (n *ExportDecl) String() string       { return "export " + n.Inner.String() }

// BlockStatement is a nested sequence of statements (if/while/for/function bodies).
type BlockStatement struct {
	Statements []Statement
}

func (n *BlockStatement) TokenLiteral() string { return "{" }
func (n *BlockStatement) statementNode()       {}
func (n *BlockStatement) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for _, s := range n.Statements {
		b.WriteString(s.String())
		b.WriteByte(';')
	}
	b.WriteByte('}')
	return b.String()
}

// IfStatement is `if (Cond) Then [else Else]`.
type IfStatement struct {
	Cond Expression
	Then *BlockStatement
	Else *BlockStatement // nil if no else clause
}

func (n *IfStatement) TokenLiteral() string { return "if" }
func (n *IfStatement) statementNode()       {}
func (n *IfStatement) String() string {
	s := "if (" + n.Cond.String() + ") " + n.Then.String()
	if n.Else != nil {
		s += " else " + n.Else.String()
	}
	return s
}

// WhileStatement is `while (Cond) Body`.
type WhileStatement struct {
	Cond Expression
	Body *BlockStatement
}

func (n *WhileStatement) TokenLiteral() string { return "while" }
func (n *WhileStatement) statementNode()       {}
func (n *WhileStatement) String() string       { return "while (" + n.Cond.String() + ") " + n.Body.String() }

// ForStatement is a C-style `for (Init; Cond; Incr) Body`. Any of Init,
// Cond, Incr may be nil.
type ForStatement struct {
	Init Statement
	Cond Expression
	Incr Statement
	Body *BlockStatement
}

func (n *ForStatement) TokenLiteral() string { return "for" }
func (n *ForStatement) statementNode()       {}
func (n *ForStatement) String() string       { return "for (...) " + n.Body.String() }

// SwitchCase is one `case Value: Body` arm of a SwitchStatement.
type SwitchCase struct {
	Value Expression
	Body  *BlockStatement
}

// SwitchStatement evaluates Value once, then compares it against each
// Case in order; Default runs if no case matched.
type SwitchStatement struct {
	Value   Expression
	Cases   []SwitchCase
	Default *BlockStatement // nil if no default
}

func (n *SwitchStatement) TokenLiteral() string { return "switch" }
func (n *SwitchStatement) statementNode()       {}
func (n *SwitchStatement) String() string       { return "switch (" + n.Value.String() + ") {...}" }

// ReturnStatement optionally carries a value; RETURN with no value
// implicitly returns Null (see pkg/codegen's trailing-NULL-and-RETURN
// guarantee).
type ReturnStatement struct {
	Value Expression // nil for a bare `return;`
}

func (n *ReturnStatement) TokenLiteral() string { return "return" }
func (n *ReturnStatement) statementNode()       {}
func (n *ReturnStatement) String() string {
	if n.Value != nil {
		return "return " + n.Value.String()
	}
	return "return"
}

// BreakStatement exits the innermost enclosing loop or switch.
type BreakStatement struct{}

func (n *BreakStatement) TokenLiteral() string { return "break" }
func (n *BreakStatement) statementNode()       {}
func (n *BreakStatement) String() string       { return "break" }

// ContinueStatement jumps to the innermost enclosing loop's increment/condition check.
type ContinueStatement struct{}

func (n *ContinueStatement) TokenLiteral() string { return "continue" }
func (n *ContinueStatement) statementNode()       {}
func (n *ContinueStatement) String() string       { return "continue" }

// UnsafeBlock marks a nested block whose body may use otherwise-gated
// operations (e.g. SYSTEM). The code generator compiles its body
// identically to a BlockStatement; the gate (if any) is a host/front-end
// policy, not a bytecode-level restriction.
type UnsafeBlock struct {
	Body *BlockStatement
}

func (n *UnsafeBlock) TokenLiteral() string { return "unsafe" }
func (n *UnsafeBlock) statementNode()       {}
func (n *UnsafeBlock) String() string       { return "unsafe " + n.Body.String() }

// Param is one function parameter: a name and a declared type node.
type Param struct {
	Name string
	Type *TypeNode
}

// FunctionDecl declares a named function. ReturnType is informational
// only (see TypeNode); the bytecode has no notion of return types.
type FunctionDecl struct {
	Name       string
	Params     []Param
	ReturnType *TypeNode // nil if unspecified
	Body       *BlockStatement
}

func (n *FunctionDecl) TokenLiteral() string { return "fn" }
func (n *FunctionDecl) statementNode()       {}
func (n *FunctionDecl) String() string       { return "fn " + n.Name + "(...)" }

// FieldDecl is one `name: Type` pair in a struct declaration.
type FieldDecl struct {
	Name string
	Type *TypeNode
}

// StructDecl declares a struct type: a name plus ordered field declarations.
type StructDecl struct {
	Name   string
	Fields []FieldDecl
}

func (n *StructDecl) TokenLiteral() string { return "struct" }
func (n *StructDecl) statementNode()       {}
func (n *StructDecl) String() string       { return "struct " + n.Name }

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// NumberLiteral carries the source text of a numeric literal; the code
// generator decides Int vs Float from its lexical form (presence of '.'
// or exponent), matching how a constant pool entry is chosen.
type NumberLiteral struct {
	Text string
}

func (n *NumberLiteral) TokenLiteral() string { return n.Text }
func (n *NumberLiteral) expressionNode()      {}
func (n *NumberLiteral) String() string       { return n.Text }

// StringLiteral is a quoted string literal.
type StringLiteral struct {
	Value string
}

func (n *StringLiteral) TokenLiteral() string { return n.Value }
func (n *StringLiteral) expressionNode()      {}
func (n *StringLiteral) String() string       { return "\"" + n.Value + "\"" }

// Identifier references a variable, function, or struct name by
// lexical lookup.
type Identifier struct {
	Name string
}

func (n *Identifier) TokenLiteral() string { return n.Name }
func (n *Identifier) expressionNode()      {}
func (n *Identifier) String() string       { return n.Name }

// BoolLiteral is `true` or `false`.
type BoolLiteral struct {
	Value bool
}

func (n *BoolLiteral) TokenLiteral() string {
	if n.Value {
		return "true"
	}
	return "false"
}
func (n *BoolLiteral) expressionNode() {}
func (n *BoolLiteral) String() string  { return n.TokenLiteral() }

// NullLiteral is the `null` literal.
type NullLiteral struct{}

func (n *NullLiteral) TokenLiteral() string { return "null" }
func (n *NullLiteral) expressionNode()      {}
func (n *NullLiteral) String() string       { return "null" }

// UnaryExpr is a prefix unary operator: '-', '!', '&', or '*'. The
// latter two (address-of / dereference) are accepted at the AST level
// per spec.md §6 but have no bytecode-level referent in this spec's
// value model; a front end that never emits them is conforming.
type UnaryExpr struct {
	Op      string
	Operand Expression
}

func (n *UnaryExpr) TokenLiteral() string { return n.Op }
func (n *UnaryExpr) expressionNode()      {}
func (n *UnaryExpr) String() string       { return "(" + n.Op + n.Operand.String() + ")" }

// PostfixExpr is a postfix '++' or '--' on an lvalue Identifier.
type PostfixExpr struct {
	Op      string // "++" or "--"
	Operand Expression
}

func (n *PostfixExpr) TokenLiteral() string { return n.Op }
func (n *PostfixExpr) expressionNode()      {}
func (n *PostfixExpr) String() string       { return "(" + n.Operand.String() + n.Op + ")" }

// BinaryExpr covers all 13 binary operators (+ - * / % == != < > <= >=
// && ||), including the short-circuiting "&&" and "||".
type BinaryExpr struct {
	Op          string
	Left, Right Expression
}

func (n *BinaryExpr) TokenLiteral() string { return n.Op }
func (n *BinaryExpr) expressionNode()      {}
func (n *BinaryExpr) String() string {
	return "(" + n.Left.String() + " " + n.Op + " " + n.Right.String() + ")"
}

// CallExpr calls a function by name. Per spec.md §6, member-access calls
// (`recv.method(args)`) are rewritten by the parser into a CallExpr whose
// first argument is the receiver — this AST has no separate method-call
// node.
type CallExpr struct {
	Callee string
	Args   []Expression
}

func (n *CallExpr) TokenLiteral() string { return n.Callee }
func (n *CallExpr) expressionNode()      {}
func (n *CallExpr) String() string {
	var b strings.Builder
	b.WriteString(n.Callee)
	b.WriteByte('(')
	for i, a := range n.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// IndexExpr is `Array[Index]`.
type IndexExpr struct {
	Array Expression
	Index Expression
}

func (n *IndexExpr) TokenLiteral() string { return "[" }
func (n *IndexExpr) expressionNode()      {}
func (n *IndexExpr) String() string       { return n.Array.String() + "[" + n.Index.String() + "]" }

// ArrayLiteral is `[e1, e2, ...]`.
type ArrayLiteral struct {
	Elements []Expression
}

func (n *ArrayLiteral) TokenLiteral() string { return "[" }
func (n *ArrayLiteral) expressionNode()      {}
func (n *ArrayLiteral) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range n.Elements {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.String())
	}
	b.WriteByte(']')
	return b.String()
}

// MemberExpr is `Receiver.Name` used as a value (not followed by a call
// parenthesis — that case parses as CallExpr per spec.md §6).
type MemberExpr struct {
	Receiver Expression
	Name     string
}

func (n *MemberExpr) TokenLiteral() string { return n.Name }
func (n *MemberExpr) expressionNode()      {}
func (n *MemberExpr) String() string       { return n.Receiver.String() + "." + n.Name }

// FieldExpr is struct field access `Receiver.Field` used distinctly from
// MemberExpr when the front end has already resolved Receiver's static
// struct type (enabling GET_FIELD_STATIC). A front end that cannot
// resolve this statically should emit MemberExpr instead; codegen treats
// both the same when static struct metadata is unavailable.
type FieldExpr struct {
	Receiver Expression
	Field    string
}

func (n *FieldExpr) TokenLiteral() string { return n.Field }
func (n *FieldExpr) expressionNode()      {}
func (n *FieldExpr) String() string       { return n.Receiver.String() + "." + n.Field }

// FieldInit is one `name: expr` initializer in a StructInstanceExpr.
type FieldInit struct {
	Name  string
	Value Expression
}

// StructInstanceExpr is `StructName{ field: expr, ... }`.
type StructInstanceExpr struct {
	StructName string
	Fields     []FieldInit
}

func (n *StructInstanceExpr) TokenLiteral() string { return n.StructName }
func (n *StructInstanceExpr) expressionNode()      {}
func (n *StructInstanceExpr) String() string       { return n.StructName + "{...}" }

// AssignExpr assigns Value to Target (an Identifier, IndexExpr, or
// FieldExpr/MemberExpr) and evaluates to the assigned value, per
// spec.md §4.2 ("Assignment as expression").
type AssignExpr struct {
	Target Expression
	Value  Expression
}

func (n *AssignExpr) TokenLiteral() string { return "=" }
func (n *AssignExpr) expressionNode()      {}
func (n *AssignExpr) String() string       { return n.Target.String() + " = " + n.Value.String() }
