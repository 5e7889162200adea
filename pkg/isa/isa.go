// Package isa enumerates the Phasor bytecode instruction set.
//
// The VM is a hybrid stack/register machine (spec.md §4.1): each frame
// carries both an operand stack and 32 registers, and most operations
// come in a stack form (0 operands, operating on the top of the operand
// stack) and a register form (suffixed _R, three operands, SSA-friendly).
// Binary arithmetic/comparison have separate integer and float
// specialisations, chosen by the code generator's type-inference table
// (pkg/codegen) and, defensively, re-checked by the VM at dispatch time.
//
// An Instruction is a one-byte Opcode plus five signed 32-bit operands;
// which operands are meaningful, and what they mean, is opcode-specific
// and recorded by OperandCount and the per-opcode doc comments below.
// This split (arity as data, not hardcoded per-dispatch) mirrors
// original_source/src/ISA/ISA.hpp and src/Codegen/Bytecode/metadata.h,
// which keep a standalone operand-count table independent of both the
// serializer and the VM.
package isa

// Opcode is a single-byte instruction code.
type Opcode byte

const (
	// ---- Stack arithmetic: integer/float specialised pairs ----
	// Operands: none. Stack: ..., a, b -> ..., a OP b.

	IAdd Opcode = iota
	FAdd
	ISub
	FSub
	IMul
	FMul
	IDiv
	FDiv
	IMod
	FMod

	// ---- Stack logic (boolean domain, no I/F split) ----

	LogAnd
	LogOr
	LogNot

	// ---- Stack comparisons: integer/float specialised pairs ----
	// Stack: ..., a, b -> ..., bool(a OP b).

	IEq
	FEq
	INe
	FNe
	ILt
	FLt
	IGt
	FGt
	ILe
	FLe
	IGe
	FGe

	// ---- Stack unary ----

	Neg // works on Int or Float via value.Neg promotion

	// ---- Stack math functions (float domain) ----

	Sqrt
	Pow // binary: pops exponent then base
	Log
	Exp
	Sin
	Cos
	Tan

	// ---- Stack constants/variables ----

	PushConst // operand: constant-pool index
	LoadVar   // operand: variable slot index
	StoreVar  // operand: variable slot index
	True      // push Bool(true)
	False     // push Bool(false)
	Null      // push Null
	Pop       // discard top
	TrueP     // constant-folded pure True (see spec.md §4.2, §9)
	FalseP    // constant-folded pure False

	// ---- Stack control flow ----

	Jump           // operand: target instruction index
	JumpIfFalse    // operand: target; pops cond
	JumpIfTrue     // operand: target; pops cond
	JumpBack       // identical to Jump; hints a loop back-edge
	Halt           // terminate the active instance

	// ---- Calls ----

	Call       // operand: constants-pool index of function name
	Return     // pop optional return value, pop frame
	CallNative // operand: constants-pool index of native-function name

	// ---- I/O ----

	Print
	PrintError
	ReadLine
	System
	SystemOut
	SystemErr

	// ---- String primitives ----

	Len
	CharAt
	Substr

	// ---- Struct primitives ----

	NewStruct               // operand: constant-pool index of struct name
	NewStructInstanceStatic // operand: struct-table index
	GetField                // operand: constant-pool index of field name
	SetField                // operand: constant-pool index of field name
	GetFieldStatic          // operands: struct-table index, field offset
	SetFieldStatic          // operands: struct-table index, field offset

	// ---- Register forms: data movement ----

	Mov         // rA, rB
	LoadConstR  // rA, constant-pool index
	LoadVarR    // rA, variable slot
	StoreVarR   // rA, variable slot
	PushR       // rA
	Push2R      // rA, rB
	PopR        // rA
	Pop2R       // rA, rB

	// ---- Register forms: arithmetic (I/F pairs) ----
	// rA = rB OP rC

	IAddR
	FAddR
	ISubR
	FSubR
	IMulR
	FMulR
	IDivR
	FDivR
	IModR
	FModR

	// ---- Register forms: logic ----

	AndR
	OrR

	// ---- Register forms: comparison (I/F pairs) ----

	IEqR
	FEqR
	INeR
	FNeR
	ILtR
	FLtR
	IGtR
	FGtR
	ILeR
	FLeR
	IGeR
	FGeR

	// ---- Register forms: math functions ----

	SqrtR
	PowR // rA, rB, rC: rA = rB ** rC
	LogR
	ExpR
	SinR
	CosR
	TanR

	// ---- Register forms: unary ----

	NegR // rA, rB
	NotR // rA, rB

	// ---- Register forms: I/O ----

	PrintR
	PrintErrorR
	ReadLineR
	SystemR
	SystemOutR // rA: command, rB: dest for stdout
	SystemErrR // rA: command, rB: dest for stderr

	// ---- Module ----

	Import // operand: constant-pool index of module path
)

// names holds the canonical, uppercase-with-underscore spelling used by
// the text IR (spec.md §4.5) and disassembly output, indexed by Opcode.
var names = map[Opcode]string{
	IAdd: "IADD", FAdd: "FADD", ISub: "ISUB", FSub: "FSUB",
	IMul: "IMUL", FMul: "FMUL", IDiv: "IDIV", FDiv: "FDIV",
	IMod: "IMOD", FMod: "FMOD",
	LogAnd: "AND", LogOr: "OR", LogNot: "NOT",
	IEq: "IEQ", FEq: "FEQ", INe: "INE", FNe: "FNE",
	ILt: "ILT", FLt: "FLT", IGt: "IGT", FGt: "FGT",
	ILe: "ILE", FLe: "FLE", IGe: "IGE", FGe: "FGE",
	Neg: "NEG",
	Sqrt: "SQRT", Pow: "POW", Log: "LOG", Exp: "EXP",
	Sin: "SIN", Cos: "COS", Tan: "TAN",
	PushConst: "PUSH_CONST", LoadVar: "LOAD_VAR", StoreVar: "STORE_VAR",
	True: "TRUE", False: "FALSE", Null: "NULL", Pop: "POP",
	TrueP: "TRUE_P", FalseP: "FALSE_P",
	Jump: "JUMP", JumpIfFalse: "JUMP_IF_FALSE", JumpIfTrue: "JUMP_IF_TRUE",
	JumpBack: "JUMP_BACK", Halt: "HALT",
	Call: "CALL", Return: "RETURN", CallNative: "CALL_NATIVE",
	Print: "PRINT", PrintError: "PRINTERROR", ReadLine: "READLINE",
	System: "SYSTEM", SystemOut: "SYSTEM_OUT", SystemErr: "SYSTEM_ERR",
	Len: "LEN", CharAt: "CHAR_AT", Substr: "SUBSTR",
	NewStruct: "NEW_STRUCT", NewStructInstanceStatic: "NEW_STRUCT_INSTANCE_STATIC",
	GetField: "GET_FIELD", SetField: "SET_FIELD",
	GetFieldStatic: "GET_FIELD_STATIC", SetFieldStatic: "SET_FIELD_STATIC",
	Mov: "MOV", LoadConstR: "LOAD_CONST_R", LoadVarR: "LOAD_VAR_R", StoreVarR: "STORE_VAR_R",
	PushR: "PUSH_R", Push2R: "PUSH2_R", PopR: "POP_R", Pop2R: "POP2_R",
	IAddR: "IADD_R", FAddR: "FADD_R", ISubR: "ISUB_R", FSubR: "FSUB_R",
	IMulR: "IMUL_R", FMulR: "FMUL_R", IDivR: "IDIV_R", FDivR: "FDIV_R",
	IModR: "IMOD_R", FModR: "FMOD_R",
	AndR: "AND_R", OrR: "OR_R",
	IEqR: "IEQ_R", FEqR: "FEQ_R", INeR: "INE_R", FNeR: "FNE_R",
	ILtR: "ILT_R", FLtR: "FLT_R", IGtR: "IGT_R", FGtR: "FGT_R",
	ILeR: "ILE_R", FLeR: "FLE_R", IGeR: "IGE_R", FGeR: "FGE_R",
	SqrtR: "SQRT_R", PowR: "POW_R", LogR: "LOG_R", ExpR: "EXP_R",
	SinR: "SIN_R", CosR: "COS_R", TanR: "TAN_R",
	NegR: "NEG_R", NotR: "NOT_R",
	PrintR: "PRINT_R", PrintErrorR: "PRINTERROR_R", ReadLineR: "READLINE_R",
	SystemR: "SYSTEM_R", SystemOutR: "SYSTEM_OUT_R", SystemErrR: "SYSTEM_ERR_R",
	Import: "IMPORT",
}

// operandCounts records how many of an Instruction's five operand slots
// are meaningful for a given Opcode. Stack-form binary/unary ops consume
// values from the operand stack rather than reading operands, so most of
// group 1 is arity 0; register forms and index-taking ops are arity 1-3.
var operandCounts = map[Opcode]int{
	PushConst: 1, LoadVar: 1, StoreVar: 1,
	Jump: 1, JumpIfFalse: 1, JumpIfTrue: 1, JumpBack: 1,
	Call: 1, CallNative: 1,
	NewStruct: 1, NewStructInstanceStatic: 1, GetField: 1, SetField: 1,
	GetFieldStatic: 2, SetFieldStatic: 2,
	Mov: 2, LoadConstR: 2, LoadVarR: 2, StoreVarR: 2,
	PushR: 1, Push2R: 2, PopR: 1, Pop2R: 2,
	AndR: 3, OrR: 3,
	SqrtR: 2, LogR: 2, ExpR: 2, SinR: 2, CosR: 2, TanR: 2, PowR: 3,
	NegR: 2, NotR: 2,
	PrintR: 1, PrintErrorR: 1, ReadLineR: 1, SystemR: 1,
	SystemOutR: 2, SystemErrR: 2,
	Import: 1,
}

var byName map[string]Opcode

func init() {
	for _, op := range []Opcode{
		IAddR, FAddR, ISubR, FSubR, IMulR, FMulR, IDivR, FDivR, IModR, FModR,
		IEqR, FEqR, INeR, FNeR, ILtR, FLtR, IGtR, FGtR, ILeR, FLeR, IGeR, FGeR,
	} {
		operandCounts[op] = 3 // rA, rB, rC
	}
	byName = make(map[string]Opcode, len(names))
	for op, n := range names {
		byName[n] = op
	}
}

// Name returns the canonical uppercase mnemonic for op, or "UNKNOWN" if
// op is not a recognised opcode.
func Name(op Opcode) string {
	if n, ok := names[op]; ok {
		return n
	}
	return "UNKNOWN"
}

// String implements fmt.Stringer so Opcode values print as their
// mnemonic in error messages, logs, and test failures.
func (op Opcode) String() string { return Name(op) }

// OperandCount reports how many of an Instruction's five operand fields
// are meaningful for op. Opcodes not present in the table take no
// operands (they act purely on the operand stack or registers implied by
// other already-read operands).
func OperandCount(op Opcode) int {
	return operandCounts[op]
}

// registerForms lists every _R opcode, used by IsRegisterForm and by the
// text IR to decide whether to render operands as "rN" or raw integers.
var registerForms = map[Opcode]bool{
	Mov: true, LoadConstR: true, LoadVarR: true, StoreVarR: true,
	PushR: true, Push2R: true, PopR: true, Pop2R: true,
	IAddR: true, FAddR: true, ISubR: true, FSubR: true,
	IMulR: true, FMulR: true, IDivR: true, FDivR: true, IModR: true, FModR: true,
	AndR: true, OrR: true,
	IEqR: true, FEqR: true, INeR: true, FNeR: true,
	ILtR: true, FLtR: true, IGtR: true, FGtR: true,
	ILeR: true, FLeR: true, IGeR: true, FGeR: true,
	SqrtR: true, PowR: true, LogR: true, ExpR: true, SinR: true, CosR: true, TanR: true,
	NegR: true, NotR: true,
	PrintR: true, PrintErrorR: true, ReadLineR: true,
	SystemR: true, SystemOutR: true, SystemErrR: true,
}

// IsRegisterForm reports whether op is one of the three-operand,
// SSA-friendly register-form instructions (spec.md §4.1).
func IsRegisterForm(op Opcode) bool { return registerForms[op] }

// ByName looks up an Opcode by its canonical mnemonic, the inverse of
// Name. Used by the text IR parser. ok is false for unrecognised names.
func ByName(name string) (Opcode, bool) {
	op, ok := byName[name]
	return op, ok
}
