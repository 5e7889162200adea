// Package vm implements the bytecode virtual machine for Phasor.
//
// The VM is a hybrid stack/register interpreter. It is the final stage
// of the pipeline:
//
//   AST -> CodeGenerator -> Bytecode -> { BinaryCodec | TextCodec } -> VM -> Execution
//
// Virtual Machine Architecture:
//
// A VM owns a table of Instances (each a live execution context for one
// loaded Bytecode) and a name -> NativeFunc registry shared by all of
// them. Each Instance owns a call stack of Frames; each Frame owns its
// own operand stack, its own 32-slot register file, and (for every
// frame but the bottom one) its own array of frame-local variable
// slots. Calling a function pushes a new Frame; returning pops one.
//
// Example Execution:
//
//   Source: print 1 + 2 * 3;
//
//   Bytecode (abridged):
//     0: PUSH_CONST 0   ; constants[0] = 1
//     1: PUSH_CONST 1   ; constants[1] = 2
//     2: PUSH_CONST 2   ; constants[2] = 3
//     3: IMUL
//     4: IADD
//     5: PRINT
//
//   Execution trace (bottom frame's operand stack):
//     pc=0: PUSH_CONST 0 -> [1]
//     pc=1: PUSH_CONST 1 -> [1 2]
//     pc=2: PUSH_CONST 2 -> [1 2 3]
//     pc=3: IMUL         -> [1 6]      (2*3, right operand was on top)
//     pc=4: IADD         -> [7]
//     pc=5: PRINT        -> []         (prints "7")
//
// Dispatch control flow:
//
// Each opcode handler returns a stepResult tag (stepContinue, stepHalt,
// or stepFault) instead of signalling termination by panicking. The
// outer loop in Execute acts on the tag: stepContinue repeats, stepHalt
// marks the Instance not-alive and returns cleanly, stepFault marks the
// Instance not-alive, records the *RuntimeError, and returns it.
//
// Error Handling:
//
// Faults are classified per spec.md §7 (ErrorKind in errors.go):
// structural, stack, arithmetic, call, module, and I/O. A fault unwinds
// the active Instance only; other Instances owned by the same VM are
// unaffected.
package vm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"

	"github.com/dmcguire/phasor/pkg/bytecode"
	"github.com/dmcguire/phasor/pkg/isa"
	"github.com/dmcguire/phasor/pkg/value"
)

// stepResult tags the outcome of executing a single instruction, per
// spec.md §9's endorsed redesign ("a clean reimplementation should
// represent this as a tagged step-result... returned from the
// per-instruction handler; the outer loop acts on the tag").
type stepResult int

const (
	stepContinue stepResult = iota
	stepHalt
	stepFault
)

// InstanceHandle is an opaque, stable index into a VM's Instances table.
// NoInstance is the reserved sentinel for "none". Destroyed slots are
// never reused, so a handle captured before a DestroyInstance call
// remains a recognisably stale reference rather than silently aliasing
// a new Instance.
type InstanceHandle int

// NoInstance is the null handle.
const NoInstance InstanceHandle = -1

// registerCount is the fixed size of every Frame's register file.
const registerCount = 32

// Frame is a single call activation: its own operand stack, its own
// register file, and (for every frame but the bottom, top-level one)
// its own array of frame-local parameter/local slots. Locals is nil for
// the bottom frame, whose identifiers resolve against the owning
// Instance's global Variables array instead (spec.md §9's per-frame-
// local redesign; see DESIGN.md).
type Frame struct {
	Stack     []value.Value
	Registers [registerCount]value.Value
	Locals    []value.Value
	PC        int
	ReturnPC  int

	// ReturnToInstance names the Instance a cross-instance call (pushed
	// by CallFunction) should be attributed back to; NoInstance for a
	// Frame pushed by an ordinary intra-instance CALL. It is a record
	// only: neither step's dispatch nor pkg/module reads it.
	ReturnToInstance InstanceHandle
	FuncName         string
}

// Instance is a live execution context for one loaded Bytecode.
type Instance struct {
	Code      *bytecode.Bytecode
	Variables []value.Value
	Frames    []*Frame
	Alive     bool
	ErrStatus ErrorKind
	ErrMsg    string
	Imports   []InstanceHandle
	DebugID   uuid.UUID

	// LastReturnValue is the value most recently popped by RETURN,
	// including the value that accompanied a bottom-frame clean halt.
	// CallFunction reads this after Execute returns to hand the result
	// back across an instance boundary.
	LastReturnValue value.Value
}

func newInstance(bc *bytecode.Bytecode) *Instance {
	inst := &Instance{
		Code:      bc,
		Variables: make([]value.Value, bc.NextVarIndex),
		Alive:     true,
		DebugID:   uuid.New(),
	}
	inst.Frames = []*Frame{{PC: 0, ReturnPC: -1, ReturnToInstance: NoInstance}}
	return inst
}

func (inst *Instance) activeFrame() *Frame { return inst.Frames[len(inst.Frames)-1] }

func (inst *Instance) push(v value.Value) {
	f := inst.activeFrame()
	f.Stack = append(f.Stack, v)
}

func (inst *Instance) pop() (value.Value, *RuntimeError) {
	f := inst.activeFrame()
	if len(f.Stack) == 0 {
		return value.Value{}, newRuntimeError(StackErrorKind, inst, "pop from empty operand stack")
	}
	n := len(f.Stack) - 1
	v := f.Stack[n]
	f.Stack = f.Stack[:n]
	return v, nil
}

// pop2 pops the top two operand-stack values, returning them as (a, b)
// where b was the top of stack — the right-hand operand in `a OP b`
// (original_source/src/Runtime/VM/VM.cpp's evaluation order).
func (inst *Instance) pop2() (a, b value.Value, ferr *RuntimeError) {
	b, ferr = inst.pop()
	if ferr != nil {
		return
	}
	a, ferr = inst.pop()
	return
}

func (inst *Instance) constant(idx int32) (value.Value, *RuntimeError) {
	if idx < 0 || int(idx) >= len(inst.Code.Constants) {
		return value.Value{}, newRuntimeError(StructuralError, inst, "constant index %d out of range", idx)
	}
	return inst.Code.Constants[idx], nil
}

func (inst *Instance) getVar(slot int32) (value.Value, *RuntimeError) {
	f := inst.activeFrame()
	if f.Locals != nil {
		if slot < 0 || int(slot) >= len(f.Locals) {
			return value.Value{}, newRuntimeError(StructuralError, inst, "local variable slot %d out of range", slot)
		}
		return f.Locals[slot], nil
	}
	if slot < 0 || int(slot) >= len(inst.Variables) {
		return value.Value{}, newRuntimeError(StructuralError, inst, "variable slot %d out of range", slot)
	}
	return inst.Variables[slot], nil
}

func (inst *Instance) setVar(slot int32, v value.Value) *RuntimeError {
	f := inst.activeFrame()
	if f.Locals != nil {
		if slot < 0 || int(slot) >= len(f.Locals) {
			return newRuntimeError(StructuralError, inst, "local variable slot %d out of range", slot)
		}
		f.Locals[slot] = v
		return nil
	}
	if slot < 0 || int(slot) >= len(inst.Variables) {
		return newRuntimeError(StructuralError, inst, "variable slot %d out of range", slot)
	}
	inst.Variables[slot] = v
	return nil
}

func regIndex(inst *Instance, r int32) (int, *RuntimeError) {
	if r < 0 || int(r) >= registerCount {
		return 0, newRuntimeError(StructuralError, inst, "register index %d out of range", r)
	}
	return int(r), nil
}

func toFloat(v value.Value) (float64, bool) {
	switch v.Kind() {
	case value.Int:
		return float64(v.AsInt()), true
	case value.Float:
		return v.AsFloat(), true
	default:
		return 0, false
	}
}

func bothInt(a, b value.Value) bool { return a.Kind() == value.Int && b.Kind() == value.Int }

// VM owns the native-function registry and the table of live Instances.
// Per spec.md §5, both are write-mostly-at-setup and read during
// execution by a single host thread; the VM itself does no locking.
type VM struct {
	NativeFunctions map[string]NativeFunc
	Instances       []*Instance

	// ImportHandler backs the IMPORT opcode shorthand. The module
	// runtime (pkg/module) is the primary way to load a module; IMPORT
	// without a handler installed is a structural fault (spec.md §4.1,
	// §9 open questions).
	ImportHandler func(vm *VM, importer *Instance, path string) error

	Out    io.Writer
	ErrOut io.Writer
	In     *bufio.Reader

	Debugger *Debugger
}

// New returns a VM with the three always-registered array builtins
// (__array_new, __array_get, __array_set) installed — pkg/codegen
// lowers every array literal, index, and index-assignment to a
// CALL_NATIVE of one of these (see natives.go).
func New() *VM {
	vm := &VM{
		NativeFunctions: make(map[string]NativeFunc),
		Out:             os.Stdout,
		ErrOut:          os.Stderr,
		In:              bufio.NewReader(os.Stdin),
	}
	registerArrayNatives(vm)
	return vm
}

// RegisterNative installs fn under name, overwriting any previous
// registration. Host programs call this before Execute to extend the
// native surface (spec.md §6).
func (vm *VM) RegisterNative(name string, fn NativeFunc) {
	vm.NativeFunctions[name] = fn
}

// Load creates a new Instance from bc and returns its handle. Handles
// are assigned densely and never reused, per spec.md's InstanceHandle
// invariant.
func (vm *VM) Load(bc *bytecode.Bytecode) InstanceHandle {
	inst := newInstance(bc)
	vm.Instances = append(vm.Instances, inst)
	return InstanceHandle(len(vm.Instances) - 1)
}

// instance resolves h to its Instance, faulting the caller with a
// generic error (not a *RuntimeError, since there may be no live
// Instance to attach one to) if h is out of range or already destroyed.
func (vm *VM) instance(h InstanceHandle) (*Instance, error) {
	if h < 0 || int(h) >= len(vm.Instances) {
		return nil, fmt.Errorf("vm: invalid instance handle %d", h)
	}
	inst := vm.Instances[h]
	if inst == nil {
		return nil, fmt.Errorf("vm: instance handle %d has been destroyed", h)
	}
	return inst, nil
}

// GetInstance exposes h's Instance to host code (pkg/module in
// particular) that needs direct access to Imports, Alive, or error
// status beyond what Step/Execute/CallFunction already surface.
func (vm *VM) GetInstance(h InstanceHandle) (*Instance, error) {
	return vm.instance(h)
}

// DestroyInstance releases h's state. The slot is kept (as nil) so the
// handle stays permanently invalid rather than being reused.
func (vm *VM) DestroyInstance(h InstanceHandle) error {
	inst, err := vm.instance(h)
	if err != nil {
		return err
	}
	inst.Alive = false
	vm.Instances[h] = nil
	return nil
}

// Step executes exactly one instruction on the Instance named by h.
func (vm *VM) Step(h InstanceHandle) (stepResult, error) {
	inst, err := vm.instance(h)
	if err != nil {
		return stepFault, err
	}
	if !inst.Alive {
		return stepHalt, nil
	}
	res, ferr := vm.step(inst)
	if res == stepFault {
		inst.Alive = false
		inst.ErrStatus = ferr.Kind
		inst.ErrMsg = ferr.Message
		return res, ferr
	}
	if res == stepHalt {
		inst.Alive = false
	}
	return res, nil
}

// CallFunction reactivates (if dormant) the Instance named by target,
// pushes a fresh Frame at funcName's entry point with args in scope,
// attributed back to from, and runs it to completion. It implements the
// frame-push/execute/collect-result shape spec.md §4.6 prescribes for
// callTrans/callExtern: pkg/module is expected to call this after its
// own access-control and module-resolution checks, not to push frames
// directly.
func (vm *VM) CallFunction(target, from InstanceHandle, funcName string, args []value.Value) (value.Value, error) {
	inst, err := vm.instance(target)
	if err != nil {
		return value.Value{}, err
	}
	entry, ok := inst.Code.FunctionEntries[funcName]
	if !ok {
		return value.Value{}, &RuntimeError{Kind: StructuralError, Message: fmt.Sprintf("call to unknown function %q", funcName)}
	}
	paramCount := inst.Code.FunctionParamCounts[funcName]
	localCount := inst.Code.FunctionLocalCounts[funcName]
	if len(args) != paramCount {
		return value.Value{}, &RuntimeError{Kind: CallErrorKind, Message: fmt.Sprintf("function %q expects %d arguments, got %d", funcName, paramCount, len(args))}
	}

	inst.Alive = true
	frame := &Frame{
		Locals:           make([]value.Value, localCount),
		PC:               entry,
		ReturnPC:         -1,
		ReturnToInstance: from,
		FuncName:         funcName,
	}
	inst.Frames = append(inst.Frames, frame)
	for _, a := range args {
		frame.Stack = append(frame.Stack, a)
	}

	if err := vm.Execute(target); err != nil {
		return value.Value{}, err
	}
	return inst.LastReturnValue, nil
}

// Execute drives the dispatch loop on h until HALT, a return from the
// bottom frame, or a fault. If vm.Debugger is enabled and attached to h,
// it pauses for an interactive prompt before each instruction that hits
// a breakpoint or step mode.
func (vm *VM) Execute(h InstanceHandle) error {
	for {
		if vm.Debugger != nil && vm.Debugger.handle == h && vm.Debugger.ShouldPause() {
			if !vm.Debugger.InteractivePrompt() {
				return nil
			}
		}
		res, err := vm.Step(h)
		switch res {
		case stepContinue:
			continue
		case stepHalt:
			return nil
		default:
			return err
		}
	}
}

// step fetches, decodes, and dispatches the active frame's current
// instruction.
func (vm *VM) step(inst *Instance) (stepResult, *RuntimeError) {
	frame := inst.activeFrame()
	if frame.PC < 0 || frame.PC >= len(inst.Code.Instructions) {
		return stepFault, newRuntimeError(StructuralError, inst, "program counter %d ran off the end of the instruction stream", frame.PC)
	}
	ins := inst.Code.Instructions[frame.PC]
	frame.PC++
	ops := ins.Operands

	switch ins.Op {

	// ---- Stack arithmetic ----
	case isa.IAdd:
		return vm.binArith(inst, "+", true)
	case isa.FAdd:
		return vm.binArith(inst, "+", false)
	case isa.ISub:
		return vm.binArith(inst, "-", true)
	case isa.FSub:
		return vm.binArith(inst, "-", false)
	case isa.IMul:
		return vm.binArith(inst, "*", true)
	case isa.FMul:
		return vm.binArith(inst, "*", false)
	case isa.IDiv:
		return vm.binArith(inst, "/", true)
	case isa.FDiv:
		return vm.binArith(inst, "/", false)
	case isa.IMod:
		return vm.binArith(inst, "%", true)
	case isa.FMod:
		return vm.binArith(inst, "%", false)

	// ---- Stack logic ----
	case isa.LogAnd:
		a, b, ferr := inst.pop2()
		if ferr != nil {
			return stepFault, ferr
		}
		inst.push(value.NewBool(a.IsTruthy() && b.IsTruthy()))
		return stepContinue, nil
	case isa.LogOr:
		a, b, ferr := inst.pop2()
		if ferr != nil {
			return stepFault, ferr
		}
		inst.push(value.NewBool(a.IsTruthy() || b.IsTruthy()))
		return stepContinue, nil
	case isa.LogNot:
		a, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		inst.push(value.NewBool(!a.IsTruthy()))
		return stepContinue, nil

	// ---- Stack comparisons ----
	case isa.IEq:
		return vm.binCompare(inst, cmpEq, true)
	case isa.FEq:
		return vm.binCompare(inst, cmpEq, false)
	case isa.INe:
		return vm.binCompare(inst, cmpNe, true)
	case isa.FNe:
		return vm.binCompare(inst, cmpNe, false)
	case isa.ILt:
		return vm.binCompare(inst, cmpLt, true)
	case isa.FLt:
		return vm.binCompare(inst, cmpLt, false)
	case isa.IGt:
		return vm.binCompare(inst, cmpGt, true)
	case isa.FGt:
		return vm.binCompare(inst, cmpGt, false)
	case isa.ILe:
		return vm.binCompare(inst, cmpLe, true)
	case isa.FLe:
		return vm.binCompare(inst, cmpLe, false)
	case isa.IGe:
		return vm.binCompare(inst, cmpGe, true)
	case isa.FGe:
		return vm.binCompare(inst, cmpGe, false)

	// ---- Unary ----
	case isa.Neg:
		a, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		r, err := value.Neg(a)
		if err != nil {
			return stepFault, newRuntimeError(StructuralError, inst, "%v", err)
		}
		inst.push(r)
		return stepContinue, nil

	// ---- Math functions ----
	case isa.Sqrt:
		return vm.unaryMath(inst, math.Sqrt)
	case isa.Log:
		return vm.unaryMath(inst, math.Log)
	case isa.Exp:
		return vm.unaryMath(inst, math.Exp)
	case isa.Sin:
		return vm.unaryMath(inst, math.Sin)
	case isa.Cos:
		return vm.unaryMath(inst, math.Cos)
	case isa.Tan:
		return vm.unaryMath(inst, math.Tan)
	case isa.Pow:
		a, b, ferr := inst.pop2() // pops exponent then base: b=exponent, a=base
		if ferr != nil {
			return stepFault, ferr
		}
		base, ok1 := toFloat(a)
		exp, ok2 := toFloat(b)
		if !ok1 || !ok2 {
			return stepFault, newRuntimeError(StructuralError, inst, "POW requires numeric operands")
		}
		inst.push(value.NewFloat(math.Pow(base, exp)))
		return stepContinue, nil

	// ---- Constants/variables ----
	case isa.PushConst:
		v, ferr := inst.constant(ops[0])
		if ferr != nil {
			return stepFault, ferr
		}
		inst.push(v)
		return stepContinue, nil
	case isa.LoadVar:
		v, ferr := inst.getVar(ops[0])
		if ferr != nil {
			return stepFault, ferr
		}
		inst.push(v)
		return stepContinue, nil
	case isa.StoreVar:
		v, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		if ferr := inst.setVar(ops[0], v); ferr != nil {
			return stepFault, ferr
		}
		return stepContinue, nil
	case isa.True, isa.TrueP:
		inst.push(value.NewBool(true))
		return stepContinue, nil
	case isa.False, isa.FalseP:
		inst.push(value.NewBool(false))
		return stepContinue, nil
	case isa.Null:
		inst.push(value.NewNull())
		return stepContinue, nil
	case isa.Pop:
		if _, ferr := inst.pop(); ferr != nil {
			return stepFault, ferr
		}
		return stepContinue, nil

	// ---- Control flow ----
	case isa.Jump, isa.JumpBack:
		frame.PC = int(ops[0])
		return stepContinue, nil
	case isa.JumpIfFalse:
		cond, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		if !cond.IsTruthy() {
			frame.PC = int(ops[0])
		}
		return stepContinue, nil
	case isa.JumpIfTrue:
		cond, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		if cond.IsTruthy() {
			frame.PC = int(ops[0])
		}
		return stepContinue, nil
	case isa.Halt:
		return stepHalt, nil

	// ---- Calls ----
	case isa.Call:
		return vm.doCall(inst, ops[0])
	case isa.Return:
		return vm.doReturn(inst)
	case isa.CallNative:
		return vm.doCallNative(inst, ops[0])

	// ---- I/O ----
	case isa.Print:
		return vm.doPrint(inst, vm.Out)
	case isa.PrintError:
		return vm.doPrint(inst, vm.ErrOut)
	case isa.ReadLine:
		line, err := vm.In.ReadString('\n')
		if err != nil && err != io.EOF {
			return stepFault, newRuntimeError(IOErrorKind, inst, "READLINE: %v", err)
		}
		inst.push(value.NewString(strings.TrimRight(line, "\r\n")))
		return stepContinue, nil
	case isa.System:
		cmd, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		if cmd.Kind() != value.String {
			return stepFault, newRuntimeError(StructuralError, inst, "SYSTEM requires a string command")
		}
		_ = exec.Command("sh", "-c", cmd.AsString()).Run()
		return stepContinue, nil
	case isa.SystemOut:
		return vm.doSystemCapture(inst, false)
	case isa.SystemErr:
		return vm.doSystemCapture(inst, true)

	// ---- String primitives ----
	case isa.Len:
		s, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		if s.Kind() != value.String {
			return stepFault, newRuntimeError(StructuralError, inst, "LEN requires a string")
		}
		inst.push(value.NewInt(int64(len(s.AsString()))))
		return stepContinue, nil
	case isa.CharAt:
		return vm.doCharAt(inst)
	case isa.Substr:
		return vm.doSubstr(inst)

	// ---- Struct primitives ----
	case isa.NewStruct:
		nameVal, ferr := inst.constant(ops[0])
		if ferr != nil {
			return stepFault, ferr
		}
		inst.push(value.NewStruct(nameVal.AsString()))
		return stepContinue, nil
	case isa.NewStructInstanceStatic:
		return vm.doNewStructStatic(inst, ops[0])
	case isa.GetField:
		return vm.doGetField(inst, ops[0])
	case isa.SetField:
		return vm.doSetField(inst, ops[0])
	case isa.GetFieldStatic:
		return vm.doGetFieldStatic(inst, ops[0], ops[1])
	case isa.SetFieldStatic:
		return vm.doSetFieldStatic(inst, ops[0], ops[1])

	// ---- Register forms: data movement ----
	case isa.Mov:
		return vm.doMov(inst, ops[0], ops[1])
	case isa.LoadConstR:
		return vm.doLoadConstR(inst, ops[0], ops[1])
	case isa.LoadVarR:
		return vm.doLoadVarR(inst, ops[0], ops[1])
	case isa.StoreVarR:
		return vm.doStoreVarR(inst, ops[0], ops[1])
	case isa.PushR:
		return vm.doPushR(inst, ops[0])
	case isa.Push2R:
		return vm.doPush2R(inst, ops[0], ops[1])
	case isa.PopR:
		return vm.doPopR(inst, ops[0])
	case isa.Pop2R:
		return vm.doPop2R(inst, ops[0], ops[1])

	// ---- Register forms: arithmetic ----
	case isa.IAddR:
		return vm.regArith(inst, ops, "+", true)
	case isa.FAddR:
		return vm.regArith(inst, ops, "+", false)
	case isa.ISubR:
		return vm.regArith(inst, ops, "-", true)
	case isa.FSubR:
		return vm.regArith(inst, ops, "-", false)
	case isa.IMulR:
		return vm.regArith(inst, ops, "*", true)
	case isa.FMulR:
		return vm.regArith(inst, ops, "*", false)
	case isa.IDivR:
		return vm.regArith(inst, ops, "/", true)
	case isa.FDivR:
		return vm.regArith(inst, ops, "/", false)
	case isa.IModR:
		return vm.regArith(inst, ops, "%", true)
	case isa.FModR:
		return vm.regArith(inst, ops, "%", false)

	// ---- Register forms: logic ----
	case isa.AndR:
		return vm.regLogic(inst, ops, true)
	case isa.OrR:
		return vm.regLogic(inst, ops, false)

	// ---- Register forms: comparison ----
	case isa.IEqR:
		return vm.regCompare(inst, ops, cmpEq, true)
	case isa.FEqR:
		return vm.regCompare(inst, ops, cmpEq, false)
	case isa.INeR:
		return vm.regCompare(inst, ops, cmpNe, true)
	case isa.FNeR:
		return vm.regCompare(inst, ops, cmpNe, false)
	case isa.ILtR:
		return vm.regCompare(inst, ops, cmpLt, true)
	case isa.FLtR:
		return vm.regCompare(inst, ops, cmpLt, false)
	case isa.IGtR:
		return vm.regCompare(inst, ops, cmpGt, true)
	case isa.FGtR:
		return vm.regCompare(inst, ops, cmpGt, false)
	case isa.ILeR:
		return vm.regCompare(inst, ops, cmpLe, true)
	case isa.FLeR:
		return vm.regCompare(inst, ops, cmpLe, false)
	case isa.IGeR:
		return vm.regCompare(inst, ops, cmpGe, true)
	case isa.FGeR:
		return vm.regCompare(inst, ops, cmpGe, false)

	// ---- Register forms: math ----
	case isa.SqrtR:
		return vm.regUnaryMath(inst, ops[0], ops[1], math.Sqrt)
	case isa.LogR:
		return vm.regUnaryMath(inst, ops[0], ops[1], math.Log)
	case isa.ExpR:
		return vm.regUnaryMath(inst, ops[0], ops[1], math.Exp)
	case isa.SinR:
		return vm.regUnaryMath(inst, ops[0], ops[1], math.Sin)
	case isa.CosR:
		return vm.regUnaryMath(inst, ops[0], ops[1], math.Cos)
	case isa.TanR:
		return vm.regUnaryMath(inst, ops[0], ops[1], math.Tan)
	case isa.PowR:
		return vm.doPowR(inst, ops[0], ops[1], ops[2])

	// ---- Register forms: unary ----
	case isa.NegR:
		return vm.doNegR(inst, ops[0], ops[1])
	case isa.NotR:
		return vm.doNotR(inst, ops[0], ops[1])

	// ---- Register forms: I/O ----
	case isa.PrintR:
		return vm.doPrintR(inst, ops[0], vm.Out)
	case isa.PrintErrorR:
		return vm.doPrintR(inst, ops[0], vm.ErrOut)
	case isa.ReadLineR:
		r, ferr := regIndex(inst, ops[0])
		if ferr != nil {
			return stepFault, ferr
		}
		line, err := vm.In.ReadString('\n')
		if err != nil && err != io.EOF {
			return stepFault, newRuntimeError(IOErrorKind, inst, "READLINE_R: %v", err)
		}
		frame.Registers[r] = value.NewString(strings.TrimRight(line, "\r\n"))
		return stepContinue, nil
	case isa.SystemR:
		return vm.doSystemR(inst, ops[0])
	case isa.SystemOutR:
		return vm.doSystemCaptureR(inst, ops[0], ops[1], false)
	case isa.SystemErrR:
		return vm.doSystemCaptureR(inst, ops[0], ops[1], true)

	// ---- Module ----
	case isa.Import:
		return vm.doImport(inst, ops[0])

	default:
		return stepFault, newRuntimeError(StructuralError, inst, "unknown opcode %v", ins.Op)
	}
}
