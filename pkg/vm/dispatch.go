package vm

import (
	"bytes"
	"io"
	"os/exec"

	"github.com/dmcguire/phasor/pkg/value"
)

// cmpKind selects which side of value.Compare's three-way result a
// comparison opcode accepts.
type cmpKind int

const (
	cmpEq cmpKind = iota
	cmpNe
	cmpLt
	cmpGt
	cmpLe
	cmpGe
)

func cmpTrue(k cmpKind, c int) bool {
	switch k {
	case cmpEq:
		return c == 0
	case cmpNe:
		return c != 0
	case cmpLt:
		return c < 0
	case cmpGt:
		return c > 0
	case cmpLe:
		return c <= 0
	default: // cmpGe
		return c >= 0
	}
}

// binArith implements the stack-form arithmetic opcodes. The integer
// family (intFast=true) takes the Int-only fast path recorded in
// DESIGN.md; the float family is always the generic value.Add/Sub/Mul/
// Div/Mod fallback, which also handles Int/Float promotion and (for
// '+') string concatenation.
func (vm *VM) binArith(inst *Instance, op string, intFast bool) (stepResult, *RuntimeError) {
	a, b, ferr := inst.pop2()
	if ferr != nil {
		return stepFault, ferr
	}
	if intFast && bothInt(a, b) {
		switch op {
		case "+":
			inst.push(value.NewInt(a.AsInt() + b.AsInt()))
		case "-":
			inst.push(value.NewInt(a.AsInt() - b.AsInt()))
		case "*":
			inst.push(value.NewInt(a.AsInt() * b.AsInt()))
		case "/":
			if b.AsInt() == 0 {
				return stepFault, newRuntimeError(ArithmeticErrorKind, inst, "integer division by zero")
			}
			inst.push(value.NewInt(a.AsInt() / b.AsInt()))
		case "%":
			if b.AsInt() == 0 {
				return stepFault, newRuntimeError(ArithmeticErrorKind, inst, "integer modulo by zero")
			}
			inst.push(value.NewInt(a.AsInt() % b.AsInt()))
		}
		return stepContinue, nil
	}
	var r value.Value
	var err error
	switch op {
	case "+":
		r, err = value.Add(a, b)
	case "-":
		r, err = value.Sub(a, b)
	case "*":
		r, err = value.Mul(a, b)
	case "/":
		r, err = value.Div(a, b)
	case "%":
		r, err = value.Mod(a, b)
	}
	if err != nil {
		if err == value.ErrDivByZero {
			return stepFault, newRuntimeError(ArithmeticErrorKind, inst, "%v", err)
		}
		return stepFault, newRuntimeError(StructuralError, inst, "%v", err)
	}
	inst.push(r)
	return stepContinue, nil
}

// binCompare implements the stack-form comparison opcodes, with the
// same int-fast/generic split as binArith.
func (vm *VM) binCompare(inst *Instance, k cmpKind, intFast bool) (stepResult, *RuntimeError) {
	a, b, ferr := inst.pop2()
	if ferr != nil {
		return stepFault, ferr
	}
	if intFast && bothInt(a, b) {
		c := 0
		switch {
		case a.AsInt() < b.AsInt():
			c = -1
		case a.AsInt() > b.AsInt():
			c = 1
		}
		inst.push(value.NewBool(cmpTrue(k, c)))
		return stepContinue, nil
	}
	if k == cmpEq {
		inst.push(value.NewBool(a.Equal(b)))
		return stepContinue, nil
	}
	if k == cmpNe {
		inst.push(value.NewBool(!a.Equal(b)))
		return stepContinue, nil
	}
	c, err := value.Compare(a, b)
	if err != nil {
		return stepFault, newRuntimeError(StructuralError, inst, "%v", err)
	}
	inst.push(value.NewBool(cmpTrue(k, c)))
	return stepContinue, nil
}

func (vm *VM) unaryMath(inst *Instance, fn func(float64) float64) (stepResult, *RuntimeError) {
	a, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	f, ok := toFloat(a)
	if !ok {
		return stepFault, newRuntimeError(StructuralError, inst, "math function requires a numeric operand, got %s", a.Kind())
	}
	inst.push(value.NewFloat(fn(f)))
	return stepContinue, nil
}

// doCall implements CALL per the locked arg-count convention (spec.md
// §4.2, §4.3): the callee's declared parameter count of values are
// popped off the caller's stack in reverse order (yielding the argument
// vector in declaration order), a new Frame sized by
// FunctionLocalCounts[name] is pushed, and the arguments are re-pushed
// onto the new Frame's own operand stack for the function's STORE_VAR
// prologue to consume.
func (vm *VM) doCall(inst *Instance, nameConst int32) (stepResult, *RuntimeError) {
	nameVal, ferr := inst.constant(nameConst)
	if ferr != nil {
		return stepFault, ferr
	}
	name := nameVal.AsString()
	entry, ok := inst.Code.FunctionEntries[name]
	if !ok {
		return stepFault, newRuntimeError(StructuralError, inst, "call to unknown function %q", name)
	}
	paramCount := inst.Code.FunctionParamCounts[name]
	localCount := inst.Code.FunctionLocalCounts[name]

	args := make([]value.Value, paramCount)
	for i := paramCount - 1; i >= 0; i-- {
		v, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		args[i] = v
	}

	caller := inst.activeFrame()
	callee := &Frame{
		Locals:           make([]value.Value, localCount),
		PC:               entry,
		ReturnPC:         caller.PC,
		ReturnToInstance: NoInstance,
		FuncName:         name,
	}
	inst.Frames = append(inst.Frames, callee)
	for _, a := range args {
		inst.push(a)
	}
	return stepContinue, nil
}

// doReturn implements RETURN. Popping the bottom frame is a clean halt,
// not a fault (spec.md §7).
func (vm *VM) doReturn(inst *Instance) (stepResult, *RuntimeError) {
	retVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	inst.LastReturnValue = retVal
	popped := inst.activeFrame()
	inst.Frames = inst.Frames[:len(inst.Frames)-1]
	// A popped ReturnPC of -1 marks a frame with nothing to resume into:
	// either the Instance's own bottom frame, or a frame CallFunction
	// pushed to reactivate a dormant or never-run Instance. Either way
	// this is a clean halt, regardless of any stale unexecuted frames
	// still sitting beneath it.
	if popped.ReturnPC < 0 || len(inst.Frames) == 0 {
		return stepHalt, nil
	}
	caller := inst.activeFrame()
	caller.PC = popped.ReturnPC
	inst.push(retVal)
	return stepContinue, nil
}

// doCallNative implements CALL_NATIVE: the name is read from the
// constant pool, an Int argument count is popped, that many arguments
// are popped (restoring declaration order), and the registered native
// is invoked.
func (vm *VM) doCallNative(inst *Instance, nameConst int32) (stepResult, *RuntimeError) {
	nameVal, ferr := inst.constant(nameConst)
	if ferr != nil {
		return stepFault, ferr
	}
	name := nameVal.AsString()
	countVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if countVal.Kind() != value.Int {
		return stepFault, newRuntimeError(StructuralError, inst, "CALL_NATIVE argument count must be Int")
	}
	n := int(countVal.AsInt())
	args := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		v, ferr := inst.pop()
		if ferr != nil {
			return stepFault, ferr
		}
		args[i] = v
	}
	fn, ok := vm.NativeFunctions[name]
	if !ok {
		return stepFault, newRuntimeError(StructuralError, inst, "call to unknown native function %q", name)
	}
	result, err := fn(vm, inst, args)
	if err != nil {
		return stepFault, newRuntimeError(StructuralError, inst, "native %q: %v", name, err)
	}
	inst.push(result)
	return stepContinue, nil
}

func (vm *VM) doPrint(inst *Instance, w io.Writer) (stepResult, *RuntimeError) {
	v, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if _, err := io.WriteString(w, value.Display(v)+"\n"); err != nil {
		return stepFault, newRuntimeError(IOErrorKind, inst, "%v", err)
	}
	return stepContinue, nil
}

func (vm *VM) doSystemCapture(inst *Instance, stderr bool) (stepResult, *RuntimeError) {
	cmd, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if cmd.Kind() != value.String {
		return stepFault, newRuntimeError(StructuralError, inst, "SYSTEM_OUT/SYSTEM_ERR requires a string command")
	}
	var out bytes.Buffer
	c := exec.Command("sh", "-c", cmd.AsString())
	if stderr {
		c.Stderr = &out
	} else {
		c.Stdout = &out
	}
	_ = c.Run()
	inst.push(value.NewString(out.String()))
	return stepContinue, nil
}

// doCharAt implements CHAR_AT's documented out-of-range behaviour
// (spec.md §4.3): an index outside [0, len) pushes an empty string
// rather than faulting.
func (vm *VM) doCharAt(inst *Instance) (stepResult, *RuntimeError) {
	idxVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	sVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if sVal.Kind() != value.String {
		return stepFault, newRuntimeError(StructuralError, inst, "CHAR_AT requires a string")
	}
	s := sVal.AsString()
	idx, ok := value.AsNumericIndex(idxVal)
	if !ok || idx < 0 || idx >= len(s) {
		inst.push(value.NewString(""))
		return stepContinue, nil
	}
	inst.push(value.NewString(string(s[idx])))
	return stepContinue, nil
}

// doSubstr implements SUBSTR's documented out-of-range behaviour:
// out-of-range start pushes an empty string; an over-long length
// clamps to the remainder of the string.
func (vm *VM) doSubstr(inst *Instance) (stepResult, *RuntimeError) {
	lengthVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	startVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	sVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if sVal.Kind() != value.String {
		return stepFault, newRuntimeError(StructuralError, inst, "SUBSTR requires a string")
	}
	s := sVal.AsString()
	start, okStart := value.AsNumericIndex(startVal)
	length, okLen := value.AsNumericIndex(lengthVal)
	if !okStart || !okLen || start < 0 || start >= len(s) {
		inst.push(value.NewString(""))
		return stepContinue, nil
	}
	end := start + length
	if length < 0 {
		end = start
	}
	if end > len(s) {
		end = len(s)
	}
	inst.push(value.NewString(s[start:end]))
	return stepContinue, nil
}

func (vm *VM) doNewStructStatic(inst *Instance, structIdx int32) (stepResult, *RuntimeError) {
	if structIdx < 0 || int(structIdx) >= len(inst.Code.StructTable) {
		return stepFault, newRuntimeError(StructuralError, inst, "struct-table index %d out of range", structIdx)
	}
	entry := inst.Code.StructTable[structIdx]
	sv := value.NewStruct(entry.Name)
	for i, fieldName := range entry.Fields {
		constIdx := entry.DefaultConstBase + i
		if constIdx < 0 || constIdx >= len(inst.Code.Constants) {
			return stepFault, newRuntimeError(StructuralError, inst, "struct %q default constant %d out of range", entry.Name, constIdx)
		}
		sv.AsStruct().Fields[fieldName] = inst.Code.Constants[constIdx]
	}
	inst.push(sv)
	return stepContinue, nil
}

func (vm *VM) doGetField(inst *Instance, fieldConst int32) (stepResult, *RuntimeError) {
	fieldVal, ferr := inst.constant(fieldConst)
	if ferr != nil {
		return stepFault, ferr
	}
	objVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if objVal.Kind() != value.Struct {
		return stepFault, newRuntimeError(StructuralError, inst, "GET_FIELD requires a struct")
	}
	inst.push(objVal.AsStruct().Fields[fieldVal.AsString()])
	return stepContinue, nil
}

func (vm *VM) doSetField(inst *Instance, fieldConst int32) (stepResult, *RuntimeError) {
	fieldVal, ferr := inst.constant(fieldConst)
	if ferr != nil {
		return stepFault, ferr
	}
	newVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	objVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if objVal.Kind() != value.Struct {
		return stepFault, newRuntimeError(StructuralError, inst, "SET_FIELD requires a struct")
	}
	objVal.AsStruct().Fields[fieldVal.AsString()] = newVal
	inst.push(objVal) // SET_FIELD pushes the object back, not the written value
	return stepContinue, nil
}

func (vm *VM) doGetFieldStatic(inst *Instance, structIdx, offset int32) (stepResult, *RuntimeError) {
	if structIdx < 0 || int(structIdx) >= len(inst.Code.StructTable) {
		return stepFault, newRuntimeError(StructuralError, inst, "struct-table index %d out of range", structIdx)
	}
	entry := inst.Code.StructTable[structIdx]
	if offset < 0 || int(offset) >= len(entry.Fields) {
		return stepFault, newRuntimeError(StructuralError, inst, "field offset %d out of range for struct %q", offset, entry.Name)
	}
	objVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if objVal.Kind() != value.Struct {
		return stepFault, newRuntimeError(StructuralError, inst, "GET_FIELD_STATIC requires a struct")
	}
	inst.push(objVal.AsStruct().Fields[entry.Fields[offset]])
	return stepContinue, nil
}

func (vm *VM) doSetFieldStatic(inst *Instance, structIdx, offset int32) (stepResult, *RuntimeError) {
	if structIdx < 0 || int(structIdx) >= len(inst.Code.StructTable) {
		return stepFault, newRuntimeError(StructuralError, inst, "struct-table index %d out of range", structIdx)
	}
	entry := inst.Code.StructTable[structIdx]
	if offset < 0 || int(offset) >= len(entry.Fields) {
		return stepFault, newRuntimeError(StructuralError, inst, "field offset %d out of range for struct %q", offset, entry.Name)
	}
	newVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	objVal, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	if objVal.Kind() != value.Struct {
		return stepFault, newRuntimeError(StructuralError, inst, "SET_FIELD_STATIC requires a struct")
	}
	objVal.AsStruct().Fields[entry.Fields[offset]] = newVal
	inst.push(objVal)
	return stepContinue, nil
}

func (vm *VM) doImport(inst *Instance, pathConst int32) (stepResult, *RuntimeError) {
	pathVal, ferr := inst.constant(pathConst)
	if ferr != nil {
		return stepFault, ferr
	}
	if vm.ImportHandler == nil {
		return stepFault, newRuntimeError(StructuralError, inst, "IMPORT requires a host-installed import handler")
	}
	if err := vm.ImportHandler(vm, inst, pathVal.AsString()); err != nil {
		return stepFault, newRuntimeError(ModuleErrorKind, inst, "%v", err)
	}
	return stepContinue, nil
}
