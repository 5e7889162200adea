// Register-form opcode handlers: the three-operand, SSA-friendly `_R`
// family. Grounded on ProbeChain-go-probe's probe-lang/lang/vm/vm.go,
// whose execute() reads a 4-byte [opcode|a|b|c] register machine via a
// bounds-checked getReg/setReg pair — the same shape this file uses,
// adapted from uint64 general registers to Phasor's per-frame
// value.Value register file.
package vm

import (
	"bytes"
	"io"
	"math"
	"os/exec"

	"github.com/dmcguire/phasor/pkg/value"
)

func (vm *VM) doMov(inst *Instance, a, b int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, b)
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	f.Registers[ra] = f.Registers[rb]
	return stepContinue, nil
}

func (vm *VM) doLoadConstR(inst *Instance, a, c int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	v, ferr := inst.constant(c)
	if ferr != nil {
		return stepFault, ferr
	}
	inst.activeFrame().Registers[ra] = v
	return stepContinue, nil
}

func (vm *VM) doLoadVarR(inst *Instance, a, slot int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	v, ferr := inst.getVar(slot)
	if ferr != nil {
		return stepFault, ferr
	}
	inst.activeFrame().Registers[ra] = v
	return stepContinue, nil
}

func (vm *VM) doStoreVarR(inst *Instance, a, slot int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	if ferr := inst.setVar(slot, inst.activeFrame().Registers[ra]); ferr != nil {
		return stepFault, ferr
	}
	return stepContinue, nil
}

func (vm *VM) doPushR(inst *Instance, a int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	inst.push(inst.activeFrame().Registers[ra])
	return stepContinue, nil
}

func (vm *VM) doPush2R(inst *Instance, a, b int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, b)
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	inst.push(f.Registers[ra])
	inst.push(f.Registers[rb])
	return stepContinue, nil
}

func (vm *VM) doPopR(inst *Instance, a int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	v, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	inst.activeFrame().Registers[ra] = v
	return stepContinue, nil
}

func (vm *VM) doPop2R(inst *Instance, a, b int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, b)
	if ferr != nil {
		return stepFault, ferr
	}
	vb, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	va, ferr := inst.pop()
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	f.Registers[ra] = va
	f.Registers[rb] = vb
	return stepContinue, nil
}

// regArith implements `rA = rB OP rC` for the register-form arithmetic
// opcodes, with the same int-fast/generic split as the stack forms.
func (vm *VM) regArith(inst *Instance, ops [5]int32, op string, intFast bool) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, ops[0])
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, ops[1])
	if ferr != nil {
		return stepFault, ferr
	}
	rc, ferr := regIndex(inst, ops[2])
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	a, b := f.Registers[rb], f.Registers[rc]
	if intFast && bothInt(a, b) {
		switch op {
		case "+":
			f.Registers[ra] = value.NewInt(a.AsInt() + b.AsInt())
		case "-":
			f.Registers[ra] = value.NewInt(a.AsInt() - b.AsInt())
		case "*":
			f.Registers[ra] = value.NewInt(a.AsInt() * b.AsInt())
		case "/":
			if b.AsInt() == 0 {
				return stepFault, newRuntimeError(ArithmeticErrorKind, inst, "integer division by zero")
			}
			f.Registers[ra] = value.NewInt(a.AsInt() / b.AsInt())
		case "%":
			if b.AsInt() == 0 {
				return stepFault, newRuntimeError(ArithmeticErrorKind, inst, "integer modulo by zero")
			}
			f.Registers[ra] = value.NewInt(a.AsInt() % b.AsInt())
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
	f.Registers[ra] = r
	return stepContinue, nil
}

func (vm *VM) regLogic(inst *Instance, ops [5]int32, and bool) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, ops[0])
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, ops[1])
	if ferr != nil {
		return stepFault, ferr
	}
	rc, ferr := regIndex(inst, ops[2])
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	a, b := f.Registers[rb], f.Registers[rc]
	if and {
		f.Registers[ra] = value.NewBool(a.IsTruthy() && b.IsTruthy())
	} else {
		f.Registers[ra] = value.NewBool(a.IsTruthy() || b.IsTruthy())
	}
	return stepContinue, nil
}

func (vm *VM) regCompare(inst *Instance, ops [5]int32, k cmpKind, intFast bool) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, ops[0])
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, ops[1])
	if ferr != nil {
		return stepFault, ferr
	}
	rc, ferr := regIndex(inst, ops[2])
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	a, b := f.Registers[rb], f.Registers[rc]
	if intFast && bothInt(a, b) {
		c := 0
		switch {
		case a.AsInt() < b.AsInt():
			c = -1
		case a.AsInt() > b.AsInt():
			c = 1
		}
		f.Registers[ra] = value.NewBool(cmpTrue(k, c))
		return stepContinue, nil
	}
	if k == cmpEq {
		f.Registers[ra] = value.NewBool(a.Equal(b))
		return stepContinue, nil
	}
	if k == cmpNe {
		f.Registers[ra] = value.NewBool(!a.Equal(b))
		return stepContinue, nil
	}
	c, err := value.Compare(a, b)
	if err != nil {
		return stepFault, newRuntimeError(StructuralError, inst, "%v", err)
	}
	f.Registers[ra] = value.NewBool(cmpTrue(k, c))
	return stepContinue, nil
}

func (vm *VM) regUnaryMath(inst *Instance, a, b int32, fn func(float64) float64) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, b)
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	x, ok := toFloat(f.Registers[rb])
	if !ok {
		return stepFault, newRuntimeError(StructuralError, inst, "math function requires a numeric operand")
	}
	f.Registers[ra] = value.NewFloat(fn(x))
	return stepContinue, nil
}

func (vm *VM) doPowR(inst *Instance, a, b, c int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, b)
	if ferr != nil {
		return stepFault, ferr
	}
	rc, ferr := regIndex(inst, c)
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	base, ok1 := toFloat(f.Registers[rb])
	exp, ok2 := toFloat(f.Registers[rc])
	if !ok1 || !ok2 {
		return stepFault, newRuntimeError(StructuralError, inst, "POW_R requires numeric operands")
	}
	f.Registers[ra] = value.NewFloat(math.Pow(base, exp))
	return stepContinue, nil
}

func (vm *VM) doNegR(inst *Instance, a, b int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, b)
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	r, err := value.Neg(f.Registers[rb])
	if err != nil {
		return stepFault, newRuntimeError(StructuralError, inst, "%v", err)
	}
	f.Registers[ra] = r
	return stepContinue, nil
}

func (vm *VM) doNotR(inst *Instance, a, b int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, b)
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	f.Registers[ra] = value.NewBool(!f.Registers[rb].IsTruthy())
	return stepContinue, nil
}

func (vm *VM) doPrintR(inst *Instance, a int32, w io.Writer) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	if _, err := io.WriteString(w, value.Display(inst.activeFrame().Registers[ra])+"\n"); err != nil {
		return stepFault, newRuntimeError(IOErrorKind, inst, "%v", err)
	}
	return stepContinue, nil
}

func (vm *VM) doSystemR(inst *Instance, a int32) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	cmd := inst.activeFrame().Registers[ra]
	if cmd.Kind() != value.String {
		return stepFault, newRuntimeError(StructuralError, inst, "SYSTEM_R requires a string command register")
	}
	_ = exec.Command("sh", "-c", cmd.AsString()).Run()
	return stepContinue, nil
}

func (vm *VM) doSystemCaptureR(inst *Instance, a, b int32, stderr bool) (stepResult, *RuntimeError) {
	ra, ferr := regIndex(inst, a)
	if ferr != nil {
		return stepFault, ferr
	}
	rb, ferr := regIndex(inst, b)
	if ferr != nil {
		return stepFault, ferr
	}
	f := inst.activeFrame()
	cmd := f.Registers[ra]
	if cmd.Kind() != value.String {
		return stepFault, newRuntimeError(StructuralError, inst, "SYSTEM_OUT_R/SYSTEM_ERR_R requires a string command register")
	}
	var out bytes.Buffer
	c := exec.Command("sh", "-c", cmd.AsString())
	if stderr {
		c.Stderr = &out
	} else {
		c.Stdout = &out
	}
	_ = c.Run()
	f.Registers[rb] = value.NewString(out.String())
	return stepContinue, nil
}
