// Native function registry and the three always-available array
// natives that pkg/codegen lowers array literals, indexing, and
// index-assignment to (see compileIndex/compileArrayLiteral in
// pkg/codegen/codegen.go: __array_new/__array_get/__array_set, called
// through CALL_NATIVE with an explicit argument count).
package vm

import (
	"fmt"

	"github.com/dmcguire/phasor/pkg/value"
)

// NativeFunc is a host or builtin function reachable from bytecode via
// CALL_NATIVE. It receives the arguments in declaration order and
// returns the single value CALL_NATIVE pushes back onto the caller's
// stack, or an error that becomes a StructuralError fault.
type NativeFunc func(vm *VM, inst *Instance, args []value.Value) (value.Value, error)

func registerArrayNatives(vm *VM) {
	vm.RegisterNative("__array_new", nativeArrayNew)
	vm.RegisterNative("__array_get", nativeArrayGet)
	vm.RegisterNative("__array_set", nativeArraySet)
}

func nativeArrayNew(_ *VM, _ *Instance, args []value.Value) (value.Value, error) {
	items := make([]value.Value, len(args))
	copy(items, args)
	return value.NewArray(items), nil
}

func nativeArrayGet(_ *VM, _ *Instance, args []value.Value) (value.Value, error) {
	if len(args) != 2 {
		return value.Value{}, fmt.Errorf("__array_get expects 2 arguments, got %d", len(args))
	}
	arr := args[0].AsArray()
	if arr == nil {
		return value.Value{}, fmt.Errorf("__array_get: first argument is not an array")
	}
	idx, ok := value.AsNumericIndex(args[1])
	if !ok {
		return value.Value{}, fmt.Errorf("__array_get: index is not numeric")
	}
	if idx < 0 || idx >= len(arr.Items) {
		return value.Value{}, fmt.Errorf("__array_get: index %d out of range [0,%d)", idx, len(arr.Items))
	}
	return arr.Items[idx], nil
}

func nativeArraySet(_ *VM, _ *Instance, args []value.Value) (value.Value, error) {
	if len(args) != 3 {
		return value.Value{}, fmt.Errorf("__array_set expects 3 arguments, got %d", len(args))
	}
	arr := args[0].AsArray()
	if arr == nil {
		return value.Value{}, fmt.Errorf("__array_set: first argument is not an array")
	}
	idx, ok := value.AsNumericIndex(args[1])
	if !ok {
		return value.Value{}, fmt.Errorf("__array_set: index is not numeric")
	}
	if idx < 0 || idx >= len(arr.Items) {
		return value.Value{}, fmt.Errorf("__array_set: index %d out of range [0,%d)", idx, len(arr.Items))
	}
	arr.Items[idx] = args[2]
	return args[2], nil
}
