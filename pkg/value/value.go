// Package value implements the tagged runtime value of the Phasor
// virtual machine.
//
// A Value is a tagged union over Null, Bool, Int (64-bit signed), Float
// (IEEE-754 double), String, Struct (shared, mutable), and Array (shared,
// ordered). Every Value has exactly one Kind; the scalar Kinds (Null,
// Bool, Int, Float, String) are copied by value, while Struct and Array
// carry a pointer to shared, mutable backing storage — assigning a Struct
// or Array Value aliases it, the same way assigning a slice or map alias
// their backing storage in Go itself.
//
// Arithmetic and comparison promote Int to Float when the two operands
// disagree (see Add/Sub/Mul/Div/Mod and Compare). String concatenation takes over
// whenever '+' has a string operand on either side. There is no cycle
// collector for Struct/Array values that reference each other; that is a
// user responsibility, matching spec.md's Non-goals.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies which alternative of the tagged union a Value holds.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Int
	Float
	String
	Struct
	Array
)

// String renders the Kind's name, used in error messages and the text IR.
func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	case Struct:
		return "struct"
	case Array:
		return "array"
	default:
		return "unknown"
	}
}

// StructValue is the shared, mutable backing storage for a Value of Kind
// Struct: a struct-type name plus a field map. Fields is a plain Go map,
// so its iteration order (and the field order Display prints) is unspecified.
type StructValue struct {
	TypeName string
	Fields   map[string]Value
}

// ArrayValue is the shared, mutable backing storage for a Value of Kind
// Array: an ordered, growable sequence of Value.
type ArrayValue struct {
	Items []Value
}

// Value is the tagged union described in spec.md §3. The zero Value is
// Null.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	st   *StructValue
	arr  *ArrayValue
}

// NewNull returns the Null value.
func NewNull() Value { return Value{kind: Null} }

// NewBool wraps a bool.
func NewBool(b bool) Value { return Value{kind: Bool, b: b} }

// NewInt wraps an int64.
func NewInt(i int64) Value { return Value{kind: Int, i: i} }

// NewFloat wraps a float64.
func NewFloat(f float64) Value { return Value{kind: Float, f: f} }

// NewString wraps a string.
func NewString(s string) Value { return Value{kind: String, s: s} }

// NewStruct creates a new, empty Struct Value of the given type name.
// Fields are added with SetField.
func NewStruct(typeName string) Value {
	return Value{kind: Struct, st: &StructValue{TypeName: typeName, Fields: make(map[string]Value)}}
}

// NewStructFrom wraps a pre-populated StructValue, aliasing its storage.
func NewStructFrom(sv *StructValue) Value { return Value{kind: Struct, st: sv} }

// NewArray creates an Array Value from items, copying the slice header
// (not the elements — Value copies are cheap scalars or shared pointers).
func NewArray(items []Value) Value {
	return Value{kind: Array, arr: &ArrayValue{Items: items}}
}

// Kind reports the alternative this Value holds.
func (v Value) Kind() Kind { return v.kind }

// AsBool returns the raw bool payload; valid only when Kind() == Bool.
func (v Value) AsBool() bool { return v.b }

// AsInt returns the raw int64 payload; valid only when Kind() == Int.
func (v Value) AsInt() int64 { return v.i }

// AsFloat returns the raw float64 payload; valid only when Kind() == Float.
func (v Value) AsFloat() float64 { return v.f }

// AsString returns the raw string payload; valid only when Kind() == String.
func (v Value) AsString() string { return v.s }

// AsStruct returns the shared struct storage; valid only when Kind() == Struct.
func (v Value) AsStruct() *StructValue { return v.st }

// AsArray returns the shared array storage; valid only when Kind() == Array.
func (v Value) AsArray() *ArrayValue { return v.arr }

// IsTruthy implements spec.md §3's truthiness rule: Null and Bool(false)
// are false; numeric zero is false; empty string is false; everything
// else (including empty Struct/Array) is true.
func (v Value) IsTruthy() bool {
	switch v.kind {
	case Null:
		return false
	case Bool:
		return v.b
	case Int:
		return v.i != 0
	case Float:
		return v.f != 0
	case String:
		return v.s != ""
	default:
		return true
	}
}

// Equal reports value equality. Struct/Array compare by shared identity
// (pointer equality), matching their reference-shared ownership.
func (v Value) Equal(other Value) bool {
	if v.kind == Int && other.kind == Float {
		return float64(v.i) == other.f
	}
	if v.kind == Float && other.kind == Int {
		return v.f == float64(other.i)
	}
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case Null:
		return true
	case Bool:
		return v.b == other.b
	case Int:
		return v.i == other.i
	case Float:
		return v.f == other.f
	case String:
		return v.s == other.s
	case Struct:
		return v.st == other.st
	case Array:
		return v.arr == other.arr
	default:
		return false
	}
}

// numeric reports whether the Value is Int or Float, and its float64
// view for promotion purposes.
func (v Value) numeric() (float64, bool) {
	switch v.kind {
	case Int:
		return float64(v.i), true
	case Float:
		return v.f, true
	default:
		return 0, false
	}
}

// bothInt reports whether both operands are Kind Int, the condition
// under which integer-specialised arithmetic applies without promotion.
func bothInt(a, b Value) bool { return a.kind == Int && b.kind == Int }

// ErrTypeMismatch is returned by the arithmetic functions and Compare when an operand is
// neither numeric nor (for '+') a string pairing.
type ErrTypeMismatch struct {
	Op       string
	LeftKind Kind
	RightKind Kind
}

func (e *ErrTypeMismatch) Error() string {
	return fmt.Sprintf("type mismatch: %s %s %s", e.LeftKind, e.Op, e.RightKind)
}

// Add implements '+': string concatenation if either operand is a
// String, otherwise numeric addition with Int->Float promotion.
func Add(a, b Value) (Value, error) {
	if a.kind == String || b.kind == String {
		return NewString(Display(a) + Display(b)), nil
	}
	if bothInt(a, b) {
		return NewInt(a.i + b.i), nil
	}
	af, aok := a.numeric()
	bf, bok := b.numeric()
	if !aok || !bok {
		return Value{}, &ErrTypeMismatch{"+", a.kind, b.kind}
	}
	return NewFloat(af + bf), nil
}

// ErrDivByZero is returned by Div/Mod on integer division or modulo
// by zero, per spec.md §3 ("Division by zero on Int raises a runtime
// fault; on Float follows IEEE semantics").
var ErrDivByZero = fmt.Errorf("division by zero")

// Sub implements '-'.
func Sub(a, b Value) (Value, error) {
	if bothInt(a, b) {
		return NewInt(a.i - b.i), nil
	}
	af, aok := a.numeric()
	bf, bok := b.numeric()
	if !aok || !bok {
		return Value{}, &ErrTypeMismatch{"-", a.kind, b.kind}
	}
	return NewFloat(af - bf), nil
}

// Mul implements '*'.
func Mul(a, b Value) (Value, error) {
	if bothInt(a, b) {
		return NewInt(a.i * b.i), nil
	}
	af, aok := a.numeric()
	bf, bok := b.numeric()
	if !aok || !bok {
		return Value{}, &ErrTypeMismatch{"*", a.kind, b.kind}
	}
	return NewFloat(af * bf), nil
}

// Div implements '/'. Integer division by zero faults; float division
// follows IEEE-754 (producing Inf/NaN).
func Div(a, b Value) (Value, error) {
	if bothInt(a, b) {
		if b.i == 0 {
			return Value{}, ErrDivByZero
		}
		return NewInt(a.i / b.i), nil
	}
	af, aok := a.numeric()
	bf, bok := b.numeric()
	if !aok || !bok {
		return Value{}, &ErrTypeMismatch{"/", a.kind, b.kind}
	}
	return NewFloat(af / bf), nil
}

// Mod implements '%'. Integer modulo by zero faults; float modulo uses
// math.Mod.
func Mod(a, b Value) (Value, error) {
	if bothInt(a, b) {
		if b.i == 0 {
			return Value{}, ErrDivByZero
		}
		return NewInt(a.i % b.i), nil
	}
	af, aok := a.numeric()
	bf, bok := b.numeric()
	if !aok || !bok {
		return Value{}, &ErrTypeMismatch{"%", a.kind, b.kind}
	}
	return NewFloat(math.Mod(af, bf)), nil
}

// Neg implements unary '-'.
func Neg(a Value) (Value, error) {
	switch a.kind {
	case Int:
		return NewInt(-a.i), nil
	case Float:
		return NewFloat(-a.f), nil
	default:
		return Value{}, &ErrTypeMismatch{"neg", a.kind, a.kind}
	}
}

// Compare returns -1, 0, or 1 as a < b, a == b, a > b, with Int->Float
// promotion when the Kinds differ. Strings compare lexicographically.
func Compare(a, b Value) (int, error) {
	if a.kind == String && b.kind == String {
		return strings.Compare(a.s, b.s), nil
	}
	af, aok := a.numeric()
	bf, bok := b.numeric()
	if !aok || !bok {
		return 0, &ErrTypeMismatch{"cmp", a.kind, b.kind}
	}
	switch {
	case af < bf:
		return -1, nil
	case af > bf:
		return 1, nil
	default:
		return 0, nil
	}
}

// Display renders a Value the way PRINT and string concatenation do:
// human-readable, no surrounding quotes on strings.
func Display(v Value) string {
	switch v.kind {
	case Null:
		return "null"
	case Bool:
		if v.b {
			return "true"
		}
		return "false"
	case Int:
		return strconv.FormatInt(v.i, 10)
	case Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case String:
		return v.s
	case Struct:
		var b strings.Builder
		b.WriteString(v.st.TypeName)
		b.WriteByte('{')
		first := true
		for k, fv := range v.st.Fields {
			if !first {
				b.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&b, "%s: %s", k, Display(fv))
		}
		b.WriteByte('}')
		return b.String()
	case Array:
		var b strings.Builder
		b.WriteByte('[')
		for i, item := range v.arr.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(Display(item))
		}
		b.WriteByte(']')
		return b.String()
	default:
		return "<unknown>"
	}
}

// AsNumericIndex coerces a Value to an int index the way CHAR_AT accepts
// its index operand (spec.md §4.3): Int used directly, Float truncated,
// numeric String parsed. ok is false if the Value cannot be interpreted
// as a number.
func AsNumericIndex(v Value) (int, bool) {
	switch v.kind {
	case Int:
		return int(v.i), true
	case Float:
		return int(v.f), true
	case String:
		n, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
