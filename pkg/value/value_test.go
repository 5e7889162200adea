package value

import "testing"

func TestAddPromotion(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want Value
	}{
		{"int+int", NewInt(2), NewInt(3), NewInt(5)},
		{"int+float promotes", NewInt(2), NewFloat(0.5), NewFloat(2.5)},
		{"string+int concatenates", NewString("x="), NewInt(5), NewString("x=5")},
		{"int+string concatenates", NewInt(5), NewString("!"), NewString("5!")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Add(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Add: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Add(%v, %v) = %v, want %v", tt.a, tt.b, Display(got), Display(tt.want))
			}
		})
	}
}

func TestDivByZero(t *testing.T) {
	if _, err := Div(NewInt(1), NewInt(0)); err != ErrDivByZero {
		t.Errorf("Div by zero int: got %v, want ErrDivByZero", err)
	}
	got, err := Div(NewFloat(1), NewFloat(0))
	if err != nil {
		t.Fatalf("float div by zero should not error: %v", err)
	}
	if got.Kind() != Float {
		t.Errorf("expected float result")
	}
}

func TestTruthiness(t *testing.T) {
	falsy := []Value{NewNull(), NewBool(false), NewInt(0), NewFloat(0), NewString("")}
	for _, v := range falsy {
		if v.IsTruthy() {
			t.Errorf("%v expected falsy", Display(v))
		}
	}
	truthy := []Value{NewBool(true), NewInt(1), NewFloat(0.1), NewString("a"), NewArray(nil)}
	for _, v := range truthy {
		if !v.IsTruthy() {
			t.Errorf("%v expected truthy", Display(v))
		}
	}
}

func TestStructSharedIdentity(t *testing.T) {
	s := NewStruct("Point")
	s.AsStruct().Fields["x"] = NewInt(1)
	alias := s
	alias.AsStruct().Fields["x"] = NewInt(99)
	if s.AsStruct().Fields["x"].AsInt() != 99 {
		t.Errorf("expected struct aliasing, got %v", s.AsStruct().Fields["x"].AsInt())
	}
	if !s.Equal(alias) {
		t.Errorf("aliased structs should compare equal by identity")
	}
}

func TestCompare(t *testing.T) {
	c, err := Compare(NewInt(1), NewFloat(2.0))
	if err != nil || c >= 0 {
		t.Errorf("Compare(1, 2.0) = %d, %v; want <0", c, err)
	}
	c, err = Compare(NewString("a"), NewString("b"))
	if err != nil || c >= 0 {
		t.Errorf("Compare(a, b) = %d, %v; want <0", c, err)
	}
}
