package vm

import (
	"testing"

	"github.com/dmcguire/phasor/pkg/value"
)

func TestNativeArrayNewGetSet(t *testing.T) {
	v := New()
	arr, err := nativeArrayNew(v, nil, []value.Value{value.NewInt(1), value.NewInt(2)})
	if err != nil {
		t.Fatalf("nativeArrayNew: %v", err)
	}
	got, err := nativeArrayGet(v, nil, []value.Value{arr, value.NewInt(1)})
	if err != nil {
		t.Fatalf("nativeArrayGet: %v", err)
	}
	if !got.Equal(value.NewInt(2)) {
		t.Errorf("got %v, want 2", got)
	}
	if _, err := nativeArraySet(v, nil, []value.Value{arr, value.NewInt(0), value.NewInt(9)}); err != nil {
		t.Fatalf("nativeArraySet: %v", err)
	}
	got, _ = nativeArrayGet(v, nil, []value.Value{arr, value.NewInt(0)})
	if !got.Equal(value.NewInt(9)) {
		t.Errorf("got %v after set, want 9", got)
	}
}

func TestNativeArrayGetOutOfRangeErrors(t *testing.T) {
	v := New()
	arr, _ := nativeArrayNew(v, nil, []value.Value{value.NewInt(1)})
	if _, err := nativeArrayGet(v, nil, []value.Value{arr, value.NewInt(5)}); err == nil {
		t.Fatal("expected an out-of-range error")
	}
}

func TestNativeArraySetRejectsNonArray(t *testing.T) {
	v := New()
	if _, err := nativeArraySet(v, nil, []value.Value{value.NewInt(1), value.NewInt(0), value.NewInt(1)}); err == nil {
		t.Fatal("expected an error for a non-array first argument")
	}
}
