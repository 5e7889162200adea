package module

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmcguire/phasor/pkg/bytecode"
	"github.com/dmcguire/phasor/pkg/isa"
	"github.com/dmcguire/phasor/pkg/value"
	"github.com/dmcguire/phasor/pkg/vm"
)

func stubCompile(sources []string) (*bytecode.Bytecode, error) {
	bc := bytecode.New()
	bc.Instructions = []bytecode.Instruction{{Op: isa.Halt}}
	return bc, nil
}

func writeManifest(t *testing.T, dir string, m Manifest) string {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	path := filepath.Join(dir, "module.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func writeSource(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("// stub"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func TestAccessControlRejectsUnimportedInstance(t *testing.T) {
	v := vm.New()
	r, err := NewRuntime(v, stubCompile, 8)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	caller := r.CreateInstance(bytecode.New())
	target := r.CreateInstance(bytecode.New())

	_, err = r.CallTrans(caller, target, "anything", nil)
	if err == nil {
		t.Fatal("expected an access violation, got nil error")
	}
	rerr, ok := err.(*vm.RuntimeError)
	if !ok {
		t.Fatalf("expected *vm.RuntimeError, got %T", err)
	}
	if rerr.Kind != vm.CallErrorKind {
		t.Errorf("got kind %v, want call error", rerr.Kind)
	}
}

func TestAccessControlAllowsImportedInstance(t *testing.T) {
	v := vm.New()
	r, err := NewRuntime(v, stubCompile, 8)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	targetBC := bytecode.New()
	targetBC.Instructions = []bytecode.Instruction{
		{Op: isa.PushConst, Operands: [5]int32{0}},
		{Op: isa.Return},
	}
	targetBC.Constants = append(targetBC.Constants, value.NewInt(42))
	targetBC.FunctionEntries = map[string]int{"answer": 0}
	targetBC.FunctionParamCounts = map[string]int{"answer": 0}
	targetBC.FunctionLocalCounts = map[string]int{"answer": 0}

	caller := r.CreateInstance(bytecode.New())
	target := r.CreateInstance(targetBC)

	callerInst, err := v.GetInstance(caller)
	if err != nil {
		t.Fatalf("GetInstance: %v", err)
	}
	callerInst.Imports = append(callerInst.Imports, target)

	got, err := r.CallTrans(caller, target, "answer", nil)
	if err != nil {
		t.Fatalf("CallTrans: %v", err)
	}
	if !got.Equal(value.NewInt(42)) {
		t.Errorf("got %v, want 42", got)
	}
}

func TestCacheReturnsSameHandleUntilFileChanges(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "mod.src")
	path := writeManifest(t, dir, Manifest{
		Name:      "stub",
		Sources:   []string{"mod.src"},
		Checksums: []string{"SKIP"},
	})

	v := vm.New()
	r, err := NewRuntime(v, stubCompile, 8)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}

	h1, err := r.LoadModule(path, vm.NoInstance)
	if err != nil {
		t.Fatalf("LoadModule (1st): %v", err)
	}
	h2, err := r.LoadModule(path, vm.NoInstance)
	if err != nil {
		t.Fatalf("LoadModule (2nd): %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected the same handle from an unchanged manifest, got %v and %v", h1, h2)
	}

	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	h3, err := r.LoadModule(path, vm.NoInstance)
	if err != nil {
		t.Fatalf("LoadModule (3rd): %v", err)
	}
	if h3 == h1 {
		t.Error("expected a fresh handle after the manifest's mtime advanced")
	}
}

func TestLoadModuleRejectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "mod.src")
	path := writeManifest(t, dir, Manifest{
		Name:      "stub",
		Sources:   []string{"mod.src"},
		Checksums: []string{"0000000000000000000000000000000000000000000000000000000000000"},
	})

	v := vm.New()
	r, err := NewRuntime(v, stubCompile, 8)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	_, err = r.LoadModule(path, vm.NoInstance)
	if err == nil {
		t.Fatal("expected a checksum mismatch error")
	}
	rerr, ok := err.(*vm.RuntimeError)
	if !ok {
		t.Fatalf("expected *vm.RuntimeError, got %T", err)
	}
	if rerr.Kind != vm.ModuleErrorKind {
		t.Errorf("got kind %v, want module error", rerr.Kind)
	}
}

func TestLoadModuleMissingManifestFaults(t *testing.T) {
	v := vm.New()
	r, err := NewRuntime(v, stubCompile, 8)
	if err != nil {
		t.Fatalf("NewRuntime: %v", err)
	}
	_, err = r.LoadModule(filepath.Join(t.TempDir(), "missing.json"), vm.NoInstance)
	if err == nil {
		t.Fatal("expected a not-found error")
	}
}
