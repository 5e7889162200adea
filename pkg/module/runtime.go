package module

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/dmcguire/phasor/pkg/bytecode"
	"github.com/dmcguire/phasor/pkg/value"
	"github.com/dmcguire/phasor/pkg/vm"
)

// CompileFunc turns a manifest's resolved source paths into Bytecode.
// Lexing and parsing Phasor source is out of this module's scope (see
// pkg/ast's doc comment); the host embeds its own front end and hands
// Runtime a closure over it.
type CompileFunc func(sources []string) (*bytecode.Bytecode, error)

// Runtime is the module-level layer above a single vm.VM: it adds
// manifest parsing, checksum validation, a cache of already-loaded
// modules, import resolution, and the callTrans/callExtern cross-
// instance call brokers.
type Runtime struct {
	VM      *vm.VM
	Compile CompileFunc

	cache    *lru.Cache
	inFlight map[cacheKey]vm.InstanceHandle
	current  vm.InstanceHandle
}

// NewRuntime builds a Runtime around an existing VM. cacheSize bounds
// the number of distinct (manifest path, owner) entries retained before
// the least-recently-used one is evicted.
func NewRuntime(v *vm.VM, compile CompileFunc, cacheSize int) (*Runtime, error) {
	c, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("module: building cache: %w", err)
	}
	return &Runtime{
		VM:       v,
		Compile:  compile,
		cache:    c,
		inFlight: make(map[cacheKey]vm.InstanceHandle),
		current:  vm.NoInstance,
	}, nil
}

// CreateInstance loads bc as a standalone Instance with no manifest.
func (r *Runtime) CreateInstance(bc *bytecode.Bytecode) vm.InstanceHandle {
	return r.VM.Load(bc)
}

// Execute runs h to completion, tracking it as the Runtime's current
// Instance for the duration of the call and restoring the previous
// value on return, matching the execute(handle) lifecycle operation.
func (r *Runtime) Execute(h vm.InstanceHandle) error {
	prev := r.current
	r.current = h
	defer func() { r.current = prev }()
	return r.VM.Execute(h)
}

// Current returns the Instance most recently passed to Execute, or
// NoInstance outside of an Execute call.
func (r *Runtime) Current() vm.InstanceHandle { return r.current }

// DestroyInstance releases h's state.
func (r *Runtime) DestroyInstance(h vm.InstanceHandle) error {
	return r.VM.DestroyInstance(h)
}

// LoadModule resolves path to a manifest, loads (or reuses a cached
// load of) it as an Instance owned by owner, recursively resolves its
// imports, and — unless the manifest declares itself lazy — runs its
// entry function before returning the Instance handle.
func (r *Runtime) LoadModule(path string, owner vm.InstanceHandle) (vm.InstanceHandle, error) {
	canonical, err := filepath.Abs(path)
	if err != nil {
		return vm.NoInstance, moduleErr("cannot resolve path %q: %v", path, err)
	}
	info, err := os.Stat(canonical)
	if err != nil {
		return vm.NoInstance, moduleErr("manifest %q not found", canonical)
	}

	key := cacheKey{path: canonical, owner: owner}
	if cached, ok := r.cache.Get(key); ok {
		entry := cached.(cacheEntry)
		if entry.ModTime.Equal(info.ModTime()) {
			return entry.Handle, nil
		}
		r.cache.Remove(key)
		_ = r.VM.DestroyInstance(entry.Handle)
	}
	if h, ok := r.inFlight[key]; ok {
		// Circular import: hand back the in-progress Instance rather
		// than recursing forever.
		return h, nil
	}

	raw, err := os.ReadFile(canonical)
	if err != nil {
		return vm.NoInstance, moduleErr("cannot read manifest %q: %v", canonical, err)
	}
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return vm.NoInstance, moduleErr("malformed manifest %q: %v", canonical, err)
	}

	dir := filepath.Dir(canonical)
	sourcePaths := make([]string, len(m.Sources))
	for i, s := range m.Sources {
		sourcePaths[i] = filepath.Join(dir, s)
	}
	if err := validateChecksums(sourcePaths, m.Checksums); err != nil {
		return vm.NoInstance, err
	}

	bc, err := r.Compile(sourcePaths)
	if err != nil {
		return vm.NoInstance, moduleErr("compiling %q: %v", m.Name, err)
	}
	handle := r.VM.Load(bc)

	r.inFlight[key] = handle
	defer delete(r.inFlight, key)

	for _, imp := range m.Imports {
		impHandle, err := r.LoadModule(filepath.Join(dir, imp), handle)
		if err != nil {
			return vm.NoInstance, err
		}
		inst, err := r.VM.GetInstance(handle)
		if err != nil {
			return vm.NoInstance, err
		}
		inst.Imports = append(inst.Imports, impHandle)
	}

	r.cache.Add(key, cacheEntry{
		ManifestPath: canonical,
		ModTime:      info.ModTime(),
		Handle:       handle,
		Owner:        owner,
	})

	if !m.Lazy && m.Entry != "" {
		if _, err := r.VM.CallFunction(handle, owner, entryFunction(m.Entry), nil); err != nil {
			return vm.NoInstance, err
		}
	}

	return handle, nil
}

// CallTrans invokes funcName on target on caller's behalf. target must
// already appear in caller's resolved imports; calling into an Instance
// caller never imported is an access violation.
func (r *Runtime) CallTrans(caller, target vm.InstanceHandle, funcName string, args []value.Value) (value.Value, error) {
	callerInst, err := r.VM.GetInstance(caller)
	if err != nil {
		return value.Value{}, err
	}
	imported := false
	for _, h := range callerInst.Imports {
		if h == target {
			imported = true
			break
		}
	}
	if !imported {
		return value.Value{}, &vm.RuntimeError{
			Kind:    vm.CallErrorKind,
			Message: fmt.Sprintf("instance %d is not imported by instance %d", target, caller),
		}
	}

	targetInst, err := r.VM.GetInstance(target)
	if err != nil {
		return value.Value{}, err
	}
	if _, ok := targetInst.Code.FunctionEntries[funcName]; !ok {
		return value.Value{}, moduleErr("entry %q not found in target instance", funcName)
	}

	return r.VM.CallFunction(target, caller, funcName, args)
}

// CallExtern loads the module at path (registering it as one of
// caller's imports if it wasn't already) and invokes funcName on it.
func (r *Runtime) CallExtern(caller vm.InstanceHandle, path, funcName string, args []value.Value) (value.Value, error) {
	target, err := r.LoadModule(path, caller)
	if err != nil {
		return value.Value{}, err
	}

	callerInst, err := r.VM.GetInstance(caller)
	if err != nil {
		return value.Value{}, err
	}
	already := false
	for _, h := range callerInst.Imports {
		if h == target {
			already = true
			break
		}
	}
	if !already {
		callerInst.Imports = append(callerInst.Imports, target)
	}

	return r.CallTrans(caller, target, funcName, args)
}

func validateChecksums(sourcePaths, checksums []string) error {
	for i, p := range sourcePaths {
		if i >= len(checksums) || checksums[i] == "SKIP" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return moduleErr("cannot read source %q: %v", p, err)
		}
		sum := sha256.Sum256(data)
		got := hex.EncodeToString(sum[:])
		if !strings.EqualFold(got, checksums[i]) {
			return moduleErr("checksum mismatch for %q: want %s, got %s", p, checksums[i], got)
		}
	}
	return nil
}

func moduleErr(format string, args ...interface{}) *vm.RuntimeError {
	return &vm.RuntimeError{Kind: vm.ModuleErrorKind, Message: fmt.Sprintf(format, args...)}
}
