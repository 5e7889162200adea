package module

import (
	"time"

	"github.com/dmcguire/phasor/pkg/vm"
)

// cacheKey identifies a ModuleCache entry: two importers of the same
// manifest path get distinct entries (and distinct Instances) unless
// they share an owner.
type cacheKey struct {
	path  string
	owner vm.InstanceHandle
}

// cacheEntry is a single ModuleCache row: the manifest path, the
// last-modified timestamp observed at load time, the Instance it
// produced, and the owner it was loaded on behalf of. A manifest whose
// mtime has advanced since the entry was recorded is stale and must be
// evicted and reloaded.
type cacheEntry struct {
	ManifestPath string
	ModTime      time.Time
	Handle       vm.InstanceHandle
	Owner        vm.InstanceHandle
}
