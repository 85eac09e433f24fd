package rtx

import (
	"fmt"
	"sort"
	"sync"
)

// Creates a new backend context.
type Factory func() (Context, error)

var (
	registryMutex sync.RWMutex
	backends      = make(map[string]Factory)
	modules       = make(map[string]map[string]Program)
)

// Register a backend factory under the given name. Registering the same
// name twice replaces the previous factory.
func Register(name string, factory Factory) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	backends[name] = factory
}

// Backends returns the sorted list of registered backend names.
func Backends() []string {
	registryMutex.RLock()
	defer registryMutex.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open a context using the named backend.
func Open(name string) (Context, error) {
	registryMutex.RLock()
	factory, exists := backends[name]
	registryMutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
	return factory()
}

// Register the entry points of a device program module. Backends that
// execute device code on the host resolve module blobs against this
// registry.
func RegisterModule(name string, entries map[string]Program) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	cpy := make(map[string]Program, len(entries))
	for entry, prog := range entries {
		cpy[entry] = prog
	}
	modules[name] = cpy
}

// LookupModule returns the entry points registered for a module.
func LookupModule(name string) (map[string]Program, bool) {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	entries, exists := modules[name]
	return entries, exists
}
