package driver

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Factory builds a Driver. It must not touch the hardware; only
// OpenPipeline and Devices perform I/O.
type Factory func() (Driver, error)

// Registration is one registered SDK binding.
type Registration struct {
	// ID is a process-unique handle assigned at registration time.
	ID   string
	Name string

	factory Factory
}

type registry struct {
	mu       sync.Mutex
	bindings map[string]Registration
}

var defaultRegistry = &registry{
	bindings: make(map[string]Registration),
}

// Register makes a driver available under name. Bindings register
// themselves from init; registering the same name twice panics.
func Register(name string, f Factory) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	if _, ok := defaultRegistry.bindings[name]; ok {
		panic(fmt.Sprintf("driver: duplicate registration of %q", name))
	}
	defaultRegistry.bindings[name] = Registration{
		ID:      uuid.NewString(),
		Name:    name,
		factory: f,
	}
}

// Get builds the driver registered under name.
func Get(name string) (Driver, error) {
	defaultRegistry.mu.Lock()
	r, ok := defaultRegistry.bindings[name]
	defaultRegistry.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("driver: %q is not registered (available: %v)", name, Names())
	}
	return r.factory()
}

// Names lists registered driver names, sorted.
func Names() []string {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	names := make([]string, 0, len(defaultRegistry.bindings))
	for name := range defaultRegistry.bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Query returns all registrations.
func Query() []Registration {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()

	results := make([]Registration, 0, len(defaultRegistry.bindings))
	for _, r := range defaultRegistry.bindings {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	return results
}
