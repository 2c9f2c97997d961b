package service

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/MahdiBaghbani/tanzanite-go/internal/platform/logutil"
)

// CoreServices lists service names that are always constructed regardless of
// whether [http.services.<name>] appears in TOML.
var CoreServices = []string{"api"}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]NewService)
)

// Register registers a new HTTP service constructor by name.
// This is typically called from init() in service packages.
// Duplicate registration returns an error (fail-fast, no panic).
func Register(name string, newFunc NewService) error {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("service %q already registered", name)
	}
	registry[name] = newFunc
	return nil
}

// MustRegister is like Register but panics on error.
// Use this in init() where returning an error is not possible.
func MustRegister(name string, newFunc NewService) {
	if err := Register(name, newFunc); err != nil {
		panic(err)
	}
}

// Get returns the constructor for a registered service.
// Returns nil if the service is not registered.
func Get(name string) NewService {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// RegisteredServices returns the names of all registered services.
func RegisteredServices() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

// Build constructs the core services and every other registered service
// that has a [http.services.<name>] table. conf maps service names to
// their tables.
func Build(conf map[string]map[string]any, log *slog.Logger) (map[string]Service, error) {
	log = logutil.NoopIfNil(log)
	names := make(map[string]bool, len(CoreServices)+len(conf))
	for _, name := range CoreServices {
		names[name] = true
	}
	for name := range conf {
		names[name] = true
	}

	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	services := make(map[string]Service, len(ordered))
	for _, name := range ordered {
		newFunc := Get(name)
		if newFunc == nil {
			return nil, fmt.Errorf("service %q is not registered", name)
		}
		svc, err := newFunc(conf[name], log.With("service", name))
		if err != nil {
			return nil, fmt.Errorf("failed to create service %q: %w", name, err)
		}
		services[name] = svc
	}
	return services, nil
}

// resetRegistry is for testing only. Clears the registry.
func resetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]NewService)
}
