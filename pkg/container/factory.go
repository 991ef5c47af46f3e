package container

import (
	"fmt"
	"sort"
	"sync"
)

// ProviderFactory builds a provider for a type identifier
type ProviderFactory func(ctx ComponentContext) (Provider, error)

// ServiceFactory builds a service for a type identifier
type ServiceFactory func(ctx ComponentContext) (Service, error)

// Types maps type identifiers from declarative configuration to factory
// functions. One table is shared by every scope of a domain.
type Types struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
	services  map[string]ServiceFactory
}

// NewTypes creates an empty type table
func NewTypes() *Types {
	return &Types{
		providers: make(map[string]ProviderFactory),
		services:  make(map[string]ServiceFactory),
	}
}

// RegisterProvider adds a provider factory under id
func (t *Types) RegisterProvider(id string, factory ProviderFactory) error {
	if id == "" || factory == nil {
		return ConfigurationError(nil, nil, "provider type requires an id and a factory")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.providers[id]; exists {
		return ConfigurationError(nil, nil, "provider type '%s' already registered", id)
	}
	t.providers[id] = factory
	return nil
}

// RegisterService adds a service factory under id
func (t *Types) RegisterService(id string, factory ServiceFactory) error {
	if id == "" || factory == nil {
		return ConfigurationError(nil, nil, "service type requires an id and a factory")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.services[id]; exists {
		return ConfigurationError(nil, nil, "service type '%s' already registered", id)
	}
	t.services[id] = factory
	return nil
}

// ProviderTypes returns the registered provider type ids, sorted
func (t *Types) ProviderTypes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.providers)
}

// ServiceTypes returns the registered service type ids, sorted
func (t *Types) ServiceTypes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return sortedKeys(t.services)
}

// providerFactory resolves id, reporting a type registered only as a
// service as an incompatible capability
func (t *Types) providerFactory(origin Logger, id string) (ProviderFactory, error) {
	t.mu.RLock()
	factory, ok := t.providers[id]
	_, isService := t.services[id]
	t.mu.RUnlock()

	switch {
	case ok:
		return factory, nil
	case isService:
		return nil, ConfigurationError(origin, nil, "type '%s' does not provide the object-factory capability", id)
	default:
		return nil, ConfigurationError(origin, nil, "unknown provider type '%s'", id)
	}
}

// serviceFactory resolves id, reporting a type registered only as a
// provider as an incompatible capability
func (t *Types) serviceFactory(origin Logger, id string) (ServiceFactory, error) {
	t.mu.RLock()
	factory, ok := t.services[id]
	_, isProvider := t.providers[id]
	t.mu.RUnlock()

	switch {
	case ok:
		return factory, nil
	case isProvider:
		return nil, ConfigurationError(origin, nil, "type '%s' does not provide the operation-dispatch capability", id)
	default:
		return nil, ConfigurationError(origin, nil, "unknown service type '%s'", id)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// callFactory runs a factory, converting panics into errors
func callFactory[T any](kind, name string, build func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while creating %s '%s': %v", kind, name, r)
		}
	}()
	return build()
}
