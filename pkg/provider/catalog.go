package provider

import (
	"sort"
	"sync"

	"github.com/01fortes/goscope/pkg/container"
)

// Constructor builds a new application object
type Constructor func() (any, error)

// Catalog maps constructor ids to constructors. Standard and singleton
// providers map object names to catalog ids through their init parameters.
type Catalog struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under id
func (c *Catalog) Register(id string, ctor Constructor) error {
	if id == "" || ctor == nil {
		return container.ConfigurationError(nil, nil, "catalog entry requires an id and a constructor")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.constructors[id]; exists {
		return container.ConfigurationError(nil, nil, "constructor '%s' already registered", id)
	}
	c.constructors[id] = ctor
	return nil
}

// Lookup returns the constructor registered under id
func (c *Catalog) Lookup(id string) (Constructor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ctor, ok := c.constructors[id]
	return ctor, ok
}

// IDs returns the registered ids, sorted
func (c *Catalog) IDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.constructors))
	for id := range c.constructors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Register adds every provider type of this package to types
func Register(types *container.Types, catalog *Catalog) error {
	factories := []struct {
		id      string
		factory container.ProviderFactory
	}{
		{TypeStandard, StandardFactory(catalog)},
		{TypeSingleton, SingletonFactory(catalog)},
		{TypeFile, NewFile},
		{TypeProperties, NewProperties},
		{TypeEnv, NewEnv},
	}
	for _, f := range factories {
		if err := types.RegisterProvider(f.id, f.factory); err != nil {
			return err
		}
	}
	return nil
}
