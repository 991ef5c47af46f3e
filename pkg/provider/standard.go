package provider

import (
	"fmt"
	"iter"
	"slices"
	"sort"
	"sync"

	"github.com/01fortes/goscope/pkg/container"
)

// Provider type ids
const (
	TypeStandard   = "standard"
	TypeSingleton  = "singleton"
	TypeFile       = "file"
	TypeProperties = "properties"
	TypeEnv        = "env"
)

// objectTable resolves object names to catalog constructors. Every init
// parameter is an object name whose value is a constructor id.
type objectTable struct {
	container.ComponentBase
	origin  container.Logger
	objects map[string]Constructor
	names   []string
}

func newObjectTable(ctx container.ComponentContext, catalog *Catalog) (objectTable, error) {
	t := objectTable{
		ComponentBase: container.NewComponentBase(ctx.Name),
		origin:        ctx.Origin(),
		objects:       make(map[string]Constructor),
	}
	if catalog == nil {
		return t, container.ConfigurationError(t.origin, nil, "provider '%s' requires a catalog", ctx.Name)
	}

	values := ctx.Params.Map()
	for name, value := range values {
		id, ok := value.(string)
		if !ok {
			return t, container.ConfigurationError(t.origin, nil,
				"provider '%s': object '%s' must name a constructor, got %T", ctx.Name, name, value)
		}
		ctor, ok := catalog.Lookup(id)
		if !ok {
			return t, container.ConfigurationError(t.origin, nil,
				"provider '%s': unknown constructor '%s' for object '%s'", ctx.Name, id, name)
		}
		t.objects[name] = ctor
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)
	return t, nil
}

// ObjectNames yields the declared object names in sorted order
func (t *objectTable) ObjectNames() iter.Seq[string] {
	return slices.Values(t.names)
}

func (t *objectTable) construct(name string, ctor Constructor) (obj any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = container.ProviderError(t.origin, fmt.Errorf("panic: %v", r), "provider '%s': constructor for '%s' failed", t.Name(), name)
		}
	}()

	obj, err = ctor()
	if err != nil {
		return nil, container.Wrap(err, func(cause error) *container.ContainerError {
			return container.ProviderError(t.origin, cause, "provider '%s': constructor for '%s' failed", t.Name(), name)
		})
	}
	return obj, nil
}

// Standard returns a new instance on every lookup
type Standard struct {
	objectTable
}

// StandardFactory returns the factory of the standard provider type
func StandardFactory(catalog *Catalog) container.ProviderFactory {
	return func(ctx container.ComponentContext) (container.Provider, error) {
		table, err := newObjectTable(ctx, catalog)
		if err != nil {
			return nil, err
		}
		return &Standard{objectTable: table}, nil
	}
}

// GetObject constructs a new object, or returns nil for an unknown name
func (p *Standard) GetObject(name string) (any, error) {
	ctor, ok := p.objects[name]
	if !ok {
		return nil, nil
	}
	return p.construct(name, ctor)
}

// Singleton returns the instance built by the first lookup of each name
// for the provider's lifetime, also under concurrent first lookups. A
// failed construction is not cached.
type Singleton struct {
	objectTable

	mu        sync.Mutex
	instances map[string]*instance
}

type instance struct {
	mu    sync.Mutex
	value any
	done  bool
}

// SingletonFactory returns the factory of the singleton provider type
func SingletonFactory(catalog *Catalog) container.ProviderFactory {
	return func(ctx container.ComponentContext) (container.Provider, error) {
		table, err := newObjectTable(ctx, catalog)
		if err != nil {
			return nil, err
		}
		return &Singleton{
			objectTable: table,
			instances:   make(map[string]*instance),
		}, nil
	}
}

// GetObject returns the shared instance, or nil for an unknown name
func (p *Singleton) GetObject(name string) (any, error) {
	ctor, ok := p.objects[name]
	if !ok {
		return nil, nil
	}

	p.mu.Lock()
	inst, ok := p.instances[name]
	if !ok {
		inst = &instance{}
		p.instances[name] = inst
	}
	p.mu.Unlock()

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.done {
		return inst.value, nil
	}
	value, err := p.construct(name, ctor)
	if err != nil {
		return nil, err
	}
	inst.value = value
	inst.done = true
	return value, nil
}

var (
	_ container.Provider = (*Standard)(nil)
	_ container.Provider = (*Singleton)(nil)
)
