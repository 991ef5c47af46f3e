package provider

import (
	"iter"
	"log/slog"
	"sort"
	"sync"

	"github.com/01fortes/goscope/pkg/container"
)

// document is the external-source provider core: a flat name to value map
// loaded from a backing resource, optionally cached
type document struct {
	container.ComponentBase
	origin container.Logger
	logger *slog.Logger
	source string
	load   func() (map[string]any, error)
	cache  bool

	mu     sync.RWMutex
	values map[string]any
}

func newDocument(ctx container.ComponentContext, source string, cache bool, load func() (map[string]any, error)) (*document, error) {
	d := &document{
		ComponentBase: container.NewComponentBase(ctx.Name),
		origin:        ctx.Origin(),
		logger:        ctx.Log(),
		source:        source,
		load:          load,
		cache:         cache,
	}

	// the resource is read once up front so a malformed one fails creation
	values, err := d.read()
	if err != nil {
		return nil, err
	}
	if cache {
		d.values = values
	}
	d.logger.Debug("Document loaded", "source", source, "objects", len(values), "cache", cache)
	return d, nil
}

func (d *document) read() (map[string]any, error) {
	values, err := d.load()
	if err != nil {
		return nil, container.Wrap(err, func(cause error) *container.ContainerError {
			return container.ProviderError(d.origin, cause, "provider '%s': cannot load '%s'", d.Name(), d.source)
		})
	}
	return values, nil
}

func (d *document) snapshot() (map[string]any, error) {
	if !d.cache {
		return d.read()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.values, nil
}

// replace swaps the cached values
func (d *document) replace(values map[string]any) {
	d.mu.Lock()
	d.values = values
	d.mu.Unlock()
}

// GetObject returns the value stored under name, or nil
func (d *document) GetObject(name string) (any, error) {
	values, err := d.snapshot()
	if err != nil {
		return nil, err
	}
	return values[name], nil
}

// ObjectNames yields the names in sorted order. Without caching every
// iteration reads the resource again; read failures end the sequence.
func (d *document) ObjectNames() iter.Seq[string] {
	return func(yield func(string) bool) {
		values, err := d.snapshot()
		if err != nil {
			return
		}
		names := make([]string, 0, len(values))
		for name := range values {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if !yield(name) {
				return
			}
		}
	}
}
