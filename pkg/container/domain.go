package container

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/01fortes/goscope/pkg/param"
)

// Domain is the registry of sibling scopes sharing a namespace. Scope
// names are unique within a domain.
type Domain struct {
	name   string
	types  *Types
	config *Config
	logger *slog.Logger

	mu     sync.RWMutex
	scopes map[string]*Scope
	closed bool

	group singleflight.Group
}

// NewDomain creates an empty domain. Types may be shared between domains.
func NewDomain(name string, types *Types, config *Config) *Domain {
	cfg := config.withDefaults()
	if types == nil {
		types = NewTypes()
	}
	cfg.Logger = cfg.Logger.With("domain", name)

	return &Domain{
		name:   name,
		types:  types,
		config: cfg,
		logger: cfg.Logger,
		scopes: make(map[string]*Scope),
	}
}

// Name returns the domain name
func (d *Domain) Name() string { return d.name }

// Types returns the type table shared by the domain's scopes
func (d *Domain) Types() *Types { return d.types }

// Lookup returns the live scope registered under name
func (d *Domain) Lookup(name string) (*Scope, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, ok := d.scopes[name]
	return s, ok
}

// Scopes returns the live scopes sorted by name
func (d *Domain) Scopes() []*Scope {
	d.mu.RLock()
	defer d.mu.RUnlock()

	result := make([]*Scope, 0, len(d.scopes))
	for _, s := range d.scopes {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

// NewScope returns the scope registered under name, creating it when
// absent. Concurrent calls for one name observe a single instance. An
// existing scope is returned only if its parent matches.
func (d *Domain) NewScope(name string, parent *Scope, params param.Parameters) (*Scope, error) {
	return d.getOrCreate(name, parent, params, nil)
}

// CreateScope builds a scope from a declarative configuration, or returns
// the live scope of that name. Declarations are registered only when the
// scope is created by this call, before any other caller can observe it;
// the returned scope is not started.
func (d *Domain) CreateScope(cfg ScopeConfig) (*Scope, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var parent *Scope
	if cfg.Parent != "" {
		p, ok := d.Lookup(cfg.Parent)
		if !ok {
			return nil, ConfigurationError(nil, nil, "parent scope '%s' of scope '%s' not registered in domain '%s'", cfg.Parent, cfg.Name, d.name)
		}
		parent = p
	}

	return d.getOrCreate(cfg.Name, parent, cfg.InitParameters, func(s *Scope) error {
		return s.declare(cfg)
	})
}

// getOrCreate returns the live scope or creates one. A new scope runs
// setup before it is published; callers sharing the creation observe the
// setup error.
func (d *Domain) getOrCreate(name string, parent *Scope, params param.Parameters, setup func(*Scope) error) (*Scope, error) {
	if name == "" {
		return nil, ConfigurationError(nil, nil, "scope name cannot be empty")
	}
	if s, ok := d.Lookup(name); ok {
		return s, d.checkReuse(s, parent)
	}

	v, err, _ := d.group.Do(name, func() (any, error) {
		d.mu.RLock()
		closed := d.closed
		existing, ok := d.scopes[name]
		d.mu.RUnlock()

		switch {
		case closed:
			return nil, IllegalStateError(nil, "domain '%s' is closed", d.name)
		case ok:
			return existing, nil
		}

		if err := d.checkParent(name, parent); err != nil {
			return nil, err
		}

		s := newScope(d, name, parent, params)
		if setup != nil {
			if err := setup(s); err != nil {
				if closeErr := s.Close(); closeErr != nil {
					d.logger.Error("Error closing partially declared scope", "scope", name, "error", closeErr)
				}
				return nil, err
			}
		}

		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			s.Close()
			return nil, IllegalStateError(nil, "domain '%s' is closed", d.name)
		}
		d.scopes[name] = s
		d.mu.Unlock()
		if parent != nil {
			parent.addChild(s)
		}

		d.logger.Info("Scope created", "scope", name, "parent", parentName(parent))
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	s := v.(*Scope)
	return s, d.checkReuse(s, parent)
}

// checkParent rejects parents from other domains, closed parents and
// chains that would contain name twice
func (d *Domain) checkParent(name string, parent *Scope) error {
	if parent == nil {
		return nil
	}
	if parent.domain != d {
		return ConfigurationError(nil, nil, "parent scope '%s' belongs to another domain", parent.name)
	}
	if parent.State() == StateClosed {
		return IllegalStateError(nil, "parent scope '%s' is closed", parent.name)
	}
	for p := parent; p != nil; p = p.parent {
		if p.name == name {
			return ConfigurationError(nil, nil, "scope '%s' cannot be its own ancestor", name)
		}
	}
	return nil
}

func (d *Domain) checkReuse(s *Scope, parent *Scope) error {
	if s.parent != parent {
		return ConfigurationError(s, nil, "scope '%s' already registered with parent '%s'", s.name, parentName(s.parent))
	}
	return nil
}

func (d *Domain) remove(s *Scope) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if current, ok := d.scopes[s.name]; ok && current == s {
		delete(d.scopes, s.name)
	}
}

// Close closes every root scope, which cascades to their children, and
// rejects further scope creation
func (d *Domain) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.logger.Info("Closing domain")

	var errs []error
	for _, s := range d.Scopes() {
		if s.parent != nil {
			continue
		}
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	// children whose parents were closed concurrently
	for _, s := range d.Scopes() {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// declare registers the configured declarations on a fresh scope
func (s *Scope) declare(cfg ScopeConfig) error {
	for _, p := range cfg.Providers {
		if err := s.DeclareProvider(p); err != nil {
			return err
		}
	}
	for _, svc := range cfg.Services {
		if err := s.DeclareService(svc); err != nil {
			return err
		}
	}
	for _, ref := range cfg.ObjectReferences {
		if err := s.CreateObjectReference(ref.Name, ref.Provider, ref.Object); err != nil {
			return err
		}
	}
	return nil
}

func parentName(parent *Scope) string {
	if parent == nil {
		return ""
	}
	return parent.name
}
