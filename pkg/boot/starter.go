package boot

import (
	"io"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/provider"
	"github.com/01fortes/goscope/pkg/proxy"
	"github.com/01fortes/goscope/pkg/service/convert"
	"github.com/01fortes/goscope/pkg/service/logging"
)

// Registry holds the type tables starters register into
type Registry struct {
	// Types maps provider and service type ids to factories
	Types *container.Types
	// Connectors maps connector type ids to factories
	Connectors *proxy.Connectors
	// Catalog maps constructor ids for standard and singleton providers
	Catalog *provider.Catalog
	// Settings are the application settings
	Settings Settings
}

// NewRegistry creates empty type tables
func NewRegistry(settings Settings) *Registry {
	return &Registry{
		Types:      container.NewTypes(),
		Connectors: proxy.NewConnectors(),
		Catalog:    provider.NewCatalog(),
		Settings:   settings,
	}
}

// Starter registers types at application startup. This allows modular
// "starters" bundling a service type with its connectors.
type Starter interface {
	// Name returns the name of this starter
	Name() string

	// Start registers types into the registry
	Start(registry *Registry) error
}

// ConditionalStarter is a starter that can determine whether it should be applied
type ConditionalStarter interface {
	Starter

	// ShouldStart determines whether this starter should be applied
	ShouldStart(settings Settings) bool
}

// StarterFunc is a simple implementation of Starter using a function
type StarterFunc struct {
	name string
	fn   func(*Registry) error
}

// Name returns the name of the starter
func (s *StarterFunc) Name() string {
	return s.name
}

// Start calls the function to register types
func (s *StarterFunc) Start(registry *Registry) error {
	return s.fn(registry)
}

// NewStarter creates a new starter with the given name and function
func NewStarter(name string, fn func(*Registry) error) Starter {
	return &StarterFunc{
		name: name,
		fn:   fn,
	}
}

// CompositeStarter combines multiple starters into one
type CompositeStarter struct {
	name     string
	starters []Starter
}

// Name returns the name of the starter
func (s *CompositeStarter) Name() string {
	return s.name
}

// Start applies the starters in sequence, skipping conditional starters
// whose condition does not hold
func (s *CompositeStarter) Start(registry *Registry) error {
	for _, starter := range s.starters {
		if err := apply(starter, registry); err != nil {
			return err
		}
	}
	return nil
}

// NewCompositeStarter creates a new composite starter
func NewCompositeStarter(name string, starters ...Starter) Starter {
	return &CompositeStarter{
		name:     name,
		starters: starters,
	}
}

// ConditionalStarterFunc is a simple implementation of ConditionalStarter using functions
type ConditionalStarterFunc struct {
	StarterFunc
	condition func(Settings) bool
}

// ShouldStart determines whether this starter should be applied
func (s *ConditionalStarterFunc) ShouldStart(settings Settings) bool {
	return s.condition(settings)
}

// NewConditionalStarter creates a new conditional starter
func NewConditionalStarter(name string, condition func(Settings) bool, fn func(*Registry) error) ConditionalStarter {
	return &ConditionalStarterFunc{
		StarterFunc: StarterFunc{
			name: name,
			fn:   fn,
		},
		condition: condition,
	}
}

func apply(starter Starter, registry *Registry) error {
	if conditional, ok := starter.(ConditionalStarter); ok && !conditional.ShouldStart(registry.Settings) {
		return nil
	}
	if err := starter.Start(registry); err != nil {
		return container.Wrap(err, func(cause error) *container.ContainerError {
			return container.ConfigurationError(nil, cause, "starter '%s' failed", starter.Name())
		})
	}
	return nil
}

// ProvidersStarter registers the standard, singleton, file, properties and
// env provider types
func ProvidersStarter() Starter {
	return NewStarter("providers", func(r *Registry) error {
		return provider.Register(r.Types, r.Catalog)
	})
}

// LoggingStarter registers the log service with its console and zap
// connectors; console clients write to w
func LoggingStarter(w io.Writer) Starter {
	return NewStarter("logging", func(r *Registry) error {
		return logging.Register(r.Types, r.Connectors, w)
	})
}

// ConvertStarter registers the converter service and its connectors
func ConvertStarter() Starter {
	return NewStarter("convert", func(r *Registry) error {
		return convert.Register(r.Types, r.Connectors)
	})
}
