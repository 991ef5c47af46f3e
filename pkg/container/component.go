package container

import (
	"log/slog"

	"github.com/01fortes/goscope/pkg/param"
)

// ComponentContext carries everything a provider or service factory needs
// to build its component
type ComponentContext struct {
	// Name is the name the component is registered under
	Name string
	// Type is the type identifier the factory was looked up by
	Type string
	// Params holds the component's init parameters
	Params param.Parameters
	// Clients holds the client declarations of a service
	Clients []ClientConfig
	// Scope is the owning scope
	Scope *Scope
	// Logger is the container logger, scoped with the component's attributes
	Logger *slog.Logger
	// Metrics records container metrics
	Metrics MetricsCollector
}

// Origin returns the scope as an error origin, or nil without a scope
func (c ComponentContext) Origin() Logger {
	if c.Scope == nil {
		return nil
	}
	return c.Scope
}

// Log returns a usable logger even for a zero context
func (c ComponentContext) Log() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Recorder returns a usable metrics collector even for a zero context
func (c ComponentContext) Recorder() MetricsCollector {
	if c.Metrics == nil {
		return NoopMetrics()
	}
	return c.Metrics
}

// ComponentBase provides the Name method for embedding
type ComponentBase struct {
	name string
}

// NewComponentBase creates a new ComponentBase with the given name
func NewComponentBase(name string) ComponentBase {
	return ComponentBase{name: name}
}

// Name returns the component name
func (c ComponentBase) Name() string {
	return c.name
}
