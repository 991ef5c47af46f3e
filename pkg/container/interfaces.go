package container

import "iter"

// Provider is a named object factory. A Provider never fails for an
// unknown object name: GetObject returns (nil, nil). Errors are reserved
// for configuration or backing-resource failures.
type Provider interface {
	// Name returns the name the provider is registered under
	Name() string
	// GetObject returns the object with the given logical name
	GetObject(name string) (any, error)
	// ObjectNames returns a finite sequence of known object names. Every
	// call starts a fresh iteration.
	ObjectNames() iter.Seq[string]
}

// Dispatchable is the generic operation surface of a Service
type Dispatchable interface {
	// Execute runs the named operation with the given parameters
	Execute(operation string, params map[string]any) (any, error)
}

// Service is a named component driven through Execute
type Service interface {
	Dispatchable
	// Name returns the name the service is registered under
	Name() string
}

// Closer is implemented by providers and services holding resources that
// must be released when their scope closes
type Closer interface {
	Close() error
}
