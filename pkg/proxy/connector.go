package proxy

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/param"
)

// ClientFactory is the connector contract. A connector builds an
// intermediate connection source and, from it, the live connection handed
// to a client.
type ClientFactory interface {
	// ClientType names the kind of client the connector produces
	ClientType() string
	// ServiceType names the service type the connector is compatible with
	ServiceType() string
	// CreateConnectionSource builds the credentials or configuration a
	// connection is opened from
	CreateConnectionSource() (any, error)
	// ClientConnection opens a connection from source
	ClientConnection(source any) (any, error)
	// CacheConnectionSource reports whether one source is reused for every
	// connect
	CacheConnectionSource() bool
}

// Connector is a ClientFactory registered under a type id
type Connector interface {
	ClientFactory
}

// ConnectorContext carries what a connector factory needs
type ConnectorContext struct {
	// Client is the name of the client the connector serves
	Client string
	// Service is the name of the owning service
	Service string
	// Params holds the client's init parameters
	Params param.Parameters
	// Logger is scoped with the service and client attributes
	Logger *slog.Logger
}

// ConnectorFactory builds a connector for a type id
type ConnectorFactory func(ctx ConnectorContext) (Connector, error)

// Connectors maps connector type ids to factories
type Connectors struct {
	mu        sync.RWMutex
	factories map[string]ConnectorFactory
}

// NewConnectors creates an empty connector table
func NewConnectors() *Connectors {
	return &Connectors{factories: make(map[string]ConnectorFactory)}
}

// Register adds a connector factory under id
func (c *Connectors) Register(id string, factory ConnectorFactory) error {
	if id == "" || factory == nil {
		return container.ConfigurationError(nil, nil, "connector type requires an id and a factory")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.factories[id]; exists {
		return container.ConfigurationError(nil, nil, "connector type '%s' already registered", id)
	}
	c.factories[id] = factory
	return nil
}

// Types returns the registered connector type ids, sorted
func (c *Connectors) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := make([]string, 0, len(c.factories))
	for id := range c.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (c *Connectors) factory(id string) (ConnectorFactory, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, ok := c.factories[id]
	return f, ok
}

// ConnectorBase implements the declarative part of ClientFactory for
// embedding
type ConnectorBase struct {
	Client  string
	Service string
	Cache   bool
}

// ClientType returns the client type
func (b ConnectorBase) ClientType() string { return b.Client }

// ServiceType returns the compatible service type
func (b ConnectorBase) ServiceType() string { return b.Service }

// CacheConnectionSource returns the caching policy
func (b ConnectorBase) CacheConnectionSource() bool { return b.Cache }
