package proxy

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/im7mortal/kmutex"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/param"
)

// Service is a named registry of clients with a generic dispatch surface.
// Concrete proxy services embed it and register their operations with
// Handle.
type Service struct {
	container.ComponentBase
	serviceType string
	connectors  *Connectors
	origin      container.Logger
	logger      *slog.Logger
	metrics     container.MetricsCollector

	// transitions of one client name are serialized, different names are not
	locks *kmutex.Kmutex

	mu       sync.RWMutex
	clients  map[string]*clientSlot
	order    []string
	handlers map[string]handler
	closed   bool
}

type clientSlot struct {
	name      string
	connector string
	params    param.Parameters
	lazy      bool
	factory   ConnectorFactory

	// written under Service.mu while holding the name lock
	client *Client
	closed bool
}

// NewService creates the proxy service described by ctx and registers its
// declared clients. Eager clients are built here without connecting.
func NewService(ctx container.ComponentContext, serviceType string, connectors *Connectors) (*Service, error) {
	s := &Service{
		ComponentBase: container.NewComponentBase(ctx.Name),
		serviceType:   serviceType,
		connectors:    connectors,
		origin:        ctx.Origin(),
		logger:        ctx.Log(),
		metrics:       ctx.Recorder(),
		locks:         kmutex.New(),
		clients:       make(map[string]*clientSlot),
		handlers:      make(map[string]handler),
	}
	s.registerBuiltins()

	for _, cfg := range ctx.Clients {
		if _, err := s.declare(cfg); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Type returns the service type id connectors are checked against
func (s *Service) Type() string { return s.serviceType }

// Origin returns the error origin of the service
func (s *Service) Origin() container.Logger { return s.origin }

// Logger returns the service logger
func (s *Service) Logger() *slog.Logger { return s.logger }

// CreateClient registers a client without connecting it
func (s *Service) CreateClient(name, connectorType string, params param.Parameters) (*Client, error) {
	return s.declare(container.ClientConfig{Name: name, Connector: connectorType, InitParameters: params})
}

// DeclareClient registers a client declaration. A lazy client is built on
// its first connect.
func (s *Service) DeclareClient(cfg container.ClientConfig) error {
	_, err := s.declare(cfg)
	return err
}

func (s *Service) declare(cfg container.ClientConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, container.ConfigurationError(s.origin, nil, "service '%s': client name cannot be empty", s.Name())
	}
	factory, ok := s.connectors.factory(cfg.Connector)
	if !ok {
		return nil, container.ConfigurationError(s.origin, nil, "service '%s': unknown connector type '%s'", s.Name(), cfg.Connector)
	}

	sl := &clientSlot{
		name:      cfg.Name,
		connector: cfg.Connector,
		params:    cfg.InitParameters.Clone(),
		lazy:      cfg.Lazy,
		factory:   factory,
	}

	s.locks.Lock(cfg.Name)
	defer s.locks.Unlock(cfg.Name)

	s.mu.Lock()
	closed := s.closed
	_, exists := s.clients[cfg.Name]
	if !closed && !exists {
		s.clients[cfg.Name] = sl
		s.order = append(s.order, cfg.Name)
	}
	s.mu.Unlock()

	switch {
	case closed:
		return nil, container.IllegalStateError(s.origin, "service '%s' is closed", s.Name())
	case exists:
		return nil, container.ConfigurationError(s.origin, nil, "service '%s': client '%s' already registered", s.Name(), cfg.Name)
	}

	s.logger.Debug("Registering client", "client", cfg.Name, "connector", cfg.Connector, "lazy", cfg.Lazy, "params", sl.params)
	if cfg.Lazy {
		return nil, nil
	}

	client, err := s.build(sl)
	if err != nil {
		s.mu.Lock()
		delete(s.clients, cfg.Name)
		s.order = removeName(s.order, cfg.Name)
		s.mu.Unlock()
		return nil, err
	}
	return client, nil
}

// build creates the connector and the client; the caller holds the name lock
func (s *Service) build(sl *clientSlot) (*Client, error) {
	logger := s.logger.With("client", sl.name, "connector", sl.connector)
	connector, err := s.connector(sl, logger)
	if err != nil {
		return nil, err
	}

	if st := connector.ServiceType(); st != "" && st != s.serviceType {
		return nil, container.ConfigurationError(s.origin, nil,
			"connector '%s' serves '%s' services, not '%s'", sl.connector, st, s.serviceType)
	}

	client, err := NewClient(sl.name, connector, ClientOptions{
		Service: s.Name(),
		Origin:  s.origin,
		Logger:  logger,
		Metrics: s.metrics,
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	sl.client = client
	s.mu.Unlock()
	return client, nil
}

func (s *Service) connector(sl *clientSlot, logger *slog.Logger) (connector Connector, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = container.ConnectorError(s.origin, fmt.Errorf("panic: %v", r), "connector '%s' failed for client '%s'", sl.connector, sl.name)
		}
	}()

	connector, err = sl.factory(ConnectorContext{
		Client:  sl.name,
		Service: s.Name(),
		Params:  sl.params.Clone(),
		Logger:  logger,
	})
	if err != nil {
		return nil, container.Wrap(err, func(cause error) *container.ContainerError {
			return container.ConfigurationError(s.origin, cause, "connector '%s' rejected client '%s'", sl.connector, sl.name)
		})
	}
	if connector == nil {
		return nil, container.ConfigurationError(s.origin, nil, "connector '%s' returned nothing for client '%s'", sl.connector, sl.name)
	}
	return connector, nil
}

func (s *Service) slot(name string) (*clientSlot, error) {
	s.mu.RLock()
	sl, ok := s.clients[name]
	s.mu.RUnlock()

	if !ok {
		return nil, container.NotFoundError(s.origin, "client", name)
	}
	return sl, nil
}

// built returns the slot's client or nil
func (s *Service) built(sl *clientSlot) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sl.client, sl.closed
}

// Client returns the registered client. A lazy client that was never
// connected is built by this call.
func (s *Service) Client(name string) (*Client, error) {
	sl, err := s.slot(name)
	if err != nil {
		return nil, err
	}

	s.locks.Lock(name)
	defer s.locks.Unlock(name)
	return s.materialize(sl)
}

func (s *Service) materialize(sl *clientSlot) (*Client, error) {
	client, closed := s.built(sl)
	if client != nil {
		return client, nil
	}
	if closed {
		return nil, container.IllegalStateError(s.origin, "client '%s' is closed", sl.name)
	}
	return s.build(sl)
}

// Connect connects the named client
func (s *Service) Connect(name string) error {
	sl, err := s.slot(name)
	if err != nil {
		return err
	}

	s.locks.Lock(name)
	defer s.locks.Unlock(name)

	client, err := s.materialize(sl)
	if err != nil {
		return err
	}
	return client.Connect()
}

// Disconnect disconnects the named client
func (s *Service) Disconnect(name string) error {
	sl, err := s.slot(name)
	if err != nil {
		return err
	}

	s.locks.Lock(name)
	defer s.locks.Unlock(name)

	client, closed := s.built(sl)
	switch {
	case client != nil:
		return client.Disconnect()
	case closed:
		return container.IllegalStateError(s.origin, "client '%s' is closed", name)
	}
	return nil
}

// CloseClient closes the named client. A closed client cannot reconnect.
func (s *Service) CloseClient(name string) error {
	sl, err := s.slot(name)
	if err != nil {
		return err
	}

	s.locks.Lock(name)
	defer s.locks.Unlock(name)
	return s.closeSlot(sl)
}

func (s *Service) closeSlot(sl *clientSlot) error {
	s.mu.Lock()
	client := sl.client
	sl.closed = true
	s.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}

// State returns the state of the named client
func (s *Service) State(name string) (State, error) {
	sl, err := s.slot(name)
	if err != nil {
		return Disconnected, err
	}

	client, closed := s.built(sl)
	switch {
	case client != nil:
		return client.State(), nil
	case closed:
		return Closed, nil
	}
	return Disconnected, nil
}

// ClientNames returns the client names in declaration order
func (s *Service) ClientNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names
}

// Connected returns the connected clients in declaration order
func (s *Service) Connected() []*Client {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.order))
	for _, name := range s.order {
		if c := s.clients[name].client; c != nil {
			clients = append(clients, c)
		}
	}
	s.mu.RUnlock()

	result := clients[:0]
	for _, c := range clients {
		if c.State() == Connected {
			result = append(result, c)
		}
	}
	return result
}

// Close closes every client in reverse declaration order and rejects new
// clients. Errors are joined.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	slots := make([]*clientSlot, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		slots = append(slots, s.clients[s.order[i]])
	}
	s.mu.Unlock()

	s.logger.Info("Closing service", "clients", len(slots))

	var errs []error
	for _, sl := range slots {
		s.locks.Lock(sl.name)
		err := s.closeSlot(sl)
		s.locks.Unlock(sl.name)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func keys[V any](m map[string]V) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i:i], names[i+1:]...)
		}
	}
	return names
}

var (
	_ container.Service = (*Service)(nil)
	_ container.Closer  = (*Service)(nil)
)
