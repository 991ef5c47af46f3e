package container

import (
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/01fortes/goscope/pkg/param"
)

// State is the lifecycle state of a scope
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateClosed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Scope is a named container of providers, services and object references.
// It has an optional parent fixed at creation and belongs to one Domain.
type Scope struct {
	id     uuid.UUID
	name   string
	parent *Scope
	domain *Domain
	types  *Types
	config *Config
	logger *slog.Logger

	lifecycle sync.Mutex
	state     atomic.Int32

	mu       sync.RWMutex
	params   param.Parameters
	refs     map[string]ObjectReferenceConfig
	children []*Scope

	providers *registry[Provider]
	services  *registry[Service]
}

func newScope(domain *Domain, name string, parent *Scope, params param.Parameters) *Scope {
	cfg := domain.config
	id := uuid.New()
	logger := cfg.Logger.With("scope", name, "scope_id", id.String())

	return &Scope{
		id:        id,
		name:      name,
		parent:    parent,
		domain:    domain,
		types:     domain.types,
		config:    cfg,
		logger:    logger,
		params:    params.Clone(),
		refs:      make(map[string]ObjectReferenceConfig),
		providers: newRegistry[Provider]("provider", name, cfg.Metrics, logger),
		services:  newRegistry[Service]("service", name, cfg.Metrics, logger),
	}
}

// Name returns the scope name, unique within its domain
func (s *Scope) Name() string { return s.name }

// ID returns the instance id assigned at creation
func (s *Scope) ID() uuid.UUID { return s.id }

// Parent returns the parent scope or nil
func (s *Scope) Parent() *Scope { return s.parent }

// Domain returns the domain the scope is registered in
func (s *Scope) Domain() *Domain { return s.domain }

// State returns the current lifecycle state
func (s *Scope) State() State { return State(s.state.Load()) }

// Children returns the scopes created with this scope as parent
func (s *Scope) Children() []*Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Scope, len(s.children))
	copy(result, s.children)
	return result
}

func (s *Scope) addChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.children = append(s.children, child)
}

func (s *Scope) removeChild(child *Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i:i], s.children[i+1:]...)
			return
		}
	}
}

// InitParameter returns the local init parameter value. Parents are not
// consulted.
func (s *Scope) InitParameter(name string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Value(name)
}

// InitParameters returns a copy of the local init parameters
func (s *Scope) InitParameters() param.Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params.Clone()
}

// SetInitParameter sets a parameter before the scope starts
func (s *Scope) SetInitParameter(name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State() != StateCreated {
		return IllegalStateError(s, "scope '%s' is %s: init parameters are immutable", s.name, s.State())
	}
	s.params = s.params.With(name, value)
	return nil
}

// Log forwards the message to the log service visible from this scope.
// Without one the call does nothing.
func (s *Scope) Log(message string, level Level) {
	if s.State() == StateClosed {
		return
	}

	for scope := range s.lookupChain() {
		if svc, ok := scope.services.instance(s.config.LogService); ok {
			if logger, ok := svc.(Logger); ok {
				logger.Log(message, level)
			}
			return
		}
	}
}

// ── Providers ────────────────────────────────────────────────────────────────

// CreateProvider instantiates a provider of the given type and registers it
func (s *Scope) CreateProvider(name, typeID string, params param.Parameters) (Provider, error) {
	sl, err := s.declareProvider(ProviderConfig{Name: name, Type: typeID, InitParameters: params})
	if err != nil {
		return nil, err
	}

	provider, err := s.providers.materialize(sl)
	if err != nil {
		s.providers.remove(name)
		return nil, err
	}
	return provider, nil
}

// DeclareProvider registers a provider declaration. Eager declarations are
// instantiated when the scope starts (or now, on a running scope); lazy
// ones on first lookup.
func (s *Scope) DeclareProvider(cfg ProviderConfig) error {
	sl, err := s.declareProvider(cfg)
	if err != nil {
		return err
	}
	if !cfg.Lazy && s.State() == StateRunning {
		_, err = s.providers.materialize(sl)
	}
	return err
}

// RegisterProvider registers an already built provider under its name
func (s *Scope) RegisterProvider(provider Provider) error {
	if provider == nil {
		return ConfigurationError(s, nil, "cannot register nil provider")
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	sl := &slot[Provider]{
		name:  provider.Name(),
		typ:   fmt.Sprintf("%T", provider),
		build: func() (Provider, error) { return provider, nil },
	}
	if err := reserveSlot(s, s.providers, sl); err != nil {
		return err
	}
	_, err := s.providers.materialize(sl)
	return err
}

func (s *Scope) declareProvider(cfg ProviderConfig) (*slot[Provider], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	factory, err := s.types.providerFactory(s, cfg.Type)
	if err != nil {
		return nil, err
	}

	sl := &slot[Provider]{
		name: cfg.Name,
		typ:  cfg.Type,
		lazy: cfg.Lazy,
	}
	sl.build = func() (Provider, error) {
		ctx := s.componentContext("provider", cfg.Name, cfg.Type, cfg.InitParameters, nil)
		ctx.Logger.Info("Creating provider", "type", cfg.Type, "params", cfg.InitParameters)

		provider, err := callFactory("provider", cfg.Name, func() (Provider, error) { return factory(ctx) })
		if err != nil {
			return nil, Wrap(err, func(cause error) *ContainerError {
				return ProviderError(s, cause, "failed to create provider '%s' of type '%s'", cfg.Name, cfg.Type)
			})
		}
		if provider == nil {
			return nil, ProviderError(s, nil, "factory for type '%s' returned no provider", cfg.Type)
		}
		return provider, nil
	}

	if err := reserveSlot(s, s.providers, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

// GetProvider returns the local provider or nil
func (s *Scope) GetProvider(name string) Provider {
	provider, _ := s.localProvider(name)
	return provider
}

// ProviderNames returns the local provider names in declaration order
func (s *Scope) ProviderNames() []string {
	return s.providers.names()
}

// GetObject asks the local provider for an object. Providers are scope
// local: a provider missing here is a NotFoundError even if a parent has
// one. An object unknown to the provider yields (nil, nil).
func (s *Scope) GetObject(providerName, objectName string) (any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	provider, err := s.localProvider(providerName)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, NotFoundError(s, "provider", providerName)
	}
	return s.objectFrom(provider, objectName)
}

func (s *Scope) objectFrom(provider Provider, objectName string) (any, error) {
	obj, err := provider.GetObject(objectName)
	if err != nil {
		return nil, Wrap(err, func(cause error) *ContainerError {
			return ProviderError(s, cause, "provider '%s' failed to return object '%s'", provider.Name(), objectName)
		})
	}
	s.config.Metrics.RecordObjectLookup(s.name, provider.Name(), obj != nil)
	return obj, nil
}

func (s *Scope) localProvider(name string) (Provider, error) {
	if s.State() == StateClosed {
		return nil, nil
	}
	sl, ok := s.providers.visible(name)
	if !ok {
		return nil, nil
	}
	return s.providers.materialize(sl)
}

// ── Object references ────────────────────────────────────────────────────────

// CreateObjectReference declares name as an alias for an object of a
// provider that may live in a parent or sibling scope
func (s *Scope) CreateObjectReference(name, providerName, objectName string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if name == "" || providerName == "" || objectName == "" {
		return ConfigurationError(s, nil, "object reference requires a name, a provider and an object")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refs[name]; exists {
		return ConfigurationError(s, nil, "object reference '%s' already registered in scope '%s'", name, s.name)
	}
	s.refs[name] = ObjectReferenceConfig{Name: name, Provider: providerName, Object: objectName}
	return nil
}

// GetReferencedObject resolves a declared object reference. The provider
// is searched locally, then up the parent chain, then in sibling scopes.
func (s *Scope) GetReferencedObject(name string) (any, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ref, ok := s.refs[name]
	s.mu.RUnlock()
	if !ok {
		return nil, NotFoundError(s, "object reference", name)
	}

	for scope := range s.lookupChain() {
		provider, err := scope.localProvider(ref.Provider)
		if err != nil {
			return nil, err
		}
		if provider != nil {
			return scope.objectFrom(provider, ref.Object)
		}
	}
	return nil, NotFoundError(s, "provider", ref.Provider)
}

// ── Services ─────────────────────────────────────────────────────────────────

// CreateService instantiates a service of the given type and registers it
func (s *Scope) CreateService(name, typeID string, params param.Parameters) (Service, error) {
	sl, err := s.declareService(ServiceConfig{Name: name, Type: typeID, InitParameters: params})
	if err != nil {
		return nil, err
	}

	service, err := s.services.materialize(sl)
	if err != nil {
		s.services.remove(name)
		return nil, err
	}
	return service, nil
}

// DeclareService registers a service declaration, see DeclareProvider
func (s *Scope) DeclareService(cfg ServiceConfig) error {
	sl, err := s.declareService(cfg)
	if err != nil {
		return err
	}
	if !cfg.Lazy && s.State() == StateRunning {
		_, err = s.services.materialize(sl)
	}
	return err
}

// RegisterService registers an already built service under its name
func (s *Scope) RegisterService(service Service) error {
	if service == nil {
		return ConfigurationError(s, nil, "cannot register nil service")
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	sl := &slot[Service]{
		name:  service.Name(),
		typ:   fmt.Sprintf("%T", service),
		build: func() (Service, error) { return service, nil },
	}
	if err := reserveSlot(s, s.services, sl); err != nil {
		return err
	}
	_, err := s.services.materialize(sl)
	return err
}

func (s *Scope) declareService(cfg ServiceConfig) (*slot[Service], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	factory, err := s.types.serviceFactory(s, cfg.Type)
	if err != nil {
		return nil, err
	}

	sl := &slot[Service]{
		name: cfg.Name,
		typ:  cfg.Type,
		lazy: cfg.Lazy,
	}
	sl.build = func() (Service, error) {
		ctx := s.componentContext("service", cfg.Name, cfg.Type, cfg.InitParameters, cfg.Clients)
		ctx.Logger.Info("Creating service", "type", cfg.Type, "clients", len(cfg.Clients), "params", cfg.InitParameters)

		service, err := callFactory("service", cfg.Name, func() (Service, error) { return factory(ctx) })
		if err != nil {
			return nil, Wrap(err, func(cause error) *ContainerError {
				return ConfigurationError(s, cause, "failed to create service '%s' of type '%s'", cfg.Name, cfg.Type)
			})
		}
		if service == nil {
			return nil, ConfigurationError(s, nil, "factory for type '%s' returned no service", cfg.Type)
		}
		return service, nil
	}

	if err := reserveSlot(s, s.services, sl); err != nil {
		return nil, err
	}
	return sl, nil
}

// ServiceNames returns the local service names in declaration order
func (s *Scope) ServiceNames() []string {
	return s.services.names()
}

// GetService resolves a service locally, then up the parent chain, then in
// sibling scopes of the domain. It returns nil when no scope has one so
// callers can ask for optional services.
func (s *Scope) GetService(name string) Service {
	service, _ := s.findService(name)
	return service
}

// RequireService is GetService for services whose absence is an error
func (s *Scope) RequireService(name string) (Service, error) {
	service, err := s.findService(name)
	if err != nil {
		return nil, err
	}
	if service == nil {
		return nil, NotFoundError(s, "service", name)
	}
	return service, nil
}

func (s *Scope) findService(name string) (Service, error) {
	if s.State() == StateClosed {
		return nil, nil
	}

	for scope := range s.lookupChain() {
		sl, ok := scope.services.visible(name)
		if !ok || scope.State() == StateClosed {
			continue
		}
		return scope.services.materialize(sl)
	}
	return nil, nil
}

// ── helpers ──────────────────────────────────────────────────────────────────

// lookupChain yields this scope, its ancestors, then the remaining domain
// scopes in name order
func (s *Scope) lookupChain() iter.Seq[*Scope] {
	return func(yield func(*Scope) bool) {
		seen := make(map[*Scope]bool)
		for scope := s; scope != nil; scope = scope.parent {
			seen[scope] = true
			if !yield(scope) {
				return
			}
		}
		if s.domain == nil {
			return
		}
		for _, sibling := range s.domain.Scopes() {
			if seen[sibling] {
				continue
			}
			if !yield(sibling) {
				return
			}
		}
	}
}

func (s *Scope) checkOpen() error {
	if s.State() == StateClosed {
		return IllegalStateError(s, "scope '%s' is closed", s.name)
	}
	return nil
}

func reserveSlot[T any](s *Scope, r *registry[T], sl *slot[T]) error {
	if sl.name == "" {
		return ConfigurationError(s, nil, "%s name cannot be empty", r.kind)
	}
	if !r.add(sl) {
		return ConfigurationError(s, nil, "%s '%s' already registered in scope '%s'", r.kind, sl.name, s.name)
	}
	return nil
}

func (s *Scope) componentContext(kind, name, typeID string, params param.Parameters, clients []ClientConfig) ComponentContext {
	return ComponentContext{
		Name:    name,
		Type:    typeID,
		Params:  params.Clone(),
		Clients: clients,
		Scope:   s,
		Logger:  s.logger.With(kind, name),
		Metrics: s.config.Metrics,
	}
}

func (s *Scope) String() string {
	return fmt.Sprintf("scope(%s)", s.name)
}

var _ Logger = (*Scope)(nil)
