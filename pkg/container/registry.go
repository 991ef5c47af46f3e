package container

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// slot holds one declared component and materializes it at most once
type slot[T any] struct {
	name  string
	typ   string
	lazy  bool
	build func() (T, error)

	// requested is set once materialization was asked for; eager slots stay
	// invisible to lookups until then
	requested atomic.Bool
	once      sync.Once
	instance  T
	err       error
	built     bool
}

// component registry keeping declaration and instantiation order
type registry[T any] struct {
	kind    string
	scope   string
	mu      sync.RWMutex
	slots   map[string]*slot[T]
	order   []string
	created []string
	// sealed is set once the owning scope closes its components
	sealed  bool
	metrics MetricsCollector
	logger  *slog.Logger
}

func newRegistry[T any](kind, scope string, metrics MetricsCollector, logger *slog.Logger) *registry[T] {
	return &registry[T]{
		kind:    kind,
		scope:   scope,
		slots:   make(map[string]*slot[T]),
		metrics: metrics,
		logger:  logger,
	}
}

// add reserves the slot name; false means the name is taken
func (r *registry[T]) add(s *slot[T]) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.slots[s.name]; exists {
		return false
	}

	r.logger.Debug("Registering "+r.kind, "name", s.name, "type", s.typ, "lazy", s.lazy)
	r.slots[s.name] = s
	r.order = append(r.order, s.name)
	return true
}

func (r *registry[T]) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.slots, name)
	r.order = removeName(r.order, name)
	r.created = removeName(r.created, name)
}

func (r *registry[T]) get(name string) (*slot[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.slots[name]
	return s, exists
}

// visible returns the slot if lookups may see it
func (r *registry[T]) visible(name string) (*slot[T], bool) {
	s, ok := r.get(name)
	if !ok || (!s.lazy && !s.requested.Load()) {
		return nil, false
	}
	return s, true
}

// instance returns the component only if it is already built
func (r *registry[T]) instance(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	s, ok := r.slots[name]
	if !ok || !s.built {
		return zero, false
	}
	return s.instance, true
}

// declared returns the slots in declaration order
func (r *registry[T]) declared() []*slot[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*slot[T], 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.slots[name])
	}
	return result
}

// seal stops accepting new instances and returns the materialized slots,
// most recent first
func (r *registry[T]) seal() []*slot[T] {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
	result := make([]*slot[T], 0, len(r.created))
	for i := len(r.created) - 1; i >= 0; i-- {
		if s, ok := r.slots[r.created[i]]; ok {
			result = append(result, s)
		}
	}
	return result
}

func (r *registry[T]) names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// materialize builds the slot's component once. A component finished
// after the registry was sealed is closed and reported as an error.
func (r *registry[T]) materialize(s *slot[T]) (T, error) {
	s.requested.Store(true)
	s.once.Do(func() {
		start := time.Now()
		s.instance, s.err = s.build()
		if s.err != nil {
			return
		}

		r.mu.Lock()
		if r.sealed {
			r.mu.Unlock()
			r.discard(s)
			return
		}
		s.built = true
		r.created = append(r.created, s.name)
		r.mu.Unlock()

		duration := time.Since(start)
		r.metrics.RecordComponentCreated(r.scope, r.kind, s.name, duration)
		r.logger.Debug("Component created",
			"kind", r.kind,
			"name", s.name,
			"time_ms", duration.Milliseconds())
	})
	return s.instance, s.err
}

// discard releases a component built after its scope closed
func (r *registry[T]) discard(s *slot[T]) {
	if closer, ok := any(s.instance).(Closer); ok {
		if err := closeComponent(r.kind, s.name, closer); err != nil {
			r.logger.Error("Error closing component", "kind", r.kind, "name", s.name, "error", err)
		}
	}

	var zero T
	s.instance = zero
	s.err = IllegalStateError(nil, "%s '%s' was built after scope '%s' closed", r.kind, s.name, r.scope)
}

func removeName(names []string, name string) []string {
	for i, n := range names {
		if n == name {
			return append(names[:i:i], names[i+1:]...)
		}
	}
	return names
}
