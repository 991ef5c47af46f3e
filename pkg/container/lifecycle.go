package container

import (
	"errors"
	"fmt"
	"time"
)

// Start instantiates every eager provider in declaration order, then every
// eager service. Starting a running scope does nothing. If a component
// fails to build, the components built so far are torn down and the scope
// is left closed.
func (s *Scope) Start() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.State() {
	case StateRunning:
		return nil
	case StateClosed:
		return IllegalStateError(s, "scope '%s' is closed and cannot be started", s.name)
	}

	s.logger.Info("Starting scope")
	start := time.Now()

	if err := startAll(s.providers); err != nil {
		s.abort(err)
		return err
	}
	if err := startAll(s.services); err != nil {
		s.abort(err)
		return err
	}

	s.state.Store(int32(StateRunning))
	duration := time.Since(start)
	s.config.Metrics.RecordScopeStart(s.name, duration)

	s.logger.Info("Scope started",
		"providers", len(s.providers.names()),
		"services", len(s.services.names()),
		"time_ms", duration.Milliseconds())
	return nil
}

func startAll[T any](r *registry[T]) error {
	for _, sl := range r.declared() {
		if sl.lazy {
			continue
		}
		if _, err := r.materialize(sl); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scope) abort(cause error) {
	s.logger.Error("Scope start failed", "error", cause)
	if err := s.shutdown(); err != nil {
		s.logger.Error("Error tearing down scope after failed start", "error", err)
	}
}

// Close closes child scopes, then services in reverse instantiation order,
// then providers in reverse instantiation order. Components implementing
// Closer are closed; their errors are joined. Closing twice does nothing.
func (s *Scope) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == StateClosed {
		return nil
	}
	return s.shutdown()
}

func (s *Scope) shutdown() error {
	s.logger.Info("Closing scope")
	s.state.Store(int32(StateClosed))

	var errs []error

	children := s.Children()
	for i := len(children) - 1; i >= 0; i-- {
		if err := children[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}

	errs = append(errs, closeAll(s, s.services)...)
	errs = append(errs, closeAll(s, s.providers)...)

	if s.parent != nil {
		s.parent.removeChild(s)
	}
	if s.domain != nil {
		s.domain.remove(s)
	}

	s.config.Metrics.RecordScopeClose(s.name)
	s.logger.Info("Scope closed", "errors", len(errs))
	return errors.Join(errs...)
}

func closeAll[T any](s *Scope, r *registry[T]) []error {
	var errs []error
	for _, sl := range r.seal() {
		closer, ok := any(sl.instance).(Closer)
		if !ok {
			continue
		}
		if err := closeComponent(r.kind, sl.name, closer); err != nil {
			s.logger.Error("Error closing component", "kind", r.kind, "name", sl.name, "error", err)
			errs = append(errs, err)
		}
	}
	return errs
}

// closeComponent closes c, capturing panics
func closeComponent(kind, name string, c Closer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while closing %s '%s': %v", kind, name, r)
		}
	}()

	if err := c.Close(); err != nil {
		return fmt.Errorf("closing %s '%s': %w", kind, name, err)
	}
	return nil
}
