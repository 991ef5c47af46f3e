package proxy

import (
	"errors"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/param"
)

// Request is a typed operation request. Each operation of a service has
// one request type; Execute binds the string keyed parameters into it.
type Request interface {
	Operation() string
}

type handler struct {
	decode func(params map[string]any) (Request, error)
	run    func(req Request) (any, error)
}

// Handle registers fn as the handler of R's operation. R must report its
// operation name from its zero value.
func Handle[R Request](s *Service, fn func(req R) (any, error)) {
	var zero R
	op := zero.Operation()

	h := handler{
		decode: func(params map[string]any) (Request, error) {
			var req R
			if err := param.BindStrict(params, &req); err != nil {
				return nil, err
			}
			return req, nil
		},
		run: func(req Request) (any, error) {
			return fn(req.(R))
		},
	}

	s.mu.Lock()
	s.handlers[op] = h
	s.mu.Unlock()
}

// Dispatch runs a typed request without going through parameter binding
func Dispatch(s *Service, req Request) (any, error) {
	h, ok := s.handler(req.Operation())
	if !ok {
		return nil, container.UnsupportedOperationError(s.origin, s.Name(), req.Operation())
	}
	return h.run(req)
}

// Execute runs the named operation. Unknown operations fail with an
// UnsupportedOperationError, parameters that do not bind with an
// InvalidParameterError naming the key.
func (s *Service) Execute(operation string, params map[string]any) (any, error) {
	h, ok := s.handler(operation)
	if !ok {
		return nil, container.UnsupportedOperationError(s.origin, s.Name(), operation)
	}

	req, err := h.decode(params)
	if err != nil {
		var bindErr *param.BindError
		if errors.As(err, &bindErr) {
			return nil, container.InvalidParameterError(s.origin, operation, bindErr.Key, bindErr.Err)
		}
		return nil, container.InvalidParameterError(s.origin, operation, "", err)
	}
	return h.run(req)
}

// Operations returns the supported operation names, sorted
func (s *Service) Operations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return keys(s.handlers)
}

func (s *Service) handler(operation string) (handler, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h, ok := s.handlers[operation]
	return h, ok
}

// ClientRequest carries the client-name parameter shared by client
// operations
type ClientRequest struct {
	ClientName string `param:"client-name,required"`
}

// ConnectRequest is operation "connect"
type ConnectRequest struct{ ClientRequest }

func (ConnectRequest) Operation() string { return "connect" }

// DisconnectRequest is operation "disconnect"
type DisconnectRequest struct{ ClientRequest }

func (DisconnectRequest) Operation() string { return "disconnect" }

// CloseRequest is operation "close"
type CloseRequest struct{ ClientRequest }

func (CloseRequest) Operation() string { return "close" }

// StateRequest is operation "state"
type StateRequest struct{ ClientRequest }

func (StateRequest) Operation() string { return "state" }

// ClientsRequest is operation "clients"
type ClientsRequest struct{}

func (ClientsRequest) Operation() string { return "clients" }

func (s *Service) registerBuiltins() {
	Handle(s, func(req ConnectRequest) (any, error) {
		return nil, s.Connect(req.ClientName)
	})
	Handle(s, func(req DisconnectRequest) (any, error) {
		return nil, s.Disconnect(req.ClientName)
	})
	Handle(s, func(req CloseRequest) (any, error) {
		return nil, s.CloseClient(req.ClientName)
	})
	Handle(s, func(req StateRequest) (any, error) {
		return s.State(req.ClientName)
	})
	Handle(s, func(ClientsRequest) (any, error) {
		return s.ClientNames(), nil
	})
}
