package logging

import (
	"io"

	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/proxy"
)

// ServiceType is the service type id of the log service
const ServiceType = "log"

// Sink is the connection contract of log clients
type Sink interface {
	Write(message string, level container.Level) error
}

// LogRequest is operation "log"
type LogRequest struct {
	proxy.ClientRequest
	Message string          `param:"message,required"`
	Level   container.Level `param:"level"`
}

func (LogRequest) Operation() string { return "log" }

// Service writes log records to its clients. Registered under the
// configured log service name it receives every Scope.Log message.
type Service struct {
	*proxy.Service
}

// New creates a log service from ctx
func New(ctx container.ComponentContext, connectors *proxy.Connectors) (*Service, error) {
	base, err := proxy.NewService(ctx, ServiceType, connectors)
	if err != nil {
		return nil, err
	}

	s := &Service{Service: base}
	proxy.Handle(base, func(req LogRequest) (any, error) {
		return nil, s.LogTo(req.ClientName, req.Message, req.Level)
	})
	return s, nil
}

// Factory returns the service factory of the log service type
func Factory(connectors *proxy.Connectors) container.ServiceFactory {
	return func(ctx container.ComponentContext) (container.Service, error) {
		return New(ctx, connectors)
	}
}

// Register adds the log service type and its connectors. Console clients
// write to console, stdout when nil.
func Register(types *container.Types, connectors *proxy.Connectors, console io.Writer) error {
	if err := types.RegisterService(ServiceType, Factory(connectors)); err != nil {
		return err
	}
	if err := connectors.Register(ConsoleConnector, NewConsoleConnector(console)); err != nil {
		return err
	}
	return connectors.Register(ZapConnector, NewZapConnector)
}

// LogTo writes one record through the named client
func (s *Service) LogTo(client, message string, level container.Level) error {
	c, err := s.Client(client)
	if err != nil {
		return err
	}

	_, err = proxy.WithConnection(c, func(sink Sink) (struct{}, error) {
		return struct{}{}, sink.Write(message, level)
	})
	if err != nil {
		return container.Wrap(err, func(cause error) *container.ContainerError {
			return container.ConnectorError(s.Origin(), cause, "log client '%s' failed to write", client)
		})
	}
	return nil
}

// Log writes the record to every connected client. Write failures go to
// the service logger only; Log never reports through the error taxonomy
// since the errors themselves are logged through it.
func (s *Service) Log(message string, level container.Level) {
	for _, c := range s.Connected() {
		proxy.Use(c, func(sink Sink) {
			if err := sink.Write(message, level); err != nil {
				s.Logger().Warn("Log client write failed", "client", c.Name(), "error", err)
			}
		})
	}
}

var (
	_ container.Service = (*Service)(nil)
	_ container.Logger  = (*Service)(nil)
)
