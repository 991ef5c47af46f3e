package convert

import (
	"github.com/01fortes/goscope/pkg/container"
	"github.com/01fortes/goscope/pkg/proxy"
)

// ServiceType is the service type id of the converter service
const ServiceType = "converter"

// Converter is the connection contract of converter clients
type Converter interface {
	Transform(source any) (any, error)
}

// TransformRequest is operation "transform"
type TransformRequest struct {
	proxy.ClientRequest
	Source any `param:"source,required"`
}

func (TransformRequest) Operation() string { return "transform" }

// Service converts values through its clients
type Service struct {
	*proxy.Service
}

// New creates a converter service from ctx
func New(ctx container.ComponentContext, connectors *proxy.Connectors) (*Service, error) {
	base, err := proxy.NewService(ctx, ServiceType, connectors)
	if err != nil {
		return nil, err
	}

	s := &Service{Service: base}
	proxy.Handle(base, func(req TransformRequest) (any, error) {
		return s.transform(req)
	})
	return s, nil
}

// Factory returns the service factory of the converter service type
func Factory(connectors *proxy.Connectors) container.ServiceFactory {
	return func(ctx container.ComponentContext) (container.Service, error) {
		return New(ctx, connectors)
	}
}

// Register adds the converter service type and its connectors
func Register(types *container.Types, connectors *proxy.Connectors) error {
	if err := types.RegisterService(ServiceType, Factory(connectors)); err != nil {
		return err
	}
	for id, factory := range map[string]proxy.ConnectorFactory{
		YAMLConnector:     NewYAMLConnector,
		JSONConnector:     NewJSONConnector,
		TemplateConnector: NewTemplateConnector,
	} {
		if err := connectors.Register(id, factory); err != nil {
			return err
		}
	}
	return nil
}

// Transform converts source through the named client
func (s *Service) Transform(client string, source any) (any, error) {
	return proxy.Dispatch(s.Service, TransformRequest{
		ClientRequest: proxy.ClientRequest{ClientName: client},
		Source:        source,
	})
}

func (s *Service) transform(req TransformRequest) (any, error) {
	c, err := s.Client(req.ClientName)
	if err != nil {
		return nil, err
	}

	result, err := proxy.WithConnection(c, func(conv Converter) (any, error) {
		return conv.Transform(req.Source)
	})
	if err != nil {
		return nil, container.Wrap(err, func(cause error) *container.ContainerError {
			return container.InvalidParameterError(s.Origin(), req.Operation(), "source", cause)
		})
	}
	return result, nil
}

var _ container.Service = (*Service)(nil)
