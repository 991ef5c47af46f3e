package container

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/01fortes/goscope/pkg/param"
)

// ScopeConfig is the declarative object graph external loaders produce
type ScopeConfig struct {
	Name             string                  `yaml:"name" json:"name" validate:"required"`
	Parent           string                  `yaml:"parent,omitempty" json:"parent,omitempty"`
	InitParameters   param.Parameters        `yaml:"init-parameters,omitempty" json:"init-parameters,omitempty" validate:"dive"`
	Providers        []ProviderConfig        `yaml:"providers,omitempty" json:"providers,omitempty" validate:"dive"`
	Services         []ServiceConfig         `yaml:"services,omitempty" json:"services,omitempty" validate:"dive"`
	ObjectReferences []ObjectReferenceConfig `yaml:"object-references,omitempty" json:"object-references,omitempty" validate:"dive"`
}

// ProviderConfig declares a provider
type ProviderConfig struct {
	Name           string           `yaml:"name" json:"name" validate:"required"`
	Type           string           `yaml:"type" json:"type" validate:"required"`
	Lazy           bool             `yaml:"lazy,omitempty" json:"lazy,omitempty"`
	InitParameters param.Parameters `yaml:"init-parameters,omitempty" json:"init-parameters,omitempty" validate:"dive"`
}

// ServiceConfig declares a service and its clients
type ServiceConfig struct {
	Name           string           `yaml:"name" json:"name" validate:"required"`
	Type           string           `yaml:"type" json:"type" validate:"required"`
	Lazy           bool             `yaml:"lazy,omitempty" json:"lazy,omitempty"`
	InitParameters param.Parameters `yaml:"init-parameters,omitempty" json:"init-parameters,omitempty" validate:"dive"`
	Clients        []ClientConfig   `yaml:"clients,omitempty" json:"clients,omitempty" validate:"dive"`
}

// ClientConfig declares a client inside a service
type ClientConfig struct {
	Name           string           `yaml:"name" json:"name" validate:"required"`
	Connector      string           `yaml:"connector" json:"connector" validate:"required"`
	Lazy           bool             `yaml:"lazy,omitempty" json:"lazy,omitempty"`
	InitParameters param.Parameters `yaml:"init-parameters,omitempty" json:"init-parameters,omitempty" validate:"dive"`
}

// ObjectReferenceConfig names an object of a provider, possibly one
// registered in another scope
type ObjectReferenceConfig struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Provider string `yaml:"provider" json:"provider" validate:"required"`
	Object   string `yaml:"object" json:"object" validate:"required"`
}

var validate = validator.New()

// Validate checks that the graph is complete enough to build a scope
func (c *ScopeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return ConfigurationError(nil, formatValidationError(err), "invalid configuration for scope '%s'", c.Name)
	}
	return nil
}

// formatValidationError formats validation errors into readable messages
func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		switch e.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", e.Namespace()))
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid", e.Namespace()))
		}
	}
	return fmt.Errorf("%s", strings.Join(messages, "; "))
}
