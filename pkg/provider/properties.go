package provider

import (
	"github.com/magiconair/properties"

	"github.com/01fortes/goscope/pkg/container"
)

type propertiesOptions struct {
	Path  string `param:"path,required"`
	Cache bool   `param:"cache"`
}

// Properties serves the entries of a .properties file as string objects
type Properties struct {
	*document
}

// NewProperties is the factory of the properties provider type
func NewProperties(ctx container.ComponentContext) (container.Provider, error) {
	opts := propertiesOptions{Cache: true}
	if err := ctx.Params.Bind(&opts); err != nil {
		return nil, container.ConfigurationError(ctx.Origin(), err, "provider '%s'", ctx.Name)
	}

	doc, err := newDocument(ctx, opts.Path, opts.Cache, func() (map[string]any, error) {
		return loadProperties(opts.Path)
	})
	if err != nil {
		return nil, err
	}
	return &Properties{document: doc}, nil
}

// loadProperties reads a Java-style properties file. Continuation lines,
// escapes and ${key} references are resolved by the parser.
func loadProperties(path string) (map[string]any, error) {
	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return nil, err
	}

	values := make(map[string]any, props.Len())
	for key, value := range props.Map() {
		values[key] = value
	}
	return values, nil
}

var _ container.Provider = (*Properties)(nil)
