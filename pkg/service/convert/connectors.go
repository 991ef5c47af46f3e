package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/01fortes/goscope/pkg/proxy"
)

// Connector type ids
const (
	YAMLConnector     = "converter/yaml"
	JSONConnector     = "converter/json"
	TemplateConnector = "converter/template"
)

// converterFunc adapts a function to Converter
type converterFunc func(source any) (any, error)

func (f converterFunc) Transform(source any) (any, error) { return f(source) }

// funcConnector serves a fixed converter; its source is the converter
type funcConnector struct {
	proxy.ConnectorBase
	build func() (any, error)
}

func (c *funcConnector) CreateConnectionSource() (any, error) { return c.build() }

func (c *funcConnector) ClientConnection(source any) (any, error) { return source, nil }

func newFuncConnector(client string, build func() (any, error)) *funcConnector {
	return &funcConnector{
		ConnectorBase: proxy.ConnectorBase{Client: client, Service: ServiceType, Cache: true},
		build:         build,
	}
}

// NewYAMLConnector converts YAML text (string or []byte) into generic values
func NewYAMLConnector(proxy.ConnectorContext) (proxy.Connector, error) {
	return newFuncConnector("yaml", func() (any, error) {
		return converterFunc(func(source any) (any, error) {
			data, err := textOf(source)
			if err != nil {
				return nil, err
			}
			var out any
			if err := yaml.Unmarshal(data, &out); err != nil {
				return nil, err
			}
			return out, nil
		}), nil
	}), nil
}

type jsonOptions struct {
	Indent string `param:"indent"`
}

// NewJSONConnector renders values as JSON text. Param: indent.
func NewJSONConnector(ctx proxy.ConnectorContext) (proxy.Connector, error) {
	var opts jsonOptions
	if err := ctx.Params.Bind(&opts); err != nil {
		return nil, err
	}

	return newFuncConnector("json", func() (any, error) {
		return converterFunc(func(source any) (any, error) {
			var (
				data []byte
				err  error
			)
			if opts.Indent != "" {
				data, err = json.MarshalIndent(source, "", opts.Indent)
			} else {
				data, err = json.Marshal(source)
			}
			if err != nil {
				return nil, err
			}
			return string(data), nil
		}), nil
	}), nil
}

type templateOptions struct {
	Template string `param:"template,required"`
}

// NewTemplateConnector renders a text/template against the source value.
// The parsed template is the cached connection source.
func NewTemplateConnector(ctx proxy.ConnectorContext) (proxy.Connector, error) {
	var opts templateOptions
	if err := ctx.Params.Bind(&opts); err != nil {
		return nil, err
	}

	c := &templateConnector{
		ConnectorBase: proxy.ConnectorBase{Client: "template", Service: ServiceType, Cache: true},
		name:          ctx.Client,
		text:          opts.Template,
	}
	return c, nil
}

type templateConnector struct {
	proxy.ConnectorBase
	name string
	text string
}

func (c *templateConnector) CreateConnectionSource() (any, error) {
	tmpl, err := template.New(c.name).Option("missingkey=error").Parse(c.text)
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

func (c *templateConnector) ClientConnection(source any) (any, error) {
	tmpl := source.(*template.Template)
	return converterFunc(func(value any) (any, error) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, value); err != nil {
			return nil, err
		}
		return buf.String(), nil
	}), nil
}

func textOf(source any) ([]byte, error) {
	switch v := source.(type) {
	case string:
		return []byte(strings.TrimSpace(v)), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("expected text, got %T", source)
	}
}
