package provider

import (
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/01fortes/goscope/pkg/container"
)

type envOptions struct {
	Prefix string `param:"prefix"`
	File   string `param:"file"`
	Cache  bool   `param:"cache"`
}

// Env serves environment variables as string objects. Values from an
// optional dotenv file are overridden by the process environment. With a
// prefix only matching variables are served, under names with the prefix
// removed, lower cased and with "_" replaced by ".".
type Env struct {
	*document
	prefix string
}

// NewEnv is the factory of the env provider type
func NewEnv(ctx container.ComponentContext) (container.Provider, error) {
	opts := envOptions{Cache: true}
	if err := ctx.Params.Bind(&opts); err != nil {
		return nil, container.ConfigurationError(ctx.Origin(), err, "provider '%s'", ctx.Name)
	}

	source := "environment"
	if opts.File != "" {
		source = opts.File
	}
	doc, err := newDocument(ctx, source, opts.Cache, func() (map[string]any, error) {
		return loadEnv(opts.File, opts.Prefix)
	})
	if err != nil {
		return nil, err
	}
	return &Env{document: doc, prefix: opts.Prefix}, nil
}

func loadEnv(file, prefix string) (map[string]any, error) {
	raw := make(map[string]string)
	if file != "" {
		fromFile, err := godotenv.Read(file)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			raw[k] = v
		}
	}
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if ok {
			raw[key] = value
		}
	}

	values := make(map[string]any)
	for key, value := range raw {
		if prefix == "" {
			values[key] = value
			continue
		}
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.TrimPrefix(key, prefix)
		name = strings.ToLower(name)
		name = strings.ReplaceAll(name, "_", ".")
		values[name] = value
	}
	return values, nil
}

// Prefix returns the variable prefix
func (p *Env) Prefix() string { return p.prefix }

var _ container.Provider = (*Env)(nil)
