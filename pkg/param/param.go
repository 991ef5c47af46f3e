// Package param holds the ordered name/value parameter lists used to
// initialize scopes, providers, services and connectors.
package param

import (
	"fmt"
	"sort"
	"strconv"
)

// Parameter is a single named initialization value
type Parameter struct {
	Name  string `yaml:"name" json:"name" validate:"required"`
	Value any    `yaml:"value" json:"value"`
}

// Parameters is an ordered list of parameters. Duplicate names are allowed;
// lookups return the last value written for a name.
type Parameters []Parameter

// FromMap converts a mapping to a parameter list ordered by name
func FromMap(values map[string]any) Parameters {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	params := make(Parameters, 0, len(names))
	for _, name := range names {
		params = append(params, Parameter{Name: name, Value: values[name]})
	}
	return params
}

// Map converts the list to a mapping, last write wins
func (p Parameters) Map() map[string]any {
	result := make(map[string]any, len(p))
	for _, param := range p {
		result[param.Name] = param.Value
	}
	return result
}

// Lookup returns the last value stored under name
func (p Parameters) Lookup(name string) (any, bool) {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i].Name == name {
			return p[i].Value, true
		}
	}
	return nil, false
}

// Value returns the value stored under name or nil
func (p Parameters) Value(name string) any {
	value, _ := p.Lookup(name)
	return value
}

// Has reports whether a parameter with the given name exists
func (p Parameters) Has(name string) bool {
	_, ok := p.Lookup(name)
	return ok
}

// String returns the value under name formatted as a string
func (p Parameters) String(name, defaultValue string) string {
	value, ok := p.Lookup(name)
	if !ok || value == nil {
		return defaultValue
	}

	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Bool returns the value under name as a bool, accepting bools and
// strconv.ParseBool strings
func (p Parameters) Bool(name string, defaultValue bool) bool {
	value, ok := p.Lookup(name)
	if !ok || value == nil {
		return defaultValue
	}

	switch v := value.(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return defaultValue
		}
		return b
	default:
		return defaultValue
	}
}

// Int returns the value under name as an int
func (p Parameters) Int(name string, defaultValue int) int {
	value, ok := p.Lookup(name)
	if !ok || value == nil {
		return defaultValue
	}

	switch v := value.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		i, err := strconv.Atoi(v)
		if err != nil {
			return defaultValue
		}
		return i
	default:
		return defaultValue
	}
}

// Names returns the distinct parameter names in first-seen order
func (p Parameters) Names() []string {
	seen := make(map[string]bool, len(p))
	names := make([]string, 0, len(p))
	for _, param := range p {
		if seen[param.Name] {
			continue
		}
		seen[param.Name] = true
		names = append(names, param.Name)
	}
	return names
}

// With returns a copy of the list with name set to value. An existing
// entry is replaced in place, otherwise the pair is appended.
func (p Parameters) With(name string, value any) Parameters {
	result := p.Clone()
	for i := len(result) - 1; i >= 0; i-- {
		if result[i].Name == name {
			result[i].Value = value
			return result
		}
	}
	return append(result, Parameter{Name: name, Value: value})
}

// Clone returns a shallow copy of the list
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	result := make(Parameters, len(p))
	copy(result, p)
	return result
}

// Bind binds the parameters into the tagged fields of target, see Bind
func (p Parameters) Bind(target any) error {
	return Bind(p.Map(), target)
}
