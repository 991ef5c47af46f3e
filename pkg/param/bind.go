package param

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

var (
	// ErrMissing reports a required key absent from the input
	ErrMissing = errors.New("missing required parameter")
	// ErrInvalid reports a value that cannot be converted to the field type
	ErrInvalid = errors.New("invalid parameter value")
)

// BindError names the key that failed to bind
type BindError struct {
	Key string
	Err error
}

// Error implements the error interface
func (e *BindError) Error() string {
	return fmt.Sprintf("parameter '%s': %v", e.Key, e.Err)
}

// Unwrap returns the underlying failure
func (e *BindError) Unwrap() error {
	return e.Err
}

var textUnmarshalerType = reflect.TypeOf((*encoding.TextUnmarshaler)(nil)).Elem()

// Bind copies values into the fields of target, which must be a pointer to
// a struct. Fields are selected by a `param:"key[,required]"` tag; embedded
// structs are walked. Keys missing from values are left untouched unless
// required. Present values are converted through mapstructure with weak
// typing, so "true" binds into a bool and "INFO" into any field whose type
// implements encoding.TextUnmarshaler.
func Bind(values map[string]any, target any) error {
	return bind(values, target, true)
}

// BindStrict is Bind without weak typing: a value must already have the
// field's kind. Strings are still parsed into TextUnmarshaler and
// time.Duration fields.
func BindStrict(values map[string]any, target any) error {
	return bind(values, target, false)
}

func bind(values map[string]any, target any, weak bool) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("bind target must be a non-nil pointer to a struct, got %T", target)
	}
	return bindStruct(values, rv.Elem(), weak)
}

func bindStruct(values map[string]any, v reflect.Value, weak bool) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		tag, tagged := field.Tag.Lookup("param")
		if !tagged {
			if field.Anonymous && field.Type.Kind() == reflect.Struct {
				if err := bindStruct(values, v.Field(i), weak); err != nil {
					return err
				}
			}
			continue
		}

		key, required := parseTag(tag)
		value, present := values[key]
		if !present || value == nil {
			if required {
				return &BindError{Key: key, Err: ErrMissing}
			}
			continue
		}

		if err := decode(value, v.Field(i).Addr().Interface(), weak); err != nil {
			return &BindError{Key: key, Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
		}
	}
	return nil
}

func parseTag(tag string) (string, bool) {
	parts := strings.Split(tag, ",")
	required := false
	for _, opt := range parts[1:] {
		if strings.TrimSpace(opt) == "required" {
			required = true
		}
	}
	return strings.TrimSpace(parts[0]), required
}

func decode(input, out any, weak bool) error {
	hooks := []mapstructure.DecodeHookFunc{
		textUnmarshalerHook,
		mapstructure.StringToTimeDurationHookFunc(),
	}
	if weak {
		hooks = append(hooks, mapstructure.StringToSliceHookFunc(","))
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: weak,
		DecodeHook:       mapstructure.ComposeDecodeHookFunc(hooks...),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

// textUnmarshalerHook converts string input for types that parse themselves
func textUnmarshalerHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || !reflect.PointerTo(to).Implements(textUnmarshalerType) {
		return data, nil
	}

	target := reflect.New(to)
	text := reflect.ValueOf(data).String()
	if err := target.Interface().(encoding.TextUnmarshaler).UnmarshalText([]byte(text)); err != nil {
		return nil, err
	}
	return target.Elem().Interface(), nil
}
