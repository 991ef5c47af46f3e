package container

import (
	"errors"
	"fmt"
)

// Code classifies a ContainerError
type Code string

const (
	CodeConfiguration        Code = "CONFIGURATION_ERROR"
	CodeNotFound             Code = "NOT_FOUND"
	CodeProvider             Code = "PROVIDER_ERROR"
	CodeConnector            Code = "CONNECTOR_ERROR"
	CodeIllegalState         Code = "ILLEGAL_STATE"
	CodeUnsupportedOperation Code = "UNSUPPORTED_OPERATION"
	CodeInvalidParameter     Code = "INVALID_PARAMETER"
)

// Sentinels for errors.Is. They match any ContainerError with the same code.
var (
	ErrConfiguration        = &ContainerError{Code: CodeConfiguration}
	ErrNotFound             = &ContainerError{Code: CodeNotFound}
	ErrProvider             = &ContainerError{Code: CodeProvider}
	ErrConnector            = &ContainerError{Code: CodeConnector}
	ErrIllegalState         = &ContainerError{Code: CodeIllegalState}
	ErrUnsupportedOperation = &ContainerError{Code: CodeUnsupportedOperation}
	ErrInvalidParameter     = &ContainerError{Code: CodeInvalidParameter}
)

// ContainerError represents an error that occurred in the container
type ContainerError struct {
	Code    Code
	Message string
	Cause   error
	// Level is the severity hint for external loggers
	Level Level
	// Scope names the scope the error originated in, if any
	Scope string
}

// Error implements the error interface
func (e *ContainerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *ContainerError) Unwrap() error {
	return e.Cause
}

// Is matches the code-only sentinels
func (e *ContainerError) Is(target error) bool {
	t, ok := target.(*ContainerError)
	if !ok || t.Message != "" {
		return false
	}
	return t.Code == e.Code
}

// CodeOf returns the code of the first ContainerError in err's chain
func CodeOf(err error) (Code, bool) {
	var ce *ContainerError
	if errors.As(err, &ce) {
		return ce.Code, true
	}
	return "", false
}

// newError builds the error and logs it once through origin
func newError(origin Logger, code Code, level Level, cause error, format string, args ...any) *ContainerError {
	err := &ContainerError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
		Level:   level,
	}
	if origin == nil {
		return err
	}
	if named, ok := origin.(interface{ Name() string }); ok {
		err.Scope = named.Name()
	}
	origin.Log(err.Error(), level)
	return err
}

// ConfigurationError returns an error for duplicate names, missing required
// parameters and incompatible capabilities
func ConfigurationError(origin Logger, cause error, format string, args ...any) *ContainerError {
	return newError(origin, CodeConfiguration, LevelError, cause, format, args...)
}

// NotFoundError returns an error for a name that is not registered
func NotFoundError(origin Logger, kind, name string) *ContainerError {
	return newError(origin, CodeNotFound, LevelWarn, nil, "%s '%s' not found", kind, name)
}

// ProviderError returns an error for an object factory failure
func ProviderError(origin Logger, cause error, format string, args ...any) *ContainerError {
	return newError(origin, CodeProvider, LevelError, cause, format, args...)
}

// ConnectorError returns an error for a connection source or connection failure
func ConnectorError(origin Logger, cause error, format string, args ...any) *ContainerError {
	return newError(origin, CodeConnector, LevelError, cause, format, args...)
}

// IllegalStateError returns an error for a state machine violation
func IllegalStateError(origin Logger, format string, args ...any) *ContainerError {
	return newError(origin, CodeIllegalState, LevelWarn, nil, format, args...)
}

// UnsupportedOperationError returns an error for an unknown dispatch operation
func UnsupportedOperationError(origin Logger, service, operation string) *ContainerError {
	return newError(origin, CodeUnsupportedOperation, LevelWarn, nil,
		"service '%s' does not support operation '%s'", service, operation)
}

// InvalidParameterError returns an error naming the missing or mistyped key
func InvalidParameterError(origin Logger, operation, key string, cause error) *ContainerError {
	return newError(origin, CodeInvalidParameter, LevelWarn, cause,
		"operation '%s': invalid parameter '%s'", operation, key)
}

// Wrap returns err unchanged if it is already a ContainerError, so
// wrapping layers never log it a second time
func Wrap(err error, wrap func(error) *ContainerError) error {
	var ce *ContainerError
	if errors.As(err, &ce) {
		return err
	}
	return wrap(err)
}
