package functions

import (
	"errors"
	"fmt"
)

// Load failure kinds. A *LoadError unwraps to exactly one of them.
var (
	ErrUnsupportedDirection = errors.New("unsupported binding direction")
	ErrDuplicateBinding     = errors.New("duplicate binding")
	ErrMissingBinding       = errors.New("parameter has no binding")
	ErrMissingParameter     = errors.New("binding has no parameter")
	ErrReturnDirection      = errors.New("invalid $return direction")
	ErrContextParameter     = errors.New("invalid context parameter")
	ErrUnknownType          = errors.New("unknown binding type")
	ErrNonTypeAnnotation    = errors.New("non-type annotation")
	ErrDirectionMismatch    = errors.New("annotation does not match binding direction")
	ErrTypeMismatch         = errors.New("annotation does not match binding type")
	ErrImport               = errors.New("cannot import function")
)

// LoadError reports why a function could not be loaded.
type LoadError struct {
	Function string
	Reason   string
	Kind     error
	Cause    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("cannot load the %s function: %s", e.Function, e.Reason)
}

func (e *LoadError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Kind, e.Cause}
	}
	return []error{e.Kind}
}

func loadError(function string, kind error, format string, args ...any) *LoadError {
	return &LoadError{
		Function: function,
		Reason:   fmt.Sprintf(format, args...),
		Kind:     kind,
	}
}

func importError(function string, cause error) *LoadError {
	return &LoadError{
		Function: function,
		Reason:   cause.Error(),
		Kind:     ErrImport,
		Cause:    cause,
	}
}
