package reqopt

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownBodyType is wrapped when a body is supplied with a body
	// type this package cannot encode.
	ErrUnknownBodyType = errors.New("unknown body type")
	// ErrUnknownOption is wrapped when an untyped option key has no
	// corresponding setting.
	ErrUnknownOption = errors.New("unknown option")
	// ErrInvalidValue is wrapped when an option value is out of range or
	// of the wrong type.
	ErrInvalidValue = errors.New("invalid option value")
	// ErrMultipartFields is wrapped when a multipart body is not a
	// field map.
	ErrMultipartFields = errors.New("multipart body must be a field map")
)

// InvalidOptionError reports malformed configuration. It is only ever
// produced before any I/O is attempted.
type InvalidOptionError struct {
	Option string
	Value  any
	Err    error
}

func (e *InvalidOptionError) Error() string {
	if e.Option == "" {
		return fmt.Sprintf("invalid options: %v", e.Err)
	}

	if e.Value == nil {
		return fmt.Sprintf("option %q: %v", e.Option, e.Err)
	}

	return fmt.Sprintf("option %q (%v): %v", e.Option, e.Value, e.Err)
}

func (e *InvalidOptionError) Unwrap() error {
	return e.Err
}

func invalid(option string, value any, err error) error {
	return &InvalidOptionError{Option: option, Value: value, Err: err}
}
