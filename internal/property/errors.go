package property

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSettable is returned when an attribute has no setter or the target is not addressable
	ErrNotSettable = errors.New("attribute is not settable")

	// ErrGroupValue is returned when a value is written to a group attribute
	ErrGroupValue = errors.New("group attributes cannot be assigned")

	// ErrConversion is returned when a raw value cannot be converted to the attribute's type
	ErrConversion = errors.New("value conversion failed")
)

// AccessorError reports a failure raised while invoking an accessor
type AccessorError struct {
	Attribute string
	Err       error
}

// Error implements the error interface
func (e *AccessorError) Error() string {
	return fmt.Sprintf("attribute %s: %v", e.Attribute, e.Err)
}

// Unwrap returns the underlying error
func (e *AccessorError) Unwrap() error {
	return e.Err
}

// panicError wraps a recovered panic value
type panicError struct {
	value interface{}
}

func (p panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}
