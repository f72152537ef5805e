package sandbox

import (
	"errors"
	"fmt"
)

// ErrFuelExhausted is the cancellation cause installed by the CPU governor
// when the invocation's fuel budget runs out.
var ErrFuelExhausted = errors.New("fuel exhausted")

var errNotLoaded = errors.New("component not loaded")

// LoadError reports that a component binary could not be compiled or
// instantiated. The bytes are bad; the caller must not retry with them.
type LoadError struct {
	Component string
	Cause     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading component %q failed: %v", e.Component, e.Cause)
}

func (e *LoadError) Unwrap() error { return e.Cause }

// FunctionNotFoundError reports that the component does not export the
// requested entry point.
type FunctionNotFoundError struct {
	Component string
	Function  string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("component %q does not export function %q", e.Component, e.Function)
}
