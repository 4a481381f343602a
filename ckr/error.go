package ckr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Binding failures: the native call did not produce a Result
var (
	// ErrSymbolNotFound is returned when the library does not export a function
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrUnsupportedPlatform is returned when no layout exists for the OS or architecture
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrNativeFault is returned when the native call faulted
	ErrNativeFault = errors.New("native call faulted")
	// ErrLibraryLoad is returned when the shared library cannot be loaded
	ErrLibraryLoad = errors.New("unable to load library")
	// ErrBadLength is returned when the library reports an unusable length
	ErrBadLength = errors.New("invalid length reported by library")
)

// Error is returned by every operation of the binding.
// A protocol failure carries the Result returned by the library,
// a binding failure carries the cause only.
type Error struct {
	// Op is the name of the failed operation, e.g. C_Login
	Op string

	code     Result
	protocol bool
	cause    error
}

// NewProtocolError returns error for a non-OK result, or nil for OK
func NewProtocolError(op string, code Result) error {
	if code == OK {
		return nil
	}
	return errors.WithStack(&Error{Op: op, code: code, protocol: true})
}

// NewBindingError returns error for a failure that has no Result
func NewBindingError(op string, cause error) error {
	if cause == nil {
		cause = ErrNativeFault
	}
	return errors.WithStack(&Error{Op: op, cause: cause})
}

// Error implements error interface
func (e *Error) Error() string {
	if e.protocol {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.code.Name(), e.code.Description())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.cause.Error())
}

// Unwrap returns the cause of a binding failure
func (e *Error) Unwrap() error {
	return e.cause
}

// Result returns the code of a protocol failure,
// the second value is false for binding failures.
func (e *Error) Result() (Result, bool) {
	return e.code, e.protocol
}

// IsProtocol returns true if the library returned a non-OK result
func (e *Error) IsProtocol() bool {
	return e.protocol
}

// ResultOf returns the Result carried by err
func ResultOf(err error) (Result, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Result()
	}
	return 0, false
}

// Is returns true if err is a protocol failure with the code
func Is(err error, code Result) bool {
	r, ok := ResultOf(err)
	return ok && r == code
}

// IsBinding returns true if err is a failure without Result
func IsBinding(err error) bool {
	var e *Error
	return errors.As(err, &e) && !e.protocol
}
