// Package native loads a PKCS#11 shared library and invokes its exported
// functions with raw machine-word arguments.
//
// Arguments are prepared by the caller according to the layout catalog of the
// platform; this package only resolves symbols, performs the call and
// manages the lifetime of the memory passed to the library.
package native

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cryptoki", "native")

// DefaultLibraryName is the name of the middleware when none is configured
const DefaultLibraryName = "cryptoki"

// MaxArgs is the maximum number of arguments supported by Proc
const MaxArgs = 6

// Proc is an exported function of the loaded library
type Proc interface {
	// Call invokes the function, returning the value of the result register
	Call(args ...uintptr) uintptr
}

// ProcFunc adapts a Go function to Proc
type ProcFunc func(args ...uintptr) uintptr

// Call invokes f
func (f ProcFunc) Call(args ...uintptr) uintptr {
	return f(args...)
}

// Library is a loaded PKCS#11 middleware
type Library interface {
	// Name returns the name the library was loaded with
	Name() string
	// Lookup returns the exported function,
	// or an error wrapping ckr.ErrSymbolNotFound
	Lookup(name string) (Proc, error)
	// Close unloads the library
	Close() error
}

// LibraryFileName returns the file name of the shared library for the OS.
// Names containing a path separator or an extension are returned as is.
func LibraryFileName(goos, name string) string {
	if name == "" {
		name = DefaultLibraryName
	}
	if strings.ContainsAny(name, `/\`) || filepath.Ext(name) != "" {
		return name
	}
	switch goos {
	case "windows":
		return name + ".dll"
	case "darwin":
		return "lib" + name + ".dylib"
	default:
		return "lib" + name + ".so"
	}
}

// Open loads the library by name or path
func Open(name string) (Library, error) {
	file := LibraryFileName(runtime.GOOS, name)
	logger.KV(xlog.DEBUG, "library", name, "file", file)

	lib, err := open(file)
	if err != nil {
		return nil, err
	}
	return lib, nil
}

// Invoke calls the function and recovers from a fault raised during the call.
// A recovered fault is reported as a binding failure.
func Invoke(name string, p Proc, args ...uintptr) (rv uint64, err error) {
	if len(args) > MaxArgs {
		return 0, ckr.NewBindingError(name, errors.Wrapf(ckr.ErrNativeFault, "too many arguments: %d", len(args)))
	}
	defer func() {
		if r := recover(); r != nil {
			logger.KV(xlog.ERROR, "func", name, "reason", "fault", "err", r)
			err = ckr.NewBindingError(name, errors.Wrapf(ckr.ErrNativeFault, "%v", r))
		}
	}()
	return uint64(p.Call(args...)), nil
}
