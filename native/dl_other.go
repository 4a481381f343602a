//go:build !windows && !(cgo && (linux || darwin || freebsd))

package native

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
)

func open(file string) (Library, error) {
	return nil, errors.Wrapf(ckr.ErrLibraryLoad, "%s: dynamic loading is not available on %s/%s without cgo",
		file, runtime.GOOS, runtime.GOARCH)
}
