package ckabi

import (
	"runtime"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/xlog"
)

// 64-bit little-endian architectures
var supportedArch = map[string]bool{
	"amd64":   true,
	"arm64":   true,
	"ppc64le": true,
	"riscv64": true,
	"loong64": true,
}

// Detect returns the catalog for the target platform.
// Windows uses packed structures with 32-bit CK_ULONG,
// Unix systems use natural alignment with 64-bit CK_ULONG.
func Detect(goos, goarch string) (*Catalog, error) {
	if !supportedArch[goarch] {
		return nil, errors.Wrapf(ckr.ErrUnsupportedPlatform, "architecture %s/%s", goos, goarch)
	}
	switch goos {
	case "windows":
		return Packed(), nil
	case "linux", "darwin", "freebsd":
		return Aligned(), nil
	}
	return nil, errors.Wrapf(ckr.ErrUnsupportedPlatform, "operating system %s/%s", goos, goarch)
}

var (
	platformOnce    sync.Once
	platformCatalog *Catalog
	platformErr     error
)

// ForPlatform returns the catalog of the running process,
// decided once per process lifetime.
func ForPlatform() (*Catalog, error) {
	platformOnce.Do(func() {
		platformCatalog, platformErr = Detect(runtime.GOOS, runtime.GOARCH)
		if platformErr == nil {
			logger.KV(xlog.DEBUG, "catalog", platformCatalog.Name(), "os", runtime.GOOS, "arch", runtime.GOARCH)
		}
	})
	return platformCatalog, platformErr
}
