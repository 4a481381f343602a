//go:build cgo && (linux || darwin || freebsd)

package native

/*
#cgo linux LDFLAGS: -ldl
#include <dlfcn.h>
#include <stdint.h>
#include <stdlib.h>

typedef uintptr_t (*ck_fn)(uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t, uintptr_t);

static uintptr_t ck_call(void *fn, uintptr_t a0, uintptr_t a1, uintptr_t a2, uintptr_t a3, uintptr_t a4, uintptr_t a5) {
	return ((ck_fn)fn)(a0, a1, a2, a3, a4, a5);
}
*/
import "C"

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
)

type dlLibrary struct {
	name   string
	handle unsafe.Pointer
}

type dlProc struct {
	fn unsafe.Pointer
}

func open(file string) (Library, error) {
	cs := C.CString(file)
	defer C.free(unsafe.Pointer(cs))

	h := C.dlopen(cs, C.RTLD_NOW|C.RTLD_LOCAL)
	if h == nil {
		return nil, errors.Wrapf(ckr.ErrLibraryLoad, "%s: %s", file, C.GoString(C.dlerror()))
	}
	return &dlLibrary{name: file, handle: h}, nil
}

func (l *dlLibrary) Name() string {
	return l.name
}

func (l *dlLibrary) Lookup(name string) (Proc, error) {
	cs := C.CString(name)
	defer C.free(unsafe.Pointer(cs))

	fn := C.dlsym(l.handle, cs)
	if fn == nil {
		return nil, errors.Wrapf(ckr.ErrSymbolNotFound, "%s in %s", name, l.name)
	}
	return &dlProc{fn: fn}, nil
}

func (l *dlLibrary) Close() error {
	if l.handle == nil {
		return nil
	}
	if C.dlclose(l.handle) != 0 {
		return errors.Errorf("dlclose %s: %s", l.name, C.GoString(C.dlerror()))
	}
	l.handle = nil
	return nil
}

// Call passes up to six machine words; unused ones are zero
// and ignored by the callee on supported 64-bit ABIs.
func (p *dlProc) Call(args ...uintptr) uintptr {
	var a [MaxArgs]uintptr
	copy(a[:], args)
	return uintptr(C.ck_call(p.fn,
		C.uintptr_t(a[0]), C.uintptr_t(a[1]), C.uintptr_t(a[2]),
		C.uintptr_t(a[3]), C.uintptr_t(a[4]), C.uintptr_t(a[5])))
}
