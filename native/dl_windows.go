//go:build windows

package native

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
	"golang.org/x/sys/windows"
)

type winLibrary struct {
	name string
	dll  *windows.DLL
}

type winProc struct {
	proc *windows.Proc
}

func open(file string) (Library, error) {
	dll, err := windows.LoadDLL(file)
	if err != nil {
		return nil, errors.Wrapf(ckr.ErrLibraryLoad, "%s: %v", file, err)
	}
	return &winLibrary{name: file, dll: dll}, nil
}

func (l *winLibrary) Name() string {
	return l.name
}

func (l *winLibrary) Lookup(name string) (Proc, error) {
	p, err := l.dll.FindProc(name)
	if err != nil {
		return nil, errors.Wrapf(ckr.ErrSymbolNotFound, "%s in %s", name, l.name)
	}
	return &winProc{proc: p}, nil
}

func (l *winLibrary) Close() error {
	if l.dll == nil {
		return nil
	}
	err := l.dll.Release()
	l.dll = nil
	return errors.WithStack(err)
}

func (p *winProc) Call(args ...uintptr) uintptr {
	r1, _, _ := p.proc.Call(args...)
	return r1
}
