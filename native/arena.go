package native

import (
	"runtime"
	"unsafe"
)

// Arena owns the memory passed to the library during one call.
// Buffers are pinned until Free, which also wipes their content.
type Arena struct {
	pinner runtime.Pinner
	bufs   [][]byte
}

// Alloc returns a zeroed buffer of n bytes and its address.
// For n <= 0 it returns a nil buffer and a null address.
func (a *Arena) Alloc(n int) ([]byte, uintptr) {
	if n <= 0 {
		return nil, 0
	}
	b := make([]byte, n)
	a.pinner.Pin(&b[0])
	a.bufs = append(a.bufs, b)
	return b, uintptr(unsafe.Pointer(&b[0]))
}

// Copy returns the address of a pinned copy of data.
// A nil slice maps to a null address, an empty one to a valid address.
func (a *Arena) Copy(data []byte) uintptr {
	if data == nil {
		return 0
	}
	n := len(data)
	if n == 0 {
		n = 1
	}
	b, addr := a.Alloc(n)
	copy(b, data)
	return addr
}

// Free wipes and releases all buffers of the arena
func (a *Arena) Free() {
	for _, b := range a.bufs {
		clear(b)
	}
	a.bufs = nil
	a.pinner.Unpin()
}

// Memory returns the n bytes at addr
func Memory(addr uintptr, n int) []byte {
	if addr == 0 || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
