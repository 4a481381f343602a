package cryptoki

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/native"
)

// DefaultAttributeBufferSize is the per-attribute buffer of GetAttributeValueFixed
const DefaultAttributeBufferSize = 2000

// marshalTemplate writes the CK_ATTRIBUTE array of the template.
// An attribute without value is written with a null pointer and zero length.
func (c *Ctx) marshalTemplate(a *native.Arena, attrs []*Attribute) (uintptr, uintptr) {
	if len(attrs) == 0 {
		return 0, 0
	}
	arr, addr := a.Alloc(c.cat.Sizeof(ckabi.CKAttribute) * len(attrs))
	for i, attr := range attrs {
		v := c.cat.Element(ckabi.CKAttribute, arr, i)
		v.SetULong("type", uint64(attr.Type))
		v.SetPointer("pValue", a.Copy(attr.Value))
		v.SetULong("ulValueLen", uint64(len(attr.Value)))
	}
	return addr, uintptr(len(attrs))
}

// marshalMechanism writes CK_MECHANISM
func (c *Ctx) marshalMechanism(a *native.Arena, m *Mechanism) uintptr {
	buf, addr := a.Alloc(c.cat.Sizeof(ckabi.CKMechanism))
	v, _ := c.cat.View(ckabi.CKMechanism, buf)
	v.SetULong("mechanism", uint64(m.Mechanism))
	v.SetPointer("pParameter", a.Copy(m.Parameter))
	v.SetULong("ulParameterLen", uint64(len(m.Parameter)))
	return addr
}

// FindObjectsInit starts a search for objects matching the template
func (c *Ctx) FindObjectsInit(sh SessionHandle, template []*Attribute) error {
	var a native.Arena
	defer a.Free()

	addr, count := c.marshalTemplate(&a, template)
	return c.call(FnFindObjectsInit, uintptr(sh), addr, count)
}

// FindObjects continues the search, returning up to max handles.
// A result shorter than max means the search is exhausted.
func (c *Ctx) FindObjects(sh SessionHandle, max int) ([]ObjectHandle, error) {
	if max <= 0 {
		return nil, errors.Errorf("invalid max objects: %d", max)
	}

	var a native.Arena
	defer a.Free()

	ul := c.cat.ULongSize()
	list, listAddr := a.Alloc(max * ul)
	count, countAddr := a.Alloc(ul)
	if err := c.call(FnFindObjects, uintptr(sh), listAddr, uintptr(max), countAddr); err != nil {
		return nil, err
	}

	n := int(c.cat.ULong(count))
	if n > max {
		return nil, ckr.NewBindingError(FnFindObjects, errors.Wrapf(ckr.ErrBadLength, "%d objects, buffer for %d", n, max))
	}
	handles := make([]ObjectHandle, n)
	for i := range handles {
		handles[i] = ObjectHandle(c.cat.ULong(list[i*ul:]))
	}
	return handles, nil
}

// FindObjectsFinal terminates the search
func (c *Ctx) FindObjectsFinal(sh SessionHandle) error {
	return c.call(FnFindObjectsFinal, uintptr(sh))
}

// GetAttributeValue reads the values of the requested attribute types.
// The lengths are probed first with null pointers, then the values are
// read into buffers of exactly the reported lengths.
func (c *Ctx) GetAttributeValue(sh SessionHandle, o ObjectHandle, types []uint) ([]*Attribute, error) {
	if len(types) == 0 {
		return []*Attribute{}, nil
	}

	var a native.Arena
	defer a.Free()

	arr, addr := a.Alloc(c.cat.Sizeof(ckabi.CKAttribute) * len(types))
	for i, t := range types {
		c.cat.Element(ckabi.CKAttribute, arr, i).SetULong("type", uint64(t))
	}

	if err := c.call(FnGetAttributeValue, uintptr(sh), uintptr(o), addr, uintptr(len(types))); err != nil {
		return nil, err
	}

	unavailable := c.cat.UnavailableInformation()
	lens := make([]int, len(types))
	bufs := make([][]byte, len(types))
	for i, t := range types {
		v := c.cat.Element(ckabi.CKAttribute, arr, i)
		l := v.ULong("ulValueLen")
		if l == unavailable {
			return nil, ckr.NewBindingError(FnGetAttributeValue, errors.Wrapf(ckr.ErrBadLength, "attribute 0x%X is unavailable", t))
		}
		lens[i] = int(l)
		var p uintptr
		bufs[i], p = a.Alloc(lens[i])
		v.SetPointer("pValue", p)
	}

	if err := c.call(FnGetAttributeValue, uintptr(sh), uintptr(o), addr, uintptr(len(types))); err != nil {
		return nil, err
	}

	return c.readTemplate(arr, types, lens, bufs)
}

// GetAttributeValueFixed reads the attributes into buffers of size bytes,
// skipping the length probe. If size is zero, DefaultAttributeBufferSize is used.
// A value that does not fit fails the call, nothing is truncated.
func (c *Ctx) GetAttributeValueFixed(sh SessionHandle, o ObjectHandle, types []uint, size int) ([]*Attribute, error) {
	if size == 0 {
		size = DefaultAttributeBufferSize
	}
	if size < 0 {
		return nil, errors.Errorf("invalid buffer size: %d", size)
	}
	if len(types) == 0 {
		return []*Attribute{}, nil
	}

	var a native.Arena
	defer a.Free()

	arr, addr := a.Alloc(c.cat.Sizeof(ckabi.CKAttribute) * len(types))
	lens := make([]int, len(types))
	bufs := make([][]byte, len(types))
	for i, t := range types {
		v := c.cat.Element(ckabi.CKAttribute, arr, i)
		var p uintptr
		bufs[i], p = a.Alloc(size)
		lens[i] = size
		v.SetULong("type", uint64(t))
		v.SetPointer("pValue", p)
		v.SetULong("ulValueLen", uint64(size))
	}

	if err := c.call(FnGetAttributeValue, uintptr(sh), uintptr(o), addr, uintptr(len(types))); err != nil {
		return nil, err
	}
	return c.readTemplate(arr, types, lens, bufs)
}

// readTemplate copies the values out of the arena buffers,
// truncated to the lengths reported by the library
func (c *Ctx) readTemplate(arr []byte, types []uint, lens []int, bufs [][]byte) ([]*Attribute, error) {
	attrs := make([]*Attribute, len(types))
	for i, t := range types {
		v := c.cat.Element(ckabi.CKAttribute, arr, i)
		l := v.ULong("ulValueLen")
		if l == c.cat.UnavailableInformation() || l > uint64(lens[i]) {
			return nil, ckr.NewBindingError(FnGetAttributeValue,
				errors.Wrapf(ckr.ErrBadLength, "attribute 0x%X: reported %d bytes, buffer of %d", t, l, lens[i]))
		}
		val := make([]byte, int(l))
		copy(val, bufs[i])
		attrs[i] = &Attribute{Type: t, Value: val}
	}
	return attrs, nil
}

// GetObjectSize returns the size of the object in bytes
func (c *Ctx) GetObjectSize(sh SessionHandle, o ObjectHandle) (uint, error) {
	var a native.Arena
	defer a.Free()

	size, addr := a.Alloc(c.cat.ULongSize())
	if err := c.call(FnGetObjectSize, uintptr(sh), uintptr(o), addr); err != nil {
		return 0, err
	}
	return uint(c.cat.ULong(size)), nil
}
