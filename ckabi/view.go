package ckabi

import (
	"github.com/cockroachdb/errors"
)

// View provides typed access to a native structure stored in a byte buffer
type View struct {
	cat *Catalog
	s   *Struct
	b   []byte
}

// New returns a View over a zeroed buffer for the structure
func (c *Catalog) New(name string) View {
	s := c.MustStruct(name)
	return View{cat: c, s: s, b: make([]byte, s.Size)}
}

// View returns a View over b, which must be at least the size of the structure
func (c *Catalog) View(name string, b []byte) (View, error) {
	s := c.MustStruct(name)
	if len(b) < s.Size {
		return View{}, errors.Errorf("%s: buffer of %d bytes, expected %d", name, len(b), s.Size)
	}
	return View{cat: c, s: s, b: b[:s.Size]}, nil
}

// NewArray returns a zeroed buffer for n consecutive structures
func (c *Catalog) NewArray(name string, n int) []byte {
	return make([]byte, c.Sizeof(name)*n)
}

// Element returns a View of i-th structure in the array buffer
func (c *Catalog) Element(name string, array []byte, i int) View {
	s := c.MustStruct(name)
	off := i * s.Size
	return View{cat: c, s: s, b: array[off : off+s.Size]}
}

// Bytes returns the underlying buffer
func (v View) Bytes() []byte {
	return v.b
}

// Struct returns the layout of the view
func (v View) Struct() *Struct {
	return v.s
}

// Catalog returns the catalog of the view
func (v View) Catalog() *Catalog {
	return v.cat
}

// Raw returns the bytes of the field
func (v View) Raw(name string) []byte {
	f := v.s.MustField(name)
	return v.b[f.Offset : f.Offset+f.Size]
}

// Sub returns a View of an embedded structure
func (v View) Sub(name string) View {
	f := v.s.MustField(name)
	if f.Layout == nil {
		logger.Panicf("struct=%s, field=%q, reason=not_struct", v.s.Name, name)
	}
	return View{cat: v.cat, s: f.Layout, b: v.b[f.Offset : f.Offset+f.Size]}
}

// ULong returns the CK_ULONG field
func (v View) ULong(name string) uint64 {
	return v.cat.ULong(v.Raw(name))
}

// SetULong sets the CK_ULONG field
func (v View) SetULong(name string, val uint64) {
	v.cat.PutULong(v.Raw(name), val)
}

// Pointer returns the pointer field
func (v View) Pointer(name string) uintptr {
	return v.cat.Pointer(v.Raw(name))
}

// SetPointer sets the pointer field
func (v View) SetPointer(name string, p uintptr) {
	v.cat.PutPointer(v.Raw(name), p)
}

// Byte returns a single byte field
func (v View) Byte(name string) byte {
	return v.Raw(name)[0]
}

// SetByte sets a single byte field
func (v View) SetByte(name string, b byte) {
	v.Raw(name)[0] = b
}

// Text returns fixed-width character field as is, including padding
func (v View) Text(name string) string {
	return string(v.Raw(name))
}

// SetText sets fixed-width character field, padded with blanks.
// Longer values are truncated.
func (v View) SetText(name, s string) {
	raw := v.Raw(name)
	n := copy(raw, s)
	for i := n; i < len(raw); i++ {
		raw[i] = ' '
	}
}

// Version returns major and minor of CK_VERSION field
func (v View) Version(name string) (major, minor byte) {
	ver := v.Sub(name)
	return ver.Byte("major"), ver.Byte("minor")
}

// SetVersion sets CK_VERSION field
func (v View) SetVersion(name string, major, minor byte) {
	ver := v.Sub(name)
	ver.SetByte("major", major)
	ver.SetByte("minor", minor)
}
