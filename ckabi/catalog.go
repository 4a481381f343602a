package ckabi

import (
	"encoding/binary"
	"sort"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cryptoki", "ckabi")

// Names of the native structures described by a Catalog
const (
	CKVersion     = "CK_VERSION"
	CKInfo        = "CK_INFO"
	CKSlotInfo    = "CK_SLOT_INFO"
	CKTokenInfo   = "CK_TOKEN_INFO"
	CKSessionInfo = "CK_SESSION_INFO"
	CKAttribute   = "CK_ATTRIBUTE"
	CKMechanism   = "CK_MECHANISM"
)

type kind int

const (
	kindBytes kind = iota
	kindULong
	kindPointer
	kindStruct
)

type fieldDecl struct {
	name  string
	kind  kind
	count int
	ref   string
}

type structDecl struct {
	name   string
	fields []fieldDecl
}

func bytesField(name string, n int) fieldDecl { return fieldDecl{name: name, kind: kindBytes, count: n} }
func ulongField(name string) fieldDecl        { return fieldDecl{name: name, kind: kindULong} }
func pointerField(name string) fieldDecl      { return fieldDecl{name: name, kind: kindPointer} }
func structField(name, ref string) fieldDecl  { return fieldDecl{name: name, kind: kindStruct, ref: ref} }

// declarations follow pkcs11t.h, referenced structures must be declared first
var declarations = []structDecl{
	{
		name: CKVersion,
		fields: []fieldDecl{
			bytesField("major", 1),
			bytesField("minor", 1),
		},
	},
	{
		name: CKInfo,
		fields: []fieldDecl{
			structField("cryptokiVersion", CKVersion),
			bytesField("manufacturerID", 32),
			ulongField("flags"),
			bytesField("libraryDescription", 32),
			structField("libraryVersion", CKVersion),
		},
	},
	{
		name: CKSlotInfo,
		fields: []fieldDecl{
			bytesField("slotDescription", 64),
			bytesField("manufacturerID", 32),
			ulongField("flags"),
			structField("hardwareVersion", CKVersion),
			structField("firmwareVersion", CKVersion),
		},
	},
	{
		name: CKTokenInfo,
		fields: []fieldDecl{
			bytesField("label", 32),
			bytesField("manufacturerID", 32),
			bytesField("model", 16),
			bytesField("serialNumber", 16),
			ulongField("flags"),
			ulongField("ulMaxSessionCount"),
			ulongField("ulSessionCount"),
			ulongField("ulMaxRwSessionCount"),
			ulongField("ulRwSessionCount"),
			ulongField("ulMaxPinLen"),
			ulongField("ulMinPinLen"),
			ulongField("ulTotalPublicMemory"),
			ulongField("ulFreePublicMemory"),
			ulongField("ulTotalPrivateMemory"),
			ulongField("ulFreePrivateMemory"),
			structField("hardwareVersion", CKVersion),
			structField("firmwareVersion", CKVersion),
			bytesField("utcTime", 16),
		},
	},
	{
		name: CKSessionInfo,
		fields: []fieldDecl{
			ulongField("slotID"),
			ulongField("state"),
			ulongField("flags"),
			ulongField("ulDeviceError"),
		},
	},
	{
		name: CKAttribute,
		fields: []fieldDecl{
			ulongField("type"),
			pointerField("pValue"),
			ulongField("ulValueLen"),
		},
	},
	{
		name: CKMechanism,
		fields: []fieldDecl{
			ulongField("mechanism"),
			pointerField("pParameter"),
			ulongField("ulParameterLen"),
		},
	},
}

// Field describes a member of a native structure
type Field struct {
	Name   string
	Offset int
	Size   int
	// Layout is set for embedded structures
	Layout *Struct
}

// Struct describes the byte layout of a native structure
type Struct struct {
	Name   string
	Size   int
	Align  int
	Fields []Field

	index map[string]int
}

// Field returns a member by name
func (s *Struct) Field(name string) (Field, bool) {
	i, ok := s.index[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// MustField returns a member by name, and panics if it does not exist
func (s *Struct) MustField(name string) Field {
	f, ok := s.Field(name)
	if !ok {
		logger.Panicf("struct=%s, field=%q, reason=not_found", s.Name, name)
	}
	return f
}

// Offset returns the byte offset of a member
func (s *Struct) Offset(name string) int {
	return s.MustField(name).Offset
}

// Catalog describes all native structures for one ABI
type Catalog struct {
	name    string
	packed  bool
	ulong   int
	pointer int
	structs map[string]*Struct
}

// Name of the catalog
func (c *Catalog) Name() string {
	return c.name
}

// IsPacked returns true for the 1-byte packed ABI
func (c *Catalog) IsPacked() bool {
	return c.packed
}

// ULongSize returns the width of CK_ULONG in bytes
func (c *Catalog) ULongSize() int {
	return c.ulong
}

// PointerSize returns the width of a pointer in bytes
func (c *Catalog) PointerSize() int {
	return c.pointer
}

// Struct returns a structure layout by name, or nil
func (c *Catalog) Struct(name string) *Struct {
	return c.structs[name]
}

// MustStruct returns a structure layout by name, and panics if it does not exist
func (c *Catalog) MustStruct(name string) *Struct {
	s := c.structs[name]
	if s == nil {
		logger.Panicf("catalog=%s, struct=%q, reason=not_found", c.name, name)
	}
	return s
}

// Sizeof returns the size of the structure
func (c *Catalog) Sizeof(name string) int {
	return c.MustStruct(name).Size
}

// Names returns the names of described structures
func (c *Catalog) Names() []string {
	list := make([]string, 0, len(c.structs))
	for n := range c.structs {
		list = append(list, n)
	}
	sort.Strings(list)
	return list
}

// UnavailableInformation returns CK_UNAVAILABLE_INFORMATION for the ABI
func (c *Catalog) UnavailableInformation() uint64 {
	if c.ulong == 4 {
		return 0xFFFFFFFF
	}
	return ^uint64(0)
}

// PutULong encodes CK_ULONG
func (c *Catalog) PutULong(b []byte, v uint64) {
	if c.ulong == 4 {
		binary.LittleEndian.PutUint32(b, uint32(v))
		return
	}
	binary.LittleEndian.PutUint64(b, v)
}

// ULong decodes CK_ULONG
func (c *Catalog) ULong(b []byte) uint64 {
	if c.ulong == 4 {
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return binary.LittleEndian.Uint64(b)
}

// ULongBytes returns encoded CK_ULONG
func (c *Catalog) ULongBytes(v uint64) []byte {
	b := make([]byte, c.ulong)
	c.PutULong(b, v)
	return b
}

// PutPointer encodes a native pointer
func (c *Catalog) PutPointer(b []byte, p uintptr) {
	binary.LittleEndian.PutUint64(b, uint64(p))
}

// Pointer decodes a native pointer
func (c *Catalog) Pointer(b []byte) uintptr {
	return uintptr(binary.LittleEndian.Uint64(b))
}

func alignUp(off, align int) int {
	return (off + align - 1) / align * align
}

func newCatalog(name string, packed bool, ulong, pointer int) *Catalog {
	c := &Catalog{
		name:    name,
		packed:  packed,
		ulong:   ulong,
		pointer: pointer,
		structs: make(map[string]*Struct, len(declarations)),
	}

	for _, d := range declarations {
		s := &Struct{
			Name:   d.name,
			Fields: make([]Field, 0, len(d.fields)),
			index:  make(map[string]int, len(d.fields)),
		}

		off, maxAlign := 0, 1
		for _, fd := range d.fields {
			var size, align int
			var ref *Struct
			switch fd.kind {
			case kindBytes:
				size, align = fd.count, 1
			case kindULong:
				size, align = ulong, ulong
			case kindPointer:
				size, align = pointer, pointer
			case kindStruct:
				ref = c.MustStruct(fd.ref)
				size, align = ref.Size, ref.Align
			}
			if packed {
				align = 1
			}
			off = alignUp(off, align)
			s.index[fd.name] = len(s.Fields)
			s.Fields = append(s.Fields, Field{
				Name:   fd.name,
				Offset: off,
				Size:   size,
				Layout: ref,
			})
			off += size
			if align > maxAlign {
				maxAlign = align
			}
		}
		s.Align = maxAlign
		s.Size = alignUp(off, maxAlign)
		c.structs[d.name] = s
	}

	return c
}

var (
	alignedCatalog = newCatalog("aligned", false, 8, 8)
	packedCatalog  = newCatalog("packed", true, 4, 8)
)

// Aligned returns the catalog for LP64 platforms:
// natural alignment, 8-byte CK_ULONG
func Aligned() *Catalog {
	return alignedCatalog
}

// Packed returns the catalog for 64-bit Windows:
// 1-byte packing, 4-byte CK_ULONG
func Packed() *Catalog {
	return packedCatalog
}
