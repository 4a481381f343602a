package softtoken

import (
	"bytes"

	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/native"
	"github.com/miekg/pkcs11"
)

type findOp struct {
	handles []uint
}

type templateAttr struct {
	typ   uint
	value []byte
	// set if the value pointer is not null
	present bool
}

// readTemplate decodes the CK_ATTRIBUTE array of the caller
func (l *Library) readTemplate(addr uintptr, count uintptr) ([]templateAttr, ckr.Result) {
	if count == 0 {
		return nil, ckr.OK
	}
	if addr == 0 {
		return nil, ckr.ArgumentsBad
	}
	size := l.cat.Sizeof(ckabi.CKAttribute)
	arr := native.Memory(addr, size*int(count))
	list := make([]templateAttr, count)
	for i := range list {
		v := l.cat.Element(ckabi.CKAttribute, arr, i)
		p := v.Pointer("pValue")
		list[i] = templateAttr{
			typ:     uint(v.ULong("type")),
			value:   bytesAt(p, v.ULong("ulValueLen")),
			present: p != 0,
		}
	}
	return list, ckr.OK
}

// visible returns true if the object is accessible in the session
func (s *session) visible(o *object) bool {
	return !o.bool(pkcs11.CKA_PRIVATE) || s.token.loggedIn == pkcs11.CKU_USER
}

func (s *session) object(h uintptr) (*object, ckr.Result) {
	for _, o := range s.token.objects {
		if o.handle == uint(h) {
			if !s.visible(o) {
				return nil, ckr.ObjectHandleInvalid
			}
			return o, ckr.OK
		}
	}
	return nil, ckr.ObjectHandleInvalid
}

func (l *Library) matches(o *object, template []templateAttr) bool {
	for _, a := range template {
		val, ok := o.value(l.cat, a.typ)
		if !ok {
			return false
		}
		if a.present && !bytes.Equal(val, a.value) {
			return false
		}
	}
	return true
}

func (l *Library) findObjectsInit(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.find != nil {
		return ckr.OperationActive
	}
	template, rv := l.readTemplate(args[1], args[2])
	if rv != ckr.OK {
		return rv
	}

	op := &findOp{}
	for _, o := range s.token.objects {
		if s.visible(o) && l.matches(o, template) {
			op.handles = append(op.handles, o.handle)
		}
	}
	s.find = op
	return ckr.OK
}

func (l *Library) findObjects(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.find == nil {
		return ckr.OperationNotInitialized
	}
	list, max, count := args[1], int(args[2]), args[3]
	if count == 0 || (list == 0 && max > 0) {
		return ckr.ArgumentsBad
	}

	n := min(max, len(s.find.handles))
	ul := uintptr(l.cat.ULongSize())
	for i := 0; i < n; i++ {
		l.putULong(list+uintptr(i)*ul, uint64(s.find.handles[i]))
	}
	s.find.handles = s.find.handles[n:]
	l.putULong(count, uint64(n))
	return ckr.OK
}

func (l *Library) findObjectsFinal(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.find == nil {
		return ckr.OperationNotInitialized
	}
	s.find = nil
	return ckr.OK
}

func (l *Library) getAttributeValue(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	o, rv := s.object(args[1])
	if rv != ckr.OK {
		return rv
	}
	if args[2] == 0 && args[3] > 0 {
		return ckr.ArgumentsBad
	}

	unavailable := l.cat.UnavailableInformation()
	arr := native.Memory(args[2], l.cat.Sizeof(ckabi.CKAttribute)*int(args[3]))
	result := ckr.OK
	for i := 0; i < int(args[3]); i++ {
		v := l.cat.Element(ckabi.CKAttribute, arr, i)
		typ := uint(v.ULong("type"))

		if o.isSensitive(typ) {
			v.SetULong("ulValueLen", unavailable)
			result = ckr.AttributeSensitive
			continue
		}
		val, ok := o.value(l.cat, typ)
		if !ok {
			v.SetULong("ulValueLen", unavailable)
			result = ckr.AttributeTypeInvalid
			continue
		}

		p := v.Pointer("pValue")
		switch {
		case p == 0:
			v.SetULong("ulValueLen", uint64(len(val)))
		case v.ULong("ulValueLen") < uint64(len(val)):
			v.SetULong("ulValueLen", unavailable)
			result = ckr.BufferTooSmall
		default:
			copy(native.Memory(p, len(val)), val)
			v.SetULong("ulValueLen", uint64(len(val)))
		}
	}
	return result
}

func (l *Library) getObjectSize(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	o, rv := s.object(args[1])
	if rv != ckr.OK {
		return rv
	}
	if args[2] == 0 {
		return ckr.ArgumentsBad
	}
	var size uint64
	for typ := range o.attrs {
		val, _ := o.value(l.cat, typ)
		size += uint64(len(val))
	}
	l.putULong(args[2], size)
	return ckr.OK
}
