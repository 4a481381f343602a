package crypto11

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/miekg/pkcs11"
)

// Batch sizes of object search
const (
	DefaultFindBatch = 10
	MaxFindBatch     = 1000
)

// FindObjects returns all objects matching the template.
//
// The objects are fetched in batches until a batch is shorter than
// the batch size. A zero batch selects DefaultFindBatch.
// The search is finalized whenever it was initialized.
func (s *Session) FindObjects(template []*cryptoki.Attribute, batch int) (handles []cryptoki.ObjectHandle, err error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if batch == 0 {
		batch = DefaultFindBatch
	}
	if batch < 0 || batch > MaxFindBatch {
		return nil, errors.Errorf("invalid batch size: %d", batch)
	}

	ctx := s.lib.Ctx
	if err = ctx.FindObjectsInit(s.Handle, template); err != nil {
		return nil, errors.WithMessage(err, "FindObjectsInit")
	}
	defer func() {
		if ferr := ctx.FindObjectsFinal(s.Handle); ferr != nil {
			logger.Warningf("reason=FindObjectsFinal, slot=%d, err=[%+v]", s.SlotID, ferr)
			if err == nil {
				handles, err = nil, errors.WithMessage(ferr, "FindObjectsFinal")
			}
		}
	}()

	for {
		list, err := ctx.FindObjects(s.Handle, batch)
		if err != nil {
			return nil, errors.WithMessage(err, "FindObjects")
		}
		handles = append(handles, list...)
		if len(list) < batch {
			break
		}
	}

	logger.Tracef("slot=%d, template=%d, found=%d", s.SlotID, len(template), len(handles))
	return handles, nil
}

// FindObjectsByClass returns objects of the class, matching the attributes
func (s *Session) FindObjectsByClass(class uint, attrs ...*cryptoki.Attribute) ([]cryptoki.ObjectHandle, error) {
	template := append([]*cryptoki.Attribute{
		s.lib.Ctx.NewAttribute(pkcs11.CKA_CLASS, class),
	}, attrs...)
	return s.FindObjects(template, s.lib.findBatch)
}

// GetAttributes returns values of the object attributes,
// in the order of types
func (s *Session) GetAttributes(o cryptoki.ObjectHandle, types ...uint) ([]*cryptoki.Attribute, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	attrs, err := s.lib.Ctx.GetAttributeValue(s.Handle, o, types)
	if err != nil {
		return nil, errors.WithMessagef(err, "GetAttributeValue on object %d", o)
	}
	return attrs, nil
}

// GetAttribute returns value of the object attribute
func (s *Session) GetAttribute(o cryptoki.ObjectHandle, typ uint) ([]byte, error) {
	attrs, err := s.GetAttributes(o, typ)
	if err != nil {
		return nil, err
	}
	return attrs[0].Value, nil
}
