package crypto11

import (
	"crypto"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/miekg/pkcs11"
)

func init() {
	cryptoprov.SetFallbackLoader(LoadProvider)
}

// LoadProvider provides loader for crypto11 provider,
// it serves any manufacturer without a dedicated loader
func LoadProvider(cfg cryptoprov.TokenConfig) (cryptoprov.Provider, error) {
	p, err := Init(cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return p, nil
}

// Ensure compiles
var _ cryptoprov.Provider = (*PKCS11Lib)(nil)
var _ cryptoprov.KeyManager = (*PKCS11Lib)(nil)

// EnumTokens enumerates tokens
func (p11lib *PKCS11Lib) EnumTokens(currentSlotOnly bool) ([]cryptoprov.TokenInfo, error) {
	if currentSlotOnly {
		if p11lib.Slot == nil {
			return nil, errors.New("no token selected")
		}
		return []cryptoprov.TokenInfo{
			{
				SlotID:       p11lib.Slot.id,
				Description:  p11lib.Slot.description,
				Label:        p11lib.Slot.label,
				Manufacturer: p11lib.Slot.manufacturer,
				Model:        p11lib.Slot.model,
				Serial:       p11lib.Slot.serial,
			},
		}, nil
	}

	list, err := p11lib.TokensInfo()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	res := make([]cryptoprov.TokenInfo, len(list))
	for i, ti := range list {
		res[i].SlotID = ti.id
		res[i].Description = ti.description
		res[i].Label = ti.label
		res[i].Manufacturer = ti.manufacturer
		res[i].Model = ti.model
		res[i].Serial = ti.serial
	}
	return res, nil
}

// EnumKeys returns lists of keys on the slot.
// Private keys are listed only if the configured PIN is accepted.
func (p11lib *PKCS11Lib) EnumKeys(slotID uint, prefix string) ([]cryptoprov.KeyInfo, error) {
	var res []cryptoprov.KeyInfo
	err := p11lib.WithSession(slotID, false, func(s *Session) error {
		if err := p11lib.login(s); err != nil {
			logger.Warningf("reason=login, slot=%d, err=[%+v]", slotID, err)
		}

		keys, err := s.FindObjectsByClass(pkcs11.CKO_PRIVATE_KEY)
		if err != nil {
			return err
		}

		res = make([]cryptoprov.KeyInfo, 0, len(keys))
		for _, obj := range keys {
			ki, err := keyInfo(s, obj)
			if err != nil {
				return err
			}
			if prefix != "" && !strings.HasPrefix(ki.Label, prefix) {
				continue
			}
			res = append(res, *ki)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// KeyInfo retrieves info about key with the specified id
func (p11lib *PKCS11Lib) KeyInfo(slotID uint, keyID string, includePublic bool) (*cryptoprov.KeyInfo, error) {
	logger.Tracef("slot=0x%X, id=%q", slotID, keyID)

	var res *cryptoprov.KeyInfo
	err := p11lib.WithSession(slotID, false, func(s *Session) error {
		if err := p11lib.login(s); err != nil {
			return err
		}
		key, err := NewPrivateKey(s, []byte(keyID), "")
		if err != nil {
			return err
		}
		if res, err = keyInfo(s, key.Handle()); err != nil {
			return err
		}
		if includePublic {
			res.PublicKey, err = getPublicKeyPEM(key)
			if err != nil {
				return errors.WithMessagef(err, "reason='failed on GetPublicKey', slotID=%d, keyID=%q", slotID, keyID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// GetKey returns the private key by ID on the current slot.
// The key owns a session logged in with the configured PIN,
// and must be closed.
func (p11lib *PKCS11Lib) GetKey(keyID string) (crypto.PrivateKey, error) {
	if p11lib.Slot == nil {
		return nil, errors.New("no token selected")
	}
	s, err := p11lib.OpenSession(p11lib.Slot.id, false)
	if err != nil {
		return nil, err
	}
	if err = p11lib.login(s); err != nil {
		_ = s.Close()
		return nil, err
	}
	key, err := NewPrivateKey(s, []byte(keyID), "")
	if err != nil {
		_ = s.Close()
		return nil, errors.WithMessagef(err, "reason=GetKey, keyID=%q", keyID)
	}
	key.owned = true
	return key, nil
}

// login logs in as user with the configured PIN,
// or with the protected authentication path if no PIN is configured
func (p11lib *PKCS11Lib) login(s *Session) error {
	pin := ""
	if p11lib.Config != nil {
		pin = p11lib.Config.Pin()
	}
	var err error
	if pin == "" {
		err = s.LoginProtected(UserUser)
	} else {
		err = s.Login(UserUser, pin)
	}
	if ckr.Is(err, ckr.UserAlreadyLoggedIn) {
		return nil
	}
	return err
}

func keyInfo(s *Session, obj cryptoki.ObjectHandle) (*cryptoprov.KeyInfo, error) {
	attributes, err := s.GetAttributes(obj,
		pkcs11.CKA_ID,
		pkcs11.CKA_LABEL,
		pkcs11.CKA_KEY_TYPE,
		pkcs11.CKA_CLASS,
	)
	if err != nil {
		return nil, errors.WithMessagef(err, "GetAttributeValue on key")
	}

	return &cryptoprov.KeyInfo{
		ID:    string(attributes[0].Value),
		Label: string(attributes[1].Value),
		Type:  nameOf(KeyTypeNames, cryptoki.BytesToULong(attributes[2].Value)),
		Class: nameOf(ObjectClassNames, cryptoki.BytesToULong(attributes[3].Value)),
	}, nil
}
