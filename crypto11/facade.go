package crypto11

import (
	"crypto/x509"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/certutil"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
)

// SlotInfo describes a slot
type SlotInfo struct {
	ID              uint
	Description     string
	Manufacturer    string
	Flags           uint
	HardwareVersion string
	FirmwareVersion string
}

// TokenPresent returns true if a token is present in the slot
func (si *SlotInfo) TokenPresent() bool {
	return si.Flags&pkcs11.CKF_TOKEN_PRESENT != 0
}

// RemovableDevice returns true if the reader supports removable devices
func (si *SlotInfo) RemovableDevice() bool {
	return si.Flags&pkcs11.CKF_REMOVABLE_DEVICE != 0
}

// HardwareSlot returns true if the slot is a hardware slot
func (si *SlotInfo) HardwareSlot() bool {
	return si.Flags&pkcs11.CKF_HW_SLOT != 0
}

// TokenInfo describes a token, text fields are trimmed
type TokenInfo struct {
	SlotID             uint
	Label              string
	Manufacturer       string
	Model              string
	SerialNumber       string
	Flags              uint
	MaxSessionCount    uint
	SessionCount       uint
	MaxRwSessionCount  uint
	RwSessionCount     uint
	MaxPinLen          uint
	MinPinLen          uint
	TotalPublicMemory  uint
	FreePublicMemory   uint
	TotalPrivateMemory uint
	FreePrivateMemory  uint
	HardwareVersion    string
	FirmwareVersion    string
	UTCTime            string
}

func (ti *TokenInfo) has(flag uint) bool {
	return ti.Flags&flag != 0
}

// UserPinLocked returns true if the user PIN is locked
func (ti *TokenInfo) UserPinLocked() bool { return ti.has(pkcs11.CKF_USER_PIN_LOCKED) }

// UserPinFinalTry returns true if the next wrong user PIN locks it
func (ti *TokenInfo) UserPinFinalTry() bool { return ti.has(pkcs11.CKF_USER_PIN_FINAL_TRY) }

// UserPinCountLow returns true if a wrong user PIN was entered
func (ti *TokenInfo) UserPinCountLow() bool { return ti.has(pkcs11.CKF_USER_PIN_COUNT_LOW) }

// UserPinInitialized returns true if the user PIN is set
func (ti *TokenInfo) UserPinInitialized() bool { return ti.has(pkcs11.CKF_USER_PIN_INITIALIZED) }

// SOPinLocked returns true if the SO PIN is locked
func (ti *TokenInfo) SOPinLocked() bool { return ti.has(pkcs11.CKF_SO_PIN_LOCKED) }

// SOPinFinalTry returns true if the next wrong SO PIN locks it
func (ti *TokenInfo) SOPinFinalTry() bool { return ti.has(pkcs11.CKF_SO_PIN_FINAL_TRY) }

// SOPinCountLow returns true if a wrong SO PIN was entered
func (ti *TokenInfo) SOPinCountLow() bool { return ti.has(pkcs11.CKF_SO_PIN_COUNT_LOW) }

// LoginRequired returns true if a login is required for cryptographic functions
func (ti *TokenInfo) LoginRequired() bool { return ti.has(pkcs11.CKF_LOGIN_REQUIRED) }

// ProtectedAuthenticationPath returns true if the token has a PIN pad
func (ti *TokenInfo) ProtectedAuthenticationPath() bool {
	return ti.has(pkcs11.CKF_PROTECTED_AUTHENTICATION_PATH)
}

// TokenInitialized returns true if the token is initialized
func (ti *TokenInfo) TokenInitialized() bool { return ti.has(pkcs11.CKF_TOKEN_INITIALIZED) }

// Time returns the time of the token clock
func (ti *TokenInfo) Time() (time.Time, error) {
	if !ti.has(pkcs11.CKF_CLOCK_ON_TOKEN) {
		return time.Time{}, errors.New("token has no clock")
	}
	return (&cryptoki.TokenInfo{UTCTime: ti.UTCTime}).Time()
}

// ModuleInfo returns the module info, text fields are trimmed
func (p11lib *PKCS11Lib) ModuleInfo() (*cryptoki.Info, error) {
	info, err := p11lib.Ctx.GetInfo()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	info.ManufacturerID = trim(info.ManufacturerID)
	info.LibraryDescription = trim(info.LibraryDescription)
	return info, nil
}

// ListSlots returns slot IDs, with a token only if tokenPresent is set
func (p11lib *PKCS11Lib) ListSlots(tokenPresent bool) ([]uint, error) {
	list, err := p11lib.Ctx.GetSlotList(tokenPresent)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return list, nil
}

// SlotInfo returns slot info
func (p11lib *PKCS11Lib) SlotInfo(slotID uint) (*SlotInfo, error) {
	si, err := p11lib.Ctx.GetSlotInfo(slotID)
	if err != nil {
		return nil, errors.WithMessagef(err, "GetSlotInfo: %d", slotID)
	}
	return &SlotInfo{
		ID:              slotID,
		Description:     trim(si.SlotDescription),
		Manufacturer:    trim(si.ManufacturerID),
		Flags:           si.Flags,
		HardwareVersion: si.HardwareVersion.String(),
		FirmwareVersion: si.FirmwareVersion.String(),
	}, nil
}

// TokenInfo returns info of the token in the slot
func (p11lib *PKCS11Lib) TokenInfo(slotID uint) (*TokenInfo, error) {
	ti, err := p11lib.Ctx.GetTokenInfo(slotID)
	if err != nil {
		return nil, errors.WithMessagef(err, "GetTokenInfo: %d", slotID)
	}
	return &TokenInfo{
		SlotID:             slotID,
		Label:              trim(ti.Label),
		Manufacturer:       trim(ti.ManufacturerID),
		Model:              trim(ti.Model),
		SerialNumber:       trim(ti.SerialNumber),
		Flags:              ti.Flags,
		MaxSessionCount:    ti.MaxSessionCount,
		SessionCount:       ti.SessionCount,
		MaxRwSessionCount:  ti.MaxRwSessionCount,
		RwSessionCount:     ti.RwSessionCount,
		MaxPinLen:          ti.MaxPinLen,
		MinPinLen:          ti.MinPinLen,
		TotalPublicMemory:  ti.TotalPublicMemory,
		FreePublicMemory:   ti.FreePublicMemory,
		TotalPrivateMemory: ti.TotalPrivateMemory,
		FreePrivateMemory:  ti.FreePrivateMemory,
		HardwareVersion:    ti.HardwareVersion.String(),
		FirmwareVersion:    ti.FirmwareVersion.String(),
		UTCTime:            ti.UTCTime,
	}, nil
}

// Login opens a read-write session on the slot and logs the user in.
// The caller must close the returned session.
func (p11lib *PKCS11Lib) Login(slotID uint, userType uint, pin string) (*Session, error) {
	s, err := p11lib.OpenSession(slotID, true)
	if err != nil {
		return nil, err
	}
	if err = s.Login(userType, pin); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// CheckPin returns true if the user PIN is correct.
// An error is returned for failures other than an incorrect PIN.
func (p11lib *PKCS11Lib) CheckPin(slotID uint, pin string) (bool, error) {
	s, err := p11lib.Login(slotID, UserUser, pin)
	if ckr.Is(err, ckr.PINIncorrect) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, s.Close()
}

// ChangePin logs in with the current user PIN and changes it
func (p11lib *PKCS11Lib) ChangePin(slotID uint, oldPin, newPin string) error {
	return p11lib.WithSession(slotID, true, func(s *Session) error {
		if err := s.Login(UserUser, oldPin); err != nil {
			return err
		}
		return s.ChangePin(oldPin, newPin)
	})
}

// Unlock logs in as SO and sets the user PIN, which unlocks a locked user PIN
func (p11lib *PKCS11Lib) Unlock(slotID uint, soPin, newPin string) error {
	return p11lib.WithSession(slotID, true, func(s *Session) error {
		if err := s.Login(UserSO, soPin); err != nil {
			return err
		}
		if err := s.InitPin(newPin); err != nil {
			return err
		}
		logger.KV(xlog.INFO, "reason", "unlocked", "slot", slotID)
		return nil
	})
}

// FindCertificates returns X.509 certificates visible in the session
func (s *Session) FindCertificates() ([]*x509.Certificate, error) {
	handles, err := s.FindObjectsByClass(pkcs11.CKO_CERTIFICATE,
		s.lib.Ctx.NewAttribute(pkcs11.CKA_CERTIFICATE_TYPE, uint(pkcs11.CKC_X_509)))
	if err != nil {
		return nil, err
	}

	ders := make([][]byte, 0, len(handles))
	for _, h := range handles {
		der, err := s.GetAttribute(h, pkcs11.CKA_VALUE)
		if err != nil {
			return nil, err
		}
		ders = append(ders, der)
	}
	return certutil.ParseDER(ders...)
}

// FindPrivateKey returns the private key with the ID or label.
// If both are empty, the token must have exactly one private key.
func (s *Session) FindPrivateKey(id []byte, label string) (cryptoki.ObjectHandle, error) {
	var attrs []*cryptoki.Attribute
	if len(id) > 0 {
		attrs = append(attrs, s.lib.Ctx.NewAttribute(pkcs11.CKA_ID, id))
	}
	if label != "" {
		attrs = append(attrs, s.lib.Ctx.NewAttribute(pkcs11.CKA_LABEL, label))
	}

	handles, err := s.FindObjectsByClass(pkcs11.CKO_PRIVATE_KEY, attrs...)
	if err != nil {
		return 0, err
	}
	switch len(handles) {
	case 0:
		return 0, errors.Errorf("private key not found: id=%x, label=%q", id, label)
	case 1:
		return handles[0], nil
	}
	return 0, errors.Errorf("expected one private key, found %d: id=%x, label=%q", len(handles), id, label)
}

// Sign signs the message with the key in a single operation.
// The session must be logged in as user.
func (p11lib *PKCS11Lib) Sign(s *Session, key cryptoki.ObjectHandle, mechanism uint, msg []byte) ([]byte, error) {
	if err := s.SignInit(cryptoki.NewMechanism(mechanism, nil), key); err != nil {
		return nil, err
	}
	return s.Sign(msg, DefaultSignatureMaxLen)
}
