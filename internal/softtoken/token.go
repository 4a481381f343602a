package softtoken

import (
	"bytes"
	"crypto/rsa"
	"time"

	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/miekg/pkcs11"
)

// MaxPINAttempts is the number of wrong PINs that locks the PIN
const MaxPINAttempts = 3

const notLoggedIn = -1

// Slot is a reader, with or without a token
type Slot struct {
	ID          uint
	Description string
	Token       *Token
}

// Token is a simulated token
type Token struct {
	Label         string
	Manufacturer  string
	Model         string
	SerialNumber  string
	SOPin         []byte
	UserPin       []byte
	ProtectedPath bool
	MinPinLen     int
	MaxPinLen     int

	soFails   int
	userFails int
	loggedIn  int
	objects   []*object
}

// NewToken returns a token with the user and SO PINs.
// A nil user PIN leaves the user PIN not initialized.
func NewToken(label string, soPin, userPin []byte) *Token {
	return &Token{
		Label:        label,
		Manufacturer: "Effective Security",
		Model:        "softtoken",
		SerialNumber: "0000000000000001",
		SOPin:        soPin,
		UserPin:      userPin,
		MinPinLen:    4,
		MaxPinLen:    32,
		loggedIn:     notLoggedIn,
	}
}

// DefaultSlots returns slot 0 with the default token holding the
// DefaultIdentity, and slot 1 without a token
func DefaultSlots() []*Slot {
	t := NewToken("cryptoki-test", []byte("12345678"), []byte("1234"))
	t.AddIdentity(DefaultIdentity())
	return []*Slot{
		{Description: "softtoken slot 0", Token: t},
		{Description: "softtoken slot 1"},
	}
}

// AddIdentity adds the private key and the certificates of the chain.
// Must be called before the token is passed to New.
func (t *Token) AddIdentity(id *Identity) {
	pub := &id.Key.PublicKey
	key := newObject(map[uint]any{
		pkcs11.CKA_CLASS:            uint64(pkcs11.CKO_PRIVATE_KEY),
		pkcs11.CKA_KEY_TYPE:         uint64(pkcs11.CKK_RSA),
		pkcs11.CKA_TOKEN:            true,
		pkcs11.CKA_PRIVATE:          true,
		pkcs11.CKA_SIGN:             true,
		pkcs11.CKA_SENSITIVE:        true,
		pkcs11.CKA_LABEL:            []byte(id.Label),
		pkcs11.CKA_ID:               id.ID,
		pkcs11.CKA_MODULUS:          pub.N.Bytes(),
		pkcs11.CKA_PUBLIC_EXPONENT:  bigEndian(uint64(pub.E)),
		pkcs11.CKA_PRIVATE_EXPONENT: id.Key.D.Bytes(),
		pkcs11.CKA_MODULUS_BITS:     uint64(pub.N.BitLen()),
	})
	key.key = id.Key
	t.objects = append(t.objects, key)

	for i, crt := range id.Chain {
		label := id.Label
		if i > 0 {
			label = crt.Subject.CommonName
		}
		o := newObject(map[uint]any{
			pkcs11.CKA_CLASS:            uint64(pkcs11.CKO_CERTIFICATE),
			pkcs11.CKA_CERTIFICATE_TYPE: uint64(pkcs11.CKC_X_509),
			pkcs11.CKA_TOKEN:            true,
			pkcs11.CKA_PRIVATE:          false,
			pkcs11.CKA_LABEL:            []byte(label),
			pkcs11.CKA_SUBJECT:          crt.RawSubject,
			pkcs11.CKA_ISSUER:           crt.RawIssuer,
			pkcs11.CKA_SERIAL_NUMBER:    crt.SerialNumber.Bytes(),
			pkcs11.CKA_VALUE:            crt.Raw,
		})
		if i == 0 {
			o.attrs[pkcs11.CKA_ID] = id.ID
		}
		t.objects = append(t.objects, o)
	}
}

// UserPINLocked returns true if the user PIN is locked
func (t *Token) UserPINLocked() bool {
	return t.userFails >= MaxPINAttempts
}

// SOPINLocked returns true if the SO PIN is locked
func (t *Token) SOPINLocked() bool {
	return t.soFails >= MaxPINAttempts
}

func (t *Token) flags() uint64 {
	f := uint64(pkcs11.CKF_RNG | pkcs11.CKF_LOGIN_REQUIRED | pkcs11.CKF_TOKEN_INITIALIZED | pkcs11.CKF_CLOCK_ON_TOKEN)
	if t.UserPin != nil {
		f |= pkcs11.CKF_USER_PIN_INITIALIZED
	}
	if t.ProtectedPath {
		f |= pkcs11.CKF_PROTECTED_AUTHENTICATION_PATH
	}
	f |= pinFlags(t.userFails, pkcs11.CKF_USER_PIN_COUNT_LOW, pkcs11.CKF_USER_PIN_FINAL_TRY, pkcs11.CKF_USER_PIN_LOCKED)
	f |= pinFlags(t.soFails, pkcs11.CKF_SO_PIN_COUNT_LOW, pkcs11.CKF_SO_PIN_FINAL_TRY, pkcs11.CKF_SO_PIN_LOCKED)
	return f
}

func pinFlags(fails int, low, final, locked uint64) uint64 {
	switch {
	case fails >= MaxPINAttempts:
		return locked
	case fails == MaxPINAttempts-1:
		return low | final
	case fails > 0:
		return low
	}
	return 0
}

// checkPin verifies the PIN of the user type and counts failures
func (t *Token) checkPin(userType uint64, pin []byte) ckr.Result {
	expected, fails := t.UserPin, &t.userFails
	if userType == pkcs11.CKU_SO {
		expected, fails = t.SOPin, &t.soFails
	}
	if expected == nil {
		return ckr.UserPINNotInitialized
	}
	if *fails >= MaxPINAttempts {
		return ckr.PINLocked
	}
	if !bytes.Equal(expected, pin) {
		*fails++
		if *fails >= MaxPINAttempts {
			return ckr.PINLocked
		}
		return ckr.PINIncorrect
	}
	*fails = 0
	return ckr.OK
}

func (t *Token) checkPinLen(pin []byte) ckr.Result {
	if len(pin) < t.MinPinLen || len(pin) > t.MaxPinLen {
		return ckr.PINLenRange
	}
	return ckr.OK
}

// object is a token object
type object struct {
	handle uint
	attrs  map[uint]any
	key    *rsa.PrivateKey
}

// newObject copies the attributes, values must be []byte, string, bool,
// or an unsigned integer stored as CK_ULONG
func newObject(attrs map[uint]any) *object {
	o := &object{attrs: make(map[uint]any, len(attrs))}
	for k, v := range attrs {
		switch val := v.(type) {
		case []byte, bool, uint64:
			o.attrs[k] = val
		case string:
			o.attrs[k] = []byte(val)
		case uint:
			o.attrs[k] = uint64(val)
		case int:
			o.attrs[k] = uint64(val)
		default:
			logger.Panicf("attr=0x%X, type=%T, reason=unsupported", k, v)
		}
	}
	return o
}

func (o *object) bool(typ uint) bool {
	v, ok := o.attrs[typ].(bool)
	return ok && v
}

func (o *object) isSensitive(typ uint) bool {
	if typ != pkcs11.CKA_PRIVATE_EXPONENT && typ != pkcs11.CKA_PRIME_1 && typ != pkcs11.CKA_PRIME_2 {
		return false
	}
	return o.bool(pkcs11.CKA_SENSITIVE)
}

// value returns the attribute in the native form of the catalog
func (o *object) value(cat *ckabi.Catalog, typ uint) ([]byte, bool) {
	v, ok := o.attrs[typ]
	if !ok {
		return nil, false
	}
	switch val := v.(type) {
	case bool:
		if val {
			return []byte{1}, true
		}
		return []byte{0}, true
	case uint64:
		return cat.ULongBytes(val), true
	default:
		return val.([]byte), true
	}
}

func bigEndian(v uint64) []byte {
	var b []byte
	for v > 0 {
		b = append([]byte{byte(v)}, b...)
		v >>= 8
	}
	if len(b) == 0 {
		b = []byte{0}
	}
	return b
}

func utcTime() string {
	return time.Now().UTC().Format("20060102150405") + "00"
}
