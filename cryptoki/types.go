package cryptoki

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

// SessionHandle is a Cryptoki session handle
type SessionHandle uint

// ObjectHandle is a Cryptoki object handle
type ObjectHandle uint

// Attribute is a (type, value) pair. A nil Value means "any value"
// in a search template, and "fetch" when reading attributes.
type Attribute struct {
	Type  uint
	Value []byte
}

// Mechanism selects the algorithm of a digest or sign operation
type Mechanism struct {
	Mechanism uint
	Parameter []byte
}

// NewMechanism returns a mechanism with optional parameter
func NewMechanism(mech uint, param []byte) *Mechanism {
	return &Mechanism{Mechanism: mech, Parameter: param}
}

// Version is CK_VERSION
type Version struct {
	Major byte
	Minor byte
}

// String returns major.minor
func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Info is CK_INFO, text fields are not trimmed
type Info struct {
	CryptokiVersion    Version
	ManufacturerID     string
	Flags              uint
	LibraryDescription string
	LibraryVersion     Version
}

// SlotInfo is CK_SLOT_INFO, text fields are not trimmed
type SlotInfo struct {
	SlotDescription string
	ManufacturerID  string
	Flags           uint
	HardwareVersion Version
	FirmwareVersion Version
}

// TokenInfo is CK_TOKEN_INFO, text fields are not trimmed
type TokenInfo struct {
	Label              string
	ManufacturerID     string
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
	HardwareVersion    Version
	FirmwareVersion    Version
	UTCTime            string
}

// utcTimeLayout is YYYYMMDDhhmmss, followed by two reserved characters
const utcTimeLayout = "20060102150405"

// Time parses UTCTime of tokens with a clock
func (ti *TokenInfo) Time() (time.Time, error) {
	if len(ti.UTCTime) < len(utcTimeLayout) {
		return time.Time{}, errors.Errorf("invalid token time: %q", ti.UTCTime)
	}
	t, err := time.Parse(utcTimeLayout, ti.UTCTime[:len(utcTimeLayout)])
	if err != nil {
		return time.Time{}, errors.WithMessagef(err, "invalid token time: %q", ti.UTCTime)
	}
	return t, nil
}

// SessionInfo is CK_SESSION_INFO
type SessionInfo struct {
	SlotID      uint
	State       uint
	Flags       uint
	DeviceError uint
}

// NewAttribute returns attribute with value encoded for the ABI of the context.
// Supported types are nil, bool, int, uint, uint64, string, []byte and time.Time (CK_DATE).
func (c *Ctx) NewAttribute(typ uint, x any) *Attribute {
	a := &Attribute{Type: typ}
	switch v := x.(type) {
	case nil:
	case bool:
		if v {
			a.Value = []byte{1}
		} else {
			a.Value = []byte{0}
		}
	case int:
		a.Value = c.cat.ULongBytes(uint64(v))
	case uint:
		a.Value = c.cat.ULongBytes(uint64(v))
	case uint64:
		a.Value = c.cat.ULongBytes(v)
	case string:
		a.Value = []byte(v)
	case []byte:
		a.Value = v
	case time.Time:
		a.Value = []byte(v.Format("20060102"))
	default:
		logger.Panicf("type=%T, reason=unsupported_attribute_value", x)
	}
	return a
}

// ULong decodes CK_ULONG attribute value
func (c *Ctx) ULong(a *Attribute) (uint, error) {
	if len(a.Value) != c.cat.ULongSize() {
		return 0, errors.Errorf("attribute 0x%X: expected %d bytes, got %d", a.Type, c.cat.ULongSize(), len(a.Value))
	}
	return uint(c.cat.ULong(a.Value)), nil
}

// Bool decodes CK_BBOOL attribute value
func Bool(a *Attribute) bool {
	return len(a.Value) > 0 && a.Value[0] != 0
}

// BytesToULong converts little-endian value of any width up to 8 bytes
func BytesToULong(b []byte) uint {
	var buf [8]byte
	copy(buf[:], b)
	return uint(binary.LittleEndian.Uint64(buf[:]))
}
