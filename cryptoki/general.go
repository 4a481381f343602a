package cryptoki

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/native"
)

// Initialize calls C_Initialize with no arguments,
// the library is used from one thread at a time.
func (c *Ctx) Initialize() error {
	return c.call(FnInitialize, 0)
}

// Finalize calls C_Finalize
func (c *Ctx) Finalize() error {
	return c.call(FnFinalize, 0)
}

// GetInfo returns general information about the library
func (c *Ctx) GetInfo() (*Info, error) {
	var a native.Arena
	defer a.Free()

	v, addr := c.alloc(&a, ckabi.CKInfo)
	if err := c.call(FnGetInfo, addr); err != nil {
		return nil, err
	}

	return &Info{
		CryptokiVersion:    version(v, "cryptokiVersion"),
		ManufacturerID:     v.Text("manufacturerID"),
		Flags:              uint(v.ULong("flags")),
		LibraryDescription: v.Text("libraryDescription"),
		LibraryVersion:     version(v, "libraryVersion"),
	}, nil
}

// GetSlotList returns IDs of slots, or of slots with a token present.
// The list is probed for its length first, then filled.
func (c *Ctx) GetSlotList(tokenPresent bool) ([]uint, error) {
	var a native.Arena
	defer a.Free()

	ul := c.cat.ULongSize()
	count, countAddr := a.Alloc(ul)
	if err := c.call(FnGetSlotList, boolArg(tokenPresent), 0, countAddr); err != nil {
		return nil, err
	}

	n := int(c.cat.ULong(count))
	if n == 0 {
		return []uint{}, nil
	}

	list, listAddr := a.Alloc(n * ul)
	if err := c.call(FnGetSlotList, boolArg(tokenPresent), listAddr, countAddr); err != nil {
		return nil, err
	}

	reported := int(c.cat.ULong(count))
	if reported > n {
		return nil, ckr.NewBindingError(FnGetSlotList, errors.Wrapf(ckr.ErrBadLength, "%d slots, buffer for %d", reported, n))
	}

	slots := make([]uint, reported)
	for i := range slots {
		slots[i] = uint(c.cat.ULong(list[i*ul:]))
	}
	return slots, nil
}

// GetSlotInfo returns information about the slot
func (c *Ctx) GetSlotInfo(slotID uint) (*SlotInfo, error) {
	var a native.Arena
	defer a.Free()

	v, addr := c.alloc(&a, ckabi.CKSlotInfo)
	if err := c.call(FnGetSlotInfo, uintptr(slotID), addr); err != nil {
		return nil, err
	}

	return &SlotInfo{
		SlotDescription: v.Text("slotDescription"),
		ManufacturerID:  v.Text("manufacturerID"),
		Flags:           uint(v.ULong("flags")),
		HardwareVersion: version(v, "hardwareVersion"),
		FirmwareVersion: version(v, "firmwareVersion"),
	}, nil
}

// GetTokenInfo returns information about the token in the slot
func (c *Ctx) GetTokenInfo(slotID uint) (*TokenInfo, error) {
	var a native.Arena
	defer a.Free()

	v, addr := c.alloc(&a, ckabi.CKTokenInfo)
	if err := c.call(FnGetTokenInfo, uintptr(slotID), addr); err != nil {
		return nil, err
	}

	return &TokenInfo{
		Label:              v.Text("label"),
		ManufacturerID:     v.Text("manufacturerID"),
		Model:              v.Text("model"),
		SerialNumber:       v.Text("serialNumber"),
		Flags:              uint(v.ULong("flags")),
		MaxSessionCount:    uint(v.ULong("ulMaxSessionCount")),
		SessionCount:       uint(v.ULong("ulSessionCount")),
		MaxRwSessionCount:  uint(v.ULong("ulMaxRwSessionCount")),
		RwSessionCount:     uint(v.ULong("ulRwSessionCount")),
		MaxPinLen:          uint(v.ULong("ulMaxPinLen")),
		MinPinLen:          uint(v.ULong("ulMinPinLen")),
		TotalPublicMemory:  uint(v.ULong("ulTotalPublicMemory")),
		FreePublicMemory:   uint(v.ULong("ulFreePublicMemory")),
		TotalPrivateMemory: uint(v.ULong("ulTotalPrivateMemory")),
		FreePrivateMemory:  uint(v.ULong("ulFreePrivateMemory")),
		HardwareVersion:    version(v, "hardwareVersion"),
		FirmwareVersion:    version(v, "firmwareVersion"),
		UTCTime:            v.Text("utcTime"),
	}, nil
}

// alloc returns a zeroed structure owned by the arena
func (c *Ctx) alloc(a *native.Arena, name string) (ckabi.View, uintptr) {
	buf, addr := a.Alloc(c.cat.Sizeof(name))
	v, err := c.cat.View(name, buf)
	if err != nil {
		logger.Panicf("struct=%s, err=[%+v]", name, err)
	}
	return v, addr
}

func version(v ckabi.View, field string) Version {
	major, minor := v.Version(field)
	return Version{Major: major, Minor: minor}
}
