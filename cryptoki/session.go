package cryptoki

import (
	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/native"
)

// OpenSession opens a session with the token in the slot
func (c *Ctx) OpenSession(slotID uint, flags uint) (SessionHandle, error) {
	var a native.Arena
	defer a.Free()

	h, hAddr := a.Alloc(c.cat.ULongSize())
	if err := c.call(FnOpenSession, uintptr(slotID), uintptr(flags), 0, 0, hAddr); err != nil {
		return 0, err
	}
	return SessionHandle(c.cat.ULong(h)), nil
}

// CloseSession closes the session
func (c *Ctx) CloseSession(sh SessionHandle) error {
	return c.call(FnCloseSession, uintptr(sh))
}

// CloseAllSessions closes all sessions of the application with the token
func (c *Ctx) CloseAllSessions(slotID uint) error {
	return c.call(FnCloseAllSessions, uintptr(slotID))
}

// GetSessionInfo returns information about the session
func (c *Ctx) GetSessionInfo(sh SessionHandle) (*SessionInfo, error) {
	var a native.Arena
	defer a.Free()

	v, addr := c.alloc(&a, ckabi.CKSessionInfo)
	if err := c.call(FnGetSessionInfo, uintptr(sh), addr); err != nil {
		return nil, err
	}
	return &SessionInfo{
		SlotID:      uint(v.ULong("slotID")),
		State:       uint(v.ULong("state")),
		Flags:       uint(v.ULong("flags")),
		DeviceError: uint(v.ULong("ulDeviceError")),
	}, nil
}

// Login logs the user into the token.
// A nil pin passes a null pointer, requesting the protected
// authentication path of the token; an empty pin is sent as is.
func (c *Ctx) Login(sh SessionHandle, userType uint, pin []byte) error {
	var a native.Arena
	defer a.Free()

	return c.call(FnLogin, uintptr(sh), uintptr(userType), a.Copy(pin), uintptr(len(pin)))
}

// Logout logs the user out from the token
func (c *Ctx) Logout(sh SessionHandle) error {
	return c.call(FnLogout, uintptr(sh))
}

// InitPIN initializes the normal user's PIN, in a SO session.
// A nil pin requests the protected authentication path.
func (c *Ctx) InitPIN(sh SessionHandle, pin []byte) error {
	var a native.Arena
	defer a.Free()

	return c.call(FnInitPIN, uintptr(sh), a.Copy(pin), uintptr(len(pin)))
}

// SetPIN modifies the PIN of the logged in user.
// Nil pins request the protected authentication path.
func (c *Ctx) SetPIN(sh SessionHandle, oldPin, newPin []byte) error {
	var a native.Arena
	defer a.Free()

	return c.call(FnSetPIN, uintptr(sh),
		a.Copy(oldPin), uintptr(len(oldPin)),
		a.Copy(newPin), uintptr(len(newPin)))
}
