package crypto11

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/cryptoki/metricskey"
	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
)

// ErrSessionClosed is returned by operations on a closed session
var ErrSessionClosed = errors.New("session closed")

// User types
const (
	UserSO   = uint(pkcs11.CKU_SO)
	UserUser = uint(pkcs11.CKU_USER)
)

// Session is an open session with a token.
// Session is not safe for concurrent use.
type Session struct {
	lib    *PKCS11Lib
	Handle cryptoki.SessionHandle
	SlotID uint
	RW     bool
	Serial bool

	closed bool
}

// OpenSession opens a serial session on the slot
func (p11lib *PKCS11Lib) OpenSession(slotID uint, rw bool) (*Session, error) {
	defer metricskey.PerfSessionOperation.MeasureSince(time.Now(), slotName(slotID), "open")

	flags := uint(pkcs11.CKF_SERIAL_SESSION)
	if rw {
		flags |= pkcs11.CKF_RW_SESSION
	}
	sh, err := p11lib.Ctx.OpenSession(slotID, flags)
	if err != nil {
		return nil, errors.WithMessagef(err, "OpenSession on slot %d", slotID)
	}
	logger.KV(xlog.TRACE, "slot", slotID, "session", sh, "rw", rw)

	return &Session{
		lib:    p11lib,
		Handle: sh,
		SlotID: slotID,
		RW:     rw,
		Serial: true,
	}, nil
}

// WithSession opens a session on the slot, calls fn and closes the session.
// The error of fn takes precedence over the error of closing.
func (p11lib *PKCS11Lib) WithSession(slotID uint, rw bool, fn func(s *Session) error) (err error) {
	s, err := p11lib.OpenSession(slotID, rw)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(s)
}

// Close closes the session. Subsequent calls are no-op.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.lib.Ctx.CloseSession(s.Handle); err != nil {
		return errors.WithMessagef(err, "CloseSession on slot %d", s.SlotID)
	}
	return nil
}

// Closed returns true if the session is closed
func (s *Session) Closed() bool {
	return s.closed
}

func (s *Session) check() error {
	if s.closed {
		return errors.WithStack(ErrSessionClosed)
	}
	return nil
}

// Info returns session info
func (s *Session) Info() (*cryptoki.SessionInfo, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	return s.lib.Ctx.GetSessionInfo(s.Handle)
}

// State returns the name of the session state
func (s *Session) State() (string, error) {
	si, err := s.Info()
	if err != nil {
		return "", err
	}
	return SessionStateName(si.State), nil
}

// Login logs the user in
func (s *Session) Login(userType uint, pin string) error {
	if err := s.check(); err != nil {
		return err
	}
	defer metricskey.PerfSessionOperation.MeasureSince(time.Now(), slotName(s.SlotID), "login")

	if err := s.lib.Ctx.Login(s.Handle, userType, []byte(pin)); err != nil {
		return errors.WithMessagef(err, "Login as %s on slot %d", UserTypeName(userType), s.SlotID)
	}
	return nil
}

// LoginProtected logs the user in with the protected authentication path
// of the token, such as a PIN pad
func (s *Session) LoginProtected(userType uint) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.lib.Ctx.Login(s.Handle, userType, nil); err != nil {
		return errors.WithMessagef(err, "Login as %s on slot %d", UserTypeName(userType), s.SlotID)
	}
	return nil
}

// Logout logs out from the token
func (s *Session) Logout() error {
	if err := s.check(); err != nil {
		return err
	}
	return s.lib.Ctx.Logout(s.Handle)
}

// ChangePin changes the PIN of the logged in user,
// or the user PIN in a public session
func (s *Session) ChangePin(oldPin, newPin string) error {
	if err := s.check(); err != nil {
		return err
	}
	defer metricskey.PerfSessionOperation.MeasureSince(time.Now(), slotName(s.SlotID), "change_pin")

	if err := s.lib.Ctx.SetPIN(s.Handle, []byte(oldPin), []byte(newPin)); err != nil {
		return errors.WithMessagef(err, "SetPIN on slot %d", s.SlotID)
	}
	return nil
}

// InitPin sets the user PIN, the session must be logged in as SO
func (s *Session) InitPin(pin string) error {
	if err := s.check(); err != nil {
		return err
	}
	defer metricskey.PerfSessionOperation.MeasureSince(time.Now(), slotName(s.SlotID), "init_pin")

	if err := s.lib.Ctx.InitPIN(s.Handle, []byte(pin)); err != nil {
		return errors.WithMessagef(err, "InitPIN on slot %d", s.SlotID)
	}
	return nil
}
