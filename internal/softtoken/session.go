package softtoken

import (
	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/miekg/pkcs11"
)

type session struct {
	handle uint
	slotID uint
	token  *Token
	rw     bool
	flags  uint64

	find   *findOp
	digest *digestOp
	sign   *signOp
}

func (s *session) state() uint64 {
	switch s.token.loggedIn {
	case pkcs11.CKU_SO:
		return pkcs11.CKS_RW_SO_FUNCTIONS
	case pkcs11.CKU_USER:
		if s.rw {
			return pkcs11.CKS_RW_USER_FUNCTIONS
		}
		return pkcs11.CKS_RO_USER_FUNCTIONS
	}
	if s.rw {
		return pkcs11.CKS_RW_PUBLIC_SESSION
	}
	return pkcs11.CKS_RO_PUBLIC_SESSION
}

// session returns the open session by handle
func (l *Library) session(h uintptr) (*session, ckr.Result) {
	if !l.initialized {
		return nil, ckr.CryptokiNotInitialized
	}
	s, ok := l.sessions[uint(h)]
	if !ok {
		return nil, ckr.SessionHandleInvalid
	}
	return s, ckr.OK
}

// dropSession removes the session, the token is logged out with its last session
func (l *Library) dropSession(h uint, s *session) {
	delete(l.sessions, h)
	for _, other := range l.sessions {
		if other.token == s.token {
			return
		}
	}
	s.token.loggedIn = notLoggedIn
}

func (l *Library) openSession(args []uintptr) ckr.Result {
	if !l.initialized {
		return ckr.CryptokiNotInitialized
	}
	t, rv := l.token(uint(args[0]))
	if rv != ckr.OK {
		return rv
	}
	flags := uint64(args[1])
	if flags&pkcs11.CKF_SERIAL_SESSION == 0 {
		return ckr.SessionParallelNotSupported
	}
	if args[4] == 0 {
		return ckr.ArgumentsBad
	}
	rw := flags&pkcs11.CKF_RW_SESSION != 0
	if !rw && t.loggedIn == pkcs11.CKU_SO {
		return ckr.SessionReadWriteSOExists
	}

	s := &session{
		handle: l.nextSession,
		slotID: uint(args[0]),
		token:  t,
		rw:     rw,
		flags:  flags,
	}
	l.nextSession++
	l.sessions[s.handle] = s
	l.putULong(args[4], uint64(s.handle))
	return ckr.OK
}

func (l *Library) closeSession(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	l.dropSession(s.handle, s)
	return ckr.OK
}

func (l *Library) closeAllSessions(args []uintptr) ckr.Result {
	if !l.initialized {
		return ckr.CryptokiNotInitialized
	}
	t, rv := l.token(uint(args[0]))
	if rv != ckr.OK {
		return rv
	}
	for h, s := range l.sessions {
		if s.token == t {
			l.dropSession(h, s)
		}
	}
	return ckr.OK
}

func (l *Library) getSessionInfo(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if args[1] == 0 {
		return ckr.ArgumentsBad
	}
	v := l.view(ckabi.CKSessionInfo, args[1])
	v.SetULong("slotID", uint64(s.slotID))
	v.SetULong("state", s.state())
	v.SetULong("flags", s.flags)
	v.SetULong("ulDeviceError", 0)
	return ckr.OK
}

// pin returns the PIN argument, a null pointer selects the protected path
func (l *Library) pin(t *Token, addr, n uintptr) ([]byte, ckr.Result) {
	if addr == 0 {
		if !t.ProtectedPath {
			return nil, ckr.ArgumentsBad
		}
		return nil, ckr.OK
	}
	return bytesAt(addr, uint64(n)), ckr.OK
}

func (l *Library) login(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	t := s.token
	userType := uint64(args[1])
	if userType != pkcs11.CKU_SO && userType != pkcs11.CKU_USER {
		return ckr.UserTypeInvalid
	}
	if t.loggedIn == int(userType) {
		return ckr.UserAlreadyLoggedIn
	}
	if t.loggedIn != notLoggedIn {
		return ckr.UserAnotherAlreadyLoggedIn
	}
	if userType == pkcs11.CKU_SO {
		for _, other := range l.sessions {
			if other.token == t && !other.rw {
				return ckr.SessionReadOnlyExists
			}
		}
	}

	pin, rv := l.pin(t, args[2], args[3])
	if rv != ckr.OK {
		return rv
	}
	if pin != nil {
		if rv = t.checkPin(userType, pin); rv != ckr.OK {
			return rv
		}
	} else if userType == pkcs11.CKU_USER && t.UserPin == nil {
		return ckr.UserPINNotInitialized
	}

	t.loggedIn = int(userType)
	return ckr.OK
}

func (l *Library) logout(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.token.loggedIn == notLoggedIn {
		return ckr.UserNotLoggedIn
	}
	s.token.loggedIn = notLoggedIn
	for _, other := range l.sessions {
		if other.token == s.token {
			other.find, other.digest, other.sign = nil, nil, nil
		}
	}
	return ckr.OK
}

func (l *Library) initPIN(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	t := s.token
	if t.loggedIn != pkcs11.CKU_SO {
		return ckr.UserNotLoggedIn
	}
	if !s.rw {
		return ckr.SessionReadOnly
	}

	pin, rv := l.pin(t, args[1], args[2])
	if rv != ckr.OK {
		return rv
	}
	if pin == nil {
		// protected path keeps the PIN
		pin = t.UserPin
		if pin == nil {
			pin = []byte{}
		}
	} else if rv = t.checkPinLen(pin); rv != ckr.OK {
		return rv
	}

	t.UserPin = pin
	t.userFails = 0
	return ckr.OK
}

func (l *Library) setPIN(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	t := s.token
	if !s.rw {
		return ckr.SessionReadOnly
	}

	oldPin, rv := l.pin(t, args[1], args[2])
	if rv != ckr.OK {
		return rv
	}
	newPin, rv := l.pin(t, args[3], args[4])
	if rv != ckr.OK {
		return rv
	}

	userType := uint64(pkcs11.CKU_USER)
	if t.loggedIn == pkcs11.CKU_SO {
		userType = pkcs11.CKU_SO
	}

	if oldPin != nil {
		if rv = t.checkPin(userType, oldPin); rv != ckr.OK {
			return rv
		}
	}
	if newPin == nil {
		return ckr.OK
	}
	if rv = t.checkPinLen(newPin); rv != ckr.OK {
		return rv
	}

	if userType == pkcs11.CKU_SO {
		t.SOPin = newPin
	} else {
		t.UserPin = newPin
	}
	return ckr.OK
}
