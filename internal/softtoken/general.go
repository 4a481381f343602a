package softtoken

import (
	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/miekg/pkcs11"
)

func (l *Library) initialize(args []uintptr) ckr.Result {
	if l.initialized {
		return ckr.CryptokiAlreadyInitialized
	}
	l.initialized = true
	return ckr.OK
}

func (l *Library) finalize(args []uintptr) ckr.Result {
	if !l.initialized {
		return ckr.CryptokiNotInitialized
	}
	if args[0] != 0 {
		return ckr.ArgumentsBad
	}
	for h, s := range l.sessions {
		l.dropSession(h, s)
	}
	l.initialized = false
	return ckr.OK
}

func (l *Library) getInfo(args []uintptr) ckr.Result {
	if !l.initialized {
		return ckr.CryptokiNotInitialized
	}
	if args[0] == 0 {
		return ckr.ArgumentsBad
	}
	v := l.view(ckabi.CKInfo, args[0])
	v.SetVersion("cryptokiVersion", 2, 40)
	v.SetText("manufacturerID", "Effective Security")
	v.SetULong("flags", 0)
	v.SetText("libraryDescription", "Simulated PKCS#11 token")
	v.SetVersion("libraryVersion", 1, 0)
	return ckr.OK
}

func (l *Library) getSlotList(args []uintptr) ckr.Result {
	if !l.initialized {
		return ckr.CryptokiNotInitialized
	}
	tokenPresent, list, count := args[0] != 0, args[1], args[2]
	if count == 0 {
		return ckr.ArgumentsBad
	}

	var ids []uint
	for _, s := range l.slots {
		if !tokenPresent || s.Token != nil {
			ids = append(ids, s.ID)
		}
	}

	if list == 0 {
		l.putULong(count, uint64(len(ids)))
		return ckr.OK
	}
	if l.ulong(count) < uint64(len(ids)) {
		l.putULong(count, uint64(len(ids)))
		return ckr.BufferTooSmall
	}
	ul := uintptr(l.cat.ULongSize())
	for i, id := range ids {
		l.putULong(list+uintptr(i)*ul, uint64(id))
	}
	l.putULong(count, uint64(len(ids)))
	return ckr.OK
}

func (l *Library) getSlotInfo(args []uintptr) ckr.Result {
	if !l.initialized {
		return ckr.CryptokiNotInitialized
	}
	s := l.Slot(uint(args[0]))
	if s == nil {
		return ckr.SlotIDInvalid
	}
	if args[1] == 0 {
		return ckr.ArgumentsBad
	}

	v := l.view(ckabi.CKSlotInfo, args[1])
	v.SetText("slotDescription", s.Description)
	v.SetText("manufacturerID", "Effective Security")
	flags := uint64(pkcs11.CKF_REMOVABLE_DEVICE | pkcs11.CKF_HW_SLOT)
	if s.Token != nil {
		flags |= pkcs11.CKF_TOKEN_PRESENT
	}
	v.SetULong("flags", flags)
	v.SetVersion("hardwareVersion", 1, 2)
	v.SetVersion("firmwareVersion", 3, 4)
	return ckr.OK
}

func (l *Library) getTokenInfo(args []uintptr) ckr.Result {
	if !l.initialized {
		return ckr.CryptokiNotInitialized
	}
	t, rv := l.token(uint(args[0]))
	if rv != ckr.OK {
		return rv
	}
	if args[1] == 0 {
		return ckr.ArgumentsBad
	}

	var sessions, rwSessions uint64
	for _, s := range l.sessions {
		if s.token == t {
			sessions++
			if s.rw {
				rwSessions++
			}
		}
	}

	v := l.view(ckabi.CKTokenInfo, args[1])
	v.SetText("label", t.Label)
	v.SetText("manufacturerID", t.Manufacturer)
	v.SetText("model", t.Model)
	v.SetText("serialNumber", t.SerialNumber)
	v.SetULong("flags", t.flags())
	v.SetULong("ulMaxSessionCount", 0)
	v.SetULong("ulSessionCount", sessions)
	v.SetULong("ulMaxRwSessionCount", 0)
	v.SetULong("ulRwSessionCount", rwSessions)
	v.SetULong("ulMaxPinLen", uint64(t.MaxPinLen))
	v.SetULong("ulMinPinLen", uint64(t.MinPinLen))
	v.SetULong("ulTotalPublicMemory", l.cat.UnavailableInformation())
	v.SetULong("ulFreePublicMemory", l.cat.UnavailableInformation())
	v.SetULong("ulTotalPrivateMemory", l.cat.UnavailableInformation())
	v.SetULong("ulFreePrivateMemory", l.cat.UnavailableInformation())
	v.SetVersion("hardwareVersion", 1, 2)
	v.SetVersion("firmwareVersion", 3, 4)
	v.SetText("utcTime", utcTime())
	return ckr.OK
}

// token returns the token in the slot
func (l *Library) token(slotID uint) (*Token, ckr.Result) {
	s := l.Slot(slotID)
	if s == nil {
		return nil, ckr.SlotIDInvalid
	}
	if s.Token == nil {
		return nil, ckr.TokenNotPresent
	}
	return s.Token, ckr.OK
}
