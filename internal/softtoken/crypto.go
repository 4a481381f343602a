package softtoken

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"hash"

	// register hashes
	_ "crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"

	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/native"
	"github.com/effective-security/xlog"
	"github.com/miekg/pkcs11"
)

var digestMechanisms = map[uint64]crypto.Hash{
	pkcs11.CKM_SHA_1:  crypto.SHA1,
	pkcs11.CKM_SHA224: crypto.SHA224,
	pkcs11.CKM_SHA256: crypto.SHA256,
	pkcs11.CKM_SHA384: crypto.SHA384,
	pkcs11.CKM_SHA512: crypto.SHA512,
}

// signMechanisms maps RSA PKCS#1 v1.5 mechanisms to the hash applied
// by the token, zero for CKM_RSA_PKCS
var signMechanisms = map[uint64]crypto.Hash{
	pkcs11.CKM_RSA_PKCS:        0,
	pkcs11.CKM_SHA1_RSA_PKCS:   crypto.SHA1,
	pkcs11.CKM_SHA224_RSA_PKCS: crypto.SHA224,
	pkcs11.CKM_SHA256_RSA_PKCS: crypto.SHA256,
	pkcs11.CKM_SHA384_RSA_PKCS: crypto.SHA384,
	pkcs11.CKM_SHA512_RSA_PKCS: crypto.SHA512,
}

type digestOp struct {
	h       hash.Hash
	updated bool
}

type signOp struct {
	key  *rsa.PrivateKey
	hash crypto.Hash
}

func (l *Library) mechanism(addr uintptr) (uint64, ckr.Result) {
	if addr == 0 {
		return 0, ckr.ArgumentsBad
	}
	v := l.view(ckabi.CKMechanism, addr)
	if v.ULong("ulParameterLen") != 0 {
		return 0, ckr.MechanismParamInvalid
	}
	return v.ULong("mechanism"), ckr.OK
}

func (l *Library) digestInit(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.digest != nil {
		return ckr.OperationActive
	}
	mech, rv := l.mechanism(args[1])
	if rv != ckr.OK {
		return rv
	}
	h, ok := digestMechanisms[mech]
	if !ok {
		return ckr.MechanismInvalid
	}
	s.digest = &digestOp{h: h.New()}
	return ckr.OK
}

func (l *Library) digest(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.digest == nil {
		return ckr.OperationNotInitialized
	}
	if s.digest.updated {
		return ckr.OperationActive
	}

	// the state is not changed by a length probe
	h := s.digest.h
	h.Reset()
	h.Write(bytesAt(args[1], uint64(args[2])))
	written, rv := l.output(args[3], args[4], h.Sum(nil))
	if written || (rv != ckr.OK && rv != ckr.BufferTooSmall) {
		s.digest = nil
	}
	return rv
}

func (l *Library) digestUpdate(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.digest == nil {
		return ckr.OperationNotInitialized
	}
	if args[1] == 0 && args[2] > 0 {
		s.digest = nil
		return ckr.ArgumentsBad
	}
	s.digest.h.Write(bytesAt(args[1], uint64(args[2])))
	s.digest.updated = true
	return ckr.OK
}

func (l *Library) digestFinal(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.digest == nil {
		return ckr.OperationNotInitialized
	}
	written, rv := l.output(args[1], args[2], s.digest.h.Sum(nil))
	if written || (rv != ckr.OK && rv != ckr.BufferTooSmall) {
		s.digest = nil
	}
	return rv
}

func (l *Library) signInit(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.sign != nil {
		return ckr.OperationActive
	}
	mech, rv := l.mechanism(args[1])
	if rv != ckr.OK {
		return rv
	}
	h, ok := signMechanisms[mech]
	if !ok {
		return ckr.MechanismInvalid
	}
	if s.token.loggedIn != pkcs11.CKU_USER {
		return ckr.UserNotLoggedIn
	}
	o, rv := s.object(args[2])
	if rv != ckr.OK || o.key == nil {
		return ckr.KeyHandleInvalid
	}
	if !o.bool(pkcs11.CKA_SIGN) {
		return ckr.KeyFunctionNotPermitted
	}
	s.sign = &signOp{key: o.key, hash: h}
	return ckr.OK
}

func (l *Library) sign(args []uintptr) ckr.Result {
	s, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if s.sign == nil {
		return ckr.OperationNotInitialized
	}
	op := s.sign
	out, outLen := args[3], args[4]

	if out == 0 {
		// length probe keeps the operation active
		if outLen == 0 {
			return ckr.ArgumentsBad
		}
		l.putULong(outLen, uint64(op.key.Size()))
		return ckr.OK
	}

	data := bytesAt(args[1], uint64(args[2]))
	digest := data
	if op.hash != 0 {
		h := op.hash.New()
		h.Write(data)
		digest = h.Sum(nil)
	} else if len(data) > op.key.Size()-11 {
		s.sign = nil
		return ckr.DataLenRange
	}

	sig, err := rsa.SignPKCS1v15(rand.Reader, op.key, op.hash, digest)
	if err != nil {
		s.sign = nil
		logger.KV(xlog.ERROR, "reason", "sign", "err", err.Error())
		return ckr.FunctionFailed
	}

	written, rv := l.output(out, outLen, sig)
	if written || rv != ckr.BufferTooSmall {
		s.sign = nil
	}
	return rv
}

func (l *Library) seedRandom(args []uintptr) ckr.Result {
	_, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if args[1] == 0 && args[2] > 0 {
		return ckr.ArgumentsBad
	}
	return ckr.OK
}

func (l *Library) generateRandom(args []uintptr) ckr.Result {
	_, rv := l.session(args[0])
	if rv != ckr.OK {
		return rv
	}
	if args[1] == 0 && args[2] > 0 {
		return ckr.ArgumentsBad
	}
	if _, err := rand.Read(native.Memory(args[1], int(args[2]))); err != nil {
		return ckr.RandomNoRNG
	}
	return ckr.OK
}
