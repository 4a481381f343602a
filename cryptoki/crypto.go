package cryptoki

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/native"
)

// DigestInit initializes a digest operation
func (c *Ctx) DigestInit(sh SessionHandle, m *Mechanism) error {
	var a native.Arena
	defer a.Free()

	return c.call(FnDigestInit, uintptr(sh), c.marshalMechanism(&a, m))
}

// Digest digests the message in a single part.
// The length of the digest is probed first.
func (c *Ctx) Digest(sh SessionHandle, message []byte) ([]byte, error) {
	var a native.Arena
	defer a.Free()

	msg := a.Copy(message)
	return c.probeAndFill(&a, FnDigest, func(out, outLen uintptr) error {
		return c.call(FnDigest, uintptr(sh), msg, uintptr(len(message)), out, outLen)
	})
}

// DigestUpdate continues a multiple-part digest operation
func (c *Ctx) DigestUpdate(sh SessionHandle, part []byte) error {
	var a native.Arena
	defer a.Free()

	return c.call(FnDigestUpdate, uintptr(sh), a.Copy(part), uintptr(len(part)))
}

// DigestFinal finishes a multiple-part digest operation
func (c *Ctx) DigestFinal(sh SessionHandle) ([]byte, error) {
	var a native.Arena
	defer a.Free()

	return c.probeAndFill(&a, FnDigestFinal, func(out, outLen uintptr) error {
		return c.call(FnDigestFinal, uintptr(sh), out, outLen)
	})
}

// SignInit initializes a signature operation with the private key
func (c *Ctx) SignInit(sh SessionHandle, m *Mechanism, key ObjectHandle) error {
	var a native.Arena
	defer a.Free()

	return c.call(FnSignInit, uintptr(sh), c.marshalMechanism(&a, m), uintptr(key))
}

// Sign signs the message in a single part.
// maxLen is the upper bound of the signature size, the length
// reported by the library is used without a second call.
func (c *Ctx) Sign(sh SessionHandle, message []byte, maxLen int) ([]byte, error) {
	if maxLen <= 0 {
		return nil, errors.Errorf("invalid signature buffer size: %d", maxLen)
	}

	var a native.Arena
	defer a.Free()

	ul := c.cat.ULongSize()
	out, outAddr := a.Alloc(maxLen)
	outLen, outLenAddr := a.Alloc(ul)
	c.cat.PutULong(outLen, uint64(maxLen))

	if err := c.call(FnSign, uintptr(sh), a.Copy(message), uintptr(len(message)), outAddr, outLenAddr); err != nil {
		return nil, err
	}

	n := c.cat.ULong(outLen)
	if n > uint64(maxLen) {
		return nil, ckr.NewBindingError(FnSign, errors.Wrapf(ckr.ErrBadLength, "signature of %d bytes, buffer of %d", n, maxLen))
	}
	sig := make([]byte, int(n))
	copy(sig, out)
	return sig, nil
}

// SeedRandom mixes additional seed material into the token's generator
func (c *Ctx) SeedRandom(sh SessionHandle, seed []byte) error {
	var a native.Arena
	defer a.Free()

	return c.call(FnSeedRandom, uintptr(sh), a.Copy(seed), uintptr(len(seed)))
}

// GenerateRandom returns exactly length random bytes
func (c *Ctx) GenerateRandom(sh SessionHandle, length int) ([]byte, error) {
	if length < 0 {
		return nil, errors.Errorf("invalid random length: %d", length)
	}
	if length == 0 {
		return []byte{}, nil
	}

	var a native.Arena
	defer a.Free()

	buf, addr := a.Alloc(length)
	if err := c.call(FnGenerateRandom, uintptr(sh), addr, uintptr(length)); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, buf)
	return out, nil
}

// probeAndFill calls fn with a null output buffer to learn the
// required length, then again with a buffer of that length
func (c *Ctx) probeAndFill(a *native.Arena, name string, fn func(out, outLen uintptr) error) ([]byte, error) {
	outLen, outLenAddr := a.Alloc(c.cat.ULongSize())
	if err := fn(0, outLenAddr); err != nil {
		return nil, err
	}

	size := c.cat.ULong(outLen)
	if size == c.cat.UnavailableInformation() {
		return nil, ckr.NewBindingError(name, errors.Wrap(ckr.ErrBadLength, "length is unavailable"))
	}
	if size == 0 {
		return []byte{}, nil
	}

	out, outAddr := a.Alloc(int(size))
	if err := fn(outAddr, outLenAddr); err != nil {
		return nil, err
	}

	n := c.cat.ULong(outLen)
	if n > size {
		return nil, ckr.NewBindingError(name, errors.Wrapf(ckr.ErrBadLength, "reported %d bytes, buffer of %d", n, size))
	}
	res := make([]byte, int(n))
	copy(res, out)
	return res, nil
}
