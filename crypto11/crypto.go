package crypto11

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/cryptoki/metricskey"
)

// DefaultSignatureMaxLen is the upper bound of a signature,
// enough for RSA 4096 keys
const DefaultSignatureMaxLen = 512

// Digest returns the digest of the message in a single operation
func (s *Session) Digest(mechanism uint, msg []byte) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), s.lib.Manufacturer(), "digest")

	ctx := s.lib.Ctx
	if err := ctx.DigestInit(s.Handle, cryptoki.NewMechanism(mechanism, nil)); err != nil {
		return nil, errors.WithMessagef(err, "DigestInit with %s", MechanismName(mechanism))
	}
	d, err := ctx.Digest(s.Handle, msg)
	if err != nil {
		return nil, errors.WithMessage(err, "Digest")
	}
	return d, nil
}

// DigestParts returns the digest of the message parts in a multi-part operation
func (s *Session) DigestParts(mechanism uint, parts ...[]byte) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), s.lib.Manufacturer(), "digest")

	ctx := s.lib.Ctx
	if err := ctx.DigestInit(s.Handle, cryptoki.NewMechanism(mechanism, nil)); err != nil {
		return nil, errors.WithMessagef(err, "DigestInit with %s", MechanismName(mechanism))
	}
	for i, part := range parts {
		if err := ctx.DigestUpdate(s.Handle, part); err != nil {
			return nil, errors.WithMessagef(err, "DigestUpdate part %d", i)
		}
	}
	d, err := ctx.DigestFinal(s.Handle)
	if err != nil {
		return nil, errors.WithMessage(err, "DigestFinal")
	}
	return d, nil
}

// SignInit starts a sign operation with the key
func (s *Session) SignInit(mechanism *cryptoki.Mechanism, key cryptoki.ObjectHandle) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.lib.Ctx.SignInit(s.Handle, mechanism, key); err != nil {
		return errors.WithMessagef(err, "SignInit with %s", MechanismName(mechanism.Mechanism))
	}
	return nil
}

// Sign signs the message in the operation started by SignInit.
// maxLen is the upper bound of the signature length,
// the returned signature has the length reported by the token.
func (s *Session) Sign(msg []byte, maxLen int) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), s.lib.Manufacturer(), "sign")

	sig, err := s.lib.Ctx.Sign(s.Handle, msg, maxLen)
	if err != nil {
		return nil, errors.WithMessage(err, "Sign")
	}
	return sig, nil
}

// GenerateRandom returns n random bytes generated by the token
func (s *Session) GenerateRandom(n int) ([]byte, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	defer metricskey.PerfCryptoOperation.MeasureSince(time.Now(), s.lib.Manufacturer(), "random")

	b, err := s.lib.Ctx.GenerateRandom(s.Handle, n)
	if err != nil {
		return nil, errors.WithMessage(err, "GenerateRandom")
	}
	return b, nil
}

// SeedRandom mixes the seed into the random number generator of the token
func (s *Session) SeedRandom(seed []byte) error {
	if err := s.check(); err != nil {
		return err
	}
	if err := s.lib.Ctx.SeedRandom(s.Handle, seed); err != nil {
		return errors.WithMessage(err, "SeedRandom")
	}
	return nil
}
