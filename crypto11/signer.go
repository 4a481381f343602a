package crypto11

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"io"
	"math/big"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/certutil"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/cryptoki/oid"
	"github.com/miekg/pkcs11"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// MinChainLength is the minimum number of certificates of a signing chain:
// the signing certificate and two issuers
const MinChainLength = 3

// PrivateKey is an RSA private key on a token.
// It implements crypto.Signer with CKM_RSA_PKCS.
type PrivateKey struct {
	session *Session
	owned   bool
	handle  cryptoki.ObjectHandle
	id      []byte
	label   string
	pub     *rsa.PublicKey
}

// Ensure compiles
var _ crypto.Signer = (*PrivateKey)(nil)

// NewPrivateKey returns the private key found in the session by ID or label.
// The session must be logged in as user and stay open while the key is used.
func NewPrivateKey(s *Session, id []byte, label string) (*PrivateKey, error) {
	h, err := s.FindPrivateKey(id, label)
	if err != nil {
		return nil, err
	}

	attrs, err := s.GetAttributes(h,
		pkcs11.CKA_KEY_TYPE,
		pkcs11.CKA_ID,
		pkcs11.CKA_LABEL,
		pkcs11.CKA_MODULUS,
		pkcs11.CKA_PUBLIC_EXPONENT,
	)
	if err != nil {
		return nil, err
	}
	if kt := cryptoki.BytesToULong(attrs[0].Value); kt != pkcs11.CKK_RSA {
		return nil, errors.Errorf("unsupported key type: %s", nameOf(KeyTypeNames, kt))
	}

	return &PrivateKey{
		session: s,
		handle:  h,
		id:      attrs[1].Value,
		label:   string(attrs[2].Value),
		pub: &rsa.PublicKey{
			N: new(big.Int).SetBytes(attrs[3].Value),
			E: int(new(big.Int).SetBytes(attrs[4].Value).Int64()),
		},
	}, nil
}

// Handle returns the object handle of the key
func (k *PrivateKey) Handle() cryptoki.ObjectHandle {
	return k.handle
}

// ID returns CKA_ID of the key
func (k *PrivateKey) ID() []byte {
	return k.id
}

// Label returns CKA_LABEL of the key
func (k *PrivateKey) Label() string {
	return k.label
}

// Public returns the public key
func (k *PrivateKey) Public() crypto.PublicKey {
	return k.pub
}

// Sign signs the digest with CKM_RSA_PKCS. The digest is prefixed with
// the DigestInfo of opts.HashFunc(), or signed as is if it's zero.
func (k *PrivateKey) Sign(_ io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if _, ok := opts.(*rsa.PSSOptions); ok {
		return nil, errors.New("RSA-PSS is not supported")
	}

	data := digest
	if h := opts.HashFunc(); h != 0 {
		if len(digest) != h.Size() {
			return nil, errors.Errorf("invalid digest length for %s: %d", h, len(digest))
		}
		var err error
		if data, err = digestInfo(h, digest); err != nil {
			return nil, err
		}
	}
	return k.sign(pkcs11.CKM_RSA_PKCS, data)
}

func (k *PrivateKey) sign(mechanism uint, data []byte) ([]byte, error) {
	if err := k.session.SignInit(cryptoki.NewMechanism(mechanism, nil), k.handle); err != nil {
		return nil, err
	}
	return k.session.Sign(data, k.pub.Size())
}

// Close closes the session, if the key owns it
func (k *PrivateKey) Close() error {
	if !k.owned {
		return nil
	}
	return k.session.Close()
}

// digestInfo returns DER encoded DigestInfo of PKCS #1
func digestInfo(h crypto.Hash, digest []byte) ([]byte, error) {
	alg, ok := oid.DigestAlgorithm[h]
	if !ok {
		return nil, errors.Errorf("unsupported hash: %s", h)
	}
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(alg)
			b.AddASN1NULL()
		})
		b.AddASN1OctetString(digest)
	})
	return b.Bytes()
}

// Signer signs documents with a key on a token, and provides
// the certificate chain of the key
type Signer struct {
	*PrivateKey
	chain []*x509.Certificate
}

// NewSigner returns a signer for the private key found in the session by ID or label.
// The token must hold the certificate of the key and at least two issuers.
func NewSigner(s *Session, id []byte, label string) (*Signer, error) {
	key, err := NewPrivateKey(s, id, label)
	if err != nil {
		return nil, err
	}
	certs, err := s.FindCertificates()
	if err != nil {
		return nil, err
	}
	chain, err := buildChain(key.pub, certs)
	if err != nil {
		return nil, err
	}
	return &Signer{
		PrivateKey: key,
		chain:      chain,
	}, nil
}

// DigestAlgorithmName returns name of the digest algorithm of SignData
func (s *Signer) DigestAlgorithmName() string {
	return "SHA-256"
}

// SignatureAlgorithmName returns name of the signature algorithm of SignData
func (s *Signer) SignatureAlgorithmName() string {
	return "RSA"
}

// SignData signs the data with CKM_SHA256_RSA_PKCS
func (s *Signer) SignData(data []byte) ([]byte, error) {
	return s.sign(pkcs11.CKM_SHA256_RSA_PKCS, data)
}

// Chain returns the certificate of the key followed by its issuers
func (s *Signer) Chain() []*x509.Certificate {
	return s.chain
}

// buildChain returns the certificate of the public key followed by its issuers
func buildChain(pub *rsa.PublicKey, certs []*x509.Certificate) ([]*x509.Certificate, error) {
	if len(certs) < MinChainLength {
		return nil, errors.Errorf("expected at least %d certificates, found %d", MinChainLength, len(certs))
	}

	leaf := certutil.FindByPublicKey(pub, certs)
	if leaf == nil {
		return nil, errors.New("certificate of the key not found")
	}

	chain, err := certutil.BuildChain(leaf, certs)
	if err != nil {
		return nil, err
	}
	if len(chain) < MinChainLength {
		return nil, errors.Errorf("expected at least %d certificates in chain, found %d", MinChainLength, len(chain))
	}
	return chain, nil
}
