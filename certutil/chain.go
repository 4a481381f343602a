package certutil

import (
	"bytes"
	"crypto"
	"crypto/x509"

	"github.com/cockroachdb/errors"
)

type publicKey interface {
	Equal(crypto.PublicKey) bool
}

// ParseDER parses DER encoded certificates, as stored in CKA_VALUE
func ParseDER(ders ...[]byte) ([]*x509.Certificate, error) {
	list := make([]*x509.Certificate, 0, len(ders))
	for i, der := range ders {
		crt, err := x509.ParseCertificate(der)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to parse certificate %d", i)
		}
		list = append(list, crt)
	}
	return list, nil
}

// FindByPublicKey returns the first certificate of the public key, or nil
func FindByPublicKey(pub crypto.PublicKey, certs []*x509.Certificate) *x509.Certificate {
	for _, crt := range certs {
		if k, ok := crt.PublicKey.(publicKey); ok && k.Equal(pub) {
			return crt
		}
	}
	return nil
}

// FindIssuer returns the certificate from the list that signed crt, or nil
func FindIssuer(crt *x509.Certificate, certs []*x509.Certificate) *x509.Certificate {
	for _, c := range certs {
		if c != crt && bytes.Equal(c.RawSubject, crt.RawIssuer) && crt.CheckSignatureFrom(c) == nil {
			return c
		}
	}
	return nil
}

// IsSelfSigned returns true if the issuer of the certificate is its subject
func IsSelfSigned(crt *x509.Certificate) bool {
	return bytes.Equal(crt.RawIssuer, crt.RawSubject)
}

// BuildChain returns leaf followed by its issuers found in certs,
// up to a self-signed certificate or the first missing issuer
func BuildChain(leaf *x509.Certificate, certs []*x509.Certificate) ([]*x509.Certificate, error) {
	chain := []*x509.Certificate{leaf}
	for crt := leaf; !IsSelfSigned(crt); {
		issuer := FindIssuer(crt, certs)
		if issuer == nil {
			break
		}
		if len(chain) > len(certs) {
			return nil, errors.New("certificate chain has a loop")
		}
		chain = append(chain, issuer)
		crt = issuer
	}
	return chain, nil
}
