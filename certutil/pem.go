package certutil

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// PEM block types
const (
	pemCertificate   = "CERTIFICATE"
	pemPublicKey     = "PUBLIC KEY"
	pemRSAPrivateKey = "RSA PRIVATE KEY"
	pemECPrivateKey  = "EC PRIVATE KEY"
)

// LoadChainFromPEM returns certificates loaded from the file
func LoadChainFromPEM(certFile string) ([]*x509.Certificate, error) {
	b, err := os.ReadFile(certFile)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ParseChainFromPEM(b)
}

// ParseChainFromPEM returns certificates parsed from PEM,
// blocks of other types are skipped
func ParseChainFromPEM(chainPEM []byte) ([]*x509.Certificate, error) {
	var ders [][]byte
	rest := bytes.TrimSpace(chainPEM)
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("potentially malformed PEM")
		}
		if block.Type == pemCertificate {
			ders = append(ders, block.Bytes)
		}
		rest = bytes.TrimSpace(rest)
	}
	return ParseDER(ders...)
}

// comment returns the description of the certificate placed before its PEM block
func comment(crt *x509.Certificate) string {
	return fmt.Sprintf("#   Issuer: %s\n#   Subject: %s\n#   Validity\n#       Not Before: %s\n#       Not After : %s\n",
		NameToString(&crt.Issuer),
		NameToString(&crt.Subject),
		crt.NotBefore.UTC().Format(certTimeFormat),
		crt.NotAfter.UTC().Format(certTimeFormat))
}

// EncodeToPEM writes the certificates in PEM format, with optional comments.
// Nil certificates are skipped.
func EncodeToPEM(out io.Writer, withComments bool, certs ...*x509.Certificate) error {
	for _, crt := range certs {
		if crt == nil {
			continue
		}
		if withComments {
			if _, err := io.WriteString(out, comment(crt)); err != nil {
				return errors.WithStack(err)
			}
		}
		if err := pem.Encode(out, &pem.Block{Type: pemCertificate, Bytes: crt.Raw}); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// EncodeToPEMString returns the certificates in PEM format, with optional comments
func EncodeToPEMString(withComments bool, certs ...*x509.Certificate) (string, error) {
	if len(certs) == 0 || certs[0] == nil {
		return "", nil
	}

	var b strings.Builder
	if err := EncodeToPEM(&b, withComments, certs...); err != nil {
		return "", err
	}
	return strings.TrimSpace(strings.ReplaceAll(b.String(), "\n\n", "\n")), nil
}

// EncodePublicKeyToPEM returns PEM encoded public key
func EncodePublicKeyToPEM(pub crypto.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: der}), nil
}

// EncodePrivateKeyToPEM returns PEM encoded RSA or ECDSA private key
func EncodePrivateKeyToPEM(priv crypto.PrivateKey) ([]byte, error) {
	var block *pem.Block
	switch k := priv.(type) {
	case *rsa.PrivateKey:
		block = &pem.Block{Type: pemRSAPrivateKey, Bytes: x509.MarshalPKCS1PrivateKey(k)}
	case *ecdsa.PrivateKey:
		der, err := x509.MarshalECPrivateKey(k)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		block = &pem.Block{Type: pemECPrivateKey, Bytes: der}
	default:
		return nil, errors.Errorf("unsupported key: %T", priv)
	}
	return pem.EncodeToMemory(block), nil
}
