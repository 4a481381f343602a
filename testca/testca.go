// Package testca issues certificate chains for tests.
package testca

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"net/mail"
	"net/url"
	"os"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/certutil"
)

var serialNumber int64 = 1000

// Entity is a certificate with its private key
type Entity struct {
	Subject          pkix.Name
	Issuer           *Entity
	PrivateKey       crypto.Signer
	Certificate      *x509.Certificate
	NextSerialNumber int64

	template *x509.Certificate
}

// Option configures Entity
type Option func(*Entity)

// Authority makes the entity a CA
func Authority(e *Entity) {
	e.template.IsCA = true
	e.template.BasicConstraintsValid = true
	e.template.KeyUsage |= x509.KeyUsageCertSign | x509.KeyUsageCRLSign
}

// Subject sets the subject name
func Subject(value pkix.Name) Option {
	return func(e *Entity) {
		e.Subject = value
	}
}

// Issuer sets the issuing entity, self-signed if not set
func Issuer(value *Entity) Option {
	return func(e *Entity) {
		e.Issuer = value
	}
}

// PrivateKey sets the key of the entity, P-256 is generated if not set
func PrivateKey(value crypto.Signer) Option {
	return func(e *Entity) {
		e.PrivateKey = value
	}
}

// NextSerialNumber sets the serial number of the certificate
func NextSerialNumber(value int64) Option {
	return func(e *Entity) {
		e.NextSerialNumber = value
	}
}

// NotBefore sets the start of the validity
func NotBefore(value time.Time) Option {
	return func(e *Entity) {
		e.template.NotBefore = value
	}
}

// NotAfter sets the end of the validity
func NotAfter(value time.Time) Option {
	return func(e *Entity) {
		e.template.NotAfter = value
	}
}

// KeyUsage sets the key usage
func KeyUsage(value x509.KeyUsage) Option {
	return func(e *Entity) {
		e.template.KeyUsage = value
	}
}

// ExtKeyUsage appends extended key usages
func ExtKeyUsage(value ...x509.ExtKeyUsage) Option {
	return func(e *Entity) {
		e.template.ExtKeyUsage = append(e.template.ExtKeyUsage, value...)
	}
}

// Extensions appends extra extensions
func Extensions(value []pkix.Extension) Option {
	return func(e *Entity) {
		e.template.ExtraExtensions = append(e.template.ExtraExtensions, value...)
	}
}

// DNSName sets SAN
func DNSName(value ...string) Option {
	return func(e *Entity) {
		SetSAN(e.template, value)
	}
}

// IssuingCertificateURL sets AIA issuers
func IssuingCertificateURL(value ...string) Option {
	return func(e *Entity) {
		e.template.IssuingCertificateURL = append(e.template.IssuingCertificateURL, value...)
	}
}

// OCSPServer sets AIA OCSP
func OCSPServer(value ...string) Option {
	return func(e *Entity) {
		e.template.OCSPServer = append(e.template.OCSPServer, value...)
	}
}

// NewEntity returns a new certificate entity
func NewEntity(opts ...Option) *Entity {
	e := &Entity{
		Subject: pkix.Name{CommonName: "[TEST] Entity"},
		template: &x509.Certificate{
			NotBefore: time.Now().Add(-time.Hour),
			NotAfter:  time.Now().Add(24 * time.Hour),
			KeyUsage:  x509.KeyUsageDigitalSignature,
		},
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.PrivateKey == nil {
		k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			panic(err)
		}
		e.PrivateKey = k
	}

	sn := e.NextSerialNumber
	if sn == 0 {
		sn = atomic.AddInt64(&serialNumber, 1)
	}
	e.template.SerialNumber = big.NewInt(sn)
	e.template.Subject = e.Subject

	parent, signer := e.template, e.PrivateKey
	if e.Issuer != nil {
		parent, signer = e.Issuer.Certificate, e.Issuer.PrivateKey
	}

	der, err := x509.CreateCertificate(rand.Reader, e.template, parent, e.PrivateKey.Public(), signer)
	if err != nil {
		panic(err)
	}
	e.Certificate, err = x509.ParseCertificate(der)
	if err != nil {
		panic(err)
	}
	return e
}

// Issue returns a new entity issued by e
func (e *Entity) Issue(opts ...Option) *Entity {
	return NewEntity(append(opts, Issuer(e))...)
}

// Chain returns the certificate of the entity followed by its issuers, up to the root
func (e *Entity) Chain() []*x509.Certificate {
	var chain []*x509.Certificate
	for c := e; c != nil; c = c.Issuer {
		chain = append(chain, c.Certificate)
	}
	return chain
}

// ChainPool returns the pool of issuers, excluding the root
func (e *Entity) ChainPool() *x509.CertPool {
	pool := x509.NewCertPool()
	for c := e.Issuer; c != nil && c.Issuer != nil; c = c.Issuer {
		pool.AddCert(c.Certificate)
	}
	if e.Issuer == nil {
		pool.AddCert(e.Certificate)
	}
	return pool
}

// SaveCertAndKey writes PEM encoded certificate and key files,
// the certificate file includes the issuers if withChain is set
// and the root is excluded.
func (e *Entity) SaveCertAndKey(certFile, keyFile string, withChain bool) error {
	certs := []*x509.Certificate{e.Certificate}
	if withChain {
		chain := e.Chain()
		certs = chain[:len(chain)-1]
		if len(chain) == 1 {
			certs = chain
		}
	}

	pem, err := certutil.EncodeToPEMString(true, certs...)
	if err != nil {
		return err
	}
	if err = os.WriteFile(certFile, []byte(pem+"\n"), 0o664); err != nil {
		return errors.WithStack(err)
	}

	key, err := certutil.EncodePrivateKeyToPEM(e.PrivateKey)
	if err != nil {
		return err
	}
	if err = os.WriteFile(keyFile, key, 0o600); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// SetSAN sets the subject alternative names of the template
func SetSAN(template *x509.Certificate, hosts []string) {
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else if email, err := mail.ParseAddress(h); err == nil && email != nil {
			template.EmailAddresses = append(template.EmailAddresses, email.Address)
		} else if uri, err := url.ParseRequestURI(h); err == nil && uri != nil && uri.Scheme != "" {
			template.URIs = append(template.URIs, uri)
		} else {
			template.DNSNames = append(template.DNSNames, h)
		}
	}
}
