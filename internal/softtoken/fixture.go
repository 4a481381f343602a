package softtoken

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"sync"
	"time"

	"github.com/effective-security/cryptoki/testca"
)

// Identity is a signing key with its certificate chain,
// the leaf is first and the root is last.
type Identity struct {
	Label string
	ID    []byte
	Key   *rsa.PrivateKey
	Chain []*x509.Certificate
}

var (
	identityOnce sync.Once
	identity     *Identity
)

// DefaultIdentity returns the RSA identity loaded into the default token,
// generated once per process
func DefaultIdentity() *Identity {
	identityOnce.Do(func() {
		identity = NewIdentity("signing", []byte{0x01, 0x02})
	})
	return identity
}

// NewIdentity generates RSA-2048 key and a three level chain
func NewIdentity(label string, id []byte) *Identity {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic(err)
	}

	usage := x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	root := testca.NewEntity(
		testca.Authority,
		testca.Subject(pkix.Name{CommonName: "[TEST] Cryptoki Root CA", Organization: []string{"Effective Security"}}),
		testca.KeyUsage(usage),
		testca.NotAfter(time.Now().Add(10*365*24*time.Hour)),
	)
	inter := root.Issue(
		testca.Authority,
		testca.Subject(pkix.Name{CommonName: "[TEST] Cryptoki Issuing CA", Organization: []string{"Effective Security"}}),
		testca.KeyUsage(usage),
		testca.NotAfter(time.Now().Add(5*365*24*time.Hour)),
	)
	leaf := inter.Issue(
		testca.Subject(pkix.Name{CommonName: "[TEST] " + label, Organization: []string{"Effective Security"}}),
		testca.KeyUsage(x509.KeyUsageDigitalSignature|x509.KeyUsageContentCommitment),
		testca.PrivateKey(key),
		testca.NotAfter(time.Now().Add(365*24*time.Hour)),
	)

	return &Identity{
		Label: label,
		ID:    id,
		Key:   key,
		Chain: leaf.Chain(),
	}
}
