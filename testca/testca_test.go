package testca

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/effective-security/cryptoki/certutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	assert.NotPanics(t, func() {
		root := NewEntity(
			Authority,
			NotBefore(time.Now()),
			NotAfter(time.Now().Add(100*time.Hour)),
			ExtKeyUsage(x509.ExtKeyUsageCodeSigning),
		)

		err := root.Certificate.CheckSignatureFrom(root.Certificate)
		require.NoError(t, err)
	})
}

func TestSubject(t *testing.T) {
	expected := "foobar"
	root := NewEntity(Subject(pkix.Name{CommonName: expected}))
	assert.Equal(t, expected, root.Certificate.Subject.CommonName, "bad subject")
}

func TestNextSerialNumber(t *testing.T) {
	ca := NewEntity(NextSerialNumber(123)).Issue()
	assert.NotEqual(t, int64(123), ca.Certificate.SerialNumber.Int64())

	e := NewEntity(NextSerialNumber(123))
	assert.Equal(t, int64(123), e.Certificate.SerialNumber.Int64(), "bad SN")
}

func TestPrivateKey(t *testing.T) {
	expected, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	ca := NewEntity(PrivateKey(expected))
	actual := ca.PrivateKey.(*ecdsa.PrivateKey)
	assert.True(t, expected.Equal(actual))
}

func TestIssuer(t *testing.T) {
	root := NewEntity(Authority)
	inter := NewEntity(Issuer(root))

	require.Equal(t, root.Certificate.RawSubject, inter.Certificate.RawIssuer)
	require.NoError(t, inter.Certificate.CheckSignatureFrom(root.Certificate))
}

func TestIsCA(t *testing.T) {
	normal := NewEntity()
	ca := NewEntity(Authority)

	assert.True(t, ca.Certificate.IsCA, "expected CA cert to be CA")
	assert.False(t, normal.Certificate.IsCA, "expected normal cert not to be CA")
}

func TestChain(t *testing.T) {
	ca := NewEntity(Authority)
	inter := ca.Issue(Authority)
	leaf := inter.Issue()

	ch := leaf.Chain()
	require.Len(t, ch, 3)
	assert.True(t, ch[0].Equal(leaf.Certificate))
	assert.True(t, ch[1].Equal(inter.Certificate))
	assert.True(t, ch[2].Equal(ca.Certificate))
}

func TestChainPool(t *testing.T) {
	ca := NewEntity(Authority)
	inter := ca.Issue(Authority)
	leaf := inter.Issue()

	roots := x509.NewCertPool()
	roots.AddCert(ca.Certificate)

	_, err := leaf.Certificate.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: leaf.ChainPool(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	require.NoError(t, err)
}

func TestAIA(t *testing.T) {
	i := NewEntity(IssuingCertificateURL("a", "b"), OCSPServer("c", "d"))

	assert.Equal(t, []string{"a", "b"}, i.Certificate.IssuingCertificateURL)
	assert.Equal(t, []string{"c", "d"}, i.Certificate.OCSPServer)
}

func TestSetSAN(t *testing.T) {
	template := new(x509.Certificate)
	SetSAN(template, []string{
		"localhost",
		"127.0.0.1",
		"denis@effective-security.pt",
		"https://effective-security.pt",
	})
	assert.Equal(t, []string{"localhost"}, template.DNSNames)
	assert.Len(t, template.IPAddresses, 1)
	assert.Equal(t, []string{"denis@effective-security.pt"}, template.EmailAddresses)
	assert.Len(t, template.URIs, 1)
}

func TestSaveCertAndKey(t *testing.T) {
	ca1 := NewEntity(
		Authority,
		Subject(pkix.Name{
			CommonName: "[TEST] Root CA One",
		}),
		KeyUsage(x509.KeyUsageCertSign|x509.KeyUsageCRLSign|x509.KeyUsageDigitalSignature),
	)
	inter1 := ca1.Issue(
		Authority,
		Subject(pkix.Name{
			CommonName: "[TEST] Issuing CA One Level 1",
		}),
		KeyUsage(x509.KeyUsageCertSign|x509.KeyUsageCRLSign|x509.KeyUsageDigitalSignature),
	)
	srv := inter1.Issue(
		Subject(pkix.Name{
			CommonName: "localhost",
		}),
		ExtKeyUsage(x509.ExtKeyUsageServerAuth),
		DNSName("localhost", "127.0.0.1"),
	)

	tmpDir := t.TempDir()
	serverCertFile := filepath.Join(tmpDir, "test-server.pem")
	serverKeyFile := filepath.Join(tmpDir, "test-server-key.pem")

	err := srv.SaveCertAndKey(serverCertFile, serverKeyFile, true)
	require.NoError(t, err)

	chain, err := certutil.LoadChainFromPEM(serverCertFile)
	require.NoError(t, err)
	assert.Len(t, chain, 2)

	_, err = os.Stat(serverKeyFile)
	require.NoError(t, err)
}
