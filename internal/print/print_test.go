package print_test

import (
	"bytes"
	"crypto/x509/pkix"
	"testing"

	"github.com/effective-security/cryptoki/crypto11"
	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/effective-security/cryptoki/internal/print"
	"github.com/effective-security/cryptoki/testca"
	"github.com/miekg/pkcs11"
	"github.com/stretchr/testify/assert"
)

func TestCertificates(t *testing.T) {
	root := testca.NewEntity(testca.Authority, testca.Subject(pkix.Name{CommonName: "[TEST] Root"}))
	leaf := root.Issue(testca.Subject(pkix.Name{CommonName: "[TEST] Leaf"}))

	w := bytes.NewBuffer([]byte{})
	print.Certificates(w, leaf.Chain(), false)
	out := w.String()
	assert.Contains(t, out, "Subject: /CN=[TEST] Leaf\n")
	assert.Contains(t, out, "  Issuer: /CN=[TEST] Root\n")
	assert.Contains(t, out, "  CA: true\n")
	assert.Contains(t, out, "  CA: false\n  Usage: signing\n")
	assert.Contains(t, out, "  Usage: signing, cert sign, crl sign\n")
	assert.Contains(t, out, "Expires: ")
	assert.Contains(t, out, "=== 2 ===")

	w.Reset()
	print.Certificates(w, leaf.Chain(), true)
	assert.Equal(t, 2, bytes.Count(w.Bytes(), []byte("\n")))
	assert.Contains(t, w.String(), "/CN=[TEST] Leaf;/CN=[TEST] Root;")
}

func TestTokenInfo(t *testing.T) {
	w := bytes.NewBuffer([]byte{})
	print.TokenInfo(w, &crypto11.TokenInfo{
		SlotID:       2,
		Label:        "token",
		Manufacturer: "Effective Security",
		Flags:        pkcs11.CKF_USER_PIN_INITIALIZED | pkcs11.CKF_USER_PIN_LOCKED | pkcs11.CKF_LOGIN_REQUIRED,
		MinPinLen:    4,
		MaxPinLen:    8,
	})
	out := w.String()
	assert.Contains(t, out, "Slot: 2\n  Label: token\n  Manufacturer: Effective Security\n")
	assert.Contains(t, out, "  PIN length: 4-8\n")
	assert.Contains(t, out, "  User PIN: initialized, locked\n")
	assert.Contains(t, out, "  SO PIN: none\n")
	assert.Contains(t, out, "  Flags: login required\n")
	assert.NotContains(t, out, "Model")

	w.Reset()
	print.SlotInfo(w, &crypto11.SlotInfo{
		ID:          1,
		Description: "reader",
		Flags:       pkcs11.CKF_TOKEN_PRESENT,
	})
	assert.Contains(t, w.String(), "Slot: 1\n  Description: reader\n")
	assert.Contains(t, w.String(), "  Flags: token present\n")
}

func TestKeys(t *testing.T) {
	w := bytes.NewBuffer([]byte{})
	print.Tokens(w, []cryptoprov.TokenInfo{{SlotID: 0, Label: "token", Serial: "0001"}})
	assert.Equal(t, "Slot: 0\n  Token serial: 0001\n  Token label: token\n", w.String())

	w.Reset()
	print.Keys(w, []cryptoprov.KeyInfo{{ID: string([]byte{1, 2}), Label: "signing", Type: "CKK_RSA"}})
	assert.Equal(t, "[0]\n  Id:    0102\n  Label: signing\n  Type: CKK_RSA\n", w.String())
}

func TestJSON(t *testing.T) {
	w := bytes.NewBuffer([]byte{})
	print.JSON(w, map[string]any{"slot": 1, "label": "token"})
	assert.Equal(t, "{\n\t\"label\": \"token\",\n\t\"slot\": 1\n}\n", w.String())

	w.Reset()
	print.JSON(w, make(chan int))
	assert.Contains(t, w.String(), "ERROR: ")
}
