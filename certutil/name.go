package certutil

import (
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"strings"
)

const certTimeFormat = "Jan 2 15:04:05 2006 GMT"

// NameToString converts name to string in OpenSSL one-line format
func NameToString(name *pkix.Name) string {
	var parts []string
	add := func(prefix string, values ...string) {
		for _, v := range values {
			if v != "" {
				parts = append(parts, prefix+"="+v)
			}
		}
	}

	add("C", name.Country...)
	add("ST", name.Province...)
	add("L", name.Locality...)
	add("O", name.Organization...)
	add("OU", name.OrganizationalUnit...)
	add("CN", name.CommonName)
	add("SERIALNUMBER", name.SerialNumber)

	return "/" + strings.Join(parts, "/")
}

// Summary returns one line description of the certificate:
// subject;issuer;notBefore;notAfter
func Summary(crt *x509.Certificate) string {
	return fmt.Sprintf("%s;%s;%s;%s",
		NameToString(&crt.Subject),
		NameToString(&crt.Issuer),
		crt.NotBefore.UTC().Format(certTimeFormat),
		crt.NotAfter.UTC().Format(certTimeFormat))
}
