// Package oid provides object identifiers and names used by signatures
// and certificates of tokens.
package oid

import (
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"sort"
)

// Digest algorithms of PKCS #1 DigestInfo
var (
	DigestSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	DigestSHA224 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4}
	DigestSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	DigestSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	DigestSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
)

// DigestAlgorithm maps hash functions to the algorithm identifiers
var DigestAlgorithm = map[crypto.Hash]asn1.ObjectIdentifier{
	crypto.SHA1:   DigestSHA1,
	crypto.SHA224: DigestSHA224,
	crypto.SHA256: DigestSHA256,
	crypto.SHA384: DigestSHA384,
	crypto.SHA512: DigestSHA512,
}

// KeyUsageName provides map of names
var KeyUsageName = map[x509.KeyUsage]string{
	x509.KeyUsageDigitalSignature:  "signing",
	x509.KeyUsageContentCommitment: "content commitment",
	x509.KeyUsageKeyEncipherment:   "key encipherment",
	x509.KeyUsageKeyAgreement:      "key agreement",
	x509.KeyUsageDataEncipherment:  "data encipherment",
	x509.KeyUsageCertSign:          "cert sign",
	x509.KeyUsageCRLSign:           "crl sign",
	x509.KeyUsageEncipherOnly:      "encipher only",
	x509.KeyUsageDecipherOnly:      "decipher only",
}

// KeyUsages returns list of names, in the order of the bits
func KeyUsages(ku x509.KeyUsage) []string {
	bits := make([]int, 0, len(KeyUsageName))
	for k := range KeyUsageName {
		if ku&k == k {
			bits = append(bits, int(k))
		}
	}
	sort.Ints(bits)

	list := make([]string, 0, len(bits))
	for _, b := range bits {
		list = append(list, KeyUsageName[x509.KeyUsage(b)])
	}
	return list
}
