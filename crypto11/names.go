package crypto11

import (
	"fmt"
	"strconv"

	"github.com/miekg/pkcs11"
)

// ObjectClassNames maps CKO_ values to names
var ObjectClassNames = map[uint]string{
	pkcs11.CKO_DATA:              "CKO_DATA",
	pkcs11.CKO_CERTIFICATE:       "CKO_CERTIFICATE",
	pkcs11.CKO_PUBLIC_KEY:        "CKO_PUBLIC_KEY",
	pkcs11.CKO_PRIVATE_KEY:       "CKO_PRIVATE_KEY",
	pkcs11.CKO_SECRET_KEY:        "CKO_SECRET_KEY",
	pkcs11.CKO_HW_FEATURE:        "CKO_HW_FEATURE",
	pkcs11.CKO_DOMAIN_PARAMETERS: "CKO_DOMAIN_PARAMETERS",
	pkcs11.CKO_MECHANISM:         "CKO_MECHANISM",
	pkcs11.CKO_OTP_KEY:           "CKO_OTP_KEY",
}

// KeyTypeNames maps CKK_ values to names
var KeyTypeNames = map[uint]string{
	pkcs11.CKK_RSA:            "CKK_RSA",
	pkcs11.CKK_DSA:            "CKK_DSA",
	pkcs11.CKK_DH:             "CKK_DH",
	pkcs11.CKK_ECDSA:          "CKK_ECDSA",
	pkcs11.CKK_GENERIC_SECRET: "CKK_GENERIC_SECRET",
	pkcs11.CKK_DES3:           "CKK_DES3",
	pkcs11.CKK_AES:            "CKK_AES",
}

// SessionStateNames maps CKS_ values to names
var SessionStateNames = map[uint]string{
	pkcs11.CKS_RO_PUBLIC_SESSION: "CKS_RO_PUBLIC_SESSION",
	pkcs11.CKS_RO_USER_FUNCTIONS: "CKS_RO_USER_FUNCTIONS",
	pkcs11.CKS_RW_PUBLIC_SESSION: "CKS_RW_PUBLIC_SESSION",
	pkcs11.CKS_RW_USER_FUNCTIONS: "CKS_RW_USER_FUNCTIONS",
	pkcs11.CKS_RW_SO_FUNCTIONS:   "CKS_RW_SO_FUNCTIONS",
}

var mechanismNames = map[uint]string{
	pkcs11.CKM_RSA_PKCS:        "CKM_RSA_PKCS",
	pkcs11.CKM_SHA1_RSA_PKCS:   "CKM_SHA1_RSA_PKCS",
	pkcs11.CKM_SHA224_RSA_PKCS: "CKM_SHA224_RSA_PKCS",
	pkcs11.CKM_SHA256_RSA_PKCS: "CKM_SHA256_RSA_PKCS",
	pkcs11.CKM_SHA384_RSA_PKCS: "CKM_SHA384_RSA_PKCS",
	pkcs11.CKM_SHA512_RSA_PKCS: "CKM_SHA512_RSA_PKCS",
	pkcs11.CKM_SHA_1:           "CKM_SHA_1",
	pkcs11.CKM_SHA224:          "CKM_SHA224",
	pkcs11.CKM_SHA256:          "CKM_SHA256",
	pkcs11.CKM_SHA384:          "CKM_SHA384",
	pkcs11.CKM_SHA512:          "CKM_SHA512",
}

// DigestMechanisms maps digest algorithm names to CKM_ values
var DigestMechanisms = map[string]uint{
	"SHA-1":   pkcs11.CKM_SHA_1,
	"SHA-224": pkcs11.CKM_SHA224,
	"SHA-256": pkcs11.CKM_SHA256,
	"SHA-384": pkcs11.CKM_SHA384,
	"SHA-512": pkcs11.CKM_SHA512,
}

// SignMechanisms maps signature algorithm names to CKM_ values
var SignMechanisms = map[string]uint{
	"RSA":           pkcs11.CKM_RSA_PKCS,
	"SHA1withRSA":   pkcs11.CKM_SHA1_RSA_PKCS,
	"SHA224withRSA": pkcs11.CKM_SHA224_RSA_PKCS,
	"SHA256withRSA": pkcs11.CKM_SHA256_RSA_PKCS,
	"SHA384withRSA": pkcs11.CKM_SHA384_RSA_PKCS,
	"SHA512withRSA": pkcs11.CKM_SHA512_RSA_PKCS,
}

// SessionStateName returns name of the session state
func SessionStateName(state uint) string {
	return nameOf(SessionStateNames, state)
}

// MechanismName returns name of the mechanism
func MechanismName(mech uint) string {
	return nameOf(mechanismNames, mech)
}

// UserTypeName returns name of the user type
func UserTypeName(userType uint) string {
	switch userType {
	case pkcs11.CKU_SO:
		return "SO"
	case pkcs11.CKU_USER:
		return "User"
	}
	return strconv.FormatUint(uint64(userType), 10)
}

func nameOf(names map[uint]string, v uint) string {
	if n, ok := names[v]; ok {
		return n
	}
	return fmt.Sprintf("0x%08X", v)
}

func slotName(slotID uint) string {
	return strconv.FormatUint(uint64(slotID), 10)
}
