package crypto11

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/certutil"
)

// getPublicKeyPEM returns PEM encoded public key of the key
func getPublicKeyPEM(key *PrivateKey) (string, error) {
	pemKey, err := certutil.EncodePublicKeyToPEM(key.Public())
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(pemKey), nil
}

// TokenLabels returns labels of the tokens, indexed by slot ID
func (p11lib *PKCS11Lib) TokenLabels() (map[uint]string, error) {
	list, err := p11lib.TokensInfo()
	if err != nil {
		return nil, err
	}
	res := make(map[uint]string, len(list))
	for _, ti := range list {
		res[ti.id] = ti.label
	}
	return res, nil
}
