package cryptoprov

import (
	"crypto"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
)

// NewSignerFromFile returns a signer for the PKCS#11 key URI stored in the file
func (c *Crypto) NewSignerFromFile(keyFile string) (crypto.Signer, error) {
	b, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, errors.WithMessage(err, "load key file")
	}

	s, err := c.NewSigner(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, errors.WithMessagef(err, "load key from file: %s", keyFile)
	}
	return s, nil
}

// NewSigner returns a signer for the PKCS#11 key URI
func (c *Crypto) NewSigner(uri string) (crypto.Signer, error) {
	_, pvk, err := c.LoadPrivateKey(uri)
	if err != nil {
		return nil, err
	}
	if s, ok := pvk.(crypto.Signer); ok {
		return s, nil
	}
	return nil, errors.Errorf("loaded key of %T type does not support crypto.Signer", pvk)
}

// LoadPrivateKey returns the provider and the private key of the PKCS#11 key URI.
// If the URI has a serial, it must match the current token of the provider.
func (c *Crypto) LoadPrivateKey(uri string) (Provider, crypto.PrivateKey, error) {
	keyURI, err := ParsePrivateKeyURI(uri)
	if err != nil {
		return nil, nil, errors.WithMessage(err, "failed to parse key")
	}

	manufacturer, model := keyURI.Manufacturer(), keyURI.Model()
	provider, err := c.ByManufacturer(manufacturer, model)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "provider not found: %s model: %s", manufacturer, model)
	}

	if serial := keyURI.Serial(); serial != "" {
		if err = checkSerial(provider, serial); err != nil {
			return nil, nil, err
		}
	}

	pvk, err := provider.GetKey(keyURI.ID())
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "unable to get key: %s", keyURI.ID())
	}
	return provider, pvk, nil
}

// checkSerial verifies the token serial of providers managing tokens
func checkSerial(provider Provider, serial string) error {
	km, ok := provider.(KeyManager)
	if !ok {
		return nil
	}
	tokens, err := km.EnumTokens(true)
	if err != nil {
		return errors.WithMessage(err, "unable to enumerate tokens")
	}
	if len(tokens) == 0 {
		return errors.Errorf("token not found: serial=%s", serial)
	}
	if tokens[0].Serial != serial {
		return errors.Errorf("token serial mismatch: expected %s, found %s", serial, tokens[0].Serial)
	}
	return nil
}
