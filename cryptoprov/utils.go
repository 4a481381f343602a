package cryptoprov

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// PrivateKeyURI holds the attributes of a PKCS#11 key URI:
//
//	pkcs11:manufacturer=SoftHSM;model=v2;serial=0001;token=label;id=key01;type=private
type PrivateKeyURI interface {
	Manufacturer() string
	Model() string
	Serial() string
	TokenLabel() string
	ID() string
	Label() string
}

type keyURI struct {
	manufacturer string
	model        string
	serial       string
	token        string
	id           string
	object       string
}

func (k *keyURI) Manufacturer() string { return k.manufacturer }
func (k *keyURI) Model() string        { return k.model }
func (k *keyURI) Serial() string       { return k.serial }
func (k *keyURI) TokenLabel() string   { return k.token }
func (k *keyURI) ID() string           { return k.id }
func (k *keyURI) Label() string        { return k.object }

// ParsePrivateKeyURI parses PKCS#11 key URI.
// Values may be percent-encoded.
func ParsePrivateKeyURI(uri string) (PrivateKeyURI, error) {
	const prefix = "pkcs11:"
	if !strings.HasPrefix(uri, prefix) {
		return nil, errors.Errorf("invalid URI: %q", uri)
	}

	k := new(keyURI)
	for _, attr := range strings.Split(uri[len(prefix):], ";") {
		if attr == "" {
			continue
		}
		name, value, ok := strings.Cut(attr, "=")
		if !ok {
			return nil, errors.Errorf("invalid attribute %q in URI: %q", attr, uri)
		}
		value, err := url.PathUnescape(value)
		if err != nil {
			return nil, errors.WithMessagef(err, "invalid value of %q", name)
		}

		switch strings.TrimSpace(name) {
		case "manufacturer":
			k.manufacturer = value
		case "model":
			k.model = value
		case "serial":
			k.serial = value
		case "token":
			k.token = value
		case "id":
			k.id = value
		case "object":
			k.object = value
		case "type":
			if value != "private" {
				return nil, errors.Errorf("unsupported object type: %q", value)
			}
		default:
			logger.Debugf("reason=unknown_attribute, name=%q", name)
		}
	}

	if k.manufacturer == "" {
		return nil, errors.Errorf("manufacturer is missing in URI: %q", uri)
	}
	if k.id == "" {
		return nil, errors.Errorf("id is missing in URI: %q", uri)
	}
	return k, nil
}

// KeyURI returns PKCS#11 URI of the key
func KeyURI(manufacturer, model, serial, id string) string {
	var b strings.Builder
	b.WriteString("pkcs11:manufacturer=")
	b.WriteString(url.PathEscape(manufacturer))
	if model != "" {
		b.WriteString(";model=")
		b.WriteString(url.PathEscape(model))
	}
	if serial != "" {
		b.WriteString(";serial=")
		b.WriteString(url.PathEscape(serial))
	}
	b.WriteString(";id=")
	b.WriteString(url.PathEscape(id))
	b.WriteString(";type=private")
	return b.String()
}
