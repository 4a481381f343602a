package cryptoprov

import (
	"crypto"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/cryptoki", "cryptoprov")

// Provider defines an interface to work with a crypto token
type Provider interface {
	// Manufacturer returns the manufacturer of the token
	Manufacturer() string
	// Model returns the model of the token
	Model() string
	// GetKey returns the private key by ID on the current slot
	GetKey(keyID string) (crypto.PrivateKey, error)
	// Close releases the sessions and unloads the library
	Close() error
}

// KeyManager defines an interface for key management operations
type KeyManager interface {
	CurrentSlotID() uint
	EnumTokens(currentSlotOnly bool) ([]TokenInfo, error)
	EnumKeys(slotID uint, prefix string) ([]KeyInfo, error)
	KeyInfo(slotID uint, keyID string, includePublic bool) (*KeyInfo, error)
}

// TokenInfo provides PKCS #11 token info
type TokenInfo struct {
	SlotID       uint
	Description  string
	Label        string
	Manufacturer string
	Model        string
	Serial       string
}

// KeyInfo provides key information
type KeyInfo struct {
	ID        string
	Label     string
	Type      string
	Class     string
	PublicKey string
}

// Crypto exposes instances of Provider
type Crypto struct {
	lock      sync.RWMutex
	provider  Provider
	byManufID map[string]Provider
}

// New creates an instance of Crypto providers
func New(defaultProvider Provider, providers []Provider) (*Crypto, error) {
	if defaultProvider == nil {
		return nil, errors.New("default provider is required")
	}
	c := &Crypto{
		provider:  defaultProvider,
		byManufID: map[string]Provider{},
	}

	for _, p := range providers {
		if err := c.Add(p); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Default returns a default crypto provider
func (c *Crypto) Default() Provider {
	return c.provider
}

// Add will add new provider
func (c *Crypto) Add(p Provider) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.byManufID[providerKey(p.Manufacturer(), p.Model())] = p
	// register the model independent key as well
	if _, ok := c.byManufID[providerKey(p.Manufacturer(), "")]; !ok {
		c.byManufID[providerKey(p.Manufacturer(), "")] = p
	}
	return nil
}

// ByManufacturer returns a provider by manufacturer and model
func (c *Crypto) ByManufacturer(manufacturer, model string) (Provider, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	if p, ok := c.byManufID[providerKey(manufacturer, model)]; ok {
		return p, nil
	}
	return nil, errors.Errorf("provider for %q and model %q not found", manufacturer, model)
}

// Close closes all providers, the first error is returned
func (c *Crypto) Close() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	closed := map[Provider]bool{}
	var first error
	for _, p := range append([]Provider{c.provider}, c.values()...) {
		if closed[p] {
			continue
		}
		closed[p] = true
		if err := p.Close(); err != nil {
			logger.Warningf("reason=close, manufacturer=%q, err=[%+v]", p.Manufacturer(), err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (c *Crypto) values() []Provider {
	list := make([]Provider, 0, len(c.byManufID))
	for _, p := range c.byManufID {
		list = append(list, p)
	}
	return list
}

func providerKey(manufacturer, model string) string {
	return strings.TrimSpace(manufacturer) + "/" + strings.TrimSpace(model)
}
