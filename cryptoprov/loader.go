package cryptoprov

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
)

// ProviderLoader creates a provider for the token configuration
type ProviderLoader func(cfg TokenConfig) (Provider, error)

// Loaders keeps provider loaders by token manufacturer.
// A manufacturer without a registered loader is served by the fallback,
// which is the generic PKCS#11 binding in a typical setup.
type Loaders struct {
	lock     sync.RWMutex
	byName   map[string]ProviderLoader
	fallback ProviderLoader
}

// NewLoaders returns an empty registry
func NewLoaders() *Loaders {
	return &Loaders{byName: map[string]ProviderLoader{}}
}

var defaultLoaders = NewLoaders()

// Register adds the loader for the manufacturer
func (l *Loaders) Register(manufacturer string, loader ProviderLoader) error {
	l.lock.Lock()
	defer l.lock.Unlock()

	if _, ok := l.byName[manufacturer]; ok {
		return errors.Errorf("already registered: %s", manufacturer)
	}
	l.byName[manufacturer] = loader
	return nil
}

// Unregister removes and returns the loader of the manufacturer
func (l *Loaders) Unregister(manufacturer string) (ProviderLoader, error) {
	l.lock.Lock()
	defer l.lock.Unlock()

	loader, ok := l.byName[manufacturer]
	if !ok {
		return nil, errors.Errorf("not registered: %s", manufacturer)
	}
	delete(l.byName, manufacturer)
	return loader, nil
}

// SetFallback sets the loader for manufacturers without a registered one,
// and returns the previous fallback
func (l *Loaders) SetFallback(loader ProviderLoader) ProviderLoader {
	l.lock.Lock()
	defer l.lock.Unlock()

	prev := l.fallback
	l.fallback = loader
	return prev
}

// Registered returns sorted manufacturers with a loader
func (l *Loaders) Registered() []string {
	l.lock.RLock()
	defer l.lock.RUnlock()

	list := make([]string, 0, len(l.byName))
	for m := range l.byName {
		list = append(list, m)
	}
	sort.Strings(list)
	return list
}

func (l *Loaders) find(manufacturer string) (ProviderLoader, bool) {
	l.lock.RLock()
	defer l.lock.RUnlock()

	if loader, ok := l.byName[manufacturer]; ok {
		return loader, true
	}
	return l.fallback, l.fallback != nil
}

// Load creates a provider with the loader of the configured manufacturer
func (l *Loaders) Load(tc TokenConfig) (Provider, error) {
	manufacturer := tc.Manufacturer()
	loader, ok := l.find(manufacturer)
	if !ok {
		return nil, errors.Errorf("provider not registered: %s", manufacturer)
	}

	logger.KV(xlog.DEBUG,
		"reason", "load",
		"manufacturer", manufacturer,
		"model", tc.Model(),
		"path", tc.Path())

	return loader(tc)
}

// Register provider loader by manufacturer
func Register(manufacturer string, loader ProviderLoader) error {
	return defaultLoaders.Register(manufacturer, loader)
}

// Unregister provider loader by manufacturer
func Unregister(manufacturer string) (ProviderLoader, error) {
	return defaultLoaders.Unregister(manufacturer)
}

// SetFallbackLoader sets the loader used when the manufacturer is not registered
func SetFallbackLoader(loader ProviderLoader) ProviderLoader {
	return defaultLoaders.SetFallback(loader)
}

// Registered returns registered providers
func Registered() []string {
	return defaultLoaders.Registered()
}

// LoadProvider loads a single provider from the configuration file
func LoadProvider(configLocation string) (Provider, error) {
	tc, err := LoadTokenConfig(configLocation)
	if err != nil {
		return nil, err
	}
	return LoadProviderWithConfig(tc)
}

// LoadProviderWithConfig loads a single provider with the configuration
func LoadProviderWithConfig(tc TokenConfig) (Provider, error) {
	return defaultLoaders.Load(tc)
}

// Load returns Crypto with the default provider and the providers from
// the given config locations. Loaded providers are closed on failure.
func Load(defaultConfig string, providersConfigs []string) (*Crypto, error) {
	p, err := LoadProvider(defaultConfig)
	if err != nil {
		return nil, err
	}

	c, err := New(p, nil)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	if err = c.Add(p); err != nil {
		_ = c.Close()
		return nil, err
	}
	for _, location := range providersConfigs {
		p, err := LoadProvider(location)
		if err != nil {
			_ = c.Close()
			return nil, errors.WithMessagef(err, "config: %s", location)
		}
		if err = c.Add(p); err != nil {
			_ = p.Close()
			_ = c.Close()
			return nil, err
		}
	}
	return c, nil
}
