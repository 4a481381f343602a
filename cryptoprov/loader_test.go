package cryptoprov_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func registerMock(t *testing.T, manufacturer string, loader cryptoprov.ProviderLoader) {
	require.NoError(t, cryptoprov.Register(manufacturer, loader))
	t.Cleanup(func() {
		_, _ = cryptoprov.Unregister(manufacturer)
	})
}

func mockLoader(cfg cryptoprov.TokenConfig) (cryptoprov.Provider, error) {
	p := newMockProvider(cfg.Manufacturer(), cfg.Model())
	p.On("Close").Return(nil)
	return p, nil
}

func TestRegister(t *testing.T) {
	registerMock(t, "Mock", mockLoader)

	assert.Contains(t, cryptoprov.Registered(), "Mock")
	assert.EqualError(t, cryptoprov.Register("Mock", mockLoader), "already registered: Mock")

	loader, err := cryptoprov.Unregister("Mock")
	require.NoError(t, err)
	assert.NotNil(t, loader)
	assert.NotContains(t, cryptoprov.Registered(), "Mock")

	_, err = cryptoprov.Unregister("Mock")
	assert.EqualError(t, err, "not registered: Mock")
}

func TestLoadProvider(t *testing.T) {
	registerMock(t, "Mock", mockLoader)

	p, err := cryptoprov.LoadProvider("testdata/mock.yaml")
	require.NoError(t, err)
	assert.Equal(t, "Mock", p.Manufacturer())
	assert.Equal(t, "v1", p.Model())

	_, err = cryptoprov.LoadProvider("testdata/mock2.json")
	assert.EqualError(t, err, "provider not registered: Mock2")

	_, err = cryptoprov.LoadProvider("testdata/notfound.yaml")
	assert.Error(t, err)

	registerMock(t, "Mock2", func(cfg cryptoprov.TokenConfig) (cryptoprov.Provider, error) {
		return nil, errors.Errorf("unable to load %s", cfg.Path())
	})
	_, err = cryptoprov.LoadProvider("testdata/mock2.json")
	assert.EqualError(t, err, "unable to load mock2")
}

func TestLoad(t *testing.T) {
	registerMock(t, "Mock", mockLoader)
	registerMock(t, "Mock2", mockLoader)

	c, err := cryptoprov.Load("testdata/mock.yaml", []string{"testdata/mock2.json"})
	require.NoError(t, err)
	assert.Equal(t, "Mock", c.Default().Manufacturer())

	p, err := c.ByManufacturer("Mock", "v1")
	require.NoError(t, err)
	assert.Same(t, c.Default(), p)

	p, err = c.ByManufacturer("Mock2", "")
	require.NoError(t, err)
	assert.Equal(t, "Mock2", p.Manufacturer())
	require.NoError(t, c.Close())

	_, err = cryptoprov.Load("testdata/mock.yaml", []string{"testdata/notfound.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: testdata/notfound.yaml")

	_, err = cryptoprov.Load("testdata/notfound.yaml", nil)
	assert.Error(t, err)
}

func TestLoaders(t *testing.T) {
	l := cryptoprov.NewLoaders()
	cfg := cryptoprov.NewTokenConfig("Vendor", "vendor.so", "", "")

	_, err := l.Load(cfg)
	assert.EqualError(t, err, "provider not registered: Vendor")

	var loaded []string
	fallback := func(cfg cryptoprov.TokenConfig) (cryptoprov.Provider, error) {
		loaded = append(loaded, "fallback:"+cfg.Manufacturer())
		return mockLoader(cfg)
	}
	assert.Nil(t, l.SetFallback(fallback))

	p, err := l.Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, "Vendor", p.Manufacturer())

	require.NoError(t, l.Register("Vendor", func(cfg cryptoprov.TokenConfig) (cryptoprov.Provider, error) {
		loaded = append(loaded, "vendor")
		return mockLoader(cfg)
	}))
	assert.Equal(t, []string{"Vendor"}, l.Registered())

	_, err = l.Load(cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"fallback:Vendor", "vendor"}, loaded)

	assert.NotNil(t, l.SetFallback(nil))
	_, err = l.Unregister("Vendor")
	require.NoError(t, err)
	assert.Empty(t, l.Registered())

	_, err = l.Load(cfg)
	assert.EqualError(t, err, "provider not registered: Vendor")
}
