package crypto11_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/effective-security/cryptoki/ckabi"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/crypto11"
	"github.com/effective-security/cryptoki/cryptoki"
	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/effective-security/cryptoki/internal/softtoken"
	"github.com/miekg/pkcs11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	userPin = "1234"
	soPin   = "12345678"
)

func newToken(t *testing.T, cfg cryptoprov.TokenConfig, opts ...softtoken.Option) (*crypto11.PKCS11Lib, *softtoken.Library) {
	cat := ckabi.Aligned()
	st := softtoken.New(cat, opts...)
	lib, err := crypto11.Configure(cfg, cryptoki.Bind(st, cat))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = lib.Close()
	})
	return lib, st
}

func TestConfigure(t *testing.T) {
	lib, st := newToken(t, nil)

	assert.True(t, st.Initialized())
	assert.True(t, lib.Initialized())
	require.NotNil(t, lib.Slot)
	assert.Equal(t, uint(0), lib.Slot.ID())
	assert.Equal(t, uint(0), lib.CurrentSlotID())
	assert.Equal(t, "cryptoki-test", lib.Slot.Label())
	assert.Equal(t, "0000000000000001", lib.Slot.Serial())
	assert.Equal(t, "Effective Security", lib.Manufacturer())
	assert.Equal(t, "softtoken", lib.Model())

	info, err := lib.ModuleInfo()
	require.NoError(t, err)
	assert.Equal(t, "Effective Security", info.ManufacturerID)
	assert.Equal(t, "Simulated PKCS#11 token", info.LibraryDescription)
	assert.Equal(t, "2.40", info.CryptokiVersion.String())
}

func TestConfigureFromFile(t *testing.T) {
	cfg, err := cryptoprov.LoadTokenConfig("testdata/softtoken.yaml")
	require.NoError(t, err)
	assert.Equal(t, userPin, cfg.Pin())

	lib, _ := newToken(t, cfg)
	assert.Equal(t, "cryptoki-test", lib.Slot.Label())
	assert.Equal(t, "Effective Security", lib.Manufacturer())

	// slot 1 has no token
	cfg, err = cryptoprov.LoadTokenConfig("testdata/slot1.yaml")
	require.NoError(t, err)
	cat := ckabi.Aligned()
	st := softtoken.New(cat)
	_, err = crypto11.Configure(cfg, cryptoki.Bind(st, cat))
	assert.EqualError(t, err, "no token in slot 1")
	assert.False(t, st.Initialized())

	_, err = crypto11.ConfigureFromFile("testdata/missing.yaml")
	assert.Error(t, err)
}

func TestConfigureByLabel(t *testing.T) {
	lib, _ := newToken(t, cryptoprov.NewTokenConfig("", "", "cryptoki-test", userPin))
	assert.Equal(t, uint(0), lib.CurrentSlotID())

	cat := ckabi.Aligned()
	_, err := crypto11.Configure(
		cryptoprov.NewTokenConfig("", "", "unknown", ""),
		cryptoki.Bind(softtoken.New(cat), cat))
	assert.EqualError(t, err, `no slot with serial "" or label "unknown"`)
}

func TestConfigureNoToken(t *testing.T) {
	lib, _ := newToken(t, nil, softtoken.WithSlots(&softtoken.Slot{Description: "empty"}))
	assert.Nil(t, lib.Slot)
	assert.Equal(t, uint(0), lib.CurrentSlotID())
	assert.Empty(t, lib.Manufacturer())

	_, err := lib.EnumTokens(true)
	assert.EqualError(t, err, "no token selected")
	_, err = lib.GetKey("id")
	assert.EqualError(t, err, "no token selected")
}

func TestInitializeOnce(t *testing.T) {
	cat := ckabi.Aligned()
	st := softtoken.New(cat)
	ctx := cryptoki.Bind(st, cat)

	lib, err := crypto11.Configure(nil, ctx)
	require.NoError(t, err)
	require.NoError(t, lib.Initialize())
	assert.Equal(t, 1, st.Calls(cryptoki.FnInitialize))

	// the module initialized by another user is accepted
	lib2, err := crypto11.Configure(nil, ctx)
	require.NoError(t, err)
	assert.True(t, lib2.Initialized())
	assert.Equal(t, 2, st.Calls(cryptoki.FnInitialize))

	require.NoError(t, lib.Finalize())
	require.NoError(t, lib.Finalize())
	assert.Equal(t, 1, st.Calls(cryptoki.FnFinalize))
	assert.False(t, lib.Initialized())

	// finalized by lib
	err = lib2.Close()
	assert.True(t, ckr.Is(err, ckr.CryptokiNotInitialized), "%+v", err)
}

func TestClose(t *testing.T) {
	cat := ckabi.Aligned()
	st := softtoken.New(cat)
	lib, err := crypto11.Configure(nil, cryptoki.Bind(st, cat))
	require.NoError(t, err)

	require.NoError(t, lib.Close())
	require.NoError(t, lib.Close())
	assert.True(t, st.Closed())
	assert.False(t, st.Initialized())
	assert.Equal(t, 1, st.Calls(cryptoki.FnFinalize))

	assert.EqualError(t, lib.Initialize(), "module is closed")
}

func TestLibraryName(t *testing.T) {
	t.Setenv(crypto11.EnvLibraryName, "")
	assert.Equal(t, "cryptoki", crypto11.LibraryName())

	t.Setenv(crypto11.EnvLibraryName, "softhsm2")
	assert.Equal(t, "softhsm2", crypto11.LibraryName())
}

func TestInitNotFound(t *testing.T) {
	cfg := cryptoprov.NewTokenConfig("", "/not/found/libcryptoki.so", "", "")
	_, err := crypto11.Init(cfg)
	require.Error(t, err)
	assert.True(t, ckr.IsBinding(err), "%+v", err)

	_, err = crypto11.LoadProvider(cfg)
	require.Error(t, err)
	assert.True(t, ckr.IsBinding(err), "%+v", err)
}

func loadConfig(t *testing.T, yml string) cryptoprov.TokenConfig {
	file := filepath.Join(t.TempDir(), "token.yaml")
	require.NoError(t, os.WriteFile(file, []byte(yml), 0o600))
	cfg, err := cryptoprov.LoadTokenConfig(file)
	require.NoError(t, err)
	return cfg
}

func TestConfigureFindBatch(t *testing.T) {
	lib, st := newToken(t, loadConfig(t, "manufacturer: Effective Security\nattributes: FindBatch=2\n"))

	s, err := lib.OpenSession(0, false)
	require.NoError(t, err)
	defer s.Close()

	st.ResetCalls()
	certs, err := s.FindObjectsByClass(pkcs11.CKO_CERTIFICATE)
	require.NoError(t, err)
	assert.Len(t, certs, 3)
	assert.Equal(t, 2, st.Calls(cryptoki.FnFindObjects))

	for _, attrs := range []string{"FindBatch=0", "FindBatch=x", "FindBatch=1001", "FindBatch"} {
		cat := ckabi.Aligned()
		st := softtoken.New(cat)
		_, err := crypto11.Configure(loadConfig(t, "attributes: "+attrs+"\n"), cryptoki.Bind(st, cat))
		assert.Error(t, err, attrs)
		assert.False(t, st.Initialized())
	}
}
