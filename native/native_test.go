package native

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryFileName(t *testing.T) {
	tcases := []struct {
		goos, name, exp string
	}{
		{"linux", "", "libcryptoki.so"},
		{"linux", "cryptoki", "libcryptoki.so"},
		{"linux", "softhsm2", "libsofthsm2.so"},
		{"linux", "/usr/lib/softhsm/libsofthsm2.so", "/usr/lib/softhsm/libsofthsm2.so"},
		{"linux", "opensc-pkcs11.so", "opensc-pkcs11.so"},
		{"darwin", "cryptoki", "libcryptoki.dylib"},
		{"windows", "cryptoki", "cryptoki.dll"},
		{"windows", `C:\Windows\System32\eTPKCS11.dll`, `C:\Windows\System32\eTPKCS11.dll`},
	}
	for _, tc := range tcases {
		assert.Equal(t, tc.exp, LibraryFileName(tc.goos, tc.name), "%s/%s", tc.goos, tc.name)
	}
}

func TestOpen_NotFound(t *testing.T) {
	_, err := Open("/nonexisting/libnothere.so")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ckr.ErrLibraryLoad))
}

func TestInvoke(t *testing.T) {
	var got []uintptr
	p := ProcFunc(func(args ...uintptr) uintptr {
		got = args
		return 0xa0
	})

	rv, err := Invoke("C_Login", p, 1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xa0), rv)
	assert.Equal(t, []uintptr{1, 2, 3}, got)

	_, err = Invoke("C_Login", p, 1, 2, 3, 4, 5, 6, 7)
	require.Error(t, err)
	assert.True(t, ckr.IsBinding(err))
}

func TestInvoke_Fault(t *testing.T) {
	p := ProcFunc(func(args ...uintptr) uintptr {
		var m map[string]int
		m["boom"] = 1
		return 0
	})

	_, err := Invoke("C_Sign", p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ckr.ErrNativeFault))
	assert.True(t, ckr.IsBinding(err))
	_, ok := ckr.ResultOf(err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "C_Sign")
}

func TestArena(t *testing.T) {
	var a Arena

	b, addr := a.Alloc(0)
	assert.Nil(t, b)
	assert.Zero(t, addr)
	assert.Zero(t, a.Copy(nil))

	empty := a.Copy([]byte{})
	assert.NotZero(t, empty)

	b, addr = a.Alloc(16)
	require.Len(t, b, 16)
	require.NotZero(t, addr)
	copy(b, "0123456789abcdef")
	assert.Equal(t, "0123456789abcdef", string(Memory(addr, 16)))

	pin := a.Copy([]byte("1234"))
	mem := Memory(pin, 4)
	assert.Equal(t, "1234", string(mem))

	a.Free()
	assert.Equal(t, make([]byte, 16), b, "buffers are wiped")
	assert.Equal(t, []byte{0, 0, 0, 0}, mem)

	assert.Nil(t, Memory(0, 10))
	assert.Nil(t, Memory(addr, 0))
}
