package ckr

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/miekg/pkcs11"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	tcases := []struct {
		rv   uint64
		exp  Result
		name string
	}{
		{0, OK, "CKR_OK"},
		{0xa0, PINIncorrect, "CKR_PIN_INCORRECT"},
		{0xa4, PINLocked, "CKR_PIN_LOCKED"},
		{0x100, UserAlreadyLoggedIn, "CKR_USER_ALREADY_LOGGED_IN"},
		{0x101, UserNotLoggedIn, "CKR_USER_NOT_LOGGED_IN"},
		{0x150, BufferTooSmall, "CKR_BUFFER_TOO_SMALL"},
		// high bits of 64-bit CK_ULONG are ignored
		{0xFFFFFFFF00000191, CryptokiAlreadyInitialized, "CKR_CRYPTOKI_ALREADY_INITIALIZED"},
	}

	for _, tc := range tcases {
		r := Map(tc.rv)
		assert.Equal(t, tc.exp, r)
		assert.Equal(t, tc.name, r.Name())
		assert.Equal(t, tc.name, r.String())
		assert.True(t, r.Known())
		assert.NotEmpty(t, r.Description())
	}
}

func TestMap_Unrecognized(t *testing.T) {
	r := Map(0x4242)
	assert.False(t, r.Known())
	assert.False(t, r.IsVendorDefined())
	assert.Equal(t, uint32(0x4242), uint32(r))
	assert.Equal(t, "CKR_UNRECOGNIZED(0x00004242)", r.Name())
	assert.Equal(t, "unrecognized result code", r.Description())

	v := Map(0x80000010)
	assert.False(t, v.Known())
	assert.True(t, v.IsVendorDefined())
	assert.Equal(t, "CKR_VENDOR_DEFINED+0x10", v.Name())
	assert.Equal(t, "vendor defined result", v.Description())
}

func TestResults(t *testing.T) {
	list := Results()
	require.Len(t, list, len(results))
	assert.Equal(t, OK, list[0])
	assert.Equal(t, VendorDefined, list[len(list)-1])

	for _, r := range list {
		p, ok := Parse(r.Name())
		require.True(t, ok, r.Name())
		assert.Equal(t, r, p)
	}
	_, ok := Parse("CKR_NOPE")
	assert.False(t, ok)
}

func TestResults_MatchPkcs11Constants(t *testing.T) {
	for code, name := range map[uint]string{
		pkcs11.CKR_OK:                         "CKR_OK",
		pkcs11.CKR_SLOT_ID_INVALID:            "CKR_SLOT_ID_INVALID",
		pkcs11.CKR_PIN_INCORRECT:              "CKR_PIN_INCORRECT",
		pkcs11.CKR_PIN_LOCKED:                 "CKR_PIN_LOCKED",
		pkcs11.CKR_SESSION_HANDLE_INVALID:     "CKR_SESSION_HANDLE_INVALID",
		pkcs11.CKR_OPERATION_ACTIVE:           "CKR_OPERATION_ACTIVE",
		pkcs11.CKR_USER_ALREADY_LOGGED_IN:     "CKR_USER_ALREADY_LOGGED_IN",
		pkcs11.CKR_USER_NOT_LOGGED_IN:         "CKR_USER_NOT_LOGGED_IN",
		pkcs11.CKR_BUFFER_TOO_SMALL:           "CKR_BUFFER_TOO_SMALL",
		pkcs11.CKR_CRYPTOKI_NOT_INITIALIZED:   "CKR_CRYPTOKI_NOT_INITIALIZED",
		pkcs11.CKR_FUNCTION_REJECTED:          "CKR_FUNCTION_REJECTED",
		pkcs11.CKR_ATTRIBUTE_TYPE_INVALID:     "CKR_ATTRIBUTE_TYPE_INVALID",
		pkcs11.CKR_MECHANISM_INVALID:          "CKR_MECHANISM_INVALID",
		pkcs11.CKR_OBJECT_HANDLE_INVALID:      "CKR_OBJECT_HANDLE_INVALID",
		pkcs11.CKR_TOKEN_NOT_PRESENT:          "CKR_TOKEN_NOT_PRESENT",
		pkcs11.CKR_RANDOM_SEED_NOT_SUPPORTED:  "CKR_RANDOM_SEED_NOT_SUPPORTED",
		pkcs11.CKR_USER_PIN_NOT_INITIALIZED:   "CKR_USER_PIN_NOT_INITIALIZED",
		pkcs11.CKR_SESSION_READ_ONLY_EXISTS:   "CKR_SESSION_READ_ONLY_EXISTS",
		pkcs11.CKR_OPERATION_NOT_INITIALIZED:  "CKR_OPERATION_NOT_INITIALIZED",
		pkcs11.CKR_KEY_FUNCTION_NOT_PERMITTED: "CKR_KEY_FUNCTION_NOT_PERMITTED",
	} {
		assert.Equal(t, name, Map(uint64(code)).Name())
	}
}

func TestError(t *testing.T) {
	assert.NoError(t, NewProtocolError("C_Login", OK))

	err := NewProtocolError("C_Login", PINIncorrect)
	require.Error(t, err)
	assert.Equal(t, "C_Login: CKR_PIN_INCORRECT: the PIN is incorrect", err.Error())

	r, ok := ResultOf(err)
	assert.True(t, ok)
	assert.Equal(t, PINIncorrect, r)
	assert.True(t, Is(err, PINIncorrect))
	assert.False(t, Is(err, PINLocked))
	assert.False(t, IsBinding(err))

	wrapped := errors.WithMessage(err, "login failed")
	assert.True(t, Is(wrapped, PINIncorrect))

	var ckErr *Error
	require.True(t, errors.As(wrapped, &ckErr))
	assert.True(t, ckErr.IsProtocol())
	assert.Equal(t, "C_Login", ckErr.Op)
}

func TestError_Binding(t *testing.T) {
	err := NewBindingError("C_SignInit", errors.Wrap(ErrSymbolNotFound, "C_SignInit"))
	require.Error(t, err)
	assert.Equal(t, "C_SignInit: C_SignInit: symbol not found", err.Error())

	_, ok := ResultOf(err)
	assert.False(t, ok)
	assert.True(t, IsBinding(err))
	assert.True(t, errors.Is(err, ErrSymbolNotFound))
	assert.False(t, errors.Is(err, ErrNativeFault))

	err = NewBindingError("C_Sign", nil)
	assert.True(t, errors.Is(err, ErrNativeFault))

	_, ok = ResultOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsBinding(errors.New("plain")))
}
