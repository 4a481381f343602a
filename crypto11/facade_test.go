package crypto11_test

import (
	"testing"
	"time"

	"github.com/effective-security/cryptoki/ckr"
	"github.com/effective-security/cryptoki/crypto11"
	"github.com/effective-security/cryptoki/internal/softtoken"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListSlots(t *testing.T) {
	lib, _ := newToken(t, nil)

	list, err := lib.ListSlots(true)
	require.NoError(t, err)
	assert.Equal(t, []uint{0}, list)

	list, err = lib.ListSlots(false)
	require.NoError(t, err)
	assert.Equal(t, []uint{0, 1}, list)

	si, err := lib.SlotInfo(0)
	require.NoError(t, err)
	assert.Equal(t, "softtoken slot 0", si.Description)
	assert.Equal(t, "Effective Security", si.Manufacturer)
	assert.True(t, si.TokenPresent())
	assert.True(t, si.RemovableDevice())
	assert.True(t, si.HardwareSlot())
	assert.Equal(t, "1.2", si.HardwareVersion)
	assert.Equal(t, "3.4", si.FirmwareVersion)

	si, err = lib.SlotInfo(1)
	require.NoError(t, err)
	assert.False(t, si.TokenPresent())

	_, err = lib.SlotInfo(7)
	assert.True(t, ckr.Is(err, ckr.SlotIDInvalid), "%+v", err)

	labels, err := lib.TokenLabels()
	require.NoError(t, err)
	assert.Equal(t, map[uint]string{0: "cryptoki-test"}, labels)
}

func TestTokenInfo(t *testing.T) {
	lib, _ := newToken(t, nil)

	ti, err := lib.TokenInfo(0)
	require.NoError(t, err)
	assert.Equal(t, "cryptoki-test", ti.Label)
	assert.Equal(t, "Effective Security", ti.Manufacturer)
	assert.Equal(t, "softtoken", ti.Model)
	assert.Equal(t, "0000000000000001", ti.SerialNumber)
	assert.Equal(t, uint(4), ti.MinPinLen)
	assert.Equal(t, uint(32), ti.MaxPinLen)
	assert.Equal(t, uint(0), ti.SessionCount)
	assert.True(t, ti.TokenInitialized())
	assert.True(t, ti.UserPinInitialized())
	assert.True(t, ti.LoginRequired())
	assert.False(t, ti.ProtectedAuthenticationPath())
	assert.False(t, ti.UserPinLocked())
	assert.False(t, ti.SOPinLocked())

	now, err := ti.Time()
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), now, time.Minute)

	_, err = lib.TokenInfo(1)
	assert.True(t, ckr.Is(err, ckr.TokenNotPresent), "%+v", err)

	s, err := lib.OpenSession(0, true)
	require.NoError(t, err)
	defer s.Close()

	ti, err = lib.TokenInfo(0)
	require.NoError(t, err)
	assert.Equal(t, uint(1), ti.SessionCount)
	assert.Equal(t, uint(1), ti.RwSessionCount)
}

func TestCheckPin(t *testing.T) {
	lib, st := newToken(t, nil)

	ok, err := lib.CheckPin(0, userPin)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lib.CheckPin(0, "0000")
	require.NoError(t, err)
	assert.False(t, ok)

	ti, err := lib.TokenInfo(0)
	require.NoError(t, err)
	assert.True(t, ti.UserPinCountLow())
	assert.False(t, ti.UserPinFinalTry())

	assert.Equal(t, 0, st.OpenSessions())
}

func TestChangePin(t *testing.T) {
	lib, _ := newToken(t, nil)

	require.NoError(t, lib.ChangePin(0, userPin, "5678"))

	ok, err := lib.CheckPin(0, "5678")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lib.CheckPin(0, userPin)
	require.NoError(t, err)
	assert.False(t, ok)

	err = lib.ChangePin(0, "5678", "12")
	assert.True(t, ckr.Is(err, ckr.PINLenRange), "%+v", err)

	err = lib.ChangePin(0, "0000", "9999")
	assert.True(t, ckr.Is(err, ckr.PINIncorrect), "%+v", err)
}

func TestUnlock(t *testing.T) {
	lib, st := newToken(t, nil)

	for i := 0; i < softtoken.MaxPINAttempts-1; i++ {
		ok, err := lib.CheckPin(0, "0000")
		require.NoError(t, err)
		assert.False(t, ok)
	}

	ti, err := lib.TokenInfo(0)
	require.NoError(t, err)
	assert.True(t, ti.UserPinFinalTry())

	_, err = lib.CheckPin(0, "0000")
	assert.True(t, ckr.Is(err, ckr.PINLocked), "%+v", err)

	ti, err = lib.TokenInfo(0)
	require.NoError(t, err)
	assert.True(t, ti.UserPinLocked())
	assert.True(t, st.Slot(0).Token.UserPINLocked())

	_, err = lib.CheckPin(0, userPin)
	assert.True(t, ckr.Is(err, ckr.PINLocked), "%+v", err)

	err = lib.Unlock(0, "00000000", "4321")
	assert.True(t, ckr.Is(err, ckr.PINIncorrect), "%+v", err)

	ti, err = lib.TokenInfo(0)
	require.NoError(t, err)
	assert.True(t, ti.SOPinCountLow())

	require.NoError(t, lib.Unlock(0, soPin, "4321"))

	ti, err = lib.TokenInfo(0)
	require.NoError(t, err)
	assert.False(t, ti.UserPinLocked())
	assert.False(t, ti.SOPinCountLow())

	ok, err := lib.CheckPin(0, "4321")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, st.OpenSessions())
}

func TestSessionStateName(t *testing.T) {
	assert.Equal(t, "CKS_RW_SO_FUNCTIONS", crypto11.SessionStateName(4))
	assert.Equal(t, "0x0000ABCD", crypto11.SessionStateName(0xABCD))
	assert.Equal(t, "CKM_SHA256_RSA_PKCS", crypto11.MechanismName(crypto11.SignMechanisms["SHA256withRSA"]))
	assert.Equal(t, "SO", crypto11.UserTypeName(crypto11.UserSO))
	assert.Equal(t, "User", crypto11.UserTypeName(crypto11.UserUser))
	assert.Equal(t, "5", crypto11.UserTypeName(5))
}
