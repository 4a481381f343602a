package ckabi

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/cryptoki/ckr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offsets map[string]int

func TestLayouts(t *testing.T) {
	tcases := []struct {
		cat   *Catalog
		name  string
		size  int
		start offsets
	}{
		{Aligned(), CKVersion, 2, offsets{"major": 0, "minor": 1}},
		{Aligned(), CKInfo, 88, offsets{"cryptokiVersion": 0, "manufacturerID": 2, "flags": 40, "libraryDescription": 48, "libraryVersion": 80}},
		{Aligned(), CKSlotInfo, 112, offsets{"slotDescription": 0, "manufacturerID": 64, "flags": 96, "hardwareVersion": 104, "firmwareVersion": 106}},
		{Aligned(), CKTokenInfo, 208, offsets{"label": 0, "manufacturerID": 32, "model": 64, "serialNumber": 80, "flags": 96, "ulMaxSessionCount": 104, "ulFreePrivateMemory": 176, "hardwareVersion": 184, "firmwareVersion": 186, "utcTime": 188}},
		{Aligned(), CKSessionInfo, 32, offsets{"slotID": 0, "state": 8, "flags": 16, "ulDeviceError": 24}},
		{Aligned(), CKAttribute, 24, offsets{"type": 0, "pValue": 8, "ulValueLen": 16}},
		{Aligned(), CKMechanism, 24, offsets{"mechanism": 0, "pParameter": 8, "ulParameterLen": 16}},

		{Packed(), CKVersion, 2, offsets{"major": 0, "minor": 1}},
		{Packed(), CKInfo, 72, offsets{"cryptokiVersion": 0, "manufacturerID": 2, "flags": 34, "libraryDescription": 38, "libraryVersion": 70}},
		{Packed(), CKSlotInfo, 104, offsets{"slotDescription": 0, "manufacturerID": 64, "flags": 96, "hardwareVersion": 100, "firmwareVersion": 102}},
		{Packed(), CKTokenInfo, 160, offsets{"label": 0, "manufacturerID": 32, "model": 64, "serialNumber": 80, "flags": 96, "ulMaxSessionCount": 100, "ulFreePrivateMemory": 136, "hardwareVersion": 140, "firmwareVersion": 142, "utcTime": 144}},
		{Packed(), CKSessionInfo, 16, offsets{"slotID": 0, "state": 4, "flags": 8, "ulDeviceError": 12}},
		{Packed(), CKAttribute, 16, offsets{"type": 0, "pValue": 4, "ulValueLen": 12}},
		{Packed(), CKMechanism, 16, offsets{"mechanism": 0, "pParameter": 4, "ulParameterLen": 12}},
	}

	for _, tc := range tcases {
		t.Run(tc.cat.Name()+"/"+tc.name, func(t *testing.T) {
			s := tc.cat.Struct(tc.name)
			require.NotNil(t, s)
			assert.Equal(t, tc.size, s.Size)
			assert.Equal(t, tc.size, tc.cat.Sizeof(tc.name))
			for name, off := range tc.start {
				assert.Equal(t, off, s.Offset(name), name)
			}
		})
	}
}

func TestLayouts_OrderedAndNonOverlapping(t *testing.T) {
	for _, cat := range []*Catalog{Aligned(), Packed()} {
		assert.Len(t, cat.Names(), 7)
		for _, name := range cat.Names() {
			s := cat.MustStruct(name)
			end := 0
			for _, f := range s.Fields {
				assert.GreaterOrEqual(t, f.Offset, end, "%s/%s.%s", cat.Name(), name, f.Name)
				if cat.IsPacked() {
					assert.Equal(t, end, f.Offset, "packed layout has no padding: %s.%s", name, f.Name)
				}
				end = f.Offset + f.Size
			}
			assert.LessOrEqual(t, end, s.Size)
		}
	}
}

func TestWidths(t *testing.T) {
	assert.Equal(t, 8, Aligned().ULongSize())
	assert.Equal(t, 8, Aligned().PointerSize())
	assert.False(t, Aligned().IsPacked())
	assert.Equal(t, uint64(0xFFFFFFFFFFFFFFFF), Aligned().UnavailableInformation())

	assert.Equal(t, 4, Packed().ULongSize())
	assert.Equal(t, 8, Packed().PointerSize())
	assert.True(t, Packed().IsPacked())
	assert.Equal(t, uint64(0xFFFFFFFF), Packed().UnavailableInformation())

	assert.Equal(t, []byte{0x34, 0x12, 0, 0}, Packed().ULongBytes(0x1234))
	assert.Equal(t, []byte{0x34, 0x12, 0, 0, 0, 0, 0, 0}, Aligned().ULongBytes(0x1234))
}

func TestByteDumps(t *testing.T) {
	t.Run("session_info", func(t *testing.T) {
		for cat, exp := range map[*Catalog]string{
			Aligned(): "0100000000000000" + "0300000000000000" + "0600000000000000" + "0000000000000000",
			Packed():  "01000000" + "03000000" + "06000000" + "00000000",
		} {
			v := cat.New(CKSessionInfo)
			v.SetULong("slotID", 1)
			v.SetULong("state", 3)
			v.SetULong("flags", 6)
			assert.Equal(t, exp, hex.EncodeToString(v.Bytes()), cat.Name())
		}
	})

	t.Run("attribute", func(t *testing.T) {
		for cat, exp := range map[*Catalog]string{
			Aligned(): "1100000000000000" + "8877665544332211" + "0500000000000000",
			Packed():  "11000000" + "8877665544332211" + "05000000",
		} {
			v := cat.New(CKAttribute)
			v.SetULong("type", 0x11)
			v.SetPointer("pValue", 0x1122334455667788)
			v.SetULong("ulValueLen", 5)
			assert.Equal(t, exp, hex.EncodeToString(v.Bytes()), cat.Name())
			assert.Equal(t, uintptr(0x1122334455667788), v.Pointer("pValue"))
		}
	})

	t.Run("info", func(t *testing.T) {
		man := "Acme" + strings.Repeat(" ", 28)
		desc := "Soft token" + strings.Repeat(" ", 22)

		aligned := []byte{2, 40}
		aligned = append(aligned, man...)
		aligned = append(aligned, make([]byte, 6)...) // padding to 40
		aligned = append(aligned, 0x07, 0, 0, 0, 0, 0, 0, 0)
		aligned = append(aligned, desc...)
		aligned = append(aligned, 1, 2)
		aligned = append(aligned, make([]byte, 6)...) // tail padding to 88

		packed := []byte{2, 40}
		packed = append(packed, man...)
		packed = append(packed, 0x07, 0, 0, 0)
		packed = append(packed, desc...)
		packed = append(packed, 1, 2)

		for cat, exp := range map[*Catalog][]byte{Aligned(): aligned, Packed(): packed} {
			v := cat.New(CKInfo)
			v.SetVersion("cryptokiVersion", 2, 40)
			v.SetText("manufacturerID", "Acme")
			v.SetULong("flags", 7)
			v.SetText("libraryDescription", "Soft token")
			v.SetVersion("libraryVersion", 1, 2)
			assert.True(t, bytes.Equal(exp, v.Bytes()), "%s: %x", cat.Name(), v.Bytes())

			major, minor := v.Version("cryptokiVersion")
			assert.Equal(t, byte(2), major)
			assert.Equal(t, byte(40), minor)
			assert.Equal(t, man, v.Text("manufacturerID"))
			assert.Equal(t, uint64(7), v.ULong("flags"))
		}
	})

	t.Run("token_info", func(t *testing.T) {
		for _, cat := range []*Catalog{Aligned(), Packed()} {
			v := cat.New(CKTokenInfo)
			v.SetText("label", "token")
			v.SetULong("flags", 0x40D)
			v.SetULong("ulMaxPinLen", 32)
			v.SetVersion("firmwareVersion", 3, 1)
			v.SetText("utcTime", "20260102030405")

			raw := v.Bytes()
			s := cat.MustStruct(CKTokenInfo)
			assert.Equal(t, byte(0x0D), raw[s.Offset("flags")])
			assert.Equal(t, byte(0x04), raw[s.Offset("flags")+1])
			assert.Equal(t, byte(32), raw[s.Offset("ulMaxPinLen")])
			assert.Equal(t, byte(3), raw[s.Offset("firmwareVersion")])
			assert.Equal(t, byte(1), raw[s.Offset("firmwareVersion")+1])
			assert.Equal(t, "20260102030405  ", string(raw[s.Offset("utcTime"):s.Offset("utcTime")+16]))
		}
	})
}

func TestView(t *testing.T) {
	cat := Aligned()
	_, err := cat.View(CKAttribute, make([]byte, 10))
	assert.EqualError(t, err, "CK_ATTRIBUTE: buffer of 10 bytes, expected 24")

	arr := cat.NewArray(CKAttribute, 3)
	require.Len(t, arr, 72)
	for i := 0; i < 3; i++ {
		cat.Element(CKAttribute, arr, i).SetULong("type", uint64(i+1))
	}
	v, err := cat.View(CKAttribute, arr[24:])
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v.ULong("type"))
	assert.Equal(t, cat, v.Catalog())
	assert.Equal(t, CKAttribute, v.Struct().Name)

	v.SetText("type", "abcdefghijk")
	assert.Equal(t, "abcdefgh", v.Text("type"))

	assert.Panics(t, func() { v.ULong("nope") })
	assert.Panics(t, func() { v.Sub("type") })
	assert.Panics(t, func() { cat.New("CK_NOPE") })
	assert.Nil(t, cat.Struct("CK_NOPE"))
}

func TestDetect(t *testing.T) {
	tcases := []struct {
		goos, goarch string
		exp          *Catalog
	}{
		{"linux", "amd64", Aligned()},
		{"linux", "arm64", Aligned()},
		{"darwin", "arm64", Aligned()},
		{"freebsd", "amd64", Aligned()},
		{"windows", "amd64", Packed()},
		{"windows", "arm64", Packed()},
	}
	for _, tc := range tcases {
		c, err := Detect(tc.goos, tc.goarch)
		require.NoError(t, err)
		assert.Same(t, tc.exp, c, "%s/%s", tc.goos, tc.goarch)
	}

	for _, p := range [][2]string{{"plan9", "amd64"}, {"linux", "386"}, {"windows", "386"}, {"linux", "s390x"}, {"js", "wasm"}} {
		_, err := Detect(p[0], p[1])
		require.Error(t, err)
		assert.True(t, errors.Is(err, ckr.ErrUnsupportedPlatform), "%s/%s", p[0], p[1])
	}

	c, err := ForPlatform()
	if err == nil {
		c2, _ := ForPlatform()
		assert.Same(t, c, c2)
	}
}
