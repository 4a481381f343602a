package cryptoprov_test

import (
	"testing"

	"github.com/effective-security/cryptoki/cryptoprov"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrivateKeyURI(t *testing.T) {
	k, err := cryptoprov.ParsePrivateKeyURI("pkcs11:manufacturer=SoftHSM;model=v2;serial=0001;token=my%20token;id=key01;object=signing;type=private")
	require.NoError(t, err)
	assert.Equal(t, "SoftHSM", k.Manufacturer())
	assert.Equal(t, "v2", k.Model())
	assert.Equal(t, "0001", k.Serial())
	assert.Equal(t, "my token", k.TokenLabel())
	assert.Equal(t, "key01", k.ID())
	assert.Equal(t, "signing", k.Label())

	k, err = cryptoprov.ParsePrivateKeyURI("pkcs11:manufacturer=SoftHSM;id=key01;slot-id=3;")
	require.NoError(t, err)
	assert.Empty(t, k.Model())
	assert.Equal(t, "key01", k.ID())

	tcases := []struct {
		uri string
		err string
	}{
		{"manufacturer=SoftHSM;id=1", `invalid URI: "manufacturer=SoftHSM;id=1"`},
		{"pkcs11:manufacturer", `invalid attribute "manufacturer" in URI: "pkcs11:manufacturer"`},
		{"pkcs11:id=1", `manufacturer is missing in URI: "pkcs11:id=1"`},
		{"pkcs11:manufacturer=SoftHSM", `id is missing in URI: "pkcs11:manufacturer=SoftHSM"`},
		{"pkcs11:manufacturer=SoftHSM;id=1;type=cert", `unsupported object type: "cert"`},
	}
	for _, tc := range tcases {
		t.Run(tc.uri, func(t *testing.T) {
			_, err := cryptoprov.ParsePrivateKeyURI(tc.uri)
			assert.EqualError(t, err, tc.err)
		})
	}

	_, err = cryptoprov.ParsePrivateKeyURI("pkcs11:manufacturer=%zz;id=1")
	assert.Error(t, err)
}

func TestKeyURI(t *testing.T) {
	assert.Equal(t, "pkcs11:manufacturer=SoftHSM;id=key01;type=private",
		cryptoprov.KeyURI("SoftHSM", "", "", "key01"))

	uri := cryptoprov.KeyURI("Effective Security", "softtoken", "0001", string([]byte{1, 2}))
	assert.Equal(t, "pkcs11:manufacturer=Effective%20Security;model=softtoken;serial=0001;id=%01%02;type=private", uri)

	k, err := cryptoprov.ParsePrivateKeyURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "Effective Security", k.Manufacturer())
	assert.Equal(t, "softtoken", k.Model())
	assert.Equal(t, "0001", k.Serial())
	assert.Equal(t, []byte{1, 2}, []byte(k.ID()))
}
