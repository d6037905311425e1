package keys

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBundle(t *testing.T, passphrase string) ([]byte, *keystore.Key) {
	t.Helper()
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	key := &keystore.Key{Id: uuid.New(), Address: crypto.PubkeyToAddress(priv.PublicKey), PrivateKey: priv}
	data, err := keystore.EncryptKey(key, passphrase, keystore.LightScryptN, keystore.LightScryptP)
	require.NoError(t, err)
	return data, key
}

// relax renders a bundle the way clients paste it: single quotes, indented, one field per line.
func relax(data []byte) string {
	s := strings.ReplaceAll(string(data), `"`, "'")
	s = strings.ReplaceAll(s, ",", ",\n  ")
	return "{\n  " + strings.TrimPrefix(s, "{")
}

func TestNormalize(t *testing.T) {
	got, err := Normalize("{ 'address': 'abc',\n 'version': 3 }")
	require.NoError(t, err)
	assert.Equal(t, `{"address":"abc","version":3}`, string(got))

	for _, bad := range []string{"", "   ", "{'address': ", "not json"} {
		_, err := Normalize(bad)
		assert.ErrorIs(t, err, ErrInvalidCredentials, "input %q", bad)
	}
}

func TestUnsealRelaxedBundle(t *testing.T) {
	data, key := newBundle(t, "s3cret")

	cred, err := Unsealer{}.Unseal(relax(data), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, key.Address, cred.Address)
	assert.Equal(t, hexutil.Encode(crypto.FromECDSA(key.PrivateKey)), cred.HexKey())
	assert.Equal(t, key.Address.Hex(), cred.Address.Hex())
}

func TestUnsealFailuresLookAlike(t *testing.T) {
	data, _ := newBundle(t, "s3cret")
	other, _ := newBundle(t, "s3cret")

	var swapped map[string]any
	require.NoError(t, json.Unmarshal(data, &swapped))
	var otherFields map[string]any
	require.NoError(t, json.Unmarshal(other, &otherFields))
	swapped["address"] = otherFields["address"]
	swappedJSON, err := json.Marshal(swapped)
	require.NoError(t, err)

	var noAddress map[string]any
	require.NoError(t, json.Unmarshal(data, &noAddress))
	delete(noAddress, "address")
	noAddressJSON, err := json.Marshal(noAddress)
	require.NoError(t, err)

	cases := map[string]struct {
		bundle     string
		passphrase string
	}{
		"wrong passphrase": {string(data), "guess"},
		"corrupt bundle":   {`{"address":"` + strings.Repeat("1", 40) + `","crypto":{}}`, "s3cret"},
		"not json":         {"{'address'", "s3cret"},
		"foreign address":  {string(swappedJSON), "s3cret"},
		"missing address":  {string(noAddressJSON), "s3cret"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Unsealer{}.Unseal(tc.bundle, tc.passphrase)
			require.Error(t, err)
			assert.Equal(t, ErrInvalidCredentials, err)
		})
	}
}

func TestFromHex(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	hexKey := hexutil.Encode(crypto.FromECDSA(priv))

	cred, err := FromHex(hexKey)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(priv.PublicKey), cred.Address)

	_, err = FromHex("0xzz")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoadKeystore(t *testing.T) {
	data, key := newBundle(t, "owner")
	path := filepath.Join(t.TempDir(), "owner.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cred, err := LoadKeystore(path, "owner")
	require.NoError(t, err)
	assert.Equal(t, key.Address, cred.Address)

	_, err = LoadKeystore(filepath.Join(t.TempDir(), "missing.json"), "owner")
	assert.Error(t, err)
	assert.NotEqual(t, common.Address{}, cred.Address)
}
