// Package keys turns passphrase-protected keystore bundles into signing
// credentials. Every failure collapses into ErrInvalidCredentials so callers
// cannot tell a wrong passphrase from a corrupt bundle.
package keys

import (
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Credential struct {
	Address    common.Address
	PrivateKey *ecdsa.PrivateKey
}

// HexKey is the raw private key, 0x-prefixed.
func (c Credential) HexKey() string {
	return hexutil.Encode(crypto.FromECDSA(c.PrivateKey))
}

var relaxed = strings.NewReplacer("'", `"`, "\n", "", "\r", "", " ", "")

// Normalize rewrites relaxed bundle text (single quotes, line breaks, padding)
// into strict JSON.
func Normalize(bundle string) ([]byte, error) {
	b := []byte(relaxed.Replace(bundle))
	if len(b) == 0 || !json.Valid(b) {
		return nil, ErrInvalidCredentials
	}
	return b, nil
}

type Unsealer struct{}

func (Unsealer) Unseal(bundle, passphrase string) (Credential, error) {
	data, err := Normalize(bundle)
	if err != nil {
		return Credential{}, err
	}
	return decrypt(data, passphrase)
}

func decrypt(data []byte, passphrase string) (Credential, error) {
	var header struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(data, &header); err != nil || !common.IsHexAddress(header.Address) {
		return Credential{}, ErrInvalidCredentials
	}
	key, err := keystore.DecryptKey(data, passphrase)
	if err != nil {
		return Credential{}, ErrInvalidCredentials
	}
	if key.Address != common.HexToAddress(header.Address) {
		return Credential{}, ErrInvalidCredentials
	}
	return Credential{Address: key.Address, PrivateKey: key.PrivateKey}, nil
}

// FromHex builds the operating account credential from a raw key.
func FromHex(hexKey string) (Credential, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return Credential{}, ErrInvalidCredentials
	}
	return Credential{Address: crypto.PubkeyToAddress(priv.PublicKey), PrivateKey: priv}, nil
}

// LoadKeystore unseals a keystore file as written by geth or clef.
func LoadKeystore(path, passphrase string) (Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Credential{}, err
	}
	return decrypt(data, passphrase)
}
