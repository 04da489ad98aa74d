// Package notarykey manages the notary signing key used to attest claims,
// identity bindings, and fee overrides. Production loads the key from a
// secrets provider; local runs keep a generated key on disk.
package notarykey

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gitgig-io/ragnar/internal/secrets"
)

var (
	ErrInvalidAddress = errors.New("notarykey: invalid address")
)

// EnsurePrivateKeyFile loads a secp256k1 private key from path, generating
// one if absent. The key is stored as lowercase hex without 0x prefix and
// mode 0600 on Unix.
func EnsurePrivateKeyFile(path string) (*ecdsa.PrivateKey, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, false, fmt.Errorf("notarykey: key path required")
	}

	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		key, parseErr := parseHexKey(string(raw))
		if parseErr != nil {
			return nil, false, fmt.Errorf("notarykey: parse key %s: %w", path, parseErr)
		}
		return key, false, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, false, fmt.Errorf("notarykey: read key %s: %w", path, err)
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, false, fmt.Errorf("notarykey: generate key: %w", err)
	}
	keyHex := strings.ToLower(common.Bytes2Hex(crypto.FromECDSA(key)))

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, false, fmt.Errorf("notarykey: create key dir: %w", err)
	}
	if err := writeFile0600(path, []byte(keyHex+"\n")); err != nil {
		return nil, false, err
	}
	return key, true, nil
}

// FromProvider resolves ref through the secrets provider and parses the
// value as a hex-encoded private key.
func FromProvider(ctx context.Context, p secrets.Provider, ref string) (*ecdsa.PrivateKey, error) {
	if p == nil {
		return nil, fmt.Errorf("notarykey: nil secrets provider")
	}
	value, err := p.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("notarykey: resolve %q: %w", ref, err)
	}
	key, err := parseHexKey(value)
	if err != nil {
		return nil, fmt.Errorf("notarykey: parse secret %q: %w", ref, err)
	}
	return key, nil
}

// Address derives the attestation address governance registers as notary.
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func NormalizeAddress(input string) (common.Address, error) {
	v := strings.TrimSpace(input)
	if !common.IsHexAddress(v) {
		return common.Address{}, ErrInvalidAddress
	}
	return common.HexToAddress(v), nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	keyHex := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	return crypto.HexToECDSA(keyHex)
}

func writeFile0600(path string, bytes []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("notarykey: open key for write %s: %w", path, err)
	}
	if _, err := f.Write(bytes); err != nil {
		_ = f.Close()
		return fmt.Errorf("notarykey: write key %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("notarykey: sync key %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("notarykey: close key %s: %w", path, err)
	}
	return nil
}
