package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const keyFilePerm = 0o600

// KeyPair is an ed25519 signing key and the address it controls.
type KeyPair struct {
	private ed25519.PrivateKey
	address Address
}

// GenerateKeyPair creates a key pair from r, or crypto/rand when r is nil.
func GenerateKeyPair(r io.Reader) (*KeyPair, error) {
	if r == nil {
		r = rand.Reader
	}
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return newKeyPair(priv), nil
}

// KeyPairFromSeed derives a key pair from a 32-byte seed.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
	}
	return newKeyPair(ed25519.NewKeyFromSeed(seed)), nil
}

func newKeyPair(priv ed25519.PrivateKey) *KeyPair {
	kp := &KeyPair{private: priv}
	copy(kp.address[:], priv.Public().(ed25519.PublicKey))
	return kp
}

// Address returns the account controlled by this key.
func (k *KeyPair) Address() Address {
	return k.address
}

// Sign signs a 32-byte transaction digest.
func (k *KeyPair) Sign(digest [32]byte) []byte {
	return ed25519.Sign(k.private, digest[:])
}

// SignHex is Sign with a hex-encoded result.
func (k *KeyPair) SignHex(digest [32]byte) string {
	return hex.EncodeToString(k.Sign(digest))
}

// keyFile is the on-disk layout of a key file.
type keyFile struct {
	Address string `json:"address"`
	Seed    string `json:"seed"`
}

// SaveKeyFile writes the key pair to path with owner-only permissions.
// The file is written to a temporary name and renamed into place.
func SaveKeyFile(path string, k *KeyPair) error {
	data, err := json.MarshalIndent(keyFile{
		Address: k.address.String(),
		Seed:    hex.EncodeToString(k.private.Seed()),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("save key file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("save key file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, keyFilePerm); err != nil {
		return fmt.Errorf("save key file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("save key file: %w", err)
	}
	return nil
}

// LoadKeyFile reads a key file written by SaveKeyFile and checks that the
// stored address matches the seed.
func LoadKeyFile(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("load key file: %w", err)
	}
	seed, err := hex.DecodeString(kf.Seed)
	if err != nil {
		return nil, fmt.Errorf("load key file: seed: %w", err)
	}
	kp, err := KeyPairFromSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("load key file: %w", err)
	}
	if kf.Address != "" && kf.Address != kp.address.String() {
		return nil, fmt.Errorf("load key file: address %s does not match seed", kf.Address)
	}
	return kp, nil
}
