package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strings"
)

// Address is an account identity: the 32-byte ed25519 public key of the
// account's signing key.
type Address [ed25519.PublicKeySize]byte

// ParseAddress decodes a 64-character hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return a, fmt.Errorf("parse address: %w", err)
	}
	if len(raw) != len(a) {
		return a, fmt.Errorf("parse address: want %d bytes, got %d", len(a), len(raw))
	}
	copy(a[:], raw)
	return a, nil
}

// String returns the lowercase hex form.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns a truncated form for logs.
func (a Address) Short() string {
	s := a.String()
	return s[:8] + "..." + s[len(s)-8:]
}

// PublicKey returns the address as an ed25519 public key.
func (a Address) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
