package ledger

import (
	"encoding/hex"
	"strings"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/state"
)

// VideoHash is a 32-byte content digest of a video.
type VideoHash [32]byte

// ParseVideoHash decodes 64 hex characters. Anything else is an
// InvalidHash rejection.
func ParseVideoHash(s string) (VideoHash, error) {
	var h VideoHash
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return h, newError(CodeInvalidHash, "video hash is not hex")
	}
	if len(raw) != len(h) {
		return h, newError(CodeInvalidHash, "video hash must be %d bytes, got %d", len(h), len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

// String returns the lowercase hex form.
func (h VideoHash) String() string {
	return hex.EncodeToString(h[:])
}

// Key addresses one storage entry. Its byte form is a tag byte followed by
// the key's fields in a fixed order.
type Key interface {
	Bytes() []byte
	isKey()
}

const (
	tagCounter            byte = state.PinnedPrefix
	tagByHash             byte = 0x01
	tagByHashAndSubmitter byte = 0x02
)

// ByHash addresses a record under the global policy.
type ByHash struct {
	Hash VideoHash
}

// ByHashAndSubmitter addresses a record under the per-submitter policy.
type ByHashAndSubmitter struct {
	Hash      VideoHash
	Submitter auth.Address
}

// CounterKey addresses the verification counter.
type CounterKey struct{}

func (ByHash) isKey()             {}
func (ByHashAndSubmitter) isKey() {}
func (CounterKey) isKey()         {}

func (k ByHash) Bytes() []byte {
	b := make([]byte, 0, 1+len(k.Hash))
	b = append(b, tagByHash)
	return append(b, k.Hash[:]...)
}

func (k ByHashAndSubmitter) Bytes() []byte {
	b := make([]byte, 0, 1+len(k.Hash)+len(k.Submitter))
	b = append(b, tagByHashAndSubmitter)
	b = append(b, k.Hash[:]...)
	return append(b, k.Submitter[:]...)
}

func (CounterKey) Bytes() []byte {
	return []byte{tagCounter}
}
