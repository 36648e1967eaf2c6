// Package digest derives 32-byte video hashes.
//
// A file is hashed over its raw bytes. A URL is trimmed and lowercased
// first, so that the same link pasted with different casing or stray
// whitespace yields the same hash.
package digest

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/roach88/vidproof/internal/ledger"
)

// Reader hashes everything read from r.
func Reader(r io.Reader) (ledger.VideoHash, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return ledger.VideoHash{}, fmt.Errorf("hash stream: %w", err)
	}
	var out ledger.VideoHash
	copy(out[:], h.Sum(nil))
	return out, nil
}

// File hashes the contents of the file at path.
func File(path string) (ledger.VideoHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return ledger.VideoHash{}, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()
	return Reader(f)
}

// NormalizeURL is the form of rawURL that URL hashes.
func NormalizeURL(rawURL string) string {
	return strings.ToLower(strings.TrimSpace(rawURL))
}

// URL hashes the normalized form of rawURL. An empty URL is an error.
func URL(rawURL string) (ledger.VideoHash, error) {
	n := NormalizeURL(rawURL)
	if n == "" {
		return ledger.VideoHash{}, fmt.Errorf("hash url: empty url")
	}
	return ledger.VideoHash(sha256.Sum256([]byte(n))), nil
}
