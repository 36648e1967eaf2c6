package testutil

import (
	"crypto/sha256"
	"testing"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ledger"
)

// Account returns the deterministic key pair named name. The same name
// always yields the same address across runs.
func Account(t testing.TB, name string) *auth.KeyPair {
	t.Helper()
	return AccountFromName(name)
}

// AccountFromName is Account without a testing.TB, for scenario loaders.
func AccountFromName(name string) *auth.KeyPair {
	seed := sha256.Sum256([]byte("vidproof/test-account/" + name))
	kp, err := auth.KeyPairFromSeed(seed[:])
	if err != nil {
		panic(err)
	}
	return kp
}

// Video returns the deterministic hash named name.
func Video(name string) ledger.VideoHash {
	return ledger.VideoHash(sha256.Sum256([]byte("vidproof/test-video/" + name)))
}
