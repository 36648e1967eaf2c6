// Package statetest holds the behavior every state.Backend must share.
package statetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vidproof/internal/state"
)

// Factory returns a fresh, empty backend whose new entries live for
// minLive ledgers. The factory registers its own cleanup.
type Factory func(t *testing.T, minLive uint32) state.Backend

// Run exercises a backend against the shared contract.
func Run(t *testing.T, newBackend Factory) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newBackend) })
	t.Run("CommitVisible", func(t *testing.T) { testCommitVisible(t, newBackend) })
	t.Run("DiscardDropsAll", func(t *testing.T) { testDiscardDropsAll(t, newBackend) })
	t.Run("ReadOwnWrites", func(t *testing.T) { testReadOwnWrites(t, newBackend) })
	t.Run("SetKeepsLiveUntil", func(t *testing.T) { testSetKeepsLiveUntil(t, newBackend) })
	t.Run("ExtendRule", func(t *testing.T) { testExtendRule(t, newBackend) })
	t.Run("ExtendMissing", func(t *testing.T) { testExtendMissing(t, newBackend) })
	t.Run("ExpiredReadableUntilSwept", func(t *testing.T) { testExpiredReadableUntilSwept(t, newBackend) })
	t.Run("PinnedSurvivesSweep", func(t *testing.T) { testPinnedSurvivesSweep(t, newBackend) })
	t.Run("FinishedTxn", func(t *testing.T) { testFinishedTxn(t, newBackend) })
}

func begin(t *testing.T, b state.Backend, ledger uint32) state.Txn {
	t.Helper()
	txn, err := b.Begin(context.Background(), ledger)
	require.NoError(t, err)
	return txn
}

func put(t *testing.T, b state.Backend, ledger uint32, key, value string) {
	t.Helper()
	txn := begin(t, b, ledger)
	require.NoError(t, txn.Set([]byte(key), []byte(value)))
	require.NoError(t, txn.Commit())
}

func get(t *testing.T, b state.Backend, ledger uint32, key string) (string, bool) {
	t.Helper()
	txn := begin(t, b, ledger)
	defer txn.Discard()
	v, ok, err := txn.Get([]byte(key))
	require.NoError(t, err)
	return string(v), ok
}

func liveUntil(t *testing.T, b state.Backend, ledger uint32, key string) uint32 {
	t.Helper()
	txn := begin(t, b, ledger)
	defer txn.Discard()
	lu, ok, err := txn.LiveUntil([]byte(key))
	require.NoError(t, err)
	require.True(t, ok, "entry %q missing", key)
	return lu
}

func testGetMissing(t *testing.T, newBackend Factory) {
	b := newBackend(t, 100)
	_, ok := get(t, b, 1, "nope")
	assert.False(t, ok)
}

func testCommitVisible(t *testing.T, newBackend Factory) {
	b := newBackend(t, 100)
	put(t, b, 1, "a", "1")
	v, ok := get(t, b, 2, "a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, uint32(101), liveUntil(t, b, 2, "a"))
}

func testDiscardDropsAll(t *testing.T, newBackend Factory) {
	b := newBackend(t, 100)
	put(t, b, 1, "a", "1")

	txn := begin(t, b, 2)
	require.NoError(t, txn.Set([]byte("a"), []byte("2")))
	require.NoError(t, txn.Set([]byte("b"), []byte("2")))
	require.NoError(t, txn.ExtendTTL([]byte("a"), 1000, 1000))
	txn.Discard()

	v, _ := get(t, b, 3, "a")
	assert.Equal(t, "1", v)
	_, ok := get(t, b, 3, "b")
	assert.False(t, ok)
	assert.Equal(t, uint32(101), liveUntil(t, b, 3, "a"))
}

func testReadOwnWrites(t *testing.T, newBackend Factory) {
	b := newBackend(t, 100)
	txn := begin(t, b, 1)
	defer txn.Discard()
	require.NoError(t, txn.Set([]byte("k"), []byte("v")))
	v, ok, err := txn.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))
}

func testSetKeepsLiveUntil(t *testing.T, newBackend Factory) {
	b := newBackend(t, 100)
	put(t, b, 1, "a", "1")
	put(t, b, 50, "a", "2")
	assert.Equal(t, uint32(101), liveUntil(t, b, 50, "a"))
}

func testExtendRule(t *testing.T, newBackend Factory) {
	b := newBackend(t, 100)
	put(t, b, 10, "a", "1") // live_until 110

	// Remaining 100 is not below threshold 50: unchanged.
	txn := begin(t, b, 10)
	require.NoError(t, txn.ExtendTTL([]byte("a"), 50, 1000))
	require.NoError(t, txn.Commit())
	assert.Equal(t, uint32(110), liveUntil(t, b, 10, "a"))

	// Remaining 20 is below threshold 50: live_until = 90 + 1000.
	txn = begin(t, b, 90)
	require.NoError(t, txn.ExtendTTL([]byte("a"), 50, 1000))
	require.NoError(t, txn.Commit())
	assert.Equal(t, uint32(1090), liveUntil(t, b, 90, "a"))
}

func testExtendMissing(t *testing.T, newBackend Factory) {
	b := newBackend(t, 100)
	txn := begin(t, b, 1)
	defer txn.Discard()
	assert.ErrorIs(t, txn.ExtendTTL([]byte("none"), 10, 10), state.ErrEntryNotFound)
}

func testExpiredReadableUntilSwept(t *testing.T, newBackend Factory) {
	b := newBackend(t, 10)
	put(t, b, 1, "old", "x")  // live_until 11
	put(t, b, 20, "new", "y") // live_until 30

	v, ok := get(t, b, 25, "old")
	require.True(t, ok)
	assert.Equal(t, "x", v)

	n, err := b.Sweep(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, ok = get(t, b, 25, "old")
	assert.False(t, ok)
	_, ok = get(t, b, 25, "new")
	assert.True(t, ok)
}

func testPinnedSurvivesSweep(t *testing.T, newBackend Factory) {
	b := newBackend(t, 10)
	pinned := string([]byte{state.PinnedPrefix, 'c'})
	put(t, b, 1, pinned, "7") // live_until 11
	put(t, b, 1, "old", "x")

	n, err := b.Sweep(context.Background(), 25)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, ok := get(t, b, 25, pinned)
	require.True(t, ok, "pinned entry was reclaimed")
	assert.Equal(t, "7", v)
	_, ok = get(t, b, 25, "old")
	assert.False(t, ok)
}

func testFinishedTxn(t *testing.T, newBackend Factory) {
	b := newBackend(t, 100)
	txn := begin(t, b, 1)
	require.NoError(t, txn.Set([]byte("a"), []byte("1")))
	require.NoError(t, txn.Commit())
	txn.Discard()

	assert.ErrorIs(t, txn.Set([]byte("a"), []byte("2")), state.ErrTxnFinished)
	_, _, err := txn.Get([]byte("a"))
	assert.ErrorIs(t, err, state.ErrTxnFinished)
}
