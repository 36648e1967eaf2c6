package badgerstate

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vidproof/internal/state"
	"github.com/roach88/vidproof/internal/state/statetest"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBackendInMemory(t *testing.T) {
	statetest.Run(t, func(t *testing.T, minLive uint32) state.Backend {
		return newTestStore(t, WithMinLiveLedgers(minLive))
	})
}

func TestBackendOnDisk(t *testing.T) {
	statetest.Run(t, func(t *testing.T, minLive uint32) state.Backend {
		return newTestStore(t, WithDataDir(t.TempDir()), WithGc(false), WithMinLiveLedgers(minLive))
	})
}

func TestDataDirIsBadgerDir(t *testing.T) {
	dir := t.TempDir()
	newTestStore(t, WithDataDir(dir), WithGc(false))
	assert.FileExists(t, filepath.Join(dir, "MANIFEST"))
	assert.NoDirExists(t, filepath.Join(dir, "state"))
}

func TestReopenKeepsEntries(t *testing.T) {
	dir := t.TempDir()
	s, err := New(WithDataDir(dir), WithGc(false))
	require.NoError(t, err)

	txn, err := s.Begin(context.Background(), 5)
	require.NoError(t, err)
	require.NoError(t, txn.Set([]byte("k"), []byte("v")))
	require.NoError(t, txn.ExtendTTL([]byte("k"), 10000, 10000))
	require.NoError(t, txn.Commit())
	require.NoError(t, s.Close())

	s = newTestStore(t, WithDataDir(dir), WithGc(false))
	txn, err = s.Begin(context.Background(), 6)
	require.NoError(t, err)
	defer txn.Discard()
	v, ok, err := txn.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v", string(v))
	lu, _, err := txn.LiveUntil([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, uint32(10005), lu)
}

func TestNativeExpiryKeepsLiveEntries(t *testing.T) {
	s := newTestStore(t, WithNativeExpiry(time.Hour))
	txn, err := s.Begin(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, txn.Set([]byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())

	txn, err = s.Begin(context.Background(), 2)
	require.NoError(t, err)
	defer txn.Discard()
	_, ok, err := txn.Get([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepMetric(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := newTestStore(t, WithMinLiveLedgers(1), WithPromRegistry(reg))

	txn, err := s.Begin(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, txn.Set([]byte("a"), []byte("1")))
	require.NoError(t, txn.Set([]byte("b"), []byte("2")))
	require.NoError(t, txn.Commit())

	n, err := s.Sweep(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(s.swept))
}

func TestNativeExpirySkipsPinnedKeys(t *testing.T) {
	s := newTestStore(t, WithMinLiveLedgers(1), WithNativeExpiry(time.Nanosecond))
	pinned := []byte{state.PinnedPrefix, 'c'}

	txn, err := s.Begin(context.Background(), 1)
	require.NoError(t, err)
	require.NoError(t, txn.Set(pinned, []byte("1")))
	require.NoError(t, txn.Set([]byte("k"), []byte("v")))
	require.NoError(t, txn.Commit())

	txn, err = s.Begin(context.Background(), 50)
	require.NoError(t, err)
	defer txn.Discard()
	v, ok, err := txn.Get(pinned)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))
	_, ok, err = txn.Get([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}
