package host

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/state"
	"github.com/roach88/vidproof/internal/testutil"
)

func populate(t *testing.T, h *Host) {
	t.Helper()
	alice, bob := testutil.Account(t, "alice"), testutil.Account(t, "bob")
	submit(t, h, alice, createCall(alice, "H1", true, 85), 1)
	submit(t, h, alice, createCall(alice, "H1", true, 95), 2)
	submit(t, h, bob, createCall(bob, "H1", false, 10), 1)
	submit(t, h, bob, updateCall(bob, "H1", 20), 2)
	submit(t, h, bob, createCall(bob, "H2", false, 101), 3)
}

func TestReplay_ReproducesLog(t *testing.T) {
	h := startHost(t)
	populate(t, h.Host)

	res, err := Replay(context.Background(), h.log, ledger.New())
	require.NoError(t, err)
	assert.True(t, res.OK(), "mismatches: %v", res.Mismatches)
	assert.Equal(t, 5, res.Applied)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Rejected)
}

func TestReplay_DetectsDivergence(t *testing.T) {
	h := startHost(t)
	populate(t, h.Host)

	// Under the global policy alice's second create is idempotent instead of
	// a duplicate.
	res, err := Replay(context.Background(), h.log, ledger.New(ledger.WithPolicy(ledger.PolicyGlobal)))
	require.NoError(t, err)
	assert.False(t, res.OK())
	require.NotEmpty(t, res.Mismatches)
	assert.Equal(t, int64(2), res.Mismatches[0].Ledger)
}

func TestRestore_RebuildsState(t *testing.T) {
	h := startHost(t)
	populate(t, h.Host)

	restored := New(state.NewMemory(), ledger.New(), WithLog(h.log))
	res, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, res.OK())

	n, err := restored.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(2), n)

	rec, ok, err := restored.Read(context.Background(), testutil.Video("H1"), testutil.AccountFromName("bob").Address())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(20), rec.ConfidenceScore)

	head, _ := restored.Clock().Current()
	assert.Equal(t, int64(5), head)
}

func TestResume_MovesClockToHead(t *testing.T) {
	h := startHost(t)
	populate(t, h.Host)

	resumed := New(state.NewMemory(), ledger.New(), WithLog(h.log))
	require.NoError(t, resumed.Resume(context.Background()))
	head, ts := resumed.Clock().Current()
	assert.Equal(t, int64(5), head)
	assert.Equal(t, uint64(testutil.DefaultEpoch.Unix()+20), ts)
}
