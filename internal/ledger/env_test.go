package ledger

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/state"
)

// fixture is a ledger over a memory backend with a manual clock. Each call
// runs in its own state transaction, committed only on success.
type fixture struct {
	t        *testing.T
	contract *Contract
	backend  *state.Memory
	ledger   uint32
	now      uint64
	events   []ir.Event
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return &fixture{
		t:        t,
		contract: New(opts...),
		backend:  state.NewMemory(),
		ledger:   1,
		now:      1_700_000_000,
	}
}

type testEnv struct {
	txn    state.Txn
	now    uint64
	events []ir.Event
}

func (e *testEnv) Storage() state.Txn { return e.txn }
func (e *testEnv) Timestamp() uint64  { return e.now }
func (e *testEnv) Emit(ev ir.Event)   { e.events = append(e.events, ev) }

// run executes op atomically and advances the clock one ledger.
func (f *fixture) run(op func(Env) error) error {
	f.t.Helper()
	f.ledger++
	f.now += 5
	txn, err := f.backend.Begin(context.Background(), f.ledger)
	require.NoError(f.t, err)
	env := &testEnv{txn: txn, now: f.now}
	if err := op(env); err != nil {
		txn.Discard()
		return err
	}
	require.NoError(f.t, txn.Commit())
	f.events = append(f.events, env.events...)
	return nil
}

func (f *fixture) create(signer *auth.KeyPair, submitter auth.Address, hash VideoHash, isAI bool, score uint32) (uint32, error) {
	var id uint32
	err := f.run(func(env Env) error {
		var err error
		id, err = f.contract.Create(env, proofFor(signer, "create", hash), submitter, hash, isAI, score)
		return err
	})
	return id, err
}

func (f *fixture) update(signer *auth.KeyPair, submitter auth.Address, hash VideoHash, score uint32) error {
	return f.run(func(env Env) error {
		return f.contract.Update(env, proofFor(signer, "update", hash), submitter, hash, score)
	})
}

func (f *fixture) read(hash VideoHash, submitter auth.Address) (Record, bool) {
	f.t.Helper()
	txn, err := f.backend.Begin(context.Background(), f.ledger)
	require.NoError(f.t, err)
	defer txn.Discard()
	rec, ok, err := f.contract.Read(&testEnv{txn: txn, now: f.now}, hash, submitter)
	require.NoError(f.t, err)
	return rec, ok
}

func (f *fixture) count() uint32 {
	f.t.Helper()
	txn, err := f.backend.Begin(context.Background(), f.ledger)
	require.NoError(f.t, err)
	defer txn.Discard()
	n, err := f.contract.Count(&testEnv{txn: txn, now: f.now})
	require.NoError(f.t, err)
	return n
}

func (f *fixture) liveUntil(key Key) uint32 {
	f.t.Helper()
	txn, err := f.backend.Begin(context.Background(), f.ledger)
	require.NoError(f.t, err)
	defer txn.Discard()
	lu, ok, err := txn.LiveUntil(key.Bytes())
	require.NoError(f.t, err)
	require.True(f.t, ok)
	return lu
}

func proofFor(k *auth.KeyPair, op string, hash VideoHash) auth.Proof {
	return auth.Sign(k, sha256.Sum256(append([]byte(op), hash[:]...)))
}

func key(t *testing.T, b byte) *auth.KeyPair {
	t.Helper()
	kp, err := auth.KeyPairFromSeed(bytes.Repeat([]byte{b}, 32))
	require.NoError(t, err)
	return kp
}

func hashOf(s string) VideoHash {
	return VideoHash(sha256.Sum256([]byte(s)))
}
