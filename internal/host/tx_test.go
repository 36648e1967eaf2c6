package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/testutil"
)

func ledgerCall() ledger.Call {
	alice := testutil.AccountFromName("alice")
	return createCall(alice, "clip", true, 42)
}

func TestSignTransaction(t *testing.T) {
	alice := testutil.Account(t, "alice")
	tx, err := SignTransaction(alice, createCall(alice, "clip", true, 42), 7)
	require.NoError(t, err)

	assert.Equal(t, alice.Address().String(), tx.Source)
	assert.Equal(t, ir.OpCreate, tx.Op)
	assert.Equal(t, int64(7), tx.Nonce)
	assert.Equal(t, ir.Int(42), tx.Args["confidence_score"])

	call, digest, err := validate(tx)
	require.NoError(t, err)
	assert.Equal(t, createCall(alice, "clip", true, 42), call)
	assert.NoError(t, proofFor(tx, digest).Require(alice.Address()))
}

func TestSignTransaction_Deterministic(t *testing.T) {
	alice := testutil.Account(t, "alice")
	a, err := SignTransaction(alice, createCall(alice, "clip", true, 42), 1)
	require.NoError(t, err)
	b, err := SignTransaction(alice, createCall(alice, "clip", true, 42), 1)
	require.NoError(t, err)
	c, err := SignTransaction(alice, createCall(alice, "clip", true, 42), 2)
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestProofFor_BadSource(t *testing.T) {
	alice := testutil.Account(t, "alice")
	tx, err := SignTransaction(alice, createCall(alice, "clip", true, 42), 1)
	require.NoError(t, err)
	tx.Source = "not-an-address"

	proof := proofFor(tx, [32]byte{})
	assert.ErrorIs(t, proof.Require(alice.Address()), auth.ErrUnauthorized)
}
