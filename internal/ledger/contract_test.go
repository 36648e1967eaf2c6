package ledger

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vidproof/internal/ir"
)

func TestCreateAndRead(t *testing.T) {
	f := newFixture(t)
	alice := key(t, 1)
	h1 := hashOf("H1")

	id, err := f.create(alice, alice.Address(), h1, true, 85)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	rec, ok := f.read(h1, alice.Address())
	require.True(t, ok)
	assert.Equal(t, Record{
		RecordID:        1,
		VideoHash:       h1,
		Submitter:       alice.Address(),
		IsAIGenerated:   true,
		ConfidenceScore: 85,
		Timestamp:       f.now,
	}, rec)
	assert.Equal(t, uint32(1), f.count())

	require.Len(t, f.events, 1)
	assert.Equal(t, TopicSubmit, f.events[0].Topic)
	assert.Equal(t, ir.Int(1), f.events[0].Data["record_id"])
	assert.Equal(t, ir.String(h1.String()), f.events[0].Data["video_hash"])
}

func TestDuplicateRejectedPerSubmitter(t *testing.T) {
	f := newFixture(t)
	alice := key(t, 1)
	h2 := hashOf("H2")

	_, err := f.create(alice, alice.Address(), h2, false, 90)
	require.NoError(t, err)

	_, err = f.create(alice, alice.Address(), h2, true, 95)
	assert.True(t, IsDuplicateVerification(err), "got %v", err)
	assert.Equal(t, uint32(1), f.count())

	rec, _ := f.read(h2, alice.Address())
	assert.Equal(t, uint32(90), rec.ConfidenceScore)
	assert.False(t, rec.IsAIGenerated)
	assert.Len(t, f.events, 1)
}

func TestSameHashDifferentSubmitters(t *testing.T) {
	f := newFixture(t)
	alice, bob := key(t, 1), key(t, 2)
	h := hashOf("shared")

	idA, err := f.create(alice, alice.Address(), h, true, 70)
	require.NoError(t, err)
	idB, err := f.create(bob, bob.Address(), h, false, 20)
	require.NoError(t, err)

	assert.Equal(t, uint32(1), idA)
	assert.Equal(t, uint32(2), idB)
	assert.Equal(t, uint32(2), f.count())

	recA, _ := f.read(h, alice.Address())
	recB, _ := f.read(h, bob.Address())
	assert.Equal(t, uint32(70), recA.ConfidenceScore)
	assert.Equal(t, uint32(20), recB.ConfidenceScore)
}

func TestInvalidConfidence(t *testing.T) {
	f := newFixture(t)
	alice := key(t, 1)
	h3 := hashOf("H3")

	_, err := f.create(alice, alice.Address(), h3, true, 150)
	assert.True(t, IsInvalidConfidence(err), "got %v", err)
	assert.Equal(t, uint32(0), f.count())
	_, ok := f.read(h3, alice.Address())
	assert.False(t, ok)

	_, err = f.create(alice, alice.Address(), h3, true, 100)
	require.NoError(t, err)

	err = f.update(alice, alice.Address(), h3, 101)
	assert.True(t, IsInvalidConfidence(err), "got %v", err)
	rec, _ := f.read(h3, alice.Address())
	assert.Equal(t, uint32(100), rec.ConfidenceScore)
}

func TestUpdateChangesOnlyScoreAndTimestamp(t *testing.T) {
	f := newFixture(t)
	alice, bob := key(t, 1), key(t, 2)
	h3 := hashOf("H3")

	_, err := f.create(alice, alice.Address(), hashOf("other"), false, 1)
	require.NoError(t, err)
	id, err := f.create(bob, bob.Address(), h3, true, 80)
	require.NoError(t, err)
	before, _ := f.read(h3, bob.Address())

	require.NoError(t, f.update(bob, bob.Address(), h3, 60))
	after, _ := f.read(h3, bob.Address())

	assert.Equal(t, id, after.RecordID)
	assert.Equal(t, before.VideoHash, after.VideoHash)
	assert.Equal(t, before.Submitter, after.Submitter)
	assert.Equal(t, before.IsAIGenerated, after.IsAIGenerated)
	assert.Equal(t, uint32(60), after.ConfidenceScore)
	assert.Greater(t, after.Timestamp, before.Timestamp)
	assert.Equal(t, uint32(2), f.count())

	last := f.events[len(f.events)-1]
	assert.Equal(t, TopicUpdate, last.Topic)
	assert.Equal(t, ir.Int(60), last.Data["confidence_score"])
}

func TestUpdateMissingRecord(t *testing.T) {
	f := newFixture(t)
	carol := key(t, 3)
	err := f.update(carol, carol.Address(), hashOf("H4"), 50)
	assert.True(t, IsNotFound(err), "got %v", err)
	assert.Empty(t, f.events)
}

func TestAuthorizationChecksSigner(t *testing.T) {
	f := newFixture(t)
	alice, mallory := key(t, 1), key(t, 9)
	h := hashOf("target")

	// Mallory signs but claims to act for alice.
	_, err := f.create(mallory, alice.Address(), h, true, 99)
	assert.True(t, IsUnauthorized(err), "got %v", err)
	assert.Equal(t, uint32(0), f.count())

	_, err = f.create(alice, alice.Address(), h, false, 10)
	require.NoError(t, err)

	err = f.update(mallory, alice.Address(), h, 99)
	assert.True(t, IsUnauthorized(err), "got %v", err)
	rec, _ := f.read(h, alice.Address())
	assert.Equal(t, uint32(10), rec.ConfidenceScore)
}

func TestAuthorizationPrecedesValidation(t *testing.T) {
	f := newFixture(t)
	alice, mallory := key(t, 1), key(t, 9)

	// Invalid score and a missing record are both hidden behind auth.
	_, err := f.create(mallory, alice.Address(), hashOf("x"), true, 500)
	assert.True(t, IsUnauthorized(err), "got %v", err)
	err = f.update(mallory, alice.Address(), hashOf("never"), 500)
	assert.True(t, IsUnauthorized(err), "got %v", err)
}

func TestCounterDoesNotWrap(t *testing.T) {
	f := newFixture(t)
	alice := key(t, 1)
	require.NoError(t, f.run(func(env Env) error {
		return storeCounter(env.Storage(), math.MaxUint32)
	}))

	_, err := f.create(alice, alice.Address(), hashOf("last"), true, 1)
	assert.True(t, IsCounterExhausted(err), "got %v", err)
	assert.Equal(t, uint32(math.MaxUint32), f.count())
	_, ok := f.read(hashOf("last"), alice.Address())
	assert.False(t, ok)
}

func TestCreateExtendsTTL(t *testing.T) {
	f := newFixture(t, WithTTL(TTL{Threshold: 10000, ExtendTo: 10000}))
	alice := key(t, 1)
	h := hashOf("ttl")

	_, err := f.create(alice, alice.Address(), h, true, 50)
	require.NoError(t, err)
	created := f.ledger
	k := PolicyPerSubmitter.KeyFor(h, alice.Address())
	assert.Equal(t, created+10000, f.liveUntil(k))
	assert.Equal(t, created+10000, f.liveUntil(CounterKey{}))

	// Reads do not refresh.
	f.ledger += 500
	f.read(h, alice.Address())
	assert.Equal(t, created+10000, f.liveUntil(k))

	require.NoError(t, f.update(alice, alice.Address(), h, 40))
	assert.Equal(t, f.ledger+10000, f.liveUntil(k))
	assert.Equal(t, created+10000, f.liveUntil(CounterKey{}))
}

func TestListBySubmitterIsEmpty(t *testing.T) {
	f := newFixture(t)
	alice := key(t, 1)
	_, err := f.create(alice, alice.Address(), hashOf("a"), true, 1)
	require.NoError(t, err)

	var page []Record
	require.NoError(t, f.run(func(env Env) error {
		var err error
		page, err = f.contract.ListBySubmitter(env, alice.Address(), 0, 10)
		return err
	}))
	assert.NotNil(t, page)
	assert.Empty(t, page)
}

func TestGlobalPolicy(t *testing.T) {
	f := newFixture(t, WithPolicy(PolicyGlobal))
	alice, bob := key(t, 1), key(t, 2)
	h := hashOf("claimed")

	id, err := f.create(alice, alice.Address(), h, true, 85)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	// Anyone re-creating a claimed hash gets the original id back.
	again, err := f.create(bob, bob.Address(), h, false, 10)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	again, err = f.create(alice, alice.Address(), h, false, 10)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	assert.Equal(t, uint32(1), f.count())
	assert.Len(t, f.events, 1)

	rec, ok := f.read(h, bob.Address())
	require.True(t, ok)
	assert.Equal(t, alice.Address(), rec.Submitter)
	assert.Equal(t, uint32(85), rec.ConfidenceScore)

	err = f.update(bob, bob.Address(), h, 0)
	assert.True(t, IsNotFound(err), "got %v", err)
	require.NoError(t, f.update(alice, alice.Address(), h, 70))
	rec, _ = f.read(h, alice.Address())
	assert.Equal(t, uint32(70), rec.ConfidenceScore)
}

func TestTimestampsNonDecreasing(t *testing.T) {
	f := newFixture(t)
	alice := key(t, 1)
	var last uint64
	for i := 0; i < 5; i++ {
		h := hashOf(string(rune('a' + i)))
		_, err := f.create(alice, alice.Address(), h, i%2 == 0, uint32(i*10))
		require.NoError(t, err)
		rec, _ := f.read(h, alice.Address())
		assert.GreaterOrEqual(t, rec.Timestamp, last)
		last = rec.Timestamp
	}
	assert.Equal(t, uint32(5), f.count())
}

func TestCorruptStoredHashIsNotARejection(t *testing.T) {
	f := newFixture(t)
	alice := key(t, 1)
	h := hashOf("H9")
	_, err := f.create(alice, alice.Address(), h, false, 10)
	require.NoError(t, err)

	k := ByHashAndSubmitter{Hash: h, Submitter: alice.Address()}.Bytes()
	txn, err := f.backend.Begin(context.Background(), f.ledger)
	require.NoError(t, err)
	raw, ok, err := txn.Get(k)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, txn.Set(k, []byte(strings.Replace(string(raw), h.String(), "not-hex", 1))))
	require.NoError(t, txn.Commit())

	err = f.update(alice, alice.Address(), h, 20)
	require.Error(t, err)
	_, coded := CodeOf(err)
	assert.False(t, coded, "corruption must not carry a ledger code: %v", err)
	assert.False(t, IsInvalidHash(err))
}
