package host

import (
	"context"
	"encoding/hex"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/state"
	"github.com/roach88/vidproof/internal/store"
	"github.com/roach88/vidproof/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testHost struct {
	*Host
	log     *store.Store
	backend *state.Memory
	reg     *prometheus.Registry
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// startHost runs a host with a log, step time and fixed tokens until the
// test ends.
func startHost(t *testing.T, opts ...ledger.Option) *testHost {
	t.Helper()
	log := setupTestStore(t)
	backend := state.NewMemory()
	reg := prometheus.NewRegistry()
	tokens := make([]string, 100)
	for i := range tokens {
		tokens[i] = "token-" + string(rune('a'+i%26))
	}
	h := New(backend, ledger.New(opts...),
		WithLog(log),
		WithTimeSource(testutil.NewLedgerTime()),
		WithTokenGenerator(NewFixedGenerator(tokens...)),
		WithPromRegistry(reg),
	)
	runHost(t, h)
	return &testHost{Host: h, log: log, backend: backend, reg: reg}
}

func runHost(t *testing.T, h *Host) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Run did not return")
		}
	})
}

func createCall(submitter *auth.KeyPair, video string, isAI bool, score int64) ledger.Call {
	return ledger.Call{
		Op:              ir.OpCreate,
		Submitter:       submitter.Address().String(),
		VideoHash:       testutil.Video(video).String(),
		IsAIGenerated:   isAI,
		ConfidenceScore: score,
	}
}

func updateCall(submitter *auth.KeyPair, video string, score int64) ledger.Call {
	return ledger.Call{
		Op:              ir.OpUpdate,
		Submitter:       submitter.Address().String(),
		VideoHash:       testutil.Video(video).String(),
		ConfidenceScore: score,
	}
}

func submit(t *testing.T, h *Host, signer *auth.KeyPair, call ledger.Call, nonce int64) ir.Receipt {
	t.Helper()
	tx, err := SignTransaction(signer, call, nonce)
	require.NoError(t, err)
	r, err := h.Submit(context.Background(), tx)
	require.NoError(t, err)
	return r
}

func TestHost_CreateReadCount(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")

	r := submit(t, h.Host, alice, createCall(alice, "H1", true, 85), 1)
	assert.True(t, r.Succeeded())
	assert.Equal(t, ir.OutcomeSuccess, r.Outcome)
	assert.Equal(t, ir.Object{"record_id": ir.Int(1)}, r.Result)
	assert.Equal(t, int64(1), r.Ledger)
	assert.Equal(t, testutil.DefaultEpoch.Unix(), r.Timestamp)
	assert.Equal(t, "token-a", r.Token)
	require.Len(t, r.Events, 1)
	assert.Equal(t, ledger.TopicSubmit, r.Events[0].Topic)

	rec, ok, err := h.Read(context.Background(), testutil.Video("H1"), alice.Address())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(85), rec.ConfidenceScore)
	assert.Equal(t, uint64(r.Timestamp), rec.Timestamp)

	n, err := h.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), n)

	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.transactions.WithLabelValues("Success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.records))
}

func TestHost_RejectionIsLoggedWithoutStateChange(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")

	submit(t, h.Host, alice, createCall(alice, "H2", false, 90), 1)
	r := submit(t, h.Host, alice, createCall(alice, "H2", true, 95), 2)

	assert.False(t, r.Succeeded())
	assert.Equal(t, int64(ledger.CodeDuplicateVerification), r.Code)
	assert.Equal(t, "DuplicateVerification", r.Outcome)
	assert.Empty(t, r.Events)

	n, _ := h.Count(context.Background())
	assert.Equal(t, uint32(1), n)
	rec, _, _ := h.Read(context.Background(), testutil.Video("H2"), alice.Address())
	assert.Equal(t, uint32(90), rec.ConfidenceScore)

	logged, ok, err := h.log.ReadReceipt(context.Background(), r.TxID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, r.ID, logged.ID)
}

func TestHost_InvalidConfidence(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")

	r := submit(t, h.Host, alice, createCall(alice, "H3", true, 150), 1)
	assert.Equal(t, int64(ledger.CodeInvalidConfidence), r.Code)
	n, _ := h.Count(context.Background())
	assert.Equal(t, uint32(0), n)
}

func TestHost_UpdateFlow(t *testing.T) {
	h := startHost(t)
	bob := testutil.Account(t, "bob")

	created := submit(t, h.Host, bob, createCall(bob, "H3", true, 80), 1)
	updated := submit(t, h.Host, bob, updateCall(bob, "H3", 60), 2)
	assert.True(t, updated.Succeeded())
	assert.Equal(t, ir.Object{}, updated.Result)
	assert.Greater(t, updated.Timestamp, created.Timestamp)

	rec, _, err := h.Read(context.Background(), testutil.Video("H3"), bob.Address())
	require.NoError(t, err)
	assert.Equal(t, uint32(60), rec.ConfidenceScore)
	assert.Equal(t, uint32(1), rec.RecordID)
	assert.Equal(t, uint64(updated.Timestamp), rec.Timestamp)
}

func TestHost_UpdateMissing(t *testing.T) {
	h := startHost(t)
	carol := testutil.Account(t, "carol")
	r := submit(t, h.Host, carol, updateCall(carol, "H4", 50), 1)
	assert.Equal(t, int64(ledger.CodeNotFound), r.Code)
}

func TestHost_ForgedSubmitter(t *testing.T) {
	h := startHost(t)
	alice, mallory := testutil.Account(t, "alice"), testutil.Account(t, "mallory")

	r := submit(t, h.Host, mallory, createCall(alice, "H5", true, 99), 1)
	assert.Equal(t, int64(ledger.CodeUnauthorized), r.Code)

	n, _ := h.Count(context.Background())
	assert.Equal(t, uint32(0), n)
}

// forgeSource re-signs tx as if source had sent it, using signer's key.
func forgeSource(t *testing.T, tx ir.Transaction, source, signer *auth.KeyPair) ir.Transaction {
	t.Helper()
	tx.Source = source.Address().String()
	digest, err := ir.TransactionDigest(tx.Source, tx.Op, tx.Args, tx.Nonce)
	require.NoError(t, err)
	tx.ID = hex.EncodeToString(digest[:])
	tx.Signature = signer.SignHex(digest)
	return tx
}

func TestHost_ForgedSourceIsRefused(t *testing.T) {
	h := startHost(t)
	ctx := context.Background()
	alice, mallory := testutil.Account(t, "alice"), testutil.Account(t, "mallory")

	tx, err := SignTransaction(mallory, createCall(alice, "H5", true, 99), 1)
	require.NoError(t, err)
	forged := forgeSource(t, tx, alice, mallory)
	_, err = h.Submit(ctx, forged)
	assert.True(t, IsBadSignature(err), "got %v", err)

	// A tampered signature on an otherwise valid transaction.
	tampered, err := SignTransaction(alice, createCall(alice, "H5", true, 99), 1)
	require.NoError(t, err)
	tampered.Signature = mallory.SignHex([32]byte{})
	_, err = h.Submit(ctx, tampered)
	assert.True(t, IsBadSignature(err), "got %v", err)

	// A forged maximal nonce must not land in alice's nonce space.
	huge := tx
	huge.Nonce = math.MaxInt64
	huge = forgeSource(t, huge, alice, mallory)
	_, err = h.Submit(ctx, huge)
	assert.True(t, IsBadSignature(err), "got %v", err)

	head, _ := h.Clock().Current()
	assert.Equal(t, int64(0), head, "refused transactions are not logged")
	next, err := h.log.NextNonce(ctx, alice.Address().String())
	require.NoError(t, err)
	assert.Equal(t, int64(1), next)

	// Alice's own nonce 1 is still free.
	r := submit(t, h.Host, alice, createCall(alice, "H5", false, 10), 1)
	assert.Equal(t, ir.OutcomeSuccess, r.Outcome)
	assert.Equal(t, 3.0, promtest.ToFloat64(h.metrics.refused.WithLabelValues(string(ErrCodeBadSignature))))
}

func TestHost_NonPositiveNonceIsMalformed(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")

	for _, nonce := range []int64{0, -1} {
		tx, err := SignTransaction(alice, createCall(alice, "H5", true, 10), nonce)
		require.NoError(t, err)
		_, err = h.Submit(context.Background(), tx)
		assert.True(t, IsMalformed(err), "nonce %d: got %v", nonce, err)
	}
}

func TestHost_ResubmissionReturnsLoggedReceipt(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")
	tx, err := SignTransaction(alice, createCall(alice, "H6", true, 10), 1)
	require.NoError(t, err)

	first, err := h.Submit(context.Background(), tx)
	require.NoError(t, err)
	second, err := h.Submit(context.Background(), tx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	n, _ := h.Count(context.Background())
	assert.Equal(t, uint32(1), n)
	head, _ := h.Clock().Current()
	assert.Equal(t, int64(1), head)
}

func TestHost_NonceReuse(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")
	submit(t, h.Host, alice, createCall(alice, "H7", true, 10), 1)

	tx, err := SignTransaction(alice, createCall(alice, "H8", true, 10), 1)
	require.NoError(t, err)
	_, err = h.Submit(context.Background(), tx)
	assert.True(t, IsNonceReused(err), "got %v", err)

	_, ok, _ := h.Read(context.Background(), testutil.Video("H8"), alice.Address())
	assert.False(t, ok)
}

func TestHost_MalformedTransactions(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")

	tx, err := SignTransaction(alice, createCall(alice, "H9", true, 10), 1)
	require.NoError(t, err)

	tampered := tx
	tampered.Args = ir.Object{
		"submitter":        tx.Args["submitter"],
		"video_hash":       tx.Args["video_hash"],
		"is_ai_generated":  ir.Bool(false),
		"confidence_score": ir.Int(10),
	}
	_, err = h.Submit(context.Background(), tampered)
	assert.True(t, IsIDMismatch(err), "got %v", err)

	missing := tx
	missing.Args = ir.Object{"submitter": tx.Args["submitter"]}
	_, err = h.Submit(context.Background(), missing)
	assert.True(t, IsMalformed(err), "got %v", err)

	unknown := tx
	unknown.Op = "delete"
	_, err = h.Submit(context.Background(), unknown)
	assert.True(t, IsMalformed(err), "got %v", err)

	head, _ := h.Clock().Current()
	assert.Equal(t, int64(0), head)
	assert.Equal(t, 1.0, promtest.ToFloat64(h.metrics.refused.WithLabelValues(string(ErrCodeIDMismatch))))
}

func TestHost_InvalidHashReceipt(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")
	call := createCall(alice, "x", true, 10)
	call.VideoHash = "abcd"
	r := submit(t, h.Host, alice, call, 1)
	assert.Equal(t, int64(ledger.CodeInvalidHash), r.Code)
}

func TestHost_TimestampsClamped(t *testing.T) {
	log := setupTestStore(t)
	ts := testutil.NewLedgerTime()
	h := New(state.NewMemory(), ledger.New(), WithLog(log), WithTimeSource(ts))
	runHost(t, h)
	alice := testutil.Account(t, "alice")

	first := submit(t, h, alice, createCall(alice, "a", true, 1), 1)
	ts.Set(testutil.DefaultEpoch.Add(-time.Hour))
	second := submit(t, h, alice, createCall(alice, "b", true, 1), 2)
	assert.Equal(t, first.Timestamp, second.Timestamp)
	assert.Equal(t, first.Ledger+1, second.Ledger)
}

func TestHost_GlobalPolicy(t *testing.T) {
	h := startHost(t, ledger.WithPolicy(ledger.PolicyGlobal))
	alice, bob := testutil.Account(t, "alice"), testutil.Account(t, "bob")

	first := submit(t, h.Host, alice, createCall(alice, "G", true, 85), 1)
	again := submit(t, h.Host, bob, createCall(bob, "G", false, 5), 1)
	assert.True(t, again.Succeeded())
	assert.Equal(t, first.Result, again.Result)
	assert.Empty(t, again.Events)

	n, _ := h.Count(context.Background())
	assert.Equal(t, uint32(1), n)
}

func TestHost_RecentEvents(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")
	for i := int64(1); i <= 12; i++ {
		submit(t, h.Host, alice, createCall(alice, string(rune('a'+i)), true, i), i)
	}
	submit(t, h.Host, alice, updateCall(alice, "b", 50), 13)

	events, err := h.RecentEvents(context.Background(), ledger.TopicSubmit, DefaultEventLookback, DefaultEventLimit)
	require.NoError(t, err)
	assert.Len(t, events, DefaultEventLimit)
	assert.Equal(t, int64(1), events[0].Ledger)

	events, err = h.RecentEvents(context.Background(), ledger.TopicUpdate, 1, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(13), events[0].Ledger)
}

func TestHost_ListBySubmitterEmpty(t *testing.T) {
	h := startHost(t)
	alice := testutil.Account(t, "alice")
	submit(t, h.Host, alice, createCall(alice, "a", true, 1), 1)
	page, err := h.ListBySubmitter(context.Background(), alice.Address(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestHost_Sweep(t *testing.T) {
	log := setupTestStore(t)
	backend := state.NewMemory(state.WithMinLiveLedgers(2))
	h := New(backend, ledger.New(ledger.WithTTL(ledger.TTL{Threshold: 2, ExtendTo: 2})),
		WithLog(log), WithTimeSource(testutil.NewLedgerTime()))
	runHost(t, h)
	alice := testutil.Account(t, "alice")

	submit(t, h, alice, createCall(alice, "old", true, 1), 1)
	for i := int64(2); i <= 6; i++ {
		submit(t, h, alice, updateCall(alice, "missing", 1), i)
	}
	// Record and counter lived until ledger 3; the head is now 6.
	_, ok, err := h.Read(context.Background(), testutil.Video("old"), alice.Address())
	require.NoError(t, err)
	assert.True(t, ok, "expired entries stay readable until swept")

	n, err := h.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the record is reclaimed")
	_, ok, _ = h.Read(context.Background(), testutil.Video("old"), alice.Address())
	assert.False(t, ok)

	count, err := h.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), count)

	r := submit(t, h, alice, createCall(alice, "new", true, 1), 7)
	require.True(t, r.Succeeded(), r.Outcome)
	rec, ok, err := h.Read(context.Background(), testutil.Video("new"), alice.Address())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), rec.RecordID, "record ids are not reused after a sweep")
}

func TestHost_StopRefusesNewWork(t *testing.T) {
	h := New(state.NewMemory(), ledger.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	h.Stop()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	alice := testutil.Account(t, "alice")
	tx, err := SignTransaction(alice, createCall(alice, "late", true, 1), 1)
	require.NoError(t, err)
	_, err = h.Submit(context.Background(), tx)
	assert.True(t, IsStopped(err), "got %v", err)
}

func TestHost_SubmitHonoursContext(t *testing.T) {
	h := New(state.NewMemory(), ledger.New())
	alice := testutil.Account(t, "alice")
	tx, err := SignTransaction(alice, createCall(alice, "wait", true, 1), 1)
	require.NoError(t, err)

	// No Run loop: the request waits until the context expires.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = h.Submit(ctx, tx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	h.Stop()
}

func TestHost_ConcurrentSubmitters(t *testing.T) {
	h := startHost(t)
	const n = 20
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			kp := testutil.Account(t, "user-"+string(rune('A'+i)))
			tx, err := SignTransaction(kp, createCall(kp, "shared", i%2 == 0, int64(i)), 1)
			if err != nil {
				errs <- err
				return
			}
			_, err = h.Submit(context.Background(), tx)
			errs <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	count, err := h.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(n), count)
	head, _ := h.Clock().Current()
	assert.Equal(t, int64(n), head)
}
