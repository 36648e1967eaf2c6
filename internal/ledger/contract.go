package ledger

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/state"
)

// Event topics.
const (
	TopicSubmit = "submit"
	TopicUpdate = "update"
)

// Env is everything an operation may touch. The host builds one per
// operation.
type Env interface {
	// Storage is the operation's state transaction.
	Storage() state.Txn

	// Timestamp is the ledger clock in seconds. It never decreases.
	Timestamp() uint64

	// Emit records an event. Events from a failed operation are dropped.
	Emit(ir.Event)
}

// Contract is the Verification Ledger.
type Contract struct {
	policy Policy
	ttl    TTL
}

// Option configures a Contract.
type Option func(*Contract)

// WithPolicy selects the duplicate policy.
func WithPolicy(p Policy) Option {
	return func(c *Contract) {
		c.policy = p
	}
}

// WithTTL sets the retention horizon.
func WithTTL(ttl TTL) Option {
	return func(c *Contract) {
		c.ttl = ttl
	}
}

// New returns a Contract with the per-submitter policy and default TTL
// unless overridden.
func New(opts ...Option) *Contract {
	c := &Contract{policy: PolicyPerSubmitter, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the configured policy.
func (c *Contract) Policy() Policy {
	return c.policy
}

func authorize(proof auth.Proof, submitter auth.Address) error {
	if err := proof.Require(submitter); err != nil {
		return newError(CodeUnauthorized, "%v", err)
	}
	return nil
}

func checkConfidence(score uint32) error {
	if score > MaxConfidence {
		return newError(CodeInvalidConfidence, "confidence score %d outside [0,%d]", score, MaxConfidence)
	}
	return nil
}

// Create records a new attestation and returns its record id.
//
// Under PolicyPerSubmitter a second create for the same (hash, submitter)
// fails DuplicateVerification. Under PolicyGlobal a create for a claimed
// hash returns the existing record id without writing anything.
func (c *Contract) Create(env Env, proof auth.Proof, submitter auth.Address, hash VideoHash, isAI bool, score uint32) (uint32, error) {
	if err := authorize(proof, submitter); err != nil {
		return 0, err
	}
	if err := checkConfidence(score); err != nil {
		return 0, err
	}

	txn := env.Storage()
	key := c.policy.KeyFor(hash, submitter)
	existing, found, err := loadRecord(txn, key)
	if err != nil {
		return 0, err
	}
	if found {
		if c.policy == PolicyGlobal {
			return existing.RecordID, nil
		}
		return 0, newError(CodeDuplicateVerification, "video %s already verified by %s", hash, submitter.Short())
	}

	count, err := loadCounter(txn)
	if err != nil {
		return 0, err
	}
	if count == math.MaxUint32 {
		return 0, newError(CodeCounterExhausted, "verification counter is at its maximum")
	}
	rec := Record{
		RecordID:        count + 1,
		VideoHash:       hash,
		Submitter:       submitter,
		IsAIGenerated:   isAI,
		ConfidenceScore: score,
		Timestamp:       env.Timestamp(),
	}

	if err := storeRecord(txn, key, rec); err != nil {
		return 0, err
	}
	if err := storeCounter(txn, rec.RecordID); err != nil {
		return 0, err
	}
	if err := c.extend(txn, key); err != nil {
		return 0, err
	}
	if err := c.extend(txn, CounterKey{}); err != nil {
		return 0, err
	}

	env.Emit(ir.Event{Topic: TopicSubmit, Data: ir.Object{
		"record_id":  ir.Int(rec.RecordID),
		"video_hash": ir.String(hash.String()),
		"submitter":  ir.String(submitter.String()),
	}})
	return rec.RecordID, nil
}

// Read returns the record for hash and submitter. Under PolicyGlobal the
// submitter is ignored. Reads do not refresh TTL.
func (c *Contract) Read(env Env, hash VideoHash, submitter auth.Address) (Record, bool, error) {
	return loadRecord(env.Storage(), c.policy.KeyFor(hash, submitter))
}

// Count returns how many records have been created.
func (c *Contract) Count(env Env) (uint32, error) {
	return loadCounter(env.Storage())
}

// Update replaces the confidence score of the caller's own record and
// restamps it. Nothing else about the record changes.
func (c *Contract) Update(env Env, proof auth.Proof, submitter auth.Address, hash VideoHash, score uint32) error {
	if err := authorize(proof, submitter); err != nil {
		return err
	}
	if err := checkConfidence(score); err != nil {
		return err
	}

	txn := env.Storage()
	key := c.policy.KeyFor(hash, submitter)
	rec, found, err := loadRecord(txn, key)
	if err != nil {
		return err
	}
	// Under the global policy another submitter's record shares the key;
	// it is not addressable by this caller.
	if !found || rec.Submitter != submitter {
		return newError(CodeNotFound, "no verification of %s by %s", hash, submitter.Short())
	}

	rec.ConfidenceScore = score
	rec.Timestamp = env.Timestamp()
	if err := storeRecord(txn, key, rec); err != nil {
		return err
	}
	if err := c.extend(txn, key); err != nil {
		return err
	}

	env.Emit(ir.Event{Topic: TopicUpdate, Data: ir.Object{
		"record_id":        ir.Int(rec.RecordID),
		"video_hash":       ir.String(hash.String()),
		"submitter":        ir.String(submitter.String()),
		"confidence_score": ir.Int(score),
	}})
	return nil
}

// ListBySubmitter would page through a submitter's records. There is no
// submitter index, so it always returns an empty page.
func (c *Contract) ListBySubmitter(env Env, submitter auth.Address, start, limit uint32) ([]Record, error) {
	return []Record{}, nil
}

func (c *Contract) extend(txn state.Txn, key Key) error {
	if err := txn.ExtendTTL(key.Bytes(), c.ttl.Threshold, c.ttl.ExtendTo); err != nil {
		return fmt.Errorf("extend ttl: %w", err)
	}
	return nil
}

func loadRecord(txn state.Txn, key Key) (Record, bool, error) {
	raw, ok, err := txn.Get(key.Bytes())
	if err != nil {
		return Record{}, false, fmt.Errorf("read record: %w", err)
	}
	if !ok {
		return Record{}, false, nil
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func storeRecord(txn state.Txn, key Key, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := txn.Set(key.Bytes(), data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

func loadCounter(txn state.Txn) (uint32, error) {
	raw, ok, err := txn.Get(CounterKey{}.Bytes())
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}
	if !ok {
		return 0, nil
	}
	if len(raw) != 4 {
		return 0, fmt.Errorf("read counter: corrupt value of %d bytes", len(raw))
	}
	return binary.BigEndian.Uint32(raw), nil
}

func storeCounter(txn state.Txn, n uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], n)
	if err := txn.Set(CounterKey{}.Bytes(), buf[:]); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}
	return nil
}
