package host

import (
	"context"
	"fmt"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/store"
)

// Feed defaults for recent events.
const (
	DefaultEventLookback = 2000
	DefaultEventLimit    = 10
)

// view runs fn against a read-only env at the current ledger. Writes made
// by fn are discarded.
func (h *Host) view(ctx context.Context, fn func(ledger.Env) error) error {
	ledgerSeq, ts := h.clock.Current()
	if ledgerSeq < 0 {
		ledgerSeq = 0
	}
	txn, err := h.backend.Begin(ctx, uint32(ledgerSeq))
	if err != nil {
		return fmt.Errorf("begin state: %w", err)
	}
	defer txn.Discard()
	return fn(&env{txn: txn, timestamp: ts})
}

// Read returns the record for hash and submitter.
func (h *Host) Read(ctx context.Context, hash ledger.VideoHash, submitter auth.Address) (ledger.Record, bool, error) {
	var (
		rec ledger.Record
		ok  bool
	)
	err := h.view(ctx, func(e ledger.Env) error {
		var err error
		rec, ok, err = h.contract.Read(e, hash, submitter)
		return err
	})
	return rec, ok, err
}

// Count returns the verification counter.
func (h *Host) Count(ctx context.Context) (uint32, error) {
	var n uint32
	err := h.view(ctx, func(e ledger.Env) error {
		var err error
		n, err = h.contract.Count(e)
		return err
	})
	return n, err
}

// ListBySubmitter returns a page of a submitter's records.
func (h *Host) ListBySubmitter(ctx context.Context, submitter auth.Address, start, limit uint32) ([]ledger.Record, error) {
	var page []ledger.Record
	err := h.view(ctx, func(e ledger.Env) error {
		var err error
		page, err = h.contract.ListBySubmitter(e, submitter, start, limit)
		return err
	})
	return page, err
}

// RecentEvents returns up to limit events with topic from the last
// lookback ledgers, oldest first. An empty topic matches every topic.
func (h *Host) RecentEvents(ctx context.Context, topic string, lookback int64, limit int) ([]ir.LoggedEvent, error) {
	if h.log == nil {
		return []ir.LoggedEvent{}, nil
	}
	head, _ := h.clock.Current()
	since := head - lookback
	if since < 1 {
		since = 1
	}
	return h.log.ReadEvents(ctx, store.EventFilter{SinceLedger: since, Topic: topic, Limit: limit})
}

// Sweep reclaims state entries that expired before the current ledger.
func (h *Host) Sweep(ctx context.Context) (int, error) {
	ledgerSeq, _ := h.clock.Current()
	if ledgerSeq < 0 {
		ledgerSeq = 0
	}
	n, err := h.backend.Sweep(ctx, uint32(ledgerSeq))
	if err != nil {
		return 0, err
	}
	h.metrics.swept.Add(float64(n))
	return n, nil
}
