package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/state"
	"github.com/roach88/vidproof/internal/store"
)

// Mismatch is a logged receipt that replay did not reproduce.
type Mismatch struct {
	TxID   string `json:"tx_id"`
	Ledger int64  `json:"ledger"`
	Want   string `json:"want"`
	Got    string `json:"got"`
}

// ReplayResult summarizes a restore or replay.
type ReplayResult struct {
	Applied    int        `json:"applied"`
	Succeeded  int        `json:"succeeded"`
	Rejected   int        `json:"rejected"`
	Mismatches []Mismatch `json:"mismatches"`
}

// OK reports whether every receipt was reproduced.
func (r ReplayResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Restore re-applies the whole log to the host's backend at the logged
// ledger positions and timestamps, then moves the clock to the log head.
// Every reproduced receipt id is compared with the logged one.
//
// Restore must not run concurrently with Run.
func (h *Host) Restore(ctx context.Context) (ReplayResult, error) {
	if h.log == nil {
		return ReplayResult{Mismatches: []Mismatch{}}, nil
	}
	entries, err := h.log.ReadLog(ctx)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("restore: %w", err)
	}
	return h.apply(ctx, entries)
}

func (h *Host) apply(ctx context.Context, entries []store.Entry) (ReplayResult, error) {
	res := ReplayResult{Mismatches: []Mismatch{}}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		call, err := ledger.DecodeCall(e.Tx.Op, e.Tx.Args)
		if err != nil {
			return res, fmt.Errorf("restore ledger %d: %w", e.Receipt.Ledger, err)
		}
		r, txn, err := h.execute(ctx, e.Tx, call, e.Receipt.Ledger, uint64(e.Receipt.Timestamp))
		if err != nil {
			return res, fmt.Errorf("restore ledger %d: %w", e.Receipt.Ledger, err)
		}
		if err := h.finish(txn, r); err != nil {
			return res, fmt.Errorf("restore ledger %d: %w", e.Receipt.Ledger, err)
		}
		h.clock.Observe(e.Receipt.Ledger, uint64(e.Receipt.Timestamp))

		res.Applied++
		if r.Succeeded() {
			res.Succeeded++
		} else {
			res.Rejected++
		}
		if r.ID != e.Receipt.ID {
			slog.Warn("replay diverged", "tx", e.Tx.ID, "ledger", e.Receipt.Ledger, "want", e.Receipt.ID, "got", r.ID)
			res.Mismatches = append(res.Mismatches, Mismatch{
				TxID:   e.Tx.ID,
				Ledger: e.Receipt.Ledger,
				Want:   e.Receipt.ID,
				Got:    r.ID,
			})
		}
	}
	ledgerSeq, _ := h.clock.Current()
	h.metrics.ledger.Set(float64(ledgerSeq))
	return res, nil
}

// Replay re-executes log on empty in-memory state with contract and
// reports whether every receipt is reproduced. The log is not modified.
func Replay(ctx context.Context, log *store.Store, contract *ledger.Contract) (ReplayResult, error) {
	entries, err := log.ReadLog(ctx)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("replay: %w", err)
	}
	h := New(state.NewMemory(), contract)
	return h.apply(ctx, entries)
}
