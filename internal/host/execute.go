package host

import (
	"context"
	"fmt"
	"math"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/state"
)

// env is the ledger.Env of one operation.
type env struct {
	txn       state.Txn
	timestamp uint64
	events    []ir.Event
}

func (e *env) Storage() state.Txn { return e.txn }
func (e *env) Timestamp() uint64  { return e.timestamp }
func (e *env) Emit(ev ir.Event)   { e.events = append(e.events, ev) }

// execute applies call at the given ledger position and returns the
// receipt together with the still-open state transaction. The caller
// commits it for a successful receipt and discards it otherwise.
//
// The receipt carries no token; tokens are per submission, not part of
// the outcome.
func (h *Host) execute(ctx context.Context, tx ir.Transaction, call ledger.Call, ledgerSeq int64, ts uint64) (ir.Receipt, state.Txn, error) {
	ctx, span := h.tracer.Start(ctx, "ledger.Apply", trace.WithAttributes(
		attribute.String("vidproof.tx.id", tx.ID),
		attribute.Int64("vidproof.ledger", ledgerSeq),
	))
	defer span.End()

	if ledgerSeq <= 0 || ledgerSeq > math.MaxUint32 {
		err := newError(ErrCodeLedgerExhausted, tx.ID, "ledger sequence %d out of range", ledgerSeq)
		span.SetStatus(codes.Error, err.Error())
		return ir.Receipt{}, nil, err
	}
	digest, err := ir.TransactionDigest(tx.Source, tx.Op, tx.Args, tx.Nonce)
	if err != nil {
		return ir.Receipt{}, nil, newError(ErrCodeMalformed, tx.ID, "%v", err)
	}

	txn, err := h.backend.Begin(ctx, uint32(ledgerSeq))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return ir.Receipt{}, nil, fmt.Errorf("begin state: %w", err)
	}

	e := &env{txn: txn, timestamp: ts}
	result, err := h.contract.Apply(e, proofFor(tx, digest), call)

	r := ir.Receipt{
		TxID:      tx.ID,
		Ledger:    ledgerSeq,
		Timestamp: int64(ts),
		Outcome:   ir.OutcomeSuccess,
		Result:    result,
		Events:    e.events,
	}
	if err != nil {
		code, ok := ledger.CodeOf(err)
		if !ok {
			txn.Discard()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ir.Receipt{}, nil, fmt.Errorf("apply %s: %w", tx.ID, err)
		}
		r.Code = int64(code)
		r.Outcome = code.String()
		r.Result = ir.Object{"message": ir.String(err.Error())}
		r.Events = nil
	}
	if r.Result == nil {
		r.Result = ir.Object{}
	}
	if r.Events == nil {
		r.Events = []ir.Event{}
	}

	if r.ID, err = ir.ReceiptID(r); err != nil {
		txn.Discard()
		return ir.Receipt{}, nil, err
	}
	span.SetAttributes(attribute.String("vidproof.outcome", r.Outcome))
	return r, txn, nil
}
