package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
	"github.com/roach88/vidproof/internal/state"
	"github.com/roach88/vidproof/internal/store"
)

const tracerName = "github.com/roach88/vidproof/internal/host"

// Host serializes transactions onto a Verification Ledger.
//
// Thread-safety model:
//   - Submit, Read, Count, ListBySubmitter, Events, Sweep: any goroutine
//   - Run: exactly one goroutine
//   - Restore: only while Run is not running
type Host struct {
	backend  state.Backend
	contract *ledger.Contract
	log      *store.Store
	clock    *Clock
	timeSrc  TimeSource
	tokens   TokenGenerator
	queue    *requestQueue
	tracer   trace.Tracer
	metrics  hostMetrics
}

// Option configures a Host.
type Option func(*hostOptions)

type hostOptions struct {
	log      *store.Store
	clock    *Clock
	timeSrc  TimeSource
	tokens   TokenGenerator
	registry prometheus.Registerer
	tp       trace.TracerProvider
}

// WithLog persists transactions and receipts to log. Without a log the
// host keeps no history and cannot detect resubmission.
func WithLog(log *store.Store) Option {
	return func(o *hostOptions) { o.log = log }
}

// WithClock starts from a preconfigured clock.
func WithClock(c *Clock) Option {
	return func(o *hostOptions) { o.clock = c }
}

// WithTimeSource sets the wall clock used for ledger timestamps.
func WithTimeSource(ts TimeSource) Option {
	return func(o *hostOptions) { o.timeSrc = ts }
}

// WithTokenGenerator sets the receipt token generator.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(o *hostOptions) { o.tokens = g }
}

// WithPromRegistry registers host metrics with registry.
func WithPromRegistry(registry prometheus.Registerer) Option {
	return func(o *hostOptions) { o.registry = registry }
}

// WithTracerProvider sets the provider for host spans. Defaults to the
// global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *hostOptions) { o.tp = tp }
}

// New creates a host over backend running contract.
func New(backend state.Backend, contract *ledger.Contract, opts ...Option) *Host {
	o := hostOptions{
		clock:   NewClock(),
		timeSrc: SystemTime{},
		tokens:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tp == nil {
		o.tp = otel.GetTracerProvider()
	}

	h := &Host{
		backend:  backend,
		contract: contract,
		log:      o.log,
		clock:    o.clock,
		timeSrc:  o.timeSrc,
		tokens:   o.tokens,
		queue:    newRequestQueue(),
		tracer:   o.tp.Tracer(tracerName),
	}
	h.metrics.init(o.registry)
	return h
}

// Resume moves the clock to the head of the log, for a backend whose
// state already reflects the log.
func (h *Host) Resume(ctx context.Context) error {
	if h.log == nil {
		return nil
	}
	ledgerSeq, ts, err := h.log.Head(ctx)
	if err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	h.clock.Observe(ledgerSeq, uint64(ts))
	h.metrics.ledger.Set(float64(ledgerSeq))
	slog.Info("host resumed", "ledger", ledgerSeq, "timestamp", ts)
	return nil
}

// Clock returns the host clock.
func (h *Host) Clock() *Clock {
	return h.clock
}

// Submit queues tx and waits for its receipt.
//
// A transaction already in the log returns its logged receipt without
// running again. Envelope problems (missing fields, id mismatch, nonce
// reuse) return a host Error and nothing is logged. Ledger rejections are
// not errors: they come back as a receipt with a non-zero Code.
func (h *Host) Submit(ctx context.Context, tx ir.Transaction) (ir.Receipt, error) {
	ctx, span := h.tracer.Start(ctx, "host.Submit", trace.WithAttributes(
		attribute.String("vidproof.tx.id", tx.ID),
		attribute.String("vidproof.tx.op", string(tx.Op)),
	))
	defer span.End()

	receipt, err := h.submit(ctx, tx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return ir.Receipt{}, err
	}
	span.SetAttributes(
		attribute.Int64("vidproof.ledger", receipt.Ledger),
		attribute.Int64("vidproof.code", receipt.Code),
	)
	return receipt, nil
}

func (h *Host) submit(ctx context.Context, tx ir.Transaction) (ir.Receipt, error) {
	call, _, err := validate(tx)
	if err != nil {
		h.refused(err)
		return ir.Receipt{}, err
	}
	if h.log != nil {
		r, ok, err := h.log.ReadReceipt(ctx, tx.ID)
		if err != nil {
			return ir.Receipt{}, fmt.Errorf("read receipt: %w", err)
		}
		if ok {
			slog.Debug("transaction already logged", "tx", tx.ID, "ledger", r.Ledger)
			return r, nil
		}
	}

	req := newRequest(ctx, tx, call)
	if !h.queue.Enqueue(req) {
		return ir.Receipt{}, newError(ErrCodeStopped, tx.ID, "host is not accepting transactions")
	}
	h.metrics.queueDepth.Set(float64(h.queue.Len()))

	select {
	case res := <-req.done:
		if res.err != nil {
			h.refused(res.err)
		}
		return res.receipt, res.err
	case <-ctx.Done():
		return ir.Receipt{}, ctx.Err()
	}
}

func (h *Host) refused(err error) {
	var he *Error
	if errors.As(err, &he) {
		h.metrics.refused.WithLabelValues(string(he.Code)).Inc()
	}
}

// Run applies queued transactions until ctx is cancelled or Stop is
// called. Pending requests are answered with a stopped error on exit.
//
// A transaction that fails for an infrastructure reason is reported to
// its submitter and logged here; the loop continues with the next one.
func (h *Host) Run(ctx context.Context) error {
	slog.Info("host starting", "policy", h.contract.Policy())
	defer h.Stop()

	for {
		if req, ok := h.queue.TryDequeue(); ok {
			h.metrics.queueDepth.Set(float64(h.queue.Len()))
			receipt, err := h.process(ctx, req)
			if err != nil {
				slog.Error("transaction failed", "tx", req.tx.ID, "op", req.tx.Op, "error", err)
			}
			req.reply(receipt, err)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("host stopping: context cancelled")
			return ctx.Err()
		case _, ok := <-h.queue.Wait():
			if !ok {
				slog.Info("host stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop closes the queue. Run returns once it notices.
func (h *Host) Stop() {
	for _, req := range h.queue.Close() {
		req.reply(ir.Receipt{}, newError(ErrCodeStopped, req.tx.ID, "host stopped"))
	}
}

// process applies one request. Called only from Run.
func (h *Host) process(ctx context.Context, req *request) (ir.Receipt, error) {
	// Writes must finish even if the submitter gives up waiting.
	ctx = context.WithoutCancel(trace.ContextWithSpan(ctx, trace.SpanFromContext(req.ctx)))
	tx := req.tx
	start := time.Now()

	if h.log != nil {
		r, ok, err := h.log.ReadReceipt(ctx, tx.ID)
		if err != nil {
			return ir.Receipt{}, fmt.Errorf("read receipt: %w", err)
		}
		if ok {
			return r, nil
		}
		if id, ok, err := h.log.TxIDForNonce(ctx, tx.Source, tx.Nonce); err != nil {
			return ir.Receipt{}, fmt.Errorf("check nonce: %w", err)
		} else if ok {
			return ir.Receipt{}, newError(ErrCodeNonceReused, tx.ID, "nonce %d already used by %s", tx.Nonce, id)
		}
	}

	ledgerSeq, ts := h.clock.Next(h.timeSrc.Now())
	receipt, txn, err := h.execute(ctx, tx, req.call, ledgerSeq, ts)
	if err != nil {
		return ir.Receipt{}, err
	}
	receipt.Token = h.tokens.Generate()

	if h.log != nil {
		if err := h.log.Append(ctx, tx, receipt); err != nil {
			txn.Discard()
			if errors.Is(err, store.ErrNonceReused) {
				return ir.Receipt{}, newError(ErrCodeNonceReused, tx.ID, "nonce %d already used", tx.Nonce)
			}
			return ir.Receipt{}, fmt.Errorf("append log: %w", err)
		}
	}
	if err := h.finish(txn, receipt); err != nil {
		return ir.Receipt{}, err
	}

	h.metrics.applySeconds.Observe(time.Since(start).Seconds())
	h.metrics.ledger.Set(float64(ledgerSeq))
	h.metrics.transactions.WithLabelValues(receipt.Outcome).Inc()
	slog.Info("transaction applied",
		"tx", tx.ID,
		"op", tx.Op,
		"ledger", receipt.Ledger,
		"outcome", receipt.Outcome,
	)
	return receipt, nil
}

// finish commits the state transaction of a successful receipt and
// discards it otherwise.
func (h *Host) finish(txn state.Txn, receipt ir.Receipt) error {
	if !receipt.Succeeded() {
		txn.Discard()
		return nil
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("commit state: %w", err)
	}
	for _, ev := range receipt.Events {
		if ev.Topic == ledger.TopicSubmit {
			if id, ok := ev.Data["record_id"].(ir.Int); ok {
				h.metrics.records.Set(float64(id))
			}
		}
	}
	return nil
}
