package host

import (
	"context"
	"sync"

	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
)

// request is one queued transaction waiting for the Run loop.
type request struct {
	ctx  context.Context
	tx   ir.Transaction
	call ledger.Call
	done chan response // buffered, size 1
}

type response struct {
	receipt ir.Receipt
	err     error
}

func newRequest(ctx context.Context, tx ir.Transaction, call ledger.Call) *request {
	return &request{ctx: ctx, tx: tx, call: call, done: make(chan response, 1)}
}

func (r *request) reply(receipt ir.Receipt, err error) {
	r.done <- response{receipt: receipt, err: err}
}

// requestQueue is an unbounded FIFO of pending requests.
//
// Enqueue may be called from any goroutine; only the Run loop dequeues.
// The signal channel lets Run wait for work and for context cancellation
// in one select.
type requestQueue struct {
	mu       sync.Mutex
	requests []*request
	closed   bool
	signal   chan struct{} // buffered, size 1
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		requests: make([]*request, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// Enqueue appends r. Returns false if the queue is closed.
func (q *requestQueue) Enqueue(r *request) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.requests = append(q.requests, r)

	// Buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front request without blocking.
func (q *requestQueue) TryDequeue() (*request, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.requests) == 0 {
		return nil, false
	}
	r := q.requests[0]
	q.requests[0] = nil
	if len(q.requests) == 1 {
		q.requests = q.requests[:0]
	} else {
		q.requests = q.requests[1:]
	}
	return r, true
}

// Wait returns a channel that fires when requests may be available or
// the queue has been closed.
func (q *requestQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending requests.
func (q *requestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.requests)
}

// Close stops new requests and returns the ones still pending.
func (q *requestQueue) Close() []*request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	close(q.signal)
	pending := q.requests
	q.requests = nil
	return pending
}
