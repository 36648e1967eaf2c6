package state

import (
	"context"
	"sync"
)

// Memory is an in-process Backend. Committed entries live in a map guarded
// by a mutex; each Txn buffers its writes until Commit.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]Entry
	minLive uint32
}

// MemoryOption configures a Memory backend.
type MemoryOption func(*Memory)

// WithMinLiveLedgers sets the lifetime of newly created entries.
func WithMinLiveLedgers(n uint32) MemoryOption {
	return func(m *Memory) {
		m.minLive = n
	}
}

// NewMemory returns an empty Memory backend.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]Entry),
		minLive: DefaultMinLiveLedgers,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin implements Backend.
func (m *Memory) Begin(ctx context.Context, ledger uint32) (Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTxn{
		backend: m,
		ledger:  ledger,
		writes:  make(map[string]Entry),
	}, nil
}

// Sweep implements Backend.
func (m *Memory) Sweep(ctx context.Context, ledger uint32) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.entries {
		if e.LiveUntil < ledger && !Pinned([]byte(k)) {
			delete(m.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of committed entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Close implements Backend.
func (m *Memory) Close() error {
	return nil
}

type memoryTxn struct {
	backend  *Memory
	ledger   uint32
	writes   map[string]Entry
	finished bool
}

func (t *memoryTxn) Ledger() uint32 {
	return t.ledger
}

func (t *memoryTxn) lookup(key []byte) (Entry, bool) {
	if e, ok := t.writes[string(key)]; ok {
		return e, true
	}
	t.backend.mu.RLock()
	defer t.backend.mu.RUnlock()
	e, ok := t.backend.entries[string(key)]
	return e, ok
}

func (t *memoryTxn) Get(key []byte) ([]byte, bool, error) {
	if t.finished {
		return nil, false, ErrTxnFinished
	}
	e, ok := t.lookup(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), e.Value...), true, nil
}

func (t *memoryTxn) Set(key, value []byte) error {
	if t.finished {
		return ErrTxnFinished
	}
	e, ok := t.lookup(key)
	if !ok {
		e.LiveUntil = InitialLiveUntil(t.ledger, t.backend.minLive)
	}
	e.Value = append([]byte(nil), value...)
	t.writes[string(key)] = e
	return nil
}

func (t *memoryTxn) ExtendTTL(key []byte, threshold, extendTo uint32) error {
	if t.finished {
		return ErrTxnFinished
	}
	e, ok := t.lookup(key)
	if !ok {
		return ErrEntryNotFound
	}
	e.LiveUntil = Extend(e.LiveUntil, t.ledger, threshold, extendTo)
	t.writes[string(key)] = e
	return nil
}

func (t *memoryTxn) LiveUntil(key []byte) (uint32, bool, error) {
	if t.finished {
		return 0, false, ErrTxnFinished
	}
	e, ok := t.lookup(key)
	return e.LiveUntil, ok, nil
}

func (t *memoryTxn) Commit() error {
	if t.finished {
		return ErrTxnFinished
	}
	t.finished = true
	t.backend.mu.Lock()
	defer t.backend.mu.Unlock()
	for k, e := range t.writes {
		t.backend.entries[k] = e
	}
	t.writes = nil
	return nil
}

func (t *memoryTxn) Discard() {
	t.finished = true
	t.writes = nil
}
