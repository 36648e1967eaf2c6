// Package badgerstate implements state.Backend on badger.
//
// Each value is stored with a 4-byte big-endian live_until prefix. With
// native expiry enabled, badger's own TTL mirrors live_until so that
// abandoned entries disappear without a sweep.
package badgerstate

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/vidproof/internal/state"
)

const gcInterval = 5 * time.Minute

// Store is a badger-backed state.Backend.
type Store struct {
	db           *badger.DB
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	dataDir      string
	minLive      uint32
	closeTime    time.Duration
	gcEnabled    bool
	gcStop       chan struct{}
	gcWg         sync.WaitGroup

	swept prometheus.Counter
}

// New opens a store. Without WithDataDir the store lives in memory.
func New(opts ...Option) (*Store, error) {
	s := &Store{
		minLive:   state.DefaultMinLiveLedgers,
		gcEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	var badgerOpts badger.Options
	if s.dataDir == "" {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
		s.gcEnabled = false
	} else {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		badgerOpts = badger.DefaultOptions(s.dataDir)
	}
	badgerOpts = badgerOpts.
		WithLogger(newBadgerLogger(s.logger)).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	s.db = db

	if s.promRegistry != nil {
		s.swept = promauto.With(s.promRegistry).NewCounter(prometheus.CounterOpts{
			Name: "vidproof_state_swept_entries_total",
			Help: "Expired state entries removed by sweeps",
		})
	}
	if s.gcEnabled {
		s.gcStop = make(chan struct{})
		s.gcWg.Add(1)
		go s.runGc()
	}
	return s, nil
}

func (s *Store) runGc() {
	defer s.gcWg.Done()
	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			for {
				err := s.db.RunValueLogGC(0.5)
				if err == nil {
					continue
				}
				if !errors.Is(err, badger.ErrNoRewrite) {
					s.logger.Warn("value log GC failed", "component", "state", "error", err)
				}
				break
			}
		case <-s.gcStop:
			return
		}
	}
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		s.gcWg.Wait()
		s.gcStop = nil
	}
	return s.db.Close()
}

// Begin implements state.Backend.
func (s *Store) Begin(ctx context.Context, ledger uint32) (state.Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &txn{store: s, tx: s.db.NewTransaction(true), ledger: ledger}, nil
}

// Sweep implements state.Backend. Keys are collected in a read-only view
// and deleted through a write batch so that large sweeps do not exceed
// badger's transaction size limit.
func (s *Store) Sweep(ctx context.Context, ledger uint32) (int, error) {
	var expired [][]byte
	err := s.db.View(func(tx *badger.Txn) error {
		it := tx.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			err := item.Value(func(val []byte) error {
				lu, _, err := decode(val)
				if err != nil {
					return err
				}
				if lu < ledger && !state.Pinned(item.Key()) {
					expired = append(expired, item.KeyCopy(nil))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	if len(expired) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range expired {
		if err := wb.Delete(k); err != nil {
			return 0, fmt.Errorf("sweep: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	if s.swept != nil {
		s.swept.Add(float64(len(expired)))
	}
	s.logger.Debug("swept expired entries", "component", "state", "ledger", ledger, "count", len(expired))
	return len(expired), nil
}

func encode(liveUntil uint32, value []byte) []byte {
	buf := make([]byte, 4+len(value))
	binary.BigEndian.PutUint32(buf, liveUntil)
	copy(buf[4:], value)
	return buf
}

func decode(raw []byte) (uint32, []byte, error) {
	if len(raw) < 4 {
		return 0, nil, fmt.Errorf("corrupt entry: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint32(raw[:4]), raw[4:], nil
}

type txn struct {
	store    *Store
	tx       *badger.Txn
	ledger   uint32
	finished bool
}

func (t *txn) Ledger() uint32 {
	return t.ledger
}

func (t *txn) load(key []byte) (state.Entry, bool, error) {
	if t.finished {
		return state.Entry{}, false, state.ErrTxnFinished
	}
	item, err := t.tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return state.Entry{}, false, nil
	}
	if err != nil {
		return state.Entry{}, false, fmt.Errorf("get: %w", err)
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return state.Entry{}, false, fmt.Errorf("get: %w", err)
	}
	lu, value, err := decode(raw)
	if err != nil {
		return state.Entry{}, false, err
	}
	return state.Entry{Value: value, LiveUntil: lu}, true, nil
}

func (t *txn) put(key []byte, e state.Entry) error {
	entry := badger.NewEntry(key, encode(e.LiveUntil, e.Value))
	if t.store.closeTime > 0 && !state.Pinned(key) {
		remaining := uint32(1)
		if e.LiveUntil > t.ledger {
			remaining = e.LiveUntil - t.ledger
		}
		entry = entry.WithTTL(time.Duration(remaining) * t.store.closeTime)
	}
	if err := t.tx.SetEntry(entry); err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
}

func (t *txn) Get(key []byte) ([]byte, bool, error) {
	e, ok, err := t.load(key)
	return e.Value, ok, err
}

func (t *txn) Set(key, value []byte) error {
	e, ok, err := t.load(key)
	if err != nil {
		return err
	}
	if !ok {
		e.LiveUntil = state.InitialLiveUntil(t.ledger, t.store.minLive)
	}
	e.Value = value
	return t.put(key, e)
}

func (t *txn) ExtendTTL(key []byte, threshold, extendTo uint32) error {
	e, ok, err := t.load(key)
	if err != nil {
		return err
	}
	if !ok {
		return state.ErrEntryNotFound
	}
	next := state.Extend(e.LiveUntil, t.ledger, threshold, extendTo)
	if next == e.LiveUntil {
		return nil
	}
	e.LiveUntil = next
	return t.put(key, e)
}

func (t *txn) LiveUntil(key []byte) (uint32, bool, error) {
	e, ok, err := t.load(key)
	return e.LiveUntil, ok, err
}

func (t *txn) Commit() error {
	if t.finished {
		return state.ErrTxnFinished
	}
	t.finished = true
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *txn) Discard() {
	if t.finished {
		return
	}
	t.finished = true
	t.tx.Discard()
}
