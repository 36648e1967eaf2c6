// Package sqlitestate implements state.Backend on SQLite.
package sqlitestate

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/vidproof/internal/state"
)

//go:embed schema.sql
var schemaSQL string

// Store is a SQLite-backed state.Backend. Expired rows stay in the table
// until Sweep deletes them.
type Store struct {
	db      *sql.DB
	minLive uint32
}

// Option configures a Store.
type Option func(*Store)

// WithMinLiveLedgers sets the lifetime of newly created entries.
func WithMinLiveLedgers(n uint32) Option {
	return func(s *Store) {
		s.minLive = n
	}
}

// Open creates or opens the state database at path.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect state database: %w", err)
	}
	// One connection: SQLite has a single writer and the host never runs
	// two state transactions at once.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply state schema: %w", err)
	}

	s := &Store{db: db, minLive: state.DefaultMinLiveLedgers}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin implements state.Backend.
func (s *Store) Begin(ctx context.Context, ledger uint32) (state.Txn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin state transaction: %w", err)
	}
	return &txn{ctx: ctx, tx: tx, ledger: ledger, minLive: s.minLive}, nil
}

// Sweep implements state.Backend.
func (s *Store) Sweep(ctx context.Context, ledger uint32) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE live_until < ? AND substr(key, 1, 1) != ?`,
		ledger, []byte{state.PinnedPrefix})
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep: %w", err)
	}
	return int(n), nil
}

type txn struct {
	ctx      context.Context
	tx       *sql.Tx
	ledger   uint32
	minLive  uint32
	finished bool
}

func (t *txn) Ledger() uint32 {
	return t.ledger
}

func (t *txn) load(key []byte) (state.Entry, bool, error) {
	if t.finished {
		return state.Entry{}, false, state.ErrTxnFinished
	}
	var e state.Entry
	err := t.tx.QueryRowContext(t.ctx,
		`SELECT value, live_until FROM entries WHERE key = ?`, key,
	).Scan(&e.Value, &e.LiveUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return state.Entry{}, false, nil
	}
	if err != nil {
		return state.Entry{}, false, fmt.Errorf("get: %w", err)
	}
	return e, true, nil
}

func (t *txn) Get(key []byte) ([]byte, bool, error) {
	e, ok, err := t.load(key)
	return e.Value, ok, err
}

func (t *txn) Set(key, value []byte) error {
	if t.finished {
		return state.ErrTxnFinished
	}
	_, err := t.tx.ExecContext(t.ctx, `
		INSERT INTO entries (key, value, live_until) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value, state.InitialLiveUntil(t.ledger, t.minLive))
	if err != nil {
		return fmt.Errorf("set: %w", err)
	}
	return nil
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
	if _, err := t.tx.ExecContext(t.ctx,
		`UPDATE entries SET live_until = ? WHERE key = ?`, next, key,
	); err != nil {
		return fmt.Errorf("extend ttl: %w", err)
	}
	return nil
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
		return fmt.Errorf("commit state transaction: %w", err)
	}
	return nil
}

func (t *txn) Discard() {
	if t.finished {
		return
	}
	t.finished = true
	t.tx.Rollback()
}
