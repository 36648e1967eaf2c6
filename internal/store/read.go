package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/roach88/vidproof/internal/ir"
)

// Entry is one logged transaction with its receipt.
type Entry struct {
	Tx      ir.Transaction
	Receipt ir.Receipt
}

// ReadTransaction returns the logged transaction with id.
func (s *Store) ReadTransaction(ctx context.Context, id string) (ir.Transaction, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, source, op, args, nonce, signature
		FROM transactions
		WHERE id = ?
	`, id)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Transaction{}, false, nil
	}
	if err != nil {
		return ir.Transaction{}, false, err
	}
	return tx, true, nil
}

// ReadReceipt returns the receipt, with events, for a logged transaction.
func (s *Store) ReadReceipt(ctx context.Context, txID string) (ir.Receipt, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tx_id, ledger, timestamp, code, outcome, result, token
		FROM receipts
		WHERE tx_id = ?
	`, txID)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Receipt{}, false, nil
	}
	if err != nil {
		return ir.Receipt{}, false, err
	}

	events, err := s.readEventsFor(ctx, txID)
	if err != nil {
		return ir.Receipt{}, false, err
	}
	r.Events = events
	return r, true, nil
}

// TxIDForNonce returns the id of the transaction that used (source, nonce).
func (s *Store) TxIDForNonce(ctx context.Context, source string, nonce int64) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM transactions WHERE source = ? AND nonce = ?`, source, nonce,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query nonce: %w", err)
	}
	return id, true, nil
}

// ErrNoncesExhausted is returned by NextNonce once a source has used the
// largest nonce.
var ErrNoncesExhausted = errors.New("no nonces left for source")

// NextNonce returns one more than the highest nonce source has used, or 1.
func (s *Store) NextNonce(ctx context.Context, source string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(nonce), 0) FROM transactions WHERE source = ?`, source,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("query next nonce: %w", err)
	}
	if n == math.MaxInt64 {
		return 0, ErrNoncesExhausted
	}
	return n + 1, nil
}

// Head returns the highest ledger sequence and its timestamp, or zeros for
// an empty log.
func (s *Store) Head(ctx context.Context) (ledger, timestamp int64, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ledger), 0),
		       COALESCE((SELECT timestamp FROM receipts ORDER BY ledger DESC LIMIT 1), 0)
		FROM receipts
	`).Scan(&ledger, &timestamp)
	if err != nil {
		return 0, 0, fmt.Errorf("query head: %w", err)
	}
	return ledger, timestamp, nil
}

// ReadLog returns the whole log ordered by ledger sequence.
func (s *Store) ReadLog(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.source, t.op, t.args, t.nonce, t.signature,
		       r.id, r.tx_id, r.ledger, r.timestamp, r.code, r.outcome, r.result, r.token
		FROM receipts r
		JOIN transactions t ON t.id = r.tx_id
		ORDER BY r.ledger ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query log: %w", err)
	}

	var (
		entries []Entry
		index   = map[string]int{}
	)
	for rows.Next() {
		var (
			e                      Entry
			op, argsJSON, resultJS string
		)
		if err := rows.Scan(
			&e.Tx.ID, &e.Tx.Source, &op, &argsJSON, &e.Tx.Nonce, &e.Tx.Signature,
			&e.Receipt.ID, &e.Receipt.TxID, &e.Receipt.Ledger, &e.Receipt.Timestamp,
			&e.Receipt.Code, &e.Receipt.Outcome, &resultJS, &e.Receipt.Token,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Tx.Op = ir.Op(op)
		if e.Tx.Args, err = unmarshalObject(argsJSON); err != nil {
			rows.Close()
			return nil, err
		}
		if e.Receipt.Result, err = unmarshalObject(resultJS); err != nil {
			rows.Close()
			return nil, err
		}
		e.Receipt.Events = []ir.Event{}
		index[e.Tx.ID] = len(entries)
		entries = append(entries, e)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate log: %w", err)
	}

	// The connection is free again; attach events in a second pass.
	events, err := s.ReadEvents(ctx, EventFilter{})
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		i, ok := index[ev.TxID]
		if !ok {
			return nil, fmt.Errorf("event for unknown transaction %s", ev.TxID)
		}
		entries[i].Receipt.Events = append(entries[i].Receipt.Events, ev.Event)
	}

	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// EventFilter selects events. Zero fields match everything.
type EventFilter struct {
	SinceLedger int64  // inclusive
	Topic       string // exact topic
	Limit       int    // maximum events returned
}

// ReadEvents returns events in log order.
func (s *Store) ReadEvents(ctx context.Context, f EventFilter) ([]ir.LoggedEvent, error) {
	query := `
		SELECT tx_id, idx, ledger, topic, data
		FROM events
		WHERE ledger >= ? AND (? = '' OR topic = ?)
		ORDER BY ledger ASC, idx ASC`
	args := []any{f.SinceLedger, f.Topic, f.Topic}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryEvents(ctx, query, args...)
}

func (s *Store) readEventsFor(ctx context.Context, txID string) ([]ir.Event, error) {
	logged, err := s.queryEvents(ctx, `
		SELECT tx_id, idx, ledger, topic, data
		FROM events
		WHERE tx_id = ?
		ORDER BY idx ASC
	`, txID)
	if err != nil {
		return nil, err
	}
	events := make([]ir.Event, len(logged))
	for i, le := range logged {
		events[i] = le.Event
	}
	return events, nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]ir.LoggedEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.LoggedEvent{}
	for rows.Next() {
		var (
			ev   ir.LoggedEvent
			data string
		)
		if err := rows.Scan(&ev.TxID, &ev.Index, &ev.Ledger, &ev.Topic, &data); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.Data, err = unmarshalObject(data); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func scanTransaction(row scanner) (ir.Transaction, error) {
	var (
		tx       ir.Transaction
		op, args string
	)
	if err := row.Scan(&tx.ID, &tx.Source, &op, &args, &tx.Nonce, &tx.Signature); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Transaction{}, err
		}
		return ir.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	tx.Op = ir.Op(op)
	var err error
	if tx.Args, err = unmarshalObject(args); err != nil {
		return ir.Transaction{}, err
	}
	return tx, nil
}

func scanReceipt(row scanner) (ir.Receipt, error) {
	var (
		r      ir.Receipt
		result string
	)
	if err := row.Scan(&r.ID, &r.TxID, &r.Ledger, &r.Timestamp, &r.Code, &r.Outcome, &result, &r.Token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Receipt{}, err
		}
		return ir.Receipt{}, fmt.Errorf("scan receipt: %w", err)
	}
	var err error
	if r.Result, err = unmarshalObject(result); err != nil {
		return ir.Receipt{}, err
	}
	return r, nil
}
