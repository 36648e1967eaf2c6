package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/vidproof/internal/ir"
)

// ErrNonceReused is returned when a different transaction from the same
// source already used the nonce.
var ErrNonceReused = errors.New("nonce already used by another transaction")

// Append writes a transaction, its receipt and the receipt's events in one
// database transaction. A transaction id already in the log is ignored
// along with its receipt and events.
//
// Args, results and event data are stored as canonical JSON so that a
// replay reads back byte-identical values.
func (s *Store) Append(ctx context.Context, tx ir.Transaction, r ir.Receipt) (err error) {
	argsJSON, err := marshalObject(tx.Args)
	if err != nil {
		return fmt.Errorf("append: args: %w", err)
	}
	resultJSON, err := marshalObject(r.Result)
	if err != nil {
		return fmt.Errorf("append: result: %w", err)
	}
	eventsJSON := make([]string, len(r.Events))
	for i, ev := range r.Events {
		if eventsJSON[i], err = marshalObject(ev.Data); err != nil {
			return fmt.Errorf("append: event %d: %w", i, err)
		}
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append: begin: %w", err)
	}
	defer func() {
		if err != nil {
			sqlTx.Rollback()
		}
	}()

	res, err := sqlTx.ExecContext(ctx, `
		INSERT INTO transactions (id, source, op, args, nonce, signature)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, tx.ID, tx.Source, string(tx.Op), argsJSON, tx.Nonce, tx.Signature)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrNonceReused
		}
		return fmt.Errorf("write transaction: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Already logged.
		return sqlTx.Commit()
	}

	if _, err = sqlTx.ExecContext(ctx, `
		INSERT INTO receipts (id, tx_id, ledger, timestamp, code, outcome, result, token)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.TxID, r.Ledger, r.Timestamp, r.Code, r.Outcome, resultJSON, r.Token); err != nil {
		return fmt.Errorf("write receipt: %w", err)
	}

	for i, ev := range r.Events {
		if _, err = sqlTx.ExecContext(ctx, `
			INSERT INTO events (tx_id, idx, ledger, topic, data)
			VALUES (?, ?, ?, ?, ?)
		`, r.TxID, i, r.Ledger, ev.Topic, eventsJSON[i]); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
	}

	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("append: commit: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}
