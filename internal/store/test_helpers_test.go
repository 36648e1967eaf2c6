package store

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/vidproof/internal/ir"
)

// createTestStore opens a fresh log in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestEntry builds a transaction and matching receipt at ledger.
func createTestEntry(source string, nonce, ledger int64, events ...ir.Event) (ir.Transaction, ir.Receipt) {
	tx := ir.Transaction{
		ID:        fmt.Sprintf("tx-%s-%d", source, nonce),
		Source:    source,
		Op:        ir.OpCreate,
		Args:      ir.Object{"video_hash": ir.String("aa"), "confidence_score": ir.Int(50)},
		Nonce:     nonce,
		Signature: "sig",
	}
	if events == nil {
		events = []ir.Event{}
	}
	r := ir.Receipt{
		ID:        fmt.Sprintf("rc-%d", ledger),
		TxID:      tx.ID,
		Ledger:    ledger,
		Timestamp: 1000 + ledger*5,
		Code:      0,
		Outcome:   ir.OutcomeSuccess,
		Result:    ir.Object{"record_id": ir.Int(ledger)},
		Events:    events,
		Token:     "tok",
	}
	return tx, r
}
