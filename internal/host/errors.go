package host

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes host errors. These never appear in receipts: a
// transaction that fails with a host error is not logged.
type ErrorCode string

const (
	// ErrCodeMalformed means the transaction is missing fields or names an
	// unknown op.
	ErrCodeMalformed ErrorCode = "MALFORMED_TRANSACTION"

	// ErrCodeIDMismatch means the transaction id is not the digest of its
	// contents.
	ErrCodeIDMismatch ErrorCode = "ID_MISMATCH"

	// ErrCodeBadSignature means the signature does not verify against the
	// transaction's source.
	ErrCodeBadSignature ErrorCode = "BAD_SIGNATURE"

	// ErrCodeNonceReused means another transaction from the same source
	// already used the nonce.
	ErrCodeNonceReused ErrorCode = "NONCE_REUSED"

	// ErrCodeStopped means the host is no longer accepting transactions.
	ErrCodeStopped ErrorCode = "HOST_STOPPED"

	// ErrCodeLedgerExhausted means the ledger sequence left the u32 range.
	ErrCodeLedgerExhausted ErrorCode = "LEDGER_EXHAUSTED"
)

// Error is a host-level refusal to apply a transaction.
type Error struct {
	Code    ErrorCode
	Message string
	TxID    string
}

func (e *Error) Error() string {
	if e.TxID != "" {
		return fmt.Sprintf("%s: %s (tx=%s)", e.Code, e.Message, e.TxID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, txID, format string, args ...any) *Error {
	return &Error{Code: code, TxID: txID, Message: fmt.Sprintf(format, args...)}
}

func hasCode(err error, code ErrorCode) bool {
	var he *Error
	if errors.As(err, &he) {
		return he.Code == code
	}
	return false
}

// IsMalformed reports whether err is a malformed transaction error.
func IsMalformed(err error) bool { return hasCode(err, ErrCodeMalformed) }

// IsIDMismatch reports whether err is an id mismatch error.
func IsIDMismatch(err error) bool { return hasCode(err, ErrCodeIDMismatch) }

// IsBadSignature reports whether err is a BAD_SIGNATURE host error.
func IsBadSignature(err error) bool { return hasCode(err, ErrCodeBadSignature) }

// IsNonceReused reports whether err is a nonce reuse error.
func IsNonceReused(err error) bool { return hasCode(err, ErrCodeNonceReused) }

// IsStopped reports whether err came from a stopped host.
func IsStopped(err error) bool { return hasCode(err, ErrCodeStopped) }
