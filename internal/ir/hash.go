package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed ids. The version suffix leaves room
// for an algorithm change without colliding with existing ids.
const (
	DomainTransaction = "vidproof/tx/v1"
	DomainReceipt     = "vidproof/receipt/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
// The null separator keeps domain and payload boundaries unambiguous.
func hashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// TransactionDigest is the 32-byte value a submitter signs.
// The signature itself is not part of the digest.
func TransactionDigest(source string, op Op, args Object, nonce int64) ([32]byte, error) {
	obj := Object{
		"source": String(source),
		"op":     String(op),
		"args":   args,
		"nonce":  Int(nonce),
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return [32]byte{}, fmt.Errorf("transaction digest: %w", err)
	}
	return hashWithDomain(DomainTransaction, canonical), nil
}

// TransactionID is the hex form of TransactionDigest.
func TransactionID(source string, op Op, args Object, nonce int64) (string, error) {
	d, err := TransactionDigest(source, op, args, nonce)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(d[:]), nil
}

// ReceiptID identifies the outcome of applying a transaction at a given
// ledger position. Replaying the log must reproduce every ReceiptID.
// The correlation token is excluded: it identifies the request, not the
// outcome.
func ReceiptID(r Receipt) (string, error) {
	events := make(Array, len(r.Events))
	for i, ev := range r.Events {
		events[i] = Object{
			"topic": String(ev.Topic),
			"data":  ev.Data,
		}
	}
	result := r.Result
	if result == nil {
		result = Object{}
	}
	obj := Object{
		"tx_id":     String(r.TxID),
		"ledger":    Int(r.Ledger),
		"timestamp": Int(r.Timestamp),
		"code":      Int(r.Code),
		"outcome":   String(r.Outcome),
		"result":    result,
		"events":    events,
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("receipt id: %w", err)
	}
	sum := hashWithDomain(DomainReceipt, canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustTransactionID is like TransactionID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustTransactionID(source string, op Op, args Object, nonce int64) string {
	id, err := TransactionID(source, op, args, nonce)
	if err != nil {
		panic(err)
	}
	return id
}
