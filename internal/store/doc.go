// Package store is the SQLite transaction log.
//
// The log holds every transaction the host accepted, the receipt it
// produced and the events that receipt carries. It is append-only and
// ordered by ledger sequence. Replaying it against empty state must
// reproduce every receipt id.
//
// Writes are idempotent: a transaction id already in the log is ignored,
// so a resubmitted transaction keeps its original receipt.
//
// The database runs in WAL mode with synchronous=NORMAL, a five second
// busy timeout and foreign keys enforced.
package store
