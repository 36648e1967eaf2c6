// Package host runs the Verification Ledger the way a chain host would.
//
// The host owns everything the ledger is not allowed to decide for itself:
// transaction order, the ledger sequence, the clock, signature checking
// material and the atomicity of each operation.
//
// # Single Writer
//
// Submit may be called from any goroutine. Requests are queued and applied
// one at a time by Run, which must be called from exactly one goroutine.
// For each transaction Run
//
//  1. returns the logged receipt if the transaction id is already logged
//  2. assigns the next ledger sequence and a non-decreasing timestamp
//  3. opens one state transaction and applies the call
//  4. appends transaction, receipt and events to the log
//  5. commits the state transaction only if the call succeeded
//
// Rejected calls are logged with their error code and leave state
// untouched.
//
// # Replay
//
// Receipt ids cover the ledger position, timestamp, outcome, result and
// events of every transaction. Restore re-applies the log on a backend and
// compares every receipt id, so a replay that diverges is detected at the
// first differing transaction.
package host
