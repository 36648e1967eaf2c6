// Package ir provides the canonical value and envelope types shared by the
// ledger host, the transaction log and the CLI.
//
// ir imports nothing internal; every other package may import it.
//
// Constraints:
//   - no float values anywhere; numbers are int64
//   - RFC 8785 canonical JSON is the only encoding used for ids and for
//     persisted ledger records
//   - JSON tags use snake_case
//   - ordering uses ledger sequence numbers, never wall-clock time
package ir
