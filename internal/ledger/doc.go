// Package ledger is the Verification Ledger: write-once attestation records
// about videos, addressed by composite keys, counted by a monotonic u32
// counter and retained by TTL.
//
// The ledger is pure with respect to its Env. Every operation reads and
// writes through Env.Storage, stamps records with Env.Timestamp and reports
// events through Env.Emit. The host opens one storage transaction per
// operation and commits it only when the operation returns nil, so a
// failing operation never leaves a partial write behind.
//
// Mutating operations take an auth.Proof and check it before anything else.
// A caller that cannot prove it is the submitter learns nothing about
// whether the record exists or the score is valid.
package ledger
