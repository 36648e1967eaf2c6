// Package auth provides ed25519 account identities and the proof-of-signer
// capability that every mutating ledger call checks before touching state.
package auth
