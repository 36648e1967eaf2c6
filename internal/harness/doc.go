// Package harness runs conformance scenarios against a real host.
//
// # Scenario Format
//
// Scenarios are YAML files. Accounts and videos are referred to by name;
// the harness derives a fixed key pair for every account name and a fixed
// hash for every video name, so traces are identical across runs.
//
//	name: duplicate_per_submitter
//	description: "A second create by the same submitter is refused"
//	policy: per-submitter
//	flow:
//	  - op: create
//	    as: alice
//	    video: H2
//	    ai: false
//	    score: 90
//	    expect:
//	      outcome: Success
//	      result: { record_id: 1 }
//	  - op: create
//	    as: alice
//	    video: H2
//	    ai: true
//	    score: 95
//	    expect: { outcome: DuplicateVerification }
//	assertions:
//	  - type: record
//	    video: H2
//	    submitter: alice
//	    expect: { confidence_score: 90, is_ai_generated: false }
//	  - type: count
//	    count: 1
//
// A step signs as the account in "as". "submitter" names the account the
// call claims to act for and defaults to "as"; setting it to someone else
// forges the caller. "nonce" overrides the per-signer nonce sequence.
// "expect.error" names a host error code (for example NONCE_REUSED) for
// transactions the host refuses to log.
//
// # Assertion Types
//
//   - record: the record for video and submitter matches expect (subset),
//     or is missing when absent is true
//   - count: the verification counter equals count
//   - events: the log holds count events with topic
//   - outcomes: count receipts have outcome
//   - replay: re-executing the log reproduces every receipt
//
// # Determinism
//
// Each scenario runs on fresh in-memory state and an in-memory log, with a
// step clock that starts at testutil.DefaultEpoch and advances five
// seconds per ledger. Golden traces use account and video names rather
// than addresses and hashes.
package harness
