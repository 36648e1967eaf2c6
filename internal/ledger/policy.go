package ledger

import (
	"fmt"

	"github.com/roach88/vidproof/internal/auth"
)

// Policy decides how records are keyed and what a duplicate create does.
type Policy string

const (
	// PolicyPerSubmitter keys records by (hash, submitter). A second create
	// by the same submitter for the same hash fails DuplicateVerification.
	PolicyPerSubmitter Policy = "per-submitter"

	// PolicyGlobal keys records by hash alone. A second create for a
	// claimed hash, by anyone, returns the existing record id and writes
	// nothing.
	PolicyGlobal Policy = "global"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyPerSubmitter, PolicyGlobal:
		return p, nil
	case "":
		return PolicyPerSubmitter, nil
	}
	return "", fmt.Errorf("unknown ledger policy %q", s)
}

// KeyFor derives the record key for hash and submitter under p.
func (p Policy) KeyFor(hash VideoHash, submitter auth.Address) Key {
	if p == PolicyGlobal {
		return ByHash{Hash: hash}
	}
	return ByHashAndSubmitter{Hash: hash, Submitter: submitter}
}

// DefaultTTLLedgers is about one year of ledgers at a five second close.
const DefaultTTLLedgers uint32 = 6_307_200

// TTL is the retention horizon applied on every successful write.
type TTL struct {
	Threshold uint32
	ExtendTo  uint32
}

// DefaultTTL extends whenever less than a full horizon remains.
var DefaultTTL = TTL{Threshold: DefaultTTLLedgers, ExtendTo: DefaultTTLLedgers}
