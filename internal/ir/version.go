package ir

// Version constants stamped into the transaction log.
const (
	// IRVersion is the encoding version of transactions and receipts.
	IRVersion = "1"

	// HostVersion is the version of the ledger host.
	HostVersion = "0.1.0"
)
