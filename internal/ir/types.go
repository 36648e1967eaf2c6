package ir

// Op names a state-changing ledger operation carried by a Transaction.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// ValidOps lists the operations a transaction may carry.
var ValidOps = map[Op]bool{
	OpCreate: true,
	OpUpdate: true,
}

// Transaction is a signed request to mutate ledger state.
//
// Source is the signer's account (hex ed25519 public key). Signature is the
// hex ed25519 signature over TransactionDigest. ID is the hex digest, so the
// same signed request always maps to the same log row.
type Transaction struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Op        Op     `json:"op"`
	Args      Object `json:"args"`
	Nonce     int64  `json:"nonce"`
	Signature string `json:"signature"`
}

// Receipt records the outcome of one applied transaction.
type Receipt struct {
	ID        string  `json:"id"`
	TxID      string  `json:"tx_id"`
	Ledger    int64   `json:"ledger"`    // ledger sequence assigned by the host
	Timestamp int64   `json:"timestamp"` // ledger clock, seconds
	Code      int64   `json:"code"`      // 0 on success, ledger error code otherwise
	Outcome   string  `json:"outcome"`   // "Success" or the error code name
	Result    Object  `json:"result"`
	Events    []Event `json:"events"`
	Token     string  `json:"token,omitempty"`
}

// OutcomeSuccess is the Outcome of a receipt with Code 0.
const OutcomeSuccess = "Success"

// Succeeded reports whether the transaction changed state.
func (r Receipt) Succeeded() bool {
	return r.Code == 0
}

// Event is a notification emitted by a successful transaction.
type Event struct {
	Topic string `json:"topic"`
	Data  Object `json:"data"`
}

// LoggedEvent is an Event together with its position in the log.
type LoggedEvent struct {
	Event
	TxID   string `json:"tx_id"`
	Ledger int64  `json:"ledger"`
	Index  int    `json:"index"`
}
