package harness

import (
	"github.com/roach88/vidproof/internal/ir"
)

// TraceEvent is one flow step and what the host did with it.
type TraceEvent struct {
	Step      int       `json:"step"`
	Op        string    `json:"op"`
	Signer    string    `json:"signer"`
	Submitter string    `json:"submitter"`
	Video     string    `json:"video"`
	IsAI      bool      `json:"is_ai_generated,omitempty"`
	Score     int64     `json:"confidence_score"`
	Nonce     int64     `json:"nonce"`
	Ledger    int64     `json:"ledger,omitempty"`
	Timestamp int64     `json:"timestamp,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Code      int64     `json:"code"`
	Result    ir.Object `json:"result,omitempty"`
	Events    []string  `json:"events,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// object renders e for golden comparison. Refused steps carry the host
// error code instead of receipt fields. Rejection messages name hashes
// and addresses and are left out.
func (e TraceEvent) object() ir.Object {
	obj := ir.Object{
		"step":             ir.Int(e.Step),
		"op":               ir.String(e.Op),
		"signer":           ir.String(e.Signer),
		"submitter":        ir.String(e.Submitter),
		"video":            ir.String(e.Video),
		"confidence_score": ir.Int(e.Score),
		"nonce":            ir.Int(e.Nonce),
	}
	if e.Op == string(ir.OpCreate) {
		obj["is_ai_generated"] = ir.Bool(e.IsAI)
	}
	if e.Error != "" {
		obj["error"] = ir.String(e.Error)
		return obj
	}
	events := make(ir.Array, len(e.Events))
	for i, topic := range e.Events {
		events[i] = ir.String(topic)
	}
	result := e.Result
	if result == nil {
		result = ir.Object{}
	}
	obj["ledger"] = ir.Int(e.Ledger)
	obj["timestamp"] = ir.Int(e.Timestamp)
	obj["outcome"] = ir.String(e.Outcome)
	obj["code"] = ir.Int(e.Code)
	obj["result"] = result
	obj["events"] = events
	return obj
}

// Result is the outcome of running a scenario.
type Result struct {
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult returns a passing, empty result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
