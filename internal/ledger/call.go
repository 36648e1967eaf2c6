package ledger

import (
	"errors"
	"fmt"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ir"
)

// ErrMalformedCall is returned by DecodeCall when transaction arguments are
// missing or of the wrong kind. Such transactions are rejected before they
// reach the log.
var ErrMalformedCall = errors.New("malformed call")

// Call is a decoded create or update request. Field values are carried as
// submitted; Apply validates them in authorization order.
type Call struct {
	Op              ir.Op
	Submitter       string
	VideoHash       string
	IsAIGenerated   bool
	ConfidenceScore int64
}

// DecodeCall checks that args has the fields op needs.
func DecodeCall(op ir.Op, args ir.Object) (Call, error) {
	if !ir.ValidOps[op] {
		return Call{}, fmt.Errorf("%w: unknown op %q", ErrMalformedCall, op)
	}
	c := Call{Op: op}
	var err error
	if c.Submitter, err = args.GetString("submitter"); err != nil {
		return Call{}, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	if c.VideoHash, err = args.GetString("video_hash"); err != nil {
		return Call{}, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	if c.ConfidenceScore, err = args.GetInt("confidence_score"); err != nil {
		return Call{}, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	if op == ir.OpCreate {
		if c.IsAIGenerated, err = args.GetBool("is_ai_generated"); err != nil {
			return Call{}, fmt.Errorf("%w: %v", ErrMalformedCall, err)
		}
	}
	return c, nil
}

// Args renders the call as transaction arguments.
func (c Call) Args() ir.Object {
	args := ir.Object{
		"submitter":        ir.String(c.Submitter),
		"video_hash":       ir.String(c.VideoHash),
		"confidence_score": ir.Int(c.ConfidenceScore),
	}
	if c.Op == ir.OpCreate {
		args["is_ai_generated"] = ir.Bool(c.IsAIGenerated)
	}
	return args
}

// Apply runs call against env. The submitter is authenticated first, then
// the hash and score are validated, then the operation runs. The result
// object holds record_id for a create and is empty for an update.
func (c *Contract) Apply(env Env, proof auth.Proof, call Call) (ir.Object, error) {
	submitter, err := auth.ParseAddress(call.Submitter)
	if err != nil {
		return nil, newError(CodeUnauthorized, "submitter is not an account: %v", err)
	}
	if err := authorize(proof, submitter); err != nil {
		return nil, err
	}
	hash, err := ParseVideoHash(call.VideoHash)
	if err != nil {
		return nil, err
	}
	if call.ConfidenceScore < 0 || call.ConfidenceScore > MaxConfidence {
		return nil, newError(CodeInvalidConfidence, "confidence score %d outside [0,%d]", call.ConfidenceScore, MaxConfidence)
	}
	score := uint32(call.ConfidenceScore)

	switch call.Op {
	case ir.OpCreate:
		id, err := c.Create(env, proof, submitter, hash, call.IsAIGenerated, score)
		if err != nil {
			return nil, err
		}
		return ir.Object{"record_id": ir.Int(id)}, nil
	case ir.OpUpdate:
		if err := c.Update(env, proof, submitter, hash, score); err != nil {
			return nil, err
		}
		return ir.Object{}, nil
	}
	return nil, fmt.Errorf("%w: unknown op %q", ErrMalformedCall, call.Op)
}
