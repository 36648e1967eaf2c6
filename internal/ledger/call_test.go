package ledger

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/vidproof/internal/ir"
)

func TestDecodeCall(t *testing.T) {
	args := ir.Object{
		"submitter":        ir.String("ab"),
		"video_hash":       ir.String("cd"),
		"is_ai_generated":  ir.Bool(true),
		"confidence_score": ir.Int(7),
	}
	c, err := DecodeCall(ir.OpCreate, args)
	require.NoError(t, err)
	assert.Equal(t, Call{Op: ir.OpCreate, Submitter: "ab", VideoHash: "cd", IsAIGenerated: true, ConfidenceScore: 7}, c)
	assert.Equal(t, args, c.Args())

	delete(args, "is_ai_generated")
	_, err = DecodeCall(ir.OpCreate, args)
	assert.ErrorIs(t, err, ErrMalformedCall)

	u, err := DecodeCall(ir.OpUpdate, args)
	require.NoError(t, err)
	assert.NotContains(t, u.Args(), "is_ai_generated")

	_, err = DecodeCall("delete", args)
	assert.ErrorIs(t, err, ErrMalformedCall)

	args["confidence_score"] = ir.String("high")
	_, err = DecodeCall(ir.OpUpdate, args)
	assert.ErrorIs(t, err, ErrMalformedCall)
}

func TestApplyValidationOrder(t *testing.T) {
	f := newFixture(t)
	alice, mallory := key(t, 1), key(t, 9)
	good := hashOf("v")

	tests := []struct {
		name   string
		signer byte
		call   Call
		code   Code
	}{
		{
			name:   "bad submitter is unauthorized",
			signer: 1,
			call:   Call{Op: ir.OpCreate, Submitter: "nope", VideoHash: "zz", ConfidenceScore: 500},
			code:   CodeUnauthorized,
		},
		{
			name:   "wrong signer before bad hash",
			signer: 9,
			call:   Call{Op: ir.OpCreate, Submitter: alice.Address().String(), VideoHash: "zz", ConfidenceScore: 500},
			code:   CodeUnauthorized,
		},
		{
			name:   "bad hash before bad score",
			signer: 1,
			call:   Call{Op: ir.OpCreate, Submitter: alice.Address().String(), VideoHash: strings.Repeat("a", 62), ConfidenceScore: 500},
			code:   CodeInvalidHash,
		},
		{
			name:   "negative score",
			signer: 1,
			call:   Call{Op: ir.OpCreate, Submitter: alice.Address().String(), VideoHash: good.String(), ConfidenceScore: -1},
			code:   CodeInvalidConfidence,
		},
		{
			name:   "update of missing record",
			signer: 1,
			call:   Call{Op: ir.OpUpdate, Submitter: alice.Address().String(), VideoHash: good.String(), ConfidenceScore: 5},
			code:   CodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signer := alice
			if tt.signer == 9 {
				signer = mallory
			}
			err := f.run(func(env Env) error {
				_, err := f.contract.Apply(env, proofFor(signer, "apply", good), tt.call)
				return err
			})
			code, ok := CodeOf(err)
			require.True(t, ok, "got %v", err)
			assert.Equal(t, tt.code, code)
		})
	}
	assert.Equal(t, uint32(0), f.count())
}

func TestApplyCreateThenUpdate(t *testing.T) {
	f := newFixture(t)
	alice := key(t, 1)
	h := hashOf("apply")

	var result ir.Object
	require.NoError(t, f.run(func(env Env) error {
		var err error
		result, err = f.contract.Apply(env, proofFor(alice, "c", h), Call{
			Op: ir.OpCreate, Submitter: alice.Address().String(), VideoHash: h.String(),
			IsAIGenerated: true, ConfidenceScore: 33,
		})
		return err
	}))
	assert.Equal(t, ir.Object{"record_id": ir.Int(1)}, result)

	require.NoError(t, f.run(func(env Env) error {
		var err error
		result, err = f.contract.Apply(env, proofFor(alice, "u", h), Call{
			Op: ir.OpUpdate, Submitter: alice.Address().String(), VideoHash: h.String(), ConfidenceScore: 44,
		})
		return err
	}))
	assert.Equal(t, ir.Object{}, result)
	rec, _ := f.read(h, alice.Address())
	assert.Equal(t, uint32(44), rec.ConfidenceScore)
}
