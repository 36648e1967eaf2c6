package host

import (
	"encoding/hex"
	"fmt"

	"github.com/roach88/vidproof/internal/auth"
	"github.com/roach88/vidproof/internal/ir"
	"github.com/roach88/vidproof/internal/ledger"
)

// SignTransaction builds a transaction for call, signed by k with nonce.
func SignTransaction(k *auth.KeyPair, call ledger.Call, nonce int64) (ir.Transaction, error) {
	source := k.Address().String()
	args := call.Args()
	digest, err := ir.TransactionDigest(source, call.Op, args, nonce)
	if err != nil {
		return ir.Transaction{}, fmt.Errorf("sign transaction: %w", err)
	}
	return ir.Transaction{
		ID:        hex.EncodeToString(digest[:]),
		Source:    source,
		Op:        call.Op,
		Args:      args,
		Nonce:     nonce,
		Signature: k.SignHex(digest),
	}, nil
}

// validate checks the envelope of tx and decodes its call. The source
// must have signed the transaction: a transaction that fails here never
// reaches the log, so it cannot take a nonce from the account it names.
// Whether the source may act for the call's submitter is the ledger's
// check.
func validate(tx ir.Transaction) (ledger.Call, [32]byte, error) {
	call, err := ledger.DecodeCall(tx.Op, tx.Args)
	if err != nil {
		return ledger.Call{}, [32]byte{}, newError(ErrCodeMalformed, tx.ID, "%v", err)
	}
	if tx.Nonce < 1 {
		return ledger.Call{}, [32]byte{}, newError(ErrCodeMalformed, tx.ID, "nonce %d must be positive", tx.Nonce)
	}
	source, err := auth.ParseAddress(tx.Source)
	if err != nil {
		return ledger.Call{}, [32]byte{}, newError(ErrCodeMalformed, tx.ID, "source: %v", err)
	}
	digest, err := ir.TransactionDigest(tx.Source, tx.Op, tx.Args, tx.Nonce)
	if err != nil {
		return ledger.Call{}, [32]byte{}, newError(ErrCodeMalformed, tx.ID, "%v", err)
	}
	if id := hex.EncodeToString(digest[:]); id != tx.ID {
		return ledger.Call{}, [32]byte{}, newError(ErrCodeIDMismatch, tx.ID, "contents hash to %s", id)
	}
	if err := auth.NewProof(source, digest, tx.Signature).Require(source); err != nil {
		return ledger.Call{}, [32]byte{}, newError(ErrCodeBadSignature, tx.ID, "%v", err)
	}
	return call, digest, nil
}

// proofFor builds the signer proof for tx. An unparseable source yields a
// proof for the zero address, which no submitter can match.
func proofFor(tx ir.Transaction, digest [32]byte) auth.Proof {
	signer, err := auth.ParseAddress(tx.Source)
	if err != nil {
		signer = auth.Address{}
	}
	return auth.NewProof(signer, digest, tx.Signature)
}
