package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when a proof does not establish that the
// claimed account signed the request.
var ErrUnauthorized = errors.New("unauthorized")

// Proof is the capability a mutating ledger call receives: the account that
// signed a transaction digest, with the signature itself. A Proof carries
// no authority until Require checks it against the identity the call acts
// for.
type Proof struct {
	signer    Address
	digest    [32]byte
	signature []byte
}

// NewProof builds a proof from a transaction's source, digest and hex
// signature. Malformed signatures still produce a Proof; Require rejects it.
func NewProof(signer Address, digest [32]byte, signatureHex string) Proof {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		sig = nil
	}
	return Proof{signer: signer, digest: digest, signature: sig}
}

// Sign produces a proof for digest signed by k.
func Sign(k *KeyPair, digest [32]byte) Proof {
	return Proof{signer: k.address, digest: digest, signature: k.Sign(digest)}
}

// Require checks that the proof was produced by account: the signer must
// equal account and the signature must verify over the digest.
func (p Proof) Require(account Address) error {
	if p.signer != account {
		return fmt.Errorf("%w: signer %s does not match %s", ErrUnauthorized, p.signer.Short(), account.Short())
	}
	if len(p.signature) != ed25519.SignatureSize {
		return fmt.Errorf("%w: malformed signature", ErrUnauthorized)
	}
	if !ed25519.Verify(account.PublicKey(), p.digest[:], p.signature) {
		return fmt.Errorf("%w: signature does not verify", ErrUnauthorized)
	}
	return nil
}
