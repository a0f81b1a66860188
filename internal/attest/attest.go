// Package attest defines the pluggable proof-verification boundary between
// the chain core and the confidential-computation collaborator.
//
// The core never inspects proofs itself: every callback that carries one is
// checked through a Verifier. Deployments swap in whatever scheme their
// collaborator produces (zk proof system, enclave quote, threshold
// signature); the dev scheme is an ed25519 signature over the statement
// digest.
package attest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"errors"
)

// Statement is what a proof attests to: a domain-separated claim binding a
// commitment to a payload (revealed card values, a showdown result, an opened
// hole-card pair).
type Statement struct {
	Domain     string
	Commitment []byte
	Payload    []byte
}

// Proof domains. Verifiers must reject cross-domain reuse.
const (
	DomainReveal = "ep/v1/attest/reveal"
	DomainResult = "ep/v1/attest/result"
	DomainHole   = "ep/v1/attest/hole"
)

// Digest is the canonical byte string a proof covers:
// domain || 0x00 || commitment || 0x00 || sha256(payload).
func Digest(st Statement) []byte {
	payloadHash := sha256.Sum256(st.Payload)
	msg := make([]byte, 0, len(st.Domain)+1+len(st.Commitment)+1+len(payloadHash))
	msg = append(msg, st.Domain...)
	msg = append(msg, 0)
	msg = append(msg, st.Commitment...)
	msg = append(msg, 0)
	msg = append(msg, payloadHash[:]...)
	sum := sha256.Sum256(msg)
	return sum[:]
}

// Verifier checks a proof against a statement. A nil error means the proof
// is valid; any error halts the hand that carried it.
type Verifier interface {
	Verify(st Statement, proof []byte) error
}

// VerifierFunc adapts a function to the Verifier interface.
type VerifierFunc func(st Statement, proof []byte) error

func (f VerifierFunc) Verify(st Statement, proof []byte) error { return f(st, proof) }

var ErrBadProof = errors.New("proof verification failed")

// SignatureVerifier accepts proofs that are ed25519 signatures by the given
// key over the statement digest. This is the dev/test scheme; it proves the
// collaborator vouches for the statement, not that the computation was
// performed correctly.
type SignatureVerifier struct {
	PubKey ed25519.PublicKey
}

func (v SignatureVerifier) Verify(st Statement, proof []byte) error {
	if len(v.PubKey) != ed25519.PublicKeySize {
		return errors.New("verifier key not configured")
	}
	if len(proof) != ed25519.SignatureSize {
		return ErrBadProof
	}
	if !ed25519.Verify(v.PubKey, Digest(st), proof) {
		return ErrBadProof
	}
	return nil
}

// SignStatement produces a proof accepted by SignatureVerifier. Used by the
// in-process collaborator.
func SignStatement(priv ed25519.PrivateKey, st Statement) []byte {
	return ed25519.Sign(priv, Digest(st))
}

// Canonical payloads. Both sides of the boundary (chain core and
// collaborator) must build the statement payload byte-for-byte identically,
// so the encoders live here.

// RevealPayload binds a community-card reveal to its hand and board slots.
func RevealPayload(tableID, handID uint64, indices, values []uint8) []byte {
	return mustJSON(struct {
		TableID uint64  `json:"tableId"`
		HandID  uint64  `json:"handId"`
		Indices []uint8 `json:"indices"`
		Values  []uint8 `json:"values"`
	}{tableID, handID, indices, values})
}

// ResultPayload binds a showdown evaluation to its hand and outcome.
func ResultPayload(tableID, handID uint64, winners []int, payouts []uint64, category uint8) []byte {
	return mustJSON(struct {
		TableID  uint64   `json:"tableId"`
		HandID   uint64   `json:"handId"`
		Winners  []int    `json:"winners"`
		Payouts  []uint64 `json:"payouts"`
		Category uint8    `json:"category"`
	}{tableID, handID, winners, payouts, category})
}

// HolePayload binds a voluntary hole-card opening to its seat and hand.
func HolePayload(tableID, handID uint64, seat int, card1, card2 uint8) []byte {
	return mustJSON(struct {
		TableID uint64 `json:"tableId"`
		HandID  uint64 `json:"handId"`
		Seat    int    `json:"seat"`
		Card1   uint8  `json:"card1"`
		Card2   uint8  `json:"card2"`
	}{tableID, handID, seat, card1, card2})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// AcceptAll skips verification. Test-only.
type AcceptAll struct{}

func (AcceptAll) Verify(Statement, []byte) error { return nil }
