package app

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	"encryptedpoker/internal/attest"
	"encryptedpoker/internal/codec"
	"encryptedpoker/internal/state"
)

// matchPending enforces the request/callback pairing: a callback is accepted
// only against the one outstanding request with its exact kind and sequence
// number. Duplicates and out-of-order callbacks fall out here with no state
// change.
func matchPending(h *state.Hand, kind state.RequestKind, seq uint64) error {
	if h == nil {
		return fmt.Errorf("no active hand")
	}
	if h.Halted {
		return ErrHandHalted
	}
	if h.Pending == nil {
		return fmt.Errorf("%w: none outstanding", ErrUnexpectedCallback)
	}
	if h.Pending.Kind != kind {
		return fmt.Errorf("%w: outstanding %s, got %s", ErrUnexpectedCallback, h.Pending.Kind, kind)
	}
	if h.Pending.Seq != seq {
		return fmt.Errorf("%w: outstanding seq %d, got %d", ErrUnexpectedCallback, h.Pending.Seq, seq)
	}
	return nil
}

// applyDeckReady records the shuffled-deck commitment and immediately asks
// for hole cards. Blinds are already in the pot at this point.
func applyDeckReady(t *state.Table, h *state.Hand, msg codec.MPCDeckReadyTx, now int64) error {
	if err := matchPending(h, state.RequestShuffle, msg.Seq); err != nil {
		return err
	}
	if h.Phase != state.PhasePreFlop {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, h.Phase)
	}
	if len(msg.DeckCommitment) != sha256.Size {
		return fmt.Errorf("deck commitment must be %d bytes", sha256.Size)
	}
	h.DeckCommitment = msg.DeckCommitment
	h.ComputationID = msg.ComputationID
	h.DeckCursor = 0

	h.Pending = &state.PendingRequest{
		Kind:     state.RequestDealHole,
		Seq:      h.NextSeq,
		IssuedAt: now,
	}
	h.NextSeq++
	return nil
}

// applyCardsDealt stores each in-hand seat's opaque hole-card ciphertexts and
// opens pre-flop betting. The chain never sees card values here; it checks
// only shape, coverage and cursor accounting against the committed deck.
func applyCardsDealt(t *state.Table, h *state.Hand, msg codec.MPCCardsDealtTx, now int64) error {
	if err := matchPending(h, state.RequestDealHole, msg.Seq); err != nil {
		return err
	}
	if h.Phase != state.PhasePreFlop {
		return fmt.Errorf("%w: %s", ErrInvalidPhase, h.Phase)
	}

	inHand := inHandSeats(h)
	if len(msg.Hands) != len(inHand) {
		return fmt.Errorf("expected %d dealt hands, got %d", len(inHand), len(msg.Hands))
	}
	seen := map[int]bool{}
	for _, dh := range msg.Hands {
		seat := int(dh.Seat)
		if seat >= state.MaxSeats || t.Seats[seat] == nil || !h.InHand[seat] {
			return fmt.Errorf("%w: dealt seat %d not in hand", ErrInvalidSeat, seat)
		}
		if seen[seat] {
			return fmt.Errorf("%w: duplicate dealt seat %d", ErrInvalidSeat, seat)
		}
		seen[seat] = true
		if len(dh.EncryptedCard1) == 0 || len(dh.EncryptedCard2) == 0 {
			return fmt.Errorf("%w: empty ciphertext for seat %d", ErrInvalidCard, seat)
		}
		if len(dh.Commitment) != sha256.Size {
			return fmt.Errorf("hand commitment must be %d bytes", sha256.Size)
		}
	}

	// Cursor accounting: two cards per in-hand seat, and the committed deck
	// must keep enough cards for the full board.
	expected := h.DeckCursor + uint8(2*len(inHand))
	if msg.Cursor != expected {
		return fmt.Errorf("%w: cursor %d, expected %d", ErrInvalidCard, msg.Cursor, expected)
	}
	if int(msg.Cursor) > state.DeckSize-state.BoardSize {
		return fmt.Errorf("%w: cursor %d leaves no room for the board", ErrInvalidCard, msg.Cursor)
	}

	cursor := h.DeckCursor
	for _, dh := range msg.Hands {
		seat := int(dh.Seat)
		cursor += 2
		h.ConfidentialHands[seat] = &state.ConfidentialHand{
			Seat:           seat,
			HandNumber:     h.HandID,
			EncryptedCard1: dh.EncryptedCard1,
			EncryptedCard2: dh.EncryptedCard2,
			Commitment:     dh.Commitment,
			Cursor:         cursor,
		}
	}
	h.DeckCursor = msg.Cursor
	h.Pending = nil

	setTurn(t, h, firstToActPreflop(t, h), now)
	return nil
}

// applyCommunityCards fills exactly the board slots the outstanding reveal
// request named, after the proof ties the values to the deck commitment.
// A proof failure is returned as ErrInvalidProof; the caller halts the hand.
func applyCommunityCards(t *state.Table, h *state.Hand, verify func(attest.Statement, []byte) error, msg codec.MPCCommunityCardsTx, now int64) error {
	if err := matchPending(h, state.RequestRevealCommunity, msg.Seq); err != nil {
		return err
	}
	if len(msg.CardIndices) != len(msg.CardValues) {
		return fmt.Errorf("%w: %d indices, %d values", ErrInvalidCard, len(msg.CardIndices), len(msg.CardValues))
	}
	if !bytes.Equal(msg.CardIndices, h.Pending.Slots) {
		return fmt.Errorf("%w: requested slots %v, got %v", ErrInvalidCard, h.Pending.Slots, msg.CardIndices)
	}
	for i, idx := range msg.CardIndices {
		if int(idx) >= state.BoardSize {
			return fmt.Errorf("%w: board slot %d out of range", ErrInvalidCard, idx)
		}
		if h.Community[idx] != state.NoCard {
			return fmt.Errorf("%w: board slot %d already revealed", ErrInvalidCard, idx)
		}
		v := msg.CardValues[i]
		if v >= state.DeckSize {
			return fmt.Errorf("%w: card value %d", ErrInvalidCard, v)
		}
		for j := 0; j < state.BoardSize; j++ {
			if h.Community[j] == v {
				return fmt.Errorf("%w: card %d already on board", ErrInvalidCard, v)
			}
		}
		for j := 0; j < i; j++ {
			if msg.CardValues[j] == v {
				return fmt.Errorf("%w: duplicate card %d in reveal", ErrInvalidCard, v)
			}
		}
	}

	payload := attest.RevealPayload(t.ID, h.HandID, msg.CardIndices, msg.CardValues)
	st := attest.Statement{Domain: attest.DomainReveal, Commitment: h.DeckCommitment, Payload: payload}
	if err := verify(st, msg.Proof); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidProof, err.Error())
	}

	for i, idx := range msg.CardIndices {
		h.Community[idx] = msg.CardValues[i]
	}
	h.DeckCursor += uint8(len(msg.CardIndices))
	h.Pending = nil

	if h.PlayersToAct == 0 {
		// Everyone all-in: no betting this street.
		h.CurrentTurn = -1
		return nil
	}
	setTurn(t, h, firstToActPostflop(t, h), now)
	return nil
}

// applyShowdownResult validates and settles the collaborator's evaluation.
// A proof failure is returned as ErrInvalidProof; the caller halts the hand.
func applyShowdownResult(st *state.State, t *state.Table, h *state.Hand, verify func(attest.Statement, []byte) error, msg codec.MPCShowdownResultTx, now int64) (*state.HandResult, error) {
	if err := matchPending(h, state.RequestEvaluate, msg.Seq); err != nil {
		return nil, err
	}
	if h.Phase != state.PhaseShowdown {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPhase, h.Phase)
	}
	if len(msg.ProofHash) > 0 {
		sum := sha256.Sum256(msg.Proof)
		if !bytes.Equal(msg.ProofHash, sum[:]) {
			return nil, fmt.Errorf("%w: proofHash does not match proof", ErrInvalidProof)
		}
	}

	payload := attest.ResultPayload(t.ID, h.HandID, msg.Winners, msg.Payouts, msg.Category)
	stmt := attest.Statement{Domain: attest.DomainResult, Commitment: h.DeckCommitment, Payload: payload}
	if err := verify(stmt, msg.Proof); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidProof, err.Error())
	}

	return settleShowdown(st, t, h, showdownInput{
		Winners:   msg.Winners,
		Payouts:   msg.Payouts,
		Category:  msg.Category,
		Proof:     msg.Proof,
		ProofHash: msg.ProofHash,
	}, now)
}
