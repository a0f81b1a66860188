package app

import (
	"fmt"

	"encryptedpoker/internal/state"
)

// startHand opens the next hand: advances the button, posts blinds and
// issues the shuffle request. No seat holds the turn until the collaborator
// has committed a deck and dealt hole cards.
func startHand(t *state.Table, now int64) (*state.Hand, error) {
	if t.Hand != nil && t.Hand.Phase != state.PhaseComplete {
		return nil, fmt.Errorf("%w: hand already in progress", ErrInvalidPhase)
	}

	activeSeats := occupiedSeatsWithStack(t)
	min := int(t.Params.MinPlayers)
	if min < 2 {
		min = 2
	}
	if len(activeSeats) < min {
		return nil, fmt.Errorf("need at least %d players with chips", min)
	}

	// Advance button to the next funded seat (or first if unset).
	if t.ButtonSeat < 0 {
		t.ButtonSeat = activeSeats[0]
	} else {
		t.ButtonSeat = nextFundedSeat(t, t.ButtonSeat)
	}

	h := state.NewHand(t.NextHandID, t.Params.TimeBankSecs)
	t.NextHandID++
	h.ButtonSeat = t.ButtonSeat
	for _, i := range activeSeats {
		h.InHand[i] = true
	}

	// Heads-up the button posts the small blind.
	if len(activeSeats) == 2 {
		h.SmallBlindSeat = t.ButtonSeat
	} else {
		h.SmallBlindSeat = nextToAct(t, h, t.ButtonSeat)
	}
	h.BigBlindSeat = nextToAct(t, h, h.SmallBlindSeat)
	if h.SmallBlindSeat < 0 || h.BigBlindSeat < 0 || h.SmallBlindSeat == h.BigBlindSeat {
		return nil, fmt.Errorf("cannot determine blind seats")
	}

	// Short stacks post all-in.
	if _, err := contribute(t, h, h.SmallBlindSeat, t.Params.SmallBlind, true); err != nil {
		return nil, fmt.Errorf("small blind: %w", err)
	}
	if _, err := contribute(t, h, h.BigBlindSeat, t.Params.BigBlind, true); err != nil {
		return nil, fmt.Errorf("big blind: %w", err)
	}
	h.CurrentBet = h.StreetBet[h.SmallBlindSeat]
	if h.StreetBet[h.BigBlindSeat] > h.CurrentBet {
		h.CurrentBet = h.StreetBet[h.BigBlindSeat]
	}
	h.MinRaise = t.Params.BigBlind
	h.PlayersActed = 0
	h.PlayersToAct = countCanAct(t, h)
	h.CurrentTurn = -1
	h.LastActionAt = now

	h.Pending = &state.PendingRequest{
		Kind:     state.RequestShuffle,
		Seq:      h.NextSeq,
		IssuedAt: now,
	}
	h.NextSeq++

	t.Hand = h
	return h, nil
}

// revealSlots maps the street transition to the fixed board slots it opens.
func revealSlots(from state.HandPhase) (state.HandPhase, []uint8, error) {
	switch from {
	case state.PhasePreFlop:
		return state.PhaseFlop, []uint8{0, 1, 2}, nil
	case state.PhaseFlop:
		return state.PhaseTurn, []uint8{3}, nil
	case state.PhaseTurn:
		return state.PhaseRiver, []uint8{4}, nil
	default:
		return "", nil, fmt.Errorf("%w: cannot advance from %s", ErrInvalidPhase, from)
	}
}

// advancePhase closes the current street and issues the community-card
// reveal for the next one. Betting resumes only after the reveal callback.
func advancePhase(t *state.Table, h *state.Hand, now int64) (*state.PendingRequest, error) {
	if h == nil {
		return nil, fmt.Errorf("no active hand")
	}
	if h.Halted {
		return nil, ErrHandHalted
	}
	if h.Pending != nil {
		return nil, fmt.Errorf("%w: %s", ErrAwaitingCallback, h.Pending.Kind)
	}
	if h.DeckCommitment == nil {
		return nil, fmt.Errorf("%w: hole cards not dealt", ErrInvalidPhase)
	}
	next, slots, err := revealSlots(h.Phase)
	if err != nil {
		return nil, err
	}
	if !roundClosed(h) {
		return nil, fmt.Errorf("%w: %d/%d acted", ErrBettingNotComplete, h.PlayersActed, h.PlayersToAct)
	}

	h.Phase = next
	resetBettingRound(t, h)
	h.Pending = &state.PendingRequest{
		Kind:     state.RequestRevealCommunity,
		Seq:      h.NextSeq,
		IssuedAt: now,
		Slots:    slots,
	}
	h.NextSeq++
	return h.Pending, nil
}

// triggerShowdown closes river betting, freezes the pot structure and asks
// the collaborator to evaluate the hidden hands.
func triggerShowdown(t *state.Table, h *state.Hand, now int64) (*state.PendingRequest, error) {
	if h == nil {
		return nil, fmt.Errorf("no active hand")
	}
	if h.Halted {
		return nil, ErrHandHalted
	}
	if h.Pending != nil {
		return nil, fmt.Errorf("%w: %s", ErrAwaitingCallback, h.Pending.Kind)
	}
	if h.Phase != state.PhaseRiver {
		return nil, fmt.Errorf("%w: showdown requires river, have %s", ErrInvalidPhase, h.Phase)
	}
	if !roundClosed(h) {
		return nil, fmt.Errorf("%w: %d/%d acted", ErrBettingNotComplete, h.PlayersActed, h.PlayersToAct)
	}

	var eligible [state.MaxSeats]bool
	for i := 0; i < state.MaxSeats; i++ {
		eligible[i] = h.InHand[i] && !h.Folded[i]
	}
	pots, err := computeSidePots(h.TotalContributed, eligible)
	if err != nil {
		return nil, err
	}
	h.Pots = pots

	h.Phase = state.PhaseShowdown
	h.CurrentTurn = -1
	h.ActionDeadline = 0
	h.Pending = &state.PendingRequest{
		Kind:     state.RequestEvaluate,
		Seq:      h.NextSeq,
		IssuedAt: now,
	}
	h.NextSeq++
	return h.Pending, nil
}
