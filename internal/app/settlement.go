package app

import (
	"fmt"

	"encryptedpoker/internal/state"
)

// showdownInput is the collaborator-reported outcome, pre-validated at the
// codec layer and cross-checked here against the chain's own pot ledger.
type showdownInput struct {
	Winners   []int
	Payouts   []uint64
	Category  uint8
	Proof     []byte
	ProofHash []byte
}

// finalizeHand records the immutable result and closes the hand. Stacks are
// the durable bankroll; the hand object stays on the table (phase Complete)
// until the next start.
func finalizeHand(st *state.State, t *state.Table, h *state.Hand, res *state.HandResult) {
	h.Result = res
	h.Phase = state.PhaseComplete
	h.Halted = false
	h.Pending = nil
	h.CurrentTurn = -1
	h.ActionDeadline = 0
	st.Results[state.ResultKey(t.ID, h.HandID)] = res
}

// completeByFolds settles a hand that collapsed to a single unfolded seat.
// No cards are revealed and the collaborator is not involved: the last seat
// standing takes the whole pot.
func completeByFolds(st *state.State, t *state.Table, h *state.Hand, now int64) (*state.HandResult, error) {
	live := unfoldedSeats(h)
	if len(live) != 1 {
		return nil, fmt.Errorf("fold-win requires exactly one live seat, have %d", len(live))
	}
	winner := live[0]
	s := t.Seats[winner]
	if s == nil {
		return nil, fmt.Errorf("%w: winner seat %d empty", ErrInvalidSeat, winner)
	}
	newStack, err := addUint64Checked(s.Stack, h.Pot, "winner stack")
	if err != nil {
		return nil, err
	}
	s.Stack = newStack

	res := &state.HandResult{
		TableID:      t.ID,
		HandNumber:   h.HandID,
		Winners:      []int{winner},
		Payouts:      []uint64{h.Pot},
		Community:    h.Community,
		Participants: inHandSeats(h),
		Timestamp:    now,
		Reason:       "all-folded",
	}
	finalizeHand(st, t, h, res)
	return res, nil
}

// settleShowdown applies a verified evaluation result. The collaborator
// knows the cards; the chain knows the money. Every payout is checked
// against the side-pot ceilings before a single chip moves.
func settleShowdown(st *state.State, t *state.Table, h *state.Hand, in showdownInput, now int64) (*state.HandResult, error) {
	if len(in.Winners) == 0 {
		return nil, fmt.Errorf("empty winner set")
	}
	if len(in.Winners) != len(in.Payouts) {
		return nil, fmt.Errorf("winners/payouts length mismatch: %d vs %d", len(in.Winners), len(in.Payouts))
	}

	seen := map[int]bool{}
	for _, w := range in.Winners {
		if w < 0 || w >= state.MaxSeats || t.Seats[w] == nil {
			return nil, fmt.Errorf("%w: winner %d", ErrInvalidSeat, w)
		}
		if !h.InHand[w] || h.Folded[w] {
			return nil, fmt.Errorf("%w: winner %d not live at showdown", ErrInvalidSeat, w)
		}
		if seen[w] {
			return nil, fmt.Errorf("duplicate winner %d", w)
		}
		seen[w] = true
	}

	var total uint64
	for _, p := range in.Payouts {
		next, err := addUint64Checked(total, p, "payout total")
		if err != nil {
			return nil, err
		}
		total = next
	}
	if total != h.Pot {
		return nil, fmt.Errorf("payouts %d do not match pot %d", total, h.Pot)
	}

	// Per-winner ceiling: a seat can never win more than the pots it is
	// eligible for (short all-ins cap at their layer).
	pots := h.Pots
	if len(pots) == 0 {
		var eligible [state.MaxSeats]bool
		for i := 0; i < state.MaxSeats; i++ {
			eligible[i] = h.InHand[i] && !h.Folded[i]
		}
		computed, err := computeSidePots(h.TotalContributed, eligible)
		if err != nil {
			return nil, err
		}
		pots = computed
	}
	for i, w := range in.Winners {
		var ceiling uint64
		for _, p := range pots {
			for _, e := range p.EligibleSeats {
				if e == w {
					c, err := addUint64Checked(ceiling, p.Amount, "payout ceiling")
					if err != nil {
						return nil, err
					}
					ceiling = c
					break
				}
			}
		}
		if in.Payouts[i] > ceiling {
			return nil, fmt.Errorf("payout %d to seat %d exceeds eligibility ceiling %d", in.Payouts[i], w, ceiling)
		}
	}

	for i, w := range in.Winners {
		s := t.Seats[w]
		newStack, err := addUint64Checked(s.Stack, in.Payouts[i], "winner stack")
		if err != nil {
			return nil, err
		}
		s.Stack = newStack
	}

	res := &state.HandResult{
		TableID:      t.ID,
		HandNumber:   h.HandID,
		Winners:      append([]int(nil), in.Winners...),
		Payouts:      append([]uint64(nil), in.Payouts...),
		Category:     in.Category,
		Community:    h.Community,
		Participants: inHandSeats(h),
		Proof:        in.Proof,
		ProofHash:    in.ProofHash,
		Timestamp:    now,
		Reason:       "showdown",
	}
	finalizeHand(st, t, h, res)
	return res, nil
}

// abortHand unwinds a stuck or halted hand: every contribution goes back to
// its stack and the hand is archived as aborted. This is the only exit from
// a halted hand.
func abortHand(st *state.State, t *state.Table, h *state.Hand, now int64) (*state.HandResult, error) {
	if h == nil {
		return nil, fmt.Errorf("no active hand")
	}
	if h.Phase == state.PhaseComplete {
		return nil, fmt.Errorf("%w: hand already complete", ErrInvalidPhase)
	}
	for i := 0; i < state.MaxSeats; i++ {
		amt := h.TotalContributed[i]
		if amt == 0 {
			continue
		}
		s := t.Seats[i]
		if s == nil {
			return nil, fmt.Errorf("%w: contributed seat %d empty", ErrInvalidSeat, i)
		}
		newStack, err := addUint64Checked(s.Stack, amt, "refund stack")
		if err != nil {
			return nil, err
		}
		s.Stack = newStack
	}
	h.Pot = 0

	res := &state.HandResult{
		TableID:      t.ID,
		HandNumber:   h.HandID,
		Community:    h.Community,
		Participants: inHandSeats(h),
		Timestamp:    now,
		Reason:       "aborted",
	}
	finalizeHand(st, t, h, res)
	return res, nil
}

func inHandSeats(h *state.Hand) []int {
	out := []int{}
	for i := 0; i < state.MaxSeats; i++ {
		if h.InHand[i] {
			out = append(out, i)
		}
	}
	return out
}
