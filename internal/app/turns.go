package app

import "encryptedpoker/internal/state"

func occupiedSeatsWithStack(t *state.Table) []int {
	out := []int{}
	for i := 0; i < state.MaxSeats; i++ {
		if t.Seats[i] != nil && t.Seats[i].Stack > 0 {
			out = append(out, i)
		}
	}
	return out
}

// nextFundedSeat walks clockwise to the next seat that can play a hand.
// Busted players stay seated but never hold the button.
func nextFundedSeat(t *state.Table, from int) int {
	for d := 1; d <= state.MaxSeats; d++ {
		i := (from + d) % state.MaxSeats
		if t.Seats[i] != nil && t.Seats[i].Stack > 0 {
			return i
		}
	}
	return -1
}

// canAct reports whether a seat still owes decisions this hand.
func canAct(t *state.Table, h *state.Hand, seat int) bool {
	return seat >= 0 && seat < state.MaxSeats &&
		t.Seats[seat] != nil &&
		h.InHand[seat] && !h.Folded[seat] && !h.AllIn[seat]
}

func countCanAct(t *state.Table, h *state.Hand) uint8 {
	var n uint8
	for i := 0; i < state.MaxSeats; i++ {
		if canAct(t, h, i) {
			n++
		}
	}
	return n
}

func unfoldedSeats(h *state.Hand) []int {
	out := []int{}
	for i := 0; i < state.MaxSeats; i++ {
		if h.InHand[i] && !h.Folded[i] {
			out = append(out, i)
		}
	}
	return out
}

// nextToAct walks clockwise from `from`, skipping folded, all-in and empty
// seats. Returns -1 when nobody can act.
func nextToAct(t *state.Table, h *state.Hand, from int) int {
	for d := 1; d <= state.MaxSeats; d++ {
		i := (from + d) % state.MaxSeats
		if canAct(t, h, i) {
			return i
		}
	}
	return -1
}

func roundClosed(h *state.Hand) bool {
	return h.PlayersActed >= h.PlayersToAct
}

// resetBettingRound prepares a fresh street: zeroed street bets, no acted
// flags, and PlayersToAct recomputed from the seats that can actually act
// right now. Counting from live seats (instead of carrying a stale counter)
// keeps the round-closure test correct after folds and all-ins.
func resetBettingRound(t *state.Table, h *state.Hand) {
	for i := 0; i < state.MaxSeats; i++ {
		h.StreetBet[i] = 0
		h.HasActed[i] = false
	}
	h.CurrentBet = 0
	h.MinRaise = t.Params.BigBlind
	h.PlayersActed = 0
	h.PlayersToAct = countCanAct(t, h)
	h.CurrentTurn = -1
	h.ActionDeadline = 0
}

// firstToActPreflop is the seat after the big blind; heads-up that wraps to
// the small blind (the button).
func firstToActPreflop(t *state.Table, h *state.Hand) int {
	return nextToAct(t, h, h.BigBlindSeat)
}

// firstToActPostflop is the first live seat left of the button.
func firstToActPostflop(t *state.Table, h *state.Hand) int {
	return nextToAct(t, h, h.ButtonSeat)
}
