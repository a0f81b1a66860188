package app

import (
	"fmt"

	"encryptedpoker/internal/state"
)

// contribute moves chips from a seat's stack into the pot in one step, so the
// stack decrement and the pot/commitment increments can never diverge.
// Returns the amount actually moved (clamped to the stack when allowShort).
func contribute(t *state.Table, h *state.Hand, seat int, amount uint64, allowShort bool) (uint64, error) {
	s := t.Seats[seat]
	if s == nil {
		return 0, fmt.Errorf("%w: seat %d empty", ErrInvalidSeat, seat)
	}
	if amount > s.Stack {
		if !allowShort {
			return 0, fmt.Errorf("%w: have %d need %d", ErrInsufficientChips, s.Stack, amount)
		}
		amount = s.Stack
	}
	newStreet, err := addUint64Checked(h.StreetBet[seat], amount, "street bet")
	if err != nil {
		return 0, err
	}
	newTotal, err := addUint64Checked(h.TotalContributed[seat], amount, "total contributed")
	if err != nil {
		return 0, err
	}
	newPot, err := addUint64Checked(h.Pot, amount, "pot")
	if err != nil {
		return 0, err
	}
	s.Stack -= amount
	h.StreetBet[seat] = newStreet
	h.TotalContributed[seat] = newTotal
	h.Pot = newPot
	if s.Stack == 0 {
		h.AllIn[seat] = true
	}
	return amount, nil
}

func toCall(h *state.Hand, seat int) uint64 {
	if h.CurrentBet <= h.StreetBet[seat] {
		return 0
	}
	return h.CurrentBet - h.StreetBet[seat]
}

func sameSeats(a []int, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// computeSidePots layers the per-seat total contributions into main/side pots
// by repeatedly peeling the smallest remaining commitment. Adjacent tiers
// with identical eligibility merge. Σ pot amounts == Σ totalCommit, always.
func computeSidePots(totalCommit [state.MaxSeats]uint64, eligibleForWin [state.MaxSeats]bool) ([]state.Pot, error) {
	type rem struct {
		seat     int
		amount   uint64
		eligible bool
	}
	remaining := make([]rem, 0, state.MaxSeats)
	for i := 0; i < state.MaxSeats; i++ {
		amt := totalCommit[i]
		if amt == 0 {
			continue
		}
		remaining = append(remaining, rem{seat: i, amount: amt, eligible: eligibleForWin[i]})
	}

	potsByTier := []state.Pot{}
	for len(remaining) > 0 {
		min := remaining[0].amount
		for i := 1; i < len(remaining); i++ {
			if remaining[i].amount < min {
				min = remaining[i].amount
			}
		}

		potAmount, err := mulUint64Checked(min, uint64(len(remaining)), "pot amount")
		if err != nil {
			return nil, err
		}
		eligibleSeats := make([]int, 0, len(remaining))
		for _, r := range remaining {
			if r.eligible {
				eligibleSeats = append(eligibleSeats, r.seat)
			}
		}
		potsByTier = append(potsByTier, state.Pot{Amount: potAmount, EligibleSeats: eligibleSeats})

		next := remaining[:0]
		for _, r := range remaining {
			r.amount -= min
			if r.amount > 0 {
				next = append(next, r)
			}
		}
		remaining = next
	}

	merged := []state.Pot{}
	for _, p := range potsByTier {
		if len(merged) > 0 && sameSeats(merged[len(merged)-1].EligibleSeats, p.EligibleSeats) {
			nextAmt, err := addUint64Checked(merged[len(merged)-1].Amount, p.Amount, "merged pot amount")
			if err != nil {
				return nil, err
			}
			merged[len(merged)-1].Amount = nextAmt
			continue
		}
		eligibleCopy := append([]int(nil), p.EligibleSeats...)
		merged = append(merged, state.Pot{Amount: p.Amount, EligibleSeats: eligibleCopy})
	}
	return merged, nil
}
