package app

import (
	"fmt"

	"encryptedpoker/internal/state"
)

// actionOutcome describes an applied betting action for event/archive
// emission.
type actionOutcome struct {
	Seat   int
	Action string // normalized: fold|check|call|raise|allin
	Moved  uint64 // chips moved into the pot by this action
	Forced bool   // applied by the timeout path
}

func bettingOpen(h *state.Hand) bool {
	switch h.Phase {
	case state.PhasePreFlop, state.PhaseFlop, state.PhaseTurn, state.PhaseRiver:
		return true
	}
	return false
}

// setTurn hands the action to a seat and arms its clock. The deadline covers
// the base think time plus whatever time bank the seat has left.
func setTurn(t *state.Table, h *state.Hand, seat int, now int64) {
	h.CurrentTurn = seat
	h.LastActionAt = now
	h.ActionDeadline = 0
	if seat >= 0 && t.Params.ActionTimeoutSecs > 0 {
		base, err := addInt64AndU64Checked(now, t.Params.ActionTimeoutSecs, "action deadline")
		if err != nil {
			return
		}
		h.ActionDeadline = base + h.TimeBank[seat]
	}
}

func decPlayersToAct(h *state.Hand) {
	if h.PlayersToAct > 0 {
		h.PlayersToAct--
	}
}

// chargeTimeBank draws down the seat's reserve for time spent beyond the base
// think time, and rejects actions arriving after the reserve ran out.
func chargeTimeBank(t *state.Table, h *state.Hand, seat int, now int64) error {
	base := t.Params.ActionTimeoutSecs
	if base == 0 || h.LastActionAt == 0 {
		return nil
	}
	if h.ActionDeadline > 0 && now >= h.ActionDeadline {
		return fmt.Errorf("%w: deadline %d now %d", ErrTimeExpired, h.ActionDeadline, now)
	}
	elapsed := now - h.LastActionAt
	over := elapsed - int64(base)
	if over <= 0 {
		return nil
	}
	if over >= h.TimeBank[seat] {
		h.TimeBank[seat] = 0
	} else {
		h.TimeBank[seat] -= over
	}
	return nil
}

// applyAction runs one betting action for the seat currently holding the
// turn. On any error the table is untouched (the caller stages state per tx).
func applyAction(t *state.Table, h *state.Hand, player string, action string, amount uint64, now int64) (actionOutcome, error) {
	var out actionOutcome
	if h == nil {
		return out, fmt.Errorf("no active hand")
	}
	if h.Halted {
		return out, ErrHandHalted
	}
	if h.Pending != nil {
		return out, fmt.Errorf("%w: %s", ErrAwaitingCallback, h.Pending.Kind)
	}
	if !bettingOpen(h) {
		return out, fmt.Errorf("%w: %s", ErrInvalidPhase, h.Phase)
	}
	seat := h.CurrentTurn
	if seat < 0 || seat >= state.MaxSeats || t.Seats[seat] == nil {
		return out, fmt.Errorf("%w: no acting seat", ErrNotYourTurn)
	}
	if t.Seats[seat].Player != player {
		return out, fmt.Errorf("%w: acting seat is %d (%s)", ErrNotYourTurn, seat, t.Seats[seat].Player)
	}
	if !canAct(t, h, seat) {
		return out, fmt.Errorf("%w: seat %d cannot act", ErrInvalidSeat, seat)
	}
	if err := chargeTimeBank(t, h, seat, now); err != nil {
		return out, err
	}

	out, err := applySeatAction(t, h, seat, action, amount)
	if err != nil {
		return out, err
	}
	h.HasActed[seat] = true

	if roundClosed(h) {
		h.CurrentTurn = -1
		h.ActionDeadline = 0
		h.LastActionAt = now
	} else {
		setTurn(t, h, nextToAct(t, h, seat), now)
	}
	return out, nil
}

// applySeatAction mutates bets/counters for one normalized action. Counter
// discipline: check/call advance PlayersActed; a full raise restarts the
// count at 1 (the raiser); fold and any all-in remove the seat from the
// to-act set instead.
func applySeatAction(t *state.Table, h *state.Hand, seat int, action string, amount uint64) (actionOutcome, error) {
	out := actionOutcome{Seat: seat, Action: action}
	stack := t.Seats[seat].Stack
	need := toCall(h, seat)

	switch action {
	case "fold":
		h.Folded[seat] = true
		decPlayersToAct(h)
		return out, nil

	case "check":
		if need > 0 {
			return out, fmt.Errorf("%w: %d to call", ErrMustCallOrFold, need)
		}
		h.PlayersActed++
		return out, nil

	case "call":
		if need == 0 {
			h.PlayersActed++
			return out, nil
		}
		if need >= stack {
			// Short call for the whole stack.
			moved, err := contribute(t, h, seat, stack, true)
			if err != nil {
				return out, err
			}
			out.Action = "allin"
			out.Moved = moved
			decPlayersToAct(h)
			return out, nil
		}
		moved, err := contribute(t, h, seat, need, false)
		if err != nil {
			return out, err
		}
		out.Moved = moved
		h.PlayersActed++
		return out, nil

	case "raise":
		if amount == 0 {
			return out, fmt.Errorf("%w: raise amount must be > 0", ErrInvalidAction)
		}
		cost, err := addUint64Checked(need, amount, "raise cost")
		if err != nil {
			return out, err
		}
		if cost > stack {
			return out, fmt.Errorf("%w: have %d need %d", ErrInsufficientChips, stack, cost)
		}
		if cost == stack {
			return applySeatAction(t, h, seat, "allin", 0)
		}
		if amount < h.MinRaise {
			return out, fmt.Errorf("%w: raise %d min %d", ErrRaiseTooSmall, amount, h.MinRaise)
		}
		moved, err := contribute(t, h, seat, cost, false)
		if err != nil {
			return out, err
		}
		out.Moved = moved
		h.CurrentBet = h.StreetBet[seat]
		h.MinRaise = amount
		h.PlayersActed = 1
		return out, nil

	case "allin":
		if stack == 0 {
			return out, fmt.Errorf("%w: empty stack", ErrInsufficientChips)
		}
		moved, err := contribute(t, h, seat, stack, true)
		if err != nil {
			return out, err
		}
		out.Action = "allin"
		out.Moved = moved
		newStreet := h.StreetBet[seat]
		if newStreet > h.CurrentBet {
			increment := newStreet - h.CurrentBet
			h.CurrentBet = newStreet
			if increment >= h.MinRaise {
				// Full raise: everyone still able to act owes a response.
				h.MinRaise = increment
				h.PlayersActed = 0
			}
			// Under-raise all-ins do not reopen action.
		}
		decPlayersToAct(h)
		return out, nil

	default:
		return out, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

// applyTimeout force-applies the default action for the seat whose deadline
// passed: check when checking is free, fold otherwise. Its time bank is gone
// either way.
func applyTimeout(t *state.Table, h *state.Hand, now int64) (actionOutcome, error) {
	var out actionOutcome
	if h == nil || h.Halted || h.Pending != nil || !bettingOpen(h) {
		return out, fmt.Errorf("%w: nothing to time out", ErrInvalidPhase)
	}
	seat := h.CurrentTurn
	if seat < 0 || h.ActionDeadline == 0 || now < h.ActionDeadline {
		return out, fmt.Errorf("deadline not reached")
	}
	h.TimeBank[seat] = 0

	action := "fold"
	if toCall(h, seat) == 0 {
		action = "check"
	}
	out, err := applySeatAction(t, h, seat, action, 0)
	if err != nil {
		return out, err
	}
	out.Forced = true
	h.HasActed[seat] = true

	if roundClosed(h) {
		h.CurrentTurn = -1
		h.ActionDeadline = 0
		h.LastActionAt = now
	} else {
		setTurn(t, h, nextToAct(t, h, seat), now)
	}
	return out, nil
}
