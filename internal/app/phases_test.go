package app

import (
	"errors"
	"testing"

	"encryptedpoker/internal/state"
)

func TestRevealSlots_FixedPerStreet(t *testing.T) {
	cases := []struct {
		from  state.HandPhase
		want  state.HandPhase
		slots []uint8
	}{
		{state.PhasePreFlop, state.PhaseFlop, []uint8{0, 1, 2}},
		{state.PhaseFlop, state.PhaseTurn, []uint8{3}},
		{state.PhaseTurn, state.PhaseRiver, []uint8{4}},
	}
	for _, tc := range cases {
		next, slots, err := revealSlots(tc.from)
		if err != nil {
			t.Fatalf("%s: %v", tc.from, err)
		}
		if next != tc.want || len(slots) != len(tc.slots) {
			t.Fatalf("%s: got %s %v", tc.from, next, slots)
		}
		for i := range slots {
			if slots[i] != tc.slots[i] {
				t.Fatalf("%s: got slots %v", tc.from, slots)
			}
		}
	}
	for _, from := range []state.HandPhase{state.PhaseRiver, state.PhaseShowdown, state.PhaseComplete} {
		if _, _, err := revealSlots(from); err == nil {
			t.Fatalf("advance from %s must fail", from)
		}
	}
}

func TestMatchPending_KindAndSeq(t *testing.T) {
	h := state.NewHand(1, 0)
	h.Pending = &state.PendingRequest{Kind: state.RequestShuffle, Seq: 3}

	if err := matchPending(h, state.RequestShuffle, 3); err != nil {
		t.Fatalf("exact match: %v", err)
	}
	if err := matchPending(h, state.RequestDealHole, 3); !errors.Is(err, ErrUnexpectedCallback) {
		t.Fatalf("kind mismatch: %v", err)
	}
	if err := matchPending(h, state.RequestShuffle, 2); !errors.Is(err, ErrUnexpectedCallback) {
		t.Fatalf("stale seq: %v", err)
	}
	h.Pending = nil
	if err := matchPending(h, state.RequestShuffle, 3); !errors.Is(err, ErrUnexpectedCallback) {
		t.Fatalf("none outstanding: %v", err)
	}
	h.Halted = true
	if err := matchPending(h, state.RequestShuffle, 3); !errors.Is(err, ErrHandHalted) {
		t.Fatalf("halted hand: %v", err)
	}
}

func TestAdvancePhase_RequiresClosedRound(t *testing.T) {
	const height = int64(2)
	fx := setupThreeHandedTable(t)
	fx.startHand(t, height, 0)

	mustOk(t, fx.act(t, "alice", "call", 0, height, 0))
	mustFail(t, fx.a.deliverTx(txBytesSigned(t, fx.a, "poker/advance_phase", map[string]any{
		"caller": "alice", "tableId": fx.tableID,
	}, "alice"), height, 0), "betting round not complete")
	if fx.table().Hand.Phase != state.PhasePreFlop {
		t.Fatalf("phase moved: %s", fx.table().Hand.Phase)
	}
}

func TestTriggerShowdown_OnlyFromRiver(t *testing.T) {
	const height = int64(2)
	fx := setupThreeHandedTable(t)
	fx.startHand(t, height, 0)

	mustOk(t, fx.act(t, "alice", "call", 0, height, 0))
	mustOk(t, fx.act(t, "bob", "call", 0, height, 0))
	mustOk(t, fx.act(t, "carol", "check", 0, height, 0))
	fx.advance(t, height, 0) // flop

	for _, p := range []string{"bob", "carol", "alice"} {
		mustOk(t, fx.act(t, p, "check", 0, height, 0))
	}
	mustFail(t, fx.a.deliverTx(txBytesSigned(t, fx.a, "poker/trigger_showdown", map[string]any{
		"caller": "alice", "tableId": fx.tableID,
	}, "alice"), height, 0), "showdown requires river")
}

func TestStartHand_RejectedWhileHandLive(t *testing.T) {
	const height = int64(2)
	fx := setupThreeHandedTable(t)
	fx.startHand(t, height, 0)

	mustFail(t, fx.a.deliverTx(txBytesSigned(t, fx.a, "poker/start_hand", map[string]any{
		"caller": "alice", "tableId": fx.tableID,
	}, "alice"), height, 0), "already in progress")
}

func TestStartHand_ButtonSkipsBustedSeat(t *testing.T) {
	tbl := &state.Table{
		ID: 1,
		Params: state.TableParams{
			MinPlayers: 2, MaxPlayers: 6,
			SmallBlind: 10, BigBlind: 20,
			MinBuyIn: 100, MaxBuyIn: 10_000,
		},
		ButtonSeat: 2,
		NextHandID: 1,
	}
	tbl.Seats[0] = &state.Seat{Player: "p0", Stack: 0}
	tbl.Seats[1] = &state.Seat{Player: "p1", Stack: 2000}
	tbl.Seats[2] = &state.Seat{Player: "p2", Stack: 2000}

	h, err := startHand(tbl, 0)
	if err != nil {
		t.Fatalf("startHand: %v", err)
	}
	if tbl.ButtonSeat != 1 {
		t.Fatalf("button landed on %d, want 1", tbl.ButtonSeat)
	}
	// Heads-up: the button posts the small blind, the other live seat the big.
	if h.SmallBlindSeat != 1 || h.BigBlindSeat != 2 {
		t.Fatalf("blinds: sb=%d bb=%d", h.SmallBlindSeat, h.BigBlindSeat)
	}
	if h.InHand[0] || h.AllIn[0] {
		t.Fatalf("busted seat dragged into the hand: inHand=%t allIn=%t", h.InHand[0], h.AllIn[0])
	}
	if h.Pot != 30 || h.StreetBet[1] != 10 || h.StreetBet[2] != 20 || h.CurrentBet != 20 {
		t.Fatalf("blind posting: pot=%d sb=%d bb=%d bet=%d",
			h.Pot, h.StreetBet[1], h.StreetBet[2], h.CurrentBet)
	}
}

func TestJoinAndLeave_BlockedMidHand(t *testing.T) {
	const height = int64(2)
	fx := setupThreeHandedTable(t)
	mintTestTokens(t, fx.a, height, "dave", 5000)
	registerTestAccount(t, fx.a, height, "dave")
	fx.startHand(t, height, 0)

	mustFail(t, fx.a.deliverTx(txBytesSigned(t, fx.a, "poker/join_table", map[string]any{
		"player": "dave", "tableId": fx.tableID, "seat": 4, "buyIn": 1000,
	}, "dave"), height, 0), "cannot join during a hand")
	mustFail(t, fx.a.deliverTx(txBytesSigned(t, fx.a, "poker/leave_table", map[string]any{
		"player": "carol", "tableId": fx.tableID,
	}, "carol"), height, 0), "cannot leave during a hand")
}
