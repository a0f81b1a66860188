package app

import (
	"testing"

	"encryptedpoker/internal/state"
)

func TestComputeSidePots_ShortAllInLayers(t *testing.T) {
	var contrib [state.MaxSeats]uint64
	var eligible [state.MaxSeats]bool
	contrib[0], contrib[1], contrib[2] = 100, 100, 50
	eligible[0], eligible[1], eligible[2] = true, true, true

	pots, err := computeSidePots(contrib, eligible)
	if err != nil {
		t.Fatalf("computeSidePots: %v", err)
	}
	if len(pots) != 2 {
		t.Fatalf("expected main + side pot, got %d: %+v", len(pots), pots)
	}
	if pots[0].Amount != 150 || !sameSeats(pots[0].EligibleSeats, []int{0, 1, 2}) {
		t.Fatalf("main pot: %+v", pots[0])
	}
	if pots[1].Amount != 100 || !sameSeats(pots[1].EligibleSeats, []int{0, 1}) {
		t.Fatalf("side pot: %+v", pots[1])
	}
}

func TestComputeSidePots_UncalledTopTierStaysWithBettor(t *testing.T) {
	var contrib [state.MaxSeats]uint64
	var eligible [state.MaxSeats]bool
	contrib[0], contrib[1], contrib[2], contrib[3] = 100, 100, 50, 200
	eligible[0], eligible[1], eligible[2], eligible[3] = true, true, true, true

	pots, err := computeSidePots(contrib, eligible)
	if err != nil {
		t.Fatalf("computeSidePots: %v", err)
	}
	if len(pots) != 3 {
		t.Fatalf("expected 3 pots, got %d: %+v", len(pots), pots)
	}
	if pots[0].Amount != 200 || !sameSeats(pots[0].EligibleSeats, []int{0, 1, 2, 3}) {
		t.Fatalf("main pot: %+v", pots[0])
	}
	if pots[1].Amount != 150 || !sameSeats(pots[1].EligibleSeats, []int{0, 1, 3}) {
		t.Fatalf("side pot: %+v", pots[1])
	}
	// The uncalled 100 above everyone else is a pot only seat 3 can win.
	if pots[2].Amount != 100 || !sameSeats(pots[2].EligibleSeats, []int{3}) {
		t.Fatalf("uncalled tier: %+v", pots[2])
	}
}

func TestComputeSidePots_FoldedChipsStayWithoutEligibility(t *testing.T) {
	var contrib [state.MaxSeats]uint64
	var eligible [state.MaxSeats]bool
	contrib[0], contrib[1], contrib[2] = 100, 100, 50
	eligible[0], eligible[1] = true, true // seat 2 folded after contributing

	pots, err := computeSidePots(contrib, eligible)
	if err != nil {
		t.Fatalf("computeSidePots: %v", err)
	}
	// Both layers share the same eligible set and merge into one pot.
	if len(pots) != 1 {
		t.Fatalf("expected merged pot, got %d: %+v", len(pots), pots)
	}
	if pots[0].Amount != 250 || !sameSeats(pots[0].EligibleSeats, []int{0, 1}) {
		t.Fatalf("pot: %+v", pots[0])
	}
}

func TestComputeSidePots_EqualStacksOnePot(t *testing.T) {
	var contrib [state.MaxSeats]uint64
	var eligible [state.MaxSeats]bool
	for i := 0; i < 4; i++ {
		contrib[i] = 75
		eligible[i] = true
	}
	pots, err := computeSidePots(contrib, eligible)
	if err != nil {
		t.Fatalf("computeSidePots: %v", err)
	}
	if len(pots) != 1 || pots[0].Amount != 300 {
		t.Fatalf("pots: %+v", pots)
	}
}

func TestComputeSidePots_Empty(t *testing.T) {
	var contrib [state.MaxSeats]uint64
	var eligible [state.MaxSeats]bool
	pots, err := computeSidePots(contrib, eligible)
	if err != nil {
		t.Fatalf("computeSidePots: %v", err)
	}
	if len(pots) != 0 {
		t.Fatalf("expected no pots: %+v", pots)
	}
}

// newShowdownHand builds a hand already at showdown with the given
// contributions, everyone live unless folded.
func newShowdownHand(contrib []uint64, folded ...int) (*state.State, *state.Table, *state.Hand) {
	st := state.NewState()
	tbl, h := newBetTable()
	h.Phase = state.PhaseShowdown
	for i, c := range contrib {
		tbl.Seats[i] = &state.Seat{Player: "p", Stack: 1000}
		h.InHand[i] = true
		h.TotalContributed[i] = c
		h.Pot += c
	}
	for _, f := range folded {
		h.Folded[f] = true
	}
	st.Tables[tbl.ID] = tbl
	return st, tbl, h
}

func TestSettleShowdown_PayoutMustMatchPot(t *testing.T) {
	st, tbl, h := newShowdownHand([]uint64{100, 100, 100})
	_, err := settleShowdown(st, tbl, h, showdownInput{
		Winners: []int{0}, Payouts: []uint64{299},
	}, 0)
	if err == nil {
		t.Fatalf("payout below pot accepted")
	}
	if tbl.Seats[0].Stack != 1000 {
		t.Fatalf("rejected settlement moved chips")
	}
}

func TestSettleShowdown_RejectsFoldedAndDuplicateWinners(t *testing.T) {
	st, tbl, h := newShowdownHand([]uint64{100, 100, 100}, 2)
	if _, err := settleShowdown(st, tbl, h, showdownInput{
		Winners: []int{2}, Payouts: []uint64{300},
	}, 0); err == nil {
		t.Fatalf("folded winner accepted")
	}
	if _, err := settleShowdown(st, tbl, h, showdownInput{
		Winners: []int{0, 0}, Payouts: []uint64{150, 150},
	}, 0); err == nil {
		t.Fatalf("duplicate winner accepted")
	}
}

func TestSettleShowdown_EnforcesEligibilityCeiling(t *testing.T) {
	// Seat 2 is all-in short: it may win at most the 60-chip main pot.
	st, tbl, h := newShowdownHand([]uint64{100, 100, 20})
	_, err := settleShowdown(st, tbl, h, showdownInput{
		Winners: []int{2}, Payouts: []uint64{220},
	}, 0)
	if err == nil {
		t.Fatalf("payout beyond eligibility ceiling accepted")
	}

	// Short winner takes the main pot; the side pot goes to a full stack.
	res, err := settleShowdown(st, tbl, h, showdownInput{
		Winners: []int{2, 0}, Payouts: []uint64{60, 160},
	}, 0)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if tbl.Seats[2].Stack != 1060 || tbl.Seats[0].Stack != 1160 {
		t.Fatalf("stacks: %d %d", tbl.Seats[2].Stack, tbl.Seats[0].Stack)
	}
	if res.Reason != "showdown" || h.Phase != state.PhaseComplete {
		t.Fatalf("result: %+v phase=%s", res, h.Phase)
	}
	if st.Results[state.ResultKey(tbl.ID, h.HandID)] == nil {
		t.Fatalf("result not indexed")
	}
}

func TestAbortHand_RefundsContributions(t *testing.T) {
	st, tbl, h := newShowdownHand([]uint64{40, 60, 20})
	res, err := abortHand(st, tbl, h, 7)
	if err != nil {
		t.Fatalf("abort: %v", err)
	}
	for i, want := range []uint64{1040, 1060, 1020} {
		if tbl.Seats[i].Stack != want {
			t.Fatalf("seat %d stack: %d", i, tbl.Seats[i].Stack)
		}
	}
	if h.Pot != 0 || res.Reason != "aborted" {
		t.Fatalf("pot=%d reason=%q", h.Pot, res.Reason)
	}
	if _, err := abortHand(st, tbl, h, 8); err == nil {
		t.Fatalf("double abort accepted")
	}
}

func TestContribute_ClampsOnlyWhenShortAllowed(t *testing.T) {
	tbl, h := newBetTable(30)
	if _, err := contribute(tbl, h, 0, 50, false); err == nil {
		t.Fatalf("over-stack contribution accepted")
	}
	moved, err := contribute(tbl, h, 0, 50, true)
	if err != nil {
		t.Fatalf("short contribution: %v", err)
	}
	if moved != 30 || tbl.Seats[0].Stack != 0 || !h.AllIn[0] {
		t.Fatalf("moved=%d stack=%d allin=%t", moved, tbl.Seats[0].Stack, h.AllIn[0])
	}
	if h.Pot != 30 || h.TotalContributed[0] != 30 || h.StreetBet[0] != 30 {
		t.Fatalf("ledger: pot=%d total=%d street=%d", h.Pot, h.TotalContributed[0], h.StreetBet[0])
	}
}
