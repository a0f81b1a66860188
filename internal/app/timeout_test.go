package app

import (
	"testing"

	"encryptedpoker/internal/state"
)

func setupTimedTable(t *testing.T) *fixture {
	t.Helper()
	// 30s base think time; the default 30s time bank applies on top.
	return setupThreeHandedTableWith(t, map[string]any{"actionTimeoutSecs": 30})
}

func TestTick_BeforeDeadlineRejected(t *testing.T) {
	const height = int64(2)
	fx := setupTimedTable(t)
	fx.startHand(t, height, 1000)

	h := fx.table().Hand
	if h.ActionDeadline != 1060 {
		t.Fatalf("deadline: base 30 + bank 30 from 1000, got %d", h.ActionDeadline)
	}
	mustFail(t, fx.a.deliverTx(txBytes(t, "poker/tick", map[string]any{
		"tableId": fx.tableID,
	}), height, 1050), "deadline not reached")
	if fx.table().Hand.Folded[0] {
		t.Fatalf("early tick folded the seat")
	}
}

func TestTick_ForcesFoldFacingBet(t *testing.T) {
	const height = int64(2)
	fx := setupTimedTable(t)
	fx.startHand(t, height, 1000)

	res := mustOk(t, fx.a.deliverTx(txBytes(t, "poker/tick", map[string]any{
		"tableId": fx.tableID,
	}), height, 1060))
	ev := findEvent(res.Events, "TurnTimedOut")
	if ev == nil || attr(ev, "action") != "fold" || attr(ev, "seat") != "0" {
		t.Fatalf("timeout event: %v", res.Events)
	}
	h := fx.table().Hand
	if !h.Folded[0] {
		t.Fatalf("seat 0 not folded")
	}
	if h.TimeBank[0] != 0 {
		t.Fatalf("time bank must be exhausted: %d", h.TimeBank[0])
	}
	if h.CurrentTurn != 1 {
		t.Fatalf("turn did not advance: %d", h.CurrentTurn)
	}
}

func TestTick_ForcesCheckWhenFree(t *testing.T) {
	const height = int64(2)
	fx := setupTimedTable(t)
	fx.startHand(t, height, 1000)

	mustOk(t, fx.act(t, "alice", "call", 0, height, 1001))
	mustOk(t, fx.act(t, "bob", "call", 0, height, 1002))

	// Carol (big blind) owes nothing; her deadline runs from bob's action.
	res := mustOk(t, fx.a.deliverTx(txBytes(t, "poker/tick", map[string]any{
		"tableId": fx.tableID,
	}), height, 1062))
	ev := findEvent(res.Events, "TurnTimedOut")
	if attr(ev, "action") != "check" {
		t.Fatalf("free seat must be checked, not folded: %v", res.Events)
	}
	h := fx.table().Hand
	if h.Folded[2] {
		t.Fatalf("free timeout folded the big blind")
	}
	if !roundClosed(h) {
		t.Fatalf("pre-flop should be closed: acted=%d toAct=%d", h.PlayersActed, h.PlayersToAct)
	}
}

func TestTimeBank_DrawnDownByOverage(t *testing.T) {
	const height = int64(2)
	fx := setupTimedTable(t)
	fx.startHand(t, height, 1000)

	// 45s elapsed: 30s base plus 15s drawn from the bank.
	mustOk(t, fx.act(t, "alice", "call", 0, height, 1045))
	h := fx.table().Hand
	if h.TimeBank[0] != 15 {
		t.Fatalf("time bank: want 15, got %d", h.TimeBank[0])
	}
	if h.Folded[0] {
		t.Fatalf("in-time action folded the seat")
	}
}

func TestAct_PastDeadlineRejected(t *testing.T) {
	const height = int64(2)
	fx := setupTimedTable(t)
	fx.startHand(t, height, 1000)

	mustFail(t, fx.act(t, "alice", "call", 0, height, 1060), "action time expired")
	h := fx.table().Hand
	if h.Folded[0] || h.Pot != 30 {
		t.Fatalf("expired action mutated the hand")
	}
}

func TestTick_FoldsDownToOneWinner(t *testing.T) {
	const height = int64(2)
	fx := setupTimedTable(t)
	fx.startHand(t, height, 1000)

	mustOk(t, fx.a.deliverTx(txBytes(t, "poker/tick", map[string]any{
		"tableId": fx.tableID,
	}), height, 1060))
	// Bob's clock restarted at 1060.
	res := mustOk(t, fx.a.deliverTx(txBytes(t, "poker/tick", map[string]any{
		"tableId": fx.tableID,
	}), height, 1120))

	ev := findEvent(res.Events, "HandCompleted")
	if ev == nil || attr(ev, "reason") != "all-folded" {
		t.Fatalf("expected fold-win completion: %v", res.Events)
	}
	if fx.table().Hand.Phase != state.PhaseComplete {
		t.Fatalf("phase: %s", fx.table().Hand.Phase)
	}
	if got := fx.table().Seats[2].Stack; got != 2010 {
		t.Fatalf("winner stack: %d", got)
	}
}
