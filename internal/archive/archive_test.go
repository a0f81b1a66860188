package archive

import (
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestActions_InsertAndListInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	rows := []ActionRow{
		{TableID: 1, HandID: 1, Seat: 0, Player: "alice", Action: "call", Amount: 20, Phase: "preflop", Timestamp: 100, Height: 5},
		{TableID: 1, HandID: 1, Seat: 1, Player: "bob", Action: "raise", Amount: 60, Phase: "preflop", Timestamp: 101, Height: 5},
		{TableID: 1, HandID: 1, Seat: 2, Player: "carol", Action: "fold", Phase: "preflop", Forced: true, Timestamp: 102, Height: 6},
		{TableID: 1, HandID: 2, Seat: 0, Player: "alice", Action: "check", Phase: "flop", Timestamp: 103, Height: 7},
	}
	for _, r := range rows {
		if err := s.InsertAction(ctx, r); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	got, err := s.ListActions(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows for hand 1, got %d", len(got))
	}
	for i, r := range got {
		if r.Player != rows[i].Player || r.Action != rows[i].Action || r.Amount != rows[i].Amount {
			t.Fatalf("row %d: %+v", i, r)
		}
	}
	if !got[2].Forced {
		t.Fatalf("forced flag lost")
	}
}

func TestActions_RedactionZeroesAmount(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	if err := s.InsertAction(ctx, ActionRow{
		TableID: 1, HandID: 1, Seat: 0, Player: "alice", Action: "raise",
		Amount: 500, Phase: "turn", Redacted: true, Timestamp: 1,
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.ListActions(ctx, 1, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got[0].Amount != 0 || !got[0].Redacted {
		t.Fatalf("redacted amount persisted: %+v", got[0])
	}
}

func TestResults_FirstWriteWins(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	if err := s.InsertResult(ctx, 1, 1, "showdown", []byte(`{"winners":[0]}`), 10); err != nil {
		t.Fatalf("insert: %v", err)
	}
	// A second write for the same hand is silently dropped.
	if err := s.InsertResult(ctx, 1, 1, "aborted", []byte(`{"winners":[1]}`), 11); err != nil {
		t.Fatalf("conflicting insert: %v", err)
	}

	blob, err := s.GetResult(ctx, 1, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(blob) != `{"winners":[0]}` {
		t.Fatalf("result overwritten: %s", blob)
	}
}

func TestResults_RejectsInvalidJSON(t *testing.T) {
	s := newTestStore(t)
	if err := s.InsertResult(t.Context(), 1, 1, "showdown", []byte(`{broken`), 10); err == nil {
		t.Fatalf("invalid json accepted")
	}
}

func TestGetResult_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetResult(t.Context(), 9, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
