package app

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	abci "github.com/cometbft/cometbft/abci/types"

	"encryptedpoker/internal/codec"
)

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func txBytes(t *testing.T, typ string, value any) []byte {
	t.Helper()
	return mustMarshal(t, map[string]any{
		"type":  typ,
		"value": value,
	})
}

// testEd25519Key derives a stable key per signer name so tests don't have to
// thread keys around.
func testEd25519Key(signer string) ed25519.PrivateKey {
	seed := sha256.Sum256([]byte("test-key|" + signer))
	return ed25519.NewKeyFromSeed(seed[:])
}

// txBytesSigned builds a signed envelope with the next valid nonce for the
// signer, read from current app state.
func txBytesSigned(t *testing.T, a *EPApp, typ string, value any, signer string) []byte {
	t.Helper()
	valueBytes := mustMarshal(t, value)
	nonce := strconv.FormatUint(a.st.NonceMax[signer]+1, 10)
	priv := testEd25519Key(signer)
	sig := ed25519.Sign(priv, codec.TxSignBytes(typ, valueBytes, nonce, signer))
	return mustMarshal(t, codec.TxEnvelope{
		Type:   typ,
		Value:  valueBytes,
		Nonce:  nonce,
		Signer: signer,
		Sig:    sig,
	})
}

func findEvent(events []abci.Event, typ string) *abci.Event {
	for i := range events {
		if events[i].Type == typ {
			return &events[i]
		}
	}
	return nil
}

func attr(ev *abci.Event, key string) string {
	if ev == nil {
		return ""
	}
	for _, a := range ev.Attributes {
		if a.Key == key {
			return a.Value
		}
	}
	return ""
}

func parseU64(t *testing.T, s string) uint64 {
	t.Helper()
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		t.Fatalf("parse uint64 %q: %v", s, err)
	}
	return n
}

func newTestApp(t *testing.T, opts ...Option) *EPApp {
	t.Helper()
	a, err := New(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func mustOk(t *testing.T, res *abci.ExecTxResult) *abci.ExecTxResult {
	t.Helper()
	if res.Code != 0 {
		t.Fatalf("expected ok, got code=%d log=%q", res.Code, res.Log)
	}
	return res
}

func mustFail(t *testing.T, res *abci.ExecTxResult, logContains string) *abci.ExecTxResult {
	t.Helper()
	if res.Code == 0 {
		t.Fatalf("expected failure containing %q, got ok", logContains)
	}
	if !strings.Contains(res.Log, logContains) {
		t.Fatalf("expected log containing %q, got %q", logContains, res.Log)
	}
	return res
}

func mintTestTokens(t *testing.T, a *EPApp, height int64, to string, amount uint64) {
	t.Helper()
	mustOk(t, a.deliverTx(txBytes(t, "bank/mint", map[string]any{"to": to, "amount": amount}), height, 0))
}

func registerTestAccount(t *testing.T, a *EPApp, height int64, name string) {
	t.Helper()
	pub := testEd25519Key(name).Public().(ed25519.PublicKey)
	mustOk(t, a.deliverTx(txBytesSigned(t, a, "auth/register_account", map[string]any{
		"account": name,
		"pubKey":  []byte(pub),
	}, name), height, 0))
}

func TestCreateTable_ValidatesBlindsAndBuyIns(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	mintTestTokens(t, a, height, "alice", 10_000)
	registerTestAccount(t, a, height, "alice")

	mustFail(t, a.deliverTx(txBytesSigned(t, a, "poker/create_table", map[string]any{
		"creator": "alice", "smallBlind": 10, "bigBlind": 25, "minBuyIn": 100, "maxBuyIn": 1000,
	}, "alice"), height, 0), "twice the small blind")

	mustFail(t, a.deliverTx(txBytesSigned(t, a, "poker/create_table", map[string]any{
		"creator": "alice", "smallBlind": 10, "bigBlind": 20, "minBuyIn": 5, "maxBuyIn": 1000,
	}, "alice"), height, 0), "buy-in")

	res := mustOk(t, a.deliverTx(txBytesSigned(t, a, "poker/create_table", map[string]any{
		"creator": "alice", "smallBlind": 10, "bigBlind": 20, "minBuyIn": 400, "maxBuyIn": 2000,
	}, "alice"), height, 0))
	id := parseU64(t, attr(findEvent(res.Events, "TableCreated"), "tableId"))
	tbl := a.st.Tables[id]
	if tbl == nil {
		t.Fatalf("table not stored")
	}
	if tbl.Params.MaxPlayers != 6 || tbl.Params.MinPlayers != 2 {
		t.Fatalf("unexpected player range: %d..%d", tbl.Params.MinPlayers, tbl.Params.MaxPlayers)
	}
}

func TestJoinTable_SeatRulesAndBuyInEscrow(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	for _, name := range []string{"alice", "bob"} {
		mintTestTokens(t, a, height, name, 5000)
		registerTestAccount(t, a, height, name)
	}
	res := mustOk(t, a.deliverTx(txBytesSigned(t, a, "poker/create_table", map[string]any{
		"creator": "alice", "smallBlind": 10, "bigBlind": 20, "minBuyIn": 400, "maxBuyIn": 2000,
	}, "alice"), height, 0))
	id := parseU64(t, attr(findEvent(res.Events, "TableCreated"), "tableId"))

	mustOk(t, a.deliverTx(txBytesSigned(t, a, "poker/join_table", map[string]any{
		"player": "alice", "tableId": id, "seat": 0, "buyIn": 2000,
	}, "alice"), height, 0))
	if got := a.st.Balance("alice"); got != 3000 {
		t.Fatalf("buy-in not escrowed: balance=%d", got)
	}

	mustFail(t, a.deliverTx(txBytesSigned(t, a, "poker/join_table", map[string]any{
		"player": "bob", "tableId": id, "seat": 0, "buyIn": 2000,
	}, "bob"), height, 0), "seat occupied")

	mustFail(t, a.deliverTx(txBytesSigned(t, a, "poker/join_table", map[string]any{
		"player": "bob", "tableId": id, "seat": 1, "buyIn": 100,
	}, "bob"), height, 0), "buy-in out of range")

	mustFail(t, a.deliverTx(txBytesSigned(t, a, "poker/join_table", map[string]any{
		"player": "alice", "tableId": id, "seat": 2, "buyIn": 400,
	}, "alice"), height, 0), "already seated")
}

func TestJoinTable_TokenGate(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	for _, name := range []string{"alice", "bob"} {
		mintTestTokens(t, a, height, name, 5000)
		registerTestAccount(t, a, height, name)
	}
	res := mustOk(t, a.deliverTx(txBytesSigned(t, a, "poker/create_table", map[string]any{
		"creator": "alice", "smallBlind": 10, "bigBlind": 20, "minBuyIn": 400, "maxBuyIn": 2000,
		"tokenGateAsset": "club-card", "tokenGateAmount": 1,
	}, "alice"), height, 0))
	id := parseU64(t, attr(findEvent(res.Events, "TableCreated"), "tableId"))

	mustFail(t, a.deliverTx(txBytesSigned(t, a, "poker/join_table", map[string]any{
		"player": "bob", "tableId": id, "seat": 0, "buyIn": 400,
	}, "bob"), height, 0), "not eligible")

	mustOk(t, a.deliverTx(txBytes(t, "bank/mint_asset", map[string]any{
		"asset": "club-card", "to": "bob", "amount": 1,
	}), height, 0))
	mustOk(t, a.deliverTx(txBytesSigned(t, a, "poker/join_table", map[string]any{
		"player": "bob", "tableId": id, "seat": 0, "buyIn": 400,
	}, "bob"), height, 0))
}

func TestLeaveTable_ReturnsStack(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	mintTestTokens(t, a, height, "alice", 5000)
	registerTestAccount(t, a, height, "alice")
	res := mustOk(t, a.deliverTx(txBytesSigned(t, a, "poker/create_table", map[string]any{
		"creator": "alice", "smallBlind": 10, "bigBlind": 20, "minBuyIn": 400, "maxBuyIn": 2000,
	}, "alice"), height, 0))
	id := parseU64(t, attr(findEvent(res.Events, "TableCreated"), "tableId"))

	mustOk(t, a.deliverTx(txBytesSigned(t, a, "poker/join_table", map[string]any{
		"player": "alice", "tableId": id, "seat": 3, "buyIn": 1200,
	}, "alice"), height, 0))
	mustOk(t, a.deliverTx(txBytesSigned(t, a, "poker/leave_table", map[string]any{
		"player": "alice", "tableId": id,
	}, "alice"), height, 0))
	if got := a.st.Balance("alice"); got != 5000 {
		t.Fatalf("stack not returned: balance=%d", got)
	}
	if a.st.Tables[id].Seats[3] != nil {
		t.Fatalf("seat not vacated")
	}
}

func TestBankSend_RequiresSignature(t *testing.T) {
	const height = int64(1)
	a := newTestApp(t)
	mintTestTokens(t, a, height, "alice", 100)
	registerTestAccount(t, a, height, "alice")

	mustFail(t, a.deliverTx(txBytes(t, "bank/send", map[string]any{
		"from": "alice", "to": "bob", "amount": 10,
	}), height, 0), "missing tx.nonce")

	mustOk(t, a.deliverTx(txBytesSigned(t, a, "bank/send", map[string]any{
		"from": "alice", "to": "bob", "amount": 10,
	}, "alice"), height, 0))
	if a.st.Balance("bob") != 10 || a.st.Balance("alice") != 90 {
		t.Fatalf("transfer mismatch: alice=%d bob=%d", a.st.Balance("alice"), a.st.Balance("bob"))
	}
}
