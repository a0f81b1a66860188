package app

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	abci "github.com/cometbft/cometbft/abci/types"

	"encryptedpoker/internal/archive"
	"encryptedpoker/internal/attest"
	"encryptedpoker/internal/codec"
	"encryptedpoker/internal/state"
)

const (
	AppVersion uint64 = 1
)

type EPApp struct {
	*abci.BaseApplication

	home string

	verifier attest.Verifier
	gate     EligibilityGate
	arch     *archive.Store

	mu       sync.Mutex
	st       *state.State
	lastHash []byte
}

type Option func(*EPApp)

// WithVerifier overrides proof verification. The default checks proofs as
// collaborator signatures over the statement digest.
func WithVerifier(v attest.Verifier) Option {
	return func(a *EPApp) { a.verifier = v }
}

// WithArchive attaches the node-local sqlite action/result archive.
func WithArchive(s *archive.Store) Option {
	return func(a *EPApp) { a.arch = s }
}

// WithGate overrides the membership gate for token-gated tables.
func WithGate(g EligibilityGate) Option {
	return func(a *EPApp) { a.gate = g }
}

func New(home string, opts ...Option) (*EPApp, error) {
	appHome := filepath.Join(home, "app")
	st, err := state.Load(appHome)
	if err != nil {
		return nil, err
	}
	a := &EPApp{
		BaseApplication: abci.NewBaseApplication(),
		home:            home,
		gate:            assetGate{},
		st:              st,
		lastHash:        st.AppHash(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *EPApp) Info(_ context.Context, _ *abci.InfoRequest) (*abci.InfoResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return &abci.InfoResponse{
		Data:             "encryptedpoker (v1)",
		Version:          "v1",
		AppVersion:       AppVersion,
		LastBlockHeight:  a.st.Height,
		LastBlockAppHash: a.lastHash,
	}, nil
}

func (a *EPApp) CheckTx(_ context.Context, req *abci.CheckTxRequest) (*abci.CheckTxResponse, error) {
	_, err := codec.DecodeTxEnvelope(req.Tx)
	if err != nil {
		return &abci.CheckTxResponse{Code: 1, Log: err.Error()}, nil
	}
	// Structural validation only; auth and semantics run at finalize.
	return &abci.CheckTxResponse{Code: 0}, nil
}

func (a *EPApp) InitChain(_ context.Context, _ *abci.InitChainRequest) (*abci.InitChainResponse, error) {
	return &abci.InitChainResponse{}, nil
}

func (a *EPApp) FinalizeBlock(_ context.Context, req *abci.FinalizeBlockRequest) (*abci.FinalizeBlockResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.st.Height = req.Height
	nowUnix := req.Time.Unix()

	txResults := make([]*abci.ExecTxResult, 0, len(req.Txs))
	for _, txBytes := range req.Txs {
		res := a.deliverTx(txBytes, req.Height, nowUnix)
		txResults = append(txResults, res)
	}

	a.lastHash = a.st.AppHash()

	return &abci.FinalizeBlockResponse{
		TxResults: txResults,
		AppHash:   a.lastHash,
	}, nil
}

func (a *EPApp) Commit(_ context.Context, _ *abci.CommitRequest) (*abci.CommitResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Persist after each block for devnet durability.
	appHome := filepath.Join(a.home, "app")
	if err := a.st.Save(appHome); err != nil {
		// CometBFT expects Commit to not crash; return error so node halts loudly.
		return nil, err
	}
	return &abci.CommitResponse{}, nil
}

func (a *EPApp) Query(ctx context.Context, req *abci.QueryRequest) (*abci.QueryResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Paths:
	// - /tables
	// - /table/<id>
	// - /account/<addr>
	// - /result/<tableId>/<handId>
	// - /actions/<tableId>/<handId>
	path := strings.TrimSpace(req.Path)
	switch {
	case path == "/tables":
		ids := make([]uint64, 0, len(a.st.Tables))
		for id := range a.st.Tables {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		b, _ := json.Marshal(ids)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/account/"):
		addr := strings.TrimPrefix(path, "/account/")
		bal := a.st.Balance(addr)
		b, _ := json.Marshal(map[string]any{"addr": addr, "balance": bal})
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/table/"):
		raw := strings.TrimPrefix(path, "/table/")
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: "invalid table id", Height: a.st.Height}, nil
		}
		t, ok := a.st.Tables[id]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "table not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(t)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/result/"):
		tableID, handID, err := parseHandPath(strings.TrimPrefix(path, "/result/"))
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		res, ok := a.st.Results[state.ResultKey(tableID, handID)]
		if !ok {
			return &abci.QueryResponse{Code: 1, Log: "result not found", Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(res)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	case strings.HasPrefix(path, "/actions/"):
		if a.arch == nil {
			return &abci.QueryResponse{Code: 1, Log: "archive not configured", Height: a.st.Height}, nil
		}
		tableID, handID, err := parseHandPath(strings.TrimPrefix(path, "/actions/"))
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		rows, err := a.arch.ListActions(ctx, tableID, handID)
		if err != nil {
			return &abci.QueryResponse{Code: 1, Log: err.Error(), Height: a.st.Height}, nil
		}
		b, _ := json.Marshal(rows)
		return &abci.QueryResponse{Code: 0, Value: b, Height: a.st.Height}, nil
	default:
		return &abci.QueryResponse{Code: 1, Log: "unknown query path", Height: a.st.Height}, nil
	}
}

func parseHandPath(raw string) (uint64, uint64, error) {
	parts := strings.SplitN(raw, "/", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("want <tableId>/<handId>")
	}
	tableID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid table id")
	}
	handID, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid hand id")
	}
	return tableID, handID, nil
}

// txEffects buffers archive writes so a failed tx leaves no rows behind.
type txEffects struct {
	actions []archive.ActionRow
	results []resultRow
}

type resultRow struct {
	tableID uint64
	handID  uint64
	reason  string
	blob    []byte
	ts      int64
}

// deliverTx stages each tx on a state clone: a tx either applies completely
// or leaves both the state tree and the archive untouched.
func (a *EPApp) deliverTx(txBytes []byte, height int64, nowUnix int64) *abci.ExecTxResult {
	env, err := codec.DecodeTxEnvelope(txBytes)
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}
	staged, err := a.st.Clone()
	if err != nil {
		return &abci.ExecTxResult{Code: 1, Log: err.Error()}
	}

	fx := &txEffects{}
	res := a.applyTx(staged, env, height, nowUnix, fx)
	if res.Code != 0 {
		return res
	}

	a.st = staged
	a.flushEffects(fx)
	return res
}

// flushEffects writes buffered rows to the node-local archive. Archive
// failures never fail consensus; the state tree keeps the canonical results.
func (a *EPApp) flushEffects(fx *txEffects) {
	if a.arch == nil {
		return
	}
	ctx := context.Background()
	for _, row := range fx.actions {
		_ = a.arch.InsertAction(ctx, row)
	}
	for _, r := range fx.results {
		_ = a.arch.InsertResult(ctx, r.tableID, r.handID, r.reason, r.blob, r.ts)
	}
}

// proofVerify returns the proof check for the current state: an explicit
// Verifier when configured, otherwise collaborator-signature verification.
func (a *EPApp) proofVerify(st *state.State) func(attest.Statement, []byte) error {
	if a.verifier != nil {
		return a.verifier.Verify
	}
	return func(stmt attest.Statement, proof []byte) error {
		if st.Collaborator == nil {
			return fmt.Errorf("no collaborator registered")
		}
		v := attest.SignatureVerifier{PubKey: ed25519.PublicKey(st.Collaborator.PubKey)}
		return v.Verify(stmt, proof)
	}
}

func errResult(err error) *abci.ExecTxResult {
	return &abci.ExecTxResult{Code: 1, Log: err.Error()}
}

func (a *EPApp) applyTx(st *state.State, env codec.TxEnvelope, height int64, now int64, fx *txEffects) *abci.ExecTxResult {
	switch env.Type {
	case "bank/mint":
		// Dev faucet; unauthenticated on purpose.
		var msg codec.BankMintTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/mint value"}
		}
		if msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing to/amount"}
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return errResult(err)
		}
		return okEvent("BankMinted", map[string]string{
			"to":     msg.To,
			"amount": u64(msg.Amount),
		})

	case "bank/send":
		var msg codec.BankSendTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/send value"}
		}
		if msg.From == "" || msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing from/to/amount"}
		}
		if err := requireAccountAuth(st, env, msg.From); err != nil {
			return errResult(err)
		}
		if err := consumeNonce(st, env); err != nil {
			return errResult(err)
		}
		if err := st.Debit(msg.From, msg.Amount); err != nil {
			return errResult(err)
		}
		if err := st.Credit(msg.To, msg.Amount); err != nil {
			return errResult(err)
		}
		return okEvent("BankSent", map[string]string{
			"from":   msg.From,
			"to":     msg.To,
			"amount": u64(msg.Amount),
		})

	case "bank/mint_asset":
		// Dev faucet for the membership-gate asset map.
		var msg codec.BankMintAssetTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad bank/mint_asset value"}
		}
		if msg.Asset == "" || msg.To == "" || msg.Amount == 0 {
			return &abci.ExecTxResult{Code: 1, Log: "missing asset/to/amount"}
		}
		holders := st.Assets[msg.Asset]
		if holders == nil {
			holders = map[string]uint64{}
			st.Assets[msg.Asset] = holders
		}
		next, err := addUint64Checked(holders[msg.To], msg.Amount, "asset balance")
		if err != nil {
			return errResult(err)
		}
		holders[msg.To] = next
		return okEvent("AssetMinted", map[string]string{
			"asset":  msg.Asset,
			"to":     msg.To,
			"amount": u64(msg.Amount),
		})

	case "auth/register_account":
		var msg codec.AuthRegisterAccountTx
		if err := json.Unmarshal(env.Value, &msg); err != nil {
			return &abci.ExecTxResult{Code: 1, Log: "bad auth/register_account value"}
		}
		if err := requireRegisterAccountAuth(env, msg); err != nil {
			return errResult(err)
		}
		if existing, ok := st.AccountKeys[msg.Account]; ok && string(existing) != string(msg.PubKey) {
			return &abci.ExecTxResult{Code: 1, Log: "account already registered with a different key"}
		}
		if err := consumeNonce(st, env); err != nil {
			return errResult(err)
		}
		st.AccountKeys[msg.Account] = msg.PubKey
		return okEvent("AccountRegistered", map[string]string{
			"account": msg.Account,
		})

	case "mpc/register":
		return a.applyMPCRegister(st, env)

	case "poker/create_table":
		return a.applyCreateTable(st, env)

	case "poker/join_table":
		return a.applyJoinTable(st, env)

	case "poker/leave_table":
		return a.applyLeaveTable(st, env)

	case "poker/start_hand":
		return a.applyStartHand(st, env, now, fx)

	case "poker/act":
		return a.applyAct(st, env, height, now, fx)

	case "poker/advance_phase":
		return a.applyAdvancePhase(st, env, now)

	case "poker/trigger_showdown":
		return a.applyTriggerShowdown(st, env, now)

	case "poker/tick":
		return a.applyTick(st, env, height, now, fx)

	case "poker/abort_hand":
		return a.applyAbortHand(st, env, now, fx)

	case "poker/verify_bluff":
		return a.applyVerifyBluff(st, env)

	case "mpc/deck_ready":
		return a.applyMPCDeckReady(st, env, now)

	case "mpc/cards_dealt":
		return a.applyMPCCardsDealt(st, env, now)

	case "mpc/community_cards":
		return a.applyMPCCommunityCards(st, env, now)

	case "mpc/showdown_result":
		return a.applyMPCShowdownResult(st, env, now, fx)

	default:
		return &abci.ExecTxResult{Code: 1, Log: "unknown tx type: " + env.Type}
	}
}

func (a *EPApp) applyMPCRegister(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.MPCRegisterTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad mpc/register value"}
	}
	if msg.Name == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing name"}
	}
	if len(msg.PubKey) != ed25519.PublicKeySize {
		return &abci.ExecTxResult{Code: 1, Log: fmt.Sprintf("pubKey must be %d bytes", ed25519.PublicKeySize)}
	}
	if st.Collaborator == nil {
		// First registration is self-signed by the new key.
		if err := requireSignedEnvelope(env); err != nil {
			return errResult(err)
		}
		if env.Signer != msg.Name {
			return &abci.ExecTxResult{Code: 1, Log: "tx signer must match collaborator name"}
		}
		msgBytes := codec.TxSignBytes(env.Type, env.Value, env.Nonce, env.Signer)
		if !ed25519.Verify(ed25519.PublicKey(msg.PubKey), msgBytes, env.Sig) {
			return &abci.ExecTxResult{Code: 1, Log: "invalid signature"}
		}
	} else {
		// Rotation must be signed by the currently registered key.
		if err := requireCollaboratorAuth(st, env); err != nil {
			return errResult(err)
		}
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	st.Collaborator = &state.Collaborator{Name: msg.Name, PubKey: msg.PubKey}
	return okEvent("CollaboratorRegistered", map[string]string{
		"name": msg.Name,
	})
}

func (a *EPApp) applyCreateTable(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.PokerCreateTableTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/create_table value"}
	}
	if msg.Creator == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing creator"}
	}
	if err := requireAccountAuth(st, env, msg.Creator); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	maxPlayers := msg.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = state.MaxSeats
	}
	minPlayers := msg.MinPlayers
	if minPlayers == 0 {
		minPlayers = 2
	}
	if maxPlayers > state.MaxSeats || minPlayers < 2 || minPlayers > maxPlayers {
		return &abci.ExecTxResult{Code: 1, Log: "invalid player range"}
	}
	if msg.SmallBlind == 0 || msg.BigBlind != msg.SmallBlind*2 {
		return &abci.ExecTxResult{Code: 1, Log: "big blind must be exactly twice the small blind"}
	}
	if msg.MinBuyIn < msg.BigBlind || msg.MaxBuyIn < msg.MinBuyIn {
		return &abci.ExecTxResult{Code: 1, Log: "invalid buy-in range"}
	}
	timeBank := msg.TimeBank
	if msg.ActionTO > 0 && timeBank == 0 {
		timeBank = 30
	}

	id := st.NextTableID
	st.NextTableID++
	t := &state.Table{
		ID:      id,
		Creator: msg.Creator,
		Label:   msg.TableLabel,
		Params: state.TableParams{
			MinPlayers:        minPlayers,
			MaxPlayers:        maxPlayers,
			SmallBlind:        msg.SmallBlind,
			BigBlind:          msg.BigBlind,
			MinBuyIn:          msg.MinBuyIn,
			MaxBuyIn:          msg.MaxBuyIn,
			ActionTimeoutSecs: msg.ActionTO,
			TimeBankSecs:      timeBank,
			TokenGateAsset:    msg.GateAsset,
			TokenGateAmount:   msg.GateAmount,
			RedactBetAmounts:  msg.RedactBets,
		},
		NextHandID: 1,
		ButtonSeat: -1,
		Hand:       nil,
	}
	st.Tables[id] = t

	return okEvent("TableCreated", map[string]string{
		"tableId": u64(id),
		"creator": msg.Creator,
	})
}

// betweenHands reports whether seating changes are allowed.
func betweenHands(t *state.Table) bool {
	return t.Hand == nil || t.Hand.Phase == state.PhaseComplete
}

func (a *EPApp) applyJoinTable(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.PokerJoinTableTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/join_table value"}
	}
	if msg.Player == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing player"}
	}
	if err := requireAccountAuth(st, env, msg.Player); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	if !betweenHands(t) {
		return errResult(fmt.Errorf("%w: cannot join during a hand", ErrInvalidPhase))
	}
	if msg.Seat >= t.Params.MaxPlayers {
		return errResult(fmt.Errorf("%w: %d", ErrInvalidSeat, msg.Seat))
	}
	if t.Seats[msg.Seat] != nil {
		return &abci.ExecTxResult{Code: 1, Log: "seat occupied"}
	}
	for i := 0; i < state.MaxSeats; i++ {
		if t.Seats[i] != nil && t.Seats[i].Player == msg.Player {
			return &abci.ExecTxResult{Code: 1, Log: "player already seated"}
		}
	}
	if msg.BuyIn < t.Params.MinBuyIn || msg.BuyIn > t.Params.MaxBuyIn {
		return &abci.ExecTxResult{Code: 1, Log: "buy-in out of range"}
	}
	if t.Params.TokenGateAsset != "" {
		if !a.gate.Eligible(st, t.Params.TokenGateAsset, msg.Player, t.Params.TokenGateAmount) {
			return &abci.ExecTxResult{Code: 1, Log: "player not eligible for gated table"}
		}
	}
	if err := st.Debit(msg.Player, msg.BuyIn); err != nil {
		return errResult(err)
	}
	t.Seats[msg.Seat] = &state.Seat{
		Player: msg.Player,
		Stack:  msg.BuyIn,
	}
	return okEvent("PlayerJoined", map[string]string{
		"tableId": u64(msg.TableID),
		"seat":    fmt.Sprintf("%d", msg.Seat),
		"player":  msg.Player,
		"buyIn":   u64(msg.BuyIn),
	})
}

func (a *EPApp) applyLeaveTable(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.PokerLeaveTableTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/leave_table value"}
	}
	if msg.Player == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing player"}
	}
	if err := requireAccountAuth(st, env, msg.Player); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	if !betweenHands(t) {
		return errResult(fmt.Errorf("%w: cannot leave during a hand", ErrInvalidPhase))
	}
	seat := -1
	for i := 0; i < state.MaxSeats; i++ {
		if t.Seats[i] != nil && t.Seats[i].Player == msg.Player {
			seat = i
			break
		}
	}
	if seat < 0 {
		return &abci.ExecTxResult{Code: 1, Log: "player not seated"}
	}
	stack := t.Seats[seat].Stack
	if err := st.Credit(msg.Player, stack); err != nil {
		return errResult(err)
	}
	t.Seats[seat] = nil
	return okEvent("PlayerLeft", map[string]string{
		"tableId": u64(msg.TableID),
		"seat":    fmt.Sprintf("%d", seat),
		"player":  msg.Player,
		"stack":   u64(stack),
	})
}

func (a *EPApp) applyStartHand(st *state.State, env codec.TxEnvelope, now int64, fx *txEffects) *abci.ExecTxResult {
	var msg codec.PokerStartHandTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/start_hand value"}
	}
	if msg.Caller == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing caller"}
	}
	if err := requireAccountAuth(st, env, msg.Caller); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	if st.Collaborator == nil {
		return &abci.ExecTxResult{Code: 1, Log: "no collaborator registered"}
	}
	h, err := startHand(t, now)
	if err != nil {
		return errResult(err)
	}
	res := okEvent("HandStarted", map[string]string{
		"tableId":    u64(msg.TableID),
		"handId":     u64(h.HandID),
		"buttonSeat": fmt.Sprintf("%d", h.ButtonSeat),
		"smallBlind": fmt.Sprintf("%d", h.SmallBlindSeat),
		"bigBlind":   fmt.Sprintf("%d", h.BigBlindSeat),
		"pot":        u64(h.Pot),
	})
	res.Events = append(res.Events, requestEvent(t.ID, h))
	return res
}

func (a *EPApp) applyAct(st *state.State, env codec.TxEnvelope, height, now int64, fx *txEffects) *abci.ExecTxResult {
	var msg codec.PokerActTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/act value"}
	}
	if msg.Player == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing player"}
	}
	if err := requireAccountAuth(st, env, msg.Player); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	h := t.Hand
	out, err := applyAction(t, h, msg.Player, msg.Action, msg.Amount, now)
	if err != nil {
		return errResult(err)
	}

	res := &abci.ExecTxResult{Code: 0}
	res.Events = append(res.Events, actionEvent(t, h, out))
	fx.actions = append(fx.actions, actionRow(t, h, out, msg.Player, now, height))

	if out.Action == "fold" && len(unfoldedSeats(h)) == 1 {
		handRes, err := completeByFolds(st, t, h, now)
		if err != nil {
			return errResult(err)
		}
		res.Events = append(res.Events, completedEvent(t.ID, handRes))
		fx.results = append(fx.results, archiveResult(handRes))
	}
	return res
}

func (a *EPApp) applyAdvancePhase(st *state.State, env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.PokerAdvancePhaseTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/advance_phase value"}
	}
	if msg.Caller == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing caller"}
	}
	if err := requireAccountAuth(st, env, msg.Caller); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	if _, err := advancePhase(t, t.Hand, now); err != nil {
		return errResult(err)
	}
	res := okEvent("PhaseAdvanced", map[string]string{
		"tableId": u64(msg.TableID),
		"handId":  u64(t.Hand.HandID),
		"phase":   string(t.Hand.Phase),
	})
	res.Events = append(res.Events, requestEvent(t.ID, t.Hand))
	return res
}

func (a *EPApp) applyTriggerShowdown(st *state.State, env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.PokerTriggerShowdownTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/trigger_showdown value"}
	}
	if msg.Caller == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing caller"}
	}
	if err := requireAccountAuth(st, env, msg.Caller); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	if _, err := triggerShowdown(t, t.Hand, now); err != nil {
		return errResult(err)
	}
	res := okEvent("ShowdownTriggered", map[string]string{
		"tableId": u64(msg.TableID),
		"handId":  u64(t.Hand.HandID),
		"pots":    fmt.Sprintf("%d", len(t.Hand.Pots)),
	})
	res.Events = append(res.Events, requestEvent(t.ID, t.Hand))
	return res
}

func (a *EPApp) applyTick(st *state.State, env codec.TxEnvelope, height, now int64, fx *txEffects) *abci.ExecTxResult {
	// Permissionless liveness: anyone may ring the clock.
	var msg codec.PokerTickTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/tick value"}
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	h := t.Hand
	if h == nil {
		return &abci.ExecTxResult{Code: 1, Log: "no active hand"}
	}
	timedOutSeat := h.CurrentTurn
	out, err := applyTimeout(t, h, now)
	if err != nil {
		return errResult(err)
	}

	player := ""
	if s := t.Seats[timedOutSeat]; s != nil {
		player = s.Player
	}
	res := okEvent("TurnTimedOut", map[string]string{
		"tableId": u64(msg.TableID),
		"handId":  u64(h.HandID),
		"seat":    fmt.Sprintf("%d", timedOutSeat),
		"action":  out.Action,
	})
	res.Events = append(res.Events, actionEvent(t, h, out))
	fx.actions = append(fx.actions, actionRow(t, h, out, player, now, height))

	if out.Action == "fold" && len(unfoldedSeats(h)) == 1 {
		handRes, err := completeByFolds(st, t, h, now)
		if err != nil {
			return errResult(err)
		}
		res.Events = append(res.Events, completedEvent(t.ID, handRes))
		fx.results = append(fx.results, archiveResult(handRes))
	}
	return res
}

func (a *EPApp) applyAbortHand(st *state.State, env codec.TxEnvelope, now int64, fx *txEffects) *abci.ExecTxResult {
	var msg codec.PokerAbortHandTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/abort_hand value"}
	}
	if msg.Caller == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing caller"}
	}
	if err := requireAccountAuth(st, env, msg.Caller); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	if msg.Caller != t.Creator {
		return &abci.ExecTxResult{Code: 1, Log: "only the table creator may abort"}
	}
	handRes, err := abortHand(st, t, t.Hand, now)
	if err != nil {
		return errResult(err)
	}
	res := okEvent("HandAborted", map[string]string{
		"tableId": u64(msg.TableID),
		"handId":  u64(handRes.HandNumber),
	})
	fx.results = append(fx.results, archiveResult(handRes))
	return res
}

func (a *EPApp) applyVerifyBluff(st *state.State, env codec.TxEnvelope) *abci.ExecTxResult {
	var msg codec.PokerVerifyBluffTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad poker/verify_bluff value"}
	}
	if msg.Player == "" {
		return &abci.ExecTxResult{Code: 1, Log: "missing player"}
	}
	if err := requireAccountAuth(st, env, msg.Player); err != nil {
		return errResult(err)
	}
	if err := consumeNonce(st, env); err != nil {
		return errResult(err)
	}
	t := st.Tables[msg.TableID]
	if t == nil {
		return &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	h := t.Hand
	if h == nil || h.HandID != msg.HandID {
		return &abci.ExecTxResult{Code: 1, Log: "hand not available"}
	}
	if h.Phase != state.PhaseComplete {
		// Opening hole cards mid-hand would leak the very thing the
		// custody scheme protects.
		return errResult(fmt.Errorf("%w: hand not complete", ErrInvalidPhase))
	}
	seat := int(msg.Seat)
	if seat >= state.MaxSeats || t.Seats[seat] == nil || t.Seats[seat].Player != msg.Player {
		return errResult(fmt.Errorf("%w: %d", ErrInvalidSeat, msg.Seat))
	}
	ch := h.ConfidentialHands[seat]
	if ch == nil {
		return &abci.ExecTxResult{Code: 1, Log: "no confidential hand for seat"}
	}
	if msg.Card1 >= state.DeckSize || msg.Card2 >= state.DeckSize || msg.Card1 == msg.Card2 {
		return errResult(fmt.Errorf("%w: %d/%d", ErrInvalidCard, msg.Card1, msg.Card2))
	}
	payload := attest.HolePayload(t.ID, h.HandID, seat, msg.Card1, msg.Card2)
	stmt := attest.Statement{Domain: attest.DomainHole, Commitment: ch.Commitment, Payload: payload}
	if err := a.proofVerify(st)(stmt, msg.Proof); err != nil {
		return errResult(fmt.Errorf("%w: %s", ErrInvalidProof, err.Error()))
	}
	return okEvent("BluffRevealed", map[string]string{
		"tableId": u64(msg.TableID),
		"handId":  u64(msg.HandID),
		"seat":    fmt.Sprintf("%d", seat),
		"card1":   fmt.Sprintf("%d", msg.Card1),
		"card2":   fmt.Sprintf("%d", msg.Card2),
	})
}

// lookupHandForCallback resolves the table and live hand an mpc/* callback
// targets, after collaborator authentication.
func (a *EPApp) lookupHandForCallback(st *state.State, env codec.TxEnvelope, tableID uint64) (*state.Table, *state.Hand, *abci.ExecTxResult) {
	if err := requireCollaboratorAuth(st, env); err != nil {
		res := errResult(err)
		res.Events = append(res.Events, securityEvent(tableID, err))
		return nil, nil, res
	}
	if err := consumeNonce(st, env); err != nil {
		return nil, nil, errResult(err)
	}
	t := st.Tables[tableID]
	if t == nil {
		return nil, nil, &abci.ExecTxResult{Code: 1, Log: "table not found"}
	}
	if t.Hand == nil {
		return nil, nil, &abci.ExecTxResult{Code: 1, Log: "no active hand"}
	}
	return t, t.Hand, nil
}

func (a *EPApp) applyMPCDeckReady(st *state.State, env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.MPCDeckReadyTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad mpc/deck_ready value"}
	}
	t, h, fail := a.lookupHandForCallback(st, env, msg.TableID)
	if fail != nil {
		return fail
	}
	if err := applyDeckReady(t, h, msg, now); err != nil {
		return errResult(err)
	}
	res := okEvent("DeckReady", map[string]string{
		"tableId":       u64(msg.TableID),
		"handId":        u64(h.HandID),
		"computationId": u64(msg.ComputationID),
	})
	res.Events = append(res.Events, requestEvent(t.ID, h))
	return res
}

func (a *EPApp) applyMPCCardsDealt(st *state.State, env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.MPCCardsDealtTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad mpc/cards_dealt value"}
	}
	t, h, fail := a.lookupHandForCallback(st, env, msg.TableID)
	if fail != nil {
		return fail
	}
	if err := applyCardsDealt(t, h, msg, now); err != nil {
		return errResult(err)
	}
	return okEvent("CardsDealt", map[string]string{
		"tableId":    u64(msg.TableID),
		"handId":     u64(h.HandID),
		"cursor":     fmt.Sprintf("%d", h.DeckCursor),
		"actingSeat": fmt.Sprintf("%d", h.CurrentTurn),
	})
}

func (a *EPApp) applyMPCCommunityCards(st *state.State, env codec.TxEnvelope, now int64) *abci.ExecTxResult {
	var msg codec.MPCCommunityCardsTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad mpc/community_cards value"}
	}
	t, h, fail := a.lookupHandForCallback(st, env, msg.TableID)
	if fail != nil {
		return fail
	}
	if err := applyCommunityCards(t, h, a.proofVerify(st), msg, now); err != nil {
		if errors.Is(err, ErrInvalidProof) {
			return a.haltHand(t, h, err)
		}
		return errResult(err)
	}
	values := make([]string, 0, len(msg.CardValues))
	for _, v := range msg.CardValues {
		values = append(values, fmt.Sprintf("%d", v))
	}
	return okEvent("CommunityRevealed", map[string]string{
		"tableId": u64(msg.TableID),
		"handId":  u64(h.HandID),
		"phase":   string(h.Phase),
		"cards":   strings.Join(values, ","),
	})
}

func (a *EPApp) applyMPCShowdownResult(st *state.State, env codec.TxEnvelope, now int64, fx *txEffects) *abci.ExecTxResult {
	var msg codec.MPCShowdownResultTx
	if err := json.Unmarshal(env.Value, &msg); err != nil {
		return &abci.ExecTxResult{Code: 1, Log: "bad mpc/showdown_result value"}
	}
	t, h, fail := a.lookupHandForCallback(st, env, msg.TableID)
	if fail != nil {
		return fail
	}
	handRes, err := applyShowdownResult(st, t, h, a.proofVerify(st), msg, now)
	if err != nil {
		if errors.Is(err, ErrInvalidProof) {
			return a.haltHand(t, h, err)
		}
		return errResult(err)
	}
	res := &abci.ExecTxResult{Code: 0}
	res.Events = append(res.Events, completedEvent(t.ID, handRes))
	fx.results = append(fx.results, archiveResult(handRes))
	return res
}

// haltHand freezes a hand whose callback failed proof verification. The tx
// itself succeeds so the halt is recorded on-chain; only poker/abort_hand
// can recover the table.
func (a *EPApp) haltHand(t *state.Table, h *state.Hand, cause error) *abci.ExecTxResult {
	h.Halted = true
	h.CurrentTurn = -1
	h.ActionDeadline = 0
	res := &abci.ExecTxResult{Code: 0, Log: cause.Error()}
	res.Events = append(res.Events, securityEvent(t.ID, cause))
	res.Events = append(res.Events, abci.Event{
		Type: "HandHalted",
		Attributes: []abci.EventAttribute{
			{Key: "tableId", Value: u64(t.ID), Index: true},
			{Key: "handId", Value: u64(h.HandID), Index: true},
		},
	})
	return res
}

// ---- event/archive helpers ----

func u64(v uint64) string { return strconv.FormatUint(v, 10) }

func okEvent(typ string, attrs map[string]string) *abci.ExecTxResult {
	ev := abci.Event{Type: typ}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: k, Value: attrs[k], Index: true})
	}
	return &abci.ExecTxResult{
		Code:   0,
		Events: []abci.Event{ev},
	}
}

func securityEvent(tableID uint64, cause error) abci.Event {
	return abci.Event{
		Type: "SecurityEvent",
		Attributes: []abci.EventAttribute{
			{Key: "tableId", Value: u64(tableID), Index: true},
			{Key: "cause", Value: cause.Error(), Index: false},
		},
	}
}

func requestEvent(tableID uint64, h *state.Hand) abci.Event {
	p := h.Pending
	ev := abci.Event{
		Type: "ComputationRequested",
		Attributes: []abci.EventAttribute{
			{Key: "tableId", Value: u64(tableID), Index: true},
			{Key: "handId", Value: u64(h.HandID), Index: true},
			{Key: "kind", Value: string(p.Kind), Index: true},
			{Key: "seq", Value: u64(p.Seq), Index: true},
		},
	}
	if len(p.Slots) > 0 {
		slots := make([]string, 0, len(p.Slots))
		for _, s := range p.Slots {
			slots = append(slots, fmt.Sprintf("%d", s))
		}
		ev.Attributes = append(ev.Attributes, abci.EventAttribute{Key: "slots", Value: strings.Join(slots, ","), Index: false})
	}
	return ev
}

func actionEvent(t *state.Table, h *state.Hand, out actionOutcome) abci.Event {
	amount := u64(out.Moved)
	if t.Params.RedactBetAmounts {
		amount = "(redacted)"
	}
	return abci.Event{
		Type: "ActionApplied",
		Attributes: []abci.EventAttribute{
			{Key: "tableId", Value: u64(t.ID), Index: true},
			{Key: "handId", Value: u64(h.HandID), Index: true},
			{Key: "seat", Value: fmt.Sprintf("%d", out.Seat), Index: true},
			{Key: "action", Value: out.Action, Index: true},
			{Key: "amount", Value: amount, Index: false},
			{Key: "forced", Value: fmt.Sprintf("%t", out.Forced), Index: false},
			{Key: "phase", Value: string(h.Phase), Index: true},
			{Key: "actingSeat", Value: fmt.Sprintf("%d", h.CurrentTurn), Index: true},
		},
	}
}

func actionRow(t *state.Table, h *state.Hand, out actionOutcome, player string, now, height int64) archive.ActionRow {
	return archive.ActionRow{
		TableID:   t.ID,
		HandID:    h.HandID,
		Seat:      out.Seat,
		Player:    player,
		Action:    out.Action,
		Amount:    out.Moved,
		Phase:     string(h.Phase),
		Forced:    out.Forced,
		Redacted:  t.Params.RedactBetAmounts,
		Timestamp: now,
		Height:    height,
	}
}

func completedEvent(tableID uint64, res *state.HandResult) abci.Event {
	winners := make([]string, 0, len(res.Winners))
	for _, w := range res.Winners {
		winners = append(winners, fmt.Sprintf("%d", w))
	}
	payouts := make([]string, 0, len(res.Payouts))
	for _, p := range res.Payouts {
		payouts = append(payouts, u64(p))
	}
	return abci.Event{
		Type: "HandCompleted",
		Attributes: []abci.EventAttribute{
			{Key: "tableId", Value: u64(tableID), Index: true},
			{Key: "handId", Value: u64(res.HandNumber), Index: true},
			{Key: "reason", Value: res.Reason, Index: true},
			{Key: "winners", Value: strings.Join(winners, ","), Index: false},
			{Key: "payouts", Value: strings.Join(payouts, ","), Index: false},
			{Key: "category", Value: fmt.Sprintf("%d", res.Category), Index: false},
		},
	}
}

func archiveResult(res *state.HandResult) resultRow {
	blob, _ := json.Marshal(res)
	return resultRow{
		tableID: res.TableID,
		handID:  res.HandNumber,
		reason:  res.Reason,
		blob:    blob,
		ts:      res.Timestamp,
	}
}
