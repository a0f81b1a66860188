package state

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	// MaxSeats is the hard table size limit; tables may configure fewer.
	MaxSeats = 6

	// NoCard marks a community slot that has not been revealed yet.
	NoCard uint8 = 255

	// DeckSize is a standard deck. The core never sees the deck's card values;
	// cursor bookkeeping is bounded by it.
	DeckSize = 52

	// BoardSize is the number of community card slots per hand.
	BoardSize = 5
)

type State struct {
	Height int64 `json:"height"`

	NextTableID uint64            `json:"nextTableId"`
	Accounts    map[string]uint64 `json:"accounts"`
	AccountKeys map[string][]byte `json:"accountKeys,omitempty"` // addr -> ed25519 pubkey (32 bytes)
	NonceMax    map[string]uint64 `json:"nonceMax,omitempty"`    // signer -> last accepted tx.nonce (u64), for replay protection

	// Assets backs the membership/eligibility gate in dev deployments:
	// asset id -> holder -> amount. Production deployments answer the gate
	// from an external token registry instead.
	Assets map[string]map[string]uint64 `json:"assets,omitempty"`

	Tables map[uint64]*Table `json:"tables"`

	// Collaborator is the registered confidential-computation service.
	// Every mpc/* callback must be signed by its key.
	Collaborator *Collaborator `json:"collaborator,omitempty"`

	// Results is the immutable hand-result archive, keyed "tableId/handId".
	Results map[string]*HandResult `json:"results,omitempty"`
}

// Collaborator identifies the external confidential computation service
// (the entity that shuffles, deals and evaluates under encryption).
type Collaborator struct {
	Name   string `json:"name"`
	PubKey []byte `json:"pubKey"` // 32-byte ed25519 public key
}

func NewState() *State {
	return &State{
		Height:      0,
		NextTableID: 1,
		Accounts:    map[string]uint64{},
		AccountKeys: map[string][]byte{},
		NonceMax:    map[string]uint64{},
		Assets:      map[string]map[string]uint64{},
		Tables:      map[uint64]*Table{},
		Results:     map[string]*HandResult{},
	}
}

func Load(home string) (*State, error) {
	path := filepath.Join(home, "state.json")
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewState(), nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.normalize()
	return &st, nil
}

func (s *State) Save(home string) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return fmt.Errorf("mkdir home: %w", err)
	}
	path := filepath.Join(home, "state.json")
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// Clone returns a deep copy of state suitable for staged tx execution.
func (s *State) Clone() (*State, error) {
	if s == nil {
		return nil, fmt.Errorf("state is nil")
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode state clone: %w", err)
	}
	var out State
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode state clone: %w", err)
	}
	out.normalize()
	return &out, nil
}

func (s *State) normalize() {
	if s.Accounts == nil {
		s.Accounts = map[string]uint64{}
	}
	if s.AccountKeys == nil {
		s.AccountKeys = map[string][]byte{}
	}
	if s.NonceMax == nil {
		s.NonceMax = map[string]uint64{}
	}
	if s.Assets == nil {
		s.Assets = map[string]map[string]uint64{}
	}
	if s.Tables == nil {
		s.Tables = map[uint64]*Table{}
	}
	if s.Results == nil {
		s.Results = map[string]*HandResult{}
	}
	if s.NextTableID == 0 {
		s.NextTableID = 1
	}
}

func (s *State) AppHash() []byte {
	// Deterministic JSON hash: marshal with stable key ordering by serializing
	// a normalized view.
	//
	// Note: encoding/json does NOT guarantee map key order, so we manually
	// normalize maps into slices.
	type accountKV struct {
		Addr    string `json:"addr"`
		Balance uint64 `json:"balance"`
	}
	type accountKeyKV struct {
		Addr   string `json:"addr"`
		PubKey []byte `json:"pubKey"`
	}
	type nonceKV struct {
		Signer string `json:"signer"`
		Nonce  uint64 `json:"nonce"`
	}
	type assetKV struct {
		Asset   string `json:"asset"`
		Holder  string `json:"holder"`
		Balance uint64 `json:"balance"`
	}
	type tableKV struct {
		ID    uint64 `json:"id"`
		Table *Table `json:"table"`
	}
	type resultKV struct {
		Key    string      `json:"key"`
		Result *HandResult `json:"result"`
	}

	accounts := make([]accountKV, 0, len(s.Accounts))
	for k, v := range s.Accounts {
		accounts = append(accounts, accountKV{Addr: k, Balance: v})
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Addr < accounts[j].Addr })

	accountKeys := make([]accountKeyKV, 0, len(s.AccountKeys))
	for k, v := range s.AccountKeys {
		accountKeys = append(accountKeys, accountKeyKV{Addr: k, PubKey: v})
	}
	sort.Slice(accountKeys, func(i, j int) bool { return accountKeys[i].Addr < accountKeys[j].Addr })

	nonces := make([]nonceKV, 0, len(s.NonceMax))
	for k, v := range s.NonceMax {
		nonces = append(nonces, nonceKV{Signer: k, Nonce: v})
	}
	sort.Slice(nonces, func(i, j int) bool { return nonces[i].Signer < nonces[j].Signer })

	assets := make([]assetKV, 0, len(s.Assets))
	for asset, holders := range s.Assets {
		for holder, bal := range holders {
			assets = append(assets, assetKV{Asset: asset, Holder: holder, Balance: bal})
		}
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].Asset != assets[j].Asset {
			return assets[i].Asset < assets[j].Asset
		}
		return assets[i].Holder < assets[j].Holder
	})

	tables := make([]tableKV, 0, len(s.Tables))
	for id, t := range s.Tables {
		tables = append(tables, tableKV{ID: id, Table: t})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].ID < tables[j].ID })

	results := make([]resultKV, 0, len(s.Results))
	for k, r := range s.Results {
		results = append(results, resultKV{Key: k, Result: r})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Key < results[j].Key })

	normalized := struct {
		Height       int64          `json:"height"`
		NextTableID  uint64         `json:"nextTableId"`
		Accounts     []accountKV    `json:"accounts"`
		AccountKeys  []accountKeyKV `json:"accountKeys,omitempty"`
		NonceMax     []nonceKV      `json:"nonceMax,omitempty"`
		Assets       []assetKV      `json:"assets,omitempty"`
		Tables       []tableKV      `json:"tables"`
		Collaborator *Collaborator  `json:"collaborator,omitempty"`
		Results      []resultKV     `json:"results,omitempty"`
	}{
		Height:       s.Height,
		NextTableID:  s.NextTableID,
		Accounts:     accounts,
		AccountKeys:  accountKeys,
		NonceMax:     nonces,
		Assets:       assets,
		Tables:       tables,
		Collaborator: s.Collaborator,
		Results:      results,
	}

	b, _ := json.Marshal(normalized)
	sum := sha256.Sum256(b)
	return sum[:]
}

// ---- Bank ----

func (s *State) Balance(addr string) uint64 {
	return s.Accounts[addr]
}

func (s *State) Credit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal > ^uint64(0)-amount {
		return fmt.Errorf("balance overflow: have=%d add=%d", bal, amount)
	}
	s.Accounts[addr] = bal + amount
	return nil
}

func (s *State) Debit(addr string, amount uint64) error {
	bal := s.Accounts[addr]
	if bal < amount {
		return fmt.Errorf("insufficient funds: have=%d need=%d", bal, amount)
	}
	s.Accounts[addr] = bal - amount
	return nil
}

func (s *State) AssetBalance(asset, holder string) uint64 {
	if s.Assets == nil {
		return 0
	}
	return s.Assets[asset][holder]
}

// ---- Poker ----

type TableParams struct {
	MinPlayers uint8  `json:"minPlayers"`
	MaxPlayers uint8  `json:"maxPlayers"`
	SmallBlind uint64 `json:"smallBlind"`
	BigBlind   uint64 `json:"bigBlind"`
	MinBuyIn   uint64 `json:"minBuyIn"`
	MaxBuyIn   uint64 `json:"maxBuyIn"`

	// ActionTimeoutSecs is the base per-action think time; TimeBankSecs is the
	// per-seat reserve drawn down once the base is exceeded. Enforced via
	// poker/tick + hand.actionDeadline.
	ActionTimeoutSecs uint64 `json:"actionTimeoutSecs,omitempty"`
	TimeBankSecs      uint64 `json:"timeBankSecs,omitempty"`

	// Optional membership gate: joining requires holding at least
	// tokenGateAmount of tokenGateAsset (answered by the eligibility gate).
	TokenGateAsset  string `json:"tokenGateAsset,omitempty"`
	TokenGateAmount uint64 `json:"tokenGateAmount,omitempty"`

	// RedactBetAmounts keeps wagered amounts out of the public audit trail.
	RedactBetAmounts bool `json:"redactBetAmounts,omitempty"`
}

type Table struct {
	ID      uint64      `json:"id"`
	Creator string      `json:"creator"`
	Label   string      `json:"label,omitempty"`
	Params  TableParams `json:"params"`

	Seats [MaxSeats]*Seat `json:"seats"`

	NextHandID uint64 `json:"nextHandId"`
	ButtonSeat int    `json:"buttonSeat"`
	Hand       *Hand  `json:"hand,omitempty"`
}

// Phase reports the table's lifecycle phase; a table with no hand (or only a
// completed one being superseded) is Waiting only before its first hand.
func (t *Table) Phase() HandPhase {
	if t.Hand == nil {
		return PhaseWaiting
	}
	return t.Hand.Phase
}

// Seat holds the durable per-player table state. The stack is the
// authoritative bankroll and persists across hands; all per-hand state lives
// on Hand, keyed by seat index.
type Seat struct {
	Player string `json:"player"`
	Stack  uint64 `json:"stack"`
}

type HandPhase string

const (
	PhaseWaiting  HandPhase = "waiting"
	PhasePreFlop  HandPhase = "preflop"
	PhaseFlop     HandPhase = "flop"
	PhaseTurn     HandPhase = "turn"
	PhaseRiver    HandPhase = "river"
	PhaseShowdown HandPhase = "showdown"
	PhaseComplete HandPhase = "complete"
)

// PhaseIndex orders phases for the monotonic-advance invariant.
func PhaseIndex(p HandPhase) int {
	switch p {
	case PhaseWaiting:
		return 0
	case PhasePreFlop:
		return 1
	case PhaseFlop:
		return 2
	case PhaseTurn:
		return 3
	case PhaseRiver:
		return 4
	case PhaseShowdown:
		return 5
	case PhaseComplete:
		return 6
	default:
		return -1
	}
}

type RequestKind string

const (
	RequestShuffle         RequestKind = "shuffle"
	RequestDealHole        RequestKind = "deal_hole"
	RequestRevealCommunity RequestKind = "reveal_community"
	RequestEvaluate        RequestKind = "evaluate"
)

// PendingRequest is the explicit awaiting-callback sub-state for an in-flight
// confidential-computation request. While one is outstanding, every other
// mutating operation on the table is rejected; the matching callback (same
// kind and seq) is the only way forward.
type PendingRequest struct {
	Kind     RequestKind `json:"kind"`
	Seq      uint64      `json:"seq"`
	IssuedAt int64       `json:"issuedAt"`

	// Slots are the community card indices expected by a reveal request.
	Slots []uint8 `json:"slots,omitempty"`
}

// ConfidentialHand binds a seat to two hidden cards for one hand. The core
// never reads the card values; it stores the ciphertexts and the
// collaborator's binding commitment. Exactly one record exists per
// (seat, hand); it is immutable and superseded by the next hand.
type ConfidentialHand struct {
	Seat           int    `json:"seat"`
	HandNumber     uint64 `json:"handNumber"`
	EncryptedCard1 []byte `json:"encryptedCard1"`
	EncryptedCard2 []byte `json:"encryptedCard2"`
	Commitment     []byte `json:"commitment"` // 32 bytes, binds the cards to the shuffled deck
	Cursor         uint8  `json:"cursor"`     // deck cursor after this seat was dealt
}

type Pot struct {
	Amount        uint64 `json:"amount"`
	EligibleSeats []int  `json:"eligibleSeats"`
}

// HandResult is the attested showdown outcome, created exactly once per hand.
type HandResult struct {
	TableID    uint64 `json:"tableId"`
	HandNumber uint64 `json:"handNumber"`

	Winners      []int    `json:"winners"`
	Payouts      []uint64 `json:"payouts"`
	Category     uint8    `json:"category"`
	Community    [5]uint8 `json:"community"`
	Participants []int    `json:"participants"` // every in-hand seat, winners and losers

	Proof     []byte `json:"proof,omitempty"`
	ProofHash []byte `json:"proofHash,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Reason    string `json:"reason"` // "showdown" | "all-folded" | "aborted"
}

type Hand struct {
	HandID uint64    `json:"handId"`
	Phase  HandPhase `json:"phase"`

	// Halted is set when a callback's cryptographic proof fails verification.
	// The hand can then only be aborted (refund) by external intervention.
	Halted bool `json:"halted,omitempty"`

	// Positional state (0..MaxSeats-1).
	ButtonSeat     int `json:"buttonSeat"`
	SmallBlindSeat int `json:"smallBlindSeat"`
	BigBlindSeat   int `json:"bigBlindSeat"`

	// CurrentTurn is -1 when no seat is required to act.
	CurrentTurn int `json:"currentTurn"`

	// ActionDeadline is the unix second at/after which poker/tick may apply
	// the default action (check if free, else fold). 0 means "unset".
	ActionDeadline int64 `json:"actionDeadline,omitempty"`
	LastActionAt   int64 `json:"lastActionAt,omitempty"`

	Pot          uint64 `json:"pot"`
	CurrentBet   uint64 `json:"currentBet"`
	MinRaise     uint64 `json:"minRaise"`
	PlayersActed uint8  `json:"playersActed"`
	PlayersToAct uint8  `json:"playersToAct"`

	StreetBet        [MaxSeats]uint64 `json:"streetBet"`
	TotalContributed [MaxSeats]uint64 `json:"totalContributed"`
	InHand           [MaxSeats]bool   `json:"inHand"`
	Folded           [MaxSeats]bool   `json:"folded"`
	AllIn            [MaxSeats]bool   `json:"allIn"`
	HasActed         [MaxSeats]bool   `json:"hasActed"`
	TimeBank         [MaxSeats]int64  `json:"timeBank"`

	// Community card slots; NoCard marks a slot not yet revealed.
	Community [BoardSize]uint8 `json:"community"`

	// Confidential-deck bookkeeping. The commitment is opaque; the cursor
	// counts cards consumed from the committed deck and only increases.
	DeckCommitment []byte `json:"deckCommitment,omitempty"`
	ComputationID  uint64 `json:"computationId,omitempty"`
	DeckCursor     uint8  `json:"deckCursor"`

	// Populated at showdown (purely derived from TotalContributed+Folded).
	Pots []Pot `json:"pots,omitempty"`

	Pending *PendingRequest `json:"pending,omitempty"`
	NextSeq uint64          `json:"nextSeq"`

	ConfidentialHands [MaxSeats]*ConfidentialHand `json:"confidentialHands,omitempty"`

	Result *HandResult `json:"result,omitempty"`
}

// NewHand returns a fresh hand with all community slots unrevealed and every
// seat's time bank charged to the table's configured reserve.
func NewHand(handID uint64, timeBankSecs uint64) *Hand {
	h := &Hand{
		HandID:      handID,
		Phase:       PhasePreFlop,
		CurrentTurn: -1,
		NextSeq:     1,
	}
	for i := 0; i < BoardSize; i++ {
		h.Community[i] = NoCard
	}
	for i := 0; i < MaxSeats; i++ {
		h.TimeBank[i] = int64(timeBankSecs)
	}
	return h
}

// ResultKey addresses the immutable archive deterministically from
// (table id, hand number).
func ResultKey(tableID, handID uint64) string {
	return fmt.Sprintf("%d/%d", tableID, handID)
}
