package codec

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// TxAuthDomain separates tx signatures from every other signature scheme in
// the system.
const TxAuthDomain = "ep/tx/v1"

// TxSignBytes is the canonical message a tx signature covers:
// DOMAIN || 0x00 || type || 0x00 || nonce || 0x00 || signer || 0x00 || sha256(value).
// Signers (clients, the collaborator) and the verifier must agree on it
// byte for byte, so it lives with the encoding.
func TxSignBytes(typ string, value []byte, nonce string, signer string) []byte {
	sum := sha256.Sum256(value)
	out := make([]byte, 0, len(TxAuthDomain)+1+len(typ)+1+len(nonce)+1+len(signer)+1+sha256.Size)
	out = append(out, []byte(TxAuthDomain)...)
	out = append(out, 0)
	out = append(out, []byte(typ)...)
	out = append(out, 0)
	out = append(out, []byte(nonce)...)
	out = append(out, 0)
	out = append(out, []byte(signer)...)
	out = append(out, 0)
	out = append(out, sum[:]...)
	return out
}

// TxEnvelope is the v1 transaction container.
//
// CometBFT transactions are opaque bytes. For v1 devnet we use JSON-encoded
// txs to move fast; this is NOT the final protocol encoding.
type TxEnvelope struct {
	// Basic routing.
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`

	// Tx auth:
	// - Nonce: included in the signed message for replay protection (must increase per signer).
	// - Signer: logical signer id (the collaborator name for mpc/* callbacks).
	// - Sig: Ed25519 signature over (type, nonce, signer, sha256(value)).
	Nonce  string `json:"nonce,omitempty"`
	Signer string `json:"signer,omitempty"`
	Sig    []byte `json:"sig,omitempty"`
}

func DecodeTxEnvelope(txBytes []byte) (TxEnvelope, error) {
	var env TxEnvelope
	if err := json.Unmarshal(txBytes, &env); err != nil {
		return TxEnvelope{}, fmt.Errorf("invalid tx json: %w", err)
	}
	if env.Type == "" {
		return TxEnvelope{}, fmt.Errorf("missing tx.type")
	}
	return env, nil
}

// ---- Bank ----

type BankMintTx struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type BankSendTx struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// Dev-only: funds the membership-gate asset map directly. Production
// deployments answer gate checks from an external token registry.
type BankMintAssetTx struct {
	Asset  string `json:"asset"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

// ---- Auth ----

// Account pubkey registration for tx authentication.
type AuthRegisterAccountTx struct {
	Account string `json:"account"`
	PubKey  []byte `json:"pubKey"` // base64 (32 bytes)
}

// ---- MPC collaborator ----

// Binds the confidential-computation service identity. All mpc/* callbacks
// must afterwards be signed by this key.
type MPCRegisterTx struct {
	Name   string `json:"name"`
	PubKey []byte `json:"pubKey"` // base64 (32 bytes)
}

// DeckReady answers a shuffle request: the collaborator committed to a
// freshly shuffled encrypted deck.
type MPCDeckReadyTx struct {
	TableID        uint64 `json:"tableId"`
	Seq            uint64 `json:"seq"`
	ComputationID  uint64 `json:"computationId"`
	DeckCommitment []byte `json:"deckCommitment"` // base64 (32 bytes)
}

// DealtHand is one seat's two hole-card ciphertexts plus the commitment
// binding them to the committed deck.
type DealtHand struct {
	Seat           uint8  `json:"seat"`
	EncryptedCard1 []byte `json:"encryptedCard1"`
	EncryptedCard2 []byte `json:"encryptedCard2"`
	Commitment     []byte `json:"commitment"` // base64 (32 bytes)
}

// CardsDealt answers a deal_hole request.
type MPCCardsDealtTx struct {
	TableID uint64      `json:"tableId"`
	Seq     uint64      `json:"seq"`
	Cursor  uint8       `json:"cursor"` // deck cursor after dealing
	Hands   []DealtHand `json:"hands"`
}

// CommunityCards answers a reveal_community request with plaintext card
// values for the requested board slots.
type MPCCommunityCardsTx struct {
	TableID     uint64  `json:"tableId"`
	Seq         uint64  `json:"seq"`
	CardIndices []uint8 `json:"cardIndices"` // board slots 0..4
	CardValues  []uint8 `json:"cardValues"`  // 0..51
	Proof       []byte  `json:"proof,omitempty"`
}

// ShowdownResult answers an evaluate request.
type MPCShowdownResultTx struct {
	TableID   uint64   `json:"tableId"`
	Seq       uint64   `json:"seq"`
	Winners   []int    `json:"winners"`
	Payouts   []uint64 `json:"payouts"`
	Category  uint8    `json:"category"`
	Proof     []byte   `json:"proof,omitempty"`
	ProofHash []byte   `json:"proofHash,omitempty"` // base64 (32 bytes)
}

// ---- Poker ----

type PokerCreateTableTx struct {
	Creator    string `json:"creator"`
	SmallBlind uint64 `json:"smallBlind"`
	BigBlind   uint64 `json:"bigBlind"` // must equal 2*smallBlind
	MinBuyIn   uint64 `json:"minBuyIn"`
	MaxBuyIn   uint64 `json:"maxBuyIn"`
	MinPlayers uint8  `json:"minPlayers,omitempty"` // default 2
	MaxPlayers uint8  `json:"maxPlayers,omitempty"` // default 6
	ActionTO   uint64 `json:"actionTimeoutSecs,omitempty"`
	TimeBank   uint64 `json:"timeBankSecs,omitempty"`
	GateAsset  string `json:"tokenGateAsset,omitempty"`
	GateAmount uint64 `json:"tokenGateAmount,omitempty"`
	RedactBets bool   `json:"redactBetAmounts,omitempty"`
	TableLabel string `json:"label,omitempty"`
}

type PokerJoinTableTx struct {
	Player  string `json:"player"`
	TableID uint64 `json:"tableId"`
	Seat    uint8  `json:"seat"`
	BuyIn   uint64 `json:"buyIn"`
}

type PokerLeaveTableTx struct {
	Player  string `json:"player"`
	TableID uint64 `json:"tableId"`
}

type PokerStartHandTx struct {
	Caller  string `json:"caller"`
	TableID uint64 `json:"tableId"`
}

type PokerActTx struct {
	Player  string `json:"player"`
	TableID uint64 `json:"tableId"`
	Action  string `json:"action"`           // fold|check|call|raise|allin
	Amount  uint64 `json:"amount,omitempty"` // for raise only: the raise increment above the current bet
}

// AdvancePhase moves a closed betting round to the next street and issues the
// matching community-card reveal request.
type PokerAdvancePhaseTx struct {
	Caller  string `json:"caller"`
	TableID uint64 `json:"tableId"`
}

// TriggerShowdown moves a closed river round into showdown and issues the
// evaluate request.
type PokerTriggerShowdownTx struct {
	Caller  string `json:"caller"`
	TableID uint64 `json:"tableId"`
}

type PokerTickTx struct {
	TableID uint64 `json:"tableId"`
}

// AbortHand refunds all contributions and discards the hand. Creator-gated;
// the recovery path for halted hands and stuck collaborators.
type PokerAbortHandTx struct {
	Caller  string `json:"caller"`
	TableID uint64 `json:"tableId"`
}

// VerifyBluff checks a voluntary post-hand hole-card opening against the
// stored commitment for that (seat, hand).
type PokerVerifyBluffTx struct {
	Player  string `json:"player"`
	TableID uint64 `json:"tableId"`
	HandID  uint64 `json:"handId"`
	Seat    uint8  `json:"seat"`
	Card1   uint8  `json:"card1"`
	Card2   uint8  `json:"card2"`
	Proof   []byte `json:"proof"`
}
