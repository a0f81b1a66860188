// Package mpcstub is an in-process stand-in for the external confidential
// computation service. It shuffles deterministically, keeps the plaintext
// deck to itself, and answers the chain's requests with signed callback txs,
// exactly the way a real collaborator would over the wire. Devnet and tests
// run full hands against it.
package mpcstub

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	poker "github.com/paulhankin/poker"

	"encryptedpoker/internal/attest"
	"encryptedpoker/internal/codec"
	"encryptedpoker/internal/state"
)

type Service struct {
	name  string
	priv  ed25519.PrivateKey
	pub   ed25519.PublicKey
	nonce uint64

	// Plaintext decks per "tableId/handId". Never leaves this package.
	decks map[string][]uint8
}

func NewService(name string) (*Service, error) {
	if name == "" {
		return nil, fmt.Errorf("missing collaborator name")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Service{
		name:  name,
		priv:  priv,
		pub:   pub,
		decks: map[string][]uint8{},
	}, nil
}

func (s *Service) Name() string   { return s.name }
func (s *Service) PubKey() []byte { return append([]byte(nil), s.pub...) }

func (s *Service) signedTx(typ string, v any) ([]byte, error) {
	value, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s.nonce++
	nonce := strconv.FormatUint(s.nonce, 10)
	sig := ed25519.Sign(s.priv, codec.TxSignBytes(typ, value, nonce, s.name))
	return json.Marshal(codec.TxEnvelope{
		Type:   typ,
		Value:  value,
		Nonce:  nonce,
		Signer: s.name,
		Sig:    sig,
	})
}

// RegisterTx binds this service's identity on-chain.
func (s *Service) RegisterTx() ([]byte, error) {
	return s.signedTx("mpc/register", codec.MPCRegisterTx{
		Name:   s.name,
		PubKey: s.PubKey(),
	})
}

// Respond answers the table's outstanding request, if any, with zero or more
// signed callback txs ready for delivery.
func (s *Service) Respond(st *state.State, tableID uint64) ([][]byte, error) {
	t := st.Tables[tableID]
	if t == nil || t.Hand == nil || t.Hand.Pending == nil {
		return nil, nil
	}
	h := t.Hand
	key := state.ResultKey(tableID, h.HandID)

	switch h.Pending.Kind {
	case state.RequestShuffle:
		deck := s.shuffledDeck(tableID, h.HandID)
		s.decks[key] = deck
		tx, err := s.signedTx("mpc/deck_ready", codec.MPCDeckReadyTx{
			TableID:        tableID,
			Seq:            h.Pending.Seq,
			ComputationID:  h.HandID,
			DeckCommitment: deckCommitment(deck),
		})
		if err != nil {
			return nil, err
		}
		return [][]byte{tx}, nil

	case state.RequestDealHole:
		deck := s.decks[key]
		if deck == nil {
			return nil, fmt.Errorf("no deck for %s", key)
		}
		commit := deckCommitment(deck)
		cursor := h.DeckCursor
		hands := []codec.DealtHand{}
		for seat := 0; seat < state.MaxSeats; seat++ {
			if !h.InHand[seat] {
				continue
			}
			c1, c2 := deck[cursor], deck[cursor+1]
			cursor += 2
			hc := holeCommitment(commit, seat, c1, c2)
			hands = append(hands, codec.DealtHand{
				Seat:           uint8(seat),
				EncryptedCard1: opaqueCiphertext(hc, 1),
				EncryptedCard2: opaqueCiphertext(hc, 2),
				Commitment:     hc,
			})
		}
		tx, err := s.signedTx("mpc/cards_dealt", codec.MPCCardsDealtTx{
			TableID: tableID,
			Seq:     h.Pending.Seq,
			Cursor:  cursor,
			Hands:   hands,
		})
		if err != nil {
			return nil, err
		}
		return [][]byte{tx}, nil

	case state.RequestRevealCommunity:
		deck := s.decks[key]
		if deck == nil {
			return nil, fmt.Errorf("no deck for %s", key)
		}
		slots := h.Pending.Slots
		values := make([]uint8, len(slots))
		for i := range slots {
			values[i] = deck[int(h.DeckCursor)+i]
		}
		proof := attest.SignStatement(s.priv, attest.Statement{
			Domain:     attest.DomainReveal,
			Commitment: h.DeckCommitment,
			Payload:    attest.RevealPayload(tableID, h.HandID, slots, values),
		})
		tx, err := s.signedTx("mpc/community_cards", codec.MPCCommunityCardsTx{
			TableID:     tableID,
			Seq:         h.Pending.Seq,
			CardIndices: slots,
			CardValues:  values,
			Proof:       proof,
		})
		if err != nil {
			return nil, err
		}
		return [][]byte{tx}, nil

	case state.RequestEvaluate:
		winners, payouts, category, err := s.evaluate(t, h, key)
		if err != nil {
			return nil, err
		}
		proof := attest.SignStatement(s.priv, attest.Statement{
			Domain:     attest.DomainResult,
			Commitment: h.DeckCommitment,
			Payload:    attest.ResultPayload(tableID, h.HandID, winners, payouts, category),
		})
		proofHash := sha256.Sum256(proof)
		tx, err := s.signedTx("mpc/showdown_result", codec.MPCShowdownResultTx{
			TableID:   tableID,
			Seq:       h.Pending.Seq,
			Winners:   winners,
			Payouts:   payouts,
			Category:  category,
			Proof:     proof,
			ProofHash: proofHash[:],
		})
		if err != nil {
			return nil, err
		}
		return [][]byte{tx}, nil
	}
	return nil, fmt.Errorf("unknown request kind %q", h.Pending.Kind)
}

// HoleCards returns a seat's plaintext hole cards plus a proof for
// poker/verify_bluff. Only the owner would call this on a real deployment.
func (s *Service) HoleCards(st *state.State, tableID uint64, seat int) (uint8, uint8, []byte, error) {
	t := st.Tables[tableID]
	if t == nil || t.Hand == nil {
		return 0, 0, nil, fmt.Errorf("no hand on table %d", tableID)
	}
	h := t.Hand
	ch := h.ConfidentialHands[seat]
	if ch == nil {
		return 0, 0, nil, fmt.Errorf("no confidential hand for seat %d", seat)
	}
	deck := s.decks[state.ResultKey(tableID, h.HandID)]
	if deck == nil {
		return 0, 0, nil, fmt.Errorf("no deck for table %d hand %d", tableID, h.HandID)
	}
	c1, c2 := deck[ch.Cursor-2], deck[ch.Cursor-1]
	proof := attest.SignStatement(s.priv, attest.Statement{
		Domain:     attest.DomainHole,
		Commitment: ch.Commitment,
		Payload:    attest.HolePayload(tableID, h.HandID, seat, c1, c2),
	})
	return c1, c2, proof, nil
}

// shuffledDeck derives a per-hand permutation from a hash chain. The
// determinism is a test convenience; real collaborators sample entropy
// inside the enclave.
func (s *Service) shuffledDeck(tableID, handID uint64) []uint8 {
	seed := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", s.name, tableID, handID)))
	deck := make([]uint8, state.DeckSize)
	for i := range deck {
		deck[i] = uint8(i)
	}
	stream := seed
	ctr := uint64(0)
	nextU64 := func() uint64 {
		var buf [40]byte
		copy(buf[:32], stream[:])
		binary.BigEndian.PutUint64(buf[32:], ctr)
		ctr++
		stream = sha256.Sum256(buf[:])
		return binary.BigEndian.Uint64(stream[:8])
	}
	for i := len(deck) - 1; i > 0; i-- {
		j := int(nextU64() % uint64(i+1))
		deck[i], deck[j] = deck[j], deck[i]
	}
	return deck
}

func deckCommitment(deck []uint8) []byte {
	sum := sha256.Sum256(deck)
	return sum[:]
}

func holeCommitment(deckCommit []byte, seat int, c1, c2 uint8) []byte {
	msg := make([]byte, 0, len(deckCommit)+3)
	msg = append(msg, deckCommit...)
	msg = append(msg, byte(seat), c1, c2)
	sum := sha256.Sum256(msg)
	return sum[:]
}

// opaqueCiphertext stands in for a real encryption of a hole card. The chain
// treats it as opaque bytes either way.
func opaqueCiphertext(commitment []byte, idx byte) []byte {
	sum := sha256.Sum256(append(append([]byte{}, commitment...), idx))
	return sum[:]
}

// evaluate ranks every live seat's best 7-card hand and distributes each pot
// among its strongest eligible seats, remainder to the lowest seat index.
func (s *Service) evaluate(t *state.Table, h *state.Hand, key string) ([]int, []uint64, uint8, error) {
	deck := s.decks[key]
	if deck == nil {
		return nil, nil, 0, fmt.Errorf("no deck for %s", key)
	}
	for i := 0; i < state.BoardSize; i++ {
		if h.Community[i] == state.NoCard {
			return nil, nil, 0, fmt.Errorf("board slot %d not revealed", i)
		}
	}

	scores := map[int]int16{}
	raw7 := map[int][7]uint8{}
	for seat := 0; seat < state.MaxSeats; seat++ {
		if !h.InHand[seat] || h.Folded[seat] {
			continue
		}
		ch := h.ConfidentialHands[seat]
		if ch == nil {
			return nil, nil, 0, fmt.Errorf("seat %d missing confidential hand", seat)
		}
		c1, c2 := deck[ch.Cursor-2], deck[ch.Cursor-1]
		var raw [7]uint8
		var seven [7]poker.Card
		for i := 0; i < state.BoardSize; i++ {
			raw[i] = h.Community[i]
		}
		raw[5], raw[6] = c1, c2
		for i, v := range raw {
			pc, err := toPokerCard(v)
			if err != nil {
				return nil, nil, 0, err
			}
			seven[i] = pc
		}
		scores[seat] = poker.Eval7(&seven)
		raw7[seat] = raw
	}

	payoutBySeat := map[int]uint64{}
	var bestOverall int16
	var bestSeat = -1
	for _, pot := range h.Pots {
		var potBest int16
		potWinners := []int{}
		for _, seat := range pot.EligibleSeats {
			sc, ok := scores[seat]
			if !ok {
				continue
			}
			if len(potWinners) == 0 || sc > potBest {
				potBest = sc
				potWinners = []int{seat}
			} else if sc == potBest {
				potWinners = append(potWinners, seat)
			}
		}
		if len(potWinners) == 0 {
			return nil, nil, 0, fmt.Errorf("pot with no eligible live seat")
		}
		sort.Ints(potWinners)
		share := pot.Amount / uint64(len(potWinners))
		remainder := pot.Amount % uint64(len(potWinners))
		for i, w := range potWinners {
			amt := share
			if i == 0 {
				amt += remainder
			}
			payoutBySeat[w] += amt
		}
		if bestSeat < 0 || potBest > bestOverall {
			bestOverall = potBest
			bestSeat = potWinners[0]
		}
	}

	winners := make([]int, 0, len(payoutBySeat))
	for seat := range payoutBySeat {
		winners = append(winners, seat)
	}
	sort.Ints(winners)
	payouts := make([]uint64, len(winners))
	for i, w := range winners {
		payouts[i] = payoutBySeat[w]
	}

	var category uint8
	if bestSeat >= 0 {
		category = classify7(raw7[bestSeat])
	}
	return winners, payouts, category, nil
}

// Card encoding on the wire: 0..51, suit = value/13, rank index = value%13
// (0 = two .. 12 = ace).
func toPokerCard(v uint8) (poker.Card, error) {
	var zero poker.Card
	if v >= state.DeckSize {
		return zero, fmt.Errorf("card value %d out of range", v)
	}
	suits := [4]poker.Suit{poker.Club, poker.Diamond, poker.Heart, poker.Spade}
	rankIdx := int(v % 13)
	var r poker.Rank
	if rankIdx == 12 {
		r = poker.Rank(1) // ace
	} else {
		r = poker.Rank(rankIdx + 2)
	}
	return poker.MakeCard(suits[v/13], r)
}
