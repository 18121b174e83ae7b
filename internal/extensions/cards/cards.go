// Package cards drives card games on a game instance: one deck per
// instance, dealt into per-player hands. The deck defaults to a standard 52
// card deck where each card is a [value, suit] pair (values 1-13; suits
// Hearts, Spades, Clubs, Diamonds), and can be replaced once, before any
// other card operation runs.
//
// Cards are stored and compared as compact JSON, so a deck can hold any
// JSON-serializable card shape. Whenever a hand changes its owner receives a
// crd_hand message with the full new hand, letting clients recover state
// after losing their session.
package cards

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/store"
)

const (
	deckKey  = "crd_deck"
	indexKey = "crd_deck_index"
	handsKey = "crd_hands"

	// HandMessageType tags the mailbox messages carrying hand updates.
	HandMessageType = "crd_hand"
)

// ErrEmptyDeck reports a deal or draw that ran past the end of the deck.
var ErrEmptyDeck = errors.New("deck is empty")

var suits = []string{"Hearts", "Spades", "Clubs", "Diamonds"}

// DefaultDeck returns the standard 52 card deck, unshuffled.
func DefaultDeck() []interface{} {
	deck := make([]interface{}, 0, 52)
	for value := 1; value <= 13; value++ {
		for _, suit := range suits {
			deck = append(deck, []interface{}{value, suit})
		}
	}
	return deck
}

// Canonical encodes a card as compact JSON, the form cards are stored and
// compared in.
func Canonical(card interface{}) (json.RawMessage, error) {
	raw, ok := card.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(card)
		if err != nil {
			return nil, fmt.Errorf("encode card: %w", err)
		}
		raw = b
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, fmt.Errorf("compact card: %w", err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

func canonicalAll(cardList []interface{}) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(cardList))
	for _, card := range cardList {
		c, err := Canonical(card)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Deck returns the instance's deck, installing the default deck on first
// use.
func Deck(inst *models.GameInstance) ([]json.RawMessage, error) {
	if !inst.Ext.Has(indexKey) {
		if err := inst.Ext.Set(indexKey, 0); err != nil {
			return nil, err
		}
	}
	if !inst.Ext.Has(deckKey) {
		deck, err := canonicalAll(DefaultDeck())
		if err != nil {
			return nil, err
		}
		if err := inst.Ext.Set(deckKey, deck); err != nil {
			return nil, err
		}
		return deck, nil
	}
	var deck []json.RawMessage
	if _, err := inst.Ext.Get(deckKey, &deck); err != nil {
		return nil, err
	}
	return deck, nil
}

// SetDeck replaces the default deck. Only allowed before any other card
// operation has touched this instance; the deck then lasts for the life of
// the instance.
func SetDeck(inst *models.GameInstance, cardList []interface{}) (int, error) {
	if inst.Ext.Has(deckKey) {
		return 0, gameerr.New(gameerr.InvalidArgument,
			"deck can only be set as the first operation in a card game")
	}
	deck, err := canonicalAll(cardList)
	if err != nil {
		return 0, err
	}
	if err := inst.Ext.Set(deckKey, deck); err != nil {
		return 0, err
	}
	if err := inst.Ext.Set(indexKey, 0); err != nil {
		return 0, err
	}
	return len(deck), nil
}

// HasDeck reports whether a deck has already been installed on the
// instance, by SetDeck or by first use of the default deck.
func HasDeck(inst *models.GameInstance) bool {
	return inst.Ext.Has(deckKey)
}

// CardsLeft reports how many cards can still be dealt before the deck is
// exhausted, or -1 while the instance has no deck state yet.
func CardsLeft(inst *models.GameInstance) (int, error) {
	if !inst.Ext.Has(deckKey) {
		return -1, nil
	}
	var deck []json.RawMessage
	if _, err := inst.Ext.Get(deckKey, &deck); err != nil {
		return 0, err
	}
	index, err := deckIndex(inst)
	if err != nil {
		return 0, err
	}
	return len(deck) - index, nil
}

func deckIndex(inst *models.GameInstance) (int, error) {
	var index int
	if _, err := inst.Ext.Get(indexKey, &index); err != nil {
		return 0, err
	}
	return index, nil
}

// nextCard removes the top card of the deck.
func nextCard(inst *models.GameInstance) (json.RawMessage, error) {
	left, err := CardsLeft(inst)
	if err != nil {
		return nil, err
	}
	if left == 0 {
		return nil, ErrEmptyDeck
	}
	deck, err := Deck(inst)
	if err != nil {
		return nil, err
	}
	index, err := deckIndex(inst)
	if err != nil {
		return nil, err
	}
	card := deck[index]
	if err := inst.Ext.Set(indexKey, index+1); err != nil {
		return nil, err
	}
	return card, nil
}

// Shuffle reshuffles the full deck, making every card (including discards)
// dealable again, and clears all hands. Each player is messaged their now
// empty hand.
func Shuffle(tx store.Tx, inst *models.GameInstance) (int, error) {
	deck, err := Deck(inst)
	if err != nil {
		return 0, err
	}
	rand.Shuffle(len(deck), func(i, j int) {
		deck[i], deck[j] = deck[j], deck[i]
	})
	if err := inst.Ext.Set(deckKey, deck); err != nil {
		return 0, err
	}
	if err := inst.Ext.Set(indexKey, 0); err != nil {
		return 0, err
	}
	if err := setHands(tx, inst, emptyHands(inst), true); err != nil {
		return 0, err
	}
	return len(deck), nil
}

// Hands returns the hand of every player, empty hands included.
func Hands(inst *models.GameInstance) (map[string][]json.RawMessage, error) {
	if !inst.Ext.Has(handsKey) {
		return emptyHands(inst), nil
	}
	hands := make(map[string][]json.RawMessage)
	if _, err := inst.Ext.Get(handsKey, &hands); err != nil {
		return nil, err
	}
	return hands, nil
}

func emptyHands(inst *models.GameInstance) map[string][]json.RawMessage {
	hands := make(map[string][]json.RawMessage, len(inst.Players))
	for _, player := range inst.Players {
		hands[player] = []json.RawMessage{}
	}
	return hands
}

func setHands(tx store.Tx, inst *models.GameInstance, hands map[string][]json.RawMessage, sendMessages bool) error {
	if sendMessages {
		msgs := make([]*models.Message, 0, len(inst.Players))
		for _, player := range inst.Players {
			hand := hands[player]
			if hand == nil {
				hand = []json.RawMessage{}
			}
			msg, err := inst.CreateMessage(player, HandMessageType, player, hand)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := tx.PutMessages(msgs...); err != nil {
			return err
		}
	}
	return inst.Ext.Set(handsKey, hands)
}

// PlayerHand returns one member's hand.
func PlayerHand(inst *models.GameInstance, player string) ([]json.RawMessage, error) {
	player, err := inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	hands, err := Hands(inst)
	if err != nil {
		return nil, err
	}
	if hands[player] == nil {
		return []json.RawMessage{}, nil
	}
	return hands[player], nil
}

func setPlayerHand(tx store.Tx, inst *models.GameInstance, player string, hand []json.RawMessage, sendMessage bool) error {
	player, err := inst.CheckPlayer(player)
	if err != nil {
		return err
	}
	hands, err := Hands(inst)
	if err != nil {
		return err
	}
	hands[player] = hand
	if err := inst.Ext.Set(handsKey, hands); err != nil {
		return err
	}
	if sendMessage {
		msg, err := inst.CreateMessage(player, HandMessageType, player, hand)
		if err != nil {
			return err
		}
		return tx.PutMessages(msg)
	}
	return nil
}

// Deal deals count cards one at a time to the players in dealTo, in order,
// from the top of the deck. A new hand clears all hands first. When the
// deck empties mid-deal, the deal either stops quietly (ignoreEmptyDeck) or
// fails. Every player is messaged their resulting hand.
func Deal(tx store.Tx, inst *models.GameInstance, count int, isNewHand, ignoreEmptyDeck bool, dealTo []string) (map[string][]json.RawMessage, error) {
	hands := make(map[string][]json.RawMessage)
	if !isNewHand {
		var err error
		hands, err = Hands(inst)
		if err != nil {
			return nil, err
		}
	}

	if count > 0 {
		players := make([]string, 0, len(dealTo))
		for _, pid := range dealTo {
			player, err := inst.CheckPlayer(pid)
			if err != nil {
				return nil, err
			}
			players = append(players, player)
			if hands[player] == nil {
				hands[player] = []json.RawMessage{}
			}
		}
	deal:
		for i := 0; i < count; i++ {
			for _, player := range players {
				card, err := nextCard(inst)
				if errors.Is(err, ErrEmptyDeck) {
					if ignoreEmptyDeck {
						break deal
					}
					return nil, gameerr.New(gameerr.InvalidArgument,
						"the deck ran out of cards")
				}
				if err != nil {
					return nil, err
				}
				hands[player] = append(hands[player], card)
			}
		}
	}

	if err := setHands(tx, inst, hands, true); err != nil {
		return nil, err
	}
	return hands, nil
}

// Draw moves up to count cards from the deck into the player's hand. When
// the deck empties, the draw either keeps what it got (ignoreEmptyDeck) or
// fails without changing the hand.
func Draw(tx store.Tx, inst *models.GameInstance, player string, count int, ignoreEmptyDeck, sendMessage bool) ([]json.RawMessage, error) {
	hand, err := PlayerHand(inst, player)
	if err != nil {
		return nil, err
	}
	for i := 0; i < count; i++ {
		card, err := nextCard(inst)
		if errors.Is(err, ErrEmptyDeck) {
			if ignoreEmptyDeck {
				break
			}
			return nil, gameerr.New(gameerr.InvalidArgument, "the deck ran out of cards")
		}
		if err != nil {
			return nil, err
		}
		hand = append(hand, card)
	}
	if err := setPlayerHand(tx, inst, player, hand, sendMessage); err != nil {
		return nil, err
	}
	return hand, nil
}

// Discard removes cards from a player's hand permanently; they only come
// back with a reshuffle. Cards the player does not hold are skipped.
func Discard(tx store.Tx, inst *models.GameInstance, player string, cardList []interface{}, sendMessage bool) ([]json.RawMessage, error) {
	hand, err := PlayerHand(inst, player)
	if err != nil {
		return nil, err
	}
	for _, card := range cardList {
		c, err := Canonical(card)
		if err != nil {
			return nil, err
		}
		hand = removeCard(hand, c)
	}
	if err := setPlayerHand(tx, inst, player, hand, sendMessage); err != nil {
		return nil, err
	}
	return hand, nil
}

// Pass transfers cards from one player's hand to another's. Cards the giver
// does not hold are skipped. Both players are messaged their new hands.
func Pass(tx store.Tx, inst *models.GameInstance, fromPlayer, toPlayer string, cardList []interface{}) ([]json.RawMessage, error) {
	fromPlayer, err := inst.CheckPlayer(fromPlayer)
	if err != nil {
		return nil, err
	}
	toPlayer, err = inst.CheckPlayer(toPlayer)
	if err != nil {
		return nil, err
	}
	hands, err := Hands(inst)
	if err != nil {
		return nil, err
	}
	for _, card := range cardList {
		c, err := Canonical(card)
		if err != nil {
			return nil, err
		}
		if holdsCard(hands[fromPlayer], c) {
			hands[fromPlayer] = removeCard(hands[fromPlayer], c)
			hands[toPlayer] = append(hands[toPlayer], c)
		}
	}
	if err := setHands(tx, inst, hands, true); err != nil {
		return nil, err
	}
	return hands[fromPlayer], nil
}

func holdsCard(hand []json.RawMessage, card json.RawMessage) bool {
	for _, c := range hand {
		if bytes.Equal(c, card) {
			return true
		}
	}
	return false
}

func removeCard(hand []json.RawMessage, card json.RawMessage) []json.RawMessage {
	for i, c := range hand {
		if bytes.Equal(c, card) {
			return append(hand[:i], hand[i+1:]...)
		}
	}
	return hand
}
