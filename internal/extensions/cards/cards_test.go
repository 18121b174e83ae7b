// internal/extensions/cards/cards_test.go
package cards

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/store"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

func testInstance() *models.GameInstance {
	return &models.GameInstance{
		GameID:  "g",
		ID:      "table",
		Players: []string{alice, bob},
		Leader:  alice,
		Ext:     models.ExtFields{},
	}
}

// run executes fn inside a memory-store transaction with a fresh two player
// instance, and returns the store for message assertions afterwards.
func run(t *testing.T, fn func(tx store.Tx, inst *models.GameInstance) error) store.Store {
	t.Helper()
	st := store.NewMemory()
	err := st.RunInTransaction(context.Background(), "g", func(tx store.Tx) error {
		inst := testInstance()
		if err := tx.PutInstance(inst); err != nil {
			return err
		}
		return fn(tx, inst)
	})
	require.NoError(t, err)
	return st
}

func card(v interface{}) json.RawMessage {
	c, _ := Canonical(v)
	return c
}

func TestDefaultDeck(t *testing.T) {
	deck := DefaultDeck()
	require.Len(t, deck, 52)
	// Value-major: the four aces come before any two.
	assert.Equal(t, []interface{}{1, "Hearts"}, deck[0])
	assert.Equal(t, []interface{}{1, "Diamonds"}, deck[3])
	assert.Equal(t, []interface{}{2, "Hearts"}, deck[4])
	assert.Equal(t, []interface{}{13, "Diamonds"}, deck[51])
}

func TestDeckInstallsDefaultLazily(t *testing.T) {
	inst := testInstance()
	assert.False(t, HasDeck(inst))

	left, err := CardsLeft(inst)
	require.NoError(t, err)
	assert.Equal(t, -1, left)

	deck, err := Deck(inst)
	require.NoError(t, err)
	assert.Len(t, deck, 52)
	assert.True(t, HasDeck(inst))

	left, err = CardsLeft(inst)
	require.NoError(t, err)
	assert.Equal(t, 52, left)
}

func TestSetDeckOnlyOnce(t *testing.T) {
	inst := testInstance()
	n, err := SetDeck(inst, []interface{}{"ace", "king", "queen"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = SetDeck(inst, []interface{}{"joker"})
	require.Error(t, err)

	deck, err := Deck(inst)
	require.NoError(t, err)
	assert.Equal(t, []json.RawMessage{card("ace"), card("king"), card("queen")}, deck)
}

func TestDealRoundRobin(t *testing.T) {
	run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := SetDeck(inst, []interface{}{"a", "b", "c", "d", "e"})
		require.NoError(t, err)

		hands, err := Deal(tx, inst, 2, true, false, []string{alice, bob})
		require.NoError(t, err)
		// Cards alternate between players in deck order.
		assert.Equal(t, []json.RawMessage{card("a"), card("c")}, hands[alice])
		assert.Equal(t, []json.RawMessage{card("b"), card("d")}, hands[bob])

		left, err := CardsLeft(inst)
		require.NoError(t, err)
		assert.Equal(t, 1, left)
		return nil
	})
}

func TestDealPastEndOfDeck(t *testing.T) {
	run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := SetDeck(inst, []interface{}{"a", "b", "c"})
		require.NoError(t, err)

		_, err = Deal(tx, inst, 2, true, false, []string{alice, bob})
		assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))
		return nil
	})

	run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := SetDeck(inst, []interface{}{"a", "b", "c"})
		require.NoError(t, err)

		// With ignoreEmptyDeck the deal keeps what it managed to hand out.
		hands, err := Deal(tx, inst, 2, true, true, []string{alice, bob})
		require.NoError(t, err)
		assert.Equal(t, []json.RawMessage{card("a"), card("c")}, hands[alice])
		assert.Equal(t, []json.RawMessage{card("b")}, hands[bob])
		return nil
	})
}

func TestDealRejectsNonMembers(t *testing.T) {
	run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := Deal(tx, inst, 1, true, false, []string{"stranger@example.com"})
		assert.Equal(t, gameerr.NotMember, gameerr.CodeOf(err))
		return nil
	})
}

func TestDrawAndDiscard(t *testing.T) {
	run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := SetDeck(inst, []interface{}{"a", "b", "c"})
		require.NoError(t, err)

		hand, err := Draw(tx, inst, alice, 2, false, true)
		require.NoError(t, err)
		assert.Equal(t, []json.RawMessage{card("a"), card("b")}, hand)

		// Discarding a card the player does not hold is a no-op.
		hand, err = Discard(tx, inst, alice, []interface{}{"a", "z"}, true)
		require.NoError(t, err)
		assert.Equal(t, []json.RawMessage{card("b")}, hand)

		// Discards do not return to the deck.
		left, err := CardsLeft(inst)
		require.NoError(t, err)
		assert.Equal(t, 1, left)
		return nil
	})
}

func TestDrawEmptyDeck(t *testing.T) {
	run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := SetDeck(inst, []interface{}{"a"})
		require.NoError(t, err)

		_, err = Draw(tx, inst, alice, 2, false, false)
		assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))
		return nil
	})

	run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := SetDeck(inst, []interface{}{"a"})
		require.NoError(t, err)

		hand, err := Draw(tx, inst, bob, 2, true, false)
		require.NoError(t, err)
		assert.Equal(t, []json.RawMessage{card("a")}, hand)
		return nil
	})
}

func TestPassCards(t *testing.T) {
	run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := SetDeck(inst, []interface{}{"a", "b"})
		require.NoError(t, err)
		_, err = Draw(tx, inst, alice, 2, false, false)
		require.NoError(t, err)

		// "z" is not held, so only "a" moves.
		remaining, err := Pass(tx, inst, alice, bob, []interface{}{"a", "z"})
		require.NoError(t, err)
		assert.Equal(t, []json.RawMessage{card("b")}, remaining)

		bobHand, err := PlayerHand(inst, bob)
		require.NoError(t, err)
		assert.Equal(t, []json.RawMessage{card("a")}, bobHand)
		return nil
	})
}

func TestShuffleClearsHandsAndNotifies(t *testing.T) {
	st := run(t, func(tx store.Tx, inst *models.GameInstance) error {
		_, err := Deal(tx, inst, 5, true, false, []string{alice, bob})
		require.NoError(t, err)

		left, err := Shuffle(tx, inst)
		require.NoError(t, err)
		assert.Equal(t, 52, left)

		hand, err := PlayerHand(inst, alice)
		require.NoError(t, err)
		assert.Empty(t, hand)
		return nil
	})

	// Every player got a hand message, and the latest one is empty.
	err := st.RunInTransaction(context.Background(), "g", func(tx store.Tx) error {
		recipient := alice
		msgs, err := tx.Messages(store.MessageQuery{
			GameID:     "g",
			InstanceID: "table",
			MsgType:    HandMessageType,
			Recipient:  &recipient,
		})
		require.NoError(t, err)
		require.NotEmpty(t, msgs)
		assert.JSONEq(t, "[]", string(msgs[0].Content))
		return nil
	})
	require.NoError(t, err)
}
