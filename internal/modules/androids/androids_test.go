// internal/modules/androids/androids_test.go
package androids

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarcade/hall/internal/extensions/cards"
	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
	carol = "carol@example.com"
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry := server.NewRegistry(logger)
	registry.RegisterAll(Commands())
	return server.New(store.NewMemory(), registry, nil, logger)
}

// newParty creates an instance with alice leading bob and carol.
func newParty(t *testing.T, s *server.Server) {
	t.Helper()
	ctx := context.Background()
	_, err := s.NewInstance(ctx, "g", "party", alice, true)
	require.NoError(t, err)
	_, err = s.JoinInstance(ctx, "g", "party", bob)
	require.NoError(t, err)
	_, err = s.JoinInstance(ctx, "g", "party", carol)
	require.NoError(t, err)
}

func instance(t *testing.T, s *server.Server) *models.GameInstance {
	t.Helper()
	res, err := s.GetInstance(context.Background(), "g", "party")
	require.NoError(t, err)
	return res.Target.Instance
}

func command(t *testing.T, s *server.Server, player, name string, args ...interface{}) ([]interface{}, error) {
	t.Helper()
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := json.Marshal(args)
	require.NoError(t, err)
	res, err := s.ServerCommand(context.Background(), "g", "party", player, name, string(encoded))
	if err != nil {
		return nil, err
	}
	contents := res.Payload.(map[string]interface{})["contents"]
	return contents.([]interface{}), nil
}

// handCard returns one noun card string from the player's current hand.
func handCard(t *testing.T, s *server.Server, player string) string {
	t.Helper()
	hand, err := cards.PlayerHand(instance(t, s), player)
	require.NoError(t, err)
	require.NotEmpty(t, hand)
	var card string
	require.NoError(t, json.Unmarshal(hand[0], &card))
	return card
}

func TestNewGame(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.NewInstance(ctx, "g", "party", alice, true)
	require.NoError(t, err)
	_, err = s.JoinInstance(ctx, "g", "party", bob)
	require.NoError(t, err)

	_, err = command(t, s, bob, "ata_new_game")
	assert.Equal(t, gameerr.NotLeader, gameerr.CodeOf(err))

	// Two players is not enough.
	_, err = command(t, s, alice, "ata_new_game")
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))

	_, err = s.JoinInstance(ctx, "g", "party", carol)
	require.NoError(t, err)

	contents, err := command(t, s, alice, "ata_new_game")
	require.NoError(t, err)
	require.Len(t, contents, 3)
	charCard, ok := contents[0].(string)
	require.True(t, ok)
	assert.NotEmpty(t, charCard)
	board := contents[1].([][]interface{})
	assert.Len(t, board, 3)
	hand := contents[2].([]json.RawMessage)
	assert.Len(t, hand, handSize)

	// Starting locks the table: no more joins, no public listing.
	inst := instance(t, s)
	assert.False(t, inst.Public)
	assert.Equal(t, 3, inst.MaxPlayers)
	left, err := cards.CardsLeft(inst)
	require.NoError(t, err)
	assert.Equal(t, len(nounCards)-3*handSize, left)
	assert.Equal(t, 31, left)

	_, err = command(t, s, alice, "ata_new_game")
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))
	assert.Contains(t, err.Error(), "already in progress")
}

func TestCommandsBeforeGameStarts(t *testing.T) {
	s := newTestServer(t)
	newParty(t, s)

	// Submitting or ending a turn before any game exists is an error, not
	// a round-zero game.
	_, err := command(t, s, bob, "ata_submit_card", 0, "whatever")
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))
	assert.Contains(t, err.Error(), "not started")

	_, err = command(t, s, alice, "ata_end_turn", 0, "whatever")
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))

	// The rejected commands left nothing behind; in particular no deck was
	// installed, so a real game still gets the noun deck.
	inst := instance(t, s)
	assert.False(t, cards.HasDeck(inst))
	assert.False(t, inst.Ext.Has(submissionsKey))

	contents, err := command(t, s, alice, "ata_new_game")
	require.NoError(t, err)
	var card string
	require.NoError(t, json.Unmarshal(contents[2].([]json.RawMessage)[0], &card))
	assert.Contains(t, nounCards, card)
}

func TestSubmitCard(t *testing.T) {
	s := newTestServer(t)
	newParty(t, s)
	_, err := command(t, s, alice, "ata_new_game")
	require.NoError(t, err)

	// A stale round gets a catch-up reply, not an error.
	contents, err := command(t, s, bob, "ata_submit_card", 99, "whatever")
	require.NoError(t, err)
	require.Len(t, contents, 4)
	assert.Contains(t, contents[0].(string), "wrong round")
	assert.Equal(t, 1, contents[2])

	_, err = command(t, s, alice, "ata_submit_card", 1, "whatever")
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))

	card := handCard(t, s, bob)
	contents, err = command(t, s, bob, "ata_submit_card", 1, card)
	require.NoError(t, err)
	require.Len(t, contents, 3)
	assert.Equal(t, 1, contents[0])
	assert.Equal(t, []string{card}, contents[1])
	// The submitted card was replaced from the deck.
	hand := contents[2].([]json.RawMessage)
	assert.Len(t, hand, handSize)

	_, err = command(t, s, bob, "ata_submit_card", 1, handCard(t, s, bob))
	assert.Equal(t, gameerr.AlreadySubmitted, gameerr.CodeOf(err))
}

func TestEndTurn(t *testing.T) {
	s := newTestServer(t)
	newParty(t, s)
	_, err := command(t, s, alice, "ata_new_game")
	require.NoError(t, err)
	firstCard := charCardOf(t, s)

	bobCard := handCard(t, s, bob)
	_, err = command(t, s, bob, "ata_submit_card", 1, bobCard)
	require.NoError(t, err)
	_, err = command(t, s, carol, "ata_submit_card", 1, handCard(t, s, carol))
	require.NoError(t, err)

	_, err = command(t, s, bob, "ata_end_turn", 1, bobCard)
	assert.Equal(t, gameerr.NotLeader, gameerr.CodeOf(err))

	_, err = command(t, s, alice, "ata_end_turn", 1, "never submitted")
	assert.Equal(t, gameerr.NoSuchSubmission, gameerr.CodeOf(err))

	contents, err := command(t, s, alice, "ata_end_turn", 1, bobCard)
	require.NoError(t, err)
	require.Len(t, contents, 5)
	newCard := contents[0].(string)
	assert.NotEqual(t, firstCard, newCard)
	board := contents[1].([][]interface{})
	assert.Equal(t, []interface{}{1, bob}, board[0])
	assert.Equal(t, 2, contents[2])
	assert.Equal(t, bob, contents[3])
	assert.Equal(t, bobCard, contents[4])

	// The round winner leads the next round.
	assert.Equal(t, bob, instance(t, s).Leader)
}

func TestGameOverAtWinningScore(t *testing.T) {
	s := newTestServer(t)
	newParty(t, s)
	_, err := command(t, s, alice, "ata_new_game")
	require.NoError(t, err)

	// Winners alternate so carol can reach five points; a round winner
	// leads the next round and leaders cannot submit.
	var contents []interface{}
	for round := 1; ; round++ {
		inst := instance(t, s)
		winner := carol
		if inst.Leader == carol {
			winner = bob
		}
		var winningCard string
		for _, player := range inst.Players {
			if player == inst.Leader {
				continue
			}
			card := handCard(t, s, player)
			_, err := command(t, s, player, "ata_submit_card", round, card)
			require.NoError(t, err)
			if player == winner {
				winningCard = card
			}
		}
		contents, err = command(t, s, inst.Leader, "ata_end_turn", round, winningCard)
		require.NoError(t, err)
		if len(contents) == 3 {
			break
		}
		require.Less(t, round, 20, "game never ended")
	}

	// Game over content: round, winning card, final board.
	board := contents[2].([][]interface{})
	assert.Equal(t, []interface{}{winningScore, carol}, board[0])

	inst := instance(t, s)
	assert.Equal(t, carol, inst.Leader)
	assert.False(t, inst.Ext.Has(roundKey))
	assert.False(t, inst.Ext.Has(charCardKey))
	assert.False(t, inst.Ext.Has(submissionsKey))

	// The table can host a fresh game with the champion leading.
	_, err = command(t, s, carol, "ata_new_game")
	require.NoError(t, err)
}

func TestDeserterIsReinvited(t *testing.T) {
	s := newTestServer(t)
	newParty(t, s)
	_, err := command(t, s, alice, "ata_new_game")
	require.NoError(t, err)

	_, err = s.LeaveInstance(context.Background(), "g", "party", carol)
	require.NoError(t, err)

	contents, err := command(t, s, bob, "ata_submit_card", 1, handCard(t, s, bob))
	require.NoError(t, err)
	require.Len(t, contents, 1)
	assert.Contains(t, contents[0].(string), "left during your game")

	// Carol holds an invite back in and play resumes once she returns.
	_, err = s.JoinInstance(context.Background(), "g", "party", carol)
	require.NoError(t, err)
	_, err = command(t, s, bob, "ata_submit_card", 1, handCard(t, s, bob))
	require.NoError(t, err)
}

func charCardOf(t *testing.T, s *server.Server) string {
	t.Helper()
	card, err := charCard(instance(t, s))
	require.NoError(t, err)
	return card
}
