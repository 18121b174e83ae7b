// internal/extensions/scoreboard/scoreboard_test.go
package scoreboard

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

func testInstance() *models.GameInstance {
	return &models.GameInstance{
		GameID:  "g",
		ID:      "lobby",
		Players: []string{alice, bob},
		Leader:  alice,
		Ext:     models.ExtFields{},
	}
}

func TestBoardDefaultsMembersToZero(t *testing.T) {
	inst := testInstance()
	board, err := Board(inst)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{alice: 0, bob: 0}, board)
}

func TestSetAndAddScore(t *testing.T) {
	inst := testInstance()
	board, err := SetScore(inst, bob, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, board[bob])

	board, err = AddToScore(inst, bob, -1)
	require.NoError(t, err)
	assert.Equal(t, 2, board[bob])

	score, err := Score(inst, bob)
	require.NoError(t, err)
	assert.Equal(t, 2, score)

	// The leader alias resolves for score lookups too.
	score, err = Score(inst, "leader")
	require.NoError(t, err)
	assert.Equal(t, 0, score)
}

func TestScoreRejectsNonMembers(t *testing.T) {
	inst := testInstance()
	_, err := SetScore(inst, "stranger@example.com", 5)
	assert.Equal(t, gameerr.NotMember, gameerr.CodeOf(err))
}

func TestClearResetsBoard(t *testing.T) {
	inst := testInstance()
	_, err := SetScore(inst, alice, 7)
	require.NoError(t, err)
	require.NoError(t, Clear(inst))

	board, err := Board(inst)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{alice: 0, bob: 0}, board)
}

func TestFormattedOrdersBestFirst(t *testing.T) {
	board := map[string]int{
		"c@example.com": 2,
		"a@example.com": 5,
		"b@example.com": 2,
	}
	assert.Equal(t, [][]interface{}{
		{5, "a@example.com"},
		{2, "b@example.com"},
		{2, "c@example.com"},
	}, Formatted(board))
}

func newTestServer(t *testing.T) *server.Server {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry := server.NewRegistry(logger)
	registry.RegisterAll(Commands())
	return server.New(store.NewMemory(), registry, nil, logger)
}

func commandContents(t *testing.T, res *server.Result) interface{} {
	t.Helper()
	return res.Payload.(map[string]interface{})["contents"]
}

func TestScoreboardCommands(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	_, err := s.NewInstance(ctx, "g", "lobby", alice, true)
	require.NoError(t, err)
	_, err = s.JoinInstance(ctx, "g", "lobby", bob)
	require.NoError(t, err)

	res, err := s.ServerCommand(ctx, "g", "lobby", bob, "scb_set_score",
		`["`+bob+`", 4]`)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{
		{4, bob},
		{0, alice},
	}, commandContents(t, res))

	res, err = s.ServerCommand(ctx, "g", "lobby", alice, "scb_add_to_score",
		`["`+alice+`", 9]`)
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{
		{9, alice},
		{4, bob},
	}, commandContents(t, res))

	res, err = s.ServerCommand(ctx, "g", "lobby", bob, "scb_get_score",
		`["`+bob+`"]`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{4}, commandContents(t, res))

	// The board persists across commands.
	res, err = s.ServerCommand(ctx, "g", "lobby", bob, "scb_get_scoreboard", "[]")
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{
		{9, alice},
		{4, bob},
	}, commandContents(t, res))

	// Only the leader may wipe it.
	_, err = s.ServerCommand(ctx, "g", "lobby", bob, "scb_clear_scoreboard", "[]")
	assert.Equal(t, gameerr.NotLeader, gameerr.CodeOf(err))

	res, err = s.ServerCommand(ctx, "g", "lobby", alice, "scb_clear_scoreboard", "[]")
	require.NoError(t, err)
	assert.Equal(t, [][]interface{}{
		{0, alice},
		{0, bob},
	}, commandContents(t, res))
}
