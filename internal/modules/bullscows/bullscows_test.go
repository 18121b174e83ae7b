// internal/modules/bullscows/bullscows_test.go
package bullscows

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

const (
	alice = "alice@example.com"
	bob   = "bob@example.com"
)

func newTestServer(t *testing.T) (*server.Server, store.Store) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	registry := server.NewRegistry(logger)
	registry.RegisterAll(Commands())
	st := store.NewMemory()
	s := server.New(st, registry, nil, logger)

	ctx := context.Background()
	_, err := s.NewInstance(ctx, "g", "lobby", alice, true)
	require.NoError(t, err)
	_, err = s.JoinInstance(ctx, "g", "lobby", bob)
	require.NoError(t, err)
	return s, st
}

func command(t *testing.T, s *server.Server, player, name string, args ...interface{}) ([]interface{}, error) {
	t.Helper()
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := json.Marshal(args)
	require.NoError(t, err)
	res, err := s.ServerCommand(context.Background(), "g", "lobby", player, name, string(encoded))
	if err != nil {
		return nil, err
	}
	return res.Payload.(map[string]interface{})["contents"].([]interface{}), nil
}

func newGame(t *testing.T, s *server.Server, player string) string {
	t.Helper()
	contents, err := command(t, s, player, "bac_new_game")
	require.NoError(t, err)
	require.Len(t, contents, 4)
	assert.Equal(t, startingGuesses, contents[0])
	assert.Equal(t, 96, contents[1])
	id := contents[3].(string)
	_, err = uuid.Parse(id)
	require.NoError(t, err)
	return id
}

// solutionOf reads the stored solution out of the game message.
func solutionOf(t *testing.T, st store.Store, id string) []string {
	t.Helper()
	var solution []string
	err := st.RunInTransaction(context.Background(), "g", func(tx store.Tx) error {
		msg, err := tx.GetMessage("g", "lobby", uuid.MustParse(id))
		require.NoError(t, err)
		require.NotNil(t, msg)
		_, err = msg.Ext.Get("bac_solution", &solution)
		return err
	})
	require.NoError(t, err)
	require.Len(t, solution, solutionSize)
	return solution
}

// rotated shifts the solution one position, keeping every color present
// but none in place.
func rotated(solution []string) []string {
	out := make([]string, len(solution))
	for i := range solution {
		out[i] = solution[(i+1)%len(solution)]
	}
	return out
}

// unusedColors builds a guess entirely from colors outside the solution.
func unusedColors(solution []string) []string {
	var spare []string
	for _, c := range colors {
		if !containsColor(solution, c) {
			spare = append(spare, c)
		}
	}
	return []string{spare[0], spare[1], spare[0], spare[1]}
}

func TestNewGame(t *testing.T) {
	s, _ := newTestServer(t)
	contents, err := command(t, s, alice, "bac_new_game")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0}, contents[2])

	_, err = command(t, s, "stranger@example.com", "bac_new_game")
	assert.Equal(t, gameerr.NotMember, gameerr.CodeOf(err))
}

func TestNewGameAbandonsPrevious(t *testing.T) {
	s, _ := newTestServer(t)
	first := newGame(t, s, alice)
	second := newGame(t, s, alice)
	require.NotEqual(t, first, second)

	_, err := command(t, s, alice, "bac_guess", first,
		[]string{"Blue", "Green", "Orange", "Red"})
	assert.Equal(t, gameerr.NotFound, gameerr.CodeOf(err))
}

func TestMembersPlaySideBySide(t *testing.T) {
	s, st := newTestServer(t)
	aliceGame := newGame(t, s, alice)
	bobGame := newGame(t, s, bob)

	// Players may only guess in their own games.
	_, err := command(t, s, bob, "bac_guess", aliceGame,
		[]string{"Blue", "Green", "Orange", "Red"})
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))

	contents, err := command(t, s, bob, "bac_guess", bobGame,
		rotated(solutionOf(t, st, bobGame)))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{11, 92, 0, 4}, contents)

	// Alice's game is untouched by bob's play.
	contents, err = command(t, s, alice, "bac_guess", aliceGame,
		solutionOf(t, st, aliceGame))
	require.NoError(t, err)
	assert.Equal(t, 11, contents[0])
}

func TestGuessValidation(t *testing.T) {
	s, _ := newTestServer(t)
	id := newGame(t, s, alice)

	_, err := command(t, s, alice, "bac_guess", id)
	assert.Equal(t, gameerr.BadArguments, gameerr.CodeOf(err))

	_, err = command(t, s, alice, "bac_guess", "not-a-uuid",
		[]string{"Blue", "Green", "Orange", "Red"})
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))

	_, err = command(t, s, alice, "bac_guess", uuid.NewString(),
		[]string{"Blue", "Green", "Orange", "Red"})
	assert.Equal(t, gameerr.NotFound, gameerr.CodeOf(err))

	_, err = command(t, s, alice, "bac_guess", id, []string{"Blue", "Green"})
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))
}

func TestScoringAndRepeatGuess(t *testing.T) {
	s, st := newTestServer(t)
	id := newGame(t, s, alice)
	solution := solutionOf(t, st, id)

	// All four colors right but misplaced. The deduction per guess is
	// 8 - cows - 2*bulls, so an all-cows guess costs four points: 96 - 4.
	allCows := rotated(solution)
	contents, err := command(t, s, alice, "bac_guess", id, allCows)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{11, 92, 0, 4}, contents)

	// Repeating the guess replays the reply without burning a guess.
	contents, err = command(t, s, alice, "bac_guess", id, allCows)
	require.NoError(t, err)
	replay, err := json.Marshal(contents)
	require.NoError(t, err)
	assert.JSONEq(t, "[11, 92, 0, 4]", string(replay))

	// No color right: two points off per miss.
	contents, err = command(t, s, alice, "bac_guess", id, unusedColors(solution))
	require.NoError(t, err)
	assert.Equal(t, []interface{}{10, 84, 0, 0}, contents)
}

func TestWinningUpdatesCareerStats(t *testing.T) {
	s, st := newTestServer(t)
	id := newGame(t, s, alice)
	solution := solutionOf(t, st, id)

	_, err := command(t, s, alice, "bac_guess", id, rotated(solution))
	require.NoError(t, err)

	contents, err := command(t, s, alice, "bac_guess", id, solution)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{10, 92, []int{92, 92, 1}, true}, contents)

	// The finished game takes no further guesses.
	_, err = command(t, s, alice, "bac_guess", id, rotated(solution))
	assert.Equal(t, gameerr.InvalidArgument, gameerr.CodeOf(err))

	// A follow-up game starts from the recorded stats, and a lower final
	// score is not a new high.
	contents, err = command(t, s, alice, "bac_new_game")
	require.NoError(t, err)
	assert.Equal(t, []int{92, 92, 1}, contents[2])
}
