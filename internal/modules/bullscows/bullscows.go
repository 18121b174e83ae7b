// Package bullscows implements a color guessing game. A game's solution is
// a sequence of four distinct colors drawn from six. The player guesses
// sequences and learns after each guess how many bulls (right color, right
// position) and cows (right color, wrong position) it contained.
//
// Scoring starts at 96, the score a player keeps by guessing right
// immediately, and two points are deducted per completely wrong color and
// one per cow. Guesses may repeat a color; the solution never does.
//
// Each running game lives in a bac_game message owned by the player who
// started it, so members of one instance can run any number of games side
// by side. Career statistics are kept per instance in an extension field.
package bullscows

import (
	"context"
	"math/rand"

	"github.com/google/uuid"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

const (
	solutionSize    = 4
	startingGuesses = 12

	// GameMessageType tags the mailbox messages holding running games.
	GameMessageType = "bac_game"

	statsKey     = "bac_stats"
	solutionKey  = "bac_solution"
	guessesKey   = "bac_guesses_remaining"
	scoreKey     = "bac_score"
	lastGuessKey = "bac_last_guess"
	lastReplyKey = "bac_last_reply"
)

var colors = []string{"Blue", "Green", "Orange", "Red", "Yellow", "Pink"}

// Commands returns the bulls and cows command handlers.
func Commands() map[string]server.Handler {
	return map[string]server.Handler{
		"bac_new_game": newGameCommand,
		"bac_guess":    guessCommand,
	}
}

// newGameCommand starts a fresh game for the caller, discarding any of
// their earlier games in this instance. Returns the number of guesses, the
// starting score, the caller's career stats and the id of the new game.
func newGameCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}

	// A new game abandons the player's previous ones.
	old, err := tx.Messages(store.MessageQuery{
		GameID:         inst.GameID,
		InstanceID:     inst.ID,
		MsgType:        GameMessageType,
		Sender:         player,
		Recipient:      &player,
		RecipientExact: true,
	})
	if err != nil {
		return nil, err
	}
	for _, m := range old {
		if err := tx.DeleteMessage(inst.GameID, inst.ID, m.ID); err != nil {
			return nil, err
		}
	}

	stats, err := careerStats(inst)
	if err != nil {
		return nil, err
	}
	if err := inst.Ext.Set(statsKey, stats); err != nil {
		return nil, err
	}

	msg, err := inst.CreateMessage(player, GameMessageType, player, colors)
	if err != nil {
		return nil, err
	}
	score := solutionSize * startingGuesses * 2
	perm := rand.Perm(len(colors))
	solution := make([]string, solutionSize)
	for i := range solution {
		solution[i] = colors[perm[i]]
	}
	for key, v := range map[string]interface{}{
		solutionKey:  solution,
		guessesKey:   startingGuesses,
		scoreKey:     score,
		lastGuessKey: []string{""},
		lastReplyKey: []interface{}{},
	} {
		if err := msg.Ext.Set(key, v); err != nil {
			return nil, err
		}
	}
	if err := tx.PutMessages(msg); err != nil {
		return nil, err
	}
	return []interface{}{startingGuesses, score, stats, msg.ID.String()}, nil
}

// guessCommand evaluates one guess. Arguments: the game id and the guessed
// color sequence.
//
// Repeating the previous guess returns its reply again with no deduction.
// A correct guess ends the game, folds the score into the caller's career
// stats and returns the guesses left, the final score, the updated stats
// and whether a new high score was set. A wrong guess returns the guesses
// left, the remaining score and the bull and cow counts.
func guessCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, gameerr.New(gameerr.BadArguments,
			"a guess needs a game id and a list of colors")
	}
	rawID, err := server.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, gameerr.New(gameerr.InvalidArgument, "%q is not a valid game id", rawID)
	}
	guessArg, err := server.ListArg(args, 1)
	if err != nil {
		return nil, err
	}
	if len(guessArg) != solutionSize {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"guess was not the right number of elements")
	}
	guess := make([]string, solutionSize)
	for i, v := range guessArg {
		color, ok := v.(string)
		if !ok {
			return nil, gameerr.New(gameerr.InvalidArgument,
				"guess elements must be color names")
		}
		guess[i] = color
	}

	msg, err := tx.GetMessage(inst.GameID, inst.ID, id)
	if err != nil {
		return nil, err
	}
	if msg == nil || msg.MsgType != GameMessageType {
		return nil, gameerr.New(gameerr.NotFound, "that game no longer exists")
	}
	if msg.Sender != player {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"players may only guess in their own games")
	}

	var lastGuess []string
	if _, err := msg.Ext.Get(lastGuessKey, &lastGuess); err != nil {
		return nil, err
	}
	if equalGuess(guess, lastGuess) {
		var cached []interface{}
		if _, err := msg.Ext.Get(lastReplyKey, &cached); err != nil {
			return nil, err
		}
		return cached, nil
	}

	var guesses int
	if _, err := msg.Ext.Get(guessesKey, &guesses); err != nil {
		return nil, err
	}
	if guesses == 0 {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"no guesses remaining, please start a new game")
	}
	var score int
	if _, err := msg.Ext.Get(scoreKey, &score); err != nil {
		return nil, err
	}
	var solution []string
	if _, err := msg.Ext.Get(solutionKey, &solution); err != nil {
		return nil, err
	}

	guesses--
	var reply []interface{}
	if equalGuess(guess, solution) {
		guessesLeft := guesses
		guesses = 0

		stats, err := careerStats(inst)
		if err != nil {
			return nil, err
		}
		newHighScore := score > stats[0]
		if newHighScore {
			stats[0] = score
		}
		stats[1] += score
		stats[2]++
		if err := inst.Ext.Set(statsKey, stats); err != nil {
			return nil, err
		}
		msg.Ext.Delete(solutionKey)
		reply = []interface{}{guessesLeft, score, stats, newHighScore}
	} else {
		bulls, cows := 0, 0
		for i := range solution {
			switch {
			case guess[i] == solution[i]:
				bulls++
			case containsColor(solution, guess[i]):
				cows++
			}
		}
		score -= solutionSize*2 - cows - 2*bulls
		if err := msg.Ext.Set(scoreKey, score); err != nil {
			return nil, err
		}
		reply = []interface{}{guesses, score, bulls, cows}
	}

	if err := msg.Ext.Set(guessesKey, guesses); err != nil {
		return nil, err
	}
	if err := msg.Ext.Set(lastGuessKey, guess); err != nil {
		return nil, err
	}
	if err := msg.Ext.Set(lastReplyKey, reply); err != nil {
		return nil, err
	}
	if err := tx.PutMessages(msg); err != nil {
		return nil, err
	}
	return reply, nil
}

// careerStats returns the instance's stats as
// [high score, total score, games completed].
func careerStats(inst *models.GameInstance) ([]int, error) {
	stats := []int{0, 0, 0}
	if inst.Ext.Has(statsKey) {
		if _, err := inst.Ext.Get(statsKey, &stats); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

func equalGuess(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsColor(list []string, color string) bool {
	for _, c := range list {
		if c == color {
			return true
		}
	}
	return false
}
