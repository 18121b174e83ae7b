// Package scoreboard keeps an integer score per player on a game instance.
// Higher is better. The board lives in an instance extension field, so it
// survives exactly as long as the instance and rides along in the
// dispatcher's transaction.
package scoreboard

import (
	"context"
	"sort"

	"github.com/openarcade/hall/internal/ident"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

const extKey = "scb_scoreboard"

// Commands is the scoreboard command set for the dispatcher.
func Commands() map[string]server.Handler {
	return map[string]server.Handler{
		"scb_get_scoreboard":   getScoreboardCommand,
		"scb_get_score":        getScoreCommand,
		"scb_set_score":        setScoreCommand,
		"scb_add_to_score":     addToScoreCommand,
		"scb_clear_scoreboard": clearScoreboardCommand,
	}
}

// Board returns the scoreboard with an entry for every current member.
// Players without a stored score read as 0.
func Board(inst *models.GameInstance) (map[string]int, error) {
	board := make(map[string]int)
	if _, err := inst.Ext.Get(extKey, &board); err != nil {
		return nil, err
	}
	for _, player := range inst.Players {
		if _, ok := board[player]; !ok {
			board[player] = 0
		}
	}
	return board, nil
}

// Score returns one member's score.
func Score(inst *models.GameInstance, player string) (int, error) {
	player, err := inst.CheckPlayer(player)
	if err != nil {
		return 0, err
	}
	board, err := Board(inst)
	if err != nil {
		return 0, err
	}
	return board[player], nil
}

// SetScore stores a new score for a member and returns the updated board.
func SetScore(inst *models.GameInstance, player string, score int) (map[string]int, error) {
	player, err := inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	board, err := Board(inst)
	if err != nil {
		return nil, err
	}
	board[player] = score
	if err := inst.Ext.Set(extKey, board); err != nil {
		return nil, err
	}
	return board, nil
}

// AddToScore changes a member's score by delta, which may be negative.
func AddToScore(inst *models.GameInstance, player string, delta int) (map[string]int, error) {
	player, err := inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	board, err := Board(inst)
	if err != nil {
		return nil, err
	}
	board[player] += delta
	if err := inst.Ext.Set(extKey, board); err != nil {
		return nil, err
	}
	return board, nil
}

// Clear resets the stored board; every member reads as 0 afterwards.
func Clear(inst *models.GameInstance) error {
	return inst.Ext.Set(extKey, map[string]int{})
}

// Formatted renders a board as [score, player] pairs, best score first.
// Ties order by player id so the output is deterministic.
func Formatted(board map[string]int) [][]interface{} {
	players := make([]string, 0, len(board))
	for player := range board {
		players = append(players, player)
	}
	sort.Slice(players, func(i, j int) bool {
		if board[players[i]] != board[players[j]] {
			return board[players[i]] > board[players[j]]
		}
		return players[i] < players[j]
	})
	out := make([][]interface{}, 0, len(players))
	for _, player := range players {
		out = append(out, []interface{}{board[player], player})
	}
	return out
}

func getScoreboardCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	board, err := Board(inst)
	if err != nil {
		return nil, err
	}
	return Formatted(board), nil
}

func getScoreCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	subject, err := server.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	return Score(inst, subject)
}

func setScoreCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	subject, err := server.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	raw, err := server.ArgAt(args, 1)
	if err != nil {
		return nil, err
	}
	score, err := ident.ParseIntValue(raw)
	if err != nil {
		return nil, err
	}
	board, err := SetScore(inst, subject, score)
	if err != nil {
		return nil, err
	}
	return Formatted(board), nil
}

func addToScoreCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	subject, err := server.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	raw, err := server.ArgAt(args, 1)
	if err != nil {
		return nil, err
	}
	delta, err := ident.ParseIntValue(raw)
	if err != nil {
		return nil, err
	}
	board, err := AddToScore(inst, subject, delta)
	if err != nil {
		return nil, err
	}
	return Formatted(board), nil
}

func clearScoreboardCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	if _, err := inst.CheckLeader(player); err != nil {
		return nil, err
	}
	if err := Clear(inst); err != nil {
		return nil, err
	}
	board, err := Board(inst)
	if err != nil {
		return nil, err
	}
	return Formatted(board), nil
}
