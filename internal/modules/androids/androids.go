// Package androids implements Androids to Androids, a party card game for
// three or more players.
//
// The instance leader starts the game, which closes the instance to new
// players and deals each player a hand of seven noun cards. Each round a
// characteristic card is drawn and every player except the leader answers
// it by submitting a noun card from their hand, drawing a replacement so
// hands stay at seven. The leader picks the winning submission by whatever
// criteria they like, without knowing who submitted what. The round winner
// scores a point and leads the next round; the first player to five points
// wins the game.
//
// Card submissions and turn endings carry the round number they apply to.
// A stale round number never fails the command; it returns the state the
// player needs to catch back up.
package androids

import (
	"context"
	"math/rand"
	"sort"

	"github.com/openarcade/hall/internal/extensions/cards"
	"github.com/openarcade/hall/internal/extensions/scoreboard"
	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/ident"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

const (
	handSize     = 7
	winningScore = 5
	minPlayers   = 3

	roundKey           = "ata_round"
	charCardKey        = "ata_char_card"
	submissionsKey     = "ata_submissions"
	startingPlayersKey = "ata_starting_players"
)

// Commands returns the Androids to Androids command handlers.
func Commands() map[string]server.Handler {
	return map[string]server.Handler{
		"ata_new_game":    newGameCommand,
		"ata_submit_card": submitCardCommand,
		"ata_end_turn":    endTurnCommand,
	}
}

// newGameCommand starts a new game. Leader only; requires at least three
// players and no game already in progress. Closes the instance to new
// players, deals fresh hands, starts round 1 and broadcasts an
// ata_new_game message with the first characteristic card and the empty
// scoreboard. Returns that card, the scoreboard and the leader's hand.
func newGameCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckLeader(player)
	if err != nil {
		return nil, err
	}
	inst.Public = false

	if inst.Ext.Has(roundKey) {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"this game is already in progress, refresh the game state")
	}
	if len(inst.Players) < minPlayers {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"androids to androids requires at least %d players", minPlayers)
	}
	inst.MaxPlayers = len(inst.Players)

	if !cards.HasDeck(inst) {
		deck := make([]interface{}, 0, len(nounCards))
		for _, card := range nounCards {
			deck = append(deck, card)
		}
		if _, err := cards.SetDeck(inst, deck); err != nil {
			return nil, err
		}
	}
	if _, err := cards.Shuffle(tx, inst); err != nil {
		return nil, err
	}
	hands, err := cards.Deal(tx, inst, handSize, true, false, inst.Players)
	if err != nil {
		return nil, err
	}

	if err := inst.Ext.Set(startingPlayersKey, inst.Players); err != nil {
		return nil, err
	}
	if err := inst.Ext.Set(roundKey, 0); err != nil {
		return nil, err
	}
	if err := setupNewRound(inst); err != nil {
		return nil, err
	}
	if err := scoreboard.Clear(inst); err != nil {
		return nil, err
	}
	board, err := scoreboard.Board(inst)
	if err != nil {
		return nil, err
	}
	formatted := scoreboard.Formatted(board)

	card, err := charCard(inst)
	if err != nil {
		return nil, err
	}
	msg, err := inst.CreateMessage(inst.Leader, "ata_new_game", "",
		[]interface{}{card, formatted})
	if err != nil {
		return nil, err
	}
	if err := tx.PutMessages(msg); err != nil {
		return nil, err
	}
	return []interface{}{card, formatted, hands[player]}, nil
}

// submitCardCommand submits a noun card for the current round. Arguments:
// the round number and the card. Anyone but the leader may submit, once
// per round. The submitted card is replaced from the deck and the full
// submission list so far is broadcast as an ata_submissions message.
// Returns the round, the submissions so far and the player's new hand.
//
// A stale round number returns a four item list starting with an
// explanation string, followed by the player's hand, the current round and
// the current characteristic card.
func submitCardCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	submittedRound, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}
	round, err := currentRound(inst)
	if err != nil {
		return nil, err
	}
	if submittedRound != round {
		return staleRoundReply(inst, player,
			"You tried to submit a card for the wrong round. Please try again.")
	}
	if reply, missing, err := checkPlayers(inst); err != nil {
		return nil, err
	} else if missing {
		return reply, nil
	}

	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	if player == inst.Leader {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"the leader may not submit a card")
	}

	submission, err := server.StringArg(args, 1)
	if err != nil {
		return nil, err
	}
	submitted, err := setSubmission(inst, player, submission)
	if err != nil {
		return nil, err
	}
	msg, err := inst.CreateMessage(player, "ata_submissions", "",
		[]interface{}{round, submitted, submission})
	if err != nil {
		return nil, err
	}
	if err := tx.PutMessages(msg); err != nil {
		return nil, err
	}

	if _, err := cards.Discard(tx, inst, player, []interface{}{submission}, false); err != nil {
		return nil, err
	}
	hand, err := cards.Draw(tx, inst, player, 1, false, true)
	if err != nil {
		return nil, err
	}
	return []interface{}{round, submitted, hand}, nil
}

// endTurnCommand ends the round by picking the winning card. Arguments:
// the round number and the chosen card. Leader only. The winner scores a
// point and becomes leader; at five points the game ends with an
// ata_game_over broadcast, otherwise a new round begins with an
// ata_new_round broadcast. Returns the broadcast content.
//
// A stale round number returns the same catch-up list as
// submitCardCommand.
func endTurnCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	endedRound, err := intArg(args, 0)
	if err != nil {
		return nil, err
	}
	round, err := currentRound(inst)
	if err != nil {
		return nil, err
	}
	if endedRound != round {
		return staleRoundReply(inst, player,
			"You tried to end a turn that has already ended. Please try again.")
	}
	if reply, missing, err := checkPlayers(inst); err != nil {
		return nil, err
	} else if missing {
		return reply, nil
	}

	if _, err := inst.CheckLeader(player); err != nil {
		return nil, err
	}
	card, err := server.StringArg(args, 1)
	if err != nil {
		return nil, err
	}

	subs, err := submissions(inst)
	if err != nil {
		return nil, err
	}
	winner := ""
	for submitter, submitted := range subs {
		if submitted == card {
			winner = submitter
			break
		}
	}
	if winner == "" {
		return nil, gameerr.New(gameerr.NoSuchSubmission,
			"no player has submitted the card %s", card)
	}

	board, err := scoreboard.AddToScore(inst, winner, 1)
	if err != nil {
		return nil, err
	}
	inst.Leader = winner
	if board[winner] == winningScore {
		return endGame(tx, inst, card, board)
	}

	if err := setupNewRound(inst); err != nil {
		return nil, err
	}
	newRound, err := currentRound(inst)
	if err != nil {
		return nil, err
	}
	newCard, err := charCard(inst)
	if err != nil {
		return nil, err
	}
	content := []interface{}{newCard, scoreboard.Formatted(board), newRound, winner, card}
	msg, err := inst.CreateMessage(inst.Leader, "ata_new_round", "", content)
	if err != nil {
		return nil, err
	}
	if err := tx.PutMessages(msg); err != nil {
		return nil, err
	}
	return content, nil
}

// endGame broadcasts an ata_game_over message and removes the round state
// so that a new game can start in the same instance with the winner
// leading.
func endGame(tx store.Tx, inst *models.GameInstance, winningCard string, board map[string]int) (interface{}, error) {
	round, err := currentRound(inst)
	if err != nil {
		return nil, err
	}
	content := []interface{}{round, winningCard, scoreboard.Formatted(board)}
	msg, err := inst.CreateMessage(inst.Leader, "ata_game_over", "", content)
	if err != nil {
		return nil, err
	}
	if err := tx.PutMessages(msg); err != nil {
		return nil, err
	}
	inst.Ext.Delete(roundKey)
	inst.Ext.Delete(charCardKey)
	inst.Ext.Delete(submissionsKey)
	if err := scoreboard.Clear(inst); err != nil {
		return nil, err
	}
	return content, nil
}

// checkPlayers detects a starting player who has left mid-game. The
// deserter is re-invited and the caller gets a catch-up string instead of
// the usual reply; the game resumes once they rejoin.
func checkPlayers(inst *models.GameInstance) (string, bool, error) {
	var starting []string
	if _, err := inst.Ext.Get(startingPlayersKey, &starting); err != nil {
		return "", false, err
	}
	if len(inst.Players) >= len(starting) {
		return "", false, nil
	}
	for _, pid := range starting {
		if !inst.HasPlayer(pid) {
			inst.Invited = append(inst.Invited, pid)
			return pid + " left during your game. They have been invited " +
				"and must rejoin before continuing.", true, nil
		}
	}
	return "", false, nil
}

// setupNewRound advances the round counter, clears the submissions and
// draws a characteristic card different from the previous one.
func setupNewRound(inst *models.GameInstance) error {
	round, err := currentRound(inst)
	if err != nil {
		return err
	}
	if err := inst.Ext.Set(roundKey, round+1); err != nil {
		return err
	}
	if err := inst.Ext.Set(submissionsKey, map[string]string{}); err != nil {
		return err
	}

	newCard := characteristicCards[rand.Intn(len(characteristicCards))]
	if inst.Ext.Has(charCardKey) {
		previous, err := charCard(inst)
		if err != nil {
			return err
		}
		for newCard == previous {
			newCard = characteristicCards[rand.Intn(len(characteristicCards))]
		}
	}
	return inst.Ext.Set(charCardKey, newCard)
}

func staleRoundReply(inst *models.GameInstance, player, explanation string) (interface{}, error) {
	hand, err := cards.PlayerHand(inst, player)
	if err != nil {
		return nil, err
	}
	round, err := currentRound(inst)
	if err != nil {
		return nil, err
	}
	card, err := charCard(inst)
	if err != nil {
		return nil, err
	}
	return []interface{}{explanation, hand, round, card}, nil
}

func currentRound(inst *models.GameInstance) (int, error) {
	var round int
	ok, err := inst.Ext.Get(roundKey, &round)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, gameerr.New(gameerr.InvalidArgument,
			"this game has not started yet")
	}
	return round, nil
}

func charCard(inst *models.GameInstance) (string, error) {
	var card string
	ok, err := inst.Ext.Get(charCardKey, &card)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", gameerr.New(gameerr.InvalidArgument,
			"this game has not started yet")
	}
	return card, nil
}

func submissions(inst *models.GameInstance) (map[string]string, error) {
	subs := make(map[string]string)
	if _, err := inst.Ext.Get(submissionsKey, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// setSubmission records player's card for this round. Each player submits
// at most once per round. Returns the sorted list of cards submitted so
// far.
func setSubmission(inst *models.GameInstance, player, card string) ([]string, error) {
	subs, err := submissions(inst)
	if err != nil {
		return nil, err
	}
	if _, ok := subs[player]; ok {
		return nil, gameerr.New(gameerr.AlreadySubmitted,
			"you have already submitted a card for this round")
	}
	subs[player] = card
	if err := inst.Ext.Set(submissionsKey, subs); err != nil {
		return nil, err
	}
	submitted := make([]string, 0, len(subs))
	for _, c := range subs {
		submitted = append(submitted, c)
	}
	sort.Strings(submitted)
	return submitted, nil
}

func intArg(args []interface{}, i int) (int, error) {
	raw, err := server.ArgAt(args, i)
	if err != nil {
		return 0, err
	}
	return ident.ParseIntValue(raw)
}
