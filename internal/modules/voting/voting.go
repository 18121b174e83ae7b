// Package voting implements polls inside a game instance.
//
// A poll is a broadcast message of type poll (closed_poll once closed)
// whose content is the question, the options and the poll id; votes, the
// open flag and the voter list live in the message's extension fields.
// Players discover polls by fetching those message types from the
// instance, then vote and read results by poll id.
//
// Voting in a poll returns its current results immediately, and the
// results stay readable until the creator deletes the poll. Closing and
// deleting are reserved for the creator; closing is one-way.
package voting

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/ident"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

const (
	// PollMessageType and ClosedPollMessageType tag the mailbox messages
	// polls are stored as.
	PollMessageType       = "poll"
	ClosedPollMessageType = "closed_poll"

	votesKey  = "votes"
	openKey   = "open"
	votersKey = "voters"
)

// Commands returns the voting command handlers.
func Commands() map[string]server.Handler {
	return map[string]server.Handler{
		"vot_make_new_poll": makeNewPollCommand,
		"vot_cast_vote":     castVoteCommand,
		"vot_get_results":   getResultsCommand,
		"vot_close_poll":    closePollCommand,
		"vot_delete_poll":   deletePollCommand,
		"vot_get_poll_info": getPollInfoCommand,
		"vot_get_my_polls":  getMyPollsCommand,
	}
}

// makeNewPollCommand creates a poll. Arguments: the question and a list of
// two to five options. Returns the new poll's return list.
func makeNewPollCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	question, err := server.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	if question == "" {
		return nil, gameerr.New(gameerr.InvalidArgument, "question cannot be empty")
	}
	options, err := server.ListArg(args, 1)
	if err != nil {
		return nil, err
	}
	if len(options) < 2 || len(options) > 5 {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"incorrect number of options for poll, must be between two and five")
	}

	poll, err := inst.CreateMessage(player, PollMessageType, "", nil)
	if err != nil {
		return nil, err
	}
	// The poll id is part of the content, so the content is only knowable
	// once the message exists.
	content := []interface{}{question, options, poll.ID.String()}
	encoded, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	poll.Content = encoded
	if err := poll.Ext.Set(votesKey, make([]int, len(options))); err != nil {
		return nil, err
	}
	if err := poll.Ext.Set(openKey, true); err != nil {
		return nil, err
	}
	if err := poll.Ext.Set(votersKey, []string{""}); err != nil {
		return nil, err
	}
	if err := tx.PutMessages(poll); err != nil {
		return nil, err
	}
	return pollReturnList(poll)
}

// castVoteCommand casts a vote. Arguments: the poll id and the zero based
// index of the chosen option. A closed poll or a repeat vote is not an
// error; the reply explains what happened and carries the current votes.
func castVoteCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	poll, err := getPoll(tx, inst, args)
	if err != nil {
		return nil, err
	}
	votes, open, voters, err := pollState(poll)
	if err != nil {
		return nil, err
	}
	if !open {
		return []interface{}{"Poll closed to new votes.", votes}, nil
	}
	if containsVoter(voters, player) {
		return []interface{}{"Your vote was already counted in this poll.", votes}, nil
	}

	raw, err := server.ArgAt(args, 1)
	if err != nil {
		return nil, err
	}
	voteIndex, err := ident.ParseIntValue(raw)
	if err != nil || voteIndex < 0 || voteIndex >= len(votes) {
		return nil, gameerr.New(gameerr.InvalidArgument, "invalid vote choice")
	}
	votes[voteIndex]++
	voters = append(voters, player)
	if err := poll.Ext.Set(votesKey, votes); err != nil {
		return nil, err
	}
	if err := poll.Ext.Set(votersKey, voters); err != nil {
		return nil, err
	}
	if err := tx.PutMessages(poll); err != nil {
		return nil, err
	}
	return []interface{}{"Vote accepted.", votes}, nil
}

// getResultsCommand returns a poll's results. Voters and closed polls see
// the votes; a player who has not voted in a still-open poll only learns
// that they have not voted yet.
func getResultsCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	poll, err := getPoll(tx, inst, args)
	if err != nil {
		return nil, err
	}
	votes, open, voters, err := pollState(poll)
	if err != nil {
		return nil, err
	}
	if !open {
		return []interface{}{"Poll is now closed.", votes}, nil
	}
	if containsVoter(voters, player) {
		return []interface{}{"You have already voted in this poll.", votes}, nil
	}
	return []interface{}{"You have not voted in this poll yet."}, nil
}

// closePollCommand closes a poll to new votes. Creator only; there is no
// reopening. Returns the closed poll's return list.
func closePollCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	poll, err := getPoll(tx, inst, args)
	if err != nil {
		return nil, err
	}
	if poll.Sender != player {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"only the person that created this poll may close it")
	}
	poll.MsgType = ClosedPollMessageType
	if err := poll.Ext.Set(openKey, false); err != nil {
		return nil, err
	}
	if err := tx.PutMessages(poll); err != nil {
		return nil, err
	}
	return pollReturnList(poll)
}

// deletePollCommand removes a poll entirely. Creator only.
func deletePollCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	poll, err := getPoll(tx, inst, args)
	if err != nil {
		return nil, err
	}
	if poll.Sender != player {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"only the person that created this poll may delete it")
	}
	if err := tx.DeleteMessage(inst.GameID, inst.ID, poll.ID); err != nil {
		return nil, err
	}
	return []interface{}{true}, nil
}

// getPollInfoCommand returns a poll's return list. Creator only.
func getPollInfoCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	poll, err := getPoll(tx, inst, args)
	if err != nil {
		return nil, err
	}
	if poll.Sender != player {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"only the person that created the poll can request its information")
	}
	return pollReturnList(poll)
}

// getMyPollsCommand lists the caller's polls, oldest first, as
// [id, question] pairs.
func getMyPollsCommand(ctx context.Context, tx store.Tx, target *server.Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	player, err = inst.CheckPlayer(player)
	if err != nil {
		return nil, err
	}
	broadcast := ""
	msgs, err := tx.Messages(store.MessageQuery{
		GameID:         inst.GameID,
		InstanceID:     inst.ID,
		Sender:         player,
		Recipient:      &broadcast,
		RecipientExact: true,
	})
	if err != nil {
		return nil, err
	}
	polls := make([][]interface{}, 0, len(msgs))
	// Newest-first query window, oldest-first reply.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.MsgType != PollMessageType && m.MsgType != ClosedPollMessageType {
			continue
		}
		var content []interface{}
		if err := m.DecodeContent(&content); err != nil {
			return nil, err
		}
		if len(content) == 0 {
			continue
		}
		polls = append(polls, []interface{}{m.ID.String(), content[0]})
	}
	return polls, nil
}

// getPoll resolves the poll id in args[0] to its message.
func getPoll(tx store.Tx, inst *models.GameInstance, args []interface{}) (*models.Message, error) {
	rawID, err := server.StringArg(args, 0)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return nil, gameerr.New(gameerr.InvalidArgument, "poll id failed to parse")
	}
	poll, err := tx.GetMessage(inst.GameID, inst.ID, id)
	if err != nil {
		return nil, err
	}
	if poll == nil ||
		(poll.MsgType != PollMessageType && poll.MsgType != ClosedPollMessageType) {
		return nil, gameerr.New(gameerr.NotFound, "poll no longer exists")
	}
	return poll, nil
}

func pollState(poll *models.Message) ([]int, bool, []string, error) {
	var votes []int
	if _, err := poll.Ext.Get(votesKey, &votes); err != nil {
		return nil, false, nil, err
	}
	var open bool
	if _, err := poll.Ext.Get(openKey, &open); err != nil {
		return nil, false, nil, err
	}
	var voters []string
	if _, err := poll.Ext.Get(votersKey, &voters); err != nil {
		return nil, false, nil, err
	}
	return votes, open, voters, nil
}

// pollReturnList is the client-facing poll representation: the question,
// the options, the poll id, the votes and whether the poll is open.
func pollReturnList(poll *models.Message) ([]interface{}, error) {
	var content []interface{}
	if err := poll.DecodeContent(&content); err != nil {
		return nil, err
	}
	votes, open, _, err := pollState(poll)
	if err != nil {
		return nil, err
	}
	return append(content, votes, open), nil
}

func containsVoter(voters []string, player string) bool {
	for _, v := range voters {
		if v == player {
			return true
		}
	}
	return false
}
