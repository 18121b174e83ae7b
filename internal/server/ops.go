package server

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/ident"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/store"
)

// GetInstanceLists returns the discovery lists for a player: instances they
// have joined, joinable instances they are invited to, and joinable public
// instances. The instance id is optional; when it names a live instance the
// response envelope carries that instance's membership.
func (s *Server) GetInstanceLists(ctx context.Context, gid, iid, pid string) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	player, err := ident.CheckPlayerID(pid)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		game, err := tx.GetGame(gid)
		target := &Target{}
		if err != nil {
			return err
		}
		if game == nil {
			game = models.NewGame(gid)
			if err := tx.PutGame(game); err != nil {
				return err
			}
			target.Game = game
		} else if iid != "" {
			inst, err := tx.GetInstance(gid, iid)
			if err != nil {
				return err
			}
			target.Instance = inst
		}
		if target.Instance == nil {
			target.Game = game
		}
		lists, err := instanceLists(tx, gid, player)
		if err != nil {
			return err
		}
		res = &Result{Target: target, Payload: lists}
		return nil
	})
	return res, err
}

// InvitePlayer adds invitee to the invite list of an instance. Inviting a
// current member or an already-invited player is a no-op; the response then
// carries an empty invitee instead of an error.
func (s *Server) InvitePlayer(ctx context.Context, gid, iid, invitee string) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	if _, err := ident.CheckInstanceID(iid); err != nil {
		return nil, err
	}
	player, err := ident.CheckPlayerID(invitee)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		inst, err := getInstance(tx, gid, iid)
		if err != nil {
			return err
		}
		if !inst.HasInvited(player) && !inst.HasPlayer(player) {
			inst.Invited = append(inst.Invited, player)
			if err := putInstance(tx, inst); err != nil {
				return err
			}
		} else {
			player = ""
		}
		res = &Result{
			Target:  &Target{Instance: inst},
			Payload: map[string]interface{}{"inv": player},
		}
		return nil
	})
	return res, err
}

// JoinInstance adds a player to an instance. A player can join when the
// instance is not full and is either public or holds an invite for them;
// joining an instance you are already in succeeds without change. If the
// instance does not exist it is created as in NewInstance, with the joiner
// as leader.
func (s *Server) JoinInstance(ctx context.Context, gid, iid, pid string) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	if _, err := ident.CheckInstanceID(iid); err != nil {
		return nil, err
	}
	player, err := ident.CheckPlayerID(pid)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		inst, err := tx.GetInstance(gid, iid)
		if err != nil {
			return err
		}
		if inst == nil {
			res, err = s.createInstance(tx, gid, iid, player, false)
			return err
		}
		lists, err := instanceLists(tx, gid, player)
		if err != nil {
			return err
		}
		if err := inst.AddPlayer(player); err != nil {
			return err
		}
		if err := putInstance(tx, inst); err != nil {
			return err
		}
		lists["invited"] = removeID(lists["invited"], inst.ID)
		if !containsID(lists["joined"], inst.ID) {
			lists["joined"] = append(lists["joined"], inst.ID)
		}
		res = &Result{Target: &Target{Instance: inst}, Payload: lists}
		return nil
	})
	return res, err
}

// LeaveInstance removes a player from an instance. If the leader leaves,
// the first remaining member is promoted. When the last member leaves, the
// max-players sentinel permanently blocks the instance so its id (and its
// message history) can never be re-entered; message deletion is not reliable
// enough to allow reuse.
func (s *Server) LeaveInstance(ctx context.Context, gid, iid, pid string) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	if _, err := ident.CheckInstanceID(iid); err != nil {
		return nil, err
	}
	var res *Result
	err := s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		inst, err := getInstance(tx, gid, iid)
		if err != nil {
			return err
		}
		player, err := inst.CheckPlayer(pid)
		if err != nil {
			return err
		}
		inst.RemovePlayer(player)
		if player == inst.Leader && len(inst.Players) != 0 {
			inst.Leader = inst.Players[0]
		}
		if len(inst.Players) == 0 {
			inst.MaxPlayers = models.BlockedMaxPlayers
		}
		game, err := getOrCreateGame(tx, gid)
		if err != nil {
			return err
		}
		lists, err := instanceLists(tx, gid, player)
		if err != nil {
			return err
		}
		lists["joined"] = removeID(lists["joined"], inst.ID)
		if err := putInstance(tx, inst); err != nil {
			return err
		}
		res = &Result{Target: &Target{Game: game}, Payload: lists}
		return nil
	})
	return res, err
}

// GetMessages fetches mailbox messages for a player: messages of the given
// type (all types when empty) addressed to the player or broadcast, created
// after the given time. The newest count matches are selected and returned
// oldest-first, so a full window starts mid-history rather than at the true
// oldest match.
func (s *Server) GetMessages(ctx context.Context, gid, iid, msgType, pid string, count int, since time.Time) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	if _, err := ident.CheckInstanceID(iid); err != nil {
		return nil, err
	}
	var res *Result
	err := s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		inst, err := getInstance(tx, gid, iid)
		if err != nil {
			return err
		}
		recipient, err := inst.CheckPlayer(pid)
		if err != nil {
			return err
		}
		msgs, err := tx.Messages(store.MessageQuery{
			GameID:     gid,
			InstanceID: iid,
			MsgType:    msgType,
			Recipient:  &recipient,
			After:      since,
			Limit:      count,
		})
		if err != nil {
			return err
		}
		dicts := make([]map[string]interface{}, 0, len(msgs))
		for i := len(msgs) - 1; i >= 0; i-- {
			dicts = append(dicts, msgs[i].ToDictionary())
		}
		res = &Result{
			Target: &Target{Instance: inst},
			Payload: map[string]interface{}{
				"count":    len(dicts),
				"messages": dicts,
			},
		}
		return nil
	})
	return res, err
}

// NewInstance creates an instance of a game, with the requesting player as
// leader and sole member. The desired id is a prefix: when it is taken, the
// game's running counter is appended and re-probed until the id is unique.
// The parent game is created on first reference.
func (s *Server) NewInstance(ctx context.Context, gid, iidPrefix, pid string, makePublic bool) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	player, err := ident.CheckPlayerID(pid)
	if err != nil {
		return nil, err
	}
	var res *Result
	err = s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		res, err = s.createInstance(tx, gid, iidPrefix, player, makePublic)
		return err
	})
	return res, err
}

// createInstance is the shared create path of NewInstance and JoinInstance.
// It runs inside the caller's transaction.
func (s *Server) createInstance(tx store.Tx, gid, iidPrefix, player string, makePublic bool) (*Result, error) {
	game, err := getOrCreateGame(tx, gid)
	if err != nil {
		return nil, err
	}
	if iidPrefix == "" {
		iidPrefix = player + "instance"
	}
	iid, err := s.uniqueInstanceID(tx, game, iidPrefix)
	if err != nil {
		return nil, err
	}
	inst := models.NewGameInstance(gid, iid, player, time.Time{})

	// The new instance is not stored yet, so the lists exclude it.
	lists, err := instanceLists(tx, gid, player)
	if err != nil {
		return nil, err
	}
	lists["joined"] = append(lists["joined"], iid)
	if makePublic {
		inst.Public = true
		lists["public"] = append(lists["public"], iid)
	}
	if err := putInstance(tx, inst); err != nil {
		return nil, err
	}
	if err := tx.PutGame(game); err != nil {
		return nil, err
	}
	return &Result{Target: &Target{Instance: inst}, Payload: lists}, nil
}

// uniqueInstanceID picks an unused id starting with prefix. The game counter
// only seeds the suffix; because the counter races with creation under other
// transactions, the id is re-probed against the store until it is free.
func (s *Server) uniqueInstanceID(tx store.Tx, game *models.Game, prefix string) (string, error) {
	prefix = strings.ReplaceAll(prefix, " ", "")
	game.InstanceCount++
	index := game.InstanceCount
	iid := prefix
	for {
		existing, err := tx.GetInstance(game.ID, iid)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return iid, nil
		}
		index++
		iid = prefix + strconv.FormatInt(index, 10)
	}
}

// NewMessage creates one message per recipient. recipientsJSON holds a JSON
// string or array of player ids; empty (or an empty array) means one
// broadcast message any member can fetch. Sender and every named recipient
// must be members of the instance.
func (s *Server) NewMessage(ctx context.Context, gid, iid, pid, msgType, recipientsJSON, contentJSON string) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	if _, err := ident.CheckInstanceID(iid); err != nil {
		return nil, err
	}
	recipients, err := parseRecipients(recipientsJSON)
	if err != nil {
		return nil, err
	}
	var content json.RawMessage
	if contentJSON != "" {
		if !json.Valid([]byte(contentJSON)) {
			return nil, gameerr.New(gameerr.BadArguments, "message content is not valid JSON")
		}
		content = json.RawMessage(contentJSON)
	}
	var res *Result
	err = s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		inst, err := getInstance(tx, gid, iid)
		if err != nil {
			return err
		}
		player, err := inst.CheckPlayer(pid)
		if err != nil {
			return err
		}
		msgs := make([]*models.Message, 0, len(recipients))
		for i, recipient := range recipients {
			if recipient != "" {
				recipient, err = inst.CheckPlayer(recipient)
				if err != nil {
					return err
				}
				recipients[i] = recipient
			}
			msg, err := models.NewMessage(gid, iid, player, msgType, recipient, content)
			if err != nil {
				return err
			}
			msgs = append(msgs, msg)
		}
		if err := tx.PutMessages(msgs...); err != nil {
			return err
		}
		res = &Result{
			Target: &Target{Instance: inst},
			Payload: map[string]interface{}{
				"count": len(msgs),
				"mrec":  recipients,
			},
		}
		return nil
	})
	return res, err
}

func parseRecipients(recipientsJSON string) ([]string, error) {
	if recipientsJSON == "" {
		return []string{""}, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(recipientsJSON), &v); err != nil {
		return nil, gameerr.New(gameerr.BadArguments, "message recipients failed to parse: %v", err)
	}
	switch rec := v.(type) {
	case string:
		return []string{rec}, nil
	case []interface{}:
		if len(rec) == 0 {
			return []string{""}, nil
		}
		out := make([]string, 0, len(rec))
		for _, entry := range rec {
			str, ok := entry.(string)
			if !ok {
				return nil, gameerr.New(gameerr.BadArguments, "message recipient %v is not a string", entry)
			}
			out = append(out, str)
		}
		return out, nil
	case nil:
		return []string{""}, nil
	}
	return nil, gameerr.New(gameerr.BadArguments, "message recipients must be a string or array")
}

// SetLeader transfers leadership. Only the current leader can hand off, and
// only to another member; any other combination is reported as an unchanged
// leader rather than an error.
func (s *Server) SetLeader(ctx context.Context, gid, iid, pid, leader string) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	if _, err := ident.CheckInstanceID(iid); err != nil {
		return nil, err
	}
	var res *Result
	err := s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		inst, err := getInstance(tx, gid, iid)
		if err != nil {
			return err
		}
		player, err := inst.CheckPlayer(pid)
		if err != nil {
			return err
		}
		candidate, err := inst.CheckPlayer(leader)
		if err != nil {
			return err
		}
		if player != inst.Leader || inst.Leader == candidate {
			res = &Result{
				Target: &Target{Instance: inst},
				Payload: map[string]interface{}{
					"current_leader": inst.Leader,
					"leader_changed": false,
				},
			}
			return nil
		}
		inst.Leader = candidate
		if err := putInstance(tx, inst); err != nil {
			return err
		}
		res = &Result{
			Target: &Target{Instance: inst},
			Payload: map[string]interface{}{
				"current_leader": candidate,
				"leader_changed": true,
			},
		}
		return nil
	})
	return res, err
}

// GetInstance returns the full state dictionary of one instance.
func (s *Server) GetInstance(ctx context.Context, gid, iid string) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	if _, err := ident.CheckInstanceID(iid); err != nil {
		return nil, err
	}
	var res *Result
	err := s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		inst, err := getInstance(tx, gid, iid)
		if err != nil {
			return err
		}
		res = &Result{Target: &Target{Instance: inst}, Payload: inst.ToDictionary()}
		return nil
	})
	return res, err
}
