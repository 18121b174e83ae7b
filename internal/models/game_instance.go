// internal/models/game_instance.go
package models

import (
	"strings"
	"time"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/ident"
)

// BlockedMaxPlayers is the max-player sentinel applied when the last member
// leaves an instance. A negative maximum makes the instance permanently full,
// so the id can never be rejoined even though the entity (and its message
// history) may outlive its members.
const BlockedMaxPlayers = -1

// GameInstance is one running lobby of a game type. It owns membership,
// invitation and leadership state, plus the schema-less extension fields the
// command modules keep their per-game state in.
//
// Players and Invited are kept in insertion order so that leader promotion
// after a leave is deterministic.
type GameInstance struct {
	GameID     string    `json:"gameId"`
	ID         string    `json:"instanceId"`
	Players    []string  `json:"players"`
	Invited    []string  `json:"invited"`
	Leader     string    `json:"leader"`
	Public     bool      `json:"public"`
	Full       bool      `json:"full"`
	MaxPlayers int       `json:"maxPlayers"`
	CreatedAt  time.Time `json:"createdAt"`
	Ext        ExtFields `json:"ext,omitempty"`

	// DoNotPersist tells the dispatcher to skip the end-of-command put.
	// Only the delete-instance command sets it, after deleting the entity.
	DoNotPersist bool `json:"-"`
}

// NewGameInstance creates an instance with leader as its sole member.
func NewGameInstance(gameID, instanceID, leader string, now time.Time) *GameInstance {
	inst := &GameInstance{
		GameID:    gameID,
		ID:        instanceID,
		Players:   []string{leader},
		Invited:   []string{},
		Leader:    leader,
		CreatedAt: now,
		Ext:       make(ExtFields),
	}
	inst.SetFull()
	return inst
}

// SetFull recomputes the derived full flag. Called before every persist.
// A zero maximum means unlimited; the negative sentinel always reads full.
func (inst *GameInstance) SetFull() {
	inst.Full = inst.MaxPlayers != 0 && len(inst.Players) >= inst.MaxPlayers
}

// HasPlayer reports membership.
func (inst *GameInstance) HasPlayer(player string) bool {
	for _, p := range inst.Players {
		if p == player {
			return true
		}
	}
	return false
}

// HasInvited reports whether player holds an unredeemed invite.
func (inst *GameInstance) HasInvited(player string) bool {
	for _, p := range inst.Invited {
		if p == player {
			return true
		}
	}
	return false
}

// CheckPlayer normalizes pid and confirms the player is a member. The
// special id "leader" resolves to the current leader.
func (inst *GameInstance) CheckPlayer(pid string) (string, error) {
	if strings.EqualFold(pid, "leader") {
		pid = inst.Leader
	}
	player, err := ident.CheckPlayerID(pid)
	if err != nil {
		return "", err
	}
	if !inst.HasPlayer(player) {
		return "", gameerr.New(gameerr.NotMember, "%s is not in instance %s", player, inst.ID)
	}
	return player, nil
}

// CheckLeader normalizes pid and confirms the player leads this instance.
func (inst *GameInstance) CheckLeader(pid string) (string, error) {
	player, err := ident.CheckPlayerID(pid)
	if err != nil {
		return "", err
	}
	if player != inst.Leader {
		return "", gameerr.New(gameerr.NotLeader, "you must be the leader to perform this operation")
	}
	return player, nil
}

// AddPlayer joins player to the instance. Joining is allowed when the
// instance is not full and is either public or has invited the player.
// Joining twice is idempotent success. A redeemed invite is removed, so
// invited and players never intersect.
func (inst *GameInstance) AddPlayer(player string) error {
	if inst.HasPlayer(player) {
		return nil
	}
	if !inst.HasInvited(player) && !inst.Public {
		return gameerr.New(gameerr.NotInvited, "%s not invited to instance %s", player, inst.ID)
	}
	if inst.Full {
		return gameerr.New(gameerr.Full, "%s could not join: instance %s is full", player, inst.ID)
	}
	inst.removeInvite(player)
	inst.Players = append(inst.Players, player)
	inst.SetFull()
	return nil
}

// RemovePlayer drops player from the membership list. It does not touch the
// leader or the sentinel; LeaveInstance owns those rules.
func (inst *GameInstance) RemovePlayer(player string) {
	for i, p := range inst.Players {
		if p == player {
			inst.Players = append(inst.Players[:i], inst.Players[i+1:]...)
			return
		}
	}
}

func (inst *GameInstance) removeInvite(player string) {
	for i, p := range inst.Invited {
		if p == player {
			inst.Invited = append(inst.Invited[:i], inst.Invited[i+1:]...)
			return
		}
	}
}

// RemoveInvite withdraws an invitation, reporting whether one existed.
func (inst *GameInstance) RemoveInvite(player string) bool {
	if !inst.HasInvited(player) {
		return false
	}
	inst.removeInvite(player)
	return true
}

// CreateMessage builds (but does not store) a message addressed from this
// instance. content must be JSON-serializable.
func (inst *GameInstance) CreateMessage(sender, msgType, recipient string, content interface{}) (*Message, error) {
	return NewMessage(inst.GameID, inst.ID, sender, msgType, recipient, content)
}

// ToDictionary is the representation returned by the get-instance operation.
func (inst *GameInstance) ToDictionary() map[string]interface{} {
	return map[string]interface{}{
		"gameid":      inst.GameID,
		"instanceId":  inst.ID,
		"leader":      inst.Leader,
		"players":     inst.Players,
		"invited":     inst.Invited,
		"public":      inst.Public,
		"max_players": inst.MaxPlayers,
	}
}
