// internal/models/game_instance_test.go
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openarcade/hall/internal/gameerr"
)

func newTestInstance() *GameInstance {
	return NewGameInstance("tictactoe", "lobby1", "leader@example.com", time.Now())
}

func TestNewGameInstanceInvariants(t *testing.T) {
	inst := newTestInstance()
	assert.Equal(t, []string{"leader@example.com"}, inst.Players)
	assert.Empty(t, inst.Invited)
	assert.Equal(t, "leader@example.com", inst.Leader)
	assert.False(t, inst.Full)
	assert.Equal(t, 0, inst.MaxPlayers)
}

func TestCheckPlayerResolvesLeaderAlias(t *testing.T) {
	inst := newTestInstance()
	pid, err := inst.CheckPlayer("Leader")
	require.NoError(t, err)
	assert.Equal(t, "leader@example.com", pid)

	_, err = inst.CheckPlayer("stranger@example.com")
	assert.Equal(t, gameerr.NotMember, gameerr.CodeOf(err))
}

func TestCheckLeaderDoesNotResolveAlias(t *testing.T) {
	inst := newTestInstance()
	// CheckLeader wants the real id; the alias is not an email address.
	_, err := inst.CheckLeader("leader")
	assert.Error(t, err)

	pid, err := inst.CheckLeader("leader@example.com")
	require.NoError(t, err)
	assert.Equal(t, "leader@example.com", pid)
}

func TestAddPlayerRequiresInviteWhenPrivate(t *testing.T) {
	inst := newTestInstance()
	err := inst.AddPlayer("guest@example.com")
	assert.Equal(t, gameerr.NotInvited, gameerr.CodeOf(err))

	inst.Invited = append(inst.Invited, "guest@example.com")
	require.NoError(t, inst.AddPlayer("guest@example.com"))
	assert.True(t, inst.HasPlayer("guest@example.com"))
	// A redeemed invite is gone: invited and players never intersect.
	assert.False(t, inst.HasInvited("guest@example.com"))
}

func TestAddPlayerIsIdempotentForMembers(t *testing.T) {
	inst := newTestInstance()
	require.NoError(t, inst.AddPlayer("leader@example.com"))
	assert.Len(t, inst.Players, 1)
}

func TestAddPlayerRespectsFull(t *testing.T) {
	inst := newTestInstance()
	inst.Public = true
	inst.MaxPlayers = 1
	inst.SetFull()
	require.True(t, inst.Full)

	err := inst.AddPlayer("guest@example.com")
	assert.Equal(t, gameerr.Full, gameerr.CodeOf(err))

	inst.MaxPlayers = 2
	inst.SetFull()
	require.NoError(t, inst.AddPlayer("guest@example.com"))
	assert.True(t, inst.Full)
}

func TestSetFullSentinel(t *testing.T) {
	inst := newTestInstance()
	inst.MaxPlayers = BlockedMaxPlayers
	inst.SetFull()
	assert.True(t, inst.Full)

	// The sentinel keeps the instance full even with no members at all.
	inst.Players = nil
	inst.SetFull()
	assert.True(t, inst.Full)
}

func TestRemoveInvite(t *testing.T) {
	inst := newTestInstance()
	inst.Invited = []string{"guest@example.com"}
	assert.True(t, inst.RemoveInvite("guest@example.com"))
	assert.False(t, inst.RemoveInvite("guest@example.com"))
}

func TestToDictionaryShape(t *testing.T) {
	inst := newTestInstance()
	d := inst.ToDictionary()
	assert.Equal(t, "tictactoe", d["gameid"])
	assert.Equal(t, "lobby1", d["instanceId"])
	assert.Equal(t, "leader@example.com", d["leader"])
	assert.Equal(t, 0, d["max_players"])
}

func TestMessageToDictionary(t *testing.T) {
	inst := newTestInstance()
	msg, err := inst.CreateMessage("leader@example.com", "chat", "", []interface{}{"hello"})
	require.NoError(t, err)
	msg.CreatedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	d := msg.ToDictionary()
	assert.Equal(t, "chat", d["type"])
	assert.Equal(t, "", d["mrec"])
	assert.Equal(t, "leader@example.com", d["msender"])
	assert.Equal(t, []interface{}{"hello"}, d["contents"])
	assert.Equal(t, "2026-03-01T12:00:00Z", d["mtime"])
}

func TestExtFieldsRoundTrip(t *testing.T) {
	inst := newTestInstance()
	require.NoError(t, inst.Ext.Set("scb_scoreboard", map[string]int{"a@b.co": 3}))
	var board map[string]int
	ok, err := inst.Ext.Get("scb_scoreboard", &board)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, board["a@b.co"])

	assert.True(t, inst.Ext.Has("scb_scoreboard"))
	inst.Ext.Delete("scb_scoreboard")
	assert.False(t, inst.Ext.Has("scb_scoreboard"))
}
