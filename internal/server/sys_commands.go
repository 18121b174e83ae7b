package server

import (
	"context"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/ident"
	"github.com/openarcade/hall/internal/store"
)

// builtinCommands is the instance-management command set every registry
// starts from. Game modules register after these, so they can override any
// of them by name.
func builtinCommands() map[string]Handler {
	return map[string]Handler{
		"sys_set_public":           setPublicCommand,
		"sys_set_max_players":      setMaxPlayersCommand,
		"sys_get_public_instances": getPublicInstancesCommand,
		"sys_delete_instance":      deleteInstanceCommand,
		"sys_decline_invite":       declineInviteCommand,
	}
}

// setPublicCommand flips whether players can join without an invite. Leader
// only. Changing it never alters current membership.
func setPublicCommand(ctx context.Context, tx store.Tx, target *Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	if _, err := inst.CheckLeader(player); err != nil {
		return nil, err
	}
	raw, err := ArgAt(args, 0)
	if err != nil {
		return nil, err
	}
	value, err := ident.ParseBooleanValue(raw)
	if err != nil {
		return nil, err
	}
	inst.Public = value
	return value, nil
}

// setMaxPlayersCommand caps membership. Leader only. Lowering the cap below
// the current member count removes nobody; it only blocks new joins until
// enough players leave.
func setMaxPlayersCommand(ctx context.Context, tx store.Tx, target *Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	if _, err := inst.CheckLeader(player); err != nil {
		return nil, err
	}
	raw, err := ArgAt(args, 0)
	if err != nil {
		return nil, err
	}
	maxPlayers, err := ident.ParseIntValue(raw)
	if err != nil {
		return nil, err
	}
	inst.MaxPlayers = maxPlayers
	return maxPlayers, nil
}

// getPublicInstancesCommand lists joinable public instances of the game,
// newest first, as [instance id, member count, max players] triples.
func getPublicInstancesCommand(ctx context.Context, tx store.Tx, target *Target, player string, args []interface{}) (interface{}, error) {
	instances, err := tx.PublicInstances(target.GameID())
	if err != nil {
		return nil, err
	}
	out := make([][]interface{}, 0, len(instances))
	for _, inst := range instances {
		out = append(out, []interface{}{inst.ID, len(inst.Players), inst.MaxPlayers})
	}
	return out, nil
}

// deleteInstanceCommand tears down an instance: its messages are deleted
// best-effort in bounded batches, then the entity itself. Leader only.
func deleteInstanceCommand(ctx context.Context, tx store.Tx, target *Target, player string, args []interface{}) (interface{}, error) {
	inst := target.Instance
	if inst == nil {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"only game instances may be deleted")
	}
	if _, err := inst.CheckLeader(player); err != nil {
		return nil, err
	}
	// A full batch means messages may remain; the instance is removed
	// regardless, matching the tear-down contract.
	if _, err := tx.DeleteMessages(inst.GameID, inst.ID, "", store.DefaultFetchLimit); err != nil {
		return nil, err
	}
	if err := tx.DeleteInstance(inst.GameID, inst.ID); err != nil {
		return nil, err
	}
	inst.DoNotPersist = true
	return true, nil
}

// declineInviteCommand withdraws the caller's own invitation. Declining an
// invite you never had reports false rather than failing.
func declineInviteCommand(ctx context.Context, tx store.Tx, target *Target, player string, args []interface{}) (interface{}, error) {
	inst, err := target.RequireInstance()
	if err != nil {
		return nil, err
	}
	return inst.RemoveInvite(player), nil
}
