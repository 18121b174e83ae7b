package server

import (
	"context"
	"encoding/json"
	"reflect"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/historian"
	"github.com/openarcade/hall/internal/ident"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/store"
)

// Target is the entity a command runs against: a game instance when the
// request named one that exists, otherwise the game itself. Exactly one of
// the two fields is set.
type Target struct {
	Game     *models.Game
	Instance *models.GameInstance
}

// GameID works for either entity.
func (t *Target) GameID() string {
	if t.Instance != nil {
		return t.Instance.GameID
	}
	if t.Game != nil {
		return t.Game.ID
	}
	return ""
}

// RequireInstance returns the instance, or an error for commands that only
// make sense against one.
func (t *Target) RequireInstance() (*models.GameInstance, error) {
	if t.Instance == nil {
		return nil, gameerr.New(gameerr.InvalidArgument,
			"this command requires a game instance")
	}
	return t.Instance, nil
}

// Handler is one server command. It runs inside the dispatcher's
// transaction: it may mutate the target's extension fields and membership
// and may create or delete messages through tx, but must not put the target
// entity itself; the dispatcher persists it after the handler returns.
type Handler func(ctx context.Context, tx store.Tx, target *Target, player string, args []interface{}) (interface{}, error)

// Registry is the command table, built explicitly at startup. Later
// registrations win, so game-specific modules can deliberately override
// built-ins; every override is logged so accidental collisions surface.
type Registry struct {
	log      *logrus.Logger
	commands map[string]Handler
}

// NewRegistry returns a registry preloaded with the built-in sys_* commands.
func NewRegistry(log *logrus.Logger) *Registry {
	r := &Registry{log: log, commands: make(map[string]Handler)}
	r.RegisterAll(builtinCommands())
	return r
}

// Register adds one command, logging when it replaces an existing one.
func (r *Registry) Register(name string, h Handler) {
	if _, exists := r.commands[name]; exists {
		r.log.WithField("command", name).Warn("command registration overrides an existing handler")
	}
	r.commands[name] = h
}

// RegisterAll adds a module's command set.
func (r *Registry) RegisterAll(cmds map[string]Handler) {
	for name, h := range cmds {
		r.Register(name, h)
	}
}

// Lookup resolves a command name.
func (r *Registry) Lookup(name string) (Handler, bool) {
	h, ok := r.commands[name]
	return h, ok
}

// ServerCommand dispatches a named command against an instance (when iid
// names one that exists) or the game (created lazily otherwise). The handler
// runs inside one transaction together with the final persist of the target,
// so commands racing on the same game apply serially and a failed command
// leaves no trace.
func (s *Server) ServerCommand(ctx context.Context, gid, iid, pid, command, argsJSON string) (*Result, error) {
	if _, err := ident.CheckGameID(gid); err != nil {
		return nil, err
	}
	player, err := ident.CheckPlayerID(pid)
	if err != nil {
		return nil, err
	}
	handler, ok := s.registry.Lookup(command)
	if !ok {
		return nil, gameerr.New(gameerr.UnknownCommand, "invalid server command: %s", command)
	}
	args, err := parseArguments(argsJSON)
	if err != nil {
		return nil, err
	}

	var res *Result
	err = s.store.RunInTransaction(ctx, gid, func(tx store.Tx) error {
		target := &Target{}
		if iid != "" {
			inst, err := tx.GetInstance(gid, iid)
			if err != nil {
				return err
			}
			target.Instance = inst
		}
		if target.Instance == nil {
			game, err := getOrCreateGame(tx, gid)
			if err != nil {
				return err
			}
			target.Game = game
		}

		reply, err := handler(ctx, tx, target, player, args)
		if err != nil {
			return err
		}
		if target.Instance != nil {
			if !target.Instance.DoNotPersist {
				if err := putInstance(tx, target.Instance); err != nil {
					return err
				}
			}
		} else if err := tx.PutGame(target.Game); err != nil {
			return err
		}
		res = &Result{
			Target: target,
			Payload: map[string]interface{}{
				"type":     command,
				"contents": wrapReply(reply),
			},
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.historian.Record(ctx, historian.CommandRecord{
		GameID:     gid,
		InstanceID: iid,
		Player:     player,
		Command:    command,
		Timestamp:  time.Now().UnixMilli(),
	})
	return res, nil
}

// parseArguments decodes the JSON argument payload into the flat list
// handlers index into. A non-array payload becomes a one-element list.
func parseArguments(argsJSON string) ([]interface{}, error) {
	if argsJSON == "" {
		return nil, gameerr.New(gameerr.BadArguments, "command arguments are missing")
	}
	var v interface{}
	if err := json.Unmarshal([]byte(argsJSON), &v); err != nil {
		return nil, gameerr.New(gameerr.BadArguments, "command arguments failed to parse: %v", err)
	}
	if list, ok := v.([]interface{}); ok {
		return list, nil
	}
	return []interface{}{v}, nil
}

// wrapReply normalizes a handler's return value into the list shape the
// response contract promises.
func wrapReply(reply interface{}) interface{} {
	if reply == nil {
		return []interface{}{}
	}
	switch reply.(type) {
	case []byte, json.RawMessage, string:
		return []interface{}{reply}
	}
	if reflect.ValueOf(reply).Kind() == reflect.Slice {
		return reply
	}
	return []interface{}{reply}
}

// ArgAt guards handler argument access so short argument lists fail cleanly.
// It is shared with the command modules, which index into the same flat
// argument lists.
func ArgAt(args []interface{}, i int) (interface{}, error) {
	if i >= len(args) {
		return nil, gameerr.New(gameerr.BadArguments,
			"command expects at least %d arguments, got %d", i+1, len(args))
	}
	return args[i], nil
}

// StringArg reads a required string argument.
func StringArg(args []interface{}, i int) (string, error) {
	v, err := ArgAt(args, i)
	if err != nil {
		return "", err
	}
	str, ok := v.(string)
	if !ok {
		return "", gameerr.New(gameerr.BadArguments, "argument %d must be a string", i)
	}
	return str, nil
}

// ListArg reads a required list argument.
func ListArg(args []interface{}, i int) ([]interface{}, error) {
	v, err := ArgAt(args, i)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]interface{})
	if !ok {
		return nil, gameerr.New(gameerr.BadArguments, "argument %d must be a list", i)
	}
	return list, nil
}
