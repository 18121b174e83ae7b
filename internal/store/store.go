// Package store defines the entity-store contract the game server runs on:
// typed get/put/delete for games, instances and messages, the instance and
// message queries the registry needs, and a run-in-transaction primitive
// scoped to one game's entity group (the game plus all of its instances and
// their messages).
//
// Two implementations exist: an in-memory store used by tests and
// single-node deployments, and a postgres store built on pgx.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/openarcade/hall/internal/models"
)

// DefaultFetchLimit bounds message fetches and bulk deletes when the caller
// does not supply a limit.
const DefaultFetchLimit = 1000

// MessageQuery selects messages of one instance. Results are returned
// newest-first; callers that need chronological replay reverse the window
// themselves, preserving the "newest limit, then reverse" semantic.
type MessageQuery struct {
	GameID     string
	InstanceID string

	// MsgType filters by type; empty matches all types.
	MsgType string

	// Recipient, when non-nil, filters to messages addressed to the given
	// player or broadcast (empty recipient). When RecipientExact is set the
	// broadcast widening is skipped and only exact matches count.
	Recipient      *string
	RecipientExact bool

	// Sender filters by sender; empty matches all senders.
	Sender string

	// After excludes messages created at or before the given time.
	After time.Time

	// Limit caps the result window; zero or negative means DefaultFetchLimit.
	Limit int
}

// Tx is one transaction against a single game's entity group. Any error
// returned from the transaction body rolls back every write made through the
// Tx; no partial mutation is ever observable afterwards.
type Tx interface {
	// GetGame returns the game, or (nil, nil) if it has never been stored.
	GetGame(gid string) (*models.Game, error)
	PutGame(g *models.Game) error

	// GetInstance returns the instance, or (nil, nil) if absent.
	GetInstance(gid, iid string) (*models.GameInstance, error)
	PutInstance(inst *models.GameInstance) error
	// DeleteInstance removes the instance entity. Its messages are deleted
	// separately (and best-effort) via DeleteMessages.
	DeleteInstance(gid, iid string) error

	// PublicInstances returns joinable public instances of a game,
	// newest-created first.
	PublicInstances(gid string) ([]*models.GameInstance, error)
	// InstancesJoinedBy returns ids of instances the player is a member of,
	// newest-created first.
	InstancesJoinedBy(gid, player string) ([]string, error)
	// InstancesInviting returns ids of joinable instances the player holds an
	// invite to, newest-created first.
	InstancesInviting(gid, player string) ([]string, error)

	// PutMessages stores (or updates, for poll-style mutable messages) the
	// given messages, assigning creation times to new ones.
	PutMessages(msgs ...*models.Message) error
	// GetMessage returns one message by id, or (nil, nil) if absent.
	GetMessage(gid, iid string, id uuid.UUID) (*models.Message, error)
	// DeleteMessage removes one message by id.
	DeleteMessage(gid, iid string, id uuid.UUID) error
	// Messages runs a query, newest-first.
	Messages(q MessageQuery) ([]*models.Message, error)
	// DeleteMessages removes up to limit messages of the given type (all
	// types if empty), oldest-first, and reports how many were deleted.
	// Callers treat completion as best-effort: a full batch means there may
	// be more to delete.
	DeleteMessages(gid, iid, msgType string, limit int) (int, error)
}

// Store runs transactions. Concurrent transactions on the same game id are
// serialized by the implementation; transactions on different games may
// interleave freely.
type Store interface {
	RunInTransaction(ctx context.Context, gid string, fn func(tx Tx) error) error
}
