// Package server implements the game lobby operations: instance lifecycle
// (create, invite, join, leave, leader changes), the typed message mailbox,
// and the transactional command dispatcher that game modules plug into.
//
// Every operation runs inside exactly one store transaction scoped to the
// owning game. Any error rolls the transaction back completely, so a failed
// request never leaves partial state behind.
package server

import (
	"github.com/sirupsen/logrus"

	"github.com/openarcade/hall/internal/gameerr"
	"github.com/openarcade/hall/internal/historian"
	"github.com/openarcade/hall/internal/models"
	"github.com/openarcade/hall/internal/store"
)

// Server owns the lobby operations. It is stateless across requests; all
// game state lives in the entity store.
type Server struct {
	store     store.Store
	registry  *Registry
	historian *historian.Historian
	log       *logrus.Logger
}

// New builds a Server. historian may be nil to disable command history.
func New(st store.Store, registry *Registry, hist *historian.Historian, log *logrus.Logger) *Server {
	return &Server{store: st, registry: registry, historian: hist, log: log}
}

// Result is what an operation hands back: the entity it ran against and the
// operation-specific payload. The entity decides which identity fields the
// response envelope carries.
type Result struct {
	Target  *Target
	Payload interface{}
}

// Response is the uniform envelope written for every request, successful or
// not. When the operation targeted a game instance the envelope carries its
// id, leader and membership so clients can track lobby state from any reply.
type Response struct {
	RequestType string      `json:"request_type"`
	Error       bool        `json:"e"`
	Response    interface{} `json:"response"`
	GameID      string      `json:"gid"`
	InstanceID  string      `json:"iid"`
	Leader      string      `json:"leader"`
	Players     []string    `json:"players"`
}

// NewResponse wraps a successful operation result for the wire.
func NewResponse(requestType string, res *Result) Response {
	resp := Response{
		RequestType: requestType,
		Response:    res.Payload,
		Players:     []string{},
	}
	if res.Target != nil {
		if inst := res.Target.Instance; inst != nil {
			resp.GameID = inst.GameID
			resp.InstanceID = inst.ID
			resp.Leader = inst.Leader
			resp.Players = inst.Players
		} else if res.Target.Game != nil {
			resp.GameID = res.Target.Game.ID
		}
	}
	return resp
}

// ErrorResponse wraps a failed operation for the wire. All failures collapse
// to the same shape: the error flag and a human-readable message.
func ErrorResponse(requestType string, err error) Response {
	return Response{
		RequestType: requestType,
		Error:       true,
		Response:    err.Error(),
		Players:     []string{},
	}
}

// putInstance recomputes the derived full flag before every persist.
func putInstance(tx store.Tx, inst *models.GameInstance) error {
	inst.SetFull()
	return tx.PutInstance(inst)
}

// getInstance resolves an instance or fails with NotFound.
func getInstance(tx store.Tx, gid, iid string) (*models.GameInstance, error) {
	inst, err := tx.GetInstance(gid, iid)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, gameerr.New(gameerr.NotFound, "instance %s of game %s not found", iid, gid)
	}
	return inst, nil
}

// getOrCreateGame resolves a game, lazily creating it on first reference.
// The caller persists the game if the creation should stick.
func getOrCreateGame(tx store.Tx, gid string) (*models.Game, error) {
	game, err := tx.GetGame(gid)
	if err != nil {
		return nil, err
	}
	if game == nil {
		game = models.NewGame(gid)
	}
	return game, nil
}

// instanceLists gathers the discovery lists for one player: instances they
// have joined, joinable instances they are invited to, and joinable public
// instances. All newest-created first.
func instanceLists(tx store.Tx, gid, player string) (map[string][]string, error) {
	joined, err := tx.InstancesJoinedBy(gid, player)
	if err != nil {
		return nil, err
	}
	invited, err := tx.InstancesInviting(gid, player)
	if err != nil {
		return nil, err
	}
	public, err := tx.PublicInstances(gid)
	if err != nil {
		return nil, err
	}
	publicIDs := make([]string, 0, len(public))
	for _, inst := range public {
		publicIDs = append(publicIDs, inst.ID)
	}
	if joined == nil {
		joined = []string{}
	}
	if invited == nil {
		invited = []string{}
	}
	return map[string][]string{
		"joined":  joined,
		"invited": invited,
		"public":  publicIDs,
	}, nil
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
