// internal/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openarcade/hall/internal/models"
)

// Memory is an in-memory Store. Each game's entity group is guarded by its
// own mutex, so transactions on the same game serialize while different games
// proceed independently, mirroring the entity-group contract of the backing
// datastore the design assumes. Rollback is implemented by snapshotting the
// group before the transaction body runs.
type Memory struct {
	mu     sync.Mutex
	groups map[string]*memGroup

	clockMu sync.Mutex
	lastTS  time.Time
}

type memGroup struct {
	mu        sync.Mutex
	game      *models.Game
	instances map[string]*models.GameInstance
	messages  map[string][]*models.Message // keyed by instance id, creation order
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{groups: make(map[string]*memGroup)}
}

func (s *Memory) group(gid string) *memGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[gid]
	if !ok {
		g = &memGroup{
			instances: make(map[string]*models.GameInstance),
			messages:  make(map[string][]*models.Message),
		}
		s.groups[gid] = g
	}
	return g
}

// now returns a strictly increasing timestamp. The wall clock may not advance
// between two writes in the same transaction, but message replay cursors
// depend on created-at being a total order per instance.
func (s *Memory) now() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	t := time.Now().UTC()
	if !t.After(s.lastTS) {
		t = s.lastTS.Add(time.Nanosecond)
	}
	s.lastTS = t
	return t
}

// RunInTransaction implements Store.
func (s *Memory) RunInTransaction(ctx context.Context, gid string, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g := s.group(gid)
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := g.snapshot()
	if err := fn(&memTx{store: s, group: g}); err != nil {
		g.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	game      *models.Game
	instances map[string]*models.GameInstance
	messages  map[string][]*models.Message
}

func (g *memGroup) snapshot() memSnapshot {
	snap := memSnapshot{
		instances: make(map[string]*models.GameInstance, len(g.instances)),
		messages:  make(map[string][]*models.Message, len(g.messages)),
	}
	if g.game != nil {
		snap.game = copyGame(g.game)
	}
	for id, inst := range g.instances {
		snap.instances[id] = copyInstance(inst)
	}
	for id, msgs := range g.messages {
		cp := make([]*models.Message, len(msgs))
		for i, m := range msgs {
			cp[i] = copyMessage(m)
		}
		snap.messages[id] = cp
	}
	return snap
}

func (g *memGroup) restore(snap memSnapshot) {
	g.game = snap.game
	g.instances = snap.instances
	g.messages = snap.messages
}

func copyGame(game *models.Game) *models.Game {
	cp := *game
	return &cp
}

func copyInstance(inst *models.GameInstance) *models.GameInstance {
	cp := *inst
	cp.Players = append([]string(nil), inst.Players...)
	cp.Invited = append([]string(nil), inst.Invited...)
	cp.Ext = inst.Ext.Clone()
	return &cp
}

func copyMessage(m *models.Message) *models.Message {
	cp := *m
	cp.Content = append([]byte(nil), m.Content...)
	cp.Ext = m.Ext.Clone()
	return &cp
}

// memTx operates on a locked group. Reads hand out deep copies so that
// handler mutations only become visible through an explicit put.
type memTx struct {
	store *Memory
	group *memGroup
}

func (t *memTx) GetGame(gid string) (*models.Game, error) {
	if t.group.game == nil {
		return nil, nil
	}
	return copyGame(t.group.game), nil
}

func (t *memTx) PutGame(g *models.Game) error {
	t.group.game = copyGame(g)
	return nil
}

func (t *memTx) GetInstance(gid, iid string) (*models.GameInstance, error) {
	inst, ok := t.group.instances[iid]
	if !ok {
		return nil, nil
	}
	return copyInstance(inst), nil
}

func (t *memTx) PutInstance(inst *models.GameInstance) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = t.store.now()
	}
	t.group.instances[inst.ID] = copyInstance(inst)
	return nil
}

func (t *memTx) DeleteInstance(gid, iid string) error {
	delete(t.group.instances, iid)
	return nil
}

func (t *memTx) sortedInstances() []*models.GameInstance {
	out := make([]*models.GameInstance, 0, len(t.group.instances))
	for _, inst := range t.group.instances {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (t *memTx) PublicInstances(gid string) ([]*models.GameInstance, error) {
	var out []*models.GameInstance
	for _, inst := range t.sortedInstances() {
		if inst.Public && !inst.Full {
			out = append(out, copyInstance(inst))
		}
	}
	return out, nil
}

func (t *memTx) InstancesJoinedBy(gid, player string) ([]string, error) {
	var out []string
	for _, inst := range t.sortedInstances() {
		if inst.HasPlayer(player) {
			out = append(out, inst.ID)
		}
	}
	return out, nil
}

func (t *memTx) InstancesInviting(gid, player string) ([]string, error) {
	var out []string
	for _, inst := range t.sortedInstances() {
		if !inst.Full && inst.HasInvited(player) {
			out = append(out, inst.ID)
		}
	}
	return out, nil
}

func (t *memTx) PutMessages(msgs ...*models.Message) error {
	for _, m := range msgs {
		stored := t.group.messages[m.InstanceID]
		updated := false
		for i, existing := range stored {
			if existing.ID == m.ID {
				m.CreatedAt = existing.CreatedAt
				stored[i] = copyMessage(m)
				updated = true
				break
			}
		}
		if !updated {
			if m.CreatedAt.IsZero() {
				m.CreatedAt = t.store.now()
			}
			t.group.messages[m.InstanceID] = append(stored, copyMessage(m))
		}
	}
	return nil
}

func (t *memTx) GetMessage(gid, iid string, id uuid.UUID) (*models.Message, error) {
	for _, m := range t.group.messages[iid] {
		if m.ID == id {
			return copyMessage(m), nil
		}
	}
	return nil, nil
}

func (t *memTx) DeleteMessage(gid, iid string, id uuid.UUID) error {
	msgs := t.group.messages[iid]
	for i, m := range msgs {
		if m.ID == id {
			t.group.messages[iid] = append(msgs[:i], msgs[i+1:]...)
			return nil
		}
	}
	return nil
}

func matches(m *models.Message, q MessageQuery) bool {
	if q.MsgType != "" && m.MsgType != q.MsgType {
		return false
	}
	if q.Sender != "" && m.Sender != q.Sender {
		return false
	}
	if q.Recipient != nil {
		r := *q.Recipient
		if q.RecipientExact || r == "" {
			if m.Recipient != r {
				return false
			}
		} else if m.Recipient != r && m.Recipient != "" {
			return false
		}
	}
	if !q.After.IsZero() && !m.CreatedAt.After(q.After) {
		return false
	}
	return true
}

func (t *memTx) Messages(q MessageQuery) ([]*models.Message, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	stored := t.group.messages[q.InstanceID]
	var out []*models.Message
	// Stored order is creation order; walk backwards for newest-first.
	for i := len(stored) - 1; i >= 0 && len(out) < limit; i-- {
		if matches(stored[i], q) {
			out = append(out, copyMessage(stored[i]))
		}
	}
	return out, nil
}

func (t *memTx) DeleteMessages(gid, iid, msgType string, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	stored := t.group.messages[iid]
	kept := stored[:0:0]
	deleted := 0
	for _, m := range stored {
		if deleted < limit && (msgType == "" || m.MsgType == msgType) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	t.group.messages[iid] = kept
	return deleted, nil
}
