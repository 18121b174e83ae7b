// internal/models/game.go
package models

// Game represents one game type. It is the parent entity of every
// GameInstance created under its id, which is also the transactional
// entity-group boundary in the store.
type Game struct {
	ID string `json:"gameId"`

	// InstanceCount grows every time an instance is created under this game
	// and seeds the suffix used to de-duplicate instance ids. It is a hint,
	// not an authority: instance creation re-probes the store for collisions.
	InstanceCount int64 `json:"instanceCount"`
}

// NewGame returns a Game with a zero instance counter.
func NewGame(gid string) *Game {
	return &Game{ID: gid}
}
