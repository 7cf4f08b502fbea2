// pkg/entity/entity.go
package entity

import (
	"sync/atomic"

	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// ID is a unique identifier for a ball, line or player
type ID uint64

// NoNote marks a line without a pitch, when no scale is loaded
const NoNote = -1

// Entity is anything that can be drawn in the arena
type Entity interface {
	GetID() ID
	GetPosition() physics.Vector2D
	Render(r Renderer)
}

// BallInfo is the payload the game attaches to every simulated ball
type BallInfo struct {
	Spawner   int
	SpawnTick uint64
}

// LineInfo is the payload the game attaches to every simulated line
type LineInfo struct {
	Name    string
	OwnerID ID
	Note    int
}

// BallState is a snapshot of a ball as sent to clients and renderers
type BallState struct {
	ID       ID               `json:"id" msgpack:"id"`
	Position physics.Vector2D `json:"position" msgpack:"position"`
	Velocity physics.Vector2D `json:"velocity" msgpack:"velocity"`
	Spawner  int              `json:"spawner" msgpack:"spawner"`
}

// GetID returns the ball's identifier
func (b *BallState) GetID() ID {
	return b.ID
}

// GetPosition returns the ball's position
func (b *BallState) GetPosition() physics.Vector2D {
	return b.Position
}

// Render draws the ball
func (b *BallState) Render(r Renderer) {
	r.RenderBall(b)
}

// LineState is a snapshot of a line as sent to clients and renderers.
// OwnerID is zero for lines that came with the arena.
type LineState struct {
	ID      ID               `json:"id" msgpack:"id"`
	Name    string           `json:"name" msgpack:"name"`
	Start   physics.Vector2D `json:"start" msgpack:"start"`
	End     physics.Vector2D `json:"end" msgpack:"end"`
	Kind    physics.LineKind `json:"kind" msgpack:"kind"`
	Note    int              `json:"note" msgpack:"note"`
	Hits    int              `json:"hits" msgpack:"hits"`
	OwnerID ID               `json:"ownerId" msgpack:"owner_id"`
}

// GetID returns the line's identifier
func (l *LineState) GetID() ID {
	return l.ID
}

// GetPosition returns the midpoint of the line
func (l *LineState) GetPosition() physics.Vector2D {
	return l.Start.Add(l.End).Scale(0.5)
}

// Render draws the line
func (l *LineState) Render(r Renderer) {
	r.RenderLine(l)
}

var nextID atomic.Uint64

// GenerateID returns a process-wide unique ID, starting at 1
func GenerateID() ID {
	return ID(nextID.Add(1))
}
