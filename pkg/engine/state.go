// pkg/engine/state.go
package engine

import (
	"cmp"
	"slices"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// GameState represents a snapshot of the game state
type GameState struct {
	Tick                uint64             `json:"tick" msgpack:"tick"`
	Elapsed             float64            `json:"elapsed" msgpack:"elapsed"`
	Balls               []entity.BallState `json:"balls" msgpack:"balls"`
	Lines               []entity.LineState `json:"lines" msgpack:"lines"`
	Hits                []HitState         `json:"hits" msgpack:"hits"`
	Players             []PlayerState      `json:"players" msgpack:"players"`
	TotalCollisions     int                `json:"totalCollisions" msgpack:"total_collisions"`
	CollisionsPerSecond int                `json:"collisionsPerSecond" msgpack:"collisions_per_second"`
	BeatPosition        float64            `json:"beatPosition" msgpack:"beat_position"`
	Tempo               float64            `json:"tempo" msgpack:"tempo"`
	Bounds              physics.Bounds     `json:"bounds" msgpack:"bounds"`
}

// HitState is one ball touching one line during the last step
type HitState struct {
	BallID   entity.ID        `json:"ballId" msgpack:"ball_id"`
	LineID   entity.ID        `json:"lineId" msgpack:"line_id"`
	Position physics.Vector2D `json:"position" msgpack:"position"`
	Note     int              `json:"note" msgpack:"note"`
}

// PlayerState represents a snapshot of a player
type PlayerState struct {
	ID          entity.ID `json:"id" msgpack:"id"`
	Name        string    `json:"name" msgpack:"name"`
	LinesPlaced int       `json:"linesPlaced" msgpack:"lines_placed"`
}

// GetGameState returns a snapshot of the current game state
func (g *Game) GetGameState() *GameState {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()

	return g.createGameStateSnapshot()
}

// createGameStateSnapshot builds and returns the complete game state.
func (g *Game) createGameStateSnapshot() *GameState {
	return &GameState{
		Tick:                g.CurrentTick,
		Elapsed:             g.ElapsedTime,
		Balls:               g.getBallStates(),
		Lines:               g.getLineStates(),
		Hits:                append([]HitState(nil), g.recentHits...),
		Players:             g.getPlayerStates(),
		TotalCollisions:     g.Simulation.TotalCollisions(),
		CollisionsPerSecond: g.Simulation.CollisionsPerSecond(),
		BeatPosition:        g.Beat.Position(),
		Tempo:               g.Beat.Tempo(),
		Bounds:              g.Simulation.Bounds(),
	}
}

// getBallStates snapshots the live balls in update order.
func (g *Game) getBallStates() []entity.BallState {
	balls := g.Simulation.Balls()
	states := make([]entity.BallState, 0, len(balls))
	for _, b := range balls {
		states = append(states, entity.BallState{
			ID:       entity.ID(b.ID),
			Position: b.Position,
			Velocity: b.Velocity,
			Spawner:  b.Payload.Spawner,
		})
	}
	return states
}

// getLineStates snapshots the lines in collision order.
func (g *Game) getLineStates() []entity.LineState {
	lines := g.Simulation.Lines()
	states := make([]entity.LineState, 0, len(lines))
	for _, l := range lines {
		states = append(states, entity.LineState{
			ID:      entity.ID(l.ID),
			Name:    l.Payload.Name,
			Start:   l.Start(),
			End:     l.End(),
			Kind:    l.Kind,
			Note:    l.Payload.Note,
			Hits:    g.lineHits[l.ID],
			OwnerID: l.Payload.OwnerID,
		})
	}
	return states
}

// getPlayerStates snapshots the connected players ordered by ID.
func (g *Game) getPlayerStates() []PlayerState {
	states := make([]PlayerState, 0, len(g.Players))
	for _, p := range g.Players {
		states = append(states, PlayerState{
			ID:          p.ID,
			Name:        p.Name,
			LinesPlaced: p.LinesPlaced,
		})
	}
	slices.SortFunc(states, func(a, b PlayerState) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return states
}

// Entities returns every line then every ball, ready for a renderer
func (s *GameState) Entities() []entity.Entity {
	entities := make([]entity.Entity, 0, len(s.Lines)+len(s.Balls))
	for i := range s.Lines {
		entities = append(entities, &s.Lines[i])
	}
	for i := range s.Balls {
		entities = append(entities, &s.Balls[i])
	}
	return entities
}
