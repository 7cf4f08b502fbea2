// pkg/engine/game.go
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/opd-ai/gravity-beats/pkg/beat"
	"github.com/opd-ai/gravity-beats/pkg/config"
	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/event"
	"github.com/opd-ai/gravity-beats/pkg/physics"
	"github.com/opd-ai/gravity-beats/pkg/scale"
	"github.com/opd-ai/gravity-beats/pkg/validation"
)

// MaxDeltaTime caps the wall-clock step taken by Update
const MaxDeltaTime = 0.1

// GameStatus is the lifecycle state of a game
type GameStatus int

const (
	GameStatusWaiting GameStatus = iota
	GameStatusActive
	GameStatusEnded
)

var (
	ErrGameFull        = errors.New("game is full")
	ErrPlayerNotFound  = errors.New("player not found")
	ErrLineNotFound    = errors.New("line not found")
	ErrNotLineOwner    = errors.New("line belongs to another player")
	ErrInvalidEndpoint = errors.New("line endpoints must be finite and distinct")
)

// Simulation is the physics world the game drives
type Simulation = physics.Simulation[entity.BallInfo, entity.LineInfo]

// Spawner drops a ball every time its note fires
type Spawner struct {
	Name     string
	Position physics.Vector2D
	Velocity physics.Vector2D
	Speed    beat.Speed
}

// Player is a connected client that can draw lines
type Player struct {
	ID          entity.ID
	Name        string
	Connected   bool
	LinesPlaced int
}

// Game owns the arena: the physics simulation, the beat that drives the
// spawners and the scale that tunes the lines.
type Game struct {
	Config      *config.GameConfig
	Simulation  *Simulation
	Beat        *beat.Beat[int]
	Scale       *scale.Scale
	Spawners    []Spawner
	Players     map[entity.ID]*Player
	EntityLock  sync.RWMutex
	Running     bool
	Status      GameStatus
	CurrentTick uint64
	LastUpdate  time.Time
	StartTime   time.Time
	ElapsedTime float64 // simulated seconds
	EventBus    *event.Bus

	lineHits   map[physics.LineID]int
	recentHits []HitState
}

// NewGame builds the arena described by cfg
func NewGame(cfg *config.GameConfig) (*Game, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid game config: %w", err)
	}

	game := &Game{
		Config:     cfg,
		Simulation: physics.NewSimulation[entity.BallInfo, entity.LineInfo](),
		Beat:       beat.New[int](),
		Players:    make(map[entity.ID]*Player),
		LastUpdate: time.Now(),
		EventBus:   event.NewEventBus(),
		lineHits:   make(map[physics.LineID]int),
	}

	game.initArena()
	if err := game.initScale(); err != nil {
		return nil, err
	}
	game.initLines()
	if err := game.initSpawners(); err != nil {
		return nil, err
	}

	return game, nil
}

// initArena applies bounds, gravity and the sweep cap.
func (g *Game) initArena() {
	arena := g.Config.Arena
	g.Simulation.SetBounds(arena.Bounds)
	g.Simulation.SetGravity(physics.Vector2D{X: 0, Y: arena.Gravity})
	if arena.MaxSweepIterations > 0 {
		g.Simulation.SetMaxSweepIterations(arena.MaxSweepIterations)
	}
}

// initScale loads the scale file, falling back to the inline notes.
// A game without either plays no pitches.
func (g *Game) initScale() error {
	music := g.Config.Music
	switch {
	case music.ScaleFile != "":
		s, err := scale.Load(music.ScaleFile)
		if err != nil {
			return fmt.Errorf("failed to load scale: %w", err)
		}
		g.Scale = &s
	case len(music.ScaleNotes) > 0:
		s := scale.New(music.ScaleNotes...)
		g.Scale = &s
	}
	return nil
}

// initLines adds the arena's fixed lines.
func (g *Game) initLines() {
	for _, lc := range g.Config.Lines {
		g.addLine(lc.Start, lc.End, lc.Kind, lc.Name, 0)
	}
}

// initSpawners turns each spawner config into a beat note.
func (g *Game) initSpawners() error {
	if err := g.Beat.SetTempo(g.Config.Music.Tempo); err != nil {
		return fmt.Errorf("failed to set tempo: %w", err)
	}

	for i, sc := range g.Config.Spawners {
		angle := sc.Angle * math.Pi / 180
		g.Spawners = append(g.Spawners, Spawner{
			Name:     sc.Name,
			Position: sc.Position,
			Velocity: physics.FromAngle(angle, sc.LaunchSpeed),
			Speed:    sc.Speed,
		})
		if err := g.Beat.AddNote(sc.Speed, i); err != nil {
			return fmt.Errorf("spawner %q: %w", sc.Name, err)
		}
	}
	return nil
}

// noteFor returns the MIDI note of a line of the given length
func (g *Game) noteFor(length float64) int {
	if g.Scale == nil {
		return entity.NoNote
	}
	note, err := g.Scale.NoteForLength(length)
	if err != nil {
		return entity.NoNote
	}
	return note
}

// Start begins the game update loop
func (g *Game) Start() {
	g.EntityLock.Lock()
	g.Running = true
	g.Status = GameStatusActive
	g.StartTime = time.Now()
	g.LastUpdate = time.Now()
	g.EntityLock.Unlock()

	g.EventBus.Publish(&event.BaseEvent{
		EventType: event.GameStarted,
		Source:    g,
	})
}

// Stop halts the game update loop
func (g *Game) Stop() {
	g.EntityLock.Lock()
	if g.Status == GameStatusEnded {
		g.EntityLock.Unlock()
		return
	}
	g.Running = false
	g.Status = GameStatusEnded
	g.EntityLock.Unlock()

	g.EventBus.Publish(&event.BaseEvent{
		EventType: event.GameEnded,
		Source:    g,
	})
}

// IsRunning reports whether the game is between Start and Stop
func (g *Game) IsRunning() bool {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()
	return g.Running
}

// Tick returns the number of completed steps
func (g *Game) Tick() uint64 {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()
	return g.CurrentTick
}

// Update advances the game by the wall-clock time since the last update
func (g *Game) Update() error {
	return g.Step(g.calculateDeltaTime())
}

// calculateDeltaTime calculates the time since the last update and caps it.
func (g *Game) calculateDeltaTime() float64 {
	g.EntityLock.Lock()
	defer g.EntityLock.Unlock()

	now := time.Now()
	deltaTime := now.Sub(g.LastUpdate).Seconds()
	g.LastUpdate = now

	return math.Min(deltaTime, MaxDeltaTime)
}

// Step advances the game by dt seconds: spawners whose notes fire drop a
// ball, every ball moves, and each line touched publishes a LineHit.
// Event handlers run while the game is locked and must not call back
// into the game.
func (g *Game) Step(dt float64) error {
	g.EntityLock.Lock()
	defer g.EntityLock.Unlock()

	fired, err := g.Beat.Update(dt)
	if err != nil {
		return err
	}
	for _, idx := range fired {
		g.spawnBall(idx)
	}

	collisions, err := g.Simulation.Update(dt)
	if err != nil {
		return err
	}

	g.recentHits = g.recentHits[:0]
	for _, c := range collisions {
		g.handleCollision(c)
	}

	for _, b := range g.Simulation.Removed() {
		g.EventBus.Publish(event.NewBallEvent(
			event.BallRemoved, g, uint64(b.ID), b.Position, b.Payload.Spawner,
		))
	}

	g.ElapsedTime += dt
	g.CurrentTick++
	return nil
}

// spawnBall drops a ball from spawner idx unless the arena is full.
// Must be called with the lock held.
func (g *Game) spawnBall(idx int) {
	if g.Simulation.BallCount() >= g.Config.Arena.MaxBalls {
		return
	}
	sp := g.Spawners[idx]
	id := g.Simulation.AddBall(sp.Position, sp.Velocity, entity.BallInfo{
		Spawner:   idx,
		SpawnTick: g.CurrentTick,
	})
	g.EventBus.Publish(event.NewBallEvent(event.BallSpawned, g, uint64(id), sp.Position, idx))
}

// handleCollision counts the hit and publishes it.
// Must be called with the lock held.
func (g *Game) handleCollision(c physics.CollisionEvent[entity.BallInfo, entity.LineInfo]) {
	g.lineHits[c.Line.ID]++

	hit := HitState{
		BallID:   entity.ID(c.Ball.ID),
		LineID:   entity.ID(c.Line.ID),
		Position: c.Ball.Position,
		Note:     c.Line.Payload.Note,
	}
	g.recentHits = append(g.recentHits, hit)

	g.EventBus.Publish(event.NewLineHitEvent(
		g,
		uint64(c.Ball.ID),
		uint64(c.Line.ID),
		c.Line.Kind,
		c.Ball.Position,
		c.Ball.Velocity,
		c.Line.Length(),
		c.Line.Payload.Note,
	))
}

// AddPlayer adds a new player to the game
func (g *Game) AddPlayer(name string) (entity.ID, error) {
	g.EntityLock.Lock()
	defer g.EntityLock.Unlock()

	if len(g.Players) >= g.Config.MaxPlayers {
		return 0, ErrGameFull
	}

	player := &Player{
		ID:        entity.GenerateID(),
		Name:      name,
		Connected: true,
	}
	g.Players[player.ID] = player

	g.EventBus.Publish(event.NewPlayerEvent(event.PlayerJoined, g, uint64(player.ID), name))
	return player.ID, nil
}

// RemovePlayer removes a player along with every line they drew
func (g *Game) RemovePlayer(playerID entity.ID) error {
	g.EntityLock.Lock()
	defer g.EntityLock.Unlock()

	player, ok := g.Players[playerID]
	if !ok {
		return ErrPlayerNotFound
	}
	player.Connected = false
	delete(g.Players, playerID)

	for _, line := range g.Simulation.Lines() {
		if line.Payload.OwnerID != playerID {
			continue
		}
		g.Simulation.RemoveLine(line.ID)
		delete(g.lineHits, line.ID)
		g.EventBus.Publish(event.NewLineEvent(
			event.LineRemoved, g, uint64(line.ID), uint64(playerID), line.Start(), line.End(), line.Kind,
		))
	}

	g.EventBus.Publish(event.NewPlayerEvent(event.PlayerLeft, g, uint64(player.ID), player.Name))
	return nil
}

// PlaceLine adds a line drawn by ownerID. An owner of zero places an
// arena line; players cannot edit it, only requester zero can.
// Player lines must lie inside the arena and be long enough to hit.
func (g *Game) PlaceLine(ownerID entity.ID, start, end physics.Vector2D, kind physics.LineKind, name string) (entity.ID, error) {
	if err := g.checkLine(ownerID != 0, start, end, kind); err != nil {
		return 0, err
	}

	g.EntityLock.Lock()
	defer g.EntityLock.Unlock()

	if ownerID != 0 {
		player, ok := g.Players[ownerID]
		if !ok {
			return 0, ErrPlayerNotFound
		}
		player.LinesPlaced++
	}

	id := g.addLine(start, end, kind, name, ownerID)
	g.EventBus.Publish(event.NewLineEvent(event.LinePlaced, g, uint64(id), uint64(ownerID), start, end, kind))
	return entity.ID(id), nil
}

// addLine tunes and inserts a line. Must be called with the lock held.
func (g *Game) addLine(start, end physics.Vector2D, kind physics.LineKind, name string, ownerID entity.ID) physics.LineID {
	info := entity.LineInfo{
		Name:    name,
		OwnerID: ownerID,
		Note:    g.noteFor(start.Distance(end)),
	}
	return g.Simulation.AddLine(start, end, kind, info)
}

// RemoveLine deletes a line. Players may only remove their own lines;
// requester zero removes any line.
func (g *Game) RemoveLine(requester, lineID entity.ID) error {
	g.EntityLock.Lock()
	defer g.EntityLock.Unlock()

	line, err := g.editableLine(requester, lineID)
	if err != nil {
		return err
	}

	g.Simulation.RemoveLine(line.ID)
	delete(g.lineHits, line.ID)

	g.EventBus.Publish(event.NewLineEvent(
		event.LineRemoved, g, uint64(line.ID), uint64(line.Payload.OwnerID), line.Start(), line.End(), line.Kind,
	))
	return nil
}

// MoveLine gives a line new endpoints and retunes it. Moves requested
// by a player are held to the same limits as PlaceLine.
func (g *Game) MoveLine(requester, lineID entity.ID, start, end physics.Vector2D) error {
	if !start.IsFinite() || !end.IsFinite() || start == end {
		return ErrInvalidEndpoint
	}

	g.EntityLock.Lock()
	defer g.EntityLock.Unlock()

	line, err := g.editableLine(requester, lineID)
	if err != nil {
		return err
	}
	if err := g.checkLine(requester != 0, start, end, line.Kind); err != nil {
		return err
	}

	// Moving in place keeps the line's ID and collision order
	g.Simulation.MoveLine(line.ID, start, end)
	info := line.Payload
	info.Note = g.noteFor(start.Distance(end))
	g.Simulation.SetLinePayload(line.ID, info)

	g.EventBus.Publish(event.NewLineEvent(
		event.LineMoved, g, uint64(line.ID), uint64(line.Payload.OwnerID), start, end, line.Kind,
	))
	return nil
}

// checkLine rejects endpoints a line cannot have. Player lines also go
// through the arena limits in pkg/validation.
func (g *Game) checkLine(player bool, start, end physics.Vector2D, kind physics.LineKind) error {
	if player {
		if err := validation.ValidateLine(start, end, kind, g.Config.Arena.Bounds); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
		}
		return nil
	}
	if !start.IsFinite() || !end.IsFinite() || start == end {
		return ErrInvalidEndpoint
	}
	if kind != physics.PassThrough && kind != physics.OneWay {
		return fmt.Errorf("%w: unknown line kind %d", ErrInvalidEndpoint, kind)
	}
	return nil
}

// editableLine looks up a line the requester is allowed to change.
// Must be called with the lock held.
func (g *Game) editableLine(requester, lineID entity.ID) (physics.Line[entity.LineInfo], error) {
	line, ok := g.Simulation.Line(physics.LineID(lineID))
	if !ok {
		return line, ErrLineNotFound
	}
	if requester != 0 && line.Payload.OwnerID != requester {
		return line, ErrNotLineOwner
	}
	return line, nil
}

// LineHits returns how many times a line has been hit
func (g *Game) LineHits(lineID entity.ID) int {
	g.EntityLock.RLock()
	defer g.EntityLock.RUnlock()
	return g.lineHits[physics.LineID(lineID)]
}
