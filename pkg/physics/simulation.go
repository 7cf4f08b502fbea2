// pkg/physics/simulation.go
package physics

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrInvalidTimeStep is returned by Update for negative or non-finite deltas
var ErrInvalidTimeStep = errors.New("invalid time step")

const (
	// DefaultGravity is the downward acceleration in units/s²
	DefaultGravity = 50.0

	// RateWindow is the simulated time between collision rate refreshes
	RateWindow = 0.5

	// DefaultMaxSweepIterations bounds the collisions resolved for one ball in one frame
	DefaultMaxSweepIterations = 1024
)

// Bounds is the arena rectangle. Balls leaving through the bottom or the
// sides are removed; the top edge is open.
type Bounds struct {
	XMin float64 `json:"xMin"`
	XMax float64 `json:"xMax"`
	YMin float64 `json:"yMin"`
	YMax float64 `json:"yMax"`
}

// DefaultBounds returns the 1280x800 arena
func DefaultBounds() Bounds {
	return Bounds{XMin: 0, XMax: 1280, YMin: 0, YMax: 800}
}

// Retains reports whether a ball at p stays in the arena
func (b Bounds) Retains(p Vector2D) bool {
	return !(p.Y > b.YMax || p.X < b.XMin || p.X > b.XMax)
}

// Contains reports whether p lies inside the full rectangle, top edge included
func (b Bounds) Contains(p Vector2D) bool {
	return p.X >= b.XMin && p.X <= b.XMax && p.Y >= b.YMin && p.Y <= b.YMax
}

// Simulation moves balls under gravity and collides them with lines.
// It is not safe for concurrent use.
type Simulation[B, L any] struct {
	balls   []Ball[B]
	lines   []Line[L]
	removed []Ball[B]

	bounds             Bounds
	gravity            Vector2D
	maxSweepIterations int

	nextBallID BallID
	nextLineID LineID

	collisionTimer      float64
	totalCollisions     int
	windowCollisions    int
	collisionsPerSecond int
}

// NewSimulation creates an empty simulation with default bounds and gravity
func NewSimulation[B, L any]() *Simulation[B, L] {
	return &Simulation[B, L]{
		balls:              make([]Ball[B], 0, 500),
		lines:              make([]Line[L], 0, 10),
		bounds:             DefaultBounds(),
		gravity:            Vector2D{X: 0, Y: DefaultGravity},
		maxSweepIterations: DefaultMaxSweepIterations,
	}
}

// SetBounds replaces the arena rectangle
func (s *Simulation[B, L]) SetBounds(bounds Bounds) {
	s.bounds = bounds
}

// Bounds returns the arena rectangle
func (s *Simulation[B, L]) Bounds() Bounds {
	return s.bounds
}

// SetGravity replaces the gravity vector
func (s *Simulation[B, L]) SetGravity(gravity Vector2D) {
	s.gravity = gravity
}

// Gravity returns the gravity vector
func (s *Simulation[B, L]) Gravity() Vector2D {
	return s.gravity
}

// SetMaxSweepIterations bounds the collisions resolved per ball per frame
func (s *Simulation[B, L]) SetMaxSweepIterations(n int) {
	if n < 1 {
		n = 1
	}
	s.maxSweepIterations = n
}

// AddBall adds a ball and returns its identifier
func (s *Simulation[B, L]) AddBall(position, velocity Vector2D, payload B) BallID {
	s.nextBallID++
	s.balls = append(s.balls, Ball[B]{
		ID:       s.nextBallID,
		Position: position,
		Velocity: velocity,
		Payload:  payload,
	})
	return s.nextBallID
}

// AddLine adds a line after the existing ones and returns its identifier.
// Insertion order decides ties between simultaneous collisions.
func (s *Simulation[B, L]) AddLine(start, end Vector2D, kind LineKind, payload L) LineID {
	s.nextLineID++
	line := NewLine(start, end, kind, payload)
	line.ID = s.nextLineID
	s.lines = append(s.lines, line)
	return line.ID
}

// RemoveLine removes a line, keeping the order of the others
func (s *Simulation[B, L]) RemoveLine(id LineID) bool {
	i := s.lineIndex(id)
	if i < 0 {
		return false
	}
	s.lines = slices.Delete(s.lines, i, i+1)
	return true
}

// MoveLine repositions a line and recomputes its derived geometry
func (s *Simulation[B, L]) MoveLine(id LineID, start, end Vector2D) bool {
	i := s.lineIndex(id)
	if i < 0 {
		return false
	}
	s.lines[i].SetEndpoints(start, end)
	return true
}

// SetLinePayload replaces the payload carried by a line
func (s *Simulation[B, L]) SetLinePayload(id LineID, payload L) bool {
	i := s.lineIndex(id)
	if i < 0 {
		return false
	}
	s.lines[i].Payload = payload
	return true
}

// Line returns a copy of the line with the given identifier
func (s *Simulation[B, L]) Line(id LineID) (Line[L], bool) {
	i := s.lineIndex(id)
	if i < 0 {
		return Line[L]{}, false
	}
	return s.lines[i], true
}

func (s *Simulation[B, L]) lineIndex(id LineID) int {
	for i := range s.lines {
		if s.lines[i].ID == id {
			return i
		}
	}
	return -1
}

// Balls returns a copy of the live balls in update order
func (s *Simulation[B, L]) Balls() []Ball[B] {
	return slices.Clone(s.balls)
}

// Lines returns a copy of the lines in collision priority order
func (s *Simulation[B, L]) Lines() []Line[L] {
	return slices.Clone(s.lines)
}

// Removed returns the balls dropped by the last Update
func (s *Simulation[B, L]) Removed() []Ball[B] {
	return slices.Clone(s.removed)
}

// BallCount returns the number of live balls
func (s *Simulation[B, L]) BallCount() int {
	return len(s.balls)
}

// LineCount returns the number of lines
func (s *Simulation[B, L]) LineCount() int {
	return len(s.lines)
}

// TotalCollisions returns every collision counted since creation
func (s *Simulation[B, L]) TotalCollisions() int {
	return s.totalCollisions
}

// CollisionsPerSecond returns the rate measured over the last complete window
func (s *Simulation[B, L]) CollisionsPerSecond() int {
	return s.collisionsPerSecond
}

// Update advances every ball by dt seconds and returns the collisions that
// happened, ordered by ball and then by time within each ball's sweep.
func (s *Simulation[B, L]) Update(dt float64) ([]CollisionEvent[B, L], error) {
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeStep, dt)
	}

	var collisions []CollisionEvent[B, L]
	for i := range s.balls {
		collisions = s.integrate(&s.balls[i], dt, collisions)
	}

	s.updateCollisionRate(dt)
	s.removeOutOfBounds()

	return collisions, nil
}

// integrate applies gravity once, then sweeps the ball through the frame,
// stopping at each line it meets.
func (s *Simulation[B, L]) integrate(b *Ball[B], dt float64, collisions []CollisionEvent[B, L]) []CollisionEvent[B, L] {
	b.Velocity = b.Velocity.Add(s.gravity.Scale(dt))

	remaining := dt
	var ignore LineID

	for i := 0; i < s.maxSweepIterations; i++ {
		index, t, point, found := s.earliestCollision(b, remaining, ignore)
		if !found {
			b.Position = b.Position.Add(b.Velocity.Scale(remaining))
			return collisions
		}

		line := &s.lines[index]
		b.Position = point
		remaining -= t
		ignore = line.ID

		collisions = append(collisions, CollisionEvent[B, L]{Ball: *b, Line: *line})
		s.totalCollisions++
		s.windowCollisions++

		if line.Kind != PassThrough {
			b.Velocity = reflect(b.Velocity, line.normal)
		}

		if remaining <= 0 {
			return collisions
		}
	}

	// Trapped between lines meeting at a point: keep the last contact.
	return collisions
}

// earliestCollision returns the index of the first line hit within
// remaining seconds. Exact ties go to the line stored first.
func (s *Simulation[B, L]) earliestCollision(b *Ball[B], remaining float64, ignore LineID) (int, float64, Vector2D, bool) {
	best := -1
	bestTime := math.Inf(1)
	var bestPoint Vector2D

	for i := range s.lines {
		l := &s.lines[i]
		if l.ID == ignore {
			continue
		}

		t, point, ok := checkCollision(b, l, remaining)
		if ok && t < bestTime {
			best = i
			bestTime = t
			bestPoint = point
		}
	}

	return best, bestTime, bestPoint, best >= 0
}

// collisionTime solves for when the ball crosses the infinite line through l.
// Parallel motion yields a non-finite value.
func collisionTime[B, L any](b *Ball[B], l *Line[L]) float64 {
	return l.start.Sub(b.Position).Dot(l.normal) / b.Velocity.Dot(l.normal)
}

// checkCollision reports whether b reaches the segment l within dt seconds
// and where. OneWay lines ignore balls moving along their normal.
func checkCollision[B, L any](b *Ball[B], l *Line[L], dt float64) (float64, Vector2D, bool) {
	t := collisionTime(b, l)
	if !(0 <= t && t <= dt) {
		return 0, Vector2D{}, false
	}

	if l.Kind == OneWay && b.Velocity.Dot(l.normal) > 0 {
		return 0, Vector2D{}, false
	}

	// Compare against the squared length instead of dividing by it.
	collision := b.Position.Add(b.Velocity.Scale(t))
	onLine := collision.Sub(l.start).Dot(l.end.Sub(l.start))
	if 0 <= onLine && onLine <= l.sqrLength {
		return t, collision, true
	}

	return 0, Vector2D{}, false
}

// reflect mirrors v about the line with unit normal n
func reflect(v, n Vector2D) Vector2D {
	along := n.Scale(-v.Dot(n))
	return along.Scale(2).Add(v)
}

// updateCollisionRate refreshes the per-second estimate every RateWindow
// of simulated time.
func (s *Simulation[B, L]) updateCollisionRate(dt float64) {
	s.collisionTimer += dt
	if s.collisionTimer > RateWindow {
		s.collisionTimer -= RateWindow
		s.collisionsPerSecond = s.windowCollisions * 2
		s.windowCollisions = 0
	}
}

// removeOutOfBounds compacts the ball slice in place, keeping order.
func (s *Simulation[B, L]) removeOutOfBounds() {
	s.removed = nil

	kept := s.balls[:0]
	for _, b := range s.balls {
		if s.bounds.Retains(b.Position) {
			kept = append(kept, b)
		} else {
			s.removed = append(s.removed, b)
		}
	}

	clear(s.balls[len(kept):])
	s.balls = kept
}
