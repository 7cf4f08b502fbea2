// pkg/physics/geometry.go
package physics

import "fmt"

// BallID identifies a ball for the lifetime of a simulation
type BallID uint64

// LineID identifies a line for the lifetime of a simulation.
// IDs are never reused, so they stay valid across slice growth and removals.
type LineID uint64

// LineKind selects how a line responds to a ball crossing it
type LineKind int

const (
	// PassThrough lines report the crossing but leave the velocity alone
	PassThrough LineKind = iota
	// OneWay lines reflect balls arriving against their normal
	OneWay
)

// String returns the config/wire name of the kind
func (k LineKind) String() string {
	switch k {
	case PassThrough:
		return "pass_through"
	case OneWay:
		return "one_way"
	default:
		return fmt.Sprintf("LineKind(%d)", int(k))
	}
}

// ParseLineKind converts a config/wire name into a LineKind
func ParseLineKind(s string) (LineKind, error) {
	switch s {
	case "pass_through":
		return PassThrough, nil
	case "one_way":
		return OneWay, nil
	default:
		return 0, fmt.Errorf("unknown line kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (k LineKind) MarshalText() ([]byte, error) {
	if k != PassThrough && k != OneWay {
		return nil, fmt.Errorf("unknown line kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *LineKind) UnmarshalText(text []byte) error {
	parsed, err := ParseLineKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Ball is a point mass moved by the simulation.
// Payload is carried for the caller and never inspected.
type Ball[B any] struct {
	ID       BallID
	Position Vector2D
	Velocity Vector2D
	Payload  B
}

// Line is a finite segment balls collide with.
//
// The normal is the start->end direction rotated 90 degrees
// counter-clockwise, (x, y) -> (-y, x). With screen coordinates (y grows
// downward) a line authored right to left has its normal pointing up, so
// as a OneWay line it catches balls falling onto it and lets balls coming
// from below through. Authored left to right the blocking side flips.
type Line[L any] struct {
	ID      LineID
	Kind    LineKind
	Payload L

	start     Vector2D
	end       Vector2D
	normal    Vector2D
	sqrLength float64
}

// NewLine creates a line with its derived geometry computed
func NewLine[L any](start, end Vector2D, kind LineKind, payload L) Line[L] {
	l := Line[L]{
		Kind:    kind,
		Payload: payload,
	}
	l.SetEndpoints(start, end)
	return l
}

// SetEndpoints moves the line and recomputes its normal and squared length
func (l *Line[L]) SetEndpoints(start, end Vector2D) {
	l.start = start
	l.end = end

	dir := end.Sub(start)
	l.normal = dir.RotateCCW().Normalize()
	l.sqrLength = dir.LengthSquared()
}

// Start returns the first endpoint
func (l Line[L]) Start() Vector2D {
	return l.start
}

// End returns the second endpoint
func (l Line[L]) End() Vector2D {
	return l.end
}

// Normal returns the unit normal (zero for a degenerate line)
func (l Line[L]) Normal() Vector2D {
	return l.normal
}

// SquaredLength returns the squared distance between the endpoints
func (l Line[L]) SquaredLength() float64 {
	return l.sqrLength
}

// Length returns the distance between the endpoints
func (l Line[L]) Length() float64 {
	return l.end.Sub(l.start).Length()
}

// CollisionEvent is a snapshot of a ball hitting a line.
// Ball holds the impact position and the velocity before the bounce.
type CollisionEvent[B, L any] struct {
	Ball Ball[B]
	Line Line[L]
}
