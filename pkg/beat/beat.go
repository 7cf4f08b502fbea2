// Package beat turns playback time into discrete note triggers.
//
// A Beat holds a looping measure and a list of notes. Each note divides the
// measure into Speed equal parts and fires whenever playback enters a new
// part. The engine attaches a spawner to each note and drops a ball every
// time it fires.
package beat

import (
	"errors"
	"fmt"
	"math"
)

const (
	// DefaultMeasureLength is one 4/4 measure at 60 bpm, in seconds
	DefaultMeasureLength = 4.0

	// BeatsPerMeasure is used to convert a tempo to a measure length
	BeatsPerMeasure = 4

	// leadIn delays the first downbeat so it fires instead of priming
	leadIn = -0.1

	unprimed = -2
)

var (
	// ErrInvalidTimeStep is returned for negative or non-finite deltas
	ErrInvalidTimeStep = errors.New("invalid time step")
	// ErrInvalidTempo is returned for a non-positive or non-finite bpm
	ErrInvalidTempo = errors.New("invalid tempo")
	// ErrInvalidSpeed is returned for a speed outside the known note values
	ErrInvalidSpeed = errors.New("invalid note speed")
)

// Speed is the number of times a note fires per measure
type Speed int

const (
	WholeNote   Speed = 1
	HalfNote    Speed = 2
	Triplet     Speed = 3
	QuarterNote Speed = 4
	HalfTriplet Speed = 6
	EighthNote  Speed = 8
)

var speedNames = map[Speed]string{
	WholeNote:   "whole",
	HalfNote:    "half",
	Triplet:     "triplet",
	QuarterNote: "quarter",
	HalfTriplet: "half_triplet",
	EighthNote:  "eighth",
}

// Valid reports whether s is one of the known note values
func (s Speed) Valid() bool {
	_, ok := speedNames[s]
	return ok
}

func (s Speed) String() string {
	if name, ok := speedNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Speed(%d)", int(s))
}

// ParseSpeed converts a note value name such as "quarter" into a Speed
func ParseSpeed(name string) (Speed, error) {
	for s, n := range speedNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidSpeed, name)
}

// MarshalText implements encoding.TextMarshaler
func (s Speed) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSpeed, int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Speed) UnmarshalText(text []byte) error {
	parsed, err := ParseSpeed(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Note fires each time playback enters a new subdivision of the measure.
type Note[T any] struct {
	Speed   Speed
	Payload T

	progress int
}

// NewNote creates a note that primes on its first observation
func NewNote[T any](speed Speed, payload T) Note[T] {
	return Note[T]{Speed: speed, Payload: payload, progress: unprimed}
}

// Update observes the position in the measure, in [0, 1), and reports
// whether the note fires. The first observation only records the current
// subdivision.
func (n *Note[T]) Update(timeInMeasure float64) bool {
	p := int(math.Floor(timeInMeasure * float64(n.Speed)))
	if p == n.progress {
		return false
	}

	primed := n.progress != unprimed
	n.progress = p
	return primed
}

// Reset arms the note so subdivision 0 of the next measure fires
func (n *Note[T]) Reset() {
	n.progress = -1
}

// Beat loops a measure and reports which notes fire as time advances.
// It is not safe for concurrent use.
type Beat[T any] struct {
	measureLength float64
	time          float64
	notes         []Note[T]
}

// New creates a Beat at 60 bpm with no notes
func New[T any]() *Beat[T] {
	return &Beat[T]{
		measureLength: DefaultMeasureLength,
		time:          leadIn,
	}
}

// AddNote appends a note; notes fire in the order they were added.
func (b *Beat[T]) AddNote(speed Speed, payload T) error {
	if !speed.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSpeed, int(speed))
	}
	b.notes = append(b.notes, NewNote(speed, payload))
	return nil
}

// Notes returns a copy of the notes
func (b *Beat[T]) Notes() []Note[T] {
	out := make([]Note[T], len(b.notes))
	copy(out, b.notes)
	return out
}

// NoteCount returns the number of notes
func (b *Beat[T]) NoteCount() int {
	return len(b.notes)
}

// SetTempo sets the measure length from a tempo in beats per minute.
func (b *Beat[T]) SetTempo(bpm float64) error {
	if !(bpm > 0) || math.IsInf(bpm, 0) {
		return fmt.Errorf("%w: %v bpm", ErrInvalidTempo, bpm)
	}
	b.measureLength = BeatsPerMeasure * 60 / bpm
	return nil
}

// Tempo returns the current tempo in beats per minute
func (b *Beat[T]) Tempo() float64 {
	return BeatsPerMeasure * 60 / b.measureLength
}

// MeasureLength returns the length of one measure in seconds
func (b *Beat[T]) MeasureLength() float64 {
	return b.measureLength
}

// Position returns how far playback is through the measure, in [0, 1].
// It reads 0 during the lead-in.
func (b *Beat[T]) Position() float64 {
	return math.Max(0, b.time/b.measureLength)
}

// Update advances playback by dt seconds and returns the payloads of the
// notes that fired, in note order.
func (b *Beat[T]) Update(dt float64) ([]T, error) {
	if dt < 0 || math.IsNaN(dt) || math.IsInf(dt, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTimeStep, dt)
	}

	b.time += dt
	if b.time > b.measureLength {
		b.time -= b.measureLength
		for i := range b.notes {
			b.notes[i].Reset()
		}
	}

	var fired []T
	for i := range b.notes {
		if b.notes[i].Update(b.time / b.measureLength) {
			fired = append(fired, b.notes[i].Payload)
		}
	}
	return fired, nil
}
