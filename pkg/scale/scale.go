// Package scale maps line lengths to notes of a musical scale.
//
// Longer lines sound lower: a 200 unit line plays A4 (MIDI 69) and every
// halving of the length raises the pitch by an octave. The raw pitch is
// then snapped to the nearest note of the scale.
package scale

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strconv"
)

const (
	// ReferenceNote is the MIDI note with pitch 1.0 (A4, 440 Hz)
	ReferenceNote = 69
	// ReferenceFrequency is the frequency of ReferenceNote in Hz
	ReferenceFrequency = 440.0
	// ReferenceLength is the line length that plays ReferenceNote
	ReferenceLength = 200.0
)

var (
	// ErrEmptyScale is returned when a scale has no notes to choose from
	ErrEmptyScale = errors.New("scale has no notes")
	// ErrInvalidLength is returned for non-positive or non-finite lengths
	ErrInvalidLength = errors.New("invalid line length")
)

// PitchForMIDINote returns the playback rate of a MIDI note relative to A4
func PitchForMIDINote(note int) float64 {
	return math.Pow(2, float64(note-ReferenceNote)/12)
}

// FrequencyForMIDINote returns the frequency of a MIDI note in Hz
func FrequencyForMIDINote(note int) float64 {
	return ReferenceFrequency * PitchForMIDINote(note)
}

// Scale is a sorted set of MIDI notes
type Scale struct {
	Notes []int
}

// New returns a scale holding a sorted copy of notes
func New(notes ...int) Scale {
	sorted := slices.Clone(notes)
	slices.Sort(sorted)
	return Scale{Notes: sorted}
}

// Pentatonic is the C major pentatonic scale over three octaves
func Pentatonic() Scale {
	return New(48, 50, 52, 55, 57, 60, 62, 64, 67, 69, 72, 74, 76, 79, 81)
}

// rawNote returns the fractional MIDI note for a line length
func rawNote(length float64) float64 {
	return -math.Log2(length/ReferenceLength)*12 + ReferenceNote
}

// NoteForLength returns the scale note closest to the pitch of a line of
// the given length. Exact ties go to the higher note.
func (s Scale) NoteForLength(length float64) (int, error) {
	if len(s.Notes) == 0 {
		return 0, ErrEmptyScale
	}
	if !(length > 0) || math.IsInf(length, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLength, length)
	}

	note := rawNote(length)

	i := 0
	for i < len(s.Notes)-1 && float64(s.Notes[i]) < note {
		i++
	}
	if i == 0 {
		return s.Notes[0], nil
	}

	upper, lower := s.Notes[i], s.Notes[i-1]
	if math.Abs(float64(upper)-note) > math.Abs(float64(lower)-note) {
		return lower, nil
	}
	return upper, nil
}

// Load reads whitespace separated MIDI note numbers from path.
func Load(path string) (Scale, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scale{}, fmt.Errorf("failed to open scale file: %w", err)
	}
	defer f.Close()

	var notes []int
	scanner := bufio.NewScanner(f)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		n, err := strconv.Atoi(scanner.Text())
		if err != nil {
			return Scale{}, fmt.Errorf("invalid note %q in %s: %w", scanner.Text(), path, err)
		}
		notes = append(notes, n)
	}
	if err := scanner.Err(); err != nil {
		return Scale{}, fmt.Errorf("failed to read scale file: %w", err)
	}

	return New(notes...), nil
}
