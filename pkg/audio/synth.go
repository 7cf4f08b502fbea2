// Package audio plays the notes of line hits through the system speaker.
package audio

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/event"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/physics"
	"github.com/opd-ai/gravity-beats/pkg/scale"
)

const (
	sampleRate = beep.SampleRate(44100)

	// DefaultNoteLength is how long a plucked note rings
	DefaultNoteLength = 600 * time.Millisecond
	// DefaultMaxVoices caps how many notes sound at once
	DefaultMaxVoices = 24

	// Hits at or above this speed play at full gain
	loudSpeed = 400.0
	// Gain for hits with unknown velocity
	defaultGain = 0.6
	minGain     = 0.15
)

// Synth turns line hits into plucked sine notes. Notes are mixed even
// before Initialize; they only reach the speaker afterwards. Until then
// the mix is drained against the wall clock so notes still end.
type Synth struct {
	mu          sync.Mutex
	mixer       *beep.Mixer
	volume      *effects.Volume
	initialized bool
	drained     time.Time
	noteLength  time.Duration
	maxVoices   int
	sub         *event.Subscription
	logger      *logging.Logger
}

// NewSynth creates a synth with the default note length and voice cap
func NewSynth(logger *logging.Logger) *Synth {
	if logger == nil {
		logger = logging.Discard()
	}
	mixer := &beep.Mixer{}
	return &Synth{
		mixer:      mixer,
		volume:     &effects.Volume{Streamer: mixer, Base: 2},
		noteLength: DefaultNoteLength,
		maxVoices:  DefaultMaxVoices,
		drained:    time.Now(),
		logger:     logger.With("component", "audio"),
	}
}

// Initialize opens the speaker and starts playing the mix
func (s *Synth) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	if err := speaker.Init(sampleRate, sampleRate.N(50*time.Millisecond)); err != nil {
		return err
	}

	speaker.Play(s.volume)
	s.initialized = true
	return nil
}

// Attach plays a note for every LineHit published on bus
func (s *Synth) Attach(bus *event.Bus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		s.sub.Cancel()
	}
	s.sub = bus.Subscribe(event.LineHit, func(e event.Event) {
		hit, ok := e.(*event.LineHitEvent)
		if !ok {
			return
		}
		s.PlayNote(hit.Note, GainFor(hit.Velocity))
	})
}

// PlayNote starts a MIDI note at gain in [0, 1]. It reports whether a
// voice was started; notes without a pitch or beyond the voice cap are
// dropped.
func (s *Synth) PlayNote(note int, gain float64) bool {
	if note == entity.NoNote {
		return false
	}

	tone, err := generators.SineTone(sampleRate, scale.FrequencyForMIDINote(note))
	if err != nil {
		s.logger.Debug(context.Background(), "note out of range", "note", note, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		speaker.Lock()
		defer speaker.Unlock()
	} else {
		s.drain()
	}
	if s.mixer.Len() >= s.maxVoices {
		return false
	}

	n := sampleRate.N(s.noteLength)
	s.mixer.Add(beep.Take(n, newPluck(tone, n, gain)))
	return true
}

// Voices returns the number of notes still sounding
func (s *Synth) Voices() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		speaker.Lock()
		defer speaker.Unlock()
	} else {
		s.drain()
	}
	return s.mixer.Len()
}

// drain streams the mix into nothing for the time since the last drain.
// Must be called with mu held and the speaker closed.
func (s *Synth) drain() {
	n := sampleRate.N(time.Since(s.drained))
	if n <= 0 {
		return
	}
	s.drained = s.drained.Add(sampleRate.D(n))

	// The mixer drops a finished voice on the chunk after it ends, so one
	// note length plus two chunks clears every voice
	const chunk = 512
	n = min(n, sampleRate.N(s.noteLength)+2*chunk)
	buf := make([][2]float64, min(n, chunk))
	for n > 0 {
		k := min(n, len(buf))
		s.mixer.Stream(buf[:k])
		n -= k
	}
}

// SetVolume sets the master volume in halvings; 0 is unchanged, -1 is half
func (s *Synth) SetVolume(volume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		speaker.Lock()
		defer speaker.Unlock()
	}
	s.volume.Volume = volume
}

// SetMuted silences the output without dropping notes
func (s *Synth) SetMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		speaker.Lock()
		defer speaker.Unlock()
	}
	s.volume.Silent = muted
}

// Close detaches from the bus and silences all notes
func (s *Synth) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sub != nil {
		s.sub.Cancel()
		s.sub = nil
	}
	if s.initialized {
		speaker.Clear()
		s.initialized = false
	}
	s.mixer.Clear()
}

// GainFor maps a ball's speed at impact to a note gain. A zero velocity
// means the speed is unknown.
func GainFor(velocity physics.Vector2D) float64 {
	speed := velocity.Length()
	if speed == 0 || math.IsNaN(speed) {
		return defaultGain
	}
	return math.Max(minGain, math.Min(speed/loudSpeed, 1))
}

// pluck shapes a tone with a short attack and exponential decay
type pluck struct {
	tone  beep.Streamer
	gain  float64
	pos   int
	total int
}

const attackSamples = 220 // 5 ms

func newPluck(tone beep.Streamer, total int, gain float64) *pluck {
	return &pluck{tone: tone, gain: gain * 0.3, total: total}
}

func (p *pluck) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = p.tone.Stream(samples)
	for i := 0; i < n; i++ {
		env := math.Exp(-5 * float64(p.pos) / float64(p.total))
		if p.pos < attackSamples {
			env *= float64(p.pos) / attackSamples
		}
		samples[i][0] *= env * p.gain
		samples[i][1] *= env * p.gain
		p.pos++
	}
	return n, ok
}

func (p *pluck) Err() error {
	return p.tone.Err()
}
