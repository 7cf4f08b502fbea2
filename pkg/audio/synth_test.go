package audio

import (
	"math"
	"testing"

	"github.com/gopxl/beep/generators"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/event"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// These tests never open the speaker; the mix is streamed by hand.

func TestSynth_PlayNote(t *testing.T) {
	s := NewSynth(logging.Discard())

	if !s.PlayNote(69, 1) {
		t.Fatal("PlayNote(69) = false, expected a voice")
	}
	if s.PlayNote(entity.NoNote, 1) {
		t.Error("PlayNote(NoNote) = true, expected no voice")
	}
	if s.Voices() != 1 {
		t.Errorf("Voices() = %d, expected 1", s.Voices())
	}

	buf := make([][2]float64, 1024)
	s.volume.Stream(buf)

	peak := 0.0
	for _, sample := range buf {
		peak = math.Max(peak, math.Abs(sample[0]))
	}
	if peak == 0 {
		t.Error("mixed output is silent, expected a tone")
	}
}

func TestSynth_NoteEnds(t *testing.T) {
	s := NewSynth(nil)
	s.noteLength = sampleRate.D(512)
	s.PlayNote(60, 1)

	buf := make([][2]float64, 512)
	s.mixer.Stream(buf)
	s.mixer.Stream(buf)

	if s.Voices() != 0 {
		t.Errorf("Voices() = %d after the note's length, expected 0", s.Voices())
	}
}

func TestSynth_MaxVoices(t *testing.T) {
	s := NewSynth(nil)
	s.maxVoices = 3

	started := 0
	for note := 60; note < 66; note++ {
		if s.PlayNote(note, 1) {
			started++
		}
	}
	if started != 3 {
		t.Errorf("started %d voices, expected 3", started)
	}
}

func TestSynth_VoicesEndWithoutSpeaker(t *testing.T) {
	s := NewSynth(nil)

	for i := 0; i < DefaultMaxVoices; i++ {
		if !s.PlayNote(60+i%12, 1) {
			t.Fatalf("PlayNote() #%d = false, expected a voice", i)
		}
	}
	if s.PlayNote(72, 1) {
		t.Error("PlayNote() beyond the voice cap = true, expected false")
	}

	// A note length passes without anyone streaming the mix
	s.mu.Lock()
	s.drained = s.drained.Add(-2 * s.noteLength)
	s.mu.Unlock()

	if s.Voices() != 0 {
		t.Errorf("Voices() = %d after the notes' length, expected 0", s.Voices())
	}
	if !s.PlayNote(72, 1) {
		t.Error("PlayNote() after the notes ended = false, expected a voice")
	}
}

func TestSynth_Muted(t *testing.T) {
	s := NewSynth(nil)
	s.SetMuted(true)
	s.PlayNote(69, 1)

	buf := make([][2]float64, 512)
	s.volume.Stream(buf)
	for i, sample := range buf {
		if sample[0] != 0 || sample[1] != 0 {
			t.Fatalf("sample %d = %v while muted, expected silence", i, sample)
		}
	}
}

func TestSynth_Attach(t *testing.T) {
	s := NewSynth(nil)
	bus := event.NewEventBus()
	s.Attach(bus)

	bus.Publish(event.NewLineHitEvent(nil, 1, 2, physics.OneWay, physics.Vector2D{}, physics.Vector2D{Y: 100}, 50, 72))
	bus.Publish(event.NewLineHitEvent(nil, 1, 3, physics.OneWay, physics.Vector2D{}, physics.Vector2D{Y: 100}, 50, entity.NoNote))
	if s.Voices() != 1 {
		t.Errorf("Voices() = %d, expected 1", s.Voices())
	}

	s.Close()
	bus.Publish(event.NewLineHitEvent(nil, 1, 2, physics.OneWay, physics.Vector2D{}, physics.Vector2D{Y: 100}, 50, 72))
	if s.Voices() != 0 {
		t.Errorf("Voices() = %d after Close, expected 0", s.Voices())
	}
}

func TestGainFor(t *testing.T) {
	tests := []struct {
		name     string
		velocity physics.Vector2D
		want     float64
	}{
		{"unknown", physics.Vector2D{}, defaultGain},
		{"slow", physics.Vector2D{Y: 1}, minGain},
		{"half", physics.Vector2D{X: 200}, 0.5},
		{"fast", physics.Vector2D{Y: -1000}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GainFor(tt.velocity); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("GainFor(%v) = %v, expected %v", tt.velocity, got, tt.want)
			}
		})
	}
}

func TestPluck_Envelope(t *testing.T) {
	tone, err := generators.SineTone(sampleRate, 440)
	if err != nil {
		t.Fatalf("SineTone() error = %v", err)
	}
	p := newPluck(tone, 44100, 1)

	buf := make([][2]float64, 1)
	p.Stream(buf)
	if buf[0][0] != 0 {
		t.Errorf("first sample = %v, expected silence at the start of the attack", buf[0][0])
	}
	if p.Err() != nil {
		t.Errorf("Err() = %v", p.Err())
	}
}
