package render

import (
	"math"
	"testing"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// newTestScreen returns a 20x11 screen showing a 20x10 arena, one unit
// per cell
func newTestScreen(t *testing.T) (tcell.SimulationScreen, *TerminalRenderer) {
	t.Helper()
	screen := tcell.NewSimulationScreen("UTF-8")
	if err := screen.Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	t.Cleanup(screen.Fini)
	screen.SetSize(20, 11)

	r := NewTerminalRenderer(screen, physics.Bounds{XMin: 0, XMax: 20, YMin: 0, YMax: 10})
	return screen, r
}

func cellAt(screen tcell.Screen, x, y int) rune {
	ch, _, _, _ := screen.GetContent(x, y)
	return ch
}

func TestTerminalRenderer_WorldToScreen(t *testing.T) {
	_, r := newTestScreen(t)

	tests := []struct {
		pos          physics.Vector2D
		wantX, wantY int
	}{
		{physics.Vector2D{X: 0, Y: 0}, 0, 0},
		{physics.Vector2D{X: 5.5, Y: 2.5}, 5, 2},
		{physics.Vector2D{X: 19.9, Y: 9.9}, 19, 9},
		{physics.Vector2D{X: -1, Y: 3}, -1, 3},
	}

	for _, tt := range tests {
		x, y := r.WorldToScreen(tt.pos)
		if x != tt.wantX || y != tt.wantY {
			t.Errorf("WorldToScreen(%v) = (%d, %d), expected (%d, %d)", tt.pos, x, y, tt.wantX, tt.wantY)
		}
	}

	if got := r.ScreenToWorld(3, 4); got != (physics.Vector2D{X: 3.5, Y: 4.5}) {
		t.Errorf("ScreenToWorld(3, 4) = %v, expected (3.5, 4.5)", got)
	}
}

func TestTerminalRenderer_RenderLine(t *testing.T) {
	screen, r := newTestScreen(t)

	r.Clear()
	r.RenderLine(&entity.LineState{
		Start: physics.Vector2D{X: 2.5, Y: 5.5},
		End:   physics.Vector2D{X: 17.5, Y: 5.5},
		Kind:  physics.OneWay,
		Note:  60,
	})
	r.RenderLine(&entity.LineState{
		Start: physics.Vector2D{X: 0.5, Y: 0.5},
		End:   physics.Vector2D{X: 3.5, Y: 3.5},
		Kind:  physics.PassThrough,
		Note:  entity.NoNote,
	})

	for x := 2; x <= 17; x++ {
		if got := cellAt(screen, x, 5); got != oneWayRune {
			t.Errorf("cell (%d, 5) = %q, expected %q", x, got, oneWayRune)
		}
	}
	for i := 0; i <= 3; i++ {
		if got := cellAt(screen, i, i); got != passThroughRune {
			t.Errorf("cell (%d, %d) = %q, expected %q", i, i, got, passThroughRune)
		}
	}
	if got := cellAt(screen, 1, 0); got == passThroughRune {
		t.Error("cell (1, 0) drawn, expected a clean diagonal")
	}

	_, _, style, _ := screen.GetContent(2, 5)
	if fg, _, _ := style.Decompose(); fg != noteColors[0] {
		t.Errorf("note 60 color = %v, expected %v", fg, noteColors[0])
	}
}

func TestTerminalRenderer_RenderBall(t *testing.T) {
	screen, r := newTestScreen(t)

	r.Clear()
	r.RenderBall(&entity.BallState{Position: physics.Vector2D{X: 5.5, Y: 2.5}})
	// Off-arena balls are skipped
	r.RenderBall(&entity.BallState{Position: physics.Vector2D{X: -5, Y: 50}})

	if got := cellAt(screen, 5, 2); got != ballRune {
		t.Errorf("cell (5, 2) = %q, expected %q", got, ballRune)
	}
}

func TestTerminalRenderer_SkipsNonFiniteLines(t *testing.T) {
	screen, r := newTestScreen(t)

	r.Clear()
	r.RenderLine(&entity.LineState{
		Start: physics.Vector2D{X: math.Inf(1), Y: 0},
		End:   physics.Vector2D{X: 1, Y: 1},
	})

	cells, _, _ := screen.GetContents()
	for i, c := range cells {
		if len(c.Runes) > 0 && c.Runes[0] == oneWayRune {
			t.Fatalf("cell %d drawn for a non-finite line", i)
		}
	}
}

func TestTerminalRenderer_StatusBar(t *testing.T) {
	screen, r := newTestScreen(t)

	r.SetStatus("120 bpm")
	r.Clear()
	r.Present()

	want := "120 bpm"
	for i, ch := range want {
		if got := cellAt(screen, i, 10); got != ch {
			t.Errorf("status cell %d = %q, expected %q", i, got, ch)
		}
	}

	// The status row is not part of the arena
	r.RenderBall(&entity.BallState{Position: physics.Vector2D{X: 0.5, Y: 10.5}})
	if got := cellAt(screen, 0, 10); got != '1' {
		t.Errorf("status cell overwritten with %q", got)
	}
}
