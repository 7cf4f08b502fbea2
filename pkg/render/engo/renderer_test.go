package engo

import (
	"math"
	"testing"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// fakeRenderSystem records entities instead of drawing them
type fakeRenderSystem struct {
	entities map[uint64]*common.RenderComponent
	removed  int
}

func newFakeRenderSystem() *fakeRenderSystem {
	return &fakeRenderSystem{entities: make(map[uint64]*common.RenderComponent)}
}

func (f *fakeRenderSystem) Add(basic *ecs.BasicEntity, render *common.RenderComponent, space *common.SpaceComponent) {
	f.entities[basic.ID()] = render
}

func (f *fakeRenderSystem) Remove(basic ecs.BasicEntity) {
	delete(f.entities, basic.ID())
	f.removed++
}

func drawFrame(r *EngoRenderer, lines []entity.LineState, balls []entity.BallState) {
	r.Clear()
	for i := range lines {
		r.RenderLine(&lines[i])
	}
	for i := range balls {
		r.RenderBall(&balls[i])
	}
	r.Present()
}

func TestEngoRenderer_RenderLine(t *testing.T) {
	tests := []struct {
		name     string
		start    physics.Vector2D
		end      physics.Vector2D
		width    float32
		rotation float32
	}{
		{"horizontal", physics.Vector2D{X: 0, Y: 0}, physics.Vector2D{X: 100, Y: 0}, 200, 0},
		{"vertical_down", physics.Vector2D{X: 0, Y: 0}, physics.Vector2D{X: 0, Y: 50}, 100, 90},
		{"right_to_left", physics.Vector2D{X: 100, Y: 0}, physics.Vector2D{X: 0, Y: 0}, 200, 180},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewEngoRenderer(newFakeRenderSystem(), testCamera())
			line := entity.LineState{ID: 1, Start: tt.start, End: tt.end, Note: entity.NoNote}
			drawFrame(r, []entity.LineState{line}, nil)

			sp := r.lines[1]
			if sp == nil {
				t.Fatal("RenderLine() created no sprite")
			}
			if math.Abs(float64(sp.Width-tt.width)) > 1e-3 {
				t.Errorf("Width = %v, expected %v", sp.Width, tt.width)
			}
			if math.Abs(float64(sp.Rotation-tt.rotation)) > 1e-3 {
				t.Errorf("Rotation = %v, expected %v", sp.Rotation, tt.rotation)
			}
			if sp.Position != r.camera.WorldToScreen(tt.start) {
				t.Errorf("Position = %v, expected the start point", sp.Position)
			}
		})
	}
}

func TestEngoRenderer_LineColor(t *testing.T) {
	r := NewEngoRenderer(newFakeRenderSystem(), testCamera())

	tests := []struct {
		name   string
		line   entity.LineState
		expect uint8 // alpha
	}{
		{"one_way", entity.LineState{ID: 1, Note: 60, Kind: physics.OneWay}, 255},
		{"pass_through", entity.LineState{ID: 2, Note: 60, Kind: physics.PassThrough}, passThroughAlpha},
	}
	for _, tt := range tests {
		_, _, _, a := r.lineColor(&tt.line).RGBA()
		if uint8(a>>8) != tt.expect {
			t.Errorf("%s: alpha = %d, expected %d", tt.name, a>>8, tt.expect)
		}
	}

	if got := r.lineColor(&entity.LineState{Note: 72, Kind: physics.OneWay}); got != noteColors[0] {
		t.Errorf("lineColor(C) = %v, expected %v", got, noteColors[0])
	}
	if got := r.lineColor(&entity.LineState{Note: entity.NoNote, Kind: physics.OneWay}); got != silentLineColor {
		t.Errorf("lineColor(no note) = %v, expected %v", got, silentLineColor)
	}
}

func TestEngoRenderer_Flash(t *testing.T) {
	r := NewEngoRenderer(newFakeRenderSystem(), testCamera())
	lines := []entity.LineState{{ID: 7, End: physics.Vector2D{X: 10}, Note: 60}}

	r.Flash(7)
	drawFrame(r, lines, nil)
	if r.lines[7].Color != flashColor {
		t.Errorf("Color = %v, expected flash colour", r.lines[7].Color)
	}

	for i := 0; i < flashFrames; i++ {
		drawFrame(r, lines, nil)
	}
	if r.lines[7].Color == flashColor {
		t.Error("Color still flashing after the flash frames passed")
	}
}

func TestEngoRenderer_PrunesMissingEntities(t *testing.T) {
	system := newFakeRenderSystem()
	r := NewEngoRenderer(system, testCamera())

	lines := []entity.LineState{{ID: 1, End: physics.Vector2D{X: 10}}, {ID: 2, End: physics.Vector2D{X: 20}}}
	balls := []entity.BallState{{ID: 3, Position: physics.Vector2D{X: 50, Y: 50}}}
	drawFrame(r, lines, balls)

	if r.LineCount() != 2 || r.BallCount() != 1 || len(system.entities) != 3 {
		t.Fatalf("after first frame: lines=%d balls=%d entities=%d, expected 2 1 3",
			r.LineCount(), r.BallCount(), len(system.entities))
	}

	// Redrawing the same entities reuses their sprites
	drawFrame(r, lines, balls)
	if len(system.entities) != 3 || system.removed != 0 {
		t.Errorf("entities=%d removed=%d after redraw, expected 3 0", len(system.entities), system.removed)
	}

	drawFrame(r, lines[:1], nil)
	if r.LineCount() != 1 || r.BallCount() != 0 {
		t.Errorf("LineCount() = %d, BallCount() = %d, expected 1 0", r.LineCount(), r.BallCount())
	}
	if system.removed != 2 {
		t.Errorf("removed = %d, expected 2", system.removed)
	}
}

func TestEngoRenderer_BallSize(t *testing.T) {
	r := NewEngoRenderer(newFakeRenderSystem(), testCamera())
	drawFrame(r, nil, []entity.BallState{{ID: 1, Position: physics.Vector2D{X: 50, Y: 50}}})

	sp := r.balls[1]
	// Radius 4 units at 2 pixels per unit, centred on (116, 116)
	if sp.Width != 16 || sp.Height != 16 {
		t.Errorf("size = %vx%v, expected 16x16", sp.Width, sp.Height)
	}
	if sp.Position.X != 108 || sp.Position.Y != 108 {
		t.Errorf("Position = %v, expected (108, 108)", sp.Position)
	}
}
