// pkg/render/engo/renderer.go
package engo

import (
	"image/color"
	"math"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

const (
	lineThickness = 3
	ballRadius    = 4 // arena units
	minBallPixels = 3
	flashFrames   = 8
)

// renderSystem is the part of common.RenderSystem the renderer drives
type renderSystem interface {
	Add(basic *ecs.BasicEntity, render *common.RenderComponent, space *common.SpaceComponent)
	Remove(basic ecs.BasicEntity)
}

// sprite is one drawn ball or line
type sprite struct {
	ecs.BasicEntity
	common.RenderComponent
	common.SpaceComponent
	seen bool
}

var (
	ballColor        = color.RGBA{255, 250, 220, 255}
	flashColor       = color.RGBA{255, 255, 255, 255}
	silentLineColor  = color.RGBA{160, 160, 160, 255}
	passThroughAlpha = uint8(120)

	// noteColors cycles through the twelve pitch classes
	noteColors = [12]color.RGBA{
		{230, 60, 60, 255}, {235, 110, 50, 255}, {240, 160, 40, 255}, {240, 210, 40, 255},
		{200, 230, 50, 255}, {120, 220, 70, 255}, {60, 200, 120, 255}, {50, 190, 190, 255},
		{60, 150, 230, 255}, {90, 100, 235, 255}, {150, 80, 230, 255}, {210, 70, 180, 255},
	}
)

// EngoRenderer implements entity.Renderer by keeping one engo entity per
// ball and line. Entities not drawn in a frame are removed at Present.
type EngoRenderer struct {
	system renderSystem
	camera *CameraSystem

	lines   map[entity.ID]*sprite
	balls   map[entity.ID]*sprite
	flashes map[entity.ID]int
}

// NewEngoRenderer creates a renderer that adds its entities to system
func NewEngoRenderer(system renderSystem, camera *CameraSystem) *EngoRenderer {
	return &EngoRenderer{
		system:  system,
		camera:  camera,
		lines:   make(map[entity.ID]*sprite),
		balls:   make(map[entity.ID]*sprite),
		flashes: make(map[entity.ID]int),
	}
}

// Clear implements entity.Renderer
func (r *EngoRenderer) Clear() {
	for _, sp := range r.lines {
		sp.seen = false
	}
	for _, sp := range r.balls {
		sp.seen = false
	}
	for id, n := range r.flashes {
		if n <= 1 {
			delete(r.flashes, id)
		} else {
			r.flashes[id] = n - 1
		}
	}
}

// Present implements entity.Renderer
func (r *EngoRenderer) Present() {
	r.prune(r.lines)
	r.prune(r.balls)
}

func (r *EngoRenderer) prune(sprites map[entity.ID]*sprite) {
	for id, sp := range sprites {
		if !sp.seen {
			r.system.Remove(sp.BasicEntity)
			delete(sprites, id)
		}
	}
}

// Flash highlights a line for the next few frames
func (r *EngoRenderer) Flash(lineID entity.ID) {
	r.flashes[lineID] = flashFrames
}

// RenderLine implements entity.Renderer
func (r *EngoRenderer) RenderLine(line *entity.LineState) {
	sp := r.spriteFor(r.lines, line.ID, common.Rectangle{}, 0)

	start := r.camera.WorldToScreen(line.Start)
	end := r.camera.WorldToScreen(line.End)
	dx, dy := float64(end.X-start.X), float64(end.Y-start.Y)

	sp.Position = start
	sp.Width = float32(math.Hypot(dx, dy))
	sp.Height = lineThickness
	sp.Rotation = float32(math.Atan2(dy, dx) * 180 / math.Pi)
	sp.Color = r.lineColor(line)
}

// RenderBall implements entity.Renderer
func (r *EngoRenderer) RenderBall(ball *entity.BallState) {
	sp := r.spriteFor(r.balls, ball.ID, common.Circle{}, 1)
	sp.Color = ballColor

	radius := float32(math.Max(ballRadius*r.camera.Scale(), minBallPixels))
	centre := r.camera.WorldToScreen(ball.Position)

	sp.Position = engo.Point{X: centre.X - radius, Y: centre.Y - radius}
	sp.Width = 2 * radius
	sp.Height = 2 * radius
}

func (r *EngoRenderer) lineColor(line *entity.LineState) color.Color {
	if _, ok := r.flashes[line.ID]; ok {
		return flashColor
	}

	c := silentLineColor
	if line.Note != entity.NoNote {
		c = noteColors[((line.Note%12)+12)%12]
	}
	if line.Kind == physics.PassThrough {
		c.A = passThroughAlpha
	}
	return c
}

// spriteFor returns the sprite for id, creating it on first use
func (r *EngoRenderer) spriteFor(sprites map[entity.ID]*sprite, id entity.ID, drawable common.Drawable, z float32) *sprite {
	sp, ok := sprites[id]
	if !ok {
		sp = &sprite{BasicEntity: ecs.NewBasic()}
		sp.Drawable = drawable
		sp.SetZIndex(z)
		sprites[id] = sp
		r.system.Add(&sp.BasicEntity, &sp.RenderComponent, &sp.SpaceComponent)
	}
	sp.seen = true
	return sp
}

// LineCount returns the number of lines on screen
func (r *EngoRenderer) LineCount() int {
	return len(r.lines)
}

// BallCount returns the number of balls on screen
func (r *EngoRenderer) BallCount() int {
	return len(r.balls)
}
