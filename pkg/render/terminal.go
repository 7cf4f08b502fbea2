package render

import (
	"math"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

const (
	oneWayRune      = '#'
	passThroughRune = ':'
	ballRune        = 'o'
)

// noteColors cycles through the twelve pitch classes
var noteColors = [12]tcell.Color{
	tcell.ColorRed, tcell.ColorOrangeRed, tcell.ColorOrange, tcell.ColorGold,
	tcell.ColorYellow, tcell.ColorGreenYellow, tcell.ColorGreen, tcell.ColorTeal,
	tcell.ColorAqua, tcell.ColorBlue, tcell.ColorPurple, tcell.ColorFuchsia,
}

// TerminalRenderer draws the arena as characters on a tcell screen. The
// arena is stretched to fill the screen above a one-row status bar.
type TerminalRenderer struct {
	screen tcell.Screen
	bounds physics.Bounds
	status string
}

// NewTerminalRenderer draws an arena with the given bounds on screen
func NewTerminalRenderer(screen tcell.Screen, bounds physics.Bounds) *TerminalRenderer {
	return &TerminalRenderer{screen: screen, bounds: bounds}
}

// SetBounds changes the arena shown, e.g. after connecting to a server
func (r *TerminalRenderer) SetBounds(bounds physics.Bounds) {
	r.bounds = bounds
}

// SetStatus sets the text of the status bar
func (r *TerminalRenderer) SetStatus(status string) {
	r.status = status
}

// arenaSize returns the cells available to the arena
func (r *TerminalRenderer) arenaSize() (int, int) {
	w, h := r.screen.Size()
	return w, max(h-1, 1)
}

// WorldToScreen maps an arena position to a cell
func (r *TerminalRenderer) WorldToScreen(pos physics.Vector2D) (int, int) {
	w, h := r.arenaSize()
	fx := (pos.X - r.bounds.XMin) / (r.bounds.XMax - r.bounds.XMin)
	fy := (pos.Y - r.bounds.YMin) / (r.bounds.YMax - r.bounds.YMin)
	return int(math.Floor(fx * float64(w))), int(math.Floor(fy * float64(h)))
}

// ScreenToWorld maps the centre of a cell back into the arena
func (r *TerminalRenderer) ScreenToWorld(x, y int) physics.Vector2D {
	w, h := r.arenaSize()
	return physics.Vector2D{
		X: r.bounds.XMin + (float64(x)+0.5)/float64(w)*(r.bounds.XMax-r.bounds.XMin),
		Y: r.bounds.YMin + (float64(y)+0.5)/float64(h)*(r.bounds.YMax-r.bounds.YMin),
	}
}

// CellSize returns the arena extent covered by one cell
func (r *TerminalRenderer) CellSize() physics.Vector2D {
	w, h := r.arenaSize()
	return physics.Vector2D{
		X: (r.bounds.XMax - r.bounds.XMin) / float64(w),
		Y: (r.bounds.YMax - r.bounds.YMin) / float64(h),
	}
}

// Clear implements entity.Renderer
func (r *TerminalRenderer) Clear() {
	r.screen.Clear()
}

// Present implements entity.Renderer
func (r *TerminalRenderer) Present() {
	w, h := r.screen.Size()
	style := tcell.StyleDefault.Reverse(true)
	col := 0
	for _, ch := range r.status {
		if col >= w {
			break
		}
		r.screen.SetContent(col, h-1, ch, nil, style)
		col++
	}
	for ; col < w; col++ {
		r.screen.SetContent(col, h-1, ' ', nil, style)
	}
	r.screen.Show()
}

// RenderLine implements entity.Renderer
func (r *TerminalRenderer) RenderLine(line *entity.LineState) {
	if !line.Start.IsFinite() || !line.End.IsFinite() {
		return
	}
	ch := oneWayRune
	if line.Kind == physics.PassThrough {
		ch = passThroughRune
	}
	style := tcell.StyleDefault
	if line.Note != entity.NoNote {
		style = style.Foreground(noteColors[((line.Note%12)+12)%12])
	}

	x0, y0 := r.WorldToScreen(line.Start)
	x1, y1 := r.WorldToScreen(line.End)
	r.drawLine(x0, y0, x1, y1, ch, style)
}

// RenderBall implements entity.Renderer
func (r *TerminalRenderer) RenderBall(ball *entity.BallState) {
	x, y := r.WorldToScreen(ball.Position)
	r.set(x, y, ballRune, tcell.StyleDefault.Foreground(tcell.ColorWhite).Bold(true))
}

// drawLine plots the cells between two points with Bresenham's algorithm
func (r *TerminalRenderer) drawLine(x0, y0, x1, y1 int, ch rune, style tcell.Style) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := sign(x1-x0), sign(y1-y0)
	err := dx + dy

	for {
		r.set(x0, y0, ch, style)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

// set draws a cell when it lies inside the arena area
func (r *TerminalRenderer) set(x, y int, ch rune, style tcell.Style) {
	w, h := r.arenaSize()
	if x < 0 || x >= w || y < 0 || y >= h {
		return
	}
	r.screen.SetContent(x, y, ch, nil, style)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
