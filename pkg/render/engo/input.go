// pkg/render/engo/input.go
package engo

import (
	"context"
	"sync"
	"time"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

const (
	buttonToggleKind = "toggleKind"
	buttonUndo       = "undo"
	buttonResetZoom  = "resetZoom"

	// Drags shorter than this many pixels are treated as clicks
	minDragPixels = 6
	// Right clicks within this many pixels of a line remove it
	pickPixels = 8

	commandTimeout = 5 * time.Second
)

// LineEditor places and removes the local player's lines
type LineEditor interface {
	PlayerID() entity.ID
	PlaceLine(ctx context.Context, start, end physics.Vector2D, kind physics.LineKind, name string) (entity.ID, error)
	RemoveLine(ctx context.Context, lineID entity.ID) error
}

// InputSystem turns mouse drags into lines. Left drag draws a line,
// right click erases the player's line under the cursor, K switches the
// line kind and Z removes the last line drawn.
type InputSystem struct {
	editor LineEditor
	camera *CameraSystem
	hud    *HUDSystem

	kind      physics.LineKind
	dragging  bool
	dragStart engo.Point
	lines     []entity.LineState

	mu     sync.Mutex
	placed []entity.ID

	// run executes editor calls off the render loop
	run func(func())
}

// NewInputSystem creates a new input system
func NewInputSystem(editor LineEditor, camera *CameraSystem, hud *HUDSystem) *InputSystem {
	return &InputSystem{
		editor: editor,
		camera: camera,
		hud:    hud,
		kind:   physics.OneWay,
		run:    func(f func()) { go f() },
	}
}

// Remove satisfies the ecs.System interface
func (is *InputSystem) Remove(basic ecs.BasicEntity) {}

// Update processes mouse and key input
func (is *InputSystem) Update(dt float32) {
	m := engo.Input.Mouse
	p := engo.Point{X: m.X, Y: m.Y}

	switch {
	case m.Action == engo.Press && m.Button == engo.MouseButtonLeft:
		is.BeginDrag(p)
	case m.Action == engo.Release && m.Button == engo.MouseButtonLeft:
		is.EndDrag(p)
	case m.Action == engo.Press && m.Button == engo.MouseButtonRight:
		is.RemoveAt(p)
	}

	if engo.Input.Button(buttonToggleKind).JustPressed() {
		is.ToggleKind()
	}
	if engo.Input.Button(buttonUndo).JustPressed() {
		is.Undo()
	}
}

// SetLines records the lines of the latest state for picking
func (is *InputSystem) SetLines(lines []entity.LineState) {
	is.lines = lines
}

// Kind returns the kind of line the next drag places
func (is *InputSystem) Kind() physics.LineKind {
	return is.kind
}

// ToggleKind switches between one-way and pass-through lines
func (is *InputSystem) ToggleKind() {
	if is.kind == physics.OneWay {
		is.kind = physics.PassThrough
	} else {
		is.kind = physics.OneWay
	}
	is.hud.SetLineKind(is.kind)
}

// BeginDrag starts drawing a line at screen point p
func (is *InputSystem) BeginDrag(p engo.Point) {
	is.dragging = true
	is.dragStart = p
}

// EndDrag finishes the line at screen point p and places it
func (is *InputSystem) EndDrag(p engo.Point) {
	if !is.dragging {
		return
	}
	is.dragging = false

	dx, dy := p.X-is.dragStart.X, p.Y-is.dragStart.Y
	if dx*dx+dy*dy < minDragPixels*minDragPixels {
		return
	}

	start := is.camera.ScreenToWorld(is.dragStart)
	end := is.camera.ScreenToWorld(p)
	kind := is.kind
	is.run(func() { is.place(start, end, kind) })
}

func (is *InputSystem) place(start, end physics.Vector2D, kind physics.LineKind) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	id, err := is.editor.PlaceLine(ctx, start, end, kind, "")
	if err != nil {
		is.hud.ShowMessage("line rejected: " + err.Error())
		return
	}

	is.mu.Lock()
	is.placed = append(is.placed, id)
	is.mu.Unlock()
}

// RemoveAt erases the player's line nearest to screen point p
func (is *InputSystem) RemoveAt(p engo.Point) {
	scale := is.camera.Scale()
	if scale <= 0 {
		return
	}
	pos := is.camera.ScreenToWorld(p)
	owner := is.editor.PlayerID()

	var target entity.ID
	best := pickPixels / scale
	for _, l := range is.lines {
		if l.OwnerID != owner {
			continue
		}
		if d := pos.DistanceToSegment(l.Start, l.End); d <= best {
			best, target = d, l.ID
		}
	}
	if target == 0 {
		return
	}
	is.run(func() { is.remove(target) })
}

// Undo removes the last line this player drew
func (is *InputSystem) Undo() {
	is.mu.Lock()
	if len(is.placed) == 0 {
		is.mu.Unlock()
		return
	}
	id := is.placed[len(is.placed)-1]
	is.placed = is.placed[:len(is.placed)-1]
	is.mu.Unlock()

	is.run(func() { is.remove(id) })
}

func (is *InputSystem) remove(id entity.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := is.editor.RemoveLine(ctx, id); err != nil {
		is.hud.ShowMessage("erase failed: " + err.Error())
		return
	}

	is.mu.Lock()
	for i, placed := range is.placed {
		if placed == id {
			is.placed = append(is.placed[:i], is.placed[i+1:]...)
			break
		}
	}
	is.mu.Unlock()
}

// SetupInputBindings registers the keys used by the input and camera systems
func SetupInputBindings() {
	engo.Input.RegisterButton(buttonToggleKind, engo.KeyK)
	engo.Input.RegisterButton(buttonUndo, engo.KeyZ)
	engo.Input.RegisterButton(buttonResetZoom, engo.KeyR)
}
