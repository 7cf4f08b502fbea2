// pkg/render/ui.go
package render

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

const commandTimeout = 2 * time.Second

// Backend is the game a UI shows and edits: a network client or a local
// session.
type Backend interface {
	PlayerID() entity.ID
	Bounds() physics.Bounds
	GetGameStateChannel() <-chan *engine.GameState
	PlaceLine(ctx context.Context, start, end physics.Vector2D, kind physics.LineKind, name string) (entity.ID, error)
	RemoveLine(ctx context.Context, lineID entity.ID) error
}

// TerminalUI runs the arena in a terminal. Dragging with the left button
// draws a line, a right click erases one of the player's lines, k
// switches the line kind, z undoes the last line and q quits.
type TerminalUI struct {
	screen   tcell.Screen
	renderer *TerminalRenderer
	backend  Backend
	logger   *logging.Logger

	state  *engine.GameState
	kind   physics.LineKind
	placed []entity.ID

	buttons    tcell.ButtonMask
	dragging   bool
	dragX      int
	dragY      int
	connection string
	message    string
	notices    chan string
}

// NewTerminalUI shows backend on an initialized screen
func NewTerminalUI(screen tcell.Screen, backend Backend, logger *logging.Logger) *TerminalUI {
	if logger == nil {
		logger = logging.Discard()
	}
	return &TerminalUI{
		screen:     screen,
		renderer:   NewTerminalRenderer(screen, backend.Bounds()),
		backend:    backend,
		logger:     logger.With("component", "terminal_ui"),
		kind:       physics.OneWay,
		connection: "connected",
		notices:    make(chan string, 4),
	}
}

// Run draws states and handles input until the user quits or ctx ends
func (ui *TerminalUI) Run(ctx context.Context) error {
	ui.screen.EnableMouse()
	defer ui.screen.DisableMouse()

	events := make(chan tcell.Event, 10)
	go func() {
		for {
			ev := ui.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	states := ui.backend.GetGameStateChannel()
	ui.draw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-events:
			if !ui.HandleEvent(ev) {
				return nil
			}
		case status := <-ui.notices:
			ui.SetConnection(status)
		case state, ok := <-states:
			if !ok {
				states = nil
				ui.SetConnection("disconnected")
				continue
			}
			ui.Apply(state)
		}
	}
}

// Notify queues a connection status for Run to show. Safe to call from
// any goroutine.
func (ui *TerminalUI) Notify(status string) {
	select {
	case ui.notices <- status:
	default:
	}
}

// SetConnection sets the connection status shown in the status bar
func (ui *TerminalUI) SetConnection(status string) {
	ui.connection = status
	ui.draw()
}

// Apply draws a received state
func (ui *TerminalUI) Apply(state *engine.GameState) {
	ui.state = state
	ui.draw()
}

// HandleEvent reacts to one terminal event. It returns false when the
// user asked to quit.
func (ui *TerminalUI) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return ui.handleKey(ev)
	case *tcell.EventMouse:
		ui.handleMouse(ev)
	case *tcell.EventResize:
		ui.screen.Sync()
		ui.draw()
	}
	return true
}

func (ui *TerminalUI) handleKey(ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case 'k':
			ui.ToggleKind()
		case 'z':
			ui.Undo()
		}
	}
	return true
}

func (ui *TerminalUI) handleMouse(ev *tcell.EventMouse) {
	x, y := ev.Position()
	buttons := ev.Buttons()
	pressed := buttons &^ ui.buttons
	released := ui.buttons &^ buttons
	ui.buttons = buttons

	if pressed&tcell.Button1 != 0 {
		ui.dragging, ui.dragX, ui.dragY = true, x, y
	}
	if released&tcell.Button1 != 0 && ui.dragging {
		ui.dragging = false
		if x != ui.dragX || y != ui.dragY {
			ui.place(ui.renderer.ScreenToWorld(ui.dragX, ui.dragY), ui.renderer.ScreenToWorld(x, y))
		}
	}
	if pressed&tcell.Button2 != 0 {
		ui.removeAt(x, y)
	}
}

// Kind returns the kind of line the next drag places
func (ui *TerminalUI) Kind() physics.LineKind {
	return ui.kind
}

// ToggleKind switches between one-way and pass-through lines
func (ui *TerminalUI) ToggleKind() {
	if ui.kind == physics.OneWay {
		ui.kind = physics.PassThrough
	} else {
		ui.kind = physics.OneWay
	}
	ui.draw()
}

func (ui *TerminalUI) place(start, end physics.Vector2D) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	id, err := ui.backend.PlaceLine(ctx, start, end, ui.kind, "")
	if err != nil {
		ui.logger.Debug(ctx, "line rejected", "error", err)
		ui.message = "line rejected: " + err.Error()
		ui.draw()
		return
	}
	ui.message = ""
	ui.placed = append(ui.placed, id)
}

// removeAt erases the player's line nearest to a cell, within one cell
func (ui *TerminalUI) removeAt(x, y int) {
	if ui.state == nil {
		return
	}
	pos := ui.renderer.ScreenToWorld(x, y)
	cell := ui.renderer.CellSize()
	best := math.Max(cell.X, cell.Y)
	owner := ui.backend.PlayerID()

	var target entity.ID
	for _, l := range ui.state.Lines {
		if l.OwnerID != owner {
			continue
		}
		if d := pos.DistanceToSegment(l.Start, l.End); d <= best {
			best, target = d, l.ID
		}
	}
	if target != 0 {
		ui.remove(target)
	}
}

// Undo removes the last line this UI drew
func (ui *TerminalUI) Undo() {
	if len(ui.placed) == 0 {
		return
	}
	ui.remove(ui.placed[len(ui.placed)-1])
}

func (ui *TerminalUI) remove(id entity.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := ui.backend.RemoveLine(ctx, id); err != nil {
		ui.message = "erase failed: " + err.Error()
		ui.draw()
		return
	}
	for i, placed := range ui.placed {
		if placed == id {
			ui.placed = append(ui.placed[:i], ui.placed[i+1:]...)
			break
		}
	}
}

// StatusLine returns the text of the status bar
func (ui *TerminalUI) StatusLine() string {
	kind := "one-way"
	if ui.kind == physics.PassThrough {
		kind = "pass-through"
	}
	status := fmt.Sprintf(" %s | drawing %s", ui.connection, kind)
	if s := ui.state; s != nil {
		status += fmt.Sprintf(" | %.0f bpm | balls %d | lines %d | hits/s %d",
			s.Tempo, len(s.Balls), len(s.Lines), s.CollisionsPerSecond)
	}
	if ui.message != "" {
		status += " | " + ui.message
	}
	return status
}

func (ui *TerminalUI) draw() {
	ui.renderer.SetStatus(ui.StatusLine())
	if ui.state == nil {
		ui.renderer.Clear()
		ui.renderer.Present()
		return
	}
	Frame(ui.renderer, ui.state)
}
