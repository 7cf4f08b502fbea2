package render

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

type placeCall struct {
	start, end physics.Vector2D
	kind       physics.LineKind
}

type fakeBackend struct {
	playerID entity.ID
	nextID   entity.ID
	placed   []placeCall
	removed  []entity.ID
	placeErr error
	states   chan *engine.GameState
}

func (f *fakeBackend) PlayerID() entity.ID { return f.playerID }

func (f *fakeBackend) Bounds() physics.Bounds {
	return physics.Bounds{XMin: 0, XMax: 20, YMin: 0, YMax: 10}
}

func (f *fakeBackend) GetGameStateChannel() <-chan *engine.GameState { return f.states }

func (f *fakeBackend) PlaceLine(ctx context.Context, start, end physics.Vector2D, kind physics.LineKind, name string) (entity.ID, error) {
	if f.placeErr != nil {
		return 0, f.placeErr
	}
	f.nextID++
	f.placed = append(f.placed, placeCall{start, end, kind})
	return f.nextID, nil
}

func (f *fakeBackend) RemoveLine(ctx context.Context, lineID entity.ID) error {
	f.removed = append(f.removed, lineID)
	return nil
}

func newTestUI(t *testing.T) (*TerminalUI, *fakeBackend, tcell.SimulationScreen) {
	t.Helper()
	screen, _ := newTestScreen(t)
	backend := &fakeBackend{playerID: 1, states: make(chan *engine.GameState, 1)}
	return NewTerminalUI(screen, backend, nil), backend, screen
}

func mouse(x, y int, buttons tcell.ButtonMask) *tcell.EventMouse {
	return tcell.NewEventMouse(x, y, buttons, tcell.ModNone)
}

func near(a, b physics.Vector2D) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func TestTerminalUI_DragPlacesLine(t *testing.T) {
	ui, backend, _ := newTestUI(t)

	ui.HandleEvent(mouse(2, 5, tcell.Button1))
	ui.HandleEvent(mouse(7, 5, tcell.Button1))
	ui.HandleEvent(mouse(12, 5, tcell.ButtonNone))

	if len(backend.placed) != 1 {
		t.Fatalf("placed %d lines, expected 1", len(backend.placed))
	}
	got := backend.placed[0]
	if !near(got.start, physics.Vector2D{X: 2.5, Y: 5.5}) || !near(got.end, physics.Vector2D{X: 12.5, Y: 5.5}) {
		t.Errorf("placed %v -> %v, expected (2.5,5.5) -> (12.5,5.5)", got.start, got.end)
	}
	if got.kind != physics.OneWay {
		t.Errorf("kind = %v, expected %v", got.kind, physics.OneWay)
	}
}

func TestTerminalUI_ClickWithoutDragPlacesNothing(t *testing.T) {
	ui, backend, _ := newTestUI(t)

	ui.HandleEvent(mouse(4, 4, tcell.Button1))
	ui.HandleEvent(mouse(4, 4, tcell.ButtonNone))

	if len(backend.placed) != 0 {
		t.Errorf("placed %d lines, expected 0", len(backend.placed))
	}
}

func TestTerminalUI_Keys(t *testing.T) {
	ui, backend, _ := newTestUI(t)

	if !ui.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'k', tcell.ModNone)) {
		t.Fatal("HandleEvent(k) = false, expected true")
	}
	if ui.Kind() != physics.PassThrough {
		t.Errorf("Kind() = %v, expected %v", ui.Kind(), physics.PassThrough)
	}
	if !strings.Contains(ui.StatusLine(), "pass-through") {
		t.Errorf("StatusLine() = %q, expected the line kind", ui.StatusLine())
	}

	ui.HandleEvent(mouse(0, 0, tcell.Button1))
	ui.HandleEvent(mouse(10, 0, tcell.ButtonNone))
	ui.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'z', tcell.ModNone))
	if len(backend.removed) != 1 || backend.removed[0] != 1 {
		t.Errorf("removed = %v, expected [1]", backend.removed)
	}

	ui.HandleEvent(tcell.NewEventKey(tcell.KeyRune, 'z', tcell.ModNone))
	if len(backend.removed) != 1 {
		t.Errorf("Undo() with nothing placed removed %v", backend.removed)
	}

	tests := []*tcell.EventKey{
		tcell.NewEventKey(tcell.KeyRune, 'q', tcell.ModNone),
		tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone),
	}
	for _, ev := range tests {
		if ui.HandleEvent(ev) {
			t.Errorf("HandleEvent(%v) = true, expected quit", ev.Name())
		}
	}
}

func TestTerminalUI_RightClickRemovesOwnLine(t *testing.T) {
	ui, backend, _ := newTestUI(t)
	ui.Apply(&engine.GameState{Lines: []entity.LineState{
		{ID: 20, OwnerID: 2, Start: physics.Vector2D{X: 0, Y: 5.5}, End: physics.Vector2D{X: 20, Y: 5.5}},
		{ID: 21, OwnerID: 1, Start: physics.Vector2D{X: 0, Y: 6}, End: physics.Vector2D{X: 20, Y: 6}},
	}})

	ui.HandleEvent(mouse(5, 5, tcell.Button2))
	if len(backend.removed) != 1 || backend.removed[0] != 21 {
		t.Errorf("removed = %v, expected [21]", backend.removed)
	}

	ui.HandleEvent(mouse(5, 0, tcell.ButtonNone))
	ui.HandleEvent(mouse(5, 0, tcell.Button2))
	if len(backend.removed) != 1 {
		t.Errorf("removed = %v, expected nothing near the top row", backend.removed)
	}
}

func TestTerminalUI_RejectedLineShownInStatus(t *testing.T) {
	ui, backend, screen := newTestUI(t)
	backend.placeErr = errors.New("too short")

	ui.HandleEvent(mouse(1, 1, tcell.Button1))
	ui.HandleEvent(mouse(2, 1, tcell.ButtonNone))

	if !strings.Contains(ui.StatusLine(), "line rejected: too short") {
		t.Errorf("StatusLine() = %q, expected the rejection", ui.StatusLine())
	}
	if cellAt(screen, 1, 10) != 'c' {
		t.Errorf("status row starts with %q, expected the status text", cellAt(screen, 1, 10))
	}
}

func TestTerminalUI_ApplyDrawsState(t *testing.T) {
	ui, _, screen := newTestUI(t)
	ui.Apply(&engine.GameState{
		Tempo: 90,
		Balls: []entity.BallState{{ID: 1, Position: physics.Vector2D{X: 3.5, Y: 2.5}}},
	})

	if cellAt(screen, 3, 2) != ballRune {
		t.Errorf("cell (3,2) = %q, expected a ball", cellAt(screen, 3, 2))
	}
	if !strings.Contains(ui.StatusLine(), "90 bpm") {
		t.Errorf("StatusLine() = %q, expected the tempo", ui.StatusLine())
	}
}

func TestTerminalUI_RunQuitsOnKey(t *testing.T) {
	ui, backend, screen := newTestUI(t)
	backend.states <- &engine.GameState{Tempo: 60}
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	if err := ui.Run(context.Background()); err != nil {
		t.Errorf("Run() error = %v, expected nil", err)
	}
}

func TestTerminalUI_RunStopsWithContext(t *testing.T) {
	ui, _, _ := newTestUI(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ui.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, expected %v", err, context.Canceled)
	}
}

func TestTerminalUI_ClosedStateChannel(t *testing.T) {
	ui, backend, screen := newTestUI(t)
	close(backend.states)

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)

	if err := ui.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestTerminalUI_NotifyShownByRun(t *testing.T) {
	ui, _, screen := newTestUI(t)
	ui.Notify("reconnecting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ui.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("status never showed the notice")
		default:
		}
		if strings.Contains(rowText(screen, 10), "reconnecting") {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	if err := <-done; err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func rowText(screen tcell.SimulationScreen, y int) string {
	w, _ := screen.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		b.WriteRune(cellAt(screen, x, y))
	}
	return b.String()
}
