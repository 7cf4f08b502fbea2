// pkg/render/engo/hud.go
package engo

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

const messageDuration = 3 * time.Second

// HUDSystem draws the tempo, arena counters, the selected line kind and
// short messages such as rejected edits in the top-left corner.
type HUDSystem struct {
	mu sync.Mutex

	text     sprite
	font     *common.Font
	lastText string

	connectionStatus string
	message          string
	messageUntil     time.Time
	kind             physics.LineKind

	tempo        float64
	beatPosition float64
	balls        int
	lines        int
	players      int
	hitsPerSec   int
	totalHits    int

	now func() time.Time
}

// NewHUDSystem creates a HUD; it draws nothing until Attach gives it a font
func NewHUDSystem() *HUDSystem {
	return &HUDSystem{
		connectionStatus: "connected",
		kind:             physics.OneWay,
		now:              time.Now,
	}
}

// Attach adds the HUD text to system, drawn with font. Without a font
// the HUD stays hidden.
func (hud *HUDSystem) Attach(system renderSystem, font *common.Font) {
	if font == nil {
		return
	}
	hud.font = font
	hud.lastText = hud.Text()
	hud.text.BasicEntity = ecs.NewBasic()
	hud.text.Drawable = common.Text{Font: font, Text: hud.lastText, LineSpacing: 0.3}
	hud.text.Position = engo.Point{X: 10, Y: 10}
	hud.text.SetZIndex(10)
	system.Add(&hud.text.BasicEntity, &hud.text.RenderComponent, &hud.text.SpaceComponent)
}

// Remove satisfies the ecs.System interface
func (hud *HUDSystem) Remove(basic ecs.BasicEntity) {}

// Update redraws the text when it changed
func (hud *HUDSystem) Update(dt float32) {
	if hud.font == nil {
		return
	}
	text := hud.Text()
	if text == hud.lastText {
		return
	}
	hud.lastText = text
	hud.text.Drawable = common.Text{Font: hud.font, Text: text, LineSpacing: 0.3}
}

// Text returns the HUD contents, one item per line
func (hud *HUDSystem) Text() string {
	hud.mu.Lock()
	defer hud.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "%.0f bpm  beat %.2f\n", hud.tempo, hud.beatPosition)
	fmt.Fprintf(&b, "balls %d  lines %d  players %d\n", hud.balls, hud.lines, hud.players)
	fmt.Fprintf(&b, "hits/s %d  total %d\n", hud.hitsPerSec, hud.totalHits)
	fmt.Fprintf(&b, "drawing %s  [%s]", kindLabel(hud.kind), hud.connectionStatus)
	if hud.message != "" && hud.now().Before(hud.messageUntil) {
		b.WriteString("\n")
		b.WriteString(hud.message)
	}
	return b.String()
}

func kindLabel(kind physics.LineKind) string {
	if kind == physics.PassThrough {
		return "pass-through"
	}
	return "one-way"
}

// UpdateGameState copies the counters shown by the HUD
func (hud *HUDSystem) UpdateGameState(state *engine.GameState) {
	hud.mu.Lock()
	defer hud.mu.Unlock()

	hud.tempo = state.Tempo
	hud.beatPosition = state.BeatPosition
	hud.balls = len(state.Balls)
	hud.lines = len(state.Lines)
	hud.players = len(state.Players)
	hud.hitsPerSec = state.CollisionsPerSecond
	hud.totalHits = state.TotalCollisions
}

// SetConnectionStatus sets the connection status display
func (hud *HUDSystem) SetConnectionStatus(status string) {
	hud.mu.Lock()
	defer hud.mu.Unlock()
	hud.connectionStatus = status
}

// SetLineKind shows which kind of line a drag will place
func (hud *HUDSystem) SetLineKind(kind physics.LineKind) {
	hud.mu.Lock()
	defer hud.mu.Unlock()
	hud.kind = kind
}

// ShowMessage displays msg for a few seconds. Safe to call from any goroutine.
func (hud *HUDSystem) ShowMessage(msg string) {
	hud.mu.Lock()
	defer hud.mu.Unlock()
	hud.message = msg
	hud.messageUntil = hud.now().Add(messageDuration)
}
