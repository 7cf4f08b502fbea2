// pkg/render/engo/scene.go
package engo

import (
	"context"
	"image/color"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"
	"github.com/EngoEngine/engo/common"

	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/physics"
	"github.com/opd-ai/gravity-beats/pkg/render"
)

var (
	backgroundColor = color.RGBA{R: 14, G: 14, B: 22, A: 255}
	hudTextColor    = color.RGBA{R: 220, G: 220, B: 230, A: 255}
)

// Backend is what the scene draws and edits: a network client or a
// local session.
type Backend interface {
	LineEditor
	Bounds() physics.Bounds
	GetGameStateChannel() <-chan *engine.GameState
}

// GameScene shows the arena in a window
type GameScene struct {
	backend Backend
	logger  *logging.Logger
	assets  *AssetManager

	renderer *EngoRenderer
	camera   *CameraSystem
	input    *InputSystem
	hud      *HUDSystem
}

// NewGameScene creates a new game scene
func NewGameScene(backend Backend, logger *logging.Logger) *GameScene {
	if logger == nil {
		logger = logging.Discard()
	}
	return &GameScene{
		backend: backend,
		logger:  logger.With("component", "engo_scene"),
		assets:  NewAssetManager(),
	}
}

// Type returns the scene type (required by Engo)
func (scene *GameScene) Type() string {
	return "GravityBeats"
}

// Preload is called before the scene starts (required by Engo)
func (scene *GameScene) Preload() {
	if err := scene.assets.LoadAssets(); err != nil {
		scene.logger.Warn(context.Background(), "HUD disabled", "error", err)
	}
}

// Setup is called when the scene starts (required by Engo)
func (scene *GameScene) Setup(u engo.Updater) {
	world := u.(*ecs.World)
	common.SetBackground(backgroundColor)

	rs := &common.RenderSystem{}
	world.AddSystem(rs)

	scene.build(rs, engo.GameWidth(), engo.GameHeight())
	SetupInputBindings()

	font, err := scene.assets.Font(16, hudTextColor)
	if err != nil {
		scene.logger.Warn(context.Background(), "HUD disabled", "error", err)
	}
	scene.hud.Attach(rs, font)

	world.AddSystem(scene.camera)
	world.AddSystem(scene.input)
	world.AddSystem(&stateSystem{scene: scene})
	world.AddSystem(scene.hud)
}

// build creates the scene's systems around a render system
func (scene *GameScene) build(rs renderSystem, viewW, viewH float32) {
	scene.camera = NewCameraSystem(scene.backend.Bounds(), viewW, viewH)
	scene.renderer = NewEngoRenderer(rs, scene.camera)
	scene.hud = NewHUDSystem()
	scene.input = NewInputSystem(scene.backend, scene.camera, scene.hud)
}

// apply draws state and flashes every line that was hit
func (scene *GameScene) apply(state *engine.GameState, hits []engine.HitState) {
	for _, hit := range hits {
		scene.renderer.Flash(hit.LineID)
	}
	render.Frame(scene.renderer, state)
	scene.hud.UpdateGameState(state)
	scene.input.SetLines(state.Lines)
}

// drain takes every queued state without blocking. It applies the newest
// one, with the hits of all of them.
func (scene *GameScene) drain(states <-chan *engine.GameState) bool {
	var latest *engine.GameState
	var hits []engine.HitState
	for {
		select {
		case state, ok := <-states:
			if !ok {
				scene.hud.SetConnectionStatus("disconnected")
				states = nil
				continue
			}
			latest = state
			hits = append(hits, state.Hits...)
			continue
		default:
		}
		break
	}
	if latest == nil {
		return false
	}
	scene.apply(latest, hits)
	return true
}

// stateSystem feeds received states into the scene once per frame
type stateSystem struct {
	scene *GameScene
}

func (s *stateSystem) Remove(basic ecs.BasicEntity) {}

func (s *stateSystem) Update(dt float32) {
	s.scene.drain(s.scene.backend.GetGameStateChannel())
}

// Run opens a window and blocks until it closes
func Run(backend Backend, title string, width, height int, logger *logging.Logger) {
	engo.Run(engo.RunOptions{
		Title:          title,
		Width:          width,
		Height:         height,
		StandardInputs: true,
		MSAA:           4,
	}, NewGameScene(backend, logger))
}
