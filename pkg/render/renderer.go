// pkg/render/renderer.go
package render

import (
	"context"

	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/logging"
)

// Frame draws one game state: lines first, then balls on top
func Frame(r entity.Renderer, state *engine.GameState) {
	r.Clear()
	for _, e := range state.Entities() {
		e.Render(r)
	}
	r.Present()
}

// NullRenderer draws nothing and counts what it was asked to draw. It
// backs headless clients.
type NullRenderer struct {
	logger *logging.Logger
	Frames int
	Lines  int
	Balls  int
}

// NewNullRenderer creates a new NullRenderer with structured logging.
func NewNullRenderer(logger *logging.Logger) *NullRenderer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &NullRenderer{logger: logger}
}

// Clear implements entity.Renderer.
func (d *NullRenderer) Clear() {
	d.Lines, d.Balls = 0, 0
}

// Present implements entity.Renderer.
func (d *NullRenderer) Present() {
	d.Frames++
	d.logger.Debug(context.Background(), "frame",
		"frame", d.Frames,
		"lines", d.Lines,
		"balls", d.Balls,
	)
}

// RenderLine implements entity.Renderer.
func (d *NullRenderer) RenderLine(line *entity.LineState) {
	if line != nil {
		d.Lines++
	}
}

// RenderBall implements entity.Renderer.
func (d *NullRenderer) RenderBall(ball *entity.BallState) {
	if ball != nil {
		d.Balls++
	}
}
