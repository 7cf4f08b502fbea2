// pkg/render/engo/camera.go
package engo

import (
	"math"

	"github.com/EngoEngine/ecs"
	"github.com/EngoEngine/engo"

	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// CameraSystem fits the arena into the window, centred with a margin,
// and lets the player zoom around the centre.
type CameraSystem struct {
	bounds physics.Bounds
	viewW  float64
	viewH  float64
	margin float64

	zoom    float64
	minZoom float64
	maxZoom float64
}

// NewCameraSystem creates a camera showing bounds in a view of the given size
func NewCameraSystem(bounds physics.Bounds, viewW, viewH float32) *CameraSystem {
	return &CameraSystem{
		bounds:  bounds,
		viewW:   float64(viewW),
		viewH:   float64(viewH),
		margin:  16,
		zoom:    1,
		minZoom: 0.5,
		maxZoom: 4,
	}
}

// Remove satisfies the ecs.System interface
func (cs *CameraSystem) Remove(basic ecs.BasicEntity) {}

// Update follows window resizes and applies zoom input
func (cs *CameraSystem) Update(dt float32) {
	cs.SetViewSize(engo.GameWidth(), engo.GameHeight())

	if scrollY := engo.Input.Mouse.ScrollY; scrollY != 0 {
		cs.SetZoom(cs.zoom * (1 + float64(scrollY)*0.1))
	}
	if engo.Input.Button(buttonResetZoom).JustPressed() {
		cs.SetZoom(1)
	}
}

// SetBounds changes the arena shown
func (cs *CameraSystem) SetBounds(bounds physics.Bounds) {
	cs.bounds = bounds
}

// SetViewSize sets the window size in pixels
func (cs *CameraSystem) SetViewSize(w, h float32) {
	cs.viewW, cs.viewH = float64(w), float64(h)
}

// SetZoom sets the zoom level, clamped to the camera's limits
func (cs *CameraSystem) SetZoom(zoom float64) {
	cs.zoom = math.Max(cs.minZoom, math.Min(zoom, cs.maxZoom))
}

// Zoom returns the current zoom level
func (cs *CameraSystem) Zoom() float64 {
	return cs.zoom
}

// Scale returns pixels per arena unit
func (cs *CameraSystem) Scale() float64 {
	w := cs.bounds.XMax - cs.bounds.XMin
	h := cs.bounds.YMax - cs.bounds.YMin
	if w <= 0 || h <= 0 {
		return cs.zoom
	}
	fit := math.Min((cs.viewW-2*cs.margin)/w, (cs.viewH-2*cs.margin)/h)
	return math.Max(fit, 0) * cs.zoom
}

func (cs *CameraSystem) centre() physics.Vector2D {
	return physics.Vector2D{
		X: (cs.bounds.XMin + cs.bounds.XMax) / 2,
		Y: (cs.bounds.YMin + cs.bounds.YMax) / 2,
	}
}

// WorldToScreen converts arena coordinates to pixels
func (cs *CameraSystem) WorldToScreen(pos physics.Vector2D) engo.Point {
	s := cs.Scale()
	rel := pos.Sub(cs.centre())
	return engo.Point{
		X: float32(rel.X*s + cs.viewW/2),
		Y: float32(rel.Y*s + cs.viewH/2),
	}
}

// ScreenToWorld converts pixels to arena coordinates
func (cs *CameraSystem) ScreenToWorld(p engo.Point) physics.Vector2D {
	s := cs.Scale()
	if s == 0 {
		return cs.centre()
	}
	return cs.centre().Add(physics.Vector2D{
		X: (float64(p.X) - cs.viewW/2) / s,
		Y: (float64(p.Y) - cs.viewH/2) / s,
	})
}
