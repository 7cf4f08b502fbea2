package entity

// Renderer draws one frame of the arena. Callers clear, render every
// line and ball, then present.
type Renderer interface {
	Clear()
	RenderLine(line *LineState)
	RenderBall(ball *BallState)
	Present()
}
