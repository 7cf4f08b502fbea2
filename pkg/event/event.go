// pkg/event/event.go
package event

import (
	"sync"

	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// Type represents the type of event
type Type string

// Event types published by the game
const (
	BallSpawned  Type = "ball_spawned"
	BallRemoved  Type = "ball_removed"
	LineHit      Type = "line_hit"
	LinePlaced   Type = "line_placed"
	LineMoved    Type = "line_moved"
	LineRemoved  Type = "line_removed"
	PlayerJoined Type = "player_joined"
	PlayerLeft   Type = "player_left"
	GameStarted  Type = "game_started"
	GameEnded    Type = "game_ended"
)

// Event is the base interface for all events
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent provides common functionality for all events
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

// GetType returns the event type
func (e *BaseEvent) GetType() Type {
	return e.EventType
}

// GetSource returns the event source
func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler is a function that handles events
type Handler func(Event)

// Subscription is returned by Subscribe; Cancel removes the handler.
type Subscription struct {
	ID     uint64
	Cancel func()
}

type registered struct {
	id      uint64
	handler Handler
}

// Bus manages event subscriptions and dispatches synchronously on the
// publishing goroutine.
type Bus struct {
	handlers map[Type][]registered
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus creates a new event bus
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]registered),
		nextID:   1,
	}
}

// Subscribe registers a handler for a specific event type
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], registered{id: id, handler: handler})

	return &Subscription{
		ID:     id,
		Cancel: func() { b.unsubscribe(eventType, id) },
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	handlers := b.handlers[eventType]
	for i, h := range handlers {
		if h.id == id {
			// Copy so a Publish holding the old slice is unaffected.
			updated := make([]registered, 0, len(handlers)-1)
			updated = append(updated, handlers[:i]...)
			b.handlers[eventType] = append(updated, handlers[i+1:]...)
			return
		}
	}
}

// Publish sends an event to all subscribed handlers
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := b.handlers[event.GetType()]
	b.mu.RUnlock()

	for _, h := range handlers {
		h.handler(event)
	}
}

// BallEvent reports a ball entering or leaving the arena
type BallEvent struct {
	BaseEvent
	BallID   uint64
	Position physics.Vector2D
	// Spawner is the index of the spawner that dropped the ball
	Spawner int
}

// NewBallEvent creates a new ball event
func NewBallEvent(eventType Type, source interface{}, ballID uint64, position physics.Vector2D, spawner int) *BallEvent {
	return &BallEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		BallID:   ballID,
		Position: position,
		Spawner:  spawner,
	}
}

// LineHitEvent reports a ball touching a line.
// Velocity is the ball's velocity before any bounce.
type LineHitEvent struct {
	BaseEvent
	BallID   uint64
	LineID   uint64
	Kind     physics.LineKind
	Position physics.Vector2D
	Velocity physics.Vector2D
	Length   float64
	// Note is the MIDI note of the line, or -1 without a scale
	Note int
}

// NewLineHitEvent creates a new line hit event
func NewLineHitEvent(source interface{}, ballID, lineID uint64, kind physics.LineKind,
	position, velocity physics.Vector2D, length float64, note int) *LineHitEvent {
	return &LineHitEvent{
		BaseEvent: BaseEvent{
			EventType: LineHit,
			Source:    source,
		},
		BallID:   ballID,
		LineID:   lineID,
		Kind:     kind,
		Position: position,
		Velocity: velocity,
		Length:   length,
		Note:     note,
	}
}

// LineEvent reports a line being placed, moved or removed
type LineEvent struct {
	BaseEvent
	LineID  uint64
	OwnerID uint64
	Start   physics.Vector2D
	End     physics.Vector2D
	Kind    physics.LineKind
}

// NewLineEvent creates a new line event
func NewLineEvent(eventType Type, source interface{}, lineID, ownerID uint64,
	start, end physics.Vector2D, kind physics.LineKind) *LineEvent {
	return &LineEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		LineID:  lineID,
		OwnerID: ownerID,
		Start:   start,
		End:     end,
		Kind:    kind,
	}
}

// PlayerEvent reports a player joining or leaving
type PlayerEvent struct {
	BaseEvent
	PlayerID uint64
	Name     string
}

// NewPlayerEvent creates a new player event
func NewPlayerEvent(eventType Type, source interface{}, playerID uint64, name string) *PlayerEvent {
	return &PlayerEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		PlayerID: playerID,
		Name:     name,
	}
}
