// pkg/engine/local.go
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// LocalSession runs a game in-process for a single local player. It
// offers the same line editing calls and state channel as a network
// client, so front ends work the same offline.
type LocalSession struct {
	game     *Game
	playerID entity.ID
	states   chan *GameState
	rate     time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLocalSession joins game as playerName. The game loop starts with Start.
func NewLocalSession(game *Game, playerName string) (*LocalSession, error) {
	playerID, err := game.AddPlayer(playerName)
	if err != nil {
		return nil, err
	}

	updateRate := max(game.Config.NetworkConfig.UpdateRate, 1)
	return &LocalSession{
		game:     game,
		playerID: playerID,
		states:   make(chan *GameState, 4),
		rate:     time.Second / time.Duration(updateRate),
	}, nil
}

// Game returns the session's game
func (s *LocalSession) Game() *Game {
	return s.game
}

// PlayerID returns the local player's ID
func (s *LocalSession) PlayerID() entity.ID {
	return s.playerID
}

// Bounds returns the arena bounds
func (s *LocalSession) Bounds() physics.Bounds {
	return s.game.Config.Arena.Bounds
}

// GetGameStateChannel returns the channel the loop publishes states on
func (s *LocalSession) GetGameStateChannel() <-chan *GameState {
	return s.states
}

// Start runs the game loop until Stop. Starting twice is a no-op.
func (s *LocalSession) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	s.game.Start()
	go s.loop(ctx, s.done)
}

// Stop ends the game loop and stops the game
func (s *LocalSession) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.game.Stop()
}

func (s *LocalSession) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.game.Update(); err != nil {
			continue
		}
		s.publish(s.game.GetGameState())
	}
}

// publish queues a state, dropping the oldest when the queue is full
func (s *LocalSession) publish(state *GameState) {
	for {
		select {
		case s.states <- state:
			return
		default:
		}
		select {
		case <-s.states:
		default:
		}
	}
}

// PlaceLine draws a line owned by the local player
func (s *LocalSession) PlaceLine(ctx context.Context, start, end physics.Vector2D, kind physics.LineKind, name string) (entity.ID, error) {
	return s.game.PlaceLine(s.playerID, start, end, kind, name)
}

// RemoveLine erases one of the local player's lines
func (s *LocalSession) RemoveLine(ctx context.Context, lineID entity.ID) error {
	return s.game.RemoveLine(s.playerID, lineID)
}

// MoveLine moves one of the local player's lines
func (s *LocalSession) MoveLine(ctx context.Context, lineID entity.ID, start, end physics.Vector2D) error {
	return s.game.MoveLine(s.playerID, lineID, start, end)
}
