// pkg/network/client.go
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/gravity-beats/pkg/config"
	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/event"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// Client event types
const (
	ClientDisconnected    event.Type = "client_disconnected"
	ClientReconnected     event.Type = "client_reconnected"
	ClientReconnectFailed event.Type = "client_reconnect_failed"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrCommandFailed = errors.New("command rejected by server")
)

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// GameClient connects to a GameServer, receives game states and sends
// line edits. Hits in each received state are republished on the event
// bus as LineHit events so local audio can play them.
type GameClient struct {
	conn                 net.Conn
	clientID             entity.ID
	playerID             entity.ID
	bounds               physics.Bounds
	serverAddress        string
	playerName           string
	connected            atomic.Bool
	closing              atomic.Bool
	receivedStates       chan *engine.GameState
	eventBus             *event.Bus
	mu                   sync.Mutex
	writeLock            sync.Mutex
	latency              time.Duration
	pingInterval         time.Duration
	reconnectDelay       time.Duration
	maxReconnectAttempts int
	networkService       *NetworkService
	logger               *logging.Logger
	dial                 dialFunc

	ctx               context.Context
	cancel            context.CancelFunc
	connectionTimeout time.Duration
	readTimeout       time.Duration
	writeTimeout      time.Duration

	nextRequestID atomic.Uint32
	pendingLock   sync.Mutex
	pending       map[uint32]chan CommandResultData
}

// NewGameClient creates a client. A nil env is loaded from the
// environment, falling back to defaults.
func NewGameClient(eventBus *event.Bus, env *config.EnvironmentConfig, logger *logging.Logger) *GameClient {
	if env == nil {
		var err error
		if env, err = config.LoadConfigFromEnv(); err != nil {
			env = config.DefaultEnvironmentConfig()
		}
	}
	if logger == nil {
		logger = logging.NewLogger()
	}

	return &GameClient{
		receivedStates:       make(chan *engine.GameState, 10),
		eventBus:             eventBus,
		pingInterval:         5 * time.Second,
		reconnectDelay:       3 * time.Second,
		maxReconnectAttempts: 5,
		networkService:       NewNetworkService(env, logger),
		logger:               logger.With("component", "client"),
		dial:                 (&net.Dialer{}).DialContext,
		connectionTimeout:    10 * time.Second,
		readTimeout:          env.ReadTimeout,
		writeTimeout:         env.WriteTimeout,
		pending:              make(map[uint32]chan CommandResultData),
	}
}

// Connect dials the server and joins as playerName
func (c *GameClient) Connect(ctx context.Context, address, playerName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanupConnection()
	c.closing.Store(false)
	c.serverAddress = address
	c.playerName = playerName
	c.ctx, c.cancel = context.WithCancel(context.Background())

	err := c.networkService.ExecuteWithRetry(ctx, func() error {
		dialCtx, cancel := context.WithTimeout(ctx, c.connectionTimeout)
		defer cancel()

		conn, err := c.dial(dialCtx, "tcp", address)
		if err != nil {
			return fmt.Errorf("failed to connect to server: %w", err)
		}
		c.conn = conn
		return nil
	})
	if err != nil {
		c.cleanupConnection()
		return err
	}

	if err := c.handshake(playerName); err != nil {
		c.cleanupConnection()
		return err
	}

	c.connected.Store(true)
	go c.messageLoop(c.ctx, c.conn)
	go c.pingLoop(c.ctx)

	c.logger.Info(ctx, "connected", "address", address, "player_id", c.playerID)
	return nil
}

// handshake sends the connect request and reads the answer.
// Must be called with mu held.
func (c *GameClient) handshake(playerName string) error {
	c.conn.SetWriteDeadline(time.Now().Add(c.connectionTimeout))
	if err := WriteMessage(c.conn, ConnectRequest, ConnectRequestData{PlayerName: playerName}); err != nil {
		return fmt.Errorf("failed to send connect request: %w", err)
	}
	c.conn.SetWriteDeadline(time.Time{})

	c.conn.SetReadDeadline(time.Now().Add(c.connectionTimeout))
	msgType, data, err := ReadMessage(c.conn)
	if err != nil {
		return fmt.Errorf("failed to read connect response: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	if msgType != ConnectResponse {
		return fmt.Errorf("unexpected response type: %s", msgType)
	}

	var resp ConnectResponseData
	if err := DecodeMessage(data, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("server rejected connection: %s", resp.Error)
	}

	c.playerID = resp.PlayerID
	c.clientID = resp.ClientID
	c.bounds = resp.Bounds
	return nil
}

// cleanupConnection closes the connection and fails pending requests.
// Must be called with mu held.
func (c *GameClient) cleanupConnection() {
	c.connected.Store(false)
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	c.pendingLock.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingLock.Unlock()
}

// Disconnect leaves the game. The client does not reconnect afterwards.
func (c *GameClient) Disconnect() error {
	c.closing.Store(true)

	var err error
	if c.connected.Load() {
		err = c.send(DisconnectNotification, nil)
	}

	c.mu.Lock()
	c.cleanupConnection()
	c.mu.Unlock()
	return err
}

// IsConnected reports whether the client has a live session
func (c *GameClient) IsConnected() bool {
	return c.connected.Load()
}

// PlayerID returns the ID the server assigned to this player
func (c *GameClient) PlayerID() entity.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// Bounds returns the arena bounds sent by the server
func (c *GameClient) Bounds() physics.Bounds {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bounds
}

// GetLatency returns the last measured round trip to the server
func (c *GameClient) GetLatency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latency
}

// GetGameStateChannel returns the channel for receiving game states
func (c *GameClient) GetGameStateChannel() <-chan *engine.GameState {
	return c.receivedStates
}

// PlaceLine asks the server to draw a line and returns its ID
func (c *GameClient) PlaceLine(ctx context.Context, start, end physics.Vector2D, kind physics.LineKind, name string) (entity.ID, error) {
	id := c.nextRequestID.Add(1)
	result, err := c.request(ctx, id, PlaceLineRequest, PlaceLineData{
		RequestID: id, Start: start, End: end, Kind: kind, Name: name,
	})
	if err != nil {
		return 0, err
	}
	return result.LineID, nil
}

// RemoveLine asks the server to erase one of this player's lines
func (c *GameClient) RemoveLine(ctx context.Context, lineID entity.ID) error {
	id := c.nextRequestID.Add(1)
	_, err := c.request(ctx, id, RemoveLineRequest, RemoveLineData{RequestID: id, LineID: lineID})
	return err
}

// MoveLine asks the server to move one of this player's lines
func (c *GameClient) MoveLine(ctx context.Context, lineID entity.ID, start, end physics.Vector2D) error {
	id := c.nextRequestID.Add(1)
	_, err := c.request(ctx, id, MoveLineRequest, MoveLineData{
		RequestID: id, LineID: lineID, Start: start, End: end,
	})
	return err
}

// request sends a line command and waits for its result
func (c *GameClient) request(ctx context.Context, id uint32, msgType MessageType, msg interface{}) (CommandResultData, error) {
	if !c.connected.Load() {
		return CommandResultData{}, ErrNotConnected
	}

	ch := make(chan CommandResultData, 1)
	c.pendingLock.Lock()
	c.pending[id] = ch
	c.pendingLock.Unlock()

	if err := c.send(msgType, msg); err != nil {
		c.dropPending(id)
		return CommandResultData{}, err
	}

	select {
	case result, ok := <-ch:
		if !ok {
			return CommandResultData{}, ErrNotConnected
		}
		if !result.Success {
			return result, fmt.Errorf("%w: %s", ErrCommandFailed, result.Error)
		}
		return result, nil
	case <-ctx.Done():
		c.dropPending(id)
		return CommandResultData{}, ctx.Err()
	}
}

func (c *GameClient) dropPending(id uint32) {
	c.pendingLock.Lock()
	delete(c.pending, id)
	c.pendingLock.Unlock()
}

// messageLoop handles incoming messages until the connection fails or
// ctx is cancelled
func (c *GameClient) messageLoop(ctx context.Context, conn net.Conn) {
	for {
		conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		msgType, data, err := ReadMessage(conn)
		if err != nil {
			if ctx.Err() == nil {
				c.handleDisconnect(ctx, err)
			}
			return
		}

		switch msgType {
		case GameStateUpdate:
			c.handleGameStateUpdate(ctx, data)
		case CommandResult:
			c.handleCommandResult(ctx, data)
		case PingResponse:
			c.handlePingResponse(data)
		default:
			c.logger.Debug(ctx, "ignoring message", "type", msgType.String())
		}
	}
}

// handleGameStateUpdate publishes the state's hits and queues the state.
// When the queue is full the oldest state is dropped.
func (c *GameClient) handleGameStateUpdate(ctx context.Context, data []byte) {
	var state engine.GameState
	if err := DecodeMessage(data, &state); err != nil {
		c.logger.Warn(ctx, "bad game state", "error", err)
		return
	}

	c.publishHits(&state)

	for {
		select {
		case c.receivedStates <- &state:
			return
		default:
		}
		select {
		case <-c.receivedStates:
		default:
		}
	}
}

// publishHits republishes the hits of a state as LineHit events
func (c *GameClient) publishHits(state *engine.GameState) {
	if len(state.Hits) == 0 {
		return
	}

	lines := make(map[entity.ID]*entity.LineState, len(state.Lines))
	for i := range state.Lines {
		lines[state.Lines[i].ID] = &state.Lines[i]
	}

	for _, h := range state.Hits {
		var kind physics.LineKind
		var length float64
		if l, ok := lines[h.LineID]; ok {
			kind = l.Kind
			length = l.Start.Distance(l.End)
		}
		c.eventBus.Publish(event.NewLineHitEvent(
			c, uint64(h.BallID), uint64(h.LineID), kind, h.Position, physics.Vector2D{}, length, h.Note,
		))
	}
}

func (c *GameClient) handleCommandResult(ctx context.Context, data []byte) {
	var result CommandResultData
	if err := DecodeMessage(data, &result); err != nil {
		c.logger.Warn(ctx, "bad command result", "error", err)
		return
	}

	c.pendingLock.Lock()
	ch, ok := c.pending[result.RequestID]
	delete(c.pending, result.RequestID)
	c.pendingLock.Unlock()

	if ok {
		ch <- result
	}
}

func (c *GameClient) handlePingResponse(data []byte) {
	var ping PingData
	if err := DecodeMessage(data, &ping); err != nil {
		return
	}

	c.mu.Lock()
	c.latency = time.Since(time.Unix(0, ping.SentAt))
	c.mu.Unlock()
}

// pingLoop periodically sends ping requests to the server
func (c *GameClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.send(PingRequest, PingData{SentAt: time.Now().UnixNano()}); err != nil {
				c.logger.Debug(ctx, "ping failed", "error", err)
			}
		}
	}
}

// handleDisconnect reacts to a lost connection by reconnecting
func (c *GameClient) handleDisconnect(ctx context.Context, err error) {
	if !c.connected.Swap(false) {
		return
	}
	c.logger.Warn(ctx, "connection lost", "error", err)

	c.eventBus.Publish(&event.BaseEvent{EventType: ClientDisconnected, Source: c})

	if !c.closing.Load() {
		go c.attemptReconnect()
	}
}

// attemptReconnect tries to rejoin with the same name
func (c *GameClient) attemptReconnect() {
	c.mu.Lock()
	address, name := c.serverAddress, c.playerName
	c.mu.Unlock()

	for attempt := 1; attempt <= c.maxReconnectAttempts; attempt++ {
		time.Sleep(c.reconnectDelay)
		if c.closing.Load() {
			return
		}

		if err := c.Connect(context.Background(), address, name); err == nil {
			c.eventBus.Publish(&event.BaseEvent{EventType: ClientReconnected, Source: c})
			return
		}
	}

	c.eventBus.Publish(&event.BaseEvent{EventType: ClientReconnectFailed, Source: c})
}

// send writes one message with the write timeout
func (c *GameClient) send(msgType MessageType, msg interface{}) error {
	frame, err := EncodeMessage(msgType, msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if conn == nil || !c.connected.Load() {
		return ErrNotConnected
	}
	conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	_, err = conn.Write(frame)
	return err
}
