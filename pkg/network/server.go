// pkg/network/server.go
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/gravity-beats/pkg/config"
	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/entity"
	"github.com/opd-ai/gravity-beats/pkg/event"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/resource"
	"github.com/opd-ai/gravity-beats/pkg/validation"
)

var ErrServerFull = errors.New("server full")

// GameServer runs the game loop and shares the arena with clients.
// Every client may draw, move and erase its own lines.
type GameServer struct {
	listener      net.Listener
	game          *engine.Game
	clients       map[entity.ID]*Client
	clientsLock   sync.RWMutex
	running       atomic.Bool
	updateRate    time.Duration
	maxClients    int
	ticksPerState int
	readTimeout   time.Duration
	writeTimeout  time.Duration
	validator     *validation.MessageValidator
	resources     *resource.Manager
	logger        *logging.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	loopDone      chan struct{}
	lastTick      atomic.Int64 // unix nanoseconds of the last game update

	// Hits published between two broadcasts, so no note is lost when
	// several ticks pass per state update.
	hitsLock    sync.Mutex
	pendingHits []engine.HitState
}

// Client represents a connected client
type Client struct {
	ID         entity.ID
	Conn       net.Conn
	PlayerID   entity.ID
	PlayerName string
	SessionID  string
	connected  atomic.Bool
	writeLock  sync.Mutex
}

// NewGameServer creates a server for game. Connection limits and timeouts
// come from env and rates from the game's network config.
func NewGameServer(game *engine.Game, env *config.EnvironmentConfig, logger *logging.Logger) *GameServer {
	if logger == nil {
		logger = logging.NewLogger()
	}
	nc := game.Config.NetworkConfig
	ctx, cancel := context.WithCancel(context.Background())

	s := &GameServer{
		game:          game,
		clients:       make(map[entity.ID]*Client),
		updateRate:    time.Second / time.Duration(max(nc.UpdateRate, 1)),
		maxClients:    env.MaxClients,
		ticksPerState: max(nc.TicksPerState, 1),
		readTimeout:   env.ReadTimeout,
		writeTimeout:  env.WriteTimeout,
		validator:     validation.NewMessageValidator(),
		resources:     resource.NewManager(env, logger),
		logger:        logger.With("component", "server"),
		ctx:           ctx,
		cancel:        cancel,
		loopDone:      make(chan struct{}),
	}

	game.EventBus.Subscribe(event.LineHit, s.collectHit)
	return s
}

// Resources exposes the goroutine and memory tracker for health checks
func (s *GameServer) Resources() *resource.Manager {
	return s.resources
}

// Start listens on address and starts the game
func (s *GameServer) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return s.Serve(listener)
}

// Serve accepts clients from listener and starts the game loop
func (s *GameServer) Serve(listener net.Listener) error {
	if err := s.resources.Start(); err != nil {
		return err
	}

	s.listener = listener
	s.running.Store(true)
	s.lastTick.Store(time.Now().UnixNano())
	s.game.Start()

	go s.acceptConnections()
	go s.gameLoop()

	s.logger.Info(s.ctx, "game server started", "address", listener.Addr().String())
	return nil
}

// Addr returns the listening address, or "" when not listening
func (s *GameServer) Addr() string {
	if !s.running.Load() || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// IsRunning reports whether the server is accepting clients
func (s *GameServer) IsRunning() bool {
	return s.running.Load()
}

// LastTick returns when the game loop last advanced the game
func (s *GameServer) LastTick() time.Time {
	return time.Unix(0, s.lastTick.Load())
}

// ClientCount returns the number of connected clients
func (s *GameServer) ClientCount() int {
	s.clientsLock.RLock()
	defer s.clientsLock.RUnlock()
	return len(s.clients)
}

// Stop disconnects every client, stops the game and waits for the
// client handlers to return.
func (s *GameServer) Stop(ctx context.Context) error {
	if !s.running.Swap(false) {
		return nil
	}
	s.cancel()

	if s.listener != nil {
		s.listener.Close()
	}
	<-s.loopDone

	s.clientsLock.Lock()
	for _, client := range s.clients {
		client.Conn.Close()
	}
	s.clientsLock.Unlock()

	s.game.Stop()
	err := s.resources.Shutdown(ctx)
	s.validator.Close()

	s.logger.Info(ctx, "game server stopped")
	return err
}

// acceptConnections accepts new client connections
func (s *GameServer) acceptConnections() {
	for s.running.Load() {
		conn, err := s.listener.Accept()
		if err != nil {
			if s.running.Load() {
				s.logger.Error(s.ctx, "error accepting connection", err)
				continue
			}
			return
		}

		ctx := logging.WithSessionID(s.ctx, logging.GenerateSessionID())
		err = s.resources.Go(ctx, "client", func(ctx context.Context) {
			s.handleConnection(ctx, conn)
		})
		if err != nil {
			s.logger.Warn(ctx, "rejecting connection", "remote", conn.RemoteAddr().String(), "error", err)
			conn.Close()
		}
	}
}

// handleConnection runs the handshake and then serves the client until it
// disconnects. ctx must carry the session ID.
func (s *GameServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	client, err := s.handshake(ctx, conn)
	if err != nil {
		s.logger.Warn(ctx, "handshake failed", "remote", remoteAddr(conn), "error", err)
		return
	}
	defer s.removeClient(ctx, client)

	s.logger.Info(ctx, "client connected", "player_id", client.PlayerID, "player_name", client.PlayerName)
	s.handleClientMessages(ctx, client)
}

// handshake reads the connect request, adds the player and answers
func (s *GameServer) handshake(ctx context.Context, conn net.Conn) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	msgType, data, err := ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("failed to read connect request: %w", err)
	}
	if msgType != ConnectRequest {
		return nil, fmt.Errorf("expected %s, got %s", ConnectRequest, msgType)
	}

	var req ConnectRequestData
	if err := DecodeMessage(data, &req); err != nil {
		return nil, err
	}

	name, err := validation.ValidatePlayerName(req.PlayerName)
	if err != nil {
		s.reject(conn, err)
		return nil, err
	}

	if s.ClientCount() >= s.maxClients {
		s.reject(conn, ErrServerFull)
		return nil, ErrServerFull
	}

	playerID, err := s.game.AddPlayer(name)
	if err != nil {
		s.reject(conn, err)
		return nil, err
	}

	client := &Client{
		ID:         entity.GenerateID(),
		Conn:       conn,
		PlayerID:   playerID,
		PlayerName: name,
		SessionID:  logging.GetSessionID(ctx),
	}
	client.connected.Store(true)

	resp := ConnectResponseData{
		Success:  true,
		PlayerID: playerID,
		ClientID: client.ID,
		Bounds:   s.game.Config.Arena.Bounds,
	}
	if err := s.send(client, ConnectResponse, resp); err != nil {
		s.game.RemovePlayer(playerID)
		return nil, err
	}

	s.clientsLock.Lock()
	s.clients[client.ID] = client
	s.clientsLock.Unlock()

	return client, nil
}

// reject answers a connect request with an error
func (s *GameServer) reject(conn net.Conn, reason error) {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	WriteMessage(conn, ConnectResponse, ConnectResponseData{Success: false, Error: reason.Error()})
}

// handleClientMessages processes messages from a connected client
func (s *GameServer) handleClientMessages(ctx context.Context, client *Client) {
	for client.connected.Load() && s.running.Load() {
		client.Conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		msgType, data, err := ReadMessage(client.Conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && s.running.Load() {
				s.logger.Warn(ctx, "error reading message", "error", err)
			}
			return
		}

		if err := s.validator.ValidateMessage(len(data), client.SessionID); err != nil {
			s.logger.Warn(ctx, "message rejected", "type", msgType.String(), "error", err)
			continue
		}

		switch msgType {
		case PlaceLineRequest:
			s.handlePlaceLine(ctx, client, data)
		case RemoveLineRequest:
			s.handleRemoveLine(ctx, client, data)
		case MoveLineRequest:
			s.handleMoveLine(ctx, client, data)
		case PingRequest:
			s.sendRaw(client, PingResponse, data)
		case DisconnectNotification:
			s.logger.Info(ctx, "client disconnecting")
			client.connected.Store(false)
		default:
			s.logger.Warn(ctx, "unknown message type", "type", msgType.String())
		}
	}
}

// handlePlaceLine validates and places a line drawn by the client
func (s *GameServer) handlePlaceLine(ctx context.Context, client *Client, data []byte) {
	var req PlaceLineData
	if err := DecodeMessage(data, &req); err != nil {
		s.logger.Warn(ctx, "bad place_line request", "error", err)
		return
	}

	result := CommandResultData{RequestID: req.RequestID}
	lineID, err := s.placeLine(client, req)
	if err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
		result.LineID = lineID
	}
	s.logger.Debug(ctx, "place_line", "line_id", lineID, "success", result.Success)
	s.send(client, CommandResult, result)
}

func (s *GameServer) placeLine(client *Client, req PlaceLineData) (entity.ID, error) {
	name, err := validation.ValidateLineName(req.Name)
	if err != nil {
		return 0, err
	}
	return s.game.PlaceLine(client.PlayerID, req.Start, req.End, req.Kind, name)
}

// handleRemoveLine erases one of the client's lines
func (s *GameServer) handleRemoveLine(ctx context.Context, client *Client, data []byte) {
	var req RemoveLineData
	if err := DecodeMessage(data, &req); err != nil {
		s.logger.Warn(ctx, "bad remove_line request", "error", err)
		return
	}

	result := CommandResultData{RequestID: req.RequestID, LineID: req.LineID}
	if err := s.game.RemoveLine(client.PlayerID, req.LineID); err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
	}
	s.send(client, CommandResult, result)
}

// handleMoveLine moves one of the client's lines
func (s *GameServer) handleMoveLine(ctx context.Context, client *Client, data []byte) {
	var req MoveLineData
	if err := DecodeMessage(data, &req); err != nil {
		s.logger.Warn(ctx, "bad move_line request", "error", err)
		return
	}

	result := CommandResultData{RequestID: req.RequestID, LineID: req.LineID}
	if err := s.game.MoveLine(client.PlayerID, req.LineID, req.Start, req.End); err != nil {
		result.Error = err.Error()
	} else {
		result.Success = true
	}
	s.send(client, CommandResult, result)
}

// removeClient removes a client from the server
func (s *GameServer) removeClient(ctx context.Context, client *Client) {
	client.connected.Store(false)

	s.clientsLock.Lock()
	delete(s.clients, client.ID)
	s.clientsLock.Unlock()

	s.validator.Forget(client.SessionID)
	if err := s.game.RemovePlayer(client.PlayerID); err != nil {
		s.logger.Warn(ctx, "failed to remove player", "player_id", client.PlayerID, "error", err)
	}

	s.logger.Info(ctx, "client removed", "client_id", client.ID)
}

// collectHit runs inside Game.Step and must not touch the game
func (s *GameServer) collectHit(e event.Event) {
	hit, ok := e.(*event.LineHitEvent)
	if !ok {
		return
	}
	s.hitsLock.Lock()
	s.pendingHits = append(s.pendingHits, engine.HitState{
		BallID:   entity.ID(hit.BallID),
		LineID:   entity.ID(hit.LineID),
		Position: hit.Position,
		Note:     hit.Note,
	})
	s.hitsLock.Unlock()
}

// drainHits returns the hits collected since the last broadcast
func (s *GameServer) drainHits() []engine.HitState {
	s.hitsLock.Lock()
	defer s.hitsLock.Unlock()
	hits := s.pendingHits
	s.pendingHits = nil
	return hits
}

// gameLoop runs the main game loop
func (s *GameServer) gameLoop() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.updateRate)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		if err := s.game.Update(); err != nil {
			s.logger.Error(s.ctx, "game update failed", err)
			continue
		}
		s.lastTick.Store(time.Now().UnixNano())

		if s.game.Tick()%uint64(s.ticksPerState) == 0 {
			s.broadcastState()
		}
	}
}

// broadcastState encodes the game state once and sends it to all clients
func (s *GameServer) broadcastState() {
	state := s.game.GetGameState()
	state.Hits = s.drainHits()

	frame, err := EncodeMessage(GameStateUpdate, state)
	if err != nil {
		s.logger.Error(s.ctx, "failed to encode game state", err,
			"balls", len(state.Balls), "lines", len(state.Lines))
		return
	}

	s.clientsLock.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		if c.connected.Load() {
			clients = append(clients, c)
		}
	}
	s.clientsLock.RUnlock()

	for _, c := range clients {
		if err := s.writeFrame(c, frame); err != nil {
			// The read loop sees the closed connection and cleans up
			c.Conn.Close()
		}
	}
}

// send encodes and writes one message to a client
func (s *GameServer) send(client *Client, msgType MessageType, msg interface{}) error {
	frame, err := EncodeMessage(msgType, msg)
	if err != nil {
		return err
	}
	return s.writeFrame(client, frame)
}

// sendRaw writes an already encoded payload
func (s *GameServer) sendRaw(client *Client, msgType MessageType, payload []byte) error {
	frame, err := encodeFrame(msgType, payload)
	if err != nil {
		return err
	}
	return s.writeFrame(client, frame)
}

func (s *GameServer) writeFrame(client *Client, frame []byte) error {
	client.writeLock.Lock()
	defer client.writeLock.Unlock()

	client.Conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	_, err := client.Conn.Write(frame)
	return err
}

func remoteAddr(conn net.Conn) string {
	if addr := conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
