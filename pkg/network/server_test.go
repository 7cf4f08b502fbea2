package network

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/opd-ai/gravity-beats/pkg/config"
	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/event"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

func testGameConfig() *config.GameConfig {
	cfg := config.DefaultConfig()
	cfg.Arena.Bounds = physics.Bounds{XMin: -100, XMax: 100, YMin: -100, YMax: 200}
	cfg.Lines = nil
	cfg.Spawners = nil
	cfg.Music.ScaleFile = ""
	cfg.Music.ScaleNotes = []int{60, 67, 72}
	cfg.NetworkConfig.UpdateRate = 100
	cfg.NetworkConfig.TicksPerState = 1
	return cfg
}

func testEnv() *config.EnvironmentConfig {
	env := config.DefaultEnvironmentConfig()
	env.ReadTimeout = 2 * time.Second
	env.WriteTimeout = 2 * time.Second
	env.ResourceCheckInterval = time.Hour
	return env
}

// newTestServer creates a server that handles piped connections without
// listening
func newTestServer(t *testing.T, env *config.EnvironmentConfig) *GameServer {
	t.Helper()
	game, err := engine.NewGame(testGameConfig())
	if err != nil {
		t.Fatalf("NewGame() error = %v", err)
	}
	s := NewGameServer(game, env, logging.Discard())
	s.running.Store(true)
	t.Cleanup(func() {
		s.running.Store(false)
		s.cancel()
		s.validator.Close()
	})
	return s
}

// pipeClient starts a handler for one end of a pipe and returns the other
func pipeClient(t *testing.T, s *GameServer) (net.Conn, <-chan struct{}) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.handleConnection(s.ctx, serverConn)
	}()
	t.Cleanup(func() { clientConn.Close() })
	return clientConn, done
}

func connect(t *testing.T, conn net.Conn, name string) ConnectResponseData {
	t.Helper()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if err := WriteMessage(conn, ConnectRequest, ConnectRequestData{PlayerName: name}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	var resp ConnectResponseData
	readExpect(t, conn, ConnectResponse, &resp)
	return resp
}

func readExpect(t *testing.T, conn net.Conn, want MessageType, v interface{}) {
	t.Helper()
	msgType, data, err := ReadMessage(conn)
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if msgType != want {
		t.Fatalf("ReadMessage() type = %s, expected %s", msgType, want)
	}
	if err := DecodeMessage(data, v); err != nil {
		t.Fatalf("DecodeMessage() error = %v", err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewGameServer_ConfiguresRates(t *testing.T) {
	cfg := testGameConfig()
	cfg.NetworkConfig.UpdateRate = 10
	cfg.NetworkConfig.TicksPerState = 7
	game, err := engine.NewGame(cfg)
	if err != nil {
		t.Fatalf("NewGame() error = %v", err)
	}

	s := NewGameServer(game, testEnv(), logging.Discard())
	defer s.validator.Close()

	if s.ticksPerState != 7 {
		t.Errorf("ticksPerState = %d, expected 7", s.ticksPerState)
	}
	if s.updateRate != 100*time.Millisecond {
		t.Errorf("updateRate = %v, expected 100ms", s.updateRate)
	}
	if s.maxClients != 32 {
		t.Errorf("maxClients = %d, expected 32", s.maxClients)
	}
}

func TestGameServer_Handshake(t *testing.T) {
	s := newTestServer(t, testEnv())
	conn, _ := pipeClient(t, s)

	resp := connect(t, conn, "  Alice ")
	if !resp.Success {
		t.Fatalf("ConnectResponse.Success = false, error %q", resp.Error)
	}
	if resp.PlayerID == 0 || resp.ClientID == 0 {
		t.Errorf("ConnectResponse IDs = %d/%d, expected non-zero", resp.PlayerID, resp.ClientID)
	}
	if resp.Bounds != s.game.Config.Arena.Bounds {
		t.Errorf("ConnectResponse.Bounds = %+v, expected %+v", resp.Bounds, s.game.Config.Arena.Bounds)
	}

	waitFor(t, "client registration", func() bool { return s.ClientCount() == 1 })
	players := s.game.GetGameState().Players
	if len(players) != 1 || players[0].Name != "Alice" {
		t.Errorf("Players = %+v, expected Alice", players)
	}
}

func TestGameServer_HandshakeRejected(t *testing.T) {
	tests := []struct {
		name       string
		maxClients int
		playerName string
	}{
		{"invalid_name", 4, "<script>"},
		{"empty_name", 4, ""},
		{"server_full", 0, "Bob"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv()
			env.MaxClients = tt.maxClients
			s := newTestServer(t, env)
			conn, done := pipeClient(t, s)

			resp := connect(t, conn, tt.playerName)
			if resp.Success {
				t.Fatal("ConnectResponse.Success = true, expected rejection")
			}
			if resp.Error == "" {
				t.Error("ConnectResponse.Error is empty")
			}

			<-done
			if s.ClientCount() != 0 {
				t.Errorf("ClientCount() = %d, expected 0", s.ClientCount())
			}
		})
	}
}

func TestGameServer_LineCommands(t *testing.T) {
	s := newTestServer(t, testEnv())
	conn, _ := pipeClient(t, s)
	connect(t, conn, "Alice")

	place := PlaceLineData{
		RequestID: 1,
		Start:     physics.Vector2D{X: 50, Y: 100},
		End:       physics.Vector2D{X: -50, Y: 100},
		Kind:      physics.OneWay,
		Name:      "floor",
	}
	WriteMessage(conn, PlaceLineRequest, place)

	var result CommandResultData
	readExpect(t, conn, CommandResult, &result)
	if !result.Success || result.RequestID != 1 || result.LineID == 0 {
		t.Fatalf("place result = %+v, expected success with a line ID", result)
	}
	if s.game.Simulation.LineCount() != 1 {
		t.Errorf("LineCount() = %d, expected 1", s.game.Simulation.LineCount())
	}

	// Out of bounds lines are refused
	place.RequestID = 2
	place.End = physics.Vector2D{X: 500, Y: 100}
	WriteMessage(conn, PlaceLineRequest, place)
	readExpect(t, conn, CommandResult, &result)
	if result.Success || result.RequestID != 2 {
		t.Errorf("out of bounds result = %+v, expected failure", result)
	}

	lineID := s.game.GetGameState().Lines[0].ID
	WriteMessage(conn, MoveLineRequest, MoveLineData{
		RequestID: 3,
		LineID:    lineID,
		Start:     physics.Vector2D{X: 10, Y: 50},
		End:       physics.Vector2D{X: -10, Y: 50},
	})
	readExpect(t, conn, CommandResult, &result)
	if !result.Success {
		t.Fatalf("move result = %+v, expected success", result)
	}
	if got := s.game.GetGameState().Lines[0].Start; got != (physics.Vector2D{X: 10, Y: 50}) {
		t.Errorf("moved line start = %v, expected (10, 50)", got)
	}

	WriteMessage(conn, RemoveLineRequest, RemoveLineData{RequestID: 4, LineID: lineID})
	readExpect(t, conn, CommandResult, &result)
	if !result.Success {
		t.Fatalf("remove result = %+v, expected success", result)
	}
	if s.game.Simulation.LineCount() != 0 {
		t.Errorf("LineCount() = %d, expected 0", s.game.Simulation.LineCount())
	}
}

func TestGameServer_CannotEditOthersLines(t *testing.T) {
	s := newTestServer(t, testEnv())
	lineID, err := s.game.PlaceLine(0, physics.Vector2D{X: 50, Y: 0}, physics.Vector2D{X: -50, Y: 0}, physics.OneWay, "arena")
	if err != nil {
		t.Fatalf("PlaceLine() error = %v", err)
	}

	conn, _ := pipeClient(t, s)
	connect(t, conn, "Mallory")

	WriteMessage(conn, RemoveLineRequest, RemoveLineData{RequestID: 9, LineID: lineID})
	var result CommandResultData
	readExpect(t, conn, CommandResult, &result)
	if result.Success {
		t.Error("remove result Success = true, expected the arena line to be protected")
	}
	if s.game.Simulation.LineCount() != 1 {
		t.Errorf("LineCount() = %d, expected 1", s.game.Simulation.LineCount())
	}
}

func TestGameServer_Ping(t *testing.T) {
	s := newTestServer(t, testEnv())
	conn, _ := pipeClient(t, s)
	connect(t, conn, "Alice")

	WriteMessage(conn, PingRequest, PingData{SentAt: 42})

	var pong PingData
	readExpect(t, conn, PingResponse, &pong)
	if pong.SentAt != 42 {
		t.Errorf("PingResponse.SentAt = %d, expected 42", pong.SentAt)
	}
}

func TestGameServer_Disconnect(t *testing.T) {
	s := newTestServer(t, testEnv())
	conn, done := pipeClient(t, s)
	connect(t, conn, "Alice")
	waitFor(t, "client registration", func() bool { return s.ClientCount() == 1 })

	WriteMessage(conn, DisconnectNotification, nil)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return after disconnect")
	}
	if s.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, expected 0", s.ClientCount())
	}
	if n := len(s.game.GetGameState().Players); n != 0 {
		t.Errorf("Players = %d, expected 0", n)
	}
}

func TestGameServer_DropsIdleClient(t *testing.T) {
	env := testEnv()
	env.ReadTimeout = 100 * time.Millisecond
	s := newTestServer(t, env)
	conn, done := pipeClient(t, s)
	connect(t, conn, "Alice")

	// The client stays silent past the read timeout
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not return for an idle client")
	}
	if s.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, expected 0", s.ClientCount())
	}
	if n := len(s.game.GetGameState().Players); n != 0 {
		t.Errorf("Players = %d, expected 0", n)
	}
}

func TestGameServer_BroadcastIncludesHits(t *testing.T) {
	s := newTestServer(t, testEnv())
	serverConn, clientConn := net.Pipe()
	defer clientConn.Close()

	client := &Client{ID: 1, Conn: serverConn, PlayerID: 1}
	client.connected.Store(true)
	s.clients[client.ID] = client

	s.game.EventBus.Publish(event.NewLineHitEvent(nil, 5, 6, physics.OneWay,
		physics.Vector2D{X: 1, Y: 2}, physics.Vector2D{Y: 10}, 20, 72))

	go s.broadcastState()

	clientConn.SetDeadline(time.Now().Add(2 * time.Second))
	var state engine.GameState
	readExpect(t, clientConn, GameStateUpdate, &state)

	want := engine.HitState{BallID: 5, LineID: 6, Position: physics.Vector2D{X: 1, Y: 2}, Note: 72}
	if len(state.Hits) != 1 || state.Hits[0] != want {
		t.Errorf("Hits = %+v, expected [%+v]", state.Hits, want)
	}
	if hits := s.drainHits(); len(hits) != 0 {
		t.Errorf("drainHits() = %v after broadcast, expected none", hits)
	}
}

func TestGameServer_ServeAndStop(t *testing.T) {
	game, err := engine.NewGame(testGameConfig())
	if err != nil {
		t.Fatalf("NewGame() error = %v", err)
	}
	s := NewGameServer(game, testEnv(), logging.Discard())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	if err := s.Serve(listener); err != nil {
		t.Fatalf("Serve() error = %v", err)
	}
	if s.Addr() == "" || !game.IsRunning() {
		t.Fatalf("Addr() = %q, running = %v after Serve", s.Addr(), game.IsRunning())
	}

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	if resp := connect(t, conn, "Alice"); !resp.Success {
		t.Fatalf("ConnectResponse = %+v", resp)
	}

	var state engine.GameState
	readExpect(t, conn, GameStateUpdate, &state)
	if state.Tick == 0 {
		t.Error("GameState.Tick = 0, expected the loop to have advanced")
	}
	if s.LastTick().IsZero() {
		t.Error("LastTick() is zero")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if s.IsRunning() || game.IsRunning() || s.Addr() != "" {
		t.Error("server or game still running after Stop()")
	}
	if err := s.Stop(ctx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
}
