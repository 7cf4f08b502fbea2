// cmd/client/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gdamore/tcell/v2"

	"github.com/opd-ai/gravity-beats/pkg/audio"
	"github.com/opd-ai/gravity-beats/pkg/config"
	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/event"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/network"
	"github.com/opd-ai/gravity-beats/pkg/render"
	engorender "github.com/opd-ai/gravity-beats/pkg/render/engo"
)

func main() {
	serverAddr := flag.String("server", "", "Server address (default from GRAVITYBEATS_SERVER_ADDR/PORT)")
	playerName := flag.String("name", "Player", "Player name")
	renderer := flag.String("renderer", "terminal", "Renderer type: 'terminal' or 'engo'")
	offline := flag.Bool("offline", false, "Run the arena in-process instead of connecting")
	configPath := flag.String("config", "arena.json", "Arena configuration file for -offline")
	mute := flag.Bool("mute", false, "Disable audio")
	logPath := flag.String("log", "", "Write logs to this file (terminal mode logs nowhere by default)")
	width := flag.Int("width", 1024, "Window width (Engo only)")
	height := flag.Int("height", 768, "Window height (Engo only)")
	flag.Parse()

	logger, closeLog, err := newLogger(*logPath, *renderer)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.WithSessionID(ctx, logging.GenerateSessionID())

	env, err := config.LoadConfigFromEnv()
	if err != nil {
		logger.Warn(ctx, "Invalid environment configuration, using defaults", "error", err)
		env = config.DefaultEnvironmentConfig()
	}

	var backend render.Backend
	var bus *event.Bus

	if *offline {
		session, err := startOffline(*configPath, *playerName)
		if err != nil {
			logger.Error(ctx, "Failed to start offline arena", err)
			os.Exit(1)
		}
		defer session.Stop()
		backend, bus = session, session.Game().EventBus
	} else {
		bus = event.NewEventBus()
		client := network.NewGameClient(bus, env, logger)
		addr := *serverAddr
		if addr == "" {
			addr = env.Address()
		}
		logger.Info(ctx, "Connecting to server", "address", addr)
		if err := client.Connect(ctx, addr, *playerName); err != nil {
			logger.Error(ctx, "Failed to connect to server", err, "address", addr)
			os.Exit(1)
		}
		defer client.Disconnect()
		backend = client
	}

	if env.AudioEnabled && !*mute {
		synth := audio.NewSynth(logger)
		if err := synth.Initialize(); err != nil {
			logger.Warn(ctx, "Audio unavailable", "error", err)
		} else {
			synth.Attach(bus)
			defer synth.Close()
		}
	}

	switch *renderer {
	case "engo":
		engorender.Run(backend, "GravityBeats", *width, *height, logger)
	default:
		if err := runTerminal(ctx, backend, bus, logger); err != nil {
			logger.Error(ctx, "Terminal UI failed", err)
			os.Exit(1)
		}
	}
}

// newLogger logs to path, or to stderr in windowed mode. A terminal UI
// owns the screen, so it logs nowhere unless a file is given.
func newLogger(path, renderer string) (*logging.Logger, func(), error) {
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		return logging.NewLoggerWithWriter(f), func() { f.Close() }, nil
	}
	if renderer == "engo" {
		return logging.NewLogger(), func() {}, nil
	}
	return logging.Discard(), func() {}, nil
}

// startOffline runs the arena in path, or the default arena, in-process
func startOffline(path, playerName string) (*engine.LocalSession, error) {
	cfg := config.DefaultConfig()
	if _, err := os.Stat(path); err == nil {
		if cfg, err = config.LoadConfig(path); err != nil {
			return nil, err
		}
	}

	game, err := engine.NewGame(cfg)
	if err != nil {
		return nil, err
	}
	session, err := engine.NewLocalSession(game, playerName)
	if err != nil {
		return nil, err
	}
	session.Start()
	return session, nil
}

func runTerminal(ctx context.Context, backend render.Backend, bus *event.Bus, logger *logging.Logger) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	ui := render.NewTerminalUI(screen, backend, logger)
	bus.Subscribe(network.ClientDisconnected, func(event.Event) { ui.Notify("reconnecting") })
	bus.Subscribe(network.ClientReconnected, func(event.Event) { ui.Notify("connected") })
	bus.Subscribe(network.ClientReconnectFailed, func(event.Event) { ui.Notify("disconnected") })

	if err := ui.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
