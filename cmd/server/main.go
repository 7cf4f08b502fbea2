// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opd-ai/gravity-beats/pkg/config"
	"github.com/opd-ai/gravity-beats/pkg/engine"
	"github.com/opd-ai/gravity-beats/pkg/health"
	"github.com/opd-ai/gravity-beats/pkg/logging"
	"github.com/opd-ai/gravity-beats/pkg/network"
	"github.com/opd-ai/gravity-beats/pkg/resource"
)

func main() {
	logger := logging.NewLogger()
	ctx := context.Background()

	configPath := flag.String("config", "arena.json", "Path to arena configuration file")
	createDefault := flag.Bool("default", false, "Write the default arena to -config and exit")
	flag.Parse()

	if *createDefault {
		if err := config.SaveConfig(config.DefaultConfig(), *configPath); err != nil {
			logger.Error(ctx, "Failed to create default configuration", err, "config_path", *configPath)
			os.Exit(1)
		}
		logger.Info(ctx, "Created default configuration file", "config_path", *configPath)
		return
	}

	gameConfig, err := loadGameConfig(*configPath, logger)
	if err != nil {
		logger.Error(ctx, "Failed to load configuration", err, "config_path", *configPath)
		os.Exit(1)
	}

	env, err := config.LoadConfigFromEnv()
	if err != nil {
		logger.Error(ctx, "Invalid environment configuration", err)
		os.Exit(1)
	}
	if err := config.ApplyEnvironmentOverrides(gameConfig); err != nil {
		logger.Error(ctx, "Failed to apply environment configuration", err)
		os.Exit(1)
	}

	game, err := engine.NewGame(gameConfig)
	if err != nil {
		logger.Error(ctx, "Failed to create game", err)
		os.Exit(1)
	}
	server := network.NewGameServer(game, env, logger)

	healthChecker := health.NewHealthChecker()
	healthChecker.AddCheck(health.NewGameLoopHealthCheck(game.IsRunning, server.LastTick, 2*time.Second))
	healthChecker.AddCheck(health.NewNetworkHealthCheck(server.Addr))
	healthChecker.AddCheck(resource.NewHealthCheck(server.Resources()))

	healthServer := &http.Server{
		Addr:         net.JoinHostPort("", strconv.Itoa(env.HealthPort)),
		Handler:      healthChecker.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info(ctx, "Starting health check server", "port", env.HealthPort)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "Health check server failed", err)
		}
	}()

	serverAddr := gameConfig.NetworkConfig.ServerAddress
	logger.Info(ctx, "Starting server",
		"address", serverAddr,
		"max_players", gameConfig.MaxPlayers,
		"lines", len(gameConfig.Lines),
		"spawners", len(gameConfig.Spawners),
	)
	if err := server.Start(serverAddr); err != nil {
		logger.Error(ctx, "Failed to start server", err, "address", serverAddr)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info(ctx, "Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), env.ShutdownTimeout)
	defer cancel()

	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "Health check server shutdown failed", err)
	}
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error(ctx, "Game server shutdown incomplete", err)
		os.Exit(1)
	}
}

// loadGameConfig reads path, falling back to the default arena when the
// file does not exist.
func loadGameConfig(path string, logger *logging.Logger) (*config.GameConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info(context.Background(), "Configuration file not found, using default arena", "config_path", path)
		return config.DefaultConfig(), nil
	}
	return config.LoadConfig(path)
}
