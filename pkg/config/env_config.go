// pkg/config/env_config.go
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// EnvPrefix starts every environment variable read by this package
const EnvPrefix = "GRAVITYBEATS_"

// EnvironmentConfig holds deployment settings read from GRAVITYBEATS_*
// environment variables. Arena layout lives in GameConfig instead.
type EnvironmentConfig struct {
	ServerAddr    string
	ServerPort    int
	MaxClients    int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	UpdateRate    int
	TicksPerState int
	HealthPort    int
	MaxBalls      int
	Tempo         float64
	AudioEnabled  bool

	CircuitBreakerMaxRequests         int
	CircuitBreakerInterval            time.Duration
	CircuitBreakerTimeout             time.Duration
	CircuitBreakerMaxConsecutiveFails int

	MaxMemoryMB           int64
	MaxGoroutines         int
	ShutdownTimeout       time.Duration
	ResourceCheckInterval time.Duration
}

// ValidationError names the setting that failed validation
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

// DefaultEnvironmentConfig returns the settings used when nothing is set
func DefaultEnvironmentConfig() *EnvironmentConfig {
	return &EnvironmentConfig{
		ServerAddr:    "localhost",
		ServerPort:    4566,
		MaxClients:    32,
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		UpdateRate:    60,
		TicksPerState: 2,
		HealthPort:    8080,
		MaxBalls:      500,
		Tempo:         60,
		AudioEnabled:  true,

		CircuitBreakerMaxRequests:         3,
		CircuitBreakerInterval:            60 * time.Second,
		CircuitBreakerTimeout:             30 * time.Second,
		CircuitBreakerMaxConsecutiveFails: 5,

		MaxMemoryMB:           500,
		MaxGoroutines:         100,
		ShutdownTimeout:       30 * time.Second,
		ResourceCheckInterval: 10 * time.Second,
	}
}

// LoadConfigFromEnv reads and validates the environment configuration
func LoadConfigFromEnv() (*EnvironmentConfig, error) {
	d := DefaultEnvironmentConfig()

	config := &EnvironmentConfig{
		ServerAddr:    getEnvOrDefault(EnvPrefix+"SERVER_ADDR", d.ServerAddr),
		ServerPort:    getEnvAsIntOrDefault(EnvPrefix+"SERVER_PORT", d.ServerPort),
		MaxClients:    getEnvAsIntOrDefault(EnvPrefix+"MAX_CLIENTS", d.MaxClients),
		ReadTimeout:   getEnvAsDurationOrDefault(EnvPrefix+"READ_TIMEOUT", d.ReadTimeout),
		WriteTimeout:  getEnvAsDurationOrDefault(EnvPrefix+"WRITE_TIMEOUT", d.WriteTimeout),
		UpdateRate:    getEnvAsIntOrDefault(EnvPrefix+"UPDATE_RATE", d.UpdateRate),
		TicksPerState: getEnvAsIntOrDefault(EnvPrefix+"TICKS_PER_STATE", d.TicksPerState),
		HealthPort:    getEnvAsIntOrDefault(EnvPrefix+"HEALTH_PORT", d.HealthPort),
		MaxBalls:      getEnvAsIntOrDefault(EnvPrefix+"MAX_BALLS", d.MaxBalls),
		Tempo:         getEnvAsFloatOrDefault(EnvPrefix+"TEMPO", d.Tempo),
		AudioEnabled:  getEnvAsBoolOrDefault(EnvPrefix+"AUDIO", d.AudioEnabled),

		CircuitBreakerMaxRequests:         getEnvAsIntOrDefault(EnvPrefix+"CB_MAX_REQUESTS", d.CircuitBreakerMaxRequests),
		CircuitBreakerInterval:            getEnvAsDurationOrDefault(EnvPrefix+"CB_INTERVAL", d.CircuitBreakerInterval),
		CircuitBreakerTimeout:             getEnvAsDurationOrDefault(EnvPrefix+"CB_TIMEOUT", d.CircuitBreakerTimeout),
		CircuitBreakerMaxConsecutiveFails: getEnvAsIntOrDefault(EnvPrefix+"CB_MAX_FAILS", d.CircuitBreakerMaxConsecutiveFails),

		MaxMemoryMB:           int64(getEnvAsIntOrDefault(EnvPrefix+"MAX_MEMORY_MB", int(d.MaxMemoryMB))),
		MaxGoroutines:         getEnvAsIntOrDefault(EnvPrefix+"MAX_GOROUTINES", d.MaxGoroutines),
		ShutdownTimeout:       getEnvAsDurationOrDefault(EnvPrefix+"SHUTDOWN_TIMEOUT", d.ShutdownTimeout),
		ResourceCheckInterval: getEnvAsDurationOrDefault(EnvPrefix+"RESOURCE_CHECK_INTERVAL", d.ResourceCheckInterval),
	}

	if err := validateEnvironmentConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Address returns the host:port the server listens on
func (c *EnvironmentConfig) Address() string {
	return net.JoinHostPort(c.ServerAddr, strconv.Itoa(c.ServerPort))
}

func validateEnvironmentConfig(c *EnvironmentConfig) error {
	switch {
	case c.ServerAddr == "":
		return &ValidationError{Field: "ServerAddr", Value: c.ServerAddr, Message: "must not be empty"}
	case c.ServerPort < 1024 || c.ServerPort > 65535:
		return &ValidationError{Field: "ServerPort", Value: c.ServerPort, Message: "must be between 1024 and 65535"}
	case c.MaxClients < 1 || c.MaxClients > 1000:
		return &ValidationError{Field: "MaxClients", Value: c.MaxClients, Message: "must be between 1 and 1000"}
	case c.ReadTimeout < time.Second || c.ReadTimeout > time.Minute:
		return &ValidationError{Field: "ReadTimeout", Value: c.ReadTimeout, Message: "must be between 1s and 1m"}
	case c.WriteTimeout < time.Second || c.WriteTimeout > time.Minute:
		return &ValidationError{Field: "WriteTimeout", Value: c.WriteTimeout, Message: "must be between 1s and 1m"}
	case c.UpdateRate < 1 || c.UpdateRate > 240:
		return &ValidationError{Field: "UpdateRate", Value: c.UpdateRate, Message: "must be between 1 and 240"}
	case c.TicksPerState < 1:
		return &ValidationError{Field: "TicksPerState", Value: c.TicksPerState, Message: "must be at least 1"}
	case c.HealthPort < 1024 || c.HealthPort > 65535:
		return &ValidationError{Field: "HealthPort", Value: c.HealthPort, Message: "must be between 1024 and 65535"}
	case c.MaxBalls < 1 || c.MaxBalls > 10000:
		return &ValidationError{Field: "MaxBalls", Value: c.MaxBalls, Message: "must be between 1 and 10000"}
	case !(c.Tempo > 0) || c.Tempo > 400:
		return &ValidationError{Field: "Tempo", Value: c.Tempo, Message: "must be between 0 and 400 bpm"}
	case c.CircuitBreakerMaxRequests < 1:
		return &ValidationError{Field: "CircuitBreakerMaxRequests", Value: c.CircuitBreakerMaxRequests, Message: "must be at least 1"}
	case c.CircuitBreakerInterval < time.Second:
		return &ValidationError{Field: "CircuitBreakerInterval", Value: c.CircuitBreakerInterval, Message: "must be at least 1s"}
	case c.CircuitBreakerTimeout < time.Second:
		return &ValidationError{Field: "CircuitBreakerTimeout", Value: c.CircuitBreakerTimeout, Message: "must be at least 1s"}
	case c.CircuitBreakerMaxConsecutiveFails < 1:
		return &ValidationError{Field: "CircuitBreakerMaxConsecutiveFails", Value: c.CircuitBreakerMaxConsecutiveFails, Message: "must be at least 1"}
	case c.MaxMemoryMB < 16:
		return &ValidationError{Field: "MaxMemoryMB", Value: c.MaxMemoryMB, Message: "must be at least 16"}
	case c.MaxGoroutines < 10:
		return &ValidationError{Field: "MaxGoroutines", Value: c.MaxGoroutines, Message: "must be at least 10"}
	case c.ShutdownTimeout < time.Second:
		return &ValidationError{Field: "ShutdownTimeout", Value: c.ShutdownTimeout, Message: "must be at least 1s"}
	case c.ResourceCheckInterval < 100*time.Millisecond:
		return &ValidationError{Field: "ResourceCheckInterval", Value: c.ResourceCheckInterval, Message: "must be at least 100ms"}
	}
	return nil
}

// ApplyEnvironmentOverrides copies the environment settings that have a
// GameConfig counterpart into config.
func ApplyEnvironmentOverrides(config *GameConfig) error {
	env, err := LoadConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}

	config.NetworkConfig.ServerAddress = env.Address()
	config.NetworkConfig.ServerPort = env.ServerPort
	config.NetworkConfig.UpdateRate = env.UpdateRate
	config.NetworkConfig.TicksPerState = env.TicksPerState
	config.MaxPlayers = env.MaxClients

	// Arena values are only overridden when explicitly set, so a config
	// file's tempo survives an empty environment.
	if _, ok := os.LookupEnv(EnvPrefix + "MAX_BALLS"); ok {
		config.Arena.MaxBalls = env.MaxBalls
	}
	if _, ok := os.LookupEnv(EnvPrefix + "TEMPO"); ok {
		config.Music.Tempo = env.Tempo
	}

	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
