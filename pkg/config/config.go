// pkg/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/opd-ai/gravity-beats/pkg/beat"
	"github.com/opd-ai/gravity-beats/pkg/physics"
)

// GameConfig describes an arena: its lines, spawners and music settings
type GameConfig struct {
	MaxPlayers    int             `json:"maxPlayers"`
	Arena         ArenaConfig     `json:"arena"`
	Lines         []LineConfig    `json:"lines"`
	Spawners      []SpawnerConfig `json:"spawners"`
	Music         MusicConfig     `json:"music"`
	NetworkConfig NetworkConfig   `json:"network"`
}

// ArenaConfig contains physics-related configuration
type ArenaConfig struct {
	Bounds             physics.Bounds `json:"bounds"`
	Gravity            float64        `json:"gravity"`
	MaxBalls           int            `json:"maxBalls"`
	MaxSweepIterations int            `json:"maxSweepIterations"`
}

// LineConfig places one line in the arena. Endpoint order sets the
// blocking side of one_way lines.
type LineConfig struct {
	Name  string           `json:"name"`
	Start physics.Vector2D `json:"start"`
	End   physics.Vector2D `json:"end"`
	Kind  physics.LineKind `json:"kind"`
}

// SpawnerConfig drops a ball from Position every time its note fires.
// Angle is in degrees, 90 points straight down.
type SpawnerConfig struct {
	Name        string           `json:"name"`
	Position    physics.Vector2D `json:"position"`
	Speed       beat.Speed       `json:"speed"`
	LaunchSpeed float64          `json:"launchSpeed"`
	Angle       float64          `json:"angle"`
}

// MusicConfig sets the tempo and the scale lines are tuned to.
// ScaleFile wins over ScaleNotes when both are set.
type MusicConfig struct {
	Tempo      float64 `json:"tempo"`
	ScaleFile  string  `json:"scaleFile,omitempty"`
	ScaleNotes []int   `json:"scaleNotes,omitempty"`
}

// NetworkConfig contains network-related configuration
type NetworkConfig struct {
	UpdateRate    int    `json:"updateRate"`
	TicksPerState int    `json:"ticksPerState"`
	ServerPort    int    `json:"serverPort"`
	ServerAddress string `json:"serverAddress"`
}

// LoadConfig loads a configuration from a file
func LoadConfig(path string) (*GameConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var config GameConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// SaveConfig saves a configuration to a file
func SaveConfig(config *GameConfig, path string) error {
	if config == nil {
		return fmt.Errorf("failed to marshal config: nil config")
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Validate checks the arena for values the engine cannot run with.
// It returns the first problem found as a *ValidationError.
func (c *GameConfig) Validate() error {
	b := c.Arena.Bounds
	if !(b.XMax > b.XMin) || !(b.YMax > b.YMin) {
		return &ValidationError{Field: "Arena.Bounds", Value: b, Message: "bounds must have positive width and height"}
	}
	if math.IsNaN(c.Arena.Gravity) || math.IsInf(c.Arena.Gravity, 0) {
		return &ValidationError{Field: "Arena.Gravity", Value: c.Arena.Gravity, Message: "must be finite"}
	}
	if c.Arena.MaxBalls < 1 {
		return &ValidationError{Field: "Arena.MaxBalls", Value: c.Arena.MaxBalls, Message: "must be at least 1"}
	}
	if c.MaxPlayers < 1 {
		return &ValidationError{Field: "MaxPlayers", Value: c.MaxPlayers, Message: "must be at least 1"}
	}

	for i, l := range c.Lines {
		if !l.Start.IsFinite() || !l.End.IsFinite() {
			return &ValidationError{Field: fmt.Sprintf("Lines[%d]", i), Value: l.Name, Message: "endpoints must be finite"}
		}
		if l.Start == l.End {
			return &ValidationError{Field: fmt.Sprintf("Lines[%d]", i), Value: l.Name, Message: "line has zero length"}
		}
	}

	for i, s := range c.Spawners {
		if !s.Speed.Valid() {
			return &ValidationError{Field: fmt.Sprintf("Spawners[%d].Speed", i), Value: int(s.Speed), Message: "unknown note value"}
		}
		if !s.Position.IsFinite() || !isFinite(s.LaunchSpeed) || !isFinite(s.Angle) {
			return &ValidationError{Field: fmt.Sprintf("Spawners[%d]", i), Value: s.Name, Message: "spawner values must be finite"}
		}
	}

	if !(c.Music.Tempo > 0) || c.Music.Tempo > 400 {
		return &ValidationError{Field: "Music.Tempo", Value: c.Music.Tempo, Message: "must be between 0 and 400 bpm"}
	}

	return nil
}

// DefaultConfig returns a small arena: two spawners over a staircase of
// lines that bounce balls from side to side.
func DefaultConfig() *GameConfig {
	return &GameConfig{
		MaxPlayers: 8,
		Arena: ArenaConfig{
			Bounds:             physics.DefaultBounds(),
			Gravity:            physics.DefaultGravity,
			MaxBalls:           500,
			MaxSweepIterations: physics.DefaultMaxSweepIterations,
		},
		Lines: []LineConfig{
			{Name: "upper-left", Start: physics.Vector2D{X: 520, Y: 220}, End: physics.Vector2D{X: 260, Y: 180}, Kind: physics.OneWay},
			{Name: "upper-right", Start: physics.Vector2D{X: 1020, Y: 180}, End: physics.Vector2D{X: 760, Y: 220}, Kind: physics.OneWay},
			{Name: "middle", Start: physics.Vector2D{X: 780, Y: 420}, End: physics.Vector2D{X: 500, Y: 440}, Kind: physics.OneWay},
			{Name: "chime", Start: physics.Vector2D{X: 340, Y: 560}, End: physics.Vector2D{X: 940, Y: 560}, Kind: physics.PassThrough},
			{Name: "floor-left", Start: physics.Vector2D{X: 600, Y: 700}, End: physics.Vector2D{X: 120, Y: 640}, Kind: physics.OneWay},
			{Name: "floor-right", Start: physics.Vector2D{X: 1160, Y: 640}, End: physics.Vector2D{X: 680, Y: 700}, Kind: physics.OneWay},
		},
		Spawners: []SpawnerConfig{
			{Name: "left", Position: physics.Vector2D{X: 400, Y: 40}, Speed: beat.QuarterNote, LaunchSpeed: 0, Angle: 90},
			{Name: "right", Position: physics.Vector2D{X: 880, Y: 40}, Speed: beat.HalfNote, LaunchSpeed: 20, Angle: 100},
		},
		Music: MusicConfig{
			Tempo:      60,
			ScaleNotes: []int{48, 50, 52, 55, 57, 60, 62, 64, 67, 69, 72, 74, 76, 79, 81},
		},
		NetworkConfig: NetworkConfig{
			UpdateRate:    60,
			TicksPerState: 2,
			ServerPort:    4566,
			ServerAddress: "localhost:4566",
		},
	}
}
