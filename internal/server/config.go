package server

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// ServerConfig represents the complete server configuration
type ServerConfig struct {
	Server ServerSettings `hcl:"server,block"`
	Rooms  RoomDefaults   `hcl:"rooms,block"`
}

// ServerSettings contains server-level configuration. Environment
// variables override file values.
type ServerSettings struct {
	Address     string `hcl:"address,optional" env:"UNOROOMS_ADDRESS"`
	Port        int    `hcl:"port,optional" env:"UNOROOMS_PORT"`
	LogLevel    string `hcl:"log_level,optional" env:"UNOROOMS_LOG_LEVEL"`
	StoragePath string `hcl:"storage_path,optional" env:"UNOROOMS_STORAGE_PATH"`
}

// RoomDefaults holds defaults applied to newly created rooms.
type RoomDefaults struct {
	MaxPlayers      int  `hcl:"max_players,optional" env:"UNOROOMS_MAX_PLAYERS"`
	TurnTimeSeconds int  `hcl:"turn_time_seconds,optional" env:"UNOROOMS_TURN_TIME_SECONDS"`
	EnableBots      bool `hcl:"enable_bots,optional" env:"UNOROOMS_ENABLE_BOTS"`
	BotCount        int  `hcl:"bot_count,optional" env:"UNOROOMS_BOT_COUNT"`
	FinishedTTLMin  int  `hcl:"finished_ttl_minutes,optional" env:"UNOROOMS_FINISHED_TTL_MINUTES"`
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Server: ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Rooms: RoomDefaults{
			MaxPlayers:      4,
			TurnTimeSeconds: 30,
			EnableBots:      true,
			BotCount:        0,
			FinishedTTLMin:  5,
		},
	}
}

// LoadServerConfig loads server configuration from an HCL file, falling
// back to defaults when the file does not exist, then applies environment
// overrides.
func LoadServerConfig(filename string) (*ServerConfig, error) {
	config := DefaultServerConfig()

	if _, err := os.Stat(filename); err == nil {
		parser := hclparse.NewParser()
		file, diags := parser.ParseHCLFile(filename)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
		}

		var parsed ServerConfig
		diags = gohcl.DecodeBody(file.Body, nil, &parsed)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
		}
		config = &parsed
	}

	if err := env.Parse(&config.Server); err != nil {
		return nil, fmt.Errorf("failed to parse server environment: %w", err)
	}
	if err := env.Parse(&config.Rooms); err != nil {
		return nil, fmt.Errorf("failed to parse rooms environment: %w", err)
	}

	// Apply defaults for missing values
	if config.Server.Address == "" {
		config.Server.Address = "localhost"
	}
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = "info"
	}
	if config.Rooms.MaxPlayers == 0 {
		config.Rooms.MaxPlayers = 4
	}
	if config.Rooms.TurnTimeSeconds == 0 {
		config.Rooms.TurnTimeSeconds = 30
	}
	if config.Rooms.FinishedTTLMin == 0 {
		config.Rooms.FinishedTTLMin = 5
	}

	return config, nil
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Rooms.MaxPlayers < 2 || c.Rooms.MaxPlayers > 10 {
		return fmt.Errorf("max players must be between 2 and 10, got %d", c.Rooms.MaxPlayers)
	}
	if c.Rooms.TurnTimeSeconds < 5 {
		return fmt.Errorf("turn time must be at least 5 seconds, got %d", c.Rooms.TurnTimeSeconds)
	}
	if c.Rooms.BotCount < 0 || c.Rooms.BotCount >= c.Rooms.MaxPlayers {
		return fmt.Errorf("bot count must be between 0 and %d, got %d", c.Rooms.MaxPlayers-1, c.Rooms.BotCount)
	}
	return nil
}

// GetServerAddress returns the full server address
func (c *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// TurnTimeLimit returns the default per-turn clock as a duration.
func (c *ServerConfig) TurnTimeLimit() time.Duration {
	return time.Duration(c.Rooms.TurnTimeSeconds) * time.Second
}

// FinishedTTL returns the finished-room retention window as a duration.
func (c *ServerConfig) FinishedTTL() time.Duration {
	return time.Duration(c.Rooms.FinishedTTLMin) * time.Minute
}
