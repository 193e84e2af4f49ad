// Package config provides configuration management for AgentAvatar
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Stage   StageConfig   `mapstructure:"stage"`
	Chat    ChatConfig    `mapstructure:"chat"`
	Window  WindowConfig  `mapstructure:"window"`
}

// BackendConfig configures the conversation channel to the agent backend
type BackendConfig struct {
	ServerURL      string        `mapstructure:"server_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ClientID       string        `mapstructure:"client_id"`
}

// StageConfig configures the model stage
type StageConfig struct {
	CharacterFile    string  `mapstructure:"character_file"` // path to characters.yaml
	DefaultCharacter string  `mapstructure:"default_character"`
	DevicePixelRatio float64 `mapstructure:"device_pixel_ratio"`
	DefaultScale     float64 `mapstructure:"default_scale"` // used when a character has no scale hint
	WatchCharacters  bool    `mapstructure:"watch_characters"`
}

// ChatConfig configures chat history retention
type ChatConfig struct {
	MaxLines    int    `mapstructure:"max_lines"`
	SpeakerName string `mapstructure:"speaker_name"`
}

// WindowConfig configures the window
type WindowConfig struct {
	Title       string `mapstructure:"title"`
	Width       int    `mapstructure:"width"`
	Height      int    `mapstructure:"height"`
	AlwaysOnTop bool   `mapstructure:"always_on_top"`
	Frameless   bool   `mapstructure:"frameless"`
	Transparent bool   `mapstructure:"transparent"`
	// OverlayMode runs the avatar as a borderless desktop pet; hover and
	// context-menu signals are relayed to the shell only in this mode.
	OverlayMode bool `mapstructure:"overlay_mode"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			ServerURL:      "ws://localhost:12393/client-ws",
			Timeout:        30 * time.Second,
			ReconnectDelay: 5 * time.Second,
			MaxReconnects:  10,
			ClientID:       "agent-avatar",
		},
		Stage: StageConfig{
			CharacterFile:    "characters.yaml",
			DefaultCharacter: "",
			DevicePixelRatio: 2.0,
			DefaultScale:     0.5,
			WatchCharacters:  true,
		},
		Chat: ChatConfig{
			MaxLines:    200,
			SpeakerName: "AI",
		},
		Window: WindowConfig{
			Title:       "AgentAvatar",
			Width:       500,
			Height:      700,
			AlwaysOnTop: false,
			Frameless:   false,
			Transparent: false,
			OverlayMode: false,
		},
	}
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".agentavatar")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("AGENTAVATAR")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".agentavatar")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("backend", cfg.Backend)
	viper.Set("stage", cfg.Stage)
	viper.Set("chat", cfg.Chat)
	viper.Set("window", cfg.Window)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".agentavatar"), nil
}
