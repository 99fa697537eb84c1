package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the configuration for the HTTP server and storage.
type ServerConfig struct {
	ApiAddr         string `json:"api_addr" yaml:"api_addr"`
	LogLevel        string `json:"log_level" yaml:"log_level"`
	DataDir         string `json:"data_dir" yaml:"data_dir"`
	DatabasePath    string `json:"database_path" yaml:"database_path"`
	DefinitionsPath string `json:"definitions_path" yaml:"definitions_path"`
	MaxSessions     int    `json:"max_sessions" yaml:"max_sessions"`
}

// GenerationConfig holds the limits applied to generation requests.
type GenerationConfig struct {
	DefaultCount int `json:"default_count" yaml:"default_count"`
	MaxCount     int `json:"max_count" yaml:"max_count"`
	// MaxLength caps every sequence produced by a corpus session. 0 disables
	// the cap.
	MaxLength int `json:"max_length" yaml:"max_length"`
}

// Config is the top-level configuration struct that aggregates all other configs.
type Config struct {
	Server     *ServerConfig     `json:"server_config" yaml:"server_config"`
	Generation *GenerationConfig `json:"generation_config" yaml:"generation_config"`
}

// DefaultServerConfig creates a server configuration with default values.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ApiAddr:         ":7280",
		LogLevel:        "info",
		DataDir:         "./data",
		DatabasePath:    "./data/nepenthes.db?_journal_mode=WAL&_busy_timeout=5000",
		DefinitionsPath: "",
		MaxSessions:     1024,
	}
}

// DefaultGenerationConfig creates a generation configuration with default values.
func DefaultGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		DefaultCount: 1,
		MaxCount:     1000,
		MaxLength:    256,
	}
}

// DefaultConfig returns a full configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Generation: DefaultGenerationConfig(),
	}
}

// isYAML reports whether path names a YAML document.
func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// marshalConfig encodes config in the format implied by path.
func marshalConfig(path string, config *Config) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(config)
	}
	return json.MarshalIndent(config, "", "  ")
}

// LoadConfig reads the configuration from a JSON or YAML file at the given
// path, chosen by file extension. If the file doesn't exist, it creates one
// with default values.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			var data []byte
			data, err = marshalConfig(path, config)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal default config: %w", err)
			}
			if err = atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
				// The server can still run with defaults.
				fmt.Printf("warning: failed to write default config file: %v\n", err)
			}
			return config, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if isYAML(path) {
		err = yaml.Unmarshal(file, config)
	} else {
		err = json.Unmarshal(file, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if config.Server == nil {
		config.Server = DefaultServerConfig()
	}
	if config.Generation == nil {
		config.Generation = DefaultGenerationConfig()
	}
	return config, nil
}

// parseLogLevel maps a config string to a slog level, defaulting to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ConfigManager handles thread-safe access to the configuration.
type ConfigManager struct {
	config     *Config
	mu         sync.RWMutex
	configPath string
}

// NewConfigManager loads the config and initializes the manager.
func NewConfigManager(path string) (*ConfigManager, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return &ConfigManager{config: cfg, configPath: path}, nil
}

// Get returns a copy of the current configuration.
func (cm *ConfigManager) Get() Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	server := *cm.config.Server
	generation := *cm.config.Generation
	return Config{Server: &server, Generation: &generation}
}

// Generation returns a copy of the current generation limits.
func (cm *ConfigManager) Generation() GenerationConfig {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return *cm.config.Generation
}

// Update validates the configuration, saves it to disk and makes it current.
// Server settings take effect on the next restart.
func (cm *ConfigManager) Update(newConfig Config) error {
	if newConfig.Server == nil || newConfig.Generation == nil {
		return fmt.Errorf("server_config and generation_config are required")
	}
	if newConfig.Generation.MaxCount <= 0 || newConfig.Generation.DefaultCount <= 0 ||
		newConfig.Generation.DefaultCount > newConfig.Generation.MaxCount {
		return fmt.Errorf("generation counts must satisfy 0 < default_count <= max_count")
	}
	if newConfig.Generation.MaxLength < 0 {
		return fmt.Errorf("max_length must not be negative")
	}

	cm.mu.Lock()
	defer cm.mu.Unlock()

	data, err := marshalConfig(cm.configPath, &newConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = atomic.WriteFile(cm.configPath, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	*cm.config = newConfig
	return nil
}
