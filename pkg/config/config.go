package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TokenStoreMode selects how credentials are persisted.
type TokenStoreMode string

const (
	TokenStoreMemory  TokenStoreMode = "memory"
	TokenStoreDurable TokenStoreMode = "durable"
)

// Config holds the client-side settings: backend origins, credential
// persistence and logging. Precedence: config file > environment > defaults.
type Config struct {
	APIBaseURL string
	WSBaseURL  string

	TokenStore     TokenStoreMode
	TokenStorePath string

	SnapshotDB string

	ReconnectDelay time.Duration
	MaxReconnect   int // 0 = unlimited

	LogLevel string
	LogFile  string
}

// ConfigFile is the on-disk YAML shape.
type ConfigFile struct {
	APIBaseURL     string `yaml:"api_base_url"`
	WSBaseURL      string `yaml:"ws_base_url"`
	TokenStore     string `yaml:"token_store"`
	TokenStorePath string `yaml:"token_store_path"`
	SnapshotDB     string `yaml:"snapshot_db"`
	ReconnectDelay string `yaml:"reconnect_delay"`
	MaxReconnect   int    `yaml:"max_reconnect"`
	LogLevel       string `yaml:"log_level"`
	LogFile        string `yaml:"log_file"`
}

// Load builds the config from the environment, overlaying an optional YAML
// file. A .env file in the working directory is loaded best-effort first.
func Load(filePath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIBaseURL:     getEnv("SURGE_API_URL", "http://localhost:8000"),
		WSBaseURL:      getEnv("SURGE_WS_URL", "ws://localhost:8000"),
		TokenStore:     TokenStoreMode(getEnv("SURGE_TOKEN_STORE", string(TokenStoreMemory))),
		TokenStorePath: getEnv("SURGE_TOKEN_STORE_PATH", defaultStorePath()),
		SnapshotDB:     getEnv("SURGE_SNAPSHOT_DB", ""),
		ReconnectDelay: parseDurationEnv("SURGE_RECONNECT_DELAY", 5*time.Second),
		MaxReconnect:   parseIntEnv("SURGE_MAX_RECONNECT", 0),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFile:        getEnv("LOG_FILE", ""),
	}

	if filePath != "" {
		file, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", filePath, err)
		}
		cfg.applyFile(file)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyFile(f *ConfigFile) {
	if f.APIBaseURL != "" {
		c.APIBaseURL = f.APIBaseURL
	}
	if f.WSBaseURL != "" {
		c.WSBaseURL = f.WSBaseURL
	}
	if f.TokenStore != "" {
		c.TokenStore = TokenStoreMode(f.TokenStore)
	}
	if f.TokenStorePath != "" {
		c.TokenStorePath = f.TokenStorePath
	}
	if f.SnapshotDB != "" {
		c.SnapshotDB = f.SnapshotDB
	}
	if f.ReconnectDelay != "" {
		if d, err := time.ParseDuration(f.ReconnectDelay); err == nil && d > 0 {
			c.ReconnectDelay = d
		}
	}
	if f.MaxReconnect > 0 {
		c.MaxReconnect = f.MaxReconnect
	}
	if f.LogLevel != "" {
		c.LogLevel = f.LogLevel
	}
	if f.LogFile != "" {
		c.LogFile = f.LogFile
	}
}

// Validate checks the settings that would otherwise fail far from here.
func (c *Config) Validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api base url is required")
	}
	if c.WSBaseURL == "" {
		return fmt.Errorf("ws base url is required")
	}
	switch c.TokenStore {
	case TokenStoreMemory, TokenStoreDurable:
	default:
		return fmt.Errorf("unknown token store mode: %q (want %q or %q)",
			c.TokenStore, TokenStoreMemory, TokenStoreDurable)
	}
	if c.TokenStore == TokenStoreDurable && c.TokenStorePath == "" {
		return fmt.Errorf("token store path is required in durable mode")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive")
	}
	return nil
}

func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	var file ConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &file, nil
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "data/tokens"
	}
	return filepath.Join(home, ".gosurge", "tokens")
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func parseIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}
