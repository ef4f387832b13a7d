package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig  `json:"basic_config"`
	Gemini      GeminiConfig `json:"gemini"`
	Redis       RedisConfig  `json:"redis"`
}

type BasicConfig struct {
	ServerAddress      string   `json:"server_address"`
	DatabaseDriver     string   `json:"database_driver"`
	DatabaseDSN        string   `json:"database_dsn"`
	GeneratedDir       string   `json:"generated_dir"`
	AllowedIPs         []string `json:"allowed_ips"`
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`
	MaxWorkers         int      `json:"max_workers"`
	QueueSize          int      `json:"queue_size"`
}

type GeminiConfig struct {
	APIKey          string `json:"api_key"`
	ChatModel       string `json:"chat_model"`
	ImageModel      string `json:"image_model"`
	VideoModel      string `json:"video_model"`
	PollIntervalMS  int    `json:"video_poll_interval_ms"`
	PollMaxAttempts int    `json:"video_poll_max_attempts"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Enabled  bool   `json:"enabled"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()

	if cfg.BasicConfig.DatabaseDSN == "" {
		return nil, fmt.Errorf("database_dsn must be configured")
	}
	if cfg.BasicConfig.DatabaseDriver == "sqlite3" && !filepath.IsAbs(cfg.BasicConfig.DatabaseDSN) {
		cfg.BasicConfig.DatabaseDSN = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.DatabaseDSN)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Gemini.APIKey = key
	}
	if c.BasicConfig.ServerAddress == "" {
		c.BasicConfig.ServerAddress = ":8090"
	}
	if c.BasicConfig.DatabaseDriver == "" {
		c.BasicConfig.DatabaseDriver = "sqlite3"
	}
	if c.BasicConfig.GeneratedDir == "" {
		c.BasicConfig.GeneratedDir = "./data/generated"
	}
	if len(c.BasicConfig.AllowedIPs) == 0 {
		c.BasicConfig.AllowedIPs = []string{"127.0.0.1", "::1"}
	}
	if c.BasicConfig.MaxWorkers <= 0 {
		c.BasicConfig.MaxWorkers = 8
	}
	if c.BasicConfig.QueueSize <= 0 {
		c.BasicConfig.QueueSize = 64
	}
	if c.BasicConfig.RateLimitPerMinute <= 0 {
		c.BasicConfig.RateLimitPerMinute = 30
	}
	if c.Gemini.ChatModel == "" {
		c.Gemini.ChatModel = "gemini-2.0-flash"
	}
	if c.Gemini.ImageModel == "" {
		c.Gemini.ImageModel = "imagen-3.0-generate-002"
	}
	if c.Gemini.VideoModel == "" {
		c.Gemini.VideoModel = "veo-2.0-generate-001"
	}
	if c.Gemini.PollIntervalMS <= 0 {
		c.Gemini.PollIntervalMS = 5000
	}
	if c.Gemini.PollMaxAttempts <= 0 {
		c.Gemini.PollMaxAttempts = 36
	}
}
