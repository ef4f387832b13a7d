package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"basic_config": {"database_dsn": "chat.db"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":8090" {
		t.Fatalf("server address = %q", cfg.BasicConfig.ServerAddress)
	}
	if cfg.BasicConfig.DatabaseDriver != "sqlite3" {
		t.Fatalf("driver = %q", cfg.BasicConfig.DatabaseDriver)
	}
	if cfg.Gemini.PollIntervalMS != 5000 || cfg.Gemini.PollMaxAttempts != 36 {
		t.Fatalf("poll config = %d/%d", cfg.Gemini.PollIntervalMS, cfg.Gemini.PollMaxAttempts)
	}
	if cfg.Gemini.VideoModel != "veo-2.0-generate-001" {
		t.Fatalf("video model = %q", cfg.Gemini.VideoModel)
	}
	// A relative sqlite path is anchored next to the config file.
	if !filepath.IsAbs(cfg.BasicConfig.DatabaseDSN) {
		t.Fatalf("dsn not anchored: %q", cfg.BasicConfig.DatabaseDSN)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	path := writeConfig(t, `{}`)

	if _, err := Load(path); err == nil {
		t.Fatal("expected missing dsn error")
	}
}

func TestLoadKeepsExplicitValues(t *testing.T) {
	path := writeConfig(t, `{
		"basic_config": {
			"server_address": ":9000",
			"database_driver": "mysql",
			"database_dsn": "user:pass@tcp(localhost:3306)/chat",
			"max_workers": 2
		},
		"gemini": {"chat_model": "gemini-custom"}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BasicConfig.ServerAddress != ":9000" || cfg.BasicConfig.MaxWorkers != 2 {
		t.Fatalf("basic config = %+v", cfg.BasicConfig)
	}
	if cfg.BasicConfig.DatabaseDSN != "user:pass@tcp(localhost:3306)/chat" {
		t.Fatalf("mysql dsn rewritten: %q", cfg.BasicConfig.DatabaseDSN)
	}
	if cfg.Gemini.ChatModel != "gemini-custom" {
		t.Fatalf("chat model = %q", cfg.Gemini.ChatModel)
	}
}

func TestEnvironmentOverridesAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	path := writeConfig(t, `{"basic_config": {"database_dsn": "chat.db"}, "gemini": {"api_key": "file-key"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Fatalf("api key = %q, want environment value", cfg.Gemini.APIKey)
	}
}
