package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		OpenCodeURL:    "http://127.0.0.1:4096",
		UseCoordinator: true,
	}
}

// Load resolves the configuration for the given working directory.
//
// Precedence, later overrides earlier:
//
//	$HOME/.config/teleclaw/telegram.json
//	<working-dir>/.opencode/telegram.json
//	environment variables
//
// A missing file is not an error; a present-but-unparsable file is.
func Load(workingDir string) (*Config, error) {
	cfg := Default()
	cfg.WorkingDir = workingDir

	// .env in the working directory feeds the env overlay below.
	_ = godotenv.Load(filepath.Join(workingDir, ".env"))

	if home, err := os.UserHomeDir(); err == nil {
		if err := overlayFile(cfg, filepath.Join(home, ".config", AppName, "telegram.json")); err != nil {
			return nil, err
		}
	}
	if err := overlayFile(cfg, filepath.Join(workingDir, ".opencode", "telegram.json")); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if cfg.StoreRoot == "" {
		cfg.StoreRoot = DefaultStoreRoot()
	}
	return cfg, nil
}

// overlayFile merges one JSON5 config file onto cfg. Missing files are skipped.
func overlayFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json5.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr("TELEGRAM_BOT_TOKEN", &c.BotToken)
	envStr("TELEGRAM_UPDATES_URL", &c.UpdatesURL)
	envStr("TELEGRAM_SEND_URL", &c.SendURL)
	envStr("OPENCODE_URL", &c.OpenCodeURL)
	envStr("OPENAI_API_KEY", &c.OpenAIAPIKey)
	envStr("DIFF_VIEWER_URL", &c.DiffViewerURL)
	envStr("DEVICE_NAME", &c.DeviceName)
	envStr("TELECLAW_STORE_ROOT", &c.StoreRoot)

	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ChatID = id
		}
	}
	if v := os.Getenv("TELEGRAM_THREAD_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			c.ThreadID = id
		}
	}
	if v := os.Getenv("USE_ICLOUD_COORDINATOR"); v != "" {
		c.UseCoordinator = v != "0" && v != "false" && v != "off"
	}
}
