package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppName is used for the shared-store subdirectory and the user config path.
const AppName = "teleclaw"

// Config holds the full bridge configuration after file + env resolution.
type Config struct {
	// Telegram
	BotToken string `json:"botToken"`
	ChatID   int64  `json:"chatId"`
	ThreadID int    `json:"threadId,omitempty"` // 0 = no forum topic filter

	// Optional update/send routing overrides.
	UpdatesURL string `json:"updatesUrl,omitempty"` // updates-proxy endpoint (shared bot token)
	SendURL    string `json:"sendUrl,omitempty"`    // overrides the Telegram API base URL

	// Agent
	OpenCodeURL string `json:"opencodeUrl,omitempty"`

	// Optional integrations
	OpenAIAPIKey  string `json:"openaiApiKey,omitempty"`  // enables voice transcription
	DiffViewerURL string `json:"diffViewerUrl,omitempty"` // enables diff uploads

	// Multi-device coordination
	UseCoordinator bool   `json:"useCoordinator"` // default on; off = permanent leader
	StoreRoot      string `json:"storeRoot,omitempty"`
	DeviceName     string `json:"deviceName,omitempty"` // custom device-id prefix

	// Runtime (CLI args, not file keys)
	WorkingDir string `json:"-"`
	SessionID  string `json:"-"`
}

// Validate checks the required fields. A missing token or chat id is a
// startup-fatal condition (the process exits with code 1).
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("missing bot token (set botToken or TELEGRAM_BOT_TOKEN)")
	}
	if !looksLikeBotToken(c.BotToken) {
		return fmt.Errorf("bot token does not look like a Telegram token")
	}
	if c.ChatID == 0 {
		return fmt.Errorf("missing chat id (set chatId or TELEGRAM_CHAT_ID)")
	}
	return nil
}

// VoiceEnabled reports whether voice transcription is configured.
func (c *Config) VoiceEnabled() bool { return c.OpenAIAPIKey != "" }

// DiffUploadsEnabled reports whether full-diff uploads are configured.
func (c *Config) DiffUploadsEnabled() bool { return c.DiffViewerURL != "" }

// looksLikeBotToken does a shape check only: "<digits>:<suffix>".
// The real validation is the first getMe call.
func looksLikeBotToken(tok string) bool {
	idx := strings.IndexByte(tok, ':')
	if idx <= 0 || idx == len(tok)-1 {
		return false
	}
	for _, r := range tok[:idx] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ExpandHome expands a leading ~/ to the user home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultStoreRoot returns the shared-store root used when none is configured.
// iCloud Drive is the replication medium on macOS; elsewhere the local data
// dir is used, which limits coordination to devices sharing that path.
func DefaultStoreRoot() string {
	icloud := ExpandHome("~/Library/Mobile Documents/com~apple~CloudDocs")
	if st, err := os.Stat(icloud); err == nil && st.IsDir() {
		return icloud
	}
	return ExpandHome("~/.local/share")
}
