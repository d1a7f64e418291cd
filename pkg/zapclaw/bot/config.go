// Package bot – config.go defines all configuration structures for the
// ZapClaw assistant.
package bot

import (
	"time"

	"github.com/jholhewres/zapclaw/pkg/zapclaw/channels/whatsapp"
)

// Config holds all assistant configuration.
type Config struct {
	// API configures the LLM provider endpoint.
	API APIConfig `yaml:"api"`

	// Conversation configures history depth and trimming.
	Conversation ConversationConfig `yaml:"conversation"`

	// Reply configures the reply shaping rules.
	Reply ReplyConfig `yaml:"reply"`

	// FastPath configures the regex intent shortcuts.
	FastPath FastPathConfig `yaml:"fast_path"`

	// Sanitize configures the text sanitizer.
	Sanitize SanitizeConfig `yaml:"sanitize"`

	// Presence configures the typing keep-alive.
	Presence PresenceConfig `yaml:"presence"`

	// Database is the path to the conversation SQLite database.
	Database string `yaml:"database"`

	// WhatsApp configures the WhatsApp channel.
	WhatsApp whatsapp.Config `yaml:"whatsapp"`

	// HTTP configures the admin API server.
	HTTP HTTPConfig `yaml:"http"`

	// Cleanup configures the destructive maintenance pass.
	Cleanup CleanupConfig `yaml:"cleanup"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the LLM provider.
type APIConfig struct {
	// Provider is "openai" (any chat-completions compatible endpoint)
	// or "ollama".
	Provider string `yaml:"provider"`

	// BaseURL overrides the provider endpoint (e.g. a proxy).
	BaseURL string `yaml:"base_url"`

	// APIKey is the provider API key. Prefer ${ZAPCLAW_API_KEY} or the
	// OS keyring over a literal value here.
	APIKey string `yaml:"api_key"`

	// Model is the chat model.
	Model string `yaml:"model"`

	// VisionModel is used for image description. Defaults to Model's
	// provider default when empty.
	VisionModel string `yaml:"vision_model"`

	// OllamaURL is the Ollama server base URL (provider "ollama").
	OllamaURL string `yaml:"ollama_url"`

	// OllamaModel is the chat model when provider is "ollama".
	OllamaModel string `yaml:"ollama_model"`

	// MaxTokens caps completion length.
	MaxTokens int `yaml:"max_tokens"`

	// VisionMaxTokens caps vision completion length.
	VisionMaxTokens int `yaml:"vision_max_tokens"`

	// Timeout is the hard deadline for one completion call.
	Timeout time.Duration `yaml:"timeout"`
}

// ConversationConfig bounds the stored history.
type ConversationConfig struct {
	// Window is how many turns are sent to the model.
	Window int `yaml:"window"`

	// Keep is how many turns survive the post-reply trim.
	Keep int `yaml:"keep"`
}

// ReplyConfig configures the reply shaper.
type ReplyConfig struct {
	// MaxChars is the reply length ceiling in runes.
	MaxChars int `yaml:"max_chars"`

	// LinksMax caps the numbered link list.
	LinksMax int `yaml:"links_max"`
}

// FastPathConfig configures the regex intent shortcuts.
type FastPathConfig struct {
	// Enabled toggles the fast path.
	Enabled bool `yaml:"enabled"`

	// PrimaryLink is interpolated into the canned replies.
	PrimaryLink string `yaml:"primary_link"`
}

// SanitizeConfig configures the text sanitizer.
type SanitizeConfig struct {
	// MaxLen is the rune ceiling for stored content.
	MaxLen int `yaml:"max_len"`
}

// PresenceConfig configures the typing keep-alive.
type PresenceConfig struct {
	// Interval between "composing" refreshes while the bot works.
	Interval time.Duration `yaml:"interval"`
}

// HTTPConfig configures the admin API server.
type HTTPConfig struct {
	// Addr is the listen address (e.g. ":3000").
	Addr string `yaml:"addr"`

	// AdminUser and AdminPass enable basic auth when both are set.
	// AdminPass may be a bcrypt hash (starts with "$2").
	AdminUser string `yaml:"admin_user"`
	AdminPass string `yaml:"admin_pass"`

	// StaticDir serves the admin dashboard files when set.
	StaticDir string `yaml:"static_dir"`
}

// CleanupConfig configures the destructive maintenance pass.
type CleanupConfig struct {
	// Schedule is a cron expression. Empty disables scheduled cleanup;
	// the `zapclaw cleanup` command always works.
	Schedule string `yaml:"schedule"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn" or "error".
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			VisionModel:     "gpt-4o-mini",
			OllamaURL:       "http://localhost:11434",
			OllamaModel:     "llama3.1",
			MaxTokens:       512,
			VisionMaxTokens: 1024,
			Timeout:         15 * time.Second,
		},
		Conversation: ConversationConfig{
			Window: 10,
			Keep:   20,
		},
		Reply: ReplyConfig{
			MaxChars: 1000,
			LinksMax: 5,
		},
		FastPath: FastPathConfig{
			Enabled: true,
		},
		Sanitize: SanitizeConfig{
			MaxLen: 10000,
		},
		Presence: PresenceConfig{
			Interval: 7 * time.Second,
		},
		Database: "./data/zapclaw.db",
		WhatsApp: whatsapp.DefaultConfig(),
		HTTP: HTTPConfig{
			Addr:      ":3000",
			StaticDir: "./webui/static",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
