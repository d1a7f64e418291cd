package bot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseConfig(t *testing.T) {
	t.Run("empty yaml keeps defaults", func(t *testing.T) {
		cfg, err := ParseConfig(nil)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.API.Provider != "openai" {
			t.Errorf("provider = %q", cfg.API.Provider)
		}
		if cfg.Conversation.Keep != 20 {
			t.Errorf("keep = %d", cfg.Conversation.Keep)
		}
		if cfg.Reply.MaxChars != 1000 {
			t.Errorf("max_chars = %d", cfg.Reply.MaxChars)
		}
		if cfg.Presence.Interval != 7*time.Second {
			t.Errorf("interval = %v", cfg.Presence.Interval)
		}
	})

	t.Run("yaml overlays defaults", func(t *testing.T) {
		cfg, err := ParseConfig([]byte("api:\n  provider: ollama\n  ollama_model: mistral\nconversation:\n  window: 4\n"))
		if err != nil {
			t.Fatal(err)
		}
		if cfg.API.Provider != "ollama" || cfg.API.OllamaModel != "mistral" {
			t.Errorf("api = %+v", cfg.API)
		}
		if cfg.Conversation.Window != 4 {
			t.Errorf("window = %d", cfg.Conversation.Window)
		}
		// Untouched sections keep defaults.
		if cfg.Conversation.Keep != 20 {
			t.Errorf("keep = %d", cfg.Conversation.Keep)
		}
	})

	t.Run("invalid yaml errors", func(t *testing.T) {
		if _, err := ParseConfig([]byte(":\tnot yaml")); err == nil {
			t.Error("expected error")
		}
	})
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Run("expands env vars", func(t *testing.T) {
		t.Setenv("TEST_ZAPCLAW_MODEL", "gpt-4o")
		path := writeConfig(t, "api:\n  model: ${TEST_ZAPCLAW_MODEL}\n")
		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.API.Model != "gpt-4o" {
			t.Errorf("model = %q", cfg.API.Model)
		}
	})

	t.Run("default modifier", func(t *testing.T) {
		path := writeConfig(t, "api:\n  model: ${TEST_ZAPCLAW_UNSET:-fallback-model}\n")
		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.API.Model != "fallback-model" {
			t.Errorf("model = %q", cfg.API.Model)
		}
	})

	t.Run("required modifier errors when unset", func(t *testing.T) {
		path := writeConfig(t, "api:\n  api_key: ${TEST_ZAPCLAW_REQUIRED:?set the key}\n")
		_, err := LoadConfigFromFile(path)
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "TEST_ZAPCLAW_REQUIRED") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("missing file errors", func(t *testing.T) {
		if _, err := LoadConfigFromFile("/nonexistent/config.yaml"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("api key resolved from env", func(t *testing.T) {
		t.Setenv("ZAPCLAW_API_KEY", "sk-from-env")
		path := writeConfig(t, "api:\n  provider: openai\n")
		cfg, err := LoadConfigFromFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.API.APIKey != "sk-from-env" {
			t.Errorf("api key = %q", cfg.API.APIKey)
		}
	})
}

func TestIsEnvReference(t *testing.T) {
	if !isEnvReference("${ZAPCLAW_API_KEY}") {
		t.Error("expected true")
	}
	if isEnvReference("sk-real-key") {
		t.Error("expected false")
	}
}
