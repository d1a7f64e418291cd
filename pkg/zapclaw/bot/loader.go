// Package bot – loader.go handles loading configuration from YAML files
// with credential resolution via environment variables and .env files.
package bot

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable patterns in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Automatically loads .env files and expands environment variables.
// Returns an error if any ${VAR:?error} pattern has its variable unset.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVars(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)
	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"zapclaw.yaml",
		"zapclaw.yml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadEnvFiles loads .env files from standard locations.
// godotenv does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default} and ${VAR:?error}
// references with their environment variable values. An unset variable in
// the :? form is an error; an unset plain ${VAR} keeps the placeholder.
func expandEnvVars(input string) (string, error) {
	var missing []string

	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, value := sub[1], sub[2], sub[3]

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}

		switch modifier {
		case "-":
			return value
		case "?":
			msg := value
			if msg == "" {
				msg = "required environment variable not set"
			}
			missing = append(missing, fmt.Sprintf("%s (%s)", varName, msg))
			return match
		default:
			return match
		}
	})

	if len(missing) > 0 {
		return "", fmt.Errorf("config error: %s", strings.Join(missing, "; "))
	}
	return out, nil
}

// resolveSecrets fills in config secrets from the environment and the OS
// keyring when the config value is empty or an unexpanded placeholder.
// Priority: keyring, ZAPCLAW_API_KEY, OPENAI_API_KEY, config value.
func resolveSecrets(cfg *Config) {
	if cfg.API.APIKey != "" && !isEnvReference(cfg.API.APIKey) {
		return
	}
	if key := GetKeyring(keyringAPIKey); key != "" {
		cfg.API.APIKey = key
		return
	}
	if key := os.Getenv("ZAPCLAW_API_KEY"); key != "" {
		cfg.API.APIKey = key
		return
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.API.APIKey = key
		return
	}
	if isEnvReference(cfg.API.APIKey) {
		cfg.API.APIKey = ""
	}
}

// isEnvReference reports whether a value is an unexpanded ${VAR} placeholder.
func isEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}
