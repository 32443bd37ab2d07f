package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultDigestTemplate renders a completed session's insights as markdown.
// Users can override it with ~/.config/nxagent/digest_template.md.
const DefaultDigestTemplate = `# Analysis digest: {{objective}}

Session {{session_id}} on dataset {{dataset_id}} ({{status}}, {{insight_count}} insights).

{{#insights}}
## {{title}}

{{description}}

Grounding: {{grounding_percent}}%

{{#evidence}}
- Evidence: {{.}}
{{/evidence}}
{{#recommendations}}
- Recommended: {{.}}
{{/recommendations}}

{{/insights}}
{{^insights}}
No insights were produced.
{{/insights}}`

// DefaultTimeout bounds a single backend request. Reasoning calls are slow,
// so the default is generous.
const DefaultTimeout = 120 * time.Second

type Config struct {
	ServerURL      string
	AuthToken      string
	RequestTimeout time.Duration
	DigestTemplate string
}

type tomlConfig struct {
	ServerURL      string `toml:"server_url"`
	AuthToken      string `toml:"auth_token"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Load reads config from ~/.config/nxagent/, with NXAGENT_URL and
// NXAGENT_TOKEN environment variables taking precedence over the file.
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL:      "http://localhost:8000",
		RequestTimeout: DefaultTimeout,
		DigestTemplate: DefaultDigestTemplate,
	}

	home, err := os.UserHomeDir()
	if err != nil {
		applyEnv(cfg)
		return cfg, nil // Use defaults
	}

	configDir := filepath.Join(home, ".config", "nxagent")
	tomlPath := filepath.Join(configDir, "config.toml")
	templatePath := filepath.Join(configDir, "digest_template.md")

	// Load TOML config if it exists
	if _, err := os.Stat(tomlPath); err == nil {
		var tc tomlConfig
		if _, err := toml.DecodeFile(tomlPath, &tc); err == nil {
			if tc.ServerURL != "" {
				cfg.ServerURL = strings.TrimRight(tc.ServerURL, "/")
			}
			cfg.AuthToken = tc.AuthToken
			if tc.TimeoutSeconds > 0 {
				cfg.RequestTimeout = time.Duration(tc.TimeoutSeconds) * time.Second
			}
		}
	}

	// If custom template exists, use it
	if data, err := os.ReadFile(templatePath); err == nil {
		cfg.DigestTemplate = string(data)
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if url := os.Getenv("NXAGENT_URL"); url != "" {
		cfg.ServerURL = strings.TrimRight(url, "/")
	}
	if token := os.Getenv("NXAGENT_TOKEN"); token != "" {
		cfg.AuthToken = token
	}
}

// DefaultDBPath is the standard location of the local state database
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "nxagent.db"
	}
	return filepath.Join(home, ".config", "nxagent", "state.db")
}
