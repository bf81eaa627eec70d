package config

import (
	"os"
	"strconv"
)

// DefaultPort is used when AETHER_PORT/--port is unset.
const DefaultPort = 8080

// Config is the runtime (env/flag-driven) configuration, as opposed to the
// fixed constants above. Grounded on the teacher's env-var loading idiom
// (internal/config/config.go's loadFromEnv), trimmed to what spec §6 actually
// names: no JSON config file, no account-selection-strategy knobs, no
// client-auth API key (proxy-level client authentication is a non-goal).
type Config struct {
	Port  int
	Host  string
	Debug bool

	// Project is GOOGLE_CLOUD_PROJECT: a comma-separated pool of project IDs,
	// rotated across requests by cloudcode.PickProject.
	Project string

	// Provider selects the upstream OAuth provider config; only "google" is
	// implemented (others are accepted but fall back to it).
	Provider string

	// BrowserProfile is accepted for compatibility with the legacy launcher
	// but unused: the interactive OAuth browser loopback flow is out of
	// scope (spec §1 Non-goals).
	BrowserProfile string
}

// FromEnv builds a Config from environment variables per spec §6, with flag
// values (passed in, zero-value meaning "not set") taking precedence.
func FromEnv(port int, host string) *Config {
	cfg := &Config{
		Port:           port,
		Host:           host,
		Project:        os.Getenv("GOOGLE_CLOUD_PROJECT"),
		Provider:       envOr("AETHER_PROVIDER", "google"),
		BrowserProfile: os.Getenv("AETHER_BROWSER_PROFILE"),
	}

	if cfg.Port == 0 {
		if v := os.Getenv("AETHER_PORT"); v != "" {
			if p, err := strconv.Atoi(v); err == nil {
				cfg.Port = p
			}
		}
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}

	if cfg.Host == "" {
		cfg.Host = envOr("AETHER_HOST", "0.0.0.0")
	}

	return cfg
}
