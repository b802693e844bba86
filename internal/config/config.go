// Package config loads the server configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration. Zero values mean "use the
// default"; Load fills them in after parsing.
type Config struct {
	// DatabasePath is the SQLite database location. ":memory:" runs
	// without persistence.
	DatabasePath string `yaml:"database_path"`

	// SeedPath points at a CUE seed spec for the default channels.
	// Empty uses the embedded default seed.
	SeedPath string `yaml:"seed_path"`

	// PendingTTL bounds how long a client keeps an unconfirmed
	// prediction visible. 0 disables eviction.
	PendingTTL time.Duration `yaml:"pending_ttl"`

	// TypingStaleWindow is the client-side age cutoff for typing
	// indicators.
	TypingStaleWindow time.Duration `yaml:"typing_stale_window"`

	// TypingRearm is the quiet period after which a client auto-clears
	// its own typing indicator.
	TypingRearm time.Duration `yaml:"typing_rearm"`
}

// UnmarshalYAML decodes durations from Go duration strings ("30s",
// "1m"), which yaml.v3 does not handle on time.Duration fields itself.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		DatabasePath      string `yaml:"database_path"`
		SeedPath          string `yaml:"seed_path"`
		PendingTTL        string `yaml:"pending_ttl"`
		TypingStaleWindow string `yaml:"typing_stale_window"`
		TypingRearm       string `yaml:"typing_rearm"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	c.DatabasePath = raw.DatabasePath
	c.SeedPath = raw.SeedPath

	for _, f := range []struct {
		name string
		in   string
		out  *time.Duration
	}{
		{"pending_ttl", raw.PendingTTL, &c.PendingTTL},
		{"typing_stale_window", raw.TypingStaleWindow, &c.TypingStaleWindow},
		{"typing_rearm", raw.TypingRearm, &c.TypingRearm},
	} {
		if f.in == "" {
			continue
		}
		d, err := time.ParseDuration(f.in)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.out = d
	}
	return nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DatabasePath:      "backchannel.db",
		PendingTTL:        30 * time.Second,
		TypingStaleWindow: 8 * time.Second,
		TypingRearm:       5 * time.Second,
	}
}

// Load reads a YAML config file and applies defaults for unset fields.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.PendingTTL == 0 {
		c.PendingTTL = def.PendingTTL
	}
	if c.TypingStaleWindow == 0 {
		c.TypingStaleWindow = def.TypingStaleWindow
	}
	if c.TypingRearm == 0 {
		c.TypingRearm = def.TypingRearm
	}
}

func (c Config) validate() error {
	if c.PendingTTL < 0 {
		return fmt.Errorf("pending_ttl must not be negative, got %s", c.PendingTTL)
	}
	if c.TypingStaleWindow <= 0 {
		return fmt.Errorf("typing_stale_window must be positive, got %s", c.TypingStaleWindow)
	}
	if c.TypingRearm <= 0 {
		return fmt.Errorf("typing_rearm must be positive, got %s", c.TypingRearm)
	}
	return nil
}
