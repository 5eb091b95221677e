// Package config provides configuration management for macsleuth.
//
// The config file describes how to observe the network and where to keep
// state. The people file (who owns which MAC) is separate and is only ever
// read, never written.
//
// Config file locations (priority order):
//  1. $MACSLEUTH_CONFIG
//  2. ./macsleuth.yaml
//  3. $XDG_CONFIG_HOME/macsleuth/config.yaml
//  4. ~/.config/macsleuth/config.yaml
//  5. /etc/macsleuth/config.yaml
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"macsleuth/internal/correlation"
)

// ErrInvalid marks a config that parsed but cannot be used
var ErrInvalid = errors.New("invalid config")

// Load finds and loads the config file, or returns defaults if none found
func Load() (*Config, string, error) {
	path := FindConfigPath()

	if path == "" {
		return DefaultConfig(), "", nil
	}

	return LoadFromPath(path)
}

// LoadFromPath loads config from a specific path
func LoadFromPath(path string) (*Config, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, path, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, path, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}

	return &cfg, path, nil
}

// Save writes config to the specified path
func (c *Config) Save(path string) error {
	if err := EnsureConfigDir(path); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns sensible defaults for a new installation
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills in missing values with defaults
func (c *Config) applyDefaults() {
	if c.Version == 0 {
		c.Version = 1
	}
	if c.Posture == "" {
		c.Posture = PostureBalanced
	}

	def := correlation.DefaultConfig()
	if c.Engine.LearningThreshold == 0 {
		c.Engine.LearningThreshold = def.LearningThreshold
	}
	if c.Engine.HighConfidenceThreshold == 0 {
		c.Engine.HighConfidenceThreshold = def.HighConfidenceThreshold
	}
	if c.Engine.CorrelationWindow == 0 {
		c.Engine.CorrelationWindow = Duration(def.CorrelationWindow)
	}
	if c.Engine.HistoryCap == 0 {
		c.Engine.HistoryCap = correlation.DefaultHistoryCap
	}
	if c.Engine.DeriveTransitions == nil {
		derive := def.DeriveTransitions
		c.Engine.DeriveTransitions = &derive
	}

	stateDir := DefaultStateDir()
	if c.State.Backend == "" {
		c.State.Backend = BackendFile
	}
	if c.State.Path == "" {
		name := "state.json"
		switch {
		case c.State.Backend == BackendSQLite:
			name = "macsleuth.db"
		case c.State.Format == "yaml" || c.State.Format == "yml":
			name = "state.yaml"
		}
		c.State.Path = filepath.Join(stateDir, name)
	}
	if c.PeopleFile == "" {
		c.PeopleFile = "people_config.yaml"
	}

	if c.Tado != nil && c.Tado.TokenFile == "" {
		c.Tado.TokenFile = filepath.Join(stateDir, "tado_token.json")
	}

	if c.Neighbors != nil && c.Neighbors.Port == 0 {
		c.Neighbors.Port = 22
	}

	if c.Log.Level == "" && !c.Log.Debug {
		c.Log.Level = "info"
	}
}

// Validate reports every problem found, wrapped in ErrInvalid
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	e := c.Engine
	if e.LearningThreshold < 0 || e.LearningThreshold > 1 {
		add("engine.learning_threshold %.2f outside [0,1]", e.LearningThreshold)
	}
	if e.HighConfidenceThreshold < 0 || e.HighConfidenceThreshold > 1 {
		add("engine.high_confidence_threshold %.2f outside [0,1]", e.HighConfidenceThreshold)
	}
	if e.HighConfidenceThreshold < e.LearningThreshold {
		add("engine.high_confidence_threshold below learning_threshold")
	}
	if e.CorrelationWindow < 0 || e.Cooldown < 0 {
		add("engine durations must not be negative")
	}
	if e.HistoryCap < 0 {
		add("engine.history_cap must not be negative")
	}

	switch c.State.Backend {
	case BackendFile, BackendSQLite:
	default:
		add("state.backend %q: want %s or %s", c.State.Backend, BackendFile, BackendSQLite)
	}
	switch c.State.Format {
	case "", "json", "yaml", "yml":
	default:
		add("state.format %q: want json or yaml", c.State.Format)
	}

	if n := c.Neighbors; n != nil {
		if n.Host == "" || n.User == "" {
			add("neighbors needs host and user")
		}
		if n.KeyFile == "" && n.PasswordEnv == "" {
			add("neighbors needs key_file or password_env")
		}
	}

	if p := c.Presence; p != nil {
		if !strings.HasPrefix(p.BaseURL, "http://") && !strings.HasPrefix(p.BaseURL, "https://") {
			add("presence.base_url %q is not an http(s) URL", p.BaseURL)
		}
		if p.TokenEnv == "" {
			add("presence.token_env is required")
		}
	}

	if t := c.Tado; t != nil {
		if t.UsernameEnv == "" || t.PasswordEnv == "" {
			add("tado needs username_env and password_env")
		}
		for _, u := range []string{t.BaseURL, t.AuthURL} {
			if u != "" && !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
				add("tado URL %q is not an http(s) URL", u)
			}
		}
	}

	if c.Server.Listen != "" {
		if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
			add("server.listen %q: %v", c.Server.Listen, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// CorrelationConfig converts the engine section for correlation.NewEngine
func (c *Config) CorrelationConfig() correlation.Config {
	derive := true
	if c.Engine.DeriveTransitions != nil {
		derive = *c.Engine.DeriveTransitions
	}
	return correlation.Config{
		LearningThreshold:       c.Engine.LearningThreshold,
		HighConfidenceThreshold: c.Engine.HighConfidenceThreshold,
		CorrelationWindow:       c.Engine.CorrelationWindow.Duration(),
		Cooldown:                c.Engine.Cooldown.Duration(),
		DeriveTransitions:       derive,
	}
}

// EffectiveScan returns the posture's scan profile with scanner overrides applied
func (c *Config) EffectiveScan() ScanProfile {
	base := c.Posture.GetProfile()

	if c.Scanner.Ports != "" {
		base.Ports = c.Scanner.Ports
	}
	if c.Scanner.OSDetection != nil {
		base.OSDetection = *c.Scanner.OSDetection
	}
	if c.Scanner.Timeout != nil {
		base.Timeout = c.Scanner.Timeout.Duration()
	}
	if c.Scanner.HostTimeout != nil {
		base.HostTimeout = c.Scanner.HostTimeout.Duration()
	}
	if c.Schedule.Cron != "" {
		base.Cron = c.Schedule.Cron
	}

	return base
}

// Summary returns a human-readable config summary
func (c *Config) Summary() string {
	scan := c.EffectiveScan()

	summary := fmt.Sprintf("Posture: %s, Schedule: %s\n", c.Posture, scan.Cron)
	summary += fmt.Sprintf("Targets: %s, Ports: %s, OS detection: %t\n",
		strings.Join(c.Scanner.Targets, " "), scan.Ports, scan.OSDetection)
	summary += fmt.Sprintf("State: %s (%s), People: %s", c.State.Path, c.State.Backend, c.PeopleFile)
	if c.Neighbors != nil {
		summary += fmt.Sprintf("\nNeighbors: %s@%s", c.Neighbors.User, c.Neighbors.Host)
	}
	if c.Presence != nil {
		summary += fmt.Sprintf("\nPresence: %s", c.Presence.BaseURL)
	}
	if c.Tado != nil {
		summary += fmt.Sprintf("\nTado: $%s", c.Tado.UsernameEnv)
	}
	if c.Server.Listen != "" {
		summary += fmt.Sprintf("\nAPI: http://%s", c.Server.Listen)
	}

	return summary
}
