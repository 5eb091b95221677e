package config

import (
	"time"

	"macsleuth/internal/logger"
)

// Config is the root configuration structure
type Config struct {
	Version    int              `yaml:"version"`
	Posture    Posture          `yaml:"posture"`
	Engine     EngineConfig     `yaml:"engine"`
	State      StateConfig      `yaml:"state"`
	Journal    JournalConfig    `yaml:"journal"`
	PeopleFile string           `yaml:"people_file"`
	Scanner    ScannerConfig    `yaml:"scanner"`
	Neighbors  *NeighborsConfig `yaml:"neighbors,omitempty"` // nil = no IPv6 neighbor enrichment
	Presence   *PresenceConfig  `yaml:"presence,omitempty"`  // nil = presence from derived flags only
	Tado       *TadoConfig      `yaml:"tado,omitempty"`      // nil = no Tado geofencing
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Server     ServerConfig     `yaml:"server"`
	Log        logger.Config    `yaml:"log"`
}

// EngineConfig holds correlation thresholds
type EngineConfig struct {
	LearningThreshold       float64  `yaml:"learning_threshold"`
	HighConfidenceThreshold float64  `yaml:"high_confidence_threshold"`
	CorrelationWindow       Duration `yaml:"correlation_window"`
	Cooldown                Duration `yaml:"cooldown"` // 0 = suggest each pair once
	HistoryCap              int      `yaml:"history_cap"`
	DeriveTransitions       *bool    `yaml:"derive_transitions,omitempty"`
}

// State backends
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// StateConfig selects where engine state is persisted
type StateConfig struct {
	Backend string `yaml:"backend"` // file or sqlite
	Path    string `yaml:"path"`
	Format  string `yaml:"format,omitempty"` // json or yaml, file backend only
}

// ServerConfig holds the HTTP API served by the daemon
type ServerConfig struct {
	Listen string `yaml:"listen"` // empty = no HTTP API
}

// JournalConfig holds the suggestion journal database
type JournalConfig struct {
	Path string `yaml:"path"` // empty = no journal
}

// ScannerConfig overrides the posture's nmap settings
type ScannerConfig struct {
	Targets           []string  `yaml:"targets"`
	AutoTargets       bool      `yaml:"auto_targets,omitempty"` // scan local private subnets when targets is empty
	Ports             string    `yaml:"ports,omitempty"`
	OSDetection       *bool     `yaml:"os_detection,omitempty"`
	SkipHostDiscovery bool      `yaml:"skip_host_discovery,omitempty"`
	Timeout           *Duration `yaml:"timeout,omitempty"`
	HostTimeout       *Duration `yaml:"host_timeout,omitempty"`
}

// NeighborsConfig describes the router holding the IPv6 neighbor table
type NeighborsConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port,omitempty"`
	User        string   `yaml:"user"`
	KeyFile     string   `yaml:"key_file,omitempty"`
	PasswordEnv string   `yaml:"password_env,omitempty"`
	Command     string   `yaml:"command,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
}

// PresenceConfig points at Home Assistant. The token itself never lives in
// the config file.
type PresenceConfig struct {
	BaseURL  string   `yaml:"base_url"`
	TokenEnv string   `yaml:"token_env"`
	Timeout  Duration `yaml:"timeout,omitempty"`
}

// TadoConfig points at a Tado account. Credentials are read from the named
// environment variables; tokens are cached in TokenFile between runs.
type TadoConfig struct {
	UsernameEnv     string   `yaml:"username_env"`
	PasswordEnv     string   `yaml:"password_env"`
	ClientID        string   `yaml:"client_id,omitempty"`
	ClientSecretEnv string   `yaml:"client_secret_env,omitempty"`
	BaseURL         string   `yaml:"base_url,omitempty"`
	AuthURL         string   `yaml:"auth_url,omitempty"`
	TokenFile       string   `yaml:"token_file,omitempty"`
	Timeout         Duration `yaml:"timeout,omitempty"`
}

// ScheduleConfig controls when learning cycles run
type ScheduleConfig struct {
	Cron string `yaml:"cron,omitempty"` // empty = posture default
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
