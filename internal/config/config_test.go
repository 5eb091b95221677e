package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParsePosture(t *testing.T) {
	tests := []struct {
		input string
		want  Posture
	}{
		{"stealth", PostureStealth},
		{"balanced", PostureBalanced},
		{"aggressive", PostureAggressive},
		{"invalid", PostureBalanced}, // Default
		{"", PostureBalanced},        // Default
	}

	for _, tt := range tests {
		if got := ParsePosture(tt.input); got != tt.want {
			t.Errorf("ParsePosture(%q) = %s, want %s", tt.input, got, tt.want)
		}
	}
}

func TestPostureGetProfile(t *testing.T) {
	for _, p := range []Posture{PostureStealth, PostureBalanced, PostureAggressive} {
		profile := p.GetProfile()
		if profile.Ports == "" {
			t.Errorf("Posture(%s).GetProfile().Ports should not be empty", p)
		}
		if profile.Cron == "" {
			t.Errorf("Posture(%s).GetProfile().Cron should not be empty", p)
		}
		if !strings.Contains(profile.Ports, "62078") {
			t.Errorf("Posture(%s) should always probe the iOS lockdown port", p)
		}
	}

	if PostureStealth.GetProfile().OSDetection {
		t.Error("Stealth should not run OS detection")
	}
	if !PostureAggressive.GetProfile().OSDetection {
		t.Error("Aggressive should run OS detection")
	}
	if Posture("bogus").GetProfile() != PostureBalanced.GetProfile() {
		t.Error("Unknown posture should fall back to balanced")
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/lib/test")
	cfg := DefaultConfig()

	if cfg.Version != 1 {
		t.Errorf("Version = %d, want 1", cfg.Version)
	}
	if cfg.Posture != PostureBalanced {
		t.Errorf("Posture = %s, want %s", cfg.Posture, PostureBalanced)
	}
	if cfg.State.Backend != BackendFile {
		t.Errorf("State.Backend = %s, want %s", cfg.State.Backend, BackendFile)
	}
	if cfg.State.Path != "/var/lib/test/macsleuth/state.json" {
		t.Errorf("State.Path = %s", cfg.State.Path)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults: %v", err)
	}

	ec := cfg.CorrelationConfig()
	if ec.LearningThreshold != 0.6 || ec.HighConfidenceThreshold != 0.85 {
		t.Errorf("thresholds = %v/%v, want 0.6/0.85", ec.LearningThreshold, ec.HighConfidenceThreshold)
	}
	if ec.CorrelationWindow != 300*time.Second {
		t.Errorf("CorrelationWindow = %s, want 5m", ec.CorrelationWindow)
	}
	if ec.Cooldown != 0 {
		t.Errorf("Cooldown = %s, want 0 (suggest once)", ec.Cooldown)
	}
	if !ec.DeriveTransitions {
		t.Error("DeriveTransitions should default to true")
	}
}

func TestSQLiteDefaultPath(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/lib/test")
	cfg := &Config{State: StateConfig{Backend: BackendSQLite}}
	cfg.applyDefaults()

	if cfg.State.Path != "/var/lib/test/macsleuth/macsleuth.db" {
		t.Errorf("State.Path = %s", cfg.State.Path)
	}
}

func TestTadoTokenFileDefault(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/lib/test")
	cfg := &Config{Tado: &TadoConfig{UsernameEnv: "TADO_USERNAME", PasswordEnv: "TADO_PASSWORD"}}
	cfg.applyDefaults()

	if cfg.Tado.TokenFile != "/var/lib/test/macsleuth/tado_token.json" {
		t.Errorf("Tado.TokenFile = %s", cfg.Tado.TokenFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestEffectiveScan(t *testing.T) {
	cfg := DefaultConfig()

	scan := cfg.EffectiveScan()
	expected := PostureBalanced.GetProfile()
	if scan != expected {
		t.Errorf("EffectiveScan() = %+v, want posture profile %+v", scan, expected)
	}

	osDetect := true
	timeout := Duration(time.Minute)
	cfg.Scanner.Ports = "62078"
	cfg.Scanner.OSDetection = &osDetect
	cfg.Scanner.Timeout = &timeout
	cfg.Schedule.Cron = "@every 1m"

	scan = cfg.EffectiveScan()
	if scan.Ports != "62078" || !scan.OSDetection || scan.Timeout != time.Minute || scan.Cron != "@every 1m" {
		t.Errorf("EffectiveScan() overrides not applied: %+v", scan)
	}
	// Other fields should still be from posture
	if scan.HostTimeout != expected.HostTimeout {
		t.Errorf("HostTimeout = %s, want %s (posture default)", scan.HostTimeout, expected.HostTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "threshold out of range",
			mutate:  func(c *Config) { c.Engine.LearningThreshold = 1.5 },
			wantErr: "learning_threshold",
		},
		{
			name:    "high confidence below learning",
			mutate:  func(c *Config) { c.Engine.HighConfidenceThreshold = 0.5 },
			wantErr: "below learning_threshold",
		},
		{
			name:    "negative cooldown",
			mutate:  func(c *Config) { c.Engine.Cooldown = Duration(-time.Hour) },
			wantErr: "durations",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.State.Backend = "postgres" },
			wantErr: "state.backend",
		},
		{
			name:    "neighbors without credentials",
			mutate:  func(c *Config) { c.Neighbors = &NeighborsConfig{Host: "192.168.86.1", User: "root"} },
			wantErr: "key_file or password_env",
		},
		{
			name:    "presence without token",
			mutate:  func(c *Config) { c.Presence = &PresenceConfig{BaseURL: "http://homeassistant.local:8123"} },
			wantErr: "token_env",
		},
		{
			name:    "presence with bad URL",
			mutate:  func(c *Config) { c.Presence = &PresenceConfig{BaseURL: "homeassistant.local", TokenEnv: "HA_TOKEN"} },
			wantErr: "base_url",
		},
		{
			name:    "tado without credentials",
			mutate:  func(c *Config) { c.Tado = &TadoConfig{UsernameEnv: "TADO_USERNAME"} },
			wantErr: "username_env and password_env",
		},
		{
			name: "tado with bad auth URL",
			mutate: func(c *Config) {
				c.Tado = &TadoConfig{UsernameEnv: "TADO_USERNAME", PasswordEnv: "TADO_PASSWORD", AuthURL: "auth.tado.com"}
			},
			wantErr: "tado URL",
		},
		{
			name:    "listen without port",
			mutate:  func(c *Config) { c.Server.Listen = "localhost" },
			wantErr: "server.listen",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Validate() error %v should wrap ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Posture = PostureAggressive
	cfg.Scanner.Targets = []string{"192.168.86.0/24"}
	cfg.Engine.Cooldown = Duration(30 * 24 * time.Hour)
	cfg.Presence = &PresenceConfig{BaseURL: "http://homeassistant.local:8123", TokenEnv: "HA_TOKEN"}

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, path, err := LoadFromPath(configPath)
	if err != nil {
		t.Fatalf("LoadFromPath() error: %v", err)
	}
	if path != configPath {
		t.Errorf("path = %s, want %s", path, configPath)
	}

	if loaded.Posture != PostureAggressive {
		t.Errorf("Posture = %s, want %s", loaded.Posture, PostureAggressive)
	}
	if len(loaded.Scanner.Targets) != 1 || loaded.Scanner.Targets[0] != "192.168.86.0/24" {
		t.Errorf("Scanner.Targets = %v, want [192.168.86.0/24]", loaded.Scanner.Targets)
	}
	if loaded.Engine.Cooldown.Duration() != 30*24*time.Hour {
		t.Errorf("Engine.Cooldown = %s, want 720h", loaded.Engine.Cooldown.Duration())
	}
	if loaded.Presence == nil || loaded.Presence.TokenEnv != "HA_TOKEN" {
		t.Errorf("Presence = %+v", loaded.Presence)
	}
}

func TestLoadFromPathErrors(t *testing.T) {
	tmpDir := t.TempDir()

	if _, _, err := LoadFromPath(filepath.Join(tmpDir, "missing.yaml")); err == nil {
		t.Error("LoadFromPath() should fail for a missing file")
	}

	bad := filepath.Join(tmpDir, "bad.yaml")
	os.WriteFile(bad, []byte("engine:\n  correlation_window: soon\n"), 0644)
	if _, _, err := LoadFromPath(bad); err == nil {
		t.Error("LoadFromPath() should fail for an unparsable duration")
	}

	invalid := filepath.Join(tmpDir, "invalid.yaml")
	os.WriteFile(invalid, []byte("state:\n  backend: etcd\n"), 0644)
	if _, _, err := LoadFromPath(invalid); !errors.Is(err, ErrInvalid) {
		t.Errorf("LoadFromPath() error = %v, want ErrInvalid", err)
	}
}

func TestFindConfigPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, ConfigFileName)

	cfg := DefaultConfig()
	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	found := FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should find config in working directory")
	}

	// Explicit path doesn't exist, should fall back
	t.Setenv(EnvConfigPath, "/nonexistent/path.yaml")
	found = FindConfigPath()
	if found == "" {
		t.Error("FindConfigPath() should fall back when env path doesn't exist")
	}
}

func TestFindConfigPathOrder(t *testing.T) {
	tmpDir := t.TempDir()
	xdg := filepath.Join(tmpDir, "xdg")
	home := filepath.Join(tmpDir, "home")
	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("HOME", home)

	oldWd, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(oldWd)

	homePath := filepath.Join(home, ".config", ConfigDirName, "config.yaml")
	if err := DefaultConfig().Save(homePath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got := FindConfigPath(); got != homePath {
		t.Errorf("FindConfigPath() = %q, want %q", got, homePath)
	}

	xdgPath := filepath.Join(xdg, ConfigDirName, "config.yaml")
	if err := DefaultConfig().Save(xdgPath); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if got := FindConfigPath(); got != xdgPath {
		t.Errorf("FindConfigPath() = %q, want XDG path %q", got, xdgPath)
	}

	// A directory with the config file's name is not a config
	os.Mkdir(ConfigFileName, 0755)
	if got := FindConfigPath(); got != xdgPath {
		t.Errorf("FindConfigPath() = %q, should skip directory %s", got, ConfigFileName)
	}

	explicit := filepath.Join(tmpDir, "explicit.yaml")
	if err := DefaultConfig().Save(explicit); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	t.Setenv(EnvConfigPath, explicit)
	if got := FindConfigPath(); got != explicit {
		t.Errorf("FindConfigPath() = %q, want %q", got, explicit)
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	t.Setenv("HOME", "/home/nick")
	if got := DefaultConfigPath(); got != "/xdg/macsleuth/config.yaml" {
		t.Errorf("DefaultConfigPath() = %s", got)
	}

	t.Setenv("XDG_CONFIG_HOME", "")
	if got := DefaultConfigPath(); got != "/home/nick/.config/macsleuth/config.yaml" {
		t.Errorf("DefaultConfigPath() = %s", got)
	}

	t.Setenv("HOME", "")
	if got := DefaultConfigPath(); got != ConfigFileName {
		t.Errorf("DefaultConfigPath() = %s, want %s", got, ConfigFileName)
	}
}

func TestDuration(t *testing.T) {
	d := Duration(5 * time.Minute)

	if d.Duration() != 5*time.Minute {
		t.Errorf("Duration() = %s, want 5m", d.Duration())
	}

	marshaled, err := d.MarshalYAML()
	if err != nil {
		t.Fatalf("MarshalYAML() error: %v", err)
	}
	if marshaled != "5m0s" {
		t.Errorf("MarshalYAML() = %v, want 5m0s", marshaled)
	}
}
