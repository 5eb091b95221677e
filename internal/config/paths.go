package config

import (
	"os"
	"path/filepath"
)

// File and directory names used when locating the config and state
const (
	EnvConfigPath  = "MACSLEUTH_CONFIG" // explicit config file, checked first
	ConfigFileName = "macsleuth.yaml"   // looked up in the working directory
	ConfigDirName  = "macsleuth"        // subdirectory under the XDG bases and /etc
)

// FindConfigPath returns the first existing config file, or "" when the
// daemon should run on defaults. The order is the one in the package doc,
// with $XDG_CONFIG_HOME consulted before ~/.config. A $MACSLEUTH_CONFIG
// naming a missing file is skipped rather than treated as an error.
func FindConfigPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" && fileExists(path) {
		return path
	}

	if fileExists(ConfigFileName) {
		if abs, err := filepath.Abs(ConfigFileName); err == nil {
			return abs
		}
		return ConfigFileName
	}

	for _, path := range userConfigCandidates() {
		if fileExists(path) {
			return path
		}
	}

	if path := filepath.Join("/etc", ConfigDirName, "config.yaml"); fileExists(path) {
		return path
	}
	return ""
}

// DefaultConfigPath is where a config written from defaults should go
func DefaultConfigPath() string {
	if candidates := userConfigCandidates(); len(candidates) > 0 {
		return candidates[0]
	}
	return ConfigFileName
}

// userConfigCandidates lists the per-user config locations, XDG first
func userConfigCandidates() []string {
	var paths []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ConfigDirName, "config.yaml"))
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths, filepath.Join(home, ".config", ConfigDirName, "config.yaml"))
	}
	return paths
}

// DefaultStateDir holds the state document, the journal and the Tado token
// cache when the config does not place them: $XDG_STATE_HOME/macsleuth,
// else ~/.local/state/macsleuth, else the working directory.
func DefaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, ConfigDirName)
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".local", "state", ConfigDirName)
	}
	return "."
}

// EnsureConfigDir creates the parent directory of configPath
func EnsureConfigDir(configPath string) error {
	return os.MkdirAll(filepath.Dir(configPath), 0755)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
