package config

import "time"

// Posture defines how noisy the scanner is on the network
type Posture string

const (
	PostureStealth    Posture = "stealth"    // Few ports, no OS fingerprinting, rare cycles
	PostureBalanced   Posture = "balanced"   // Default home network behavior
	PostureAggressive Posture = "aggressive" // Wide port range with OS detection
)

// ParsePosture converts a string to Posture, defaulting to PostureBalanced
func ParsePosture(s string) Posture {
	switch s {
	case "stealth":
		return PostureStealth
	case "balanced":
		return PostureBalanced
	case "aggressive":
		return PostureAggressive
	default:
		return PostureBalanced
	}
}

// ScanProfile defines scanner settings and cycle cadence
type ScanProfile struct {
	Ports       string        `yaml:"ports"`
	OSDetection bool          `yaml:"os_detection"`
	Timeout     time.Duration `yaml:"timeout"`
	HostTimeout time.Duration `yaml:"host_timeout"`
	Cron        string        `yaml:"cron"`
}

// PostureProfiles maps postures to their default scan profiles
var PostureProfiles = map[Posture]ScanProfile{
	PostureStealth: {
		Ports:       "62078",
		OSDetection: false,
		Timeout:     2 * time.Minute,
		HostTimeout: 10 * time.Second,
		Cron:        "*/15 * * * *",
	},
	PostureBalanced: {
		Ports:       "22,80,443,5353,7000,8009,49152-49154,62078",
		OSDetection: false,
		Timeout:     5 * time.Minute,
		HostTimeout: 30 * time.Second,
		Cron:        "*/5 * * * *",
	},
	PostureAggressive: {
		Ports:       "1-1024,5353,7000,8009,49152-49154,62078",
		OSDetection: true,
		Timeout:     10 * time.Minute,
		HostTimeout: time.Minute,
		Cron:        "*/2 * * * *",
	},
}

// GetProfile returns the scan profile for a posture
func (p Posture) GetProfile() ScanProfile {
	if profile, ok := PostureProfiles[p]; ok {
		return profile
	}
	return PostureProfiles[PostureBalanced]
}
