package adapter

import (
	"regexp"
	"strings"
)

// iOS devices expose lockdownd and the AirPlay/companion range
var iosPorts = []int{62078, 49152, 49153, 49154}

var iosToken = regexp.MustCompile(`\bios\b`)

// classifyDevice guesses a device family from the OS detection text, the
// hostname and the open ports. Returns "" when nothing matches.
func classifyDevice(osText, hostname string, openPorts []int) string {
	for _, p := range openPorts {
		for _, ios := range iosPorts {
			if p == ios {
				return "iPhone"
			}
		}
	}

	text := strings.ToLower(osText + " " + hostname)
	switch {
	case strings.Contains(text, "iphone") || iosToken.MatchString(text):
		return "iPhone"
	case strings.Contains(text, "android"):
		return "Android"
	case strings.Contains(text, "mac os") || strings.Contains(text, "macos"):
		return "macOS"
	case strings.Contains(text, "windows"):
		return "Windows"
	case strings.Contains(text, "linux"):
		return "Linux"
	}
	return ""
}
