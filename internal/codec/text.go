package codec

import (
	"fmt"
	"strings"

	"macsleuth/internal/domain"
)

// FormatSuggestion renders a suggestion for an operator to act on by hand
func FormatSuggestion(s domain.Suggestion) string {
	var b strings.Builder

	fmt.Fprintf(&b, "MAC learning suggestion (confidence: %d%%):\n", int(s.Score*100+0.5))
	fmt.Fprintf(&b, "  Add MAC %s to person '%s'\n", s.Identifier, s.Person)

	if s.IP != "" || s.Hostname != "" {
		hostname := s.Hostname
		if hostname == "" {
			hostname = "N/A"
		}
		ip := s.IP
		if ip == "" {
			ip = "N/A"
		}
		fmt.Fprintf(&b, "  Device: %s - %s\n", ip, hostname)
	}

	if s.MatchedAgainst != "" {
		fmt.Fprintf(&b, "  Resembles known device %s\n", s.MatchedAgainst)
	}

	for _, ev := range s.Evidence {
		fmt.Fprintf(&b, "  - %s\n", ev.Kind.Description())
	}

	if s.HighConfidence {
		b.WriteString("  *** HIGH CONFIDENCE ***\n")
	}

	fmt.Fprintf(&b, "  Command: Add '%s' to wifi_macs for %s in people_config.yaml", s.Identifier, s.Person)

	return b.String()
}
