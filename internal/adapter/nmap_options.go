package adapter

import "time"

// NmapOption is a functional option for configuring NmapScanner
type NmapOption func(*NmapScanner)

// WithTimeout sets the timeout for the entire nmap scan
func WithTimeout(d time.Duration) NmapOption {
	return func(n *NmapScanner) {
		n.timeout = d
	}
}

// WithHostTimeout gives up on a single host after d
func WithHostTimeout(d time.Duration) NmapOption {
	return func(n *NmapScanner) {
		n.hostTimeout = d
	}
}

// WithPortRange sets the ports to scan. Invalid ranges are ignored.
// Format: "80,443,8080" or "1-1000" or "22,80-443,8080"
func WithPortRange(ports string) NmapOption {
	return func(n *NmapScanner) {
		if validated, err := parsePorts(ports); err == nil {
			n.portRange = validated
		}
	}
}

// WithOSDetection enables or disables OS detection (-O)
// Note: OS detection requires root privileges
func WithOSDetection(enabled bool) NmapOption {
	return func(n *NmapScanner) {
		n.osDetection = enabled
	}
}

// WithSkipHostDiscovery treats all hosts as online (-Pn).
// Phones in power save often ignore ICMP.
func WithSkipHostDiscovery(skip bool) NmapOption {
	return func(n *NmapScanner) {
		n.skipHostDiscovery = skip
	}
}

// WithTargets sets or replaces the target list
func WithTargets(targets []string) NmapOption {
	return func(n *NmapScanner) {
		n.targets = targets
	}
}

// WithMobilePorts scans the ports phones and tablets tend to expose
func WithMobilePorts() NmapOption {
	return func(n *NmapScanner) {
		n.portRange = "22,80,443,5353,7000,8009,49152-49154,62078"
	}
}

// WithTopPorts configures scanning of top N ports
// Common values: 10, 100, 1000
func WithTopPorts(n int) NmapOption {
	return func(s *NmapScanner) {
		switch {
		case n <= 10:
			s.portRange = "21,22,23,25,80,110,139,443,445,3389"
		case n <= 100:
			s.portRange = "21-23,25,53,80,110,111,135,139,143,443,445,993,995,1723,3306,3389,5900,8080,62078"
		default:
			s.portRange = "1-1024,49152-49154,62078"
		}
	}
}
